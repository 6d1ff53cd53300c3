package config

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/texgraph/internal/engine"
	"github.com/roach88/texgraph/internal/node"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.True(t, cfg.AutoUpdate)
	assert.False(t, cfg.UseCache)
	require.NoError(t, cfg.Validate())
}

func TestParse_KeepsDefaultsForMissingFields(t *testing.T) {
	cfg, err := Parse([]byte("workers: 2\nlog_format: json\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.AutoUpdate)
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "worker: 2\n", "field worker not found"},
		{"negative workers", "workers: -1\n", "workers must be >= 0"},
		{"bad level", "log_level: loud\n", "log_level"},
		{"bad format", "log_format: xml\n", "log_format"},
		{"cache without path", "use_cache: true\n", "use_cache requires cache_path or cache_url"},
		{"two caches", "cache_path: a.db\ncache_url: postgres://localhost/tex\n", "mutually exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "texgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 0\nauto_update: false\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Workers)
	assert.False(t, cfg.AutoUpdate)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "node", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"node":3`)

	buf.Reset()
	NewLogger("bogus", "text", &buf).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestOptions_WithPersistentCache(t *testing.T) {
	cfg := Default()
	cfg.Workers = 0
	cfg.UseCache = true
	cfg.CachePath = filepath.Join(t.TempDir(), "cache.db")
	require.NoError(t, cfg.Validate())

	st, err := cfg.OpenStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close()

	lg := engine.New(cfg.Options(nil, st)...)
	require.NoError(t, lg.Start(context.Background()))
	defer lg.Close()

	assert.True(t, lg.UseCache())
	assert.True(t, lg.AutoUpdate())
	assert.Equal(t, 0, lg.Stats().Workers)

	id, err := lg.AddNode(node.Value(0.5))
	require.NoError(t, err)
	require.NoError(t, lg.Materialize(id))
	_, err = lg.RunPending(context.Background())
	require.NoError(t, err)
	snap, err := lg.AwaitCleanRead(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, snap.Buffers, 1)
	assert.Equal(t, float32(0.5), snap.Buffers[0].Pix()[0])

	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
}

func TestOpenStore_WithoutCachePath(t *testing.T) {
	st, err := Default().OpenStore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.False(t, Default().HasCache())
	assert.Len(t, Default().Options(nil, nil), 3)
	assert.Len(t, Default().Options(NewLogger("info", "text", io.Discard), nil), 4)
}

func TestOpenStore_BadPath(t *testing.T) {
	cfg := Default()
	cfg.CachePath = filepath.Join(t.TempDir(), "missing", "dir", "cache.db")
	_, err := cfg.OpenStore(context.Background())
	assert.Error(t, err)
}

func TestOpenStore_BadURL(t *testing.T) {
	cfg := Default()
	cfg.CacheURL = "postgres://%zz"
	assert.True(t, cfg.HasCache())
	_, err := cfg.OpenStore(context.Background())
	assert.Error(t, err)
}

func TestParse_CacheURL(t *testing.T) {
	cfg, err := Parse([]byte("use_cache: true\ncache_url: postgres://localhost/tex\n"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/tex", cfg.CacheURL)
	assert.True(t, cfg.UseCache)
}
