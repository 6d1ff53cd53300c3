package cli

import (
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_WritesOutputNodes(t *testing.T) {
	dir := t.TempDir()
	scenario := copyScenario(t, dir, "mix_add", false)
	outDir := filepath.Join(dir, "out")

	out, err := execute(t, "render", scenario, "-o", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "out.png (1x1)")

	f, err := os.Open(filepath.Join(outDir, "out.png"))
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	_, _, _, a := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(153), a>>8)

	_, err = os.Stat(filepath.Join(outDir, "a.png"))
	assert.True(t, os.IsNotExist(err), "only output nodes are written by default")
}

func TestRender_All(t *testing.T) {
	dir := t.TempDir()
	scenario := copyScenario(t, dir, "mix_add", false)
	outDir := filepath.Join(dir, "out")

	out, err := execute(t, "--format", "json", "render", "--all", scenario, "-o", outDir)
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   []RenderedFile `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, resp.Data, 4)
	for _, name := range []string{"a.0.png", "b.0.png", "mix.0.png", "out.0.png"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}
}

func TestRender_FailingAssertions(t *testing.T) {
	dir := t.TempDir()
	scenario := writeFile(t, dir, "failing.yaml", failingScenario)

	out, err := execute(t, "render", scenario, "-o", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "out.png")
	_, statErr := os.Stat(filepath.Join(dir, "out.png"))
	assert.NoError(t, statErr)
}

func TestRender_LoadError(t *testing.T) {
	_, err := execute(t, "render", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
