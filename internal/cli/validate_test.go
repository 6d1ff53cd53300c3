package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidFiles(t *testing.T) {
	dir := t.TempDir()
	copyScenario(t, dir, "mix_add", false)
	copyScenario(t, dir, "auto_update", false)

	out, err := execute(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 scenario file(s) valid")
}

func TestValidate_Errors(t *testing.T) {
	dir := t.TempDir()
	schemaBad := writeFile(t, dir, "schema.yaml", "name: x\nnodes:\n  - ref: a\n    type: blur\n")
	refBad := writeFile(t, dir, "broken.yaml", brokenScenario)

	out, err := execute(t, "--format", "json", "validate", schemaBad, refBad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Files)
	require.Len(t, resp.Data.Errors, 2)

	byFile := map[string]string{}
	for _, e := range resp.Data.Errors {
		byFile[e.File] = e.Code
	}
	assert.Equal(t, ErrCodeScenario, byFile[refBad])
	assert.Equal(t, ErrCodeSchema, byFile[schemaBad])
}

func TestValidate_TextOutput(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", brokenScenario)

	out, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "unknown node \"missing\"")
}

func TestValidate_MissingPath(t *testing.T) {
	_, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
