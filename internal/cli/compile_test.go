package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileText(t *testing.T) {
	out, err := execute(t, "compile", walkWorld)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Compiled 3 entit(ies) from 2 template(s)")
	assert.Contains(t, out, "  clock: 1")
	assert.Contains(t, out, "  walker: 2")
}

func TestCompileJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "compile", walkWorld)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Entities, 3)

	walker := resp.Data.Entities[2]
	assert.Equal(t, "walker", walker.Template)
	assert.Equal(t, 1, walker.Index)
	fields := walker.Document.(map[string]any)
	assert.Equal(t, 15.0, fields["posX"])
	assert.NotContains(t, fields, "replicas")
	assert.Equal(t, map[string]any{"steps": 0.0}, resp.Data.Global)
}

func TestCompileOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.json")
	out, err := execute(t, "compile", walkWorld, "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote expanded world to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var written map[string]any
	require.NoError(t, json.Unmarshal(data, &written))
	assert.Len(t, written["entities"], 3)
	assert.Contains(t, written, "global")
}

func TestCompileErrors(t *testing.T) {
	empty := t.TempDir()
	notDir := filepath.Join(empty, "file.cue")
	require.NoError(t, os.WriteFile(notDir, []byte("package world\n"), 0o644))

	tests := []struct {
		name string
		dir  string
		code string
	}{
		{"missing", filepath.Join(empty, "nope"), ErrCodeNotFound},
		{"not a directory", notDir, ErrCodeNotFound},
		{"no cue files", t.TempDir(), ErrCodeNoFiles},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "--format", "json", "compile", tt.dir)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestMapFieldToErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeLoadFailed, MapFieldToErrorCode("load"))
	assert.Equal(t, ErrCodeBuildFailed, MapFieldToErrorCode("cue"))
	assert.Equal(t, ErrCodeInvalidWorld, MapFieldToErrorCode("global"))
	assert.Equal(t, ErrCodeInvalidWorld, MapFieldToErrorCode("entity.ball"))
	assert.Equal(t, ErrCodeGeneric, MapFieldToErrorCode("other"))
}
