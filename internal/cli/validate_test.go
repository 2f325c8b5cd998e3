package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbastigk/Nebulite-sub003/internal/compiler"
)

func TestValidateSuccess(t *testing.T) {
	out, err := execute(t, "validate", walkWorld)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ World valid (3 entities)")
}

func TestValidateWarningOnly(t *testing.T) {
	out, err := execute(t, "validate", "testdata/worlds/lonely")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ World valid (1 entities)")
	assert.Contains(t, out, "warning shouter.invokes")
	assert.Contains(t, out, compiler.ErrEmptyTopic)
}

func TestValidateFailure(t *testing.T) {
	out, err := execute(t, "validate", "testdata/worlds/badpos")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "error rock.posX")
	assert.Contains(t, out, "E104: position must be a number")
}

func TestValidateFailureJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", "testdata/worlds/badpos")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, compiler.ErrPosition, resp.Error.Code)
}

func TestValidateUsesConfiguredFields(t *testing.T) {
	cfg := writeTuning(t, "rules_field: behaviours\n")
	out, err := execute(t, "--config", cfg, "validate", "testdata/worlds/lonely")
	require.NoError(t, err)
	// invokes is no longer the rules field, so no topic is published
	assert.NotContains(t, out, "warning")
}
