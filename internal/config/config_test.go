package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoad_OverlaysFile(t *testing.T) {
	path := writeConfig(t, `
resolution: [640, 480]
batch_capacity: 8
workers: 2
max_firings_per_tick: 500
signed_tiles: true
center: [3, -1]
ticks: 10
rules_field: rules
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, [2]float64{640, 480}, cfg.Resolution)
	assert.Equal(t, 8, cfg.BatchCapacity)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 500, cfg.MaxFiringsPerTick)
	assert.True(t, cfg.SignedTiles)
	assert.Equal(t, [2]int{3, -1}, cfg.Center)
	assert.Equal(t, 10, cfg.Ticks)
	assert.Equal(t, "rules", cfg.Fields().Rules)
	assert.Equal(t, "invokeSubscriptions", cfg.Fields().Subscriptions, "blank field keeps default")
	assert.Len(t, cfg.EngineOptions(), 2)
	assert.Len(t, cfg.WorldOptions(), 4)
}

func TestLoad_RejectsInvalidTuning(t *testing.T) {
	path := writeConfig(t, `
resolution: [0, 100]
batch_capacity: -1
rules_field: same
subscriptions_field: same
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolution must be positive")
	assert.Contains(t, err.Error(), "batch_capacity must be positive")
	assert.Contains(t, err.Error(), "must differ")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "resolution: [1, 2\n"))
	assert.Error(t, err)
}
