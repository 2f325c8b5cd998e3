package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTuning writes a tuning file and returns its path.
func writeTuning(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runJSON(t *testing.T, args ...string) RunSummary {
	t.Helper()
	out, err := execute(t, append([]string{"--format", "json", "run"}, args...)...)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		RunID  string     `json:"run_id"`
		Data   RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	assert.Equal(t, resp.RunID, resp.Data.RunID)
	return resp.Data
}

func TestRunWorld(t *testing.T) {
	s := runJSON(t, walkWorld, "--ticks", "3", "--run-id", "walk-run")

	assert.Equal(t, "walk-run", s.RunID)
	assert.Equal(t, 3, s.Ticks)
	assert.Equal(t, int64(1), s.FirstTick)
	assert.Equal(t, int64(3), s.LastTick)
	assert.Equal(t, 3, s.Entities)
	assert.Equal(t, 9, s.Stats.Updated)
	assert.Equal(t, 9, s.Stats.LocalFirings)
	assert.Zero(t, s.Stats.BroadcastEvaluations)
	assert.Zero(t, s.Moved)
	assert.NotEmpty(t, s.GlobalDigest)
}

func TestRunWorldText(t *testing.T) {
	out, err := execute(t, "run", walkWorld, "--ticks", "2", "--run-id", "walk-run")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Ran 2 tick(s) of run walk-run")
	assert.Contains(t, out, "ticks:    1..2")
	assert.Contains(t, out, "entities: 3 (moved 0, deleted 0)")
	assert.Contains(t, out, "firings:  6 local, 0 broadcast of 0 evaluated")
}

func TestRunIsDeterministic(t *testing.T) {
	a := runJSON(t, walkWorld, "--ticks", "4", "--run-id", "same")
	b := runJSON(t, walkWorld, "--ticks", "4", "--run-id", "same")
	assert.Equal(t, a, b)
}

func TestRunTicksFromConfig(t *testing.T) {
	cfg := writeTuning(t, "ticks: 5\nworkers: 2\n")
	s := runJSON(t, "--config", cfg, walkWorld)
	assert.Equal(t, 5, s.Ticks)

	// --ticks overrides the file
	s = runJSON(t, "--config", cfg, walkWorld, "--ticks", "1")
	assert.Equal(t, 1, s.Ticks)
}

func TestRunCenterOutsideEntities(t *testing.T) {
	s := runJSON(t, walkWorld, "--ticks", "2", "--center", "10,10")
	assert.Zero(t, s.Stats.Updated)
	assert.Equal(t, 3, s.Entities)
}

func TestRunSnapshotAndResume(t *testing.T) {
	snap := filepath.Join(t.TempDir(), "walk.snap")

	first := runJSON(t, walkWorld, "--ticks", "3", "--run-id", "walk-run", "--snapshot", snap)
	assert.Equal(t, snap, first.Snapshot)
	require.FileExists(t, snap)

	resumed := runJSON(t, "--resume", snap, "--ticks", "2")
	assert.Equal(t, "walk-run", resumed.RunID)
	assert.Equal(t, int64(4), resumed.FirstTick)
	assert.Equal(t, int64(5), resumed.LastTick)
	assert.Equal(t, 3, resumed.Entities)

	straight := runJSON(t, walkWorld, "--ticks", "5", "--run-id", "walk-run")
	assert.Equal(t, straight.GlobalDigest, resumed.GlobalDigest)
}

func TestRunJournalsTicks(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	runJSON(t, walkWorld, "--ticks", "3", "--run-id", "walk-run", "--db", db)

	out, err := execute(t, "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "walk-run  ticks=3  world="+walkWorld)
}

func TestRunWithObserver(t *testing.T) {
	s := runJSON(t, walkWorld, "--ticks", "2", "--observe", "127.0.0.1:0")
	assert.Equal(t, 2, s.Ticks)
}

func TestRunScenarioFile(t *testing.T) {
	out, err := execute(t, "run", "testdata/scenarios/walk.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ walk (3 ticks)")
}

func TestRunFailingScenarioFile(t *testing.T) {
	dir := t.TempDir()
	world, err := filepath.Abs(walkWorld)
	require.NoError(t, err)
	scenario := "name: off-by-one\nworld: " + world + "\ntuning:\n  ticks: 2\nassertions:\n  - type: global_value\n    key: steps\n    expect: 3\n"
	path := filepath.Join(dir, "off.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenario), 0o644))

	out, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ off-by-one")
	assert.Contains(t, out, "Expected: global tick 2 steps = 3")
	assert.Contains(t, out, "Actual: 2")
}

func TestRunArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"nothing to run", []string{"run"}, "need exactly one of"},
		{"world and resume", []string{"run", walkWorld, "--resume", "x.snap"}, "need exactly one of"},
		{"bad center", []string{"run", walkWorld, "--center", "1"}, "--center needs exactly two values"},
		{"missing snapshot", []string{"run", "--resume", "testdata/none.snap"}, "failed to load snapshot"},
		{"missing world", []string{"run", "testdata/worlds/none"}, "E005"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunInvalidWorldFailsValidation(t *testing.T) {
	out, err := execute(t, "run", "testdata/worlds/badpos")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
}
