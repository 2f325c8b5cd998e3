package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// journaledRun runs the walk world for three ticks into a fresh database.
func journaledRun(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "runs.db")
	_, err := execute(t, "run", walkWorld, "--ticks", "3", "--run-id", "walk-run", "--db", db)
	require.NoError(t, err)
	return db
}

func TestTraceMissingDatabaseFlag(t *testing.T) {
	_, err := execute(t, "trace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "db")
}

func TestTraceListRuns(t *testing.T) {
	db := journaledRun(t)

	out, err := execute(t, "--format", "json", "trace", "--db", db)
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Runs, 1)
	assert.Equal(t, RunInfo{ID: "walk-run", World: walkWorld, LatestTick: 3}, resp.Data.Runs[0])
}

func TestTraceEmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")
	out, err := execute(t, "trace", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "No runs journaled.\n", out)
}

func TestTraceTimeline(t *testing.T) {
	db := journaledRun(t)

	out, err := execute(t, "trace", "--db", db, "--run", "walk-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Timeline for run walk-run")
	for _, line := range []string{
		"[tick 1] center=(0,0) active=3 moved=0 deleted=0 firings=3 entities=3",
		"[tick 2] center=(0,0) active=3 moved=0 deleted=0 firings=3 entities=3",
		"[tick 3] center=(0,0) active=3 moved=0 deleted=0 firings=3 entities=3",
	} {
		assert.Contains(t, out, line)
	}
}

func TestTraceTick(t *testing.T) {
	db := journaledRun(t)

	out, err := execute(t, "--verbose", "trace", "--db", db, "--run", "walk-run", "--tick", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Tick 2 of run walk-run")
	assert.Contains(t, out, "firings: 3 local, 0 broadcast of 0 evaluated")
	assert.Contains(t, out, `{"steps":2}`)
	assert.Contains(t, out, "[3] ")
}

func TestTraceEntityHistory(t *testing.T) {
	db := journaledRun(t)

	out, err := execute(t, "--format", "json", "trace", "--db", db, "--run", "walk-run", "--entity", "2")
	require.NoError(t, err)

	var resp struct {
		RunID string      `json:"run_id"`
		Data  TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "walk-run", resp.RunID)
	require.Len(t, resp.Data.History, 3)

	var last map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Data.History[2].Document), &last))
	assert.Equal(t, 8.0, last["posX"])
	assert.Equal(t, int64(3), resp.Data.History[2].Tick)
}

func TestTraceErrors(t *testing.T) {
	db := journaledRun(t)

	_, err := execute(t, "trace", "--db", db, "--tick", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "trace", "--db", db, "--run", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "trace", "--db", db, "--run", "walk-run", "--tick", "9")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
