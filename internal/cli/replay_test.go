package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbastigk/Nebulite-sub003/internal/store"
)

func TestReplayMatchesJournal(t *testing.T) {
	db := journaledRun(t)

	out, err := execute(t, "replay", walkWorld, "--db", db, "--run", "walk-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Replay Summary: run walk-run, 3 tick(s)")
	assert.Contains(t, out, "✓ Replay matches the journal")
}

func TestReplayUsesRecordedTuning(t *testing.T) {
	cfg := writeTuning(t, "resolution: [4, 4]\nbatch_capacity: 1\nworkers: 3\n")
	db := journaledRun(t)
	_, err := execute(t, "--config", cfg, "run", walkWorld, "--ticks", "3", "--run-id", "small-tiles", "--db", db)
	require.NoError(t, err)

	// No --config here: the tuning comes from the journal.
	out, err := execute(t, "--format", "json", "replay", walkWorld, "--db", db, "--run", "small-tiles")
	require.NoError(t, err)

	var resp struct {
		Data ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Data.Deterministic)
	assert.Equal(t, 3, resp.Data.Ticks)
}

func TestReplayDetectsDivergence(t *testing.T) {
	db := journaledRun(t)

	out, err := execute(t, "--format", "json", "replay", "testdata/worlds/lonely", "--db", db, "--run", "walk-run")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
		Error  *CLIError    `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_DETERMINISM", resp.Error.Code)
	assert.False(t, resp.Data.Deterministic)
	require.Len(t, resp.Data.Divergences, 3)
	assert.Equal(t, int64(1), resp.Data.Divergences[0].Tick)
	assert.Zero(t, resp.Data.Divergences[0].Entity)
}

func TestReplayUnknownRun(t *testing.T) {
	db := journaledRun(t)

	_, err := execute(t, "replay", walkWorld, "--db", db, "--run", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCompareTick(t *testing.T) {
	base := store.TickRecord{
		Tick:         4,
		GlobalDigest: "g",
		Entities:     []store.EntityState{{ID: 1, Digest: "a"}, {ID: 2, Digest: "b"}},
	}

	_, ok := compareTick(base, base)
	assert.True(t, ok)

	changed := base
	changed.Entities = []store.EntityState{{ID: 1, Digest: "a"}, {ID: 2, Digest: "c"}}
	d, ok := compareTick(base, changed)
	assert.False(t, ok)
	assert.Equal(t, Divergence{Tick: 4, Entity: 2, Journal: "b", Replayed: "c"}, d)

	missing := base
	missing.Entities = base.Entities[:1]
	d, ok = compareTick(base, missing)
	assert.False(t, ok)
	assert.Equal(t, "(missing)", d.Replayed)

	extra := base
	extra.Entities = append([]store.EntityState{}, base.Entities...)
	extra.Entities = append(extra.Entities, store.EntityState{ID: 7, Digest: "z"})
	d, ok = compareTick(base, extra)
	assert.False(t, ok)
	assert.Equal(t, Divergence{Tick: 4, Entity: 7, Journal: "(missing)", Replayed: "z"}, d)
}
