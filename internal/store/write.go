package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lbastigk/Nebulite-sub003/internal/doc"
	"github.com/lbastigk/Nebulite-sub003/internal/engine"
	"github.com/lbastigk/Nebulite-sub003/internal/world"
)

// Run identifies one simulation run.
type Run struct {
	ID     string `json:"id"`
	World  string `json:"world"`
	Config string `json:"config"`
}

// EntityState is one entity's document at the end of a tick.
type EntityState struct {
	Tick     int64  `json:"tick"`
	ID       uint64 `json:"id"`
	Digest   string `json:"digest"`
	Document string `json:"document"`
}

// TickRecord is one journaled tick.
type TickRecord struct {
	RunID        string        `json:"run_id"`
	Tick         int64         `json:"tick"`
	Center       world.Tile    `json:"center"`
	Active       int           `json:"active"`
	Moved        int           `json:"moved"`
	Deleted      int           `json:"deleted"`
	Stats        engine.Stats  `json:"stats"`
	GlobalDigest string        `json:"global_digest"`
	Global       string        `json:"global"`
	Entities     []EntityState `json:"entities,omitempty"`
}

// Capture builds the record of the tick described by rep from the
// container's current state. Every indexed entity is recorded, in id
// order.
func Capture(runID string, rep world.Report, c *world.Container) TickRecord {
	global := c.Sim().Global()
	rec := TickRecord{
		RunID:        runID,
		Tick:         rep.Tick,
		Center:       rep.Center,
		Active:       rep.Active,
		Moved:        rep.Moved,
		Deleted:      rep.Deleted,
		Stats:        rep.Stats,
		GlobalDigest: global.Digest(),
		Global:       string(doc.MarshalCanonical(global.Node())),
	}
	arena := c.Sim().Arena()
	for _, id := range c.Entities() {
		e, ok := arena.Get(id)
		if !ok {
			continue
		}
		d := e.Doc()
		rec.Entities = append(rec.Entities, EntityState{
			Tick:     rep.Tick,
			ID:       uint64(id),
			Digest:   d.Digest(),
			Document: string(doc.MarshalCanonical(d.Node())),
		})
	}
	return rec
}

// BeginRun records a run. Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if run.Config == "" {
		run.Config = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, world, config)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.World, run.Config)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// WriteTick journals one tick and its entity states in a single
// transaction. A tick already journaled for the run is left untouched.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteTick(ctx context.Context, rec TickRecord) error {
	stats, err := json.Marshal(rec.Stats)
	if err != nil {
		return fmt.Errorf("write tick: marshal stats: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write tick: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO ticks
		(run_id, tick, center_x, center_y, active, moved, deleted, stats, global_digest, global_doc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, tick) DO NOTHING
	`,
		rec.RunID,
		rec.Tick,
		rec.Center.X,
		rec.Center.Y,
		rec.Active,
		rec.Moved,
		rec.Deleted,
		string(stats),
		rec.GlobalDigest,
		rec.Global,
	)
	if err != nil {
		return fmt.Errorf("write tick %d: %w", rec.Tick, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entity_states (run_id, tick, entity_id, digest, document)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write tick %d: prepare: %w", rec.Tick, err)
	}
	defer stmt.Close()

	for _, es := range rec.Entities {
		if _, err := stmt.ExecContext(ctx, rec.RunID, rec.Tick, int64(es.ID), es.Digest, es.Document); err != nil {
			return fmt.Errorf("write tick %d: entity %d: %w", rec.Tick, es.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write tick %d: commit: %w", rec.Tick, err)
	}
	return nil
}
