package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested run or tick is not journaled.
var ErrNotFound = errors.New("not found")

// ListRuns returns every run ordered by id.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, world, config
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.World, &r.Config); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestTick returns the highest journaled tick of a run, or 0 when the
// run has none.
func (s *Store) LatestTick(ctx context.Context, runID string) (int64, error) {
	var tick sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(tick) FROM ticks WHERE run_id = ?
	`, runID).Scan(&tick)
	if err != nil {
		return 0, fmt.Errorf("latest tick: %w", err)
	}
	return tick.Int64, nil
}

// ReadTick returns one journaled tick with its entity states in id order.
func (s *Store) ReadTick(ctx context.Context, runID string, tick int64) (TickRecord, error) {
	rec := TickRecord{RunID: runID, Tick: tick}
	var stats string
	err := s.db.QueryRowContext(ctx, `
		SELECT center_x, center_y, active, moved, deleted, stats, global_digest, global_doc
		FROM ticks
		WHERE run_id = ? AND tick = ?
	`, runID, tick).Scan(
		&rec.Center.X,
		&rec.Center.Y,
		&rec.Active,
		&rec.Moved,
		&rec.Deleted,
		&stats,
		&rec.GlobalDigest,
		&rec.Global,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("tick %d of run %s: %w", tick, runID, ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("read tick: %w", err)
	}
	if err := json.Unmarshal([]byte(stats), &rec.Stats); err != nil {
		return rec, fmt.Errorf("read tick %d: stats: %w", tick, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, digest, document
		FROM entity_states
		WHERE run_id = ? AND tick = ?
		ORDER BY entity_id ASC
	`, runID, tick)
	if err != nil {
		return rec, fmt.Errorf("query entity states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		es := EntityState{Tick: tick}
		var id int64
		if err := rows.Scan(&id, &es.Digest, &es.Document); err != nil {
			return rec, fmt.Errorf("scan entity state: %w", err)
		}
		es.ID = uint64(id)
		rec.Entities = append(rec.Entities, es)
	}
	if err := rows.Err(); err != nil {
		return rec, fmt.Errorf("iterate entity states: %w", err)
	}
	return rec, nil
}

// EntityHistory returns one entity's journaled states in tick order.
//
// Returns an empty slice (not nil) if the entity was never journaled.
func (s *Store) EntityHistory(ctx context.Context, runID string, id uint64) ([]EntityState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tick, digest, document
		FROM entity_states
		WHERE run_id = ? AND entity_id = ?
		ORDER BY tick ASC
	`, runID, int64(id))
	if err != nil {
		return nil, fmt.Errorf("query entity history: %w", err)
	}
	defer rows.Close()

	history := []EntityState{}
	for rows.Next() {
		es := EntityState{ID: id}
		if err := rows.Scan(&es.Tick, &es.Digest, &es.Document); err != nil {
			return nil, fmt.Errorf("scan entity history: %w", err)
		}
		history = append(history, es)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity history: %w", err)
	}
	return history, nil
}
