package harness

import (
	"github.com/lbastigk/Nebulite-sub003/internal/engine"
	"github.com/lbastigk/Nebulite-sub003/internal/store"
	"github.com/lbastigk/Nebulite-sub003/internal/world"
)

// TickTrace is one journaled tick as read back from the store.
type TickTrace struct {
	Tick         int64        `json:"tick"`
	Center       world.Tile   `json:"center"`
	Active       int          `json:"active"`
	Moved        int          `json:"moved"`
	Deleted      int          `json:"deleted"`
	Stats        engine.Stats `json:"stats"`
	GlobalDigest string       `json:"global_digest"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	Scenario string `json:"scenario"`
	RunID    string `json:"run_id"`

	// Trace holds every tick in order.
	Trace []TickTrace `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Global and Entities are the journaled state after the last tick.
	Global   string              `json:"global"`
	Entities []store.EntityState `json:"entities"`
}

// NewResult creates a new passing result.
func NewResult(scenario, runID string) *Result {
	return &Result{
		Pass:     true,
		Scenario: scenario,
		RunID:    runID,
		Trace:    []TickTrace{},
		Errors:   []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTick appends a journaled tick to the trace.
func (r *Result) AddTick(rec store.TickRecord) {
	r.Trace = append(r.Trace, TickTrace{
		Tick:         rec.Tick,
		Center:       rec.Center,
		Active:       rec.Active,
		Moved:        rec.Moved,
		Deleted:      rec.Deleted,
		Stats:        rec.Stats,
		GlobalDigest: rec.GlobalDigest,
	})
}
