package testutil

// FixedRunID names every run the same.
//
// Unlike engine.FixedGenerator, which hands out ids in sequence and panics
// when they run out, FixedRunID never runs dry. Scenario traces and golden
// files compare byte for byte, so a harness that may build several Sims for
// one scenario wants them all to share one id.
//
// Thread-safety: stateless and safe for concurrent use.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a fixed run id generator.
//
// If id is empty, Generate returns "test-run-default".
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed id.
//
// Implements engine.RunIDGenerator.
func (g *FixedRunID) Generate() string {
	return g.id
}
