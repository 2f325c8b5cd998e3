package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/lbastigk/Nebulite-sub003/internal/doc"
	"github.com/lbastigk/Nebulite-sub003/internal/engine"
)

// Snapshot renders the result as pretty JSON with sorted keys: the trace
// and the final global and entity documents. Digests are left out; the
// documents they cover are included in full.
func (r *Result) Snapshot() ([]byte, error) {
	ticks := make([]any, len(r.Trace))
	for i, t := range r.Trace {
		ticks[i] = map[string]any{
			"tick":    t.Tick,
			"center":  []any{t.Center.X, t.Center.Y},
			"active":  t.Active,
			"moved":   t.Moved,
			"deleted": t.Deleted,
			"stats":   statsMap(t.Stats),
		}
	}

	global, err := doc.Decode([]byte(r.Global))
	if err != nil {
		return nil, err
	}
	entities := make([]any, len(r.Entities))
	for i, es := range r.Entities {
		n, err := doc.Decode([]byte(es.Document))
		if err != nil {
			return nil, err
		}
		entities[i] = n
	}

	n, err := doc.FromAny(map[string]any{
		"scenario": r.Scenario,
		"run_id":   r.RunID,
		"ticks":    ticks,
		"final": map[string]any{
			"global":   global,
			"entities": entities,
		},
	})
	if err != nil {
		return nil, err
	}
	return append(doc.MarshalPretty(n), '\n'), nil
}

func statsMap(s engine.Stats) map[string]any {
	return map[string]any{
		"updated":               s.Updated,
		"local_firings":         s.LocalFirings,
		"broadcast_evaluations": s.BroadcastEvaluations,
		"broadcast_firings":     s.BroadcastFirings,
		"skipped_rules":         s.SkippedRules,
		"quota_hits":            s.QuotaHits,
		"dispatch_failures":     s.DispatchFailures,
		"rejected_writes":       s.RejectedWrites,
	}
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check assertions. Test failure
// (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot, err := result.Snapshot()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, snapshot)
	return nil
}
