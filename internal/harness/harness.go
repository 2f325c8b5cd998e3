package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/lbastigk/Nebulite-sub003/internal/compiler"
	"github.com/lbastigk/Nebulite-sub003/internal/doc"
	"github.com/lbastigk/Nebulite-sub003/internal/engine"
	"github.com/lbastigk/Nebulite-sub003/internal/entity"
	"github.com/lbastigk/Nebulite-sub003/internal/store"
	"github.com/lbastigk/Nebulite-sub003/internal/testutil"
	"github.com/lbastigk/Nebulite-sub003/internal/world"
)

// Harness is the scenario execution engine.
// It owns one container and the in-memory journal it writes to.
type Harness struct {
	store     *store.Store
	container *world.Container
	runID     string
	logger    *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Compile the world, then merge the scenario's global and entities
// 3. Run the configured number of ticks, journaling each one
// 4. Read the trace back from the journal
// 5. Check assertions against the journal and the live container
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	c, err := build(scenario)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	h := &Harness{
		store:     st,
		container: c,
		runID:     scenario.RunID,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	ctx := context.Background()
	result := NewResult(scenario.Name, scenario.RunID)
	if err := h.execute(ctx, scenario, result); err != nil {
		return nil, err
	}

	for _, a := range scenario.Assertions {
		if err := h.check(ctx, a, result); err != nil {
			result.AddError(err.Error())
		}
	}
	return result, nil
}

// build compiles the scenario's starting state into a container.
func build(s *Scenario) (*world.Container, error) {
	cfg := s.Tuning
	global := doc.New()
	var docs []*doc.Document

	if s.World != "" {
		w, err := compiler.LoadWorld(s.World)
		if err != nil {
			return nil, fmt.Errorf("load world: %w", err)
		}
		if errs := compiler.Validate(w, cfg.Fields()); compiler.HasErrors(errs) {
			return nil, fmt.Errorf("world %s: %s", s.World, errs[0].Error())
		}
		global = w.Global
		for _, sp := range w.Entities {
			docs = append(docs, sp.Doc)
		}
	}

	keys := make([]string, 0, len(s.Global))
	for k := range s.Global {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n, err := doc.FromAny(s.Global[k])
		if err != nil {
			return nil, fmt.Errorf("global.%s: %w", k, err)
		}
		if err := global.SetNode(k, n); err != nil {
			return nil, fmt.Errorf("global.%s: %w", k, err)
		}
	}

	for i, raw := range s.Entities {
		n, err := doc.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("entities[%d]: %w", i, err)
		}
		docs = append(docs, doc.FromNode(n))
	}

	opts := append(cfg.EngineOptions(),
		engine.WithDispatcher(testutil.Commands()),
		engine.WithRunIDGenerator(testutil.NewFixedRunID(s.RunID)),
	)
	sim := engine.New(global, entity.NewArena(), opts...)
	c := world.New(sim, cfg.WorldOptions()...)
	for _, d := range docs {
		c.Insert(entity.New(d))
	}
	return c, nil
}

// execute runs every tick, journals it and reads the trace back.
func (h *Harness) execute(ctx context.Context, s *Scenario, result *Result) error {
	label := s.World
	if label == "" {
		label = "inline"
	}
	if err := h.store.BeginRun(ctx, store.Run{ID: h.runID, World: label}); err != nil {
		return err
	}

	center := s.Tuning.Center
	for i := 0; i < s.Tuning.Ticks; i++ {
		rep := h.container.UpdateNeighborhood(center[0], center[1])
		if err := h.store.WriteTick(ctx, store.Capture(h.runID, rep, h.container)); err != nil {
			return fmt.Errorf("journal tick %d: %w", rep.Tick, err)
		}
		h.logger.Debug("scenario tick", "scenario", s.Name, "tick", rep.Tick, "firings", rep.Stats.Firings())
	}

	last, err := h.store.LatestTick(ctx, h.runID)
	if err != nil {
		return err
	}
	for tick := int64(1); tick <= last; tick++ {
		rec, err := h.store.ReadTick(ctx, h.runID, tick)
		if err != nil {
			return fmt.Errorf("read back tick %d: %w", tick, err)
		}
		result.AddTick(rec)
		if tick == last {
			result.Global = rec.Global
			result.Entities = rec.Entities
		}
	}
	return nil
}

// check dispatches to the matching assertion function.
func (h *Harness) check(ctx context.Context, a Assertion, result *Result) error {
	switch a.Type {
	case AssertValue:
		return h.assertValue(ctx, a, result)
	case AssertGlobalValue:
		return h.assertGlobalValue(ctx, a, result)
	case AssertTile:
		return assertTile(h.container, a, result.Trace)
	case AssertAbsent:
		return assertAbsent(h.container, a, result.Trace)
	case AssertCount:
		return assertCount(h.container, a, result.Trace)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// tickOf returns the tick an assertion reads, defaulting to the last one.
func tickOf(a Assertion, result *Result) int64 {
	if a.Tick > 0 {
		return a.Tick
	}
	if n := len(result.Trace); n > 0 {
		return result.Trace[n-1].Tick
	}
	return 0
}
