package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lbastigk/Nebulite-sub003/internal/compiler"
	"github.com/lbastigk/Nebulite-sub003/internal/config"
	"github.com/lbastigk/Nebulite-sub003/internal/engine"
	"github.com/lbastigk/Nebulite-sub003/internal/harness"
	"github.com/lbastigk/Nebulite-sub003/internal/observer"
	"github.com/lbastigk/Nebulite-sub003/internal/snapshot"
	"github.com/lbastigk/Nebulite-sub003/internal/store"
	"github.com/lbastigk/Nebulite-sub003/internal/world"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Ticks    int
	Center   []int
	RunID    string
	Snapshot string
	Resume   string
	Observe  string
	Interval time.Duration
}

// RunSummary is what the run command reports.
type RunSummary struct {
	RunID        string       `json:"run_id"`
	FirstTick    int64        `json:"first_tick"`
	LastTick     int64        `json:"last_tick"`
	Ticks        int          `json:"ticks"`
	Entities     int          `json:"entities"`
	Moved        int          `json:"moved"`
	Deleted      int          `json:"deleted"`
	Stats        engine.Stats `json:"stats"`
	GlobalDigest string       `json:"global_digest"`
	Snapshot     string       `json:"snapshot,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [world-dir | scenario.yaml]",
		Short: "Run a world for a number of ticks",
		Long: `Run a CUE world, resume a snapshot, or execute a scenario file.

Each tick updates the 3x3 neighborhood of tiles around the center. With
--db every tick is journaled to SQLite; with --snapshot the final state
is saved so a later run can continue it with --resume. --observe serves
a read-only websocket stream of tick summaries at /ws.

A scenario file (.yaml) runs through the test harness and reports its
assertions instead.

With ticks set to 0 the run continues until interrupted.

Examples:
  nebulite run ./worlds/balls --ticks 100 --db ./runs.db
  nebulite run ./worlds/balls --snapshot ./balls.snap
  nebulite run --resume ./balls.snap --ticks 50
  nebulite run ./worlds/balls --ticks 0 --observe :8080 --interval 16ms
  nebulite run ./scenarios/ping.yaml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			return runWorld(opts, target, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal every tick to this SQLite database")
	cmd.Flags().IntVar(&opts.Ticks, "ticks", -1, "number of ticks (overrides config; 0 runs until interrupted)")
	cmd.Flags().IntSliceVar(&opts.Center, "center", nil, "neighborhood center tile as x,y (overrides config)")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "fixed run id (default: a new UUIDv7)")
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "save a snapshot here after the last tick")
	cmd.Flags().StringVar(&opts.Resume, "resume", "", "continue from a snapshot instead of a world")
	cmd.Flags().StringVar(&opts.Observe, "observe", "", "serve the websocket tick stream on this address")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "pause between ticks")

	return cmd
}

func runWorld(opts *RunOptions, target string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if ext := filepath.Ext(target); ext == ".yaml" || ext == ".yml" {
		return runScenarioFile(formatter, target)
	}
	if (target == "") == (opts.Resume == "") {
		return NewExitError(ExitCommandError, "need exactly one of a world directory or --resume")
	}

	cfg, err := opts.loadTuning()
	if err != nil {
		return err
	}
	if opts.Ticks >= 0 {
		cfg.Ticks = opts.Ticks
	}
	if len(opts.Center) > 0 {
		if len(opts.Center) != 2 {
			return NewExitError(ExitCommandError, "--center needs exactly two values: x,y")
		}
		cfg.Center = [2]int{opts.Center[0], opts.Center[1]}
	}

	var gen engine.RunIDGenerator = engine.UUIDv7Generator{}
	if opts.RunID != "" {
		gen = engine.NewFixedGenerator(opts.RunID)
	}

	var (
		c     *world.Container
		label string
	)
	if opts.Resume != "" {
		snap, err := snapshot.Load(opts.Resume)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load snapshot", err)
		}
		engineOpts := append(cfg.EngineOptions(), engine.WithDispatcher(newCommands()))
		c, err = snapshot.Restore(snap, engineOpts,
			world.WithBatchCapacity(cfg.BatchCapacity), world.WithWorkers(cfg.Workers))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to restore snapshot", err)
		}
		label = opts.Resume
		slog.Info("snapshot restored", "path", opts.Resume, "run_id", snap.Header.RunID, "tick", snap.Header.Tick)
	} else {
		w, err := LoadWorld(target)
		if err != nil {
			return outputLoadError(formatter, err)
		}
		if errs := compiler.Validate(w, cfg.Fields()); compiler.HasErrors(errs) {
			return outputValidationErrors(formatter, splitFindings(w, errs))
		}
		c = buildContainer(w, cfg, gen)
		label = target
		slog.Info("world loaded", "dir", target, "files", w.FileCount, "entities", len(w.Entities))
	}
	defer c.Close()

	var st *store.Store
	if opts.Database != "" {
		st, err = openJournal(cmd.Context(), opts.Database, c.Sim().RunID(), label, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping after this tick", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var hub *observer.Hub
	if opts.Observe != "" {
		var shutdown func()
		hub, shutdown, err = serveObserver(opts.Observe, c.Sim().RunID())
		if err != nil {
			return err
		}
		defer shutdown()
	}

	summary, err := loop(ctx, c, cfg, st, hub, opts.Interval)
	if err != nil {
		return err
	}

	if opts.Snapshot != "" {
		if err := snapshot.Save(opts.Snapshot, snapshot.Capture(c)); err != nil {
			return WrapExitError(ExitCommandError, "failed to save snapshot", err)
		}
		summary.Snapshot = opts.Snapshot
		slog.Info("snapshot saved", "path", opts.Snapshot, "tick", summary.LastTick)
	}

	return outputRunSummary(formatter, summary)
}

// loop runs ticks until cfg.Ticks is reached or ctx is cancelled.
func loop(ctx context.Context, c *world.Container, cfg config.Config, st *store.Store, hub *observer.Hub, interval time.Duration) (RunSummary, error) {
	sim := c.Sim()
	summary := RunSummary{RunID: sim.RunID(), FirstTick: sim.Clock().Current() + 1}

	for cfg.Ticks == 0 || summary.Ticks < cfg.Ticks {
		if ctx.Err() != nil {
			break
		}
		rep := c.UpdateNeighborhood(cfg.Center[0], cfg.Center[1])
		summary.Ticks++
		summary.LastTick = rep.Tick
		summary.Moved += rep.Moved
		summary.Deleted += rep.Deleted
		summary.Stats.Add(rep.Stats)

		if st != nil {
			if err := st.WriteTick(ctx, store.Capture(sim.RunID(), rep, c)); err != nil {
				return summary, WrapExitError(ExitFailure, fmt.Sprintf("failed to journal tick %d", rep.Tick), err)
			}
		}
		if hub != nil {
			hub.Publish(rep, c.Count(), sim.Global().Digest())
		}

		if interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
	}

	if summary.Ticks == 0 {
		summary.FirstTick = 0
	}
	summary.Entities = c.Count()
	summary.GlobalDigest = sim.Global().Digest()
	return summary, nil
}

// openJournal opens the database and records the run.
func openJournal(ctx context.Context, path, runID, label string, cfg config.Config) (*store.Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to encode config", err)
	}
	if err := st.BeginRun(ctx, store.Run{ID: runID, World: label, Config: string(cfgJSON)}); err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to record run", err)
	}
	slog.Info("journaling run", "db", path, "run_id", runID)
	return st, nil
}

// serveObserver starts the websocket stream. The returned function stops
// the server and disconnects every observer.
func serveObserver(addr, runID string) (*observer.Hub, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to listen for observers", err)
	}
	hub := observer.NewHub(runID)
	mux := http.NewServeMux()
	mux.Handle("/ws", hub.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("observer server failed", "error", err)
		}
	}()
	slog.Info("observer listening", "addr", ln.Addr().String(), "path", "/ws")

	return hub, func() {
		hub.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// splitFindings turns compiler findings into a failed ValidationResult.
func splitFindings(w *compiler.World, errs []compiler.ValidationError) ValidationResult {
	result := ValidationResult{Entities: len(w.Entities)}
	for _, ve := range errs {
		if ve.Warning {
			result.Warnings = append(result.Warnings, ve)
		} else {
			result.Errors = append(result.Errors, ve)
		}
	}
	return result
}

func outputRunSummary(formatter *OutputFormatter, s RunSummary) error {
	if formatter.Format == "json" {
		return formatter.Respond(CLIResponse{Status: "ok", Data: s, RunID: s.RunID})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Ran %d tick(s) of run %s\n", s.Ticks, s.RunID)
	if s.Ticks > 0 {
		fmt.Fprintf(w, "  ticks:    %d..%d\n", s.FirstTick, s.LastTick)
	}
	fmt.Fprintf(w, "  entities: %d (moved %d, deleted %d)\n", s.Entities, s.Moved, s.Deleted)
	fmt.Fprintf(w, "  firings:  %d local, %d broadcast of %d evaluated\n",
		s.Stats.LocalFirings, s.Stats.BroadcastFirings, s.Stats.BroadcastEvaluations)
	if s.Snapshot != "" {
		fmt.Fprintf(w, "  snapshot: %s\n", s.Snapshot)
	}
	return nil
}

// runScenarioFile executes one scenario and reports its assertions.
func runScenarioFile(formatter *OutputFormatter, path string) error {
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	result, err := harness.Run(scenario)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}

	sr := ScenarioResult{Name: scenario.Name, Pass: result.Pass, Ticks: len(result.Trace), Errors: result.Errors}
	if formatter.Format == "json" {
		if err := formatter.Respond(CLIResponse{Status: statusOf(sr.Pass), Data: sr, RunID: result.RunID}); err != nil {
			return err
		}
	} else {
		printScenarioResult(formatter.Writer, sr)
	}
	if !sr.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

func statusOf(pass bool) string {
	if pass {
		return "ok"
	}
	return "error"
}
