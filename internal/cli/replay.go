package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lbastigk/Nebulite-sub003/internal/compiler"
	"github.com/lbastigk/Nebulite-sub003/internal/config"
	"github.com/lbastigk/Nebulite-sub003/internal/engine"
	"github.com/lbastigk/Nebulite-sub003/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// Divergence is the first difference between the journal and the replay
// at one tick.
type Divergence struct {
	Tick     int64  `json:"tick"`
	Entity   uint64 `json:"entity,omitempty"` // 0 for the global document
	Journal  string `json:"journal"`
	Replayed string `json:"replayed"`
}

// ReplayResult holds the replay outcome.
type ReplayResult struct {
	RunID         string       `json:"run_id"`
	Ticks         int          `json:"ticks"`
	Deterministic bool         `json:"deterministic"`
	Divergences   []Divergence `json:"divergences,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <world-dir>",
		Short: "Re-run a journaled run and verify determinism",
		Long: `Re-run a world under the tuning recorded for a journaled run and compare
every tick against the journal.

The global document and every entity document are compared by digest.
Each tick reports at most its first difference. Runs resumed from a
snapshot cannot be replayed from a world.

Exit codes:
  0 - Every tick matched
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, etc.)

Examples:
  nebulite replay ./worlds/balls --db ./runs.db --run 0192...
  nebulite replay ./worlds/balls --db ./runs.db --run 0192... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to replay (required)")
	_ = cmd.MarkFlagRequired("run")

	return cmd
}

func runReplay(opts *ReplayOptions, worldDir string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := opts.formatter(cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	cfg, err := recordedConfig(ctx, st, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	latest, err := st.LatestTick(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	if _, err := st.ReadTick(ctx, opts.RunID, 1); err != nil {
		return WrapExitError(ExitCommandError, "run has no tick 1 (resumed from a snapshot?)", err)
	}

	w, err := LoadWorld(worldDir)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	if errs := compiler.Validate(w, cfg.Fields()); compiler.HasErrors(errs) {
		return outputValidationErrors(formatter, splitFindings(w, errs))
	}

	c := buildContainer(w, cfg, engine.NewFixedGenerator(opts.RunID))
	defer c.Close()

	result := ReplayResult{RunID: opts.RunID, Deterministic: true}
	for tick := int64(1); tick <= latest; tick++ {
		want, err := st.ReadTick(ctx, opts.RunID, tick)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read tick %d", tick), err)
		}
		rep := c.UpdateNeighborhood(want.Center.X, want.Center.Y)
		got := store.Capture(opts.RunID, rep, c)
		result.Ticks++
		formatter.VerboseLog("tick %d: global %s", tick, truncateID(got.GlobalDigest))

		if d, ok := compareTick(want, got); !ok {
			result.Deterministic = false
			result.Divergences = append(result.Divergences, d)
		}
	}

	if formatter.Format == "json" {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter, result)
}

// recordedConfig returns the tuning journaled with a run.
func recordedConfig(ctx context.Context, st *store.Store, runID string) (config.Config, error) {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return config.Config{}, err
	}
	for _, r := range runs {
		if r.ID != runID {
			continue
		}
		cfg := config.Default()
		if err := json.Unmarshal([]byte(r.Config), &cfg); err != nil {
			return cfg, fmt.Errorf("run %s: config: %w", runID, err)
		}
		cfg.Normalize()
		return cfg, cfg.Validate()
	}
	return config.Config{}, fmt.Errorf("run %s: %w", runID, store.ErrNotFound)
}

// compareTick returns the first difference between two records of the
// same tick.
func compareTick(want, got store.TickRecord) (Divergence, bool) {
	if want.GlobalDigest != got.GlobalDigest {
		return Divergence{Tick: want.Tick, Journal: want.GlobalDigest, Replayed: got.GlobalDigest}, false
	}
	replayed := make(map[uint64]string, len(got.Entities))
	for _, es := range got.Entities {
		replayed[es.ID] = es.Digest
	}
	for _, es := range want.Entities {
		digest, ok := replayed[es.ID]
		if !ok {
			digest = "(missing)"
		}
		if digest != es.Digest {
			return Divergence{Tick: want.Tick, Entity: es.ID, Journal: es.Digest, Replayed: digest}, false
		}
		delete(replayed, es.ID)
	}
	for _, es := range got.Entities {
		if _, extra := replayed[es.ID]; extra {
			return Divergence{Tick: want.Tick, Entity: es.ID, Journal: "(missing)", Replayed: es.Digest}, false
		}
	}
	return Divergence{}, true
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{Status: "ok", Data: result, RunID: result.RunID}
	if !result.Deterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "determinism verification failed",
		}
	}
	if err := formatter.Respond(response); err != nil {
		return err
	}

	if !result.Deterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(formatter *OutputFormatter, result ReplayResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Replay Summary: run %s, %d tick(s)\n", result.RunID, result.Ticks)
	for _, d := range result.Divergences {
		what := "global"
		if d.Entity != 0 {
			what = fmt.Sprintf("entity %d", d.Entity)
		}
		fmt.Fprintf(w, "✗ tick %d: %s journal=%s replayed=%s\n", d.Tick, what, truncateID(d.Journal), truncateID(d.Replayed))
	}
	fmt.Fprintln(w)

	if result.Deterministic {
		fmt.Fprintln(w, "✓ Replay matches the journal")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
