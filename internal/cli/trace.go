package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lbastigk/Nebulite-sub003/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Entity   uint64
	Tick     int64
}

// RunInfo is one journaled run in the run listing.
type RunInfo struct {
	ID         string `json:"id"`
	World      string `json:"world"`
	LatestTick int64  `json:"latest_tick"`
}

// TickLine summarizes one journaled tick.
type TickLine struct {
	Tick         int64  `json:"tick"`
	Center       [2]int `json:"center"`
	Active       int    `json:"active"`
	Moved        int    `json:"moved"`
	Deleted      int    `json:"deleted"`
	Firings      int    `json:"firings"`
	Entities     int    `json:"entities"`
	GlobalDigest string `json:"global_digest"`
}

// TraceResult holds whichever view the flags selected.
type TraceResult struct {
	Runs     []RunInfo           `json:"runs,omitempty"`
	RunID    string              `json:"run_id,omitempty"`
	Timeline []TickLine          `json:"timeline,omitempty"`
	Tick     *store.TickRecord   `json:"tick,omitempty"`
	Entity   uint64              `json:"entity,omitempty"`
	History  []store.EntityState `json:"history,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect a journaled run",
		Long: `Inspect runs journaled with run --db.

Without --run, lists every run in the database. With --run, prints one
line per journaled tick. --tick shows a single tick with the digest of
every entity, and --entity shows one entity's document tick by tick.
--verbose includes full documents.

Examples:
  nebulite trace --db ./runs.db
  nebulite trace --db ./runs.db --run 0192...
  nebulite trace --db ./runs.db --run 0192... --tick 12 --verbose
  nebulite trace --db ./runs.db --run 0192... --entity 4 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to inspect")
	cmd.Flags().Uint64Var(&opts.Entity, "entity", 0, "show the history of this entity id")
	cmd.Flags().Int64Var(&opts.Tick, "tick", 0, "show this tick in detail")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := opts.formatter(cmd)

	if opts.RunID == "" && (opts.Entity != 0 || opts.Tick != 0) {
		return NewExitError(ExitCommandError, "--tick and --entity need --run")
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var result TraceResult
	switch {
	case opts.RunID == "":
		result.Runs, err = listRuns(ctx, st)
	case opts.Tick != 0:
		result.RunID = opts.RunID
		var rec store.TickRecord
		rec, err = st.ReadTick(ctx, opts.RunID, opts.Tick)
		result.Tick = &rec
	case opts.Entity != 0:
		result.RunID = opts.RunID
		result.Entity = opts.Entity
		result.History, err = st.EntityHistory(ctx, opts.RunID, opts.Entity)
	default:
		result.RunID = opts.RunID
		result.Timeline, err = buildTimeline(ctx, st, opts.RunID)
	}
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "nothing journaled", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	if formatter.Format == "json" {
		return formatter.Respond(CLIResponse{Status: "ok", Data: result, RunID: result.RunID})
	}
	outputTraceText(formatter.Writer, opts, result)
	return nil
}

func listRuns(ctx context.Context, st *store.Store) ([]RunInfo, error) {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]RunInfo, 0, len(runs))
	for _, r := range runs {
		latest, err := st.LatestTick(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		infos = append(infos, RunInfo{ID: r.ID, World: r.World, LatestTick: latest})
	}
	return infos, nil
}

// buildTimeline reads every journaled tick of a run. Resumed runs start
// past tick 1, so missing ticks are skipped.
func buildTimeline(ctx context.Context, st *store.Store, runID string) ([]TickLine, error) {
	latest, err := st.LatestTick(ctx, runID)
	if err != nil {
		return nil, err
	}
	if latest == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, store.ErrNotFound)
	}

	var lines []TickLine
	for tick := int64(1); tick <= latest; tick++ {
		rec, err := st.ReadTick(ctx, runID, tick)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		lines = append(lines, TickLine{
			Tick:         rec.Tick,
			Center:       [2]int{rec.Center.X, rec.Center.Y},
			Active:       rec.Active,
			Moved:        rec.Moved,
			Deleted:      rec.Deleted,
			Firings:      rec.Stats.Firings(),
			Entities:     len(rec.Entities),
			GlobalDigest: rec.GlobalDigest,
		})
	}
	return lines, nil
}

func outputTraceText(w io.Writer, opts *TraceOptions, result TraceResult) {
	switch {
	case result.Runs != nil || opts.RunID == "":
		if len(result.Runs) == 0 {
			fmt.Fprintln(w, "No runs journaled.")
			return
		}
		fmt.Fprintln(w, "=== Runs ===")
		for _, r := range result.Runs {
			fmt.Fprintf(w, "  %s  ticks=%d  world=%s\n", r.ID, r.LatestTick, r.World)
		}

	case result.Tick != nil:
		rec := result.Tick
		fmt.Fprintf(w, "Tick %d of run %s\n", rec.Tick, result.RunID)
		fmt.Fprintf(w, "  center=%s active=%d moved=%d deleted=%d\n", rec.Center, rec.Active, rec.Moved, rec.Deleted)
		fmt.Fprintf(w, "  firings: %d local, %d broadcast of %d evaluated\n",
			rec.Stats.LocalFirings, rec.Stats.BroadcastFirings, rec.Stats.BroadcastEvaluations)
		fmt.Fprintf(w, "  global %s\n", truncateID(rec.GlobalDigest))
		if opts.Verbose {
			fmt.Fprintf(w, "    %s\n", rec.Global)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Entities ===")
		for _, es := range rec.Entities {
			fmt.Fprintf(w, "  [%d] %s\n", es.ID, truncateID(es.Digest))
			if opts.Verbose {
				fmt.Fprintf(w, "       %s\n", es.Document)
			}
		}

	case opts.Entity != 0:
		fmt.Fprintf(w, "Entity %d in run %s\n", result.Entity, result.RunID)
		if len(result.History) == 0 {
			fmt.Fprintln(w, "  (never journaled)")
			return
		}
		for _, es := range result.History {
			fmt.Fprintf(w, "  [tick %d] %s\n", es.Tick, truncateID(es.Digest))
			if opts.Verbose {
				fmt.Fprintf(w, "       %s\n", es.Document)
			}
		}

	default:
		fmt.Fprintf(w, "Timeline for run %s\n", result.RunID)
		for _, l := range result.Timeline {
			fmt.Fprintf(w, "  [tick %d] center=(%d,%d) active=%d moved=%d deleted=%d firings=%d entities=%d global=%s\n",
				l.Tick, l.Center[0], l.Center[1], l.Active, l.Moved, l.Deleted, l.Firings, l.Entities, truncateID(l.GlobalDigest))
		}
	}
}

// truncateID truncates a long ID or digest for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
