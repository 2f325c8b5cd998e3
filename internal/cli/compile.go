package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lbastigk/Nebulite-sub003/internal/doc"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledEntity is one expanded entity document.
type CompiledEntity struct {
	Template string `json:"template"`
	Index    int    `json:"index"`
	Document any    `json:"document"`
}

// CompilationResult holds the expanded world.
type CompilationResult struct {
	Global   any              `json:"global"`
	Entities []CompiledEntity `json:"entities"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <world-dir>",
		Short: "Expand a CUE world into entity documents",
		Long: `Compile a CUE world definition into the documents a run starts from.

Entity templates are expanded by their replicas directive; each copy gets
an index attribute and its position offset by spacing times the index.
With --output the expanded world is written as sorted, indented JSON.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, worldDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	w, err := LoadWorld(worldDir)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", w.FileCount, worldDir)

	result := &CompilationResult{
		Global:   doc.ToAny(w.Global.Node()),
		Entities: make([]CompiledEntity, len(w.Entities)),
	}
	templates := map[string]int{}
	var order []string
	for i, sp := range w.Entities {
		formatter.VerboseLog("Expanded %s[%d]", sp.Template, sp.Index)
		result.Entities[i] = CompiledEntity{
			Template: sp.Template,
			Index:    sp.Index,
			Document: doc.ToAny(sp.Doc.Node()),
		}
		if templates[sp.Template] == 0 {
			order = append(order, sp.Template)
		}
		templates[sp.Template]++
	}

	if opts.Output != "" {
		if err := writeWorldToFile(result, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d entit(ies) from %d template(s)\n\n", len(result.Entities), len(order))
	for _, name := range order {
		fmt.Fprintf(formatter.Writer, "  %s: %d\n", name, templates[name])
	}
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote expanded world to %s\n", opts.Output)
	}
	return nil
}

// writeWorldToFile writes the expanded world as sorted, indented JSON.
func writeWorldToFile(result *CompilationResult, filename string) error {
	entities := make([]any, len(result.Entities))
	for i, e := range result.Entities {
		entities[i] = map[string]any{"template": e.Template, "index": e.Index, "document": e.Document}
	}
	n, err := doc.FromAny(map[string]any{"global": result.Global, "entities": entities})
	if err != nil {
		return fmt.Errorf("encoding world: %w", err)
	}
	if err := os.WriteFile(filename, append(doc.MarshalPretty(n), '\n'), 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// outputLoadError reports a LoadWorld failure. Load errors are
// command-level errors (exit code 2).
func outputLoadError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		loadErr = &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	var details any
	if loadErr.Pos.IsValid() {
		details = fmt.Sprintf("%s:%d:%d", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
	}
	_ = formatter.Error(loadErr.Code, loadErr.Message, details)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message), nil)
}
