package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lbastigk/Nebulite-sub003/internal/doc"
	"github.com/lbastigk/Nebulite-sub003/internal/expr"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Self   string
	Other  string
	Global string
	Guard  bool
}

// EvalResult is the outcome of evaluating one expression.
type EvalResult struct {
	Expression  string `json:"expression"`
	Substituted string `json:"substituted"`
	Value       any    `json:"value"`
	Truthy      bool   `json:"truthy"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Resolve an expression against documents",
		Long: `Substitute $(scope.path) references and evaluate the result.

Each of --self, --other and --global takes inline JSON or a file path,
optionally followed by |key=value overrides. Missing documents resolve
every reference into them to 0.

With --guard the expression is first checked the way rule guards are
checked, and a malformed guard is reported as an error.

Examples:
  nebulite eval '$(self.posX) + 5' --self '{"posX": 10}'
  nebulite eval '$(other.hp) <= 0' --other ./enemy.json --guard
  nebulite eval 'hello $(global.name)' --global '{"name": "world"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Self, "self", "", "self document (JSON or file)")
	cmd.Flags().StringVar(&opts.Other, "other", "", "other document (JSON or file)")
	cmd.Flags().StringVar(&opts.Global, "global", "", "global document (JSON or file)")
	cmd.Flags().BoolVar(&opts.Guard, "guard", false, "check the expression as a rule guard first")

	return cmd
}

func runEval(opts *EvalOptions, expression string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if opts.Guard {
		if err := expr.Check(expression); err != nil {
			_ = formatter.Error("E_MALFORMED", err.Error(), nil)
			return WrapExitError(ExitFailure, "malformed guard", err)
		}
	}

	var docs [3]*doc.Document
	for i, in := range []struct{ name, input string }{
		{"self", opts.Self}, {"other", opts.Other}, {"global", opts.Global},
	} {
		if in.input == "" {
			continue
		}
		d, err := doc.Parse(in.input)
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("--%s: %v", in.name, err), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("invalid --%s document", in.name), err)
		}
		docs[i] = d
	}

	r := expr.NewResolver(docs[0], docs[1], docs[2])
	result := EvalResult{
		Expression:  expression,
		Substituted: r.Substitute(expression),
		Value:       doc.ToAny(r.Value(expression)),
		Truthy:      r.Bool(expression),
	}
	formatter.VerboseLog("substituted: %s", result.Substituted)

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintln(formatter.Writer, r.Text(expression))
	return nil
}
