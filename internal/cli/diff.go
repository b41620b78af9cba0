package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seanchatmangpt/cleanroom/internal/canonical"
	"github.com/seanchatmangpt/cleanroom/internal/scenario"
	"github.com/seanchatmangpt/cleanroom/internal/tracediff"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
	DiffFormat string
	Threshold  float64

	// Runner allows overriding scenario execution (for testing).
	Runner scenario.Runner
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff <baseline> <current>",
		Short: "Compare two executions structurally",
		Long: `Compare a recorded baseline against a current execution. Either side
may be a baseline bundle (.json), a scenario file (run fresh), or a bare
scenario name resolved to its newest recorded bundle through the history
index. Exit code 1 signals drift beyond the significance threshold.

Example:
  clnrm diff checkout checkout.yaml
  clnrm diff old-baseline.json new-baseline.json --diff-format unified --threshold 0.1`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return reportError(opts.RootOptions, cmd, diffExecutions(opts, args[0], args[1], cmd))
		},
	}

	cmd.Flags().StringVar(&opts.DiffFormat, "diff-format", tracediff.FormatText, "diff output format (text|json|html|unified)")
	cmd.Flags().Float64Var(&opts.Threshold, "threshold", 0, "significance threshold in [0,1]; drift above it exits 1")

	return cmd
}

func diffExecutions(opts *DiffOptions, baselinePath, currentPath string, cmd *cobra.Command) error {
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("threshold %v out of range [0,1]", opts.Threshold))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	bForm, err := loadSide(ctx, opts, baselinePath)
	if err != nil {
		return err
	}
	cForm, err := loadSide(ctx, opts, currentPath)
	if err != nil {
		return err
	}

	cmp := tracediff.DiffForms(bForm, cForm)
	out, err := tracediff.Render(cmp, opts.DiffFormat)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to render diff", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)

	if tracediff.HasSignificantChanges(cmp, opts.Threshold) {
		return NewExitError(ExitFailure,
			fmt.Sprintf("drift %.3f exceeds threshold %.3f", 1-cmp.Similarity, opts.Threshold))
	}
	return nil
}

// loadSide resolves one comparison side to a canonical form. Bundles
// (by file or by scenario name through the history index) contribute
// their stored canonical trace; scenario files are executed fresh under
// their own determinism context.
func loadSide(ctx context.Context, opts *DiffOptions, path string) (*canonical.Form, error) {
	isScenarioFile := strings.HasSuffix(strings.ToLower(path), ".yml") ||
		strings.HasSuffix(strings.ToLower(path), ".yaml")
	if !isScenarioFile {
		b, err := resolveBundle(ctx, opts.StateDir, path)
		if err != nil {
			return nil, err
		}
		form, err := b.Form()
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid baseline %s", path), err)
		}
		return form, nil
	}

	sc, err := scenario.LoadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to load scenario %s", path), err)
	}
	dctx, err := sc.NewContext()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("scenario %q", sc.Name), err)
	}

	runner := opts.Runner
	if runner == nil {
		runner = scenario.NewStepRunner(nil)
	}
	tr, err := runner.Run(ctx, sc, dctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to run scenario %q", sc.Name), err)
	}

	form, err := canonical.Canonicalize(tr, canonical.Options{VolatileKeys: sc.VolatileKeys})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to canonicalize scenario %q", sc.Name), err)
	}
	return form, nil
}
