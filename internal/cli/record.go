package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seanchatmangpt/cleanroom/internal/baseline"
	"github.com/seanchatmangpt/cleanroom/internal/scenario"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	Output string

	// Runner allows overriding scenario execution (for testing).
	Runner scenario.Runner
}

// RecordReport is the per-scenario record payload.
type RecordReport struct {
	Scenario string `json:"scenario"`
	Digest   string `json:"digest"`
	Path     string `json:"path"`
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record <paths...>",
		Short: "Run scenarios and persist baseline bundles",
		Long: `Run scenarios and write one baseline bundle per scenario under the
state directory. A bundle carries the scenario snapshot, the canonical
trace, and its digest; a later repro needs nothing else.

Example:
  clnrm record ./scenarios
  clnrm record checkout.yaml --output /tmp/checkout-baseline.json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return reportError(opts.RootOptions, cmd, recordBaselines(opts, args, cmd))
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the bundle to this file instead of the state directory (single scenario only)")

	return cmd
}

func recordBaselines(opts *RecordOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	scenarios, err := LoadScenarios(paths)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenarios", err)
	}
	if opts.Output != "" && len(scenarios) != 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--output requires exactly one scenario, got %d", len(scenarios)))
	}

	runner := opts.Runner
	if runner == nil {
		runner = scenario.NewStepRunner(nil)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := baseline.Open(opts.StateDir, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open baseline store", err)
	}
	defer store.Close()

	reports := make([]RecordReport, 0, len(scenarios))
	for _, sc := range scenarios {
		dctx, err := sc.NewContext()
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("scenario %q", sc.Name), err)
		}
		tr, err := runner.Run(ctx, sc, dctx)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to run scenario %q", sc.Name), err)
		}
		b, err := baseline.Record(sc, tr, dctx.Now())
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to record scenario %q", sc.Name), err)
		}

		path := store.Path(sc.Name)
		if opts.Output != "" {
			path = opts.Output
			data, err := b.Encode()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to encode bundle", err)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return WrapExitError(ExitCommandError, "failed to write bundle", err)
			}
		} else if err := store.Save(ctx, b); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to save baseline %q", sc.Name), err)
		}

		reports = append(reports, RecordReport{Scenario: sc.Name, Digest: b.Digest, Path: path})
	}

	if opts.Format == "json" {
		if err := formatter.Success(reports); err != nil {
			return WrapExitError(ExitCommandError, "failed to encode output", err)
		}
		return nil
	}
	for _, rep := range reports {
		fmt.Fprintf(cmd.OutOrStdout(), "recorded %s  digest=%s  %s\n", rep.Scenario, rep.Digest, rep.Path)
	}
	return nil
}
