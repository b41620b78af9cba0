package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seanchatmangpt/cleanroom/internal/canonical"
	"github.com/seanchatmangpt/cleanroom/internal/scenario"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Jobs int

	// Runner allows overriding scenario execution (for testing).
	// If nil, defaults to the in-process StepRunner.
	Runner scenario.Runner
}

// RunReport is the per-scenario result payload.
type RunReport struct {
	Scenario string `json:"scenario"`
	Status   string `json:"status"` // "ok" | "failed"
	Digest   string `json:"digest,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <paths...>",
		Short: "Run scenarios and print their canonical digests",
		Long: `Run declarative scenarios under their determinism contexts and print
one digest per scenario. Scenarios execute in parallel, each with its
own context and trace.

Example:
  clnrm run ./scenarios
  clnrm run checkout.yaml refunds.yaml --jobs 2`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return reportError(opts.RootOptions, cmd, runScenarios(opts, args, cmd))
		},
	}

	cmd.Flags().IntVar(&opts.Jobs, "jobs", 4, "maximum scenarios running concurrently")

	return cmd
}

func runScenarios(opts *RunOptions, paths []string, cmd *cobra.Command) error {
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
	formatter.VerboseLog("loaded %d scenario(s)", len(scenarios))

	runner := opts.Runner
	if runner == nil {
		runner = scenario.NewStepRunner(nil)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	results := scenario.RunAll(ctx, runner, scenarios, opts.Jobs)

	reports := make([]RunReport, 0, len(results))
	failed := 0
	for _, res := range results {
		rep := RunReport{Scenario: res.Scenario.Name}
		if res.Err != nil {
			rep.Status = "failed"
			rep.Error = res.Err.Error()
			failed++
		} else {
			digest, err := canonical.DigestTrace(res.Trace, canonical.Options{
				VolatileKeys: res.Scenario.VolatileKeys,
			})
			if err != nil {
				rep.Status = "failed"
				rep.Error = err.Error()
				failed++
			} else {
				rep.Status = "ok"
				rep.Digest = digest
			}
		}
		reports = append(reports, rep)
	}

	if opts.Format == "json" {
		if err := formatter.Success(reports); err != nil {
			return WrapExitError(ExitCommandError, "failed to encode output", err)
		}
	} else {
		for _, rep := range reports {
			if rep.Status == "ok" {
				fmt.Fprintf(cmd.OutOrStdout(), "ok     %s  digest=%s\n", rep.Scenario, rep.Digest)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "failed %s  %s\n", rep.Scenario, rep.Error)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d scenario(s), %d failed\n", len(reports), failed)
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", failed))
	}
	return nil
}
