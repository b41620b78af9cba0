package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seanchatmangpt/cleanroom/internal/baseline"
	"github.com/seanchatmangpt/cleanroom/internal/scenario"
)

// ReproOptions holds flags for the repro command.
type ReproOptions struct {
	*RootOptions
	VerifyDigest bool
	Output       string

	// Runner allows overriding scenario execution (for testing).
	Runner scenario.Runner
}

// NewReproCommand creates the repro command.
func NewReproCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReproOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "repro <baseline-file | scenario-name>",
		Short: "Re-run a recorded baseline and verify reproduction",
		Long: `Load a baseline bundle, re-run its scenario from the embedded config
snapshot, and compare digests. A mismatch always names the first
diverging span; with --verify-digest anything but a match exits 1.

The argument is a bundle file, or a scenario name resolved to its
newest recorded bundle through the state directory's history index.

Example:
  clnrm repro .cleanroom/baselines/checkout.json
  clnrm repro checkout --verify-digest`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return reportError(opts.RootOptions, cmd, reproduceBaseline(opts, args[0], cmd))
		},
	}

	cmd.Flags().BoolVar(&opts.VerifyDigest, "verify-digest", false, "exit non-zero unless the reproduction matches")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the reproduction result JSON to this file")

	return cmd
}

func reproduceBaseline(opts *ReproOptions, arg string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := resolveBundle(ctx, opts.StateDir, arg)
	if err != nil {
		return err
	}

	rep, err := baseline.NewVerifier(opts.Runner, nil).Reproduce(ctx, b)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("reproduction of %q failed", b.ScenarioName), err)
	}

	if opts.Output != "" {
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode result", err)
		}
		if err := os.WriteFile(opts.Output, append(data, '\n'), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write result", err)
		}
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format == "json" {
		if err := formatter.Success(rep); err != nil {
			return WrapExitError(ExitCommandError, "failed to encode output", err)
		}
	} else {
		printReproduction(cmd, b, rep)
	}

	if opts.VerifyDigest && rep.Outcome != baseline.OutcomeMatch {
		return NewExitError(ExitFailure, fmt.Sprintf("reproduction outcome: %s", rep.Outcome))
	}
	return nil
}

func printReproduction(cmd *cobra.Command, b *baseline.Baseline, rep *baseline.Reproduction) {
	out := cmd.OutOrStdout()
	switch rep.Outcome {
	case baseline.OutcomeMatch:
		fmt.Fprintf(out, "Match: %s reproduced digest %s\n", b.ScenarioName, rep.ActualDigest)
	case baseline.OutcomeTimeout:
		fmt.Fprintf(out, "Timeout: %s did not finish within the deadline\n", b.ScenarioName)
	case baseline.OutcomeMismatch:
		fmt.Fprintf(out, "Mismatch: %s\n", b.ScenarioName)
		fmt.Fprintf(out, "  expected digest %s\n", rep.ExpectedDigest)
		fmt.Fprintf(out, "  actual   digest %s\n", rep.ActualDigest)
		if rep.FirstDiff != nil {
			fmt.Fprintf(out, "  first divergence: span %q at %s\n", rep.FirstDiff.Name, rep.FirstDiff.Path)
		}
	}
}

// resolveBundle loads a bundle from a file path, or resolves a scenario
// name to its newest recorded bundle through the history index. Anything
// that looks like a path is treated as one; only bare names hit the
// index.
func resolveBundle(ctx context.Context, stateDir, arg string) (*baseline.Baseline, error) {
	looksLikePath := strings.HasSuffix(strings.ToLower(arg), ".json") ||
		strings.ContainsAny(arg, `/\`)
	if looksLikePath {
		return loadBundle(arg)
	}
	if _, err := os.Stat(arg); err == nil {
		return loadBundle(arg)
	}

	store, err := baseline.Open(stateDir, nil)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open baseline store", err)
	}
	defer store.Close()

	entry, err := store.Latest(ctx, arg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("no baseline recorded for %q", arg), err)
	}
	return loadBundle(entry.Path)
}

// loadBundle reads and validates a bundle file, mapping failures to
// exit codes: absence and corruption are both command errors, reported
// distinctly.
func loadBundle(path string) (*baseline.Baseline, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("baseline not found: %s", path))
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read baseline", err)
	}
	b, err := baseline.Decode(data)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid baseline %s", path), err)
	}
	return b, nil
}
