package baseline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seanchatmangpt/cleanroom/internal/canonical"
	"github.com/seanchatmangpt/cleanroom/internal/scenario"
	"github.com/seanchatmangpt/cleanroom/internal/tracediff"
)

// Outcome classifies a reproduction attempt. Mismatch and timeout are
// results, not errors; the error path is reserved for the machinery
// itself failing.
type Outcome string

const (
	OutcomeMatch    Outcome = "match"
	OutcomeMismatch Outcome = "mismatch"
	OutcomeTimeout  Outcome = "timeout"
)

// Reproduction is the result of re-running a recorded scenario and
// comparing it against its baseline.
type Reproduction struct {
	Outcome        Outcome `json:"outcome"`
	ExpectedDigest string  `json:"expected_digest"`
	ActualDigest   string  `json:"actual_digest,omitempty"`

	// FirstDiff names one concrete diverging span on mismatch.
	FirstDiff *tracediff.SpanRef `json:"first_diff,omitempty"`

	// Comparison is the full diff on mismatch, nil otherwise.
	Comparison *tracediff.Comparison `json:"comparison,omitempty"`
}

// Verifier re-executes baselined scenarios from their config snapshot.
type Verifier struct {
	runner scenario.Runner
	logger *slog.Logger
}

// NewVerifier returns a Verifier. A nil runner gets the in-process
// StepRunner; a nil logger gets slog.Default().
func NewVerifier(runner scenario.Runner, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = scenario.NewStepRunner(logger)
	}
	return &Verifier{runner: runner, logger: logger}
}

// Reproduce rebuilds the determinism context from the bundle's config
// snapshot, re-runs the scenario, and compares digests. A context
// deadline hit during the run is the timeout outcome; a differing
// digest is the mismatch outcome with the located first divergence.
func (v *Verifier) Reproduce(ctx context.Context, b *Baseline) (*Reproduction, error) {
	sc := b.Config
	dctx, err := sc.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild determinism context: %w", err)
	}

	tr, err := v.runner.Run(ctx, &sc, dctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			v.logger.Warn("reproduction timed out", "scenario", sc.Name)
			return &Reproduction{Outcome: OutcomeTimeout, ExpectedDigest: b.Digest}, nil
		}
		return nil, fmt.Errorf("failed to re-run scenario %q: %w", sc.Name, err)
	}

	opts := canonical.Options{VolatileKeys: sc.VolatileKeys}
	form, err := canonical.Canonicalize(tr, opts)
	if err != nil {
		return nil, err
	}
	digest, err := canonical.Digest(form)
	if err != nil {
		return nil, err
	}

	if digest == b.Digest {
		v.logger.Debug("reproduction matched", "scenario", sc.Name, "digest", digest)
		return &Reproduction{Outcome: OutcomeMatch, ExpectedDigest: b.Digest, ActualDigest: digest}, nil
	}

	baseForm, err := b.Form()
	if err != nil {
		return nil, err
	}
	cmp := tracediff.DiffForms(baseForm, form)
	v.logger.Info("reproduction mismatch",
		"scenario", sc.Name,
		"expected", b.Digest,
		"actual", digest,
		"similarity", cmp.Similarity,
	)
	return &Reproduction{
		Outcome:        OutcomeMismatch,
		ExpectedDigest: b.Digest,
		ActualDigest:   digest,
		FirstDiff:      tracediff.FirstDifference(cmp),
		Comparison:     cmp,
	}, nil
}
