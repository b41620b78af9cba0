// Package baseline persists recorded canonical traces as versioned
// bundles and verifies later runs against them. A bundle carries
// everything a reproduction needs: the scenario snapshot, the canonical
// trace bytes, and their digest. Files are the source of truth; the
// SQLite index alongside them exists for history queries only.
package baseline

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seanchatmangpt/cleanroom/internal/canonical"
	"github.com/seanchatmangpt/cleanroom/internal/scenario"
	"github.com/seanchatmangpt/cleanroom/internal/trace"
)

// SchemaVersion identifies the bundle format. Readers reject anything
// else rather than attempt a partial parse.
const SchemaVersion = "cleanroom/baseline/v1"

// Baseline is one recorded bundle. CreatedAt is metadata and never
// participates in the digest.
type Baseline struct {
	SchemaVersion  string            `json:"schema_version"`
	ScenarioName   string            `json:"scenario_name"`
	Config         scenario.Scenario `json:"config_snapshot"`
	CanonicalTrace json.RawMessage   `json:"canonical_trace"`
	Digest         string            `json:"digest"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NotFoundError indicates no baseline has been recorded for a scenario.
type NotFoundError struct {
	Scenario string
	Path     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("NOT FOUND: no baseline recorded for scenario %q (looked at %s)", e.Scenario, e.Path)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ValidationError indicates a baseline file that exists but cannot be
// trusted: truncated bytes, an unknown schema version, or a digest that
// no longer matches the canonical trace it claims to cover.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("VALIDATION: baseline %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("VALIDATION: baseline: %s", e.Message)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// New builds a bundle from a recorded canonical form. The digest is
// computed here, over exactly the bytes stored in the bundle.
func New(sc *scenario.Scenario, form *canonical.Form, createdAt time.Time) (*Baseline, error) {
	data, err := canonical.Marshal(form)
	if err != nil {
		return nil, err
	}
	return &Baseline{
		SchemaVersion:  SchemaVersion,
		ScenarioName:   sc.Name,
		Config:         *sc,
		CanonicalTrace: json.RawMessage(data),
		Digest:         canonical.DigestBytes(data),
		CreatedAt:      createdAt.UTC(),
	}, nil
}

// Record canonicalizes a run's raw trace under the scenario's
// volatile-key set and bundles the result.
func Record(sc *scenario.Scenario, tr *trace.Trace, createdAt time.Time) (*Baseline, error) {
	form, err := canonical.Canonicalize(tr, canonical.Options{VolatileKeys: sc.VolatileKeys})
	if err != nil {
		return nil, err
	}
	return New(sc, form, createdAt)
}

// Form decodes the stored canonical trace.
func (b *Baseline) Form() (*canonical.Form, error) {
	return canonical.Unmarshal(b.CanonicalTrace)
}

// Encode serializes the bundle for storage.
func (b *Baseline) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Decode parses and validates bundle bytes. Any defect, including a
// digest that does not match the stored canonical trace, is a
// ValidationError so callers can distinguish corruption from absence.
//
// The digest check re-marshals the decoded form rather than hashing the
// stored bytes directly: the bundle codec is free to re-indent or escape
// the embedded JSON, and only the canonical serialization is covered by
// the digest.
func Decode(data []byte) (*Baseline, error) {
	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("not a valid bundle: %v", err)}
	}
	if b.SchemaVersion != SchemaVersion {
		return nil, &ValidationError{
			Message: fmt.Sprintf("unsupported schema version %q (expected %q)", b.SchemaVersion, SchemaVersion),
		}
	}
	if b.ScenarioName == "" {
		return nil, &ValidationError{Message: "missing scenario_name"}
	}
	if len(b.CanonicalTrace) == 0 {
		return nil, &ValidationError{Message: "missing canonical_trace"}
	}

	form, err := b.Form()
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("canonical trace: %v", err)}
	}
	canonicalBytes, err := canonical.Marshal(form)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("canonical trace: %v", err)}
	}
	if got := canonical.DigestBytes(canonicalBytes); got != b.Digest {
		return nil, &ValidationError{
			Message: fmt.Sprintf("digest mismatch: bundle claims %s, canonical trace hashes to %s", b.Digest, got),
		}
	}
	return &b, nil
}
