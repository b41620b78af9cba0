// Package scenario defines declarative test scenarios and the runner
// that executes them under a determinism context to produce a raw Trace.
//
// The container-backed execution layer is a collaborator behind the
// Runner interface; the in-process StepRunner shipped here executes step
// definitions directly, which is what record/repro re-execution uses.
package scenario

import (
	"errors"
	"fmt"

	"github.com/seanchatmangpt/cleanroom/internal/determinism"
)

// Scenario is one declarative test scenario parsed from a YAML document.
type Scenario struct {
	// Name uniquely identifies the scenario; baselines are stored per name.
	Name string `yaml:"name" json:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Determinism configures the seed and frozen clock. Absent seed means
	// each run is independently random.
	Determinism determinism.Config `yaml:"determinism,omitempty" json:"determinism,omitempty"`

	// VolatileKeys adds scenario-specific attribute keys to the built-in
	// volatile set during canonicalization.
	VolatileKeys []string `yaml:"volatile_keys,omitempty" json:"volatile_keys,omitempty"`

	// Steps are executed in order; each produces one span.
	Steps []Step `yaml:"steps" json:"steps"`
}

// Step is one scenario step. Generator directives exercise the
// deterministic streams: each named directive stores the generated value
// under that attribute key on the step's span.
type Step struct {
	// Name becomes the span name.
	Name string `yaml:"name" json:"name"`

	// Parent optionally names an earlier step; the step's span becomes a
	// child of that step's span instead of the scenario root.
	Parent string `yaml:"parent,omitempty" json:"parent,omitempty"`

	// Attrs are literal attributes (string, int, float, or bool values).
	Attrs map[string]any `yaml:"attrs,omitempty" json:"attrs,omitempty"`

	// EmitUUID stores a UUID from the uuid stream under this key.
	EmitUUID string `yaml:"emit_uuid,omitempty" json:"emit_uuid,omitempty"`

	// EmitTimestamp stores the provider's current time (RFC3339Nano)
	// under this key.
	EmitTimestamp string `yaml:"emit_timestamp,omitempty" json:"emit_timestamp,omitempty"`

	// EmitFake stores a fake-data name under this key.
	EmitFake string `yaml:"emit_fake,omitempty" json:"emit_fake,omitempty"`

	// Fail marks the step's span with error status.
	Fail bool `yaml:"fail,omitempty" json:"fail,omitempty"`
}

// ValidationError indicates a scenario document that does not satisfy the
// schema, named down to the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("VALIDATION: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("VALIDATION: %s", e.Message)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NewContext builds the scenario's determinism context. Malformed
// determinism config fails here with a determinism.ConfigError.
func (s *Scenario) NewContext() (*determinism.Context, error) {
	return determinism.NewContext(s.Determinism)
}

// validate checks cross-field constraints the CUE schema cannot express.
func (s *Scenario) validate() error {
	seen := make(map[string]bool, len(s.Steps))
	for i, st := range s.Steps {
		if st.Parent != "" && !seen[st.Parent] {
			return &ValidationError{
				Field:   fmt.Sprintf("steps[%d].parent", i),
				Message: fmt.Sprintf("parent %q does not name an earlier step", st.Parent),
			}
		}
		seen[st.Name] = true
	}
	return nil
}
