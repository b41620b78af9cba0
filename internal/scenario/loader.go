package scenario

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Load parses and validates a scenario document. The document is checked
// against the embedded CUE schema before struct decoding, so schema
// violations are reported with the offending field instead of surfacing
// as zero values later.
func Load(data []byte) (*Scenario, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("not a YAML document: %v", err)}
	}
	if raw == nil {
		return nil, &ValidationError{Message: "empty scenario document"}
	}

	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("decode scenario: %v", err)}
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadFile reads and loads a scenario document from disk.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	sc, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// validateSchema unifies the document with the #Scenario definition.
func validateSchema(raw map[string]any) error {
	cctx := cuecontext.New()

	schema := cctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("internal: scenario schema does not compile: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Scenario"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("internal: scenario schema missing #Scenario: %w", err)
	}

	doc := cctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return &ValidationError{Message: fmt.Sprintf("encode document: %v", err)}
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{
			Field:   firstErrorPath(err),
			Message: cueerrors.Details(err, nil),
		}
	}
	return nil
}

// firstErrorPath extracts the offending field path from a CUE error.
func firstErrorPath(err error) string {
	for _, e := range cueerrors.Errors(err) {
		if p := e.Path(); len(p) > 0 {
			out := ""
			for i, seg := range p {
				if i > 0 {
					out += "."
				}
				out += seg
			}
			return out
		}
	}
	return ""
}
