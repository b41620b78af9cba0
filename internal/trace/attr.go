package trace

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AttrValue is a sealed interface over the attribute value variants.
// Only String, Int, Float, and Bool implement it. Attributes are
// dynamically typed in captured traces; the sealed set keeps canonical
// ordering rules explicit per variant instead of relying on reflection.
type AttrValue interface {
	attrValue()

	// CanonicalString renders the value in its canonical textual form.
	// Equal values always render identically.
	CanonicalString() string
}

// String is a string attribute value.
type String string

func (String) attrValue() {}

// CanonicalString returns the string itself.
func (s String) CanonicalString() string { return string(s) }

// Int is an integer attribute value. Always int64, never a narrower type.
type Int int64

func (Int) attrValue() {}

// CanonicalString renders the integer in base 10.
func (n Int) CanonicalString() string { return strconv.FormatInt(int64(n), 10) }

// Float is a floating-point attribute value. NaN and infinities cannot be
// canonically ordered and are rejected at canonicalization time.
type Float float64

func (Float) attrValue() {}

// CanonicalString renders the float with the shortest round-trip form.
func (f Float) CanonicalString() string {
	return strconv.FormatFloat(float64(f), 'g', -1, 64)
}

// Bool is a boolean attribute value.
type Bool bool

func (Bool) attrValue() {}

// CanonicalString renders "true" or "false".
func (b Bool) CanonicalString() string { return strconv.FormatBool(bool(b)) }

// Attr is one key/value attribute pair. Spans hold attributes as an
// ordered list in capture order; keys are unique within a span.
type Attr struct {
	Key   string
	Value AttrValue
}

// A returns an Attr, for compact literal construction in tests and steps.
func A(key string, value AttrValue) Attr {
	return Attr{Key: key, Value: value}
}

// attrEnvelope is the wire form of an attribute value: a one-entry object
// tagging the variant, e.g. {"s":"hello"} or {"i":42}. The tag keeps ints
// and floats distinct across serialization.
type attrEnvelope struct {
	S *string  `json:"s,omitempty"`
	I *int64   `json:"i,omitempty"`
	F *float64 `json:"f,omitempty"`
	B *bool    `json:"b,omitempty"`
}

// MarshalJSON implements json.Marshaler for Attr.
func (a Attr) MarshalJSON() ([]byte, error) {
	env := attrEnvelope{}
	switch v := a.Value.(type) {
	case String:
		s := string(v)
		env.S = &s
	case Int:
		i := int64(v)
		env.I = &i
	case Float:
		f := float64(v)
		env.F = &f
	case Bool:
		b := bool(v)
		env.B = &b
	default:
		return nil, fmt.Errorf("attr %q: unknown value type %T", a.Key, a.Value)
	}
	return json.Marshal(map[string]attrEnvelope{a.Key: env})
}

// UnmarshalJSON implements json.Unmarshaler for Attr.
func (a *Attr) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("attr: expected single-key object, got %d keys", len(raw))
	}
	for key, envData := range raw {
		val, err := decodeAttrEnvelope(envData)
		if err != nil {
			return fmt.Errorf("attr %q: %w", key, err)
		}
		a.Key = key
		a.Value = val
	}
	return nil
}

func decodeAttrEnvelope(data []byte) (AttrValue, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if len(raw) != 1 {
		return nil, fmt.Errorf("expected single-tag envelope, got %d tags", len(raw))
	}
	for tag, v := range raw {
		switch tag {
		case "s":
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("tag %q: expected string", tag)
			}
			return String(s), nil
		case "i":
			n, ok := v.(json.Number)
			if !ok {
				return nil, fmt.Errorf("tag %q: expected number", tag)
			}
			i, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("tag %q: %w", tag, err)
			}
			return Int(i), nil
		case "f":
			n, ok := v.(json.Number)
			if !ok {
				return nil, fmt.Errorf("tag %q: expected number", tag)
			}
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("tag %q: %w", tag, err)
			}
			return Float(f), nil
		case "b":
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("tag %q: expected bool", tag)
			}
			return Bool(b), nil
		default:
			return nil, fmt.Errorf("unknown attr tag %q", tag)
		}
	}
	return nil, fmt.Errorf("empty attr envelope")
}
