package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"

	"github.com/seanchatmangpt/cleanroom/internal/trace"
)

// Marshal serializes a Form to its stable byte sequence. Field order is
// fixed by schema, never by map iteration; strings are NFC normalized
// with HTML escaping disabled; attribute keys are in UTF-16 code unit
// order. This is the ONLY serialization digests are computed over.
func Marshal(f *Form) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	buf.WriteString(`"schema":`)
	if err := writeString(&buf, SchemaVersion); err != nil {
		return nil, err
	}

	buf.WriteString(`,"scenario_name":`)
	if err := writeString(&buf, f.ScenarioName); err != nil {
		return nil, err
	}

	buf.WriteString(`,"context":`)
	if err := writeString(&buf, f.ContextSummary); err != nil {
		return nil, err
	}

	buf.WriteString(`,"spans":[`)
	for i, n := range f.Roots {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeNode(&buf, n); err != nil {
			return nil, err
		}
	}
	buf.WriteString("]}")

	return buf.Bytes(), nil
}

func writeNode(buf *bytes.Buffer, n *Node) error {
	buf.WriteByte('{')

	buf.WriteString(`"name":`)
	if err := writeString(buf, n.Name); err != nil {
		return err
	}

	buf.WriteString(`,"status":`)
	if err := writeString(buf, string(n.Status)); err != nil {
		return err
	}

	fmt.Fprintf(buf, `,"start_offset_ns":%d,"end_offset_ns":%d`, n.StartOffset, n.EndOffset)

	buf.WriteString(`,"attrs":{`)
	for i, a := range n.Attrs {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, a.Key); err != nil {
			return fmt.Errorf("attr key %q: %w", a.Key, err)
		}
		buf.WriteByte(':')
		if err := writeAttrValue(buf, a.Value); err != nil {
			return fmt.Errorf("attr %q: %w", a.Key, err)
		}
	}
	buf.WriteByte('}')

	buf.WriteString(`,"children":[`)
	for i, c := range n.Children {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeNode(buf, c); err != nil {
			return err
		}
	}
	buf.WriteString("]}")
	return nil
}

// writeAttrValue writes a tagged single-key object per variant, e.g.
// {"s":"v"}, {"i":42}, {"f":1.5}, {"b":true}. The tag keeps ints and
// floats distinct in the hashed bytes.
func writeAttrValue(buf *bytes.Buffer, v trace.AttrValue) error {
	switch val := v.(type) {
	case trace.String:
		buf.WriteString(`{"s":`)
		if err := writeString(buf, string(val)); err != nil {
			return err
		}
		buf.WriteByte('}')
	case trace.Int:
		fmt.Fprintf(buf, `{"i":%d}`, int64(val))
	case trace.Float:
		// NaN/Inf were rejected during canonicalization; shortest
		// round-trip rendering is stable across platforms.
		buf.WriteString(`{"f":`)
		buf.WriteString(strconv.FormatFloat(float64(val), 'g', -1, 64))
		buf.WriteByte('}')
	case trace.Bool:
		fmt.Fprintf(buf, `{"b":%t}`, bool(val))
	default:
		return fmt.Errorf("unsupported attribute value type %T", v)
	}
	return nil
}

// writeString writes a canonical JSON string: NFC normalized, no HTML
// escaping. Only control characters, backslash, and quote are escaped.
func writeString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return err
	}

	out := tmp.Bytes()
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	buf.Write(out)
	return nil
}

// compareUTF16 compares strings by UTF-16 code units. Go's native string
// comparison is UTF-8 byte order, which sorts supplementary-plane
// characters differently; canonical key order must not depend on which
// one a platform library happens to use.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := len(a16)
	if len(b16) < n {
		n = len(b16)
	}
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}
