package canonical

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/seanchatmangpt/cleanroom/internal/trace"
)

// SchemaVersion tags canonical-form serializations. Readers must reject
// forms with an unrecognized version rather than guess at a partial parse.
const SchemaVersion = "cleanroom/canonical-trace/v1"

// defaultVolatileKeys are attribute keys whose values are ephemeral
// identifiers in every scenario: they vary per run without any behavioral
// difference, so their values are replaced by positional placeholders.
var defaultVolatileKeys = map[string]bool{
	"container.id":   true,
	"container.port": true,
	"host.port":      true,
	"run.id":         true,
}

// ValidationError indicates input that cannot be canonicalized, named
// down to the offending span and attribute.
type ValidationError struct {
	Span    string
	Key     string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Span != "" && e.Key != "" {
		return fmt.Sprintf("VALIDATION: span %q attr %q: %s", e.Span, e.Key, e.Message)
	}
	if e.Span != "" {
		return fmt.Sprintf("VALIDATION: span %q: %s", e.Span, e.Message)
	}
	return fmt.Sprintf("VALIDATION: %s", e.Message)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Form is the canonical form of a trace: spans in structural order with
// volatile data stripped. Two equal Forms always serialize to identical
// bytes and therefore digest identically.
type Form struct {
	ScenarioName   string
	ContextSummary string
	Roots          []*Node
}

// Node is one span in canonical form. Children are recursively
// canonicalized and sorted; attributes are key-sorted with volatile
// values replaced by placeholders.
type Node struct {
	Name   string
	Status trace.Status

	// StartOffset and EndOffset are nanoseconds relative to the earliest
	// span start in the trace. Relative offsets preserve ordering
	// information while removing absolute time.
	StartOffset int64
	EndOffset   int64

	Attrs    []trace.Attr // sorted by key
	Children []*Node
}

// Options controls canonicalization.
type Options struct {
	// VolatileKeys adds scenario-specific attribute keys to the built-in
	// volatile set.
	VolatileKeys []string
}

// Canonicalize produces the canonical form of tr. The input trace is
// never mutated. An attribute value that cannot be canonically ordered
// (NaN, infinities) fails with a ValidationError.
func Canonicalize(tr *trace.Trace, opts Options) (*Form, error) {
	volatile := make(map[string]bool, len(defaultVolatileKeys)+len(opts.VolatileKeys))
	for k := range defaultVolatileKeys {
		volatile[k] = true
	}
	for _, k := range opts.VolatileKeys {
		volatile[k] = true
	}

	epoch := earliestStart(tr)

	// Build the forest from parent back-references, preserving capture
	// order at every level. Capture order is the deterministic execution
	// order, which is the tie-break for same-name siblings.
	children := make(map[string][]*trace.Span)
	var roots []*trace.Span
	for i := range tr.Spans {
		s := &tr.Spans[i]
		if s.ParentID == "" {
			roots = append(roots, s)
		} else {
			children[s.ParentID] = append(children[s.ParentID], s)
		}
	}

	// Orphaned parent references would silently drop subtrees.
	byID := make(map[string]bool, len(tr.Spans))
	for i := range tr.Spans {
		byID[tr.Spans[i].SpanID] = true
	}
	for i := range tr.Spans {
		if p := tr.Spans[i].ParentID; p != "" && !byID[p] {
			return nil, &ValidationError{
				Span:    tr.Spans[i].Name,
				Message: fmt.Sprintf("parent_id %q does not reference a span in this trace", p),
			}
		}
	}

	var build func(s *trace.Span) (*Node, error)
	build = func(s *trace.Span) (*Node, error) {
		n := &Node{
			Name:        s.Name,
			Status:      s.Status,
			StartOffset: s.Start.Sub(epoch).Nanoseconds(),
			EndOffset:   s.End.Sub(epoch).Nanoseconds(),
		}
		attrs, err := canonicalAttrs(s)
		if err != nil {
			return nil, err
		}
		n.Attrs = attrs

		for _, c := range children[s.SpanID] {
			child, err := build(c)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		}
		sortSiblings(n.Children)
		return n, nil
	}

	form := &Form{
		ScenarioName:   tr.ScenarioName,
		ContextSummary: tr.ContextSummary,
	}
	for _, r := range roots {
		node, err := build(r)
		if err != nil {
			return nil, err
		}
		form.Roots = append(form.Roots, node)
	}
	sortSiblings(form.Roots)

	replaceVolatile(form, volatile)
	return form, nil
}

// earliestStart returns the minimum span start, the trace's time origin.
func earliestStart(tr *trace.Trace) time.Time {
	var min time.Time
	for i := range tr.Spans {
		if i == 0 || tr.Spans[i].Start.Before(min) {
			min = tr.Spans[i].Start
		}
	}
	return min
}

// canonicalAttrs validates and key-sorts a span's attributes.
func canonicalAttrs(s *trace.Span) ([]trace.Attr, error) {
	if len(s.Attrs) == 0 {
		return nil, nil
	}
	attrs := make([]trace.Attr, len(s.Attrs))
	copy(attrs, s.Attrs)

	seen := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		if seen[a.Key] {
			return nil, &ValidationError{Span: s.Name, Key: a.Key, Message: "duplicate attribute key"}
		}
		seen[a.Key] = true

		if f, ok := a.Value.(trace.Float); ok {
			v := float64(f)
			if math.IsNaN(v) {
				return nil, &ValidationError{Span: s.Name, Key: a.Key, Message: "NaN has no canonical ordering"}
			}
			if math.IsInf(v, 0) {
				return nil, &ValidationError{Span: s.Name, Key: a.Key, Message: "infinity has no canonical ordering"}
			}
		}
		if a.Value == nil {
			return nil, &ValidationError{Span: s.Name, Key: a.Key, Message: "attribute value is missing"}
		}
	}

	sort.SliceStable(attrs, func(i, j int) bool {
		return compareUTF16(attrs[i].Key, attrs[j].Key) < 0
	})
	return attrs, nil
}

// sortSiblings orders siblings by name; the stable sort preserves
// first-seen order among same-name siblings, which is derived from
// deterministic execution order rather than wall-clock. Span IDs are
// run-specific and never participate.
//
// Same-name siblings with identical canonical subtrees are thereby a
// multiset: indistinguishable by design.
func sortSiblings(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return compareUTF16(nodes[i].Name, nodes[j].Name) < 0
	})
}

// replaceVolatile rewrites the values of volatile attribute keys with
// "<volatile:N>" placeholders, N assigned by first occurrence in the
// canonical walk order. Assigning after sorting makes placeholder numbers
// a structural property, not an insertion-order artifact.
func replaceVolatile(form *Form, volatile map[string]bool) {
	next := 0
	assigned := make(map[string]string)

	var walk func(n *Node)
	walk = func(n *Node) {
		for i, a := range n.Attrs {
			if !volatile[a.Key] {
				continue
			}
			raw := a.Value.CanonicalString()
			placeholder, ok := assigned[raw]
			if !ok {
				placeholder = fmt.Sprintf("<volatile:%d>", next)
				assigned[raw] = placeholder
				next++
			}
			n.Attrs[i].Value = trace.String(placeholder)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, r := range form.Roots {
		walk(r)
	}
}

// Retrace renders the form back into a synthetic trace with timestamps
// rebuilt from offsets. Canonicalizing the result reproduces the same
// form; the round trip is how idempotence is observable.
func (f *Form) Retrace() *trace.Trace {
	tr := &trace.Trace{
		ScenarioName:   f.ScenarioName,
		ContextSummary: f.ContextSummary,
	}
	epoch := time.Unix(0, 0).UTC()
	nextID := 0

	var walk func(n *Node, parentID string)
	walk = func(n *Node, parentID string) {
		nextID++
		id := fmt.Sprintf("%d", nextID)
		attrs := make([]trace.Attr, len(n.Attrs))
		copy(attrs, n.Attrs)
		tr.Spans = append(tr.Spans, trace.Span{
			SpanID:   id,
			ParentID: parentID,
			Name:     n.Name,
			Start:    epoch.Add(time.Duration(n.StartOffset)),
			End:      epoch.Add(time.Duration(n.EndOffset)),
			Status:   n.Status,
			Attrs:    attrs,
		})
		for _, c := range n.Children {
			walk(c, id)
		}
	}
	for _, r := range f.Roots {
		walk(r, "")
	}
	return tr
}
