// Package tracediff computes structural comparisons between two execution
// traces: spans classified as added, removed, modified, or unchanged,
// plus structural-change entries and a similarity score for significance
// thresholds.
//
// The engine canonicalizes both inputs internally, so benign differences
// (capture order, span IDs, absolute time, ephemeral identifiers) never
// show up as drift. A comparison is computed fresh per request and never
// cached.
package tracediff

import (
	"fmt"
	"strings"

	"github.com/seanchatmangpt/cleanroom/internal/canonical"
	"github.com/seanchatmangpt/cleanroom/internal/trace"
)

// SpanRef identifies one span in a comparison by name and its
// path-from-root (slash-joined ancestor names).
type SpanRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// AttrChange records one attribute whose value changed between baseline
// and current.
type AttrChange struct {
	Key      string `json:"key"`
	Baseline string `json:"baseline"`
	Current  string `json:"current"`
}

// AttrDiff is the attribute-level sub-diff for a modified span.
type AttrDiff struct {
	Added   []string     `json:"added,omitempty"`
	Removed []string     `json:"removed,omitempty"`
	Changed []AttrChange `json:"changed,omitempty"`
}

// Empty reports whether the sub-diff records no attribute changes.
func (d AttrDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// ModifiedSpan is a span present in both traces with differing canonical
// attributes, status, or subtree shape.
type ModifiedSpan struct {
	SpanRef
	StatusChanged bool     `json:"status_changed,omitempty"`
	ShapeChanged  bool     `json:"shape_changed,omitempty"`
	Attrs         AttrDiff `json:"attrs"`
}

// StructuralKind classifies a structural-change entry.
type StructuralKind string

const (
	StructuralParentChange StructuralKind = "parent_change"
	StructuralDepthChange  StructuralKind = "depth_change"
)

// StructuralChange records a span that moved between tree positions.
type StructuralChange struct {
	Kind         StructuralKind `json:"kind"`
	Name         string         `json:"name"`
	BaselinePath string         `json:"baseline_path"`
	CurrentPath  string         `json:"current_path"`
}

// Comparison is the output of diffing two traces.
type Comparison struct {
	BaselineScenario string `json:"baseline_scenario"`
	CurrentScenario  string `json:"current_scenario"`

	Added      []SpanRef          `json:"added"`
	Removed    []SpanRef          `json:"removed"`
	Modified   []ModifiedSpan     `json:"modified"`
	Unchanged  []SpanRef          `json:"unchanged"`
	Structural []StructuralChange `json:"structural,omitempty"`

	// Similarity is unchanged weight over total weight, in [0, 1].
	// Weight counts spans: simple and auditable rather than optimal.
	Similarity float64 `json:"similarity"`
}

// Counts returns (added, removed, modified, unchanged).
func (c *Comparison) Counts() (int, int, int, int) {
	return len(c.Added), len(c.Removed), len(c.Modified), len(c.Unchanged)
}

// AddedNames returns the names of added spans, in comparison order.
func (c *Comparison) AddedNames() []string { return names(c.Added) }

// RemovedNames returns the names of removed spans, in comparison order.
func (c *Comparison) RemovedNames() []string { return names(c.Removed) }

func names(refs []SpanRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Name
	}
	return out
}

// FirstDifference returns a reference to one concrete diverging span, or
// nil when the comparison records no drift. Modified spans are preferred
// over added, added over removed; within each class the comparison's own
// canonical order decides.
func FirstDifference(c *Comparison) *SpanRef {
	if len(c.Modified) > 0 {
		ref := c.Modified[0].SpanRef
		return &ref
	}
	if len(c.Added) > 0 {
		ref := c.Added[0]
		return &ref
	}
	if len(c.Removed) > 0 {
		ref := c.Removed[0]
		return &ref
	}
	return nil
}

// HasSignificantChanges reports whether drift exceeds the threshold:
// true when 1 - similarity > threshold. Auto-baselining uses this to
// decide whether a human must approve the new baseline.
func HasSignificantChanges(c *Comparison, threshold float64) bool {
	return 1-c.Similarity > threshold
}

// flatNode is one canonical node with its tree position.
type flatNode struct {
	node  *canonical.Node
	path  string // path-from-root including own name
	depth int
}

// Diff canonicalizes both traces and computes their comparison. Alignment
// is keyed by (name, path-from-root); same-path siblings with the same
// name align pairwise by ordinal (multiset semantics).
func Diff(baseline, current *trace.Trace, opts canonical.Options) (*Comparison, error) {
	bForm, err := canonical.Canonicalize(baseline, opts)
	if err != nil {
		return nil, fmt.Errorf("canonicalize baseline: %w", err)
	}
	cForm, err := canonical.Canonicalize(current, opts)
	if err != nil {
		return nil, fmt.Errorf("canonicalize current: %w", err)
	}
	return DiffForms(bForm, cForm), nil
}

// DiffForms compares two already-canonical forms.
func DiffForms(bForm, cForm *canonical.Form) *Comparison {
	cmp := &Comparison{
		BaselineScenario: bForm.ScenarioName,
		CurrentScenario:  cForm.ScenarioName,
	}

	bFlat := flatten(bForm)
	cFlat := flatten(cForm)

	bByPath := groupByPath(bFlat)
	cByPath := groupByPath(cFlat)

	// Walk current in canonical order for stable output ordering, then
	// sweep baseline for paths missing from current.
	seen := make(map[string]bool)
	for _, fn := range cFlat {
		if seen[fn.path] {
			continue
		}
		seen[fn.path] = true

		bNodes := bByPath[fn.path]
		cNodes := cByPath[fn.path]

		matched := len(bNodes)
		if len(cNodes) < matched {
			matched = len(cNodes)
		}
		for i := 0; i < matched; i++ {
			classifyPair(cmp, bNodes[i], cNodes[i])
		}
		for i := matched; i < len(cNodes); i++ {
			cmp.Added = append(cmp.Added, SpanRef{Name: cNodes[i].node.Name, Path: cNodes[i].path})
		}
		for i := matched; i < len(bNodes); i++ {
			cmp.Removed = append(cmp.Removed, SpanRef{Name: bNodes[i].node.Name, Path: bNodes[i].path})
		}
	}
	for _, fn := range bFlat {
		if seen[fn.path] {
			continue
		}
		seen[fn.path] = true
		for _, b := range bByPath[fn.path] {
			cmp.Removed = append(cmp.Removed, SpanRef{Name: b.node.Name, Path: b.path})
		}
	}

	cmp.Structural = detectMoves(cmp, bByPath, cByPath)
	cmp.Similarity = similarity(cmp)
	return cmp
}

// classifyPair compares two aligned nodes and records the result.
func classifyPair(cmp *Comparison, b, c flatNode) {
	attrs := diffAttrs(b.node.Attrs, c.node.Attrs)
	statusChanged := b.node.Status != c.node.Status
	shapeChanged := !sameChildShape(b.node, c.node)

	if attrs.Empty() && !statusChanged && !shapeChanged {
		cmp.Unchanged = append(cmp.Unchanged, SpanRef{Name: c.node.Name, Path: c.path})
		return
	}
	cmp.Modified = append(cmp.Modified, ModifiedSpan{
		SpanRef:       SpanRef{Name: c.node.Name, Path: c.path},
		StatusChanged: statusChanged,
		ShapeChanged:  shapeChanged,
		Attrs:         attrs,
	})
}

// sameChildShape compares the immediate child-name multisets.
func sameChildShape(a, b *canonical.Node) bool {
	if len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		// Children are in canonical order, so positional comparison of
		// names is a multiset comparison.
		if a.Children[i].Name != b.Children[i].Name {
			return false
		}
	}
	return true
}

// diffAttrs computes the attribute-level sub-diff. Both slices are
// key-sorted already (canonical form).
func diffAttrs(base, cur []trace.Attr) AttrDiff {
	var d AttrDiff
	bMap := make(map[string]string, len(base))
	for _, a := range base {
		bMap[a.Key] = a.Value.CanonicalString()
	}
	cMap := make(map[string]string, len(cur))
	for _, a := range cur {
		cMap[a.Key] = a.Value.CanonicalString()
	}

	for _, a := range cur {
		bv, ok := bMap[a.Key]
		if !ok {
			d.Added = append(d.Added, a.Key)
			continue
		}
		if cv := cMap[a.Key]; cv != bv {
			d.Changed = append(d.Changed, AttrChange{Key: a.Key, Baseline: bv, Current: cv})
		}
	}
	for _, a := range base {
		if _, ok := cMap[a.Key]; !ok {
			d.Removed = append(d.Removed, a.Key)
		}
	}
	return d
}

// detectMoves pairs removed and added spans that share a name, turning
// them into structural-change entries (parent or depth change). The spans
// stay in the added/removed sets; the structural entry is diagnostic.
func detectMoves(cmp *Comparison, bByPath, cByPath map[string][]flatNode) []StructuralChange {
	var moves []StructuralChange

	depthOf := func(path string) int { return strings.Count(path, "/") }

	usedAdded := make(map[int]bool)
	for _, rm := range cmp.Removed {
		for i, ad := range cmp.Added {
			if usedAdded[i] || ad.Name != rm.Name {
				continue
			}
			kind := StructuralParentChange
			if depthOf(ad.Path) != depthOf(rm.Path) {
				kind = StructuralDepthChange
			}
			moves = append(moves, StructuralChange{
				Kind:         kind,
				Name:         ad.Name,
				BaselinePath: rm.Path,
				CurrentPath:  ad.Path,
			})
			usedAdded[i] = true
			break
		}
	}
	return moves
}

// similarity is unchanged weight over total weight. Two empty traces are
// identical, similarity 1.
func similarity(cmp *Comparison) float64 {
	total := len(cmp.Added) + len(cmp.Removed) + len(cmp.Modified) + len(cmp.Unchanged)
	if total == 0 {
		return 1
	}
	return float64(len(cmp.Unchanged)) / float64(total)
}

// flatten walks a form depth-first in canonical order.
func flatten(f *canonical.Form) []flatNode {
	var out []flatNode
	var walk func(n *canonical.Node, prefix string, depth int)
	walk = func(n *canonical.Node, prefix string, depth int) {
		path := n.Name
		if prefix != "" {
			path = prefix + "/" + n.Name
		}
		out = append(out, flatNode{node: n, path: path, depth: depth})
		for _, c := range n.Children {
			walk(c, path, depth+1)
		}
	}
	for _, r := range f.Roots {
		walk(r, "", 0)
	}
	return out
}

func groupByPath(nodes []flatNode) map[string][]flatNode {
	m := make(map[string][]flatNode)
	for _, n := range nodes {
		m[n.path] = append(m[n.path], n)
	}
	return m
}
