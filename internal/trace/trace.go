package trace

// Trace is an immutable snapshot of one scenario execution: a forest of
// spans plus metadata. Span order reflects the causal execution order as
// captured; canonicalization replaces it with structural order.
type Trace struct {
	// ScenarioName identifies the scenario that produced this trace.
	ScenarioName string `json:"scenario_name"`

	// ContextSummary is the determinism-context summary the trace was
	// produced under (seed and clock configuration).
	ContextSummary string `json:"determinism_context_summary"`

	Spans []Span `json:"spans"`
}

// Roots returns the spans with no parent, in capture order.
func (t *Trace) Roots() []Span {
	var roots []Span
	for _, s := range t.Spans {
		if s.Root() {
			roots = append(roots, s)
		}
	}
	return roots
}

// ChildrenOf returns the direct children of the span with the given ID,
// in capture order.
func (t *Trace) ChildrenOf(spanID string) []Span {
	var kids []Span
	for _, s := range t.Spans {
		if s.ParentID == spanID {
			kids = append(kids, s)
		}
	}
	return kids
}

// Find returns the first span with the given name, or nil.
func (t *Trace) Find(name string) *Span {
	for i := range t.Spans {
		if t.Spans[i].Name == name {
			return &t.Spans[i]
		}
	}
	return nil
}
