package trace

import "time"

// Status is the outcome of one traced operation.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Span is a single traced operation. Spans reference their parent by ID
// (a back-reference, never an ownership edge); the forest they form is
// owned exclusively by the Trace that contains it.
type Span struct {
	// SpanID is unique within a trace. IDs are run-specific and never
	// participate in canonical ordering or digests.
	SpanID string `json:"span_id"`

	// ParentID is empty for root spans.
	ParentID string `json:"parent_id,omitempty"`

	Name   string    `json:"name"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Status Status    `json:"status"`

	// Attrs holds key/value attributes in capture order.
	Attrs []Attr `json:"attrs,omitempty"`
}

// Attr returns the value for key and whether it was present.
func (s *Span) Attr(key string) (AttrValue, bool) {
	for _, a := range s.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return nil, false
}

// Root reports whether the span has no parent.
func (s *Span) Root() bool { return s.ParentID == "" }
