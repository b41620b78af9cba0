package canonical

import (
	"encoding/json"
	"fmt"

	"github.com/seanchatmangpt/cleanroom/internal/trace"
)

// wire types mirror the Marshal layout for decoding.
type wireForm struct {
	Schema       string     `json:"schema"`
	ScenarioName string     `json:"scenario_name"`
	Context      string     `json:"context"`
	Spans        []wireNode `json:"spans"`
}

type wireNode struct {
	Name          string                     `json:"name"`
	Status        string                     `json:"status"`
	StartOffsetNS int64                      `json:"start_offset_ns"`
	EndOffsetNS   int64                      `json:"end_offset_ns"`
	Attrs         map[string]json.RawMessage `json:"attrs"`
	Children      []wireNode                 `json:"children"`
}

// Unmarshal decodes a canonical serialization back into a Form. Readers
// reject an unrecognized schema version outright rather than guess at a
// partial parse; malformed bytes (truncation, unknown attribute tags)
// are a ValidationError.
func Unmarshal(data []byte) (*Form, error) {
	var w wireForm
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("canonical trace bytes are not valid JSON: %v", err)}
	}
	if w.Schema != SchemaVersion {
		return nil, &ValidationError{
			Message: fmt.Sprintf("unsupported canonical schema %q (expected %q)", w.Schema, SchemaVersion),
		}
	}

	form := &Form{
		ScenarioName:   w.ScenarioName,
		ContextSummary: w.Context,
	}
	for i := range w.Spans {
		n, err := decodeNode(&w.Spans[i])
		if err != nil {
			return nil, err
		}
		form.Roots = append(form.Roots, n)
	}
	return form, nil
}

func decodeNode(w *wireNode) (*Node, error) {
	n := &Node{
		Name:        w.Name,
		Status:      trace.Status(w.Status),
		StartOffset: w.StartOffsetNS,
		EndOffset:   w.EndOffsetNS,
	}
	if n.Status != trace.StatusOK && n.Status != trace.StatusError {
		return nil, &ValidationError{Span: w.Name, Message: fmt.Sprintf("unknown span status %q", w.Status)}
	}

	// Attribute keys were serialized in canonical order; re-sort after
	// map decoding to restore it.
	keys := make([]string, 0, len(w.Attrs))
	for k := range w.Attrs {
		keys = append(keys, k)
	}
	sortUTF16(keys)
	for _, k := range keys {
		pair, err := json.Marshal(map[string]json.RawMessage{k: w.Attrs[k]})
		if err != nil {
			return nil, &ValidationError{Span: w.Name, Key: k, Message: err.Error()}
		}
		var a trace.Attr
		if err := json.Unmarshal(pair, &a); err != nil {
			return nil, &ValidationError{Span: w.Name, Key: k, Message: err.Error()}
		}
		n.Attrs = append(n.Attrs, a)
	}

	for i := range w.Children {
		c, err := decodeNode(&w.Children[i])
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, c)
	}
	return n, nil
}

func sortUTF16(keys []string) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && compareUTF16(keys[j], keys[j-1]) < 0; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}
