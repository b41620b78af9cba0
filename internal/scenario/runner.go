package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seanchatmangpt/cleanroom/internal/determinism"
	"github.com/seanchatmangpt/cleanroom/internal/trace"
)

// RootSpanName is the span every scenario execution is rooted under.
const RootSpanName = "scenario.run"

// Runner executes a scenario under a determinism context and produces a
// raw trace. The in-process StepRunner is the shipped implementation; a
// container-backed runner satisfies the same interface.
type Runner interface {
	Run(ctx context.Context, sc *Scenario, dctx *determinism.Context) (*trace.Trace, error)
}

// StepRunner executes scenario steps in-process. Step execution is
// strictly sequential within one scenario; fan-out happens across
// scenarios, each with its own determinism context and trace.
type StepRunner struct {
	logger *slog.Logger
}

// NewStepRunner returns a StepRunner logging through logger
// (slog.Default() when nil).
func NewStepRunner(logger *slog.Logger) *StepRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &StepRunner{logger: logger}
}

// Run executes all steps and returns the trace snapshot. Every timestamp
// in the trace comes from the determinism context's clock; the system
// clock is never read directly here.
func (r *StepRunner) Run(ctx context.Context, sc *Scenario, dctx *determinism.Context) (*trace.Trace, error) {
	tr := &trace.Trace{
		ScenarioName:   sc.Name,
		ContextSummary: dctx.Summary(),
	}

	spanIDs := make(map[string]string, len(sc.Steps)+1)
	nextID := 0
	newSpanID := func() string {
		nextID++
		return fmt.Sprintf("s%d", nextID)
	}

	rootStart := dctx.Now()
	rootID := newSpanID()
	spanIDs[RootSpanName] = rootID

	r.logger.Debug("scenario starting", "scenario", sc.Name, "steps", len(sc.Steps))

	for i := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scenario %s interrupted at step %d: %w", sc.Name, i, err)
		}

		step := &sc.Steps[i]
		span, err := r.runStep(step, dctx, newSpanID(), spanIDs, rootID)
		if err != nil {
			return nil, err
		}
		spanIDs[step.Name] = span.SpanID
		tr.Spans = append(tr.Spans, span)
	}

	root := trace.Span{
		SpanID: rootID,
		Name:   RootSpanName,
		Start:  rootStart,
		End:    dctx.Now(),
		Status: trace.StatusOK,
	}
	for _, s := range tr.Spans {
		if s.Status == trace.StatusError {
			root.Status = trace.StatusError
			break
		}
	}
	// Root goes first: capture order reflects causal order.
	tr.Spans = append([]trace.Span{root}, tr.Spans...)

	r.logger.Debug("scenario finished", "scenario", sc.Name, "status", root.Status)
	return tr, nil
}

func (r *StepRunner) runStep(step *Step, dctx *determinism.Context, spanID string, spanIDs map[string]string, rootID string) (trace.Span, error) {
	parentID := rootID
	if step.Parent != "" {
		id, ok := spanIDs[step.Parent]
		if !ok {
			return trace.Span{}, &ValidationError{
				Field:   "parent",
				Message: fmt.Sprintf("step %q references unknown parent %q", step.Name, step.Parent),
			}
		}
		parentID = id
	}

	span := trace.Span{
		SpanID:   spanID,
		ParentID: parentID,
		Name:     step.Name,
		Start:    dctx.Now(),
		Status:   trace.StatusOK,
	}
	if step.Fail {
		span.Status = trace.StatusError
	}

	for _, key := range sortedAttrKeys(step.Attrs) {
		val, err := toAttrValue(step.Attrs[key])
		if err != nil {
			return trace.Span{}, &ValidationError{
				Field:   fmt.Sprintf("steps.%s.attrs.%s", step.Name, key),
				Message: err.Error(),
			}
		}
		span.Attrs = append(span.Attrs, trace.A(key, val))
	}

	// Generator directives draw from the context's independent streams.
	if step.EmitUUID != "" {
		span.Attrs = append(span.Attrs, trace.A(step.EmitUUID, trace.String(dctx.NewUUID().String())))
	}
	if step.EmitTimestamp != "" {
		span.Attrs = append(span.Attrs, trace.A(step.EmitTimestamp, trace.String(dctx.Now().Format(time.RFC3339Nano))))
	}
	if step.EmitFake != "" {
		span.Attrs = append(span.Attrs, trace.A(step.EmitFake, trace.String(dctx.FakeName())))
	}

	span.End = dctx.Now()
	return span, nil
}

// sortedAttrKeys gives literal attributes a stable emission order; YAML
// map iteration order is not deterministic.
func sortedAttrKeys(attrs map[string]any) []string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toAttrValue(v any) (trace.AttrValue, error) {
	switch val := v.(type) {
	case string:
		return trace.String(val), nil
	case int:
		return trace.Int(val), nil
	case int64:
		return trace.Int(val), nil
	case float64:
		return trace.Float(val), nil
	case bool:
		return trace.Bool(val), nil
	default:
		return nil, fmt.Errorf("unsupported attribute type %T (string, int, float, bool allowed)", v)
	}
}

// Result pairs a scenario with its trace or execution error.
type Result struct {
	Scenario *Scenario
	Trace    *trace.Trace
	Err      error
}

// RunAll executes scenarios with at most jobs running concurrently.
// Each scenario gets its own determinism context and its own trace;
// isolation is by construction, with no shared mutable state between
// runs. Results are returned in input order regardless of completion
// order.
func RunAll(ctx context.Context, runner Runner, scenarios []*Scenario, jobs int) []Result {
	if jobs < 1 {
		jobs = 1
	}

	results := make([]Result, len(scenarios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for i, sc := range scenarios {
		g.Go(func() error {
			results[i] = runOne(gctx, runner, sc)
			// Scenario failures are reported per result, not as group
			// errors: one broken scenario must not cancel its siblings.
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func runOne(ctx context.Context, runner Runner, sc *Scenario) Result {
	res := Result{Scenario: sc}

	dctx, err := sc.NewContext()
	if err != nil {
		res.Err = err
		return res
	}

	tr, err := runner.Run(ctx, sc, dctx)
	if err != nil {
		res.Err = err
		return res
	}
	res.Trace = tr
	return res
}
