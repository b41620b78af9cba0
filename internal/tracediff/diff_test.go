package tracediff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanchatmangpt/cleanroom/internal/canonical"
	"github.com/seanchatmangpt/cleanroom/internal/trace"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// suiteTrace is a root with four step children, the shared fixture for
// drift scenarios.
func suiteTrace() *trace.Trace {
	tr := &trace.Trace{
		ScenarioName: "suite",
		Spans: []trace.Span{
			{SpanID: "r", Name: "scenario.run", Status: trace.StatusOK, Start: epoch, End: epoch.Add(4 * time.Second)},
		},
	}
	for i, name := range []string{"db.migrate", "db.seed", "api.start", "api.smoke"} {
		tr.Spans = append(tr.Spans, trace.Span{
			SpanID:   name,
			ParentID: "r",
			Name:     name,
			Status:   trace.StatusOK,
			Start:    epoch.Add(time.Duration(i) * time.Second),
			End:      epoch.Add(time.Duration(i+1) * time.Second),
		})
	}
	return tr
}

func TestDiffIdentity(t *testing.T) {
	tr := suiteTrace()

	cmp, err := Diff(tr, tr, canonical.Options{})
	require.NoError(t, err)

	assert.Empty(t, cmp.Added)
	assert.Empty(t, cmp.Removed)
	assert.Empty(t, cmp.Modified)
	assert.Len(t, cmp.Unchanged, 5)
	assert.Equal(t, 1.0, cmp.Similarity)
	assert.False(t, HasSignificantChanges(cmp, 0.0))
}

func TestDiffDetectsAddedLeaf(t *testing.T) {
	baseline := suiteTrace()

	current := suiteTrace()
	current.Spans = append(current.Spans, trace.Span{
		SpanID: "cl", ParentID: "r", Name: "cache.lookup", Status: trace.StatusOK,
		Start: epoch.Add(4 * time.Second), End: epoch.Add(5 * time.Second),
	})

	cmp, err := Diff(baseline, current, canonical.Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"cache.lookup"}, cmp.AddedNames())
	assert.Empty(t, cmp.RemovedNames())
	// The root's child shape changed, so it counts as modified;
	// the four original steps are unchanged.
	assert.Len(t, cmp.Unchanged, 4)
	assert.False(t, HasSignificantChanges(cmp, 0.5),
		"one added leaf among many unchanged spans is not significant at 0.5")
}

func TestDiffDetectsRemovedSpan(t *testing.T) {
	baseline := suiteTrace()
	current := suiteTrace()
	current.Spans = current.Spans[:len(current.Spans)-1] // drop api.smoke

	cmp, err := Diff(baseline, current, canonical.Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"api.smoke"}, cmp.RemovedNames())
	assert.Empty(t, cmp.AddedNames())
}

func TestDiffNeverReportsBothAddedAndRemoved(t *testing.T) {
	// A span present only in current appears in added, never in removed,
	// and vice versa.
	baseline := suiteTrace()
	current := suiteTrace()
	current.Spans = append(current.Spans[:2], trace.Span{
		SpanID: "x", ParentID: "r", Name: "new.step", Status: trace.StatusOK,
		Start: epoch, End: epoch,
	})

	cmp, err := Diff(baseline, current, canonical.Options{})
	require.NoError(t, err)

	for _, a := range cmp.AddedNames() {
		assert.NotContains(t, cmp.RemovedNames(), a)
	}
	assert.Contains(t, cmp.AddedNames(), "new.step")
}

func TestDiffDetectsModifiedAttrs(t *testing.T) {
	baseline := suiteTrace()
	baseline.Spans[1].Attrs = []trace.Attr{
		trace.A("rows", trace.Int(10)),
		trace.A("table", trace.String("users")),
	}

	current := suiteTrace()
	current.Spans[1].Attrs = []trace.Attr{
		trace.A("rows", trace.Int(12)),
		trace.A("engine", trace.String("innodb")),
	}

	cmp, err := Diff(baseline, current, canonical.Options{})
	require.NoError(t, err)

	require.Len(t, cmp.Modified, 1)
	m := cmp.Modified[0]
	assert.Equal(t, "db.migrate", m.Name)
	assert.Equal(t, []string{"engine"}, m.Attrs.Added)
	assert.Equal(t, []string{"table"}, m.Attrs.Removed)
	require.Len(t, m.Attrs.Changed, 1)
	assert.Equal(t, "rows", m.Attrs.Changed[0].Key)
	assert.Equal(t, "10", m.Attrs.Changed[0].Baseline)
	assert.Equal(t, "12", m.Attrs.Changed[0].Current)
}

func TestDiffDetectsStatusChange(t *testing.T) {
	baseline := suiteTrace()
	current := suiteTrace()
	current.Spans[4].Status = trace.StatusError

	cmp, err := Diff(baseline, current, canonical.Options{})
	require.NoError(t, err)

	require.Len(t, cmp.Modified, 1)
	assert.Equal(t, "api.smoke", cmp.Modified[0].Name)
	assert.True(t, cmp.Modified[0].StatusChanged)
}

func TestDiffDetectsParentChange(t *testing.T) {
	baseline := suiteTrace()

	current := suiteTrace()
	// Reparent api.smoke under api.start: same depth change of path.
	current.Spans[4].ParentID = "api.start"

	cmp, err := Diff(baseline, current, canonical.Options{})
	require.NoError(t, err)

	require.NotEmpty(t, cmp.Structural)
	sc := cmp.Structural[0]
	assert.Equal(t, "api.smoke", sc.Name)
	assert.Equal(t, StructuralDepthChange, sc.Kind)
	assert.Equal(t, "scenario.run/api.smoke", sc.BaselinePath)
	assert.Equal(t, "scenario.run/api.start/api.smoke", sc.CurrentPath)
}

func TestDiffMultisetSiblings(t *testing.T) {
	// Two same-name siblings with identical subtrees are a multiset:
	// swapping their capture order is not drift.
	mk := func(firstID, secondID string) *trace.Trace {
		return &trace.Trace{
			ScenarioName: "multi",
			Spans: []trace.Span{
				{SpanID: "r", Name: "root", Status: trace.StatusOK, Start: epoch, End: epoch},
				{SpanID: firstID, ParentID: "r", Name: "worker", Status: trace.StatusOK, Start: epoch, End: epoch},
				{SpanID: secondID, ParentID: "r", Name: "worker", Status: trace.StatusOK, Start: epoch, End: epoch},
			},
		}
	}

	cmp, err := Diff(mk("w1", "w2"), mk("w2", "w1"), canonical.Options{})
	require.NoError(t, err)

	assert.Empty(t, cmp.Added)
	assert.Empty(t, cmp.Removed)
	assert.Empty(t, cmp.Modified)
	assert.Equal(t, 1.0, cmp.Similarity)
}

func TestDiffExtraSameNameSiblingIsAdded(t *testing.T) {
	baseline := &trace.Trace{
		ScenarioName: "multi",
		Spans: []trace.Span{
			{SpanID: "r", Name: "root", Status: trace.StatusOK, Start: epoch, End: epoch},
			{SpanID: "w1", ParentID: "r", Name: "worker", Status: trace.StatusOK, Start: epoch, End: epoch},
		},
	}
	current := &trace.Trace{
		ScenarioName: "multi",
		Spans: []trace.Span{
			{SpanID: "r", Name: "root", Status: trace.StatusOK, Start: epoch, End: epoch},
			{SpanID: "w1", ParentID: "r", Name: "worker", Status: trace.StatusOK, Start: epoch, End: epoch},
			{SpanID: "w2", ParentID: "r", Name: "worker", Status: trace.StatusOK, Start: epoch, End: epoch},
		},
	}

	cmp, err := Diff(baseline, current, canonical.Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"worker"}, cmp.AddedNames())
	assert.Empty(t, cmp.RemovedNames())
}

func TestDiffEmptyTraces(t *testing.T) {
	empty := &trace.Trace{ScenarioName: "empty"}

	cmp, err := Diff(empty, empty, canonical.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, cmp.Similarity)
}

func TestHasSignificantChangesThreshold(t *testing.T) {
	cmp := &Comparison{Similarity: 0.4}
	assert.True(t, HasSignificantChanges(cmp, 0.5))
	assert.False(t, HasSignificantChanges(cmp, 0.6))
	assert.False(t, HasSignificantChanges(cmp, 0.65))
}

func TestDiffPropagatesCanonicalizationErrors(t *testing.T) {
	bad := &trace.Trace{
		ScenarioName: "bad",
		Spans: []trace.Span{
			{SpanID: "1", ParentID: "ghost", Name: "lost", Status: trace.StatusOK, Start: epoch, End: epoch},
		},
	}

	_, err := Diff(bad, suiteTrace(), canonical.Options{})
	require.Error(t, err)
	assert.True(t, canonical.IsValidationError(err))
}
