package decoration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/langsync/internal/document"
	"github.com/dshills/langsync/internal/protocol"
)

func diagOnLine(line int, msg string) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: line, Character: 0},
			End:   protocol.Position{Line: line, Character: 5},
		},
		Message:  msg,
		Severity: protocol.SeverityError,
		Code:     "KS100",
	}
}

func TestDiagnosticsReconciler_PartialPass(t *testing.T) {
	host := NewMemoryHost()
	doc := document.New("file:///q.kql", "kusto", sevenLines)
	dr := NewDiagnosticsReconciler(host, nil)

	var initial []protocol.Diagnostic
	for line := 1; line <= 5; line++ {
		initial = append(initial, diagOnLine(line, "old"))
	}
	all := dr.Reconcile(doc, nil, initial)
	require.Len(t, all, 5)
	before := idsByLine(host.Decorations(doc.URI()))

	calls := host.Calls()
	all = dr.Reconcile(doc,
		[]protocol.Interval{{Start: lineStart(3), End: lineStart(4) + 5}},
		[]protocol.Diagnostic{diagOnLine(3, "new"), diagOnLine(4, "new")},
	)
	assert.Equal(t, calls+1, host.Calls())

	after := idsByLine(host.Decorations(doc.URI()))
	for _, line := range []int{1, 2, 5} {
		assert.Equal(t, before[line], after[line], "line %d untouched", line)
	}
	for _, line := range []int{3, 4} {
		assert.NotEqual(t, before[line], after[line], "line %d replaced", line)
	}

	require.Len(t, all, 5)
	msgs := make([]string, len(all))
	for i, d := range all {
		msgs[i] = d.Message
	}
	assert.Equal(t, []string{"old", "old", "new", "new", "old"}, msgs)
	assert.Equal(t, all, dr.Diagnostics(doc.URI()))
}

func TestDiagnosticsReconciler_FixedErrorDisappears(t *testing.T) {
	host := NewMemoryHost()
	doc := document.New("file:///q.kql", "kusto", sevenLines)
	dr := NewDiagnosticsReconciler(host, nil)

	dr.Reconcile(doc, nil, []protocol.Diagnostic{diagOnLine(2, "typo"), diagOnLine(6, "other")})

	all := dr.Reconcile(doc, []protocol.Interval{{Start: lineStart(2) + 1, End: lineStart(2) + 3}}, nil)
	require.Len(t, all, 1)
	assert.Equal(t, "other", all[0].Message)

	decs := host.Decorations(doc.URI())
	require.Len(t, decs, 1)
	assert.Equal(t, 6, decs[0].Range.Start.Line)
}

func TestDiagnosticsReconciler_EnhancedToggleRedrawsEverything(t *testing.T) {
	host := NewMemoryHost()
	doc := document.New("file:///q.kql", "kusto", sevenLines)
	dr := NewDiagnosticsReconciler(host, nil)

	dr.Reconcile(doc, nil, []protocol.Diagnostic{diagOnLine(1, "a"), diagOnLine(5, "b")})
	before := idsByLine(host.Decorations(doc.URI()))

	assert.True(t, dr.SetEnhanced(true))
	assert.False(t, dr.SetEnhanced(true), "no change")
	assert.True(t, dr.Enhanced())

	var removed []ID
	calls := host.Calls()
	host.OnApply(func(_ protocol.DocumentURI, oldIDs []ID, _ []Decoration) { removed = oldIDs })

	// Only line 1 was recomputed, but the presentation changed.
	dr.Reconcile(doc, []protocol.Interval{{Start: lineStart(1), End: lineStart(1) + 5}}, []protocol.Diagnostic{diagOnLine(1, "a")})

	assert.Equal(t, calls+1, host.Calls(), "one atomic clear-and-redraw")
	assert.ElementsMatch(t, []ID{before[1], before[5]}, removed)

	decs := host.Decorations(doc.URI())
	require.Len(t, decs, 2)
	for _, d := range decs {
		assert.Equal(t, "squiggly-error-enhanced", d.Class)
	}
	assert.Equal(t, "[KS100] b", decs[1].Hover)

	// The next pass is incremental again.
	removed = nil
	dr.Reconcile(doc, []protocol.Interval{{Start: lineStart(1), End: lineStart(1) + 5}}, []protocol.Diagnostic{diagOnLine(1, "a")})
	assert.Len(t, removed, 1)
}

func TestDiagnosticsReconciler_Forget(t *testing.T) {
	host := NewMemoryHost()
	doc := document.New("file:///q.kql", "kusto", sevenLines)
	dr := NewDiagnosticsReconciler(host, nil)

	dr.Reconcile(doc, nil, []protocol.Diagnostic{diagOnLine(1, "a")})
	dr.Forget(doc.URI())

	assert.Empty(t, dr.Diagnostics(doc.URI()))
	assert.Empty(t, host.Decorations(doc.URI()))
}

func TestDiagnosticsReconciler_ClosedDocumentNotRedrawn(t *testing.T) {
	host := NewMemoryHost()
	doc := document.New("file:///q.kql", "kusto", sevenLines)
	dr := NewDiagnosticsReconciler(host, nil)

	dr.Reconcile(doc, nil, []protocol.Diagnostic{diagOnLine(1, "a")})
	doc.Close()
	dr.Forget(doc.URI())

	// A pass that passed its version check before the close lands late.
	calls := host.Calls()
	got := dr.Reconcile(doc, nil, []protocol.Diagnostic{diagOnLine(2, "late")})
	assert.Nil(t, got)
	assert.Equal(t, calls, host.Calls())
	assert.Empty(t, dr.Diagnostics(doc.URI()))
	assert.Empty(t, host.Decorations(doc.URI()))
}
