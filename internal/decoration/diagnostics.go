package decoration

import (
	"cmp"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/langsync/internal/protocol"
)

// DiagnosticsReconciler draws diagnostics as decorations and keeps the
// per-document diagnostic list that markers are built from.
//
// Plain and enhanced presentation use different decoration shapes, so a
// presentation change is never diffed: the next pass on each document
// clears the whole category and redraws it.
type DiagnosticsReconciler struct {
	rec *Reconciler

	mu       sync.Mutex
	enhanced bool
	mode     uint64
	drawn    map[protocol.DocumentURI]uint64
	current  map[protocol.DocumentURI][]protocol.Diagnostic
}

// NewDiagnosticsReconciler creates the reconciler for the diagnostics
// category.
func NewDiagnosticsReconciler(host Host, logger *zap.Logger) *DiagnosticsReconciler {
	return &DiagnosticsReconciler{
		rec:     NewReconciler(host, CategoryDiagnostics, logger),
		mode:    1,
		drawn:   make(map[protocol.DocumentURI]uint64),
		current: make(map[protocol.DocumentURI][]protocol.Diagnostic),
	}
}

// SetEnhanced switches presentation. It reports whether the mode changed.
func (d *DiagnosticsReconciler) SetEnhanced(on bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enhanced == on {
		return false
	}
	d.enhanced = on
	d.mode++
	return true
}

// Enhanced reports the current presentation mode.
func (d *DiagnosticsReconciler) Enhanced() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enhanced
}

// Diagnostics returns the diagnostics currently drawn for uri.
func (d *DiagnosticsReconciler) Diagnostics(uri protocol.DocumentURI) []protocol.Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.current[uri])
}

// Reconcile merges diags, computed for the given intervals of the
// document, into what is drawn. An empty interval list means the whole
// document was recomputed. Diagnostics on lines outside the recomputed
// intervals and the new diagnostics' own lines are kept. The first pass
// after a presentation change redraws the whole document. It returns the
// document's full diagnostic list after the merge, or nil without drawing
// anything once model is closed.
func (d *DiagnosticsReconciler) Reconcile(model Model, intervals []protocol.Interval, diags []protocol.Diagnostic) []protocol.Diagnostic {
	uri := model.URI()
	lines := model.Lines()

	// Held across drawing so a concurrent Forget either runs first, and
	// the closed check sees it, or clears what this pass drew.
	d.mu.Lock()
	defer d.mu.Unlock()
	if isClosed(model) {
		return nil
	}

	enhanced := d.enhanced
	fullRecompute := len(intervals) == 0
	redraw := fullRecompute || d.drawn[uri] != d.mode
	d.drawn[uri] = d.mode

	var spans []Span
	var merged []protocol.Diagnostic
	if fullRecompute {
		merged = slices.Clone(diags)
	} else {
		for _, iv := range intervals {
			spans = append(spans, LineSpan(lines, iv.Start, iv.End))
		}
		for _, diag := range diags {
			spans = append(spans, RangeSpan(diag.Range))
		}
		spans = mergeSpans(spans)
		for _, old := range d.current[uri] {
			if !intersectsAny(RangeSpan(old.Range), spans) {
				merged = append(merged, old)
			}
		}
		merged = append(merged, diags...)
	}
	sortDiagnostics(merged)
	d.current[uri] = merged

	if redraw {
		d.rec.ReconcileAll(uri, diagnosticDecorations(merged, enhanced))
	} else {
		d.rec.replace(uri, nil, spans, diagnosticDecorations(diags, enhanced))
	}
	return slices.Clone(merged)
}

// Forget drops the state kept for uri and clears its decorations.
func (d *DiagnosticsReconciler) Forget(uri protocol.DocumentURI) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.current, uri)
	delete(d.drawn, uri)
	d.rec.Clear(uri)
}

func intersectsAny(s Span, spans []Span) bool {
	for _, o := range spans {
		if s.Intersects(o) {
			return true
		}
	}
	return false
}

func sortDiagnostics(diags []protocol.Diagnostic) {
	slices.SortStableFunc(diags, func(a, b protocol.Diagnostic) int {
		if c := cmp.Compare(a.Range.Start.Line, b.Range.Start.Line); c != 0 {
			return c
		}
		return cmp.Compare(a.Range.Start.Character, b.Range.Start.Character)
	})
}

func diagnosticDecorations(diags []protocol.Diagnostic, enhanced bool) []Decoration {
	out := make([]Decoration, 0, len(diags))
	for _, diag := range diags {
		out = append(out, diagnosticDecoration(diag, enhanced))
	}
	return out
}

func diagnosticDecoration(diag protocol.Diagnostic, enhanced bool) Decoration {
	class := "squiggly-" + diag.Severity.String()
	dec := Decoration{
		Category: CategoryDiagnostics,
		Range:    diag.Range,
		Class:    class,
	}
	if enhanced {
		dec.Class = class + "-enhanced"
		dec.Hover = diag.Message
		if diag.Code != "" {
			dec.Hover = "[" + diag.Code + "] " + diag.Message
		}
	}
	return dec
}
