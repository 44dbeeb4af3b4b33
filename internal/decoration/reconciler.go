package decoration

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/langsync/internal/protocol"
	"github.com/dshills/langsync/internal/telemetry"
)

// Item is one decoration to draw, located by character offsets.
type Item struct {
	Start int
	End   int
	Class string
	Hover string
}

// Region is a stretch of the document that was recomputed, together with
// everything the recomputation produced inside it. Lines inside the region
// that receive no items lose their old decorations.
type Region struct {
	Start int
	End   int
	Items []Item
}

// Reconciler owns the decorations of one category.
type Reconciler struct {
	host     Host
	category Category
	logger   *zap.Logger

	// mu serializes passes so two passes never interleave their queries
	// and replacements.
	mu sync.Mutex
}

// NewReconciler creates the reconciler for category.
func NewReconciler(host Host, category Category, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{host: host, category: category, logger: logger}
}

// Category returns the category this reconciler writes.
func (r *Reconciler) Category() Category {
	return r.category
}

// Reconcile replaces the decorations on every line covered by regions or
// their items with the items' decorations, in one ApplyDecorations call.
// Decorations outside those lines, and those of other categories, are left
// alone. Nothing is drawn once model is closed. It returns the ids of the
// inserted decorations.
func (r *Reconciler) Reconcile(model Model, regions []Region) []ID {
	lines := model.Lines()

	var spans []Span
	var added []Decoration
	for _, reg := range regions {
		spans = append(spans, LineSpan(lines, reg.Start, reg.End))
		for _, it := range reg.Items {
			spans = append(spans, LineSpan(lines, it.Start, it.End))
			added = append(added, Decoration{
				Category: r.category,
				Range: protocol.Range{
					Start: lines.PositionAt(it.Start),
					End:   lines.PositionAt(max(it.Start, it.End)),
				},
				Class: it.Class,
				Hover: it.Hover,
			})
		}
	}
	return r.replace(model.URI(), model, mergeSpans(spans), added)
}

// ReconcileAll clears every decoration of the category on the document and
// draws added in the same call.
func (r *Reconciler) ReconcileAll(uri protocol.DocumentURI, added []Decoration) []ID {
	for i := range added {
		added[i].Category = r.category
	}
	return r.replace(uri, nil, []Span{wholeDocument}, added)
}

// Clear removes every decoration of the category on the document.
func (r *Reconciler) Clear(uri protocol.DocumentURI) {
	r.ReconcileAll(uri, nil)
}

// replace swaps the category's decorations on spans for added. If live is
// non-nil and closed, checked under the lock Clear also takes, nothing
// changes.
func (r *Reconciler) replace(uri protocol.DocumentURI, live Model, spans []Span, added []Decoration) []ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if live != nil && isClosed(live) {
		return nil
	}

	var oldIDs []ID
	for _, sp := range spans {
		for _, d := range r.host.DecorationsInLines(uri, r.category, sp.First, sp.Last) {
			if d.Category != r.category {
				continue
			}
			oldIDs = append(oldIDs, d.ID)
		}
	}
	slices.Sort(oldIDs)
	oldIDs = slices.Compact(oldIDs)

	if len(oldIDs) == 0 && len(added) == 0 {
		return nil
	}

	ids := r.host.ApplyDecorations(uri, oldIDs, added)
	telemetry.RecordDecorations(context.Background(), string(r.category), len(oldIDs), len(added))
	r.logger.Debug("decorations reconciled",
		zap.String("uri", string(uri)),
		zap.String("category", string(r.category)),
		zap.Int("spans", len(spans)),
		zap.Int("removed", len(oldIDs)),
		zap.Int("added", len(added)),
	)
	return ids
}

// ClassificationRegions turns colorization results into reconciliation
// regions. classOf maps an engine classification kind to a visual class;
// kinds mapped to "" are not drawn.
func ClassificationRegions(ranges []protocol.ColorizationRange, classOf func(kind int) string) []Region {
	regions := make([]Region, 0, len(ranges))
	for _, cr := range ranges {
		reg := Region{Start: cr.AbsoluteStart, End: cr.AbsoluteEnd}
		for _, c := range cr.Classifications {
			class := classOf(c.Kind)
			if class == "" || c.Length == 0 {
				continue
			}
			reg.Items = append(reg.Items, Item{Start: c.Start, End: c.End(), Class: class})
		}
		regions = append(regions, reg)
	}
	return regions
}
