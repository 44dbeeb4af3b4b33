// Package decoration keeps editor decorations in step with analysis
// results.
//
// Each decoration category (diagnostics, classification) has exactly one
// Reconciler, which is the only writer of that category's decorations. A
// reconciliation pass touches only the lines the new results cover,
// replacing the old decorations there with the new ones in a single
// ApplyDecorations call so the editor never shows an intermediate state.
package decoration

import (
	"cmp"
	"math"
	"slices"

	"github.com/dshills/langsync/internal/document"
	"github.com/dshills/langsync/internal/protocol"
)

// ID is the handle the host assigns to an inserted decoration.
type ID string

// Category partitions decorations by the component that owns them.
type Category string

// Built-in categories.
const (
	CategoryDiagnostics    Category = "diagnostics"
	CategoryClassification Category = "classification"
)

// Decoration is a visual annotation anchored to a range. ID is empty until
// the host has inserted it.
type Decoration struct {
	ID       ID
	Category Category
	Range    protocol.Range
	Class    string
	Hover    string
}

// Host is the editor side of decoration management.
type Host interface {
	// DecorationsInLines returns the decorations of category on uri whose
	// line span intersects [first, last].
	DecorationsInLines(uri protocol.DocumentURI, category Category, first, last int) []Decoration

	// ApplyDecorations atomically removes oldIDs and inserts added,
	// returning the ids of the inserted decorations in order.
	ApplyDecorations(uri protocol.DocumentURI, oldIDs []ID, added []Decoration) []ID
}

// Model is the document a reconciliation pass runs against.
type Model interface {
	URI() protocol.DocumentURI
	Lines() *document.LineIndex
}

// closable is implemented by models that can be closed. Nothing is drawn
// for a closed model.
type closable interface {
	IsClosed() bool
}

func isClosed(m Model) bool {
	c, ok := m.(closable)
	return ok && c.IsClosed()
}

// Span is an inclusive range of lines.
type Span struct {
	First int
	Last  int
}

// wholeDocument covers every line regardless of the document length.
var wholeDocument = Span{First: 0, Last: math.MaxInt32}

// Intersects reports whether two spans share a line.
func (s Span) Intersects(o Span) bool {
	return s.First <= o.Last && o.First <= s.Last
}

// LineSpan returns the lines covered by the offsets [start, end). A range
// that ends at the very start of a later line does not occupy that line.
func LineSpan(lines *document.LineIndex, start, end int) Span {
	return RangeSpan(protocol.Range{
		Start: lines.PositionAt(start),
		End:   lines.PositionAt(max(start, end)),
	})
}

// RangeSpan is LineSpan for a range already expressed in positions.
func RangeSpan(r protocol.Range) Span {
	first, last := r.Start.Line, r.End.Line
	if r.End.Character == 0 && last > first {
		last--
	}
	if last < first {
		last = first
	}
	return Span{First: first, Last: last}
}

// mergeSpans sorts spans and joins those that overlap or are adjacent.
func mergeSpans(spans []Span) []Span {
	if len(spans) < 2 {
		return spans
	}
	slices.SortFunc(spans, func(a, b Span) int {
		if c := cmp.Compare(a.First, b.First); c != 0 {
			return c
		}
		return cmp.Compare(a.Last, b.Last)
	})
	out := spans[:1]
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.First <= last.Last+1 {
			last.Last = max(last.Last, s.Last)
			continue
		}
		out = append(out, s)
	}
	return out
}
