package decoration

import (
	"cmp"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/langsync/internal/protocol"
)

// MemoryHost is a Host that keeps decorations in memory. It backs headless
// embeddings and tests.
type MemoryHost struct {
	mu     sync.Mutex
	docs   map[protocol.DocumentURI]map[ID]Decoration
	calls  int
	onCall func(uri protocol.DocumentURI, oldIDs []ID, added []Decoration)
}

var _ Host = (*MemoryHost)(nil)

// NewMemoryHost creates an empty host.
func NewMemoryHost() *MemoryHost {
	return &MemoryHost{docs: make(map[protocol.DocumentURI]map[ID]Decoration)}
}

// OnApply registers fn to observe every ApplyDecorations call.
func (h *MemoryHost) OnApply(fn func(uri protocol.DocumentURI, oldIDs []ID, added []Decoration)) {
	h.mu.Lock()
	h.onCall = fn
	h.mu.Unlock()
}

// DecorationsInLines implements Host.
func (h *MemoryHost) DecorationsInLines(uri protocol.DocumentURI, category Category, first, last int) []Decoration {
	h.mu.Lock()
	defer h.mu.Unlock()

	want := Span{First: first, Last: last}
	var out []Decoration
	for _, d := range h.docs[uri] {
		if d.Category == category && RangeSpan(d.Range).Intersects(want) {
			out = append(out, d)
		}
	}
	sortDecorations(out)
	return out
}

// ApplyDecorations implements Host. Unknown old ids are ignored.
func (h *MemoryHost) ApplyDecorations(uri protocol.DocumentURI, oldIDs []ID, added []Decoration) []ID {
	h.mu.Lock()
	h.calls++
	decs := h.docs[uri]
	if decs == nil {
		decs = make(map[ID]Decoration)
		h.docs[uri] = decs
	}
	for _, id := range oldIDs {
		delete(decs, id)
	}
	ids := make([]ID, len(added))
	for i, d := range added {
		d.ID = ID(uuid.NewString())
		decs[d.ID] = d
		ids[i] = d.ID
	}
	onCall := h.onCall
	h.mu.Unlock()

	if onCall != nil {
		onCall(uri, oldIDs, added)
	}
	return ids
}

// Decorations returns every decoration on uri in document order.
func (h *MemoryHost) Decorations(uri protocol.DocumentURI) []Decoration {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Decoration, 0, len(h.docs[uri]))
	for _, d := range h.docs[uri] {
		out = append(out, d)
	}
	sortDecorations(out)
	return out
}

// Calls returns the number of ApplyDecorations calls so far.
func (h *MemoryHost) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// Drop forgets every decoration on uri, as an editor does when a model is
// disposed.
func (h *MemoryHost) Drop(uri protocol.DocumentURI) {
	h.mu.Lock()
	delete(h.docs, uri)
	h.mu.Unlock()
}

func sortDecorations(decs []Decoration) {
	slices.SortFunc(decs, func(a, b Decoration) int {
		if c := cmp.Compare(a.Range.Start.Line, b.Range.Start.Line); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Range.Start.Character, b.Range.Start.Character); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
