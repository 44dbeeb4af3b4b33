package analysis

import (
	"sync"

	"github.com/dshills/langsync/internal/decoration"
	"github.com/dshills/langsync/internal/protocol"
)

// Marker is a problem entry shown in the editor's problem list.
type Marker struct {
	Range    protocol.Range
	Message  string
	Severity protocol.DiagnosticSeverity
	Code     string
}

// MarkerSink receives the complete marker list for a document each time
// it changes. A nil list clears the document's markers.
type MarkerSink interface {
	SetMarkers(uri protocol.DocumentURI, category decoration.Category, markers []Marker)
}

// MarkerSinkFunc adapts a function to MarkerSink.
type MarkerSinkFunc func(uri protocol.DocumentURI, category decoration.Category, markers []Marker)

// SetMarkers implements MarkerSink.
func (f MarkerSinkFunc) SetMarkers(uri protocol.DocumentURI, category decoration.Category, markers []Marker) {
	f(uri, category, markers)
}

func markersFrom(diags []protocol.Diagnostic) []Marker {
	if len(diags) == 0 {
		return nil
	}
	out := make([]Marker, len(diags))
	for i, d := range diags {
		out[i] = Marker{Range: d.Range, Message: d.Message, Severity: d.Severity, Code: d.Code}
	}
	return out
}

// MemoryMarkers is a MarkerSink that keeps the latest list per document.
type MemoryMarkers struct {
	mu      sync.Mutex
	markers map[protocol.DocumentURI][]Marker
}

// NewMemoryMarkers creates an empty sink.
func NewMemoryMarkers() *MemoryMarkers {
	return &MemoryMarkers{markers: make(map[protocol.DocumentURI][]Marker)}
}

// SetMarkers implements MarkerSink.
func (m *MemoryMarkers) SetMarkers(uri protocol.DocumentURI, _ decoration.Category, markers []Marker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if markers == nil {
		delete(m.markers, uri)
		return
	}
	m.markers[uri] = markers
}

// Markers returns the markers last set for uri.
func (m *MemoryMarkers) Markers(uri protocol.DocumentURI) []Marker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Marker(nil), m.markers[uri]...)
}
