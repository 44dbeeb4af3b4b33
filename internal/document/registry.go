package document

import (
	"errors"
	"sync"

	"github.com/dshills/langsync/internal/protocol"
)

// Standard errors returned by the document package.
var (
	// ErrDocumentClosed indicates an operation on a closed document.
	ErrDocumentClosed = errors.New("document closed")

	// ErrDocumentAlreadyOpen indicates the document is already registered.
	ErrDocumentAlreadyOpen = errors.New("document already open")

	// ErrDocumentNotOpen indicates the document is not registered.
	ErrDocumentNotOpen = errors.New("document not open")
)

// Disposer releases a resource tied to a registered document.
type Disposer func()

type registration struct {
	doc       *Document
	disposers []Disposer
}

// Registry owns the per-document resources (listeners, timers, caches)
// created while a document is open. Unregister and DisposeAll are the only
// teardown paths, so cleanup does not depend on closures scattered across
// consumers.
type Registry struct {
	mu      sync.Mutex
	entries map[protocol.DocumentURI]*registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[protocol.DocumentURI]*registration)}
}

// Register adds a document together with the disposers that release its
// resources. Disposers run in reverse order when the document is
// unregistered. If the document is already registered nothing is attached.
func (r *Registry) Register(doc *Document, disposers ...Disposer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[doc.URI()]; exists {
		return ErrDocumentAlreadyOpen
	}
	r.entries[doc.URI()] = &registration{doc: doc, disposers: disposers}
	return nil
}

// Registered reports whether doc itself, not just a document with the same
// URI, is registered.
func (r *Registry) Registered(doc *Document) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.entries[doc.URI()]
	return ok && reg.doc == doc
}

// Get returns the registered document.
func (r *Registry) Get(uri protocol.DocumentURI) (*Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.entries[uri]
	if !ok {
		return nil, false
	}
	return reg.doc, true
}

// Documents returns every registered document.
func (r *Registry) Documents() []*Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs := make([]*Document, 0, len(r.entries))
	for _, reg := range r.entries {
		docs = append(docs, reg.doc)
	}
	return docs
}

// Len returns the number of registered documents.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Unregister removes a document and runs its disposers.
func (r *Registry) Unregister(uri protocol.DocumentURI) error {
	r.mu.Lock()
	reg, ok := r.entries[uri]
	if ok {
		delete(r.entries, uri)
	}
	r.mu.Unlock()

	if !ok {
		return ErrDocumentNotOpen
	}
	runDisposers(reg.disposers)
	return nil
}

// DisposeAll unregisters every document.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[protocol.DocumentURI]*registration)
	r.mu.Unlock()

	for _, reg := range entries {
		runDisposers(reg.disposers)
	}
}

func runDisposers(disposers []Disposer) {
	for i := len(disposers) - 1; i >= 0; i-- {
		disposers[i]()
	}
}
