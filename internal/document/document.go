package document

import (
	"fmt"
	"sync"

	"github.com/dshills/langsync/internal/protocol"
)

// Version is the editor-owned, monotonically increasing document version.
type Version int64

// Edit describes one content change in the form the editor reports it:
// the offset where the change starts, how many characters it replaced and
// how many it inserted.
type Edit struct {
	RangeOffset    int
	RangeLength    int
	InsertedLength int
}

// Change is a textual replacement applied to a Document. Offset and Length
// refer to the text as it is after the preceding changes of the same call.
type Change struct {
	Offset int
	Length int
	Text   string
}

// Snapshot is an immutable view of a document at one version.
type Snapshot struct {
	URI     protocol.DocumentURI
	Version Version
	Text    string
}

// Versioned is the read-only view of a document that asynchronous consumers
// check results against.
type Versioned interface {
	URI() protocol.DocumentURI
	Version() Version
	IsClosed() bool
}

// Document is an open editor document. The editor mutates it; this module
// only reads its version, text and line structure.
type Document struct {
	mu         sync.RWMutex
	uri        protocol.DocumentURI
	languageID string
	text       []rune
	lines      *LineIndex
	version    Version
	closed     bool
}

// New creates an open document at version 1.
func New(uri protocol.DocumentURI, languageID, text string) *Document {
	return &Document{
		uri:        uri,
		languageID: languageID,
		text:       []rune(text),
		lines:      NewLineIndex(text),
		version:    1,
	}
}

// URI returns the document identifier.
func (d *Document) URI() protocol.DocumentURI {
	return d.uri
}

// LanguageID returns the document's language.
func (d *Document) LanguageID() string {
	return d.languageID
}

// Version returns the current version.
func (d *Document) Version() Version {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// IsClosed reports whether the document has been closed.
func (d *Document) IsClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// Text returns the current text.
func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return string(d.text)
}

// Lines returns the line index for the current text. The index is
// replaced, never mutated, so callers may keep it.
func (d *Document) Lines() *LineIndex {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lines
}

// Snapshot returns the URI, version and text captured together.
func (d *Document) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Snapshot{URI: d.uri, Version: d.version, Text: string(d.text)}
}

// Apply performs changes in order, bumps the version once and returns the
// edits in the form the editor reports them.
func (d *Document) Apply(changes ...Change) ([]Edit, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.applyLocked(changes)
}

// Replace swaps the whole text and bumps the version.
func (d *Document) Replace(text string) ([]Edit, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.applyLocked([]Change{{Offset: 0, Length: len(d.text), Text: text}})
}

func (d *Document) applyLocked(changes []Change) ([]Edit, error) {
	if d.closed {
		return nil, ErrDocumentClosed
	}

	text := d.text
	edits := make([]Edit, 0, len(changes))
	for _, c := range changes {
		if c.Offset < 0 || c.Length < 0 || c.Offset+c.Length > len(text) {
			return nil, fmt.Errorf("change [%d,%d) outside document of length %d", c.Offset, c.Offset+c.Length, len(text))
		}
		inserted := []rune(c.Text)
		next := make([]rune, 0, len(text)-c.Length+len(inserted))
		next = append(next, text[:c.Offset]...)
		next = append(next, inserted...)
		next = append(next, text[c.Offset+c.Length:]...)
		text = next

		edits = append(edits, Edit{
			RangeOffset:    c.Offset,
			RangeLength:    c.Length,
			InsertedLength: len(inserted),
		})
	}

	d.text = text
	d.lines = NewLineIndex(string(text))
	d.version++
	return edits, nil
}

// Close marks the document closed. Results that arrive afterwards are stale.
func (d *Document) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}
