package session

import (
	"context"

	"github.com/dshills/langsync/internal/document"
	"github.com/dshills/langsync/internal/protocol"
	"github.com/dshills/langsync/internal/worker"
)

// Handle is the proxy returned by Acquire. Every call refreshes the
// session's last-used time, and engine errors are returned unchanged.
// A Handle outlives its session only in the sense that calls made after
// teardown fail with worker.ErrShutdown; acquire a new one per request.
type Handle struct {
	session *Session
	clock   Clock
}

var _ worker.Engine = (*Handle)(nil)

// SessionID returns the id of the session behind the handle.
func (h *Handle) SessionID() string {
	return h.session.id
}

// begin marks a call in flight so idle detection leaves the session
// alone until it returns.
func (h *Handle) begin() func() {
	h.session.touch(h.clock.Now())
	h.session.inFlight.Add(1)
	return func() {
		h.session.inFlight.Add(-1)
		h.session.touch(h.clock.Now())
	}
}

// DoValidation implements worker.Engine.
func (h *Handle) DoValidation(ctx context.Context, uri protocol.DocumentURI, intervals []protocol.Interval) ([]protocol.Diagnostic, error) {
	defer h.begin()()
	return h.session.worker.DoValidation(ctx, uri, intervals)
}

// DoColorization implements worker.Engine.
func (h *Handle) DoColorization(ctx context.Context, uri protocol.DocumentURI, intervals []protocol.Interval) ([]protocol.ColorizationRange, error) {
	defer h.begin()()
	return h.session.worker.DoColorization(ctx, uri, intervals)
}

// DoComplete implements worker.Engine.
func (h *Handle) DoComplete(ctx context.Context, uri protocol.DocumentURI, pos protocol.Position) (protocol.CompletionList, error) {
	defer h.begin()()
	return h.session.worker.DoComplete(ctx, uri, pos)
}

// SetSchema implements worker.Engine. Schemas set through a handle are not
// recorded as preserved state until the session is torn down; use
// Manager.SetSchema to record them immediately.
func (h *Handle) SetSchema(ctx context.Context, schema protocol.Schema) error {
	defer h.begin()()
	return h.session.worker.SetSchema(ctx, schema)
}

// GetSchema implements worker.Engine.
func (h *Handle) GetSchema(ctx context.Context) (protocol.Schema, error) {
	defer h.begin()()
	return h.session.worker.GetSchema(ctx)
}

// NormalizeSchema implements worker.Engine.
func (h *Handle) NormalizeSchema(ctx context.Context, raw protocol.Schema, connectionID, contextID string) (protocol.Schema, error) {
	defer h.begin()()
	return h.session.worker.NormalizeSchema(ctx, raw, connectionID, contextID)
}

// SyncDocument implements worker.Engine. Versions the session already
// mirrors are not pushed again.
func (h *Handle) SyncDocument(ctx context.Context, snap document.Snapshot) error {
	defer h.begin()()
	return h.session.mirror(ctx, []document.Snapshot{snap})
}
