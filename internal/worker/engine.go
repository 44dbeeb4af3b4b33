package worker

import (
	"context"

	"github.com/dshills/langsync/internal/document"
	"github.com/dshills/langsync/internal/protocol"
)

// Engine is the request/response contract of the analysis engine. Calls
// may be issued concurrently and complete in any order.
type Engine interface {
	// DoValidation returns diagnostics for the given regions of uri. An
	// empty interval list requests the whole document.
	DoValidation(ctx context.Context, uri protocol.DocumentURI, intervals []protocol.Interval) ([]protocol.Diagnostic, error)

	// DoColorization returns classifications for the given regions of uri.
	DoColorization(ctx context.Context, uri protocol.DocumentURI, intervals []protocol.Interval) ([]protocol.ColorizationRange, error)

	DoComplete(ctx context.Context, uri protocol.DocumentURI, pos protocol.Position) (protocol.CompletionList, error)

	SetSchema(ctx context.Context, schema protocol.Schema) error
	GetSchema(ctx context.Context) (protocol.Schema, error)

	// NormalizeSchema converts a raw catalog into the form SetSchema
	// expects. It has no side effects on the engine.
	NormalizeSchema(ctx context.Context, raw protocol.Schema, connectionID, contextID string) (protocol.Schema, error)

	// SyncDocument replaces the engine's mirror of a document.
	SyncDocument(ctx context.Context, snap document.Snapshot) error
}

// Worker is a running engine instance. Close releases the process or
// goroutine behind it.
type Worker interface {
	Engine
	Close(ctx context.Context) error
}

// Spawner starts workers.
type Spawner interface {
	Spawn(ctx context.Context) (Worker, error)
}

// SpawnerFunc adapts a function to the Spawner interface.
type SpawnerFunc func(ctx context.Context) (Worker, error)

// Spawn calls f(ctx).
func (f SpawnerFunc) Spawn(ctx context.Context) (Worker, error) {
	return f(ctx)
}
