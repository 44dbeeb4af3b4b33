// Package workertest provides an in-memory analysis engine and a counting
// spawner for tests of code built on the worker package.
package workertest

import (
	"context"
	"sync"

	"github.com/dshills/langsync/internal/document"
	"github.com/dshills/langsync/internal/protocol"
	"github.com/dshills/langsync/internal/worker"
)

// Engine is a scriptable worker.Engine. The zero value is not usable; use
// NewEngine. Hooks left nil produce empty results.
type Engine struct {
	Diagnostics  func(ctx context.Context, uri protocol.DocumentURI, intervals []protocol.Interval) ([]protocol.Diagnostic, error)
	Colorization func(ctx context.Context, uri protocol.DocumentURI, intervals []protocol.Interval) ([]protocol.ColorizationRange, error)
	Completion   func(ctx context.Context, uri protocol.DocumentURI, pos protocol.Position) (protocol.CompletionList, error)
	Normalize    func(raw protocol.Schema, connectionID, contextID string) (protocol.Schema, error)
	Sync         func(ctx context.Context, snap document.Snapshot) error

	mu        sync.Mutex
	schema    protocol.Schema
	getErr    error
	docs      map[protocol.DocumentURI]document.Snapshot
	calls     map[string]int
	intervals map[string][][]protocol.Interval
	closed    bool
}

var _ worker.Engine = (*Engine)(nil)

// NewEngine returns an engine with no schema and no documents.
func NewEngine() *Engine {
	return &Engine{
		docs:      make(map[protocol.DocumentURI]document.Snapshot),
		calls:     make(map[string]int),
		intervals: make(map[string][][]protocol.Interval),
	}
}

func (e *Engine) record(method string) {
	e.mu.Lock()
	e.calls[method]++
	e.mu.Unlock()
}

// Calls returns how many times method was invoked.
func (e *Engine) Calls(method string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[method]
}

// Intervals returns the interval lists received by method, in arrival order.
func (e *Engine) Intervals(method string) [][]protocol.Interval {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]protocol.Interval(nil), e.intervals[method]...)
}

// Document returns the mirrored snapshot for uri.
func (e *Engine) Document(uri protocol.DocumentURI) (document.Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, ok := e.docs[uri]
	return snap, ok
}

// Schema returns the schema last set on the engine.
func (e *Engine) Schema() protocol.Schema {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schema
}

// FailGetSchema makes GetSchema return err until called again with nil.
func (e *Engine) FailGetSchema(err error) {
	e.mu.Lock()
	e.getErr = err
	e.mu.Unlock()
}

// Closed reports whether the worker serving this engine has stopped.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close implements io.Closer.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

func (e *Engine) DoValidation(ctx context.Context, uri protocol.DocumentURI, intervals []protocol.Interval) ([]protocol.Diagnostic, error) {
	e.mu.Lock()
	e.calls[protocol.MethodDoValidation]++
	e.intervals[protocol.MethodDoValidation] = append(e.intervals[protocol.MethodDoValidation], intervals)
	e.mu.Unlock()
	if e.Diagnostics == nil {
		return nil, nil
	}
	return e.Diagnostics(ctx, uri, intervals)
}

func (e *Engine) DoColorization(ctx context.Context, uri protocol.DocumentURI, intervals []protocol.Interval) ([]protocol.ColorizationRange, error) {
	e.mu.Lock()
	e.calls[protocol.MethodDoColorization]++
	e.intervals[protocol.MethodDoColorization] = append(e.intervals[protocol.MethodDoColorization], intervals)
	e.mu.Unlock()
	if e.Colorization == nil {
		return nil, nil
	}
	return e.Colorization(ctx, uri, intervals)
}

func (e *Engine) DoComplete(ctx context.Context, uri protocol.DocumentURI, pos protocol.Position) (protocol.CompletionList, error) {
	e.record(protocol.MethodDoComplete)
	if e.Completion == nil {
		return protocol.CompletionList{}, nil
	}
	return e.Completion(ctx, uri, pos)
}

func (e *Engine) SetSchema(_ context.Context, schema protocol.Schema) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[protocol.MethodSetSchema]++
	e.schema = protocol.NewSchema(schema.Raw)
	return nil
}

func (e *Engine) GetSchema(context.Context) (protocol.Schema, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[protocol.MethodGetSchema]++
	if e.getErr != nil {
		return protocol.Schema{}, e.getErr
	}
	return e.schema, nil
}

// NormalizeSchema returns raw unchanged unless a Normalize hook is set.
func (e *Engine) NormalizeSchema(_ context.Context, raw protocol.Schema, connectionID, contextID string) (protocol.Schema, error) {
	e.record(protocol.MethodNormalizeSchema)
	if e.Normalize == nil {
		return raw, nil
	}
	return e.Normalize(raw, connectionID, contextID)
}

func (e *Engine) SyncDocument(ctx context.Context, snap document.Snapshot) error {
	if e.Sync != nil {
		if err := e.Sync(ctx, snap); err != nil {
			return err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[protocol.MethodSyncDocument]++
	e.docs[snap.URI] = snap
	return nil
}
