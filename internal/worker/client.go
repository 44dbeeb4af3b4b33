package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/dshills/langsync/internal/document"
	"github.com/dshills/langsync/internal/protocol"
)

// Client implements Worker over a Transport. Results are validated
// against the message schema of their method before decoding.
type Client struct {
	transport *Transport
	stop      func(ctx context.Context) error
	logger    *zap.Logger
	closed    atomic.Bool
}

// NewClient wraps a started transport. stop, if non-nil, runs after the
// transport closes and waits for the worker behind it to exit.
func NewClient(t *Transport, stop func(ctx context.Context) error, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{transport: t, stop: stop, logger: logger}
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	raw, err := c.transport.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if err := protocol.ValidateResult(method, raw); err != nil {
		c.logger.Warn("rejected engine result", zap.String("method", method), zap.Error(err))
		return err
	}
	if result == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return &protocol.ValidationError{Method: method, Reason: "decode result: " + err.Error()}
	}
	return nil
}

func wireIntervals(intervals []protocol.Interval) []protocol.Interval {
	if intervals == nil {
		return []protocol.Interval{}
	}
	return intervals
}

// DoValidation implements Engine.
func (c *Client) DoValidation(ctx context.Context, uri protocol.DocumentURI, intervals []protocol.Interval) ([]protocol.Diagnostic, error) {
	var diags []protocol.Diagnostic
	params := protocol.IntervalParams{URI: uri, Intervals: wireIntervals(intervals)}
	if err := c.call(ctx, protocol.MethodDoValidation, params, &diags); err != nil {
		return nil, err
	}
	for i, d := range diags {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("diagnostic %d: %w", i, err)
		}
	}
	return diags, nil
}

// DoColorization implements Engine.
func (c *Client) DoColorization(ctx context.Context, uri protocol.DocumentURI, intervals []protocol.Interval) ([]protocol.ColorizationRange, error) {
	var ranges []protocol.ColorizationRange
	params := protocol.IntervalParams{URI: uri, Intervals: wireIntervals(intervals)}
	if err := c.call(ctx, protocol.MethodDoColorization, params, &ranges); err != nil {
		return nil, err
	}
	for i, r := range ranges {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("colorization range %d: %w", i, err)
		}
	}
	return ranges, nil
}

// DoComplete implements Engine.
func (c *Client) DoComplete(ctx context.Context, uri protocol.DocumentURI, pos protocol.Position) (protocol.CompletionList, error) {
	var list protocol.CompletionList
	params := protocol.CompletionParams{URI: uri, Position: pos}
	if err := c.call(ctx, protocol.MethodDoComplete, params, &list); err != nil {
		return protocol.CompletionList{}, err
	}
	return list, nil
}

// SetSchema implements Engine.
func (c *Client) SetSchema(ctx context.Context, schema protocol.Schema) error {
	return c.call(ctx, protocol.MethodSetSchema, schema, nil)
}

// GetSchema implements Engine.
func (c *Client) GetSchema(ctx context.Context) (protocol.Schema, error) {
	var schema protocol.Schema
	if err := c.call(ctx, protocol.MethodGetSchema, nil, &schema); err != nil {
		return protocol.Schema{}, err
	}
	return schema, nil
}

// NormalizeSchema implements Engine.
func (c *Client) NormalizeSchema(ctx context.Context, raw protocol.Schema, connectionID, contextID string) (protocol.Schema, error) {
	var schema protocol.Schema
	params := protocol.NormalizeSchemaParams{Raw: raw, ConnectionID: connectionID, ContextID: contextID}
	if err := c.call(ctx, protocol.MethodNormalizeSchema, params, &schema); err != nil {
		return protocol.Schema{}, err
	}
	return schema, nil
}

// SyncDocument implements Engine.
func (c *Client) SyncDocument(ctx context.Context, snap document.Snapshot) error {
	params := protocol.SyncDocumentParams{URI: snap.URI, Version: int64(snap.Version), Text: snap.Text}
	return c.call(ctx, protocol.MethodSyncDocument, params, nil)
}

// Close asks the worker to shut down, closes the transport and waits for
// the worker to exit or ctx to expire.
func (c *Client) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}
	if err := c.transport.Notify(protocol.MethodShutdown, nil); err != nil {
		c.logger.Debug("shutdown notification not delivered", zap.Error(err))
	}
	err := c.transport.Close()
	if c.stop != nil {
		if serr := c.stop(ctx); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}
