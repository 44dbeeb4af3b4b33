package worker

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/dshills/langsync/internal/document"
	"github.com/dshills/langsync/internal/protocol"
)

// Serve reads requests from r, dispatches them to engine and writes the
// responses to w. Requests are handled concurrently. Serve returns nil
// when r reaches EOF or a shutdown notification arrives, after in-flight
// requests have finished; their contexts are canceled at that point.
func Serve(ctx context.Context, engine Engine, r io.Reader, w io.Writer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)

	s := &server{engine: engine, w: w, logger: logger}
	reader := bufio.NewReaderSize(r, 64*1024)

	// Cancel in-flight requests first, then wait for them.
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		body, err := readFrame(reader)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}

		var req Request
		if err := json.Unmarshal(body, &req); err != nil {
			s.reply(&Response{JSONRPC: jsonrpcVersion, Error: &protocol.RPCError{
				Code:    protocol.CodeParseError,
				Message: err.Error(),
			}})
			continue
		}

		if req.ID == 0 {
			if req.Method == protocol.MethodShutdown {
				logger.Debug("worker shutdown requested")
				return nil
			}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, &req)
		}()
	}
}

type server struct {
	engine Engine
	logger *zap.Logger

	mu sync.Mutex
	w  io.Writer
}

func (s *server) reply(resp *Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFrame(s.w, resp); err != nil {
		s.logger.Debug("write response failed", zap.Int64("id", resp.ID), zap.Error(err))
	}
}

func (s *server) handle(ctx context.Context, req *Request) {
	resp := &Response{JSONRPC: jsonrpcVersion, ID: req.ID}

	result, err := s.invoke(ctx, req.Method, req.Params)
	if err != nil {
		resp.Error = toRPCError(err)
	} else {
		data, merr := json.Marshal(result)
		if merr != nil {
			resp.Error = &protocol.RPCError{Code: protocol.CodeInternalError, Message: merr.Error()}
		} else {
			resp.Result = data
		}
	}
	s.reply(resp)
}

// invoke decodes params for method and calls the engine. Methods without a
// result return nil, which is sent as a null result.
func (s *server) invoke(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case protocol.MethodDoValidation:
		var p protocol.IntervalParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		diags, err := s.engine.DoValidation(ctx, p.URI, p.Intervals)
		if diags == nil && err == nil {
			diags = []protocol.Diagnostic{}
		}
		return diags, err

	case protocol.MethodDoColorization:
		var p protocol.IntervalParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		ranges, err := s.engine.DoColorization(ctx, p.URI, p.Intervals)
		if ranges == nil && err == nil {
			ranges = []protocol.ColorizationRange{}
		}
		return ranges, err

	case protocol.MethodDoComplete:
		var p protocol.CompletionParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		list, err := s.engine.DoComplete(ctx, p.URI, p.Position)
		if list.Items == nil {
			list.Items = []protocol.CompletionItem{}
		}
		return list, err

	case protocol.MethodSetSchema:
		var schema protocol.Schema
		if err := decodeParams(params, &schema); err != nil {
			return nil, err
		}
		return nil, s.engine.SetSchema(ctx, schema)

	case protocol.MethodGetSchema:
		return s.engine.GetSchema(ctx)

	case protocol.MethodNormalizeSchema:
		var p protocol.NormalizeSchemaParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return s.engine.NormalizeSchema(ctx, p.Raw, p.ConnectionID, p.ContextID)

	case protocol.MethodSyncDocument:
		var p protocol.SyncDocumentParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return nil, s.engine.SyncDocument(ctx, document.Snapshot{
			URI:     p.URI,
			Version: document.Version(p.Version),
			Text:    p.Text,
		})

	default:
		return nil, &protocol.RPCError{Code: protocol.CodeMethodNotFound, Message: "method not found: " + method}
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return &protocol.RPCError{Code: protocol.CodeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &protocol.RPCError{Code: protocol.CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

func toRPCError(err error) *protocol.RPCError {
	var rpcErr *protocol.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return &protocol.RPCError{Code: protocol.CodeEngineError, Message: err.Error()}
}
