package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Transport is the client end of a worker connection. It sends requests
// and routes responses back to their callers by id.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer
	logger *zap.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	nextID  atomic.Int64
	pending map[int64]chan *Response

	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	readDone  chan struct{}
}

// NewTransport creates a transport over the given streams. c is closed
// when the transport closes; it may be nil.
func NewTransport(r io.Reader, w io.Writer, c io.Closer, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		reader:   bufio.NewReaderSize(r, 64*1024),
		writer:   w,
		closer:   c,
		logger:   logger,
		pending:  make(map[int64]chan *Response),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
}

// Start begins reading responses on a new goroutine.
func (t *Transport) Start() {
	if t.started.Swap(true) {
		return
	}
	go t.readLoop()
}

// Done is closed once the transport stops, either through Close or because
// the worker went away.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Close closes the transport and waits for the read loop to exit. Callers
// blocked in Call return ErrShutdown.
func (t *Transport) Close() error {
	t.shutdown()
	var err error
	t.closeOnce.Do(func() {
		if t.closer != nil {
			err = t.closer.Close()
		}
	})
	if t.started.Load() {
		<-t.readDone
	}
	return err
}

// shutdown marks the transport closed and releases waiters.
func (t *Transport) shutdown() {
	if t.closed.Swap(true) {
		return
	}
	close(t.done)

	// Waiters select on done, so the channels are dropped rather than closed.
	t.mu.Lock()
	t.pending = make(map[int64]chan *Response)
	t.mu.Unlock()
}

// IsClosed returns true if the transport has been closed.
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}

// Call sends a request and waits for its response. The raw result is
// returned undecoded; engine errors are returned as *protocol.RPCError.
func (t *Transport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if t.closed.Load() {
		return nil, ErrShutdown
	}

	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	id := t.nextID.Add(1)
	ch := make(chan *Response, 1)

	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	req := &Request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: raw}
	if err := t.send(req); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, ErrShutdown
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// Notify sends a notification. No response is expected.
func (t *Transport) Notify(method string, params any) error {
	if t.closed.Load() {
		return ErrShutdown
	}
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	return t.send(&Request{JSONRPC: jsonrpcVersion, Method: method, Params: raw})
}

func (t *Transport) send(msg any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return writeFrame(t.writer, msg)
}

func (t *Transport) readLoop() {
	defer close(t.readDone)
	for {
		body, err := readFrame(t.reader)
		if err != nil {
			if t.closed.Load() {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.ErrUnexpectedEOF) {
				t.logger.Debug("worker connection closed")
			} else {
				t.logger.Warn("worker read failed", zap.Error(err))
			}
			// The stream cannot be resynchronized after a framing error.
			t.shutdown()
			return
		}
		t.dispatch(body)
	}
}

func (t *Transport) dispatch(body []byte) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		t.logger.Warn("dropping malformed worker message", zap.Error(err))
		return
	}
	if resp.ID == 0 {
		// The engine does not send notifications.
		return
	}

	t.mu.Lock()
	ch, ok := t.pending[resp.ID]
	if ok {
		delete(t.pending, resp.ID)
	}
	t.mu.Unlock()

	if !ok {
		t.logger.Debug("response for unknown request", zap.Int64("id", resp.ID))
		return
	}
	ch <- &resp
}
