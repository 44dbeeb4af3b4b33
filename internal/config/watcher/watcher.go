// Package watcher reports changes to a settings file.
//
// The watcher observes the file's parent directory rather than the file
// itself so editors that save by writing a temporary file and renaming it
// over the original are still noticed. Bursts of events for the file are
// coalesced into one callback after a quiet period.
package watcher

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period before a change is reported.
const DefaultDebounce = 100 * time.Millisecond

// ErrWatcherClosed is returned when starting a stopped watcher.
var ErrWatcherClosed = errors.New("watcher closed")

// Operation represents the type of file operation.
type Operation int

const (
	// OpWrite indicates the file was modified.
	OpWrite Operation = iota

	// OpCreate indicates the file was created, including by rename.
	OpCreate

	// OpRemove indicates the file was deleted or renamed away.
	OpRemove
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpCreate:
		return "create"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event represents a coalesced change to the watched file.
type Event struct {
	Path string
	Op   Operation
}

// Handler is called when the watched file changes.
type Handler func(event Event)

// Watcher monitors one file for changes.
type Watcher struct {
	path     string
	handler  Handler
	debounce time.Duration
	logger   *zap.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	pending Operation
	has     bool
	stopped bool

	wg sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period for rapid changes.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the watcher's logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher for path that calls handler after changes. The
// file does not need to exist yet; its directory does.
func New(path string, handler Handler, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		handler:  handler,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w.fsw = fsw

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Stop stops watching and cancels any pending callback. It is safe to
// call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if op, ok := translate(ev.Op); ok {
				w.queue(op)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// translate maps fsnotify operations onto the three we report. Chmod
// alone is ignored.
func translate(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpRemove, true
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpWrite, true
	default:
		return 0, false
	}
}

// queue coalesces op with any pending event: remove wins over everything,
// and a create followed by writes stays a create, except that a create
// after a remove is reported as a write since the file is back.
func (w *Watcher) queue(op Operation) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}

	switch {
	case !w.has:
		w.pending = op
	case op == OpRemove:
		w.pending = OpRemove
	case op == OpCreate && w.pending == OpRemove:
		w.pending = OpWrite
	case op == OpCreate:
		w.pending = OpCreate
	}
	w.has = true

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	if w.stopped || !w.has {
		w.mu.Unlock()
		return
	}
	ev := Event{Path: w.path, Op: w.pending}
	w.has = false
	w.timer = nil
	w.mu.Unlock()

	w.logger.Debug("config file changed", zap.String("path", ev.Path), zap.Stringer("op", ev.Op))
	if w.handler != nil {
		w.handler(ev)
	}
}
