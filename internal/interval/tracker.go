package interval

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/langsync/internal/document"
	"github.com/dshills/langsync/internal/protocol"
	"github.com/dshills/langsync/internal/telemetry"
)

// DefaultDelay is the quiet period before accumulated intervals are flushed.
const DefaultDelay = 500 * time.Millisecond

// Purpose selects which analysis a set of intervals is tracked for.
// Diagnostics and classification are tracked independently per document.
type Purpose int

const (
	// PurposeDiagnostics tracks regions needing validation.
	PurposeDiagnostics Purpose = iota
	// PurposeClassification tracks regions needing colorization.
	PurposeClassification
)

// Purposes lists every purpose, in flush order.
var Purposes = []Purpose{PurposeDiagnostics, PurposeClassification}

// String returns the purpose name.
func (p Purpose) String() string {
	switch p {
	case PurposeDiagnostics:
		return "diagnostics"
	case PurposeClassification:
		return "classification"
	default:
		return "unknown"
	}
}

// FlushFunc receives the union of everything recorded for one document and
// purpose since the previous flush.
type FlushFunc func(uri protocol.DocumentURI, purpose Purpose, set Set)

type trackKey struct {
	uri     protocol.DocumentURI
	purpose Purpose
}

// pendingWork accumulates intervals for one key until its debouncer fires.
type pendingWork struct {
	set       Set
	has       bool
	debouncer *Debouncer
}

// Tracker coalesces recomputation requests per (document, purpose).
// Only the last call in a burst survives, and it carries the union of
// every interval recorded during the burst.
type Tracker struct {
	mu      sync.Mutex
	delay   time.Duration
	flush   FlushFunc
	pending map[trackKey]*pendingWork
	closed  bool
	logger  *zap.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithDelay sets the debounce quiet period.
func WithDelay(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.delay = d
		}
	}
}

// WithLogger sets the tracker's logger.
func WithLogger(l *zap.Logger) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTracker creates a tracker that calls flush after each quiet period.
func NewTracker(flush FlushFunc, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		delay:   DefaultDelay,
		flush:   flush,
		pending: make(map[trackKey]*pendingWork),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Delay returns the configured quiet period.
func (t *Tracker) Delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delay
}

// SetDelay changes the quiet period. Calls already scheduled keep their
// original deadline.
func (t *Tracker) SetDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delay = d
	for _, pw := range t.pending {
		pw.debouncer.SetDelay(d)
	}
}

// RecordEdits records the post-edit regions of edits for every purpose.
// An event without edits is ignored.
func (t *Tracker) RecordEdits(uri protocol.DocumentURI, edits []document.Edit) {
	if len(edits) == 0 {
		return
	}
	set := FromEdits(edits)
	for _, p := range Purposes {
		t.Record(uri, p, set)
	}
}

// Invalidate requests a whole-document recomputation for every purpose.
// Configuration and schema changes use this because they can change
// conclusions anywhere in the document.
func (t *Tracker) Invalidate(uri protocol.DocumentURI) {
	for _, p := range Purposes {
		t.Record(uri, p, Full())
	}
}

// Record adds set to the pending work for (uri, purpose) and restarts the
// quiet period.
func (t *Tracker) Record(uri protocol.DocumentURI, purpose Purpose, set Set) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	key := trackKey{uri: uri, purpose: purpose}
	pw, ok := t.pending[key]
	if !ok {
		pw = &pendingWork{}
		pw.debouncer = NewDebouncer(t.delay, func() { t.fire(key) })
		t.pending[key] = pw
	}

	if pw.has {
		pw.set = Union(pw.set, set)
	} else {
		pw.set = set
		pw.has = true
	}
	pw.debouncer.Call()
}

// pendingSet returns the accumulated set for (uri, purpose) and whether any
// work is pending.
func (t *Tracker) pendingSet(uri protocol.DocumentURI, purpose Purpose) (Set, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pw, ok := t.pending[trackKey{uri: uri, purpose: purpose}]
	if !ok || !pw.has {
		return nil, false
	}
	return pw.set, true
}

// Flush runs every pending flush for uri immediately.
func (t *Tracker) Flush(uri protocol.DocumentURI) {
	for _, p := range Purposes {
		t.mu.Lock()
		pw, ok := t.pending[trackKey{uri: uri, purpose: p}]
		t.mu.Unlock()
		if ok {
			pw.debouncer.CallImmediate()
		}
	}
}

// Forget drops pending work for uri, used when the document closes.
func (t *Tracker) Forget(uri protocol.DocumentURI) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range Purposes {
		key := trackKey{uri: uri, purpose: p}
		if pw, ok := t.pending[key]; ok {
			pw.debouncer.Cancel()
			delete(t.pending, key)
		}
	}
}

// Close cancels every pending flush. Later calls to Record are ignored.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for key, pw := range t.pending {
		pw.debouncer.Cancel()
		delete(t.pending, key)
	}
}

func (t *Tracker) fire(key trackKey) {
	t.mu.Lock()
	pw, ok := t.pending[key]
	if !ok || !pw.has || t.closed {
		t.mu.Unlock()
		return
	}
	set := pw.set
	pw.set = nil
	pw.has = false
	t.mu.Unlock()

	t.logger.Debug("flushing intervals",
		zap.String("uri", string(key.uri)),
		zap.Stringer("purpose", key.purpose),
		zap.Bool("full", set.IsFull()),
		zap.Int("intervals", len(set)),
	)
	telemetry.RecordFlush(context.Background(), key.purpose.String(), set.IsFull())

	if t.flush != nil {
		t.flush(key.uri, key.purpose, set)
	}
}
