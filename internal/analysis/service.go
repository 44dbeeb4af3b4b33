// Package analysis wires the synchronization layer together for an editor.
//
// A Service owns the worker session manager, the open-document registry,
// the change-interval tracker, one reconciler per decoration category and
// one completion cache per document. The editor reports documents opening,
// changing and closing; the service schedules incremental recomputation,
// discards results that arrive for an outdated version, and pushes the
// rest into decorations and problem markers.
//
//	DidChange ─► Tracker ─(debounce)─► flush ─► Manager.Acquire ─► engine
//	                                                                   │
//	          Host ◄─ Reconciler ◄─ staleness.Apply ◄──────────────────┘
package analysis

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/langsync/internal/completion"
	"github.com/dshills/langsync/internal/config"
	"github.com/dshills/langsync/internal/config/notify"
	"github.com/dshills/langsync/internal/decoration"
	"github.com/dshills/langsync/internal/document"
	"github.com/dshills/langsync/internal/interval"
	"github.com/dshills/langsync/internal/logging"
	"github.com/dshills/langsync/internal/protocol"
	"github.com/dshills/langsync/internal/session"
	"github.com/dshills/langsync/internal/staleness"
	"github.com/dshills/langsync/internal/worker"
)

// ErrClosed is returned by operations on a closed Service.
var ErrClosed = errors.New("analysis service closed")

// ErrorReporter receives errors that occurred in background recomputation.
// It is called on its own goroutine and never blocks the editor.
type ErrorReporter func(err error)

// SpawnerFunc builds the worker spawner for the given worker settings.
type SpawnerFunc func(settings config.WorkerSettings) worker.Spawner

// Service coordinates analysis for every open document.
type Service struct {
	logger  *zap.Logger
	manager *session.Manager
	docs    *document.Registry
	tracker *interval.Tracker
	guard   *staleness.Guard

	classes *decoration.Reconciler
	diags   *decoration.DiagnosticsReconciler
	classOf func(kind int) string

	markers    MarkerSink
	report     ErrorReporter
	spawnerFor SpawnerFunc
	managerOps []session.Option

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	settings config.Settings
	caches   map[protocol.DocumentURI]*completion.PrefixCache
	closed   bool
	wg       sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger. Components log through named
// children of it.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMarkerSink sets where diagnostic markers are published.
func WithMarkerSink(sink MarkerSink) Option {
	return func(s *Service) {
		s.markers = sink
	}
}

// WithErrorReporter sets the reporter for background failures.
func WithErrorReporter(r ErrorReporter) Option {
	return func(s *Service) {
		s.report = r
	}
}

// WithSpawner makes every session use spawner regardless of the worker
// settings.
func WithSpawner(spawner worker.Spawner) Option {
	return func(s *Service) {
		s.spawnerFor = func(config.WorkerSettings) worker.Spawner { return spawner }
	}
}

// WithClassifier maps engine classification kinds to decoration classes.
// Kinds mapped to "" are not drawn.
func WithClassifier(classOf func(kind int) string) Option {
	return func(s *Service) {
		if classOf != nil {
			s.classOf = classOf
		}
	}
}

// WithSessionOptions passes options through to the session manager.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Service) {
		s.managerOps = append(s.managerOps, opts...)
	}
}

// ProcessSpawnerFor starts the configured worker command as a child
// process.
func ProcessSpawnerFor(logger *zap.Logger) SpawnerFunc {
	return func(ws config.WorkerSettings) worker.Spawner {
		return &worker.ProcessSpawner{
			Command: ws.Command,
			Args:    ws.Args,
			Env:     ws.Env,
			Logger:  logger,
		}
	}
}

// New creates a service drawing into host with the given settings. Without
// WithLogger the logger is built from the log settings.
func New(host decoration.Host, settings config.Settings, opts ...Option) (*Service, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		docs:    document.NewRegistry(),
		classOf: DefaultClass,
		caches:  make(map[protocol.DocumentURI]*completion.PrefixCache),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		logger, err := logging.New(settings.Log.Level, settings.Log.Development)
		if err != nil {
			return nil, err
		}
		s.logger = logger
	}
	if s.spawnerFor == nil {
		s.spawnerFor = ProcessSpawnerFor(s.logger.Named("worker"))
	}
	s.settings = settings
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.guard = staleness.NewGuard(s.logger.Named("staleness"))
	s.classes = decoration.NewReconciler(host, decoration.CategoryClassification, s.logger.Named("decoration"))
	s.diags = decoration.NewDiagnosticsReconciler(host, s.logger.Named("decoration"))
	s.diags.SetEnhanced(settings.Diagnostics.Enhanced)

	managerOps := append([]session.Option{session.WithLogger(s.logger.Named("session"))}, s.managerOps...)
	s.manager = session.NewManager(s.sessionConfig(settings), managerOps...)

	s.tracker = interval.NewTracker(s.flush,
		interval.WithDelay(settings.Analysis.Debounce.Std()),
		interval.WithLogger(s.logger.Named("interval")),
	)
	return s, nil
}

func (s *Service) sessionConfig(settings config.Settings) session.Config {
	return session.Config{
		Spawner:           s.spawnerFor(settings.Worker),
		MaxIdleTime:       settings.Session.MaxIdleTime.Std(),
		IdleCheckInterval: settings.Session.IdleCheckInterval.Std(),
	}
}

// Manager returns the session manager.
func (s *Service) Manager() *session.Manager {
	return s.manager
}

// Settings returns the settings currently in effect.
func (s *Service) Settings() config.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Open starts tracking doc and schedules a whole-document analysis.
func (s *Service) Open(doc *document.Document) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	uri := doc.URI()
	cache := completion.NewPrefixCache(func(ctx context.Context, pos protocol.Position) (protocol.CompletionList, error) {
		h, err := s.manager.Acquire(ctx, []document.Snapshot{doc.Snapshot()})
		if err != nil {
			return protocol.CompletionList{}, err
		}
		return h.DoComplete(ctx, uri, pos)
	}, completion.WithLogger(s.logger.Named("completion")))

	// Disposers run in reverse order: pending work goes first, drawn
	// state last.
	err := s.docs.Register(doc,
		func() {
			s.diags.Forget(uri)
			s.classes.Clear(uri)
			if s.markers != nil {
				s.markers.SetMarkers(uri, decoration.CategoryDiagnostics, nil)
			}
		},
		func() {
			s.mu.Lock()
			if s.caches[uri] == cache {
				delete(s.caches, uri)
			}
			s.mu.Unlock()
			cache.Reset()
		},
		func() { s.tracker.Forget(uri) },
	)
	if err != nil {
		return err
	}

	// The cache disposer takes s.mu, so a Close racing this Open either
	// ran it already, and doc is no longer registered, or runs it later.
	s.mu.Lock()
	if s.docs.Registered(doc) {
		s.caches[uri] = cache
	}
	s.mu.Unlock()

	s.logger.Debug("document opened", zap.String("uri", string(uri)), zap.Int64("version", int64(doc.Version())))
	s.tracker.Invalidate(uri)
	return nil
}

// Close stops tracking uri, closes the document and removes everything
// drawn for it. Results still in flight for it are discarded.
func (s *Service) Close(uri protocol.DocumentURI) error {
	doc, ok := s.docs.Get(uri)
	if !ok {
		return document.ErrDocumentNotOpen
	}
	doc.Close()
	return s.docs.Unregister(uri)
}

// DidChange records the edits of one change event. An event without
// edits schedules nothing.
func (s *Service) DidChange(uri protocol.DocumentURI, edits []document.Edit) error {
	if _, ok := s.docs.Get(uri); !ok {
		return document.ErrDocumentNotOpen
	}
	s.tracker.RecordEdits(uri, edits)
	return nil
}

// Flush runs any pending recomputation for uri now instead of waiting for
// the quiet period.
func (s *Service) Flush(uri protocol.DocumentURI) {
	s.tracker.Flush(uri)
}

// SettingsChanged applies new settings. Worker or session changes restart
// the engine; every open document is then recomputed in full.
func (s *Service) SettingsChanged(ctx context.Context, next config.Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prev := s.settings
	s.settings = next
	s.mu.Unlock()

	changed := prev.Diff(next)
	if len(changed) == 0 {
		return nil
	}
	s.logger.Info("settings changed", zap.Strings("keys", changed))

	s.tracker.SetDelay(next.Analysis.Debounce.Std())
	s.diags.SetEnhanced(next.Diagnostics.Enhanced)

	var err error
	change := notify.Change[config.Settings]{Paths: changed}
	if change.Touches("worker") || change.Touches("session") {
		err = s.manager.Reconfigure(ctx, s.sessionConfig(next))
	}
	s.resetCaches()
	s.invalidateAll()
	return err
}

// Follow applies every settings change store publishes until the
// returned subscription is cancelled.
func (s *Service) Follow(store *config.Store) *notify.Subscription {
	return store.Subscribe(func(c notify.Change[config.Settings]) {
		if err := s.SettingsChanged(s.ctx, c.New); err != nil && !errors.Is(err, ErrClosed) {
			s.logger.Warn("applying settings failed", zap.String("source", c.Source), zap.Error(err))
		}
	})
}

// SchemaChanged normalizes raw in the engine, loads it and recomputes
// every open document.
func (s *Service) SchemaChanged(ctx context.Context, raw protocol.Schema, connectionID, contextID string) error {
	if _, err := s.manager.SetSchema(ctx, raw, connectionID, contextID); err != nil {
		return err
	}
	s.resetCaches()
	s.invalidateAll()
	return nil
}

// Complete returns completions at pos. word is the identifier being typed
// there, or nil if unknown; see completion.WordAt. A list computed for a
// version the document has since left is replaced by an empty incomplete
// list so the editor asks again.
func (s *Service) Complete(ctx context.Context, uri protocol.DocumentURI, word *string, pos protocol.Position) (protocol.CompletionList, error) {
	doc, ok := s.docs.Get(uri)
	if !ok {
		return protocol.CompletionList{}, document.ErrDocumentNotOpen
	}
	s.mu.Lock()
	cache := s.caches[uri]
	s.mu.Unlock()
	if cache == nil {
		return protocol.CompletionList{}, document.ErrDocumentNotOpen
	}

	out := protocol.CompletionList{IsIncomplete: true}
	_, err := staleness.Run(ctx, s.guard, doc, func(ctx context.Context) (protocol.CompletionList, error) {
		return cache.Get(ctx, word, pos)
	}, func(list protocol.CompletionList) {
		out = list
	})
	if err != nil {
		return protocol.CompletionList{}, err
	}
	return out, nil
}

// SemanticTokens classifies the whole of uri and returns the result in the
// delta-encoded semantic token form. It returns nil without an error when
// the document changed while the engine was working; the editor asks again.
func (s *Service) SemanticTokens(ctx context.Context, uri protocol.DocumentURI) ([]int, error) {
	doc, ok := s.docs.Get(uri)
	if !ok {
		return nil, document.ErrDocumentNotOpen
	}

	tok := staleness.Capture(doc)
	snap := doc.Snapshot()
	h, err := s.manager.Acquire(ctx, []document.Snapshot{snap})
	if err != nil {
		return nil, err
	}
	ranges, err := h.DoColorization(ctx, uri, interval.Full().Intervals())

	var data []int
	applied, err := staleness.Apply(tok, ranges, err, func(ranges []protocol.ColorizationRange) {
		lines := document.NewLineIndex(snap.Text)
		var tokens []decoration.SemanticToken
		for _, r := range ranges {
			tokens = append(tokens, decoration.TokensFromClassifications(lines, r.Classifications)...)
		}
		data = decoration.EncodeSemanticTokens(tokens)
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		s.logger.Debug("discarded stale semantic tokens",
			zap.String("uri", string(uri)),
			zap.Int64("requested_version", int64(tok.Version())),
		)
	}
	return data, nil
}

// Diagnostics returns the diagnostics currently drawn for uri.
func (s *Service) Diagnostics(uri protocol.DocumentURI) []protocol.Diagnostic {
	return s.diags.Diagnostics(uri)
}

// Shutdown stops scheduling, drops every document and disposes the engine
// session. In-flight recomputations finish or are discarded before it
// returns.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.tracker.Close()
	s.cancel()
	s.wg.Wait()
	s.docs.DisposeAll()
	return s.manager.Dispose(ctx)
}

// begin registers a background task. It returns false once the service
// is shutting down.
func (s *Service) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Service) flush(uri protocol.DocumentURI, purpose interval.Purpose, set interval.Set) {
	if !s.begin() {
		return
	}
	defer s.wg.Done()

	doc, ok := s.docs.Get(uri)
	if !ok {
		return
	}

	var err error
	switch purpose {
	case interval.PurposeDiagnostics:
		err = s.validate(doc, set)
	case interval.PurposeClassification:
		err = s.colorize(doc, set)
	}
	if err != nil {
		s.fail(err, uri, purpose)
	}
}

// acquire captures the version before the snapshot is taken so a change
// racing the snapshot makes the result stale rather than misplaced.
func (s *Service) acquire(doc *document.Document) (staleness.Token, *session.Handle, error) {
	tok := staleness.Capture(doc)
	h, err := s.manager.Acquire(s.ctx, []document.Snapshot{doc.Snapshot()})
	return tok, h, err
}

func (s *Service) validate(doc *document.Document, set interval.Set) error {
	tok, h, err := s.acquire(doc)
	if err != nil {
		return err
	}
	intervals := set.Intervals()
	diags, err := h.DoValidation(s.ctx, doc.URI(), intervals)
	_, err = staleness.Apply(tok, diags, err, func(diags []protocol.Diagnostic) {
		merged := s.diags.Reconcile(doc, intervals, diags)
		if s.markers != nil && !doc.IsClosed() {
			s.markers.SetMarkers(doc.URI(), decoration.CategoryDiagnostics, markersFrom(merged))
		}
	})
	return err
}

func (s *Service) colorize(doc *document.Document, set interval.Set) error {
	tok, h, err := s.acquire(doc)
	if err != nil {
		return err
	}
	ranges, err := h.DoColorization(s.ctx, doc.URI(), set.Intervals())
	_, err = staleness.Apply(tok, ranges, err, func(ranges []protocol.ColorizationRange) {
		regions := decoration.ClassificationRegions(ranges, s.classOf)
		if set.IsFull() {
			// Lines the engine returned nothing for lose their old
			// classifications too.
			regions = append(regions, decoration.Region{Start: 0, End: doc.Lines().Len()})
		}
		s.classes.Reconcile(doc, regions)
	})
	return err
}

// fail logs a background error and hands it to the reporter on a new
// goroutine. Errors caused by shutdown are only logged at debug level.
func (s *Service) fail(err error, uri protocol.DocumentURI, purpose interval.Purpose) {
	fields := []zap.Field{
		zap.String("uri", string(uri)),
		zap.Stringer("purpose", purpose),
		zap.Error(err),
	}
	if s.ctx.Err() != nil || errors.Is(err, session.ErrDisposed) {
		s.logger.Debug("analysis abandoned", fields...)
		return
	}
	s.logger.Error("analysis failed", fields...)

	if s.report == nil {
		return
	}
	report := s.report
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		report(err)
	}()
}

func (s *Service) resetCaches() {
	s.mu.Lock()
	caches := make([]*completion.PrefixCache, 0, len(s.caches))
	for _, c := range s.caches {
		caches = append(caches, c)
	}
	s.mu.Unlock()

	for _, c := range caches {
		c.Reset()
	}
}

func (s *Service) invalidateAll() {
	for _, doc := range s.docs.Documents() {
		s.tracker.Invalidate(doc.URI())
	}
}
