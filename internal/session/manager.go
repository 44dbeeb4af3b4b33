// Package session owns the lifecycle of the single analysis-engine worker
// shared by an editor instance.
//
// The worker is spawned lazily on the first Acquire, kept alive while it is
// used, and torn down when it has been idle for longer than MaxIdleTime or
// when the configuration it was spawned with changes. The schema loaded
// into the engine is captured before every teardown and restored into the
// next worker before any caller can use it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/langsync/internal/document"
	"github.com/dshills/langsync/internal/protocol"
	"github.com/dshills/langsync/internal/telemetry"
	"github.com/dshills/langsync/internal/worker"
)

const (
	// DefaultIdleCheckInterval is how often idle detection runs.
	DefaultIdleCheckInterval = 30 * time.Second

	// DefaultCloseTimeout bounds schema capture plus worker shutdown.
	DefaultCloseTimeout = 5 * time.Second
)

// Teardown reasons, as logged and counted.
const (
	ReasonIdle     = "idle"
	ReasonConfig   = "config"
	ReasonDisposed = "disposed"
)

const createKey = "session"

// Config holds the parameters a worker is spawned with.
type Config struct {
	Spawner worker.Spawner

	// MaxIdleTime is how long a session may go unused before it is torn
	// down. Zero or negative disables idle teardown.
	MaxIdleTime time.Duration

	// IdleCheckInterval is the idle detection period. Zero means
	// DefaultIdleCheckInterval.
	IdleCheckInterval time.Duration

	// CloseTimeout bounds a teardown. Zero means DefaultCloseTimeout.
	CloseTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.IdleCheckInterval <= 0 {
		c.IdleCheckInterval = DefaultIdleCheckInterval
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	return c
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	Spawns       int
	Teardowns    int
	Live         bool
	SessionID    string
	LastUsed     time.Time
	HasPreserved bool
}

// Manager hands out the shared worker session. It is safe for concurrent
// use; concurrent Acquire calls never spawn more than one worker.
type Manager struct {
	clock  Clock
	logger *zap.Logger
	create singleflight.Group

	// lifeMu serializes spawning and teardown so a new session always
	// sees the state captured from the previous one.
	lifeMu sync.Mutex

	mu        sync.Mutex
	cfg       Config
	current   *Session
	preserved protocol.Schema
	spawns    int
	teardowns int
	disposed  bool

	monitorStop chan struct{}
	monitorDone chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock replaces the wall clock used for idle detection.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// NewManager creates a manager. No worker is spawned until Acquire. If
// cfg.MaxIdleTime is positive the idle monitor starts immediately.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		clock:  realClock{},
		logger: zap.NewNop(),
		cfg:    cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.mu.Lock()
	m.startMonitorLocked()
	m.mu.Unlock()
	return m
}

// Acquire returns a handle to the live session, spawning one if needed,
// after making sure every snapshot in docs is mirrored into it.
//
// A spawn failure is returned to every caller waiting on that spawn and
// is not remembered: the next Acquire tries again.
func (m *Manager) Acquire(ctx context.Context, docs []document.Snapshot) (*Handle, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "session.Acquire", attribute.Int("documents", len(docs)))
	defer span.End()

	h, err := m.acquire(ctx, docs)
	telemetry.RecordAcquire(ctx, time.Since(start), err == nil)
	if err != nil {
		span.RecordError(err)
	}
	return h, err
}

func (m *Manager) acquire(ctx context.Context, docs []document.Snapshot) (*Handle, error) {
	s, err := m.session(ctx)
	if err != nil {
		return nil, err
	}
	defer m.release(s)
	if err := s.mirror(ctx, docs); err != nil {
		return nil, err
	}
	return &Handle{session: s, clock: m.clock}, nil
}

// session returns the live session, joining or starting its creation,
// with a call already counted in flight. The caller must release it.
func (m *Manager) session(ctx context.Context) (*Session, error) {
	for {
		m.mu.Lock()
		if m.disposed {
			m.mu.Unlock()
			return nil, ErrDisposed
		}
		if s := m.current; s != nil {
			m.claimLocked(s)
			m.mu.Unlock()
			return s, nil
		}
		m.mu.Unlock()

		// The spawn must not be canceled on behalf of other waiters when
		// this caller gives up.
		spawnCtx := context.WithoutCancel(ctx)
		ch := m.create.DoChan(createKey, func() (any, error) {
			return m.spawn(spawnCtx)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
		}
		// Claim whichever session is current now; the one just spawned
		// may already have been torn down.
	}
}

// claimLocked marks a call in flight on s and refreshes its last use, so
// the idle check, which runs under the same lock, cannot pick it.
// m.mu must be held.
func (m *Manager) claimLocked(s *Session) {
	s.inFlight.Add(1)
	s.touch(m.clock.Now())
}

func (m *Manager) release(s *Session) {
	s.touch(m.clock.Now())
	s.inFlight.Add(-1)
}

// spawn starts a worker and restores the preserved schema into it before
// publishing it as the current session.
func (m *Manager) spawn(ctx context.Context) (*Session, error) {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil, ErrDisposed
	}
	if s := m.current; s != nil {
		m.mu.Unlock()
		return s, nil
	}
	cfg := m.cfg
	preserved := m.preserved
	m.mu.Unlock()

	if cfg.Spawner == nil {
		return nil, &worker.SpawnError{Err: errors.New("no spawner configured")}
	}

	w, err := cfg.Spawner.Spawn(ctx)
	telemetry.RecordSpawn(ctx, err == nil)
	if err != nil {
		m.logger.Warn("worker spawn failed", zap.Error(err))
		return nil, err
	}

	if !preserved.IsZero() {
		if err := w.SetSchema(ctx, preserved); err != nil {
			m.closeWorker(w, cfg.CloseTimeout)
			m.logger.Warn("restoring schema into new worker failed", zap.Error(err))
			return nil, fmt.Errorf("restore schema: %w", err)
		}
	}

	s := newSession(uuid.NewString(), w, m.clock.Now())

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		m.closeWorker(w, cfg.CloseTimeout)
		return nil, ErrDisposed
	}
	m.current = s
	m.spawns++
	m.mu.Unlock()

	m.logger.Info("worker session started",
		zap.String("session", s.id),
		zap.Bool("restored_schema", !preserved.IsZero()),
	)
	return s, nil
}

// Reconfigure replaces the spawn parameters. The live session, which was
// built with the old parameters, is torn down right away.
func (m *Manager) Reconfigure(ctx context.Context, cfg Config) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	stop, done := m.detachMonitorLocked()
	m.cfg = cfg.withDefaults()
	m.mu.Unlock()

	waitMonitor(stop, done)
	err := m.teardown(ctx, ReasonConfig, nil)

	m.mu.Lock()
	if !m.disposed {
		m.startMonitorLocked()
	}
	m.mu.Unlock()
	return err
}

// SetSchema normalizes raw on the live session, loads the result into the
// engine and records it as the state to restore after a restart.
func (m *Manager) SetSchema(ctx context.Context, raw protocol.Schema, connectionID, contextID string) (protocol.Schema, error) {
	h, err := m.Acquire(ctx, nil)
	if err != nil {
		return protocol.Schema{}, err
	}
	normalized, err := h.NormalizeSchema(ctx, raw, connectionID, contextID)
	if err != nil {
		return protocol.Schema{}, err
	}
	if err := h.SetSchema(ctx, normalized); err != nil {
		return protocol.Schema{}, err
	}

	m.mu.Lock()
	m.preserved = protocol.NewSchema(normalized.Raw)
	m.mu.Unlock()
	return normalized, nil
}

// Preserved returns the schema that will be restored into the next
// session.
func (m *Manager) Preserved() protocol.Schema {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.preserved
}

// Stats returns a snapshot of the manager state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{
		Spawns:       m.spawns,
		Teardowns:    m.teardowns,
		HasPreserved: !m.preserved.IsZero(),
	}
	if s := m.current; s != nil {
		st.Live = true
		st.SessionID = s.id
		st.LastUsed = s.LastUsed()
	}
	return st
}

// Dispose stops idle detection, tears down the live session and makes
// every later Acquire fail with ErrDisposed.
func (m *Manager) Dispose(ctx context.Context) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil
	}
	m.disposed = true
	stop, done := m.detachMonitorLocked()
	m.mu.Unlock()

	waitMonitor(stop, done)
	return m.teardown(ctx, ReasonDisposed, nil)
}

// teardown captures the schema from the current session, then closes it.
// If pick is non-nil it is called with m.mu held and the session is kept
// unless it returns true. A failed capture still destroys the session and
// leaves the previously preserved schema in place.
func (m *Manager) teardown(ctx context.Context, reason string, pick func(*Session) bool) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	m.mu.Lock()
	s := m.current
	if s == nil || (pick != nil && !pick(s)) {
		m.mu.Unlock()
		return nil
	}
	m.current = nil
	m.teardowns++
	timeout := m.cfg.CloseTimeout
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	logger := m.logger.With(zap.String("session", s.id), zap.String("reason", reason))

	captured := false
	schema, err := s.worker.GetSchema(ctx)
	if err != nil {
		logger.Warn("capturing schema before teardown failed; keeping previous state", zap.Error(err))
	} else {
		captured = true
		m.mu.Lock()
		m.preserved = protocol.NewSchema(schema.Raw)
		m.mu.Unlock()
	}
	telemetry.RecordTeardown(ctx, reason, captured)

	if err := s.worker.Close(ctx); err != nil {
		logger.Warn("worker close failed", zap.Error(err))
		return fmt.Errorf("close worker: %w", err)
	}
	logger.Info("worker session stopped", zap.Bool("schema_captured", captured))
	return nil
}

func (m *Manager) closeWorker(w worker.Worker, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		m.logger.Debug("worker close failed", zap.Error(err))
	}
}

// checkIdle tears the session down if it has been unused for longer than
// MaxIdleTime. Sessions with calls in flight are never idle.
func (m *Manager) checkIdle() {
	m.mu.Lock()
	s := m.current
	maxIdle := m.cfg.MaxIdleTime
	m.mu.Unlock()

	if s == nil || maxIdle <= 0 || !m.idle(s, maxIdle) {
		return
	}

	// An Acquire may have claimed the session since; decide again under
	// the lock it claims with.
	_ = m.teardown(context.Background(), ReasonIdle, func(cur *Session) bool {
		if cur != s || !m.idle(cur, maxIdle) {
			return false
		}
		m.logger.Info("tearing down idle worker session",
			zap.String("session", cur.id),
			zap.Duration("idle", m.clock.Now().Sub(cur.LastUsed())),
			zap.Duration("max_idle", maxIdle),
		)
		return true
	})
}

func (m *Manager) idle(s *Session, maxIdle time.Duration) bool {
	return !s.busy() && m.clock.Now().Sub(s.LastUsed()) > maxIdle
}

// startMonitorLocked starts the idle monitor if idle teardown is enabled.
// m.mu must be held.
func (m *Manager) startMonitorLocked() {
	if m.cfg.MaxIdleTime <= 0 || m.monitorStop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	m.monitorStop, m.monitorDone = stop, done

	ticker := m.clock.NewTicker(m.cfg.IdleCheckInterval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				m.checkIdle()
			}
		}
	}()
}

// detachMonitorLocked clears the monitor fields and returns its channels.
// The caller stops it with waitMonitor after releasing m.mu, since the
// monitor itself takes the lock.
func (m *Manager) detachMonitorLocked() (stop, done chan struct{}) {
	stop, done = m.monitorStop, m.monitorDone
	m.monitorStop, m.monitorDone = nil, nil
	return stop, done
}

func waitMonitor(stop, done chan struct{}) {
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
