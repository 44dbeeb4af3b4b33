package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/langsync/internal/document"
	"github.com/dshills/langsync/internal/protocol"
	"github.com/dshills/langsync/internal/worker"
)

// Session is one live engine instance and its bookkeeping. Only the
// Manager creates and destroys sessions.
type Session struct {
	id      string
	worker  worker.Worker
	created time.Time

	lastUsed atomic.Int64 // unix nanoseconds
	inFlight atomic.Int32

	// syncMu orders mirror pushes so the engine never sees a version
	// regress.
	syncMu   sync.Mutex
	mu       sync.Mutex
	mirrored map[protocol.DocumentURI]document.Version
}

func newSession(id string, w worker.Worker, now time.Time) *Session {
	s := &Session{
		id:       id,
		worker:   w,
		created:  now,
		mirrored: make(map[protocol.DocumentURI]document.Version),
	}
	s.touch(now)
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// LastUsed returns when the session was last acquired or called.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastUsed.Store(now.UnixNano())
}

func (s *Session) busy() bool {
	return s.inFlight.Load() > 0
}

// mirroredVersion reports the version of uri the engine holds, if any.
func (s *Session) mirroredVersion(uri protocol.DocumentURI) (document.Version, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.mirrored[uri]
	return v, ok
}

// mirror pushes every snapshot the engine does not already hold at that
// version or newer. Mirrors are only ever added or refreshed; documents
// closed in the editor stay mirrored until the session ends.
func (s *Session) mirror(ctx context.Context, docs []document.Snapshot) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	pending := make(map[protocol.DocumentURI]document.Snapshot, len(docs))
	s.mu.Lock()
	for _, d := range docs {
		if v, ok := s.mirrored[d.URI]; ok && v >= d.Version {
			continue
		}
		if p, ok := pending[d.URI]; ok && p.Version >= d.Version {
			continue
		}
		pending[d.URI] = d
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range pending {
		g.Go(func() error {
			if err := s.worker.SyncDocument(gctx, d); err != nil {
				return fmt.Errorf("mirror %s: %w", d.URI, err)
			}
			s.mu.Lock()
			s.mirrored[d.URI] = d.Version
			s.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}
