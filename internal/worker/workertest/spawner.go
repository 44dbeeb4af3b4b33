package workertest

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/langsync/internal/worker"
)

// Spawner counts spawns and serves a fresh Engine over the in-process
// transport for each one, so tests exercise the full codec.
type Spawner struct {
	// Configure, if set, is applied to every new engine before it is served.
	Configure func(*Engine)
	Logger    *zap.Logger

	mu      sync.Mutex
	spawns  int
	err     error
	gate    chan struct{}
	engines []*Engine
}

var _ worker.Spawner = (*Spawner)(nil)

// Spawn implements worker.Spawner.
func (s *Spawner) Spawn(ctx context.Context) (worker.Worker, error) {
	s.mu.Lock()
	s.spawns++
	err, gate := s.err, s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, &worker.SpawnError{Command: "workertest", Err: err}
	}

	eng := NewEngine()
	if s.Configure != nil {
		s.Configure(eng)
	}
	s.mu.Lock()
	s.engines = append(s.engines, eng)
	s.mu.Unlock()

	inner := &worker.InProcessSpawner{
		NewEngine: func(context.Context) (worker.Engine, error) { return eng, nil },
		Logger:    s.Logger,
	}
	return inner.Spawn(ctx)
}

// Spawns returns the number of Spawn calls, failed ones included.
func (s *Spawner) Spawns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawns
}

// Engines returns the engines created so far.
func (s *Spawner) Engines() []*Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Engine(nil), s.engines...)
}

// Last returns the most recently created engine, or nil.
func (s *Spawner) Last() *Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.engines) == 0 {
		return nil
	}
	return s.engines[len(s.engines)-1]
}

// Fail makes subsequent spawns fail with err. Fail(nil) restores success.
func (s *Spawner) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Hold blocks subsequent spawns until the returned release func is called.
func (s *Spawner) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}
