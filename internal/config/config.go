package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/langsync/internal/config/loader"
	"github.com/dshills/langsync/internal/config/notify"
	"github.com/dshills/langsync/internal/config/watcher"
)

// Load returns the defaults overlaid with the file at path (if it exists)
// and then the environment. The result is validated. An empty path skips
// the file.
func Load(fsys loader.FileSystem, path string, lookup LookupFunc) (Settings, error) {
	s := Defaults()
	if path != "" {
		if fsys == nil {
			fsys = loader.OSFS{}
		}
		err := loader.DecodeFile(fsys, path, &s)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, err
		}
	}
	if err := ApplyEnv(&s, lookup); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings in %s: %w", path, err)
	}
	return s, nil
}

// watchNotifyBuffer is how many reloads may queue behind a slow observer.
const watchNotifyBuffer = 16

// Store holds the current settings and publishes changes. Changes are
// delivered before Update returns unless the store watches its file, in
// which case they are delivered in order on a background goroutine.
type Store struct {
	mu      sync.RWMutex
	path    string
	current Settings

	fsys     loader.FileSystem
	lookup   LookupFunc
	watch    bool
	logger   *zap.Logger
	notifier *notify.Notifier[Settings]
	watcher  *watcher.Watcher
}

// Option configures a Store.
type Option func(*Store)

// WithFileSystem sets the file system settings are read from.
func WithFileSystem(fsys loader.FileSystem) Option {
	return func(s *Store) {
		s.fsys = fsys
	}
}

// WithLookup sets the environment lookup.
func WithLookup(lookup LookupFunc) Option {
	return func(s *Store) {
		s.lookup = lookup
	}
}

// WithWatch enables live reload when the settings file changes.
func WithWatch(enable bool) Option {
	return func(s *Store) {
		s.watch = enable
	}
}

// WithLogger sets the store's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore loads path and returns a store holding the result.
func NewStore(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:   path,
		fsys:   loader.OSFS{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Reloads run on the watcher's goroutine; observers such as an engine
	// restart must not hold it up.
	var nopts []notify.Option
	if s.watch && path != "" {
		nopts = append(nopts, notify.WithAsync(watchNotifyBuffer))
	}
	s.notifier = notify.New[Settings](nopts...)

	current, err := Load(s.fsys, path, s.lookup)
	if err != nil {
		s.notifier.Close()
		return nil, err
	}
	s.current = current

	if s.watch && path != "" {
		w, err := watcher.New(path, s.handleFileChange, watcher.WithLogger(s.logger))
		if err != nil {
			s.notifier.Close()
			return nil, fmt.Errorf("watching %s: %w", path, err)
		}
		s.watcher = w
	}
	return s, nil
}

// Settings returns the current settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe registers an observer for every change.
func (s *Store) Subscribe(observer notify.Observer[Settings]) *notify.Subscription {
	return s.notifier.Subscribe(observer)
}

// SubscribePath registers an observer for changes at or below path.
func (s *Store) SubscribePath(path string, observer notify.Observer[Settings]) *notify.Subscription {
	return s.notifier.SubscribePath(path, observer)
}

// Update replaces the settings and publishes the keys that changed.
func (s *Store) Update(next Settings, source string) error {
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.current
	s.current = next
	s.mu.Unlock()

	paths := prev.Diff(next)
	if len(paths) == 0 {
		return nil
	}
	s.logger.Info("settings changed",
		zap.String("source", source),
		zap.Strings("keys", paths),
	)
	s.notifier.Notify(notify.Change[Settings]{Paths: paths, Old: prev, New: next, Source: source})
	return nil
}

// Reload re-reads the settings file and publishes any change. Invalid
// files leave the current settings in place.
func (s *Store) Reload() error {
	next, err := Load(s.fsys, s.path, s.lookup)
	if err != nil {
		return err
	}
	return s.Update(next, s.path)
}

// Close stops watching and delivering changes.
func (s *Store) Close() {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Debug("stopping config watcher", zap.Error(err))
		}
	}
	s.notifier.Close()
}

func (s *Store) handleFileChange(event watcher.Event) {
	if err := s.Reload(); err != nil {
		s.logger.Warn("reloading settings failed, keeping previous values",
			zap.String("path", event.Path),
			zap.Stringer("op", event.Op),
			zap.Error(err),
		)
	}
}
