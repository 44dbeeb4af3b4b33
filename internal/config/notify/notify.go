// Package notify delivers settings change notifications to subscribers.
//
// Observers subscribe either to every change or to a dotted path prefix
// such as "session" or "worker.command"; a path subscription fires when
// any changed key equals the path or lies below it.
package notify

import (
	"slices"
	"strings"
	"sync"
)

// Change describes one settings update.
type Change[T any] struct {
	// Paths lists the dotted keys whose values differ. A reload that
	// changed nothing is never published.
	Paths []string

	// Old and New are the complete values before and after the change.
	Old T
	New T

	// Source identifies where the change came from, such as a file path.
	Source string
}

// Touches reports whether the change affects path or a key below it.
func (c Change[T]) Touches(path string) bool {
	return slices.ContainsFunc(c.Paths, func(p string) bool {
		return p == path || isParentPath(path, p)
	})
}

// Observer is called when a change is published.
type Observer[T any] func(change Change[T])

// Subscription represents an active observer subscription.
type Subscription struct {
	unsubscribe func()
}

// Unsubscribe removes the observer. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.unsubscribe != nil {
		s.unsubscribe()
	}
}

type subscriber[T any] struct {
	path     string
	observer Observer[T]
}

// Notifier fans changes out to subscribers.
type Notifier[T any] struct {
	mu          sync.RWMutex
	subscribers map[uint64]subscriber[T]
	nextID      uint64

	async  bool
	buffer chan Change[T]
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// Option configures a Notifier.
type Option func(*options)

type options struct {
	bufferSize int
}

// WithAsync delivers changes on a background goroutine through a buffer
// of the given size instead of on the publishing goroutine.
func WithAsync(bufferSize int) Option {
	return func(o *options) {
		o.bufferSize = bufferSize
	}
}

// New creates a Notifier.
func New[T any](opts ...Option) *Notifier[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	n := &Notifier[T]{
		subscribers: make(map[uint64]subscriber[T]),
		done:        make(chan struct{}),
	}
	if o.bufferSize > 0 {
		n.async = true
		n.buffer = make(chan Change[T], o.bufferSize)
		n.wg.Add(1)
		go n.processAsync()
	}
	return n
}

// Subscribe registers an observer for every change.
func (n *Notifier[T]) Subscribe(observer Observer[T]) *Subscription {
	return n.SubscribePath("", observer)
}

// SubscribePath registers an observer for changes at or below path.
// An empty path matches everything.
func (n *Notifier[T]) SubscribePath(path string, observer Observer[T]) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.subscribers[id] = subscriber[T]{path: path, observer: observer}

	return &Subscription{unsubscribe: func() {
		n.mu.Lock()
		delete(n.subscribers, id)
		n.mu.Unlock()
	}}
}

// Notify publishes change. Changes with no paths are dropped. After Close
// Notify does nothing.
func (n *Notifier[T]) Notify(change Change[T]) {
	if len(change.Paths) == 0 {
		return
	}

	n.mu.RLock()
	closed := n.closed
	n.mu.RUnlock()
	if closed {
		return
	}

	if n.async {
		select {
		case n.buffer <- change:
		case <-n.done:
		}
		return
	}
	n.deliver(change)
}

// Close stops delivery. Buffered async changes are delivered before Close
// returns. It is safe to call Close multiple times.
func (n *Notifier[T]) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	close(n.done)
	n.wg.Wait()
}

func (n *Notifier[T]) deliver(change Change[T]) {
	n.mu.RLock()
	ids := make([]uint64, 0, len(n.subscribers))
	for id := range n.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var observers []Observer[T]
	for _, id := range ids {
		sub := n.subscribers[id]
		if sub.path == "" || change.Touches(sub.path) {
			observers = append(observers, sub.observer)
		}
	}
	n.mu.RUnlock()

	// Observers run outside the lock so they may subscribe or unsubscribe.
	for _, obs := range observers {
		obs(change)
	}
}

func (n *Notifier[T]) processAsync() {
	defer n.wg.Done()

	for {
		select {
		case change := <-n.buffer:
			n.deliver(change)
		case <-n.done:
			for {
				select {
				case change := <-n.buffer:
					n.deliver(change)
				default:
					return
				}
			}
		}
	}
}

// isParentPath reports whether parent is a proper dotted prefix of child:
// "session" is a parent of "session.max_idle_time".
func isParentPath(parent, child string) bool {
	return len(child) > len(parent) && strings.HasPrefix(child, parent) && child[len(parent)] == '.'
}
