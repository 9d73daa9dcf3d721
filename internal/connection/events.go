package connection

import "sync"

// Feed is an ordered, multi-listener, in-memory event stream. Listeners
// added after events have fired only see future events. Complete moves
// the feed to its terminal state: further publishes are dropped and new
// listeners are ignored.
type Feed[T any] struct {
	mu        sync.Mutex
	listeners []func(T)
	completed bool
}

// NewFeed creates an empty feed.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{}
}

// Listen registers a listener. Listeners are invoked in registration
// order, synchronously on the publishing goroutine.
func (f *Feed[T]) Listen(fn func(T)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completed {
		return
	}
	f.listeners = append(f.listeners, fn)
}

// Publish delivers an event to all current listeners.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return
	}
	// Snapshot so listeners may call back into the feed owner.
	fns := make([]func(T), len(f.listeners))
	copy(fns, f.listeners)
	f.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Complete marks the feed terminal. Idempotent.
func (f *Feed[T]) Complete() {
	f.mu.Lock()
	f.completed = true
	f.listeners = nil
	f.mu.Unlock()
}

// Completed reports whether the feed has been completed.
func (f *Feed[T]) Completed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}
