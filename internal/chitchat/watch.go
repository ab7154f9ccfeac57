package chitchat

import (
	"context"
	"sync"
)

// Watch is a single-producer, multi-consumer broadcast of the latest value
// of T. Unlike a plain channel, a slow or absent consumer never blocks the
// producer and never misses updates it doesn't care about: it always reads
// whatever the newest value is the next time it looks.
type Watch[T any] struct {
	mu     sync.Mutex
	value  T
	notify chan struct{}
}

// NewWatch creates a Watch seeded with initial.
func NewWatch[T any](initial T) *Watch[T] {
	return &Watch[T]{value: initial, notify: make(chan struct{})}
}

// Get returns the current value together with a channel that is closed the
// next time Set is called. Both are read under the same lock, so a caller
// that blocks on the returned channel cannot miss a Set made after the
// value it just read.
func (w *Watch[T]) Get() (T, <-chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value, w.notify
}

// Set publishes a new value and wakes every consumer currently blocked on
// the channel returned by a previous Get.
func (w *Watch[T]) Set(v T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.value = v
	close(w.notify)
	w.notify = make(chan struct{})
}

// Wait blocks until the value differs from last as judged by equal, or ctx
// is done. It returns the first value observed to differ.
func Wait[T any](ctx context.Context, w *Watch[T], last T, equal func(a, b T) bool) (T, error) {
	for {
		v, notify := w.Get()
		if !equal(v, last) {
			return v, nil
		}
		select {
		case <-notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}
