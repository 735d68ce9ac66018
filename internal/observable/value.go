// Package observable provides a concurrency-safe holder of a latest value
// that can be watched for changes.
package observable

import (
	"context"
	"sync"
)

// Value holds the latest value of T. Subscribers always see the most recent
// value; intermediate values may be skipped when a subscriber is slow.
type Value[T any] struct {
	mu          sync.Mutex
	value       T
	subscribers map[chan T]struct{}
}

// NewValue returns a Value initialised to initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		value:       initial,
		subscribers: make(map[chan T]struct{}),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// Set replaces the value and notifies subscribers.
func (v *Value[T]) Set(value T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.setLocked(value)
}

// Update atomically replaces the value with fn(current) and returns the new value.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	next := fn(v.value)
	v.setLocked(next)
	return next
}

// CompareAndSwap sets next only when match reports true for the current value.
func (v *Value[T]) CompareAndSwap(match func(T) bool, next T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !match(v.value) {
		return false
	}
	v.setLocked(next)
	return true
}

func (v *Value[T]) setLocked(value T) {
	v.value = value
	for ch := range v.subscribers {
		offer(ch, value)
	}
}

// offer replaces whatever is buffered in ch with value. Sends are serialised by
// the Value mutex so the second send always has room.
func offer[T any](ch chan T, value T) {
	select {
	case ch <- value:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- value
}

// Subscribe returns a channel that first yields the current value and then
// every later value, conflated to the latest. The channel is closed after ctx
// is done.
func (v *Value[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	v.mu.Lock()
	ch <- v.value
	v.subscribers[ch] = struct{}{}
	v.mu.Unlock()

	go func() {
		<-ctx.Done()
		v.mu.Lock()
		delete(v.subscribers, ch)
		close(ch)
		v.mu.Unlock()
	}()
	return ch
}

// Await blocks until the value satisfies pred or ctx is done.
func (v *Value[T]) Await(ctx context.Context, pred func(T) bool) (T, error) {
	if current := v.Get(); pred(current) {
		return current, nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for value := range v.Subscribe(subCtx) {
		if pred(value) {
			return value, nil
		}
	}
	var zero T
	return zero, ctx.Err()
}
