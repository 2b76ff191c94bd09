// Package coalesce provides a single-slot, latest-wins channel.
//
// Every message the plugins exchange is a complete snapshot, never a
// delta, so an unread value is made stale by the next send and can be
// dropped. Chan keeps at most one pending value: Send overwrites an
// unread snapshot instead of blocking, and the consumer always sees the
// newest one.
package coalesce

import "sync/atomic"

type Chan[T any] struct {
	slot   chan T
	done   chan struct{}
	closed atomic.Bool
}

func New[T any]() *Chan[T] {
	return &Chan[T]{
		slot: make(chan T, 1),
		done: make(chan struct{}),
	}
}

// Send publishes v without blocking the producer. If an unread value is
// still in the slot it is discarded first. Sends after Close are dropped.
func (c *Chan[T]) Send(v T) {
	for {
		if c.closed.Load() {
			return
		}
		select {
		case c.slot <- v:
			return
		case <-c.done:
			return
		default:
		}
		// Slot holds a stale snapshot, drop it and retry.
		select {
		case <-c.slot:
		default:
		}
	}
}

// Recv exposes the read side. A blocking receive yields the newest
// pending value; consumers that must not block select with a default
// case or use TryRecv.
func (c *Chan[T]) Recv() <-chan T {
	return c.slot
}

// TryRecv returns the pending value, if any, without blocking.
func (c *Chan[T]) TryRecv() (T, bool) {
	select {
	case v := <-c.slot:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Close stops the channel. It is safe to call more than once and safe to
// call concurrently with Send.
func (c *Chan[T]) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.done)
	}
}
