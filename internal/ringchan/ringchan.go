// Package ringchan provides a bounded channel that never blocks producers.
package ringchan

import "sync/atomic"

// RingChannel is a buffered channel with overwrite-oldest semantics:
// when the buffer is full, Send discards the oldest element to make room.
//
//	rc := ringchan.New[int](3)
//	for i := 0; i < 10; i++ {
//	    rc.Send(i)
//	}
//	// rc.C() now yields 7, 8, 9
type RingChannel[T any] struct {
	ch      chan T
	written atomic.Int64
	dropped atomic.Int64
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. Consumers may range over it until Close.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest element if the buffer is full.
// It reports whether an element was dropped. Send panics after Close.
func (rc *RingChannel[T]) Send(v T) bool {
	dropped := false
	for {
		select {
		case rc.ch <- v:
			rc.written.Add(1)
			return dropped
		default:
		}
		select {
		case <-rc.ch:
			rc.dropped.Add(1)
			dropped = true
		default:
			// a consumer drained the buffer in between; retry the send
		}
	}
}

// TryReceive returns the oldest element without blocking.
func (rc *RingChannel[T]) TryReceive() (T, bool) {
	select {
	case v, ok := <-rc.ch:
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int { return len(rc.ch) }

// Cap returns the buffer capacity.
func (rc *RingChannel[T]) Cap() int { return cap(rc.ch) }

// Written returns the number of accepted elements.
func (rc *RingChannel[T]) Written() int64 { return rc.written.Load() }

// Dropped returns the number of elements discarded to make room.
func (rc *RingChannel[T]) Dropped() int64 { return rc.dropped.Load() }

// Close closes the receive side.
func (rc *RingChannel[T]) Close() {
	close(rc.ch)
}
