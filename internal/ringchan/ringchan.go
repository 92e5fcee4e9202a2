package ringchan

import "sync/atomic"

// Ring is a bounded channel-like buffer.
//
// It wraps an underlying buffered channel so that producers never block
// indefinitely: Send discards the oldest element when the buffer is full,
// TrySend refuses the new element instead. The agent event queue uses Send
// (an event loop must never stall its producers); the pending-log queue uses
// TrySend (a full queue rejects further log ids instead of evicting one).
//
// Readers can use C() for a plain <-chan T, or Receive()/TryReceive() for
// metrics tracking.
type Ring[T any] struct {
	ch      chan T
	metrics Metrics
}

// New creates a Ring with the given capacity.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Ring[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
// Consumers can range over this until it is closed.
//
// Reads via C() bypass metrics tracking; the Processed counter is only
// incremented by Receive() and TryReceive().
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// Send inserts an item. If the buffer is full, it discards the oldest.
// This call always succeeds and never blocks indefinitely.
func (r *Ring[T]) Send(v T) {
	select {
	case r.ch <- v:
		r.metrics.addWritten(1)
	default:
		<-r.ch // drop oldest
		r.metrics.addOverwritten(1)
		r.ch <- v
		r.metrics.addWritten(1)
	}
}

// TrySend attempts to insert without blocking.
// Returns true if successful, false if the buffer is full.
func (r *Ring[T]) TrySend(v T) bool {
	select {
	case r.ch <- v:
		r.metrics.addWritten(1)
		return true
	default:
		return false
	}
}

// Receive blocks until a value is available or the channel is closed.
// The ok result is false if the channel is closed.
func (r *Ring[T]) Receive() (v T, ok bool) {
	v, ok = <-r.ch
	if ok {
		r.metrics.addProcessed(1)
	}
	return
}

// TryReceive attempts a non-blocking receive.
// Returns (zero, false) if no value is ready.
func (r *Ring[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-r.ch:
		if ok {
			r.metrics.addProcessed(1)
		}
		return
	default:
		var zero T
		return zero, false
	}
}

// Drain discards all buffered elements and returns how many were dropped.
func (r *Ring[T]) Drain() int {
	n := 0
	for {
		select {
		case <-r.ch:
			n++
		default:
			return n
		}
	}
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	return len(r.ch)
}

// Cap returns the channel capacity.
func (r *Ring[T]) Cap() int {
	return cap(r.ch)
}

// Close closes the underlying channel. After this, Send panics.
func (r *Ring[T]) Close() {
	close(r.ch)
}

// GetMetrics returns a snapshot of current metrics values.
// All reads are atomic and thread-safe.
func (r *Ring[T]) GetMetrics() Metrics {
	return Metrics{
		Processed:   atomic.LoadInt64(&r.metrics.Processed),
		Written:     atomic.LoadInt64(&r.metrics.Written),
		Overwritten: atomic.LoadInt64(&r.metrics.Overwritten),
	}
}

// Metrics provides lock-free counters for a Ring.
type Metrics struct {
	Processed   int64
	Written     int64
	Overwritten int64
}

func (m *Metrics) addProcessed(n int) {
	atomic.AddInt64(&m.Processed, int64(n))
}

func (m *Metrics) addWritten(n int) {
	atomic.AddInt64(&m.Written, int64(n))
}

func (m *Metrics) addOverwritten(n int) {
	atomic.AddInt64(&m.Overwritten, int64(n))
}
