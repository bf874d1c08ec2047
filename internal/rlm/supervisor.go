package rlm

import (
	"sync"
	"sync/atomic"
	"time"
)

// Supervisor tracks one loop's deadline and cancellation state. The
// worker checks it cooperatively between iterations; the consumer holds
// the authoritative deadline and can request cancellation from its side.
type Supervisor struct {
	start   time.Time
	timeout time.Duration

	cancelled atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once
}

// NewSupervisor starts the clock for a loop bounded by timeout.
func NewSupervisor(timeout time.Duration) *Supervisor {
	return &Supervisor{
		start:   time.Now(),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// Elapsed returns time since the loop was admitted.
func (s *Supervisor) Elapsed() time.Duration {
	return time.Since(s.start)
}

// Expired reports whether the deadline has passed.
func (s *Supervisor) Expired() bool {
	return s.Elapsed() > s.timeout
}

// Timeout returns the configured deadline.
func (s *Supervisor) Timeout() time.Duration {
	return s.timeout
}

// RequestCancel asks the worker to stop at its next checkpoint. Returns
// true on the first call, false on every later one.
func (s *Supervisor) RequestCancel() bool {
	return s.cancelled.CompareAndSwap(false, true)
}

// Cancelled reports whether cancellation has been requested.
func (s *Supervisor) Cancelled() bool {
	return s.cancelled.Load()
}

// MarkDone records that the worker has exited. Idempotent.
func (s *Supervisor) MarkDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Done is closed when the worker has exited.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Finished reports whether the worker has exited, without blocking.
func (s *Supervisor) Finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
