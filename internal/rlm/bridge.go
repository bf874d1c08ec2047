// Package rlm drives the code-executing agent loop behind RLM chat
// requests: a worker goroutine iterates prompt, completion and code
// execution while the request handler consumes progress events and
// renders them to the client stream.
package rlm

import (
	"sync"

	"github.com/tinychat-dev/tinychat/pkg/protocol"
)

const bridgeCapacity = 64

// Bridge carries loop progress events from the single worker goroutine
// to the single stream consumer. Events arrive in emission order, each
// delivered at most once; closing ends the stream after buffered events
// drain.
type Bridge struct {
	ch        chan protocol.Event
	closeOnce sync.Once
}

// NewBridge creates a bridge with a fixed buffer. A full buffer blocks
// the worker rather than dropping events.
func NewBridge() *Bridge {
	return &Bridge{ch: make(chan protocol.Event, bridgeCapacity)}
}

// Push enqueues an event for the consumer. Only the worker goroutine
// calls Push, and never after Close.
func (b *Bridge) Push(ev protocol.Event) {
	b.ch <- ev
}

// Events returns the consumer side. The channel closes after the last
// event once the worker is done; buffered events are never lost.
func (b *Bridge) Events() <-chan protocol.Event {
	return b.ch
}

// Close ends the stream. Idempotent.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() { close(b.ch) })
}
