// Package chatlog persists finished conversations. Logging is
// fire-and-forget: a broken sink never fails a chat request.
package chatlog

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tinychat-dev/tinychat/internal/llm"
)

// logBuffer bounds entries waiting for storage; overflow is dropped.
const logBuffer = 256

// Entry is one logged conversation: the prompt history that was sent
// and the full assistant response that came back.
type Entry struct {
	Timestamp   time.Time     `json:"timestamp"`
	SessionID   string        `json:"session_id,omitempty"`
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []llm.Message `json:"messages"`
	Response    string        `json:"response"`
}

// Sink receives finished conversations. Log must not block the caller
// on slow storage and must swallow storage errors.
type Sink interface {
	Log(Entry)
	Close() error
}

// writer is the synchronous storage side of a sink.
type writer interface {
	write(Entry)
	Close() error
}

// Open picks a sink from the chat log destination string:
//
//	""               logging disabled
//	"sqlite:path"    SQLite database at path
//	"postgres://…"   PostgreSQL via DSN
//	anything else    JSONL file at that path
func Open(dest string) (Sink, error) {
	var (
		w   writer
		err error
	)
	switch {
	case dest == "":
		return nopSink{}, nil
	case strings.HasPrefix(dest, "sqlite:"):
		w, err = openSQL("sqlite", strings.TrimPrefix(dest, "sqlite:"))
	case strings.HasPrefix(dest, "postgres://") || strings.HasPrefix(dest, "postgresql://"):
		w, err = openSQL("pgx", dest)
	default:
		w, err = openFile(dest)
	}
	if err != nil {
		return nil, err
	}
	return newAsyncSink(w), nil
}

type nopSink struct{}

func (nopSink) Log(Entry) {}

func (nopSink) Close() error { return nil }

// asyncSink decouples Log from storage latency: entries flow through a
// buffered channel to one writer goroutine. A full buffer drops the
// entry rather than stalling the handler.
type asyncSink struct {
	w    writer
	ch   chan Entry
	stop chan struct{}
	done chan struct{}

	stopOnce sync.Once
}

func newAsyncSink(w writer) *asyncSink {
	s := &asyncSink{
		w:    w,
		ch:   make(chan Entry, logBuffer),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *asyncSink) pump() {
	defer close(s.done)
	for {
		select {
		case e := <-s.ch:
			s.w.write(e)
		case <-s.stop:
			// drain whatever arrived before the stop
			for {
				select {
				case e := <-s.ch:
					s.w.write(e)
				default:
					return
				}
			}
		}
	}
}

func (s *asyncSink) Log(e Entry) {
	select {
	case s.ch <- e:
	default:
		slog.Warn("chatlog: buffer full, entry dropped", "model", e.Model)
	}
}

// Close flushes buffered entries and closes the underlying store.
func (s *asyncSink) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return s.w.Close()
}
