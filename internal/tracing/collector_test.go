package tracing

import (
	"context"
	"sync"
	"testing"
	"time"
)

type captureExporter struct {
	mu    sync.Mutex
	spans []SpanData
}

func (c *captureExporter) ExportSpans(_ context.Context, spans []SpanData) {
	c.mu.Lock()
	c.spans = append(c.spans, spans...)
	c.mu.Unlock()
}

func (c *captureExporter) Shutdown(context.Context) error { return nil }

func (c *captureExporter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spans)
}

func TestCollector_FlushesOnStop(t *testing.T) {
	exp := &captureExporter{}
	c := NewCollector()
	c.SetExporter(exp)
	c.Start()

	c.Record(SpanData{SpanType: "llm_call", Name: "completion"})
	c.Record(SpanData{SpanType: "iteration", Name: "iteration 1"})

	c.Stop()

	if got := exp.count(); got != 2 {
		t.Fatalf("expected 2 spans exported, got %d", got)
	}
	exp.mu.Lock()
	defer exp.mu.Unlock()
	for _, s := range exp.spans {
		if s.ID.String() == "00000000-0000-0000-0000-000000000000" {
			t.Error("expected span ID to be assigned")
		}
		if s.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be set")
		}
	}
}

func TestCollector_RecordNonBlockingWhenFull(t *testing.T) {
	c := NewCollector()
	// No Start: nothing drains the buffer.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < defaultBufferSize+10; i++ {
			c.Record(SpanData{SpanType: "code_exec", Name: "exec"})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}
}

func TestCollector_NilReceiver(t *testing.T) {
	var c *Collector
	c.Record(SpanData{Name: "noop"}) // must not panic
}

func TestTruncatePreview(t *testing.T) {
	short := "hello"
	if got := truncatePreview(short); got != short {
		t.Errorf("short preview changed: %q", got)
	}
	long := make([]byte, previewMaxLen*2)
	for i := range long {
		long[i] = 'a'
	}
	got := truncatePreview(string(long))
	if len(got) != previewMaxLen+3 {
		t.Errorf("expected truncated length %d, got %d", previewMaxLen+3, len(got))
	}
}
