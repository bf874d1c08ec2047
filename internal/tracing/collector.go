package tracing

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultBufferSize    = 1000
	previewMaxLen        = 500
)

// SpanData records a single unit of work inside an RLM run: the run
// itself, one reasoning iteration, an LLM call, or a code execution.
type SpanData struct {
	ID           uuid.UUID
	TraceID      uuid.UUID
	ParentSpanID *uuid.UUID

	SpanType string // "rlm_run", "iteration", "llm_call", "code_exec"
	Name     string

	Model     string
	SessionID string
	Iteration int

	InputTokens  int
	OutputTokens int

	InputPreview  string
	OutputPreview string

	Status string // "ok" or "error"
	Error  string

	StartTime  time.Time
	EndTime    *time.Time
	DurationMS int
	CreatedAt  time.Time
}

// SpanExporter is implemented by backends that receive finished spans
// (e.g. OpenTelemetry OTLP). Keeping this as an interface lets the OTel
// dependency live in a separate sub-package behind a build tag.
type SpanExporter interface {
	ExportSpans(ctx context.Context, spans []SpanData)
	Shutdown(ctx context.Context) error
}

// Collector buffers spans in memory and periodically flushes them to the
// attached exporter in batches. When no exporter is attached, flushed
// spans are discarded; recording stays cheap either way so RLM code can
// emit spans unconditionally.
type Collector struct {
	spanCh chan SpanData
	stopCh chan struct{}
	wg     sync.WaitGroup

	verbose bool // when true, spans include full LLM input previews

	mu       sync.Mutex
	exporter SpanExporter // optional external exporter (nil = disabled)
}

// NewCollector creates a tracing collector.
// Set TINYCHAT_TRACE_VERBOSE=1 to include full LLM input in spans.
func NewCollector() *Collector {
	verbose := os.Getenv("TINYCHAT_TRACE_VERBOSE") != ""
	if verbose {
		slog.Info("tracing: verbose mode enabled (TINYCHAT_TRACE_VERBOSE)")
	}
	return &Collector{
		spanCh:  make(chan SpanData, defaultBufferSize),
		stopCh:  make(chan struct{}),
		verbose: verbose,
	}
}

// Verbose returns true if verbose tracing is enabled.
func (c *Collector) Verbose() bool { return c.verbose }

// SetExporter attaches an external span exporter.
func (c *Collector) SetExporter(exp SpanExporter) {
	c.mu.Lock()
	c.exporter = exp
	c.mu.Unlock()
}

// Start begins the background flush loop.
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.flushLoop()
	slog.Info("tracing collector started")
}

// Stop gracefully shuts down the collector, flushing remaining spans.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()

	c.mu.Lock()
	exp := c.exporter
	c.mu.Unlock()
	if exp != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := exp.Shutdown(ctx); err != nil {
			slog.Warn("tracing: span exporter shutdown failed", "error", err)
		}
	}

	slog.Info("tracing collector stopped")
}

// Record enqueues a span for async export.
// Non-blocking: drops the span if the buffer is full.
func (c *Collector) Record(span SpanData) {
	if c == nil {
		return
	}
	if span.ID == uuid.Nil {
		span.ID = uuid.New()
	}
	if span.CreatedAt.IsZero() {
		span.CreatedAt = time.Now().UTC()
	}
	span.InputPreview = truncatePreview(span.InputPreview)
	span.OutputPreview = truncatePreview(span.OutputPreview)

	select {
	case c.spanCh <- span:
	default:
		slog.Warn("tracing: span buffer full, dropping span",
			"span_type", span.SpanType, "name", span.Name)
	}
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(defaultFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stopCh:
			// Drain remaining spans
			c.flush()
			return
		}
	}
}

func (c *Collector) flush() {
	var spans []SpanData
	for {
		select {
		case span := <-c.spanCh:
			spans = append(spans, span)
		default:
			goto done
		}
	}
done:

	if len(spans) == 0 {
		return
	}

	c.mu.Lock()
	exp := c.exporter
	c.mu.Unlock()
	if exp == nil {
		slog.Debug("tracing: no exporter attached, discarding spans", "count", len(spans))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exp.ExportSpans(ctx, spans)
	slog.Debug("tracing: flushed spans", "count", len(spans))
}

func truncatePreview(s string) string {
	if len(s) <= previewMaxLen {
		return s
	}
	return s[:previewMaxLen] + "..."
}
