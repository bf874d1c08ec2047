package rlm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tinychat-dev/tinychat/internal/llm"
	"github.com/tinychat-dev/tinychat/internal/sandbox"
	"github.com/tinychat-dev/tinychat/internal/tracing"
	"github.com/tinychat-dev/tinychat/pkg/protocol"
)

// Backend is the capability set the loop runs against: completions from
// a model, code execution in a sandbox, and binding introspection.
// llm.CodeBackend is the production implementation.
type Backend interface {
	GenerateCompletion(ctx context.Context, history []llm.Message) (llm.Iteration, error)
	ExecuteCode(ctx context.Context, source string) (sandbox.Result, error)
	ReadBinding(name string) (string, bool)
}

// driver owns one loop run. It is the sole producer on the bridge and
// the only goroutine touching the backend's sandbox.
type driver struct {
	backend Backend
	bridge  *Bridge
	sup     *Supervisor

	query         string
	maxIterations int
	contextCount  int
	verbose       bool

	tracer  *tracing.Collector
	traceID uuid.UUID
	model   string
}

// run executes the bounded agent loop. It always pushes exactly one
// terminal event and closes the bridge before marking itself done, in
// that order, whatever exit path is taken.
func (d *driver) run(ctx context.Context) {
	defer d.sup.MarkDone()
	defer d.bridge.Close()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("rlm: worker panic", "panic", r)
			d.bridge.Push(protocol.Event{
				Kind:    protocol.EventError,
				Content: fmt.Sprintf("RLM Worker Error: %v", r),
				Code:    protocol.ErrWorkerError,
			})
		}
	}()

	resolve := func(s string) string { return resolveValue(ctx, d.backend, s) }
	timeoutSecs := int(d.sup.Timeout().Seconds())

	history := setupPrompt(d.query)
	histEntries := 0

	for i := 0; i < d.maxIterations; i++ {
		if d.sup.Cancelled() {
			d.bridge.Push(protocol.Event{
				Kind:    protocol.EventError,
				Content: fmt.Sprintf("RLM execution cancelled (timeout: %ds)", timeoutSecs),
				Code:    protocol.ErrTimeout,
			})
			return
		}
		if d.sup.Expired() {
			d.bridge.Push(protocol.Event{
				Kind:    protocol.EventError,
				Content: fmt.Sprintf("RLM timeout after %ds", timeoutSecs),
				Code:    protocol.ErrTimeout,
			})
			return
		}

		prompt := append(append([]llm.Message{}, history...),
			buildIterationPrompt(i, d.contextCount, histEntries))

		if d.verbose {
			d.bridge.Push(protocol.Event{
				Kind:    protocol.EventStatus,
				Content: fmt.Sprintf("\n\n---\n#### 🧠 Iteration %d Thinking\n", i+1),
			})
		} else {
			d.bridge.Push(protocol.Event{
				Kind:    protocol.EventBriefStatus,
				Content: fmt.Sprintf("Iteration %d...", i+1),
			})
		}

		turnStart := time.Now()
		it, err := d.backend.GenerateCompletion(ctx, prompt)
		d.recordIteration(i, it, turnStart, err)
		if err != nil {
			d.bridge.Push(protocol.Event{
				Kind:    protocol.EventError,
				Content: fmt.Sprintf("RLM Worker Error: %v", err),
				Code:    protocol.ErrWorkerError,
			})
			return
		}

		var execOutputs string
		for _, cb := range it.CodeBlocks {
			if cb.Result.Stdout != "" {
				execOutputs += cb.Result.Stdout + "\n"
			}
		}

		d.bridge.Push(protocol.Event{
			Kind:    protocol.EventUpdate,
			Content: renderUpdate(it, resolve),
		})

		final, found := FindFinalAnswer(it.Response)
		if !found {
			final, found = fallbackFinalAnswer(it.Response, execOutputs)
		}
		if found {
			d.bridge.Push(protocol.Event{
				Kind:    protocol.EventFinal,
				Content: resolve(final),
			})
			return
		}

		history = append(history, formatIteration(it)...)
		histEntries++
	}

	d.bridge.Push(protocol.Event{
		Kind:    protocol.EventError,
		Content: fmt.Sprintf("RLM reached iteration limit (%d) without a final answer", d.maxIterations),
		Code:    protocol.ErrIterationLimit,
	})
}

func (d *driver) recordIteration(i int, it llm.Iteration, start time.Time, err error) {
	if d.tracer == nil {
		return
	}
	span := tracing.SpanData{
		TraceID:    d.traceID,
		SpanType:   "iteration",
		Name:       fmt.Sprintf("iteration %d", i+1),
		Model:      d.model,
		Iteration:  i + 1,
		Status:     "ok",
		StartTime:  start,
		DurationMS: int(time.Since(start).Milliseconds()),
	}
	if err != nil {
		span.Status = "error"
		span.Error = err.Error()
	} else {
		span.OutputPreview = it.Response
		if d.tracer.Verbose() && d.query != "" {
			span.InputPreview = d.query
		}
	}
	d.tracer.Record(span)
}
