package rlm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tinychat-dev/tinychat/internal/admission"
	"github.com/tinychat-dev/tinychat/internal/chatlog"
	"github.com/tinychat-dev/tinychat/internal/config"
	"github.com/tinychat-dev/tinychat/internal/llm"
	"github.com/tinychat-dev/tinychat/internal/tracing"
	"github.com/tinychat-dev/tinychat/pkg/protocol"
)

const (
	// pollInterval paces the consumer's deadline checks while the
	// bridge is quiet.
	pollInterval = 100 * time.Millisecond
	// cancelGrace is how long the consumer waits for the worker to
	// honor a cancellation before emitting the timeout itself.
	cancelGrace = 500 * time.Millisecond

	startupVerbose = "> [RLM Startup...]\n\n"
	startupBrief   = "🧠 *RLM is thinking...*\n\n"
	finalHeader    = "\n\n---\n### ✅ Final Answer\n\n"
)

// StreamRequest is one admitted RLM chat turn.
type StreamRequest struct {
	Messages        []llm.Message
	Model           string
	Temperature     float64
	ShowThinking    bool
	DocumentContext string
	SessionID       string
}

// Service runs admitted agent loops and streams their progress. One
// Stream call owns one worker goroutine for its whole lifetime.
type Service struct {
	cfg       *config.Store
	client    *llm.Client
	admission *admission.Controller
	log       chatlog.Sink
	tracer    *tracing.Collector

	// replaced in tests to script the model side
	newBackend func(model string, temperature float64) Backend
}

// NewService wires the RLM service. log and tracer may be nil.
func NewService(cfg *config.Store, client *llm.Client, ctrl *admission.Controller, log chatlog.Sink, tracer *tracing.Collector) *Service {
	s := &Service{
		cfg:       cfg,
		client:    client,
		admission: ctrl,
		log:       log,
		tracer:    tracer,
	}
	s.newBackend = func(model string, temperature float64) Backend {
		return llm.NewCodeBackend(client, model, temperature)
	}
	return s
}

// Stream runs the agent loop for one request and renders its progress
// through emit. Every call ends with either a final content frame or an
// error frame; admission slots are released on every exit path.
func (s *Service) Stream(ctx context.Context, req StreamRequest, emit func(protocol.Frame) error) {
	cfg := s.cfg.Get()
	timeout := cfg.RLM.Timeout()
	timeoutSecs := int(timeout.Seconds())

	s.admission.AcquireGeneration()
	defer s.admission.ReleaseGeneration()

	if !s.client.Configured() {
		slog.Warn("rlm: request rejected", "code", protocol.ErrBackendUnavailable, "session_id", req.SessionID)
		_ = emit(protocol.ErrorFrame("RLM backend is not configured"))
		return
	}
	if !s.admission.TryAcquireLoop() {
		slog.Warn("rlm: request rejected", "code", protocol.ErrCapacityExceeded, "session_id", req.SessionID)
		_ = emit(protocol.ErrorFrame("Too many concurrent RLM requests. Please try again later."))
		return
	}
	defer s.admission.ReleaseLoop()

	slog.Info("rlm: generation request",
		"model", req.Model, "session_id", req.SessionID,
		"active_loops", s.admission.ActiveLoops())

	startup := startupBrief
	if req.ShowThinking {
		startup = startupVerbose
	}
	if err := emit(protocol.ContentFrame(startup)); err != nil {
		return
	}

	query := llm.LastUserContent(req.Messages)
	contextCount := 1
	if req.DocumentContext != "" {
		query = fmt.Sprintf("Consider the context below, and answer the prompt:\n\n<CONTEXT>\n%s\n</CONTEXT>\n\nPROMPT:\n%s",
			req.DocumentContext, query)
		contextCount = 2
	}

	sup := NewSupervisor(timeout)
	bridge := NewBridge()
	traceID := uuid.New()
	runStart := time.Now()

	// The worker outlives the request context on purpose: cancellation
	// flows through the supervisor so the worker can stop at a safe
	// checkpoint instead of being torn down mid-execution.
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()

	d := &driver{
		backend:       s.newBackend(req.Model, req.Temperature),
		bridge:        bridge,
		sup:           sup,
		query:         query,
		maxIterations: cfg.RLM.MaxIterations,
		contextCount:  contextCount,
		verbose:       req.ShowThinking,
		tracer:        s.tracer,
		traceID:       traceID,
		model:         req.Model,
	}
	go d.run(workerCtx)

	transcript := startup
	status := "ok"
	errMsg := ""
	defer func() {
		s.recordRun(traceID, req, runStart, status, errMsg, transcript)
		if s.log != nil && transcript != "" {
			s.log.Log(chatlog.Entry{
				Timestamp:   time.Now().UTC(),
				SessionID:   req.SessionID,
				Model:       req.Model + "-rlm",
				Temperature: req.Temperature,
				Messages:    req.Messages,
				Response:    transcript,
			})
		}
	}()

	send := func(f protocol.Frame) bool {
		if err := emit(f); err != nil {
			slog.Debug("rlm: client gone, cancelling loop", "error", err)
			sup.RequestCancel()
			cancelWorker()
			return false
		}
		return true
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-bridge.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case protocol.EventStatus, protocol.EventUpdate:
				if req.ShowThinking {
					if !send(protocol.ContentFrame(ev.Content)) {
						return
					}
					transcript += ev.Content
				}
			case protocol.EventBriefStatus:
				if !send(protocol.StatusFrame(ev.Content)) {
					return
				}
			case protocol.EventFinal:
				content := ev.Content
				if req.ShowThinking {
					content = finalHeader + content
				}
				if !send(protocol.ContentFrame(content)) {
					return
				}
				transcript += content
			case protocol.EventError:
				status = "error"
				errMsg = ev.Content
				slog.Warn("rlm: loop failed", "code", ev.Code, "session_id", req.SessionID)
				send(protocol.ErrorFrame(ev.Content))
			}
			if ev.Terminal() {
				return
			}

		case <-ticker.C:
			if !sup.Expired() {
				continue
			}
			if sup.RequestCancel() {
				slog.Warn("rlm: timeout detected", "timeout_s", timeoutSecs, "session_id", req.SessionID)
			}
			if !sup.Finished() {
				select {
				case <-sup.Done():
				case <-time.After(cancelGrace):
				}
			}
			status = "error"
			errMsg = fmt.Sprintf("RLM execution timeout (%ds)", timeoutSecs)
			slog.Warn("rlm: loop failed", "code", protocol.ErrTimeout, "session_id", req.SessionID)
			send(protocol.ErrorFrame(errMsg))
			return

		case <-ctx.Done():
			sup.RequestCancel()
			cancelWorker()
			status = "error"
			errMsg = "client disconnected"
			return
		}
	}
}

func (s *Service) recordRun(traceID uuid.UUID, req StreamRequest, start time.Time, status, errMsg, transcript string) {
	if s.tracer == nil {
		return
	}
	s.tracer.Record(tracing.SpanData{
		TraceID:       traceID,
		SpanType:      "rlm_run",
		Name:          "rlm run",
		Model:         req.Model,
		SessionID:     req.SessionID,
		Status:        status,
		Error:         errMsg,
		OutputPreview: transcript,
		StartTime:     start,
		DurationMS:    int(time.Since(start).Milliseconds()),
	})
}
