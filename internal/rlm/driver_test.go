package rlm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tinychat-dev/tinychat/internal/llm"
	"github.com/tinychat-dev/tinychat/internal/sandbox"
	"github.com/tinychat-dev/tinychat/pkg/protocol"
)

// fakeBackend scripts the model side of the loop: each call returns the
// next prepared turn. Binding reads and print probes come out of a flat
// map.
type fakeBackend struct {
	turns    []llm.Iteration
	delay    time.Duration
	err      error
	bindings map[string]string
	calls    int
}

func (f *fakeBackend) GenerateCompletion(ctx context.Context, history []llm.Message) (llm.Iteration, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return llm.Iteration{}, ctx.Err()
		}
	}
	if f.err != nil {
		return llm.Iteration{}, f.err
	}
	if f.calls >= len(f.turns) {
		return llm.Iteration{Response: "still thinking"}, nil
	}
	it := f.turns[f.calls]
	f.calls++
	return it, nil
}

func (f *fakeBackend) ExecuteCode(_ context.Context, source string) (sandbox.Result, error) {
	name := strings.TrimSuffix(strings.TrimPrefix(source, "print("), ")")
	if v, ok := f.bindings[name]; ok {
		return sandbox.Result{Stdout: v + "\n"}, nil
	}
	return sandbox.Result{Stderr: name + " is not defined"}, nil
}

func (f *fakeBackend) ReadBinding(name string) (string, bool) {
	v, ok := f.bindings[name]
	return v, ok
}

func runDriver(t *testing.T, backend Backend, maxIterations int, sup *Supervisor) []protocol.Event {
	t.Helper()
	if sup == nil {
		sup = NewSupervisor(time.Minute)
	}
	bridge := NewBridge()
	d := &driver{
		backend:       backend,
		bridge:        bridge,
		sup:           sup,
		query:         "what is six times seven?",
		maxIterations: maxIterations,
		contextCount:  1,
		verbose:       true,
	}
	go d.run(context.Background())

	var events []protocol.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-bridge.Events():
			if !ok {
				if !sup.Finished() {
					t.Fatal("bridge closed before worker marked done")
				}
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("driver did not finish")
		}
	}
}

func countKind(events []protocol.Event, kind string) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func TestDriver_FinalOnThirdIteration(t *testing.T) {
	backend := &fakeBackend{
		turns: []llm.Iteration{
			{Response: "let me check"},
			{Response: "narrowing it down"},
			{Response: "got it: FINAL(42)"},
		},
	}
	events := runDriver(t, backend, 10, nil)

	if got := countKind(events, protocol.EventStatus); got != 3 {
		t.Errorf("status events = %d, want 3", got)
	}
	if got := countKind(events, protocol.EventUpdate); got != 3 {
		t.Errorf("update events = %d, want 3", got)
	}
	last := events[len(events)-1]
	if last.Kind != protocol.EventFinal || last.Content != "42" {
		t.Errorf("terminal event = %+v, want final 42", last)
	}
	if backend.calls != 3 {
		t.Errorf("backend calls = %d, want 3", backend.calls)
	}
}

func TestDriver_FinalVarResolvesBinding(t *testing.T) {
	backend := &fakeBackend{
		turns:    []llm.Iteration{{Response: "stored it. FINAL_VAR(result)"}},
		bindings: map[string]string{"result": "99"},
	}
	events := runDriver(t, backend, 10, nil)
	last := events[len(events)-1]
	if last.Kind != protocol.EventFinal || last.Content != "99" {
		t.Errorf("terminal event = %+v, want final 99", last)
	}
}

func TestDriver_FallbackPrefersExecutionOutput(t *testing.T) {
	backend := &fakeBackend{
		turns: []llm.Iteration{{
			Response: "The computation is completed.",
			CodeBlocks: []llm.CodeBlock{{
				Code:   "print(6 * 7)",
				Result: sandbox.Result{Stdout: "42\n"},
			}},
		}},
	}
	events := runDriver(t, backend, 10, nil)
	last := events[len(events)-1]
	if last.Kind != protocol.EventFinal || last.Content != "42" {
		t.Errorf("terminal event = %+v, want final 42", last)
	}
}

func TestDriver_IterationLimit(t *testing.T) {
	backend := &fakeBackend{} // never answers
	events := runDriver(t, backend, 2, nil)
	last := events[len(events)-1]
	if last.Kind != protocol.EventError {
		t.Fatalf("terminal event = %+v, want error", last)
	}
	if !strings.Contains(last.Content, "iteration limit (2)") {
		t.Errorf("error content = %q", last.Content)
	}
	if last.Code != protocol.ErrIterationLimit {
		t.Errorf("error code = %q, want %q", last.Code, protocol.ErrIterationLimit)
	}
	if got := countKind(events, protocol.EventStatus); got != 2 {
		t.Errorf("status events = %d, want 2", got)
	}
}

func TestDriver_BackendError(t *testing.T) {
	backend := &fakeBackend{err: errors.New("upstream exploded")}
	events := runDriver(t, backend, 10, nil)
	last := events[len(events)-1]
	if last.Kind != protocol.EventError || !strings.Contains(last.Content, "upstream exploded") {
		t.Errorf("terminal event = %+v", last)
	}
	if last.Code != protocol.ErrWorkerError {
		t.Errorf("error code = %q, want %q", last.Code, protocol.ErrWorkerError)
	}
}

func TestDriver_CancellationCheckedBeforeWork(t *testing.T) {
	sup := NewSupervisor(time.Minute)
	sup.RequestCancel()
	backend := &fakeBackend{}
	events := runDriver(t, backend, 10, sup)

	if backend.calls != 0 {
		t.Errorf("backend called %d times after cancellation", backend.calls)
	}
	last := events[len(events)-1]
	if last.Kind != protocol.EventError || !strings.Contains(last.Content, "cancelled") {
		t.Errorf("terminal event = %+v", last)
	}
}

func TestDriver_SelfCheckExpiry(t *testing.T) {
	sup := NewSupervisor(30 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	events := runDriver(t, &fakeBackend{}, 10, sup)
	last := events[len(events)-1]
	if last.Kind != protocol.EventError || !strings.Contains(last.Content, "timeout") {
		t.Errorf("terminal event = %+v", last)
	}
	if last.Code != protocol.ErrTimeout {
		t.Errorf("error code = %q, want %q", last.Code, protocol.ErrTimeout)
	}
}

func TestDriver_ExactlyOneTerminalEvent(t *testing.T) {
	backend := &fakeBackend{
		turns: []llm.Iteration{{Response: "FINAL(done) and also FINAL(again)"}},
	}
	events := runDriver(t, backend, 10, nil)
	terminals := 0
	for _, ev := range events {
		if ev.Terminal() {
			terminals++
		}
	}
	if terminals != 1 {
		t.Errorf("terminal events = %d, want exactly 1", terminals)
	}
	if events[len(events)-1].Content != "done" {
		t.Errorf("final content = %q, want first marker payload", events[len(events)-1].Content)
	}
}
