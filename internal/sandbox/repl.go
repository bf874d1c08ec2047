// Package sandbox provides the in-process JavaScript REPL the agent
// loop executes code in. One REPL lives for one request; globals
// persist across executions within that request so later iterations
// can build on earlier results.
package sandbox

import (
	"context"
	"strings"

	"github.com/dop251/goja"
)

// Result is the captured outcome of one code execution.
type Result struct {
	Stdout string
	Stderr string
}

// REPL wraps a goja runtime with print capture and live binding reads.
// Not safe for concurrent use; each agent loop owns its own REPL.
type REPL struct {
	vm  *goja.Runtime
	out strings.Builder
}

// NewREPL creates a runtime with print() and console.log() wired to the
// capture buffer.
func NewREPL() *REPL {
	r := &REPL{vm: goja.New()}
	r.vm.Set("print", r.print)
	console := r.vm.NewObject()
	console.Set("log", r.print)
	r.vm.Set("console", console)
	return r
}

func (r *REPL) print(call goja.FunctionCall) goja.Value {
	parts := make([]string, 0, len(call.Arguments))
	for _, a := range call.Arguments {
		parts = append(parts, a.String())
	}
	r.out.WriteString(strings.Join(parts, " "))
	r.out.WriteByte('\n')
	return goja.Undefined()
}

// Execute runs source and returns everything printed during the run.
// A thrown error or syntax error lands in Stderr; the run never panics
// the caller. Cancelling ctx interrupts a running script, so a
// non-terminating code block cannot pin the goroutine past its
// request: the interrupted run reports the cancellation in Stderr and
// the runtime stays usable afterwards.
func (r *REPL) Execute(ctx context.Context, source string) Result {
	r.out.Reset()

	done := make(chan struct{})
	watcher := make(chan struct{})
	go func() {
		defer close(watcher)
		select {
		case <-ctx.Done():
			r.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	_, err := r.vm.RunString(source)
	close(done)
	<-watcher
	r.vm.ClearInterrupt()

	res := Result{Stdout: r.out.String()}
	if err != nil {
		res.Stderr = err.Error()
	}
	return res
}

// ReadBinding returns the string form of a live global binding, or
// false when the name is not a valid identifier or nothing is bound to
// it. Top-level let/const bindings are not visible here; callers fall
// back to a print probe for those.
func (r *REPL) ReadBinding(name string) (string, bool) {
	if !IsIdentifier(name) {
		return "", false
	}
	v := r.vm.GlobalObject().Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", false
	}
	return v.String(), true
}

// IsIdentifier reports whether s is a syntactically valid bare
// identifier. Only such names are ever eligible for binding probes;
// anything else would mean executing attacker-shaped code.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_' || c == '$':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
