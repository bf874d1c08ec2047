package llm

import (
	"context"
	"regexp"

	"github.com/tinychat-dev/tinychat/internal/sandbox"
)

// Iteration is one completion turn of the agent loop: the model's raw
// reply plus every fenced code block found in it, already executed.
type Iteration struct {
	Response   string
	CodeBlocks []CodeBlock
}

// CodeBlock pairs extracted source with its captured execution result.
type CodeBlock struct {
	Code   string
	Result sandbox.Result
}

// completer is the slice of Client the backend needs; narrowed for
// tests that script the model side.
type completer interface {
	Complete(ctx context.Context, msgs []Message, model string, temperature float64) (string, error)
}

var fenceRe = regexp.MustCompile("(?s)```(?:js|javascript|repl)[ \t]*\n(.*?)```")

// CodeBackend gives the agent loop its capability set: completions from
// the upstream model and code execution in a per-request sandbox.
type CodeBackend struct {
	client      completer
	repl        *sandbox.REPL
	model       string
	temperature float64
}

// NewCodeBackend creates a backend with a fresh sandbox. One backend
// serves exactly one agent loop; sandbox globals persist across its
// iterations and are gone when the loop ends.
func NewCodeBackend(client *Client, model string, temperature float64) *CodeBackend {
	return newCodeBackend(client, model, temperature)
}

func newCodeBackend(client completer, model string, temperature float64) *CodeBackend {
	return &CodeBackend{
		client:      client,
		repl:        sandbox.NewREPL(),
		model:       model,
		temperature: temperature,
	}
}

// GenerateCompletion asks the model for the next turn, then extracts
// and executes every fenced code block in the reply, in order.
func (b *CodeBackend) GenerateCompletion(ctx context.Context, history []Message) (Iteration, error) {
	text, err := b.client.Complete(ctx, history, b.model, b.temperature)
	if err != nil {
		return Iteration{}, err
	}

	it := Iteration{Response: text}
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		code := m[1]
		it.CodeBlocks = append(it.CodeBlocks, CodeBlock{
			Code:   code,
			Result: b.repl.Execute(ctx, code),
		})
	}
	return it, nil
}

// ExecuteCode runs source in the loop's sandbox. Cancelling ctx
// interrupts the script.
func (b *CodeBackend) ExecuteCode(ctx context.Context, source string) (sandbox.Result, error) {
	return b.repl.Execute(ctx, source), nil
}

// ReadBinding reads a live global from the loop's sandbox.
func (b *CodeBackend) ReadBinding(name string) (string, bool) {
	return b.repl.ReadBinding(name)
}
