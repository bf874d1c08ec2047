package rlm

import (
	"context"
	"regexp"
	"strings"

	"github.com/tinychat-dev/tinychat/internal/sandbox"
)

// finalRe matches the explicit completion markers the model is prompted
// to emit: FINAL(answer) or FINAL_VAR(binding).
var finalRe = regexp.MustCompile(`(?s)FINAL(?:_VAR)?\((.*?)\)`)

// FindFinalAnswer extracts the payload of the first completion marker
// in a model response.
func FindFinalAnswer(response string) (string, bool) {
	m := finalRe.FindStringSubmatch(response)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// fallbackFinalAnswer handles models that announce completion in prose
// instead of emitting a marker. When the response claims to be done,
// accumulated execution output is preferred as the answer and the raw
// response is the last resort.
func fallbackFinalAnswer(response, execOutputs string) (string, bool) {
	lower := strings.ToLower(response)
	if !strings.Contains(lower, "final answer") && !strings.Contains(lower, "completed") {
		return "", false
	}
	if out := strings.TrimSpace(execOutputs); out != "" {
		return out, true
	}
	return response, true
}

// resolveValue normalizes a marker payload: strip whitespace and quote
// wrapping, then, if the remainder is a bare identifier, dereference it
// against the sandbox. Direct binding reads come first; a print probe
// covers let/const bindings the global object cannot see. Probes on a
// missing name leave an error in stderr and the literal text is kept,
// so resolution is idempotent.
func resolveValue(ctx context.Context, backend Backend, raw string) string {
	v := strings.TrimSpace(raw)
	v = strings.Trim(v, `"'`)
	if !sandbox.IsIdentifier(v) {
		return v
	}
	if val, ok := backend.ReadBinding(v); ok {
		return val
	}
	res, err := backend.ExecuteCode(ctx, "print("+v+")")
	if err == nil && res.Stderr == "" {
		return strings.TrimSpace(res.Stdout)
	}
	return v
}
