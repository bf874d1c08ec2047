package rlm

import (
	"context"
	"strings"
	"testing"

	"github.com/tinychat-dev/tinychat/internal/llm"
)

func TestFindFinalAnswer(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		found    bool
	}{
		{"literal", "done, FINAL(42)", "42", true},
		{"var marker", "FINAL_VAR(result)", "result", true},
		{"multiline payload", "FINAL(line one\nline two)", "line one\nline two", true},
		{"first of two", "FINAL(a) and FINAL(b)", "a", true},
		{"no marker", "still working on it", "", false},
		{"prose mention only", "the final answer will come later", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, found := FindFinalAnswer(tc.response)
			if found != tc.found || got != tc.want {
				t.Errorf("FindFinalAnswer(%q) = %q, %v; want %q, %v",
					tc.response, got, found, tc.want, tc.found)
			}
		})
	}
}

func TestFallbackFinalAnswer(t *testing.T) {
	// Announced completion with execution output: output wins.
	got, found := fallbackFinalAnswer("The final answer is below.", "42\n")
	if !found || got != "42" {
		t.Errorf("got %q, %v", got, found)
	}

	// Announced completion without output: response itself is the answer.
	resp := "Task completed successfully."
	got, found = fallbackFinalAnswer(resp, "")
	if !found || got != resp {
		t.Errorf("got %q, %v", got, found)
	}

	// No completion language: no fallback.
	if _, found := fallbackFinalAnswer("let me try another approach", "output"); found {
		t.Error("expected no fallback without completion language")
	}
}

func TestResolveValue(t *testing.T) {
	backend := newCodeBackendForTest(t)
	if _, err := backend.ExecuteCode(context.Background(), "answer = 99"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ctx := context.Background()
	if got := resolveValue(ctx, backend, "answer"); got != "99" {
		t.Errorf("bound identifier: got %q, want 99", got)
	}
	if got := resolveValue(ctx, backend, ` "quoted text" `); got != "quoted text" {
		t.Errorf("quoted literal: got %q", got)
	}
	if got := resolveValue(ctx, backend, "missing"); got != "missing" {
		t.Errorf("unbound identifier kept literal: got %q", got)
	}
	if got := resolveValue(ctx, backend, "not an identifier"); got != "not an identifier" {
		t.Errorf("non-identifier kept literal: got %q", got)
	}
	// Resolution is idempotent: resolving a resolved value is a no-op.
	if got := resolveValue(ctx, backend, resolveValue(ctx, backend, "answer")); got != "99" {
		t.Errorf("idempotence: got %q", got)
	}
}

func TestResolveValue_LetBindingViaProbe(t *testing.T) {
	backend := newCodeBackendForTest(t)
	if _, err := backend.ExecuteCode(context.Background(), "let hidden = 7;"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// let bindings are invisible to the global object; the print probe
	// still reaches them.
	if got := resolveValue(context.Background(), backend, "hidden"); got != "7" {
		t.Errorf("got %q, want 7", got)
	}
}

// newCodeBackendForTest builds a real sandbox-backed Backend without a
// configured model client; tests that reach it only execute code.
func newCodeBackendForTest(t *testing.T) Backend {
	t.Helper()
	return llm.NewCodeBackend(llm.NewClient("", ""), "test-model", 0)
}

func TestFinalMarkerRegex_NonGreedy(t *testing.T) {
	got, _ := FindFinalAnswer("FINAL(short) trailing ) paren")
	if got != "short" {
		t.Errorf("non-greedy match failed: %q", got)
	}
	if strings.Contains(got, ")") {
		t.Errorf("payload leaked a paren: %q", got)
	}
}
