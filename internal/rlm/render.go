package rlm

import (
	"fmt"
	"strings"

	"github.com/tinychat-dev/tinychat/internal/llm"
	"github.com/tinychat-dev/tinychat/internal/sandbox"
)

// renderUpdate turns a finished turn into the quoted markdown transcript
// streamed to clients that show thinking. Completion markers inside the
// reasoning are replaced with their resolved value in bold.
func renderUpdate(it llm.Iteration, resolve func(string) string) string {
	reasoning := strings.ReplaceAll(it.Response, "\n", "\n> ")
	reasoning = finalRe.ReplaceAllStringFunc(reasoning, func(m string) string {
		sub := finalRe.FindStringSubmatch(m)
		return "**" + resolve(sub[1]) + "**"
	})

	var b strings.Builder
	b.WriteString("\n> **Reasoning:**\n> ")
	b.WriteString(reasoning)
	b.WriteString("\n")

	for _, cb := range it.CodeBlocks {
		if strings.TrimSpace(cb.Code) == "" {
			continue
		}
		code := strings.ReplaceAll(strings.TrimRight(cb.Code, "\n"), "\n", "\n> ")
		out := captureOutput(cb, resolve)

		b.WriteString("\n> **REPL Code:**\n> ```js\n> ")
		b.WriteString(code)
		b.WriteString("\n> ```\n")
		b.WriteString("> **Result:**\n> ```\n> ")
		b.WriteString(out)
		b.WriteString("\n> ```\n")
	}
	return b.String()
}

// captureOutput picks the result text shown under a code block. Printed
// output wins. A silent, error-free block gets a best-effort peek at
// its last line: an assignment shows the assigned binding's value, a
// bare identifier shows the value itself. Everything else reads
// [No Output].
func captureOutput(cb llm.CodeBlock, resolve func(string) string) string {
	if cb.Result.Stdout != "" {
		return strings.ReplaceAll(strings.TrimRight(cb.Result.Stdout, "\n"), "\n", "\n> ")
	}
	if cb.Result.Stderr == "" {
		if peek := peekLastBinding(cb.Code, resolve); peek != "" {
			return peek
		}
	}
	return "[No Output]"
}

var controlPrefixes = []string{"if ", "if(", "for ", "for(", "while ", "while(", "function ", "class "}

func peekLastBinding(code string, resolve func(string) string) string {
	last := ""
	for _, line := range strings.Split(code, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			last = s
		}
	}
	if last == "" {
		return ""
	}
	last = strings.TrimSuffix(last, ";")

	for _, p := range controlPrefixes {
		if strings.HasPrefix(last, p) {
			return ""
		}
	}

	if strings.Contains(last, "=") {
		left := strings.TrimSpace(strings.SplitN(last, "=", 2)[0])
		for _, kw := range []string{"let ", "const ", "var "} {
			left = strings.TrimPrefix(left, kw)
		}
		// drop a type annotation if one is present
		if i := strings.LastIndex(left, ":"); i >= 0 {
			left = strings.TrimSpace(left[i+1:])
		}
		left = strings.TrimSpace(left)
		if sandbox.IsIdentifier(left) {
			if val := resolve(left); val != left {
				return fmt.Sprintf("[Variable %s = %s]", left, val)
			}
		}
		return ""
	}

	if sandbox.IsIdentifier(last) {
		if val := resolve(last); val != last {
			return fmt.Sprintf("[Value = %s]", val)
		}
	}
	return ""
}
