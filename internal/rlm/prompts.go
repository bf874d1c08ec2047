package rlm

import (
	"fmt"
	"strings"

	"github.com/tinychat-dev/tinychat/internal/llm"
)

const systemPrompt = `You are a reasoning agent with access to a persistent JavaScript REPL.

You may include fenced code blocks in your replies:

` + "```js" + `
let total = 2 + 2;
print(total);
` + "```" + `

Rules:
- Code blocks are executed in order and their printed output is returned
  to you on the next turn. Use print() to observe values.
- Bindings persist across your turns within one request. Build on
  earlier results instead of recomputing them.
- Work step by step. Use the REPL to verify anything you are not sure
  about before committing to an answer.
- When you have the answer, emit exactly one completion marker:
  FINAL(the answer text) for a literal answer, or
  FINAL_VAR(binding_name) to answer with the value of a REPL binding.
- Do not emit a completion marker until you are confident the answer is
  correct and complete.`

// setupPrompt seeds the loop history with the system contract and the
// user's query.
func setupPrompt(query string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: query},
	}
}

// buildIterationPrompt produces the per-turn progress marker appended
// to the history before each completion: which iteration this is, how
// many contexts are loaded and how many prior exchanges exist.
func buildIterationPrompt(iteration, contextCount, historyCount int) llm.Message {
	return llm.Message{
		Role: llm.RoleUser,
		Content: fmt.Sprintf(
			"[Iteration %d | contexts: %d | history entries: %d]\nContinue. Reply with FINAL(...) or FINAL_VAR(...) once you have the answer.",
			iteration+1, contextCount, historyCount),
	}
}

// formatIteration converts a finished turn into history entries for the
// next one: the model's reply, then a user turn carrying each code
// block's execution result.
func formatIteration(it llm.Iteration) []llm.Message {
	msgs := []llm.Message{{Role: llm.RoleAssistant, Content: it.Response}}
	if len(it.CodeBlocks) == 0 {
		return msgs
	}

	var b strings.Builder
	for i, cb := range it.CodeBlocks {
		fmt.Fprintf(&b, "Execution result of code block %d:\n", i+1)
		switch {
		case cb.Result.Stderr != "":
			fmt.Fprintf(&b, "Error: %s\n", cb.Result.Stderr)
		case cb.Result.Stdout != "":
			b.WriteString(cb.Result.Stdout)
			if !strings.HasSuffix(cb.Result.Stdout, "\n") {
				b.WriteByte('\n')
			}
		default:
			b.WriteString("(no output)\n")
		}
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: b.String()})
	return msgs
}
