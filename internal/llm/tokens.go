package llm

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkoukk/tiktoken-go"
)

// Building a tiktoken encoding parses the full BPE rank table, far too
// slow to repeat per request. Encodings are cached per model; a nil
// entry records that the model has no known encoding.
var (
	encCacheOnce sync.Once
	encCache     *lru.Cache[string, *tiktoken.Tiktoken]
)

const charsPerTokenEstimate = 4

func encodingFor(model string) *tiktoken.Tiktoken {
	encCacheOnce.Do(func() {
		encCache, _ = lru.New[string, *tiktoken.Tiktoken](16)
	})
	if enc, ok := encCache.Get(model); ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			enc = nil
		}
	}
	encCache.Add(model, enc)
	return enc
}

// CountTokens estimates the prompt token cost of a history. When no
// encoding is available it falls back to a chars/4 estimate.
func CountTokens(model string, msgs []Message) int {
	enc := encodingFor(model)
	total := 0
	for _, m := range msgs {
		if enc != nil {
			// +4 covers the per-message framing tokens of the chat format.
			total += len(enc.Encode(m.Content, nil, nil)) + 4
		} else {
			total += len(m.Content)/charsPerTokenEstimate + 4
		}
	}
	return total
}

// TruncateHistory drops the oldest turns until the history fits the
// token budget. A leading system message and the most recent message
// always survive, so the request stays meaningful even when the budget
// is tiny.
func TruncateHistory(model string, msgs []Message, budget int) []Message {
	if budget <= 0 || len(msgs) == 0 || CountTokens(model, msgs) <= budget {
		return msgs
	}

	var system []Message
	rest := msgs
	if msgs[0].Role == RoleSystem {
		system = msgs[:1]
		rest = msgs[1:]
	}
	if len(rest) == 0 {
		return msgs
	}

	// Keep the newest suffix of rest that fits alongside the system
	// message; never drop the final message.
	for start := 0; start < len(rest)-1; start++ {
		candidate := append(append([]Message{}, system...), rest[start:]...)
		if CountTokens(model, candidate) <= budget {
			return candidate
		}
	}
	return append(append([]Message{}, system...), rest[len(rest)-1])
}
