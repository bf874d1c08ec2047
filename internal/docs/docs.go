// Package docs assembles the document context attached to chat
// requests. Clients upload markdown alongside a message; the newest
// documents are rendered into one context block the model can quote.
package docs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Document is a client-supplied attachment, already converted to
// markdown on the client side.
type Document struct {
	Name     string `json:"name"`
	Markdown string `json:"markdown"`
}

// Builder renders documents into context sections. Rendered sections
// are cached by content hash; the same attachment resent across a
// conversation costs one render.
type Builder struct {
	cache *lru.Cache[string, string]
}

// NewBuilder creates a builder with a bounded render cache.
func NewBuilder() *Builder {
	cache, _ := lru.New[string, string](128)
	return &Builder{cache: cache}
}

// Context renders up to max documents, newest first, into a single
// block separated by horizontal rules. Empty input yields "".
func (b *Builder) Context(documents []Document, max int) string {
	if max <= 0 || len(documents) == 0 {
		return ""
	}
	if len(documents) > max {
		documents = documents[:max]
	}
	sections := make([]string, 0, len(documents))
	for _, d := range documents {
		sections = append(sections, b.section(d))
	}
	return strings.Join(sections, "\n\n---\n\n")
}

func (b *Builder) section(d Document) string {
	sum := sha256.Sum256([]byte(d.Name + "\x00" + d.Markdown))
	key := hex.EncodeToString(sum[:])
	if s, ok := b.cache.Get(key); ok {
		return s
	}
	s := fmt.Sprintf("# Document: %s\n\n%s", d.Name, d.Markdown)
	b.cache.Add(key, s)
	return s
}

// Collect walks message attachments newest first and returns the
// documents eligible for the context window.
func Collect(attachments []*Document, max int) []Document {
	var out []Document
	for i := len(attachments) - 1; i >= 0 && len(out) < max; i-- {
		if attachments[i] != nil {
			out = append(out, *attachments[i])
		}
	}
	return out
}
