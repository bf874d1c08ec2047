// Package llm talks to the upstream OpenAI-compatible API: streaming
// proxy completions for plain chat, one-shot completions for the RLM
// driver, and token accounting for history truncation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tinychat-dev/tinychat/pkg/protocol"
)

// Client wraps the upstream API client.
type Client struct {
	api *openai.Client
	key string
}

// NewClient creates a client for the configured base URL and key. An
// empty key yields a client that reports !Configured(); callers surface
// that as a backend-unavailable error instead of calling upstream.
func NewClient(baseURL, key string) *Client {
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{api: openai.NewClientWithConfig(cfg), key: key}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c.key != "" }

// StreamChat forwards one conversation upstream with stream=true and
// emits a content frame per delta. It returns the fully assembled
// response text for conversation logging. Upstream failures after the
// stream opened return the partial text alongside the error.
func (c *Client) StreamChat(ctx context.Context, msgs []Message, model string, temperature float64, emit func(protocol.Frame) error) (string, error) {
	slog.Debug("llm.stream.start", "model", model, "messages", len(msgs), "temperature", temperature)

	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAI(msgs),
		Temperature: float32(temperature),
		Stream:      true,
	})
	if err != nil {
		return "", fmt.Errorf("create completion stream: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return full.String(), fmt.Errorf("read completion stream: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := emit(protocol.ContentFrame(delta)); err != nil {
			return full.String(), err
		}
	}

	slog.Debug("llm.stream.done", "model", model, "chars", full.Len())
	return full.String(), nil
}

// Complete performs a single non-streaming completion. The RLM driver
// uses this for each iteration turn.
func (c *Client) Complete(ctx context.Context, msgs []Message, model string, temperature float64) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAI(msgs),
		Temperature: float32(temperature),
	})
	if err != nil {
		return "", fmt.Errorf("create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAI(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
