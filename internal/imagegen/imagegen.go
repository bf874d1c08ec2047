// Package imagegen serves @image chat commands by rendering a prompt
// through SwarmUI or an OpenAI-compatible images API and returning the
// result as a data URI ready for the browser.
package imagegen

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tinychat-dev/tinychat/internal/config"
)

// Service generates images with whichever provider the current config
// selects. Provider clients are built per call so hot reload takes
// effect without restarts.
type Service struct {
	cfg  *config.Store
	http *http.Client
}

// NewService creates an image generation service.
func NewService(cfg *config.Store) *Service {
	return &Service{
		cfg:  cfg,
		http: &http.Client{},
	}
}

// Generate renders prompt through the configured provider and returns
// an image data URI.
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	cfg := s.cfg.Get().Image
	slog.Info("imagegen: request", "provider", cfg.Provider, "prompt_len", len(prompt))

	var (
		encoded string
		err     error
	)
	switch cfg.Provider {
	case "swarmui":
		encoded, err = s.generateSwarmUI(ctx, cfg.SwarmUI, prompt)
	case "openai":
		encoded, err = s.generateOpenAI(ctx, cfg.OpenAI, prompt)
	default:
		return "", fmt.Errorf("unsupported image provider %q", cfg.Provider)
	}
	if err != nil {
		return "", err
	}
	if encoded == "" {
		return "", fmt.Errorf("image provider returned no image")
	}

	// Providers sometimes hand back a complete data URI already.
	if strings.HasPrefix(encoded, "data:") {
		return encoded, nil
	}
	return "data:image/png;base64," + encoded, nil
}

func (s *Service) generateOpenAI(ctx context.Context, cfg config.OpenAIImageConfig, prompt string) (string, error) {
	clientCfg := openai.DefaultConfig(cfg.Key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientCfg)

	resp, err := client.CreateImage(ctx, openai.ImageRequest{
		Model:          cfg.Model,
		Prompt:         prompt,
		Size:           cfg.Size,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return "", fmt.Errorf("openai images: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("openai images: empty response")
	}
	first := resp.Data[0]
	if first.B64JSON != "" {
		return first.B64JSON, nil
	}
	if first.URL != "" {
		return s.fetchAsBase64(ctx, first.URL)
	}
	return "", fmt.Errorf("openai images: response carried neither b64 nor url")
}

func timeoutFor(secs int) time.Duration {
	if secs <= 0 {
		secs = 300
	}
	return time.Duration(secs) * time.Second
}
