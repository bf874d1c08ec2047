package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tinychat-dev/tinychat/internal/config"
)

// SwarmUI speaks its own two-step HTTP API: grab a session id, then
// post the generation request against it.

type swarmSessionResponse struct {
	SessionID string `json:"session_id"`
}

type swarmGenerateResponse struct {
	Images []string `json:"images"`
}

func (s *Service) generateSwarmUI(ctx context.Context, cfg config.SwarmUIConfig, prompt string) (string, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")

	sessionCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	var session swarmSessionResponse
	if err := s.postJSON(sessionCtx, base+"/API/GetNewSession", map[string]any{}, &session); err != nil {
		return "", fmt.Errorf("swarmui session: %w", err)
	}
	if session.SessionID == "" {
		return "", fmt.Errorf("swarmui session: empty session id")
	}

	params := map[string]any{
		"model":    cfg.Model,
		"width":    cfg.Width,
		"height":   cfg.Height,
		"cfgscale": cfg.CFGScale,
		"steps":    cfg.Steps,
		"seed":     cfg.Seed,
	}
	rawInput := map[string]any{"prompt": prompt, "donotsave": true}
	body := map[string]any{
		"session_id": session.SessionID,
		"images":     "1",
		"prompt":     prompt,
		"donotsave":  true,
	}
	for k, v := range params {
		rawInput[k] = v
		body[k] = stringify(v)
	}
	body["rawInput"] = rawInput

	genCtx, cancel := context.WithTimeout(ctx, timeoutFor(cfg.TimeoutSeconds))
	defer cancel()
	var gen swarmGenerateResponse
	if err := s.postJSON(genCtx, base+"/API/GenerateText2Image", body, &gen); err != nil {
		return "", fmt.Errorf("swarmui generate: %w", err)
	}
	if len(gen.Images) == 0 {
		return "", fmt.Errorf("swarmui generate: no images returned")
	}
	return gen.Images[0], nil
}

func (s *Service) postJSON(ctx context.Context, url string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// fetchAsBase64 downloads an image URL and returns its bytes base64
// encoded. Used for providers that only hand back hosted URLs.
func (s *Service) fetchAsBase64(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}
