package httpapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tinychat-dev/tinychat/internal/admission"
	"github.com/tinychat-dev/tinychat/internal/config"
	"github.com/tinychat-dev/tinychat/internal/imagegen"
	"github.com/tinychat-dev/tinychat/internal/llm"
	"github.com/tinychat-dev/tinychat/internal/rlm"
	"github.com/tinychat-dev/tinychat/pkg/protocol"
)

// newTestServer wires a Server against the given upstream base URL.
// mutate may adjust the config before wiring.
func newTestServer(t *testing.T, upstreamURL string, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.API.Key = "test-key"
	cfg.API.BaseURL = upstreamURL
	cfg.API.DefaultModel = "gpt-5-mini"
	cfg.API.DefaultTemperature = 0.7
	cfg.API.AvailableModels = []string{"gpt-5-mini", "gpt-5"}
	cfg.Limits.MaxMessageChars = 1000
	cfg.Limits.MaxHistory = 10
	cfg.RLM.Enabled = true
	cfg.RLM.TimeoutSeconds = 30
	cfg.RLM.MaxIterations = 5
	cfg.RLM.MaxConcurrent = 2
	cfg.RLM.MaxDocuments = 3
	cfg.SessionTTLMinutes = 5
	if mutate != nil {
		mutate(cfg)
	}

	store := config.NewStore(cfg)
	client := llm.NewClient(cfg.API.BaseURL, cfg.API.Key)
	ctrl := admission.NewController(cfg.RLM.MaxConcurrent)
	sessions := admission.NewSessionTracker(cfg.SessionTTL())
	rlmSvc := rlm.NewService(store, client, ctrl, nil, nil)
	images := imagegen.NewService(store)
	return NewServer(store, client, rlmSvc, images, nil, ctrl, sessions, "test")
}

// fakeUpstream speaks just enough OpenAI SSE for the proxy path.
func fakeUpstream(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected upstream path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for i, c := range chunks {
			payload := map[string]any{
				"id":      "chatcmpl-test",
				"object":  "chat.completion.chunk",
				"created": time.Now().Unix(),
				"model":   "gpt-5-mini",
				"choices": []map[string]any{{
					"index": i,
					"delta": map[string]string{"content": c},
				}},
			}
			b, _ := json.Marshal(payload)
			fmt.Fprintf(w, "data: %s\n\n", b)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func postChat(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// decodeFrames parses SSE data lines from a recorded response body.
func decodeFrames(t *testing.T, body string) []protocol.Frame {
	t.Helper()
	var frames []protocol.Frame
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var f protocol.Frame
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		frames = append(frames, f)
	}
	return frames
}

func TestChatStream_ProxyStreamsDeltas(t *testing.T) {
	upstream := fakeUpstream(t, []string{"Hello", ", ", "world"})
	defer upstream.Close()
	s := newTestServer(t, upstream.URL, nil)

	rec := postChat(t, s.Handler(), `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	frames := decodeFrames(t, rec.Body.String())
	var full strings.Builder
	for _, f := range frames {
		if f.IsError() {
			t.Fatalf("unexpected error frame: %+v", f)
		}
		full.WriteString(f.Content)
	}
	if full.String() != "Hello, world" {
		t.Errorf("assembled content = %q", full.String())
	}
}

func TestChatStream_ValidatesRequest(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:0", nil)
	h := s.Handler()

	tests := []struct {
		name string
		body string
	}{
		{"empty messages", `{"messages":[]}`},
		{"bad role", `{"messages":[{"role":"wizard","content":"hi"}]}`},
		{"unknown model", `{"messages":[{"role":"user","content":"hi"}],"model":"gpt-99"}`},
		{"temperature out of range", `{"messages":[{"role":"user","content":"hi"}],"temperature":3.5}`},
		{"not json", `{"messages":`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := postChat(t, h, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestChatStream_MessageTooLong(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:0", func(c *config.Config) {
		c.Limits.MaxMessageChars = 10
	})
	rec := postChat(t, s.Handler(),
		`{"messages":[{"role":"user","content":"this message is longer than ten characters"}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestChatStream_RLMPasscodeGate(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:0", func(c *config.Config) {
		c.RLM.Passcode = "sekret"
	})
	h := s.Handler()

	rec := postChat(t, h, `{"messages":[{"role":"user","content":"hi"}],"rlm":true}`)
	frames := decodeFrames(t, rec.Body.String())
	if len(frames) != 1 || !frames[0].IsError() {
		t.Fatalf("expected single error frame, got %+v", frames)
	}
	if !strings.Contains(frames[0].Error, "requires authentication") {
		t.Errorf("error = %q", frames[0].Error)
	}

	rec = postChat(t, h, `{"messages":[{"role":"user","content":"hi"}],"rlm":true,"rlm_passcode":"wrong"}`)
	frames = decodeFrames(t, rec.Body.String())
	if len(frames) != 1 || !strings.Contains(frames[0].Error, "Invalid RLM passcode") {
		t.Fatalf("expected invalid passcode frame, got %+v", frames)
	}
}

func TestChatStream_RLMDisabled(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:0", func(c *config.Config) {
		c.RLM.Enabled = false
	})
	rec := postChat(t, s.Handler(), `{"messages":[{"role":"user","content":"hi"}],"rlm":true}`)
	frames := decodeFrames(t, rec.Body.String())
	if len(frames) != 1 || !strings.Contains(frames[0].Error, "not enabled") {
		t.Fatalf("frames = %+v", frames)
	}
}

func TestChatStream_ImageCommand(t *testing.T) {
	swarm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/API/GetNewSession":
			json.NewEncoder(w).Encode(map[string]string{"session_id": "s"})
		case "/API/GenerateText2Image":
			json.NewEncoder(w).Encode(map[string][]string{"images": {"QUJD"}})
		}
	}))
	defer swarm.Close()

	s := newTestServer(t, "http://127.0.0.1:0", func(c *config.Config) {
		c.Image.Provider = "swarmui"
		c.Image.SwarmUI.BaseURL = swarm.URL
	})

	rec := postChat(t, s.Handler(), `{"messages":[{"role":"user","content":"@image a red fox"}]}`)
	frames := decodeFrames(t, rec.Body.String())
	if len(frames) < 2 {
		t.Fatalf("frames = %+v", frames)
	}
	last := frames[len(frames)-1]
	if !strings.HasPrefix(last.Image, "data:image/") {
		t.Errorf("image frame = %+v", last)
	}
	if last.Content != "Here is your image." {
		t.Errorf("caption = %q", last.Content)
	}
}

func TestChatStream_SecurityHeaders(t *testing.T) {
	upstream := fakeUpstream(t, []string{"x"})
	defer upstream.Close()
	s := newTestServer(t, upstream.URL, nil)

	rec := postChat(t, s.Handler(), `{"messages":[{"role":"user","content":"hi"}]}`)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}
