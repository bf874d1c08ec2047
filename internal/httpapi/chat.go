package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tinychat-dev/tinychat/internal/chatlog"
	"github.com/tinychat-dev/tinychat/internal/docs"
	"github.com/tinychat-dev/tinychat/internal/llm"
	"github.com/tinychat-dev/tinychat/internal/rlm"
	"github.com/tinychat-dev/tinychat/pkg/protocol"
)

const maxRequestBodySize = 10 << 20 // documents ride inside messages

// ChatRequest is the chat stream payload. The endpoint is stateless:
// the client sends the whole conversation every turn.
type ChatRequest struct {
	Messages        []ChatMessage `json:"messages"`
	Temperature     *float64      `json:"temperature,omitempty"`
	Model           string        `json:"model,omitempty"`
	SessionID       string        `json:"session_id,omitempty"`
	RLM             bool          `json:"rlm,omitempty"`
	RLMPasscode     string        `json:"rlm_passcode,omitempty"`
	ShowRLMThinking *bool         `json:"show_rlm_thinking,omitempty"`
}

// ChatMessage is one turn, optionally carrying a document attachment.
type ChatMessage struct {
	Role     string         `json:"role"`
	Content  string         `json:"content"`
	Document *docs.Document `json:"document,omitempty"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Get()
	ip := clientIP(r)

	if !s.limiter.Allow(ip) {
		w.Header().Set("Retry-After", "60")
		http.Error(w, `{"error":"Too many requests"}`, http.StatusTooManyRequests)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"Invalid request"}`, http.StatusBadRequest)
		return
	}
	if err := s.validateRequest(&req); err != nil {
		slog.Warn("chat: rejected request", "ip", ip, "error", err)
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
		return
	}

	if !s.client.Configured() {
		slog.Error("chat: API key not configured")
		http.Error(w, `{"error":"API key not configured"}`, http.StatusInternalServerError)
		return
	}

	if req.SessionID != "" {
		s.sessions.Track(req.SessionID)
	}

	model := req.Model
	if model == "" {
		model = cfg.API.DefaultModel
	}
	temperature := cfg.API.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	emit, ok := sseWriter(w)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	last := ""
	if n := len(req.Messages); n > 0 {
		last = strings.TrimSpace(req.Messages[n-1].Content)
	}
	lower := strings.ToLower(last)

	switch {
	case strings.HasPrefix(lower, "@image") || strings.HasPrefix(lower, "/image"):
		prompt := strings.TrimSpace(last[len("@image"):])
		s.streamImage(r, req, prompt, emit)

	case req.RLM:
		s.streamRLM(r, req, model, temperature, ip, emit)

	default:
		s.streamProxy(r, req, model, temperature, emit)
	}
}

func (s *Server) validateRequest(req *ChatRequest) error {
	cfg := s.cfg.Get()
	if len(req.Messages) == 0 {
		return fmt.Errorf("messages is required")
	}
	if max := cfg.Limits.MaxHistory; max > 0 && len(req.Messages) > max {
		return fmt.Errorf("too many messages (max %d)", max)
	}
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleUser, llm.RoleAssistant, llm.RoleSystem:
		default:
			return fmt.Errorf("role must be 'user', 'assistant', or 'system'")
		}
		if max := cfg.Limits.MaxMessageChars; max > 0 && len(m.Content) > max {
			return fmt.Errorf("message content too long (max %d)", max)
		}
	}
	if req.Model != "" && !cfg.ModelAllowed(req.Model) {
		return fmt.Errorf("model must be one of: %s", strings.Join(cfg.API.AvailableModels, ", "))
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	return nil
}

// streamImage serves @image / /image commands.
func (s *Server) streamImage(r *http.Request, req ChatRequest, prompt string, emit emitFunc) {
	s.ctrl.AcquireGeneration()
	defer s.ctrl.ReleaseGeneration()

	slog.Info("chat: image generation request", "prompt_len", len(prompt))
	if err := emit(protocol.ContentFrame("Generating image...")); err != nil {
		return
	}

	uri, err := s.images.Generate(r.Context(), prompt)
	if err != nil {
		slog.Error("chat: image generation failed", "error", err)
		_ = emit(protocol.ContentFrame("Error generating image: " + err.Error()))
		return
	}
	if err := emit(protocol.ImageFrame(uri, "Here is your image.")); err != nil {
		return
	}

	s.logConversation(req, fmt.Sprintf("[Generated image: %s]", prompt), "image-gen", 0)
}

// streamRLM hands the request to the agent loop after passcode checks.
func (s *Server) streamRLM(r *http.Request, req ChatRequest, model string, temperature float64, ip string, emit emitFunc) {
	cfg := s.cfg.Get()
	if !cfg.RLM.Enabled {
		_ = emit(protocol.ErrorFrame("RLM support is not enabled on this server."))
		return
	}
	if cfg.RLM.Passcode != "" {
		if req.RLMPasscode == "" {
			slog.Warn("chat: RLM request without passcode", "ip", ip)
			_ = emit(protocol.ErrorFrame("RLM access requires authentication. Please enable RLM through the web interface."))
			return
		}
		if !passcodeMatch(req.RLMPasscode, cfg.RLM.Passcode) {
			slog.Warn("chat: RLM request with invalid passcode", "ip", ip)
			_ = emit(protocol.ErrorFrame("Invalid RLM passcode. Access denied."))
			return
		}
	}

	showThinking := true
	if req.ShowRLMThinking != nil {
		showThinking = *req.ShowRLMThinking
	}

	attachments := make([]*docs.Document, len(req.Messages))
	for i, m := range req.Messages {
		attachments[i] = m.Document
	}
	docCtx := s.docs.Context(docs.Collect(attachments, cfg.RLM.MaxDocuments), cfg.RLM.MaxDocuments)

	s.rlm.Stream(r.Context(), rlm.StreamRequest{
		Messages:        toLLMMessages(req.Messages),
		Model:           model,
		Temperature:     temperature,
		ShowThinking:    showThinking,
		DocumentContext: docCtx,
		SessionID:       req.SessionID,
	}, emit)
}

// streamProxy forwards plain chat to the upstream model.
func (s *Server) streamProxy(r *http.Request, req ChatRequest, model string, temperature float64, emit emitFunc) {
	cfg := s.cfg.Get()
	s.ctrl.AcquireGeneration()
	defer s.ctrl.ReleaseGeneration()

	msgs := toLLMMessages(req.Messages)

	attachments := make([]*docs.Document, len(req.Messages))
	for i, m := range req.Messages {
		attachments[i] = m.Document
	}
	if docCtx := s.docs.Context(docs.Collect(attachments, cfg.RLM.MaxDocuments), cfg.RLM.MaxDocuments); docCtx != "" {
		sys := llm.Message{
			Role:    llm.RoleSystem,
			Content: "The user has attached documents. Use them when answering:\n\n" + docCtx,
		}
		msgs = append([]llm.Message{sys}, msgs...)
	}
	msgs = llm.TruncateHistory(model, msgs, cfg.Limits.MaxPromptTokens)

	slog.Debug("chat: proxy stream", "model", model, "messages", len(msgs))
	full, err := s.client.StreamChat(r.Context(), msgs, model, temperature, emit)
	if err != nil {
		slog.Error("chat: upstream stream failed", "error", err)
		_ = emit(protocol.ErrorFrame("Upstream API error"))
		return
	}

	s.logConversation(req, full, model, temperature)
}

func (s *Server) logConversation(req ChatRequest, response, model string, temperature float64) {
	if s.log == nil || response == "" {
		return
	}
	s.log.Log(chatlog.Entry{
		Timestamp:   time.Now().UTC(),
		SessionID:   req.SessionID,
		Model:       model,
		Temperature: temperature,
		Messages:    toLLMMessages(req.Messages),
		Response:    response,
	})
}

func toLLMMessages(msgs []ChatMessage) []llm.Message {
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
