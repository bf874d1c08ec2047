// Package httpapi is the HTTP surface of the gateway: the SSE chat
// endpoint plus the small JSON API the web client boots from.
package httpapi

import (
	"net/http"

	"github.com/tinychat-dev/tinychat/internal/admission"
	"github.com/tinychat-dev/tinychat/internal/chatlog"
	"github.com/tinychat-dev/tinychat/internal/config"
	"github.com/tinychat-dev/tinychat/internal/docs"
	"github.com/tinychat-dev/tinychat/internal/imagegen"
	"github.com/tinychat-dev/tinychat/internal/llm"
	"github.com/tinychat-dev/tinychat/internal/rlm"
)

// Server bundles the handlers and their collaborators.
type Server struct {
	cfg      *config.Store
	client   *llm.Client
	rlm      *rlm.Service
	images   *imagegen.Service
	docs     *docs.Builder
	log      chatlog.Sink
	ctrl     *admission.Controller
	sessions *admission.SessionTracker
	limiter  *RateLimiter
	version  string
}

// NewServer wires the HTTP layer. log may be nil.
func NewServer(
	cfg *config.Store,
	client *llm.Client,
	rlmSvc *rlm.Service,
	images *imagegen.Service,
	log chatlog.Sink,
	ctrl *admission.Controller,
	sessions *admission.SessionTracker,
	version string,
) *Server {
	return &Server{
		cfg:      cfg,
		client:   client,
		rlm:      rlmSvc,
		images:   images,
		docs:     docs.NewBuilder(),
		log:      log,
		ctrl:     ctrl,
		sessions: sessions,
		limiter:  NewRateLimiter(cfg),
		version:  version,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /api/config", s.handleConfig)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/rlm/validate", s.handleRLMValidate)
	mux.HandleFunc("GET /api/rlm/status", s.handleRLMStatus)
	return securityHeaders(mux)
}

// securityHeaders sets the response headers every endpoint carries.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
