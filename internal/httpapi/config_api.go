package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleConfig hands the frontend everything it needs to boot.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Get()
	writeJSON(w, http.StatusOK, map[string]any{
		"available_models":         cfg.API.AvailableModels,
		"default_model":            cfg.API.DefaultModel,
		"default_temperature":      cfg.API.DefaultTemperature,
		"has_rlm":                  cfg.RLM.Enabled,
		"max_conversation_history": cfg.Limits.MaxHistory,
		"max_documents_in_context": cfg.RLM.MaxDocuments,
		"image_provider":           cfg.Image.Provider,
		"version":                  s.version,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// handleSession mints or refreshes a session id on page load.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		id = uuid.NewString()
	}
	s.sessions.Track(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":      id,
		"active_sessions": s.sessions.Active(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active_sessions":    s.sessions.Active(),
		"active_generations": s.ctrl.ActiveGenerations(),
		"active_rlm":         s.ctrl.ActiveLoops(),
		"max_concurrent_rlm": s.ctrl.MaxLoops(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"active_sessions":    s.sessions.Active(),
		"active_generations": s.ctrl.ActiveGenerations(),
	})
}
