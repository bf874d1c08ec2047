package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type passcodeRequest struct {
	Passcode string `json:"passcode"`
}

// handleRLMValidate checks a submitted passcode so the frontend can
// unlock the RLM toggle before sending a chat turn.
func (s *Server) handleRLMValidate(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Get()
	ip := clientIP(r)

	var req passcodeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil || req.Passcode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "passcode is required"})
		return
	}

	if cfg.RLM.Passcode == "" {
		slog.Warn("rlm: passcode validation without configured passcode", "ip", ip)
		writeJSON(w, http.StatusOK, map[string]string{"error": "RLM passcode not configured on server"})
		return
	}

	if passcodeMatch(req.Passcode, cfg.RLM.Passcode) {
		slog.Info("rlm: passcode validated", "ip", ip)
		writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
		return
	}
	slog.Warn("rlm: invalid passcode attempt", "ip", ip)
	writeJSON(w, http.StatusOK, map[string]bool{"valid": false})
}

// handleRLMStatus tells the frontend whether RLM exists and whether it
// is gated behind a passcode.
func (s *Server) handleRLMStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Get()
	writeJSON(w, http.StatusOK, map[string]bool{
		"available":         cfg.RLM.Enabled,
		"requires_passcode": cfg.RLM.Passcode != "",
	})
}
