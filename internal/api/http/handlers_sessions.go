package apihttp

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mediastream/internal/domain"
	"mediastream/internal/session"
)

type createSessionRequest struct {
	SourceURL   string  `json:"sourceUrl"`
	Token       string  `json:"token"`
	TokenExpiry string  `json:"tokenExpiry,omitempty"` // RFC 3339
	Duration    float64 `json:"duration"`
	StartAt     float64 `json:"startAt,omitempty"`
	Profile     string  `json:"profile,omitempty"` // "video" (default) or "audio"
}

type retrySessionRequest struct {
	Token       string `json:"token"`
	TokenExpiry string `json:"tokenExpiry,omitempty"`
}

type seekRequest struct {
	Target float64 `json:"target"`
}

type timeUpdateRequest struct {
	CurrentTime float64 `json:"currentTime"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.SourceURL) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "sourceUrl is required")
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}
	if req.Duration <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "duration must be > 0")
		return
	}
	if req.StartAt < 0 || req.StartAt >= req.Duration {
		writeError(w, http.StatusBadRequest, "invalid_request", "startAt out of range")
		return
	}

	expiry, err := parseExpiry(req.TokenExpiry)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "tokenExpiry must be RFC 3339")
		return
	}

	cfg := s.streamCfg
	if req.Profile == "audio" {
		cfg = domain.AudioProfile()
	}
	ctrl, err := s.sessions.Attach(r.Context(), session.Input{
		SourceURL:   req.SourceURL,
		BearerToken: req.Token,
		TokenExpiry: expiry,
		Duration:    req.Duration,
		StartAt:     req.StartAt,
		Profile:     req.Profile,
		Config:      cfg,
	})
	if err != nil {
		writeSessionError(w, err)
		return
	}

	// Wait for first data (or failure) so the client gets a meaningful
	// initial state, bounded by the request context.
	select {
	case <-ctrl.Ready():
	case <-r.Context().Done():
	}
	if serr := ctrl.Err(); serr != nil {
		writeSessionError(w, serr)
		return
	}
	writeJSON(w, http.StatusCreated, ctrl.Snapshot())
}

func (s *Server) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snap, err := s.sessions.Snapshot(r.Context())
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	case http.MethodDelete:
		if err := s.sessions.Terminate(r.Context()); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Target < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "target must be >= 0")
		return
	}
	if err := s.sessions.Seek(r.Context(), req.Target); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTimeUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req timeUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.CurrentTime < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "currentTime must be >= 0")
		return
	}
	if err := s.sessions.UpdateTime(r.Context(), req.CurrentTime); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req retrySessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}
	expiry, err := parseExpiry(req.TokenExpiry)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "tokenExpiry must be RFC 3339")
		return
	}

	ctrl, err := s.sessions.Retry(r.Context(), req.Token, expiry)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	select {
	case <-ctrl.Ready():
	case <-r.Context().Done():
	}
	if serr := ctrl.Err(); serr != nil {
		writeSessionError(w, serr)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (s *Server) handleResumeList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if s.resume == nil {
		writeError(w, http.StatusNotFound, "not_found", "resume positions not configured")
		return
	}
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	positions, err := s.resume.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "repository_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleResumePosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if s.resume == nil {
		writeError(w, http.StatusNotFound, "not_found", "resume positions not configured")
		return
	}
	source := strings.TrimSpace(r.URL.Query().Get("source"))
	if source == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "source is required")
		return
	}
	pos, err := s.resume.Get(r.Context(), source)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func parseExpiry(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
