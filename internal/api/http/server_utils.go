package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"mediastream/internal/domain"
)

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeSessionError maps domain errors onto the HTTP surface.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNoActiveSession):
		writeError(w, http.StatusNotFound, "no_active_session", "no active session")
	case errors.Is(err, domain.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token_expired", "bearer token expired")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	default:
		var serr *domain.StreamingError
		if errors.As(err, &serr) {
			switch serr.Kind {
			case domain.ErrorAuthentication:
				writeError(w, http.StatusUnauthorized, "authentication_failed", serr.Error())
				return
			case domain.ErrorCapability:
				writeError(w, http.StatusUnprocessableEntity, "capability_error", serr.Error())
				return
			}
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
