package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kubilitics/kubilitics-vitals/internal/db"
	"github.com/kubilitics/kubilitics-vitals/internal/models"
	"github.com/kubilitics/kubilitics-vitals/internal/session"
	"github.com/kubilitics/kubilitics-vitals/internal/tracing"
)

// APIError represents a structured API error response
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeEmptyDataset        = "EMPTY_DATASET"
	ErrCodePersistenceDisabled = "PERSISTENCE_DISABLED"
	ErrCodeInternalError       = "INTERNAL_ERROR"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeUnavailable         = "UNAVAILABLE"
)

// statusFor maps domain errors to HTTP status and code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidParameter), errors.Is(err, models.ErrMalformedInput):
		return http.StatusBadRequest, ErrCodeInvalidRequest
	case errors.Is(err, models.ErrEmptyDataset):
		return http.StatusUnprocessableEntity, ErrCodeEmptyDataset
	case errors.Is(err, session.ErrNotFound), errors.Is(err, db.ErrRunNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zapRequest(r, err)...)
		msg = "internal error"
	}
	respondErrorWithCode(w, r, status, code, msg)
}

func respondErrorWithCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, status, APIError{
		Error:   message,
		Code:    code,
		TraceID: tracing.TraceIDFromContext(r.Context()),
	})
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
