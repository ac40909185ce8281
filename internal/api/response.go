package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	apperrors "github.com/julianstephens/habittrack/internal/errors"
	"github.com/julianstephens/habittrack/internal/logger"
	"github.com/julianstephens/habittrack/internal/storage"
	"github.com/julianstephens/habittrack/internal/streak"
	"github.com/julianstephens/habittrack/internal/tracker"
)

const (
	codeValidation   = "VALIDATION_ERROR"
	codeInvalidJSON  = "INVALID_JSON"
	codeLimitReached = "LIMIT_REACHED"
	codeNotFound     = "NOT_FOUND"
	codeForbidden    = "FORBIDDEN"
	codeDuplicate    = "DUPLICATE"
	codeCredentials  = "INVALID_CREDENTIALS"
	codeTimeout      = "TIMEOUT"
	codeInternal     = "INTERNAL_ERROR"
)

type apiError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details []apperrors.FieldError `json:"details,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: message}})
}

func writeValidationError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: apiError{
		Code:    codeValidation,
		Message: "Request validation failed",
		Details: apperrors.ValidationDetails(err),
	}})
}

// decodeJSON reads the body into dst and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (a *API) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, codeInvalidJSON, "Request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, codeInvalidJSON, "Request body is empty")
		default:
			writeError(w, http.StatusBadRequest, codeInvalidJSON, "Malformed JSON body")
		}
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

// writeServiceError maps tracker, engine and storage errors to responses
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, streak.ErrLimitReached):
		writeError(w, http.StatusBadRequest, codeLimitReached, "Daily completion limit reached")
	case errors.Is(err, tracker.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
	case errors.Is(err, tracker.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, codeCredentials, "Invalid credentials")
	case errors.Is(err, tracker.ErrForbidden):
		writeError(w, http.StatusForbidden, codeForbidden, "Habit belongs to another user")
	case errors.Is(err, streak.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "Completion not found")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "Resource not found")
	case errors.Is(err, storage.ErrDuplicate):
		writeError(w, http.StatusConflict, codeDuplicate, "Email is already registered")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, codeTimeout, "Request timed out")
	default:
		logger.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"err", err,
		)
		writeError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
	}
}
