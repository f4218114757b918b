package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedback/pkg/llm"
	"github.com/ekaya-inc/ekaya-feedback/pkg/logging"
)

// Error kinds returned in the "error" field of error responses.
const (
	KindValidation            = "validation_error"
	KindProvider              = "provider_error"
	KindNotFound              = "not_found"
	KindInvalidClassification = "invalid_classification"
	KindConflict              = "conflict"
	KindInternal              = "internal_error"
)

// ApiResponse is the envelope for successful responses.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// ErrorKind maps a service error to its response kind, HTTP status and a
// message that is safe to return to callers.
func ErrorKind(err error) (kind string, status int, message string) {
	var llmErr *llm.Error
	switch {
	case errors.Is(err, apperrors.ErrInvalidClassification):
		return KindInvalidClassification, http.StatusUnprocessableEntity, err.Error()
	case apperrors.IsValidation(err):
		return KindValidation, http.StatusBadRequest, err.Error()
	case errors.Is(err, apperrors.ErrNotFound):
		return KindNotFound, http.StatusNotFound, err.Error()
	case errors.Is(err, apperrors.ErrConflict):
		return KindConflict, http.StatusConflict, err.Error()
	case errors.As(err, &llmErr):
		return KindProvider, http.StatusBadGateway, logging.SanitizeError(llmErr)
	default:
		return KindInternal, http.StatusInternalServerError, "An internal error occurred"
	}
}

// writeServiceError logs err and writes the matching error response.
// Client errors are logged at DEBUG, everything else at ERROR.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, action string, err error) {
	kind, status, message := ErrorKind(err)
	if status >= http.StatusInternalServerError {
		logger.Error(action+" failed", zap.String("kind", kind), zap.String("error", logging.SanitizeError(err)))
	} else {
		logger.Debug(action+" rejected", zap.String("kind", kind), zap.Error(err))
	}
	if err := ErrorResponse(w, status, kind, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeBadRequest writes a validation_error response for malformed input.
func writeBadRequest(w http.ResponseWriter, logger *zap.Logger, message string) {
	if err := ErrorResponse(w, http.StatusBadRequest, KindValidation, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeData writes a successful ApiResponse carrying data.
func writeData(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}
