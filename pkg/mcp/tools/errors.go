package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedback/pkg/llm"
	"github.com/ekaya-inc/ekaya-feedback/pkg/logging"
)

// ErrorResponse represents a structured error in tool results.
// Returning it as a tool result keeps the detail visible to the client
// instead of being swallowed as a protocol error.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for errors the caller can act on (bad parameters, unknown item,
// provider outage). System failures should still return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// serviceErrorResult converts a service error into an error tool result when
// the caller can act on it. Other errors are returned unchanged.
func serviceErrorResult(err error) (*mcp.CallToolResult, error) {
	var llmErr *llm.Error
	switch {
	case errors.Is(err, apperrors.ErrInvalidClassification):
		return NewErrorResult("invalid_classification", err.Error()), nil
	case apperrors.IsValidation(err):
		return NewErrorResult("validation_error", err.Error()), nil
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult("not_found", err.Error()), nil
	case errors.As(err, &llmErr):
		return NewErrorResultWithDetails("provider_error", logging.SanitizeError(llmErr),
			map[string]any{"retryable": llmErr.Retryable, "type": llmErr.Type}), nil
	default:
		return nil, err
	}
}
