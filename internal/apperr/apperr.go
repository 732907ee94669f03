// Package apperr defines the structured error taxonomy shared across the
// API: every user-visible failure carries an HTTP status and a stable
// machine-readable code alongside the human message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/andrewvu270/AgentDeck/internal/model"
)

// Stable error codes.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeQuotaExceeded       = "TIER_LIMIT_EXCEEDED"
	CodeRoleNotAvailable    = "ROLE_NOT_AVAILABLE"
	CodeAdvisorNotAvailable = "ADVISOR_NOT_AVAILABLE"
	CodePhaseOrderViolation = "PHASE_ORDER_VIOLATION"
	CodeRoundInProgress     = "ROUND_IN_PROGRESS"
	CodeBackendError        = "BACKEND_ERROR"
	CodeToolError           = "TOOL_ERROR"
	CodeValidation          = "VALIDATION_ERROR"
)

// AppError is a structured application error.
type AppError struct {
	Status  int            `json:"-"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates an AppError.
func New(status int, code, message string) *AppError {
	return &AppError{Status: status, Code: code, Message: message}
}

// NotFound reports a missing or not-owned entity. The message never reveals
// whether the entity exists under another user.
func NotFound(entity string) *AppError {
	return &AppError{
		Status:  http.StatusNotFound,
		Code:    CodeNotFound,
		Message: entity + " not found",
	}
}

// QuotaExceeded reports a Usage Ledger denial.
func QuotaExceeded(kind model.ResourceKind, current, max int64, tierName string) *AppError {
	return &AppError{
		Status: http.StatusForbidden,
		Code:   CodeQuotaExceeded,
		Message: fmt.Sprintf("you have reached your %s limit (%d/%d), please upgrade your plan",
			kind, current, max),
		Details: map[string]any{
			"resource": kind,
			"current":  current,
			"max":      max,
			"tier":     tierName,
		},
	}
}

// PhaseOrderViolation reports an attempt to move a table to a non-adjacent
// phase.
func PhaseOrderViolation(from, to model.CollaborationPhase) *AppError {
	return &AppError{
		Status:  http.StatusConflict,
		Code:    CodePhaseOrderViolation,
		Message: fmt.Sprintf("cannot move phase from %s to %s", from, to),
		Details: map[string]any{"from": from, "to": to},
	}
}

// RoundInProgress reports that a conversation already has a round in flight.
func RoundInProgress(conversationID string) *AppError {
	return &AppError{
		Status:  http.StatusConflict,
		Code:    CodeRoundInProgress,
		Message: "a round is already in progress for this conversation",
		Details: map[string]any{"conversation_id": conversationID},
	}
}

// Validation reports a bad request body or parameter.
func Validation(message string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Code: CodeValidation, Message: message}
}

// Backend wraps a provider-side LLM failure.
func Backend(provider string, err error) *AppError {
	return &AppError{
		Status:  http.StatusBadGateway,
		Code:    CodeBackendError,
		Message: fmt.Sprintf("%s backend error: %v", provider, err),
	}
}

// As extracts an *AppError from err, or nil.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// IsCode reports whether err carries the given stable code.
func IsCode(err error, code string) bool {
	ae := As(err)
	return ae != nil && ae.Code == code
}
