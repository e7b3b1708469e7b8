package utils

import (
	"errors"
	"net/http"
	"strings"
)

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any

	// MatchedTerms is only set for CONTENT_REJECTED errors.
	MatchedTerms []string
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

func (appErr *AppError) Unwrap() error {
	return appErr.Origin
}

// Standard error codes for the application
const (
	// Resource errors
	ErrNotFound     = "NOT_FOUND"
	ErrInvalidInput = "INVALID_INPUT"

	// Authentication/Authorization errors
	ErrUnauthorized = "UNAUTHORIZED"
	ErrForbidden    = "FORBIDDEN" // User is authenticated but doesn't have permission
	ErrInvalidToken = "INVALID_TOKEN"

	// Messaging errors
	ErrContentRejected           = "CONTENT_REJECTED"
	ErrAlreadyRecalled           = "ALREADY_RECALLED"
	ErrWindowExpired             = "WINDOW_EXPIRED"
	ErrSelfConversationForbidden = "SELF_CONVERSATION_FORBIDDEN"

	ErrDatabase = "database_error"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

func NewForbiddenError(reason string) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: reason,
	}
}

func NewNotFoundError(what string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: what + " not found",
	}
}

func NewValidationError(reason string) *AppError {
	return &AppError{
		Code:    ErrInvalidInput,
		Message: reason,
	}
}

func NewUnauthorizedError(reason string) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "Unauthorized: " + reason,
	}
}

// NewContentRejectedError reports a moderation rejection. Only the first
// `limit` matched terms are carried back to the caller.
func NewContentRejectedError(matches []string, limit int) *AppError {
	preview := matches
	if limit > 0 && len(preview) > limit {
		preview = preview[:limit]
	}
	terms := make([]string, len(preview))
	copy(terms, preview)

	msg := "message contains blocked terms, please revise it before sending"
	if len(terms) > 0 {
		msg += ": " + strings.Join(terms, ", ")
	}
	return &AppError{
		Code:         ErrContentRejected,
		Message:      msg,
		MatchedTerms: terms,
	}
}

// AsAppError extracts an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Helper method to check if an error is of a specific type
func IsErrorCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// Helper method to check if an error is related to authentication
func IsAuthError(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == ErrUnauthorized ||
			appErr.Code == ErrForbidden ||
			appErr.Code == ErrInvalidToken
	}
	return false
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalidInput, ErrContentRejected, ErrAlreadyRecalled, ErrWindowExpired, ErrSelfConversationForbidden:
		return http.StatusBadRequest
	case ErrUnauthorized, ErrInvalidToken:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
