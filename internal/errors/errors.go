package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Hearth error code.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"    // 400
	ErrNotFound          ErrorCode = "NOT_FOUND"          // 404
	ErrInvariantGuard    ErrorCode = "INVARIANT_GUARD"    // 409
	ErrValidationRefusal ErrorCode = "VALIDATION_REFUSAL" // 422
	ErrInternal          ErrorCode = "INTERNAL"           // 500
	ErrRemote            ErrorCode = "REMOTE"             // 502
)

// HearthError represents a structured error with code, status, and details.
type HearthError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// Err is the underlying cause, if any. Never shown to clients.
	Err error
}

// Error implements the error interface.
func (e *HearthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *HearthError) Unwrap() error {
	return e.Err
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *HearthError {
	return &HearthError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing or inaccessible record.
// kind names the record type ("character", "combatant").
func NewNotFound(kind, identifier string) *HearthError {
	return &HearthError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewInvariantGuard creates a 409 error for an update that would break a character invariant.
func NewInvariantGuard(field string, value, limit int) *HearthError {
	return &HearthError{
		Code:    ErrInvariantGuard,
		Status:  409,
		Message: fmt.Sprintf("%s=%d violates limit %d", field, value, limit),
		Details: map[string]any{"field": field, "value": value, "limit": limit},
	}
}

// NewValidationRefusal creates a 422 error for a rules refusal (e.g. resting while dying).
func NewValidationRefusal(msg string) *HearthError {
	return &HearthError{
		Code:    ErrValidationRefusal,
		Status:  422,
		Message: msg,
	}
}

// NewRemote creates a 502 error wrapping a storage or network failure.
func NewRemote(op string, err error) *HearthError {
	msg := op + " failed"
	if err != nil {
		msg = fmt.Sprintf("%s failed: %v", op, err)
	}
	return &HearthError{
		Code:    ErrRemote,
		Status:  502,
		Message: msg,
		Details: map[string]any{"op": op},
		Err:     err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the cause is kept in Details for logging.
func NewInternal(err error) *HearthError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &HearthError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
		Err:     err,
	}
}

// Is checks if err (or anything it wraps) is a HearthError with the given code.
func Is(err error, code ErrorCode) bool {
	var hErr *HearthError
	if stderrors.As(err, &hErr) {
		return hErr.Code == code
	}
	return false
}

// As returns the HearthError in err's chain, if any.
func As(err error) (*HearthError, bool) {
	var hErr *HearthError
	if stderrors.As(err, &hErr) {
		return hErr, true
	}
	return nil, false
}
