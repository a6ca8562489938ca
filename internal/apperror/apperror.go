package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("Validation Error")
	ErrConflict      = errors.New("conflict")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrConfiguration = errors.New("configuration error")
	ErrUpstreamAuth  = errors.New("upstream rejected credentials")
	ErrUpstream      = errors.New("upstream failure")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Unauthorized returns an AppError for a missing or invalid credential.
// HTTP handlers map this to 401 Unauthorized.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Configuration returns an AppError for a missing or broken piece of server
// configuration. These are operator-fixable, never the caller's fault, and
// map to 500.
func Configuration(message string) *AppError {
	return &AppError{
		Err:     ErrConfiguration,
		Message: message,
	}
}

// UpstreamAuth returns an AppError meaning GitHub rejected our credentials —
// either during the code-for-token exchange or when a stored access token is
// used later. Distinct from Upstream because the fix is different: the user
// must re-link their account. Maps to 401.
func UpstreamAuth(message string) *AppError {
	return &AppError{
		Err:     ErrUpstreamAuth,
		Message: message,
	}
}

// Upstream returns an AppError for any other GitHub-side failure (5xx,
// unexpected payload). Maps to 500 — terminal for this request, no retry.
func Upstream(message string) *AppError {
	return &AppError{
		Err:     ErrUpstream,
		Message: message,
	}
}

// NotLinked is the specific validation failure for operations that require a
// stored GitHub access token. Handlers map it (via ErrValidation) to 400 —
// a client error, never a silently-empty success.
func NotLinked() *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: "GitHub account is not linked",
	}
}
