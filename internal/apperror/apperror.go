// Package apperror defines the typed errors the service layer returns.
//
// Every AppError wraps one sentinel (ErrNotFound, ErrConflict, ...) so callers
// branch with errors.Is, and carries a human-readable Message that is safe to
// show to clients. Anything that is NOT an AppError is treated as a storage
// or internal failure by the HTTP layer.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
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

// Duplicate is a Conflict with a caller-supplied message, for cases where
// "resource conflict with id" reads badly ("email already registered").
func Duplicate(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// AlreadyVoted is the Conflict returned when a user votes twice on one poll.
func AlreadyVoted(pollID string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("user has already voted on poll %s", pollID),
	}
}

// InvalidCredentials is returned by login for an unknown email or a wrong
// password. Both cases share one message so the response does not reveal
// which emails are registered.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: "invalid credentials",
	}
}
