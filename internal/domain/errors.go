package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest          = errors.New("invalid request")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrInvalidTransition       = errors.New("invalid transition")
	ErrConflict                = errors.New("conflict")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrNotFound                = errors.New("not found")
	ErrRateLimited             = errors.New("rate limit exceeded")
)

// ValidationError names the request field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Unavailable wraps a transport-level failure of a collaborator.
func Unavailable(collaborator string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCollaboratorUnavailable, collaborator, err)
}

// FieldOf returns the offending field of an InvalidRequest error, if any.
func FieldOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Field
	}
	return ""
}
