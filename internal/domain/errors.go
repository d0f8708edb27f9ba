package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrPersistence       = errors.New("persistence failure")
)

// ValidationError carries the client-facing detail of a rejected request.
// It matches ErrValidation under errors.Is.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + e.Detail
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError from a format string.
func Invalid(format string, args ...any) error {
	return &ValidationError{Detail: fmt.Sprintf(format, args...)}
}

// PublicMessage renders err for an API client. Anything not classified
// becomes fallback.
func PublicMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, ErrValidation):
		var ve *ValidationError
		if errors.As(err, &ve) && ve.Detail != "" {
			return upperFirst(ve.Detail)
		}
		return "Invalid request"
	case errors.Is(err, ErrRecipientNotFound):
		return "Recipient not found"
	case errors.Is(err, ErrUnauthorized):
		return "Authentication error"
	case errors.Is(err, ErrNotFound):
		return "Not found"
	default:
		return fallback
	}
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
