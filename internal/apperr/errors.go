// Package apperr builds the service error envelope shared by the registry,
// the delivery engine and the HTTP layer.
package apperr

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextValidation   = "WEBHOOK_VALIDATION"
	TextNotFound     = "WEBHOOK_NOT_FOUND"
	TextPrecondition = "WEBHOOK_PRECONDITION"
	TextConflict     = "WEBHOOK_CONFLICT"
	TextUnavailable  = "WEBHOOK_UNAVAILABLE"
	TextInternal     = "WEBHOOK_INTERNAL"
)

func Validation(field, message string) error {
	return goerrors.NewValidation(message, goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(TextValidation)
}

func NotFound(resource, id string) error {
	return goerrors.New(fmt.Sprintf("%s not found", resource), goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(TextNotFound).
		WithMetadata(map[string]any{"id": id})
}

// Precondition reports an operation that is well formed but not allowed in
// the current state, such as testing an inactive endpoint.
func Precondition(message string) error {
	return goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusBadRequest).
		WithTextCode(TextPrecondition)
}

func Conflict(message string) error {
	return goerrors.New(message, goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(TextConflict)
}

func Unavailable(message string) error {
	return goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(TextUnavailable)
}

func Internal(err error, message string) error {
	if err == nil {
		return goerrors.New(message, goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(TextInternal)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(TextInternal)
}

// Envelope returns the rich error carried by err, mapping anything else to
// an internal error.
func Envelope(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		if rich.Code == 0 {
			rich.Code = http.StatusInternalServerError
		}
		return rich
	}
	goerrors.As(Internal(err, "internal error"), &rich)
	return rich
}

func hasTextCode(err error, code string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}

func IsValidation(err error) bool   { return hasTextCode(err, TextValidation) }
func IsNotFound(err error) bool     { return hasTextCode(err, TextNotFound) }
func IsPrecondition(err error) bool { return hasTextCode(err, TextPrecondition) }
func IsConflict(err error) bool     { return hasTextCode(err, TextConflict) }
func IsUnavailable(err error) bool  { return hasTextCode(err, TextUnavailable) }
