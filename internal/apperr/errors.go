// Package apperr holds the error taxonomy shared by the ingestion and report services.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStoreUnavailable wraps any ledger, cache or channel failure.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidDate is returned for query dates that are not yyyy-MM-dd.
	ErrInvalidDate = errors.New("invalid date, use format yyyy-MM-dd")
)

// Error is a stable, caller-visible error code. It never carries storage detail.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// ContactAdministrator is reported for any unexpected store failure.
var ContactAdministrator = &Error{Code: 1000, Message: "An error occurred. Please contact the administrator."}

// FieldError describes one failing request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a failing field.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns e when at least one field failed, nil otherwise.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
