package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidTransition  = errors.New("invalid event status transition")
	ErrEventNotFound      = errors.New("event not found")
	ErrEventCompleted     = errors.New("event is already completed")
	ErrToolNotFound       = errors.New("tool not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrCategoryNotFound   = errors.New("category not found")
	ErrStorage            = errors.New("object storage failure")
	ErrPersistence        = errors.New("database failure")
	ErrCollisionExhausted = errors.New("public id generation exhausted its attempts")
	ErrDeletion           = errors.New("deletion failed")
)

// ValidationError carries per-field messages keyed by the input field name.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

func (e *ValidationError) Add(field, msg string) {
	if _, ok := e.Fields[field]; ok {
		return
	}
	e.Fields[field] = msg
}

// OrNil returns nil when no field failed so callers can return it directly.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}

	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

var domainErrors = []error{
	ErrValidation,
	ErrInvalidTransition,
	ErrEventNotFound,
	ErrEventCompleted,
	ErrToolNotFound,
	ErrDocumentNotFound,
	ErrCategoryNotFound,
	ErrStorage,
	ErrPersistence,
	ErrCollisionExhausted,
	ErrDeletion,
}

// IsDomainError reports whether err already carries one of the sentinels
// above.
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// WrapPersistence tags a raw database error with ErrPersistence. Errors
// that already carry a sentinel pass through unchanged.
func WrapPersistence(err error, action string) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, action, err)
}
