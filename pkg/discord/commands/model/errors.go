package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLength marks a name, description or base name outside its bounds.
	ErrInvalidLength = errors.New("invalid length")
	// ErrWrongType marks a value whose type does not match what the field expects.
	ErrWrongType = errors.New("wrong type")
	// ErrConflict marks settings that cannot be combined (autocomplete with choices, for instance).
	ErrConflict = errors.New("conflicting settings")
)

// ValidationError is returned when a command or option is built from invalid input.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalidLength(field, value string, min, max int) error {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("length %d of %q is outside %d-%d", len([]rune(value)), value, min, max),
		Err:     ErrInvalidLength,
	}
}

func wrongType(field string, want string, got any) error {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("expected %s, got %T", want, got),
		Err:     ErrWrongType,
	}
}

func conflict(field, message string) error {
	return &ValidationError{Field: field, Message: message, Err: ErrConflict}
}
