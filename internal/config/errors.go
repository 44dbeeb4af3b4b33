package config

import (
	"errors"
	"fmt"
)

// ErrValidationFailed indicates settings failed validation.
var ErrValidationFailed = errors.New("validation failed")

// ValidationError describes one invalid setting.
type ValidationError struct {
	// Path is the dotted key that failed validation.
	Path string
	// Message describes the problem.
	Message string
	// Value is the invalid value.
	Value any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Path, e.Message, e.Value)
}

// Is reports whether target is ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
