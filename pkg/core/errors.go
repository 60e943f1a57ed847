// Package core provides the main Lorekeep engine: construction and wiring
// of every service, and the per-turn processing pipeline.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoGenerator indicates that no text-generation provider is
	// configured for an operation that requires one.
	ErrNoGenerator = errors.New("no generation provider configured")

	// ErrGenerationFailed indicates that the generation collaborator
	// returned no usable payload.
	ErrGenerationFailed = errors.New("generation failed")
)

// EngineError wraps errors with operation context.
//
// Example:
//
//	err := &EngineError{Op: "ProcessTurn", Err: ErrNoGenerator}
//	// Error() returns: "lorekeep: ProcessTurn: no generation provider configured"
type EngineError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
func (e *EngineError) Error() string {
	return fmt.Sprintf("lorekeep: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates an EngineError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	return NewEngineError("ProcessTurn", err)
func NewEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, Err: err}
}
