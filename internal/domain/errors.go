package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business-level errors that can occur in the system.
// These errors are used across layers to communicate specific failure conditions.
var (
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("conflict")
	ErrNotFound          = errors.New("container not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrRuntime           = errors.New("runtime error")
	ErrTimeout           = errors.New("operation timed out")

	// Runtime driver errors
	ErrUnitNotFound     = errors.New("runtime unit not found")
	ErrImageNotFound    = errors.New("image not found")
	ErrRuntimeTransient = errors.New("runtime temporarily unavailable")
)

// TransitionError describes a disallowed state change.
type TransitionError struct {
	ID     string
	From   ContainerStatus
	Action Action
}

func (e *TransitionError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("cannot %s a %s container", e.Action, e.From)
	}
	return fmt.Sprintf("cannot %s container %s: status is %s", e.Action, e.ID, e.From)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// RuntimeError wraps a driver failure with the operation that triggered it.
type RuntimeError struct {
	ID       string
	Op       string
	Attempts int
	Err      error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Op, e.ID, e.Attempts, e.Err)
}

// Is matches ErrRuntime as well as the wrapped driver error.
func (e *RuntimeError) Is(target error) bool { return target == ErrRuntime }

// Unwrap exposes the driver diagnostic.
func (e *RuntimeError) Unwrap() error { return e.Err }

// transient marks a driver error as retryable.
type transient struct{ err error }

func (t *transient) Error() string { return t.err.Error() }
func (t *transient) Unwrap() error { return t.err }

// Transient marks err as retryable by the lifecycle manager.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transient{err: err}
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var t *transient
	return errors.As(err, &t) || errors.Is(err, ErrRuntimeTransient)
}

// ErrorKind names the class of err for metrics and API responses.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrRuntime):
		return "runtime"
	default:
		return "internal"
	}
}
