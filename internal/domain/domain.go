// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates a request failed field-level validation.
var ErrValidation = errors.New("validation failed")

// ErrInvalidTransition indicates a state change not permitted by the
// execution transition table.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrInvalidState indicates an operation attempted while the execution is
// not in an eligible state (e.g. progress updates outside running/paused).
var ErrInvalidState = errors.New("operation not allowed in current state")
