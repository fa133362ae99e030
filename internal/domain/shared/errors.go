// Package shared contains common domain types, errors and events that are used
// across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrCanceled     = errors.New("canceled")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "streak", "coaching", "buddy"
	Op      string // Operation that failed, e.g., "Generate", "Connect"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against the error kind, so a wrapped
// taxonomy error (Kind: ErrUnknownRoutine) matches ErrUnknownRoutine and ErrNotFound.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Engine error taxonomy. Match with errors.Is against the variable itself.
var (
	// ErrUnknownRoutine is returned for a routine id that is not in the catalog.
	ErrUnknownRoutine = NewDomainError("routine", "Lookup", ErrNotFound, "unknown routine")

	// ErrCandidateUnavailable is returned when connecting to an offline candidate.
	ErrCandidateUnavailable = NewDomainError("buddy", "Connect", ErrUnavailable, "candidate is not online")

	// ErrInvalidRange is a recoverable warning: a streak delta was clamped to [0, 365].
	ErrInvalidRange = NewDomainError("streak", "Adjust", ErrValueOutOfRange, "streak delta clamped")

	// ErrSuperseded is returned by an advice request replaced by a newer one.
	ErrSuperseded = NewDomainError("coaching", "Generate", ErrCanceled, "superseded by a newer request")

	// ErrCandidateNotFound is returned when the directory has no such candidate.
	ErrCandidateNotFound = NewDomainError("buddy", "Find", ErrNotFound, "candidate not found")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsWarning reports whether the error is a recoverable warning that still
// carries a valid result.
func IsWarning(err error) bool {
	return errors.Is(err, ErrInvalidRange)
}
