package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is the parent of every not-found error.
	ErrNotFound = errors.New("not found")
	// ErrQuizNotFound indicates the quiz does not exist or is not visible to the viewer.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrResultNotFound indicates a result row vanished.
	ErrResultNotFound = fmt.Errorf("result %w", ErrNotFound)
	// ErrSubmission wraps failures while persisting a finished attempt. It is retryable.
	ErrSubmission = errors.New("result submission failed")
	// ErrStorageUnavailable is returned by attempt state stores that cannot be reached.
	ErrStorageUnavailable = errors.New("attempt storage unavailable")
	// ErrInvalidQuiz is returned when a quiz cannot be attempted.
	ErrInvalidQuiz = errors.New("quiz cannot be attempted")
	// ErrFinishInProgress is returned when finish is requested while a submission is in flight.
	ErrFinishInProgress = errors.New("attempt is already finishing")
	// ErrAttemptClosed is returned when an answer arrives after the attempt stopped accepting input.
	ErrAttemptClosed = errors.New("attempt is not active")
	// ErrForbidden indicates the viewer lacks the role for the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated indicates no viewer identity was presented.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ValidationError reports a missing or malformed field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
