/*
errors.go - Centralized error types for the chit engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps them to HTTP status codes through the helpers at the
  bottom of this file.

ERROR CATEGORIES:
  1. Validation   - malformed or missing input (400)
  2. Not found    - referenced entity absent (404)
  3. Conflict     - duplicate key, duplicate member, sequence race (409)
  4. Transition   - state machine guard violation (409)

  Capacity exhaustion during approval is NOT an error: Approve reports it as
  a rejection outcome. Reporting fallbacks are informational only.

USAGE:
    if errors.Is(err, chit.ErrSequenceConflict) {
        // retry, the next read sees the new highest sequence
    }

SEE ALSO:
  - sequence.go: Produces SequenceConflictError
  - membership.go: Produces TransitionError, ErrAlreadyMember
  - api/handlers.go: statusFor maps these to HTTP
*/
package chit

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")

	// ErrInvalidReference is returned when an identifier is malformed.
	ErrInvalidReference = errors.New("invalid reference")

	ErrNotFound = errors.New("not found")

	// ErrConflict is the generic uniqueness violation.
	ErrConflict = errors.New("conflict")

	// ErrSequenceConflict is returned when another writer took the sequence
	// number first. Retrying observes the updated highest sequence.
	ErrSequenceConflict = errors.New("sequence number already allocated")

	// ErrAlreadyMember is returned when an approved member asks to join again.
	ErrAlreadyMember = errors.New("member already belongs to this chit")

	// ErrDuplicateContribution is returned when a period is recorded twice.
	ErrDuplicateContribution = errors.New("contribution already recorded for this period")

	// ErrInvalidTransition is returned when a status change leaves a terminal state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrCapacityExceeded marks an approval that was turned into a rejection
	// because the chit is full. Approve returns it from ApprovalOutcome.Err,
	// never as its own error.
	ErrCapacityExceeded = errors.New("chit has reached its member capacity")

	// ErrChitInUse is returned when deleting a chit that has approved members.
	ErrChitInUse = errors.New("chit has approved members")

	// ErrNotMember is returned when a non-member records a contribution.
	ErrNotMember = errors.New("member has not joined this chit")

	ErrForbidden = errors.New("forbidden")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a missing or malformed field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InvalidReferenceError describes an identifier that cannot be parsed.
type InvalidReferenceError struct {
	Field string
	Value string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

func (e *InvalidReferenceError) Unwrap() error { return ErrInvalidReference }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// TransitionError records an attempted move out of a non-pending state.
type TransitionError struct {
	Kind string
	ID   string
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s is already %s, cannot move to %s", e.Kind, e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// SequenceConflictError reports a lost race on the settlement record key.
type SequenceConflictError struct {
	ChitID   string
	MonthKey string
	Sequence int
}

func (e *SequenceConflictError) Error() string {
	return fmt.Sprintf("sequence %d for chit %s month %s already taken, retry",
		e.Sequence, e.ChitID, e.MonthKey)
}

func (e *SequenceConflictError) Unwrap() error { return ErrSequenceConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSequenceConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidReference)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true for uniqueness and state machine violations.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrSequenceConflict) ||
		errors.Is(err, ErrAlreadyMember) ||
		errors.Is(err, ErrDuplicateContribution) ||
		errors.Is(err, ErrChitInUse) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsForbidden returns true when the caller lacks the right to act.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotMember)
}
