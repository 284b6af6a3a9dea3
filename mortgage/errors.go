/*
errors.go - Centralized error types for the mortgage engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch on the sentinel with errors.Is and extract detail with
  errors.As.

ERROR CATEGORIES:
  1. Validation errors   - Malformed or contradictory input; caller fixes
     and resubmits. Never retried automatically.
  2. Transition errors   - A workflow or account state-machine precondition
     was violated (out-of-sequence stage, action on terminal status).
  3. Not-found errors    - Unknown application/account/schedule references.
  4. Concurrency errors  - Optimistic version mismatch on an aggregate;
     caller should re-read and retry.

No error here represents a transient infrastructure failure: the engine has
no I/O of its own. Store implementations may surface their own errors, which
pass through untouched.

USAGE:
  if errors.Is(err, mortgage.ErrInvalidTransition) { ... }

  var vErr *mortgage.ValidationError
  if errors.As(err, &vErr) {
      log.Printf("rejected: %s on %s", vErr.Reason, vErr.Entity)
  }

SEE ALSO:
  - workflow.go: Raises transition errors for stage sequencing
  - ledger.go: Raises validation errors for duplicate references
  - store.go: Repository contract for concurrency conflicts
*/
package mortgage

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed or contradictory input.
	// Always recoverable by caller correction.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a state-machine precondition is
	// violated (skipped stage, action on a terminal status).
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrNotFound is returned for unknown application, account, schedule
	// item, adjustment, or milestone references.
	ErrNotFound = errors.New("not found")

	// ErrConcurrencyConflict is returned when an optimistic version check
	// fails on an account or application aggregate. Caller should re-read
	// and retry.
	ErrConcurrencyConflict = errors.New("concurrent modification detected")

	// ErrDuplicateReference is returned when a payment reference is recorded
	// twice for the same account. No silent dedup.
	ErrDuplicateReference = errors.New("duplicate payment reference")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports which business rule failed on which entity.
type ValidationError struct {
	Entity string // "application", "account", "schedule", "adjustment", ...
	Field  string // offending field, if one applies
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s.%s: %s", e.Entity, e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Entity, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InvalidTransitionError reports a rejected state-machine move.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition on %s: %s -> %s (%s)", e.Entity, e.From, e.To, e.Reason)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// NotFoundError reports a missing entity reference.
type NotFoundError struct {
	Kind string // "application", "account", "schedule item", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConcurrencyConflictError reports an optimistic-lock version mismatch.
type ConcurrencyConflictError struct {
	Kind     string
	ID       string
	Expected int
	Actual   int
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrent modification of %s %s: expected version %d, found %d",
		e.Kind, e.ID, e.Expected, e.Actual)
}

func (e *ConcurrencyConflictError) Unwrap() error { return ErrConcurrencyConflict }

// DuplicateReferenceError reports a repeated payment reference.
type DuplicateReferenceError struct {
	AccountID AccountID
	Reference string
}

func (e *DuplicateReferenceError) Error() string {
	return fmt.Sprintf("payment reference %q already recorded on account %s", e.Reference, e.AccountID)
}

func (e *DuplicateReferenceError) Unwrap() error { return ErrDuplicateReference }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// and should map to a 4xx response.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicateReference)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable returns true if the error might succeed on retry after a
// fresh read.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
