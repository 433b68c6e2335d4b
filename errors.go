package splitledger

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("splitledger: not found")
	ErrAlreadyExists = errors.New("splitledger: already exists")
	ErrInvalidInput  = errors.New("splitledger: invalid input")

	// Record errors
	ErrUserNotFound         = errors.New("splitledger: user not found")
	ErrRelationshipNotFound = errors.New("splitledger: relationship not found")
	ErrExpenseNotFound      = errors.New("splitledger: expense not found")
	ErrSettlementNotFound   = errors.New("splitledger: settlement not found")
	ErrGroupNotFound        = errors.New("splitledger: group not found")
	ErrSnapshotNotFound     = errors.New("splitledger: balance snapshot not found")

	// Concurrency errors
	ErrVersionConflict = errors.New("splitledger: version conflict")
	ErrStatusConflict  = errors.New("splitledger: relationship status changed concurrently")

	// Group errors
	ErrNotGroupMember   = errors.New("splitledger: user is not a group member")
	ErrMemberHasBalance = errors.New("splitledger: member has a non-zero balance in the group")

	// Settlement errors
	ErrAlreadyReversed = errors.New("splitledger: settlement already reversed")

	// Materializer errors
	ErrStoreUnavailable = errors.New("splitledger: store unavailable")
	ErrRefreshQueueFull = errors.New("splitledger: refresh queue full")
	ErrLedgerStopped    = errors.New("splitledger: ledger stopped")
)

// StoreUnavailableError wraps a transient failure talking to a store,
// including timeouts. It matches ErrStoreUnavailable.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("splitledger: store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

func (e *StoreUnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }

// ValidationError represents a validation failure with details. It
// matches ErrInvalidInput.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("splitledger: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// invalid marks a domain validation error as invalid input while keeping
// it reachable through errors.Is and errors.As.
func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrRelationshipNotFound) ||
		errors.Is(err, ErrExpenseNotFound) ||
		errors.Is(err, ErrSettlementNotFound) ||
		errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrSnapshotNotFound)
}

// IsConflict returns true if the write lost a race or collided with an
// existing record. Re-read before retrying.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrStatusConflict) ||
		errors.Is(err, ErrAlreadyExists)
}

// IsRetryable returns true if the error is temporary and the operation can be retried as is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrRefreshQueueFull) ||
		errors.Is(err, context.DeadlineExceeded)
}

// known reports whether a store error already carries ledger meaning and
// must not be reclassified as an outage.
func known(err error) bool {
	return IsNotFound(err) ||
		IsConflict(err) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrStoreUnavailable)
}

// storeErr classifies an error returned by a store call.
func storeErr(op string, err error) error {
	if err == nil || known(err) {
		return err
	}
	return &StoreUnavailableError{Op: op, Err: err}
}
