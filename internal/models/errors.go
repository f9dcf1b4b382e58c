package models

import "errors"

// Domain errors shared across the repository and service layers.
var (
	// ErrNotFound marks a referenced loan, installment or contract that does
	// not exist. Inside the engine this is an invariant violation.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks malformed inputs that can never produce a valid
	// ledger mutation.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks a write that found its target row no longer in an
	// active status, e.g. two concurrent transitions racing on the same
	// installment. The losing write is a no-op, not a corruption.
	ErrConflict = errors.New("installment no longer active")
)
