package escrow

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no transaction exists for the given id.
	ErrNotFound = errors.New("transaction not found")

	// ErrInvalidTransition means a transition's precondition does not hold
	// (e.g. releasing funds twice). Callers log it and treat the operation
	// as a no-op; state is never corrupted.
	ErrInvalidTransition = errors.New("invalid transaction state for this operation")

	// ErrReleaseInProgress means another worker holds the release lock for
	// the same transaction. Safe to retry on the next cycle.
	ErrReleaseInProgress = errors.New("release already in progress")
)

// ValidationError is a synchronous rejection of bad input. No state change
// has happened when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}
