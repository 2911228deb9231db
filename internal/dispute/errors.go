package dispute

import "github.com/pkg/errors"

var (
	// ErrNotFound means the dispute or proposal does not exist.
	ErrNotFound = errors.New("dispute not found")

	// ErrInvalidState means the dispute's current status does not allow the
	// requested operation. Callers treat it as a conflict, not a failure.
	ErrInvalidState = errors.New("operation not allowed in current dispute state")

	// ErrActiveDispute means the transaction already has a non-resolved
	// dispute attached.
	ErrActiveDispute = errors.New("transaction already has an active dispute")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
