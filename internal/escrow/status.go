package escrow

import "github.com/custodia-pay/custodia/pkg/constants"

// allowedTransitions is the closed transition table for transaction status.
// The key is the current status, the value the statuses it may move to.
// Repository updates enforce the same guards in SQL; this table is the
// in-process source of truth for validation and tests.
var allowedTransitions = map[string][]string{
	constants.StatusPending: {
		constants.StatusPaid,
		constants.StatusExpired,
		constants.StatusCancelled,
	},
	constants.StatusPaid: {
		constants.StatusPaid, // seller marks delivered; status stays paid
		constants.StatusValidated,
		constants.StatusCompleted,
		constants.StatusDisputed,
	},
	constants.StatusValidated: {
		constants.StatusCompleted,
	},
	constants.StatusDisputed: {
		constants.StatusCompleted,
	},
	constants.StatusCompleted: {}, // terminal
	constants.StatusExpired:   {}, // terminal
	constants.StatusCancelled: {}, // terminal
}

// CanTransition reports whether a status change is allowed.
func CanTransition(from, to string) bool {
	allowed, exists := allowedTransitions[from]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// releasableStatuses are the statuses from which funds may be released.
// Fund movement additionally requires funds_released=false, checked both
// here and by the repository's conditional update.
func releasable(status string) bool {
	switch status {
	case constants.StatusPaid, constants.StatusValidated, constants.StatusDisputed:
		return true
	}
	return false
}
