package escrow

import (
	"testing"

	"github.com/custodia-pay/custodia/pkg/constants"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{name: "pending to paid", from: constants.StatusPending, to: constants.StatusPaid, want: true},
		{name: "pending to expired", from: constants.StatusPending, to: constants.StatusExpired, want: true},
		{name: "pending to cancelled", from: constants.StatusPending, to: constants.StatusCancelled, want: true},
		{name: "pending to completed", from: constants.StatusPending, to: constants.StatusCompleted, want: false},
		{name: "paid to completed", from: constants.StatusPaid, to: constants.StatusCompleted, want: true},
		{name: "paid to disputed", from: constants.StatusPaid, to: constants.StatusDisputed, want: true},
		{name: "paid to expired", from: constants.StatusPaid, to: constants.StatusExpired, want: false},
		{name: "validated to completed", from: constants.StatusValidated, to: constants.StatusCompleted, want: true},
		{name: "disputed to completed", from: constants.StatusDisputed, to: constants.StatusCompleted, want: true},
		{name: "disputed to paid", from: constants.StatusDisputed, to: constants.StatusPaid, want: false},
		{name: "completed is terminal", from: constants.StatusCompleted, to: constants.StatusDisputed, want: false},
		{name: "expired is terminal", from: constants.StatusExpired, to: constants.StatusPending, want: false},
		{name: "cancelled is terminal", from: constants.StatusCancelled, to: constants.StatusPaid, want: false},
		{name: "unknown status", from: "bogus", to: constants.StatusPaid, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestReleasable(t *testing.T) {
	assert.True(t, releasable(constants.StatusPaid))
	assert.True(t, releasable(constants.StatusValidated))
	assert.True(t, releasable(constants.StatusDisputed))
	assert.False(t, releasable(constants.StatusPending))
	assert.False(t, releasable(constants.StatusCompleted))
	assert.False(t, releasable(constants.StatusExpired))
}
