package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    BookingStatus
		to      BookingStatus
		allowed bool
	}{
		{StatusPendingPayment, StatusConfirmed, true},
		{StatusPendingPayment, StatusCancelled, true},
		{StatusPendingPayment, StatusCheckedInOne, false},
		{StatusConfirmed, StatusCheckedInOne, true},
		{StatusConfirmed, StatusNeedsReview, true},
		{StatusConfirmed, StatusCompleted, false},
		{StatusCheckedInOne, StatusCheckedInBoth, true},
		{StatusCheckedInBoth, StatusCompleted, true},
		{StatusCheckedInBoth, StatusSettled, true},
		{StatusNeedsReview, StatusCheckedInBoth, true},
		{StatusNeedsReview, StatusSettled, true},
		{StatusNeedsReview, StatusCancelled, true},
		{StatusCompleted, StatusSettled, true},
		{StatusCompleted, StatusCancelled, false},
		{StatusSettled, StatusCancelled, false},
		{StatusCancelled, StatusConfirmed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestBookingStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusSettled.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusCompleted.IsTerminal())
	assert.False(t, StatusConfirmed.IsTerminal())
}

func TestBookingStatus_CanBeCancelled(t *testing.T) {
	assert.True(t, StatusPendingPayment.CanBeCancelled())
	assert.True(t, StatusConfirmed.CanBeCancelled())
	assert.True(t, StatusCheckedInBoth.CanBeCancelled())
	assert.True(t, StatusNeedsReview.CanBeCancelled())
	assert.False(t, StatusCompleted.CanBeCancelled())
	assert.False(t, StatusSettled.CanBeCancelled())
	assert.False(t, StatusCancelled.CanBeCancelled())
}

func TestParseBookingStatus(t *testing.T) {
	status, err := ParseBookingStatus("confirmed")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, status)

	_, err = ParseBookingStatus("galloping")
	assert.Error(t, err)
}

func TestReviewReturnStatus(t *testing.T) {
	assert.Equal(t, StatusConfirmed, ReviewReturnStatus(false, false))
	assert.Equal(t, StatusCheckedInOne, ReviewReturnStatus(true, false))
	assert.Equal(t, StatusCheckedInOne, ReviewReturnStatus(false, true))
	assert.Equal(t, StatusCheckedInBoth, ReviewReturnStatus(true, true))
}
