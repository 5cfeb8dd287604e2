package booking

import "fmt"

// BookingStatus represents the current state of a booking in its lifecycle.
type BookingStatus string

const (
	StatusPendingPayment BookingStatus = "pending_payment"
	StatusConfirmed      BookingStatus = "confirmed"
	StatusCheckedInOne   BookingStatus = "checked_in_partial"
	StatusCheckedInBoth  BookingStatus = "checked_in_both"
	StatusNeedsReview    BookingStatus = "needs_review"
	StatusCompleted      BookingStatus = "completed"
	StatusSettled        BookingStatus = "settled"
	StatusCancelled      BookingStatus = "cancelled"
)

// validTransitions defines the state machine for booking status transitions.
// Exits from needs_review back into the normal flow are resolved from the
// check-in flags (see ReviewReturnStatus), so needs_review lists every
// pre-completion state it can return to. Settled is reachable from the paid
// pre-completion states because an administrative resolution may settle a
// booking that never completes normally.
var validTransitions = map[BookingStatus][]BookingStatus{
	StatusPendingPayment: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusCheckedInOne, StatusNeedsReview, StatusSettled, StatusCancelled},
	StatusCheckedInOne:   {StatusCheckedInBoth, StatusNeedsReview, StatusSettled, StatusCancelled},
	StatusCheckedInBoth:  {StatusCompleted, StatusNeedsReview, StatusSettled, StatusCancelled},
	StatusNeedsReview:    {StatusConfirmed, StatusCheckedInOne, StatusCheckedInBoth, StatusCompleted, StatusSettled, StatusCancelled},
	StatusCompleted:      {StatusSettled},
	StatusSettled:        {},
	StatusCancelled:      {},
}

// IsValid returns true if the status is a recognized booking status.
func (s BookingStatus) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this status to the target is allowed.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible from this status.
func (s BookingStatus) IsTerminal() bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return true
	}
	return len(allowed) == 0
}

// CanBeCancelled returns true if the booking can be cancelled from this status.
func (s BookingStatus) CanBeCancelled() bool {
	return s.CanTransitionTo(StatusCancelled)
}

// String returns the string representation of the status.
func (s BookingStatus) String() string {
	return string(s)
}

// ParseBookingStatus converts a string to a BookingStatus, returning an error if invalid.
func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}
	return status, nil
}

// ReviewReturnStatus derives the status a booking returns to when an
// administrator clears review without attributing fault. The return state is
// fully determined by the check-in flags, so no prior status needs to be
// remembered across review entry.
func ReviewReturnStatus(borrowerCheckedIn, ownerCheckedIn bool) BookingStatus {
	switch {
	case borrowerCheckedIn && ownerCheckedIn:
		return StatusCheckedInBoth
	case borrowerCheckedIn || ownerCheckedIn:
		return StatusCheckedInOne
	default:
		return StatusConfirmed
	}
}
