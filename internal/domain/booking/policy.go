package booking

import (
	"time"

	"github.com/spokeshare/service-booking/internal/domain"
)

// Time-window policy constants. The check-in window is deliberately anchored
// on the scheduled start only, independent of the booking duration.
const (
	CheckInOpensBefore = 15 * time.Minute
	CheckInClosesAfter = 60 * time.Minute
	MinCompletionDelay = 20 * time.Minute
	RefusalWindow      = 10 * time.Minute

	// EarlyCancelCutoff separates early (partial refund) from late
	// (forfeited deposit) post-acceptance cancellations.
	EarlyCancelCutoff = 5 * 24 * time.Hour
)

// AcceptanceHours returns the time the owner has to accept a booking,
// measured from the given reference instant: 2 hours when the scheduled
// start is under 24 hours away, 4 hours when 24-72 hours away, 8 hours
// otherwise.
func AcceptanceHours(scheduledStart, from time.Time) (time.Duration, error) {
	if scheduledStart.IsZero() {
		return 0, domain.NewValidationError("scheduled start time is missing or malformed")
	}
	if from.IsZero() {
		return 0, domain.NewValidationError("reference time is missing or malformed")
	}
	until := scheduledStart.Sub(from)
	switch {
	case until < 24*time.Hour:
		return 2 * time.Hour, nil
	case until <= 72*time.Hour:
		return 4 * time.Hour, nil
	default:
		return 8 * time.Hour, nil
	}
}

// AcceptanceDeadline computes the instant by which the owner must have paid
// the deposit: booking creation time plus the acceptance hours for its
// schedule proximity at creation.
func AcceptanceDeadline(createdAt, scheduledStart time.Time) (time.Time, error) {
	if createdAt.IsZero() {
		return time.Time{}, domain.NewValidationError("booking creation time is missing or malformed")
	}
	hours, err := AcceptanceHours(scheduledStart, createdAt)
	if err != nil {
		return time.Time{}, err
	}
	return createdAt.Add(hours), nil
}

// CheckInWindow returns the inclusive interval during which either party may
// check in: opens 15 minutes before the scheduled start and closes 60
// minutes after it.
func CheckInWindow(scheduledStart time.Time) (open, close time.Time, err error) {
	if scheduledStart.IsZero() {
		return time.Time{}, time.Time{}, domain.NewValidationError("scheduled start time is missing or malformed")
	}
	return scheduledStart.Add(-CheckInOpensBefore), scheduledStart.Add(CheckInClosesAfter), nil
}

// CompletionAllowedAt returns the earliest instant at which completion may be
// confirmed: 20 minutes after the scheduled start, inclusive.
func CompletionAllowedAt(scheduledStart time.Time) (time.Time, error) {
	if scheduledStart.IsZero() {
		return time.Time{}, domain.NewValidationError("scheduled start time is missing or malformed")
	}
	return scheduledStart.Add(MinCompletionDelay), nil
}

// RefusalDeadline returns the last instant at which a handover refusal may
// be submitted: 10 minutes after the scheduled start, inclusive.
func RefusalDeadline(scheduledStart time.Time) (time.Time, error) {
	if scheduledStart.IsZero() {
		return time.Time{}, domain.NewValidationError("scheduled start time is missing or malformed")
	}
	return scheduledStart.Add(RefusalWindow), nil
}

// IsEarlyCancellation reports whether a post-acceptance cancellation at the
// given instant qualifies for the partial deposit refund (more than five
// days before the scheduled start).
func IsEarlyCancellation(scheduledStart, now time.Time) (bool, error) {
	if scheduledStart.IsZero() {
		return false, domain.NewValidationError("scheduled start time is missing or malformed")
	}
	if now.IsZero() {
		return false, domain.NewValidationError("reference time is missing or malformed")
	}
	return scheduledStart.Sub(now) > EarlyCancelCutoff, nil
}
