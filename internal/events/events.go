package events

import (
	"time"

	"github.com/google/uuid"
)

// Topic names shared with the other services.
const (
	TopicBookingEvents = "booking.events"
	TopicPaymentEvents = "payment.events"
)

// Event types carried on the payment topic.
const (
	PaymentBorrowerChargeCaptured = "payment.borrower_charge.captured"
	PaymentOwnerDepositCaptured   = "payment.owner_deposit.captured"
)

// Event types published on the booking topic.
const (
	BookingCancelled     = "booking.cancelled"
	BookingCompleted     = "booking.completed"
	BookingSettled       = "booking.settled"
	BookingReviewEntered = "booking.review_entered"
)

// EventSource identifies this service in published CloudEvents.
const EventSource = "service-booking"

// PaymentCapturedEvent is the payload of both capture event types.
type PaymentCapturedEvent struct {
	BookingID       uuid.UUID `json:"booking_id"`
	UserID          uuid.UUID `json:"user_id"`
	AmountCents     int64     `json:"amount_cents"`
	Currency        string    `json:"currency"`
	ChargeReference string    `json:"charge_reference"`
	CapturedAt      time.Time `json:"captured_at"`
}

// BookingCancelledEvent announces a terminal cancellation.
type BookingCancelledEvent struct {
	BookingID   uuid.UUID `json:"booking_id"`
	CancelledBy string    `json:"cancelled_by"`
	Scenario    string    `json:"scenario"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// BookingCompletedEvent announces that the rental window closed normally.
type BookingCompletedEvent struct {
	BookingID   uuid.UUID `json:"booking_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// BookingSettledEvent announces a settlement acknowledgment.
type BookingSettledEvent struct {
	BookingID uuid.UUID `json:"booking_id"`
	SettledAt time.Time `json:"settled_at"`
}

// BookingReviewEnteredEvent announces that a booking was frozen for review.
type BookingReviewEnteredEvent struct {
	BookingID uuid.UUID `json:"booking_id"`
	Reason    string    `json:"reason"`
	EnteredAt time.Time `json:"entered_at"`
}
