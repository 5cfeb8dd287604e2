package payment

import (
	"context"

	"github.com/google/uuid"
)

// PaymentRepository defines the persistence contract for payment rows.
type PaymentRepository interface {
	// Save persists a new payment row.
	Save(ctx context.Context, p *Payment) error

	// FindByBookingAndType retrieves the most recent payment of the given
	// type for a booking, or a not-found error.
	FindByBookingAndType(ctx context.Context, bookingID uuid.UUID, t PaymentType) (*Payment, error)

	// FindByBooking retrieves all payment rows for a booking.
	FindByBooking(ctx context.Context, bookingID uuid.UUID) ([]*Payment, error)

	// RecordRefund updates a payment row in place with the gateway refund
	// reference and refunded amount.
	RecordRefund(ctx context.Context, paymentID uuid.UUID, refundReference string, refundedAmountCents int64) error
}
