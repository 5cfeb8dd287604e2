package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/spokeshare/service-booking/internal/domain"
)

// PaymentType classifies a money-movement row.
type PaymentType string

const (
	TypeBorrowerCharge       PaymentType = "borrower_charge"
	TypeOwnerDeposit         PaymentType = "owner_deposit"
	TypeCancellationFee      PaymentType = "cancellation_fee_income"
	TypeOwnerPayout          PaymentType = "owner_payout"
	TypeBorrowerCompensation PaymentType = "borrower_compensation"
)

// IsValid returns true if the payment type is recognized.
func (t PaymentType) IsValid() bool {
	switch t {
	case TypeBorrowerCharge, TypeOwnerDeposit, TypeCancellationFee, TypeOwnerPayout, TypeBorrowerCompensation:
		return true
	}
	return false
}

// PaymentStatus is the disposition of a payment row.
type PaymentStatus string

const (
	StatusSucceeded PaymentStatus = "succeeded"
	StatusPaid      PaymentStatus = "paid"
	StatusPayoutDue PaymentStatus = "payout_due"
	StatusRefunded  PaymentStatus = "refunded"
)

// Payment is one money-movement attempt attached to a booking. Rows are
// created by the charge-capture boundary or by a transition handler, updated
// in place when a refund completes or a payout is marked paid, and never
// deleted.
type Payment struct {
	ID                  uuid.UUID
	BookingID           uuid.UUID
	UserID              uuid.UUID
	Type                PaymentType
	Status              PaymentStatus
	AmountCents         int64
	Currency            string
	ChargeReference     string
	RefundReference     string
	RefundedAmountCents int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// New creates a payment row for a booking.
func New(bookingID, userID uuid.UUID, t PaymentType, status PaymentStatus, amountCents int64, currency, chargeRef string) (*Payment, error) {
	if bookingID == uuid.Nil {
		return nil, domain.NewValidationError("booking ID is required")
	}
	if !t.IsValid() {
		return nil, domain.NewValidationErrorf("invalid payment type: %s", t)
	}
	if amountCents < 0 {
		return nil, domain.NewValidationError("payment amount cannot be negative")
	}
	now := time.Now().UTC()
	return &Payment{
		ID:              uuid.New(),
		BookingID:       bookingID,
		UserID:          userID,
		Type:            t,
		Status:          status,
		AmountCents:     amountCents,
		Currency:        currency,
		ChargeReference: chargeRef,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}
