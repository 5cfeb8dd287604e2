package credit

import (
	"time"

	"github.com/google/uuid"
	"github.com/spokeshare/service-booking/internal/domain"
)

// CreditType classifies a compensating credit.
type CreditType string

const (
	// TypeRebook is the non-monetary balance issued so a user can rebook
	// after a cancellation or system expiry.
	TypeRebook CreditType = "rebook"
)

// CreditStatus is the redemption state of a credit.
type CreditStatus string

const (
	StatusAvailable CreditStatus = "available"
	StatusUsed      CreditStatus = "used"
)

// DefaultValidity is how long a rebook credit remains redeemable.
const DefaultValidity = 365 * 24 * time.Hour

// Credit is a compensating balance owed to a user, scoped to one booking and
// one credit type. At most one available credit may exist per
// (user, booking, type); issuance is idempotent against that key.
type Credit struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	BookingID     uuid.UUID
	Type          CreditType
	Status        CreditStatus
	AmountCents   int64
	Currency      string
	ExpiresAt     time.Time
	UsedByBooking *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// New creates an available credit for the given user and booking.
func New(userID, bookingID uuid.UUID, t CreditType, amountCents int64, currency string) (*Credit, error) {
	if userID == uuid.Nil {
		return nil, domain.NewValidationError("user ID is required")
	}
	if bookingID == uuid.Nil {
		return nil, domain.NewValidationError("booking ID is required")
	}
	if amountCents <= 0 {
		return nil, domain.NewValidationError("credit amount must be positive")
	}
	now := time.Now().UTC()
	return &Credit{
		ID:          uuid.New(),
		UserID:      userID,
		BookingID:   bookingID,
		Type:        t,
		Status:      StatusAvailable,
		AmountCents: amountCents,
		Currency:    currency,
		ExpiresAt:   now.Add(DefaultValidity),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
