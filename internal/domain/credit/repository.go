package credit

import (
	"context"

	"github.com/google/uuid"
)

// CreditRepository defines the persistence contract for credits. The store
// enforces a partial unique index on (user, booking, type) where
// status = available, making Save race-safe for idempotent issuance.
type CreditRepository interface {
	// Save persists a new credit. A duplicate of the availability key
	// surfaces as a conflict error.
	Save(ctx context.Context, c *Credit) error

	// FindAvailable retrieves the available credit for the dedup key, or a
	// not-found error.
	FindAvailable(ctx context.Context, userID, bookingID uuid.UUID, t CreditType) (*Credit, error)

	// FindByUser retrieves all credits for a user.
	FindByUser(ctx context.Context, userID uuid.UUID) ([]*Credit, error)
}
