package booking

import (
	"context"

	"github.com/google/uuid"
)

// BookingRepository defines the persistence contract for booking aggregates.
// The store provides single-row atomic reads and writes only; Update is an
// optimistic compare-and-set on the version column, never a multi-row
// transaction.
type BookingRepository interface {
	// FindByID retrieves a booking by its unique identifier.
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// FindByBorrowerID retrieves bookings for a borrower with pagination.
	FindByBorrowerID(ctx context.Context, borrowerID uuid.UUID, page, limit int) ([]*Booking, int64, error)

	// FindByOwnerID retrieves bookings for an owner with pagination.
	FindByOwnerID(ctx context.Context, ownerID uuid.UUID, page, limit int) ([]*Booking, int64, error)

	// FindAwaitingAcceptance retrieves bookings where the borrower has paid,
	// the owner has not deposited, and the booking is not cancelled, bounded
	// by limit. Used by the acceptance-expiry sweep.
	FindAwaitingAcceptance(ctx context.Context, limit int) ([]*Booking, error)

	// ListAll retrieves all bookings with pagination (admin).
	ListAll(ctx context.Context, page, limit int) ([]*Booking, int64, error)

	// ListNeedingReview retrieves bookings frozen for review with pagination (admin).
	ListNeedingReview(ctx context.Context, page, limit int) ([]*Booking, int64, error)

	// CountByStatus returns booking counts grouped by status (admin).
	CountByStatus(ctx context.Context) (map[string]int64, error)

	// Save persists a new booking.
	Save(ctx context.Context, booking *Booking) error

	// Update persists changes to an existing booking with optimistic locking.
	// A lost race surfaces as a conflict error; callers re-read and converge.
	Update(ctx context.Context, booking *Booking) error
}
