package audit

import (
	"context"

	"github.com/google/uuid"
)

// AuditRepository defines the append-only persistence contract for audit entries.
type AuditRepository interface {
	// Append persists a new entry. Existing entries are never touched.
	Append(ctx context.Context, e *Entry) error

	// ListByBooking retrieves entries for a booking, oldest first.
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*Entry, error)
}
