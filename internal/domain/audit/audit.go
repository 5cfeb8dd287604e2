package audit

import (
	"time"

	"github.com/google/uuid"
)

// ActorRole identifies who performed an audited action.
type ActorRole string

const (
	RoleBorrower ActorRole = "borrower"
	RoleOwner    ActorRole = "owner"
	RoleAdmin    ActorRole = "admin"
	RoleSystem   ActorRole = "system"
)

// Action tags recorded on audit entries.
const (
	ActionCancelled        = "booking.cancelled"
	ActionCheckedIn        = "booking.checked_in"
	ActionCompletionMarked = "booking.completion_confirmed"
	ActionCompleted        = "booking.completed"
	ActionNoShowClaimed    = "booking.no_show_claimed"
	ActionRefusalRecorded  = "booking.handover_refused"
	ActionAdminResolved    = "booking.admin_resolved"
	ActionNoShowResolved   = "booking.no_show_resolved"
	ActionSettlement       = "booking.settlement_attempted"
	ActionRefund           = "booking.refund"
	ActionCreditIssued     = "booking.credit_issued"
)

// Entry is an append-only record of a state-changing action. Entries are
// never mutated or deleted; they are the sole historical record of why a
// transition happened.
type Entry struct {
	ID        uuid.UUID
	BookingID uuid.UUID
	ActorRole ActorRole
	// ActorID is nil for system-initiated actions.
	ActorID   *uuid.UUID
	Action    string
	Note      string
	CreatedAt time.Time
}

// NewEntry creates an audit entry for the given booking and action.
func NewEntry(bookingID uuid.UUID, role ActorRole, actorID *uuid.UUID, action, note string) *Entry {
	return &Entry{
		ID:        uuid.New(),
		BookingID: bookingID,
		ActorRole: role,
		ActorID:   actorID,
		Action:    action,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}
}
