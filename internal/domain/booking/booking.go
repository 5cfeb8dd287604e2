package booking

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/spokeshare/service-booking/internal/domain"
)

const bookingNumberChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Party identifies one of the two participants in a rental.
type Party string

const (
	PartyBorrower Party = "borrower"
	PartyOwner    Party = "owner"
)

// IsValid returns true if the party is recognized.
func (p Party) IsValid() bool {
	return p == PartyBorrower || p == PartyOwner
}

// Other returns the opposite party.
func (p Party) Other() Party {
	if p == PartyBorrower {
		return PartyOwner
	}
	return PartyBorrower
}

// CancelActor identifies who triggered a cancellation.
type CancelActor string

const (
	CancelledByBorrower CancelActor = "borrower"
	CancelledByOwner    CancelActor = "owner"
	CancelledBySystem   CancelActor = "system_expired"
)

// IsValid returns true if the cancel actor is recognized.
func (a CancelActor) IsValid() bool {
	return a == CancelledByBorrower || a == CancelledByOwner || a == CancelledBySystem
}

// DepositChoice is the owner's post-completion disposition of their deposit.
type DepositChoice string

const (
	DepositChoiceRefund DepositChoice = "refund"
	DepositChoiceKeep   DepositChoice = "keep"
)

// IsValid returns true if the deposit choice is recognized.
func (c DepositChoice) IsValid() bool {
	return c == DepositChoiceRefund || c == DepositChoiceKeep
}

// Cancellation scenarios persisted on the booking record.
const (
	ScenarioSystemExpired         = "system_expired"
	ScenarioBorrowerCancelPreAcc  = "borrower_cancel_pre_accept"
	ScenarioOwnerDeclinedPreAcc   = "owner_declined_pre_accept"
	ScenarioEarlyCancel           = "post_accept_early_cancel"
	ScenarioLateCancel            = "post_accept_late_cancel"
	StatusDetailExpiredAcceptance = "expired_no_owner_acceptance"
)

// Refund summary states persisted on the booking record.
const (
	RefundStatusPending      = "refund_pending"
	RefundStatusRefundedFull = "refunded_full"
	RefundStatusRefundedPart = "refunded_partial"
	RefundStatusCreditedPart = "credited_partial"
	RefundStatusForfeited    = "forfeited"
)

// Booking is the aggregate root for the rental booking domain.
type Booking struct {
	id            uuid.UUID
	bookingNumber string
	borrowerID    uuid.UUID
	ownerID       uuid.UUID
	bikeID        uuid.UUID

	status       BookingStatus
	statusDetail string

	scheduledStartAt time.Time
	durationMinutes  int

	borrowerPaid      bool
	ownerDepositPaid  bool
	borrowerCheckedIn bool
	ownerCheckedIn    bool
	borrowerCheckedInAt *time.Time
	ownerCheckedInAt    *time.Time

	borrowerConfirmedComplete bool
	ownerConfirmedComplete    bool
	ownerDepositChoice        DepositChoice

	completed   bool
	completedAt *time.Time

	cancelled      bool
	cancelledBy    CancelActor
	cancelledAt    *time.Time
	cancelScenario string

	needsReview           bool
	reviewReason          string
	needsRebooking        bool
	treatAsOwnerNoShow    bool
	treatAsBorrowerNoShow bool
	bikeInvalid           bool
	bikeInvalidReason     string
	bikeInvalidAt         *time.Time

	refundStatus      string
	refundAmountCents int64
	refundIntentKey   string

	payoutAmountCents int64
	ownerPayoutDone   bool

	settled           bool
	settledAt         *time.Time
	settlementOutcome []byte

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// generateBookingNumber creates a booking number in the format "RB-XXXXXX".
func generateBookingNumber() (string, error) {
	result := make([]byte, 6)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(bookingNumberChars))))
		if err != nil {
			return "", fmt.Errorf("failed to generate booking number: %w", err)
		}
		result[i] = bookingNumberChars[n.Int64()]
	}
	return "RB-" + string(result), nil
}

// NewBooking creates a new Booking aggregate in pending_payment with both
// payment flags false.
func NewBooking(borrowerID, ownerID, bikeID uuid.UUID, scheduledStartAt time.Time, durationMinutes int) (*Booking, error) {
	if borrowerID == uuid.Nil {
		return nil, domain.NewValidationError("borrower ID is required")
	}
	if ownerID == uuid.Nil {
		return nil, domain.NewValidationError("owner ID is required")
	}
	if borrowerID == ownerID {
		return nil, domain.NewValidationError("borrower and owner must be different users")
	}
	if bikeID == uuid.Nil {
		return nil, domain.NewValidationError("bike ID is required")
	}
	if scheduledStartAt.IsZero() {
		return nil, domain.NewValidationError("scheduled start time is required")
	}
	if durationMinutes <= 0 {
		return nil, domain.NewValidationError("duration must be positive")
	}

	bookingNumber, err := generateBookingNumber()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Booking{
		id:               uuid.New(),
		bookingNumber:    bookingNumber,
		borrowerID:       borrowerID,
		ownerID:          ownerID,
		bikeID:           bikeID,
		status:           StatusPendingPayment,
		scheduledStartAt: scheduledStartAt.UTC(),
		durationMinutes:  durationMinutes,
		version:          1,
		createdAt:        now,
		updatedAt:        now,
	}, nil
}

// Snapshot is the flat persistence representation of a Booking. Reconstruct
// rebuilds the aggregate from it without validation.
type Snapshot struct {
	ID            uuid.UUID
	BookingNumber string
	BorrowerID    uuid.UUID
	OwnerID       uuid.UUID
	BikeID        uuid.UUID

	Status       BookingStatus
	StatusDetail string

	ScheduledStartAt time.Time
	DurationMinutes  int

	BorrowerPaid        bool
	OwnerDepositPaid    bool
	BorrowerCheckedIn   bool
	OwnerCheckedIn      bool
	BorrowerCheckedInAt *time.Time
	OwnerCheckedInAt    *time.Time

	BorrowerConfirmedComplete bool
	OwnerConfirmedComplete    bool
	OwnerDepositChoice        DepositChoice

	Completed   bool
	CompletedAt *time.Time

	Cancelled      bool
	CancelledBy    CancelActor
	CancelledAt    *time.Time
	CancelScenario string

	NeedsReview           bool
	ReviewReason          string
	NeedsRebooking        bool
	TreatAsOwnerNoShow    bool
	TreatAsBorrowerNoShow bool
	BikeInvalid           bool
	BikeInvalidReason     string
	BikeInvalidAt         *time.Time

	RefundStatus      string
	RefundAmountCents int64
	RefundIntentKey   string

	PayoutAmountCents int64
	OwnerPayoutDone   bool

	Settled           bool
	SettledAt         *time.Time
	SettlementOutcome []byte

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Reconstruct rebuilds a Booking from persistence data (no validation).
func Reconstruct(s Snapshot) *Booking {
	return &Booking{
		id:                        s.ID,
		bookingNumber:             s.BookingNumber,
		borrowerID:                s.BorrowerID,
		ownerID:                   s.OwnerID,
		bikeID:                    s.BikeID,
		status:                    s.Status,
		statusDetail:              s.StatusDetail,
		scheduledStartAt:          s.ScheduledStartAt,
		durationMinutes:           s.DurationMinutes,
		borrowerPaid:              s.BorrowerPaid,
		ownerDepositPaid:          s.OwnerDepositPaid,
		borrowerCheckedIn:         s.BorrowerCheckedIn,
		ownerCheckedIn:            s.OwnerCheckedIn,
		borrowerCheckedInAt:       s.BorrowerCheckedInAt,
		ownerCheckedInAt:          s.OwnerCheckedInAt,
		borrowerConfirmedComplete: s.BorrowerConfirmedComplete,
		ownerConfirmedComplete:    s.OwnerConfirmedComplete,
		ownerDepositChoice:        s.OwnerDepositChoice,
		completed:                 s.Completed,
		completedAt:               s.CompletedAt,
		cancelled:                 s.Cancelled,
		cancelledBy:               s.CancelledBy,
		cancelledAt:               s.CancelledAt,
		cancelScenario:            s.CancelScenario,
		needsReview:               s.NeedsReview,
		reviewReason:              s.ReviewReason,
		needsRebooking:            s.NeedsRebooking,
		treatAsOwnerNoShow:        s.TreatAsOwnerNoShow,
		treatAsBorrowerNoShow:     s.TreatAsBorrowerNoShow,
		bikeInvalid:               s.BikeInvalid,
		bikeInvalidReason:         s.BikeInvalidReason,
		bikeInvalidAt:             s.BikeInvalidAt,
		refundStatus:              s.RefundStatus,
		refundAmountCents:         s.RefundAmountCents,
		refundIntentKey:           s.RefundIntentKey,
		payoutAmountCents:         s.PayoutAmountCents,
		ownerPayoutDone:           s.OwnerPayoutDone,
		settled:                   s.Settled,
		settledAt:                 s.SettledAt,
		settlementOutcome:         s.SettlementOutcome,
		version:                   s.Version,
		createdAt:                 s.CreatedAt,
		updatedAt:                 s.UpdatedAt,
	}
}

// Snapshot returns the flat persistence representation of the aggregate.
func (b *Booking) Snapshot() Snapshot {
	return Snapshot{
		ID:                        b.id,
		BookingNumber:             b.bookingNumber,
		BorrowerID:                b.borrowerID,
		OwnerID:                   b.ownerID,
		BikeID:                    b.bikeID,
		Status:                    b.status,
		StatusDetail:              b.statusDetail,
		ScheduledStartAt:          b.scheduledStartAt,
		DurationMinutes:           b.durationMinutes,
		BorrowerPaid:              b.borrowerPaid,
		OwnerDepositPaid:          b.ownerDepositPaid,
		BorrowerCheckedIn:         b.borrowerCheckedIn,
		OwnerCheckedIn:            b.ownerCheckedIn,
		BorrowerCheckedInAt:       b.borrowerCheckedInAt,
		OwnerCheckedInAt:          b.ownerCheckedInAt,
		BorrowerConfirmedComplete: b.borrowerConfirmedComplete,
		OwnerConfirmedComplete:    b.ownerConfirmedComplete,
		OwnerDepositChoice:        b.ownerDepositChoice,
		Completed:                 b.completed,
		CompletedAt:               b.completedAt,
		Cancelled:                 b.cancelled,
		CancelledBy:               b.cancelledBy,
		CancelledAt:               b.cancelledAt,
		CancelScenario:            b.cancelScenario,
		NeedsReview:               b.needsReview,
		ReviewReason:              b.reviewReason,
		NeedsRebooking:            b.needsRebooking,
		TreatAsOwnerNoShow:        b.treatAsOwnerNoShow,
		TreatAsBorrowerNoShow:     b.treatAsBorrowerNoShow,
		BikeInvalid:               b.bikeInvalid,
		BikeInvalidReason:         b.bikeInvalidReason,
		BikeInvalidAt:             b.bikeInvalidAt,
		RefundStatus:              b.refundStatus,
		RefundAmountCents:         b.refundAmountCents,
		RefundIntentKey:           b.refundIntentKey,
		PayoutAmountCents:         b.payoutAmountCents,
		OwnerPayoutDone:           b.ownerPayoutDone,
		Settled:                   b.settled,
		SettledAt:                 b.settledAt,
		SettlementOutcome:         b.settlementOutcome,
		Version:                   b.version,
		CreatedAt:                 b.createdAt,
		UpdatedAt:                 b.updatedAt,
	}
}

// --- Getters ---

// ID returns the booking's unique identifier.
func (b *Booking) ID() uuid.UUID { return b.id }

// BookingNumber returns the human-readable booking number.
func (b *Booking) BookingNumber() string { return b.bookingNumber }

// BorrowerID returns the borrower's user ID.
func (b *Booking) BorrowerID() uuid.UUID { return b.borrowerID }

// OwnerID returns the bike owner's user ID.
func (b *Booking) OwnerID() uuid.UUID { return b.ownerID }

// BikeID returns the rented bike's ID.
func (b *Booking) BikeID() uuid.UUID { return b.bikeID }

// Status returns the current lifecycle status.
func (b *Booking) Status() BookingStatus { return b.status }

// StatusDetail returns the descriptive status label, if any.
func (b *Booking) StatusDetail() string { return b.statusDetail }

// ScheduledStartAt returns the scheduled rental start time.
func (b *Booking) ScheduledStartAt() time.Time { return b.scheduledStartAt }

// DurationMinutes returns the scheduled rental duration.
func (b *Booking) DurationMinutes() int { return b.durationMinutes }

// BorrowerPaid reports whether the borrower's charge was captured.
func (b *Booking) BorrowerPaid() bool { return b.borrowerPaid }

// OwnerDepositPaid reports whether the owner's deposit was captured.
func (b *Booking) OwnerDepositPaid() bool { return b.ownerDepositPaid }

// BothPaid reports whether both payment flags are set.
func (b *Booking) BothPaid() bool { return b.borrowerPaid && b.ownerDepositPaid }

// PartyCheckedIn reports whether the given party has checked in.
func (b *Booking) PartyCheckedIn(p Party) bool {
	if p == PartyBorrower {
		return b.borrowerCheckedIn
	}
	return b.ownerCheckedIn
}

// BorrowerCheckedIn reports whether the borrower has checked in.
func (b *Booking) BorrowerCheckedIn() bool { return b.borrowerCheckedIn }

// OwnerCheckedIn reports whether the owner has checked in.
func (b *Booking) OwnerCheckedIn() bool { return b.ownerCheckedIn }

// BorrowerCheckedInAt returns the borrower's check-in time, or nil.
func (b *Booking) BorrowerCheckedInAt() *time.Time { return b.borrowerCheckedInAt }

// OwnerCheckedInAt returns the owner's check-in time, or nil.
func (b *Booking) OwnerCheckedInAt() *time.Time { return b.ownerCheckedInAt }

// PartyConfirmedComplete reports whether the given party has confirmed completion.
func (b *Booking) PartyConfirmedComplete(p Party) bool {
	if p == PartyBorrower {
		return b.borrowerConfirmedComplete
	}
	return b.ownerConfirmedComplete
}

// BorrowerConfirmedComplete reports whether the borrower confirmed completion.
func (b *Booking) BorrowerConfirmedComplete() bool { return b.borrowerConfirmedComplete }

// OwnerConfirmedComplete reports whether the owner confirmed completion.
func (b *Booking) OwnerConfirmedComplete() bool { return b.ownerConfirmedComplete }

// OwnerDepositChoice returns the owner's deposit disposition, or "".
func (b *Booking) OwnerDepositChoice() DepositChoice { return b.ownerDepositChoice }

// Completed reports whether the rental reached completion.
func (b *Booking) Completed() bool { return b.completed }

// CompletedAt returns the completion time, or nil.
func (b *Booking) CompletedAt() *time.Time { return b.completedAt }

// Cancelled reports whether the booking is cancelled.
func (b *Booking) Cancelled() bool { return b.cancelled }

// CancelledBy returns who triggered the cancellation.
func (b *Booking) CancelledBy() CancelActor { return b.cancelledBy }

// CancelledAt returns the cancellation time, or nil.
func (b *Booking) CancelledAt() *time.Time { return b.cancelledAt }

// CancelScenario returns the recorded cancellation scenario.
func (b *Booking) CancelScenario() string { return b.cancelScenario }

// NeedsReview reports whether the booking is frozen pending admin action.
func (b *Booking) NeedsReview() bool { return b.needsReview }

// ReviewReason returns the recorded review reason tag.
func (b *Booking) ReviewReason() string { return b.reviewReason }

// NeedsRebooking reports whether the borrower needs a replacement booking.
func (b *Booking) NeedsRebooking() bool { return b.needsRebooking }

// TreatAsOwnerNoShow reports whether the owner is attributed a no-show.
func (b *Booking) TreatAsOwnerNoShow() bool { return b.treatAsOwnerNoShow }

// TreatAsBorrowerNoShow reports whether the borrower is attributed a no-show.
func (b *Booking) TreatAsBorrowerNoShow() bool { return b.treatAsBorrowerNoShow }

// BikeInvalid reports whether the rental asset itself was flagged invalid.
func (b *Booking) BikeInvalid() bool { return b.bikeInvalid }

// BikeInvalidReason returns why the bike was flagged invalid.
func (b *Booking) BikeInvalidReason() string { return b.bikeInvalidReason }

// BikeInvalidAt returns when the bike was flagged invalid, or nil.
func (b *Booking) BikeInvalidAt() *time.Time { return b.bikeInvalidAt }

// RefundStatus returns the booking-level refund summary state.
func (b *Booking) RefundStatus() string { return b.refundStatus }

// RefundAmountCents returns the booking-level refund summary amount.
func (b *Booking) RefundAmountCents() int64 { return b.refundAmountCents }

// RefundIntentKey returns the write-ahead refund idempotency key, or "".
func (b *Booking) RefundIntentKey() string { return b.refundIntentKey }

// PayoutAmountCents returns the placeholder owner payout amount.
func (b *Booking) PayoutAmountCents() int64 { return b.payoutAmountCents }

// OwnerPayoutDone reports whether the owner payout was disbursed.
func (b *Booking) OwnerPayoutDone() bool { return b.ownerPayoutDone }

// Settled reports whether final settlement completed.
func (b *Booking) Settled() bool { return b.settled }

// SettledAt returns the settlement time, or nil.
func (b *Booking) SettledAt() *time.Time { return b.settledAt }

// SettlementOutcome returns the raw settlement response recorded, or nil.
func (b *Booking) SettlementOutcome() []byte { return b.settlementOutcome }

// Version returns the entity version for optimistic locking.
func (b *Booking) Version() int64 { return b.version }

// CreatedAt returns the creation timestamp.
func (b *Booking) CreatedAt() time.Time { return b.createdAt }

// UpdatedAt returns the last-updated timestamp.
func (b *Booking) UpdatedAt() time.Time { return b.updatedAt }

// --- Behavior ---

func (b *Booking) touch(at time.Time) {
	b.updatedAt = at.UTC()
}

// MarkBorrowerPaid records capture of the borrower's charge. Repeated calls
// are no-ops. Moves to confirmed once both payment flags are set.
func (b *Booking) MarkBorrowerPaid(at time.Time) error {
	if b.cancelled || b.settled {
		return domain.NewInvalidStateErrorf("booking %s accepts no payment in status %s", b.bookingNumber, b.status)
	}
	if b.borrowerPaid {
		return nil
	}
	b.borrowerPaid = true
	b.advanceToConfirmed(at)
	b.touch(at)
	return nil
}

// MarkOwnerDepositPaid records capture of the owner's deposit. Repeated calls
// are no-ops. Moves to confirmed once both payment flags are set.
func (b *Booking) MarkOwnerDepositPaid(at time.Time) error {
	if b.cancelled || b.settled {
		return domain.NewInvalidStateErrorf("booking %s accepts no payment in status %s", b.bookingNumber, b.status)
	}
	if b.ownerDepositPaid {
		return nil
	}
	b.ownerDepositPaid = true
	b.advanceToConfirmed(at)
	b.touch(at)
	return nil
}

func (b *Booking) advanceToConfirmed(at time.Time) {
	if b.BothPaid() && b.status.CanTransitionTo(StatusConfirmed) && b.status == StatusPendingPayment {
		b.status = StatusConfirmed
	}
}

// CheckIn records physical presence of the given party. Window eligibility is
// validated by the caller against the time-window policy; this method guards
// lifecycle state only.
func (b *Booking) CheckIn(p Party, at time.Time) error {
	if !p.IsValid() {
		return domain.NewValidationErrorf("invalid party: %s", p)
	}
	if b.cancelled {
		return domain.NewInvalidStateError("booking is cancelled")
	}
	if b.completed || b.settled {
		return domain.NewInvalidStateError("booking is already completed")
	}
	if b.needsReview {
		return domain.NewInvalidStateError("booking is frozen pending administrative review")
	}
	if !b.BothPaid() {
		return domain.NewInvalidStateError("both parties must have paid before check-in")
	}
	if b.PartyCheckedIn(p) {
		return nil
	}

	ts := at.UTC()
	if p == PartyBorrower {
		b.borrowerCheckedIn = true
		b.borrowerCheckedInAt = &ts
	} else {
		b.ownerCheckedIn = true
		b.ownerCheckedInAt = &ts
	}

	target := ReviewReturnStatus(b.borrowerCheckedIn, b.ownerCheckedIn)
	if b.status.CanTransitionTo(target) {
		b.status = target
	}
	b.touch(at)
	return nil
}

// ConfirmCompletion records the given party's completion confirmation.
// Timing eligibility is validated by the caller. When both confirmations are
// present and the booking is not yet completed, the completion transition
// fires exactly once with a placeholder payout amount.
func (b *Booking) ConfirmCompletion(p Party, at time.Time) error {
	if !p.IsValid() {
		return domain.NewValidationErrorf("invalid party: %s", p)
	}
	if b.cancelled {
		return domain.NewInvalidStateError("booking is cancelled")
	}
	if b.needsReview {
		return domain.NewInvalidStateError("booking is frozen pending administrative review")
	}
	if !b.borrowerCheckedIn || !b.ownerCheckedIn {
		missing := PartyBorrower
		if b.borrowerCheckedIn {
			missing = PartyOwner
		}
		return domain.NewInvalidStateErrorf("completion requires both check-ins; %s has not checked in", missing)
	}

	if p == PartyBorrower {
		b.borrowerConfirmedComplete = true
	} else {
		b.ownerConfirmedComplete = true
	}

	if b.borrowerConfirmedComplete && b.ownerConfirmedComplete && !b.completed {
		ts := at.UTC()
		b.completed = true
		b.completedAt = &ts
		b.ownerPayoutDone = false
		if b.status.CanTransitionTo(StatusCompleted) {
			b.status = StatusCompleted
		}
	}
	b.touch(at)
	return nil
}

// SetOwnerDepositChoice persists the owner's deposit disposition verbatim.
func (b *Booking) SetOwnerDepositChoice(choice DepositChoice, at time.Time) error {
	if !choice.IsValid() {
		return domain.NewValidationErrorf("invalid owner deposit choice: %s", choice)
	}
	b.ownerDepositChoice = choice
	b.touch(at)
	return nil
}

// RecordPayoutPlaceholder sets the placeholder payout amount written at completion.
func (b *Booking) RecordPayoutPlaceholder(amountCents int64, at time.Time) {
	b.payoutAmountCents = amountCents
	b.touch(at)
}

// Cancel transitions the booking to cancelled with the given actor, scenario,
// and descriptive detail. Already-cancelled bookings are rejected here; the
// idempotent success no-op lives in the transition handler.
func (b *Booking) Cancel(by CancelActor, scenario, detail string, at time.Time) error {
	if !by.IsValid() {
		return domain.NewValidationErrorf("invalid cancellation actor: %s", by)
	}
	if b.cancelled {
		return domain.NewInvalidStateError("booking is already cancelled")
	}
	if !b.status.CanBeCancelled() {
		return domain.NewInvalidStateErrorf("booking in status %s cannot be cancelled", b.status)
	}
	ts := at.UTC()
	b.cancelled = true
	b.cancelledBy = by
	b.cancelledAt = &ts
	b.cancelScenario = scenario
	b.statusDetail = detail
	b.status = StatusCancelled
	b.touch(at)
	return nil
}

// EnterReview freezes the booking pending administrative action.
func (b *Booking) EnterReview(reason string, at time.Time) error {
	if b.cancelled {
		return domain.NewInvalidStateError("booking is cancelled")
	}
	if b.completed || b.settled {
		return domain.NewInvalidStateError("booking is already completed")
	}
	if !b.status.CanTransitionTo(StatusNeedsReview) {
		return domain.NewInvalidStateErrorf("booking in status %s cannot enter review", b.status)
	}
	b.needsReview = true
	b.reviewReason = reason
	b.status = StatusNeedsReview
	b.touch(at)
	return nil
}

// SetReviewReason overwrites the review reason tag.
func (b *Booking) SetReviewReason(reason string, at time.Time) {
	b.reviewReason = reason
	b.touch(at)
}

// MarkNeedsRebooking flags that the borrower requires a replacement booking.
func (b *Booking) MarkNeedsRebooking(at time.Time) {
	b.needsRebooking = true
	b.touch(at)
}

// MarkBikeInvalid flags the rental asset itself as the cause of a refusal.
func (b *Booking) MarkBikeInvalid(reason string, at time.Time) {
	ts := at.UTC()
	b.bikeInvalid = true
	b.bikeInvalidReason = reason
	b.bikeInvalidAt = &ts
	b.touch(at)
}

// AttributeNoShow sets the fault flags. The two flags are mutually exclusive;
// setting one clears the other.
func (b *Booking) AttributeNoShow(ownerAtFault bool, at time.Time) {
	b.treatAsOwnerNoShow = ownerAtFault
	b.treatAsBorrowerNoShow = !ownerAtFault
	b.touch(at)
}

// ClearReviewFlags clears review and all no-show/invalid flags and returns
// the booking to the normal flow derived from its check-in flags.
func (b *Booking) ClearReviewFlags(at time.Time) {
	b.needsReview = false
	b.reviewReason = ""
	b.needsRebooking = false
	b.treatAsOwnerNoShow = false
	b.treatAsBorrowerNoShow = false
	b.bikeInvalid = false
	b.bikeInvalidReason = ""
	b.bikeInvalidAt = nil
	if b.status == StatusNeedsReview {
		target := ReviewReturnStatus(b.borrowerCheckedIn, b.ownerCheckedIn)
		if b.completed {
			target = StatusCompleted
		}
		b.status = target
	}
	b.touch(at)
}

// ClearNoShowClaim clears the no-show fault flags and the review reason and
// lifts the freeze, leaving refusal-related flags (needs_rebooking,
// bike_invalid) untouched.
func (b *Booking) ClearNoShowClaim(at time.Time) {
	b.treatAsOwnerNoShow = false
	b.treatAsBorrowerNoShow = false
	b.reviewReason = ""
	b.needsReview = false
	if b.status == StatusNeedsReview {
		target := ReviewReturnStatus(b.borrowerCheckedIn, b.ownerCheckedIn)
		if b.completed {
			target = StatusCompleted
		}
		b.status = target
	}
	b.touch(at)
}

// ClearReview lifts the review freeze without touching the fault flags,
// used by resolutions that attribute fault before settling.
func (b *Booking) ClearReview(at time.Time) {
	b.needsReview = false
	if b.status == StatusNeedsReview {
		target := ReviewReturnStatus(b.borrowerCheckedIn, b.ownerCheckedIn)
		if b.completed {
			target = StatusCompleted
		}
		b.status = target
	}
	b.touch(at)
}

// SetRefundIntent writes the write-ahead refund marker carrying the
// idempotency key before any gateway call is attempted.
func (b *Booking) SetRefundIntent(key string, amountCents int64, at time.Time) {
	b.refundStatus = RefundStatusPending
	b.refundAmountCents = amountCents
	b.refundIntentKey = key
	b.touch(at)
}

// SetRefundSummary finalizes the booking-level refund summary.
func (b *Booking) SetRefundSummary(status string, amountCents int64, at time.Time) {
	b.refundStatus = status
	b.refundAmountCents = amountCents
	b.touch(at)
}

// MarkSettled records a successful settlement outcome. Fires at most once.
func (b *Booking) MarkSettled(outcome []byte, at time.Time) error {
	if b.cancelled {
		return domain.NewInvalidStateError("cancelled booking cannot be settled")
	}
	if b.settled {
		return nil
	}
	if !b.status.CanTransitionTo(StatusSettled) {
		return domain.NewInvalidStateErrorf("booking in status %s cannot be settled", b.status)
	}
	ts := at.UTC()
	b.settled = true
	b.settledAt = &ts
	b.settlementOutcome = outcome
	b.status = StatusSettled
	b.touch(at)
	return nil
}

// IncrementVersion bumps the version for optimistic locking.
func (b *Booking) IncrementVersion() {
	b.version++
	b.updatedAt = time.Now().UTC()
}
