package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spokeshare/service-booking/internal/domain"
	auditDomain "github.com/spokeshare/service-booking/internal/domain/audit"
	bookingDomain "github.com/spokeshare/service-booking/internal/domain/booking"
	paymentDomain "github.com/spokeshare/service-booking/internal/domain/payment"
	"github.com/spokeshare/service-booking/internal/events"
	"github.com/spokeshare/service-booking/internal/kafka"
)

// CreateBookingRequest holds the data needed to create a new booking.
type CreateBookingRequest struct {
	OwnerID          uuid.UUID `json:"owner_id" binding:"required"`
	BikeID           uuid.UUID `json:"bike_id" binding:"required"`
	ScheduledStartAt time.Time `json:"scheduled_start_at" binding:"required"`
	DurationMinutes  int       `json:"duration_minutes" binding:"required"`
}

// BookingDTO is the response representation of a booking.
type BookingDTO struct {
	ID            uuid.UUID `json:"id"`
	BookingNumber string    `json:"booking_number"`
	BorrowerID    uuid.UUID `json:"borrower_id"`
	OwnerID       uuid.UUID `json:"owner_id"`
	BikeID        uuid.UUID `json:"bike_id"`

	Status       string `json:"status"`
	StatusDetail string `json:"status_detail,omitempty"`

	ScheduledStartAt time.Time `json:"scheduled_start_at"`
	DurationMinutes  int       `json:"duration_minutes"`

	BorrowerPaid        bool       `json:"borrower_paid"`
	OwnerDepositPaid    bool       `json:"owner_deposit_paid"`
	BorrowerCheckedIn   bool       `json:"borrower_checked_in"`
	OwnerCheckedIn      bool       `json:"owner_checked_in"`
	BorrowerCheckedInAt *time.Time `json:"borrower_checked_in_at,omitempty"`
	OwnerCheckedInAt    *time.Time `json:"owner_checked_in_at,omitempty"`

	BorrowerConfirmedComplete bool   `json:"borrower_confirmed_complete"`
	OwnerConfirmedComplete    bool   `json:"owner_confirmed_complete"`
	OwnerDepositChoice        string `json:"owner_deposit_choice,omitempty"`

	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Cancelled      bool       `json:"cancelled"`
	CancelledBy    string     `json:"cancelled_by,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	CancelScenario string     `json:"cancel_scenario,omitempty"`

	NeedsReview           bool   `json:"needs_review"`
	ReviewReason          string `json:"review_reason,omitempty"`
	NeedsRebooking        bool   `json:"needs_rebooking"`
	TreatAsOwnerNoShow    bool   `json:"treat_as_owner_no_show"`
	TreatAsBorrowerNoShow bool   `json:"treat_as_borrower_no_show"`
	BikeInvalid           bool   `json:"bike_invalid"`
	BikeInvalidReason     string `json:"bike_invalid_reason,omitempty"`

	RefundStatus      string `json:"refund_status,omitempty"`
	RefundAmountCents int64  `json:"refund_amount_cents"`

	PayoutAmountCents int64 `json:"payout_amount_cents"`
	OwnerPayoutDone   bool  `json:"owner_payout_done"`

	Settled           bool            `json:"settled"`
	SettledAt         *time.Time      `json:"settled_at,omitempty"`
	SettlementOutcome json.RawMessage `json:"settlement_outcome,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CancelResult is the response of the cancellation transition.
type CancelResult struct {
	Booking  BookingDTO     `json:"booking"`
	Scenario string         `json:"scenario"`
	Refund   *RefundOutcome `json:"refund,omitempty"`
}

// CompletionResult is the response of a completion confirmation.
type CompletionResult struct {
	Booking             BookingDTO      `json:"booking"`
	SettlementAttempted bool            `json:"settlement_attempted"`
	Settled             bool            `json:"settled"`
	SettlementOutcome   json.RawMessage `json:"settlement_outcome,omitempty"`
}

// SweepResult summarizes one acceptance-expiry sweep run.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Expired   int `json:"expired"`
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
}

// Handover refusal reason codes. Codes implicating the rental asset itself
// additionally flag the bike invalid.
const (
	RefusalBikeUnsafe         = "bike_unsafe"
	RefusalBikeNotAsDescribed = "bike_not_as_described"
	RefusalParticipantUnfit   = "participant_unfit"
	RefusalPaperworkMissing   = "paperwork_missing"
)

var refusalReasons = map[string]bool{
	RefusalBikeUnsafe:         true,
	RefusalBikeNotAsDescribed: true,
	RefusalParticipantUnfit:   true,
	RefusalPaperworkMissing:   true,
}

var bikeImplicatingReasons = map[string]bool{
	RefusalBikeUnsafe:         true,
	RefusalBikeNotAsDescribed: true,
}

// BookingService is the application service orchestrating booking use cases.
type BookingService struct {
	bookings bookingDomain.BookingRepository
	payments paymentDomain.PaymentRepository
	audits   auditDomain.AuditRepository
	ledger   *CreditLedger
	refunds  *RefundOrchestrator
	settle   *SettlementTrigger
	producer *kafka.Producer
	logger   *zap.Logger

	depositAmountCents int64
	rebookCreditCents  int64
	currency           string

	now func() time.Time
}

// NewBookingService creates a new BookingService.
func NewBookingService(
	bookings bookingDomain.BookingRepository,
	payments paymentDomain.PaymentRepository,
	audits auditDomain.AuditRepository,
	ledger *CreditLedger,
	refunds *RefundOrchestrator,
	settle *SettlementTrigger,
	producer *kafka.Producer,
	logger *zap.Logger,
	depositAmountCents, rebookCreditCents int64,
	currency string,
) *BookingService {
	return &BookingService{
		bookings:           bookings,
		payments:           payments,
		audits:             audits,
		ledger:             ledger,
		refunds:            refunds,
		settle:             settle,
		producer:           producer,
		logger:             logger,
		depositAmountCents: depositAmountCents,
		rebookCreditCents:  rebookCreditCents,
		currency:           currency,
		now:                time.Now,
	}
}

// CreateBooking creates a new booking for the given borrower in pending_payment.
func (s *BookingService) CreateBooking(ctx context.Context, borrowerID uuid.UUID, req CreateBookingRequest) (*BookingDTO, error) {
	bk, err := bookingDomain.NewBooking(borrowerID, req.OwnerID, req.BikeID, req.ScheduledStartAt, req.DurationMinutes)
	if err != nil {
		return nil, err
	}
	if err := s.bookings.Save(ctx, bk); err != nil {
		return nil, fmt.Errorf("failed to save booking: %w", err)
	}

	s.logger.Info("booking created",
		zap.String("booking_id", bk.ID().String()),
		zap.String("booking_number", bk.BookingNumber()),
	)
	result := toBookingDTO(bk)
	return &result, nil
}

// GetBooking retrieves a booking visible to the caller. Participants and the
// administrator may read it.
func (s *BookingService) GetBooking(ctx context.Context, bookingID, callerID uuid.UUID, isAdmin bool) (*BookingDTO, error) {
	bk, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && callerID != bk.BorrowerID() && callerID != bk.OwnerID() {
		return nil, domain.NewForbiddenError("caller is not a participant in this booking")
	}
	result := toBookingDTO(bk)
	return &result, nil
}

// ListBookings retrieves the caller's bookings in the given role.
func (s *BookingService) ListBookings(ctx context.Context, userID uuid.UUID, role string, page, limit int) (*domain.PaginatedResult[BookingDTO], error) {
	var (
		items []*bookingDomain.Booking
		total int64
		err   error
	)
	switch role {
	case "borrower":
		items, total, err = s.bookings.FindByBorrowerID(ctx, userID, page, limit)
	case "owner":
		items, total, err = s.bookings.FindByOwnerID(ctx, userID, page, limit)
	default:
		return nil, domain.NewValidationErrorf("invalid role: %s", role)
	}
	if err != nil {
		return nil, err
	}

	dtos := make([]BookingDTO, len(items))
	for i, bk := range items {
		dtos[i] = toBookingDTO(bk)
	}
	result := domain.NewPaginatedResult(dtos, total, page, limit)
	return &result, nil
}

// RecordBorrowerCharge records capture of the borrower's charge, inserting
// the payment row and advancing the booking toward confirmed. Repeat
// deliveries are success no-ops.
func (s *BookingService) RecordBorrowerCharge(ctx context.Context, bookingID uuid.UUID, amountCents int64, chargeRef string) error {
	return s.recordCapture(ctx, bookingID, bookingDomain.PartyBorrower, amountCents, chargeRef)
}

// RecordOwnerDeposit records capture of the owner's deposit (the acceptance
// signal). Repeat deliveries are success no-ops.
func (s *BookingService) RecordOwnerDeposit(ctx context.Context, bookingID uuid.UUID, amountCents int64, chargeRef string) error {
	return s.recordCapture(ctx, bookingID, bookingDomain.PartyOwner, amountCents, chargeRef)
}

func (s *BookingService) recordCapture(ctx context.Context, bookingID uuid.UUID, party bookingDomain.Party, amountCents int64, chargeRef string) error {
	bk, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if (party == bookingDomain.PartyBorrower && bk.BorrowerPaid()) ||
		(party == bookingDomain.PartyOwner && bk.OwnerDepositPaid()) {
		return nil
	}

	now := s.now().UTC()
	userID := bk.BorrowerID()
	paymentType := paymentDomain.TypeBorrowerCharge
	if party == bookingDomain.PartyOwner {
		userID = bk.OwnerID()
		paymentType = paymentDomain.TypeOwnerDeposit
		if err := bk.MarkOwnerDepositPaid(now); err != nil {
			return err
		}
	} else {
		if err := bk.MarkBorrowerPaid(now); err != nil {
			return err
		}
	}

	bk.IncrementVersion()
	if err := s.bookings.Update(ctx, bk); err != nil {
		if domain.IsKind(err, domain.KindConflict) {
			return s.recordCapture(ctx, bookingID, party, amountCents, chargeRef)
		}
		return err
	}

	row, err := paymentDomain.New(bk.ID(), userID, paymentType, paymentDomain.StatusSucceeded, amountCents, s.currency, chargeRef)
	if err != nil {
		return err
	}
	if err := s.payments.Save(ctx, row); err != nil {
		return err
	}

	s.logger.Info("payment capture recorded",
		zap.String("booking_id", bk.ID().String()),
		zap.String("party", string(party)),
		zap.String("status", bk.Status().String()),
	)
	return nil
}

// CancelBooking runs the cancellation transition for the given cause.
// Cancelling an already-cancelled booking is a success no-op.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID uuid.UUID, cancelledBy bookingDomain.CancelActor, callerID *uuid.UUID) (*CancelResult, error) {
	if !cancelledBy.IsValid() {
		return nil, domain.NewValidationErrorf("invalid cancellation cause: %s", cancelledBy)
	}

	bk, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if bk.Cancelled() {
		return s.resumeCancelEffects(ctx, bk)
	}

	if cancelledBy == bookingDomain.CancelledByBorrower && (callerID == nil || *callerID != bk.BorrowerID()) {
		return nil, domain.NewForbiddenError("caller is not the borrower on this booking")
	}
	if cancelledBy == bookingDomain.CancelledByOwner && (callerID == nil || *callerID != bk.OwnerID()) {
		return nil, domain.NewForbiddenError("caller is not the owner on this booking")
	}

	now := s.now().UTC()

	switch {
	case cancelledBy == bookingDomain.CancelledBySystem:
		return s.cancelSystemExpired(ctx, bk, now)
	case bk.BorrowerPaid() && !bk.OwnerDepositPaid():
		return s.cancelPreAcceptance(ctx, bk, cancelledBy, now)
	case bk.BothPaid():
		return s.cancelPostAcceptance(ctx, bk, cancelledBy, now)
	default:
		return nil, domain.NewInvalidStateError("booking cannot be cancelled before the borrower's payment is captured")
	}
}

func (s *BookingService) cancelSystemExpired(ctx context.Context, bk *bookingDomain.Booking, now time.Time) (*CancelResult, error) {
	if !bk.BorrowerPaid() || bk.OwnerDepositPaid() {
		return nil, domain.NewInvalidStateError("system expiry applies only while awaiting the owner's deposit")
	}
	deadline, err := bookingDomain.AcceptanceDeadline(bk.CreatedAt(), bk.ScheduledStartAt())
	if err != nil {
		return nil, err
	}
	if now.Before(deadline) {
		return nil, domain.NewInvalidStateErrorf("acceptance deadline %s has not passed", deadline.Format(time.RFC3339))
	}

	if err := bk.Cancel(bookingDomain.CancelledBySystem, bookingDomain.ScenarioSystemExpired, bookingDomain.StatusDetailExpiredAcceptance, now); err != nil {
		return nil, err
	}
	bk.IncrementVersion()
	if err := s.bookings.Update(ctx, bk); err != nil {
		return s.convergeCancelled(ctx, bk.ID(), err)
	}

	// Row is committed; downstream effects are idempotent and re-runnable.
	if _, _, err := s.ledger.IssueRebookCredit(ctx, bk.BorrowerID(), bk.ID(), s.rebookCreditCents); err != nil {
		return nil, err
	}

	s.auditCancel(ctx, bk, auditDomain.RoleSystem, nil,
		fmt.Sprintf("acceptance expired; borrower credited %d", s.rebookCreditCents))
	s.publishCancelled(ctx, bk, now)

	return &CancelResult{Booking: toBookingDTO(bk), Scenario: bk.CancelScenario()}, nil
}

func (s *BookingService) cancelPreAcceptance(ctx context.Context, bk *bookingDomain.Booking, cancelledBy bookingDomain.CancelActor, now time.Time) (*CancelResult, error) {
	scenario := bookingDomain.ScenarioBorrowerCancelPreAcc
	if cancelledBy == bookingDomain.CancelledByOwner {
		scenario = bookingDomain.ScenarioOwnerDeclinedPreAcc
	}

	if err := bk.Cancel(cancelledBy, scenario, scenario, now); err != nil {
		return nil, err
	}
	// Nothing was disbursed yet, so the full-refund summary is symbolic.
	bk.SetRefundSummary(bookingDomain.RefundStatusRefundedFull, s.depositAmountCents, now)
	bk.IncrementVersion()
	if err := s.bookings.Update(ctx, bk); err != nil {
		return s.convergeCancelled(ctx, bk.ID(), err)
	}

	if _, _, err := s.ledger.IssueRebookCredit(ctx, bk.BorrowerID(), bk.ID(), s.rebookCreditCents); err != nil {
		return nil, err
	}

	actorRole := auditDomain.RoleBorrower
	actorID := bk.BorrowerID()
	if cancelledBy == bookingDomain.CancelledByOwner {
		actorRole = auditDomain.RoleOwner
		actorID = bk.OwnerID()
	}
	s.auditCancel(ctx, bk, actorRole, &actorID,
		fmt.Sprintf("%s; borrower credited %d, symbolic full refund recorded", scenario, s.rebookCreditCents))
	s.publishCancelled(ctx, bk, now)

	return &CancelResult{Booking: toBookingDTO(bk), Scenario: scenario}, nil
}

func (s *BookingService) cancelPostAcceptance(ctx context.Context, bk *bookingDomain.Booking, cancelledBy bookingDomain.CancelActor, now time.Time) (*CancelResult, error) {
	early, err := bookingDomain.IsEarlyCancellation(bk.ScheduledStartAt(), now)
	if err != nil {
		return nil, err
	}

	canceller := bookingDomain.PartyBorrower
	cancellerID := bk.BorrowerID()
	otherID := bk.OwnerID()
	actorRole := auditDomain.RoleBorrower
	if cancelledBy == bookingDomain.CancelledByOwner {
		canceller = bookingDomain.PartyOwner
		cancellerID = bk.OwnerID()
		otherID = bk.BorrowerID()
		actorRole = auditDomain.RoleOwner
	}

	scenario := bookingDomain.ScenarioLateCancel
	refundCents := int64(0)
	feeCents := s.depositAmountCents
	if early {
		scenario = bookingDomain.ScenarioEarlyCancel
		refundCents = s.depositAmountCents * 3 / 4
		feeCents = s.depositAmountCents - refundCents
	}

	if err := bk.Cancel(cancelledBy, scenario, scenario, now); err != nil {
		return nil, err
	}

	var refund *RefundOutcome
	if early {
		// The orchestrator persists the cancellation together with the
		// write-ahead refund intent before touching the gateway.
		refund, err = s.refunds.RefundDeposit(ctx, bk, canceller, refundCents, now)
		if err != nil {
			if domain.IsKind(err, domain.KindConflict) {
				return s.convergeCancelled(ctx, bk.ID(), err)
			}
			return nil, err
		}
	} else {
		bk.SetRefundSummary(bookingDomain.RefundStatusForfeited, 0, now)
		bk.IncrementVersion()
		if err := s.bookings.Update(ctx, bk); err != nil {
			return s.convergeCancelled(ctx, bk.ID(), err)
		}
	}

	feeRow, err := paymentDomain.New(bk.ID(), cancellerID, paymentDomain.TypeCancellationFee, paymentDomain.StatusSucceeded, feeCents, s.currency, "")
	if err != nil {
		return nil, err
	}
	if err := s.payments.Save(ctx, feeRow); err != nil {
		return nil, err
	}

	if _, _, err := s.ledger.IssueRebookCredit(ctx, otherID, bk.ID(), s.rebookCreditCents); err != nil {
		return nil, err
	}

	note := fmt.Sprintf("%s; refund %d, fee income %d, other party credited %d",
		scenario, refundCents, feeCents, s.rebookCreditCents)
	if refund != nil {
		note += ", via " + refund.Via
	}
	s.auditCancel(ctx, bk, actorRole, &cancellerID, note)
	s.publishCancelled(ctx, bk, now)

	return &CancelResult{Booking: toBookingDTO(bk), Scenario: scenario, Refund: refund}, nil
}

// convergeCancelled resolves an optimistic-locking loss on a cancellation
// write: if a racing invocation already cancelled the booking, this one
// converges to a success no-op.
func (s *BookingService) convergeCancelled(ctx context.Context, bookingID uuid.UUID, updateErr error) (*CancelResult, error) {
	if !domain.IsKind(updateErr, domain.KindConflict) {
		return nil, updateErr
	}
	current, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if current.Cancelled() {
		return s.resumeCancelEffects(ctx, current)
	}
	return nil, updateErr
}

// resumeCancelEffects completes the downstream effects of a committed
// cancellation. The booking row is the source of truth: a crash between the
// cancellation write and the disbursements leaves the credit, fee row,
// refund, or audit entry missing, and a repeated cancel call finishes them.
// Every step is skipped when its effect already exists.
func (s *BookingService) resumeCancelEffects(ctx context.Context, bk *bookingDomain.Booking) (*CancelResult, error) {
	result := &CancelResult{Booking: toBookingDTO(bk), Scenario: bk.CancelScenario()}

	switch bk.CancelScenario() {
	case bookingDomain.ScenarioSystemExpired,
		bookingDomain.ScenarioBorrowerCancelPreAcc,
		bookingDomain.ScenarioOwnerDeclinedPreAcc:
		if _, _, err := s.ledger.IssueRebookCredit(ctx, bk.BorrowerID(), bk.ID(), s.rebookCreditCents); err != nil {
			return nil, err
		}

	case bookingDomain.ScenarioEarlyCancel, bookingDomain.ScenarioLateCancel:
		canceller := bookingDomain.PartyBorrower
		cancellerID := bk.BorrowerID()
		otherID := bk.OwnerID()
		if bk.CancelledBy() == bookingDomain.CancelledByOwner {
			canceller = bookingDomain.PartyOwner
			cancellerID = bk.OwnerID()
			otherID = bk.BorrowerID()
		}

		// A crash after the intent write but before the gateway outcome
		// leaves the summary pending; the orchestrator reuses the stored
		// idempotency key, so repeating the call cannot double-refund.
		if bk.RefundStatus() == bookingDomain.RefundStatusPending {
			refund, err := s.refunds.RefundDeposit(ctx, bk, canceller, bk.RefundAmountCents(), s.now().UTC())
			if err != nil {
				return nil, err
			}
			result.Refund = refund
			result.Booking = toBookingDTO(bk)
		}

		if _, err := s.payments.FindByBookingAndType(ctx, bk.ID(), paymentDomain.TypeCancellationFee); err != nil {
			if !domain.IsKind(err, domain.KindNotFound) {
				return nil, err
			}
			feeCents := s.depositAmountCents - bk.RefundAmountCents()
			feeRow, rowErr := paymentDomain.New(bk.ID(), cancellerID, paymentDomain.TypeCancellationFee, paymentDomain.StatusSucceeded, feeCents, s.currency, "")
			if rowErr != nil {
				return nil, rowErr
			}
			if err := s.payments.Save(ctx, feeRow); err != nil {
				return nil, err
			}
		}

		if _, _, err := s.ledger.IssueRebookCredit(ctx, otherID, bk.ID(), s.rebookCreditCents); err != nil {
			return nil, err
		}
	}

	if err := s.ensureCancelAudit(ctx, bk); err != nil {
		return nil, err
	}
	return result, nil
}

// ensureCancelAudit appends the cancellation audit entry if none was written.
func (s *BookingService) ensureCancelAudit(ctx context.Context, bk *bookingDomain.Booking) error {
	entries, err := s.audits.ListByBooking(ctx, bk.ID())
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Action == auditDomain.ActionCancelled {
			return nil
		}
	}

	role := auditDomain.RoleSystem
	var actorID *uuid.UUID
	switch bk.CancelledBy() {
	case bookingDomain.CancelledByBorrower:
		role = auditDomain.RoleBorrower
		id := bk.BorrowerID()
		actorID = &id
	case bookingDomain.CancelledByOwner:
		role = auditDomain.RoleOwner
		id := bk.OwnerID()
		actorID = &id
	}
	s.auditCancel(ctx, bk, role, actorID, bk.CancelScenario()+"; effects completed on retry")
	return nil
}

// CheckIn records the actor's physical presence within the check-in window.
// An already-checked-in actor gets a success no-op.
func (s *BookingService) CheckIn(ctx context.Context, bookingID uuid.UUID, actor bookingDomain.Party, callerID uuid.UUID) (*BookingDTO, error) {
	if !actor.IsValid() {
		return nil, domain.NewValidationErrorf("invalid actor: %s", actor)
	}

	bk, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParty(bk, actor, callerID); err != nil {
		return nil, err
	}
	if bk.PartyCheckedIn(actor) {
		result := toBookingDTO(bk)
		return &result, nil
	}

	now := s.now().UTC()
	open, close, err := bookingDomain.CheckInWindow(bk.ScheduledStartAt())
	if err != nil {
		return nil, err
	}
	if now.Before(open) {
		return nil, domain.NewInvalidStateErrorf("check-in window has not opened; opens at %s", open.Format(time.RFC3339))
	}
	if now.After(close) {
		return nil, domain.NewInvalidStateErrorf("check-in window has closed; closed at %s", close.Format(time.RFC3339))
	}

	if err := bk.CheckIn(actor, now); err != nil {
		return nil, err
	}
	bk.IncrementVersion()
	if err := s.bookings.Update(ctx, bk); err != nil {
		if domain.IsKind(err, domain.KindConflict) {
			return s.CheckIn(ctx, bookingID, actor, callerID)
		}
		return nil, err
	}

	s.appendAudit(ctx, bk.ID(), partyRole(actor), &callerID, auditDomain.ActionCheckedIn, string(actor)+" checked in")

	result := toBookingDTO(bk)
	return &result, nil
}

// ConfirmCompletion records the actor's completion confirmation once the
// minimum delay has elapsed. The owner's call may carry a deposit choice.
// When both parties have confirmed, completion fires once and settlement is
// attempted; a settlement failure is reported but never reverts completion.
func (s *BookingService) ConfirmCompletion(ctx context.Context, bookingID uuid.UUID, actor bookingDomain.Party, callerID uuid.UUID, depositChoice *bookingDomain.DepositChoice) (*CompletionResult, error) {
	if !actor.IsValid() {
		return nil, domain.NewValidationErrorf("invalid actor: %s", actor)
	}

	bk, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParty(bk, actor, callerID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	allowedAt, err := bookingDomain.CompletionAllowedAt(bk.ScheduledStartAt())
	if err != nil {
		return nil, err
	}
	if now.Before(allowedAt) {
		return nil, domain.NewInvalidStateErrorf("completion is not allowed before %s", allowedAt.Format(time.RFC3339))
	}

	wasCompleted := bk.Completed()
	if err := bk.ConfirmCompletion(actor, now); err != nil {
		return nil, err
	}
	if actor == bookingDomain.PartyOwner && depositChoice != nil {
		if err := bk.SetOwnerDepositChoice(*depositChoice, now); err != nil {
			return nil, err
		}
	}

	completionFired := bk.Completed() && !wasCompleted
	if completionFired {
		bk.RecordPayoutPlaceholder(s.depositAmountCents, now)
	}

	bk.IncrementVersion()
	if err := s.bookings.Update(ctx, bk); err != nil {
		if domain.IsKind(err, domain.KindConflict) {
			return s.ConfirmCompletion(ctx, bookingID, actor, callerID, depositChoice)
		}
		return nil, err
	}

	s.appendAudit(ctx, bk.ID(), partyRole(actor), &callerID, auditDomain.ActionCompletionMarked, string(actor)+" confirmed completion")

	result := &CompletionResult{}
	if completionFired {
		payoutRow, err := paymentDomain.New(bk.ID(), bk.OwnerID(), paymentDomain.TypeOwnerPayout, paymentDomain.StatusPayoutDue, bk.PayoutAmountCents(), s.currency, "")
		if err != nil {
			return nil, err
		}
		if err := s.payments.Save(ctx, payoutRow); err != nil {
			return nil, err
		}
		s.appendAudit(ctx, bk.ID(), auditDomain.RoleSystem, nil, auditDomain.ActionCompleted, "both parties confirmed; booking completed")
		s.publishCompleted(ctx, bk, now)
	}

	if bk.Completed() && !bk.Settled() {
		settled, outcome, err := s.settle.Trigger(ctx, bk)
		if err != nil {
			return nil, err
		}
		result.SettlementAttempted = true
		result.Settled = settled
		result.SettlementOutcome = outcome
	} else if bk.Settled() {
		result.Settled = true
		result.SettlementOutcome = bk.SettlementOutcome()
	}

	result.Booking = toBookingDTO(bk)
	return result, nil
}

// ClaimNoShow freezes the booking for review, recording which side the
// claimant holds at fault. Fault flags themselves are set only by an
// administrative resolution.
func (s *BookingService) ClaimNoShow(ctx context.Context, bookingID uuid.UUID, callerID uuid.UUID, accused bookingDomain.Party, note string) (*BookingDTO, error) {
	if !accused.IsValid() {
		return nil, domain.NewValidationErrorf("invalid accused party: %s", accused)
	}

	bk, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	claimant, err := s.partyOf(bk, callerID)
	if err != nil {
		return nil, err
	}
	if claimant == accused {
		return nil, domain.NewValidationError("a party cannot claim a no-show against itself")
	}

	now := s.now().UTC()
	reason := fmt.Sprintf("no_show_claimed_%s_at_fault", accused)
	if bk.NeedsReview() && bk.ReviewReason() == reason {
		result := toBookingDTO(bk)
		return &result, nil
	}

	if err := bk.EnterReview(reason, now); err != nil {
		return nil, err
	}
	bk.IncrementVersion()
	if err := s.bookings.Update(ctx, bk); err != nil {
		if domain.IsKind(err, domain.KindConflict) {
			return s.ClaimNoShow(ctx, bookingID, callerID, accused, note)
		}
		return nil, err
	}

	s.appendAudit(ctx, bk.ID(), partyRole(claimant), &callerID, auditDomain.ActionNoShowClaimed,
		fmt.Sprintf("%s claims %s no-show: %s", claimant, accused, note))
	s.publishReviewEntered(ctx, bk, reason, now)

	result := toBookingDTO(bk)
	return &result, nil
}

// RecordRefusal records a handover refusal: allowed only after both parties
// have checked in and within the refusal window. The booking freezes for
// review and is flagged for rebooking; asset-implicating reasons also flag
// the bike invalid.
func (s *BookingService) RecordRefusal(ctx context.Context, bookingID uuid.UUID, callerID uuid.UUID, reasonCode, note string) (*BookingDTO, error) {
	if !refusalReasons[reasonCode] {
		return nil, domain.NewValidationErrorf("invalid refusal reason: %s", reasonCode)
	}

	bk, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	claimant, err := s.partyOf(bk, callerID)
	if err != nil {
		return nil, err
	}

	if bk.Cancelled() || bk.Completed() || bk.Settled() {
		return nil, domain.NewInvalidStateError("booking is no longer active")
	}
	if !bk.BothPaid() {
		return nil, domain.NewInvalidStateError("refusal requires a fully paid booking")
	}
	if !bk.BorrowerCheckedIn() || !bk.OwnerCheckedIn() {
		return nil, domain.NewInvalidStateError("refusal requires both parties to have checked in")
	}

	now := s.now().UTC()
	deadline, err := bookingDomain.RefusalDeadline(bk.ScheduledStartAt())
	if err != nil {
		return nil, err
	}
	if now.After(deadline) {
		return nil, domain.NewInvalidStateErrorf("refusal window has closed; closed at %s", deadline.Format(time.RFC3339))
	}

	reason := "handover_refusal_" + reasonCode
	if bk.NeedsReview() && bk.ReviewReason() == reason {
		result := toBookingDTO(bk)
		return &result, nil
	}

	if err := bk.EnterReview(reason, now); err != nil {
		return nil, err
	}
	bk.MarkNeedsRebooking(now)
	if bikeImplicatingReasons[reasonCode] {
		bk.MarkBikeInvalid(reasonCode, now)
	}

	bk.IncrementVersion()
	if err := s.bookings.Update(ctx, bk); err != nil {
		if domain.IsKind(err, domain.KindConflict) {
			return s.RecordRefusal(ctx, bookingID, callerID, reasonCode, note)
		}
		return nil, err
	}

	s.appendAudit(ctx, bk.ID(), partyRole(claimant), &callerID, auditDomain.ActionRefusalRecorded,
		fmt.Sprintf("handover refused (%s): %s", reasonCode, note))
	s.publishReviewEntered(ctx, bk, reason, now)

	result := toBookingDTO(bk)
	return &result, nil
}

// SweepExpiredAcceptances scans bookings awaiting the owner's deposit and
// cancels those whose acceptance deadline has passed. Safe to run
// repeatedly and on overlapping candidate sets.
func (s *BookingService) SweepExpiredAcceptances(ctx context.Context, limit int) (*SweepResult, error) {
	if limit <= 0 {
		limit = 100
	}

	candidates, err := s.bookings.FindAwaitingAcceptance(ctx, limit)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	result := &SweepResult{Scanned: len(candidates)}
	for _, bk := range candidates {
		deadline, err := bookingDomain.AcceptanceDeadline(bk.CreatedAt(), bk.ScheduledStartAt())
		if err != nil {
			s.logger.Error("sweep skipped booking with malformed timestamps",
				zap.String("booking_id", bk.ID().String()),
				zap.Error(err),
			)
			continue
		}
		if now.Before(deadline) {
			continue
		}

		result.Expired++
		result.Processed++
		if _, err := s.CancelBooking(ctx, bk.ID(), bookingDomain.CancelledBySystem, nil); err != nil {
			s.logger.Error("sweep failed to expire booking",
				zap.String("booking_id", bk.ID().String()),
				zap.Error(err),
			)
			continue
		}
		result.Succeeded++
	}

	s.logger.Info("acceptance-expiry sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("expired", result.Expired),
		zap.Int("succeeded", result.Succeeded),
	)
	return result, nil
}

// --- helpers ---

func (s *BookingService) requireParty(bk *bookingDomain.Booking, actor bookingDomain.Party, callerID uuid.UUID) error {
	if actor == bookingDomain.PartyBorrower && callerID != bk.BorrowerID() {
		return domain.NewForbiddenError("caller is not the borrower on this booking")
	}
	if actor == bookingDomain.PartyOwner && callerID != bk.OwnerID() {
		return domain.NewForbiddenError("caller is not the owner on this booking")
	}
	return nil
}

func (s *BookingService) partyOf(bk *bookingDomain.Booking, callerID uuid.UUID) (bookingDomain.Party, error) {
	switch callerID {
	case bk.BorrowerID():
		return bookingDomain.PartyBorrower, nil
	case bk.OwnerID():
		return bookingDomain.PartyOwner, nil
	}
	return "", domain.NewForbiddenError("caller is not a participant in this booking")
}

func partyRole(p bookingDomain.Party) auditDomain.ActorRole {
	if p == bookingDomain.PartyBorrower {
		return auditDomain.RoleBorrower
	}
	return auditDomain.RoleOwner
}

func (s *BookingService) auditCancel(ctx context.Context, bk *bookingDomain.Booking, role auditDomain.ActorRole, actorID *uuid.UUID, note string) {
	s.appendAudit(ctx, bk.ID(), role, actorID, auditDomain.ActionCancelled, note)
}

func (s *BookingService) appendAudit(ctx context.Context, bookingID uuid.UUID, role auditDomain.ActorRole, actorID *uuid.UUID, action, note string) {
	entry := auditDomain.NewEntry(bookingID, role, actorID, action, note)
	if err := s.audits.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append audit entry",
			zap.String("booking_id", bookingID.String()),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

// GetAuditLog returns the audit trail of a booking, oldest first.
func (s *BookingService) GetAuditLog(ctx context.Context, bookingID uuid.UUID) ([]*auditDomain.Entry, error) {
	if _, err := s.bookings.FindByID(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.audits.ListByBooking(ctx, bookingID)
}

func (s *BookingService) publishCancelled(ctx context.Context, bk *bookingDomain.Booking, at time.Time) {
	evt := events.BookingCancelledEvent{
		BookingID:   bk.ID(),
		CancelledBy: string(bk.CancelledBy()),
		Scenario:    bk.CancelScenario(),
		CancelledAt: at,
	}
	s.publishEvent(ctx, events.BookingCancelled, bk.ID(), evt)
}

func (s *BookingService) publishCompleted(ctx context.Context, bk *bookingDomain.Booking, at time.Time) {
	evt := events.BookingCompletedEvent{BookingID: bk.ID(), CompletedAt: at}
	s.publishEvent(ctx, events.BookingCompleted, bk.ID(), evt)
}

func (s *BookingService) publishReviewEntered(ctx context.Context, bk *bookingDomain.Booking, reason string, at time.Time) {
	evt := events.BookingReviewEnteredEvent{BookingID: bk.ID(), Reason: reason, EnteredAt: at}
	s.publishEvent(ctx, events.BookingReviewEntered, bk.ID(), evt)
}

func (s *BookingService) publishEvent(ctx context.Context, eventType string, bookingID uuid.UUID, payload interface{}) {
	if s.producer == nil {
		return
	}
	cloudEvent, err := kafka.NewCloudEvent(events.EventSource, eventType, payload)
	if err != nil {
		s.logger.Error("failed to build event", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := s.producer.PublishEvent(ctx, events.TopicBookingEvents, cloudEvent); err != nil {
		s.logger.Error("failed to publish event",
			zap.String("type", eventType),
			zap.String("booking_id", bookingID.String()),
			zap.Error(err),
		)
	}
}

func toBookingDTO(bk *bookingDomain.Booking) BookingDTO {
	return BookingDTO{
		ID:                        bk.ID(),
		BookingNumber:             bk.BookingNumber(),
		BorrowerID:                bk.BorrowerID(),
		OwnerID:                   bk.OwnerID(),
		BikeID:                    bk.BikeID(),
		Status:                    bk.Status().String(),
		StatusDetail:              bk.StatusDetail(),
		ScheduledStartAt:          bk.ScheduledStartAt(),
		DurationMinutes:           bk.DurationMinutes(),
		BorrowerPaid:              bk.BorrowerPaid(),
		OwnerDepositPaid:          bk.OwnerDepositPaid(),
		BorrowerCheckedIn:         bk.BorrowerCheckedIn(),
		OwnerCheckedIn:            bk.OwnerCheckedIn(),
		BorrowerCheckedInAt:       bk.BorrowerCheckedInAt(),
		OwnerCheckedInAt:          bk.OwnerCheckedInAt(),
		BorrowerConfirmedComplete: bk.BorrowerConfirmedComplete(),
		OwnerConfirmedComplete:    bk.OwnerConfirmedComplete(),
		OwnerDepositChoice:        string(bk.OwnerDepositChoice()),
		Completed:                 bk.Completed(),
		CompletedAt:               bk.CompletedAt(),
		Cancelled:                 bk.Cancelled(),
		CancelledBy:               string(bk.CancelledBy()),
		CancelledAt:               bk.CancelledAt(),
		CancelScenario:            bk.CancelScenario(),
		NeedsReview:               bk.NeedsReview(),
		ReviewReason:              bk.ReviewReason(),
		NeedsRebooking:            bk.NeedsRebooking(),
		TreatAsOwnerNoShow:        bk.TreatAsOwnerNoShow(),
		TreatAsBorrowerNoShow:     bk.TreatAsBorrowerNoShow(),
		BikeInvalid:               bk.BikeInvalid(),
		BikeInvalidReason:         bk.BikeInvalidReason(),
		RefundStatus:              bk.RefundStatus(),
		RefundAmountCents:         bk.RefundAmountCents(),
		PayoutAmountCents:         bk.PayoutAmountCents(),
		OwnerPayoutDone:           bk.OwnerPayoutDone(),
		Settled:                   bk.Settled(),
		SettledAt:                 bk.SettledAt(),
		SettlementOutcome:         bk.SettlementOutcome(),
		Version:                   bk.Version(),
		CreatedAt:                 bk.CreatedAt(),
		UpdatedAt:                 bk.UpdatedAt(),
	}
}
