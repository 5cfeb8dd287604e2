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
)

// Administrative resolution decisions.
const (
	DecisionRejectClearFlags = "reject_clear_flags"
	DecisionApproveSettle    = "approve_settle"
	DecisionOwnerFault       = "owner_fault"
	DecisionBorrowerFault    = "borrower_fault"
)

// Narrow no-show resolution decisions.
const (
	DecisionApproveOwnerNoShow    = "approve_owner_no_show"
	DecisionApproveBorrowerNoShow = "approve_borrower_no_show"
	DecisionRejectClaim           = "reject_claim"
)

var resolutionDecisions = map[string]bool{
	DecisionRejectClearFlags: true,
	DecisionApproveSettle:    true,
	DecisionOwnerFault:       true,
	DecisionBorrowerFault:    true,
}

var noShowDecisions = map[string]bool{
	DecisionApproveOwnerNoShow:    true,
	DecisionApproveBorrowerNoShow: true,
	DecisionRejectClaim:           true,
}

// ResolutionResult is the response of an administrative resolution.
type ResolutionResult struct {
	Booking             BookingDTO      `json:"booking"`
	Decision            string          `json:"decision"`
	SettlementAttempted bool            `json:"settlement_attempted"`
	Settled             bool            `json:"settled"`
	SettlementOutcome   json.RawMessage `json:"settlement_outcome,omitempty"`
}

// AdminService carries the administrator-only booking operations.
type AdminService struct {
	bookings bookingDomain.BookingRepository
	audits   auditDomain.AuditRepository
	settle   *SettlementTrigger
	logger   *zap.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(
	bookings bookingDomain.BookingRepository,
	audits auditDomain.AuditRepository,
	settle *SettlementTrigger,
	logger *zap.Logger,
) *AdminService {
	return &AdminService{
		bookings: bookings,
		audits:   audits,
		settle:   settle,
		logger:   logger,
	}
}

// Resolve applies one of the four administrative decisions to a booking
// under review. The settlement attempt's outcome is returned to the caller;
// a settlement failure never blocks the decision from being recorded.
func (s *AdminService) Resolve(ctx context.Context, bookingID, adminID uuid.UUID, decision, note string) (*ResolutionResult, error) {
	if !resolutionDecisions[decision] {
		return nil, domain.NewValidationErrorf("invalid decision: %s", decision)
	}

	bk, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if bk.Cancelled() {
		return nil, domain.NewInvalidStateError("cancelled booking cannot be resolved")
	}
	if bk.Settled() {
		return nil, domain.NewInvalidStateError("settled booking cannot be resolved")
	}

	now := time.Now().UTC()
	wantSettlement := false
	switch decision {
	case DecisionRejectClearFlags:
		bk.ClearReviewFlags(now)
	case DecisionApproveSettle:
		bk.ClearReview(now)
		wantSettlement = true
	case DecisionOwnerFault:
		bk.AttributeNoShow(true, now)
		bk.ClearReview(now)
		wantSettlement = true
	case DecisionBorrowerFault:
		bk.AttributeNoShow(false, now)
		bk.ClearReview(now)
		wantSettlement = true
	}

	bk.IncrementVersion()
	if err := s.bookings.Update(ctx, bk); err != nil {
		if domain.IsKind(err, domain.KindConflict) {
			return s.Resolve(ctx, bookingID, adminID, decision, note)
		}
		return nil, err
	}

	s.appendAudit(ctx, bk.ID(), adminID, auditDomain.ActionAdminResolved,
		fmt.Sprintf("decision %s: %s", decision, note))

	result := &ResolutionResult{Decision: decision}
	if wantSettlement {
		settled, outcome, err := s.settle.Trigger(ctx, bk)
		if err != nil {
			return nil, err
		}
		result.SettlementAttempted = true
		result.Settled = settled
		result.SettlementOutcome = outcome
	}

	result.Booking = toBookingDTO(bk)
	return result, nil
}

// ResolveNoShowClaim applies the narrow no-show resolution path: it sets or
// clears the fault flags and the review reason without invoking settlement.
func (s *AdminService) ResolveNoShowClaim(ctx context.Context, bookingID, adminID uuid.UUID, decision, note string) (*BookingDTO, error) {
	if !noShowDecisions[decision] {
		return nil, domain.NewValidationErrorf("invalid no-show decision: %s", decision)
	}

	bk, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if bk.Cancelled() {
		return nil, domain.NewInvalidStateError("cancelled booking cannot be resolved")
	}
	if bk.Settled() {
		return nil, domain.NewInvalidStateError("settled booking cannot be resolved")
	}

	now := time.Now().UTC()
	switch decision {
	case DecisionApproveOwnerNoShow:
		if !bk.NeedsReview() {
			return nil, domain.NewInvalidStateError("booking is not under review")
		}
		bk.AttributeNoShow(true, now)
		bk.SetReviewReason("owner_no_show_confirmed", now)
	case DecisionApproveBorrowerNoShow:
		if !bk.NeedsReview() {
			return nil, domain.NewInvalidStateError("booking is not under review")
		}
		bk.AttributeNoShow(false, now)
		bk.SetReviewReason("borrower_no_show_confirmed", now)
	case DecisionRejectClaim:
		// Also clears claims recorded outside a formal review entry.
		bk.ClearNoShowClaim(now)
	}

	bk.IncrementVersion()
	if err := s.bookings.Update(ctx, bk); err != nil {
		if domain.IsKind(err, domain.KindConflict) {
			return s.ResolveNoShowClaim(ctx, bookingID, adminID, decision, note)
		}
		return nil, err
	}

	s.appendAudit(ctx, bk.ID(), adminID, auditDomain.ActionNoShowResolved,
		fmt.Sprintf("decision %s: %s", decision, note))

	result := toBookingDTO(bk)
	return &result, nil
}

// ListAllBookings retrieves all bookings with pagination.
func (s *AdminService) ListAllBookings(ctx context.Context, page, limit int) (*domain.PaginatedResult[BookingDTO], error) {
	items, total, err := s.bookings.ListAll(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	return paginateDTOs(items, total, page, limit), nil
}

// ListReviewQueue retrieves bookings frozen for review with pagination.
func (s *AdminService) ListReviewQueue(ctx context.Context, page, limit int) (*domain.PaginatedResult[BookingDTO], error) {
	items, total, err := s.bookings.ListNeedingReview(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	return paginateDTOs(items, total, page, limit), nil
}

// Stats returns booking counts grouped by status.
func (s *AdminService) Stats(ctx context.Context) (map[string]int64, error) {
	return s.bookings.CountByStatus(ctx)
}

func (s *AdminService) appendAudit(ctx context.Context, bookingID, adminID uuid.UUID, action, note string) {
	entry := auditDomain.NewEntry(bookingID, auditDomain.RoleAdmin, &adminID, action, note)
	if err := s.audits.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append admin audit entry",
			zap.String("booking_id", bookingID.String()),
			zap.Error(err),
		)
	}
}

func paginateDTOs(items []*bookingDomain.Booking, total int64, page, limit int) *domain.PaginatedResult[BookingDTO] {
	dtos := make([]BookingDTO, len(items))
	for i, bk := range items {
		dtos[i] = toBookingDTO(bk)
	}
	result := domain.NewPaginatedResult(dtos, total, page, limit)
	return &result
}
