package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spokeshare/service-booking/internal/domain"
	bookingDomain "github.com/spokeshare/service-booking/internal/domain/booking"
	paymentDomain "github.com/spokeshare/service-booking/internal/domain/payment"
	"github.com/spokeshare/service-booking/internal/gateway"
)

// Refund delivery channels recorded on the outcome.
const (
	RefundViaGateway        = "gateway"
	RefundViaCredit         = "credit"
	RefundViaCreditFallback = "credit_fallback"
)

// RefundOutcome describes how a deposit refund was delivered.
type RefundOutcome struct {
	Via             string     `json:"via"`
	AmountCents     int64      `json:"amount_cents"`
	RefundReference string     `json:"refund_reference,omitempty"`
	CreditID        *uuid.UUID `json:"credit_id,omitempty"`
}

// RefundOrchestrator delivers partial deposit refunds. Before any gateway
// call it persists a refund intent carrying the idempotency key on the
// booking row, so a crash between the gateway call and the local update
// leaves a marker that reconciliation can act on instead of silently
// double-refunding.
type RefundOrchestrator struct {
	bookings bookingDomain.BookingRepository
	payments paymentDomain.PaymentRepository
	ledger   *CreditLedger
	gateway  gateway.PaymentsGateway
	logger   *zap.Logger
}

// NewRefundOrchestrator creates a new RefundOrchestrator.
func NewRefundOrchestrator(
	bookings bookingDomain.BookingRepository,
	payments paymentDomain.PaymentRepository,
	ledger *CreditLedger,
	gw gateway.PaymentsGateway,
	logger *zap.Logger,
) *RefundOrchestrator {
	return &RefundOrchestrator{
		bookings: bookings,
		payments: payments,
		ledger:   ledger,
		gateway:  gw,
		logger:   logger,
	}
}

// RefundDeposit refunds amountCents of the given party's deposit on the
// booking. The aggregate is expected to carry any caller-side mutations
// already; this method persists the refund intent together with them, then
// attempts the gateway and falls back to a ledger credit when the gateway
// is unconfigured, the charge reference is missing, or the call fails.
func (o *RefundOrchestrator) RefundDeposit(ctx context.Context, bk *bookingDomain.Booking, party bookingDomain.Party, amountCents int64, at time.Time) (*RefundOutcome, error) {
	userID := bk.BorrowerID()
	paymentType := paymentDomain.TypeBorrowerCharge
	if party == bookingDomain.PartyOwner {
		userID = bk.OwnerID()
		paymentType = paymentDomain.TypeOwnerDeposit
	}

	// Write-ahead intent. Reuse an existing key so a retried refund carries
	// the same idempotency key to the gateway.
	key := bk.RefundIntentKey()
	if key == "" {
		key = fmt.Sprintf("refund:%s:%s:%d", bk.ID(), party, at.UTC().Unix())
	}
	bk.SetRefundIntent(key, amountCents, at)
	bk.IncrementVersion()
	if err := o.bookings.Update(ctx, bk); err != nil {
		return nil, fmt.Errorf("failed to persist refund intent: %w", err)
	}

	row, err := o.payments.FindByBookingAndType(ctx, bk.ID(), paymentType)
	if err != nil && !domain.IsKind(err, domain.KindNotFound) {
		return nil, err
	}

	if o.gateway != nil && o.gateway.Configured() && row != nil && row.ChargeReference != "" {
		ref, gwErr := o.gateway.CreateRefund(ctx, row.ChargeReference, amountCents, key)
		if gwErr == nil {
			if err := o.payments.RecordRefund(ctx, row.ID, ref, amountCents); err != nil {
				return nil, err
			}
			bk.SetRefundSummary(bookingDomain.RefundStatusRefundedPart, amountCents, at)
			bk.IncrementVersion()
			if err := o.bookings.Update(ctx, bk); err != nil {
				return nil, err
			}
			return &RefundOutcome{Via: RefundViaGateway, AmountCents: amountCents, RefundReference: ref}, nil
		}

		o.logger.Warn("gateway refund failed, falling back to ledger credit",
			zap.String("booking_id", bk.ID().String()),
			zap.String("party", string(party)),
			zap.Error(gwErr),
		)
		return o.creditFallback(ctx, bk, userID, amountCents, at, RefundViaCreditFallback)
	}

	return o.creditFallback(ctx, bk, userID, amountCents, at, RefundViaCredit)
}

func (o *RefundOrchestrator) creditFallback(ctx context.Context, bk *bookingDomain.Booking, userID uuid.UUID, amountCents int64, at time.Time, via string) (*RefundOutcome, error) {
	c, _, err := o.ledger.IssueRebookCredit(ctx, userID, bk.ID(), amountCents)
	if err != nil {
		return nil, err
	}

	bk.SetRefundSummary(bookingDomain.RefundStatusCreditedPart, amountCents, at)
	bk.IncrementVersion()
	if err := o.bookings.Update(ctx, bk); err != nil {
		return nil, err
	}

	creditID := c.ID
	return &RefundOutcome{Via: via, AmountCents: amountCents, CreditID: &creditID}, nil
}
