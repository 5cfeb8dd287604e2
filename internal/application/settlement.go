package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	auditDomain "github.com/spokeshare/service-booking/internal/domain/audit"
	bookingDomain "github.com/spokeshare/service-booking/internal/domain/booking"
	"github.com/spokeshare/service-booking/internal/events"
	"github.com/spokeshare/service-booking/internal/gateway"
	"github.com/spokeshare/service-booking/internal/kafka"
)

// SettlementTrigger asks the settlement system to settle a booking and
// records the outcome. A settlement failure never rolls back the caller's
// transition; the booking simply stays unsettled for a later attempt.
type SettlementTrigger struct {
	bookings bookingDomain.BookingRepository
	audits   auditDomain.AuditRepository
	gateway  gateway.SettlementGateway
	producer *kafka.Producer
	logger   *zap.Logger
}

// NewSettlementTrigger creates a new SettlementTrigger.
func NewSettlementTrigger(
	bookings bookingDomain.BookingRepository,
	audits auditDomain.AuditRepository,
	gw gateway.SettlementGateway,
	producer *kafka.Producer,
	logger *zap.Logger,
) *SettlementTrigger {
	return &SettlementTrigger{
		bookings: bookings,
		audits:   audits,
		gateway:  gw,
		producer: producer,
		logger:   logger,
	}
}

// Trigger attempts settlement for the booking. On acknowledgment the booking
// is marked settled with the raw response stored; on failure the attempt is
// audited and (false, nil) is returned so the caller's own transition stands.
func (t *SettlementTrigger) Trigger(ctx context.Context, bk *bookingDomain.Booking) (bool, []byte, error) {
	if bk.Settled() {
		return true, bk.SettlementOutcome(), nil
	}
	if t.gateway == nil {
		t.logger.Warn("settlement gateway not configured, booking left unsettled",
			zap.String("booking_id", bk.ID().String()),
		)
		return false, nil, nil
	}

	now := time.Now().UTC()
	outcome, err := t.gateway.Settle(ctx, bk.ID())
	if err != nil {
		t.logger.Error("settlement attempt failed",
			zap.String("booking_id", bk.ID().String()),
			zap.Error(err),
		)
		t.appendAudit(ctx, bk, "settlement attempt failed: "+err.Error())
		return false, nil, nil
	}

	if err := bk.MarkSettled(outcome, now); err != nil {
		return false, nil, err
	}
	bk.IncrementVersion()
	if err := t.bookings.Update(ctx, bk); err != nil {
		return false, nil, err
	}

	t.appendAudit(ctx, bk, "settlement acknowledged")
	t.publishSettled(ctx, bk, now)

	t.logger.Info("booking settled",
		zap.String("booking_id", bk.ID().String()),
	)
	return true, outcome, nil
}

func (t *SettlementTrigger) appendAudit(ctx context.Context, bk *bookingDomain.Booking, note string) {
	entry := auditDomain.NewEntry(bk.ID(), auditDomain.RoleSystem, nil, auditDomain.ActionSettlement, note)
	if err := t.audits.Append(ctx, entry); err != nil {
		t.logger.Error("failed to append settlement audit entry",
			zap.String("booking_id", bk.ID().String()),
			zap.Error(err),
		)
	}
}

func (t *SettlementTrigger) publishSettled(ctx context.Context, bk *bookingDomain.Booking, at time.Time) {
	if t.producer == nil {
		return
	}
	evt := events.BookingSettledEvent{BookingID: bk.ID(), SettledAt: at}
	cloudEvent, err := kafka.NewCloudEvent(events.EventSource, events.BookingSettled, evt)
	if err != nil {
		t.logger.Error("failed to build settled event", zap.Error(err))
		return
	}
	if err := t.producer.PublishEvent(ctx, events.TopicBookingEvents, cloudEvent); err != nil {
		t.logger.Error("failed to publish settled event",
			zap.String("booking_id", bk.ID().String()),
			zap.Error(err),
		)
	}
}
