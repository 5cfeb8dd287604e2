package events

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/spokeshare/service-booking/internal/kafka"
)

// CaptureRecorder applies payment captures to bookings. Implementations must
// treat repeat deliveries of the same capture as success no-ops.
type CaptureRecorder interface {
	RecordBorrowerCharge(ctx context.Context, bookingID uuid.UUID, amountCents int64, chargeRef string) error
	RecordOwnerDeposit(ctx context.Context, bookingID uuid.UUID, amountCents int64, chargeRef string) error
}

// PaymentEventConsumer listens to payment capture events and advances the
// booking toward confirmed.
type PaymentEventConsumer struct {
	consumer *kafka.Consumer
	service  CaptureRecorder
	logger   *zap.Logger
}

// NewPaymentEventConsumer creates a new PaymentEventConsumer.
func NewPaymentEventConsumer(
	brokers []string,
	groupID string,
	service CaptureRecorder,
	logger *zap.Logger,
) *PaymentEventConsumer {
	consumer := kafka.NewConsumer(brokers, groupID, TopicPaymentEvents, logger)
	return &PaymentEventConsumer{
		consumer: consumer,
		service:  service,
		logger:   logger,
	}
}

// Start begins consuming payment events. This blocks until the context is cancelled.
func (c *PaymentEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *PaymentEventConsumer) Close() error {
	return c.consumer.Close()
}

func (c *PaymentEventConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	var cloudEvent kafka.CloudEvent
	if err := json.Unmarshal(msg.Value, &cloudEvent); err != nil {
		c.logger.Error("failed to parse cloud event from payment topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // Don't retry malformed messages
	}

	switch cloudEvent.Type {
	case PaymentBorrowerChargeCaptured:
		return c.handleCapture(ctx, cloudEvent, true)
	case PaymentOwnerDepositCaptured:
		return c.handleCapture(ctx, cloudEvent, false)
	default:
		c.logger.Debug("ignoring unhandled payment event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

func (c *PaymentEventConsumer) handleCapture(ctx context.Context, cloudEvent kafka.CloudEvent, borrower bool) error {
	var evt PaymentCapturedEvent
	if err := cloudEvent.ParseData(&evt); err != nil {
		c.logger.Error("failed to parse payment captured event data",
			zap.Error(err),
		)
		return nil // Don't retry malformed data
	}

	c.logger.Info("processing payment capture",
		zap.String("type", cloudEvent.Type),
		zap.String("booking_id", evt.BookingID.String()),
	)

	var err error
	if borrower {
		err = c.service.RecordBorrowerCharge(ctx, evt.BookingID, evt.AmountCents, evt.ChargeReference)
	} else {
		err = c.service.RecordOwnerDeposit(ctx, evt.BookingID, evt.AmountCents, evt.ChargeReference)
	}
	if err != nil {
		c.logger.Error("failed to record payment capture",
			zap.String("booking_id", evt.BookingID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}
