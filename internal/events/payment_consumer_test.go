package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spokeshare/service-booking/internal/kafka"
)

type capturedCall struct {
	BookingID   uuid.UUID
	AmountCents int64
	ChargeRef   string
}

type fakeCaptureRecorder struct {
	borrower []capturedCall
	owner    []capturedCall
	failWith error
}

func (r *fakeCaptureRecorder) RecordBorrowerCharge(_ context.Context, bookingID uuid.UUID, amountCents int64, chargeRef string) error {
	r.borrower = append(r.borrower, capturedCall{bookingID, amountCents, chargeRef})
	return r.failWith
}

func (r *fakeCaptureRecorder) RecordOwnerDeposit(_ context.Context, bookingID uuid.UUID, amountCents int64, chargeRef string) error {
	r.owner = append(r.owner, capturedCall{bookingID, amountCents, chargeRef})
	return r.failWith
}

func captureMessage(t *testing.T, eventType string, evt PaymentCapturedEvent) kafkago.Message {
	t.Helper()
	ce, err := kafka.NewCloudEvent("service-payment", eventType, evt)
	require.NoError(t, err)
	raw, err := json.Marshal(ce)
	require.NoError(t, err)
	return kafkago.Message{Value: raw}
}

func TestPaymentEventConsumer_HandleMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("borrower charge routes to the borrower recorder", func(t *testing.T) {
		recorder := &fakeCaptureRecorder{}
		c := &PaymentEventConsumer{service: recorder, logger: zap.NewNop()}

		bookingID := uuid.New()
		msg := captureMessage(t, PaymentBorrowerChargeCaptured, PaymentCapturedEvent{
			BookingID:       bookingID,
			UserID:          uuid.New(),
			AmountCents:     15000,
			Currency:        "USD",
			ChargeReference: "ch_b",
			CapturedAt:      time.Now().UTC(),
		})

		require.NoError(t, c.handleMessage(ctx, msg))
		require.Len(t, recorder.borrower, 1)
		assert.Empty(t, recorder.owner)
		assert.Equal(t, bookingID, recorder.borrower[0].BookingID)
		assert.Equal(t, int64(15000), recorder.borrower[0].AmountCents)
		assert.Equal(t, "ch_b", recorder.borrower[0].ChargeRef)
	})

	t.Run("owner deposit routes to the owner recorder", func(t *testing.T) {
		recorder := &fakeCaptureRecorder{}
		c := &PaymentEventConsumer{service: recorder, logger: zap.NewNop()}

		msg := captureMessage(t, PaymentOwnerDepositCaptured, PaymentCapturedEvent{
			BookingID:       uuid.New(),
			AmountCents:     15000,
			ChargeReference: "ch_o",
		})

		require.NoError(t, c.handleMessage(ctx, msg))
		assert.Empty(t, recorder.borrower)
		assert.Len(t, recorder.owner, 1)
	})

	t.Run("malformed envelope is dropped without retry", func(t *testing.T) {
		recorder := &fakeCaptureRecorder{}
		c := &PaymentEventConsumer{service: recorder, logger: zap.NewNop()}

		err := c.handleMessage(ctx, kafkago.Message{Value: []byte("{not json")})
		require.NoError(t, err)
		assert.Empty(t, recorder.borrower)
		assert.Empty(t, recorder.owner)
	})

	t.Run("unhandled event type is ignored", func(t *testing.T) {
		recorder := &fakeCaptureRecorder{}
		c := &PaymentEventConsumer{service: recorder, logger: zap.NewNop()}

		msg := captureMessage(t, "payment.something_else", PaymentCapturedEvent{BookingID: uuid.New()})
		require.NoError(t, c.handleMessage(ctx, msg))
		assert.Empty(t, recorder.borrower)
	})

	t.Run("recorder failure propagates so the offset is retried", func(t *testing.T) {
		recorder := &fakeCaptureRecorder{failWith: assert.AnError}
		c := &PaymentEventConsumer{service: recorder, logger: zap.NewNop()}

		msg := captureMessage(t, PaymentBorrowerChargeCaptured, PaymentCapturedEvent{BookingID: uuid.New()})
		assert.Error(t, c.handleMessage(ctx, msg))
	})
}
