package application

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	bookingDomain "github.com/spokeshare/service-booking/internal/domain/booking"
	paymentDomain "github.com/spokeshare/service-booking/internal/domain/payment"
)

type orchestratorEnv struct {
	bookings *fakeBookingRepo
	payments *fakePaymentRepo
	credits  *fakeCreditRepo
	gw       *fakePaymentsGateway
	orch     *RefundOrchestrator
}

func newOrchestratorEnv(t *testing.T) *orchestratorEnv {
	t.Helper()
	logger := zap.NewNop()
	env := &orchestratorEnv{
		bookings: newFakeBookingRepo(),
		payments: newFakePaymentRepo(),
		credits:  newFakeCreditRepo(),
		gw:       &fakePaymentsGateway{configured: true},
	}
	ledger := NewCreditLedger(env.credits, "USD", logger)
	env.orch = NewRefundOrchestrator(env.bookings, env.payments, ledger, env.gw, logger)
	return env
}

func (e *orchestratorEnv) seedPaidBooking(t *testing.T, chargeRef string) *bookingDomain.Booking {
	t.Helper()
	ctx := context.Background()
	bk, err := bookingDomain.NewBooking(uuid.New(), uuid.New(), uuid.New(),
		time.Now().UTC().Add(7*24*time.Hour), 120)
	require.NoError(t, err)

	s := bk.Snapshot()
	markPaidConfirmed(&s)
	bk = bookingDomain.Reconstruct(s)
	require.NoError(t, e.bookings.Save(ctx, bk))

	if chargeRef != "" {
		row, err := paymentDomain.New(bk.ID(), bk.BorrowerID(), paymentDomain.TypeBorrowerCharge,
			paymentDomain.StatusSucceeded, testDepositCents, "USD", chargeRef)
		require.NoError(t, err)
		require.NoError(t, e.payments.Save(ctx, row))
	}
	return bk
}

func TestRefundOrchestrator_GatewayPath(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()
	bk := env.seedPaidBooking(t, "ch_gw")
	amount := testDepositCents * 3 / 4

	outcome, err := env.orch.RefundDeposit(ctx, bk, bookingDomain.PartyBorrower, amount, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, RefundViaGateway, outcome.Via)
	assert.Equal(t, amount, outcome.AmountCents)
	assert.NotEmpty(t, outcome.RefundReference)
	assert.Nil(t, outcome.CreditID)

	// The intent was written ahead of the gateway call and the refund was
	// recorded on the charge row.
	stored, err := env.bookings.FindByID(ctx, bk.ID())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.RefundIntentKey(), "refund:"))
	assert.Equal(t, bookingDomain.RefundStatusRefundedPart, stored.RefundStatus())
	assert.Equal(t, amount, stored.RefundAmountCents())

	row, err := env.payments.FindByBookingAndType(ctx, bk.ID(), paymentDomain.TypeBorrowerCharge)
	require.NoError(t, err)
	assert.Equal(t, paymentDomain.StatusRefunded, row.Status)
	assert.Equal(t, outcome.RefundReference, row.RefundReference)
	assert.Equal(t, amount, row.RefundedAmountCents)
}

func TestRefundOrchestrator_IdempotencyKeyStableAcrossRetries(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()
	bk := env.seedPaidBooking(t, "ch_retry")
	amount := testDepositCents * 3 / 4

	// First attempt fails at the gateway but leaves the intent behind.
	env.gw.failWith = assert.AnError
	_, err := env.orch.RefundDeposit(ctx, bk, bookingDomain.PartyBorrower, amount, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, env.gw.calls, 1)
	firstKey := env.gw.calls[0].IdempotencyKey

	// The retry reuses the persisted key even at a later timestamp.
	env.gw.failWith = nil
	retried, err := env.bookings.FindByID(ctx, bk.ID())
	require.NoError(t, err)
	_, err = env.orch.RefundDeposit(ctx, retried, bookingDomain.PartyBorrower, amount, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, env.gw.calls, 2)
	assert.Equal(t, firstKey, env.gw.calls[1].IdempotencyKey)
}

func TestRefundOrchestrator_CreditFallbackOnGatewayFailure(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()
	env.gw.failWith = assert.AnError
	bk := env.seedPaidBooking(t, "ch_fail")
	amount := testDepositCents * 3 / 4

	outcome, err := env.orch.RefundDeposit(ctx, bk, bookingDomain.PartyBorrower, amount, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, RefundViaCreditFallback, outcome.Via)
	require.NotNil(t, outcome.CreditID)

	stored, err := env.bookings.FindByID(ctx, bk.ID())
	require.NoError(t, err)
	assert.Equal(t, bookingDomain.RefundStatusCreditedPart, stored.RefundStatus())

	credits := env.credits.all()
	require.Len(t, credits, 1)
	assert.Equal(t, bk.BorrowerID(), credits[0].UserID)
	assert.Equal(t, amount, credits[0].AmountCents)
}

func TestRefundOrchestrator_CreditWhenGatewayUnconfigured(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()
	env.gw.configured = false
	bk := env.seedPaidBooking(t, "ch_off")

	outcome, err := env.orch.RefundDeposit(ctx, bk, bookingDomain.PartyBorrower, testDepositCents*3/4, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, RefundViaCredit, outcome.Via)
	assert.Empty(t, env.gw.calls)
}

func TestRefundOrchestrator_CreditWhenChargeReferenceMissing(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()
	bk := env.seedPaidBooking(t, "")

	outcome, err := env.orch.RefundDeposit(ctx, bk, bookingDomain.PartyBorrower, testDepositCents*3/4, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, RefundViaCredit, outcome.Via)
	assert.Empty(t, env.gw.calls)
}

func TestRefundOrchestrator_OwnerPartyTargetsDepositRow(t *testing.T) {
	env := newOrchestratorEnv(t)
	ctx := context.Background()
	bk := env.seedPaidBooking(t, "")

	row, err := paymentDomain.New(bk.ID(), bk.OwnerID(), paymentDomain.TypeOwnerDeposit,
		paymentDomain.StatusSucceeded, testDepositCents, "USD", "ch_owner")
	require.NoError(t, err)
	require.NoError(t, env.payments.Save(ctx, row))

	outcome, err := env.orch.RefundDeposit(ctx, bk, bookingDomain.PartyOwner, testDepositCents*3/4, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, RefundViaGateway, outcome.Via)
	require.Len(t, env.gw.calls, 1)
	assert.Equal(t, "ch_owner", env.gw.calls[0].ChargeReference)
}
