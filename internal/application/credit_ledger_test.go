package application

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spokeshare/service-booking/internal/domain"
	creditDomain "github.com/spokeshare/service-booking/internal/domain/credit"
)

func TestCreditLedger_IssueRebookCredit(t *testing.T) {
	ctx := context.Background()

	t.Run("first issuance creates the credit", func(t *testing.T) {
		repo := newFakeCreditRepo()
		ledger := NewCreditLedger(repo, "USD", zap.NewNop())
		userID, bookingID := uuid.New(), uuid.New()

		c, created, err := ledger.IssueRebookCredit(ctx, userID, bookingID, 15000)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, creditDomain.StatusAvailable, c.Status)
		assert.Equal(t, int64(15000), c.AmountCents)
		assert.Equal(t, "USD", c.Currency)
	})

	t.Run("repeat issuance returns the existing credit", func(t *testing.T) {
		repo := newFakeCreditRepo()
		ledger := NewCreditLedger(repo, "USD", zap.NewNop())
		userID, bookingID := uuid.New(), uuid.New()

		first, created, err := ledger.IssueRebookCredit(ctx, userID, bookingID, 15000)
		require.NoError(t, err)
		require.True(t, created)

		second, created, err := ledger.IssueRebookCredit(ctx, userID, bookingID, 15000)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
		assert.Len(t, repo.all(), 1)
	})

	t.Run("losing the insert race converges on the winner", func(t *testing.T) {
		repo := newFakeCreditRepo()
		ledger := NewCreditLedger(repo, "USD", zap.NewNop())
		userID, bookingID := uuid.New(), uuid.New()

		// Simulate a concurrent issuance landing between the pre-read and
		// the insert.
		winner, err := creditDomain.New(userID, bookingID, creditDomain.TypeRebook, 15000, "USD")
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, winner))
		require.Error(t, repo.Save(ctx, winner)) // constraint holds

		c, created, err := ledger.IssueRebookCredit(ctx, userID, bookingID, 15000)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, winner.ID, c.ID)
	})

	t.Run("different bookings get separate credits", func(t *testing.T) {
		repo := newFakeCreditRepo()
		ledger := NewCreditLedger(repo, "USD", zap.NewNop())
		userID := uuid.New()

		_, created, err := ledger.IssueRebookCredit(ctx, userID, uuid.New(), 15000)
		require.NoError(t, err)
		assert.True(t, created)

		_, created, err = ledger.IssueRebookCredit(ctx, userID, uuid.New(), 15000)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Len(t, repo.all(), 2)
	})

	t.Run("non-positive amount is rejected", func(t *testing.T) {
		ledger := NewCreditLedger(newFakeCreditRepo(), "USD", zap.NewNop())

		_, _, err := ledger.IssueRebookCredit(ctx, uuid.New(), uuid.New(), 0)
		assert.True(t, domain.IsKind(err, domain.KindValidation))
	})
}
