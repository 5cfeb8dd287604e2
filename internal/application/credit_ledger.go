package application

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spokeshare/service-booking/internal/domain"
	creditDomain "github.com/spokeshare/service-booking/internal/domain/credit"
)

// CreditLedger issues compensating credits idempotently: at most one
// available credit per (user, booking, type), enforced both by a pre-read
// and by the store's uniqueness constraint.
type CreditLedger struct {
	credits  creditDomain.CreditRepository
	currency string
	logger   *zap.Logger
}

// NewCreditLedger creates a new CreditLedger.
func NewCreditLedger(credits creditDomain.CreditRepository, currency string, logger *zap.Logger) *CreditLedger {
	return &CreditLedger{credits: credits, currency: currency, logger: logger}
}

// IssueRebookCredit grants a rebook credit to the user for the booking.
// Returns the credit and whether a new row was created. A repeat call for
// the same key returns the existing credit without side effects.
func (l *CreditLedger) IssueRebookCredit(ctx context.Context, userID, bookingID uuid.UUID, amountCents int64) (*creditDomain.Credit, bool, error) {
	existing, err := l.credits.FindAvailable(ctx, userID, bookingID, creditDomain.TypeRebook)
	if err == nil {
		return existing, false, nil
	}
	if !domain.IsKind(err, domain.KindNotFound) {
		return nil, false, err
	}

	c, err := creditDomain.New(userID, bookingID, creditDomain.TypeRebook, amountCents, l.currency)
	if err != nil {
		return nil, false, err
	}

	if err := l.credits.Save(ctx, c); err != nil {
		// Lost a race against a concurrent issuance: converge on the winner.
		if domain.IsKind(err, domain.KindConflict) {
			winner, findErr := l.credits.FindAvailable(ctx, userID, bookingID, creditDomain.TypeRebook)
			if findErr != nil {
				return nil, false, findErr
			}
			return winner, false, nil
		}
		return nil, false, err
	}

	l.logger.Info("rebook credit issued",
		zap.String("user_id", userID.String()),
		zap.String("booking_id", bookingID.String()),
		zap.Int64("amount_cents", amountCents),
	)
	return c, true, nil
}
