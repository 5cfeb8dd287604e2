package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/spokeshare/service-booking/internal/domain"
	paymentDomain "github.com/spokeshare/service-booking/internal/domain/payment"
)

// PaymentModel is the GORM model for the payments table.
type PaymentModel struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey"`
	BookingID           uuid.UUID `gorm:"type:uuid;index;not null"`
	UserID              uuid.UUID `gorm:"type:uuid;index"`
	Type                string    `gorm:"not null;size:30;index"`
	Status              string    `gorm:"not null;size:20"`
	AmountCents         int64     `gorm:"not null"`
	Currency            string    `gorm:"not null;size:3"`
	ChargeReference     string    `gorm:"size:120"`
	RefundReference     string    `gorm:"size:120"`
	RefundedAmountCents int64     `gorm:"not null;default:0"`
	CreatedAt           time.Time `gorm:"not null"`
	UpdatedAt           time.Time `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (PaymentModel) TableName() string {
	return "payments"
}

// GormPaymentRepository is the GORM-based implementation of PaymentRepository.
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository.
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// Save persists a new payment row.
func (r *GormPaymentRepository) Save(ctx context.Context, p *paymentDomain.Payment) error {
	model := toPaymentModel(p)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

// FindByBookingAndType retrieves the most recent payment of a type for a booking.
func (r *GormPaymentRepository) FindByBookingAndType(ctx context.Context, bookingID uuid.UUID, t paymentDomain.PaymentType) (*paymentDomain.Payment, error) {
	var model PaymentModel
	if err := r.db.WithContext(ctx).
		Where("booking_id = ? AND type = ?", bookingID, string(t)).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Payment", fmt.Sprintf("%s/%s", bookingID, t))
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return toDomainPayment(&model), nil
}

// FindByBooking retrieves all payment rows for a booking, oldest first.
func (r *GormPaymentRepository) FindByBooking(ctx context.Context, bookingID uuid.UUID) ([]*paymentDomain.Payment, error) {
	var models []PaymentModel
	if err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find payments: %w", err)
	}

	payments := make([]*paymentDomain.Payment, len(models))
	for i, m := range models {
		payments[i] = toDomainPayment(&m)
	}
	return payments, nil
}

// RecordRefund updates a payment row in place with the refund outcome.
func (r *GormPaymentRepository) RecordRefund(ctx context.Context, paymentID uuid.UUID, refundReference string, refundedAmountCents int64) error {
	result := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Where("id = ?", paymentID).
		Updates(map[string]interface{}{
			"status":                string(paymentDomain.StatusRefunded),
			"refund_reference":      refundReference,
			"refunded_amount_cents": refundedAmountCents,
			"updated_at":            time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record refund: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("Payment", paymentID.String())
	}
	return nil
}

// --- Conversion Helpers ---

func toPaymentModel(p *paymentDomain.Payment) *PaymentModel {
	return &PaymentModel{
		ID:                  p.ID,
		BookingID:           p.BookingID,
		UserID:              p.UserID,
		Type:                string(p.Type),
		Status:              string(p.Status),
		AmountCents:         p.AmountCents,
		Currency:            p.Currency,
		ChargeReference:     p.ChargeReference,
		RefundReference:     p.RefundReference,
		RefundedAmountCents: p.RefundedAmountCents,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func toDomainPayment(m *PaymentModel) *paymentDomain.Payment {
	return &paymentDomain.Payment{
		ID:                  m.ID,
		BookingID:           m.BookingID,
		UserID:              m.UserID,
		Type:                paymentDomain.PaymentType(m.Type),
		Status:              paymentDomain.PaymentStatus(m.Status),
		AmountCents:         m.AmountCents,
		Currency:            m.Currency,
		ChargeReference:     m.ChargeReference,
		RefundReference:     m.RefundReference,
		RefundedAmountCents: m.RefundedAmountCents,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}
