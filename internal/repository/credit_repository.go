package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/spokeshare/service-booking/internal/domain"
	creditDomain "github.com/spokeshare/service-booking/internal/domain/credit"
)

// CreditModel is the GORM model for the credits table. A partial unique
// index on (user_id, booking_id, type) where status = 'available' enforces
// idempotent issuance (see migrations).
type CreditModel struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID        uuid.UUID  `gorm:"type:uuid;index;not null"`
	BookingID     uuid.UUID  `gorm:"type:uuid;index;not null"`
	Type          string     `gorm:"not null;size:20"`
	Status        string     `gorm:"not null;size:20"`
	AmountCents   int64      `gorm:"not null"`
	Currency      string     `gorm:"not null;size:3"`
	ExpiresAt     time.Time  `gorm:"not null"`
	UsedByBooking *uuid.UUID `gorm:"type:uuid"`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (CreditModel) TableName() string {
	return "credits"
}

// GormCreditRepository is the GORM-based implementation of CreditRepository.
type GormCreditRepository struct {
	db *gorm.DB
}

// NewGormCreditRepository creates a new GormCreditRepository.
func NewGormCreditRepository(db *gorm.DB) *GormCreditRepository {
	return &GormCreditRepository{db: db}
}

// Save persists a new credit. A duplicate on the availability key surfaces
// as a conflict error so the caller can re-read and converge.
func (r *GormCreditRepository) Save(ctx context.Context, c *creditDomain.Credit) error {
	model := toCreditModel(c)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.NewConflictError("an available credit already exists for this user, booking, and type")
		}
		return fmt.Errorf("failed to save credit: %w", err)
	}
	return nil
}

// FindAvailable retrieves the available credit for the dedup key.
func (r *GormCreditRepository) FindAvailable(ctx context.Context, userID, bookingID uuid.UUID, t creditDomain.CreditType) (*creditDomain.Credit, error) {
	var model CreditModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND booking_id = ? AND type = ? AND status = ?",
			userID, bookingID, string(t), string(creditDomain.StatusAvailable)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Credit", fmt.Sprintf("%s/%s/%s", userID, bookingID, t))
		}
		return nil, fmt.Errorf("failed to find credit: %w", err)
	}
	return toDomainCredit(&model), nil
}

// FindByUser retrieves all credits for a user, newest first.
func (r *GormCreditRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]*creditDomain.Credit, error) {
	var models []CreditModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find credits: %w", err)
	}

	credits := make([]*creditDomain.Credit, len(models))
	for i, m := range models {
		credits[i] = toDomainCredit(&m)
	}
	return credits, nil
}

// isUniqueViolation matches the postgres unique-violation error without
// binding to a driver-specific error type.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "duplicate key value") ||
		strings.Contains(err.Error(), "SQLSTATE 23505"))
}

// --- Conversion Helpers ---

func toCreditModel(c *creditDomain.Credit) *CreditModel {
	return &CreditModel{
		ID:            c.ID,
		UserID:        c.UserID,
		BookingID:     c.BookingID,
		Type:          string(c.Type),
		Status:        string(c.Status),
		AmountCents:   c.AmountCents,
		Currency:      c.Currency,
		ExpiresAt:     c.ExpiresAt,
		UsedByBooking: c.UsedByBooking,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func toDomainCredit(m *CreditModel) *creditDomain.Credit {
	return &creditDomain.Credit{
		ID:            m.ID,
		UserID:        m.UserID,
		BookingID:     m.BookingID,
		Type:          creditDomain.CreditType(m.Type),
		Status:        creditDomain.CreditStatus(m.Status),
		AmountCents:   m.AmountCents,
		Currency:      m.Currency,
		ExpiresAt:     m.ExpiresAt,
		UsedByBooking: m.UsedByBooking,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
