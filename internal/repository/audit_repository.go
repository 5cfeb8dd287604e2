package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	auditDomain "github.com/spokeshare/service-booking/internal/domain/audit"
)

// AuditLogModel is the GORM model for the audit_logs table. Rows are
// append-only; there is no update or delete path.
type AuditLogModel struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	BookingID uuid.UUID  `gorm:"type:uuid;index;not null"`
	ActorRole string     `gorm:"not null;size:20"`
	ActorID   *uuid.UUID `gorm:"type:uuid"`
	Action    string     `gorm:"not null;size:50;index"`
	Note      string     `gorm:"size:1000"`
	CreatedAt time.Time  `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// GormAuditRepository is the GORM-based implementation of AuditRepository.
type GormAuditRepository struct {
	db *gorm.DB
}

// NewGormAuditRepository creates a new GormAuditRepository.
func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

// Append persists a new audit entry.
func (r *GormAuditRepository) Append(ctx context.Context, e *auditDomain.Entry) error {
	model := &AuditLogModel{
		ID:        e.ID,
		BookingID: e.BookingID,
		ActorRole: string(e.ActorRole),
		ActorID:   e.ActorID,
		Action:    e.Action,
		Note:      e.Note,
		CreatedAt: e.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListByBooking retrieves audit entries for a booking, oldest first.
func (r *GormAuditRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*auditDomain.Entry, error) {
	var models []AuditLogModel
	if err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	entries := make([]*auditDomain.Entry, len(models))
	for i, m := range models {
		entries[i] = &auditDomain.Entry{
			ID:        m.ID,
			BookingID: m.BookingID,
			ActorRole: auditDomain.ActorRole(m.ActorRole),
			ActorID:   m.ActorID,
			Action:    m.Action,
			Note:      m.Note,
			CreatedAt: m.CreatedAt,
		}
	}
	return entries, nil
}
