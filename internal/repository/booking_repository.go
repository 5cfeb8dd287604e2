package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/spokeshare/service-booking/internal/domain"
	bookingDomain "github.com/spokeshare/service-booking/internal/domain/booking"
)

// BookingModel is the GORM model for the bookings table.
type BookingModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	BookingNumber string    `gorm:"uniqueIndex;not null;size:20"`
	BorrowerID    uuid.UUID `gorm:"type:uuid;index;not null"`
	OwnerID       uuid.UUID `gorm:"type:uuid;index;not null"`
	BikeID        uuid.UUID `gorm:"type:uuid;index;not null"`

	Status       string `gorm:"not null;size:30;index"`
	StatusDetail string `gorm:"size:100"`

	ScheduledStartAt time.Time `gorm:"not null;index"`
	DurationMinutes  int       `gorm:"not null"`

	BorrowerPaid        bool `gorm:"not null;default:false"`
	OwnerDepositPaid    bool `gorm:"not null;default:false"`
	BorrowerCheckedIn   bool `gorm:"not null;default:false"`
	OwnerCheckedIn      bool `gorm:"not null;default:false"`
	BorrowerCheckedInAt *time.Time
	OwnerCheckedInAt    *time.Time

	BorrowerConfirmedComplete bool   `gorm:"not null;default:false"`
	OwnerConfirmedComplete    bool   `gorm:"not null;default:false"`
	OwnerDepositChoice        string `gorm:"size:10"`

	Completed   bool `gorm:"not null;default:false"`
	CompletedAt *time.Time

	Cancelled      bool   `gorm:"not null;default:false"`
	CancelledBy    string `gorm:"size:20"`
	CancelledAt    *time.Time
	CancelScenario string `gorm:"size:40"`

	NeedsReview           bool   `gorm:"not null;default:false;index"`
	ReviewReason          string `gorm:"size:200"`
	NeedsRebooking        bool   `gorm:"not null;default:false"`
	TreatAsOwnerNoShow    bool   `gorm:"not null;default:false"`
	TreatAsBorrowerNoShow bool   `gorm:"not null;default:false"`
	BikeInvalid           bool   `gorm:"not null;default:false"`
	BikeInvalidReason     string `gorm:"size:500"`
	BikeInvalidAt         *time.Time

	RefundStatus      string `gorm:"size:30"`
	RefundAmountCents int64  `gorm:"not null;default:0"`
	RefundIntentKey   string `gorm:"size:120"`

	PayoutAmountCents int64 `gorm:"not null;default:0"`
	OwnerPayoutDone   bool  `gorm:"not null;default:false"`

	Settled           bool `gorm:"not null;default:false"`
	SettledAt         *time.Time
	SettlementOutcome []byte `gorm:"type:jsonb"`

	Version   int64     `gorm:"not null;default:1"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (BookingModel) TableName() string {
	return "bookings"
}

// GormBookingRepository is the GORM-based implementation of BookingRepository.
type GormBookingRepository struct {
	db *gorm.DB
}

// NewGormBookingRepository creates a new GormBookingRepository.
func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

// FindByID retrieves a booking by its unique identifier.
func (r *GormBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Booking", id.String())
		}
		return nil, fmt.Errorf("failed to find booking by ID: %w", err)
	}
	return toDomainBooking(&model)
}

// FindByBorrowerID retrieves bookings for a specific borrower with pagination.
func (r *GormBookingRepository) FindByBorrowerID(ctx context.Context, borrowerID uuid.UUID, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	return r.findPaged(ctx, "borrower_id = ?", borrowerID, page, limit)
}

// FindByOwnerID retrieves bookings for a specific owner with pagination.
func (r *GormBookingRepository) FindByOwnerID(ctx context.Context, ownerID uuid.UUID, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	return r.findPaged(ctx, "owner_id = ?", ownerID, page, limit)
}

func (r *GormBookingRepository) findPaged(ctx context.Context, cond string, arg interface{}, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).Where(cond, arg).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	var models []BookingModel
	offset := (page - 1) * limit
	if err := r.db.WithContext(ctx).
		Where(cond, arg).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to find bookings: %w", err)
	}

	return toDomainBookings(models, total)
}

// FindAwaitingAcceptance retrieves paid-but-unaccepted bookings for the
// acceptance-expiry sweep, oldest first, bounded by limit.
func (r *GormBookingRepository) FindAwaitingAcceptance(ctx context.Context, limit int) ([]*bookingDomain.Booking, error) {
	var models []BookingModel
	if err := r.db.WithContext(ctx).
		Where("borrower_paid = ? AND owner_deposit_paid = ? AND cancelled = ?", true, false, false).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find bookings awaiting acceptance: %w", err)
	}

	bookings := make([]*bookingDomain.Booking, len(models))
	for i, m := range models {
		bk, err := toDomainBooking(&m)
		if err != nil {
			return nil, err
		}
		bookings[i] = bk
	}
	return bookings, nil
}

// ListAll retrieves all bookings with pagination (admin).
func (r *GormBookingRepository) ListAll(ctx context.Context, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	var models []BookingModel
	offset := (page - 1) * limit
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	return toDomainBookings(models, total)
}

// ListNeedingReview retrieves bookings frozen for review with pagination (admin).
func (r *GormBookingRepository) ListNeedingReview(ctx context.Context, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	return r.findPaged(ctx, "needs_review = ?", true, page, limit)
}

// CountByStatus returns booking counts grouped by status (admin).
func (r *GormBookingRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}

	counts := make(map[string]int64)
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return counts, nil
}

// Save persists a new booking.
func (r *GormBookingRepository) Save(ctx context.Context, bk *bookingDomain.Booking) error {
	model := toBookingModel(bk)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save booking: %w", err)
	}
	return nil
}

// Update persists changes to an existing booking with optimistic locking.
func (r *GormBookingRepository) Update(ctx context.Context, bk *bookingDomain.Booking) error {
	model := toBookingModel(bk)

	// Only update if the version matches (current version - 1, since
	// IncrementVersion was called before Update).
	expectedVersion := bk.Version() - 1
	result := r.db.WithContext(ctx).
		Model(&BookingModel{}).
		Where("id = ? AND version = ?", model.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":                      model.Status,
			"status_detail":               model.StatusDetail,
			"borrower_paid":               model.BorrowerPaid,
			"owner_deposit_paid":          model.OwnerDepositPaid,
			"borrower_checked_in":         model.BorrowerCheckedIn,
			"owner_checked_in":            model.OwnerCheckedIn,
			"borrower_checked_in_at":      model.BorrowerCheckedInAt,
			"owner_checked_in_at":         model.OwnerCheckedInAt,
			"borrower_confirmed_complete": model.BorrowerConfirmedComplete,
			"owner_confirmed_complete":    model.OwnerConfirmedComplete,
			"owner_deposit_choice":        model.OwnerDepositChoice,
			"completed":                   model.Completed,
			"completed_at":                model.CompletedAt,
			"cancelled":                   model.Cancelled,
			"cancelled_by":                model.CancelledBy,
			"cancelled_at":                model.CancelledAt,
			"cancel_scenario":             model.CancelScenario,
			"needs_review":                model.NeedsReview,
			"review_reason":               model.ReviewReason,
			"needs_rebooking":             model.NeedsRebooking,
			"treat_as_owner_no_show":      model.TreatAsOwnerNoShow,
			"treat_as_borrower_no_show":   model.TreatAsBorrowerNoShow,
			"bike_invalid":                model.BikeInvalid,
			"bike_invalid_reason":         model.BikeInvalidReason,
			"bike_invalid_at":             model.BikeInvalidAt,
			"refund_status":               model.RefundStatus,
			"refund_amount_cents":         model.RefundAmountCents,
			"refund_intent_key":           model.RefundIntentKey,
			"payout_amount_cents":         model.PayoutAmountCents,
			"owner_payout_done":           model.OwnerPayoutDone,
			"settled":                     model.Settled,
			"settled_at":                  model.SettledAt,
			"settlement_outcome":          model.SettlementOutcome,
			"version":                     model.Version,
			"updated_at":                  model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update booking: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return domain.NewConflictError("booking was modified by another transaction")
	}

	return nil
}

// --- Conversion Helpers ---

func toDomainBookings(models []BookingModel, total int64) ([]*bookingDomain.Booking, int64, error) {
	bookings := make([]*bookingDomain.Booking, len(models))
	for i, m := range models {
		bk, err := toDomainBooking(&m)
		if err != nil {
			return nil, 0, err
		}
		bookings[i] = bk
	}
	return bookings, total, nil
}

func toBookingModel(bk *bookingDomain.Booking) *BookingModel {
	s := bk.Snapshot()
	return &BookingModel{
		ID:                        s.ID,
		BookingNumber:             s.BookingNumber,
		BorrowerID:                s.BorrowerID,
		OwnerID:                   s.OwnerID,
		BikeID:                    s.BikeID,
		Status:                    string(s.Status),
		StatusDetail:              s.StatusDetail,
		ScheduledStartAt:          s.ScheduledStartAt,
		DurationMinutes:           s.DurationMinutes,
		BorrowerPaid:              s.BorrowerPaid,
		OwnerDepositPaid:          s.OwnerDepositPaid,
		BorrowerCheckedIn:         s.BorrowerCheckedIn,
		OwnerCheckedIn:            s.OwnerCheckedIn,
		BorrowerCheckedInAt:       s.BorrowerCheckedInAt,
		OwnerCheckedInAt:          s.OwnerCheckedInAt,
		BorrowerConfirmedComplete: s.BorrowerConfirmedComplete,
		OwnerConfirmedComplete:    s.OwnerConfirmedComplete,
		OwnerDepositChoice:        string(s.OwnerDepositChoice),
		Completed:                 s.Completed,
		CompletedAt:               s.CompletedAt,
		Cancelled:                 s.Cancelled,
		CancelledBy:               string(s.CancelledBy),
		CancelledAt:               s.CancelledAt,
		CancelScenario:            s.CancelScenario,
		NeedsReview:               s.NeedsReview,
		ReviewReason:              s.ReviewReason,
		NeedsRebooking:            s.NeedsRebooking,
		TreatAsOwnerNoShow:        s.TreatAsOwnerNoShow,
		TreatAsBorrowerNoShow:     s.TreatAsBorrowerNoShow,
		BikeInvalid:               s.BikeInvalid,
		BikeInvalidReason:         s.BikeInvalidReason,
		BikeInvalidAt:             s.BikeInvalidAt,
		RefundStatus:              s.RefundStatus,
		RefundAmountCents:         s.RefundAmountCents,
		RefundIntentKey:           s.RefundIntentKey,
		PayoutAmountCents:         s.PayoutAmountCents,
		OwnerPayoutDone:           s.OwnerPayoutDone,
		Settled:                   s.Settled,
		SettledAt:                 s.SettledAt,
		SettlementOutcome:         s.SettlementOutcome,
		Version:                   s.Version,
		CreatedAt:                 s.CreatedAt,
		UpdatedAt:                 s.UpdatedAt,
	}
}

func toDomainBooking(m *BookingModel) (*bookingDomain.Booking, error) {
	status, err := bookingDomain.ParseBookingStatus(m.Status)
	if err != nil {
		return nil, err
	}

	return bookingDomain.Reconstruct(bookingDomain.Snapshot{
		ID:                        m.ID,
		BookingNumber:             m.BookingNumber,
		BorrowerID:                m.BorrowerID,
		OwnerID:                   m.OwnerID,
		BikeID:                    m.BikeID,
		Status:                    status,
		StatusDetail:              m.StatusDetail,
		ScheduledStartAt:          m.ScheduledStartAt,
		DurationMinutes:           m.DurationMinutes,
		BorrowerPaid:              m.BorrowerPaid,
		OwnerDepositPaid:          m.OwnerDepositPaid,
		BorrowerCheckedIn:         m.BorrowerCheckedIn,
		OwnerCheckedIn:            m.OwnerCheckedIn,
		BorrowerCheckedInAt:       m.BorrowerCheckedInAt,
		OwnerCheckedInAt:          m.OwnerCheckedInAt,
		BorrowerConfirmedComplete: m.BorrowerConfirmedComplete,
		OwnerConfirmedComplete:    m.OwnerConfirmedComplete,
		OwnerDepositChoice:        bookingDomain.DepositChoice(m.OwnerDepositChoice),
		Completed:                 m.Completed,
		CompletedAt:               m.CompletedAt,
		Cancelled:                 m.Cancelled,
		CancelledBy:               bookingDomain.CancelActor(m.CancelledBy),
		CancelledAt:               m.CancelledAt,
		CancelScenario:            m.CancelScenario,
		NeedsReview:               m.NeedsReview,
		ReviewReason:              m.ReviewReason,
		NeedsRebooking:            m.NeedsRebooking,
		TreatAsOwnerNoShow:        m.TreatAsOwnerNoShow,
		TreatAsBorrowerNoShow:     m.TreatAsBorrowerNoShow,
		BikeInvalid:               m.BikeInvalid,
		BikeInvalidReason:         m.BikeInvalidReason,
		BikeInvalidAt:             m.BikeInvalidAt,
		RefundStatus:              m.RefundStatus,
		RefundAmountCents:         m.RefundAmountCents,
		RefundIntentKey:           m.RefundIntentKey,
		PayoutAmountCents:         m.PayoutAmountCents,
		OwnerPayoutDone:           m.OwnerPayoutDone,
		Settled:                   m.Settled,
		SettledAt:                 m.SettledAt,
		SettlementOutcome:         m.SettlementOutcome,
		Version:                   m.Version,
		CreatedAt:                 m.CreatedAt,
		UpdatedAt:                 m.UpdatedAt,
	}), nil
}
