package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/spokeshare/service-booking/internal/domain"
	auditDomain "github.com/spokeshare/service-booking/internal/domain/audit"
	bookingDomain "github.com/spokeshare/service-booking/internal/domain/booking"
	creditDomain "github.com/spokeshare/service-booking/internal/domain/credit"
	paymentDomain "github.com/spokeshare/service-booking/internal/domain/payment"
)

// fakeBookingRepo is an in-memory BookingRepository with the same optimistic
// locking semantics as the real store.
type fakeBookingRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]bookingDomain.Snapshot

	// failNextUpdate makes the next Update lose the optimistic race once.
	failNextUpdate bool
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{bookings: make(map[uuid.UUID]bookingDomain.Snapshot)}
}

func (r *fakeBookingRepo) FindByID(_ context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.bookings[id]
	if !ok {
		return nil, domain.NewNotFoundError("Booking", id.String())
	}
	return bookingDomain.Reconstruct(s), nil
}

func (r *fakeBookingRepo) FindByBorrowerID(_ context.Context, borrowerID uuid.UUID, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*bookingDomain.Booking
	for _, s := range r.bookings {
		if s.BorrowerID == borrowerID {
			out = append(out, bookingDomain.Reconstruct(s))
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeBookingRepo) FindByOwnerID(_ context.Context, ownerID uuid.UUID, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*bookingDomain.Booking
	for _, s := range r.bookings {
		if s.OwnerID == ownerID {
			out = append(out, bookingDomain.Reconstruct(s))
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeBookingRepo) FindAwaitingAcceptance(_ context.Context, limit int) ([]*bookingDomain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*bookingDomain.Booking
	for _, s := range r.bookings {
		if s.BorrowerPaid && !s.OwnerDepositPaid && !s.Cancelled {
			out = append(out, bookingDomain.Reconstruct(s))
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeBookingRepo) ListAll(_ context.Context, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*bookingDomain.Booking
	for _, s := range r.bookings {
		out = append(out, bookingDomain.Reconstruct(s))
	}
	return out, int64(len(out)), nil
}

func (r *fakeBookingRepo) ListNeedingReview(_ context.Context, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*bookingDomain.Booking
	for _, s := range r.bookings {
		if s.NeedsReview {
			out = append(out, bookingDomain.Reconstruct(s))
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeBookingRepo) CountByStatus(_ context.Context) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int64)
	for _, s := range r.bookings {
		counts[string(s.Status)]++
	}
	return counts, nil
}

func (r *fakeBookingRepo) Save(_ context.Context, bk *bookingDomain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings[bk.ID()] = bk.Snapshot()
	return nil
}

func (r *fakeBookingRepo) Update(_ context.Context, bk *bookingDomain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNextUpdate {
		r.failNextUpdate = false
		return domain.NewConflictError("booking was modified concurrently")
	}
	s := bk.Snapshot()
	current, ok := r.bookings[bk.ID()]
	if !ok {
		return domain.NewNotFoundError("Booking", bk.ID().String())
	}
	if current.Version != s.Version-1 {
		return domain.NewConflictError("booking was modified concurrently")
	}
	r.bookings[bk.ID()] = s
	return nil
}

// fakePaymentRepo is an in-memory PaymentRepository.
type fakePaymentRepo struct {
	mu       sync.Mutex
	payments []*paymentDomain.Payment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{}
}

func (r *fakePaymentRepo) Save(_ context.Context, p *paymentDomain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.payments = append(r.payments, &cp)
	return nil
}

func (r *fakePaymentRepo) FindByBookingAndType(_ context.Context, bookingID uuid.UUID, t paymentDomain.PaymentType) (*paymentDomain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.payments) - 1; i >= 0; i-- {
		if r.payments[i].BookingID == bookingID && r.payments[i].Type == t {
			cp := *r.payments[i]
			return &cp, nil
		}
	}
	return nil, domain.NewNotFoundError("Payment", fmt.Sprintf("%s/%s", bookingID, t))
}

func (r *fakePaymentRepo) FindByBooking(_ context.Context, bookingID uuid.UUID) ([]*paymentDomain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*paymentDomain.Payment
	for _, p := range r.payments {
		if p.BookingID == bookingID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) RecordRefund(_ context.Context, paymentID uuid.UUID, refundReference string, refundedAmountCents int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ID == paymentID {
			p.Status = paymentDomain.StatusRefunded
			p.RefundReference = refundReference
			p.RefundedAmountCents = refundedAmountCents
			return nil
		}
	}
	return domain.NewNotFoundError("Payment", paymentID.String())
}

func (r *fakePaymentRepo) byType(bookingID uuid.UUID, t paymentDomain.PaymentType) []*paymentDomain.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*paymentDomain.Payment
	for _, p := range r.payments {
		if p.BookingID == bookingID && p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

// fakeCreditRepo is an in-memory CreditRepository enforcing the
// one-available-credit-per-key constraint.
type fakeCreditRepo struct {
	mu      sync.Mutex
	credits []*creditDomain.Credit
}

func newFakeCreditRepo() *fakeCreditRepo {
	return &fakeCreditRepo{}
}

func (r *fakeCreditRepo) Save(_ context.Context, c *creditDomain.Credit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.credits {
		if existing.UserID == c.UserID && existing.BookingID == c.BookingID &&
			existing.Type == c.Type && existing.Status == creditDomain.StatusAvailable {
			return domain.NewConflictError("an available credit already exists for this user, booking, and type")
		}
	}
	cp := *c
	r.credits = append(r.credits, &cp)
	return nil
}

func (r *fakeCreditRepo) FindAvailable(_ context.Context, userID, bookingID uuid.UUID, t creditDomain.CreditType) (*creditDomain.Credit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.credits {
		if c.UserID == userID && c.BookingID == bookingID && c.Type == t && c.Status == creditDomain.StatusAvailable {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.NewNotFoundError("Credit", fmt.Sprintf("%s/%s/%s", userID, bookingID, t))
}

func (r *fakeCreditRepo) FindByUser(_ context.Context, userID uuid.UUID) ([]*creditDomain.Credit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*creditDomain.Credit
	for _, c := range r.credits {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeCreditRepo) all() []*creditDomain.Credit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*creditDomain.Credit(nil), r.credits...)
}

// fakeAuditRepo is an in-memory append-only AuditRepository.
type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*auditDomain.Entry
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{}
}

func (r *fakeAuditRepo) Append(_ context.Context, e *auditDomain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *fakeAuditRepo) ListByBooking(_ context.Context, bookingID uuid.UUID) ([]*auditDomain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*auditDomain.Entry
	for _, e := range r.entries {
		if e.BookingID == bookingID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) byAction(bookingID uuid.UUID, action string) []*auditDomain.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*auditDomain.Entry
	for _, e := range r.entries {
		if e.BookingID == bookingID && e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// fakePaymentsGateway records refund calls and can be scripted to fail.
type fakePaymentsGateway struct {
	mu         sync.Mutex
	configured bool
	failWith   error
	calls      []fakeRefundCall
}

type fakeRefundCall struct {
	ChargeReference string
	AmountCents     int64
	IdempotencyKey  string
}

func (g *fakePaymentsGateway) Configured() bool { return g.configured }

func (g *fakePaymentsGateway) CreateRefund(_ context.Context, chargeReference string, amountCents int64, idempotencyKey string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, fakeRefundCall{chargeReference, amountCents, idempotencyKey})
	if g.failWith != nil {
		return "", g.failWith
	}
	return "re_" + uuid.NewString()[:8], nil
}

// fakeSettlementGateway records settle calls and can be scripted to fail.
type fakeSettlementGateway struct {
	mu       sync.Mutex
	failWith error
	response []byte
	calls    int
}

func (g *fakeSettlementGateway) Settle(_ context.Context, bookingID uuid.UUID) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failWith != nil {
		return nil, g.failWith
	}
	if g.response != nil {
		return g.response, nil
	}
	return []byte(`{"settlement_id":"st_fake"}`), nil
}
