// Package memory is an in-process store used by tests and the "memory"
// database type. It enforces the same overlap and uniqueness rules as the
// postgres schema.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/repository"
)

type Store struct {
	mu            sync.RWMutex
	tools         map[int32]domain.Tool
	users         map[int32]domain.User
	bookings      map[string]domain.Booking
	events        map[string]domain.PaymentEvent
	notifications []domain.Notification
}

func NewStore() *Store {
	return &Store{
		tools:    make(map[int32]domain.Tool),
		users:    make(map[int32]domain.User),
		bookings: make(map[string]domain.Booking),
		events:   make(map[string]domain.PaymentEvent),
	}
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() *repository.Store {
	return &repository.Store{
		Tools:         toolRepo{s},
		Users:         userRepo{s},
		Bookings:      bookingRepo{s},
		PaymentEvents: eventRepo{s},
		Notifications: notificationRepo{s},
	}
}

func (s *Store) PutTool(t domain.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[t.ID] = t
}

func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// Notifications returns a copy of the inbox rows written so far.
func (s *Store) Notifications() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Notification(nil), s.notifications...)
}

type toolRepo struct{ s *Store }

func (r toolRepo) GetByID(ctx context.Context, id int32) (*domain.Tool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tools[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

type userRepo struct{ s *Store }

func (r userRepo) GetByID(ctx context.Context, id int32) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

type bookingRepo struct{ s *Store }

// checkConstraints mirrors the bookings table constraints. Callers hold the write lock.
func (r bookingRepo) checkConstraints(b *domain.Booking) error {
	for id, other := range r.s.bookings {
		if id == b.ID {
			continue
		}
		if b.IdempotencyKey != "" && other.RenterID == b.RenterID && other.IdempotencyKey == b.IdempotencyKey {
			return fmt.Errorf("%w: bookings_renter_idempotency_key", repository.ErrDuplicate)
		}
		if b.PaymentIntentID != "" && other.PaymentIntentID == b.PaymentIntentID {
			return fmt.Errorf("%w: bookings_payment_intent_id", repository.ErrDuplicate)
		}
		if other.ToolID == b.ToolID && b.Status.BlocksCalendar() && other.Status.BlocksCalendar() && other.Range().Overlaps(b.Range()) {
			return fmt.Errorf("%w: bookings_no_overlap", repository.ErrOverlap)
		}
	}
	return nil
}

func (r bookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.bookings[b.ID]; ok {
		return fmt.Errorf("%w: bookings_pkey", repository.ErrDuplicate)
	}
	if err := r.checkConstraints(b); err != nil {
		return err
	}
	b.Version = 1
	r.s.bookings[b.ID] = b.Clone()
	return nil
}

func (r bookingRepo) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := b.Clone()
	return &out, nil
}

func (r bookingRepo) findOne(match func(domain.Booking) bool) (*domain.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, b := range r.s.bookings {
		if match(b) {
			out := b.Clone()
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r bookingRepo) GetByIdempotencyKey(ctx context.Context, renterID int32, key string) (*domain.Booking, error) {
	return r.findOne(func(b domain.Booking) bool { return b.RenterID == renterID && b.IdempotencyKey == key })
}

func (r bookingRepo) GetByPaymentIntentID(ctx context.Context, intentID string) (*domain.Booking, error) {
	return r.findOne(func(b domain.Booking) bool { return b.PaymentIntentID == intentID })
}

func (r bookingRepo) Save(ctx context.Context, b *domain.Booking, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.bookings[b.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	if err := r.checkConstraints(b); err != nil {
		return err
	}
	b.Version = expectedVersion + 1
	r.s.bookings[b.ID] = b.Clone()
	return nil
}

func (r bookingRepo) filter(match func(domain.Booking) bool, less func(a, b domain.Booking) bool) []domain.Booking {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Booking
	for _, b := range r.s.bookings {
		if match(b) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byStart(a, b domain.Booking) bool {
	if a.StartDate.Equal(b.StartDate) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.StartDate.Before(b.StartDate)
}

func byUpdated(a, b domain.Booking) bool { return a.UpdatedAt.Before(b.UpdatedAt) }

func byCreatedDesc(a, b domain.Booking) bool { return a.CreatedAt.After(b.CreatedAt) }

func (r bookingRepo) ListByTool(ctx context.Context, toolID int32, statuses ...domain.BookingStatus) ([]domain.Booking, error) {
	if len(statuses) == 0 {
		statuses = domain.AllBookingStatuses
	}
	want := make(map[domain.BookingStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	return r.filter(func(b domain.Booking) bool { return b.ToolID == toolID && want[b.Status] }, byStart), nil
}

func paginate(all []domain.Booking, page, pageSize int32) ([]domain.Booking, int32) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	total := int32(len(all))
	from := min((page-1)*pageSize, total)
	to := min(from+pageSize, total)
	return all[from:to], total
}

func (r bookingRepo) ListByRenter(ctx context.Context, renterID int32, status string, page, pageSize int32) ([]domain.Booking, int32, error) {
	all := r.filter(func(b domain.Booking) bool {
		return b.RenterID == renterID && (status == "" || string(b.Status) == status)
	}, byCreatedDesc)
	out, total := paginate(all, page, pageSize)
	return out, total, nil
}

func (r bookingRepo) ListByOwner(ctx context.Context, ownerID int32, status string, page, pageSize int32) ([]domain.Booking, int32, error) {
	all := r.filter(func(b domain.Booking) bool {
		return b.OwnerID == ownerID && (status == "" || string(b.Status) == status)
	}, byCreatedDesc)
	out, total := paginate(all, page, pageSize)
	return out, total, nil
}

func (r bookingRepo) ListDueForActivation(ctx context.Context, asOf time.Time) ([]domain.Booking, error) {
	return r.filter(func(b domain.Booking) bool {
		return b.Status == domain.BookingStatusApproved && b.PaymentStatus == domain.PaymentStatusPaid && !b.StartDate.After(asOf)
	}, byStart), nil
}

func (r bookingRepo) ListEndedActive(ctx context.Context, asOf time.Time) ([]domain.Booking, error) {
	return r.filter(func(b domain.Booking) bool {
		return b.Status == domain.BookingStatusActive && !b.EndDate.After(asOf)
	}, byStart), nil
}

func (r bookingRepo) ListStalePayments(ctx context.Context, updatedBefore time.Time) ([]domain.Booking, error) {
	return r.filter(func(b domain.Booking) bool {
		return b.PaymentStatus == domain.PaymentStatusPending && b.PaymentIntentID != "" && b.UpdatedAt.Before(updatedBefore)
	}, byUpdated), nil
}

func (r bookingRepo) ListOwedRefunds(ctx context.Context) ([]domain.Booking, error) {
	return r.filter(func(b domain.Booking) bool {
		return b.RefundOwedCents > 0 &&
			(b.PaymentStatus == domain.PaymentStatusPaid || b.PaymentStatus == domain.PaymentStatusPartiallyRefunded)
	}, byUpdated), nil
}

type eventRepo struct{ s *Store }

func (r eventRepo) Seen(ctx context.Context, key string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.events[key]
	return ok, nil
}

func (r eventRepo) MarkProcessed(ctx context.Context, key string, ev *domain.PaymentEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.events[key]; ok {
		return fmt.Errorf("%w: payment_events_pkey", repository.ErrDuplicate)
	}
	r.s.events[key] = *ev
	return nil
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n.ID = int32(len(r.s.notifications) + 1)
	if n.CreatedOn.IsZero() {
		n.CreatedOn = time.Now().UTC()
	}
	r.s.notifications = append(r.s.notifications, *n)
	return nil
}

func (r notificationRepo) List(ctx context.Context, userID int32, limit, offset int32) ([]domain.Notification, int32, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var mine []domain.Notification
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		if n := r.s.notifications[i]; n.UserID == userID {
			mine = append(mine, n)
		}
	}
	total := int32(len(mine))
	from := min(max(offset, 0), total)
	to := total
	if limit > 0 {
		to = min(from+limit, total)
	}
	return mine[from:to], total, nil
}

func (r notificationRepo) MarkAsRead(ctx context.Context, id, userID int32) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.notifications {
		if r.s.notifications[i].ID == id && r.s.notifications[i].UserID == userID {
			r.s.notifications[i].IsRead = true
			return nil
		}
	}
	return repository.ErrNotFound
}
