package repository

import (
	"context"
	"errors"
	"time"

	"ubertool-booking/internal/domain"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict means the row changed since it was read.
	ErrVersionConflict = errors.New("version conflict")
	// ErrOverlap means the write would put two calendar-blocking bookings for
	// the same tool on overlapping dates.
	ErrOverlap   = errors.New("overlapping booking")
	ErrDuplicate = errors.New("duplicate record")
)

type ToolRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.Tool, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.User, error)
}

type BookingRepository interface {
	// Create inserts b with version 1.
	Create(ctx context.Context, b *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetByIdempotencyKey(ctx context.Context, renterID int32, key string) (*domain.Booking, error)
	GetByPaymentIntentID(ctx context.Context, intentID string) (*domain.Booking, error)
	// Save writes b only if the stored version still equals expectedVersion,
	// then sets b.Version to expectedVersion+1.
	Save(ctx context.Context, b *domain.Booking, expectedVersion int64) error

	// ListByTool returns the tool's bookings in the given statuses ordered by start date.
	ListByTool(ctx context.Context, toolID int32, statuses ...domain.BookingStatus) ([]domain.Booking, error)
	ListByRenter(ctx context.Context, renterID int32, status string, page, pageSize int32) ([]domain.Booking, int32, error)
	ListByOwner(ctx context.Context, ownerID int32, status string, page, pageSize int32) ([]domain.Booking, int32, error)

	// Sweeps.
	ListDueForActivation(ctx context.Context, asOf time.Time) ([]domain.Booking, error)
	ListEndedActive(ctx context.Context, asOf time.Time) ([]domain.Booking, error)
	ListStalePayments(ctx context.Context, updatedBefore time.Time) ([]domain.Booking, error)
	ListOwedRefunds(ctx context.Context) ([]domain.Booking, error)
}

// PaymentEventRepository remembers which gateway events were applied.
type PaymentEventRepository interface {
	Seen(ctx context.Context, key string) (bool, error)
	// MarkProcessed returns ErrDuplicate when key was already recorded.
	MarkProcessed(ctx context.Context, key string, ev *domain.PaymentEvent) error
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	List(ctx context.Context, userID int32, limit, offset int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, id, userID int32) error
}

// ToolLocker serializes read-check-write sequences per tool. release must be
// called on every exit path and is safe to call more than once.
type ToolLocker interface {
	AcquireToolLock(ctx context.Context, toolID int32) (release func(), err error)
}

// Store groups every repository the services need.
type Store struct {
	Tools         ToolRepository
	Users         UserRepository
	Bookings      BookingRepository
	PaymentEvents PaymentEventRepository
	Notifications NotificationRepository
}
