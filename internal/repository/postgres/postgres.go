package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"ubertool-booking/internal/repository"

	"github.com/lib/pq"
)

// Postgres error codes the repositories translate.
const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
)

// NewStore wires every postgres repository onto one connection pool.
func NewStore(db *sql.DB) *repository.Store {
	return &repository.Store{
		Tools:         NewToolRepository(db),
		Users:         NewUserRepository(db),
		Bookings:      NewBookingRepository(db),
		PaymentEvents: NewPaymentEventRepository(db),
		Notifications: NewNotificationRepository(db),
	}
}

// mapError converts driver errors into repository sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeExclusionViolation:
			return fmt.Errorf("%w: %s", repository.ErrOverlap, constraintName(pqErr.Constraint))
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", repository.ErrDuplicate, constraintName(pqErr.Constraint))
		}
	}
	return err
}
