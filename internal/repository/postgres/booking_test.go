package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/repository"
	"ubertool-booking/internal/repository/postgres"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookingColumnNames = []string{
	"id", "tool_id", "renter_id", "owner_id", "start_date", "end_date", "duration_days",
	"daily_price_cents", "deposit_cents", "additional_fees", "total_price_cents", "currency", "charge_deposit",
	"captured_cents", "refunded_cents", "cancellation_fee_cents", "refund_amount_cents", "refund_owed_cents", "deposit_released",
	"status", "payment_status", "payment_intent_id", "payment_charge_id",
	"cancelled_at", "cancelled_by", "cancellation_reason", "notifications", "idempotency_key", "version", "created_at", "updated_at",
}

func newBooking() *domain.Booking {
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Booking{
		ID:              "5a4c7f7e-5f0e-4a44-8c1c-0d1f2e3a4b5c",
		ToolID:          2,
		RenterID:        3,
		OwnerID:         4,
		StartDate:       start,
		EndDate:         start.AddDate(0, 0, 2),
		DurationDays:    2,
		DailyPriceCents: 10000,
		TotalPriceCents: 20000,
		Currency:        "usd",
		Status:          domain.BookingStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func bookingRow(b *domain.Booking) *sqlmock.Rows {
	return sqlmock.NewRows(bookingColumnNames).AddRow(
		b.ID, b.ToolID, b.RenterID, b.OwnerID, b.StartDate, b.EndDate, b.DurationDays,
		b.DailyPriceCents, b.DepositCents, []byte(`[{"type":"cleaning","amount_cents":500,"description":"","date":"2024-06-01T00:00:00Z"}]`),
		b.TotalPriceCents, b.Currency, b.ChargeDeposit,
		b.CapturedCents, b.RefundedCents, b.CancellationFeeCents, b.RefundAmountCents, b.RefundOwedCents, b.DepositReleased,
		string(b.Status), string(b.PaymentStatus), "pi_123", nil,
		nil, nil, "", []byte(`[{"type":"status_change","message":"created","read":false,"date":"2024-06-01T10:00:00Z"}]`), "idem-1", int64(3), b.CreatedAt, b.UpdatedAt,
	)
}

func TestBookingRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewBookingRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		b := newBooking()
		mock.ExpectExec("INSERT INTO bookings").WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(ctx, b)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), b.Version)
	})

	t.Run("Exclusion violation maps to overlap", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO bookings").
			WillReturnError(&pq.Error{Code: "23P01", Constraint: "bookings_no_overlap"})

		err := repo.Create(ctx, newBooking())
		assert.True(t, errors.Is(err, repository.ErrOverlap))
	})

	t.Run("Unique violation maps to duplicate", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO bookings").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "bookings_renter_idempotency_key"})

		err := repo.Create(ctx, newBooking())
		assert.True(t, errors.Is(err, repository.ErrDuplicate))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewBookingRepository(db)
	ctx := context.Background()
	want := newBooking()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id = \\$1").
			WithArgs(want.ID).
			WillReturnRows(bookingRow(want))

		got, err := repo.GetByID(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, domain.BookingStatusPending, got.Status)
		assert.Equal(t, "pi_123", got.PaymentIntentID)
		assert.Equal(t, "", got.PaymentChargeID)
		assert.Equal(t, "idem-1", got.IdempotencyKey)
		assert.Equal(t, int64(3), got.Version)
		assert.Nil(t, got.CancelledAt)
		require.Len(t, got.AdditionalFees, 1)
		assert.Equal(t, int64(500), got.AdditionalFees[0].AmountCents)
		require.Len(t, got.Notifications, 1)
		assert.Equal(t, domain.NotificationStatusChange, got.Notifications[0].Type)
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id = \\$1").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(bookingColumnNames))

		_, err := repo.GetByID(ctx, "missing")
		assert.True(t, errors.Is(err, repository.ErrNotFound))
	})
}

func TestBookingRepository_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewBookingRepository(db)
	ctx := context.Background()

	t.Run("Success bumps version", func(t *testing.T) {
		b := newBooking()
		b.Status = domain.BookingStatusApproved
		mock.ExpectExec("UPDATE bookings SET (.+) WHERE id = \\$18 AND version = \\$19").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Save(ctx, b, 4)
		require.NoError(t, err)
		assert.Equal(t, int64(5), b.Version)
	})

	t.Run("Stale version", func(t *testing.T) {
		b := newBooking()
		b.Version = 4
		mock.ExpectExec("UPDATE bookings").WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Save(ctx, b, 4)
		assert.True(t, errors.Is(err, repository.ErrVersionConflict))
		assert.Equal(t, int64(4), b.Version)
	})

	t.Run("Approval racing another approval", func(t *testing.T) {
		mock.ExpectExec("UPDATE bookings").
			WillReturnError(&pq.Error{Code: "23P01", Constraint: "public.bookings_no_overlap"})

		err := repo.Save(ctx, newBooking(), 1)
		assert.True(t, errors.Is(err, repository.ErrOverlap))
		assert.Contains(t, err.Error(), "bookings_no_overlap")
		assert.NotContains(t, err.Error(), "public.")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_ListByTool(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewBookingRepository(db)
	b := newBooking()

	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE tool_id = \\$1 AND status = ANY\\(\\$2\\)").
		WithArgs(b.ToolID, sqlmock.AnyArg()).
		WillReturnRows(bookingRow(b))

	got, err := repo.ListByTool(context.Background(), b.ToolID, domain.BookingStatusApproved, domain.BookingStatusActive)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentEventRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewPaymentEventRepository(db)
	ctx := context.Background()
	ev := &domain.PaymentEvent{ID: "evt_1", Type: domain.PaymentEventSucceeded, PaymentIntentID: "pi_1", AmountCents: 100}

	mock.ExpectQuery("SELECT EXISTS").WithArgs(ev.IdempotencyKey()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	seen, err := repo.Seen(ctx, ev.IdempotencyKey())
	require.NoError(t, err)
	assert.False(t, seen)

	mock.ExpectExec("INSERT INTO payment_events").
		WillReturnError(&pq.Error{Code: "23505"})
	err = repo.MarkProcessed(ctx, ev.IdempotencyKey(), ev)
	assert.True(t, errors.Is(err, repository.ErrDuplicate))

	assert.NoError(t, mock.ExpectationsWereMet())
}
