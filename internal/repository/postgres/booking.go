package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/logger"
	"ubertool-booking/internal/repository"

	"github.com/lib/pq"
)

const bookingColumns = `id, tool_id, renter_id, owner_id, start_date, end_date, duration_days,
	daily_price_cents, deposit_cents, additional_fees, total_price_cents, currency, charge_deposit,
	captured_cents, refunded_cents, cancellation_fee_cents, refund_amount_cents, refund_owed_cents, deposit_released,
	status, payment_status, payment_intent_id, payment_charge_id,
	cancelled_at, cancelled_by, cancellation_reason, notifications, idempotency_key, version, created_at, updated_at`

type bookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) repository.BookingRepository {
	return &bookingRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	b := &domain.Booking{}
	var (
		fees, notes                   []byte
		intentID, chargeID, idemKey   sql.NullString
		cancelledAt                   sql.NullTime
		cancelledBy                   sql.NullInt32
		status, paymentStatus, reason string
	)
	err := row.Scan(&b.ID, &b.ToolID, &b.RenterID, &b.OwnerID, &b.StartDate, &b.EndDate, &b.DurationDays,
		&b.DailyPriceCents, &b.DepositCents, &fees, &b.TotalPriceCents, &b.Currency, &b.ChargeDeposit,
		&b.CapturedCents, &b.RefundedCents, &b.CancellationFeeCents, &b.RefundAmountCents, &b.RefundOwedCents, &b.DepositReleased,
		&status, &paymentStatus, &intentID, &chargeID,
		&cancelledAt, &cancelledBy, &reason, &notes, &idemKey, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}

	b.Status = domain.BookingStatus(status)
	b.PaymentStatus = domain.PaymentStatus(paymentStatus)
	b.StartDate = domain.TruncateToDate(b.StartDate)
	b.EndDate = domain.TruncateToDate(b.EndDate)
	b.PaymentIntentID = intentID.String
	b.PaymentChargeID = chargeID.String
	b.IdempotencyKey = idemKey.String
	b.CancellationReason = reason
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		b.CancelledAt = &t
	}
	if cancelledBy.Valid {
		id := cancelledBy.Int32
		b.CancelledBy = &id
	}
	if len(fees) > 0 {
		if err := json.Unmarshal(fees, &b.AdditionalFees); err != nil {
			return nil, fmt.Errorf("failed to decode additional fees: %w", err)
		}
	}
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &b.Notifications); err != nil {
			return nil, fmt.Errorf("failed to decode notifications: %w", err)
		}
	}
	return b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// mutableArgs returns the columns Save rewrites, in UPDATE order.
func mutableArgs(b *domain.Booking) ([]any, error) {
	fees, err := json.Marshal(b.AdditionalFees)
	if err != nil {
		return nil, err
	}
	notes, err := json.Marshal(b.Notifications)
	if err != nil {
		return nil, err
	}
	var cancelledAt sql.NullTime
	if b.CancelledAt != nil {
		cancelledAt = sql.NullTime{Time: *b.CancelledAt, Valid: true}
	}
	var cancelledBy sql.NullInt32
	if b.CancelledBy != nil {
		cancelledBy = sql.NullInt32{Int32: *b.CancelledBy, Valid: true}
	}
	return []any{
		fees, b.TotalPriceCents, b.CapturedCents, b.RefundedCents, b.CancellationFeeCents,
		b.RefundAmountCents, b.RefundOwedCents, b.DepositReleased, string(b.Status), string(b.PaymentStatus),
		nullString(b.PaymentIntentID), nullString(b.PaymentChargeID), cancelledAt, cancelledBy,
		b.CancellationReason, notes, b.UpdatedAt,
	}, nil
}

func (r *bookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	logger.EnterMethod("bookingRepository.Create", "bookingID", b.ID, "toolID", b.ToolID)

	fees, err := json.Marshal(b.AdditionalFees)
	if err != nil {
		return err
	}
	notes, err := json.Marshal(b.Notifications)
	if err != nil {
		return err
	}
	b.Version = 1

	query := `INSERT INTO bookings (id, tool_id, renter_id, owner_id, start_date, end_date, duration_days,
	          daily_price_cents, deposit_cents, additional_fees, total_price_cents, currency, charge_deposit,
	          status, payment_status, payment_intent_id, notifications, idempotency_key, version, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	logger.DatabaseCall("INSERT", "bookings", "bookingID", b.ID)
	_, err = r.db.ExecContext(ctx, query, b.ID, b.ToolID, b.RenterID, b.OwnerID, b.StartDate, b.EndDate, b.DurationDays,
		b.DailyPriceCents, b.DepositCents, fees, b.TotalPriceCents, b.Currency, b.ChargeDeposit,
		string(b.Status), string(b.PaymentStatus), nullString(b.PaymentIntentID), notes, nullString(b.IdempotencyKey),
		b.Version, b.CreatedAt, b.UpdatedAt)
	err = mapError(err)
	logger.DatabaseResult("INSERT", 1, err, "bookingID", b.ID)

	if err != nil {
		logger.ExitMethodWithError("bookingRepository.Create", err, "bookingID", b.ID)
		return err
	}
	logger.ExitMethod("bookingRepository.Create", "bookingID", b.ID)
	return nil
}

func (r *bookingRepository) getOne(ctx context.Context, where string, args ...any) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + where
	return scanBooking(r.db.QueryRowContext(ctx, query, args...))
}

func (r *bookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *bookingRepository) GetByIdempotencyKey(ctx context.Context, renterID int32, key string) (*domain.Booking, error) {
	return r.getOne(ctx, `renter_id = $1 AND idempotency_key = $2`, renterID, key)
}

func (r *bookingRepository) GetByPaymentIntentID(ctx context.Context, intentID string) (*domain.Booking, error) {
	return r.getOne(ctx, `payment_intent_id = $1`, intentID)
}

func (r *bookingRepository) Save(ctx context.Context, b *domain.Booking, expectedVersion int64) error {
	logger.EnterMethod("bookingRepository.Save", "bookingID", b.ID, "expectedVersion", expectedVersion)

	args, err := mutableArgs(b)
	if err != nil {
		return err
	}
	query := `UPDATE bookings SET additional_fees=$1, total_price_cents=$2, captured_cents=$3, refunded_cents=$4,
	          cancellation_fee_cents=$5, refund_amount_cents=$6, refund_owed_cents=$7, deposit_released=$8, status=$9,
	          payment_status=$10, payment_intent_id=$11, payment_charge_id=$12, cancelled_at=$13, cancelled_by=$14,
	          cancellation_reason=$15, notifications=$16, updated_at=$17, version = version + 1
	          WHERE id = $18 AND version = $19`
	args = append(args, b.ID, expectedVersion)

	logger.DatabaseCall("UPDATE", "bookings", "bookingID", b.ID)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		err = mapError(err)
		logger.DatabaseResult("UPDATE", 0, err, "bookingID", b.ID)
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	logger.DatabaseResult("UPDATE", rows, nil, "bookingID", b.ID)
	if rows == 0 {
		logger.ExitMethodWithError("bookingRepository.Save", repository.ErrVersionConflict, "bookingID", b.ID)
		return repository.ErrVersionConflict
	}
	b.Version = expectedVersion + 1
	logger.ExitMethod("bookingRepository.Save", "bookingID", b.ID, "version", b.Version)
	return nil
}

func (r *bookingRepository) list(ctx context.Context, where string, args ...any) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + where
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func statusStrings(statuses []domain.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *bookingRepository) ListByTool(ctx context.Context, toolID int32, statuses ...domain.BookingStatus) ([]domain.Booking, error) {
	if len(statuses) == 0 {
		statuses = domain.AllBookingStatuses
	}
	return r.list(ctx, `tool_id = $1 AND status = ANY($2) ORDER BY start_date ASC, created_at ASC`, toolID, pq.Array(statusStrings(statuses)))
}

func (r *bookingRepository) listByParty(ctx context.Context, column string, userID int32, status string, page, pageSize int32) ([]domain.Booking, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	where := column + ` = $1`
	args := []any{userID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}

	var count int32
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM bookings WHERE `+where, args...).Scan(&count); err != nil {
		return nil, 0, mapError(err)
	}

	n := len(args)
	where += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	args = append(args, pageSize, (page-1)*pageSize)
	bookings, err := r.list(ctx, where, args...)
	if err != nil {
		return nil, 0, err
	}
	return bookings, count, nil
}

func (r *bookingRepository) ListByRenter(ctx context.Context, renterID int32, status string, page, pageSize int32) ([]domain.Booking, int32, error) {
	return r.listByParty(ctx, "renter_id", renterID, status, page, pageSize)
}

func (r *bookingRepository) ListByOwner(ctx context.Context, ownerID int32, status string, page, pageSize int32) ([]domain.Booking, int32, error) {
	return r.listByParty(ctx, "owner_id", ownerID, status, page, pageSize)
}

func (r *bookingRepository) ListDueForActivation(ctx context.Context, asOf time.Time) ([]domain.Booking, error) {
	return r.list(ctx, `status = 'approved' AND payment_status = 'paid' AND start_date <= $1 ORDER BY start_date`, asOf)
}

func (r *bookingRepository) ListEndedActive(ctx context.Context, asOf time.Time) ([]domain.Booking, error) {
	return r.list(ctx, `status = 'active' AND end_date <= $1 ORDER BY end_date`, asOf)
}

func (r *bookingRepository) ListStalePayments(ctx context.Context, updatedBefore time.Time) ([]domain.Booking, error) {
	return r.list(ctx, `payment_status = 'pending' AND payment_intent_id IS NOT NULL AND updated_at < $1 ORDER BY updated_at`, updatedBefore)
}

func (r *bookingRepository) ListOwedRefunds(ctx context.Context) ([]domain.Booking, error) {
	captured := []string{string(domain.PaymentStatusPaid), string(domain.PaymentStatusPartiallyRefunded)}
	return r.list(ctx, `refund_owed_cents > 0 AND payment_status = ANY($1) ORDER BY updated_at`, pq.Array(captured))
}

// constraintName trims the schema prefix pq sometimes reports.
func constraintName(c string) string {
	if i := strings.LastIndex(c, "."); i >= 0 {
		return c[i+1:]
	}
	return c
}
