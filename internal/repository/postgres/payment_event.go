package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/logger"
	"ubertool-booking/internal/repository"
)

type paymentEventRepository struct {
	db *sql.DB
}

func NewPaymentEventRepository(db *sql.DB) repository.PaymentEventRepository {
	return &paymentEventRepository{db: db}
}

func (r *paymentEventRepository) Seen(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM payment_events WHERE idempotency_key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, mapError(err)
	}
	return exists, nil
}

func (r *paymentEventRepository) MarkProcessed(ctx context.Context, key string, ev *domain.PaymentEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	query := `INSERT INTO payment_events (idempotency_key, event_id, event_type, payment_intent_id, amount_cents, payload, processed_at)
	          VALUES ($1, $2, $3, $4, $5, $6, now())`
	logger.DatabaseCall("INSERT", "payment_events", "key", key)
	_, err = r.db.ExecContext(ctx, query, key, ev.ID, string(ev.Type), ev.PaymentIntentID, ev.AmountCents, payload)
	err = mapError(err)
	logger.DatabaseResult("INSERT", 1, err, "key", key)
	return err
}
