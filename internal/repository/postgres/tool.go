package postgres

import (
	"context"
	"database/sql"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/repository"
)

type toolRepository struct {
	db *sql.DB
}

func NewToolRepository(db *sql.DB) repository.ToolRepository {
	return &toolRepository{db: db}
}

func (r *toolRepository) GetByID(ctx context.Context, id int32) (*domain.Tool, error) {
	t := &domain.Tool{}
	var status string
	query := `SELECT id, owner_id, name, price_per_day_cents, COALESCE(deposit_cents, 0), status
	          FROM tools WHERE id = $1 AND deleted_on IS NULL`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.OwnerID, &t.Name, &t.DailyPriceCents, &t.DepositCents, &status)
	if err != nil {
		return nil, mapError(err)
	}
	t.Status = domain.ToolStatus(status)
	return t, nil
}
