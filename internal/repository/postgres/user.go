package postgres

import (
	"context"
	"database/sql"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/logger"
	"ubertool-booking/internal/repository"
)

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id int32) (*domain.User, error) {
	u := &domain.User{}
	query := `SELECT id, email, name, COALESCE(push_token, '') FROM users WHERE id = $1`
	logger.DatabaseCall("SELECT", "users", "userID", id)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.Name, &u.PushToken)
	if err != nil {
		err = mapError(err)
		logger.DatabaseResult("SELECT", 0, err, "userID", id)
		return nil, err
	}
	return u, nil
}
