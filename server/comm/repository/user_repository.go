package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"matri_server/server/comm/domain"
)

// UserRepository reads the user directory maintained by the profile
// service: identity, display data, and subscription plan.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (domain.ChatUser, error) {
	var u domain.ChatUser
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, name, email, plan FROM users WHERE user_id=$1
	`, id).Scan(&u.ID, &u.Name, &u.Email, &u.Plan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ChatUser{}, domain.ErrNotFound
		}
		return domain.ChatUser{}, err
	}
	return u, nil
}
