package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"marketplace-chat/internal/models"
)

// UserRepository keeps the local mirror of token identities.
type UserRepository interface {
	Upsert(ctx context.Context, user models.User) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Upsert records the user, refreshing display fields when they changed.
func (r *UserRepo) Upsert(ctx context.Context, user models.User) error {
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO users (id, username, email) VALUES (:id, :username, :email)
        ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, email = EXCLUDED.email, updated_at = NOW()
        WHERE users.username <> EXCLUDED.username OR users.email <> EXCLUDED.email`, user)
	return err
}
