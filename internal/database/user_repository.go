package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

const userColumns = `id, phone, name, email, role, created_at, updated_at`

// GetUser retrieves a user by ID
func (r *pgReader) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.q, &user, query, id); err != nil {
		return nil, wrapErr(ctx, "get user", err)
	}
	return &user, nil
}

// GetUserByPhone retrieves a user by normalized phone number
func (r *pgReader) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE phone = $1`
	if err := sqlx.GetContext(ctx, r.q, &user, query, phone); err != nil {
		return nil, wrapErr(ctx, "get user", err)
	}
	return &user, nil
}

// CreateUser inserts a user. A concurrent insert of the same phone violates users_phone_key.
func (q *pgQueries) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = models.RoleCustomer
	}
	query := `
		INSERT INTO users (id, phone, name, email, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`
	err := q.q.QueryRowxContext(ctx, query, u.ID, u.Phone, u.Name, u.Email, u.Role).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return wrapErr(ctx, "create user", err)
	}
	return nil
}
