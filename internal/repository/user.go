package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"asklegal/internal/database"
	"asklegal/internal/model"

	"github.com/google/uuid"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepositoryInterface interface {
	Create(ctx context.Context, user *model.User) error
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error)
	SetStripeCustomerID(ctx context.Context, id, customerID string) error
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
}

var _ UserRepositoryInterface = (*UserRepository)(nil)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, password_hash, is_admin, stripe_customer_id, created_at, updated_at`

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt

	_, err := r.db.ExecContext(ctx,
		r.db.Rebind(`INSERT INTO users (id, username, password_hash, is_admin, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		user.ID, user.Username, user.PasswordHash, user.IsAdmin, user.CreatedAt, user.UpdatedAt,
	)
	return err
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE username = ?`), username))
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT COUNT(*) FROM users WHERE username = ?`), username).Scan(&count)
	return count > 0, err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id))
}

func (r *UserRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE stripe_customer_id = ?`), customerID))
}

func (r *UserRepository) SetStripeCustomerID(ctx context.Context, id, customerID string) error {
	result, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE users SET stripe_customer_id = ?, updated_at = ? WHERE id = ?`),
		customerID, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`),
		passwordHash, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) scanOne(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin, &user.StripeCustomerID, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
