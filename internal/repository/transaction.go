package repository

import (
	"context"
	"errors"
	"time"

	"asklegal/internal/database"
	"asklegal/internal/model"

	"github.com/google/uuid"
)

var ErrDuplicateTransaction = errors.New("transaction already recorded")

type TransactionRepositoryInterface interface {
	Create(ctx context.Context, tx *model.Transaction) error
	CountPaidOneTime(ctx context.Context, userID string) (int, error)
}

var _ TransactionRepositoryInterface = (*TransactionRepository)(nil)

type TransactionRepository struct {
	db *database.DB
}

func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts the purchase. A second insert for the same checkout session
// returns ErrDuplicateTransaction so webhook redelivery is harmless.
func (r *TransactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	return insertTransaction(ctx, r.db, r.db, tx)
}

func insertTransaction(ctx context.Context, db *database.DB, ex execer, tx *model.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if tx.Currency == "" {
		tx.Currency = "usd"
	}

	result, err := ex.ExecContext(ctx,
		db.Rebind(`INSERT INTO transactions (id, user_id, status, is_renewal, amount, currency, stripe_session_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (stripe_session_id) DO NOTHING`),
		tx.ID, tx.UserID, tx.Status, tx.IsRenewal, tx.Amount, tx.Currency, tx.StripeSessionID, tx.CreatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDuplicateTransaction
	}
	return nil
}

func (r *TransactionRepository) CountPaidOneTime(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind(`SELECT COUNT(*) FROM transactions WHERE user_id = ? AND status = ? AND is_renewal = ?`),
		userID, model.TransactionStatusPaid, false,
	).Scan(&count)
	return count, err
}
