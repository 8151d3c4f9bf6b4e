package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"asklegal/internal/database"
	"asklegal/internal/model"
)

var (
	ErrUsageNotFound       = errors.New("usage record not found")
	ErrReservationNotFound = errors.New("credit reservation not found")
)

type UsageRepositoryInterface interface {
	GetByUserID(ctx context.Context, userID string) (*model.UsageRecord, error)
	CreateIfMissing(ctx context.Context, userID string) error
	CompareAndReserve(ctx context.Context, hold *model.Document, expected int) (bool, error)
	Release(ctx context.Context, userID, reservationID string) (model.CreditSource, error)
	AddOneTime(ctx context.Context, userID string, units, perPurchase int) error
	RecordPurchase(ctx context.Context, purchase *model.Transaction, units, perPurchase int) error
	ResetMonthly(ctx context.Context, userID string, limit int, start, end time.Time) error
	ExpireMonthly(ctx context.Context, userID string) error
	Patch(ctx context.Context, rec, seen *model.UsageRecord) (bool, error)
}

var _ UsageRepositoryInterface = (*UsageRepository)(nil)

type UsageRepository struct {
	db *database.DB
}

func NewUsageRepository(db *database.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

const usageColumns = `user_id, monthly_limit, monthly_remaining, one_time_limit_per_purchase, one_time_remaining,
	api_generated_total, monthly_period_start, monthly_period_end, created_at, updated_at`

func (r *UsageRepository) GetByUserID(ctx context.Context, userID string) (*model.UsageRecord, error) {
	rec := &model.UsageRecord{}
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind(`SELECT `+usageColumns+` FROM document_usage WHERE user_id = ?`),
		userID,
	).Scan(&rec.UserID, &rec.MonthlyLimit, &rec.MonthlyRemaining, &rec.OneTimeLimitPerPurchase, &rec.OneTimeRemaining,
		&rec.APIGeneratedTotal, &rec.MonthlyPeriodStart, &rec.MonthlyPeriodEnd, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

const createUsageSQL = `INSERT INTO document_usage (user_id, monthly_limit, monthly_remaining, one_time_limit_per_purchase,
	one_time_remaining, api_generated_total, created_at, updated_at)
 VALUES (?, 0, 0, 0, 0, 0, ?, ?)
 ON CONFLICT (user_id) DO NOTHING`

func (r *UsageRepository) CreateIfMissing(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(createUsageSQL), userID, now, now)
	return err
}

func remainingColumn(source model.CreditSource) (string, error) {
	switch source {
	case model.CreditSourceSubscription:
		return "monthly_remaining", nil
	case model.CreditSourceOneTime:
		return "one_time_remaining", nil
	default:
		return "", fmt.Errorf("unknown credit source %q", source)
	}
}

// CompareAndReserve takes one unit from hold's pool only if the pool still
// holds expected, and stores hold as a reserved document in the same
// transaction so reconciliation sees the consumption before the draft
// exists. It reports false when another writer changed the row first.
func (r *UsageRepository) CompareAndReserve(ctx context.Context, hold *model.Document, expected int) (bool, error) {
	if expected <= 0 {
		return false, nil
	}
	col, err := remainingColumn(hold.CreditSource)
	if err != nil {
		return false, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		r.db.Rebind(`UPDATE document_usage
		 SET `+col+` = ?, api_generated_total = api_generated_total + 1, updated_at = ?
		 WHERE user_id = ? AND `+col+` = ?`),
		expected-1, time.Now().UTC(), hold.UserID, expected,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected != 1 {
		return false, nil
	}

	hold.Status = model.DocumentStatusReserved
	if err := insertDocument(ctx, r.db, tx, hold); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// Release drops a reserved document and returns its unit to the pool it came
// from. The monthly pool never grows past its limit. A reservation that was
// already finalized or released yields ErrReservationNotFound.
func (r *UsageRepository) Release(ctx context.Context, userID, reservationID string) (model.CreditSource, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var source model.CreditSource
	err = tx.QueryRowContext(ctx,
		r.db.Rebind(`SELECT credit_source FROM documents WHERE id = ? AND user_id = ? AND status = ?`),
		reservationID, userID, model.DocumentStatusReserved,
	).Scan(&source)
	if err == sql.ErrNoRows {
		return "", ErrReservationNotFound
	}
	if err != nil {
		return "", err
	}

	result, err := tx.ExecContext(ctx,
		r.db.Rebind(`DELETE FROM documents WHERE id = ? AND user_id = ? AND status = ?`),
		reservationID, userID, model.DocumentStatusReserved,
	)
	if err != nil {
		return "", err
	}
	if affected, err := result.RowsAffected(); err != nil {
		return "", err
	} else if affected == 0 {
		return "", ErrReservationNotFound
	}

	var query string
	switch source {
	case model.CreditSourceSubscription:
		query = `UPDATE document_usage
		 SET monthly_remaining = CASE WHEN monthly_remaining < monthly_limit THEN monthly_remaining + 1 ELSE monthly_remaining END,
		     api_generated_total = CASE WHEN api_generated_total > 0 THEN api_generated_total - 1 ELSE 0 END,
		     updated_at = ?
		 WHERE user_id = ?`
	case model.CreditSourceOneTime:
		query = `UPDATE document_usage
		 SET one_time_remaining = one_time_remaining + 1,
		     api_generated_total = CASE WHEN api_generated_total > 0 THEN api_generated_total - 1 ELSE 0 END,
		     updated_at = ?
		 WHERE user_id = ?`
	default:
		return "", fmt.Errorf("unknown credit source %q", source)
	}
	if _, err := tx.ExecContext(ctx, r.db.Rebind(query), time.Now().UTC(), userID); err != nil {
		return "", err
	}
	return source, tx.Commit()
}

func (r *UsageRepository) AddOneTime(ctx context.Context, userID string, units, perPurchase int) error {
	return r.execOne(ctx,
		`UPDATE document_usage
		 SET one_time_remaining = one_time_remaining + ?, one_time_limit_per_purchase = ?, updated_at = ?
		 WHERE user_id = ?`,
		units, perPurchase, time.Now().UTC(), userID,
	)
}

// RecordPurchase stores the paid transaction and adds its units in one
// transaction. A purchase already on file returns ErrDuplicateTransaction and
// credits nothing.
func (r *UsageRepository) RecordPurchase(ctx context.Context, purchase *model.Transaction, units, perPurchase int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, r.db.Rebind(createUsageSQL), purchase.UserID, now, now); err != nil {
		return err
	}
	if err := insertTransaction(ctx, r.db, tx, purchase); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		r.db.Rebind(`UPDATE document_usage
		 SET one_time_remaining = one_time_remaining + ?, one_time_limit_per_purchase = ?, updated_at = ?
		 WHERE user_id = ?`),
		units, perPurchase, now, purchase.UserID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *UsageRepository) ResetMonthly(ctx context.Context, userID string, limit int, start, end time.Time) error {
	return r.execOne(ctx,
		`UPDATE document_usage
		 SET monthly_limit = ?, monthly_remaining = ?, monthly_period_start = ?, monthly_period_end = ?, updated_at = ?
		 WHERE user_id = ?`,
		limit, limit, start.UTC(), end.UTC(), time.Now().UTC(), userID,
	)
}

// ExpireMonthly zeroes the monthly pool and leaves every other column alone.
func (r *UsageRepository) ExpireMonthly(ctx context.Context, userID string) error {
	return r.execOne(ctx,
		`UPDATE document_usage SET monthly_remaining = 0, updated_at = ? WHERE user_id = ?`,
		time.Now().UTC(), userID,
	)
}

// Patch writes rec's balance columns only while both pools still hold the
// values in seen. It reports false when another writer changed them first.
func (r *UsageRepository) Patch(ctx context.Context, rec, seen *model.UsageRecord) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE document_usage
		 SET monthly_limit = ?, monthly_remaining = ?, one_time_limit_per_purchase = ?, one_time_remaining = ?,
		     monthly_period_start = ?, monthly_period_end = ?, updated_at = ?
		 WHERE user_id = ? AND monthly_remaining = ? AND one_time_remaining = ?`),
		rec.MonthlyLimit, rec.MonthlyRemaining, rec.OneTimeLimitPerPurchase, rec.OneTimeRemaining,
		utcPtr(rec.MonthlyPeriodStart), utcPtr(rec.MonthlyPeriodEnd), time.Now().UTC(),
		rec.UserID, seen.MonthlyRemaining, seen.OneTimeRemaining,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *UsageRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUsageNotFound
	}
	return nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
