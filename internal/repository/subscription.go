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

var ErrSubscriptionNotFound = errors.New("subscription not found")

type SubscriptionRepositoryInterface interface {
	Create(ctx context.Context, sub *model.Subscription) error
	GetLatestByUserID(ctx context.Context, userID string) (*model.Subscription, error)
	GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error)
	UpdatePeriod(ctx context.Context, id string, status model.SubscriptionStatus, start, end *time.Time) error
	UpdateStatus(ctx context.Context, id string, status model.SubscriptionStatus) error
}

var _ SubscriptionRepositoryInterface = (*SubscriptionRepository)(nil)

type SubscriptionRepository struct {
	db *database.DB
}

func NewSubscriptionRepository(db *database.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, user_id, status, plan_id, stripe_subscription_id, current_period_start, current_period_end, created_at, updated_at`

func (r *SubscriptionRepository) Create(ctx context.Context, sub *model.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	sub.UpdatedAt = sub.CreatedAt

	_, err := r.db.ExecContext(ctx,
		r.db.Rebind(`INSERT INTO subscriptions (`+subscriptionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		sub.ID, sub.UserID, sub.Status, sub.PlanID, sub.StripeSubscriptionID,
		utcPtr(sub.CurrentPeriodStart), utcPtr(sub.CurrentPeriodEnd), sub.CreatedAt.UTC(), sub.UpdatedAt.UTC(),
	)
	return err
}

// GetLatestByUserID returns the most recently created subscription row, or
// nil when the user never subscribed.
func (r *SubscriptionRepository) GetLatestByUserID(ctx context.Context, userID string) (*model.Subscription, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		r.db.Rebind(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`),
		userID,
	))
}

func (r *SubscriptionRepository) GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		r.db.Rebind(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE stripe_subscription_id = ?`),
		stripeSubscriptionID,
	))
}

func (r *SubscriptionRepository) UpdatePeriod(ctx context.Context, id string, status model.SubscriptionStatus, start, end *time.Time) error {
	return r.execOne(ctx,
		`UPDATE subscriptions SET status = ?, current_period_start = ?, current_period_end = ?, updated_at = ? WHERE id = ?`,
		status, utcPtr(start), utcPtr(end), time.Now().UTC(), id,
	)
}

func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id string, status model.SubscriptionStatus) error {
	return r.execOne(ctx,
		`UPDATE subscriptions SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
}

func (r *SubscriptionRepository) scanOne(row *sql.Row) (*model.Subscription, error) {
	sub := &model.Subscription{}
	err := row.Scan(&sub.ID, &sub.UserID, &sub.Status, &sub.PlanID, &sub.StripeSubscriptionID,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *SubscriptionRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}
