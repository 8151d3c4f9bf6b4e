package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"asklegal/internal/config"
	"asklegal/internal/database"
	"asklegal/internal/model"
	"asklegal/internal/repository"

	log "github.com/sirupsen/logrus"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidUnits = errors.New("units must be positive")
)

const InsufficientCreditsMessage = "Insufficient credits. Purchase a one-time document or subscribe to continue."

// CreditService is the document credit ledger. Each user has one
// document_usage row with a monthly (subscription) pool and a one-time pool.
type CreditService struct {
	usageRepo repository.UsageRepositoryInterface
	subRepo   repository.SubscriptionRepositoryInterface
	txRepo    repository.TransactionRepositoryInterface
	docRepo   repository.DocumentRepositoryInterface

	monthlyLimit int
	oneTimeLimit int
}

func NewCreditService() *CreditService {
	db := database.GetDB()
	cfg := config.Get()
	return NewCreditServiceWithRepo(
		repository.NewUsageRepository(db),
		repository.NewSubscriptionRepository(db),
		repository.NewTransactionRepository(db),
		repository.NewDocumentRepository(db),
		cfg.MonthlyDocumentLimit,
		cfg.OneTimeDocumentLimit,
	)
}

func NewCreditServiceWithRepo(
	usageRepo repository.UsageRepositoryInterface,
	subRepo repository.SubscriptionRepositoryInterface,
	txRepo repository.TransactionRepositoryInterface,
	docRepo repository.DocumentRepositoryInterface,
	monthlyLimit, oneTimeLimit int,
) *CreditService {
	return &CreditService{
		usageRepo:    usageRepo,
		subRepo:      subRepo,
		txRepo:       txRepo,
		docRepo:      docRepo,
		monthlyLimit: monthlyLimit,
		oneTimeLimit: oneTimeLimit,
	}
}

func (s *CreditService) MonthlyLimit() int { return s.monthlyLimit }
func (s *CreditService) OneTimeLimit() int { return s.oneTimeLimit }

// EnsureUsageRecord returns the user's row, creating a zeroed one if needed.
func (s *CreditService) EnsureUsageRecord(ctx context.Context, userID string) (*model.UsageRecord, error) {
	rec, err := s.usageRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger: load usage: %w", err)
	}
	if rec != nil {
		return rec, nil
	}
	if err := s.usageRepo.CreateIfMissing(ctx, userID); err != nil {
		return nil, fmt.Errorf("ledger: create usage: %w", err)
	}
	rec, err = s.usageRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger: load usage: %w", err)
	}
	if rec == nil {
		return nil, repository.ErrUsageNotFound
	}
	return rec, nil
}

// ConsumeCredit takes one credit, subscription pool first. Each pool is
// decremented with a conditional update on the value just read; a lost race
// falls through to the next pool and is never retried here. A successful
// decrement also writes a reserved document row, named by the result's
// ReservationID. Running out of credits is reported in the result, not as an
// error.
func (s *CreditService) ConsumeCredit(ctx context.Context, userID string) (*model.ConsumeResult, error) {
	rec, err := s.EnsureUsageRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	sub, err := s.subRepo.GetLatestByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger: load subscription: %w", err)
	}

	if sub != nil && sub.Status.GrantsMonthlyCredits() {
		if rec, err = s.startNewPeriodIfNeeded(ctx, rec, sub); err != nil {
			return nil, err
		}
		if rec.MonthlyRemaining > 0 {
			hold := &model.Document{UserID: userID, CreditSource: model.CreditSourceSubscription}
			ok, err := s.usageRepo.CompareAndReserve(ctx, hold, rec.MonthlyRemaining)
			if err != nil {
				return nil, fmt.Errorf("ledger: consume monthly: %w", err)
			}
			if ok {
				return s.consumed(hold, rec.MonthlyRemaining-1), nil
			}
			log.WithField("userId", userID).Debug("ledger: monthly decrement lost a race, trying one-time pool")
		}
	}

	if rec.OneTimeRemaining > 0 {
		hold := &model.Document{UserID: userID, CreditSource: model.CreditSourceOneTime}
		ok, err := s.usageRepo.CompareAndReserve(ctx, hold, rec.OneTimeRemaining)
		if err != nil {
			return nil, fmt.Errorf("ledger: consume one-time: %w", err)
		}
		if ok {
			return s.consumed(hold, rec.OneTimeRemaining-1), nil
		}
		log.WithField("userId", userID).Debug("ledger: one-time decrement lost a race")
	}

	log.WithField("userId", userID).Info("ledger: insufficient credits")
	return &model.ConsumeResult{OK: false, Message: InsufficientCreditsMessage}, nil
}

func (s *CreditService) consumed(hold *model.Document, remaining int) *model.ConsumeResult {
	log.WithFields(log.Fields{
		"userId":        hold.UserID,
		"source":        hold.CreditSource,
		"remaining":     remaining,
		"reservationId": hold.ID,
	}).Info("ledger: credit consumed")
	return &model.ConsumeResult{OK: true, Source: hold.CreditSource, Remaining: remaining, ReservationID: hold.ID}
}

// startNewPeriodIfNeeded resets the monthly pool when the subscription has
// moved into a period the ledger has not seen, e.g. a missed renewal webhook.
func (s *CreditService) startNewPeriodIfNeeded(ctx context.Context, rec *model.UsageRecord, sub *model.Subscription) (*model.UsageRecord, error) {
	if sub.CurrentPeriodStart == nil {
		return rec, nil
	}
	if rec.MonthlyPeriodStart != nil && !sub.CurrentPeriodStart.After(*rec.MonthlyPeriodStart) {
		return rec, nil
	}

	start, end := periodBounds(sub)
	log.WithFields(log.Fields{
		"userId":      rec.UserID,
		"periodStart": start,
	}).Info("ledger: new subscription period detected, resetting monthly pool")
	if err := s.usageRepo.ResetMonthly(ctx, rec.UserID, s.monthlyLimit, start, end); err != nil {
		return nil, fmt.Errorf("ledger: reset monthly: %w", err)
	}
	fresh, err := s.usageRepo.GetByUserID(ctx, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("ledger: load usage: %w", err)
	}
	if fresh == nil {
		return nil, repository.ErrUsageNotFound
	}
	return fresh, nil
}

func periodBounds(sub *model.Subscription) (time.Time, time.Time) {
	start := sub.CurrentPeriodStart.UTC()
	end := start.AddDate(0, 1, 0)
	if sub.CurrentPeriodEnd != nil {
		end = sub.CurrentPeriodEnd.UTC()
	}
	return start, end
}

// CreditOneTime adds units to the one-time pool after a confirmed purchase.
func (s *CreditService) CreditOneTime(ctx context.Context, userID string, units int) error {
	if units <= 0 {
		return ErrInvalidUnits
	}
	if _, err := s.EnsureUsageRecord(ctx, userID); err != nil {
		return err
	}
	if err := s.usageRepo.AddOneTime(ctx, userID, units, s.oneTimeLimit); err != nil {
		return fmt.Errorf("ledger: credit one-time: %w", err)
	}
	log.WithFields(log.Fields{"userId": userID, "units": units}).Info("ledger: one-time credits added")
	return nil
}

// RecordPurchase stores a paid one-time purchase and credits its allowance
// atomically. A purchase already on file returns
// repository.ErrDuplicateTransaction and leaves the balance alone.
func (s *CreditService) RecordPurchase(ctx context.Context, purchase *model.Transaction) error {
	if err := s.usageRepo.RecordPurchase(ctx, purchase, s.oneTimeLimit, s.oneTimeLimit); err != nil {
		if errors.Is(err, repository.ErrDuplicateTransaction) {
			return err
		}
		return fmt.Errorf("ledger: record purchase: %w", err)
	}
	log.WithFields(log.Fields{
		"userId": purchase.UserID,
		"units":  s.oneTimeLimit,
		"amount": purchase.Amount.String(),
	}).Info("ledger: purchase recorded")
	return nil
}

// GrantPurchases records purchases that were not paid through checkout, such
// as support grants, and credits them. Each one is stored as a zero-amount
// paid transaction so reconciliation counts it.
func (s *CreditService) GrantPurchases(ctx context.Context, userID string, purchases int) error {
	if purchases <= 0 {
		return ErrInvalidUnits
	}
	for i := 0; i < purchases; i++ {
		if err := s.RecordPurchase(ctx, &model.Transaction{
			UserID: userID,
			Status: model.TransactionStatusPaid,
			Amount: decimal.Zero,
		}); err != nil {
			return fmt.Errorf("ledger: grant: %w", err)
		}
	}
	return nil
}

// ResetMonthly refills the monthly pool for a new billing period.
func (s *CreditService) ResetMonthly(ctx context.Context, userID string, limit int, periodStart, periodEnd time.Time) error {
	if _, err := s.EnsureUsageRecord(ctx, userID); err != nil {
		return err
	}
	if err := s.usageRepo.ResetMonthly(ctx, userID, limit, periodStart, periodEnd); err != nil {
		return fmt.Errorf("ledger: reset monthly: %w", err)
	}
	log.WithFields(log.Fields{
		"userId":      userID,
		"limit":       limit,
		"periodStart": periodStart,
		"periodEnd":   periodEnd,
	}).Info("ledger: monthly pool reset")
	return nil
}

// ExpireMonthly empties the monthly pool, used when a subscription ends.
func (s *CreditService) ExpireMonthly(ctx context.Context, userID string) error {
	if _, err := s.EnsureUsageRecord(ctx, userID); err != nil {
		return err
	}
	if err := s.usageRepo.ExpireMonthly(ctx, userID); err != nil {
		return fmt.Errorf("ledger: expire monthly: %w", err)
	}
	return nil
}

// RefundCredit drops the reservation and returns its unit to the pool it was
// taken from, used when generation failed after the credit was consumed. A
// reservation can be refunded once.
func (s *CreditService) RefundCredit(ctx context.Context, userID, reservationID string) error {
	source, err := s.usageRepo.Release(ctx, userID, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return err
		}
		return fmt.Errorf("ledger: refund: %w", err)
	}
	log.WithFields(log.Fields{
		"userId":        userID,
		"source":        source,
		"reservationId": reservationID,
	}).Info("ledger: credit refunded")
	return nil
}

func (s *CreditService) GetUsage(ctx context.Context, userID string) (*model.UsageSummary, error) {
	rec, err := s.EnsureUsageRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	sub, err := s.subRepo.GetLatestByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger: load subscription: %w", err)
	}

	summary := &model.UsageSummary{Usage: rec}
	monthlyEligible := false
	if sub != nil {
		summary.SubscriptionStatus = sub.Status
		monthlyEligible = sub.Status.GrantsMonthlyCredits()
	}
	summary.CanGenerate = (monthlyEligible && rec.MonthlyRemaining > 0) || rec.OneTimeRemaining > 0
	return summary, nil
}

// VerifyAndCorrectUsage recomputes both balances from subscriptions,
// transactions and document rows (reserved ones included), patches the row if
// it drifted, and returns a description of each correction. The patch only
// lands while both pools still hold the values read here; when a concurrent
// consume or refund moved them, nothing is written and no changes are
// reported. A second call with no new activity returns no changes.
func (s *CreditService) VerifyAndCorrectUsage(ctx context.Context, userID string) ([]string, error) {
	rec, err := s.EnsureUsageRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	sub, err := s.subRepo.GetLatestByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger: load subscription: %w", err)
	}

	want := *rec
	var changes []string

	if sub != nil && sub.Status.GrantsMonthlyCredits() {
		want.MonthlyLimit = s.monthlyLimit
		if sub.CurrentPeriodStart != nil {
			start, end := periodBounds(sub)
			if !sameTime(rec.MonthlyPeriodStart, &start) || !sameTime(rec.MonthlyPeriodEnd, &end) {
				want.MonthlyPeriodStart, want.MonthlyPeriodEnd = &start, &end
				changes = append(changes, fmt.Sprintf("monthly period: %s -> %s to %s",
					formatPeriod(rec.MonthlyPeriodStart, rec.MonthlyPeriodEnd), start.Format(time.RFC3339), end.Format(time.RFC3339)))
			}
		}
		used, err := s.docRepo.CountBySource(ctx, userID, model.CreditSourceSubscription, want.MonthlyPeriodStart, want.MonthlyPeriodEnd)
		if err != nil {
			return nil, fmt.Errorf("ledger: count documents: %w", err)
		}
		want.MonthlyRemaining = max(0, want.MonthlyLimit-used)
	} else {
		want.MonthlyRemaining = 0
	}

	paid, err := s.txRepo.CountPaidOneTime(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger: count transactions: %w", err)
	}
	if paid > 0 && want.OneTimeLimitPerPurchase == 0 {
		want.OneTimeLimitPerPurchase = s.oneTimeLimit
	}
	usedOneTime, err := s.docRepo.CountBySource(ctx, userID, model.CreditSourceOneTime, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: count documents: %w", err)
	}
	want.OneTimeRemaining = max(0, paid*want.OneTimeLimitPerPurchase-usedOneTime)

	changes = appendIntChange(changes, "monthly_limit", rec.MonthlyLimit, want.MonthlyLimit)
	changes = appendIntChange(changes, "monthly_remaining", rec.MonthlyRemaining, want.MonthlyRemaining)
	changes = appendIntChange(changes, "one_time_limit_per_purchase", rec.OneTimeLimitPerPurchase, want.OneTimeLimitPerPurchase)
	changes = appendIntChange(changes, "one_time_remaining", rec.OneTimeRemaining, want.OneTimeRemaining)

	if len(changes) == 0 {
		return nil, nil
	}
	ok, err := s.usageRepo.Patch(ctx, &want, rec)
	if err != nil {
		return nil, fmt.Errorf("ledger: patch usage: %w", err)
	}
	if !ok {
		log.WithField("userId", userID).Info("ledger: balances moved during verification, skipping correction")
		return nil, nil
	}
	log.WithFields(log.Fields{"userId": userID, "changes": changes}).Warn("ledger: usage corrected")
	return changes, nil
}

func appendIntChange(changes []string, name string, from, to int) []string {
	if from == to {
		return changes
	}
	return append(changes, fmt.Sprintf("%s: %d -> %d", name, from, to))
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func formatPeriod(start, end *time.Time) string {
	if start == nil {
		return "none"
	}
	s := start.UTC().Format(time.RFC3339)
	if end != nil {
		s += " to " + end.UTC().Format(time.RFC3339)
	}
	return s
}
