package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"asklegal/internal/config"
	"asklegal/internal/database"
	"asklegal/internal/model"
	"asklegal/internal/repository"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"
	checkout "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/webhook"
)

var (
	ErrBillingNotConfigured = errors.New("billing is not configured")
	ErrUnknownCustomer      = errors.New("no user for this billing customer")
	ErrInvalidPayload       = errors.New("invalid webhook payload")
)

const userIDMetadataKey = "user_id"

type StripeSettings struct {
	SecretKey     string
	WebhookSecret string
	PriceMonthly  string
	PriceOneTime  string
	FrontendURL   string
}

// StripeService creates checkout sessions and applies webhook events to
// subscriptions, transactions and the credit ledger.
type StripeService struct {
	users   repository.UserRepositoryInterface
	subs    repository.SubscriptionRepositoryInterface
	credits *CreditService
	cfg     StripeSettings

	newCheckout func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	newCustomer func(*stripe.CustomerParams) (*stripe.Customer, error)
}

func NewStripeService(credits *CreditService) *StripeService {
	db := database.GetDB()
	cfg := config.Get()
	return NewStripeServiceWithRepo(
		repository.NewUserRepository(db),
		repository.NewSubscriptionRepository(db),
		credits,
		StripeSettings{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			PriceMonthly:  cfg.StripePriceMonthly,
			PriceOneTime:  cfg.StripePriceOneTime,
			FrontendURL:   cfg.FrontendURL,
		},
	)
}

func NewStripeServiceWithRepo(
	users repository.UserRepositoryInterface,
	subs repository.SubscriptionRepositoryInterface,
	credits *CreditService,
	cfg StripeSettings,
) *StripeService {
	return &StripeService{
		users:       users,
		subs:        subs,
		credits:     credits,
		cfg:         cfg,
		newCheckout: checkout.New,
		newCustomer: customer.New,
	}
}

// CreateCheckout starts a hosted checkout for a subscription or a one-time
// document and returns its URL.
func (s *StripeService) CreateCheckout(ctx context.Context, userID string, kind model.CheckoutKind) (string, error) {
	frontend := strings.TrimRight(s.cfg.FrontendURL, "/")
	if s.cfg.SecretKey == "" || frontend == "" {
		return "", ErrBillingNotConfigured
	}

	mode := stripe.CheckoutSessionModePayment
	price := s.cfg.PriceOneTime
	if kind == model.CheckoutKindSubscription {
		mode = stripe.CheckoutSessionModeSubscription
		price = s.cfg.PriceMonthly
	}
	if price == "" {
		return "", ErrBillingNotConfigured
	}

	customerID, err := s.ensureCustomer(ctx, userID)
	if err != nil {
		return "", err
	}

	metadata := map[string]string{userIDMetadataKey: userID}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(mode)),
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(userID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(price),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(frontend + "/billing/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(frontend + "/billing/cancel"),
		Metadata:   metadata,
	}
	if mode == stripe.CheckoutSessionModeSubscription {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: metadata}
	}
	params.Context = ctx

	sess, err := s.newCheckout(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create checkout: %w", err)
	}
	log.WithFields(log.Fields{"userId": userID, "kind": kind, "checkoutId": sess.ID}).Info("stripe: checkout created")
	return sess.URL, nil
}

func (s *StripeService) ensureCustomer(ctx context.Context, userID string) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", repository.ErrUserNotFound
	}
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Metadata: map[string]string{userIDMetadataKey: userID},
	}
	params.Context = ctx
	cust, err := s.newCustomer(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}
	if err := s.users.SetStripeCustomerID(ctx, userID, cust.ID); err != nil {
		return "", err
	}
	return cust.ID, nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
func (s *StripeService) ParseWebhook(payload []byte, signature string) (stripe.Event, error) {
	if s.cfg.WebhookSecret == "" {
		return stripe.Event{}, ErrBillingNotConfigured
	}
	return webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
}

// HandleEvent applies one webhook event. Redelivered events are harmless:
// checkout sessions are recorded once and subscription updates are upserts.
func (s *StripeService) HandleEvent(ctx context.Context, event stripe.Event) error {
	if event.Data == nil {
		return ErrInvalidPayload
	}
	logger := log.WithFields(log.Fields{"eventId": event.ID, "type": event.Type})

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return s.checkoutCompleted(ctx, &sess)
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return s.subscriptionChanged(ctx, &sub)
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return s.subscriptionDeleted(ctx, &sub)
	default:
		logger.Debug("stripe: ignoring event")
		return nil
	}
}

func (s *StripeService) checkoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	userID, err := s.resolveUser(ctx, sess.ClientReferenceID, sess.Metadata, sess.Customer)
	if err != nil {
		return err
	}
	logger := log.WithFields(log.Fields{"userId": userID, "checkoutId": sess.ID, "mode": sess.Mode})

	switch sess.Mode {
	case stripe.CheckoutSessionModePayment:
		if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			logger.WithField("paymentStatus", sess.PaymentStatus).Info("stripe: checkout not paid yet")
			return nil
		}
		id := sess.ID
		err := s.credits.RecordPurchase(ctx, &model.Transaction{
			UserID:          userID,
			Status:          model.TransactionStatusPaid,
			Amount:          checkoutAmount(sess.AmountTotal, sess.Currency),
			Currency:        string(sess.Currency),
			StripeSessionID: &id,
		})
		if errors.Is(err, repository.ErrDuplicateTransaction) {
			logger.Info("stripe: checkout already recorded")
			return nil
		}
		if err != nil {
			return fmt.Errorf("stripe: record purchase: %w", err)
		}
		logger.Info("stripe: one-time purchase credited")
	case stripe.CheckoutSessionModeSubscription:
		if sess.Subscription == nil || sess.Subscription.ID == "" {
			logger.Warn("stripe: subscription checkout without subscription id")
			return nil
		}
		existing, err := s.subs.GetByStripeID(ctx, sess.Subscription.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		stripeID := sess.Subscription.ID
		if err := s.subs.Create(ctx, &model.Subscription{
			UserID:               userID,
			Status:               model.SubscriptionStatusActive,
			PlanID:               s.cfg.PriceMonthly,
			StripeSubscriptionID: &stripeID,
		}); err != nil {
			return fmt.Errorf("stripe: create subscription: %w", err)
		}
		logger.Info("stripe: subscription recorded from checkout")
	}
	return nil
}

func (s *StripeService) subscriptionChanged(ctx context.Context, sub *stripe.Subscription) error {
	userID, err := s.resolveUser(ctx, "", sub.Metadata, sub.Customer)
	if err != nil {
		return err
	}
	status := model.SubscriptionStatus(sub.Status)
	start, end := unixPtr(sub.CurrentPeriodStart), unixPtr(sub.CurrentPeriodEnd)

	existing, err := s.subs.GetByStripeID(ctx, sub.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := s.subs.UpdatePeriod(ctx, existing.ID, status, start, end); err != nil {
			return fmt.Errorf("stripe: update subscription: %w", err)
		}
	} else {
		stripeID := sub.ID
		if err := s.subs.Create(ctx, &model.Subscription{
			UserID:               userID,
			Status:               status,
			PlanID:               planID(sub, s.cfg.PriceMonthly),
			StripeSubscriptionID: &stripeID,
			CurrentPeriodStart:   start,
			CurrentPeriodEnd:     end,
		}); err != nil {
			return fmt.Errorf("stripe: create subscription: %w", err)
		}
	}

	logger := log.WithFields(log.Fields{"userId": userID, "subscriptionId": sub.ID, "status": status})
	if !status.GrantsMonthlyCredits() || start == nil {
		logger.Info("stripe: subscription updated")
		return nil
	}

	rec, err := s.credits.EnsureUsageRecord(ctx, userID)
	if err != nil {
		return err
	}
	if rec.MonthlyPeriodStart != nil && !start.After(*rec.MonthlyPeriodStart) {
		logger.Info("stripe: subscription updated, period unchanged")
		return nil
	}
	periodEnd := start.AddDate(0, 1, 0)
	if end != nil {
		periodEnd = *end
	}
	return s.credits.ResetMonthly(ctx, userID, s.credits.MonthlyLimit(), *start, periodEnd)
}

func (s *StripeService) subscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	existing, err := s.subs.GetByStripeID(ctx, sub.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		log.WithField("subscriptionId", sub.ID).Warn("stripe: deleted subscription is unknown")
		return nil
	}
	if err := s.subs.UpdateStatus(ctx, existing.ID, model.SubscriptionStatusCanceled); err != nil {
		return fmt.Errorf("stripe: cancel subscription: %w", err)
	}
	if err := s.credits.ExpireMonthly(ctx, existing.UserID); err != nil {
		return err
	}
	log.WithFields(log.Fields{"userId": existing.UserID, "subscriptionId": sub.ID}).Info("stripe: subscription canceled")
	return nil
}

// resolveUser finds the local user for an event: explicit reference first,
// then metadata, then the stored customer id.
func (s *StripeService) resolveUser(ctx context.Context, reference string, metadata map[string]string, cust *stripe.Customer) (string, error) {
	if reference != "" {
		return reference, nil
	}
	if id := metadata[userIDMetadataKey]; id != "" {
		return id, nil
	}
	if cust != nil && cust.ID != "" {
		user, err := s.users.GetByStripeCustomerID(ctx, cust.ID)
		if err != nil {
			return "", err
		}
		if user != nil {
			return user.ID, nil
		}
	}
	return "", ErrUnknownCustomer
}

func planID(sub *stripe.Subscription, fallback string) string {
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.Price != nil && item.Price.ID != "" {
				return item.Price.ID
			}
		}
	}
	return fallback
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// Stripe amounts are in the currency's smallest unit. Most currencies have
// two decimals; these do not.
var currencyExponents = map[stripe.Currency]int32{
	"bif": 0, "clp": 0, "djf": 0, "gnf": 0, "jpy": 0, "kmf": 0, "krw": 0, "mga": 0,
	"pyg": 0, "rwf": 0, "ugx": 0, "vnd": 0, "vuv": 0, "xaf": 0, "xof": 0, "xpf": 0,
	"bhd": 3, "jod": 3, "kwd": 3, "omr": 3, "tnd": 3,
}

func checkoutAmount(minor int64, currency stripe.Currency) decimal.Decimal {
	exp, ok := currencyExponents[stripe.Currency(strings.ToLower(string(currency)))]
	if !ok {
		exp = 2
	}
	return decimal.New(minor, -exp)
}
