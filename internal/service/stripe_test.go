package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"asklegal/internal/model"
	"asklegal/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testWebhookSecret = "whsec_test"

type stripeFixture struct {
	*ledgerFixture
	users     *repository.UserRepository
	svc       *StripeService
	checkouts []*stripe.CheckoutSessionParams
	customers int
}

func newStripeFixture(t *testing.T) *stripeFixture {
	t.Helper()
	f := &stripeFixture{ledgerFixture: newLedgerFixture(t)}
	f.users = repository.NewUserRepository(f.db)
	f.svc = NewStripeServiceWithRepo(f.users, f.subs, f.credits, StripeSettings{
		SecretKey:     "sk_test",
		WebhookSecret: testWebhookSecret,
		PriceMonthly:  "price_monthly",
		PriceOneTime:  "price_once",
		FrontendURL:   "https://app.example.com/",
	})
	f.svc.newCheckout = func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		f.checkouts = append(f.checkouts, p)
		return &stripe.CheckoutSession{ID: fmt.Sprintf("cs_%d", len(f.checkouts)), URL: "https://checkout.stripe.test/pay"}, nil
	}
	f.svc.newCustomer = func(p *stripe.CustomerParams) (*stripe.Customer, error) {
		f.customers++
		return &stripe.Customer{ID: "cus_new"}, nil
	}
	return f
}

func (f *stripeFixture) createUser(t *testing.T, username string) *model.User {
	t.Helper()
	u := &model.User{Username: username, PasswordHash: "x"}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func stripeEvent(typ, raw string) stripe.Event {
	return stripe.Event{
		ID:   "evt_test",
		Type: stripe.EventType(typ),
		Data: &stripe.EventData{Raw: json.RawMessage(raw)},
	}
}

func subscriptionJSON(status string, start, end time.Time, metadata string) string {
	return fmt.Sprintf(`{
		"id": "sub_1",
		"object": "subscription",
		"status": %q,
		"customer": "cus_1",
		"metadata": %s,
		"current_period_start": %d,
		"current_period_end": %d,
		"items": {"object": "list", "data": [{"id": "si_1", "object": "subscription_item", "price": {"id": "price_monthly", "object": "price"}}]}
	}`, status, metadata, start.Unix(), end.Unix())
}

func TestStripeService_CreateCheckout(t *testing.T) {
	f := newStripeFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "jane")

	url, err := f.svc.CreateCheckout(ctx, user.ID, model.CheckoutKindSubscription)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if url != "https://checkout.stripe.test/pay" {
		t.Fatalf("url: got %q", url)
	}

	p := f.checkouts[0]
	if *p.Mode != string(stripe.CheckoutSessionModeSubscription) || *p.LineItems[0].Price != "price_monthly" {
		t.Errorf("unexpected params: mode=%s price=%s", *p.Mode, *p.LineItems[0].Price)
	}
	if *p.Customer != "cus_new" || *p.ClientReferenceID != user.ID {
		t.Errorf("checkout must be tied to the user: customer=%s ref=%s", *p.Customer, *p.ClientReferenceID)
	}
	if p.SubscriptionData == nil || p.SubscriptionData.Metadata[userIDMetadataKey] != user.ID {
		t.Error("subscription metadata should carry the user id")
	}
	if *p.CancelURL != "https://app.example.com/billing/cancel" {
		t.Errorf("cancel url: got %q", *p.CancelURL)
	}

	if _, err := f.svc.CreateCheckout(ctx, user.ID, model.CheckoutKindOneTime); err != nil {
		t.Fatalf("second checkout: %v", err)
	}
	if f.customers != 1 {
		t.Fatalf("customer should be created once, got %d", f.customers)
	}
	p = f.checkouts[1]
	if *p.Mode != string(stripe.CheckoutSessionModePayment) || *p.LineItems[0].Price != "price_once" || p.SubscriptionData != nil {
		t.Errorf("unexpected one-time params: %+v", p)
	}

	stored, err := f.users.GetByID(ctx, user.ID)
	if err != nil || stored.StripeCustomerID == nil || *stored.StripeCustomerID != "cus_new" {
		t.Fatalf("customer id not stored: %v %+v", err, stored)
	}
}

func TestStripeService_CheckoutNotConfigured(t *testing.T) {
	f := newStripeFixture(t)
	f.svc.cfg.SecretKey = ""
	if _, err := f.svc.CreateCheckout(context.Background(), "u1", model.CheckoutKindOneTime); !errors.Is(err, ErrBillingNotConfigured) {
		t.Fatalf("expected ErrBillingNotConfigured, got %v", err)
	}

	f = newStripeFixture(t)
	if _, err := f.svc.CreateCheckout(context.Background(), "missing", model.CheckoutKindOneTime); !errors.Is(err, repository.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestStripeService_PaidCheckoutCreditsOnce(t *testing.T) {
	f := newStripeFixture(t)
	ctx := context.Background()
	ev := stripeEvent("checkout.session.completed", `{
		"id": "cs_paid",
		"object": "checkout.session",
		"mode": "payment",
		"payment_status": "paid",
		"client_reference_id": "u1",
		"amount_total": 1999,
		"currency": "usd"
	}`)

	for i := 0; i < 2; i++ {
		if err := f.svc.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	rec := f.record(t, "u1")
	if rec.OneTimeRemaining != 1 || rec.OneTimeLimitPerPurchase != 1 {
		t.Fatalf("redelivery must not double credit: %+v", rec)
	}
	paid, err := f.txs.CountPaidOneTime(ctx, "u1")
	if err != nil || paid != 1 {
		t.Fatalf("expected one transaction, got %d (%v)", paid, err)
	}

	changes, err := f.credits.VerifyAndCorrectUsage(ctx, "u1")
	if err != nil || len(changes) != 0 {
		t.Fatalf("webhook credits should reconcile cleanly: %v %v", changes, err)
	}
}

func TestStripeService_FailedCreditIsRetriedOnRedelivery(t *testing.T) {
	f := newStripeFixture(t)
	ctx := context.Background()
	ev := stripeEvent("checkout.session.completed", `{
		"id": "cs_retry",
		"object": "checkout.session",
		"mode": "payment",
		"payment_status": "paid",
		"client_reference_id": "u1",
		"amount_total": 1999,
		"currency": "usd"
	}`)

	// Take the ledger table away so the credit step fails mid-delivery.
	if _, err := f.db.Exec(`ALTER TABLE document_usage RENAME TO document_usage_offline`); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := f.svc.HandleEvent(ctx, ev); err == nil {
		t.Fatal("expected the first delivery to fail")
	}
	if _, err := f.db.Exec(`ALTER TABLE document_usage_offline RENAME TO document_usage`); err != nil {
		t.Fatalf("rename back: %v", err)
	}
	if paid, err := f.txs.CountPaidOneTime(ctx, "u1"); err != nil || paid != 0 {
		t.Fatalf("a failed delivery must not leave a transaction behind: %d %v", paid, err)
	}

	if err := f.svc.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if rec := f.record(t, "u1"); rec.OneTimeRemaining != 1 {
		t.Fatalf("redelivery should credit the purchase: %+v", rec)
	}
}

func TestStripeService_CheckoutAmountByCurrency(t *testing.T) {
	f := newStripeFixture(t)
	ctx := context.Background()
	ev := stripeEvent("checkout.session.completed", `{
		"id": "cs_yen",
		"object": "checkout.session",
		"mode": "payment",
		"payment_status": "paid",
		"client_reference_id": "u1",
		"amount_total": 1500,
		"currency": "jpy"
	}`)
	if err := f.svc.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	var amount decimal.Decimal
	if err := f.db.QueryRow(`SELECT amount FROM transactions WHERE stripe_session_id = ?`, "cs_yen").Scan(&amount); err != nil {
		t.Fatalf("load amount: %v", err)
	}
	if !amount.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("yen amount: got %s", amount)
	}

	tests := []struct {
		minor    int64
		currency stripe.Currency
		want     string
	}{
		{1999, "usd", "19.99"},
		{1999, "EUR", "19.99"},
		{500, "krw", "500"},
		{12345, "kwd", "12.345"},
	}
	for _, tt := range tests {
		if got := checkoutAmount(tt.minor, tt.currency); !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("%d %s: got %s want %s", tt.minor, tt.currency, got, tt.want)
		}
	}
}

func TestStripeService_UnpaidCheckoutIgnored(t *testing.T) {
	f := newStripeFixture(t)
	ev := stripeEvent("checkout.session.completed", `{
		"id": "cs_unpaid",
		"object": "checkout.session",
		"mode": "payment",
		"payment_status": "unpaid",
		"client_reference_id": "u1"
	}`)
	if err := f.svc.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if rec, _ := f.usage.GetByUserID(context.Background(), "u1"); rec != nil && rec.OneTimeRemaining != 0 {
		t.Fatalf("unpaid checkout must not credit: %+v", rec)
	}
}

func TestStripeService_SubscriptionLifecycle(t *testing.T) {
	f := newStripeFixture(t)
	ctx := context.Background()
	meta := `{"user_id": "u1"}`

	if err := f.svc.HandleEvent(ctx, stripeEvent("customer.subscription.created", subscriptionJSON("active", periodStart, periodEnd, meta))); err != nil {
		t.Fatalf("created: %v", err)
	}
	sub, err := f.subs.GetByStripeID(ctx, "sub_1")
	if err != nil || sub == nil {
		t.Fatalf("subscription not stored: %v", err)
	}
	if sub.UserID != "u1" || sub.PlanID != "price_monthly" || sub.Status != model.SubscriptionStatusActive {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
	rec := f.record(t, "u1")
	if rec.MonthlyRemaining != 10 || rec.MonthlyPeriodStart == nil || !rec.MonthlyPeriodStart.Equal(periodStart) {
		t.Fatalf("monthly pool not started: %+v", rec)
	}

	// An update inside the same period keeps what was spent.
	f.setBalances(t, "u1", 3, -1)
	if err := f.svc.HandleEvent(ctx, stripeEvent("customer.subscription.updated", subscriptionJSON("active", periodStart, periodEnd, meta))); err != nil {
		t.Fatalf("updated: %v", err)
	}
	if got := f.record(t, "u1").MonthlyRemaining; got != 3 {
		t.Fatalf("same period must not reset, got %d", got)
	}

	nextStart, nextEnd := periodEnd, periodEnd.AddDate(0, 1, 0)
	if err := f.svc.HandleEvent(ctx, stripeEvent("customer.subscription.updated", subscriptionJSON("active", nextStart, nextEnd, meta))); err != nil {
		t.Fatalf("renewed: %v", err)
	}
	rec = f.record(t, "u1")
	if rec.MonthlyRemaining != 10 || !rec.MonthlyPeriodStart.Equal(nextStart) {
		t.Fatalf("renewal should refill the pool: %+v", rec)
	}

	if err := f.svc.HandleEvent(ctx, stripeEvent("customer.subscription.deleted", subscriptionJSON("canceled", nextStart, nextEnd, meta))); err != nil {
		t.Fatalf("deleted: %v", err)
	}
	sub, _ = f.subs.GetByStripeID(ctx, "sub_1")
	if sub.Status != model.SubscriptionStatusCanceled {
		t.Fatalf("status: got %q", sub.Status)
	}
	if got := f.record(t, "u1").MonthlyRemaining; got != 0 {
		t.Fatalf("canceled subscription must empty the monthly pool, got %d", got)
	}

	res, err := f.credits.ConsumeCredit(ctx, "u1")
	if err != nil || res.OK {
		t.Fatalf("expected refusal after cancel: %+v %v", res, err)
	}
}

func TestStripeService_PastDueDoesNotRefill(t *testing.T) {
	f := newStripeFixture(t)
	ev := stripeEvent("customer.subscription.created", subscriptionJSON("past_due", periodStart, periodEnd, `{"user_id": "u1"}`))
	if err := f.svc.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if rec, _ := f.usage.GetByUserID(context.Background(), "u1"); rec != nil && rec.MonthlyRemaining != 0 {
		t.Fatalf("past_due must not grant credits: %+v", rec)
	}
}

func TestStripeService_ResolvesUserByCustomer(t *testing.T) {
	f := newStripeFixture(t)
	ctx := context.Background()

	ev := stripeEvent("customer.subscription.created", subscriptionJSON("active", periodStart, periodEnd, `{}`))
	if err := f.svc.HandleEvent(ctx, ev); !errors.Is(err, ErrUnknownCustomer) {
		t.Fatalf("expected ErrUnknownCustomer, got %v", err)
	}

	user := f.createUser(t, "jane")
	if err := f.users.SetStripeCustomerID(ctx, user.ID, "cus_1"); err != nil {
		t.Fatalf("set customer: %v", err)
	}
	if err := f.svc.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	sub, err := f.subs.GetLatestByUserID(ctx, user.ID)
	if err != nil || sub == nil {
		t.Fatalf("subscription should belong to the customer's user: %v", err)
	}
}

func TestStripeService_InvalidPayload(t *testing.T) {
	f := newStripeFixture(t)
	ctx := context.Background()

	if err := f.svc.HandleEvent(ctx, stripe.Event{Type: "checkout.session.completed"}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if err := f.svc.HandleEvent(ctx, stripeEvent("customer.subscription.updated", `[]`)); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if err := f.svc.HandleEvent(ctx, stripeEvent("invoice.paid", `{}`)); err != nil {
		t.Fatalf("unhandled events are ignored, got %v", err)
	}
}

func TestStripeService_ParseWebhook(t *testing.T) {
	f := newStripeFixture(t)
	payload := []byte(`{"id": "evt_1", "object": "event", "type": "checkout.session.completed", "data": {"object": {"id": "cs_1", "object": "checkout.session"}}}`)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testWebhookSecret})
	ev, err := f.svc.ParseWebhook(signed.Payload, signed.Header)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.ID != "evt_1" || ev.Type != "checkout.session.completed" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	forged := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: "whsec_other"})
	if _, err := f.svc.ParseWebhook(forged.Payload, forged.Header); err == nil {
		t.Fatal("expected signature failure")
	}

	f.svc.cfg.WebhookSecret = ""
	if _, err := f.svc.ParseWebhook(signed.Payload, signed.Header); !errors.Is(err, ErrBillingNotConfigured) {
		t.Fatalf("expected ErrBillingNotConfigured, got %v", err)
	}
}
