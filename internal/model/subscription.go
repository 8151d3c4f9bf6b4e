package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	SubscriptionStatusUnpaid     SubscriptionStatus = "unpaid"
)

// GrantsMonthlyCredits reports whether the monthly pool may be spent under
// this status.
func (s SubscriptionStatus) GrantsMonthlyCredits() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// Subscription mirrors the billing provider's subscription. The ledger only
// reads it.
type Subscription struct {
	ID                   string             `json:"id"`
	UserID               string             `json:"userId"`
	Status               SubscriptionStatus `json:"status"`
	PlanID               string             `json:"planId"`
	StripeSubscriptionID *string            `json:"stripeSubscriptionId,omitempty"`
	CurrentPeriodStart   *time.Time         `json:"currentPeriodStart"`
	CurrentPeriodEnd     *time.Time         `json:"currentPeriodEnd"`
	CreatedAt            time.Time          `json:"createdAt"`
	UpdatedAt            time.Time          `json:"updatedAt"`
}

type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusPaid     TransactionStatus = "paid"
	TransactionStatusRefunded TransactionStatus = "refunded"
)

// Transaction is a one-time purchase. Paid, non-renewal rows are what the
// one-time pool is reconciled against.
type Transaction struct {
	ID              string            `json:"id"`
	UserID          string            `json:"userId"`
	Status          TransactionStatus `json:"status"`
	IsRenewal       bool              `json:"isRenewal"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	StripeSessionID *string           `json:"stripeSessionId,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

type CheckoutKind string

const (
	CheckoutKindSubscription CheckoutKind = "subscription"
	CheckoutKindOneTime      CheckoutKind = "one_time"
)

type CheckoutRequest struct {
	Kind CheckoutKind `json:"kind" binding:"required,oneof=subscription one_time"`
}

type CheckoutResponse struct {
	URL string `json:"url"`
}
