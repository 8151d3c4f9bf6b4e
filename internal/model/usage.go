package model

import "time"

// CreditSource names the pool a credit was taken from.
type CreditSource string

const (
	CreditSourceSubscription CreditSource = "subscription"
	CreditSourceOneTime      CreditSource = "one_time"
)

// UsageRecord is the single document_usage row kept per user.
type UsageRecord struct {
	UserID                  string     `json:"userId"`
	MonthlyLimit            int        `json:"monthlyLimit"`
	MonthlyRemaining        int        `json:"monthlyRemaining"`
	OneTimeLimitPerPurchase int        `json:"oneTimeLimitPerPurchase"`
	OneTimeRemaining        int        `json:"oneTimeRemaining"`
	APIGeneratedTotal       int        `json:"apiGeneratedTotal"`
	MonthlyPeriodStart      *time.Time `json:"monthlyPeriodStart"`
	MonthlyPeriodEnd        *time.Time `json:"monthlyPeriodEnd"`
	CreatedAt               time.Time  `json:"createdAt"`
	UpdatedAt               time.Time  `json:"updatedAt"`
}

// TotalRemaining is the number of documents the user can still generate.
func (r *UsageRecord) TotalRemaining() int {
	return r.MonthlyRemaining + r.OneTimeRemaining
}

// ConsumeResult is the outcome of one consumption attempt. A failed attempt is
// not an error: OK is false and Message explains why. ReservationID names the
// reserved document row that records the consumption.
type ConsumeResult struct {
	OK            bool         `json:"ok"`
	Source        CreditSource `json:"source,omitempty"`
	Remaining     int          `json:"remaining"`
	ReservationID string       `json:"reservationId,omitempty"`
	Message       string       `json:"message,omitempty"`
}

type UsageSummary struct {
	Usage              *UsageRecord       `json:"usage"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus,omitempty"`
	CanGenerate        bool               `json:"canGenerate"`
}

type VerifyUsageResponse struct {
	Changes []string     `json:"changes"`
	Usage   *UsageRecord `json:"usage"`
}

// GrantCreditsRequest grants one-time purchases without payment. Each purchase
// adds the configured per-purchase allowance.
type GrantCreditsRequest struct {
	Purchases int    `json:"purchases" binding:"required,min=1,max=100"`
	Reason    string `json:"reason"`
}
