package model

import "time"

// RetryConfigRequest carries the admin-editable retry policy for outbound
// LLM calls.
type RetryConfigRequest struct {
	Enabled           bool  `json:"enabled"`
	MaxAttempts       int   `json:"maxAttempts" binding:"min=0,max=10"`
	MaxBodyBytes      int64 `json:"maxBodyBytes"`
	BackoffBaseMs     int64 `json:"backoffBaseMs"`
	BackoffMaxMs      int64 `json:"backoffMaxMs"`
	RetryOn429        bool  `json:"retryOn429"`
	RetryOn5xx        bool  `json:"retryOn5xx"`
	RespectRetryAfter bool  `json:"respectRetryAfter"`
}

type RetryConfigResponse = RetryConfigRequest

type SystemConfig struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}
