package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"asklegal/internal/llm"
	"asklegal/internal/model"
	"asklegal/internal/repository"
)

func TestSystemConfigService_UpdateAndReload(t *testing.T) {
	db := openTestDB(t)
	repo := repository.NewSystemConfigRepository(db)
	ctx := context.Background()

	transport := llm.NewRetryTransport(nil, nil)
	svc := NewSystemConfigServiceWithRepo(repo, transport)

	req := model.RetryConfigRequest{
		Enabled:       true,
		MaxAttempts:   5,
		MaxBodyBytes:  1 << 20,
		BackoffBaseMs: 100,
		BackoffMaxMs:  1000,
		RetryOn429:    true,
	}
	got, err := svc.UpdateRetryConfig(ctx, req)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.MaxAttempts != 5 || got.RetryOn5xx {
		t.Fatalf("unexpected config: %+v", got)
	}
	if transport.Config().BackoffBase != 100*time.Millisecond {
		t.Fatalf("transport not updated: %+v", transport.Config())
	}

	// A fresh process picks the stored policy up.
	fresh := llm.NewRetryTransport(nil, nil)
	if err := NewSystemConfigServiceWithRepo(repo, fresh).LoadRetryConfig(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if fresh.Config().MaxAttempts != 5 || fresh.Config().RetryOn5xx {
		t.Fatalf("stored config not applied: %+v", fresh.Config())
	}
}

func TestSystemConfigService_LoadWithoutStoredConfig(t *testing.T) {
	transport := llm.NewRetryTransport(nil, nil)
	svc := NewSystemConfigServiceWithRepo(repository.NewSystemConfigRepository(openTestDB(t)), transport)

	if err := svc.LoadRetryConfig(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if svc.GetRetryConfig() != llm.DefaultRetryConfig().Model() {
		t.Fatalf("expected defaults, got %+v", svc.GetRetryConfig())
	}
}

func TestSystemConfigService_RejectsInvalid(t *testing.T) {
	svc := NewSystemConfigServiceWithRepo(repository.NewSystemConfigRepository(openTestDB(t)), llm.NewRetryTransport(nil, nil))

	tests := []model.RetryConfigRequest{
		{MaxAttempts: 3, BackoffBaseMs: -1},
		{MaxAttempts: 3, MaxBodyBytes: -5},
		{MaxAttempts: 3, BackoffBaseMs: 500, BackoffMaxMs: 100},
	}
	for _, req := range tests {
		if _, err := svc.UpdateRetryConfig(context.Background(), req); !errors.Is(err, ErrInvalidRetryConfig) {
			t.Fatalf("expected ErrInvalidRetryConfig for %+v, got %v", req, err)
		}
	}
}
