package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"asklegal/internal/database"
	"asklegal/internal/llm"
	"asklegal/internal/model"
	"asklegal/internal/repository"

	log "github.com/sirupsen/logrus"
)

const retryConfigKey = "retry_config"

var ErrInvalidRetryConfig = errors.New("invalid retry config")

type systemConfigStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// SystemConfigService keeps runtime settings that admins can change without
// a restart. Currently that is the retry policy for model calls.
type SystemConfigService struct {
	repo      systemConfigStore
	transport *llm.RetryTransport
}

func NewSystemConfigService() *SystemConfigService {
	return NewSystemConfigServiceWithRepo(repository.NewSystemConfigRepository(database.GetDB()), llm.DefaultTransport())
}

func NewSystemConfigServiceWithRepo(repo systemConfigStore, transport *llm.RetryTransport) *SystemConfigService {
	return &SystemConfigService{repo: repo, transport: transport}
}

func (s *SystemConfigService) GetRetryConfig() model.RetryConfigResponse {
	return s.transport.Config().Model()
}

// UpdateRetryConfig validates, persists and applies a new retry policy.
func (s *SystemConfigService) UpdateRetryConfig(ctx context.Context, req model.RetryConfigRequest) (model.RetryConfigResponse, error) {
	if req.BackoffBaseMs < 0 || req.BackoffMaxMs < 0 || req.MaxBodyBytes < 0 {
		return model.RetryConfigResponse{}, fmt.Errorf("%w: values must not be negative", ErrInvalidRetryConfig)
	}
	if req.BackoffMaxMs > 0 && req.BackoffBaseMs > req.BackoffMaxMs {
		return model.RetryConfigResponse{}, fmt.Errorf("%w: backoffBaseMs must not exceed backoffMaxMs", ErrInvalidRetryConfig)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return model.RetryConfigResponse{}, err
	}
	if err := s.repo.Set(ctx, retryConfigKey, string(data)); err != nil {
		return model.RetryConfigResponse{}, err
	}

	cfg := llm.RetryConfigFromModel(req)
	s.transport.UpdateConfig(cfg)
	log.WithField("maxAttempts", cfg.MaxAttempts).Info("system: retry config updated")
	return cfg.Model(), nil
}

// LoadRetryConfig applies the stored policy, if any, at startup.
func (s *SystemConfigService) LoadRetryConfig(ctx context.Context) error {
	value, err := s.repo.Get(ctx, retryConfigKey)
	if err != nil {
		return err
	}
	if value == "" {
		return nil
	}
	var req model.RetryConfigRequest
	if err := json.Unmarshal([]byte(value), &req); err != nil {
		log.WithError(err).Warn("system: stored retry config is invalid, keeping defaults")
		return nil
	}
	s.transport.UpdateConfig(llm.RetryConfigFromModel(req))
	return nil
}
