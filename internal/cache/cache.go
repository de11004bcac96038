package cache

import (
	"context"
	"time"

	"marketmate/backend/internal/domain"
)

type AnalysisCache interface {
	Get(ctx context.Context, key string) (*domain.Analysis, bool, error)
	Set(ctx context.Context, key string, value *domain.Analysis, ttl time.Duration) error
}

type NoopAnalysisCache struct{}

func (NoopAnalysisCache) Get(_ context.Context, _ string) (*domain.Analysis, bool, error) {
	return nil, false, nil
}

func (NoopAnalysisCache) Set(_ context.Context, _ string, _ *domain.Analysis, _ time.Duration) error {
	return nil
}
