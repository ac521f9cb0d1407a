package cache

import (
	"context"
	"time"

	"stocklink/backend/internal/domain"
)

type StoreProfileCache interface {
	Get(ctx context.Context, key string) (*domain.StoreProfile, bool, error)
	Set(ctx context.Context, key string, value *domain.StoreProfile, ttl time.Duration) error
}

type NoopStoreProfileCache struct{}

func (NoopStoreProfileCache) Get(_ context.Context, _ string) (*domain.StoreProfile, bool, error) {
	return nil, false, nil
}

func (NoopStoreProfileCache) Set(_ context.Context, _ string, _ *domain.StoreProfile, _ time.Duration) error {
	return nil
}
