package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"stocklink/backend/internal/domain"
)

type RedisStoreProfileCache struct {
	client *redis.Client
}

func NewRedisStoreProfileCache(addr string, password string, db int) *RedisStoreProfileCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStoreProfileCache{client: client}
}

func (c *RedisStoreProfileCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisStoreProfileCache) Close() error {
	return c.client.Close()
}

func (c *RedisStoreProfileCache) Get(ctx context.Context, key string) (*domain.StoreProfile, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var profile domain.StoreProfile
	if err := json.Unmarshal([]byte(val), &profile); err != nil {
		return nil, false, err
	}
	return &profile, true, nil
}

func (c *RedisStoreProfileCache) Set(ctx context.Context, key string, value *domain.StoreProfile, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
