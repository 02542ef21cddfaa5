package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"kopkasir/backend/internal/domain"
)

type RedisMemberCache struct {
	client *redis.Client
}

func NewRedisMemberCache(addr string, password string, db int) *RedisMemberCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisMemberCache{client: client}
}

func (c *RedisMemberCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisMemberCache) Close() error {
	return c.client.Close()
}

func (c *RedisMemberCache) Get(ctx context.Context, key string) (*domain.Member, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var member domain.Member
	if err := json.Unmarshal([]byte(val), &member); err != nil {
		return nil, false, err
	}
	return &member, true, nil
}

func (c *RedisMemberCache) Set(ctx context.Context, key string, value *domain.Member, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisMemberCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
