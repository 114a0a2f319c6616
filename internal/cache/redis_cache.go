package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

// Connect builds a client and verifies the server answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return rdb, nil
}

func claimKey(key string) string        { return "dedupe:" + key }
func statusKey(messageID string) string { return "msg:" + messageID + ":status" }

// Claim marks key as seen for the cache TTL. It reports false when another
// caller claimed it first.
func (c *RedisCache) Claim(ctx context.Context, key string) (bool, error) {
	return c.rdb.SetNX(ctx, claimKey(key), 1, c.ttl).Result()
}

func (c *RedisCache) Release(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, claimKey(key)).Err()
}

func (c *RedisCache) StoreStatus(ctx context.Context, s Snapshot) error {
	s.UpdatedAt = s.UpdatedAt.UTC()

	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, statusKey(s.MessageID), b, c.ttl).Err()
}

func (c *RedisCache) LoadStatus(ctx context.Context, messageID string) (*Snapshot, error) {
	raw, err := c.rdb.Get(ctx, statusKey(messageID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode status snapshot %s: %w", messageID, err)
	}
	return &s, nil
}

func (c *RedisCache) DeleteStatus(ctx context.Context, messageID string) error {
	return c.rdb.Del(ctx, statusKey(messageID)).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
