package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pgEdge/cstore-insights/internal/config"
)

// memoKeyPrefix namespaces every memo key.
const memoKeyPrefix = "cstore-insights:memo:"

// RedisMemo is a Memo backed by Redis, shared between processes.
type RedisMemo struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMemo wraps an existing client.
func NewRedisMemo(client *redis.Client, ttl time.Duration) *RedisMemo {
	if ttl <= 0 {
		ttl = DefaultMemoTTL
	}
	return &RedisMemo{client: client, ttl: ttl}
}

// DialRedisMemo connects to Redis and verifies the connection.
func DialRedisMemo(ctx context.Context, cfg config.RedisConfig, ttl time.Duration) (*RedisMemo, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewRedisMemo(client, ttl), nil
}

func memoKey(key string) string {
	return memoKeyPrefix + key
}

// Get implements Memo.
func (r *RedisMemo) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := r.client.Get(ctx, memoKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, dst)
}

// Set implements Memo.
func (r *RedisMemo) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, memoKey(key), data, r.ttl).Err()
}

// Clear deletes every key under the memo prefix.
func (r *RedisMemo) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, memoKeyPrefix+"*", 500).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 500 {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return r.client.Del(ctx, batch...).Err()
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisMemo) Close() error {
	return r.client.Close()
}

// NewMemo builds the memo backend selected in configuration. The returned
// close function releases any connection it opened.
func NewMemo(ctx context.Context, cfg config.EnrichConfig) (Memo, func() error, error) {
	ttl := time.Duration(cfg.MemoTTL) * time.Second
	switch cfg.Memo {
	case config.MemoRedis:
		m, err := DialRedisMemo(ctx, cfg.Redis, ttl)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis memo at %s: %w", cfg.Redis.Address, err)
		}
		return m, m.Close, nil
	case config.MemoNone:
		return NopMemo{}, func() error { return nil }, nil
	default:
		return NewMemoryMemo(ttl), func() error { return nil }, nil
	}
}
