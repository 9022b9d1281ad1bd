package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gwlsn/strikelab/internal/metrics"
)

const redisKeyPrefix = "strikelab:handoff:"

// RedisStore implements Store with expiring Redis keys, so several server
// instances can share handoffs.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisStoreFromClient(rdb, opts.TTL), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func redisKey(token string) string {
	return redisKeyPrefix + token
}

// Put stores h under a new token with the store's TTL.
func (s *RedisStore) Put(ctx context.Context, h Handoff) (string, error) {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("marshal handoff: %w", err)
	}

	token := NewToken()
	if err := s.rdb.Set(ctx, redisKey(token), payload, s.ttl).Err(); err != nil {
		metrics.HandoffsTotal.WithLabelValues("put", "error").Inc()
		return "", fmt.Errorf("store handoff: %w", err)
	}
	metrics.HandoffsTotal.WithLabelValues("put", "ok").Inc()
	return token, nil
}

// Get returns the handoff for token, or ErrDataNotFound once the key has expired.
func (s *RedisStore) Get(ctx context.Context, token string) (*Handoff, error) {
	payload, err := s.rdb.Get(ctx, redisKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.HandoffsTotal.WithLabelValues("get", "miss").Inc()
		return nil, notFound("unknown token")
	}
	if err != nil {
		metrics.HandoffsTotal.WithLabelValues("get", "error").Inc()
		return nil, fmt.Errorf("load handoff: %w", err)
	}

	var h Handoff
	if err := json.Unmarshal(payload, &h); err != nil {
		return nil, fmt.Errorf("unmarshal handoff: %w", err)
	}
	metrics.HandoffsTotal.WithLabelValues("get", "ok").Inc()
	return &h, nil
}

// Delete removes token.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, redisKey(token)).Err(); err != nil {
		return fmt.Errorf("delete handoff: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
