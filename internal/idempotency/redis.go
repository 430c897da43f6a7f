package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fundingledger/internal/domain"
)

// releasePending deletes a key only while it is still pending.
var releasePending = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisStore keeps reservations in Redis with SET NX.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttlOrDefault(ttl)}
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Reserve(ctx context.Context, key string) (Reservation, error) {
	ok, err := s.client.SetNX(ctx, key, pendingValue, s.ttl).Result()
	if err != nil {
		return Reservation{}, fmt.Errorf("reserve key: %w", err)
	}
	if ok {
		return Reservation{Fresh: true}, nil
	}
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return s.Reserve(ctx, key)
	}
	if err != nil {
		return Reservation{}, fmt.Errorf("read key: %w", err)
	}
	if id, done := resultOf(value); done {
		return Reservation{ResultID: id}, nil
	}
	return Reservation{}, domain.ErrDuplicateOperation
}

func (s *RedisStore) Complete(ctx context.Context, key, resultID string) error {
	if err := s.client.Set(ctx, key, donePrefix+resultID, s.ttl).Err(); err != nil {
		return fmt.Errorf("complete key: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := releasePending.Run(ctx, s.client, []string{key}, pendingValue).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release key: %w", err)
	}
	return nil
}
