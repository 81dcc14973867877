package idempotency

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wakala/payments/internal/domain"
)

// RedisStore keeps outcomes in Redis under "outcome:<key>" with no expiry.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) *RedisStore {
	return NewRedisStoreFromClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Ping checks the connection; call it at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func redisKey(key domain.IdempotencyKey) string {
	return fmt.Sprintf("outcome:%s", key)
}

func (s *RedisStore) Lookup(ctx context.Context, key domain.IdempotencyKey) (*domain.Outcome, error) {
	data, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET error: %w", err)
	}
	return Decode(data)
}

// Put uses SET NX so that only the first writer for a key succeeds.
func (s *RedisStore) Put(ctx context.Context, key domain.IdempotencyKey, outcome *domain.Outcome) error {
	data, err := Encode(outcome)
	if err != nil {
		return err
	}
	set, err := s.client.SetNX(ctx, redisKey(key), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis SETNX error: %w", err)
	}
	if !set {
		return ErrExists
	}
	return nil
}
