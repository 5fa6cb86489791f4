package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/chatrelay/internal/crypto"
	"github.com/eldtechnologies/chatrelay/internal/metrics"
	"github.com/eldtechnologies/chatrelay/internal/models"
)

// RedisStore handles Redis operations for sessions and rate limiting.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// sessionKey returns the key holding a session's identity.
func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

// CreateSession stores the identity under a fresh token with a TTL.
func (s *RedisStore) CreateSession(ctx context.Context, identity models.Identity, ttl time.Duration) (string, error) {
	defer observeRedis(time.Now())

	token, err := crypto.NewSessionToken()
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(identity)
	if err != nil {
		return "", err
	}

	if err := s.client.Set(ctx, sessionKey(token), data, ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// GetSession resolves a token to its identity.
func (s *RedisStore) GetSession(ctx context.Context, token string) (*models.Identity, error) {
	defer observeRedis(time.Now())

	data, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	var identity models.Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// DeleteSession removes a session.
func (s *RedisStore) DeleteSession(ctx context.Context, token string) error {
	defer observeRedis(time.Now())
	return s.client.Del(ctx, sessionKey(token)).Err()
}

func observeRedis(start time.Time) {
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
}
