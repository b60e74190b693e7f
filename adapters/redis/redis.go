// Package redis persists the bearer token in Redis so several portal
// processes can share one login.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eaglesoak/portal/core"
	"github.com/eaglesoak/portal/pkg/crypto"
)

const (
	KeyPrefix = "portal:"
)

// Store keeps the token under KeyPrefix + key. JWTs expire from Redis
// together with their exp claim.
type Store struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

var _ core.TokenStore = (*Store)(nil)

// Dial connects to the Redis server at url, e.g. redis://localhost:6379/0
func Dial(ctx context.Context, url, key string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: connection failed: %w", err)
	}
	return New(client, key), nil
}

func New(client *redis.Client, key string) *Store {
	if key == "" {
		key = core.TokenKey
	}
	return &Store{client: client, key: KeyPrefix + key, now: time.Now}
}

func (s *Store) Load(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", core.ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis: load token: %w", err)
	}
	return token, nil
}

func (s *Store) Save(ctx context.Context, token string) error {
	var ttl time.Duration
	if exp, ok := crypto.TokenExpiry(token); ok {
		ttl = exp.Sub(s.now())
		if ttl <= 0 {
			return s.Clear(ctx)
		}
	}
	if err := s.client.Set(ctx, s.key, token, ttl).Err(); err != nil {
		return fmt.Errorf("redis: save token: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis: clear token: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
