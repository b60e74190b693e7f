package core

import (
	"context"
	"time"
)

// Ports define interfaces for external dependencies

// ============================================
// STORAGE PORT (persisted client state)
// ============================================

// TokenKey is the well-known key the bearer token is persisted under
const TokenKey = "authToken"

// TokenStore persists the bearer token across process restarts.
// Load returns ErrTokenNotFound when nothing is stored.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// ============================================
// SESSION PORTS
// ============================================

// TokenSource hands the current bearer token to outgoing requests
type TokenSource interface {
	Token() string
}

// ValidateFunc resolves a persisted token to the user it belongs to
type ValidateFunc func(ctx context.Context, token string) (*User, error)

// ============================================
// CACHE PORT
// ============================================

// Cache is a keyed store with expiry
type Cache[V any] interface {
	Get(key string) (V, error)
	Set(key string, value V) error
	Delete(key string) error
	Clear() error
}

// CacheWithStats extends Cache with statistics tracking
type CacheWithStats[V any] interface {
	Cache[V]
	Stats() CacheStats
}

// CacheConfig configures cache behavior
type CacheConfig struct {
	TTL     time.Duration
	MaxSize int
}

// CacheStats tracks cache performance metrics
type CacheStats struct {
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Sets      int64         `json:"sets"`
	Deletes   int64         `json:"deletes"`
	Evictions int64         `json:"evictions"`
	Size      int           `json:"size"`
	TTL       time.Duration `json:"ttl"`
}
