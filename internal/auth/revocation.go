package auth

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	revocationKeyPrefix = "token:"
	revokedMarker       = "blocked"
)

// RevocationStore records tokens that were logged out before their natural expiry.
// It is the only shared mutable state of the auth subsystem; every replica must use the same one.
type RevocationStore interface {
	// MarkRevoked is idempotent. It is a no-op when expiresAt has already passed.
	MarkRevoked(ctx context.Context, token string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// RevocationKey is the cache key for a raw token.
func RevocationKey(token string) string {
	return revocationKeyPrefix + token
}

// remainingTTL rounds up to whole seconds so a record never disappears before the token expires.
func remainingTTL(expiresAt, now time.Time) time.Duration {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(remaining.Seconds())) * time.Second
}

// RedisRevocationStore keeps revocation markers in Redis with a TTL equal to the token's remaining life.
type RedisRevocationStore struct {
	client  redis.Cmdable
	timeout time.Duration
	now     func() time.Time
}

// NewRedisRevocationStore builds a store; every call is bounded by timeout when it is positive.
func NewRedisRevocationStore(client redis.Cmdable, timeout time.Duration) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, timeout: timeout, now: time.Now}
}

// MarkRevoked sets the marker with the remaining TTL.
func (s *RedisRevocationStore) MarkRevoked(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := remainingTTL(expiresAt, s.now())
	if ttl == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Set(ctx, RevocationKey(token), revokedMarker, ttl).Err()
}

// IsRevoked reports whether a marker exists for token.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.client.Exists(ctx, RevocationKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisRevocationStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// MemoryRevocationStore is a process-local store for tests and single-instance development.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationStore returns an empty store using now as its clock; nil means time.Now.
func NewMemoryRevocationStore(now func() time.Time) *MemoryRevocationStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryRevocationStore{entries: make(map[string]time.Time), now: now}
}

func (s *MemoryRevocationStore) MarkRevoked(_ context.Context, token string, expiresAt time.Time) error {
	ttl := remainingTTL(expiresAt, s.now())
	if ttl == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[RevocationKey(token)] = s.now().Add(ttl)
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, token string) (bool, error) {
	key := RevocationKey(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if !s.now().Before(until) {
		delete(s.entries, key)
		return false, nil
	}
	return true, nil
}

// Len returns the number of live records.
func (s *MemoryRevocationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, until := range s.entries {
		if now.Before(until) {
			n++
		}
	}
	return n
}
