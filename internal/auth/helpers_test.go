package auth

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/auth-service/internal/domain"
)

const testSecret = "test-secret"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testUser(role domain.Role) *domain.User {
	return &domain.User{
		ID:        "7b0c9a52-55f4-4a8e-9d43-0f2d1f0e9c11",
		FirstName: "Ann",
		Email:     "a@x.com",
		Role:      role,
	}
}

// spyStore records how often the gate reaches the revocation store.
type spyStore struct {
	mu      sync.Mutex
	calls   int
	revoked map[string]bool
	err     error
}

func newSpyStore() *spyStore {
	return &spyStore{revoked: make(map[string]bool)}
}

func (s *spyStore) MarkRevoked(_ context.Context, token string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.revoked[token] = true
	return nil
}

func (s *spyStore) IsRevoked(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.revoked[token], nil
}

func (s *spyStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
