// Package repofake holds in-memory repositories for tests.
package repofake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/repository"
)

// Store backs the user and submission fakes with one lock so cascading deletes stay consistent.
type Store struct {
	mu          sync.Mutex
	users       map[string]domain.User
	byEmail     map[string]string
	submissions map[string]domain.Submission

	// FailNextDelete makes the next DeleteByUser call fail, for rollback tests.
	FailNextDelete error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:       make(map[string]domain.User),
		byEmail:     make(map[string]string),
		submissions: make(map[string]domain.Submission),
	}
}

// Users returns a UserRepository view of the store.
func (s *Store) Users() repository.UserRepository { return fakeUserRepo{s} }

// Submissions returns a SubmissionRepository view of the store.
func (s *Store) Submissions() repository.SubmissionRepository { return fakeSubmissionRepo{s} }

// TxManager returns a TxManager that restores the store when fn fails.
func (s *Store) TxManager() repository.TxManager { return fakeTxManager{s} }

// AddSubmission seeds a submission for userID.
func (s *Store) AddSubmission(userID, problemID string) domain.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := domain.Submission{ID: uuid.NewString(), UserID: userID, ProblemID: problemID, CreatedAt: time.Now()}
	s.submissions[sub.ID] = sub
	return sub
}

// CountSubmissions returns the number of submissions owned by userID.
func (s *Store) CountSubmissions(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.submissions {
		if sub.UserID == userID {
			n++
		}
	}
	return n
}

type fakeUserRepo struct{ s *Store }

func (r fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.byEmail[user.Email]; exists {
		return repository.ErrDuplicateEmail
	}
	now := time.Now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.s.users[user.ID] = *user
	r.s.byEmail[user.Email] = user.ID
	return nil
}

func (r fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user := r.s.users[id]
	return &user, nil
}

func (r fakeUserRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, sub := range r.s.submissions {
		if sub.UserID == id {
			return errors.New("submissions still reference user")
		}
	}
	delete(r.s.users, id)
	delete(r.s.byEmail, user.Email)
	return nil
}

type fakeSubmissionRepo struct{ s *Store }

func (r fakeSubmissionRepo) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.FailNextDelete; err != nil {
		r.s.FailNextDelete = nil
		return 0, err
	}
	var n int64
	for id, sub := range r.s.submissions {
		if sub.UserID == userID {
			delete(r.s.submissions, id)
			n++
		}
	}
	return n, nil
}

type fakeTxManager struct{ s *Store }

func (m fakeTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := m.s.snapshot()
	if err := fn(ctx); err != nil {
		m.s.restore(snapshot)
		return err
	}
	return nil
}

type storeSnapshot struct {
	users       map[string]domain.User
	byEmail     map[string]string
	submissions map[string]domain.Submission
}

func (s *Store) snapshot() storeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := storeSnapshot{
		users:       make(map[string]domain.User, len(s.users)),
		byEmail:     make(map[string]string, len(s.byEmail)),
		submissions: make(map[string]domain.Submission, len(s.submissions)),
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.byEmail {
		snap.byEmail[k] = v
	}
	for k, v := range s.submissions {
		snap.submissions[k] = v
	}
	return snap
}

func (s *Store) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = snap.users
	s.byEmail = snap.byEmail
	s.submissions = snap.submissions
}
