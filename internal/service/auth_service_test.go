package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/internal/repository/repofake"
	apperrors "github.com/spec-kit/auth-service/pkg/util/errorutil"
)

const testSecret = "service-test-secret"

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) handle(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) ofType(t events.EventType) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type brokenStore struct{}

func (brokenStore) MarkRevoked(context.Context, string, time.Time) error {
	return errors.New("connection refused")
}

func (brokenStore) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

type fixture struct {
	svc         *AuthService
	store       *repofake.Store
	revocations auth.RevocationStore
	events      *eventLog
}

func newFixture(t *testing.T, revocations auth.RevocationStore) *fixture {
	t.Helper()
	if revocations == nil {
		revocations = auth.NewMemoryRevocationStore(nil)
	}

	store := repofake.NewStore()
	log := &eventLog{}
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	for _, et := range []events.EventType{
		events.EventUserRegistered,
		events.EventAdminRegistered,
		events.EventUserLoggedIn,
		events.EventUserLoggedOut,
		events.EventUserDeleted,
	} {
		dispatcher.Subscribe(et, log.handle)
	}

	cfg := config.Config{Auth: config.AuthConfig{JWTSecret: testSecret, ClockSkew: 5 * time.Second, BcryptCost: bcrypt.MinCost}}
	svc := NewAuthService(cfg, AuthDependencies{
		UserRepo:       store.Users(),
		SubmissionRepo: store.Submissions(),
		TxManager:      store.TxManager(),
		Revocations:    revocations,
		Dispatcher:     dispatcher,
		Logger:         zap.NewNop(),
	})
	return &fixture{svc: svc, store: store, revocations: revocations, events: log}
}

func ann() RegisterInput {
	return RegisterInput{FirstName: "Ann", Email: "a@x.com", Password: "longpass1"}
}

func principalOf(res *AuthResult) *auth.Principal {
	return &auth.Principal{
		ID:        res.User.ID,
		Email:     res.User.Email,
		Role:      res.User.Role,
		Token:     res.Token,
		ExpiresAt: res.Session.ExpiresAt,
	}
}

func requireStatus(t *testing.T, err error, status int) *apperrors.DomainError {
	t.Helper()
	require.Error(t, err)
	var de *apperrors.DomainError
	require.True(t, errors.As(err, &de), "expected DomainError, got %T", err)
	assert.Equal(t, status, de.HTTPStatus)
	return de
}

func TestRegisterStartsUserSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, RegisterInput{FirstName: "  Ann ", Email: " A@X.com ", Password: "longpass1"})
	require.NoError(t, err)

	assert.NotEmpty(t, res.User.ID)
	assert.Equal(t, "Ann", res.User.FirstName)
	assert.Equal(t, "a@x.com", res.User.Email)
	assert.Equal(t, domain.RoleUser, res.User.Role)
	assert.NotEqual(t, "longpass1", res.User.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(res.User.PasswordHash), []byte("longpass1")))

	session, err := f.svc.Tokens().Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, session.SubjectID)
	assert.Equal(t, domain.RoleUser, session.Role)
	assert.Equal(t, time.Hour, session.Lifetime())
	assert.Len(t, f.events.ofType(events.EventUserRegistered), 1)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, ann())
	require.NoError(t, err)

	dup := ann()
	dup.Email = "A@x.COM"
	_, err = f.svc.Register(ctx, dup)
	de := requireStatus(t, err, http.StatusConflict)
	assert.Equal(t, "CONFLICT", de.Code)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t, nil)
	cases := []struct {
		name string
		in   RegisterInput
	}{
		{"missing name", RegisterInput{Email: "a@x.com", Password: "longpass1"}},
		{"short name", RegisterInput{FirstName: "An", Email: "a@x.com", Password: "longpass1"}},
		{"long name", RegisterInput{FirstName: strings.Repeat("n", 21), Email: "a@x.com", Password: "longpass1"}},
		{"bad email", RegisterInput{FirstName: "Ann", Email: "not-an-email", Password: "longpass1"}},
		{"display name email", RegisterInput{FirstName: "Ann", Email: "Ann <a@x.com>", Password: "longpass1"}},
		{"undotted domain", RegisterInput{FirstName: "Ann", Email: "a@localhost", Password: "longpass1"}},
		{"short password", RegisterInput{FirstName: "Ann", Email: "a@x.com", Password: "short"}},
		{"long password", RegisterInput{FirstName: "Ann", Email: "a@x.com", Password: strings.Repeat("p", 73)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tc.in)
			de := requireStatus(t, err, http.StatusBadRequest)
			assert.Equal(t, "VALIDATION_FAILED", de.Code)
		})
	}

	_, err := f.svc.Register(context.Background(), RegisterInput{FirstName: "Ann", Email: "a@x.com", Password: strings.Repeat("p", 72)})
	assert.NoError(t, err)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, ann())
	require.NoError(t, err)

	_, wrongPassword := f.svc.Login(ctx, "a@x.com", "wrongpass")
	_, unknownEmail := f.svc.Login(ctx, "b@x.com", "longpass1")
	_, empty := f.svc.Login(ctx, "", "")

	first := requireStatus(t, wrongPassword, http.StatusUnauthorized)
	second := requireStatus(t, unknownEmail, http.StatusUnauthorized)
	third := requireStatus(t, empty, http.StatusUnauthorized)
	assert.Equal(t, first.Message, second.Message)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.Message, third.Message)
	assert.Empty(t, f.events.ofType(events.EventUserLoggedIn))
}

func TestLoginRejectsPasswordsPastBcryptLimit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	password := strings.Repeat("a", auth.MaxPasswordBytes)
	_, err := f.svc.Register(ctx, RegisterInput{FirstName: "Ann", Email: "a@x.com", Password: password})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "a@x.com", password+"zzzzzzzz")
	de := requireStatus(t, err, http.StatusUnauthorized)
	assert.Equal(t, invalidCredentialsMessage, de.Message)

	_, err = f.svc.Login(ctx, "a@x.com", password)
	assert.NoError(t, err)
}

func TestLoginIssuesFreshSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	registered, err := f.svc.Register(ctx, ann())
	require.NoError(t, err)

	res, err := f.svc.Login(ctx, " A@X.com", "longpass1")
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, res.User.ID)
	assert.NotEqual(t, registered.Token, res.Token)

	_, err = f.svc.Tokens().Verify(res.Token)
	assert.NoError(t, err)
	assert.Len(t, f.events.ofType(events.EventUserLoggedIn), 1)
}

func TestLogoutRevokesUntilExpiry(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res, err := f.svc.Register(ctx, ann())
	require.NoError(t, err)

	assert.True(t, f.svc.Logout(ctx, res.Token))
	assert.True(t, f.svc.Logout(ctx, res.Token))

	revoked, err := f.revocations.IsRevoked(ctx, res.Token)
	require.NoError(t, err)
	assert.True(t, revoked)

	// The signature stays valid; only the store knows the token is dead.
	_, err = f.svc.Tokens().Verify(res.Token)
	assert.NoError(t, err)
}

func TestLogoutIgnoresUnknownTokens(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	foreign, _, err := auth.NewTokenCodec("someone-else", time.Hour).Issue(&domain.User{ID: "u1", Role: domain.RoleUser})
	require.NoError(t, err)

	for _, token := range []string{"", "garbage", foreign} {
		assert.False(t, f.svc.Logout(ctx, token))
	}
	assert.Zero(t, f.revocations.(*auth.MemoryRevocationStore).Len())
	assert.Empty(t, f.events.ofType(events.EventUserLoggedOut))
}

func TestLogoutSwallowsStoreErrors(t *testing.T) {
	f := newFixture(t, brokenStore{})
	ctx := context.Background()
	res, err := f.svc.Register(ctx, ann())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		assert.False(t, f.svc.Logout(ctx, res.Token))
	})

	logged := f.events.ofType(events.EventUserLoggedOut)
	require.Len(t, logged, 1)
	assert.Equal(t, events.LoggedOutPayload{Revoked: false}, logged[0].Payload)
}

func TestMe(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res, err := f.svc.Register(ctx, ann())
	require.NoError(t, err)

	user, err := f.svc.Me(ctx, principalOf(res))
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", user.Email)

	_, err = f.svc.Me(ctx, &auth.Principal{ID: "missing", Role: domain.RoleUser})
	requireStatus(t, err, http.StatusUnauthorized)

	_, err = f.svc.Me(ctx, nil)
	requireStatus(t, err, http.StatusUnauthorized)
}

func TestDeleteProfileCascades(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res, err := f.svc.Register(ctx, ann())
	require.NoError(t, err)
	other, err := f.svc.Register(ctx, RegisterInput{FirstName: "Bob", Email: "b@x.com", Password: "longpass2"})
	require.NoError(t, err)

	f.store.AddSubmission(res.User.ID, "p1")
	f.store.AddSubmission(res.User.ID, "p2")
	f.store.AddSubmission(other.User.ID, "p1")

	require.NoError(t, f.svc.DeleteProfile(ctx, principalOf(res)))

	assert.Zero(t, f.store.CountSubmissions(res.User.ID))
	assert.Equal(t, 1, f.store.CountSubmissions(other.User.ID))
	_, err = f.store.Users().GetByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	revoked, err := f.revocations.IsRevoked(ctx, res.Token)
	require.NoError(t, err)
	assert.True(t, revoked)

	deleted := f.events.ofType(events.EventUserDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, events.UserDeletedPayload{SubmissionsDeleted: 2}, deleted[0].Payload)

	_, err = f.svc.Login(ctx, "a@x.com", "longpass1")
	requireStatus(t, err, http.StatusUnauthorized)
}

func TestDeleteProfileRollsBackOnFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res, err := f.svc.Register(ctx, ann())
	require.NoError(t, err)
	f.store.AddSubmission(res.User.ID, "p1")

	f.store.FailNextDelete = errors.New("disk full")
	err = f.svc.DeleteProfile(ctx, principalOf(res))
	requireStatus(t, err, http.StatusInternalServerError)

	assert.Equal(t, 1, f.store.CountSubmissions(res.User.ID))
	_, err = f.store.Users().GetByID(ctx, res.User.ID)
	assert.NoError(t, err)

	revoked, err := f.revocations.IsRevoked(ctx, res.Token)
	require.NoError(t, err)
	assert.False(t, revoked)
	assert.Empty(t, f.events.ofType(events.EventUserDeleted))
}

func TestDeleteProfileUnknownUser(t *testing.T) {
	f := newFixture(t, nil)
	err := f.svc.DeleteProfile(context.Background(), &auth.Principal{ID: "gone", Role: domain.RoleUser})
	requireStatus(t, err, http.StatusNotFound)

	err = f.svc.DeleteProfile(context.Background(), nil)
	requireStatus(t, err, http.StatusUnauthorized)
}

func TestRegisterAdminRequiresAdmin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user, err := f.svc.Register(ctx, ann())
	require.NoError(t, err)
	_, err = f.svc.EnsureBootstrapAdmin(ctx, RegisterInput{FirstName: "admin", Email: "boot@x.com", Password: "bootstrap-pass"})
	require.NoError(t, err)
	boot, err := f.svc.Login(ctx, "boot@x.com", "bootstrap-pass")
	require.NoError(t, err)

	in := RegisterInput{FirstName: "Root", Email: "root@x.com", Password: "longpass3"}

	_, err = f.svc.RegisterAdmin(ctx, principalOf(user), in)
	requireStatus(t, err, http.StatusForbidden)

	_, err = f.svc.RegisterAdmin(ctx, nil, in)
	requireStatus(t, err, http.StatusUnauthorized)

	admin, err := f.svc.RegisterAdmin(ctx, principalOf(boot), in)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)

	registered := f.events.ofType(events.EventAdminRegistered)
	require.Len(t, registered, 2)
	assert.Equal(t, boot.User.ID, registered[1].Actor.UserID)
}

func TestRegisterAdminRejectsStaleAdminClaims(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	in := RegisterInput{FirstName: "Root", Email: "root@x.com", Password: "longpass3"}

	// Admin claims for an account that no longer exists.
	_, err := f.svc.RegisterAdmin(ctx, &auth.Principal{ID: "deleted-admin", Role: domain.RoleAdmin}, in)
	requireStatus(t, err, http.StatusUnauthorized)

	// Admin claims for an account stored as a plain user.
	user, err := f.svc.Register(ctx, ann())
	require.NoError(t, err)
	forged := principalOf(user)
	forged.Role = domain.RoleAdmin
	_, err = f.svc.RegisterAdmin(ctx, forged, in)
	requireStatus(t, err, http.StatusForbidden)

	_, err = f.store.Users().GetByEmail(ctx, "root@x.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEnsureBootstrapAdmin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	in := RegisterInput{FirstName: "admin", Email: "Admin@X.com", Password: "bootstrap-pass"}

	created, err := f.svc.EnsureBootstrapAdmin(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.svc.EnsureBootstrapAdmin(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)

	res, err := f.svc.Login(ctx, "admin@x.com", "bootstrap-pass")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, res.User.Role)

	_, err = f.svc.EnsureBootstrapAdmin(ctx, RegisterInput{FirstName: "admin", Email: "nope", Password: "bootstrap-pass"})
	requireStatus(t, err, http.StatusBadRequest)
}
