package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/observability"
	"github.com/spec-kit/auth-service/internal/repository"
	apperrors "github.com/spec-kit/auth-service/pkg/util/errorutil"
)

// Same message for unknown email and wrong password.
const invalidCredentialsMessage = "invalid credentials"

// AuthResult is returned by flows that start a session.
type AuthResult struct {
	User    *domain.User
	Token   string
	Session domain.Session
}

// AuthService coordinates registration, login, logout and account removal.
type AuthService struct {
	users       repository.UserRepository
	submissions repository.SubmissionRepository
	tx          repository.TxManager
	revocations auth.RevocationStore
	tokens      *auth.TokenCodec
	hasher      *auth.PasswordHasher
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo       repository.UserRepository
	SubmissionRepo repository.SubmissionRepository
	TxManager      repository.TxManager
	Revocations    auth.RevocationStore
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	// Tokens overrides the codec built from config.
	Tokens *auth.TokenCodec
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	tokens := deps.Tokens
	if tokens == nil {
		tokens = auth.NewTokenCodec(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL(), auth.WithClockSkew(cfg.Auth.ClockSkew))
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:       deps.UserRepo,
		submissions: deps.SubmissionRepo,
		tx:          deps.TxManager,
		revocations: deps.Revocations,
		tokens:      tokens,
		hasher:      auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		metrics:     deps.Metrics,
	}
}

// Tokens exposes the token codec for middleware usage.
func (s *AuthService) Tokens() *auth.TokenCodec {
	return s.tokens
}

// Register creates a user-role account and starts a session for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	user, err := s.createUser(ctx, in, domain.RoleUser)
	if err != nil {
		return nil, err
	}

	result, err := s.startSession(user)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventUserRegistered, user.ID, events.Actor{UserID: user.ID, Role: user.Role}, nil)
	return result, nil
}

// RegisterAdmin lets an admin create another admin. No session is started for the new account.
func (s *AuthService) RegisterAdmin(ctx context.Context, actor *auth.Principal, in RegisterInput) (*domain.User, error) {
	if err := auth.CheckRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	// Claims can outlive the account; the actor must still be a stored admin.
	stored, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthorized("user not found")
		}
		return nil, apperrors.MapError(err)
	}
	if err := auth.CheckRole(&auth.Principal{ID: stored.ID, Role: stored.Role}, domain.RoleAdmin); err != nil {
		return nil, err
	}

	user, err := s.createUser(ctx, in, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventAdminRegistered, user.ID, events.Actor{UserID: actor.ID, Role: actor.Role}, nil)
	return user, nil
}

// EnsureBootstrapAdmin creates the configured admin unless the email is already registered.
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context, in RegisterInput) (bool, error) {
	user, err := s.createUser(ctx, in, domain.RoleAdmin)
	if err != nil {
		var de *apperrors.DomainError
		if errors.As(err, &de) && de.Code == "CONFLICT" {
			return false, nil
		}
		return false, err
	}
	s.publish(ctx, events.EventAdminRegistered, user.ID, events.Actor{}, nil)
	return true, nil
}

// Login authenticates a principal by email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = domain.NormalizeEmail(email)
	// bcrypt ignores bytes past the limit, so longer inputs could never have been registered.
	if email == "" || password == "" || len(password) > auth.MaxPasswordBytes {
		s.metrics.RecordLogin(false)
		return nil, apperrors.NewUnauthorized(invalidCredentialsMessage)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.CompareDummy(password)
			s.metrics.RecordLogin(false)
			return nil, apperrors.NewUnauthorized(invalidCredentialsMessage)
		}
		return nil, apperrors.MapError(err)
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.metrics.RecordLogin(false)
		return nil, apperrors.NewUnauthorized(invalidCredentialsMessage)
	}

	result, err := s.startSession(user)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordLogin(true)
	s.publish(ctx, events.EventUserLoggedIn, user.ID, events.Actor{UserID: user.ID, Role: user.Role}, nil)
	return result, nil
}

// Logout revokes token until its natural expiry. It never fails: tokens this service
// did not sign are ignored, and store errors are logged and swallowed.
// It reports whether the token is now unusable server-side.
func (s *AuthService) Logout(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	session, err := s.tokens.Decode(token)
	if err != nil {
		return false
	}

	revoked := true
	if err := s.revocations.MarkRevoked(ctx, token, session.ExpiresAt); err != nil {
		revoked = false
		s.metrics.RecordRevocationError("mark_revoked")
		s.logger.Warn("revocation write failed during logout", zap.String("user_id", session.SubjectID), zap.Error(err))
	}

	s.publish(ctx, events.EventUserLoggedOut, session.SubjectID,
		events.Actor{UserID: session.SubjectID, Role: session.Role},
		events.LoggedOutPayload{Revoked: revoked})
	return revoked
}

// Me loads the principal record behind a verified session.
func (s *AuthService) Me(ctx context.Context, principal *auth.Principal) (*domain.User, error) {
	if principal == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	user, err := s.users.GetByID(ctx, principal.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthorized("user not found")
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// DeleteProfile removes the caller's submissions, then the caller, in one transaction,
// and finally revokes the caller's current token.
func (s *AuthService) DeleteProfile(ctx context.Context, principal *auth.Principal) error {
	if principal == nil {
		return apperrors.NewUnauthorized("authentication required")
	}

	var removed int64
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		n, err := s.submissions.DeleteByUser(ctx, principal.ID)
		if err != nil {
			return err
		}
		removed = n
		return s.users.Delete(ctx, principal.ID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("user", nil)
		}
		return apperrors.MapError(err)
	}

	s.publish(ctx, events.EventUserDeleted, principal.ID,
		events.Actor{UserID: principal.ID, Role: principal.Role},
		events.UserDeletedPayload{SubmissionsDeleted: removed})
	s.Logout(ctx, principal.Token)
	return nil
}

func (s *AuthService) createUser(ctx context.Context, in RegisterInput, role domain.Role) (*domain.User, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, emailTaken(in.Email)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.MapError(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		FirstName:    in.FirstName,
		Email:        in.Email,
		Role:         role,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, emailTaken(in.Email)
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

func (s *AuthService) startSession(user *domain.User) (*AuthResult, error) {
	token, session, err := s.tokens.Issue(user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &AuthResult{User: user, Token: token, Session: session}, nil
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, subjectID string, actor events.Actor, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SubjectID: subjectID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

func emailTaken(email string) error {
	return apperrors.NewConflict("email already registered", map[string]any{"emailId": email})
}
