package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/observability"
	apperrors "github.com/spec-kit/auth-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	ID        string
	Email     string
	Role      domain.Role
	Token     string
	ExpiresAt time.Time
}

// AuthGate verifies session tokens and rejects revoked ones.
//
// Order is fixed: signature and expiry first, then the revocation lookup, so forged
// or expired tokens never reach the store. A single gate is shared by every protected
// route, which keeps the store failure policy uniform.
type AuthGate struct {
	tokens      *TokenCodec
	revocations RevocationStore
	cookies     *CookieTransport
	policy      config.FailPolicy
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// NewAuthGate constructs middleware.
func NewAuthGate(tokens *TokenCodec, revocations RevocationStore, cookies *CookieTransport, policy config.FailPolicy, logger *zap.Logger, metrics *observability.Metrics) *AuthGate {
	if policy != config.FailOpen {
		policy = config.FailClosed
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthGate{
		tokens:      tokens,
		revocations: revocations,
		cookies:     cookies,
		policy:      policy,
		logger:      logger,
		metrics:     metrics,
	}
}

// Policy returns the store failure policy in force.
func (g *AuthGate) Policy() config.FailPolicy {
	return g.policy
}

// Handle enforces authentication for protected routes.
func (g *AuthGate) Handle(c *fiber.Ctx) error {
	token, session, err := g.authenticate(c)
	if token == "" {
		g.metrics.RecordGateDecision(observability.GateNoToken)
		return apperrors.NewUnauthorized("missing token")
	}
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			g.metrics.RecordGateDecision(observability.GateExpired)
			return apperrors.NewUnauthorized("token expired")
		}
		g.metrics.RecordGateDecision(observability.GateMalformed)
		return apperrors.NewUnauthorized("invalid token")
	}

	revoked, err := g.revocations.IsRevoked(c.UserContext(), token)
	if err != nil {
		g.metrics.RecordRevocationError("is_revoked")
		if g.policy == config.FailClosed {
			g.metrics.RecordGateDecision(observability.GateStoreFailShut)
			g.logger.Error("revocation store unavailable; rejecting request", zap.Error(err))
			return apperrors.NewServiceUnavailable("session store unavailable", err)
		}
		g.metrics.RecordGateDecision(observability.GateStoreFailOpen)
		g.logger.Error("revocation store unavailable; accepting unverified session", zap.Error(err))
	} else if revoked {
		g.metrics.RecordGateDecision(observability.GateRevoked)
		return apperrors.NewUnauthorized("token revoked")
	} else {
		g.metrics.RecordGateDecision(observability.GateAccepted)
	}

	c.Locals(principalKey, &Principal{
		ID:        session.SubjectID,
		Email:     session.Email,
		Role:      session.Role,
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	})
	return c.Next()
}

// authenticate picks the cookie token when it verifies and otherwise the bearer token.
// A stale cookie therefore never shadows a valid Authorization header.
func (g *AuthGate) authenticate(c *fiber.Ctx) (string, domain.Session, error) {
	cookie, bearer := g.cookies.Read(c), bearerToken(c)
	if cookie != "" {
		session, err := g.tokens.Verify(cookie)
		if err == nil || bearer == "" {
			return cookie, session, err
		}
	}
	if bearer == "" {
		return "", domain.Session{}, nil
	}
	session, err := g.tokens.Verify(bearer)
	return bearer, session, err
}

// ExtractToken returns the token a request presents for logout: the cookie when it
// carries our signature, else the bearer header, else whatever the cookie holds.
func (g *AuthGate) ExtractToken(c *fiber.Ctx) string {
	cookie, bearer := g.cookies.Read(c), bearerToken(c)
	if cookie == "" {
		return bearer
	}
	if bearer == "" {
		return cookie
	}
	if _, err := g.tokens.Decode(cookie); err == nil {
		return cookie
	}
	return bearer
}

func bearerToken(c *fiber.Ctx) string {
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
