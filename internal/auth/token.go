package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/auth-service/internal/domain"
)

var (
	// ErrMalformedToken covers unparsable tokens, bad signatures and invalid claims.
	ErrMalformedToken = errors.New("malformed token")
	// ErrExpiredToken is returned for a correctly signed token at or past its expiry.
	ErrExpiredToken = errors.New("token expired")
)

// Claims describes the JWT payload.
type Claims struct {
	SubjectID string      `json:"_id"`
	Email     string      `json:"emailId"`
	Role      domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Session converts the claims to their domain form.
func (c *Claims) Session() domain.Session {
	s := domain.Session{SubjectID: c.SubjectID, Email: c.Email, Role: c.Role}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s
}

// DefaultClockSkew is how far in the future an iat may lie before a token is refused.
const DefaultClockSkew = 5 * time.Second

// TokenCodec issues and validates HS256 session tokens. It performs no I/O.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	skew   time.Duration
	now    func() time.Time
}

// TokenOption customizes a TokenCodec.
type TokenOption func(*TokenCodec)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(tc *TokenCodec) { tc.now = now }
}

// WithClockSkew tolerates replicas whose clocks run behind the issuer. It applies to iat only.
func WithClockSkew(skew time.Duration) TokenOption {
	return func(tc *TokenCodec) {
		if skew >= 0 {
			tc.skew = skew
		}
	}
}

// NewTokenCodec builds a codec signing with secret. Tokens live for ttl, defaulting to one hour.
func NewTokenCodec(secret string, ttl time.Duration, opts ...TokenOption) *TokenCodec {
	if ttl <= 0 {
		ttl = time.Hour
	}
	tc := &TokenCodec{secret: []byte(secret), ttl: ttl, skew: DefaultClockSkew, now: time.Now}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// TTL returns the lifetime of issued tokens.
func (tc *TokenCodec) TTL() time.Duration {
	return tc.ttl
}

// Issue builds and signs a token for user.
func (tc *TokenCodec) Issue(user *domain.User) (string, domain.Session, error) {
	issuedAt := tc.now().Truncate(time.Second)
	claims := &Claims{
		SubjectID: user.ID,
		Email:     user.Email,
		Role:      user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(tc.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tc.secret)
	if err != nil {
		return "", domain.Session{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenString, claims.Session(), nil
}

// Verify checks signature and expiry and returns the embedded session.
// It fails with ErrExpiredToken only when the signature is valid.
// exp is strict; iat may be up to the configured skew ahead of the local clock.
func (tc *TokenCodec) Verify(tokenStr string) (domain.Session, error) {
	claims, err := tc.parse(tokenStr, jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Session{}, ErrExpiredToken
		}
		return domain.Session{}, ErrMalformedToken
	}
	if claims.IssuedAt != nil && claims.IssuedAt.After(tc.now().Add(tc.skew)) {
		return domain.Session{}, ErrMalformedToken
	}
	return claims.Session(), nil
}

// Decode checks the signature but ignores time claims, so the logout path can
// recover the expiry of any token this service signed.
func (tc *TokenCodec) Decode(tokenStr string) (domain.Session, error) {
	claims, err := tc.parse(tokenStr, jwt.WithoutClaimsValidation())
	if err != nil || claims.ExpiresAt == nil {
		return domain.Session{}, ErrMalformedToken
	}
	return claims.Session(), nil
}

func (tc *TokenCodec) parse(tokenStr string, opts ...jwt.ParserOption) (*Claims, error) {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(tc.now),
	)

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return tc.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.SubjectID == "" || !claims.Role.Valid() {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
