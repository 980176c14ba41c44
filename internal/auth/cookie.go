package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/domain"
)

// CookieTransport moves session tokens in and out of an HttpOnly cookie.
type CookieTransport struct {
	name     string
	domain   string
	path     string
	secure   bool
	sameSite string
}

// NewCookieTransport builds a transport. SameSite=None always implies Secure.
func NewCookieTransport(cfg config.CookieConfig) *CookieTransport {
	name := cfg.Name
	if name == "" {
		name = "token"
	}
	path := cfg.Path
	if path == "" {
		path = "/"
	}

	t := &CookieTransport{name: name, domain: cfg.Domain, path: path, secure: cfg.Secure}
	switch strings.ToLower(cfg.SameSite) {
	case fiber.CookieSameSiteNoneMode:
		t.sameSite = fiber.CookieSameSiteNoneMode
		t.secure = true
	case fiber.CookieSameSiteStrictMode:
		t.sameSite = fiber.CookieSameSiteStrictMode
	default:
		t.sameSite = fiber.CookieSameSiteLaxMode
	}
	return t
}

// Name returns the cookie name.
func (t *CookieTransport) Name() string {
	return t.name
}

// Set writes the token cookie; its lifetime matches the token's.
func (t *CookieTransport) Set(c *fiber.Ctx, token string, session domain.Session) {
	c.Cookie(&fiber.Cookie{
		Name:     t.name,
		Value:    token,
		Path:     t.path,
		Domain:   t.domain,
		MaxAge:   int(session.Lifetime() / time.Second),
		Expires:  session.ExpiresAt,
		Secure:   t.secure,
		HTTPOnly: true,
		SameSite: t.sameSite,
	})
}

// Read returns the token cookie value, or "" when absent.
func (t *CookieTransport) Read(c *fiber.Ctx) string {
	return c.Cookies(t.name)
}

// Clear overwrites the cookie with an already expired one so the client drops it.
func (t *CookieTransport) Clear(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     t.name,
		Value:    "",
		Path:     t.path,
		Domain:   t.domain,
		Expires:  time.Unix(0, 0),
		Secure:   t.secure,
		HTTPOnly: true,
		SameSite: t.sameSite,
	})
}
