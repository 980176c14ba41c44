package http

import (
	nethttp "net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/auth-service/internal/api/http/handlers"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health      *handlers.HealthHandler
	Users       *handlers.UsersHandler
	AuthGate    *auth.AuthGate
	RateLimiter *ClientRateLimiter
	Metrics     nethttp.Handler
}

// RegisterRoutes wires HTTP routes. Every protected route shares cfg.AuthGate.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	if cfg.Health != nil {
		app.Get("/health/live", cfg.Health.Live)
		app.Get("/health/ready", cfg.Health.Ready)
	}
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	gate := cfg.AuthGate.Handle
	throttle := cfg.RateLimiter.Handler()

	users := app.Group("/user")
	users.Post("/register", throttle, cfg.Users.Register)
	users.Post("/login", throttle, cfg.Users.Login)
	users.Post("/logout", cfg.Users.Logout)

	users.Get("/me", gate, cfg.Users.Me)
	users.Get("/check", gate, cfg.Users.Me)
	users.Delete("/deleteProfile", gate, cfg.Users.DeleteProfile)
	users.Post("/admin/register", gate, auth.RequireRole(domain.RoleAdmin), cfg.Users.RegisterAdmin)
}
