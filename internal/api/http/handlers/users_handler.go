package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-service/internal/api/dto"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/service"
	apperrors "github.com/spec-kit/auth-service/pkg/util/errorutil"
)

// UsersHandler exposes the session endpoints.
type UsersHandler struct {
	auth    *service.AuthService
	cookies *auth.CookieTransport
	gate    *auth.AuthGate
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService, cookies *auth.CookieTransport, gate *auth.AuthGate) *UsersHandler {
	return &UsersHandler{auth: authService, cookies: cookies, gate: gate}
}

// Register handles POST /user/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		FirstName: req.FirstName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		return err
	}

	h.cookies.Set(c, result.Token, result.Session)
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"user":    dto.NewUserResponse(result.User),
		"auth":    dto.AuthResponse{Token: result.Token, ExpiresAt: result.Session.ExpiresAt},
		"message": "Registered successfully",
	})
}

// Login handles POST /user/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.UserLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	h.cookies.Set(c, result.Token, result.Session)
	return c.JSON(fiber.Map{
		"user":    dto.NewUserResponse(result.User),
		"auth":    dto.AuthResponse{Token: result.Token, ExpiresAt: result.Session.ExpiresAt},
		"message": "Login successful",
	})
}

// Logout handles POST /user/logout. It always clears the cookie and answers 200.
func (h *UsersHandler) Logout(c *fiber.Ctx) error {
	h.auth.Logout(c.UserContext(), h.gate.ExtractToken(c))
	h.cookies.Clear(c)
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

// Me handles GET /user/me and GET /user/check.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	user, err := h.auth.Me(c.UserContext(), principal)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user": dto.NewUserResponse(user)})
}

// DeleteProfile handles DELETE /user/deleteProfile.
func (h *UsersHandler) DeleteProfile(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	if err := h.auth.DeleteProfile(c.UserContext(), principal); err != nil {
		return err
	}
	h.cookies.Clear(c)
	return c.JSON(fiber.Map{"message": "Deleted successfully"})
}

// RegisterAdmin handles POST /user/admin/register.
func (h *UsersHandler) RegisterAdmin(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	principal, _ := auth.PrincipalFromContext(c)
	user, err := h.auth.RegisterAdmin(c.UserContext(), principal, service.RegisterInput{
		FirstName: req.FirstName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"user":    dto.NewUserResponse(user),
		"message": "Admin registered successfully",
	})
}
