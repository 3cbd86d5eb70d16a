package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ecoguard/internal/api/dto"
	"github.com/spec-kit/ecoguard/internal/auth"
	"github.com/spec-kit/ecoguard/internal/config"
	"github.com/spec-kit/ecoguard/internal/service"
	apperrors "github.com/spec-kit/ecoguard/pkg/util/errorutil"
)

// UsersHandler exposes the session endpoints.
type UsersHandler struct {
	auth    *service.AuthService
	session config.SessionConfig
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService, session config.SessionConfig) *UsersHandler {
	return &UsersHandler{auth: authService, session: session}
}

// Register handles POST /api/auth/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	session, err := h.auth.Register(c.UserContext(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	h.setCookie(c, session.Token, session.ExpiresAt)

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"user": dto.NewUserResponse(session.User),
			"auth": dto.AuthResponse{Token: session.Token, ExpiresAt: session.ExpiresAt},
		},
	})
}

// Login handles POST /api/auth/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.UserLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	session, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	h.setCookie(c, session.Token, session.ExpiresAt)

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user": dto.NewUserResponse(session.User),
			"auth": dto.AuthResponse{Token: session.Token, ExpiresAt: session.ExpiresAt},
		},
	})
}

// Logout handles POST /api/auth/logout.
func (h *UsersHandler) Logout(c *fiber.Ctx) error {
	_ = h.auth.Logout(c.UserContext(), c.Cookies(h.session.CookieName))
	c.Cookie(&fiber.Cookie{
		Name:     h.session.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   h.session.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.SendStatus(http.StatusNoContent)
}

// Me handles GET /api/auth/me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(principal.User)})
}

func (h *UsersHandler) setCookie(c *fiber.Ctx, token string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     h.session.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   h.session.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
