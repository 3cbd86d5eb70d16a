package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ecoguard/internal/domain"
	"github.com/spec-kit/ecoguard/internal/repository"
	apperrors "github.com/spec-kit/ecoguard/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	User *domain.User
}

// Actor is the workflow identity of the principal.
func (p *Principal) Actor() domain.Actor {
	return domain.ActorOf(p.User)
}

// AuthMiddleware validates session tokens and loads principals.
type AuthMiddleware struct {
	tokens     *TokenManager
	users      repository.UserRepository
	cookieName string
}

// NewAuthMiddleware constructs middleware. Tokens are read from cookieName
// first, then from an Authorization: Bearer header.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users, cookieName: cookieName}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	raw, err := m.tokenFrom(c)
	if err != nil {
		return err
	}

	claims, err := m.tokens.ParseToken(raw)
	if err != nil {
		return apperrors.NewUnauthorized("invalid session")
	}

	user, err := m.users.GetByID(c.UserContext(), claims.Subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnauthorized("user not found")
		}
		return apperrors.MapError(err)
	}
	if !user.Role.Valid() {
		return apperrors.NewForbidden("unknown role")
	}

	c.Locals(principalKey, &Principal{User: user})
	return c.Next()
}

func (m *AuthMiddleware) tokenFrom(c *fiber.Ctx) (string, error) {
	if m.cookieName != "" {
		if v := c.Cookies(m.cookieName); v != "" {
			return v, nil
		}
	}

	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return "", apperrors.NewUnauthorized("missing session")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok && principal.User != nil
}
