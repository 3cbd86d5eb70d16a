package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ecoguard/internal/auth"
	"github.com/spec-kit/ecoguard/internal/config"
	"github.com/spec-kit/ecoguard/internal/domain"
	"github.com/spec-kit/ecoguard/internal/repository"
	apperrors "github.com/spec-kit/ecoguard/pkg/util/errorutil"
)

const minPasswordLength = 8

// Session is an issued session token.
type Session struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// AuthService coordinates registration and login flows.
type AuthService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo repository.UserRepository
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	return &AuthService{
		users:      deps.UserRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// Register creates a client account and signs it in.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*Session, error) {
	user, err := s.createUser(ctx, name, email, password, domain.RoleClient)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// CreateAdministrator provisions an administrator account. It is only
// reachable from the command line.
func (s *AuthService) CreateAdministrator(ctx context.Context, name, email, password string) (*domain.User, error) {
	return s.createUser(ctx, name, email, password, domain.RoleAdministrator)
}

// Login authenticates a user by email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	return s.issue(user)
}

// Logout is a no-op for stateless tokens; the handler clears the cookie.
func (s *AuthService) Logout(_ context.Context, _ string) error {
	return nil
}

// Me returns the user behind an id resolved by the auth middleware.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, err
	}
	return user, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) createUser(ctx context.Context, name, email, password string, role domain.Role) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	details := map[string]any{}
	if name == "" {
		details["name"] = "required"
	}
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		details["email"] = "invalid"
	}
	if len(password) < minPasswordLength {
		details["password"] = "too short"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid registration", details)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) issue(user *domain.User) (*Session, error) {
	token, exp, err := s.tokenMgr.GenerateToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token, ExpiresAt: exp}, nil
}
