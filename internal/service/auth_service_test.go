package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ecoguard/internal/config"
	"github.com/spec-kit/ecoguard/internal/domain"
	"github.com/spec-kit/ecoguard/internal/repository/memory"
	"github.com/spec-kit/ecoguard/internal/workflow"
	apperrors "github.com/spec-kit/ecoguard/pkg/util/errorutil"
)

func newAuthService() *AuthService {
	cfg := config.Config{Auth: config.AuthConfig{JWTSecret: "test", AccessTokenTTLMinutes: 10, BcryptCost: 4}}
	return NewAuthService(cfg, AuthDependencies{UserRepo: memory.NewUserRepository()})
}

func TestRegisterCreatesClient(t *testing.T) {
	svc := newAuthService()
	ctx := context.Background()

	session, err := svc.Register(ctx, "Maria", "maria@empresa.test", "segredo123")
	require.NoError(t, err)
	require.Equal(t, domain.RoleClient, session.User.Role)
	require.NotEmpty(t, session.Token)

	claims, err := svc.TokenManager().ParseToken(session.Token)
	require.NoError(t, err)
	require.Equal(t, session.User.ID, claims.Subject)

	_, err = svc.Register(ctx, "Maria", "MARIA@empresa.test", "segredo123")
	var de *apperrors.DomainError
	require.ErrorAs(t, err, &de)
	require.Equal(t, apperrors.CodeConflict, de.Code)
}

func TestRegisterValidates(t *testing.T) {
	svc := newAuthService()
	_, err := svc.Register(context.Background(), "", "not-an-email", "short")
	require.ErrorIs(t, err, workflow.ErrValidation)

	var de *apperrors.DomainError
	require.ErrorAs(t, err, &de)
	require.Contains(t, de.Details, "name")
	require.Contains(t, de.Details, "email")
	require.Contains(t, de.Details, "password")
}

func TestLogin(t *testing.T) {
	svc := newAuthService()
	ctx := context.Background()
	admin, err := svc.CreateAdministrator(ctx, "Root", "admin@ecoguard.test", "admin-pass")
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdministrator, admin.Role)

	session, err := svc.Login(ctx, "admin@ecoguard.test", "admin-pass")
	require.NoError(t, err)
	require.Equal(t, admin.ID, session.User.ID)

	_, err = svc.Login(ctx, "admin@ecoguard.test", "wrong-pass")
	require.ErrorIs(t, err, apperrors.NewUnauthorized(""))

	_, err = svc.Login(ctx, "nobody@ecoguard.test", "admin-pass")
	require.ErrorIs(t, err, apperrors.NewUnauthorized(""))

	me, err := svc.Me(ctx, admin.ID)
	require.NoError(t, err)
	require.Equal(t, "Root", me.Name)
}
