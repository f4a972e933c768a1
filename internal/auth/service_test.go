package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/users"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/security"
)

func buildTestService(t *testing.T) (Service, *users.Repository, config.JWTConfig) {
	t.Helper()
	client := dbtest.Open(t)
	repo := users.NewRepository(client.DB())
	jwtCfg := config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 30}
	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		JWTConfig:      jwtCfg,
		PasswordConfig: config.PasswordConfig{ArgonMemoryKB: 8 * 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32},
	})
	require.NoError(t, err)
	return svc, repo, jwtCfg
}

func TestRegisterIssuesCustomerToken(t *testing.T) {
	svc, _, jwtCfg := buildTestService(t)

	resp, err := svc.Register(context.Background(), RegisterRequest{
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     "Grace@Example.com",
		Password:  "cobol1",
	})
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", resp.User.Email)
	assert.Equal(t, enums.RoleCustomer, resp.User.Role)

	claims, err := pkgAuth.ParseAccessToken(jwtCfg, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
	assert.Equal(t, enums.RoleCustomer, claims.Role)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := buildTestService(t)
	req := RegisterRequest{FirstName: "A", LastName: "B", Email: "dup@example.com", Password: "secret1"}
	_, err := svc.Register(context.Background(), req)
	require.NoError(t, err)

	req.Email = "DUP@example.com"
	_, err = svc.Register(context.Background(), req)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDuplicate, typed.Code())
	assert.Equal(t, map[string]string{"field": "email"}, typed.Details())
}

func TestRegisterShortPassword(t *testing.T) {
	svc, _, _ := buildTestService(t)
	_, err := svc.Register(context.Background(), RegisterRequest{FirstName: "A", LastName: "B", Email: "a@b.co", Password: "123"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestLoginRecordsLastLogin(t *testing.T) {
	svc, repo, _ := buildTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterRequest{FirstName: "A", LastName: "B", Email: "login@example.com", Password: "secret1"})
	require.NoError(t, err)

	resp, err := svc.Login(ctx, LoginRequest{Email: "LOGIN@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	stored, err := repo.FindByEmail(ctx, "login@example.com")
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestLoginRejectsBadCredentialsAndInactiveUsers(t *testing.T) {
	svc, repo, _ := buildTestService(t)
	ctx := context.Background()
	registered, err := svc.Register(ctx, RegisterRequest{FirstName: "A", LastName: "B", Email: "x@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginRequest{Email: "x@example.com", Password: "wrong!"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))

	_, err = svc.Login(ctx, LoginRequest{Email: "missing@example.com", Password: "secret1"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))

	require.NoError(t, repo.Update(ctx, registered.User.ID, map[string]any{"is_active": false}))
	_, err = svc.Login(ctx, LoginRequest{Email: "x@example.com", Password: "secret1"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))
}

func TestLoginUpgradesOutdatedHash(t *testing.T) {
	svc, repo, jwtCfg := buildTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterRequest{FirstName: "A", LastName: "B", Email: "cost@example.com", Password: "secret1"})
	require.NoError(t, err)
	before, err := repo.FindByEmail(ctx, "cost@example.com")
	require.NoError(t, err)

	stronger := config.PasswordConfig{ArgonMemoryKB: 8 * 1024, ArgonTime: 2, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
	upgraded, err := NewService(ServiceParams{UserRepo: repo, JWTConfig: jwtCfg, PasswordConfig: stronger})
	require.NoError(t, err)
	_, err = upgraded.Login(ctx, LoginRequest{Email: "cost@example.com", Password: "secret1"})
	require.NoError(t, err)

	after, err := repo.FindByEmail(ctx, "cost@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, before.PasswordHash, after.PasswordHash)
	assert.False(t, security.NeedsRehash(after.PasswordHash, stronger))

	_, err = upgraded.Login(ctx, LoginRequest{Email: "cost@example.com", Password: "secret1"})
	require.NoError(t, err, "the upgraded hash still verifies")
}
