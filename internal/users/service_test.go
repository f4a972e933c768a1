package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/security"
)

func testPasswordConfig() config.PasswordConfig {
	return config.PasswordConfig{ArgonMemoryKB: 8 * 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
}

func seedUser(t *testing.T, repo *Repository, password string) *models.User {
	t.Helper()
	hash, err := security.HashPassword(password, testPasswordConfig())
	require.NoError(t, err)
	user, err := repo.Create(context.Background(), CreateUserDTO{
		Email:        "  Ada@Example.COM ",
		PasswordHash: hash,
		FirstName:    "Ada",
		LastName:     "Lovelace",
	})
	require.NoError(t, err)
	return user
}

func TestRepositoryNormalizesEmail(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	user := seedUser(t, repo, "secret1")

	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, enums.RoleCustomer, user.Role)
	assert.True(t, user.IsActive)

	found, err := repo.FindByEmail(context.Background(), "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	exists, err := repo.EmailExists(context.Background(), "ada@EXAMPLE.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUpdateProfileChangesNamesAndPhone(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	user := seedUser(t, repo, "secret1")
	svc, err := NewService(repo, testPasswordConfig())
	require.NoError(t, err)

	first := "Augusta"
	phone := "+44 20 0000"
	dto, err := svc.UpdateProfile(context.Background(), user.ID, UpdateProfileInput{FirstName: &first, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "Augusta", dto.FirstName)
	require.NotNil(t, dto.Phone)

	stored, err := repo.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Augusta", stored.FirstName)
	assert.Equal(t, "Lovelace", stored.LastName)
}

func TestUpdateProfilePasswordRequiresCurrent(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	user := seedUser(t, repo, "secret1")
	svc, err := NewService(repo, testPasswordConfig())
	require.NoError(t, err)
	ctx := context.Background()

	next := "secret2"
	_, err = svc.UpdateProfile(ctx, user.ID, UpdateProfileInput{NewPassword: &next})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	wrong := "nope"
	_, err = svc.UpdateProfile(ctx, user.ID, UpdateProfileInput{NewPassword: &next, CurrentPassword: &wrong})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))

	current := "secret1"
	_, err = svc.UpdateProfile(ctx, user.ID, UpdateProfileInput{NewPassword: &next, CurrentPassword: &current})
	require.NoError(t, err)

	stored, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	ok, err := security.VerifyPassword("secret2", stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFindActive(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	user := seedUser(t, repo, "secret1")
	svc, err := NewService(repo, testPasswordConfig())
	require.NoError(t, err)
	ctx := context.Background()

	found, err := svc.FindActive(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	require.NoError(t, repo.Update(ctx, user.ID, map[string]any{"is_active": false}))
	_, err = svc.FindActive(ctx, user.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))

	_, err = svc.FindActive(ctx, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))
}
