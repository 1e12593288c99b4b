package identity_test

import (
	"context"
	"testing"

	"dds-registration/internal/database/dbtest"
	"dds-registration/internal/identity"
	"dds-registration/internal/logger"
	"dds-registration/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*identity.Service, *dbtest.Fixtures) {
	repo, _ := dbtest.New(t)
	svc := &identity.Service{
		Repo:        repo,
		Logger:      logger.NewNopLogger(),
		StaffEmails: []string{"Admin@Example.org"},
	}
	return svc, &dbtest.Fixtures{T: t, Repo: repo}
}

func TestEnsureUserCreatesOnce(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, err := svc.EnsureUser(ctx, identity.Claims{Email: " Ada@Example.org ", FirstName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.org", first.Email)
	assert.Equal(t, "ada@example.org", first.Username())
	assert.False(t, first.IsStaff)

	again, err := svc.EnsureUser(ctx, identity.Claims{Email: "ADA@example.org"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Ada", again.FirstName)

	_, err = svc.EnsureUser(ctx, identity.Claims{Email: "nope"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestEnsureUserPromotesStaff(t *testing.T) {
	svc, fx := newService(t)
	ctx := context.Background()

	admin, err := svc.EnsureUser(ctx, identity.Claims{Email: "admin@example.org"})
	require.NoError(t, err)
	assert.True(t, admin.IsStaff)

	existing := fx.User()
	svc.StaffEmails = append(svc.StaffEmails, existing.Email)
	promoted, err := svc.EnsureUser(ctx, identity.Claims{Email: existing.Email})
	require.NoError(t, err)
	assert.True(t, promoted.IsStaff)
}

func TestUpdateProfileChangesEmail(t *testing.T) {
	svc, fx := newService(t)
	ctx := context.Background()
	user := fx.User()
	other := fx.User()

	email := "New@Example.org"
	first := "Grace"
	updated, err := svc.UpdateProfile(ctx, user, identity.ProfileUpdate{Email: &email, FirstName: &first})
	require.NoError(t, err)
	assert.Equal(t, "new@example.org", updated.Email)
	assert.Equal(t, "new@example.org", updated.Username())
	assert.Equal(t, "Grace", updated.FirstName)
	assert.Equal(t, user.LastName, updated.LastName)

	stored, err := svc.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@example.org", stored.Email)

	taken := other.Email
	_, err = svc.UpdateProfile(ctx, updated, identity.ProfileUpdate{Email: &taken})
	assert.ErrorIs(t, err, models.ErrDuplicateEmail)

	bad := "not-an-email"
	_, err = svc.UpdateProfile(ctx, updated, identity.ProfileUpdate{Email: &bad})
	assert.ErrorIs(t, err, models.ErrValidation)
}
