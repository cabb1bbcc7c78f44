package tenancy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleettrack/backend/internal/apperr"
	"github.com/fleettrack/backend/internal/models"
)

func member(role models.Role, org *uuid.UUID) *models.Identity {
	return &models.Identity{SubjectID: uuid.New(), Email: "x@example.com", Role: role, OrganizationID: org}
}

func TestResolve(t *testing.T) {
	own := uuid.New()
	other := uuid.New()

	t.Run("super admin without override is unrestricted", func(t *testing.T) {
		f, err := Resolve(member(models.RoleSuperAdmin, nil), nil)
		require.NoError(t, err)
		assert.True(t, f.Unrestricted())
		assert.True(t, f.Allows(other))
	})

	t.Run("super admin override wins over own organization", func(t *testing.T) {
		f, err := Resolve(member(models.RoleSuperAdmin, &own), &other)
		require.NoError(t, err)
		require.NotNil(t, f.OrganizationID)
		assert.Equal(t, other, *f.OrganizationID)
		assert.False(t, f.Allows(own))
	})

	for _, role := range []models.Role{models.RoleAdmin, models.RoleUser} {
		t.Run(string(role)+" override is ignored", func(t *testing.T) {
			f, err := Resolve(member(role, &own), &other)
			require.NoError(t, err)
			require.NotNil(t, f.OrganizationID)
			assert.Equal(t, own, *f.OrganizationID)

			f, err = Resolve(member(role, &own), nil)
			require.NoError(t, err)
			assert.Equal(t, own, *f.OrganizationID)
		})

		t.Run(string(role)+" without organization", func(t *testing.T) {
			_, err := Resolve(member(role, nil), nil)
			assert.True(t, apperr.Is(err, apperr.CodeNoOrganization))
		})
	}

	t.Run("no identity", func(t *testing.T) {
		_, err := Resolve(nil, nil)
		assert.True(t, apperr.Is(err, apperr.CodeAuthenticationRequired))
	})
}

func TestCheckAccess(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	assert.NoError(t, CheckAccess(member(models.RoleAdmin, &a), a))
	assert.True(t, apperr.Is(CheckAccess(member(models.RoleAdmin, &a), b), apperr.CodeCrossTenantAccessDenied))
	assert.True(t, apperr.Is(CheckAccess(member(models.RoleUser, &a), b), apperr.CodeCrossTenantAccessDenied))
	assert.NoError(t, CheckAccess(member(models.RoleSuperAdmin, nil), b))
	assert.NoError(t, CheckAccess(member(models.RoleSuperAdmin, &a), b))
}

func TestTarget(t *testing.T) {
	own := uuid.New()
	other := uuid.New()

	got, err := Target(member(models.RoleAdmin, &own), &other)
	require.NoError(t, err)
	assert.Equal(t, own, got)

	got, err = Target(member(models.RoleSuperAdmin, nil), &other)
	require.NoError(t, err)
	assert.Equal(t, other, got)

	got, err = Target(member(models.RoleSuperAdmin, &own), nil)
	require.NoError(t, err)
	assert.Equal(t, own, got)

	_, err = Target(member(models.RoleSuperAdmin, nil), nil)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))
}

func TestParseOverride(t *testing.T) {
	id := uuid.New()

	got, err := ParseOverride(" " + id.String())
	require.NoError(t, err)
	assert.Equal(t, id, *got)

	got, err = ParseOverride("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseOverride("alpine")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))
}
