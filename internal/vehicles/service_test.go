package vehicles

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleettrack/backend/internal/apperr"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/internal/testutil"
)

type fleet struct {
	store  *testutil.Store
	svc    *Service
	a, b   models.Organization
	adminA *models.Identity
	userB  *models.Identity
	root   *models.Identity
}

func newFleet(t *testing.T) *fleet {
	t.Helper()
	store := testutil.NewStore()
	a := store.AddOrganization("A", true)
	b := store.AddOrganization("B", true)
	return &fleet{
		store:  store,
		svc:    NewService(store, nil),
		a:      a,
		b:      b,
		adminA: &models.Identity{SubjectID: uuid.New(), Role: models.RoleAdmin, OrganizationID: &a.ID},
		userB:  &models.Identity{SubjectID: uuid.New(), Role: models.RoleUser, OrganizationID: &b.ID},
		root:   &models.Identity{SubjectID: uuid.New(), Role: models.RoleSuperAdmin},
	}
}

func ptr[T any](v T) *T { return &v }

func TestListIsScoped(t *testing.T) {
	f := newFleet(t)
	ctx := context.Background()
	f.store.AddVehicle("PistenBully A1", f.a.ID)
	f.store.AddVehicle("PistenBully A2", f.a.ID)
	f.store.AddVehicle("PistenBully B1", f.b.ID)

	list, err := f.svc.List(ctx, f.adminA, &f.b.ID)
	require.NoError(t, err)
	require.Len(t, list, 2, "the override is ignored for admins")
	for _, v := range list {
		assert.Equal(t, f.a.ID, v.OrganizationID)
	}

	list, err = f.svc.List(ctx, f.root, nil)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, err = f.svc.List(ctx, f.root, &f.b.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "PistenBully B1", list[0].Name)

	_, err = f.svc.List(ctx, &models.Identity{SubjectID: uuid.New(), Role: models.RoleUser}, nil)
	assert.True(t, apperr.Is(err, apperr.CodeNoOrganization))
}

func TestCrossTenantAccessIsDenied(t *testing.T) {
	f := newFleet(t)
	ctx := context.Background()
	vB := f.store.AddVehicle("PistenBully B1", f.b.ID)

	_, err := f.svc.Get(ctx, f.adminA, vB.ID)
	assert.True(t, apperr.Is(err, apperr.CodeCrossTenantAccessDenied))

	_, err = f.svc.Update(ctx, f.adminA, vB.ID, models.VehiclePatch{Name: ptr("mine now")})
	assert.True(t, apperr.Is(err, apperr.CodeCrossTenantAccessDenied))

	err = f.svc.Delete(ctx, f.adminA, vB.ID)
	assert.True(t, apperr.Is(err, apperr.CodeCrossTenantAccessDenied))

	got, err := f.svc.Get(ctx, f.userB, vB.ID)
	require.NoError(t, err)
	assert.Equal(t, "PistenBully B1", got.Name, "vehicle left untouched")

	got, err = f.svc.Get(ctx, f.root, vB.ID)
	require.NoError(t, err)
	assert.Equal(t, f.b.ID, got.OrganizationID)
}

func TestCreateTargetsCallerOrganization(t *testing.T) {
	f := newFleet(t)
	ctx := context.Background()
	in := models.Vehicle{Name: " Groomer ", Plate: "GR 1", OrganizationID: f.b.ID}

	v, err := f.svc.Create(ctx, f.adminA, &f.b.ID, in)
	require.NoError(t, err)
	assert.Equal(t, f.a.ID, v.OrganizationID)
	assert.Equal(t, "Groomer", v.Name)

	v, err = f.svc.Create(ctx, f.root, &f.b.ID, in)
	require.NoError(t, err)
	assert.Equal(t, f.b.ID, v.OrganizationID)

	_, err = f.svc.Create(ctx, f.root, nil, in)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))

	_, err = f.svc.Create(ctx, f.root, ptr(uuid.New()), in)
	assert.True(t, apperr.Is(err, apperr.CodeOrganizationNotFound))

	_, err = f.svc.Create(ctx, f.adminA, nil, models.Vehicle{Name: "x", Plate: "123456789012345678901"})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))
}

func TestUpdateAndDeleteOwnVehicle(t *testing.T) {
	f := newFleet(t)
	ctx := context.Background()
	v := f.store.AddVehicle("PistenBully A1", f.a.ID)

	got, err := f.svc.Update(ctx, f.adminA, v.ID, models.VehiclePatch{IsRetired: ptr(true), Notes: ptr("track damage")})
	require.NoError(t, err)
	assert.True(t, got.IsRetired)
	assert.Equal(t, "track damage", *got.Notes)

	_, err = f.svc.Update(ctx, f.adminA, v.ID, models.VehiclePatch{Plate: ptr(" ")})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))

	require.NoError(t, f.svc.Delete(ctx, f.adminA, v.ID))
	_, err = f.svc.Get(ctx, f.adminA, v.ID)
	assert.True(t, apperr.Is(err, apperr.CodeVehicleNotFound))
}

func TestStoreFailureIsUpstream(t *testing.T) {
	f := newFleet(t)
	f.store.Err = errors.New("connection refused")

	_, err := f.svc.List(context.Background(), f.adminA, nil)
	assert.True(t, apperr.Is(err, apperr.CodeUpstreamUnavailable))
}
