package invites

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleettrack/backend/internal/apperr"
	"github.com/fleettrack/backend/internal/auth"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/internal/testutil"
	"github.com/fleettrack/backend/pkg/queue"
)

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []queue.InviteEmailPayload
	err  error
}

func (n *recordingNotifier) EnqueueInviteEmail(_ context.Context, p queue.InviteEmailPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, p)
	return n.err
}

type serviceFixture struct {
	store    *testutil.Store
	provider *testutil.Provider
	clock    *clock
	notifier *recordingNotifier
	svc      *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	store := testutil.NewStore()
	clk := newClock()
	store.SetClock(clk.Now)
	provider := testutil.NewProvider()
	accounts := auth.NewService(provider, store, auth.NewProvisioner(store, nil), store, nil)
	notifier := &recordingNotifier{}
	ledger := NewLedger(store, store, 0, nil, WithClock(clk.Now))
	return &serviceFixture{
		store:    store,
		provider: provider,
		clock:    clk,
		notifier: notifier,
		svc:      NewService(ledger, accounts, notifier, "https://app.fleettrack.example/invite/", nil),
	}
}

func adminOf(p models.Profile) *models.Identity { return models.IdentityFor(&p) }

func TestAcceptInviteCreatesScopedProfile(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	org := f.store.AddOrganization("Alpine Ops", true)
	admin := adminOf(f.store.AddProfile("boss@alpine.example", models.RoleAdmin, &org.ID))

	inv, err := f.svc.Create(ctx, admin, nil, "tech@alpine.example", models.RoleAdmin, "de-CH")
	require.NoError(t, err)

	info, err := f.svc.Info(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, Info{Email: "tech@alpine.example", Role: models.RoleAdmin, OrganizationName: "Alpine Ops", ExpiresAt: inv.ExpiresAt}, *info)

	res, err := f.svc.Accept(ctx, AcceptInput{Token: inv.Token, Email: "Tech@Alpine.Example", Password: "secret1", FirstName: "Toni"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, res.Profile.Role)
	require.NotNil(t, res.Profile.OrganizationID)
	assert.Equal(t, org.ID, *res.Profile.OrganizationID)
	assert.Equal(t, "Toni", res.Profile.FirstName)
	assert.NotNil(t, res.Session)

	stored, err := f.store.GetInviteByToken(ctx, inv.Token)
	require.NoError(t, err)
	require.NotNil(t, stored.UsedBy)
	assert.Equal(t, res.Profile.ID, *stored.UsedBy)

	_, err = f.svc.Accept(ctx, AcceptInput{Token: inv.Token, Email: "tech@alpine.example", Password: "secret1"})
	assert.True(t, apperr.Is(err, apperr.CodeInviteAlreadyUsed))
}

func TestAcceptInviteEmailMismatch(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	org := f.store.AddOrganization("Alpine Ops", true)
	root := adminOf(f.store.AddProfile("root@example.com", models.RoleSuperAdmin, nil))

	inv, err := f.svc.Create(ctx, root, &org.ID, "tech@alpine.example", models.RoleUser, "")
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, AcceptInput{Token: inv.Token, Email: "someone@else.example", Password: "secret1"})
	assert.True(t, apperr.Is(err, apperr.CodeEmailMismatch))

	stored, err := f.store.GetInviteByToken(ctx, inv.Token)
	require.NoError(t, err)
	assert.Nil(t, stored.UsedAt)
}

func TestAcceptInviteExistingAccountLeavesInvitePending(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	org := f.store.AddOrganization("Alpine Ops", true)
	admin := adminOf(f.store.AddProfile("boss@alpine.example", models.RoleAdmin, &org.ID))
	f.store.AddProfile("tech@alpine.example", models.RoleUser, nil)

	inv, err := f.svc.Create(ctx, admin, nil, "tech@alpine.example", models.RoleUser, "")
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, AcceptInput{Token: inv.Token, Email: "tech@alpine.example", Password: "secret1"})
	assert.True(t, apperr.Is(err, apperr.CodeEmailAlreadyRegistered))

	_, err = f.svc.Info(ctx, inv.Token)
	assert.NoError(t, err)
}

// deletingRegistrar removes the invite right after the account exists, the way
// an administrator acting in that window would.
type deletingRegistrar struct {
	Registrar
	store    *testutil.Store
	inviteID uuid.UUID
}

func (r *deletingRegistrar) Register(ctx context.Context, email, password, firstName, lastName string, role models.Role, organizationID *uuid.UUID) (*auth.Result, error) {
	res, err := r.Registrar.Register(ctx, email, password, firstName, lastName, role, organizationID)
	if err != nil {
		return nil, err
	}
	if err := r.store.DeleteInvite(ctx, r.inviteID); err != nil {
		return nil, err
	}
	return res, nil
}

func TestAcceptReleasesProfileWhenRedeemFails(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	org := f.store.AddOrganization("Alpine Ops", true)
	admin := adminOf(f.store.AddProfile("boss@alpine.example", models.RoleAdmin, &org.ID))

	inv, err := f.svc.Create(ctx, admin, nil, "tech@alpine.example", models.RoleAdmin, "")
	require.NoError(t, err)

	registrar := &deletingRegistrar{Registrar: f.svc.registrar, store: f.store, inviteID: inv.ID}
	svc := NewService(f.svc.ledger, registrar, nil, "https://app.fleettrack.example/invite/", nil)
	_, err = svc.Accept(ctx, AcceptInput{Token: inv.Token, Email: "tech@alpine.example", Password: "secret1"})
	assert.True(t, apperr.Is(err, apperr.CodeInviteNotFound))

	p, err := f.store.GetProfileByEmail(ctx, "tech@alpine.example")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRole, p.Role)
	assert.Nil(t, p.OrganizationID)
}

func TestCreateTargetsCallerOrganization(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a := f.store.AddOrganization("A", true)
	b := f.store.AddOrganization("B", true)
	adminA := adminOf(f.store.AddProfile("admin@a.example", models.RoleAdmin, &a.ID))
	root := adminOf(f.store.AddProfile("root@example.com", models.RoleSuperAdmin, nil))
	lonely := adminOf(f.store.AddProfile("lonely@example.com", models.RoleAdmin, nil))

	inv, err := f.svc.Create(ctx, adminA, &b.ID, "x@example.com", models.RoleUser, "")
	require.NoError(t, err)
	assert.Equal(t, a.ID, inv.OrganizationID, "admins cannot redirect invites")

	inv, err = f.svc.Create(ctx, root, &b.ID, "x@example.com", models.RoleUser, "")
	require.NoError(t, err)
	assert.Equal(t, b.ID, inv.OrganizationID)

	_, err = f.svc.Create(ctx, root, nil, "y@example.com", models.RoleUser, "")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))

	_, err = f.svc.Create(ctx, lonely, nil, "y@example.com", models.RoleUser, "")
	assert.True(t, apperr.Is(err, apperr.CodeNoOrganization))
}

func TestOnlySuperAdminsInviteSuperAdmins(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	org := f.store.AddOrganization("Alpine Ops", true)
	admin := adminOf(f.store.AddProfile("boss@alpine.example", models.RoleAdmin, &org.ID))
	root := adminOf(f.store.AddProfile("root@example.com", models.RoleSuperAdmin, nil))

	_, err := f.svc.Create(ctx, admin, nil, "ops@alpine.example", models.RoleSuperAdmin, "")
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))

	inv, err := f.svc.Create(ctx, root, &org.ID, "ops@alpine.example", models.RoleSuperAdmin, "")
	require.NoError(t, err)
	res, err := f.svc.Accept(ctx, AcceptInput{Token: inv.Token, Email: "ops@alpine.example", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, res.Profile.Role)
}

func TestCreateQueuesDelivery(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	org := f.store.AddOrganization("Alpine Ops", true)
	admin := adminOf(f.store.AddProfile("boss@alpine.example", models.RoleAdmin, &org.ID))

	inv, err := f.svc.Create(ctx, admin, nil, "tech@alpine.example", models.RoleAdmin, "de-CH")
	require.NoError(t, err)
	require.Len(t, f.notifier.jobs, 1)
	job := f.notifier.jobs[0]
	assert.Equal(t, inv.ID, job.InviteID)
	assert.Equal(t, "Alpine Ops", job.OrganizationName)
	assert.Equal(t, "https://app.fleettrack.example/invite/"+inv.Token, job.AcceptURL)
	assert.Equal(t, "de-CH", job.Locale)

	f.notifier.err = errors.New("redis down")
	_, err = f.svc.Create(ctx, admin, nil, "other@alpine.example", models.RoleUser, "")
	assert.NoError(t, err, "delivery failures do not fail creation")
}

func TestListMasksTokensAndDerivesStatus(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a := f.store.AddOrganization("A", true)
	b := f.store.AddOrganization("B", true)
	adminA := adminOf(f.store.AddProfile("admin@a.example", models.RoleAdmin, &a.ID))
	root := adminOf(f.store.AddProfile("root@example.com", models.RoleSuperAdmin, nil))

	old, err := f.svc.Create(ctx, adminA, nil, "old@a.example", models.RoleUser, "")
	require.NoError(t, err)
	f.clock.Advance(8 * 24 * time.Hour)
	fresh, err := f.svc.Create(ctx, adminA, nil, "fresh@a.example", models.RoleUser, "")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.Create(ctx, root, &b.ID, "b@b.example", models.RoleUser, "")
	require.NoError(t, err)

	list, err := f.svc.List(ctx, adminA, &b.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, fresh.ID, list[0].ID, "newest first")
	assert.Equal(t, models.InviteStatusPending, list[0].Status)
	assert.Equal(t, old.ID, list[1].ID)
	assert.Equal(t, models.InviteStatusExpired, list[1].Status)
	for _, v := range list {
		assert.Empty(t, v.Token)
		assert.Len(t, v.TokenPrefix, 8)
	}
	assert.True(t, strings.HasPrefix(fresh.Token, list[0].TokenPrefix))

	all, err := f.svc.List(ctx, root, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDeleteChecksTenant(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a := f.store.AddOrganization("A", true)
	b := f.store.AddOrganization("B", true)
	adminA := adminOf(f.store.AddProfile("admin@a.example", models.RoleAdmin, &a.ID))
	root := adminOf(f.store.AddProfile("root@example.com", models.RoleSuperAdmin, nil))

	inv, err := f.svc.Create(ctx, root, &b.ID, "b@b.example", models.RoleUser, "")
	require.NoError(t, err)

	err = f.svc.Delete(ctx, adminA, inv.ID)
	assert.True(t, apperr.Is(err, apperr.CodeCrossTenantAccessDenied))

	require.NoError(t, f.svc.Delete(ctx, root, inv.ID))
	err = f.svc.Delete(ctx, root, inv.ID)
	assert.True(t, apperr.Is(err, apperr.CodeInviteNotFound))

	err = f.svc.Delete(ctx, adminA, uuid.New())
	assert.True(t, apperr.Is(err, apperr.CodeInviteNotFound))
}
