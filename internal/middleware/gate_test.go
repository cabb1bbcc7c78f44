package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleettrack/backend/internal/apperr"
	"github.com/fleettrack/backend/internal/identity"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/internal/testutil"
	"github.com/fleettrack/backend/pkg/database"
	"github.com/fleettrack/backend/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type storeProvisioner struct{ store *testutil.Store }

func (s storeProvisioner) EnsureProfile(ctx context.Context, sub *identity.Subject) (*models.Profile, error) {
	p, err := s.store.GetProfile(ctx, sub.ID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, apperr.Upstream(err)
	}
	p, _, err = s.store.InsertProfileIfAbsent(ctx, &models.Profile{ID: sub.ID, Email: sub.Email, Role: models.DefaultRole})
	return p, err
}

type blockingVerifier struct{}

func (blockingVerifier) Verify(ctx context.Context, _ string) (*identity.Subject, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("GET /user: %w", ctx.Err())
}

type fixture struct {
	store    *testutil.Store
	provider *testutil.Provider
	router   *gin.Engine
}

func newFixture(t *testing.T, verifier identity.Verifier) *fixture {
	t.Helper()
	f := &fixture{store: testutil.NewStore(), provider: testutil.NewProvider()}
	if verifier == nil {
		verifier = f.provider
	}
	gate := NewGate(verifier, storeProvisioner{f.store}, GateConfig{VerifyTimeout: 50 * time.Millisecond, StoreTimeout: time.Second}, nil)

	echo := func(c *gin.Context) { response.OK(c, CurrentIdentity(c)) }
	r := gin.New()
	r.GET("/public", gate.Authenticate(Policy{Public: true}), echo)
	r.GET("/me", gate.Authenticate(Policy{}), echo)
	r.GET("/admin", gate.Authenticate(Policy{Roles: []models.Role{models.RoleAdmin, models.RoleSuperAdmin}}),
		RequireRole(models.RoleAdmin, models.RoleSuperAdmin), echo)
	f.router = r
	return f
}

type envelope struct {
	Success bool             `json:"success"`
	Data    *models.Identity `json:"data"`
	Error   string           `json:"error"`
	Code    apperr.Code      `json:"code"`
}

func (f *fixture) do(t *testing.T, path string, headers map[string]string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var body envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestPublicRouteSkipsAuthentication(t *testing.T) {
	f := newFixture(t, nil)
	code, body := f.do(t, "/public", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, body.Success)
	assert.Nil(t, body.Data)
	assert.EqualValues(t, 0, f.provider.VerifyCalls.Load())
}

func TestMissingOrMalformedCredential(t *testing.T) {
	f := newFixture(t, nil)
	for _, h := range []string{"", "Token abc", "Bearer ", "bearer abc"} {
		code, body := f.do(t, "/me", map[string]string{"Authorization": h})
		assert.Equal(t, http.StatusUnauthorized, code, h)
		assert.Equal(t, apperr.CodeMissingCredential, body.Code, h)
	}
	assert.EqualValues(t, 0, f.provider.VerifyCalls.Load())
}

func TestInvalidCredentialCarriesLocalizedReason(t *testing.T) {
	f := newFixture(t, nil)

	code, body := f.do(t, "/me", map[string]string{"Authorization": "Bearer unknown"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, apperr.CodeInvalidCredential, body.Code)
	assert.Equal(t, "invalid token: token is expired", body.Error)

	_, body = f.do(t, "/me", map[string]string{"Authorization": "Bearer unknown", "Accept-Language": "de-CH"})
	assert.Equal(t, "Ungültiges Token: token is expired", body.Error)
}

func TestFirstSightProvisionsProfile(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	f.provider.Issue("tok", id, "driver@alpine.example")

	code, body := f.do(t, "/me", map[string]string{"Authorization": "Bearer tok"})
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, body.Data)
	assert.Equal(t, id, body.Data.SubjectID)
	assert.Equal(t, models.RoleUser, body.Data.Role)
	assert.Equal(t, 1, f.store.ProfileCount())

	f.do(t, "/me", map[string]string{"Authorization": "Bearer tok"})
	assert.Equal(t, 1, f.store.ProfileCount())
}

func TestProfileRoleWinsOverTokenClaim(t *testing.T) {
	f := newFixture(t, nil)
	org := f.store.AddOrganization("Alpine Ops", true)
	p := f.store.AddProfile("boss@alpine.example", models.RoleAdmin, &org.ID)
	sub := f.provider.Issue("tok", p.ID, p.Email)
	require.Equal(t, "authenticated", sub.Role)

	code, body := f.do(t, "/admin", map[string]string{"Authorization": "Bearer tok"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.RoleAdmin, body.Data.Role)
	require.NotNil(t, body.Data.OrganizationID)
	assert.Equal(t, org.ID, *body.Data.OrganizationID)
}

func TestRoleGateRejectsOtherRoles(t *testing.T) {
	f := newFixture(t, nil)
	f.provider.Issue("tok", uuid.New(), "driver@alpine.example")

	code, body := f.do(t, "/admin", map[string]string{"Authorization": "Bearer tok"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, apperr.CodePermissionDenied, body.Code)
}

func TestVerifierTimeout(t *testing.T) {
	f := newFixture(t, blockingVerifier{})

	code, body := f.do(t, "/me", map[string]string{"Authorization": "Bearer tok"})
	assert.Equal(t, http.StatusGatewayTimeout, code)
	assert.Equal(t, apperr.CodeUpstreamTimeout, body.Code)
}

func TestStoreFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.provider.Issue("tok", uuid.New(), "driver@alpine.example")
	f.store.Err = errors.New("connection refused")

	code, body := f.do(t, "/me", map[string]string{"Authorization": "Bearer tok"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, apperr.CodeUpstreamUnavailable, body.Code)
}

func TestAuthorize(t *testing.T) {
	admin := &models.Identity{Role: models.RoleAdmin}

	assert.NoError(t, Authorize(nil, admin))
	assert.NoError(t, Authorize([]models.Role{models.RoleAdmin}, admin))
	assert.True(t, apperr.Is(Authorize([]models.Role{models.RoleSuperAdmin}, admin), apperr.CodePermissionDenied))
	assert.True(t, apperr.Is(Authorize(nil, nil), apperr.CodeAuthenticationRequired))
	assert.True(t, apperr.Is(Authorize([]models.Role{models.RoleAdmin}, nil), apperr.CodeAuthenticationRequired))
}

func TestRequireRoleWithoutIdentity(t *testing.T) {
	r := gin.New()
	r.GET("/x", RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
