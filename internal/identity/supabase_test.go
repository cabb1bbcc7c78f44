package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleettrack/backend/internal/apperr"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *SupabaseClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewSupabaseClient(SupabaseConfig{URL: srv.URL, AnonKey: "anon", Timeout: time.Second}, nil)
	require.NoError(t, err)
	return c
}

func TestVerifyReturnsSubject(t *testing.T) {
	id := uuid.New()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer good", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            id.String(),
			"email":         "tech@alpine.example",
			"role":          "authenticated",
			"user_metadata": map[string]any{"firstName": "Toni"},
		})
	})

	sub, err := c.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, id, sub.ID)
	assert.Equal(t, "tech@alpine.example", sub.Email)
	assert.Equal(t, "Toni", sub.StringClaim("firstName"))
}

func TestVerifyRejectionCarriesProviderMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":401,"msg":"invalid JWT: token is expired"}`))
	})

	_, err := c.Verify(context.Background(), "stale")
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "invalid JWT: token is expired", rej.Message)

	classified := Classify(err)
	assert.True(t, apperr.Is(classified, apperr.CodeInvalidCredential))
	assert.Contains(t, classified.Error(), "token is expired")
}

func TestVerifyServerErrorIsUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Verify(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, apperr.Is(Classify(err), apperr.CodeUpstreamUnavailable))
}

func TestVerifyTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c, err := NewSupabaseClient(SupabaseConfig{URL: srv.URL, AnonKey: "anon", Timeout: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	_, err = c.Verify(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, apperr.Is(Classify(err), apperr.CodeUpstreamTimeout))
}

func TestSignUpWithPendingConfirmation(t *testing.T) {
	id := uuid.New()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "new@alpine.example", body["email"])
		data := body["data"].(map[string]any)
		assert.Equal(t, "admin", data["role"])
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id.String(), "email": "new@alpine.example"})
	})

	sub, sess, err := c.SignUp(context.Background(), "new@alpine.example", "secret1", map[string]any{"role": "admin"})
	require.NoError(t, err)
	assert.Equal(t, id, sub.ID)
	assert.Nil(t, sess)
}

func TestSignInReturnsSession(t *testing.T) {
	id := uuid.New()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at",
			"refresh_token": "rt",
			"expires_in":    3600,
			"token_type":    "bearer",
			"user":          map[string]any{"id": id.String(), "email": "a@b.example"},
		})
	})

	sub, sess, err := c.SignIn(context.Background(), "a@b.example", "pw")
	require.NoError(t, err)
	assert.Equal(t, id, sub.ID)
	assert.Equal(t, "at", sess.AccessToken)
	assert.Equal(t, "rt", sess.RefreshToken)
}

func TestSignInInvalidCredentials(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
	})

	_, _, err := c.SignIn(context.Background(), "a@b.example", "nope")
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "Invalid login credentials", rej.Message)
}
