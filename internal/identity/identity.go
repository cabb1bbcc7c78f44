// Package identity wraps the external identity provider. It verifies bearer
// credentials and delegates password and session handling to the provider.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fleettrack/backend/internal/apperr"
)

// Subject is a verified provider identity.
type Subject struct {
	ID     uuid.UUID      `json:"id"`
	Email  string         `json:"email"`
	Role   string         `json:"role,omitempty"` // provider role claim, informational only
	Claims map[string]any `json:"claims,omitempty"`
}

// StringClaim returns the first non-empty string claim among keys.
func (s *Subject) StringClaim(keys ...string) string {
	for _, k := range keys {
		if v, ok := s.Claims[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Session is a provider-issued session.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Verifier exchanges a bearer token for a verified subject.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Subject, error)
}

// Provider is the full identity provider surface used by the auth flows.
type Provider interface {
	Verifier
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Subject, *Session, error)
	SignIn(ctx context.Context, email, password string) (*Subject, *Session, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	ResetPassword(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, accessToken, newPassword string) error
}

// RejectedError is returned when the provider refuses a credential or request.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("identity provider rejected request (%d): %s", e.Status, e.Message)
}

// Classify turns a provider failure into a coded error: rejections become
// InvalidCredential carrying the provider message, transport failures become
// UpstreamTimeout or UpstreamUnavailable.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var rej *RejectedError
	if errors.As(err, &rej) {
		return apperr.Wrap(apperr.CodeInvalidCredential, err, rej.Message)
	}
	return apperr.Upstream(err)
}
