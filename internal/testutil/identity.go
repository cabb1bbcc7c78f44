package testutil

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/fleettrack/backend/internal/identity"
)

// Provider is a fake identity provider. Tokens are opaque strings mapped to
// subjects; accounts created through SignUp can sign in with their password.
type Provider struct {
	mu        sync.Mutex
	tokens    map[string]identity.Subject
	passwords map[string]string
	subjects  map[string]identity.Subject
	reset     []string

	// Err, when set, is returned by every call.
	Err error
	// VerifyCalls counts Verify invocations.
	VerifyCalls atomic.Int32
}

// NewProvider returns an empty fake provider.
func NewProvider() *Provider {
	return &Provider{
		tokens:    map[string]identity.Subject{},
		passwords: map[string]string{},
		subjects:  map[string]identity.Subject{},
	}
}

// Issue registers token for a subject and returns the subject.
func (p *Provider) Issue(token string, id uuid.UUID, email string) identity.Subject {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub := identity.Subject{ID: id, Email: email, Role: "authenticated"}
	p.tokens[token] = sub
	return sub
}

// ResetRequests returns the emails passed to ResetPassword.
func (p *Provider) ResetRequests() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.reset...)
}

func rejected(msg string) error {
	return &identity.RejectedError{Status: http.StatusUnauthorized, Message: msg}
}

func (p *Provider) Verify(_ context.Context, token string) (*identity.Subject, error) {
	p.VerifyCalls.Add(1)
	if p.Err != nil {
		return nil, p.Err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.tokens[token]
	if !ok {
		return nil, rejected("token is expired")
	}
	return &sub, nil
}

func (p *Provider) SignUp(_ context.Context, email, password string, metadata map[string]any) (*identity.Subject, *identity.Session, error) {
	if p.Err != nil {
		return nil, nil, p.Err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	key := strings.ToLower(email)
	if _, ok := p.subjects[key]; ok {
		return nil, nil, &identity.RejectedError{Status: http.StatusUnprocessableEntity, Message: "User already registered"}
	}
	sub := identity.Subject{ID: uuid.New(), Email: key, Role: "authenticated", Claims: metadata}
	p.subjects[key] = sub
	p.passwords[key] = password
	return &sub, p.session(sub), nil
}

func (p *Provider) SignIn(_ context.Context, email, password string) (*identity.Subject, *identity.Session, error) {
	if p.Err != nil {
		return nil, nil, p.Err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	key := strings.ToLower(email)
	sub, ok := p.subjects[key]
	if !ok || p.passwords[key] != password {
		return nil, nil, &identity.RejectedError{Status: http.StatusBadRequest, Message: "Invalid login credentials"}
	}
	return &sub, p.session(sub), nil
}

// session mints a fresh access token for sub. Callers hold mu.
func (p *Provider) session(sub identity.Subject) *identity.Session {
	access := "access-" + uuid.NewString()
	p.tokens[access] = sub
	return &identity.Session{AccessToken: access, RefreshToken: "refresh-" + sub.ID.String(), ExpiresIn: 3600, TokenType: "bearer"}
}

func (p *Provider) Refresh(_ context.Context, refreshToken string) (*identity.Session, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sub := range p.subjects {
		if refreshToken == "refresh-"+sub.ID.String() {
			return p.session(sub), nil
		}
	}
	return nil, &identity.RejectedError{Status: http.StatusBadRequest, Message: "Invalid Refresh Token"}
}

func (p *Provider) SignOut(_ context.Context, accessToken string) error {
	if p.Err != nil {
		return p.Err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tokens, accessToken)
	return nil
}

func (p *Provider) ResetPassword(_ context.Context, email string) error {
	if p.Err != nil {
		return p.Err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset = append(p.reset, strings.ToLower(email))
	return nil
}

func (p *Provider) UpdatePassword(_ context.Context, accessToken, newPassword string) error {
	if p.Err != nil {
		return p.Err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.tokens[accessToken]
	if !ok {
		return rejected("invalid JWT")
	}
	p.passwords[strings.ToLower(sub.Email)] = newPassword
	return nil
}
