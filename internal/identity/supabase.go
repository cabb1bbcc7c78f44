package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SupabaseConfig configures the GoTrue client. It is fixed at construction.
type SupabaseConfig struct {
	URL        string
	AnonKey    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// SupabaseClient talks to a Supabase GoTrue server.
type SupabaseClient struct {
	baseURL string
	anonKey string
	timeout time.Duration
	http    *http.Client
	logger  *zap.Logger
}

// NewSupabaseClient creates a client for cfg.URL.
func NewSupabaseClient(cfg SupabaseConfig, logger *zap.Logger) (*SupabaseClient, error) {
	if cfg.URL == "" || cfg.AnonKey == "" {
		return nil, errors.New("supabase url and anon key are required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("parse supabase url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &SupabaseClient{
		baseURL: strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		anonKey: cfg.AnonKey,
		timeout: cfg.Timeout,
		http:    hc,
		logger:  logger,
	}, nil
}

type userResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// sessionResponse covers both shapes GoTrue returns: a session with a nested
// user, or a bare user when email confirmation is pending.
type sessionResponse struct {
	userResponse
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int           `json:"expires_in"`
	TokenType    string        `json:"token_type"`
	User         *userResponse `json:"user"`
}

func (r *sessionResponse) split() (*Subject, *Session, error) {
	u := r.User
	if u == nil && r.ID != "" {
		u = &r.userResponse
	}
	var sub *Subject
	if u != nil {
		s, err := u.subject()
		if err != nil {
			return nil, nil, err
		}
		sub = s
	}
	var sess *Session
	if r.AccessToken != "" {
		sess = &Session{
			AccessToken:  r.AccessToken,
			RefreshToken: r.RefreshToken,
			ExpiresIn:    r.ExpiresIn,
			TokenType:    r.TokenType,
		}
	}
	return sub, sess, nil
}

func (u *userResponse) subject() (*Subject, error) {
	id, err := uuid.Parse(u.ID)
	if err != nil {
		return nil, fmt.Errorf("provider returned invalid subject id %q: %w", u.ID, err)
	}
	return &Subject{ID: id, Email: u.Email, Role: u.Role, Claims: u.UserMetadata}, nil
}

// Verify resolves token via GET /user.
func (c *SupabaseClient) Verify(ctx context.Context, token string) (*Subject, error) {
	var u userResponse
	if err := c.do(ctx, http.MethodGet, "/user", token, nil, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, &RejectedError{Status: http.StatusUnauthorized, Message: "no user for token"}
	}
	return u.subject()
}

// SignUp registers email with the provider. The returned session is nil while
// the provider waits for email confirmation.
func (c *SupabaseClient) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Subject, *Session, error) {
	body := map[string]any{"email": email, "password": password, "data": metadata}
	var r sessionResponse
	if err := c.do(ctx, http.MethodPost, "/signup", "", body, &r); err != nil {
		return nil, nil, err
	}
	sub, sess, err := r.split()
	if err != nil {
		return nil, nil, err
	}
	if sub == nil {
		return nil, nil, &RejectedError{Status: http.StatusBadRequest, Message: "sign-up returned no user"}
	}
	return sub, sess, nil
}

// SignIn exchanges email and password for a session.
func (c *SupabaseClient) SignIn(ctx context.Context, email, password string) (*Subject, *Session, error) {
	body := map[string]any{"email": email, "password": password}
	var r sessionResponse
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", body, &r); err != nil {
		return nil, nil, err
	}
	sub, sess, err := r.split()
	if err != nil {
		return nil, nil, err
	}
	if sub == nil || sess == nil {
		return nil, nil, &RejectedError{Status: http.StatusUnauthorized, Message: "sign-in returned no session"}
	}
	return sub, sess, nil
}

// Refresh exchanges a refresh token for a new session.
func (c *SupabaseClient) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var r sessionResponse
	body := map[string]any{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", body, &r); err != nil {
		return nil, err
	}
	_, sess, err := r.split()
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, &RejectedError{Status: http.StatusUnauthorized, Message: "refresh returned no session"}
	}
	return sess, nil
}

// SignOut revokes the session behind accessToken.
func (c *SupabaseClient) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
}

// ResetPassword asks the provider to send a recovery email.
func (c *SupabaseClient) ResetPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/recover", "", map[string]any{"email": email}, nil)
}

// UpdatePassword sets a new password for the owner of accessToken.
func (c *SupabaseClient) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	return c.do(ctx, http.MethodPut, "/user", accessToken, map[string]any{"password": newPassword}, nil)
}

func (c *SupabaseClient) do(ctx context.Context, method, path, bearer string, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s %s: %w", method, path, ctxErr)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode >= 500:
		c.logger.Warn("identity provider error", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%s %s: provider status %d", method, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		return &RejectedError{Status: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts the human-readable message from a GoTrue error body.
func errorMessage(raw []byte, fallback string) string {
	var body struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
			if m != "" {
				return m
			}
		}
	}
	return fallback
}
