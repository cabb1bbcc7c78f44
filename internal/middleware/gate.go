package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fleettrack/backend/internal/apperr"
	"github.com/fleettrack/backend/internal/identity"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/pkg/response"
)

// ContextIdentity is the gin context key holding the resolved *models.Identity.
const ContextIdentity = "identity"

const bearerPrefix = "Bearer "

// Policy is the access declaration attached to a route. Roles empty means any
// authenticated caller. Public routes skip authentication entirely.
type Policy struct {
	Public bool
	Roles  []models.Role
}

// ProfileProvisioner returns the local profile for a verified subject,
// creating it on first sight.
type ProfileProvisioner interface {
	EnsureProfile(ctx context.Context, sub *identity.Subject) (*models.Profile, error)
}

// GateConfig bounds the external calls made per request.
type GateConfig struct {
	VerifyTimeout time.Duration
	StoreTimeout  time.Duration
}

// Gate authenticates requests against the identity provider and binds the
// caller to their local profile.
type Gate struct {
	verifier identity.Verifier
	profiles ProfileProvisioner
	cfg      GateConfig
	logger   *zap.Logger
}

// NewGate creates an authentication gate.
func NewGate(verifier identity.Verifier, profiles ProfileProvisioner, cfg GateConfig, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{verifier: verifier, profiles: profiles, cfg: cfg, logger: logger}
}

// Authenticate returns the guard for a route declared with policy.
func (g *Gate) Authenticate(policy Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if policy.Public {
			c.Next()
			return
		}
		id, err := g.resolve(c)
		if err != nil {
			response.Abort(c, err)
			return
		}
		c.Set(ContextIdentity, id)
		c.Next()
	}
}

func (g *Gate) resolve(c *gin.Context) (*models.Identity, error) {
	token, ok := BearerToken(c)
	if !ok {
		return nil, apperr.New(apperr.CodeMissingCredential)
	}

	sub, err := g.verify(c.Request.Context(), token)
	if err != nil {
		g.logger.Warn("credential rejected",
			zap.String("path", c.FullPath()),
			zap.String("code", string(apperr.CodeOf(err))),
			zap.Error(err),
		)
		return nil, err
	}

	ctx, cancel := withTimeout(c.Request.Context(), g.cfg.StoreTimeout)
	defer cancel()
	profile, err := g.profiles.EnsureProfile(ctx, sub)
	if err != nil {
		g.logger.Error("profile lookup failed", zap.String("subject_id", sub.ID.String()), zap.Error(err))
		return nil, err
	}
	return models.IdentityFor(profile), nil
}

func (g *Gate) verify(ctx context.Context, token string) (*identity.Subject, error) {
	ctx, cancel := withTimeout(ctx, g.cfg.VerifyTimeout)
	defer cancel()
	sub, err := g.verifier.Verify(ctx, token)
	if err != nil {
		return nil, identity.Classify(err)
	}
	return sub, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// BearerToken extracts the credential from the Authorization header.
func BearerToken(c *gin.Context) (string, bool) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), bearerPrefix)
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// CurrentIdentity returns the identity attached by Authenticate, or nil.
func CurrentIdentity(c *gin.Context) *models.Identity {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return nil
	}
	id, _ := v.(*models.Identity)
	return id
}
