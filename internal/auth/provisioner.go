package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleettrack/backend/internal/apperr"
	"github.com/fleettrack/backend/internal/identity"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/pkg/database"
)

// Provisioner creates profiles for verified subjects. It never changes the
// role or organization of a profile that already exists.
type Provisioner struct {
	store  ProfileStore
	logger *zap.Logger
}

// NewProvisioner creates a provisioner on store.
func NewProvisioner(store ProfileStore, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{store: store, logger: logger}
}

// EnsureProfile returns the profile for sub, creating it with the default role
// on first sight. Safe to call concurrently for the same subject.
func (p *Provisioner) EnsureProfile(ctx context.Context, sub *identity.Subject) (*models.Profile, error) {
	existing, err := p.store.GetProfile(ctx, sub.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, apperr.Upstream(err)
	}
	profile, _, err := p.CreateProfile(ctx, sub, models.DefaultRole, nil)
	return profile, err
}

// CreateProfile stores a profile for sub with role and organizationID. If a
// profile for sub.ID already exists it is returned untouched with created false.
func (p *Provisioner) CreateProfile(ctx context.Context, sub *identity.Subject, role models.Role, organizationID *uuid.UUID) (*models.Profile, bool, error) {
	candidate := &models.Profile{
		ID:             sub.ID,
		Email:          strings.ToLower(strings.TrimSpace(sub.Email)),
		Role:           role,
		OrganizationID: organizationID,
		FirstName:      sub.StringClaim("firstName", "first_name"),
		LastName:       sub.StringClaim("lastName", "last_name"),
	}
	stored, created, err := p.store.InsertProfileIfAbsent(ctx, candidate)
	if err != nil {
		if database.IsUniqueViolation(err, EmailConstraint) {
			return nil, false, apperr.Wrap(apperr.CodeEmailAlreadyRegistered, err)
		}
		return nil, false, apperr.Upstream(err)
	}
	if created {
		p.logger.Info("profile provisioned",
			zap.String("subject_id", stored.ID.String()),
			zap.String("role", string(stored.Role)),
		)
	}
	return stored, created, nil
}

// PromoteSuperAdmin makes sub a super admin, creating its profile if needed.
// It is the only way the first super admin comes into existence.
func (p *Provisioner) PromoteSuperAdmin(ctx context.Context, sub *identity.Subject) (*models.Profile, error) {
	profile, created, err := p.CreateProfile(ctx, sub, models.RoleSuperAdmin, nil)
	if err != nil {
		return nil, err
	}
	if !created && profile.Role != models.RoleSuperAdmin {
		profile, err = p.store.UpdateProfileRole(ctx, sub.ID, models.RoleSuperAdmin)
		if err != nil {
			return nil, apperr.Store(err, apperr.CodeProfileNotFound)
		}
	}
	p.logger.Info("super admin promoted", zap.String("subject_id", profile.ID.String()))
	return profile, nil
}
