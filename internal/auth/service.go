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
	"github.com/fleettrack/backend/internal/tenancy"
	"github.com/fleettrack/backend/pkg/database"
)

// OrganizationReader reads organizations by id.
type OrganizationReader interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// Result is a provider session together with the caller's local profile.
// Session is nil when the provider still waits for email confirmation.
type Result struct {
	Session *identity.Session `json:"session,omitempty"`
	Profile *models.Profile   `json:"user"`
}

// SignUpInput is a self-service registration.
type SignUpInput struct {
	Email          string
	Password       string
	FirstName      string
	LastName       string
	OrganizationID *uuid.UUID
}

// Service implements the account operations that sit on top of the identity provider.
type Service struct {
	provider    identity.Provider
	profiles    ProfileStore
	provisioner *Provisioner
	orgs        OrganizationReader
	logger      *zap.Logger
}

// NewService creates an auth service.
func NewService(provider identity.Provider, profiles ProfileStore, provisioner *Provisioner, orgs OrganizationReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{provider: provider, profiles: profiles, provisioner: provisioner, orgs: orgs, logger: logger}
}

// SignIn exchanges credentials for a session. The returned role is always the
// local profile's.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Result, error) {
	sub, sess, err := s.provider.SignIn(ctx, normalizeEmail(email), password)
	if err != nil {
		return nil, identity.Classify(err)
	}
	profile, err := s.provisioner.EnsureProfile(ctx, sub)
	if err != nil {
		return nil, err
	}
	return &Result{Session: sess, Profile: profile}, nil
}

// SignUp registers a new account with the default role, optionally inside an
// active organization.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*Result, error) {
	email := normalizeEmail(in.Email)
	if in.OrganizationID != nil {
		if _, err := s.activeOrganization(ctx, *in.OrganizationID); err != nil {
			return nil, err
		}
	}
	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}
	return s.Register(ctx, email, in.Password, in.FirstName, in.LastName, models.DefaultRole, in.OrganizationID)
}

// Refresh renews a session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	sess, err := s.provider.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, identity.Classify(err)
	}
	return sess, nil
}

// SignOut revokes the caller's session.
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	return identity.Classify(s.provider.SignOut(ctx, accessToken))
}

// ResetPassword asks the provider to mail a recovery link.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	return identity.Classify(s.provider.ResetPassword(ctx, normalizeEmail(email)))
}

// UpdatePassword changes the caller's password.
func (s *Service) UpdatePassword(ctx context.Context, accessToken, password string) error {
	return identity.Classify(s.provider.UpdatePassword(ctx, accessToken, password))
}

// Me returns the caller's profile.
func (s *Service) Me(ctx context.Context, caller *models.Identity) (*models.Profile, error) {
	if caller == nil {
		return nil, apperr.New(apperr.CodeAuthenticationRequired)
	}
	p, err := s.profiles.GetProfile(ctx, caller.SubjectID)
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeProfileNotFound)
	}
	return p, nil
}

// ListUsers returns the profiles visible to caller.
func (s *Service) ListUsers(ctx context.Context, caller *models.Identity, override *uuid.UUID) ([]models.Profile, error) {
	filter, err := tenancy.Resolve(caller, override)
	if err != nil {
		return nil, err
	}
	list, err := s.profiles.ListProfiles(ctx, filter.OrganizationID)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	return list, nil
}

// UpdateUserRole changes the role of userID. Only a super admin may grant or
// revoke super_admin; admins are limited to their own organization.
func (s *Service) UpdateUserRole(ctx context.Context, caller *models.Identity, userID uuid.UUID, role models.Role) (*models.Profile, error) {
	target, err := s.manageable(ctx, caller, userID)
	if err != nil {
		return nil, err
	}
	if role == models.RoleSuperAdmin && !caller.IsSuperAdmin() {
		return nil, apperr.New(apperr.CodePermissionDenied)
	}
	p, err := s.profiles.UpdateProfileRole(ctx, target.ID, role)
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeProfileNotFound)
	}
	s.logger.Info("role updated",
		zap.String("subject_id", p.ID.String()),
		zap.String("role", string(role)),
		zap.String("by", caller.SubjectID.String()),
	)
	return p, nil
}

// AssignOrganization moves userID into organizationID, or detaches it when nil.
func (s *Service) AssignOrganization(ctx context.Context, userID uuid.UUID, organizationID *uuid.UUID) (*models.Profile, error) {
	if organizationID != nil {
		if _, err := s.activeOrganization(ctx, *organizationID); err != nil {
			return nil, err
		}
	}
	p, err := s.profiles.UpdateProfileOrganization(ctx, userID, organizationID)
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeProfileNotFound)
	}
	return p, nil
}

// AdminResetPassword sends a recovery email to a user the caller may manage.
func (s *Service) AdminResetPassword(ctx context.Context, caller *models.Identity, userID uuid.UUID) error {
	target, err := s.manageable(ctx, caller, userID)
	if err != nil {
		return err
	}
	return identity.Classify(s.provider.ResetPassword(ctx, target.Email))
}

// manageable loads userID and checks that caller may administer it.
func (s *Service) manageable(ctx context.Context, caller *models.Identity, userID uuid.UUID) (*models.Profile, error) {
	if caller == nil {
		return nil, apperr.New(apperr.CodeAuthenticationRequired)
	}
	target, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeProfileNotFound)
	}
	if caller.IsSuperAdmin() {
		return target, nil
	}
	if target.Role == models.RoleSuperAdmin {
		return nil, apperr.New(apperr.CodePermissionDenied)
	}
	if target.OrganizationID == nil {
		return nil, apperr.New(apperr.CodeCrossTenantAccessDenied)
	}
	if err := tenancy.CheckAccess(caller, *target.OrganizationID); err != nil {
		return nil, err
	}
	return target, nil
}

func (s *Service) activeOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	org, err := s.orgs.GetOrganization(ctx, id)
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeOrganizationNotFound)
	}
	if !org.IsActive {
		return nil, apperr.New(apperr.CodeOrganizationInactive)
	}
	return org, nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.profiles.GetProfileByEmail(ctx, email)
	switch {
	case err == nil:
		return apperr.New(apperr.CodeEmailAlreadyRegistered)
	case errors.Is(err, database.ErrNotFound):
		return nil
	default:
		return apperr.Upstream(err)
	}
}

// EnsureEmailFree fails with EmailAlreadyRegistered if a profile owns email.
func (s *Service) EnsureEmailFree(ctx context.Context, email string) error {
	return s.ensureEmailFree(ctx, normalizeEmail(email))
}

// Register creates a provider account for email and its profile with role
// inside organizationID. It is the shared tail of sign-up and invite acceptance.
func (s *Service) Register(ctx context.Context, email, password, firstName, lastName string, role models.Role, organizationID *uuid.UUID) (*Result, error) {
	email = normalizeEmail(email)
	metadata := map[string]any{"firstName": firstName, "lastName": lastName, "role": string(role)}
	sub, sess, err := s.provider.SignUp(ctx, email, password, metadata)
	if err != nil {
		return nil, identity.Classify(err)
	}
	profile, created, err := s.provisioner.CreateProfile(ctx, withNames(sub, firstName, lastName), role, organizationID)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, apperr.New(apperr.CodeEmailAlreadyRegistered)
	}
	return &Result{Session: sess, Profile: profile}, nil
}

// ReleaseProfile drops a profile back to the default role with no
// organization. It undoes a registration whose invite could not be redeemed.
func (s *Service) ReleaseProfile(ctx context.Context, id uuid.UUID) error {
	if _, err := s.profiles.UpdateProfileRole(ctx, id, models.DefaultRole); err != nil {
		return apperr.Store(err, apperr.CodeProfileNotFound)
	}
	if _, err := s.profiles.UpdateProfileOrganization(ctx, id, nil); err != nil {
		return apperr.Store(err, apperr.CodeProfileNotFound)
	}
	s.logger.Info("profile released", zap.String("subject_id", id.String()))
	return nil
}

func withNames(sub *identity.Subject, first, last string) *identity.Subject {
	out := *sub
	out.Claims = map[string]any{}
	for k, v := range sub.Claims {
		out.Claims[k] = v
	}
	if first != "" {
		out.Claims["firstName"] = first
	}
	if last != "" {
		out.Claims["lastName"] = last
	}
	return &out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
