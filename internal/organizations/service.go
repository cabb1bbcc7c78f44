package organizations

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleettrack/backend/internal/apperr"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/internal/tenancy"
	"github.com/fleettrack/backend/pkg/database"
)

// Service manages tenants. Organizations are deactivated, never removed.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates an organizations service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// CreateInput describes a new organization.
type CreateInput struct {
	Name         string
	Subdomain    *string
	ContactEmail *string
}

// Create adds an active organization.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Organization, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.New(apperr.CodeInvalidInput, "name is required")
	}
	o, err := s.store.CreateOrganization(ctx, &models.Organization{
		Name:         name,
		Subdomain:    normalize(in.Subdomain),
		IsActive:     true,
		ContactEmail: in.ContactEmail,
	})
	if err != nil {
		return nil, storeErr(err)
	}
	s.logger.Info("organization created", zap.String("organization_id", o.ID.String()), zap.String("name", o.Name))
	return o, nil
}

// List returns the active organizations.
func (s *Service) List(ctx context.Context) ([]models.Organization, error) {
	list, err := s.store.ListOrganizations(ctx, true)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	return list, nil
}

// Get returns an organization the caller may see.
func (s *Service) Get(ctx context.Context, caller *models.Identity, id uuid.UUID) (*models.Organization, error) {
	if err := tenancy.CheckAccess(caller, id); err != nil {
		return nil, err
	}
	o, err := s.store.GetOrganization(ctx, id)
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeOrganizationNotFound)
	}
	return o, nil
}

// Update applies patch, including reactivation.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch models.OrganizationPatch) (*models.Organization, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperr.New(apperr.CodeInvalidInput, "name must not be empty")
		}
		patch.Name = &name
	}
	patch.Subdomain = normalize(patch.Subdomain)
	o, err := s.store.UpdateOrganization(ctx, id, patch)
	if err != nil {
		return nil, storeErr(err)
	}
	return o, nil
}

// Deactivate soft-deletes an organization. Its invites stop validating at once.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	inactive := false
	if _, err := s.store.UpdateOrganization(ctx, id, models.OrganizationPatch{IsActive: &inactive}); err != nil {
		return storeErr(err)
	}
	s.logger.Info("organization deactivated", zap.String("organization_id", id.String()))
	return nil
}

func storeErr(err error) error {
	if database.IsUniqueViolation(err, NameConstraint, SubdomainConstraint) {
		return apperr.Wrap(apperr.CodeOrganizationNameTaken, err)
	}
	return apperr.Store(err, apperr.CodeOrganizationNotFound)
}

func normalize(subdomain *string) *string {
	if subdomain == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*subdomain))
	if v == "" {
		return nil
	}
	return &v
}
