package vehicles

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleettrack/backend/internal/apperr"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/internal/tenancy"
)

const maxPlateLen = 20

// Service exposes vehicles scoped to the caller's organization.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a vehicles service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// List returns the vehicles caller may see.
func (s *Service) List(ctx context.Context, caller *models.Identity, override *uuid.UUID) ([]models.Vehicle, error) {
	filter, err := tenancy.Resolve(caller, override)
	if err != nil {
		return nil, err
	}
	list, err := s.store.ListVehicles(ctx, filter.OrganizationID)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	return list, nil
}

// Get returns a vehicle of the caller's organization.
func (s *Service) Get(ctx context.Context, caller *models.Identity, id uuid.UUID) (*models.Vehicle, error) {
	return s.owned(ctx, caller, id)
}

// owned loads a vehicle and checks the caller may touch it. A vehicle of
// another organization is reported as a cross-tenant access, not as missing.
func (s *Service) owned(ctx context.Context, caller *models.Identity, id uuid.UUID) (*models.Vehicle, error) {
	if caller == nil {
		return nil, apperr.New(apperr.CodeAuthenticationRequired)
	}
	v, err := s.store.GetVehicle(ctx, id)
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeVehicleNotFound)
	}
	if err := tenancy.CheckAccess(caller, v.OrganizationID); err != nil {
		return nil, err
	}
	return v, nil
}

// Create adds a vehicle to the caller's organization, or for a super admin
// the organization named by override.
func (s *Service) Create(ctx context.Context, caller *models.Identity, override *uuid.UUID, v models.Vehicle) (*models.Vehicle, error) {
	org, err := tenancy.Target(caller, override)
	if err != nil {
		return nil, err
	}
	v.ID = uuid.Nil
	v.OrganizationID = org
	v.Name = strings.TrimSpace(v.Name)
	v.Plate = strings.TrimSpace(v.Plate)
	if err := validate(v.Name, v.Plate); err != nil {
		return nil, err
	}
	created, err := s.store.CreateVehicle(ctx, &v)
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeOrganizationNotFound)
	}
	s.logger.Info("vehicle created",
		zap.String("vehicle_id", created.ID.String()),
		zap.String("organization_id", org.String()),
	)
	return created, nil
}

// Update applies patch to a vehicle of the caller's organization. Vehicles
// never move between organizations.
func (s *Service) Update(ctx context.Context, caller *models.Identity, id uuid.UUID, patch models.VehiclePatch) (*models.Vehicle, error) {
	current, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	name, plate := current.Name, current.Plate
	if patch.Name != nil {
		name = strings.TrimSpace(*patch.Name)
		patch.Name = &name
	}
	if patch.Plate != nil {
		plate = strings.TrimSpace(*patch.Plate)
		patch.Plate = &plate
	}
	if err := validate(name, plate); err != nil {
		return nil, err
	}
	v, err := s.store.UpdateVehicle(ctx, id, patch)
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeVehicleNotFound)
	}
	return v, nil
}

// Delete removes a vehicle of the caller's organization.
func (s *Service) Delete(ctx context.Context, caller *models.Identity, id uuid.UUID) error {
	if _, err := s.owned(ctx, caller, id); err != nil {
		return err
	}
	if err := s.store.DeleteVehicle(ctx, id); err != nil {
		return apperr.Store(err, apperr.CodeVehicleNotFound)
	}
	s.logger.Info("vehicle deleted", zap.String("vehicle_id", id.String()))
	return nil
}

func validate(name, plate string) error {
	if name == "" {
		return apperr.New(apperr.CodeInvalidInput, "name is required")
	}
	if plate == "" || len(plate) > maxPlateLen {
		return apperr.New(apperr.CodeInvalidInput, "plate must be 1 to 20 characters")
	}
	return nil
}
