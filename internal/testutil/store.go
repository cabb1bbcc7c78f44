// Package testutil provides in-memory stores and fake identity providers with
// the same conflict and atomicity behavior as the Postgres repositories.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/pkg/database"
)

// Store is an in-memory implementation of every repository interface. All
// methods are safe for concurrent use.
type Store struct {
	mu            sync.Mutex
	profiles      map[uuid.UUID]models.Profile
	organizations map[uuid.UUID]models.Organization
	invites       map[uuid.UUID]models.Invite
	vehicles      map[uuid.UUID]models.Vehicle
	now           func() time.Time

	// Err, when set, is returned by every call.
	Err error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		profiles:      map[uuid.UUID]models.Profile{},
		organizations: map[uuid.UUID]models.Organization{},
		invites:       map[uuid.UUID]models.Invite{},
		vehicles:      map[uuid.UUID]models.Vehicle{},
		now:           time.Now,
	}
}

func (s *Store) lock() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

// Profiles

func (s *Store) GetProfile(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetProfileByEmail(_ context.Context, email string) (*models.Profile, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, p := range s.profiles {
		if strings.EqualFold(p.Email, email) {
			return &p, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *Store) InsertProfileIfAbsent(_ context.Context, p *models.Profile) (*models.Profile, bool, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, false, s.Err
	}
	if existing, ok := s.profiles[p.ID]; ok {
		return &existing, false, nil
	}
	for _, other := range s.profiles {
		if strings.EqualFold(other.Email, p.Email) {
			return nil, false, &database.UniqueViolation{Constraint: "user_profiles_email_key"}
		}
	}
	stored := *p
	stored.CreatedAt = s.now()
	stored.UpdatedAt = stored.CreatedAt
	s.profiles[p.ID] = stored
	return &stored, true, nil
}

func (s *Store) ListProfiles(_ context.Context, organizationID *uuid.UUID) ([]models.Profile, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, s.Err
	}
	list := []models.Profile{}
	for _, p := range s.profiles {
		if organizationID != nil && (p.OrganizationID == nil || *p.OrganizationID != *organizationID) {
			continue
		}
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Email < list[j].Email })
	return list, nil
}

func (s *Store) UpdateProfileRole(_ context.Context, id uuid.UUID, role models.Role) (*models.Profile, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	p.Role = role
	p.UpdatedAt = s.now()
	s.profiles[id] = p
	return &p, nil
}

func (s *Store) UpdateProfileOrganization(_ context.Context, id uuid.UUID, organizationID *uuid.UUID) (*models.Profile, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	p.OrganizationID = organizationID
	p.UpdatedAt = s.now()
	s.profiles[id] = p
	return &p, nil
}

// Organizations

func (s *Store) CreateOrganization(_ context.Context, o *models.Organization) (*models.Organization, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, s.Err
	}
	if err := s.checkOrganizationUnique(uuid.Nil, o.Name, o.Subdomain); err != nil {
		return nil, err
	}
	stored := *o
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.CreatedAt = s.now()
	stored.UpdatedAt = stored.CreatedAt
	s.organizations[stored.ID] = stored
	return &stored, nil
}

func (s *Store) checkOrganizationUnique(self uuid.UUID, name string, subdomain *string) error {
	for id, other := range s.organizations {
		if id == self {
			continue
		}
		if other.Name == name {
			return &database.UniqueViolation{Constraint: "organizations_name_key"}
		}
		if subdomain != nil && other.Subdomain != nil && *other.Subdomain == *subdomain {
			return &database.UniqueViolation{Constraint: "organizations_subdomain_key"}
		}
	}
	return nil
}

func (s *Store) GetOrganization(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, s.Err
	}
	o, ok := s.organizations[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &o, nil
}

func (s *Store) ListOrganizations(_ context.Context, activeOnly bool) ([]models.Organization, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, s.Err
	}
	list := []models.Organization{}
	for _, o := range s.organizations {
		if activeOnly && !o.IsActive {
			continue
		}
		list = append(list, o)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (s *Store) UpdateOrganization(_ context.Context, id uuid.UUID, patch models.OrganizationPatch) (*models.Organization, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, s.Err
	}
	o, ok := s.organizations[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	if patch.Name != nil {
		o.Name = *patch.Name
	}
	if patch.Subdomain != nil {
		o.Subdomain = patch.Subdomain
	}
	if patch.ContactEmail != nil {
		o.ContactEmail = patch.ContactEmail
	}
	if patch.IsActive != nil {
		o.IsActive = *patch.IsActive
	}
	if err := s.checkOrganizationUnique(id, o.Name, o.Subdomain); err != nil {
		return nil, err
	}
	o.UpdatedAt = s.now()
	s.organizations[id] = o
	return &o, nil
}

// Invites

func (s *Store) withOrganization(inv models.Invite) *models.Invite {
	if o, ok := s.organizations[inv.OrganizationID]; ok {
		inv.Organization = &o
	}
	return &inv
}

func (s *Store) CreateInvite(_ context.Context, inv *models.Invite, now time.Time) (*models.Invite, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, s.Err
	}
	org, ok := s.organizations[inv.OrganizationID]
	if !ok {
		return nil, database.ErrNotFound
	}
	if !org.IsActive {
		return nil, database.ErrInactive
	}
	for _, other := range s.invites {
		if other.Token == inv.Token {
			return nil, &database.UniqueViolation{Constraint: "organization_invites_token_key"}
		}
		if other.OrganizationID == inv.OrganizationID && strings.EqualFold(other.Email, inv.Email) && other.IsPending(now) {
			return nil, database.ErrConflict
		}
	}
	stored := *inv
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.CreatedAt = now
	stored.Organization = nil
	s.invites[stored.ID] = stored
	return s.withOrganization(stored), nil
}

func (s *Store) GetInviteByToken(_ context.Context, token string) (*models.Invite, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, inv := range s.invites {
		if inv.Token == token {
			return s.withOrganization(inv), nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *Store) GetInvite(_ context.Context, id uuid.UUID) (*models.Invite, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, s.Err
	}
	inv, ok := s.invites[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return s.withOrganization(inv), nil
}

func (s *Store) ListInvites(_ context.Context, organizationID *uuid.UUID) ([]models.Invite, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, s.Err
	}
	list := []models.Invite{}
	for _, inv := range s.invites {
		if organizationID != nil && inv.OrganizationID != *organizationID {
			continue
		}
		list = append(list, *s.withOrganization(inv))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (s *Store) RedeemInvite(_ context.Context, token string, usedBy uuid.UUID, now time.Time) (*models.Invite, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, s.Err
	}
	for id, inv := range s.invites {
		if inv.Token != token {
			continue
		}
		org, ok := s.organizations[inv.OrganizationID]
		if !inv.IsPending(now) || !ok || !org.IsActive {
			return nil, database.ErrConflict
		}
		inv.UsedAt = &now
		inv.UsedBy = &usedBy
		s.invites[id] = inv
		return s.withOrganization(inv), nil
	}
	return nil, database.ErrConflict
}

func (s *Store) DeleteInvite(_ context.Context, id uuid.UUID) error {
	defer s.lock()()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.invites[id]; !ok {
		return database.ErrNotFound
	}
	delete(s.invites, id)
	return nil
}

// Vehicles

func (s *Store) ListVehicles(_ context.Context, organizationID *uuid.UUID) ([]models.Vehicle, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, s.Err
	}
	list := []models.Vehicle{}
	for _, v := range s.vehicles {
		if organizationID != nil && v.OrganizationID != *organizationID {
			continue
		}
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (s *Store) GetVehicle(_ context.Context, id uuid.UUID) (*models.Vehicle, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, s.Err
	}
	v, ok := s.vehicles[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &v, nil
}

func (s *Store) CreateVehicle(_ context.Context, v *models.Vehicle) (*models.Vehicle, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, s.Err
	}
	if _, ok := s.organizations[v.OrganizationID]; !ok {
		return nil, database.ErrNotFound
	}
	stored := *v
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	s.vehicles[stored.ID] = stored
	return &stored, nil
}

func (s *Store) UpdateVehicle(_ context.Context, id uuid.UUID, patch models.VehiclePatch) (*models.Vehicle, error) {
	defer s.lock()()
	if s.Err != nil {
		return nil, s.Err
	}
	v, ok := s.vehicles[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	if patch.Name != nil {
		v.Name = *patch.Name
	}
	if patch.Plate != nil {
		v.Plate = *patch.Plate
	}
	if patch.SnowsatNumber != nil {
		v.SnowsatNumber = *patch.SnowsatNumber
	}
	if patch.IsRetired != nil {
		v.IsRetired = *patch.IsRetired
	}
	if patch.Location != nil {
		v.Location = patch.Location
	}
	if patch.VehicleType != nil {
		v.VehicleType = patch.VehicleType
	}
	if patch.FuelType != nil {
		v.FuelType = patch.FuelType
	}
	if patch.Notes != nil {
		v.Notes = patch.Notes
	}
	s.vehicles[id] = v
	return &v, nil
}

func (s *Store) DeleteVehicle(_ context.Context, id uuid.UUID) error {
	defer s.lock()()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.vehicles[id]; !ok {
		return database.ErrNotFound
	}
	delete(s.vehicles, id)
	return nil
}

// Seeding helpers

// AddOrganization stores an organization directly and returns it.
func (s *Store) AddOrganization(name string, active bool) models.Organization {
	defer s.lock()()
	o := models.Organization{ID: uuid.New(), Name: name, IsActive: active, CreatedAt: s.now(), UpdatedAt: s.now()}
	s.organizations[o.ID] = o
	return o
}

// AddProfile stores a profile directly and returns it.
func (s *Store) AddProfile(email string, role models.Role, organizationID *uuid.UUID) models.Profile {
	defer s.lock()()
	p := models.Profile{ID: uuid.New(), Email: email, Role: role, OrganizationID: organizationID, CreatedAt: s.now(), UpdatedAt: s.now()}
	s.profiles[p.ID] = p
	return p
}

// AddVehicle stores a vehicle directly and returns it.
func (s *Store) AddVehicle(name string, organizationID uuid.UUID) models.Vehicle {
	defer s.lock()()
	v := models.Vehicle{ID: uuid.New(), Name: name, Plate: "GR 1234", SnowsatNumber: "S-1", OrganizationID: organizationID}
	s.vehicles[v.ID] = v
	return v
}

// ProfileCount returns the number of stored profiles.
func (s *Store) ProfileCount() int {
	defer s.lock()()
	return len(s.profiles)
}

// SetClock replaces the clock used for timestamps.
func (s *Store) SetClock(now func() time.Time) {
	defer s.lock()()
	s.now = now
}
