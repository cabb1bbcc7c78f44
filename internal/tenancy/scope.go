// Package tenancy resolves the organization scope of a request and rejects
// cross-tenant access.
package tenancy

import (
	"strings"

	"github.com/google/uuid"

	"github.com/fleettrack/backend/internal/apperr"
	"github.com/fleettrack/backend/internal/models"
)

// OverrideParam is the query parameter a super admin uses to target an organization.
const OverrideParam = "organizationId"

// Filter restricts a query to one organization. A nil OrganizationID means unrestricted.
type Filter struct {
	OrganizationID *uuid.UUID
}

// Unrestricted reports whether the filter lets every organization through.
func (f Filter) Unrestricted() bool { return f.OrganizationID == nil }

// Allows reports whether a resource of org passes the filter.
func (f Filter) Allows(org uuid.UUID) bool {
	return f.OrganizationID == nil || *f.OrganizationID == org
}

// Resolve returns the effective filter for caller. Only a super admin may use
// override; for everyone else it is ignored and their own organization applies.
func Resolve(caller *models.Identity, override *uuid.UUID) (Filter, error) {
	if caller == nil {
		return Filter{}, apperr.New(apperr.CodeAuthenticationRequired)
	}
	if caller.IsSuperAdmin() {
		return Filter{OrganizationID: override}, nil
	}
	if caller.OrganizationID == nil {
		return Filter{}, apperr.New(apperr.CodeNoOrganization)
	}
	org := *caller.OrganizationID
	return Filter{OrganizationID: &org}, nil
}

// CheckAccess rejects access by caller to a resource owned by org unless caller
// is a super admin or a member of org.
func CheckAccess(caller *models.Identity, org uuid.UUID) error {
	if caller == nil {
		return apperr.New(apperr.CodeAuthenticationRequired)
	}
	if caller.IsSuperAdmin() {
		return nil
	}
	if caller.OrganizationID == nil {
		return apperr.New(apperr.CodeNoOrganization)
	}
	if *caller.OrganizationID != org {
		return apperr.New(apperr.CodeCrossTenantAccessDenied)
	}
	return nil
}

// Target picks the organization a new resource is created in. Super admins
// name it through override and fall back to their own organization; everyone
// else always creates in their own.
func Target(caller *models.Identity, override *uuid.UUID) (uuid.UUID, error) {
	f, err := Resolve(caller, override)
	if err != nil {
		return uuid.Nil, err
	}
	if f.OrganizationID != nil {
		return *f.OrganizationID, nil
	}
	if caller.OrganizationID != nil {
		return *caller.OrganizationID, nil
	}
	return uuid.Nil, apperr.New(apperr.CodeInvalidInput, OverrideParam+" is required")
}

// ParseOverride parses the raw override parameter. Empty means none.
func ParseOverride(raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.New(apperr.CodeInvalidInput, "invalid "+OverrideParam)
	}
	return &id, nil
}
