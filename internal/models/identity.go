package models

import "github.com/google/uuid"

// Identity is the caller resolved by the authentication gate for one request.
// Role and OrganizationID come from the local profile, never from token claims.
type Identity struct {
	SubjectID      uuid.UUID  `json:"subject_id"`
	Email          string     `json:"email"`
	Role           Role       `json:"role"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
}

// IdentityFor builds the request identity for a stored profile.
func IdentityFor(p *Profile) *Identity {
	return &Identity{SubjectID: p.ID, Email: p.Email, Role: p.Role, OrganizationID: p.OrganizationID}
}

// IsSuperAdmin reports whether the identity is unrestricted by organization.
func (i *Identity) IsSuperAdmin() bool {
	return i != nil && i.Role == RoleSuperAdmin
}

// InOrganization reports whether the identity belongs to org.
func (i *Identity) InOrganization(org uuid.UUID) bool {
	return i != nil && i.OrganizationID != nil && *i.OrganizationID == org
}
