package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization is a tenant. Deactivation flips IsActive; rows are never removed.
type Organization struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Subdomain    *string   `json:"subdomain,omitempty"`
	IsActive     bool      `json:"is_active"`
	ContactEmail *string   `json:"contact_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OrganizationPatch holds optional organization updates; nil fields are left unchanged.
type OrganizationPatch struct {
	Name         *string `json:"name"`
	Subdomain    *string `json:"subdomain"`
	ContactEmail *string `json:"contact_email"`
	IsActive     *bool   `json:"is_active"`
}
