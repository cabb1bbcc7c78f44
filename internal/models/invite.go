package models

import (
	"time"

	"github.com/google/uuid"
)

// InviteStatus is the derived lifecycle state of an invite.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusExpired  InviteStatus = "expired"
	InviteStatusRedeemed InviteStatus = "redeemed"
)

// Invite is a single-use token granting Email the Role within OrganizationID.
type Invite struct {
	ID             uuid.UUID     `json:"id"`
	Token          string        `json:"token,omitempty"`
	OrganizationID uuid.UUID     `json:"organization_id"`
	Email          string        `json:"email"`
	Role           Role          `json:"role"`
	InvitedBy      *uuid.UUID    `json:"invited_by,omitempty"`
	ExpiresAt      time.Time     `json:"expires_at"`
	UsedAt         *time.Time    `json:"used_at,omitempty"`
	UsedBy         *uuid.UUID    `json:"used_by,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	Organization   *Organization `json:"organization,omitempty"`
}

// Status derives the invite state at now. Expiry is never written.
func (i *Invite) Status(now time.Time) InviteStatus {
	if i.UsedAt != nil {
		return InviteStatusRedeemed
	}
	if !now.Before(i.ExpiresAt) {
		return InviteStatusExpired
	}
	return InviteStatusPending
}

// IsPending reports whether the invite can still be redeemed at now,
// ignoring the organization's active flag.
func (i *Invite) IsPending(now time.Time) bool {
	return i.Status(now) == InviteStatusPending
}
