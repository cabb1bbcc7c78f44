// Package invites manages single-use organization invitations and the
// onboarding flow that redeems them.
package invites

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleettrack/backend/internal/apperr"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/pkg/database"
)

// DefaultTTL is how long an invite stays redeemable.
const DefaultTTL = 7 * 24 * time.Hour

const tokenBytes = 32

// Store persists invites. Reads join the parent organization.
type Store interface {
	// CreateInvite inserts inv unless a pending invite for the same
	// organization and email exists at now, in which case it returns
	// database.ErrConflict. A missing organization is database.ErrNotFound.
	CreateInvite(ctx context.Context, inv *models.Invite, now time.Time) (*models.Invite, error)
	GetInviteByToken(ctx context.Context, token string) (*models.Invite, error)
	GetInvite(ctx context.Context, id uuid.UUID) (*models.Invite, error)
	// ListInvites returns invites newest first, limited to organizationID when set.
	ListInvites(ctx context.Context, organizationID *uuid.UUID) ([]models.Invite, error)
	// RedeemInvite marks the invite used by usedBy in one conditional write. It
	// returns database.ErrConflict unless the invite was unused, unexpired at
	// now and its organization active.
	RedeemInvite(ctx context.Context, token string, usedBy uuid.UUID, now time.Time) (*models.Invite, error)
	DeleteInvite(ctx context.Context, id uuid.UUID) error
}

// OrganizationReader reads organizations by id.
type OrganizationReader interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// CreateInput describes a new invite.
type CreateInput struct {
	OrganizationID uuid.UUID
	Email          string
	Role           models.Role
	InvitedBy      *uuid.UUID
}

// Ledger creates, validates and redeems invite tokens.
type Ledger struct {
	store  Store
	orgs   OrganizationReader
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces the ledger clock.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a ledger. A non-positive ttl uses DefaultTTL.
func NewLedger(store Store, orgs OrganizationReader, ttl time.Duration, logger *zap.Logger, opts ...Option) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{store: store, orgs: orgs, ttl: ttl, now: time.Now, logger: logger}
	for _, o := range opts {
		o(l)
	}
	return l
}

// CreateInvite issues a new token for in. The returned invite is the only
// place the full token is exposed.
func (l *Ledger) CreateInvite(ctx context.Context, in CreateInput) (*models.Invite, error) {
	email := normalizeEmail(in.Email)
	if !strings.Contains(email, "@") {
		return nil, apperr.New(apperr.CodeInvalidInput, "invalid email")
	}
	role := in.Role
	if role == "" {
		role = models.DefaultRole
	}
	if _, ok := models.ParseRole(string(role)); !ok {
		return nil, apperr.New(apperr.CodeInvalidInput, "unknown role "+string(role))
	}

	org, err := l.orgs.GetOrganization(ctx, in.OrganizationID)
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeOrganizationNotFound)
	}
	if !org.IsActive {
		return nil, apperr.New(apperr.CodeOrganizationInactive)
	}

	token, err := newToken()
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err)
	}
	now := l.now()
	inv, err := l.store.CreateInvite(ctx, &models.Invite{
		Token:          token,
		OrganizationID: org.ID,
		Email:          email,
		Role:           role,
		InvitedBy:      in.InvitedBy,
		ExpiresAt:      now.Add(l.ttl),
	}, now)
	switch {
	case errors.Is(err, database.ErrConflict):
		return nil, apperr.New(apperr.CodeDuplicateActiveInvite)
	case errors.Is(err, database.ErrInactive):
		return nil, apperr.New(apperr.CodeOrganizationInactive)
	case err != nil:
		return nil, apperr.Store(err, apperr.CodeOrganizationNotFound)
	}
	l.logger.Info("invite created",
		zap.String("invite_id", inv.ID.String()),
		zap.String("organization_id", org.ID.String()),
		zap.String("role", string(role)),
	)
	return inv, nil
}

// ValidateInvite returns the invite for token with its organization if it can
// still be redeemed.
func (l *Ledger) ValidateInvite(ctx context.Context, token string) (*models.Invite, error) {
	if token == "" {
		return nil, apperr.New(apperr.CodeInviteNotFound)
	}
	inv, err := l.store.GetInviteByToken(ctx, token)
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeInviteNotFound)
	}
	if err := check(inv, l.now()); err != nil {
		return nil, err
	}
	return inv, nil
}

func check(inv *models.Invite, now time.Time) error {
	switch {
	case inv.UsedAt != nil:
		return apperr.New(apperr.CodeInviteAlreadyUsed)
	case !inv.IsPending(now):
		return apperr.New(apperr.CodeInviteExpired)
	case inv.Organization == nil || !inv.Organization.IsActive:
		return apperr.New(apperr.CodeOrganizationInactive)
	}
	return nil
}

// RedeemInvite marks token used by subjectID. Of any number of concurrent
// calls for one token at most one succeeds; the others get InviteAlreadyUsed.
func (l *Ledger) RedeemInvite(ctx context.Context, token string, subjectID uuid.UUID) (*models.Invite, error) {
	if _, err := l.ValidateInvite(ctx, token); err != nil {
		return nil, err
	}
	inv, err := l.store.RedeemInvite(ctx, token, subjectID, l.now())
	if errors.Is(err, database.ErrConflict) {
		// Lost a race or the invite changed since validation; report its state now.
		if _, verr := l.ValidateInvite(ctx, token); verr != nil {
			return nil, verr
		}
		return nil, apperr.New(apperr.CodeInviteAlreadyUsed)
	}
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeInviteNotFound)
	}
	l.logger.Info("invite redeemed",
		zap.String("invite_id", inv.ID.String()),
		zap.String("subject_id", subjectID.String()),
	)
	return inv, nil
}

// GetInvite returns an invite by id in any state.
func (l *Ledger) GetInvite(ctx context.Context, id uuid.UUID) (*models.Invite, error) {
	inv, err := l.store.GetInvite(ctx, id)
	if err != nil {
		return nil, apperr.Store(err, apperr.CodeInviteNotFound)
	}
	return inv, nil
}

// ListInvites returns invites newest first, limited to organizationID when set.
func (l *Ledger) ListInvites(ctx context.Context, organizationID *uuid.UUID) ([]models.Invite, error) {
	list, err := l.store.ListInvites(ctx, organizationID)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	return list, nil
}

// DeleteInvite removes an invite in any state.
func (l *Ledger) DeleteInvite(ctx context.Context, id uuid.UUID) error {
	if err := l.store.DeleteInvite(ctx, id); err != nil {
		return apperr.Store(err, apperr.CodeInviteNotFound)
	}
	return nil
}

// Now returns the ledger clock reading.
func (l *Ledger) Now() time.Time { return l.now() }

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate invite token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
