package invites

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleettrack/backend/internal/apperr"
	"github.com/fleettrack/backend/internal/auth"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/internal/tenancy"
	"github.com/fleettrack/backend/pkg/queue"
)

const maskedTokenLen = 8

// Registrar creates accounts and their profiles.
type Registrar interface {
	EnsureEmailFree(ctx context.Context, email string) error
	Register(ctx context.Context, email, password, firstName, lastName string, role models.Role, organizationID *uuid.UUID) (*auth.Result, error)
	ReleaseProfile(ctx context.Context, id uuid.UUID) error
}

// Notifier hands invites to the delivery worker.
type Notifier interface {
	EnqueueInviteEmail(ctx context.Context, payload queue.InviteEmailPayload) error
}

// View is an invite as listed to administrators. The token is reduced to a prefix.
type View struct {
	models.Invite
	TokenPrefix string              `json:"token_prefix"`
	Status      models.InviteStatus `json:"status"`
}

// Info is the public summary of a redeemable invite.
type Info struct {
	Email            string      `json:"email"`
	Role             models.Role `json:"role"`
	OrganizationName string      `json:"organization_name"`
	ExpiresAt        time.Time   `json:"expires_at"`
}

// AcceptInput is an invitee's registration.
type AcceptInput struct {
	Token     string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Service runs the invite flows on top of the Ledger.
type Service struct {
	ledger    *Ledger
	registrar Registrar
	notifier  Notifier
	acceptURL string
	logger    *zap.Logger
}

// NewService creates an invite service. notifier may be nil to disable delivery.
func NewService(ledger *Ledger, registrar Registrar, notifier Notifier, acceptURL string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{ledger: ledger, registrar: registrar, notifier: notifier, acceptURL: acceptURL, logger: logger}
}

// Create invites email into the caller's organization, or for a super admin
// the organization named by override. Only a super admin may invite another
// super admin.
func (s *Service) Create(ctx context.Context, caller *models.Identity, override *uuid.UUID, email string, role models.Role, locale string) (*models.Invite, error) {
	if role == models.RoleSuperAdmin && !caller.IsSuperAdmin() {
		return nil, apperr.New(apperr.CodePermissionDenied)
	}
	org, err := tenancy.Target(caller, override)
	if err != nil {
		return nil, err
	}
	inv, err := s.ledger.CreateInvite(ctx, CreateInput{
		OrganizationID: org,
		Email:          email,
		Role:           role,
		InvitedBy:      &caller.SubjectID,
	})
	if err != nil {
		return nil, err
	}
	s.deliver(ctx, inv, locale)
	return inv, nil
}

// deliver enqueues the invite email. Failures are logged; the invite stays
// valid and can be shared by hand.
func (s *Service) deliver(ctx context.Context, inv *models.Invite, locale string) {
	if s.notifier == nil {
		return
	}
	payload := queue.InviteEmailPayload{
		InviteID:       inv.ID,
		RecipientEmail: inv.Email,
		Role:           string(inv.Role),
		AcceptURL:      s.AcceptURL(inv.Token),
		ExpiresAt:      inv.ExpiresAt,
		Locale:         locale,
	}
	if inv.Organization != nil {
		payload.OrganizationName = inv.Organization.Name
	}
	if err := s.notifier.EnqueueInviteEmail(ctx, payload); err != nil {
		s.logger.Warn("invite delivery not queued", zap.String("invite_id", inv.ID.String()), zap.Error(err))
	}
}

// AcceptURL is the link an invitee follows to redeem token.
func (s *Service) AcceptURL(token string) string {
	return strings.TrimRight(s.acceptURL, "/") + "/" + url.PathEscape(token)
}

// List returns the invites visible to caller, newest first.
func (s *Service) List(ctx context.Context, caller *models.Identity, override *uuid.UUID) ([]View, error) {
	filter, err := tenancy.Resolve(caller, override)
	if err != nil {
		return nil, err
	}
	list, err := s.ledger.ListInvites(ctx, filter.OrganizationID)
	if err != nil {
		return nil, err
	}
	now := s.ledger.Now()
	views := make([]View, 0, len(list))
	for _, inv := range list {
		v := View{Invite: inv, TokenPrefix: mask(inv.Token), Status: inv.Status(now)}
		v.Token = ""
		views = append(views, v)
	}
	return views, nil
}

func mask(token string) string {
	if len(token) <= maskedTokenLen {
		return token
	}
	return token[:maskedTokenLen]
}

// Delete removes an invite. Admins may only delete invites of their own organization.
func (s *Service) Delete(ctx context.Context, caller *models.Identity, id uuid.UUID) error {
	inv, err := s.ledger.GetInvite(ctx, id)
	if err != nil {
		return err
	}
	if err := tenancy.CheckAccess(caller, inv.OrganizationID); err != nil {
		return err
	}
	return s.ledger.DeleteInvite(ctx, id)
}

// Info describes a redeemable invite without exposing ids.
func (s *Service) Info(ctx context.Context, token string) (*Info, error) {
	inv, err := s.ledger.ValidateInvite(ctx, token)
	if err != nil {
		return nil, err
	}
	return &Info{
		Email:            inv.Email,
		Role:             inv.Role,
		OrganizationName: inv.Organization.Name,
		ExpiresAt:        inv.ExpiresAt,
	}, nil
}

// Accept registers the invitee with the invite's role and organization and
// then redeems the invite. The invite is only marked used once the profile
// exists; if the redeem fails the profile loses the granted role and
// organization again.
func (s *Service) Accept(ctx context.Context, in AcceptInput) (*auth.Result, error) {
	inv, err := s.ledger.ValidateInvite(ctx, in.Token)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(in.Email), inv.Email) {
		return nil, apperr.New(apperr.CodeEmailMismatch)
	}
	if err := s.registrar.EnsureEmailFree(ctx, inv.Email); err != nil {
		return nil, err
	}

	res, err := s.registrar.Register(ctx, inv.Email, in.Password, in.FirstName, in.LastName, inv.Role, &inv.OrganizationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.RedeemInvite(ctx, in.Token, res.Profile.ID); err != nil {
		s.logger.Warn("invite not redeemed after registration",
			zap.String("invite_id", inv.ID.String()),
			zap.String("subject_id", res.Profile.ID.String()),
			zap.Error(err),
		)
		if rerr := s.registrar.ReleaseProfile(ctx, res.Profile.ID); rerr != nil {
			s.logger.Error("profile not released after failed redeem",
				zap.String("subject_id", res.Profile.ID.String()),
				zap.Error(rerr),
			)
		}
		return nil, err
	}
	return res, nil
}
