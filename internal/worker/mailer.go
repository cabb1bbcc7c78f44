package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/fleettrack/backend/internal/i18n"
	"github.com/fleettrack/backend/pkg/queue"
)

// Mailer delivers invite emails.
type Mailer interface {
	SendInvite(ctx context.Context, invite queue.InviteEmailPayload) error
}

// LogMailer writes the localized invite subject to the log instead of
// sending mail. The accept link is never logged.
type LogMailer struct {
	bundle *i18n.Bundle
	logger *zap.Logger
}

// NewLogMailer creates a log mailer. A nil bundle uses i18n.Default().
func NewLogMailer(bundle *i18n.Bundle, logger *zap.Logger) *LogMailer {
	if bundle == nil {
		bundle = i18n.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{bundle: bundle, logger: logger}
}

// Subject returns the localized subject line for invite.
func (m *LogMailer) Subject(invite queue.InviteEmailPayload) string {
	tag := m.bundle.Match(invite.Locale)
	return m.bundle.Sprintf(tag, "invites.email_subject", invite.OrganizationName)
}

// SendInvite logs the invite.
func (m *LogMailer) SendInvite(_ context.Context, invite queue.InviteEmailPayload) error {
	m.logger.Info("invite email",
		zap.String("invite_id", invite.InviteID.String()),
		zap.String("to", invite.RecipientEmail),
		zap.String("subject", m.Subject(invite)),
		zap.String("role", invite.Role),
		zap.Time("expires_at", invite.ExpiresAt),
	)
	return nil
}
