package invites

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/pkg/database"
)

// Repository is the Postgres invite Store.
type Repository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewRepository creates an invites repository. timeout bounds every call.
func NewRepository(pool *pgxpool.Pool, timeout time.Duration) *Repository {
	return &Repository{pool: pool, timeout: timeout}
}

const (
	inviteColumns = `i.id, i.token, i.organization_id, i.email, i.role, i.invited_by, i.expires_at, i.used_at, i.used_by, i.created_at`
	orgColumns    = `o.id, o.name, o.subdomain, o.is_active, o.contact_email, o.created_at, o.updated_at`
	joined        = `SELECT ` + inviteColumns + `, ` + orgColumns + `
		FROM organization_invites i JOIN organizations o ON o.id = i.organization_id`
)

func scanInvite(row pgx.Row) (*models.Invite, error) {
	var inv models.Invite
	var org models.Organization
	err := row.Scan(&inv.ID, &inv.Token, &inv.OrganizationID, &inv.Email, &inv.Role, &inv.InvitedBy,
		&inv.ExpiresAt, &inv.UsedAt, &inv.UsedBy, &inv.CreatedAt,
		&org.ID, &org.Name, &org.Subdomain, &org.IsActive, &org.ContactEmail, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, database.Translate(err)
	}
	inv.Organization = &org
	return &inv, nil
}

// CreateInvite locks the organization row so that concurrent creations for
// the same organization serialize on the pending check. It fails with
// database.ErrInactive if the organization is deactivated.
func (r *Repository) CreateInvite(ctx context.Context, inv *models.Invite, now time.Time) (*models.Invite, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var org models.Organization
	err = tx.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations o WHERE o.id = $1 FOR UPDATE`, inv.OrganizationID).
		Scan(&org.ID, &org.Name, &org.Subdomain, &org.IsActive, &org.ContactEmail, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, database.Translate(err)
	}
	if !org.IsActive {
		return nil, database.ErrInactive
	}

	var pending bool
	const pendingQ = `SELECT EXISTS (SELECT 1 FROM organization_invites
		WHERE organization_id = $1 AND lower(email) = lower($2) AND used_at IS NULL AND expires_at > $3)`
	if err := tx.QueryRow(ctx, pendingQ, inv.OrganizationID, inv.Email, now).Scan(&pending); err != nil {
		return nil, err
	}
	if pending {
		return nil, database.ErrConflict
	}

	stored := *inv
	const insertQ = `INSERT INTO organization_invites (token, organization_id, email, role, invited_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	err = tx.QueryRow(ctx, insertQ, inv.Token, inv.OrganizationID, inv.Email, string(inv.Role), inv.InvitedBy, inv.ExpiresAt, now).
		Scan(&stored.ID, &stored.CreatedAt)
	if err != nil {
		return nil, database.Translate(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	stored.Organization = &org
	return &stored, nil
}

// GetInviteByToken returns the invite for token.
func (r *Repository) GetInviteByToken(ctx context.Context, token string) (*models.Invite, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()
	return scanInvite(r.pool.QueryRow(ctx, joined+` WHERE i.token = $1`, token))
}

// GetInvite returns an invite by id.
func (r *Repository) GetInvite(ctx context.Context, id uuid.UUID) (*models.Invite, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()
	return scanInvite(r.pool.QueryRow(ctx, joined+` WHERE i.id = $1`, id))
}

// ListInvites returns invites newest first.
func (r *Repository) ListInvites(ctx context.Context, organizationID *uuid.UUID) ([]models.Invite, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()

	q := joined
	var args []any
	if organizationID != nil {
		q += ` WHERE i.organization_id = $1`
		args = append(args, *organizationID)
	}
	q += ` ORDER BY i.created_at DESC`
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Invite{}
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *inv)
	}
	return list, rows.Err()
}

// RedeemInvite sets used_at and used_by only while the invite is still
// pending. A concurrent redeemer blocks on the row lock and then fails the
// used_at IS NULL recheck.
func (r *Repository) RedeemInvite(ctx context.Context, token string, usedBy uuid.UUID, now time.Time) (*models.Invite, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `UPDATE organization_invites i SET used_at = $3, used_by = $2
		FROM organizations o
		WHERE i.token = $1 AND i.used_at IS NULL AND i.expires_at > $3
			AND o.id = i.organization_id AND o.is_active
		RETURNING ` + inviteColumns + `, ` + orgColumns
	inv, err := scanInvite(r.pool.QueryRow(ctx, q, token, usedBy, now))
	if errors.Is(err, database.ErrNotFound) {
		return nil, database.ErrConflict
	}
	return inv, err
}

// DeleteInvite removes an invite.
func (r *Repository) DeleteInvite(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()
	tag, err := r.pool.Exec(ctx, `DELETE FROM organization_invites WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}
