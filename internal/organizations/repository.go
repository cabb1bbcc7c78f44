package organizations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/pkg/database"
)

// Unique constraints on organizations.
const (
	NameConstraint      = "organizations_name_key"
	SubdomainConstraint = "organizations_subdomain_key"
)

// Store persists organizations. Missing rows are database.ErrNotFound.
type Store interface {
	CreateOrganization(ctx context.Context, o *models.Organization) (*models.Organization, error)
	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	ListOrganizations(ctx context.Context, activeOnly bool) ([]models.Organization, error)
	UpdateOrganization(ctx context.Context, id uuid.UUID, patch models.OrganizationPatch) (*models.Organization, error)
}

// Repository is the Postgres organization Store.
type Repository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewRepository creates an organizations repository. timeout bounds every query.
func NewRepository(pool *pgxpool.Pool, timeout time.Duration) *Repository {
	return &Repository{pool: pool, timeout: timeout}
}

const columns = `id, name, subdomain, is_active, contact_email, created_at, updated_at`

func scan(row pgx.Row) (*models.Organization, error) {
	var o models.Organization
	if err := row.Scan(&o.ID, &o.Name, &o.Subdomain, &o.IsActive, &o.ContactEmail, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, database.Translate(err)
	}
	return &o, nil
}

// CreateOrganization inserts an organization.
func (r *Repository) CreateOrganization(ctx context.Context, o *models.Organization) (*models.Organization, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()
	const q = `INSERT INTO organizations (name, subdomain, is_active, contact_email)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + columns
	return scan(r.pool.QueryRow(ctx, q, o.Name, o.Subdomain, o.IsActive, o.ContactEmail))
}

// GetOrganization returns an organization by ID, active or not.
func (r *Repository) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()
	return scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM organizations WHERE id = $1`, id))
}

// ListOrganizations returns organizations ordered by name.
func (r *Repository) ListOrganizations(ctx context.Context, activeOnly bool) ([]models.Organization, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()
	q := `SELECT ` + columns + ` FROM organizations`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY name`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Organization{}
	for rows.Next() {
		o, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *o)
	}
	return list, rows.Err()
}

// UpdateOrganization applies the non-nil fields of patch.
func (r *Repository) UpdateOrganization(ctx context.Context, id uuid.UUID, patch models.OrganizationPatch) (*models.Organization, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()
	const q = `UPDATE organizations SET
			name = COALESCE($2, name),
			subdomain = COALESCE($3, subdomain),
			contact_email = COALESCE($4, contact_email),
			is_active = COALESCE($5, is_active),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + columns
	return scan(r.pool.QueryRow(ctx, q, id, patch.Name, patch.Subdomain, patch.ContactEmail, patch.IsActive))
}
