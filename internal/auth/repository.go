package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/pkg/database"
)

// ProfileStore persists profiles keyed by the identity provider subject id.
// Missing rows are reported as database.ErrNotFound.
type ProfileStore interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error)
	// InsertProfileIfAbsent stores p unless a profile with p.ID exists, and
	// returns the stored row either way. created is false when the row already
	// existed. An email owned by another subject is a unique violation.
	InsertProfileIfAbsent(ctx context.Context, p *models.Profile) (stored *models.Profile, created bool, err error)
	ListProfiles(ctx context.Context, organizationID *uuid.UUID) ([]models.Profile, error)
	UpdateProfileRole(ctx context.Context, id uuid.UUID, role models.Role) (*models.Profile, error)
	UpdateProfileOrganization(ctx context.Context, id uuid.UUID, organizationID *uuid.UUID) (*models.Profile, error)
}

// Repository is the Postgres ProfileStore.
type Repository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewRepository creates a profile repository. timeout bounds every query.
func NewRepository(pool *pgxpool.Pool, timeout time.Duration) *Repository {
	return &Repository{pool: pool, timeout: timeout}
}

// EmailConstraint is the unique index on profile emails.
const EmailConstraint = "user_profiles_email_key"

const profileColumns = `id, email, role, organization_id, COALESCE(first_name,''), COALESCE(last_name,''), created_at, updated_at`

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.ID, &p.Email, &p.Role, &p.OrganizationID, &p.FirstName, &p.LastName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, database.Translate(err)
	}
	return &p, nil
}

// GetProfile returns the profile for a subject id.
func (r *Repository) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()
	return scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE id = $1`, id))
}

// GetProfileByEmail returns the profile owning email, compared case-insensitively.
func (r *Repository) GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()
	return scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE lower(email) = lower($1)`, email))
}

// InsertProfileIfAbsent inserts p with ON CONFLICT DO NOTHING. When a concurrent
// insert won, the existing row is read back instead.
func (r *Repository) InsertProfileIfAbsent(ctx context.Context, p *models.Profile) (*models.Profile, bool, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `INSERT INTO user_profiles (id, email, role, organization_id, first_name, last_name)
		VALUES ($1, $2, $3, $4, NULLIF($5,''), NULLIF($6,''))
		ON CONFLICT (id) DO NOTHING
		RETURNING ` + profileColumns
	stored, err := scanProfile(r.pool.QueryRow(ctx, q, p.ID, p.Email, string(p.Role), p.OrganizationID, p.FirstName, p.LastName))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, false, err
	}
	stored, err = scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE id = $1`, p.ID))
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

// ListProfiles returns profiles ordered by email, limited to organizationID when set.
func (r *Repository) ListProfiles(ctx context.Context, organizationID *uuid.UUID) ([]models.Profile, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()

	q := `SELECT ` + profileColumns + ` FROM user_profiles`
	var args []any
	if organizationID != nil {
		q += ` WHERE organization_id = $1`
		args = append(args, *organizationID)
	}
	q += ` ORDER BY email`
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// UpdateProfileRole sets the role of a profile.
func (r *Repository) UpdateProfileRole(ctx context.Context, id uuid.UUID, role models.Role) (*models.Profile, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()
	const q = `UPDATE user_profiles SET role = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + profileColumns
	return scanProfile(r.pool.QueryRow(ctx, q, id, string(role)))
}

// UpdateProfileOrganization moves a profile to organizationID, or detaches it when nil.
func (r *Repository) UpdateProfileOrganization(ctx context.Context, id uuid.UUID, organizationID *uuid.UUID) (*models.Profile, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()
	const q = `UPDATE user_profiles SET organization_id = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + profileColumns
	return scanProfile(r.pool.QueryRow(ctx, q, id, organizationID))
}
