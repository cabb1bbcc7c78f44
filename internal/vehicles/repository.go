package vehicles

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/pkg/database"
)

// Store persists vehicles. Missing rows are database.ErrNotFound.
type Store interface {
	ListVehicles(ctx context.Context, organizationID *uuid.UUID) ([]models.Vehicle, error)
	GetVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	CreateVehicle(ctx context.Context, v *models.Vehicle) (*models.Vehicle, error)
	UpdateVehicle(ctx context.Context, id uuid.UUID, patch models.VehiclePatch) (*models.Vehicle, error)
	DeleteVehicle(ctx context.Context, id uuid.UUID) error
}

// Repository is the Postgres vehicle Store.
type Repository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewRepository creates a vehicles repository.
func NewRepository(pool *pgxpool.Pool, timeout time.Duration) *Repository {
	return &Repository{pool: pool, timeout: timeout}
}

const columns = `id, name, plate, snowsat_number, is_retired, location, vehicle_type, fuel_type, notes, organization_id`

func scan(row pgx.Row) (*models.Vehicle, error) {
	var v models.Vehicle
	err := row.Scan(&v.ID, &v.Name, &v.Plate, &v.SnowsatNumber, &v.IsRetired,
		&v.Location, &v.VehicleType, &v.FuelType, &v.Notes, &v.OrganizationID)
	if err != nil {
		return nil, database.Translate(err)
	}
	return &v, nil
}

// ListVehicles returns vehicles ordered by name, limited to one organization
// unless organizationID is nil.
func (r *Repository) ListVehicles(ctx context.Context, organizationID *uuid.UUID) ([]models.Vehicle, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()
	q := `SELECT ` + columns + ` FROM vehicles`
	args := []any{}
	if organizationID != nil {
		q += ` WHERE organization_id = $1`
		args = append(args, *organizationID)
	}
	q += ` ORDER BY name`
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Vehicle{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *v)
	}
	return list, rows.Err()
}

// GetVehicle returns a vehicle by ID.
func (r *Repository) GetVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()
	return scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM vehicles WHERE id = $1`, id))
}

// CreateVehicle inserts a vehicle. An unknown organization is database.ErrNotFound.
func (r *Repository) CreateVehicle(ctx context.Context, v *models.Vehicle) (*models.Vehicle, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()
	const q = `INSERT INTO vehicles (name, plate, snowsat_number, is_retired, location, vehicle_type, fuel_type, notes, organization_id)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, o.id FROM organizations o WHERE o.id = $9
		RETURNING ` + columns
	return scan(r.pool.QueryRow(ctx, q, v.Name, v.Plate, v.SnowsatNumber, v.IsRetired,
		v.Location, v.VehicleType, v.FuelType, v.Notes, v.OrganizationID))
}

// UpdateVehicle applies the non-nil fields of patch.
func (r *Repository) UpdateVehicle(ctx context.Context, id uuid.UUID, patch models.VehiclePatch) (*models.Vehicle, error) {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()
	const q = `UPDATE vehicles SET
			name = COALESCE($2, name),
			plate = COALESCE($3, plate),
			snowsat_number = COALESCE($4, snowsat_number),
			is_retired = COALESCE($5, is_retired),
			location = COALESCE($6, location),
			vehicle_type = COALESCE($7, vehicle_type),
			fuel_type = COALESCE($8, fuel_type),
			notes = COALESCE($9, notes)
		WHERE id = $1
		RETURNING ` + columns
	return scan(r.pool.QueryRow(ctx, q, id, patch.Name, patch.Plate, patch.SnowsatNumber, patch.IsRetired,
		patch.Location, patch.VehicleType, patch.FuelType, patch.Notes))
}

// DeleteVehicle removes a vehicle.
func (r *Repository) DeleteVehicle(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := database.WithTimeout(ctx, r.timeout)
	defer cancel()
	tag, err := r.pool.Exec(ctx, `DELETE FROM vehicles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

