package models

import "github.com/google/uuid"

// Vehicle is a fleet vehicle owned by exactly one organization.
type Vehicle struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Plate          string    `json:"plate"`
	SnowsatNumber  string    `json:"snowsat_number"`
	IsRetired      bool      `json:"is_retired"`
	Location       *string   `json:"location,omitempty"`
	VehicleType    *string   `json:"vehicle_type,omitempty"`
	FuelType       *string   `json:"fuel_type,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
	OrganizationID uuid.UUID `json:"organization_id"`
}

// VehiclePatch holds optional vehicle updates; nil fields are left unchanged.
type VehiclePatch struct {
	Name          *string `json:"name"`
	Plate         *string `json:"plate"`
	SnowsatNumber *string `json:"snowsat_number"`
	IsRetired     *bool   `json:"is_retired"`
	Location      *string `json:"location"`
	VehicleType   *string `json:"vehicle_type"`
	FuelType      *string `json:"fuel_type"`
	Notes         *string `json:"notes"`
}
