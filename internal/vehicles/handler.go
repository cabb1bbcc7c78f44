package vehicles

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fleettrack/backend/internal/middleware"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/internal/tenancy"
	"github.com/fleettrack/backend/pkg/response"
)

// CreateVehicleRequest is the body for POST /vehicles.
type CreateVehicleRequest struct {
	Name          string  `json:"name" binding:"required"`
	Plate         string  `json:"plate" binding:"required"`
	SnowsatNumber string  `json:"snowsat_number"`
	IsRetired     bool    `json:"is_retired"`
	Location      *string `json:"location"`
	VehicleType   *string `json:"vehicle_type"`
	FuelType      *string `json:"fuel_type"`
	Notes         *string `json:"notes"`
}

// Handler handles vehicle HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a vehicles handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List handles GET /vehicles.
func (h *Handler) List(c *gin.Context) {
	override, err := tenancy.ParseOverride(c.Query(tenancy.OverrideParam))
	if err != nil {
		response.Error(c, err)
		return
	}
	list, err := h.svc.List(c.Request.Context(), middleware.CurrentIdentity(c), override)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /vehicles/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	v, err := h.svc.Get(c.Request.Context(), middleware.CurrentIdentity(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, v)
}

// Create handles POST /vehicles.
func (h *Handler) Create(c *gin.Context) {
	var req CreateVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	override, err := tenancy.ParseOverride(c.Query(tenancy.OverrideParam))
	if err != nil {
		response.Error(c, err)
		return
	}
	v, err := h.svc.Create(c.Request.Context(), middleware.CurrentIdentity(c), override, models.Vehicle{
		Name:          req.Name,
		Plate:         req.Plate,
		SnowsatNumber: req.SnowsatNumber,
		IsRetired:     req.IsRetired,
		Location:      req.Location,
		VehicleType:   req.VehicleType,
		FuelType:      req.FuelType,
		Notes:         req.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, v)
}

// Update handles PATCH /vehicles/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var patch models.VehiclePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	v, err := h.svc.Update(c.Request.Context(), middleware.CurrentIdentity(c), id, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, v)
}

// Delete handles DELETE /vehicles/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.CurrentIdentity(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid vehicle id")
		return uuid.Nil, false
	}
	return id, true
}
