package organizations

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fleettrack/backend/internal/middleware"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/pkg/response"
)

// CreateOrganizationRequest is the body for POST /organizations.
type CreateOrganizationRequest struct {
	Name         string  `json:"name" binding:"required"`
	Subdomain    *string `json:"subdomain"`
	ContactEmail *string `json:"contact_email" binding:"omitempty,email"`
}

// Handler handles organization HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an organizations handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Create handles POST /organizations.
func (h *Handler) Create(c *gin.Context) {
	var req CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	o, err := h.svc.Create(c.Request.Context(), CreateInput{Name: req.Name, Subdomain: req.Subdomain, ContactEmail: req.ContactEmail})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, o)
}

// List handles GET /organizations.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /organizations/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.svc.Get(c.Request.Context(), middleware.CurrentIdentity(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, o)
}

// Update handles PATCH /organizations/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var patch models.OrganizationPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	o, err := h.svc.Update(c.Request.Context(), id, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, o)
}

// Deactivate handles DELETE /organizations/:id.
func (h *Handler) Deactivate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Deactivate(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "organizations.deactivated")
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return uuid.Nil, false
	}
	return id, true
}
