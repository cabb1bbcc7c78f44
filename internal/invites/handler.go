package invites

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fleettrack/backend/internal/middleware"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/internal/tenancy"
	"github.com/fleettrack/backend/pkg/response"
)

// CreateInviteRequest is the body for POST /invites.
type CreateInviteRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role"`
}

// AcceptInviteRequest is the body for POST /invites/accept.
type AcceptInviteRequest struct {
	Token     string `json:"token" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// CreatedInvite is the response for POST /invites. It is the only response
// carrying the full token.
type CreatedInvite struct {
	*models.Invite
	AcceptURL string `json:"accept_url"`
}

// Handler handles invite HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an invites handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Create handles POST /invites.
func (h *Handler) Create(c *gin.Context) {
	var req CreateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	role := models.DefaultRole
	if req.Role != "" {
		r, ok := models.ParseRole(req.Role)
		if !ok {
			response.BadRequest(c, "unknown role "+req.Role)
			return
		}
		role = r
	}
	override, err := tenancy.ParseOverride(c.Query(tenancy.OverrideParam))
	if err != nil {
		response.Error(c, err)
		return
	}
	inv, err := h.svc.Create(c.Request.Context(), middleware.CurrentIdentity(c), override, req.Email, role, c.GetHeader("Accept-Language"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, CreatedInvite{Invite: inv, AcceptURL: h.svc.AcceptURL(inv.Token)})
}

// List handles GET /invites.
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

// Delete handles DELETE /invites/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid invite id")
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.CurrentIdentity(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "invites.deleted")
}

// Info handles GET /invites/:token.
func (h *Handler) Info(c *gin.Context) {
	info, err := h.svc.Info(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, info)
}

// Accept handles POST /invites/accept.
func (h *Handler) Accept(c *gin.Context) {
	var req AcceptInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.svc.Accept(c.Request.Context(), AcceptInput{
		Token:     req.Token,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}
