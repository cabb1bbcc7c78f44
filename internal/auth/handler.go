package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fleettrack/backend/internal/middleware"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/internal/tenancy"
	"github.com/fleettrack/backend/pkg/response"
)

// SignInRequest is the body for POST /auth/signin.
type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SignUpRequest is the body for POST /auth/signup.
type SignUpRequest struct {
	Email          string     `json:"email" binding:"required,email"`
	Password       string     `json:"password" binding:"required,min=6"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	OrganizationID *uuid.UUID `json:"organization_id"`
}

// RefreshRequest is the body for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// EmailRequest is the body for POST /auth/reset-password.
type EmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// PasswordRequest is the body for POST /auth/update-password.
type PasswordRequest struct {
	Password string `json:"password" binding:"required,min=6"`
}

// RoleRequest is the body for PATCH /users/:id/role.
type RoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// OrganizationRequest is the body for PATCH /users/:id/organization. A null
// organization_id detaches the user.
type OrganizationRequest struct {
	OrganizationID *uuid.UUID `json:"organization_id"`
}

// Handler handles auth and user management HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an auth handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// SignIn handles POST /auth/signin.
func (h *Handler) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.svc.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// SignUp handles POST /auth/signup.
func (h *Handler) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.svc.SignUp(c.Request.Context(), SignUpInput{
		Email:          req.Email,
		Password:       req.Password,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sess, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sess)
}

// SignOut handles POST /auth/signout.
func (h *Handler) SignOut(c *gin.Context) {
	token, _ := middleware.BearerToken(c)
	if err := h.svc.SignOut(c.Request.Context(), token); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "auth.signed_out")
}

// ResetPassword handles POST /auth/reset-password.
func (h *Handler) ResetPassword(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.svc.ResetPassword(c.Request.Context(), req.Email); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "auth.password_reset_sent")
}

// UpdatePassword handles POST /auth/update-password.
func (h *Handler) UpdatePassword(c *gin.Context) {
	var req PasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	token, _ := middleware.BearerToken(c)
	if err := h.svc.UpdatePassword(c.Request.Context(), token, req.Password); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "auth.password_updated")
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	p, err := h.svc.Me(c.Request.Context(), middleware.CurrentIdentity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, p)
}

// ListUsers handles GET /users.
func (h *Handler) ListUsers(c *gin.Context) {
	override, err := tenancy.ParseOverride(c.Query(tenancy.OverrideParam))
	if err != nil {
		response.Error(c, err)
		return
	}
	list, err := h.svc.ListUsers(c.Request.Context(), middleware.CurrentIdentity(c), override)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// UpdateRole handles PATCH /users/:id/role.
func (h *Handler) UpdateRole(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	role, ok := models.ParseRole(req.Role)
	if !ok {
		response.BadRequest(c, "unknown role "+req.Role)
		return
	}
	p, err := h.svc.UpdateUserRole(c.Request.Context(), middleware.CurrentIdentity(c), id, role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, p)
}

// AssignOrganization handles PATCH /users/:id/organization.
func (h *Handler) AssignOrganization(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req OrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.svc.AssignOrganization(c.Request.Context(), id, req.OrganizationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, p)
}

// AdminResetPassword handles POST /users/:id/reset-password.
func (h *Handler) AdminResetPassword(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.AdminResetPassword(c.Request.Context(), middleware.CurrentIdentity(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "auth.password_reset_sent")
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
