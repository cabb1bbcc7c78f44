package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleettrack/backend/internal/auth"
	"github.com/fleettrack/backend/internal/invites"
	"github.com/fleettrack/backend/internal/middleware"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/internal/organizations"
	"github.com/fleettrack/backend/internal/vehicles"
	"github.com/fleettrack/backend/pkg/response"
)

// Route is one entry of the HTTP surface together with its access policy.
type Route struct {
	Method  string
	Path    string
	Policy  middleware.Policy
	Handler gin.HandlerFunc
}

// Handlers are the feature handlers mounted by Routes.
type Handlers struct {
	Auth          *auth.Handler
	Organizations *organizations.Handler
	Invites       *invites.Handler
	Vehicles      *vehicles.Handler
}

var (
	public        = middleware.Policy{Public: true}
	authenticated = middleware.Policy{}
	admins        = middleware.Policy{Roles: []models.Role{models.RoleAdmin, models.RoleSuperAdmin}}
	superAdmin    = middleware.Policy{Roles: []models.Role{models.RoleSuperAdmin}}
)

// Routes returns the complete route table.
func Routes(h Handlers) []Route {
	return []Route{
		{http.MethodGet, "/health", public, health},

		// Auth
		{http.MethodPost, "/auth/signin", public, h.Auth.SignIn},
		{http.MethodPost, "/auth/signup", public, h.Auth.SignUp},
		{http.MethodPost, "/auth/refresh", public, h.Auth.Refresh},
		{http.MethodPost, "/auth/reset-password", public, h.Auth.ResetPassword},
		{http.MethodPost, "/auth/signout", authenticated, h.Auth.SignOut},
		{http.MethodPost, "/auth/update-password", authenticated, h.Auth.UpdatePassword},
		{http.MethodGet, "/auth/me", authenticated, h.Auth.Me},

		// Users
		{http.MethodGet, "/users", admins, h.Auth.ListUsers},
		{http.MethodPatch, "/users/:id/role", admins, h.Auth.UpdateRole},
		{http.MethodPatch, "/users/:id/organization", superAdmin, h.Auth.AssignOrganization},
		{http.MethodPost, "/users/:id/reset-password", admins, h.Auth.AdminResetPassword},

		// Organizations
		{http.MethodGet, "/organizations", superAdmin, h.Organizations.List},
		{http.MethodPost, "/organizations", superAdmin, h.Organizations.Create},
		{http.MethodGet, "/organizations/:id", admins, h.Organizations.Get},
		{http.MethodPatch, "/organizations/:id", superAdmin, h.Organizations.Update},
		{http.MethodDelete, "/organizations/:id", superAdmin, h.Organizations.Deactivate},

		// Invites
		{http.MethodGet, "/invites", admins, h.Invites.List},
		{http.MethodPost, "/invites", admins, h.Invites.Create},
		{http.MethodDelete, "/invites/:id", admins, h.Invites.Delete},
		{http.MethodGet, "/invites/:token", public, h.Invites.Info},
		{http.MethodPost, "/invites/accept", public, h.Invites.Accept},

		// Vehicles
		{http.MethodGet, "/vehicles", authenticated, h.Vehicles.List},
		{http.MethodPost, "/vehicles", admins, h.Vehicles.Create},
		{http.MethodGet, "/vehicles/:id", authenticated, h.Vehicles.Get},
		{http.MethodPatch, "/vehicles/:id", admins, h.Vehicles.Update},
		{http.MethodDelete, "/vehicles/:id", admins, h.Vehicles.Delete},
	}
}

func health(c *gin.Context) {
	response.OK(c, gin.H{"status": "ok"})
}
