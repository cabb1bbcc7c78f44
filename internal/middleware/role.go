package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/fleettrack/backend/internal/apperr"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/pkg/response"
)

// Authorize allows caller iff allowed is empty or contains caller's role.
func Authorize(allowed []models.Role, caller *models.Identity) error {
	if caller == nil {
		return apperr.New(apperr.CodeAuthenticationRequired)
	}
	if len(allowed) == 0 {
		return nil
	}
	for _, r := range allowed {
		if r == caller.Role {
			return nil
		}
	}
	return apperr.New(apperr.CodePermissionDenied)
}

// RequireRole returns a middleware that allows only the given roles. It must
// run after Authenticate.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := append([]models.Role(nil), roles...)
	return func(c *gin.Context) {
		if err := Authorize(allowed, CurrentIdentity(c)); err != nil {
			response.Abort(c, err)
			return
		}
		c.Next()
	}
}
