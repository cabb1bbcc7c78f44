// Package server assembles the HTTP engine from the route table.
package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fleettrack/backend/internal/middleware"
)

// Config holds engine settings.
type Config struct {
	CORSAllowedOrigins []string
}

// New returns an engine serving routes. Every non-public route is wrapped in
// gate authentication followed by its role check.
func New(gate *middleware.Gate, routes []Route, cfg Config, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery())
	methods := make([]string, 0, len(routes))
	for _, r := range routes {
		methods = append(methods, r.Method)
	}
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins, methods))
	router.Use(middleware.Logger(logger))

	for _, r := range routes {
		chain := []gin.HandlerFunc{gate.Authenticate(r.Policy)}
		if !r.Policy.Public {
			chain = append(chain, middleware.RequireRole(r.Policy.Roles...))
		}
		chain = append(chain, r.Handler)
		router.Handle(r.Method, r.Path, chain...)
	}
	return router
}
