// internal/api/router.go

// Package api exposes the HTTP surface: vehicle link previews, the callable endpoints
// used by the app, and the operational endpoints.
package api

import (
	"ctp-notifications/internal/api/handlers"
	"ctp-notifications/internal/api/middleware"
	"ctp-notifications/internal/common/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the handlers and auth collaborators the router mounts.
type Dependencies struct {
	Callable *handlers.CallableHandler
	Preview  *handlers.PreviewHandler
	Ops      *handlers.OpsHandler
	Tokens   middleware.TokenValidator
	Users    middleware.UserLoader
	Logger   logger.Logger
}

// NewRouter builds the gin engine.
func NewRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(deps.Logger))

	r.GET("/health", deps.Ops.Health)
	r.GET("/ready", deps.Ops.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/vehicle/:id", deps.Preview.VehiclePreview)

	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.AuthMiddleware(deps.Tokens, deps.Users, deps.Logger))
	{
		apiGroup.POST("/sendDirectNotification", deps.Callable.SendDirectNotification)
		apiGroup.POST("/sendNewVehicleNotification", deps.Callable.SendNewVehicleNotification)
		apiGroup.POST("/createCompanyEmployee", deps.Callable.CreateCompanyEmployee)

		adminGroup := apiGroup.Group("")
		adminGroup.Use(middleware.AdminMiddleware())
		{
			adminGroup.POST("/elevateAllOemToManagers", deps.Callable.ElevateAllOemToManagers)
			adminGroup.GET("/deadLetters", deps.Ops.DeadLetters)
		}
	}

	return r
}
