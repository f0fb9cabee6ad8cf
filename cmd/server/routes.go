package main

import (
	"github.com/clubstack/memberhub/internal/handlers"
	"github.com/clubstack/memberhub/internal/middleware"
	"github.com/clubstack/memberhub/internal/services"
	"github.com/clubstack/memberhub/internal/store"
	"github.com/clubstack/memberhub/pkg/logger"
	"github.com/gin-gonic/gin"
)

// setupRouter wires the HTTP surface. Authorization is route-group level:
// the engine itself trusts whatever member id the token carries.
func setupRouter(st store.Store, alloc *services.AllocationService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinLogger())
	r.Use(middleware.CORS())

	healthHandler := handlers.NewHealthHandler(st)
	r.GET("/health", healthHandler.CheckHealth)

	joinHandler := handlers.NewJoinRequestHandler(alloc, st)
	projectHandler := handlers.NewProjectHandler(st)
	memberHandler := handlers.NewMemberHandler(st)

	limiter := middleware.NewRateLimiter(10, 20)

	api := r.Group("/api")
	api.Use(limiter.Middleware())
	api.Use(middleware.AuthRequired())
	api.Use(middleware.RequestID())
	{
		// Member-facing
		api.GET("/projects", projectHandler.List)
		api.GET("/projects/:id", projectHandler.Get)
		api.POST("/projects/:id/join", joinHandler.Join)
		api.DELETE("/join-requests/:id", joinHandler.Cancel)
		api.GET("/members/me", memberHandler.Me)
		api.GET("/members/:id", memberHandler.Get)

		// Admin console
		admin := api.Group("")
		admin.Use(middleware.AdminRequired())
		{
			admin.POST("/projects", projectHandler.Create)
			admin.PUT("/projects/:id", projectHandler.Update)
			admin.GET("/projects/:id/members", projectHandler.Members)
			admin.GET("/projects/:id/join-requests", joinHandler.ListByProject)
			admin.POST("/projects/:id/members", joinHandler.ManualAdd)
			admin.POST("/join-requests/:id/approve", joinHandler.Approve)
			admin.POST("/join-requests/:id/reject", joinHandler.Reject)
			admin.POST("/members", memberHandler.Create)
		}
	}

	return r
}
