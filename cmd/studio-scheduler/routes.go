package main

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-scheduler/internal/handler"
	"github.com/noah-isme/studio-scheduler/internal/middleware"
	"github.com/noah-isme/studio-scheduler/internal/models"
)

type routeHandlers struct {
	patterns     *handler.PatternHandler
	classes      *handler.ClassHandler
	sessions     *handler.ClassSessionHandler
	openStudio   *handler.OpenStudioHandler
	reservations *handler.ReservationHandler
	metrics      *handler.MetricsHandler
}

func registerRoutes(api *gin.RouterGroup, h routeHandlers) {
	staff := middleware.RBAC(models.RoleOwner, models.RoleAdmin, models.RoleInstructor)
	admin := middleware.RBAC(models.RoleOwner, models.RoleAdmin)

	patterns := api.Group("/patterns")
	patterns.POST("/expand", staff, h.patterns.Expand)
	patterns.GET("/:id/occurrences", staff, h.patterns.Occurrences)
	patterns.POST("/:id/materialize", admin, h.patterns.Materialize)

	classes := api.Group("/classes")
	classes.GET("/:id/requirements", h.classes.Requirements)
	classes.POST("/:id/sessions/cleanup", admin, h.classes.CleanupDuplicates)
	classes.GET("/:id/sessions/export", staff, h.classes.ExportSessions)

	sessions := api.Group("/sessions")
	sessions.POST("/:id/allocations", h.sessions.Allocate)
	sessions.GET("/:id/allocations", staff, h.sessions.Ledger)
	sessions.DELETE("/:id/allocations/:registrationId", h.sessions.Release)
	sessions.GET("/:id/release-time", h.sessions.ReleaseTime)
	sessions.POST("/:id/cancel", staff, h.sessions.Cancel)
	sessions.DELETE("/:id", admin, h.sessions.Delete)

	api.POST("/allocations/backfill", admin, h.sessions.Backfill)

	openStudio := api.Group("/open-studio")
	openStudio.GET("/:id/availability", h.openStudio.Availability)
	openStudio.POST("/:id/waitlist", h.openStudio.JoinWaitlist)
	openStudio.POST("/:id/waitlist/:resourceId/promote", staff, h.openStudio.Promote)
	api.DELETE("/waitlist/:entryId", h.openStudio.LeaveWaitlist)

	api.POST("/reservations/:id/cancel", h.reservations.Cancel)

	api.GET("/metrics/summary", admin, h.metrics.Summary)
}
