package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"bookings-assistant/internal/capture"
	"bookings-assistant/internal/linking"
	"bookings-assistant/internal/metrics"
	"bookings-assistant/internal/scheduler"
	"bookings-assistant/internal/syncer"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db        *gorm.DB
	syncer    *syncer.Engine
	linking   *linking.Service
	capture   *capture.Service
	scheduler *scheduler.Scheduler
	metrics   *metrics.Metrics
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, sync *syncer.Engine, link *linking.Service, cap *capture.Service, sched *scheduler.Scheduler, m *metrics.Metrics) *Handlers {
	return &Handlers{db: db, syncer: sync, linking: link, capture: cap, scheduler: sched, metrics: m}
}

// SetupRoutes registers all routes on the router
func (h *Handlers) SetupRoutes(r *gin.Engine) {
	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.POST("/bookings/sync", h.SyncBookings)
		api.GET("/bookings", h.GetBookings)
		api.GET("/bookings/stats", h.GetBookingStats)
		api.GET("/bookings/:id", h.GetBooking)

		api.GET("/comments", h.GetComments)

		api.POST("/emails/capture", h.CaptureEmail)
		api.GET("/emails", h.GetEmails)
		api.GET("/emails/:id", h.GetEmail)

		api.POST("/links", h.CreateLink)
		api.GET("/links", h.GetLinks)
	}
}
