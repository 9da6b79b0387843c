package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bookings-assistant/internal/models"
	"bookings-assistant/internal/osm"
)

// SyncBookings triggers a full sync against the OSM API. Authentication
// failures map to 401 so the dashboard can prompt for re-authentication;
// any other sync failure maps to 502.
func (h *Handlers) SyncBookings(c *gin.Context) {
	result, err := h.syncer.SyncAll(c.Request.Context())
	if err != nil {
		if errors.Is(err, osm.ErrAuthRequired) {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "authentication_required",
				Message: "OSM authentication required",
				Code:    http.StatusUnauthorized,
			})
			return
		}
		logrus.Errorf("Sync failed: %v", err)
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "sync_error",
			Message: "Failed to sync bookings from OSM",
			Code:    http.StatusBadGateway,
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetBookings returns stored bookings, optionally filtered by status.
// This is a pure read; it never writes through to the store.
func (h *Handlers) GetBookings(c *gin.Context) {
	query := h.db.Model(&models.Booking{})
	if status := c.Query("status"); status != "" {
		query = query.Where("LOWER(status) = LOWER(?)", status)
	}

	var bookings []models.Booking
	if err := query.Order("start_date").Find(&bookings).Error; err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch bookings",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, bookings)
}

// GetBooking returns one booking with its comments and linked emails
func (h *Handlers) GetBooking(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_id", Message: "Invalid booking ID", Code: http.StatusBadRequest})
		return
	}

	var booking models.Booking
	if err := h.db.First(&booking, id).Error; err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: "Booking not found", Code: http.StatusNotFound})
		return
	}

	var comments []models.Comment
	if err := h.db.Where("osm_booking_id = ?", booking.OsmBookingID).
		Order("created_date desc").Find(&comments).Error; err != nil {
		logrus.Errorf("Failed to load comments for booking %d: %v", booking.ID, err)
	}

	linkedEmailIDs, err := h.linking.GetLinkedEmailIDs(booking.ID)
	if err != nil {
		logrus.Errorf("Failed to load linked emails for booking %d: %v", booking.ID, err)
	}
	linkedEmails := []models.EmailMessage{}
	if len(linkedEmailIDs) > 0 {
		if err := h.db.Where("id IN ?", linkedEmailIDs).
			Order("received_date desc").Find(&linkedEmails).Error; err != nil {
			logrus.Errorf("Failed to fetch linked emails: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"booking":       booking,
		"comments":      comments,
		"linked_emails": linkedEmails,
	})
}

// GetBookingStats returns booking counts grouped by status
func (h *Handlers) GetBookingStats(c *gin.Context) {
	type row struct {
		Status string
		Count  int
	}
	var rows []row
	if err := h.db.Model(&models.Booking{}).
		Select("status, count(*) as count").
		Group("status").Scan(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to compute booking stats",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	stats := models.BookingStats{}
	for _, r := range rows {
		stats.Total += r.Count
		switch {
		case strings.EqualFold(r.Status, models.StatusProvisional):
			stats.Provisional += r.Count
		case strings.EqualFold(r.Status, models.StatusConfirmed):
			stats.Confirmed += r.Count
		case strings.EqualFold(r.Status, models.StatusFuture):
			stats.Future += r.Count
		case strings.EqualFold(r.Status, models.StatusPast):
			stats.Past += r.Count
		case strings.EqualFold(r.Status, models.StatusCancelled):
			stats.Cancelled += r.Count
		}
	}

	c.JSON(http.StatusOK, stats)
}
