package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bookings-assistant/internal/models"
)

// GetComments returns stored comments, newest first. Supports newOnly and
// since filters; limit is clamped to 1..100.
func (h *Handlers) GetComments(c *gin.Context) {
	query := h.db.Model(&models.Comment{})

	if c.Query("newOnly") == "true" {
		query = query.Where("is_new = ?", true)
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_since",
				Message: "since must be an RFC3339 timestamp",
				Code:    http.StatusBadRequest,
			})
			return
		}
		query = query.Where("created_date >= ?", t)
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	var comments []models.Comment
	if err := query.Order("created_date desc").Limit(limit).Find(&comments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch comments",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	// Join bookings in memory; comments reference bookings by OSM id
	bookingIDs := make([]string, 0, len(comments))
	seen := make(map[string]struct{})
	for _, cm := range comments {
		if _, ok := seen[cm.OsmBookingID]; !ok {
			seen[cm.OsmBookingID] = struct{}{}
			bookingIDs = append(bookingIDs, cm.OsmBookingID)
		}
	}

	bookingMap := make(map[string]models.Booking)
	if len(bookingIDs) > 0 {
		var bookings []models.Booking
		if err := h.db.Where("osm_booking_id IN ?", bookingIDs).Find(&bookings).Error; err == nil {
			for _, b := range bookings {
				bookingMap[b.OsmBookingID] = b
			}
		}
	}

	responses := make([]models.CommentResponse, 0, len(comments))
	for _, cm := range comments {
		resp := models.CommentResponse{Comment: cm}
		if b, ok := bookingMap[cm.OsmBookingID]; ok {
			booking := b
			resp.Booking = &booking
		}
		responses = append(responses, resp)
	}

	c.JSON(http.StatusOK, responses)
}
