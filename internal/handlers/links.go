package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bookings-assistant/internal/linking"
	"bookings-assistant/internal/models"
)

// currentUserID is the single operator user seeded at startup. Multi-user
// auth lives outside this service.
const currentUserID uint = 1

// CreateLink creates a manual link between an email and a booking
func (h *Handlers) CreateLink(c *gin.Context) {
	var req models.CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	link, err := h.linking.CreateManualLink(req.EmailMessageID, req.BookingID, currentUserID)
	if err != nil {
		if errors.Is(err, linking.ErrLinkExists) {
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "link_exists",
				Message: "This email and booking are already linked",
				Code:    http.StatusConflict,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to create link",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusCreated, link)
}

// GetLinks returns links filtered by emailId and/or bookingId
func (h *Handlers) GetLinks(c *gin.Context) {
	query := h.db.Model(&models.Link{})

	if raw := c.Query("emailId"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_id", Message: "Invalid emailId", Code: http.StatusBadRequest})
			return
		}
		query = query.Where("email_message_id = ?", id)
	}
	if raw := c.Query("bookingId"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_id", Message: "Invalid bookingId", Code: http.StatusBadRequest})
			return
		}
		query = query.Where("booking_id = ?", id)
	}

	var links []models.Link
	if err := query.Find(&links).Error; err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch links",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, links)
}
