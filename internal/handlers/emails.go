package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bookings-assistant/internal/models"
)

// CaptureEmail ingests an email captured by the browser extension
func (h *Handlers) CaptureEmail(c *gin.Context) {
	var req models.CaptureEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	result, err := h.capture.Capture(req)
	if err != nil {
		logrus.Errorf("Email capture failed: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "capture_error",
			Message: "Failed to capture email",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetEmails returns captured emails, newest first. unread=true filters to
// unread emails.
func (h *Handlers) GetEmails(c *gin.Context) {
	query := h.db.Model(&models.EmailMessage{})
	if c.Query("unread") == "true" {
		query = query.Where("is_read = ?", false)
	}

	var emails []models.EmailMessage
	if err := query.Order("received_date desc").Find(&emails).Error; err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch emails",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, emails)
}

// GetEmail returns one email with its linked bookings
func (h *Handlers) GetEmail(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_id", Message: "Invalid email ID", Code: http.StatusBadRequest})
		return
	}

	var email models.EmailMessage
	if err := h.db.First(&email, id).Error; err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: "Email not found", Code: http.StatusNotFound})
		return
	}

	linkedBookingIDs, err := h.linking.GetLinkedBookingIDs(email.ID)
	if err != nil {
		logrus.Errorf("Failed to load linked bookings for email %d: %v", email.ID, err)
	}
	linkedBookings := []models.Booking{}
	if len(linkedBookingIDs) > 0 {
		if err := h.db.Where("id IN ?", linkedBookingIDs).Find(&linkedBookings).Error; err != nil {
			logrus.Errorf("Failed to fetch linked bookings: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"email":           email,
		"linked_bookings": linkedBookings,
	})
}
