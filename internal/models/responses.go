package models

import "time"

// BookingDTO is a booking as fetched from the OSM gateway, before it is
// reconciled into storage.
type BookingDTO struct {
	OsmBookingID string    `json:"osm_booking_id"`
	CustomerName string    `json:"customer_name"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	Status       string    `json:"status"`
}

// CommentDTO is a booking comment as fetched from the OSM gateway
type CommentDTO struct {
	OsmBookingID string    `json:"osm_booking_id"`
	OsmCommentID string    `json:"osm_comment_id"`
	AuthorName   string    `json:"author_name"`
	TextPreview  string    `json:"text_preview"`
	CreatedDate  time.Time `json:"created_date"`
}

// SyncResult reports what a full sync changed
type SyncResult struct {
	Added           int `json:"added"`
	Updated         int `json:"updated"`
	CommentsAdded   int `json:"comments_added"`
	CommentsUpdated int `json:"comments_updated"`
}

// Total is the number of bookings touched by the sync
func (r SyncResult) Total() int {
	return r.Added + r.Updated
}

// CaptureEmailRequest is the payload sent by the browser extension (or the
// mailbox ingest job) when an email is captured.
type CaptureEmailRequest struct {
	SenderEmail  string    `json:"sender_email" binding:"required"`
	SenderName   string    `json:"sender_name"`
	Subject      string    `json:"subject" binding:"required"`
	BodyText     string    `json:"body_text"`
	ReceivedDate time.Time `json:"received_date" binding:"required"`
}

// CaptureEmailResponse reports the outcome of an email capture
type CaptureEmailResponse struct {
	EmailID             uint   `json:"email_id"`
	AutoLinked          bool   `json:"auto_linked"`
	LinkedBookingIDs    []uint `json:"linked_booking_ids"`
	SuggestedBookingIDs []uint `json:"suggested_booking_ids"`
}

// CreateLinkRequest creates a manual link between an email and a booking
type CreateLinkRequest struct {
	EmailMessageID uint `json:"email_message_id" binding:"required"`
	BookingID      uint `json:"booking_id" binding:"required"`
}

// CommentResponse is a stored comment joined with its booking for list views
type CommentResponse struct {
	Comment
	Booking *Booking `json:"booking,omitempty"`
}

// BookingStats counts bookings by status
type BookingStats struct {
	Provisional int `json:"provisional"`
	Confirmed   int `json:"confirmed"`
	Future      int `json:"future"`
	Past        int `json:"past"`
	Cancelled   int `json:"cancelled"`
	Total       int `json:"total"`
}

// ErrorResponse is the JSON error envelope returned by the HTTP layer
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse is returned by the health check endpoint
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Metrics   map[string]string `json:"metrics"`
}
