package models

import (
	"strings"
	"time"
)

// Booking status values as used by the reconciliation flow. Comparisons are
// case-insensitive throughout; these are the canonical spellings stored in
// the database.
const (
	StatusProvisional = "Provisional"
	StatusConfirmed   = "Confirmed"
	StatusFuture      = "Future"
	StatusPast        = "Past"
	StatusCancelled   = "Cancelled"
)

// SyncStatusOrder is the fixed fetch/concatenation order for a full sync.
// When the same booking appears under more than one status the entry from
// the earlier list wins, so provisional data takes precedence for bookings
// that are still in flux.
var SyncStatusOrder = []string{
	StatusProvisional,
	StatusConfirmed,
	StatusFuture,
	StatusPast,
	StatusCancelled,
}

// NoEmailSentinel marks a booking whose detail was fetched and definitively
// contained no customer email. Backfill never retries a booking once this
// value is set.
const NoEmailSentinel = "no-email"

// Booking is a campsite booking mirrored from OSM
type Booking struct {
	ID                uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	OsmBookingID      string     `json:"osm_booking_id" gorm:"type:varchar(50);not null;uniqueIndex"`
	CustomerName      string     `json:"customer_name" gorm:"type:varchar(255);not null"`
	CustomerEmailHash *string    `json:"customer_email_hash,omitempty" gorm:"type:varchar(64);index"`
	CustomerNameHash  *string    `json:"customer_name_hash,omitempty" gorm:"type:varchar(64);index"`
	StartDate         time.Time  `json:"start_date" gorm:"not null"`
	EndDate           time.Time  `json:"end_date" gorm:"not null"`
	Status            string     `json:"status" gorm:"type:varchar(50);not null;index"`
	LastFetched       *time.Time `json:"last_fetched,omitempty"`

	Comments []Comment `json:"comments,omitempty" gorm:"foreignKey:OsmBookingID;references:OsmBookingID;constraint:OnDelete:CASCADE"`
	Links    []Link    `json:"links,omitempty" gorm:"foreignKey:BookingID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Booking
func (Booking) TableName() string {
	return "bookings"
}

// Comment is an OSM booking comment. It references its booking by the OSM
// booking id value rather than the local surrogate key.
type Comment struct {
	ID           uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	OsmBookingID string     `json:"osm_booking_id" gorm:"type:varchar(50);not null;index"`
	OsmCommentID string     `json:"osm_comment_id" gorm:"type:varchar(50);not null;uniqueIndex"`
	AuthorName   string     `json:"author_name" gorm:"type:varchar(255);not null"`
	TextPreview  string     `json:"text_preview" gorm:"type:varchar(255)"`
	CreatedDate  time.Time  `json:"created_date" gorm:"not null"`
	IsNew        bool       `json:"is_new"`
	LastFetched  *time.Time `json:"last_fetched,omitempty"`
}

// TableName specifies the table name for Comment
func (Comment) TableName() string {
	return "comments"
}

// EmailMessage is a captured email
type EmailMessage struct {
	ID                  uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID           string     `json:"message_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	SenderEmailHash     *string    `json:"sender_email_hash,omitempty" gorm:"type:varchar(64);index"`
	SenderName          string     `json:"sender_name" gorm:"type:varchar(255)"`
	Subject             string     `json:"subject" gorm:"type:varchar(500);not null"`
	ReceivedDate        time.Time  `json:"received_date" gorm:"not null"`
	IsRead              bool       `json:"is_read"`
	ExtractedBookingRef *string    `json:"extracted_booking_ref,omitempty" gorm:"type:varchar(50);index"`
	LastFetched         *time.Time `json:"last_fetched,omitempty"`

	Links []Link `json:"links,omitempty" gorm:"foreignKey:EmailMessageID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for EmailMessage
func (EmailMessage) TableName() string {
	return "email_messages"
}

// Link associates a captured email with a booking. CreatedByUserID is nil
// for links created automatically by the linking engine.
type Link struct {
	ID              uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	EmailMessageID  uint      `json:"email_message_id" gorm:"not null;index"`
	BookingID       uint      `json:"booking_id" gorm:"not null;index"`
	CreatedByUserID *uint     `json:"created_by_user_id,omitempty"`
	CreatedDate     time.Time `json:"created_date" gorm:"not null"`
}

// TableName specifies the table name for Link
func (Link) TableName() string {
	return "links"
}

// User is a minimal identity placeholder. The current deployment runs with a
// single seeded user; multi-user auth is handled elsewhere.
type User struct {
	ID       uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	Name     string     `json:"name" gorm:"type:varchar(100);not null"`
	LastSync *time.Time `json:"last_sync,omitempty"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// IsActiveStatus reports whether a booking status is subject to comment sync
// and email backfill (Provisional or Confirmed).
func IsActiveStatus(status string) bool {
	return strings.EqualFold(status, StatusProvisional) || strings.EqualFold(status, StatusConfirmed)
}

// IsTerminalStatus reports whether a booking status excludes it from
// backfill selection (Past or Cancelled).
func IsTerminalStatus(status string) bool {
	return strings.EqualFold(status, StatusPast) || strings.EqualFold(status, StatusCancelled)
}
