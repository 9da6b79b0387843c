package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bookings-assistant/internal/hashing"
	"bookings-assistant/internal/linking"
	"bookings-assistant/internal/metrics"
	"bookings-assistant/internal/models"
)

// Service ingests captured emails (from the browser extension or the
// mailbox ingest job), auto-links them to bookings and computes suggested
// bookings when no auto-link was found.
type Service struct {
	db      *gorm.DB
	hasher  *hashing.Hasher
	linking *linking.Service
	metrics *metrics.Metrics
}

// New creates a capture service
func New(db *gorm.DB, hasher *hashing.Hasher, linkSvc *linking.Service, m *metrics.Metrics) *Service {
	return &Service{db: db, hasher: hasher, linking: linkSvc, metrics: m}
}

// Capture stores an email if it has not been seen before, runs auto-linking
// over its subject and body, and falls back to hashed-identity suggestions
// when no link resulted. Re-capturing the same email is a no-op apart from
// recomputing the response.
func (s *Service) Capture(req models.CaptureEmailRequest) (*models.CaptureEmailResponse, error) {
	senderHash := s.hasher.Hash(req.SenderEmail)

	// Duplicate detection: same subject, sender and received date
	var existing models.EmailMessage
	err := s.db.Where(
		"subject = ? AND sender_email_hash = ? AND received_date = ?",
		req.Subject, senderHash, req.ReceivedDate,
	).First(&existing).Error

	var emailID uint
	switch {
	case err == nil:
		emailID = existing.ID
	case errors.Is(err, gorm.ErrRecordNotFound):
		now := time.Now().UTC()
		email := models.EmailMessage{
			MessageID:       uuid.NewString(),
			SenderEmailHash: &senderHash,
			SenderName:      req.SenderName,
			Subject:         req.Subject,
			ReceivedDate:    req.ReceivedDate,
			IsRead:          false,
			LastFetched:     &now,
		}
		if refs := linking.ExtractReferences(req.Subject + " " + req.BodyText); len(refs) > 0 {
			email.ExtractedBookingRef = &refs[0]
		}
		if err := s.db.Create(&email).Error; err != nil {
			return nil, fmt.Errorf("failed to store captured email: %w", err)
		}
		emailID = email.ID
		if s.metrics != nil {
			s.metrics.EmailsCaptured.Inc()
		}

		if err := s.linking.CreateAutoLinks(emailID, req.Subject, req.BodyText); err != nil {
			// The email is stored; losing the auto-links is recoverable
			logrus.Errorf("Auto-linking failed for email %d: %v", emailID, err)
		}
	default:
		return nil, fmt.Errorf("failed to check for duplicate email: %w", err)
	}

	linkedIDs, err := s.linking.GetLinkedBookingIDs(emailID)
	if err != nil {
		return nil, err
	}

	// Suggestions are a fallback, never shown alongside a confirmed link
	suggestedIDs := []uint{}
	if len(linkedIDs) == 0 {
		var candidateNameHashes []string
		if req.SenderName != "" {
			candidateNameHashes = append(candidateNameHashes, s.hasher.Hash(req.SenderName))
		}
		suggestedIDs, err = s.linking.FindSuggestedBookingIDs(senderHash, candidateNameHashes)
		if err != nil {
			return nil, err
		}
	}

	if linkedIDs == nil {
		linkedIDs = []uint{}
	}

	return &models.CaptureEmailResponse{
		EmailID:             emailID,
		AutoLinked:          len(linkedIDs) > 0,
		LinkedBookingIDs:    linkedIDs,
		SuggestedBookingIDs: suggestedIDs,
	}, nil
}
