package linking

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bookings-assistant/internal/metrics"
	"bookings-assistant/internal/models"
)

// referencePattern matches booking references in free text: a 4-6 digit
// number preceded by one of the known markers, e.g. "#12345", "Ref: 12345",
// "Booking #12345", "OSM #12345".
var referencePattern = regexp.MustCompile(`(?i)(?:#|Ref:|REF:|Reference|Booking\s*#|OSM\s*#)\s*(\d{4,6})`)

// Service associates captured emails with bookings, automatically and by
// suggestion
type Service struct {
	db      *gorm.DB
	metrics *metrics.Metrics
}

// New creates a linking service
func New(db *gorm.DB, m *metrics.Metrics) *Service {
	return &Service{db: db, metrics: m}
}

// ExtractReferences returns the distinct booking references found in text.
// Callers treat the result as a set; order is not significant.
func ExtractReferences(text string) []string {
	matches := referencePattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]struct{})
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		ref := m[1]
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return refs
}

// CreateAutoLinks extracts booking references from the email's subject and
// body and links the email to each referenced booking that exists. Missing
// bookings and already-linked pairs are skipped, so the operation is
// idempotent.
func (s *Service) CreateAutoLinks(emailID uint, subject, body string) error {
	logrus.Infof("Creating auto-links for email %d", emailID)

	refs := ExtractReferences(subject + " " + body)
	logrus.Infof("Extracted %d booking references from email %d", len(refs), emailID)

	for _, ref := range refs {
		var booking models.Booking
		err := s.db.Where("osm_booking_id = ?", ref).First(&booking).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.Warnf("Booking reference %s found in email %d but booking does not exist", ref, emailID)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to look up booking %s: %w", ref, err)
		}

		exists, err := s.linkExists(emailID, booking.ID)
		if err != nil {
			return err
		}
		if exists {
			logrus.Debugf("Link between email %d and booking %d already exists, skipping", emailID, booking.ID)
			continue
		}

		link := models.Link{
			EmailMessageID: emailID,
			BookingID:      booking.ID,
			CreatedDate:    time.Now().UTC(),
		}
		if err := s.db.Create(&link).Error; err != nil {
			return fmt.Errorf("failed to create auto-link for email %d: %w", emailID, err)
		}
		if s.metrics != nil {
			s.metrics.AutoLinksCreated.Inc()
		}
		logrus.Infof("Created auto-link between email %d and booking %d (ref: %s)", emailID, booking.ID, ref)
	}

	return nil
}

// CreateManualLink links an email to a booking on behalf of a user.
// A second link for an already-linked pair is rejected regardless of who
// created the first one.
func (s *Service) CreateManualLink(emailID, bookingID, userID uint) (*models.Link, error) {
	exists, err := s.linkExists(emailID, bookingID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrLinkExists
	}

	link := models.Link{
		EmailMessageID:  emailID,
		BookingID:       bookingID,
		CreatedByUserID: &userID,
		CreatedDate:     time.Now().UTC(),
	}
	if err := s.db.Create(&link).Error; err != nil {
		return nil, fmt.Errorf("failed to create link: %w", err)
	}
	return &link, nil
}

// ErrLinkExists is returned when a link for the (email, booking) pair
// already exists
var ErrLinkExists = errors.New("link already exists for this email and booking")

// GetLinkedBookingIDs returns the booking ids linked to an email
func (s *Service) GetLinkedBookingIDs(emailID uint) ([]uint, error) {
	var ids []uint
	err := s.db.Model(&models.Link{}).
		Where("email_message_id = ?", emailID).
		Pluck("booking_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get linked bookings: %w", err)
	}
	logrus.Debugf("Found %d linked bookings for email %d", len(ids), emailID)
	return ids, nil
}

// GetLinkedEmailIDs returns the email ids linked to a booking
func (s *Service) GetLinkedEmailIDs(bookingID uint) ([]uint, error) {
	var ids []uint
	err := s.db.Model(&models.Link{}).
		Where("booking_id = ?", bookingID).
		Pluck("email_message_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get linked emails: %w", err)
	}
	logrus.Debugf("Found %d linked emails for booking %d", len(ids), bookingID)
	return ids, nil
}

// FindSuggestedBookingIDs returns bookings whose hashed customer email
// matches the sender's hash (the no-email sentinel never matches) unioned
// with bookings whose hashed customer name matches any candidate name hash.
func (s *Service) FindSuggestedBookingIDs(senderEmailHash string, candidateNameHashes []string) ([]uint, error) {
	var byEmail []uint
	err := s.db.Model(&models.Booking{}).
		Where("customer_email_hash = ? AND customer_email_hash != ?", senderEmailHash, models.NoEmailSentinel).
		Pluck("id", &byEmail).Error
	if err != nil {
		return nil, fmt.Errorf("failed to match bookings by email hash: %w", err)
	}

	var byName []uint
	if len(candidateNameHashes) > 0 {
		err = s.db.Model(&models.Booking{}).
			Where("customer_name_hash IN ?", candidateNameHashes).
			Pluck("id", &byName).Error
		if err != nil {
			return nil, fmt.Errorf("failed to match bookings by name hash: %w", err)
		}
	}

	seen := make(map[uint]struct{})
	suggested := make([]uint, 0, len(byEmail)+len(byName))
	for _, id := range append(byEmail, byName...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		suggested = append(suggested, id)
	}
	return suggested, nil
}

func (s *Service) linkExists(emailID, bookingID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.Link{}).
		Where("email_message_id = ? AND booking_id = ?", emailID, bookingID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check for existing link: %w", err)
	}
	return count > 0, nil
}
