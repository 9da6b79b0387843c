package backfill

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bookings-assistant/internal/config"
	"bookings-assistant/internal/hashing"
	"bookings-assistant/internal/metrics"
	"bookings-assistant/internal/models"
	"bookings-assistant/internal/osm"
)

// Engine retroactively populates the hashed customer email for bookings
// where it is missing. It runs as a single background loop, never
// concurrently with itself, and marks bookings that genuinely have no email
// with the no-email sentinel so they are never retried.
type Engine struct {
	db      *gorm.DB
	gateway osm.Gateway
	hasher  *hashing.Hasher
	metrics *metrics.Metrics

	startupDelay time.Duration
	interval     time.Duration
	batchSize    int
}

// New creates a backfill engine
func New(db *gorm.DB, gateway osm.Gateway, hasher *hashing.Hasher, m *metrics.Metrics, cfg config.BackfillConfig) *Engine {
	return &Engine{
		db:           db,
		gateway:      gateway,
		hasher:       hasher,
		metrics:      m,
		startupDelay: cfg.StartupDelay,
		interval:     cfg.Interval,
		batchSize:    cfg.BatchSize,
	}
}

// Run executes the backfill loop until the context is cancelled. The first
// batch waits for the startup delay so the rest of the application finishes
// booting first.
func (e *Engine) Run(ctx context.Context) {
	select {
	case <-time.After(e.startupDelay):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		if err := e.RunBatch(ctx); err != nil {
			logrus.Errorf("Backfill batch failed: %v", err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			logrus.Info("Backfill loop stopped")
			return
		}
	}
}

// RunBatch processes one bounded batch of bookings lacking a hashed email.
// Per-booking failures are logged and do not abort the batch.
func (e *Engine) RunBatch(ctx context.Context) error {
	var bookings []models.Booking
	err := e.db.
		Where("customer_email_hash IS NULL").
		Where("status NOT IN ?", []string{models.StatusPast, models.StatusCancelled}).
		Order("id").
		Limit(e.batchSize).
		Find(&bookings).Error
	if err != nil {
		return err
	}

	if len(bookings) == 0 {
		logrus.Debug("Backfill: nothing to process")
		return nil
	}

	logrus.Infof("Backfill: processing %d bookings", len(bookings))

	for i := range bookings {
		booking := &bookings[i]
		if err := e.processBooking(ctx, booking); err != nil {
			logrus.Warnf("Backfill: failed for booking %s: %v", booking.OsmBookingID, err)
			if e.metrics != nil {
				e.metrics.BackfillErrors.Inc()
			}
			continue
		}
		if e.metrics != nil {
			e.metrics.BackfillProcessed.Inc()
		}
	}
	return nil
}

// processBooking resolves one booking: fetch detail, extract the email,
// store its hash or the sentinel, and opportunistically backfill the name
// hash. Each booking transitions from pending to resolved exactly once.
func (e *Engine) processBooking(ctx context.Context, booking *models.Booking) error {
	fullDetails, _, err := e.gateway.FetchBookingDetail(ctx, booking.OsmBookingID)
	if err != nil {
		return err
	}

	emailHash := models.NoEmailSentinel
	if email := ExtractEmail(fullDetails); email != "" {
		emailHash = e.hasher.Hash(email)
	}
	booking.CustomerEmailHash = &emailHash

	if booking.CustomerNameHash == nil {
		nameHash := e.hasher.Hash(booking.CustomerName)
		booking.CustomerNameHash = &nameHash
	}

	return e.db.Model(booking).Select(
		"customer_email_hash", "customer_name_hash",
	).Updates(booking).Error
}

// ExtractEmail pulls a customer email out of the raw booking detail JSON.
// Two response shapes are handled: an object with a nested contact email,
// and an array of label/value pairs where the label mentions "email".
// Malformed JSON or a missing field both yield "".
func ExtractEmail(fullDetailsJSON string) string {
	if strings.TrimSpace(fullDetailsJSON) == "" {
		return ""
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(fullDetailsJSON), &envelope); err != nil || len(envelope.Data) == 0 {
		return ""
	}

	// Shape 1: { data: { contact: { email: "..." } } }
	var object struct {
		Contact struct {
			Email string `json:"email"`
		} `json:"contact"`
	}
	if err := json.Unmarshal(envelope.Data, &object); err == nil && object.Contact.Email != "" {
		return object.Contact.Email
	}

	// Shape 2: { data: [ { label: "..email..", value: "..." } ] }
	var pairs []struct {
		Label string `json:"label"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(envelope.Data, &pairs); err == nil {
		for _, pair := range pairs {
			if strings.Contains(strings.ToLower(pair.Label), "email") {
				return pair.Value
			}
		}
	}

	logrus.Warnf("Backfill: no email field found in response (first 300 chars): %s", snippet(fullDetailsJSON))
	return ""
}

func snippet(s string) string {
	if len(s) > 300 {
		return s[:300]
	}
	return s
}
