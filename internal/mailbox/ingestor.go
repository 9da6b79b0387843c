package mailbox

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"bookings-assistant/internal/capture"
	"bookings-assistant/internal/models"
)

// Ingestor feeds mailbox messages through the same capture flow the browser
// extension uses, so mailbox-sourced emails get identical dedup and
// auto-linking behaviour.
type Ingestor struct {
	fetcher Fetcher
	capture *capture.Service
}

// NewIngestor creates a mailbox ingestor
func NewIngestor(fetcher Fetcher, captureSvc *capture.Service) *Ingestor {
	return &Ingestor{fetcher: fetcher, capture: captureSvc}
}

// RunOnce fetches new messages and captures each one. A failure for one
// message is logged and does not stop the rest.
func (i *Ingestor) RunOnce(ctx context.Context) error {
	emails, err := i.fetcher.FetchNewEmails(ctx)
	if err != nil {
		return fmt.Errorf("mailbox fetch failed: %w", err)
	}

	logrus.Infof("Mailbox ingest: fetched %d new emails", len(emails))

	for _, email := range emails {
		result, err := i.capture.Capture(models.CaptureEmailRequest{
			SenderEmail:  email.SenderEmail,
			SenderName:   email.SenderName,
			Subject:      email.Subject,
			BodyText:     email.Body,
			ReceivedDate: email.ReceivedDate,
		})
		if err != nil {
			logrus.Warnf("Mailbox ingest: failed to capture email %q: %v", email.Subject, err)
			continue
		}
		if result.AutoLinked {
			logrus.Infof("Mailbox ingest: email %d auto-linked to %d bookings",
				result.EmailID, len(result.LinkedBookingIDs))
		}
	}
	return nil
}

// Close releases the underlying fetcher
func (i *Ingestor) Close() error {
	return i.fetcher.Close()
}
