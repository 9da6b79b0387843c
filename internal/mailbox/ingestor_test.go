package mailbox

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bookings-assistant/internal/capture"
	"bookings-assistant/internal/database"
	"bookings-assistant/internal/hashing"
	"bookings-assistant/internal/linking"
	"bookings-assistant/internal/models"
)

type stubFetcher struct {
	emails []IncomingEmail
	err    error
	closed bool
}

func (s *stubFetcher) FetchNewEmails(ctx context.Context) ([]IncomingEmail, error) {
	return s.emails, s.err
}

func (s *stubFetcher) Close() error {
	s.closed = true
	return nil
}

func testIngestor(t *testing.T, fetcher Fetcher) (*Ingestor, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	hasher := hashing.NewWithSecret([]byte("test-secret"), 10)
	captureSvc := capture.New(db, hasher, linking.New(db, nil), nil)
	return NewIngestor(fetcher, captureSvc), db
}

func TestRunOnceCapturesFetchedEmails(t *testing.T) {
	fetcher := &stubFetcher{emails: []IncomingEmail{
		{
			SenderEmail:  "leader@example.com",
			SenderName:   "Tammy",
			Subject:      "About booking #12345",
			Body:         "hello",
			ReceivedDate: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		},
		{
			SenderEmail:  "other@example.com",
			Subject:      "General enquiry",
			ReceivedDate: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		},
	}}
	ingestor, db := testIngestor(t, fetcher)

	require.NoError(t, ingestor.RunOnce(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.EmailMessage{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestRunOnceIsIdempotent(t *testing.T) {
	fetcher := &stubFetcher{emails: []IncomingEmail{{
		SenderEmail:  "leader@example.com",
		Subject:      "Same email twice",
		ReceivedDate: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}}}
	ingestor, db := testIngestor(t, fetcher)

	require.NoError(t, ingestor.RunOnce(context.Background()))
	require.NoError(t, ingestor.RunOnce(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.EmailMessage{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRunOnceFetchFailure(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("imap unreachable")}
	ingestor, _ := testIngestor(t, fetcher)

	err := ingestor.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestCloseReleasesFetcher(t *testing.T) {
	fetcher := &stubFetcher{}
	ingestor, _ := testIngestor(t, fetcher)

	require.NoError(t, ingestor.Close())
	assert.True(t, fetcher.closed)
}
