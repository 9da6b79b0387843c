package linking

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bookings-assistant/internal/database"
	"bookings-assistant/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedBooking(t *testing.T, db *gorm.DB, osmID, name string, emailHash, nameHash *string) models.Booking {
	t.Helper()
	booking := models.Booking{
		OsmBookingID:      osmID,
		CustomerName:      name,
		CustomerEmailHash: emailHash,
		CustomerNameHash:  nameHash,
		StartDate:         time.Now().AddDate(0, 0, 5),
		EndDate:           time.Now().AddDate(0, 0, 7),
		Status:            models.StatusProvisional,
	}
	require.NoError(t, db.Create(&booking).Error)
	return booking
}

func seedEmail(t *testing.T, db *gorm.DB, messageID string) models.EmailMessage {
	t.Helper()
	email := models.EmailMessage{
		MessageID:    messageID,
		Subject:      "Test subject",
		ReceivedDate: time.Now(),
	}
	require.NoError(t, db.Create(&email).Error)
	return email
}

func TestExtractReferences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"hash and ref markers", "Booking #12345 and REF: 67890", []string{"12345", "67890"}},
		{"no references", "no refs here", nil},
		{"too short", "call me on #123 thanks", nil},
		{"longer runs match their first six digits", "invoice #1234567 attached", []string{"123456"}},
		{"lowercase ref", "ref: 4444 please", []string{"4444"}},
		{"reference word", "Reference 55555", []string{"55555"}},
		{"osm marker", "see OSM #98765", []string{"98765"}},
		{"duplicates collapse", "#12345 mentioned twice #12345", []string{"12345"}},
		{"bare number ignored", "the group of 12345 people", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractReferences(tt.text)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestCreateAutoLinksIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	svc := New(db, nil)

	booking := seedBooking(t, db, "12345", "1st Testville Scouts", nil, nil)
	email := seedEmail(t, db, "msg-1")

	subject := "Question about booking #12345"
	body := "Hi, following up on #12345."

	require.NoError(t, svc.CreateAutoLinks(email.ID, subject, body))
	require.NoError(t, svc.CreateAutoLinks(email.ID, subject, body))

	var links []models.Link
	require.NoError(t, db.Where("email_message_id = ?", email.ID).Find(&links).Error)
	require.Len(t, links, 1)
	assert.Equal(t, booking.ID, links[0].BookingID)
	assert.Nil(t, links[0].CreatedByUserID)
}

func TestCreateAutoLinksSkipsUnknownBookings(t *testing.T) {
	db := openTestDB(t)
	svc := New(db, nil)

	email := seedEmail(t, db, "msg-1")
	require.NoError(t, svc.CreateAutoLinks(email.ID, "about #99999", ""))

	var count int64
	require.NoError(t, db.Model(&models.Link{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateAutoLinksMultipleReferences(t *testing.T) {
	db := openTestDB(t)
	svc := New(db, nil)

	b1 := seedBooking(t, db, "11111", "Group A", nil, nil)
	b2 := seedBooking(t, db, "22222", "Group B", nil, nil)
	email := seedEmail(t, db, "msg-1")

	require.NoError(t, svc.CreateAutoLinks(email.ID, "Ref: 11111", "also Booking #22222"))

	ids, err := svc.GetLinkedBookingIDs(email.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{b1.ID, b2.ID}, ids)
}

func TestCreateManualLinkRejectsDuplicatePair(t *testing.T) {
	db := openTestDB(t)
	svc := New(db, nil)

	booking := seedBooking(t, db, "12345", "Group", nil, nil)
	email := seedEmail(t, db, "msg-1")

	// Auto-link first, then a manual link for the same pair must be refused
	require.NoError(t, svc.CreateAutoLinks(email.ID, "#12345", ""))

	_, err := svc.CreateManualLink(email.ID, booking.ID, 1)
	assert.ErrorIs(t, err, ErrLinkExists)
}

func TestGetLinkedEmailIDs(t *testing.T) {
	db := openTestDB(t)
	svc := New(db, nil)

	booking := seedBooking(t, db, "12345", "Group", nil, nil)
	e1 := seedEmail(t, db, "msg-1")
	e2 := seedEmail(t, db, "msg-2")

	_, err := svc.CreateManualLink(e1.ID, booking.ID, 1)
	require.NoError(t, err)
	_, err = svc.CreateManualLink(e2.ID, booking.ID, 1)
	require.NoError(t, err)

	ids, err := svc.GetLinkedEmailIDs(booking.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{e1.ID, e2.ID}, ids)
}

func TestFindSuggestedBookingIDs(t *testing.T) {
	db := openTestDB(t)
	svc := New(db, nil)

	emailHash := "aaaa"
	nameHash := "bbbb"
	sentinel := models.NoEmailSentinel

	matchByEmail := seedBooking(t, db, "10001", "Group A", &emailHash, nil)
	matchByName := seedBooking(t, db, "10002", "Group B", nil, &nameHash)
	seedBooking(t, db, "10003", "Group C", &sentinel, nil)
	seedBooking(t, db, "10004", "Group D", nil, nil)

	ids, err := svc.FindSuggestedBookingIDs("aaaa", []string{"bbbb"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{matchByEmail.ID, matchByName.ID}, ids)
}

func TestFindSuggestedBookingIDsSentinelNeverMatches(t *testing.T) {
	db := openTestDB(t)
	svc := New(db, nil)

	sentinel := models.NoEmailSentinel
	seedBooking(t, db, "10001", "Group A", &sentinel, nil)

	ids, err := svc.FindSuggestedBookingIDs(models.NoEmailSentinel, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFindSuggestedBookingIDsDeduplicates(t *testing.T) {
	db := openTestDB(t)
	svc := New(db, nil)

	emailHash := "aaaa"
	nameHash := "bbbb"
	both := seedBooking(t, db, "10001", "Group A", &emailHash, &nameHash)

	ids, err := svc.FindSuggestedBookingIDs("aaaa", []string{"bbbb"})
	require.NoError(t, err)
	assert.Equal(t, []uint{both.ID}, ids)
}
