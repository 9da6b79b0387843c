package backfill

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

	"bookings-assistant/internal/config"
	"bookings-assistant/internal/database"
	"bookings-assistant/internal/hashing"
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

type fakeGateway struct {
	details    map[string]string
	detailErrs map[string]error
	calls      []string
}

func (f *fakeGateway) FetchBookings(ctx context.Context, status string) ([]models.BookingDTO, error) {
	return nil, nil
}

func (f *fakeGateway) FetchBookingDetail(ctx context.Context, osmBookingID string) (string, []models.CommentDTO, error) {
	f.calls = append(f.calls, osmBookingID)
	if err := f.detailErrs[osmBookingID]; err != nil {
		return "", nil, err
	}
	return f.details[osmBookingID], nil, nil
}

func seedPending(t *testing.T, db *gorm.DB, osmID, name, status string) models.Booking {
	t.Helper()
	booking := models.Booking{
		OsmBookingID: osmID,
		CustomerName: name,
		StartDate:    time.Now().AddDate(0, 0, 5),
		EndDate:      time.Now().AddDate(0, 0, 7),
		Status:       status,
	}
	require.NoError(t, db.Create(&booking).Error)
	return booking
}

func testEngine(db *gorm.DB, gateway *fakeGateway) *Engine {
	hasher := hashing.NewWithSecret([]byte("test-secret"), 10)
	return New(db, gateway, hasher, nil, config.BackfillConfig{
		StartupDelay: time.Millisecond,
		Interval:     time.Hour,
		BatchSize:    20,
	})
}

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{
			"nested contact object",
			`{"data":{"contact":{"email":"leader@example.com"}}}`,
			"leader@example.com",
		},
		{
			"label value pairs",
			`{"data":[{"label":"Group","value":"Scouts"},{"label":"Email address","value":"leader@example.com"}]}`,
			"leader@example.com",
		},
		{
			"label case insensitive",
			`{"data":[{"label":"EMAIL","value":"x@y.com"}]}`,
			"x@y.com",
		},
		{"no email field", `{"data":[{"label":"Phone","value":"0123"}]}`, ""},
		{"empty contact email", `{"data":{"contact":{"email":""}}}`, ""},
		{"malformed json", `{not json`, ""},
		{"empty input", "", ""},
		{"missing data key", `{"status":"ok"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractEmail(tt.json))
		})
	}
}

func TestRunBatchHashesExtractedEmail(t *testing.T) {
	db := openTestDB(t)
	gateway := &fakeGateway{details: map[string]string{
		"12345": `{"data":{"contact":{"email":"Leader@Example.com"}}}`,
	}}
	engine := testEngine(db, gateway)
	seedPending(t, db, "12345", "1st Testville", models.StatusConfirmed)

	require.NoError(t, engine.RunBatch(context.Background()))

	var stored models.Booking
	require.NoError(t, db.Where("osm_booking_id = ?", "12345").First(&stored).Error)
	require.NotNil(t, stored.CustomerEmailHash)

	hasher := hashing.NewWithSecret([]byte("test-secret"), 10)
	assert.Equal(t, hasher.Hash("leader@example.com"), *stored.CustomerEmailHash)
	// Name hash is filled opportunistically in the same pass
	require.NotNil(t, stored.CustomerNameHash)
	assert.Equal(t, hasher.Hash("1st Testville"), *stored.CustomerNameHash)
}

func TestRunBatchWritesSentinelWhenNoEmail(t *testing.T) {
	db := openTestDB(t)
	gateway := &fakeGateway{details: map[string]string{
		"12345": `{"data":[{"label":"Phone","value":"0123"}]}`,
	}}
	engine := testEngine(db, gateway)
	seedPending(t, db, "12345", "Group", models.StatusProvisional)

	require.NoError(t, engine.RunBatch(context.Background()))

	var stored models.Booking
	require.NoError(t, db.Where("osm_booking_id = ?", "12345").First(&stored).Error)
	require.NotNil(t, stored.CustomerEmailHash)
	assert.Equal(t, models.NoEmailSentinel, *stored.CustomerEmailHash)

	// The sentinel counts as resolved, so a second batch fetches nothing
	gateway.calls = nil
	require.NoError(t, engine.RunBatch(context.Background()))
	assert.Empty(t, gateway.calls)
}

func TestRunBatchSkipsTerminalStatuses(t *testing.T) {
	db := openTestDB(t)
	gateway := &fakeGateway{details: map[string]string{}}
	engine := testEngine(db, gateway)

	seedPending(t, db, "1001", "Active", models.StatusFuture)
	seedPending(t, db, "1002", "Done", models.StatusPast)
	seedPending(t, db, "1003", "Gone", models.StatusCancelled)

	require.NoError(t, engine.RunBatch(context.Background()))
	assert.Equal(t, []string{"1001"}, gateway.calls)
}

func TestRunBatchContinuesAfterItemFailure(t *testing.T) {
	db := openTestDB(t)
	gateway := &fakeGateway{
		details: map[string]string{
			"1002": `{"data":{"contact":{"email":"ok@example.com"}}}`,
		},
		detailErrs: map[string]error{
			"1001": errors.New("gateway down"),
		},
	}
	engine := testEngine(db, gateway)

	failing := seedPending(t, db, "1001", "A", models.StatusConfirmed)
	seedPending(t, db, "1002", "B", models.StatusConfirmed)

	require.NoError(t, engine.RunBatch(context.Background()))

	var stored models.Booking
	require.NoError(t, db.Where("osm_booking_id = ?", "1002").First(&stored).Error)
	assert.NotNil(t, stored.CustomerEmailHash)

	// The failed booking stays pending for the next batch
	require.NoError(t, db.First(&failing, failing.ID).Error)
	assert.Nil(t, failing.CustomerEmailHash)
}

func TestRunBatchRespectsBatchSize(t *testing.T) {
	db := openTestDB(t)
	gateway := &fakeGateway{details: map[string]string{}}
	hasher := hashing.NewWithSecret([]byte("test-secret"), 10)
	engine := New(db, gateway, hasher, nil, config.BackfillConfig{
		StartupDelay: time.Millisecond,
		Interval:     time.Hour,
		BatchSize:    2,
	})

	for i := 0; i < 5; i++ {
		seedPending(t, db, fmt.Sprintf("20%02d", i), "Group", models.StatusConfirmed)
	}

	require.NoError(t, engine.RunBatch(context.Background()))
	assert.Len(t, gateway.calls, 2)
	// Oldest rows first
	assert.Equal(t, []string{"2000", "2001"}, gateway.calls)
}
