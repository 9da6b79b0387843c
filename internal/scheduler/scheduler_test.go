package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bookings-assistant/internal/config"
	"bookings-assistant/internal/database"
	"bookings-assistant/internal/models"
	"bookings-assistant/internal/syncer"
)

// dummyGateway implements osm.Gateway but returns nothing
type dummyGateway struct {
	mu         sync.Mutex
	fetchCount int
}

func (d *dummyGateway) FetchBookings(ctx context.Context, status string) ([]models.BookingDTO, error) {
	d.mu.Lock()
	d.fetchCount++
	d.mu.Unlock()
	return nil, nil
}

func (d *dummyGateway) FetchBookingDetail(ctx context.Context, osmBookingID string) (string, []models.CommentDTO, error) {
	return "", nil, nil
}

func testScheduler(t *testing.T) (*Scheduler, *dummyGateway) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	gateway := &dummyGateway{}
	engine := syncer.New(db, gateway, nil)
	return New(&config.SyncConfig{IntervalMinutes: 60}, &config.MailboxConfig{}, engine, nil), gateway
}

func TestSchedulerRestart(t *testing.T) {
	sched, _ := testScheduler(t)

	require.NoError(t, sched.Start())
	assert.True(t, sched.IsRunning())

	require.NoError(t, sched.Stop())
	assert.False(t, sched.IsRunning())

	require.NoError(t, sched.Start())
	assert.True(t, sched.IsRunning())
	// context should be active again after a restart
	require.NotNil(t, sched.ctx)
	assert.NoError(t, sched.ctx.Err())

	sched.Stop()
}

func TestSchedulerDoubleStart(t *testing.T) {
	sched, _ := testScheduler(t)

	require.NoError(t, sched.Start())
	defer sched.Stop()

	assert.Error(t, sched.Start())
}

func TestSchedulerStopWhenNotRunning(t *testing.T) {
	sched, _ := testScheduler(t)
	assert.NoError(t, sched.Stop())
}

func TestSchedulerNextRun(t *testing.T) {
	sched, _ := testScheduler(t)

	assert.True(t, sched.GetNextRun().IsZero())

	require.NoError(t, sched.Start())
	assert.False(t, sched.GetNextRun().IsZero())

	require.NoError(t, sched.Stop())
	assert.True(t, sched.GetNextRun().IsZero())
}

func TestRunSyncOnce(t *testing.T) {
	sched, gateway := testScheduler(t)

	sched.RunSyncOnce()
	sched.Wait()

	// One run fetches every booking status
	assert.Equal(t, len(models.SyncStatusOrder), gateway.fetchCount)
}
