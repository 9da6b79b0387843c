package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"bookings-assistant/internal/config"
	"bookings-assistant/internal/mailbox"
	"bookings-assistant/internal/syncer"
)

// Scheduler manages the periodic booking sync and, when configured, the
// mailbox ingest job
type Scheduler struct {
	cron        *cron.Cron
	syncEntryID cron.EntryID
	syncCfg     *config.SyncConfig
	mailboxCfg  *config.MailboxConfig
	syncer      *syncer.Engine
	ingestor    *mailbox.Ingestor
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	isRunning   bool
	mu          sync.RWMutex
}

// New creates a scheduler. The ingestor may be nil when mailbox ingestion
// is disabled.
func New(syncCfg *config.SyncConfig, mailboxCfg *config.MailboxConfig, sync *syncer.Engine, ingestor *mailbox.Ingestor) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:       cron.New(cron.WithSeconds()),
		syncCfg:    syncCfg,
		mailboxCfg: mailboxCfg,
		syncer:     sync,
		ingestor:   ingestor,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	// Fresh context and cron so a stopped scheduler can be started again
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New(cron.WithSeconds())

	schedule := fmt.Sprintf("0 */%d * * * *", s.syncCfg.IntervalMinutes)
	entryID, err := s.cron.AddFunc(schedule, s.runSync)
	if err != nil {
		return fmt.Errorf("failed to add sync cron job: %w", err)
	}
	s.syncEntryID = entryID

	if s.ingestor != nil {
		ingestSchedule := fmt.Sprintf("0 */%d * * * *", s.mailboxCfg.IntervalMinutes)
		if _, err := s.cron.AddFunc(ingestSchedule, s.runIngest); err != nil {
			return fmt.Errorf("failed to add mailbox cron job: %w", err)
		}
	}

	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with sync interval: %d minutes", s.syncCfg.IntervalMinutes)
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancel()
	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// runSync executes one full booking sync
func (s *Scheduler) runSync() {
	s.wg.Add(1)
	defer s.wg.Done()

	logrus.Info("Starting scheduled booking sync")

	result, err := s.syncer.SyncAll(s.ctx)
	if err != nil {
		logrus.Errorf("Scheduled sync failed: %v", err)
		return
	}
	logrus.Infof("Scheduled sync done: %d added, %d updated", result.Added, result.Updated)
}

// runIngest executes one mailbox ingest pass
func (s *Scheduler) runIngest() {
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.ingestor.RunOnce(s.ctx); err != nil {
		logrus.Errorf("Mailbox ingest failed: %v", err)
	}
}

// RunSyncOnce runs the booking sync immediately (for manual triggering)
func (s *Scheduler) RunSyncOnce() {
	logrus.Info("Running booking sync once")
	s.runSync()
}

// GetNextRun returns the time of the next scheduled sync
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.syncEntryID).Next
}

// GetLastRun returns the time of the last sync run
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.syncEntryID).Prev
}

// Wait waits for in-flight jobs to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
