package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"bookings-assistant/internal/backfill"
	"bookings-assistant/internal/capture"
	"bookings-assistant/internal/config"
	"bookings-assistant/internal/database"
	"bookings-assistant/internal/handlers"
	"bookings-assistant/internal/hashing"
	"bookings-assistant/internal/linking"
	"bookings-assistant/internal/mailbox"
	"bookings-assistant/internal/metrics"
	"bookings-assistant/internal/models"
	"bookings-assistant/internal/osm"
	"bookings-assistant/internal/scheduler"
	"bookings-assistant/internal/server"
	"bookings-assistant/internal/syncer"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Bookings Assistant")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	db, err := database.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	m := metrics.NewMetrics()

	hasher, err := hashing.New(cfg.Hashing)
	if err != nil {
		return fmt.Errorf("failed to initialize hashing: %w", err)
	}

	if err := backfillNameHashes(db, hasher); err != nil {
		logrus.Errorf("Startup name-hash backfill failed: %v", err)
	}

	var tokens oauth2.TokenSource
	if cfg.Osm.AccessToken != "" {
		tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Osm.AccessToken})
	}
	gateway := osm.NewClient(cfg.Osm, tokens)

	syncEngine := syncer.New(db, gateway, m)
	linkService := linking.New(db, m)
	captureService := capture.New(db, hasher, linkService, m)

	var ingestor *mailbox.Ingestor
	if cfg.Mailbox.Enabled {
		fetcher, err := mailbox.NewFetcher(&cfg.Mailbox)
		if err != nil {
			return fmt.Errorf("failed to create mailbox fetcher: %w", err)
		}
		ingestor = mailbox.NewIngestor(fetcher, captureService)
		defer ingestor.Close()
		logrus.Info("Mailbox ingestion enabled")
	}

	backfillEngine := backfill.New(db, gateway, hasher, m, cfg.Backfill)
	backfillCtx, cancelBackfill := context.WithCancel(context.Background())
	defer cancelBackfill()
	go backfillEngine.Run(backfillCtx)

	sched := scheduler.New(&cfg.Sync, &cfg.Mailbox, syncEngine, ingestor)

	h := handlers.NewHandlers(db, syncEngine, linkService, captureService, sched, m)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Best-effort startup sync; a missing token just means the user has to
	// authenticate first
	go func() {
		result, err := syncEngine.SyncAll(context.Background())
		switch {
		case errors.Is(err, osm.ErrAuthRequired):
			logrus.Info("Startup sync skipped: OSM authentication required")
		case err != nil:
			logrus.Errorf("Startup sync failed: %v", err)
		default:
			logrus.Infof("Startup sync complete: %d bookings", result.Total())
		}
	}()

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cancelBackfill()

	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}

// backfillNameHashes hashes the customer name for any booking rows that
// predate the hash columns
func backfillNameHashes(db *gorm.DB, hasher *hashing.Hasher) error {
	var bookings []models.Booking
	if err := db.Where("customer_name_hash IS NULL").Find(&bookings).Error; err != nil {
		return err
	}
	for i := range bookings {
		nameHash := hasher.Hash(bookings[i].CustomerName)
		if err := db.Model(&bookings[i]).Update("customer_name_hash", nameHash).Error; err != nil {
			return err
		}
	}
	if len(bookings) > 0 {
		logrus.Infof("Backfilled name hashes for %d bookings", len(bookings))
	}
	return nil
}
