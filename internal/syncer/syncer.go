package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bookings-assistant/internal/metrics"
	"bookings-assistant/internal/models"
	"bookings-assistant/internal/osm"
)

// Engine reconciles the external booking list into local storage
type Engine struct {
	db      *gorm.DB
	gateway osm.Gateway
	metrics *metrics.Metrics
}

// New creates a sync engine
func New(db *gorm.DB, gateway osm.Gateway, m *metrics.Metrics) *Engine {
	return &Engine{db: db, gateway: gateway, metrics: m}
}

// SyncAll fetches bookings for every status concurrently, deduplicates them
// and upserts bookings and comments into storage. An authentication failure
// from the gateway aborts the whole sync and is returned as
// osm.ErrAuthRequired; all other gateway failures degrade to empty lists.
func (e *Engine) SyncAll(ctx context.Context) (*models.SyncResult, error) {
	if e.metrics != nil {
		e.metrics.SyncRuns.Inc()
	}
	start := time.Now()

	lists, err := e.fetchAllStatuses(ctx)
	if err != nil {
		if e.metrics != nil {
			e.metrics.SyncFailures.Inc()
		}
		return nil, err
	}

	// Concatenate in the fixed status order, then deduplicate with
	// first-occurrence-wins: the provisional list entry takes precedence
	// for a booking that also appears under a later status.
	seen := make(map[string]struct{})
	deduped := make([]models.BookingDTO, 0)
	for _, list := range lists {
		for _, b := range list {
			if _, ok := seen[b.OsmBookingID]; ok {
				continue
			}
			seen[b.OsmBookingID] = struct{}{}
			deduped = append(deduped, b)
		}
	}

	result := &models.SyncResult{}
	if err := e.upsertBookings(deduped, result); err != nil {
		if e.metrics != nil {
			e.metrics.SyncFailures.Inc()
		}
		return nil, fmt.Errorf("sync failed while upserting bookings: %w", err)
	}

	e.syncComments(ctx, deduped, result)

	if e.metrics != nil {
		e.metrics.BookingsAdded.Add(float64(result.Added))
		e.metrics.BookingsUpdated.Add(float64(result.Updated))
		e.metrics.CommentsAdded.Add(float64(result.CommentsAdded))
		e.metrics.CommentsUpdated.Add(float64(result.CommentsUpdated))
		e.metrics.SyncDuration.Observe(time.Since(start).Seconds())
	}

	logrus.Infof("Sync complete in %v: %d added, %d updated, %d comments added, %d comments updated",
		time.Since(start), result.Added, result.Updated, result.CommentsAdded, result.CommentsUpdated)
	return result, nil
}

// fetchAllStatuses fans out one fetch per status and waits for all of them.
// The returned slice preserves the fixed status order regardless of
// completion order.
func (e *Engine) fetchAllStatuses(ctx context.Context) ([][]models.BookingDTO, error) {
	lists := make([][]models.BookingDTO, len(models.SyncStatusOrder))
	errs := make([]error, len(models.SyncStatusOrder))

	var wg sync.WaitGroup
	for i, status := range models.SyncStatusOrder {
		wg.Add(1)
		go func(i int, status string) {
			defer wg.Done()
			lists[i], errs[i] = e.gateway.FetchBookings(ctx, status)
		}(i, status)
	}
	wg.Wait()

	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, osm.ErrAuthRequired) {
			return nil, err
		}
		return nil, fmt.Errorf("sync failed while fetching bookings: %w", err)
	}
	return lists, nil
}

// upsertBookings writes the deduplicated list into storage. Existing rows
// are matched by OSM booking id; the hash columns are never touched here,
// they belong to the backfill engine.
func (e *Engine) upsertBookings(bookings []models.BookingDTO, result *models.SyncResult) error {
	var existing []models.Booking
	if err := e.db.Find(&existing).Error; err != nil {
		return fmt.Errorf("failed to load existing bookings: %w", err)
	}
	byOsmID := make(map[string]*models.Booking, len(existing))
	for i := range existing {
		byOsmID[existing[i].OsmBookingID] = &existing[i]
	}

	now := time.Now().UTC()
	for _, dto := range bookings {
		if entity, ok := byOsmID[dto.OsmBookingID]; ok {
			entity.CustomerName = dto.CustomerName
			entity.StartDate = dto.StartDate
			entity.EndDate = dto.EndDate
			entity.Status = dto.Status
			entity.LastFetched = &now
			if err := e.db.Model(entity).Select(
				"customer_name", "start_date", "end_date", "status", "last_fetched",
			).Updates(entity).Error; err != nil {
				return fmt.Errorf("failed to update booking %s: %w", dto.OsmBookingID, err)
			}
			result.Updated++
		} else {
			booking := models.Booking{
				OsmBookingID: dto.OsmBookingID,
				CustomerName: dto.CustomerName,
				StartDate:    dto.StartDate,
				EndDate:      dto.EndDate,
				Status:       dto.Status,
				LastFetched:  &now,
			}
			if err := e.db.Create(&booking).Error; err != nil {
				return fmt.Errorf("failed to insert booking %s: %w", dto.OsmBookingID, err)
			}
			result.Added++
		}
	}
	return nil
}

// syncComments fetches and upserts comments for active bookings only.
// Past and Cancelled bookings are skipped to bound API usage. A failure for
// one booking is logged and the loop continues.
func (e *Engine) syncComments(ctx context.Context, bookings []models.BookingDTO, result *models.SyncResult) {
	for _, dto := range bookings {
		if !models.IsActiveStatus(dto.Status) {
			continue
		}

		_, comments, err := e.gateway.FetchBookingDetail(ctx, dto.OsmBookingID)
		if err != nil {
			logrus.Warnf("Comment sync failed for booking %s: %v", dto.OsmBookingID, err)
			continue
		}

		for _, c := range comments {
			added, err := e.upsertComment(c)
			if err != nil {
				logrus.Warnf("Failed to upsert comment %s for booking %s: %v",
					c.OsmCommentID, dto.OsmBookingID, err)
				continue
			}
			if added {
				result.CommentsAdded++
			} else {
				result.CommentsUpdated++
			}
		}
	}
}

// upsertComment inserts a comment with IsNew set, or refreshes author, text
// and fetch timestamp on an existing row. IsNew is never modified after
// insert. Reports whether a new row was created.
func (e *Engine) upsertComment(dto models.CommentDTO) (bool, error) {
	now := time.Now().UTC()

	var existing models.Comment
	err := e.db.Where("osm_comment_id = ?", dto.OsmCommentID).First(&existing).Error
	switch {
	case err == nil:
		existing.AuthorName = dto.AuthorName
		existing.TextPreview = dto.TextPreview
		existing.LastFetched = &now
		if err := e.db.Model(&existing).Select(
			"author_name", "text_preview", "last_fetched",
		).Updates(&existing).Error; err != nil {
			return false, err
		}
		return false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		comment := models.Comment{
			OsmBookingID: dto.OsmBookingID,
			OsmCommentID: dto.OsmCommentID,
			AuthorName:   dto.AuthorName,
			TextPreview:  dto.TextPreview,
			CreatedDate:  dto.CreatedDate,
			IsNew:        true,
			LastFetched:  &now,
		}
		if err := e.db.Create(&comment).Error; err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, err
	}
}
