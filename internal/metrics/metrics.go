package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	SyncRuns          prometheus.Counter
	SyncFailures      prometheus.Counter
	BookingsAdded     prometheus.Counter
	BookingsUpdated   prometheus.Counter
	CommentsAdded     prometheus.Counter
	CommentsUpdated   prometheus.Counter
	BackfillProcessed prometheus.Counter
	BackfillErrors    prometheus.Counter
	EmailsCaptured    prometheus.Counter
	AutoLinksCreated  prometheus.Counter
	SyncDuration      prometheus.Histogram
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		SyncRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bookings_assistant_sync_runs_total",
			Help: "Total number of full sync runs",
		}),
		SyncFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bookings_assistant_sync_failures_total",
			Help: "Total number of failed sync runs",
		}),
		BookingsAdded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bookings_assistant_bookings_added_total",
			Help: "Total number of bookings inserted by sync",
		}),
		BookingsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bookings_assistant_bookings_updated_total",
			Help: "Total number of bookings updated by sync",
		}),
		CommentsAdded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bookings_assistant_comments_added_total",
			Help: "Total number of comments inserted by sync",
		}),
		CommentsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bookings_assistant_comments_updated_total",
			Help: "Total number of comments updated by sync",
		}),
		BackfillProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bookings_assistant_backfill_processed_total",
			Help: "Total number of bookings processed by the detail backfill",
		}),
		BackfillErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bookings_assistant_backfill_errors_total",
			Help: "Total number of per-booking backfill failures",
		}),
		EmailsCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bookings_assistant_emails_captured_total",
			Help: "Total number of captured emails",
		}),
		AutoLinksCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bookings_assistant_auto_links_created_total",
			Help: "Total number of automatically created email-booking links",
		}),
		SyncDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bookings_assistant_sync_duration_seconds",
			Help:    "Time spent running a full sync",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
