// Package metrics provides Prometheus metrics for the ingestion pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "feedpipe"

var (
	// FeedRunsTotal counts per-feed pipeline runs by outcome status.
	FeedRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_runs_total",
			Help:      "Total number of per-feed ingestion runs",
		},
		[]string{"tier", "status"},
	)

	// FeedRunDuration measures how long one feed takes from fetch to last insert.
	FeedRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_run_duration_seconds",
			Help:      "Duration of per-feed ingestion runs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tier"},
	)

	// ArticlesStoredTotal counts articles inserted by the pipeline.
	ArticlesStoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_stored_total",
			Help:      "Total number of articles stored",
		},
		[]string{"tier"},
	)

	// ArticlesDuplicateTotal counts inserts rejected by the unique (feed, link) constraint.
	ArticlesDuplicateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_duplicate_total",
			Help:      "Total number of article inserts ignored as duplicates",
		},
		[]string{"tier"},
	)

	// BatchDuration measures whole tier batches.
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of tier batches in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"tier"},
	)

	// TierLastRun is the start time of the last completed batch per tier.
	TierLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tier_last_run_timestamp_seconds",
			Help:      "Unix start time of the last completed batch per tier",
		},
		[]string{"tier"},
	)

	// SchedulerErrorsTotal counts scheduler ticks that could not run a tier.
	SchedulerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_errors_total",
			Help:      "Total number of scheduler errors",
		},
		[]string{"operation"},
	)
)

// RecordFeedRun records a single feed outcome.
func RecordFeedRun(tier, status string, stored, duplicates int, seconds float64) {
	FeedRunsTotal.WithLabelValues(tier, status).Inc()
	FeedRunDuration.WithLabelValues(tier).Observe(seconds)

	if stored > 0 {
		ArticlesStoredTotal.WithLabelValues(tier).Add(float64(stored))
	}

	if duplicates > 0 {
		ArticlesDuplicateTotal.WithLabelValues(tier).Add(float64(duplicates))
	}
}

// RecordBatch records a finished batch and, when it completed, its start time.
func RecordBatch(tier string, seconds float64, completed bool, startedAtUnix float64) {
	BatchDuration.WithLabelValues(tier).Observe(seconds)

	if completed {
		TierLastRun.WithLabelValues(tier).Set(startedAtUnix)
	}
}

// RecordSchedulerError records a scheduler failure.
func RecordSchedulerError(operation string) {
	SchedulerErrorsTotal.WithLabelValues(operation).Inc()
}
