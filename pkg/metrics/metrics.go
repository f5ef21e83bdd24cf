package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scheduler Metrics
	SchedulerJobsPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collectibles_scheduler_jobs_published_total",
		Help: "The total number of accrual jobs published to Kafka",
	})
	SchedulerPublishErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collectibles_scheduler_publish_errors_total",
		Help: "The total number of errors occurred while publishing jobs to Kafka",
	})
	SchedulerTriggerEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collectibles_scheduler_trigger_events_total",
		Help: "The total number of integration change events captured from the change stream",
	})

	// Accrual Metrics
	AccrualRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collectibles_accrual_runs_total",
		Help: "The total number of per-user accrual runs completed",
	})
	AccrualRunFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collectibles_accrual_run_failures_total",
		Help: "The total number of accrual runs that failed during setup",
	})
	AccrualPlaysProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collectibles_accrual_plays_processed_total",
		Help: "The total number of play events processed",
	})
	AccrualTiersUnlockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collectibles_accrual_tiers_unlocked_total",
		Help: "The total number of tier collectibles created",
	})
	AccrualItemErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collectibles_accrual_item_errors_total",
		Help: "The total number of per-item failures absorbed during a run",
	})
	AccrualStoreWriteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "collectibles_accrual_store_write_latency_seconds",
		Help:    "Latency of achievement store writes",
		Buckets: prometheus.DefBuckets,
	})

	// Digest Metrics
	DigestRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collectibles_digest_runs_total",
		Help: "The total number of weekly progress summaries built",
	})
	DigestEmailsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collectibles_digest_emails_sent_total",
		Help: "The total number of weekly progress emails dispatched",
	})
	EmailSendErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collectibles_email_send_errors_total",
		Help: "The total number of email dispatch failures",
	})
)
