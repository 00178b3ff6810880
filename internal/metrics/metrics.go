package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion
	MessagesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegroup_messages_ingested_total",
			Help: "Messages read from import sources",
		},
		[]string{"result"}, // "inserted", "duplicate", "skipped"
	)

	// Summarization
	SummarizeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegroup_summarize_requests_total",
			Help: "Summarization calls by outcome",
		},
		[]string{"outcome"}, // "ok", "transport", "malformed", "extraction", "skipped"
	)

	SummarizeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "telegroup_summarize_duration_seconds",
			Help:    "Latency of one summarization call",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
	)

	ExtractionStrategy = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegroup_extraction_strategy_total",
			Help: "Which step recovered the JSON object from model output",
		},
		[]string{"strategy"},
	)

	// Pipeline
	ThreadsSummarized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegroup_threads_summarized_total",
			Help: "Threads processed by the digest pipeline",
		},
		[]string{"status"}, // "ok", "partial", "failed"
	)

	BatchesPlanned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "telegroup_batches_per_thread",
			Help:    "Number of batches a summarized thread was split into",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		},
	)

	ReportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegroup_reports_generated_total",
			Help: "Reports written",
		},
		[]string{"format"},
	)

	ReportsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegroup_reports_published_total",
			Help: "Report notifications sent over NATS",
		},
		[]string{"result"}, // "ok", "error"
	)

	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegroup_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	ScheduledRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegroup_scheduled_runs_total",
			Help: "Cron-triggered report runs",
		},
		[]string{"result"},
	)
)
