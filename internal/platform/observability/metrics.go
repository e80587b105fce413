package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TweetsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetstore_tweets_ingested_total",
		Help: "The total number of tweets written, by data source and outcome (inserted, updated)",
	}, []string{"source", "outcome"})

	TweetsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetstore_tweets_rejected_total",
		Help: "The total number of parsed tweets rejected before storage, by data source and reason",
	}, []string{"source", "reason"})

	IngestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetstore_ingest_errors_total",
		Help: "The total number of failed ingestion batches, by data source",
	}, []string{"source"})

	IngestBatchDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tweetstore_ingest_batch_duration_seconds",
		Help:    "Duration in seconds to parse and store one ingestion batch",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"source"})

	SpoolFilesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetstore_spool_files_processed_total",
		Help: "The total number of spool files handled, by status (done, failed, retry)",
	}, []string{"status"})

	SpoolBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tweetstore_spool_backlog_files",
		Help: "Number of capture files waiting in the spool directory",
	})

	SpoolFailedFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tweetstore_spool_failed_files",
		Help: "Number of capture files parked in the spool failed directory",
	})
)
