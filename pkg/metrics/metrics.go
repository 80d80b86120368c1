package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kh_cache_requests_total",
			Help: "Cache lookups by projection and result",
		},
		[]string{"cache", "result"}, // result: hit, miss, error
	)

	IngestFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kh_ingest_files_total",
			Help: "Ingested files by result",
		},
		[]string{"result"},
	)

	IngestChunks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kh_ingest_chunks_total",
			Help: "Chunks written to vector collections",
		},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kh_ingest_duration_seconds",
			Help:    "End-to-end duration of a single file ingestion",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	RollbackFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kh_rollback_failures_total",
			Help: "Compensating actions that failed",
		},
		[]string{"step"}, // step: blob, vectors
	)

	OrphanBlobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kh_orphan_blobs_total",
			Help: "Orphaned blobs by outcome",
		},
		[]string{"result"}, // result: reported, swept, failed
	)

	RetrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kh_retrieval_duration_seconds",
			Help:    "Duration of a multi-collection retrieval",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetrievalCollectionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kh_retrieval_collection_failures_total",
			Help: "Collections excluded from a retrieval",
		},
		[]string{"reason"}, // reason: open, search, timeout
	)

	OpenCollections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kh_vector_collections_open",
			Help: "Vector collection handles held by the registry",
		},
	)

	CleanupRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kh_cleanup_records_total",
			Help: "Chat records removed or updated by cleanup tasks",
		},
		[]string{"task"},
	)

	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kh_scheduler_job_runs_total",
			Help: "Scheduled job executions",
		},
		[]string{"job", "result"},
	)

	dbConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kh_database_connections",
			Help: "Database connections in different states",
		},
		[]string{"state"}, // state: idle, in_use, open
	)
)

// CollectDBStats 周期性采集连接池状态，ctx 结束时退出
func CollectDBStats(ctx context.Context, db *sql.DB, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		observeDBStats(db.Stats())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func observeDBStats(s sql.DBStats) {
	dbConnections.WithLabelValues("idle").Set(float64(s.Idle))
	dbConnections.WithLabelValues("in_use").Set(float64(s.InUse))
	dbConnections.WithLabelValues("open").Set(float64(s.OpenConnections))
}
