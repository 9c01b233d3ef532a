package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/insite-net/partage-api/internal/models"
)

// Archive build outcomes used as the "outcome" label.
const (
	ArchiveOutcomeSuccess = "success"
	ArchiveOutcomeFailure = "failure"
)

// MetricsService owns the Prometheus registry and keeps counters for the admin snapshot.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	cacheWrite      prometheus.Observer
	archiveBuilds   *prometheus.CounterVec
	archiveDuration prometheus.Observer
	archiveFiles    prometheus.Observer
	archiveSkipped  prometheus.Counter
	archiveBytes    prometheus.Observer
	jobsQueued      prometheus.Gauge

	requestCount         uint64
	requestDurationTotal uint64
	cacheHitCount        uint64
	cacheMissCount       uint64
	archivesBuilt        uint64
	archivesFailed       uint64
	filesSkipped         uint64
}

// NewMetricsService registers the collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	archiveBuilds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_builds_total",
		Help: "Archive builds by outcome",
	}, []string{"outcome"})

	archiveDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "archive_build_duration_seconds",
		Help:    "Time spent building and uploading an archive",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	archiveFiles := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "archive_files_per_build",
		Help:    "Number of files packed per archive",
		Buckets: prometheus.LinearBuckets(0, 5, 10),
	})

	archiveSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archive_files_skipped_total",
		Help: "Source files left out of archives after a failed download",
	})

	archiveBytes := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "archive_size_bytes",
		Help:    "Size of uploaded archives",
		Buckets: prometheus.ExponentialBuckets(1<<16, 4, 8),
	})

	jobsQueued := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "archive_jobs_queued",
		Help: "Archive jobs waiting in the in-process queue",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLookups, cacheWrite, archiveBuilds, archiveDuration, archiveFiles, archiveSkipped, archiveBytes, jobsQueued, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLookups:    cacheLookups,
		cacheWrite:      cacheWrite,
		archiveBuilds:   archiveBuilds,
		archiveDuration: archiveDuration,
		archiveFiles:    archiveFiles,
		archiveSkipped:  archiveSkipped,
		archiveBytes:    archiveBytes,
		jobsQueued:      jobsQueued,
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation counts a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveArchiveBuild records one archive build attempt.
func (m *MetricsService) ObserveArchiveBuild(outcome string, duration time.Duration, files, skipped int, size int64) {
	if m == nil {
		return
	}
	m.archiveBuilds.WithLabelValues(outcome).Inc()
	m.archiveDuration.Observe(duration.Seconds())
	if skipped > 0 {
		m.archiveSkipped.Add(float64(skipped))
		atomic.AddUint64(&m.filesSkipped, uint64(skipped))
	}
	if outcome != ArchiveOutcomeSuccess {
		atomic.AddUint64(&m.archivesFailed, 1)
		return
	}
	m.archiveFiles.Observe(float64(files))
	m.archiveBytes.Observe(float64(size))
	atomic.AddUint64(&m.archivesBuilt, 1)
}

// SetQueuedJobs reports the current queue depth.
func (m *MetricsService) SetQueuedJobs(n int) {
	if m == nil {
		return
	}
	m.jobsQueued.Set(float64(n))
}

// Snapshot returns aggregated counters for the admin API.
func (m *MetricsService) Snapshot() models.MetricsSnapshot {
	if m == nil {
		return models.MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            cacheRatio,
		ArchivesBuilt:            atomic.LoadUint64(&m.archivesBuilt),
		ArchivesFailed:           atomic.LoadUint64(&m.archivesFailed),
		FilesSkipped:             atomic.LoadUint64(&m.filesSkipped),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
