package models

import "time"

// MetricsSnapshot aggregates in-process counters for the admin dashboard.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	ArchivesBuilt            uint64    `json:"archives_built"`
	ArchivesFailed           uint64    `json:"archives_failed"`
	FilesSkipped             uint64    `json:"files_skipped"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
