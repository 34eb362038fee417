package models

import "time"

// SystemMetrics is an aggregated snapshot of runtime counters for the
// operations dashboard.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	EnrollmentsCreated       uint64    `json:"enrollments_created"`
	EnrollmentsApproved      uint64    `json:"enrollments_approved"`
	PaymentsRecorded         uint64    `json:"payments_recorded"`
	PaymentsAmountTotal      int64     `json:"payments_amount_total"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
