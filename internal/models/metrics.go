package models

import "time"

// SystemMetrics summarises process level counters for the metrics summary endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	AllocationsGranted       uint64    `json:"allocations_granted"`
	AllocationsRejected      uint64    `json:"allocations_rejected"`
	SessionsMaterialized     uint64    `json:"sessions_materialized"`
	WaitlistPromotions       uint64    `json:"waitlist_promotions"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
