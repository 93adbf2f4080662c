// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fronttube"

var (
	// CacheLookupsTotal tracks the outcome of every resolve.
	// Labels:
	//   - kind: video, channel, image, caption, stream
	//   - status: hit, refreshed, miss, error, degraded
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total number of entity lookups by outcome",
		},
		[]string{"kind", "status"},
	)

	// CacheOperationsTotal tracks cache tier operations (get, set, delete).
	// Labels:
	//   - operation: get, set, delete
	//   - status: hit, miss, success, error
	//   - cache_type: memory, redis
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// CacheEvictionsTotal tracks entries dropped from the memory tier.
	// Labels:
	//   - kind
	//   - reason: capacity, expired
	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of memory cache evictions",
		},
		[]string{"kind", "reason"},
	)

	// DBQueriesTotal tracks persisted store queries.
	// Labels:
	//   - query_type: select, upsert, delete
	//   - table: videos, channels, images, captions, streams
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "Total number of database queries",
		},
		[]string{"query_type", "table"},
	)

	// ProviderFetchesTotal tracks upstream fetches.
	// Labels:
	//   - kind
	//   - result: success, not_found, error, rejected
	ProviderFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fetches_total",
			Help:      "Total number of remote provider fetches",
		},
		[]string{"kind", "result"},
	)

	// ProviderFetchDuration observes upstream fetch latency.
	ProviderFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_fetch_duration_seconds",
			Help:      "Latency of remote provider fetches",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// SingleflightRequestsTotal tracks singleflight behavior.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Current provider circuit breaker state",
		},
		[]string{"name"},
	)

	// RefreshTasksTotal tracks deferred refresh tasks.
	// Labels:
	//   - result: published, publish_error, succeeded, retried, dropped
	RefreshTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_tasks_total",
			Help:      "Total number of deferred refresh tasks by result",
		},
		[]string{"result"},
	)
)

// Lookup status constants.
const (
	LookupDegraded = "degraded"
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
)

// Cache type constants.
const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
)

// Eviction reason constants.
const (
	EvictCapacity = "capacity"
	EvictExpired  = "expired"
)

// DB query type constants.
const (
	DBQuerySelect = "select"
	DBQueryUpsert = "upsert"
	DBQueryDelete = "delete"
)

// Provider result constants.
const (
	ProviderSuccess  = "success"
	ProviderNotFound = "not_found"
	ProviderError    = "error"
	ProviderRejected = "rejected"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)

// Refresh task result constants.
const (
	RefreshPublished    = "published"
	RefreshPublishError = "publish_error"
	RefreshSucceeded    = "succeeded"
	RefreshRetried      = "retried"
	RefreshDropped      = "dropped"
)
