// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "streamzilla"

var (
	// CacheOperationsTotal tracks cache operations.
	// Labels:
	//   - operation: get, set, delete, clear
	//   - status: hit, miss, stale, success, error
	//   - cache_type: redis, memory
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// DBQueriesTotal tracks database queries.
	// Labels:
	//   - query_type: select, insert, update, delete
	//   - table: twitch_tokens, games
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "Total number of database queries",
		},
		[]string{"query_type", "table"},
	)

	// UpstreamRequestsTotal tracks calls to the Twitch API.
	// Labels:
	//   - endpoint: token, validate, search_categories, streams, videos, users
	//   - status: 2xx, 4xx, 429, 5xx, error, circuit_open
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of upstream API requests",
		},
		[]string{"endpoint", "status"},
	)

	// UpstreamRetriesTotal counts retries after rate limiting.
	UpstreamRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Total number of upstream retries after HTTP 429",
		},
		[]string{"endpoint"},
	)

	// TokenOperationsTotal tracks the app token lifecycle.
	// Labels:
	//   - operation: get, validate, generate, invalidate, purge
	//   - result: cache_hit, valid, invalid, success, rate_limited, error
	TokenOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_operations_total",
			Help:      "Total number of app token operations",
		},
		[]string{"operation", "result"},
	)

	// SearchRequestsTotal tracks search outcomes.
	// Labels:
	//   - result: cached, found, not_found, error
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of game searches",
		},
		[]string{"result"},
	)

	// SourceFailuresTotal counts upstream sources dropped during aggregation.
	// Labels:
	//   - source: streams, videos
	SourceFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_source_failures_total",
			Help:      "Total number of aggregation sources treated as empty after a failure",
		},
		[]string{"source"},
	)

	// QueueMessagesTotal tracks game record messages.
	// Labels:
	//   - operation: publish, consume
	//   - status: success, retry, dropped, error
	QueueMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_messages_total",
			Help:      "Total number of queue messages",
		},
		[]string{"operation", "status"},
	)

	// SingleflightRequestsTotal tracks singleflight behavior.
	// Labels:
	//   - group: search, token
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"group", "result"},
	)
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusStale   = "stale"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
	CacheOpClear  = "clear"
)

// Cache type constants.
const (
	CacheTypeRedis  = "redis"
	CacheTypeMemory = "memory"
)

// DB query type constants.
const (
	DBQuerySelect = "select"
	DBQueryInsert = "insert"
	DBQueryUpdate = "update"
	DBQueryDelete = "delete"
)

// Table name constants.
const (
	TableTokens     = "twitch_tokens"
	TableGames      = "games"
	TableUserTokens = "user_tokens"
)

// Upstream status constants beyond status classes.
const (
	UpstreamStatusError       = "error"
	UpstreamStatusCircuitOpen = "circuit_open"
)

// Token operation constants.
const (
	TokenOpGet        = "get"
	TokenOpValidate   = "validate"
	TokenOpGenerate   = "generate"
	TokenOpInvalidate = "invalidate"
	TokenOpPurge      = "purge"

	TokenResultCacheHit    = "cache_hit"
	TokenResultValid       = "valid"
	TokenResultInvalid     = "invalid"
	TokenResultSuccess     = "success"
	TokenResultRateLimited = "rate_limited"
	TokenResultError       = "error"
)

// Search result constants.
const (
	SearchResultCached   = "cached"
	SearchResultFound    = "found"
	SearchResultNotFound = "not_found"
	SearchResultError    = "error"
)

// Queue constants.
const (
	QueueOpPublish = "publish"
	QueueOpConsume = "consume"

	QueueStatusSuccess = "success"
	QueueStatusRetry   = "retry"
	QueueStatusDropped = "dropped"
	QueueStatusError   = "error"
)

// Singleflight constants.
const (
	SingleflightGroupSearch = "search"
	SingleflightGroupToken  = "token"

	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)
