package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrelay_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Relay metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_connections_active",
			Help: "Currently registered relay connections",
		},
	)

	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_connections_total",
			Help: "Total relay connections accepted",
		},
	)

	MessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_messages_relayed_total",
			Help: "Total inbound messages fanned out",
		},
		[]string{"kind"}, // "text", "image" or "system"
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_messages_dropped_total",
			Help: "Total messages dropped by the relay",
		},
		[]string{"reason"}, // "parse", "invalid", "queue_full"
	)

	// Business metrics
	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_users_registered_total",
			Help: "Total users registered",
		},
	)

	Uploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_uploads_total",
			Help: "Total image uploads",
		},
		[]string{"result"}, // "stored", "rejected" or "error"
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatrelay_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	DBLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatrelay_db_latency_seconds",
			Help:    "Directory store query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
