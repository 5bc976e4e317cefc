package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	TransitionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transition_count",
			Help: "Total number of workflow state transitions",
		},
		[]string{"entity_kind", "from", "to", "result"}, // result: ok, rejected
	)

	StreamEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_event_count",
			Help: "Total number of events appended to streams",
		},
		[]string{"stream_type", "importance"},
	)

	MilestoneUnblockedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "milestone_unblocked_count",
			Help: "Total number of milestones reported unblocked by a completion",
		},
	)

	FeedQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feed_query_duration_seconds",
			Help:    "User stream feed assembly duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func RecordTransition(entityKind, from, to, result string) {
	TransitionCount.WithLabelValues(entityKind, from, to, result).Inc()
}

func RecordStreamEvent(streamType, importance string) {
	StreamEventCount.WithLabelValues(streamType, importance).Inc()
}
