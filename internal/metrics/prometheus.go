package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheOperationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "social_cache_operations_total",
			Help: "Cache layer operations by operation and result.",
		},
		[]string{"op", "result"},
	)

	CacheInvalidatedKeysCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "social_cache_invalidated_keys_total",
			Help: "Number of cache keys erased by invalidation.",
		},
	)

	CacheIndexedKeysGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "social_cache_indexed_keys",
			Help: "Keys tracked by the cache key index for namespace invalidation.",
		},
	)

	PushDeliveriesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "social_push_deliveries_total",
			Help: "Push delivery attempts by outcome.",
		},
		[]string{"outcome"},
	)

	PushSubscriptionsPrunedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "social_push_subscriptions_pruned_total",
			Help: "Subscriptions removed after the push service reported them gone.",
		},
	)

	FanoutEventsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "social_fanout_events_total",
			Help: "Mutation events published to the fan-out coordinator by kind.",
		},
		[]string{"kind"},
	)

	FanoutTaskFailuresCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "social_fanout_task_failures_total",
			Help: "Fan-out side effects that failed, by task.",
		},
		[]string{"task"},
	)

	FanoutInflightGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "social_fanout_inflight_tasks",
			Help: "Number of detached fan-out tasks currently running.",
		},
	)
)

// Push delivery outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeGone      = "gone"
	OutcomeFailed    = "failed"
)

// Cache operation results.
const (
	ResultHit      = "hit"
	ResultMiss     = "miss"
	ResultOK       = "ok"
	ResultError    = "error"
	ResultBypass   = "bypass"
	ResultRejected = "rejected"
)

// ObserveCacheOp records one cache layer operation.
func ObserveCacheOp(op, result string) {
	CacheOperationsCounter.WithLabelValues(op, result).Inc()
}

// ObservePushDelivery records one push delivery attempt.
func ObservePushDelivery(outcome string) {
	PushDeliveriesCounter.WithLabelValues(outcome).Inc()
}

// ObserveFanoutEvent records a published mutation event.
func ObserveFanoutEvent(kind string) {
	FanoutEventsCounter.WithLabelValues(kind).Inc()
}

// ObserveFanoutFailure records a failed fan-out task.
func ObserveFanoutFailure(task string) {
	FanoutTaskFailuresCounter.WithLabelValues(task).Inc()
}
