package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autorule_events_enqueued_total",
		Help: "Total number of events placed on the dispatch queue.",
	})

	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autorule_events_processed_total",
		Help: "Total number of events fully dispatched.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autorule_events_dropped_total",
		Help: "Total number of events rejected due to a full queue.",
	})

	RuleAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autorule_rule_attempts_total",
		Help: "Total number of per-rule dispatch attempts, labelled by outcome.",
	}, []string{"outcome"})

	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autorule_actions_executed_total",
		Help: "Total number of actions executed, labelled by type and status.",
	}, []string{"action_type", "status"})

	ConfigurationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autorule_configuration_errors_total",
		Help: "Total number of stored conditions that failed to compile or evaluate.",
	})

	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "autorule_dispatch_duration_ms",
		Help:    "End-to-end event dispatch latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autorule_queue_utilization_ratio",
		Help: "Current event queue utilization (0–1).",
	})

	RecordsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autorule_records_pruned_total",
		Help: "Total number of execution records removed by the retention sweeper.",
	})
)
