package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters and histograms for the conversation engine. Registered on the
// default registry so host applications expose them with their existing
// /metrics handler.
var (
	TurnsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agent_console",
		Subsystem: "turns",
		Name:      "started_total",
		Help:      "Number of user turns submitted.",
	})

	TurnsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agent_console",
		Subsystem: "turns",
		Name:      "completed_total",
		Help:      "Number of turns that finished with an assistant response.",
	})

	TurnsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agent_console",
		Subsystem: "turns",
		Name:      "failed_total",
		Help:      "Number of turns that failed or were cancelled.",
	})

	TurnsOversized = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agent_console",
		Subsystem: "turns",
		Name:      "oversized_context_total",
		Help:      "Number of turns rejected by the backend with an oversized-context error.",
	})

	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "agent_console",
		Subsystem: "turns",
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of completed turns.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	RealtimeEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agent_console",
		Subsystem: "realtime",
		Name:      "events_total",
		Help:      "Number of realtime events received and merged.",
	})

	RealtimeReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agent_console",
		Subsystem: "realtime",
		Name:      "reconnects_total",
		Help:      "Number of silent realtime channel resubscriptions.",
	})

	DuplicatesAbsorbed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agent_console",
		Subsystem: "log",
		Name:      "duplicates_absorbed_total",
		Help:      "Number of duplicate message deliveries absorbed by the merge rule.",
	})

	OptimisticResolved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agent_console",
		Subsystem: "log",
		Name:      "optimistic_resolved_total",
		Help:      "Number of optimistic messages resolved in place with a server identity.",
	})
)
