package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "lostmatch"

// Match service Prometheus metrics.
var (
	MatchQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_queries_total",
			Help:      "Match queries by strategy and terminal state",
		},
		[]string{"strategy", "outcome"}, // outcome: done / degraded / rejected
	)

	MatchCandidates = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_candidates",
			Help:      "Corpus size scored per match query",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"strategy"},
	)

	MatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_duration_seconds",
			Help:      "End-to-end match query duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"strategy"},
	)

	JudgmentEntriesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "judgment_entries_dropped_total",
			Help:      "LLM judgment entries discarded during parsing",
		},
		[]string{"reason"}, // malformed / unknown_candidate
	)
)

var matchMetricsRegistered bool

// RegisterMatchMetrics registers match metrics. Must be called once from main.
func RegisterMatchMetrics() {
	if matchMetricsRegistered {
		return
	}
	prometheus.MustRegister(MatchQueriesTotal)
	prometheus.MustRegister(MatchCandidates)
	prometheus.MustRegister(MatchDuration)
	prometheus.MustRegister(JudgmentEntriesDropped)
	matchMetricsRegistered = true
}
