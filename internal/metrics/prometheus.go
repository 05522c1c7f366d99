package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChatDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "telemed_chat_duration_seconds",
			Help:    "Chat turn processing duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"transport"},
	)

	ChatTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemed_chat_total",
			Help: "Total number of chat turns processed",
		},
		[]string{"status"},
	)

	RetrievalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemed_retrieval_total",
			Help: "Knowledge searches by outcome",
		},
		[]string{"outcome"},
	)

	RetrievalScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "telemed_retrieval_top_score",
			Help:    "Score of the best knowledge match per search",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	GapsLogged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemed_gaps_logged_total",
			Help: "Knowledge gap writes by outcome",
		},
		[]string{"outcome"},
	)

	GapsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemed_gaps_resolved_total",
			Help: "Knowledge gaps resolved by source",
		},
		[]string{"source"},
	)

	GapsMerged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telemed_gaps_merged_total",
			Help: "Duplicate gaps folded into a surviving gap",
		},
	)

	EvaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "telemed_gap_evaluation_duration_seconds",
			Help:    "Gap evaluation run duration in seconds",
			Buckets: []float64{0.1, 1, 5, 30, 60, 300, 900},
		},
		[]string{"trigger"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemed_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	LLMFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telemed_llm_failures_total",
			Help: "LLM calls that fell back to the canned reply",
		},
	)

	Feedback = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemed_feedback_total",
			Help: "User feedback on matched answers",
		},
		[]string{"helpful"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemed_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemed_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	EntriesImported = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telemed_entries_imported_total",
			Help: "Knowledge entries created from HTML imports",
		},
	)

	BackgroundDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemed_background_tasks_dropped_total",
			Help: "Fire-and-forget tasks the worker pool refused",
		},
		[]string{"task"},
	)
)

func Init() {
	prometheus.MustRegister(ChatDuration)
	prometheus.MustRegister(ChatTotal)
	prometheus.MustRegister(RetrievalTotal)
	prometheus.MustRegister(RetrievalScore)
	prometheus.MustRegister(GapsLogged)
	prometheus.MustRegister(GapsResolved)
	prometheus.MustRegister(GapsMerged)
	prometheus.MustRegister(EvaluationDuration)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(LLMFailures)
	prometheus.MustRegister(Feedback)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(EntriesImported)
	prometheus.MustRegister(BackgroundDropped)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
