package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tutor_pipeline_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"topic_type"},
	)

	PipelineTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_pipeline_total",
			Help: "Total pipeline runs by outcome",
		},
		[]string{"status"},
	)

	DegradedSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_degraded_steps_total",
			Help: "Pipeline steps that fell back to a degraded result",
		},
		[]string{"step"},
	)

	KeyPhrasesCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tutor_key_phrases_count",
			Help:    "Number of key phrases per question",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		},
	)

	MemoryRecalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_memory_recalls_total",
			Help: "Session memory lookups by result",
		},
		[]string{"result"},
	)

	EngagementScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tutor_engagement_score",
			Help:    "Engagement scores used to shape responses",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	ResponseLevel = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_response_level_total",
			Help: "Responses by adaptive level",
		},
		[]string{"level"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tutor_active_sessions",
			Help: "Sessions with an in-memory history",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	FeedbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_feedback_total",
			Help: "Learner feedback on explanations",
		},
		[]string{"helpful"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PipelineDuration,
			PipelineTotal,
			DegradedSteps,
			KeyPhrasesCount,
			MemoryRecalls,
			EngagementScore,
			ResponseLevel,
			ActiveSessions,
			CacheHits,
			CacheMisses,
			FeedbackTotal,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
