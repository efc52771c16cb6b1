package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/weather-tweet-bot/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: scheduler triggers arriving on time.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. The /run route includes the whole pipeline.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Used by graceful shutdown draining.
	HTTPRequestsInFlight prometheus.Gauge

	// Pipeline runs by outcome (posted, dry_run, fallback, error).
	PipelineRunsTotal *prometheus.CounterVec

	// End-to-end pipeline latency. Watch for: upstream slowdowns pushing p95 up.
	PipelineRunDuration prometheus.Histogram

	// OpenWeatherMap call rate by endpoint (geocode, onecall) and status.
	WeatherAPICallsTotal *prometheus.CounterVec

	// OpenWeatherMap latency. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts for weather API. High retries = unstable upstream.
	WeatherAPIRetriesTotal prometheus.Counter

	// Twitter call rate by endpoint (media_upload, media_metadata, create_tweet) and status.
	TwitterAPICallsTotal *prometheus.CounterVec

	// Twitter latency per endpoint.
	TwitterAPIDuration *prometheus.HistogramVec

	// Final tweet length in runes. Must never exceed 280.
	TweetLengthRunes prometheus.Histogram

	// Hashtags dropped to fit the character budget.
	HashtagsDroppedTotal prometheus.Counter

	// Report card render latency and failures.
	ImageRenderDuration    prometheus.Histogram
	ImageRenderErrorsTotal prometheus.Counter

	// Coordinates cache hits by backend type.
	CacheHitsTotal *prometheus.CounterVec

	// Coordinates cache errors by operation.
	CacheErrorsTotal *prometheus.CounterVec

	// Rate limit denials on the trigger route.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state transitions per upstream component.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Circuit breaker state per component (0 closed, 1 open, 2 half-open).
	CircuitBreakerState *prometheus.GaugeVec

	runWindowGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipelineRunsTotal",
			Help: "Pipeline runs by outcome (posted, dry_run, fallback, error)",
		},
		[]string{"outcome"},
	)
	PipelineRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipelineRunDurationSeconds",
			Help:    "End-to-end pipeline run latency in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30},
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for weather API calls",
		},
	)
	TwitterAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twitterApiCallsTotal",
			Help: "Total number of Twitter API calls",
		},
		[]string{"endpoint", "status"},
	)
	TwitterAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twitterApiDurationSeconds",
			Help:    "Twitter API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)
	TweetLengthRunes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tweetLengthRunes",
			Help:    "Final tweet length in runes; platform limit is 280",
			Buckets: []float64{80, 120, 160, 200, 240, 260, 280},
		},
	)
	HashtagsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hashtagsDroppedTotal",
			Help: "Hashtags dropped to keep tweets under the character budget",
		},
	)
	ImageRenderDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "imageRenderDurationSeconds",
			Help:    "Report card render latency in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1},
		},
	)
	ImageRenderErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "imageRenderErrorsTotal",
			Help: "Report card renders that failed (tweet posted without media)",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Coordinates cache hits",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Coordinates cache errors by operation",
		},
		[]string{"operation"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of trigger requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		PipelineRunsTotal, PipelineRunDuration,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal,
		TwitterAPICallsTotal, TwitterAPIDuration,
		TweetLengthRunes, HashtagsDroppedTotal,
		ImageRenderDuration, ImageRenderErrorsTotal,
		CacheHitsTotal, CacheErrorsTotal,
		RateLimitDeniedTotal,
		CircuitBreakerTransitionsTotal, CircuitBreakerState,
	)
}

// RegisterRunWindowGauges registers sliding-window gauges over pipeline run
// outcomes. Call from main after config load with the degraded window.
func RegisterRunWindowGauges(window time.Duration) {
	runWindowGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "pipelineRunsInWindow",
					Help: "Pipeline runs in the degraded-check sliding window",
				},
				func() float64 { return float64(traffic.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "pipelineErrorsInWindow",
					Help: "Failed pipeline runs in the degraded-check sliding window",
				},
				func() float64 {
					errs, _ := traffic.ErrorRate(window)
					return float64(errs)
				},
			),
		)
	})
}

// RecordCircuitBreakerTransition records a breaker state change for metrics.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
}

// SetCircuitBreakerStateGauge sets the breaker state gauge for a component.
func SetCircuitBreakerStateGauge(component string, state float64) {
	CircuitBreakerState.WithLabelValues(component).Set(state)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
