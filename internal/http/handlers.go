package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-tweet-bot/internal/lifecycle"
	"github.com/kjstillabower/weather-tweet-bot/internal/service"
	"github.com/kjstillabower/weather-tweet-bot/internal/traffic"
	"github.com/kjstillabower/weather-tweet-bot/internal/validation"
	"github.com/kjstillabower/weather-tweet-bot/internal/weather"
)

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	StartTime        time.Time
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	pipeline      *service.Pipeline
	weatherClient weather.Client
	healthConfig  *HealthConfig
	logger        *zap.Logger
	livePosting   bool
	cityMinLen    int
	cityMaxLen    int

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	pipeline *service.Pipeline,
	weatherClient weather.Client,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	livePosting bool,
	cityMinLen, cityMaxLen int,
) *Handler {
	return &Handler{
		pipeline:      pipeline,
		weatherClient: weatherClient,
		healthConfig:  healthConfig,
		logger:        logger,
		livePosting:   livePosting,
		cityMinLen:    cityMinLen,
		cityMaxLen:    cityMaxLen,
	}
}

// GetHome handles GET /. A simple liveness reply that names the posting mode.
func (h *Handler) GetHome(w http.ResponseWriter, r *http.Request) {
	mode := "DRY RUN"
	if h.livePosting {
		mode = "LIVE"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Weather tweet bot is alive. Posting mode: %s\n", mode)
}

// RunTweetTask handles GET|POST /run: the scheduler trigger. Executes one
// pipeline run and reports the receipt. An optional ?city= overrides the
// configured city for this run only.
func (h *Handler) RunTweetTask(w http.ResponseWriter, r *http.Request) {
	cityOverride := ""
	if raw := r.URL.Query().Get("city"); raw != "" {
		city, err := validation.ValidateCity(raw, h.cityMinLen, h.cityMaxLen)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
			return
		}
		cityOverride = city
	}

	receipt, err := h.pipeline.Run(r.Context(), cityOverride)
	if err != nil {
		traffic.RecordError()
		writePipelineError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, receipt)
}

// GetStatus handles GET /status: last run receipt plus window counters.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	window := 60 * time.Minute
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 {
		window = h.healthConfig.DegradedWindow
	}
	errCount, total := traffic.ErrorRate(window)

	resp := map[string]interface{}{
		"mode":             modeString(h.livePosting),
		"runs_in_window":   total,
		"errors_in_window": errCount,
		"denied_in_window": traffic.DenialCount(window),
		"window_length":    window.String(),
	}
	if receipt := h.pipeline.LastReceipt(); receipt != nil {
		resp["last_run"] = receipt
	}
	writeJSON(w, http.StatusOK, resp)
}

func modeString(live bool) string {
	if live {
		return "live"
	}
	return "dry_run"
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.reason == "api_key_invalid" || result.reason == "error_rate_breach" {
		checks["weatherApi"] = "unhealthy"
	} else {
		checks["weatherApi"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-tweet-bot",
		"version":   "dev",
		"mode":      modeString(h.livePosting),
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus determines the current health status by evaluating
// conditions in priority order: shutting-down > API key invalid > run error
// rate degraded > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if err := h.weatherClient.ValidateAPIKey(ctx); err != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errCount, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errCount) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writePipelineError maps a failed run to a 502 so the external scheduler can
// alert on trigger failures. The underlying error is logged, not leaked.
func writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	code := "RUN_FAILED"
	message := "Tweet task execution failed"
	switch {
	case errors.Is(err, weather.ErrCityNotFound):
		code = "CITY_NOT_FOUND"
		message = "City could not be geocoded"
	case errors.Is(err, weather.ErrInvalidAPIKey):
		code = "UPSTREAM_AUTH"
		message = "Weather API rejected the configured key"
	}
	writeError(w, r, http.StatusBadGateway, code, message)
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Error("pipeline run failed", zap.Error(err))
	}
}
