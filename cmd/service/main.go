package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-tweet-bot/internal/cache"
	"github.com/kjstillabower/weather-tweet-bot/internal/circuitbreaker"
	"github.com/kjstillabower/weather-tweet-bot/internal/config"
	httphandler "github.com/kjstillabower/weather-tweet-bot/internal/http"
	"github.com/kjstillabower/weather-tweet-bot/internal/lifecycle"
	"github.com/kjstillabower/weather-tweet-bot/internal/observability"
	"github.com/kjstillabower/weather-tweet-bot/internal/render"
	"github.com/kjstillabower/weather-tweet-bot/internal/service"
	"github.com/kjstillabower/weather-tweet-bot/internal/twitter"
	"github.com/kjstillabower/weather-tweet-bot/internal/weather"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatal("timezone", zap.String("timezone", cfg.Timezone), zap.Error(err))
	}

	weatherClient, err := weather.NewOpenWeatherClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherGeoURL,
		cfg.WeatherOneCallURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	if cfg.CircuitBreakerEnabled {
		weatherClient.SetCircuitBreaker(newBreaker(cfg, "weather_api"))
		observability.SetCircuitBreakerStateGauge("weather_api", 0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	// The publisher is only built when credentials exist. Without one every
	// run is forced into dry-run regardless of posting_enabled.
	var publisher twitter.Publisher
	livePosting := false
	if cfg.HasTwitterCredentials() {
		twitterClient, err := twitter.NewClient(twitter.Credentials{
			APIKey:            cfg.TwitterAPIKey,
			APISecret:         cfg.TwitterAPISecret,
			AccessToken:       cfg.TwitterAccessToken,
			AccessTokenSecret: cfg.TwitterAccessTokenSecret,
		}, cfg.TwitterUploadURL, cfg.TwitterTweetURL, cfg.TwitterAPITimeout)
		if err != nil {
			logger.Fatal("twitter client", zap.Error(err))
		}
		if cfg.CircuitBreakerEnabled {
			twitterClient.SetCircuitBreaker(newBreaker(cfg, "twitter_api"))
			observability.SetCircuitBreakerStateGauge("twitter_api", 0)
		}
		publisher = twitterClient
		livePosting = cfg.PostingEnabled
	} else if cfg.PostingEnabled {
		logger.Warn("posting enabled but Twitter credentials missing; running in dry-run mode")
	}

	var renderer service.ImageRenderer
	if cfg.ImageEnabled {
		renderer = render.New(cfg.ImageWidth, cfg.ImageHeight, cfg.FontsDir)
		logger.Info("image rendering enabled",
			zap.Int("width", cfg.ImageWidth),
			zap.Int("height", cfg.ImageHeight),
			zap.String("fonts_dir", cfg.FontsDir))
	}

	var coordCache cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		coordCache = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		coordCache = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	pipeline := service.NewPipeline(weatherClient, publisher, renderer, coordCache, service.Options{
		City:         cfg.City,
		Country:      cfg.Country,
		Timezone:     tz,
		LivePosting:  livePosting,
		ImageEnabled: cfg.ImageEnabled,
		GeocodeTTL:   cfg.CacheTTL,
	})

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		StartTime:        time.Now(),
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	handler := httphandler.NewHandler(pipeline, weatherClient, healthConfig, logger, livePosting, cfg.CityMinLength, cfg.CityMaxLength)

	observability.RegisterRunWindowGauges(cfg.DegradedWindow)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/", handler.GetHome).Methods("GET")
	router.HandleFunc("/status", handler.GetStatus).Methods("GET")
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	runRouter := router.PathPrefix("/run").Subrouter()
	runRouter.Use(httphandler.RateLimitMiddleware(limiter))
	runRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	runRouter.HandleFunc("", handler.RunTweetTask).Methods("GET", "POST")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		mode := "DRY RUN"
		if livePosting {
			mode = "LIVE"
		}
		logger.Info("server starting",
			zap.String("addr", ":"+cfg.ServerPort),
			zap.String("city", cfg.City),
			zap.String("posting_mode", mode))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// newBreaker builds a circuit breaker for an upstream with metrics hooks wired.
func newBreaker(cfg *config.Config, component string) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.CircuitBreakerTimeout,
		Component:        component,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(component, from.String(), to.String())
			observability.SetCircuitBreakerStateGauge(component, float64(to))
		},
	})
}
