// Package service runs the fetch -> compose -> render -> publish pipeline.
// Each run is stateless and one-shot: no retry beyond the weather client's
// own backoff, no persistence of weather data across runs.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-tweet-bot/internal/cache"
	"github.com/kjstillabower/weather-tweet-bot/internal/compose"
	"github.com/kjstillabower/weather-tweet-bot/internal/models"
	"github.com/kjstillabower/weather-tweet-bot/internal/observability"
	"github.com/kjstillabower/weather-tweet-bot/internal/twitter"
	"github.com/kjstillabower/weather-tweet-bot/internal/weather"
)

// ImageRenderer draws the report card. Implemented by render.Renderer; an
// interface here keeps the pipeline testable without font files.
type ImageRenderer interface {
	Render(lines []string) ([]byte, error)
}

// Options configures a Pipeline.
type Options struct {
	City         string
	Country      string
	Timezone     *time.Location
	LivePosting  bool // false = dry run: compose and render, never call the posting API
	ImageEnabled bool
	GeocodeTTL   time.Duration
}

// Pipeline orchestrates one weather tweet run. Coordinates are resolved
// cache-aside; everything else is fetched fresh per run.
type Pipeline struct {
	weather   weather.Client
	publisher twitter.Publisher // nil in dry-run deployments without credentials
	renderer  ImageRenderer
	cache     cache.Cache
	opts      Options

	mu          sync.Mutex
	lastReceipt *models.RunReceipt
}

// NewPipeline creates a Pipeline. publisher may be nil when posting is
// disabled; renderer may be nil when the image is disabled.
func NewPipeline(weatherClient weather.Client, publisher twitter.Publisher, renderer ImageRenderer, coordCache cache.Cache, opts Options) *Pipeline {
	if opts.Timezone == nil {
		opts.Timezone = time.UTC
	}
	if opts.GeocodeTTL <= 0 {
		opts.GeocodeTTL = 24 * time.Hour
	}
	return &Pipeline{
		weather:   weatherClient,
		publisher: publisher,
		renderer:  renderer,
		cache:     coordCache,
		opts:      opts,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return zap.NewNop()
}

// Run executes one pipeline run for the configured city (or cityOverride when
// non-empty). Returns a receipt describing what happened.
func (p *Pipeline) Run(ctx context.Context, cityOverride string) (models.RunReceipt, error) {
	start := time.Now()
	logger := loggerFromContext(ctx)

	city := p.opts.City
	if cityOverride != "" {
		city = cityOverride
	}
	logger.Info("pipeline run starting", zap.String("city", city), zap.Bool("live", p.opts.LivePosting))

	receipt := models.RunReceipt{
		City:      city,
		StartedAt: start.In(p.opts.Timezone),
		DryRun:    !p.opts.LivePosting,
	}

	coords, err := p.resolveCoordinates(ctx, city)
	if err != nil {
		p.finish(&receipt, "error", start)
		return receipt, fmt.Errorf("geocode %s: %w", city, err)
	}

	snap, err := p.weather.GetForecast(ctx, coords.Latitude, coords.Longitude, p.opts.Timezone)
	if err != nil {
		p.finish(&receipt, "error", start)
		return receipt, fmt.Errorf("fetch forecast for %s: %w", city, err)
	}
	snap.City = city

	content := compose.Build(snap)
	receipt.Fallback = content.Fallback

	text, droppedTags := compose.FinalText(content)
	receipt.TweetLength = len([]rune(text))
	observability.TweetLengthRunes.Observe(float64(receipt.TweetLength))
	if droppedTags > 0 {
		observability.HashtagsDroppedTotal.Add(float64(droppedTags))
		logger.Warn("hashtags dropped to fit character budget", zap.Int("dropped", droppedTags))
	}

	if !p.opts.LivePosting {
		logger.Info("[dry run] skipping post",
			zap.String("tweet", text),
			zap.Int("length", receipt.TweetLength),
			zap.Bool("would_attach_image", p.wantImage(content)))
		outcome := "dry_run"
		if content.Fallback {
			outcome = "fallback"
		}
		p.finish(&receipt, outcome, start)
		return receipt, nil
	}

	// Never post the generic fallback live; a scheduler retriggers soon enough.
	if content.Fallback {
		logger.Error("content generation fell back, skipping live post")
		p.finish(&receipt, "fallback", start)
		return receipt, fmt.Errorf("forecast data missing for %s", city)
	}

	if p.publisher == nil {
		p.finish(&receipt, "error", start)
		return receipt, fmt.Errorf("posting enabled but no publisher configured")
	}

	mediaIDs := p.uploadImage(ctx, logger, content)
	receipt.MediaWasSet = len(mediaIDs) > 0

	tweetID, err := p.publisher.CreateTweet(ctx, text, mediaIDs)
	if err != nil {
		p.finish(&receipt, "error", start)
		return receipt, fmt.Errorf("post tweet: %w", err)
	}
	receipt.Posted = true
	receipt.TweetID = tweetID

	logger.Info("tweet posted",
		zap.String("tweet_id", tweetID),
		zap.Int("length", receipt.TweetLength),
		zap.Bool("media_attached", receipt.MediaWasSet))
	p.finish(&receipt, "posted", start)
	return receipt, nil
}

// resolveCoordinates returns coordinates for the city, cache-aside.
func (p *Pipeline) resolveCoordinates(ctx context.Context, city string) (models.Coordinates, error) {
	logger := loggerFromContext(ctx)
	key := normalizeCity(city) + "," + strings.ToLower(p.opts.Country)

	cached, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("coordinates cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues("geocode").Inc()
		logger.Debug("coordinates cache hit", zap.String("key", key))
		return cached, nil
	}

	coords, err := p.weather.Geocode(ctx, city, p.opts.Country)
	if err != nil {
		return models.Coordinates{}, err
	}

	if setErr := p.cache.Set(ctx, key, coords, p.opts.GeocodeTTL); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		logger.Warn("coordinates cache set failed", zap.String("key", key), zap.Error(setErr))
	}
	return coords, nil
}

// uploadImage renders and uploads the report card. Best effort: any failure
// logs and returns nil so the tweet still goes out without media.
func (p *Pipeline) uploadImage(ctx context.Context, logger *zap.Logger, content models.TweetContent) []string {
	if !p.wantImage(content) {
		return nil
	}

	png, err := p.renderer.Render(content.ImageLines)
	if err != nil {
		logger.Error("report card render failed, posting without image", zap.Error(err))
		return nil
	}

	mediaID, err := p.publisher.UploadMedia(ctx, png, content.AltText)
	if err != nil {
		if mediaID == "" {
			logger.Error("media upload failed, posting without image", zap.Error(err))
			return nil
		}
		// Upload succeeded, only the alt text call failed.
		logger.Warn("alt text attach failed", zap.Error(err))
	}
	logger.Debug("media uploaded", zap.String("media_id", mediaID), zap.Int("png_bytes", len(png)))
	return []string{mediaID}
}

func (p *Pipeline) wantImage(content models.TweetContent) bool {
	return p.opts.ImageEnabled && p.renderer != nil && len(content.ImageLines) > 0
}

// finish records run metrics and stores the receipt for /status.
func (p *Pipeline) finish(receipt *models.RunReceipt, outcome string, start time.Time) {
	observability.PipelineRunsTotal.WithLabelValues(outcome).Inc()
	observability.PipelineRunDuration.Observe(time.Since(start).Seconds())

	p.mu.Lock()
	copied := *receipt
	p.lastReceipt = &copied
	p.mu.Unlock()
}

// LastReceipt returns the most recent run receipt, or nil before the first run.
func (p *Pipeline) LastReceipt() *models.RunReceipt {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastReceipt == nil {
		return nil
	}
	copied := *p.lastReceipt
	return &copied
}

// normalizeCity normalizes city strings for cache keys.
func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
