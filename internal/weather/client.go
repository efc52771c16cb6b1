package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/weather-tweet-bot/internal/circuitbreaker"
	"github.com/kjstillabower/weather-tweet-bot/internal/models"
	"github.com/kjstillabower/weather-tweet-bot/internal/observability"
)

// Client fetches geocoding and forecast data for the pipeline.
type Client interface {
	Geocode(ctx context.Context, city, country string) (models.Coordinates, error)
	GetForecast(ctx context.Context, lat, lon float64, loc *time.Location) (models.WeatherSnapshot, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrCityNotFound    = errors.New("city not found")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
)

// OpenWeatherClient talks to the OpenWeatherMap geocoding and One Call 3.0 APIs.
type OpenWeatherClient struct {
	apiKey         string
	geoURL         string
	oneCallURL     string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

// NewOpenWeatherClient creates a client with default retry settings.
func NewOpenWeatherClient(apiKey, geoURL, oneCallURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	return NewOpenWeatherClientWithRetry(apiKey, geoURL, oneCallURL, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

// NewOpenWeatherClientWithRetry creates a client with explicit retry settings.
func NewOpenWeatherClientWithRetry(apiKey, geoURL, oneCallURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}

	return &OpenWeatherClient{
		apiKey:         apiKey,
		geoURL:         geoURL,
		oneCallURL:     oneCallURL,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker wires a breaker around upstream calls. Optional.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

type geocodeEntry struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
}

type oneCallResponse struct {
	Current struct {
		Dt         int64   `json:"dt"`
		Temp       *float64 `json:"temp"`
		FeelsLike  float64 `json:"feels_like"`
		Humidity   int     `json:"humidity"`
		Pressure   int     `json:"pressure"`
		WindSpeed  float64 `json:"wind_speed"`
		WindDeg    float64 `json:"wind_deg"`
		Clouds     int     `json:"clouds"`
		Visibility int     `json:"visibility"`
		Weather    []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"current"`
	Hourly []struct {
		Dt      int64   `json:"dt"`
		Temp    float64 `json:"temp"`
		Pop     float64 `json:"pop"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
		Rain struct {
			OneH float64 `json:"1h"`
		} `json:"rain"`
		Snow struct {
			OneH float64 `json:"1h"`
		} `json:"snow"`
	} `json:"hourly"`
	Daily []struct {
		Dt   int64 `json:"dt"`
		Temp struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"temp"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"daily"`
}

// Geocode resolves a city to coordinates via the geocoding API.
func (c *OpenWeatherClient) Geocode(ctx context.Context, city, country string) (models.Coordinates, error) {
	q := city
	if country != "" {
		q = city + "," + country
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("limit", "1")
	params.Set("appid", c.apiKey)

	body, err := c.callWithRetry(ctx, "geocode", c.geoURL, params)
	if err != nil {
		return models.Coordinates{}, err
	}

	var entries []geocodeEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return models.Coordinates{}, fmt.Errorf("parse geocode response: %w", err)
	}
	if len(entries) == 0 {
		return models.Coordinates{}, fmt.Errorf("%w: %s", ErrCityNotFound, city)
	}

	return models.Coordinates{
		City:      city,
		Country:   country,
		Latitude:  entries[0].Lat,
		Longitude: entries[0].Lon,
		Timestamp: time.Now(),
	}, nil
}

// GetForecast fetches current, hourly and daily data via One Call 3.0.
// Timestamps in the snapshot are converted to loc.
func (c *OpenWeatherClient) GetForecast(ctx context.Context, lat, lon float64, loc *time.Location) (models.WeatherSnapshot, error) {
	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%f", lat))
	params.Set("lon", fmt.Sprintf("%f", lon))
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	params.Set("exclude", "minutely,alerts")

	body, err := c.callWithRetry(ctx, "onecall", c.oneCallURL, params)
	if err != nil {
		return models.WeatherSnapshot{}, err
	}

	var apiResp oneCallResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("parse forecast response: %w", err)
	}

	return c.mapResponse(apiResp, loc), nil
}

// callWithRetry performs the request with exponential backoff on retryable errors.
func (c *OpenWeatherClient) callWithRetry(ctx context.Context, endpoint, baseURL string, params url.Values) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := c.callOnce(ctx, endpoint, baseURL, params)
		if err == nil {
			return body, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenWeatherClient) callOnce(ctx context.Context, endpoint, baseURL string, params url.Values) ([]byte, error) {
	if c.breaker == nil {
		return c.doRequest(ctx, endpoint, baseURL, params)
	}
	var body []byte
	err := c.breaker.Call(ctx, func() error {
		var callErr error
		body, callErr = c.doRequest(ctx, endpoint, baseURL, params)
		return callErr
	})
	return body, err
}

func (c *OpenWeatherClient) doRequest(ctx context.Context, endpoint, baseURL string, params url.Values) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u, err := url.Parse(baseURL)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrUpstreamFailure) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded") || strings.Contains(errStr, "context canceled") {
		return true
	}

	return false
}

func (c *OpenWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrCityNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func (c *OpenWeatherClient) mapResponse(apiResp oneCallResponse, loc *time.Location) models.WeatherSnapshot {
	if loc == nil {
		loc = time.UTC
	}

	snap := models.WeatherSnapshot{
		FetchedAt: time.Now().In(loc),
	}

	if apiResp.Current.Temp != nil {
		snap.HasData = true
		snap.Current = models.CurrentConditions{
			Temperature: *apiResp.Current.Temp,
			FeelsLike:   apiResp.Current.FeelsLike,
			Humidity:    apiResp.Current.Humidity,
			Pressure:    apiResp.Current.Pressure,
			WindSpeed:   apiResp.Current.WindSpeed,
			WindDegrees: apiResp.Current.WindDeg,
			Cloudiness:  apiResp.Current.Clouds,
			VisibilityM: apiResp.Current.Visibility,
		}
		if len(apiResp.Current.Weather) > 0 {
			snap.Current.Condition = apiResp.Current.Weather[0].Main
			snap.Current.Description = apiResp.Current.Weather[0].Description
		}
	}

	for _, h := range apiResp.Hourly {
		step := models.HourStep{
			Time:         time.Unix(h.Dt, 0).In(loc),
			Temperature:  h.Temp,
			PrecipChance: h.Pop,
			RainMM:       h.Rain.OneH,
			SnowMM:       h.Snow.OneH,
		}
		if len(h.Weather) > 0 {
			step.Condition = h.Weather[0].Main
			step.Description = h.Weather[0].Description
		}
		snap.Hourly = append(snap.Hourly, step)
	}
	if snap.HasData && len(snap.Hourly) > 0 {
		snap.Current.PrecipChance = snap.Hourly[0].PrecipChance
	}

	for _, d := range apiResp.Daily {
		day := models.DaySummary{
			Time:    time.Unix(d.Dt, 0).In(loc),
			TempMin: d.Temp.Min,
			TempMax: d.Temp.Max,
		}
		if len(d.Weather) > 0 {
			day.Condition = d.Weather[0].Main
			day.Description = d.Weather[0].Description
		}
		snap.Daily = append(snap.Daily, day)
	}

	return snap
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey probes the geocoding endpoint to confirm the key is active.
// Used by the health handler.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	params := url.Values{}
	params.Set("q", "London")
	params.Set("limit", "1")
	params.Set("appid", c.apiKey)

	u, err := url.Parse(c.geoURL)
	if err != nil {
		return fmt.Errorf("invalid API URL: %w", err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}

	return nil
}
