package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	// Bot identity: which city we report on and whether posts go live.
	City           string
	Country        string
	Timezone       string
	PostingEnabled bool

	WeatherAPIKey     string
	WeatherGeoURL     string
	WeatherOneCallURL string
	WeatherAPITimeout time.Duration

	TwitterAPIKey            string
	TwitterAPISecret         string
	TwitterAccessToken       string
	TwitterAccessTokenSecret string
	TwitterUploadURL         string
	TwitterTweetURL          string
	TwitterAPITimeout        time.Duration

	RequestTimeout time.Duration

	CacheBackend          string // "in_memory" or "memcached"
	CacheTTL              time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int

	ImageEnabled bool
	ImageWidth   int
	ImageHeight  int
	FontsDir     string

	CityMinLength int
	CityMaxLength int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Bot struct {
		City           string `yaml:"city"`
		Country        string `yaml:"country"`
		Timezone       string `yaml:"timezone"`
		PostingEnabled *bool  `yaml:"posting_enabled"`
		CityMinLength  int    `yaml:"city_min_length"`
		CityMaxLength  int    `yaml:"city_max_length"`
	} `yaml:"bot"`

	WeatherAPI struct {
		GeoURL     string `yaml:"geo_url"`
		OneCallURL string `yaml:"onecall_url"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"weather_api"`

	TwitterAPI struct {
		UploadURL string `yaml:"upload_url"`
		TweetURL  string `yaml:"tweet_url"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"twitter_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"inflight_timeout"`
		InFlightCheckInterval string `yaml:"inflight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Image struct {
		Enabled  *bool  `yaml:"enabled"`
		Width    int    `yaml:"width"`
		Height   int    `yaml:"height"`
		FontsDir string `yaml:"fonts_dir"`
	} `yaml:"image"`
}

type secretsFile struct {
	WeatherAPIKey            string `yaml:"weather_api_key"`
	TwitterAPIKey            string `yaml:"twitter_api_key"`
	TwitterAPISecret         string `yaml:"twitter_api_secret"`
	TwitterAccessToken       string `yaml:"twitter_access_token"`
	TwitterAccessTokenSecret string `yaml:"twitter_access_token_secret"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. A .env file in the working directory is applied first.
// Secrets come from env vars or the secrets file; env wins. Call from project root.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.City = strings.TrimSpace(os.Getenv("BOT_CITY"))
	if cfg.City == "" {
		cfg.City = strings.TrimSpace(fc.Bot.City)
	}
	if cfg.City == "" {
		cfg.City = "Hyderabad"
	}
	cfg.Country = strings.TrimSpace(os.Getenv("BOT_COUNTRY"))
	if cfg.Country == "" {
		cfg.Country = strings.TrimSpace(fc.Bot.Country)
	}
	if cfg.Country == "" {
		cfg.Country = "IN"
	}
	cfg.Timezone = strings.TrimSpace(fc.Bot.Timezone)
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Kolkata"
	}

	// Posting defaults off so a fresh checkout can never tweet by accident.
	cfg.PostingEnabled = false
	if fc.Bot.PostingEnabled != nil {
		cfg.PostingEnabled = *fc.Bot.PostingEnabled
	}
	if v := os.Getenv("POSTING_ENABLED"); v != "" {
		cfg.PostingEnabled = strings.EqualFold(strings.TrimSpace(v), "true")
	}

	cfg.CityMinLength = fc.Bot.CityMinLength
	if cfg.CityMinLength <= 0 {
		cfg.CityMinLength = 2
	}
	cfg.CityMaxLength = fc.Bot.CityMaxLength
	if cfg.CityMaxLength <= 0 {
		cfg.CityMaxLength = 64
	}

	sec, err := loadSecrets(cwd)
	if err != nil {
		return nil, err
	}
	cfg.WeatherAPIKey = envOr("WEATHER_API_KEY", sec.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}
	cfg.TwitterAPIKey = envOr("TWITTER_API_KEY", sec.TwitterAPIKey)
	cfg.TwitterAPISecret = envOr("TWITTER_API_SECRET", sec.TwitterAPISecret)
	cfg.TwitterAccessToken = envOr("TWITTER_ACCESS_TOKEN", sec.TwitterAccessToken)
	cfg.TwitterAccessTokenSecret = envOr("TWITTER_ACCESS_TOKEN_SECRET", sec.TwitterAccessTokenSecret)
	if cfg.PostingEnabled && !cfg.HasTwitterCredentials() {
		return nil, fmt.Errorf("posting enabled but Twitter credentials incomplete (need TWITTER_API_KEY, TWITTER_API_SECRET, TWITTER_ACCESS_TOKEN, TWITTER_ACCESS_TOKEN_SECRET)")
	}

	cfg.WeatherGeoURL = fc.WeatherAPI.GeoURL
	if cfg.WeatherGeoURL == "" {
		cfg.WeatherGeoURL = "https://api.openweathermap.org/geo/1.0/direct"
	}
	cfg.WeatherOneCallURL = fc.WeatherAPI.OneCallURL
	if cfg.WeatherOneCallURL == "" {
		cfg.WeatherOneCallURL = "https://api.openweathermap.org/data/3.0/onecall"
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)

	cfg.TwitterUploadURL = fc.TwitterAPI.UploadURL
	if cfg.TwitterUploadURL == "" {
		cfg.TwitterUploadURL = "https://upload.twitter.com/1.1/media"
	}
	cfg.TwitterTweetURL = fc.TwitterAPI.TweetURL
	if cfg.TwitterTweetURL == "" {
		cfg.TwitterTweetURL = "https://api.twitter.com/2/tweets"
	}
	cfg.TwitterAPITimeout = parseDuration(fc.TwitterAPI.Timeout, 15*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 60*time.Second)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 24*time.Hour)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 1
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 3
	}

	cfg.CircuitBreakerEnabled = true
	if fc.Reliability.CircuitBreaker.Enabled != nil {
		cfg.CircuitBreakerEnabled = *fc.Reliability.CircuitBreaker.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = fc.Reliability.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.Reliability.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 2*time.Minute)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 30*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 250*time.Millisecond)

	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, time.Hour)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	cfg.ImageEnabled = true
	if fc.Image.Enabled != nil {
		cfg.ImageEnabled = *fc.Image.Enabled
	}
	cfg.ImageWidth = fc.Image.Width
	if cfg.ImageWidth <= 0 {
		cfg.ImageWidth = 985
	}
	cfg.ImageHeight = fc.Image.Height
	if cfg.ImageHeight <= 0 {
		cfg.ImageHeight = 650
	}
	cfg.FontsDir = fc.Image.FontsDir
	if cfg.FontsDir == "" {
		cfg.FontsDir = filepath.Join(cwd, "fonts")
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HasTwitterCredentials reports whether all four OAuth 1.0a credentials are set.
func (c *Config) HasTwitterCredentials() bool {
	return c.TwitterAPIKey != "" && c.TwitterAPISecret != "" &&
		c.TwitterAccessToken != "" && c.TwitterAccessTokenSecret != ""
}

func loadSecrets(cwd string) (secretsFile, error) {
	var sec secretsFile
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	data, err := os.ReadFile(secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parseDuration parses a duration string and returns defaultVal if parsing fails
// or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty
// string or parse error. Zero or negative durations are returned as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + cfg.TwitterAPITimeout + 5*time.Second
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("bot.timezone %q: %w", cfg.Timezone, err)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	return nil
}
