package models

import "time"

// Coordinates is a geocoded city location. Cached between runs because a
// configured city's coordinates never change.
type Coordinates struct {
	City      string    `json:"city"`
	Country   string    `json:"country"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// CurrentConditions holds the current weather block of a snapshot.
type CurrentConditions struct {
	Temperature  float64 `json:"temperature"` // Celsius
	FeelsLike    float64 `json:"feelsLike"`   // Celsius
	Humidity     int     `json:"humidity"`    // percent
	Pressure     int     `json:"pressure"`    // hPa
	WindSpeed    float64 `json:"windSpeed"`   // m/s
	WindDegrees  float64 `json:"windDegrees"`
	Cloudiness   int     `json:"cloudiness"` // percent
	VisibilityM  int     `json:"visibilityM"`
	Condition    string  `json:"condition"`    // e.g. "Rain"
	Description  string  `json:"description"`  // e.g. "light rain"
	PrecipChance float64 `json:"precipChance"` // 0..1, from the first hourly step
}

// HourStep is one hourly forecast entry.
type HourStep struct {
	Time         time.Time `json:"time"`
	Temperature  float64   `json:"temperature"`
	Condition    string    `json:"condition"`
	Description  string    `json:"description"`
	PrecipChance float64   `json:"precipChance"` // 0..1
	RainMM       float64   `json:"rainMm"`       // volume over the hour
	SnowMM       float64   `json:"snowMm"`
}

// DaySummary is one daily forecast entry.
type DaySummary struct {
	Time        time.Time `json:"time"`
	TempMin     float64   `json:"tempMin"`
	TempMax     float64   `json:"tempMax"`
	Condition   string    `json:"condition"`
	Description string    `json:"description"`
}

// WeatherSnapshot is one fetched weather reading for a city. Built fresh per
// pipeline run, never mutated afterwards, discarded when the run ends.
type WeatherSnapshot struct {
	City      string            `json:"city"`
	FetchedAt time.Time         `json:"fetchedAt"` // in the configured zone
	Current   CurrentConditions `json:"current"`
	Hourly    []HourStep        `json:"hourly"`
	Daily     []DaySummary      `json:"daily"`
	HasData   bool              `json:"hasData"` // false when the current block was missing
}

// TweetContent is the formatted output derived from a snapshot.
type TweetContent struct {
	Lines        []string `json:"lines"`        // tweet body, joined with newlines
	Hashtags     []string `json:"hashtags"`     // priority order, highest first
	AltText      string   `json:"altText"`      // media alt text, <= 1000 runes
	ImageLines   []string `json:"imageLines"`   // rendered into the report card
	RainImminent bool     `json:"rainImminent"` // rain expected within 12h
	Fallback     bool     `json:"fallback"`     // generic content, snapshot was unusable
}

// RunReceipt summarizes one pipeline run for the trigger response and /status.
type RunReceipt struct {
	City        string    `json:"city"`
	StartedAt   time.Time `json:"startedAt"`
	Posted      bool      `json:"posted"`
	DryRun      bool      `json:"dryRun"`
	TweetID     string    `json:"tweetId,omitempty"`
	TweetLength int       `json:"tweetLength"`
	MediaWasSet bool      `json:"mediaAttached"`
	Fallback    bool      `json:"fallback,omitempty"`
}
