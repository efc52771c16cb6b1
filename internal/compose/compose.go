// Package compose turns a weather snapshot into tweet text, hashtags, alt
// text and report-card lines. Output is deterministic for identical input and
// the assembled tweet never exceeds the platform character limit.
package compose

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/kjstillabower/weather-tweet-bot/internal/models"
)

const (
	// TweetMaxRunes is the platform character limit for one post.
	TweetMaxRunes = 280

	// AltTextMaxRunes is the platform limit for media alt text.
	AltTextMaxRunes = 1000

	// rainLookaheadHours bounds the "rain on the way" check.
	rainLookaheadHours = 12
)

// FallbackBody is posted when the snapshot is unusable. Kept generic so a bad
// upstream payload never produces a misleading report.
const FallbackBody = "Weather report temporarily unavailable. Normal service will resume with the next update."

// Build derives TweetContent from a snapshot. Never fails: an unusable
// snapshot yields fallback content with Fallback set.
func Build(snap models.WeatherSnapshot) models.TweetContent {
	if !snap.HasData || snap.City == "" {
		return models.TweetContent{
			Lines:    []string{FallbackBody},
			Hashtags: []string{"#weather"},
			Fallback: true,
		}
	}

	rainImminent := rainWithin(snap.Hourly, rainLookaheadHours)

	content := models.TweetContent{
		Lines:        bodyLines(snap, rainImminent),
		Hashtags:     Hashtags(snap, rainImminent),
		ImageLines:   imageLines(snap, rainImminent),
		RainImminent: rainImminent,
	}
	content.AltText = truncateRunes(strings.Join(content.ImageLines, "\n"), AltTextMaxRunes)
	return content
}

// FinalText assembles body and hashtags into the posted text, dropping
// hashtags from lowest priority first until the budget fits. The body is
// hard-truncated only if it alone exceeds the limit. Returns the text and the
// number of hashtags dropped.
func FinalText(content models.TweetContent) (string, int) {
	body := strings.Join(content.Lines, "\n")
	tags := content.Hashtags
	dropped := 0

	assemble := func() string {
		if len(tags) == 0 {
			return body
		}
		return body + "\n" + strings.Join(tags, " ")
	}

	text := assemble()
	for len(tags) > 0 && runeLen(text) > TweetMaxRunes {
		tags = tags[:len(tags)-1]
		dropped++
		text = assemble()
	}
	if runeLen(text) > TweetMaxRunes {
		text = truncateRunes(text, TweetMaxRunes)
	}
	return text, dropped
}

func bodyLines(snap models.WeatherSnapshot, rainImminent bool) []string {
	cur := snap.Current
	lines := []string{
		fmt.Sprintf("%s, %s! 👋", greetingForHour(snap.FetchedAt.Hour()), snap.City),
		fmt.Sprintf("It's currently %.0f°C (feels like %.0f°C) with %s.", cur.Temperature, cur.FeelsLike, describeOr(cur.Description, "calm skies")),
	}

	if len(snap.Daily) > 1 {
		tomorrow := snap.Daily[1]
		lines = append(lines, fmt.Sprintf("Tomorrow: %s, with a high of %.0f°C.",
			titleCase(describeOr(tomorrow.Description, "clear skies")), tomorrow.TempMax))
	}

	if rainImminent {
		lines = append(lines, "Heads up! Rain is on the way. Stay dry! 🌧️")
	}

	return lines
}

func imageLines(snap models.WeatherSnapshot, rainImminent bool) []string {
	cur := snap.Current
	now := snap.FetchedAt
	timeStr := now.Format("03:04 PM")
	dateStr := fmt.Sprintf("%d %s", now.Day(), now.Format("January"))

	lines := []string{
		fmt.Sprintf("Weather Update for %s City!", titleCase(snap.City)),
		fmt.Sprintf("As of %s, %s", timeStr, dateStr),
		"",
		"Current Conditions:",
		fmt.Sprintf("Temperature: %.0f°C (feels like %.0f°C)", cur.Temperature, cur.FeelsLike),
		fmt.Sprintf("Weather: %s", titleCase(describeOr(cur.Description, "N/A"))),
		fmt.Sprintf("Humidity: %d%%", cur.Humidity),
		fmt.Sprintf("Wind: %s at %.0f km/h", degreesToCardinal(cur.WindDegrees), cur.WindSpeed*3.6),
		fmt.Sprintf("Pressure: %d hPa, Visibility: %.0f km, Cloud cover: %d%%", cur.Pressure, float64(cur.VisibilityM)/1000, cur.Cloudiness),
		"",
		"Today's Outlook: " + outlookSentence(cur, now.Hour()),
		"",
	}

	if steps := hourlySteps(snap.Hourly); len(steps) > 0 {
		lines = append(lines, "Detailed Hourly Forecast (Next 12h):")
		lines = append(lines, steps...)
		lines = append(lines, "")
	}

	if days := dailySummaries(snap.Daily); len(days) > 0 {
		lines = append(lines, "Upcoming 3-Day Forecast:")
		lines = append(lines, days...)
		lines = append(lines, "")
	}

	if rainImminent {
		lines = append(lines, "Stay safe, drive carefully on the wet roads, and enjoy the weather!")
	} else {
		lines = append(lines, "Stay safe and have a pleasant day ahead!")
	}

	return lines
}

// outlookSentence builds the mood + umbrella advice paragraph.
func outlookSentence(cur models.CurrentConditions, hour int) string {
	mood := fmt.Sprintf("The city is experiencing a %s.", moodPhrase(cur.Temperature, hour))
	pop := cur.PrecipChance
	popStr := fmt.Sprintf("%.0f%%", pop*100)
	switch {
	case pop > 0.5:
		return mood + fmt.Sprintf(" There's a high chance of rain today (%s), so don't forget your umbrella!", popStr)
	case pop > 0.1:
		return mood + fmt.Sprintf(" There's a small chance of rain today (%s), so keeping an umbrella handy might be a good idea.", popStr)
	default:
		return mood + fmt.Sprintf(" With a %s chance of rain, you can likely leave your umbrella at home.", popStr)
	}
}

// hourlySteps formats the +3h, +6h, +9h, +12h entries.
func hourlySteps(hourly []models.HourStep) []string {
	var out []string
	for i := 3; i <= 12; i += 3 {
		if i >= len(hourly) {
			break
		}
		h := hourly[i]
		precip := "(Precipitation: 0 mm)"
		if h.RainMM > 0 {
			precip = fmt.Sprintf("(Rain: %.1f mm)", h.RainMM)
		} else if h.SnowMM > 0 {
			precip = fmt.Sprintf("(Snow: %.1f mm)", h.SnowMM)
		}
		out = append(out, fmt.Sprintf("By %s: %s at %.0f°C. Rain chance: %.0f%%. %s",
			h.Time.Format("03 PM"), titleCase(describeOr(h.Description, "N/A")), h.Temperature, h.PrecipChance*100, precip))
	}
	return out
}

// dailySummaries formats up to three upcoming days, skipping today.
func dailySummaries(daily []models.DaySummary) []string {
	var out []string
	for i := 1; i < len(daily) && i <= 3; i++ {
		d := daily[i]
		out = append(out, fmt.Sprintf("%s: High %.0f°C, Low %.0f°C. Expect %s.",
			d.Time.Format("Monday"), d.TempMax, d.TempMin, titleCase(describeOr(d.Description, "clear skies"))))
	}
	return out
}

// rainWithin reports whether any of the next n hourly steps looks like rain.
func rainWithin(hourly []models.HourStep, n int) bool {
	if n > len(hourly) {
		n = len(hourly)
	}
	for _, h := range hourly[:n] {
		cond := strings.ToLower(h.Condition)
		if strings.Contains(cond, "rain") || strings.Contains(cond, "drizzle") || strings.Contains(cond, "thunderstorm") {
			return true
		}
	}
	return false
}

// degreesToCardinal converts wind direction in degrees to a 16-point compass name.
func degreesToCardinal(deg float64) string {
	dirs := []string{"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE", "S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW"}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	ix := int((deg + 11.25) / 22.5)
	return dirs[ix%16]
}

// greetingForHour returns the salutation for the local hour.
func greetingForHour(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "Good morning"
	case hour >= 12 && hour < 17:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

// moodPhrase describes the day from temperature and local hour.
func moodPhrase(tempC float64, hour int) string {
	if hour >= 22 || hour < 5 {
		return "calm night"
	}
	switch {
	case tempC > 35:
		if hour >= 12 {
			return "warm afternoon"
		}
		return "hot morning"
	case tempC < 20:
		if hour < 12 {
			return "cool morning"
		}
		return "chilly afternoon"
	default:
		return "pleasant day"
	}
}

func describeOr(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	return s
}

// titleCase uppercases the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func runeLen(s string) int {
	return len([]rune(s))
}

// truncateRunes cuts s to max runes, replacing the tail with "..." when cut.
func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
