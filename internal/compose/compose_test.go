package compose

import (
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/weather-tweet-bot/internal/models"
)

// wednesdayMorning is a fixed non-weekend timestamp so weekday-dependent
// hashtags stay out of tests that don't target them.
var wednesdayMorning = time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC)

func testSnapshot() models.WeatherSnapshot {
	snap := models.WeatherSnapshot{
		City:      "Hyderabad",
		FetchedAt: wednesdayMorning,
		HasData:   true,
		Current: models.CurrentConditions{
			Temperature:  28,
			FeelsLike:    30,
			Humidity:     60,
			Pressure:     1012,
			WindSpeed:    3.5,
			WindDegrees:  200,
			Cloudiness:   40,
			VisibilityM:  8000,
			Condition:    "Clouds",
			Description:  "scattered clouds",
			PrecipChance: 0.05,
		},
	}
	for i := 0; i < 24; i++ {
		snap.Hourly = append(snap.Hourly, models.HourStep{
			Time:         wednesdayMorning.Add(time.Duration(i+1) * time.Hour),
			Temperature:  27,
			Condition:    "Clouds",
			Description:  "scattered clouds",
			PrecipChance: 0.05,
		})
	}
	for i := 0; i < 5; i++ {
		snap.Daily = append(snap.Daily, models.DaySummary{
			Time:        wednesdayMorning.AddDate(0, 0, i),
			TempMin:     20,
			TempMax:     31,
			Condition:   "Clear",
			Description: "clear sky",
		})
	}
	return snap
}

func TestBuildFallback(t *testing.T) {
	tests := []struct {
		name string
		snap models.WeatherSnapshot
	}{
		{
			name: "no data",
			snap: models.WeatherSnapshot{City: "Hyderabad", FetchedAt: wednesdayMorning},
		},
		{
			name: "missing city",
			snap: func() models.WeatherSnapshot {
				s := testSnapshot()
				s.City = ""
				return s
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := Build(tt.snap)
			if !content.Fallback {
				t.Fatal("expected fallback content")
			}
			if len(content.Lines) != 1 || content.Lines[0] != FallbackBody {
				t.Errorf("unexpected fallback lines: %v", content.Lines)
			}
			text, _ := FinalText(content)
			if !strings.Contains(text, "temporarily unavailable") {
				t.Errorf("fallback text missing notice: %q", text)
			}
			if got := len([]rune(text)); got > TweetMaxRunes {
				t.Errorf("fallback text length = %d, want <= %d", got, TweetMaxRunes)
			}
		})
	}
}

func TestBuildDeterministic(t *testing.T) {
	snap := testSnapshot()

	first := Build(snap)
	second := Build(snap)

	text1, _ := FinalText(first)
	text2, _ := FinalText(second)
	if text1 != text2 {
		t.Errorf("same snapshot produced different text:\n%q\n%q", text1, text2)
	}
	if first.AltText != second.AltText {
		t.Error("same snapshot produced different alt text")
	}
	if len(first.Hashtags) != len(second.Hashtags) {
		t.Fatalf("hashtag counts differ: %d vs %d", len(first.Hashtags), len(second.Hashtags))
	}
	for i := range first.Hashtags {
		if first.Hashtags[i] != second.Hashtags[i] {
			t.Errorf("hashtag order differs at %d: %s vs %s", i, first.Hashtags[i], second.Hashtags[i])
		}
	}
}

func TestBuildContainsCurrentConditions(t *testing.T) {
	content := Build(testSnapshot())
	if content.Fallback {
		t.Fatal("unexpected fallback")
	}

	body := strings.Join(content.Lines, "\n")
	if !strings.Contains(body, "Good morning, Hyderabad!") {
		t.Errorf("greeting missing from body: %q", body)
	}
	if !strings.Contains(body, "28°C") {
		t.Errorf("current temperature missing from body: %q", body)
	}
	if !strings.Contains(body, "feels like 30°C") {
		t.Errorf("feels-like missing from body: %q", body)
	}
	if !strings.Contains(body, "Tomorrow:") {
		t.Errorf("tomorrow line missing from body: %q", body)
	}
	if content.RainImminent {
		t.Error("rain should not be imminent for a cloudy forecast")
	}
}

func TestBuildRainHeadsUp(t *testing.T) {
	snap := testSnapshot()
	snap.Hourly[4].Condition = "Rain"
	snap.Hourly[4].Description = "light rain"

	content := Build(snap)
	if !content.RainImminent {
		t.Fatal("expected rain imminent")
	}
	body := strings.Join(content.Lines, "\n")
	if !strings.Contains(body, "Rain is on the way") {
		t.Errorf("rain heads-up missing: %q", body)
	}
}

func TestBuildRainBeyondLookaheadIgnored(t *testing.T) {
	snap := testSnapshot()
	snap.Hourly[15].Condition = "Thunderstorm"

	content := Build(snap)
	if content.RainImminent {
		t.Error("rain past the 12h lookahead should not trigger the heads-up")
	}
}

func TestFinalTextBudget(t *testing.T) {
	tests := []struct {
		name string
		snap func() models.WeatherSnapshot
	}{
		{
			name: "typical snapshot",
			snap: testSnapshot,
		},
		{
			name: "long city name with rain on a weekend",
			snap: func() models.WeatherSnapshot {
				s := testSnapshot()
				s.City = "Thiruvananthapuram Greater Metropolitan Region"
				s.FetchedAt = time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC) // Saturday
				s.Current.Temperature = 38
				s.Current.WindSpeed = 12
				s.Hourly[1].Condition = "Rain"
				return s
			},
		},
		{
			name: "long descriptions",
			snap: func() models.WeatherSnapshot {
				s := testSnapshot()
				s.Current.Description = strings.Repeat("very ", 30) + "heavy intensity rain"
				s.Daily[1].Description = strings.Repeat("extremely ", 20) + "overcast"
				return s
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, _ := FinalText(Build(tt.snap()))
			if got := len([]rune(text)); got > TweetMaxRunes {
				t.Errorf("tweet length = %d runes, want <= %d:\n%q", got, TweetMaxRunes, text)
			}
		})
	}
}

func TestFinalTextDropsTagsFromTail(t *testing.T) {
	content := models.TweetContent{
		Lines:    []string{strings.Repeat("a", 250)},
		Hashtags: []string{"#first", "#second", "#third"},
	}

	text, dropped := FinalText(content)
	if got := len([]rune(text)); got > TweetMaxRunes {
		t.Fatalf("text length = %d, want <= %d", got, TweetMaxRunes)
	}
	// 250 + newline + "#first #second" = 265 fits; adding "#third" would be 272... all fit.
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}

	content.Lines = []string{strings.Repeat("a", 270)}
	text, dropped = FinalText(content)
	if got := len([]rune(text)); got > TweetMaxRunes {
		t.Fatalf("text length = %d, want <= %d", got, TweetMaxRunes)
	}
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	if !strings.Contains(text, "#first") {
		t.Error("highest-priority tag should survive trimming")
	}
	if strings.Contains(text, "#third") || strings.Contains(text, "#second") {
		t.Errorf("tail tags should be dropped first: %q", text)
	}
}

func TestFinalTextHardTruncatesOversizedBody(t *testing.T) {
	content := models.TweetContent{
		Lines:    []string{strings.Repeat("x", 400)},
		Hashtags: []string{"#tag"},
	}

	text, dropped := FinalText(content)
	if got := len([]rune(text)); got != TweetMaxRunes {
		t.Errorf("text length = %d, want exactly %d", got, TweetMaxRunes)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if !strings.HasSuffix(text, "...") {
		t.Errorf("truncated text should end with ellipsis: %q", text[len(text)-10:])
	}
}

func TestAltTextWithinLimit(t *testing.T) {
	snap := testSnapshot()
	snap.Current.Description = strings.Repeat("long description ", 100)

	content := Build(snap)
	if got := len([]rune(content.AltText)); got > AltTextMaxRunes {
		t.Errorf("alt text length = %d, want <= %d", got, AltTextMaxRunes)
	}
	if content.AltText == "" {
		t.Error("alt text should not be empty for a usable snapshot")
	}
}

func TestImageLinesStructure(t *testing.T) {
	content := Build(testSnapshot())

	wantMarkers := []string{
		"Weather Update for Hyderabad City!",
		"Current Conditions:",
		"Today's Outlook:",
		"Detailed Hourly Forecast (Next 12h):",
		"Upcoming 3-Day Forecast:",
	}
	joined := strings.Join(content.ImageLines, "\n")
	for _, marker := range wantMarkers {
		if !strings.Contains(joined, marker) {
			t.Errorf("image lines missing %q", marker)
		}
	}
	if !strings.Contains(joined, "Wind: SSW at 13 km/h") {
		t.Errorf("wind line missing or wrong: %q", joined)
	}
}

func TestOutlookUmbrellaAdvice(t *testing.T) {
	tests := []struct {
		name string
		pop  float64
		want string
	}{
		{name: "high chance", pop: 0.8, want: "don't forget your umbrella"},
		{name: "small chance", pop: 0.3, want: "keeping an umbrella handy"},
		{name: "low chance", pop: 0.05, want: "leave your umbrella at home"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := models.CurrentConditions{Temperature: 28, PrecipChance: tt.pop}
			got := outlookSentence(cur, 10)
			if !strings.Contains(got, tt.want) {
				t.Errorf("outlookSentence(pop=%.2f) = %q, want substring %q", tt.pop, got, tt.want)
			}
		})
	}
}

func TestDegreesToCardinal(t *testing.T) {
	tests := []struct {
		deg  float64
		want string
	}{
		{0, "N"},
		{11.24, "N"},
		{11.25, "NNE"},
		{45, "NE"},
		{90, "E"},
		{135, "SE"},
		{180, "S"},
		{225, "SW"},
		{270, "W"},
		{315, "NW"},
		{348.75, "N"},
		{360, "N"},
		{-90, "W"},
	}

	for _, tt := range tests {
		if got := degreesToCardinal(tt.deg); got != tt.want {
			t.Errorf("degreesToCardinal(%.2f) = %s, want %s", tt.deg, got, tt.want)
		}
	}
}

func TestGreetingForHour(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{0, "Good evening"},
		{4, "Good evening"},
		{5, "Good morning"},
		{11, "Good morning"},
		{12, "Good afternoon"},
		{16, "Good afternoon"},
		{17, "Good evening"},
		{23, "Good evening"},
	}

	for _, tt := range tests {
		if got := greetingForHour(tt.hour); got != tt.want {
			t.Errorf("greetingForHour(%d) = %s, want %s", tt.hour, got, tt.want)
		}
	}
}

func TestMoodPhrase(t *testing.T) {
	tests := []struct {
		name string
		temp float64
		hour int
		want string
	}{
		{name: "late night", temp: 30, hour: 23, want: "calm night"},
		{name: "before dawn", temp: 10, hour: 3, want: "calm night"},
		{name: "hot morning", temp: 38, hour: 9, want: "hot morning"},
		{name: "warm afternoon", temp: 38, hour: 14, want: "warm afternoon"},
		{name: "cool morning", temp: 12, hour: 8, want: "cool morning"},
		{name: "chilly afternoon", temp: 12, hour: 15, want: "chilly afternoon"},
		{name: "pleasant day", temp: 26, hour: 12, want: "pleasant day"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := moodPhrase(tt.temp, tt.hour); got != tt.want {
				t.Errorf("moodPhrase(%.0f, %d) = %s, want %s", tt.temp, tt.hour, got, tt.want)
			}
		})
	}
}

func TestTitleCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"scattered clouds", "Scattered Clouds"},
		{"rain", "Rain"},
		{"", ""},
		{"light  rain", "Light Rain"},
	}

	for _, tt := range tests {
		if got := titleCase(tt.in); got != tt.want {
			t.Errorf("titleCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "fits", in: "hello", max: 10, want: "hello"},
		{name: "exact", in: "hello", max: 5, want: "hello"},
		{name: "cut", in: "hello world", max: 8, want: "hello..."},
		{name: "multibyte", in: "héllo wörld", max: 8, want: "héllo..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateRunes(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
			if n := len([]rune(got)); n > tt.max {
				t.Errorf("result length = %d runes, want <= %d", n, tt.max)
			}
		})
	}
}
