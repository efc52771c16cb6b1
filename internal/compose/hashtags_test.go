package compose

import (
	"testing"
	"time"

	"github.com/kjstillabower/weather-tweet-bot/internal/models"
)

func TestHashtags(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*models.WeatherSnapshot)
		rainImminent bool
		want         []string
	}{
		{
			name:   "baseline cloudy weekday",
			mutate: func(s *models.WeatherSnapshot) {},
			want:   []string{"#Hyderabad", "#weatherupdate", "#Cloudy"},
		},
		{
			name: "rain imminent",
			mutate: func(s *models.WeatherSnapshot) {
				s.Current.Description = "light rain"
			},
			rainImminent: true,
			want:         []string{"#Hyderabad", "#weatherupdate", "#HyderabadRains", "#RainAlert"},
		},
		{
			name: "heatwave and clear sky",
			mutate: func(s *models.WeatherSnapshot) {
				s.Current.Temperature = 41
				s.Current.Description = "clear sky"
			},
			want: []string{"#Hyderabad", "#weatherupdate", "#Heatwave", "#SunnyDay"},
		},
		{
			name: "cold and windy",
			mutate: func(s *models.WeatherSnapshot) {
				s.Current.Temperature = 8
				s.Current.Description = "mist"
				s.Current.WindSpeed = 10 // 36 km/h
			},
			want: []string{"#Hyderabad", "#weatherupdate", "#ColdWeather", "#Windy"},
		},
		{
			name: "weekend",
			mutate: func(s *models.WeatherSnapshot) {
				s.FetchedAt = time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC) // Saturday
			},
			want: []string{"#Hyderabad", "#weatherupdate", "#Cloudy", "#WeekendWeather"},
		},
		{
			name: "spaces stripped from city tag",
			mutate: func(s *models.WeatherSnapshot) {
				s.City = "New Delhi"
			},
			want: []string{"#NewDelhi", "#weatherupdate", "#Cloudy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := testSnapshot()
			tt.mutate(&snap)

			got := Hashtags(snap, tt.rainImminent)
			if len(got) != len(tt.want) {
				t.Fatalf("Hashtags() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("tag[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestHashtagsNoDuplicates(t *testing.T) {
	snap := testSnapshot()
	snap.City = "weatherupdate" // pathological name that collides with a fixed tag

	got := Hashtags(snap, false)
	seen := make(map[string]bool)
	for _, tag := range got {
		if seen[tag] {
			t.Errorf("duplicate tag %s in %v", tag, got)
		}
		seen[tag] = true
	}
}
