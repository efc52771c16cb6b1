package compose

import (
	"fmt"
	"strings"
	"time"

	"github.com/kjstillabower/weather-tweet-bot/internal/models"
)

const (
	heatwaveThresholdC = 35.0
	coldThresholdC     = 15.0
	windyThresholdKMH  = 25.0
)

// Hashtags selects tags for a snapshot from a fixed, priority-ordered rule
// list. Order is stable for identical input; FinalText drops from the tail
// first, so the most specific tags survive trimming.
func Hashtags(snap models.WeatherSnapshot, rainImminent bool) []string {
	cur := snap.Current
	desc := strings.ToLower(cur.Description)

	var tags []string
	add := func(tag string) {
		for _, t := range tags {
			if t == tag {
				return
			}
		}
		tags = append(tags, tag)
	}

	add("#" + strings.ReplaceAll(snap.City, " ", ""))
	add("#weatherupdate")

	if rainImminent {
		add(fmt.Sprintf("#%sRains", strings.ReplaceAll(snap.City, " ", "")))
		add("#RainAlert")
	}

	if cur.Temperature > heatwaveThresholdC {
		add("#Heatwave")
	} else if cur.Temperature < coldThresholdC {
		add("#ColdWeather")
	}

	if strings.Contains(desc, "clear") {
		add("#SunnyDay")
	} else if strings.Contains(desc, "cloud") {
		add("#Cloudy")
	}

	if cur.WindSpeed*3.6 > windyThresholdKMH {
		add("#Windy")
	}

	switch snap.FetchedAt.Weekday() {
	case time.Saturday, time.Sunday:
		add("#WeekendWeather")
	}

	return tags
}
