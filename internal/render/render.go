// Package render draws the weather report card posted alongside the tweet.
package render

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"path/filepath"
	"strings"
	"time"

	"github.com/fogleman/gg"

	"github.com/kjstillabower/weather-tweet-bot/internal/observability"
)

const (
	fontRegularFile = "Merriweather-Regular.ttf"
	fontBoldFile    = "Merriweather-Bold.ttf"

	fontSize   = 18
	lineGap    = 7
	paddingX   = 20
	paddingY   = 20
)

// headingPrefixes mark lines drawn with the bold face.
var headingPrefixes = []string{
	"Weather Update",
	"Current Conditions:",
	"Today's Outlook:",
	"Detailed Hourly Forecast",
	"Upcoming 3-Day Forecast:",
}

var (
	backgroundColor = color.RGBA{R: 236, G: 239, B: 241, A: 255}
	textColor       = color.RGBA{R: 66, G: 66, B: 66, A: 255}
)

// Renderer draws report-card PNGs of a fixed size using TTF fonts from a
// configured directory.
type Renderer struct {
	width    int
	height   int
	fontsDir string
}

// New creates a Renderer. Fonts are loaded per render so a missing font file
// surfaces as a render error, which the pipeline treats as "post without media".
func New(width, height int, fontsDir string) *Renderer {
	return &Renderer{width: width, height: height, fontsDir: fontsDir}
}

// Render draws the given lines onto a card and returns encoded PNG bytes.
// Lines starting with a known heading prefix use the bold face; long lines
// word-wrap; content past the bottom edge is dropped.
func (r *Renderer) Render(lines []string) ([]byte, error) {
	start := time.Now()
	out, err := r.render(lines)
	observability.ImageRenderDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.ImageRenderErrorsTotal.Inc()
	}
	return out, err
}

func (r *Renderer) render(lines []string) ([]byte, error) {
	dc := gg.NewContext(r.width, r.height)
	dc.SetColor(backgroundColor)
	dc.Clear()

	regularPath := filepath.Join(r.fontsDir, fontRegularFile)
	boldPath := filepath.Join(r.fontsDir, fontBoldFile)

	lineHeight := float64(fontSize + lineGap)
	maxTextWidth := float64(r.width - 2*paddingX)
	bottom := float64(r.height - paddingY)
	y := float64(paddingY) + float64(fontSize)

	dc.SetColor(textColor)

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			y += lineHeight
			continue
		}

		fontPath := regularPath
		if isHeading(line) {
			fontPath = boldPath
		}
		if err := dc.LoadFontFace(fontPath, fontSize); err != nil {
			return nil, fmt.Errorf("load font %s: %w", filepath.Base(fontPath), err)
		}

		for _, wrapped := range wrapLine(dc, line, maxTextWidth) {
			if y > bottom {
				break
			}
			dc.DrawStringAnchored(wrapped, paddingX, y, 0, 0)
			y += lineHeight
		}
		if y > bottom {
			break
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// wrapLine splits a line into segments that fit maxWidth at the context's
// current font face. A single word wider than maxWidth gets its own segment.
func wrapLine(dc *gg.Context, line string, maxWidth float64) []string {
	words := strings.Split(line, " ")
	var out []string
	var current []string

	for _, word := range words {
		test := strings.Join(append(current, word), " ")
		w, _ := dc.MeasureString(test)
		if w <= maxWidth || len(current) == 0 {
			current = append(current, word)
			continue
		}
		out = append(out, strings.Join(current, " "))
		current = []string{word}
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, " "))
	}
	return out
}

func isHeading(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range headingPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}
