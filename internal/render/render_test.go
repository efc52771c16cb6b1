package render

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/fogleman/gg"
)

func TestRenderMissingFontFails(t *testing.T) {
	r := New(985, 650, t.TempDir())

	_, err := r.Render([]string{"Weather Update for Hyderabad City!"})
	if err == nil {
		t.Fatal("expected error when font files are absent")
	}
	if !strings.Contains(err.Error(), "load font") {
		t.Errorf("err = %v, want font load failure", err)
	}
}

func TestRenderBlankLinesProducesCardOfConfiguredSize(t *testing.T) {
	// Blank lines never touch the font files, so this exercises the canvas
	// and PNG encoding paths on their own.
	r := New(400, 300, t.TempDir())

	data, err := r.Render([]string{"", "", ""})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 400 || bounds.Dy() != 300 {
		t.Errorf("image size = %dx%d, want 400x300", bounds.Dx(), bounds.Dy())
	}
}

func TestIsHeading(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"Weather Update for Hyderabad City!", true},
		{"Current Conditions:", true},
		{"Today's Outlook: The city is experiencing a pleasant day.", true},
		{"Detailed Hourly Forecast (Next 12h):", true},
		{"Upcoming 3-Day Forecast:", true},
		{"Temperature: 28°C", false},
		{"", false},
		{"  Current Conditions:", true},
	}

	for _, tt := range tests {
		if got := isHeading(tt.line); got != tt.want {
			t.Errorf("isHeading(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestWrapLine(t *testing.T) {
	dc := gg.NewContext(200, 200)

	tests := []struct {
		name     string
		line     string
		maxWidth float64
		minParts int
	}{
		{name: "short line stays whole", line: "short", maxWidth: 500, minParts: 1},
		{name: "long line wraps", line: strings.Repeat("word ", 40) + "end", maxWidth: 120, minParts: 2},
		{name: "single oversized word kept", line: strings.Repeat("x", 100), maxWidth: 50, minParts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := wrapLine(dc, tt.line, tt.maxWidth)
			if len(parts) < tt.minParts {
				t.Fatalf("wrapLine produced %d parts, want >= %d", len(parts), tt.minParts)
			}
			if got := strings.Join(parts, " "); got != tt.line {
				t.Errorf("wrapping lost content:\n got %q\nwant %q", got, tt.line)
			}
		})
	}
}
