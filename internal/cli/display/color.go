package display

import (
	"os"
	"strings"

	"github.com/muesli/termenv"
)

// Colorizer handles terminal color output with RGB support.
type Colorizer struct {
	profile  termenv.Profile
	disabled bool
}

// NewColorizer creates a new colorizer instance.
func NewColorizer(enabled bool) *Colorizer {
	return &Colorizer{
		profile:  termenv.ColorProfile(),
		disabled: !enabled,
	}
}

// ColorEnabled reports whether the environment allows colored output.
func ColorEnabled() bool {
	return os.Getenv("NO_COLOR") == "" && os.Getenv("TERM") != "dumb"
}

// namedColors maps the names the renderer uses to RGB hex values.
var namedColors = map[string]string{
	"red":    "#FF5555",
	"green":  "#50FA7B",
	"yellow": "#F1FA8C",
	"cyan":   "#8BE9FD",
	"gray":   "#6272A4",
	"purple": "#BD93F9",
}

// resolveColor converts a color name or "#rrggbb" code to a termenv.Color.
func (c *Colorizer) resolveColor(color string) termenv.Color {
	if color == "" {
		return nil
	}
	if hex, ok := namedColors[strings.ToLower(color)]; ok {
		return c.profile.Color(hex)
	}
	return c.profile.Color(color)
}

// Color applies a foreground color to text.
func (c *Colorizer) Color(text, color string) string {
	if c.disabled || color == "" {
		return text
	}
	col := c.resolveColor(color)
	if col == nil {
		return text
	}
	return termenv.String(text).Foreground(col).String()
}

// Swatch renders text on a background of color. Cursor and cell colors are
// shown this way so dark colors stay visible.
func (c *Colorizer) Swatch(text, color string) string {
	if c.disabled || color == "" {
		return text
	}
	col := c.resolveColor(color)
	if col == nil {
		return text
	}
	return termenv.String(text).Background(col).String()
}

// Bold makes text bold.
func (c *Colorizer) Bold(text string) string {
	if c.disabled {
		return text
	}
	return termenv.String(text).Bold().String()
}

// Dim makes text dimmed.
func (c *Colorizer) Dim(text string) string {
	if c.disabled {
		return text
	}
	return termenv.String(text).Faint().String()
}

// IsDisabled returns whether colors are disabled.
func (c *Colorizer) IsDisabled() bool {
	return c.disabled
}
