package hapyperion

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Color held by a light, in HomeKit units: hue 0-360, saturation and value 0-100.
// The device only accepts RGB, so the HSV channels are kept here and converted on write.
// Keeping HSV rather than RGB means the hue survives a saturation of 0.
type ColorState struct {
	Hue, Saturation, Value float64
}

// Fully saturated red
var DefaultColor = ColorState{Hue: 0, Saturation: 100, Value: 100}

func (c ColorState) WithHue(h float64) ColorState {
	c.Hue = clamp(h, 0, 360)
	return c
}

func (c ColorState) WithSaturation(s float64) ColorState {
	c.Saturation = clamp(s, 0, 100)
	return c
}

func (c ColorState) Color() colorful.Color {
	return colorful.Hsv(math.Mod(c.Hue, 360), c.Saturation/100., c.Value/100.).Clamped()
}

// Returns the 0-255 RGB channels, each rounded to the nearest integer
func (c ColorState) RGB() (r, g, b uint8) {
	return c.Color().RGB255()
}

func clamp(v, min, max float64) float64 {
	return math.Max(min, math.Min(max, v))
}
