package app

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorTheme selects the speed to color gradient
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"   // Blue to red
	ThermalTheme   ColorTheme = "thermal"   // Dark red to yellow to white
	GrayscaleTheme ColorTheme = "grayscale" // Dark gray to black

	DefaultColorMapSize = 256
)

var validThemes = map[ColorTheme]struct{}{
	ClassicTheme:   {},
	ThermalTheme:   {},
	GrayscaleTheme: {},
}

// DegradedColor marks samples published while the capture was occluded
var DegradedColor = color.RGBA{R: 0xb0, G: 0xb0, B: 0xb0, A: 0xff}

var thermalStops = []colorful.Color{
	{R: 0.25, G: 0, B: 0},
	{R: 0.9, G: 0.1, B: 0},
	{R: 1, G: 0.8, B: 0},
	{R: 1, G: 1, B: 0.85},
}

// ColorMapper maps speed to a precomputed gradient
type ColorMapper struct {
	colorMap      []color.Color
	boundsMin     float64
	speedPerIndex float64
}

func NewColorMapper(theme ColorTheme, bounds SpeedBounds) *ColorMapper {
	return NewColorMapperWithSize(theme, bounds, DefaultColorMapSize)
}

func NewColorMapperWithSize(theme ColorTheme, bounds SpeedBounds, size int) *ColorMapper {
	if size < 2 {
		size = DefaultColorMapSize
	}

	fn := colorTheme(theme)
	cm := &ColorMapper{
		colorMap:      make([]color.Color, size),
		boundsMin:     bounds.Min,
		speedPerIndex: (bounds.Max - bounds.Min) / float64(size-1),
	}
	for i := range cm.colorMap {
		cm.colorMap[i] = fn(float64(i) / float64(size-1)).Clamped()
	}

	return cm
}

// GetColor returns the color for speed, clamped to the bounds
func (cm *ColorMapper) GetColor(speed float64) color.Color {
	if cm.speedPerIndex <= 0 || math.IsNaN(speed) {
		return cm.colorMap[0]
	}

	index := int((speed - cm.boundsMin) / cm.speedPerIndex)
	if index < 0 {
		return cm.colorMap[0]
	}
	if index >= len(cm.colorMap) {
		return cm.colorMap[len(cm.colorMap)-1]
	}
	return cm.colorMap[index]
}

// Gradient returns the color at fraction f of the scale, used by the legend
func (cm *ColorMapper) Gradient(f float64) color.Color {
	f = math.Max(0, math.Min(1, f))
	return cm.colorMap[int(f*float64(len(cm.colorMap)-1))]
}

func colorTheme(theme ColorTheme) func(float64) colorful.Color {
	switch theme {
	case ThermalTheme:
		return func(v float64) colorful.Color {
			segments := float64(len(thermalStops) - 1)
			i := int(math.Min(v*segments, segments-1))
			return thermalStops[i].BlendHcl(thermalStops[i+1], v*segments-float64(i))
		}

	case GrayscaleTheme:
		return func(v float64) colorful.Color {
			l := 0.75 - math.Pow(v, 0.7)*0.75
			return colorful.Color{R: l, G: l, B: l}
		}

	default:
		return func(v float64) colorful.Color {
			return colorful.Hsv(240-(v*240), 0.9+(v*0.1), 0.9)
		}
	}
}
