package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/golang/freetype/raster"
	"golang.org/x/image/math/fixed"
)

const (
	fontSize     = 11.0
	trackWidth   = 2
	markerRadius = 5

	// Minimum span shown on either axis, meters
	minSpan = 1.0

	// Space between the track extents and the plot frame, pixels
	plotPadding = 24

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 80
	defaultBottomBorder = 60
	defaultRightBorder  = 110

	defaultTimeFormat     = "15:04:05"
	defaultDatetimeFormat = time.DateTime
)

var (
	startColor = color.RGBA{G: 0xa0, A: 0xff}
	endColor   = color.RGBA{R: 0xd0, A: 0xff}
	gridColor  = color.RGBA{R: 0xe4, G: 0xe4, B: 0xe4, A: 0xff}
	frameColor = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
)

// BorderConfig defines the sizes of white space around the plot area
type BorderConfig struct {
	Top    int // East scale
	Left   int // North scale
	Bottom int // Information bar
	Right  int // Speed legend
}

// RenderConfig holds all configuration options for track visualization
type RenderConfig struct {
	Size  int    // Plot area edge in pixels
	Title string // Leading text of the info bar

	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location

	FontSize     float64
	ColorTheme   ColorTheme
	BorderConfig BorderConfig
}

// TrackRenderer draws a top-down view of a recorded trajectory, north up and
// east to the right, colored by horizontal speed
type TrackRenderer struct {
	config RenderConfig
}

func NewTrackRenderer(config RenderConfig) (*TrackRenderer, error) {
	if config.Size < minImageSize {
		return nil, fmt.Errorf("plot size must be at least %dpx", minImageSize)
	}
	if _, ok := validThemes[config.ColorTheme]; !ok && config.ColorTheme != "" {
		return nil, fmt.Errorf("invalid color theme: %s", config.ColorTheme)
	}

	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	return &TrackRenderer{config: config}, nil
}

// Render creates an image of the track with scales, legend and info bar.
// The track must be finalized.
func (r *TrackRenderer) Render(track *Track) (*image.RGBA, error) {
	if len(track.Points) == 0 {
		return nil, ErrEmptyTrack
	}

	b := r.config.BorderConfig
	img := image.NewRGBA(image.Rect(0, 0, b.Left+r.config.Size+b.Right, b.Top+r.config.Size+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	plotArea := image.Rect(b.Left, b.Top, b.Left+r.config.Size, b.Top+r.config.Size)
	proj := newProjection(track, plotArea)
	colorMap := NewColorMapper(r.config.ColorTheme, track.Speed)

	ann, err := newAnnotator(annotatorConfig{
		Title:          r.config.Title,
		TimeFormat:     r.config.TimeFormat,
		DatetimeFormat: r.config.DatetimeFormat,
		Location:       r.config.Location,
		FontSize:       r.config.FontSize,
		Borders:        b,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	// Grid and scales go under the track
	if err = ann.annotate(img, track, proj, colorMap); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	r.renderTrack(img, track, proj, colorMap)
	return img, nil
}

func (r *TrackRenderer) renderTrack(img *image.RGBA, track *Track, proj *projection, colorMap *ColorMapper) {
	rast := raster.NewRasterizer(img.Bounds().Dx(), img.Bounds().Dy())
	painter := raster.NewRGBAPainter(img)

	stroke := func(path raster.Path, width fixed.Int26_6, c color.Color) {
		rast.Clear()
		raster.Stroke(rast, path, width, nil, nil)
		painter.SetColor(c)
		rast.Rasterize(painter)
	}

	if origin := proj.point(0, 0); origin.In(proj.area) {
		strokeCross(stroke, origin, frameColor)
	}

	for i := 1; i < len(track.Points); i++ {
		from, to := track.Points[i-1], track.Points[i]

		a, b := proj.fixedPoint(from.North, from.East), proj.fixedPoint(to.North, to.East)
		if a == b {
			continue
		}

		c := colorMap.GetColor(to.Speed)
		if to.Degraded {
			c = DegradedColor
		}

		var path raster.Path
		path.Start(a)
		path.Add1(b)
		stroke(path, fixed.I(trackWidth), c)
	}

	first, last := track.Points[0], track.Points[len(track.Points)-1]
	fillSquare(img, proj.point(last.North, last.East), markerRadius, endColor)
	fillSquare(img, proj.point(first.North, first.East), markerRadius, startColor)
}

// projection maps north/east meters onto the plot area with equal scale on
// both axes, centered on the track extents
type projection struct {
	area             image.Rectangle
	centerN, centerE float64
	metersPerPixel   float64
}

func newProjection(track *Track, area image.Rectangle) *projection {
	span := max(track.NorthMax-track.NorthMin, track.EastMax-track.EastMin, minSpan)
	usable := max(area.Dx()-2*plotPadding, 1)

	return &projection{
		area:           area,
		centerN:        (track.NorthMin + track.NorthMax) / 2,
		centerE:        (track.EastMin + track.EastMax) / 2,
		metersPerPixel: span / float64(usable),
	}
}

func (p *projection) xy(north, east float64) (float64, float64) {
	cx := float64(p.area.Min.X) + float64(p.area.Dx())/2
	cy := float64(p.area.Min.Y) + float64(p.area.Dy())/2
	return cx + (east-p.centerE)/p.metersPerPixel, cy - (north-p.centerN)/p.metersPerPixel
}

func (p *projection) point(north, east float64) image.Point {
	x, y := p.xy(north, east)
	return image.Pt(int(math.Round(x)), int(math.Round(y)))
}

func (p *projection) fixedPoint(north, east float64) fixed.Point26_6 {
	x, y := p.xy(north, east)
	return fixed.Point26_6{X: fixed.Int26_6(math.Round(x * 64)), Y: fixed.Int26_6(math.Round(y * 64))}
}

// eastRange and northRange are the meters visible across the plot area
func (p *projection) eastRange() (float64, float64) {
	half := float64(p.area.Dx()) / 2 * p.metersPerPixel
	return p.centerE - half, p.centerE + half
}

func (p *projection) northRange() (float64, float64) {
	half := float64(p.area.Dy()) / 2 * p.metersPerPixel
	return p.centerN - half, p.centerN + half
}

func strokeCross(stroke func(raster.Path, fixed.Int26_6, color.Color), at image.Point, c color.Color) {
	const arm = 8

	var h, v raster.Path
	h.Start(fixed.P(at.X-arm, at.Y))
	h.Add1(fixed.P(at.X+arm, at.Y))
	v.Start(fixed.P(at.X, at.Y-arm))
	v.Add1(fixed.P(at.X, at.Y+arm))

	stroke(h, fixed.I(1), c)
	stroke(v, fixed.I(1), c)
}

func fillSquare(img *image.RGBA, at image.Point, radius int, c color.Color) {
	rect := image.Rect(at.X-radius, at.Y-radius, at.X+radius+1, at.Y+radius+1)
	draw.Draw(img, rect.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}
