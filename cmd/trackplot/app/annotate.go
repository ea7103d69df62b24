package app

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

const (
	dpi            = 96.0
	tickMarkLength = 5
	pixelsPerLabel = 120.0
	legendWidth    = 16
	legendLabels   = 5
)

type annotatorConfig struct {
	Title          string
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	Borders        BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, track *Track, proj *projection, colorMap *ColorMapper) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func() error
	}{
		{"drawing east scale", func() error { return a.drawEastScale(img, proj) }},
		{"drawing north scale", func() error { return a.drawNorthScale(img, proj) }},
		{"drawing legend", func() error { return a.drawLegend(img, track, proj, colorMap) }},
		{"drawing info bar", func() error { return a.drawInfoBar(img, track, proj) }},
	}
	for _, op := range ops {
		if err := op.fn(); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	drawFrame(img, proj.area)
	return nil
}

func (a *annotator) drawEastScale(img *image.RGBA, proj *projection) error {
	eMin, eMax := proj.eastRange()
	step := calculateNiceStep(eMax-eMin, proj.area.Dx())

	textY := a.config.Borders.Top - tickMarkLength - a.descent() - 2

	for e := math.Ceil(eMin/step) * step; e <= eMax; e += step {
		x, _ := proj.xy(proj.centerN, e)
		px := int(math.Round(x))

		for y := proj.area.Min.Y; y < proj.area.Max.Y; y++ {
			img.Set(px, y, gridColor)
		}
		for y := proj.area.Min.Y - tickMarkLength; y < proj.area.Min.Y; y++ {
			img.Set(px, y, color.Black)
		}

		label := formatMeters(e, step)
		width := font.MeasureString(a.fontFace, label).Round()
		if _, err := a.context.DrawString(label, freetype.Pt(px-width/2, textY)); err != nil {
			return fmt.Errorf("drawing east label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawNorthScale(img *image.RGBA, proj *projection) error {
	nMin, nMax := proj.northRange()
	step := calculateNiceStep(nMax-nMin, proj.area.Dy())

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	for n := math.Ceil(nMin/step) * step; n <= nMax; n += step {
		_, y := proj.xy(n, proj.centerE)
		py := int(math.Round(y))

		for x := proj.area.Min.X; x < proj.area.Max.X; x++ {
			img.Set(x, py, gridColor)
		}
		for x := proj.area.Min.X - tickMarkLength; x < proj.area.Min.X; x++ {
			img.Set(x, py, color.Black)
		}

		label := formatMeters(n, step)
		width := font.MeasureString(a.fontFace, label).Round()
		textX := proj.area.Min.X - tickMarkLength - 3 - width
		textY := py + fontHeight/2 - metrics.Descent.Round()
		if _, err := a.context.DrawString(label, freetype.Pt(textX, textY)); err != nil {
			return fmt.Errorf("drawing north label: %w", err)
		}
	}
	return nil
}

// drawLegend draws the speed gradient to the right of the plot, fastest at
// the top, with a swatch for degraded samples underneath
func (a *annotator) drawLegend(img *image.RGBA, track *Track, proj *projection, colorMap *ColorMapper) error {
	left := proj.area.Max.X + 20
	top, bottom := proj.area.Min.Y, proj.area.Max.Y-3*legendWidth
	height := bottom - top

	for y := top; y < bottom; y++ {
		c := colorMap.Gradient(1 - float64(y-top)/float64(height-1))
		for x := left; x < left+legendWidth; x++ {
			img.Set(x, y, c)
		}
	}

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	for i := 0; i < legendLabels; i++ {
		f := float64(i) / float64(legendLabels-1)
		speed := track.Speed.Min + f*(track.Speed.Max-track.Speed.Min)
		y := bottom - 1 - int(f*float64(height-1))

		for x := left + legendWidth; x < left+legendWidth+tickMarkLength; x++ {
			img.Set(x, y, color.Black)
		}

		label := humanize.FtoaWithDigits(speed, 2)
		textY := y + fontHeight/2 - metrics.Descent.Round()
		if _, err := a.context.DrawString(label, freetype.Pt(left+legendWidth+tickMarkLength+3, textY)); err != nil {
			return fmt.Errorf("drawing legend label: %w", err)
		}
	}

	swatchTop := bottom + legendWidth
	for y := swatchTop; y < swatchTop+legendWidth; y++ {
		for x := left; x < left+legendWidth; x++ {
			img.Set(x, y, DegradedColor)
		}
	}

	textY := swatchTop + legendWidth - metrics.Descent.Round()
	if _, err := a.context.DrawString("occl.", freetype.Pt(left+legendWidth+tickMarkLength+3, textY)); err != nil {
		return fmt.Errorf("drawing legend label: %w", err)
	}

	if _, err := a.context.DrawString("m/s", freetype.Pt(left, top-tickMarkLength-a.descent()-2)); err != nil {
		return fmt.Errorf("drawing legend unit: %w", err)
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, track *Track, proj *projection) error {
	var sb strings.Builder

	if a.config.Title != "" {
		sb.WriteString(a.config.Title)
		sb.WriteString("; ")
	}
	sb.WriteString(fmt.Sprintf("Time: %s - %s (%s)",
		track.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
		track.TimestampEnd.In(a.config.Location).Format(a.config.TimeFormat),
		track.Duration().Round(time.Second)))

	lines := []string{
		sb.String(),
		fmt.Sprintf("Samples: %s (%s occluded); Distance: %s m; Speed: mean %s, peak %s m/s; 1px = %s m",
			humanize.Comma(int64(len(track.Points))),
			humanize.Comma(int64(track.Degraded)),
			humanize.FtoaWithDigits(track.Distance, 2),
			humanize.FtoaWithDigits(track.Speed.Mean, 2),
			humanize.FtoaWithDigits(track.Speed.Peak, 2),
			humanize.FtoaWithDigits(proj.metersPerPixel, 4)),
	}

	metrics := a.fontFace.Metrics()
	lineHeight := (metrics.Ascent + metrics.Descent).Round() + 4

	textY := proj.area.Max.Y + (a.config.Borders.Bottom-len(lines)*lineHeight)/2 + metrics.Ascent.Round()
	for _, line := range lines {
		if _, err := a.context.DrawString(line, freetype.Pt(proj.area.Min.X, textY)); err != nil {
			return fmt.Errorf("drawing info text: %w", err)
		}
		textY += lineHeight
	}

	return nil
}

func (a *annotator) descent() int {
	return a.fontFace.Metrics().Descent.Round()
}

func drawFrame(img *image.RGBA, area image.Rectangle) {
	for x := area.Min.X; x < area.Max.X; x++ {
		img.Set(x, area.Min.Y, frameColor)
		img.Set(x, area.Max.Y-1, frameColor)
	}
	for y := area.Min.Y; y < area.Max.Y; y++ {
		img.Set(area.Min.X, y, frameColor)
		img.Set(area.Max.X-1, y, frameColor)
	}
}

// calculateNiceStep picks a 1, 2 or 5 times power of ten step giving roughly
// one label every pixelsPerLabel pixels
func calculateNiceStep(span float64, pixels int) float64 {
	if span <= 0 || pixels <= 0 {
		return 1
	}

	target := span / math.Max(float64(pixels)/pixelsPerLabel, 1)
	magnitude := math.Pow(10, math.Floor(math.Log10(target)))

	for _, m := range []float64{1, 2, 5} {
		if m*magnitude >= target {
			return m * magnitude
		}
	}
	return 10 * magnitude
}

func formatMeters(v, step float64) string {
	if math.Abs(v) < step/1e6 {
		v = 0
	}

	digits := 0
	if step < 1 {
		digits = int(math.Ceil(-math.Log10(step)))
	}
	return humanize.FtoaWithDigits(v, digits) + "m"
}
