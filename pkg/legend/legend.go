// Package legend renders color-scale legend strips: a horizontal
// gradient sampled from a color table, tick marks at the quarter
// positions, and numeric labels formatted per display variant.
package legend

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"neuroslice/pkg/colormap"
)

// Height is the fixed legend height in pixels.
const Height = 40

const (
	sampleCount  = 256
	stripHeight  = 20
	tickLength   = 5
	labelBase    = Height - 4
	defaultWidth = 256
)

// Variant selects how tick labels are formatted and positioned.
type Variant int

const (
	// Linear labels the min/quarter/mid/three-quarter/max values in
	// plain fixed-point.
	Linear Variant = iota

	// Symmetric labels a mirrored ±range around a zero center, with
	// the inner ticks positioned proportionally to min/max.
	Symmetric

	// Percent labels 0%, 25%, 50%, 75% and 100%.
	Percent

	// LogFixed labels values fixed to 4 decimals, used for volumetric
	// legends with wide dynamic ranges.
	LogFixed
)

// ParseVariant converts a variant name from configuration. The second
// return is false for unknown names.
func ParseVariant(name string) (Variant, bool) {
	switch name {
	case "linear", "":
		return Linear, true
	case "symmetric":
		return Symmetric, true
	case "percent":
		return Percent, true
	case "log":
		return LogFixed, true
	default:
		return Linear, false
	}
}

// Renderer builds legend images for one color table.
type Renderer struct {
	// Table is the palette being visualized.
	Table *colormap.Table

	// Variant selects the label formatting.
	Variant Variant

	// Width is the legend width in pixels; defaults to 256.
	Width int

	// TrimWhite drops leading fully-white samples from the gradient,
	// hiding a white background entry at the bottom of some tables.
	TrimWhite bool

	// FilterColors removes gradient samples whose RGB channels exactly
	// match (byte range). Used to hide a masked "background" color
	// from heat-map and volumetric legends.
	FilterColors [][3]float64
}

// Render draws the legend for the given value range.
func (r *Renderer) Render(min, max float64) (*image.RGBA, error) {
	if r.Table == nil || r.Table.Len() == 0 {
		return nil, fmt.Errorf("legend has no color table")
	}

	width := r.Width
	if width <= 0 {
		width = defaultWidth
	}

	samples, err := r.sampleGradient()
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, width, Height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	// Gradient strip.
	for x := 0; x < width; x++ {
		s := samples[x*len(samples)/width]
		col := color.RGBA{
			R: byteChannel(s[0]),
			G: byteChannel(s[1]),
			B: byteChannel(s[2]),
			A: 255,
		}
		for y := 0; y < stripHeight; y++ {
			img.SetRGBA(x, y, col)
		}
	}

	for _, tick := range r.layout(min, max, width) {
		drawTick(img, tick.x)
		drawLabel(img, tick.x, tick.label)
	}

	return img, nil
}

// sampleGradient maps a synthetic 0..255 ramp through the table and
// applies the white-trim and filter-color post-filters.
func (r *Renderer) sampleGradient() ([][4]float64, error) {
	ramp := make([]float64, sampleCount)
	for i := range ramp {
		ramp[i] = float64(i)
	}

	scale := 255.0
	mapped, ok := r.Table.MapColors(ramp, colormap.MappingOptions{
		Min:   0,
		Max:   sampleCount - 1,
		Scale: &scale,
	})
	if !ok {
		return nil, fmt.Errorf("color table resolves to no colors")
	}

	samples := make([][4]float64, 0, sampleCount)
	trimming := r.TrimWhite
	for i := 0; i < sampleCount; i++ {
		s := [4]float64{mapped[i*4], mapped[i*4+1], mapped[i*4+2], mapped[i*4+3]}
		if trimming && s[0] == 255 && s[1] == 255 && s[2] == 255 {
			continue
		}
		trimming = false
		if r.filtered(s) {
			continue
		}
		samples = append(samples, s)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("color table resolves to no colors")
	}
	return samples, nil
}

// filtered reports whether a sample matches any configured filter
// color.
func (r *Renderer) filtered(s [4]float64) bool {
	for _, f := range r.FilterColors {
		if s[0] == f[0] && s[1] == f[1] && s[2] == f[2] {
			return true
		}
	}
	return false
}

// tick is a labeled tick position.
type tick struct {
	x     int
	label string
}

// layout computes the tick positions and label strings for the value
// range under the configured variant.
func (r *Renderer) layout(min, max float64, width int) []tick {
	switch r.Variant {
	case Symmetric:
		return symmetricLayout(min, max, width)

	case Percent:
		ticks := make([]tick, 0, 5)
		for _, frac := range []float64{0, 0.25, 0.5, 0.75, 1} {
			ticks = append(ticks, tick{
				x:     int(frac * float64(width-1)),
				label: fmt.Sprintf("%.0f%%", frac*100),
			})
		}
		return ticks

	case LogFixed:
		ticks := make([]tick, 0, 5)
		for _, frac := range []float64{0, 0.25, 0.5, 0.75, 1} {
			ticks = append(ticks, tick{
				x:     int(frac * float64(width-1)),
				label: fmt.Sprintf("%.4f", min+frac*(max-min)),
			})
		}
		return ticks

	default:
		ticks := make([]tick, 0, 5)
		for _, frac := range []float64{0, 0.25, 0.5, 0.75, 1} {
			ticks = append(ticks, tick{
				x:     int(frac * float64(width-1)),
				label: fmt.Sprintf("%.2f", min+frac*(max-min)),
			})
		}
		return ticks
	}
}

// symmetricLayout mirrors the range around a zero center. The outer
// ticks are ±max; the inner ticks are ±min, positioned inside the
// half-width proportionally to min/max.
func symmetricLayout(min, max float64, width int) []tick {
	center := width / 2
	offset := 0
	if max != 0 {
		offset = int(0.5 * float64(width) * (min / max))
	}

	return []tick{
		{x: 0, label: fmt.Sprintf("%.2f", -max)},
		{x: center - offset, label: fmt.Sprintf("%.2f", -min)},
		{x: center, label: "0"},
		{x: center + offset, label: fmt.Sprintf("%.2f", min)},
		{x: width - 1, label: fmt.Sprintf("%.2f", max)},
	}
}

// drawTick draws a vertical tick mark below the gradient strip.
func drawTick(img *image.RGBA, x int) {
	for y := stripHeight; y < stripHeight+tickLength; y++ {
		img.SetRGBA(x, y, color.RGBA{A: 255})
	}
}

// drawLabel draws the label text centered under the tick, shifted
// inward when it would run off the edge.
func drawLabel(img *image.RGBA, x int, label string) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, label).Ceil()

	left := x - w/2
	if left < 0 {
		left = 0
	}
	if right := img.Bounds().Dx(); left+w > right {
		left = right - w
	}

	d := font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: face,
		Dot:  fixed.P(left, labelBase),
	}
	d.DrawString(label)
}

// byteChannel converts a 0-255 float channel to a clamped byte.
func byteChannel(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
