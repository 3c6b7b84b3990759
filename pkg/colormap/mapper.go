package colormap

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
)

// DefaultMaxSpectrum is the ceiling of the bounded "spectrum" intensity
// encoding. Values above the window maximum but at or below this ceiling
// are treated as barely-overflowing window values rather than outliers.
const DefaultMaxSpectrum = 4

// spectrumEpsilon is subtracted from the window maximum when folding a
// spectrum-overflow value back into the window.
const spectrumEpsilon = 0.0001

// Side selects which slice positions a sided color entry applies to,
// relative to the left/right hemisphere split.
type Side int

const (
	// SideAll matches every position.
	SideAll Side = iota

	// SideLeft matches positions at or before the hemisphere split.
	SideLeft

	// SideRight matches positions after the hemisphere split.
	SideRight
)

// SidedColor keys a palette lookup to an intensity value and a
// hemisphere side. A Value of exactly 1 matches any intensity in (0,1].
type SidedColor struct {
	Value float64
	Side  Side
}

// ColorOptions restricts palette coloring to a set of value/side keyed
// entries, painting everything else with DefaultColor. Used for
// hemisphere-specific region coloring.
type ColorOptions struct {
	// Colors lists the value/side combinations that keep their palette
	// color.
	Colors []SidedColor

	// DefaultColor is written for in-window values matching no entry.
	DefaultColor [4]float64

	// LeftCount is the last position index belonging to the left
	// hemisphere. Positions at or below it are "left", above it "right".
	LeftCount int
}

// match reports whether the intensity at position i keeps its palette
// color under these options.
func (co *ColorOptions) match(value float64, i int) bool {
	for _, sc := range co.Colors {
		if sc.Value == 1 {
			if !(value > 0 && value <= 1) {
				continue
			}
		} else if value != sc.Value {
			continue
		}

		switch sc.Side {
		case SideAll:
			return true
		case SideLeft:
			if i <= co.LeftCount {
				return true
			}
		case SideRight:
			if i > co.LeftCount {
				return true
			}
		}
	}
	return false
}

// MappingOptions controls a single MapColors call. Min and Max define
// the intensity window; the pointer fields override the Table's own
// display defaults for this call only, leaving the shared Table
// untouched.
type MappingOptions struct {
	// Min and Max bound the intensity window. Values outside it map to
	// DefaultColors unless clamping is enabled.
	Min float64
	Max float64

	// Clamp, Flip, Scale, Contrast and Brightness override the Table
	// defaults when non-nil.
	Clamp      *bool
	Flip       *bool
	Scale      *float64
	Contrast   *float64
	Brightness *float64

	// DefaultColors is written for out-of-window values. Either a
	// single RGBA color (length 4) reused for every position, or one
	// RGBA color per position (length 4*N). Nil means transparent
	// black.
	DefaultColors []float64

	// Destination, when non-nil, receives the mapped pixels in place
	// and must be at least 4*N long. The mapper never retains it.
	Destination []float64

	// ColorOptions, when non-nil, restricts coloring to value/side
	// keyed entries.
	ColorOptions *ColorOptions

	// MaxSpectrum overrides DefaultMaxSpectrum when positive.
	MaxSpectrum float64
}

// effective resolves a pointer override against a table default.
func effective(override *float64, def float64) float64 {
	if override != nil {
		return *override
	}
	return def
}

func effectiveBool(override *bool, def bool) bool {
	if override != nil {
		return *override
	}
	return def
}

// MapColors maps each intensity through the palette into a flat RGBA
// buffer, 4 channels per input value.
//
// In-window values read their resolved palette entry; out-of-window
// values (with clamping off) read DefaultColors. RGB channels are
// written as contrast*color + brightness and alpha as scale*alpha,
// with contrast and brightness pre-multiplied by scale.
//
// The returned buffer is opts.Destination when supplied, otherwise a
// newly allocated buffer of length 4*len(intensities). The second
// return is false when the palette holds no colors, in which case
// there is nothing to draw and the first return is nil.
func (t *Table) MapColors(intensities []float64, opts MappingOptions) ([]float64, bool) {
	if t == nil || len(t.Colors) == 0 {
		return nil, false
	}

	clamp := effectiveBool(opts.Clamp, t.Clamp)
	flip := effectiveBool(opts.Flip, t.Flip)
	scale := effective(opts.Scale, t.Scale)
	contrast := effective(opts.Contrast, t.Contrast) * scale
	brightness := effective(opts.Brightness, t.Brightness) * scale

	maxSpectrum := opts.MaxSpectrum
	if maxSpectrum <= 0 {
		maxSpectrum = DefaultMaxSpectrum
	}

	defaultColors := opts.DefaultColors
	if len(defaultColors) == 0 {
		defaultColors = []float64{0, 0, 0, 0}
	}

	dest := opts.Destination
	if dest == nil {
		dest = make([]float64, 4*len(intensities))
	}

	for i, value := range intensities {
		ic := i * 4

		// Fold spectrum-encoded values that barely exceed the window
		// ceiling back under it.
		if value > opts.Max && value <= maxSpectrum {
			value = opts.Max - spectrumEpsilon
		}

		offset := t.ResolveIndex(value, opts.Min, opts.Max, clamp, flip)
		switch {
		case offset < 0:
			// A single default color (length 4) is reused at every
			// position; longer buffers are indexed per position.
			di := ic
			if len(defaultColors) == 4 {
				di = 0
			}
			dest[ic] = contrast*defaultColors[di] + brightness
			dest[ic+1] = contrast*defaultColors[di+1] + brightness
			dest[ic+2] = contrast*defaultColors[di+2] + brightness
			dest[ic+3] = scale * defaultColors[di+3]

		case opts.ColorOptions != nil:
			if opts.ColorOptions.match(value, i) {
				dest[ic] = contrast*t.Colors[offset] + brightness
				dest[ic+1] = contrast*t.Colors[offset+1] + brightness
				dest[ic+2] = contrast*t.Colors[offset+2] + brightness
				dest[ic+3] = scale * t.Colors[offset+3]
			} else {
				dc := opts.ColorOptions.DefaultColor
				dest[ic] = contrast*dc[0] + brightness
				dest[ic+1] = contrast*dc[1] + brightness
				dest[ic+2] = contrast*dc[2] + brightness
				dest[ic+3] = scale * dc[3]
			}

		default:
			dest[ic] = contrast*t.Colors[offset] + brightness
			dest[ic+1] = contrast*t.Colors[offset+1] + brightness
			dest[ic+2] = contrast*t.Colors[offset+2] + brightness
			dest[ic+3] = scale * t.Colors[offset+3]
		}
	}

	return dest, true
}

// ColorFromValue maps a single intensity to an RGBA color using the
// same window resolution and contrast/brightness adjustment as
// MapColors. The second return is false when the palette is empty.
func (t *Table) ColorFromValue(value float64, opts MappingOptions) ([4]float64, bool) {
	opts.Destination = nil
	mapped, ok := t.MapColors([]float64{value}, opts)
	if !ok {
		return [4]float64{}, false
	}
	return [4]float64{mapped[0], mapped[1], mapped[2], mapped[3]}, true
}

// HexFromValue maps a single intensity to a 6-character RGB hex string
// (no leading '#'). Channels are clamped to [0,1] and floored after
// scaling to 0-255. The second return is false when the palette is
// empty.
func (t *Table) HexFromValue(value float64, opts MappingOptions) (string, bool) {
	rgba, ok := t.ColorFromValue(value, opts)
	if !ok {
		return "", false
	}
	c := colorful.Color{R: rgba[0], G: rgba[1], B: rgba[2]}.Clamped()
	return fmt.Sprintf("%02x%02x%02x", int(c.R*255), int(c.G*255), int(c.B*255)), true
}
