// Package colormap maps scalar voxel intensities to RGBA colors through
// an ordered palette. It provides the color-table text parser, window
// based index resolution, and the per-voxel intensity-to-color mapping
// used by the slice compositor and the legend renderer.
package colormap

import (
	"math"
	"strconv"
	"strings"
)

// IndexOutOfRange is the sentinel returned by ResolveIndex for values
// outside the [min,max] window when clamping is disabled.
const IndexOutOfRange = -1

// Discrete label atlases with 17 or 18 regions are indexed directly
// rather than scaled across the intensity window: a window of [0,17] or
// [0,18] forces an increment of 1 so label k always reads table entry k.
// This accommodates a specific atlas family; confirm with the atlas
// owners before widening or removing it.
const (
	discreteLabelMax17 = 17
	discreteLabelMax18 = 18
)

// Table is an ordered RGBA palette used to map scalar intensities to
// colors. The palette itself is immutable after parsing; the scalar
// display fields (Clamp, Flip, Scale, Contrast, Brightness) are defaults
// that callers may override per call, and must not be mutated on a
// shared Table during rendering.
type Table struct {
	// Colors is the flat palette, 4 floats (R,G,B,A) per entry.
	// len(Colors) is always a multiple of 4.
	Colors []float64

	// defined marks which entries were written by the parser. Sparse
	// tables leave holes, which read as transparent black.
	defined []bool

	// Clamp controls whether out-of-window intensities saturate to the
	// nearest palette end instead of falling back to a default color.
	Clamp bool

	// Flip reverses palette traversal when set.
	Flip bool

	// Scale multiplies output channel values (1 for unit-range output,
	// 255 for byte-range pixel buffers).
	Scale float64

	// Contrast and Brightness adjust mapped RGB channels as
	// contrast*color + brightness, both pre-multiplied by Scale.
	Contrast   float64
	Brightness float64

	// Margin is a display hint for legend layout, in pixels.
	Margin int
}

// Parse reads a whitespace-delimited color-map text table into a Table.
//
// Each non-empty line yields 3 to 5 numeric fields:
//   - 3 or 4 fields: a dense entry R,G,B[,A], appended at the next
//     sequential table position. A defaults to 1 when omitted.
//   - 5 fields: a sparse labeled entry; field 0 is the 1-based label
//     index L and fields 1-4 are R,G,B,A stored at entry L. Following
//     dense lines continue from entry L+1.
//
// Lines with fewer than 3 fields, or with unparseable numbers, are
// silently skipped. Entries never written by any line remain holes and
// read as transparent black.
func Parse(text string) *Table {
	t := &Table{
		Clamp:    true,
		Scale:    1,
		Contrast: 1,
	}

	next := 0
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}

		values := make([]float64, 0, len(fields))
		ok := true
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				ok = false
				break
			}
			values = append(values, v)
		}
		if !ok {
			continue
		}

		if len(values) == 5 {
			// Sparse labeled entry: absolute placement at the label index.
			label := int(values[0])
			if label < 0 {
				continue
			}
			t.set(label, values[1], values[2], values[3], values[4])
			next = label + 1
		} else {
			a := 1.0
			if len(values) >= 4 {
				a = values[3]
			}
			t.set(next, values[0], values[1], values[2], a)
			next++
		}
	}

	return t
}

// set writes entry i, growing the palette with holes as needed.
func (t *Table) set(i int, r, g, b, a float64) {
	for len(t.Colors) < (i+1)*4 {
		t.Colors = append(t.Colors, 0, 0, 0, 0)
		t.defined = append(t.defined, false)
	}
	o := i * 4
	t.Colors[o] = r
	t.Colors[o+1] = g
	t.Colors[o+2] = b
	t.Colors[o+3] = a
	t.defined[i] = true
}

// Len returns the number of palette entries, counting holes.
func (t *Table) Len() int {
	return len(t.Colors) / 4
}

// Defined reports whether entry i was written by the parser.
func (t *Table) Defined(i int) bool {
	return i >= 0 && i < len(t.defined) && t.defined[i]
}

// Entry returns the RGBA values of entry i. Holes and out-of-bounds
// indices return transparent black.
func (t *Table) Entry(i int) [4]float64 {
	if i < 0 || (i+1)*4 > len(t.Colors) {
		return [4]float64{}
	}
	o := i * 4
	return [4]float64{t.Colors[o], t.Colors[o+1], t.Colors[o+2], t.Colors[o+3]}
}

// ResolveIndex maps an intensity value within the [min,max] window to a
// channel offset into Colors.
//
// Out-of-window values return IndexOutOfRange unless clamp is set, in
// which case they saturate to the first or last entry (before flip).
// In-window values map linearly across the palette; a value exactly at
// max resolves to the last entry. Flip mirrors the resolved entry.
func (t *Table) ResolveIndex(value, min, max float64, clamp, flip bool) int {
	n := t.Len()
	if n == 0 {
		return IndexOutOfRange
	}
	if (value < min || value > max) && !clamp {
		return IndexOutOfRange
	}

	inc := t.increment(min, max, n)
	idx := math.Floor(clampRange((value-min)*inc, 0, float64(n-1)))
	if flip {
		idx = float64(n-1) - idx
	}
	return int(idx) * 4
}

// increment returns the per-unit palette step for the given window.
func (t *Table) increment(min, max float64, n int) float64 {
	if min == 0 && (max == discreteLabelMax17 || max == discreteLabelMax18) {
		return 1
	}
	if max == min {
		// Degenerate window: every in-window value reads entry 0
		// rather than dividing by zero.
		return 1
	}
	return float64(n) / (max - min)
}

// clampRange limits v to [lo, hi].
func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
