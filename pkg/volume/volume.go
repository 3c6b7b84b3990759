// Package volume holds the in-memory representation of a loaded scalar
// or pre-colored volume: the flat voxel array, the intensity window and
// color map used to display it, the role flags that drive risk-mask
// gating, and the voxel/world coordinate transforms.
package volume

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"neuroslice/internal/models"
	"neuroslice/pkg/colormap"
)

// Volume is a single co-registered volume participating in slice
// rendering. Voxel data is stored as a flat array in row-major order
// (x fastest, then y, then z), with time frames appended for 4D data.
type Volume struct {
	// Data holds one scalar intensity per voxel. Nil when the volume
	// is pre-colored.
	Data []float64

	// RGB holds packed 3-byte RGB voxels for pre-colored volumes.
	RGB []uint8

	// Width, Height, Depth are the spatial dimensions in voxels.
	Width  int
	Height int
	Depth  int

	// Frames is the number of time frames (1 for 3D volumes).
	Frames int

	// IntensityMin and IntensityMax define the display window.
	IntensityMin float64
	IntensityMax float64

	// ColorMap is the palette used to display this volume. Shared by
	// reference across all slices of the volume.
	ColorMap *colormap.Table

	// Opacity is the blend weight in [0,1] used during compositing.
	Opacity float64

	// DisplayZIndex is the compositing order key. Lower paints first.
	DisplayZIndex int

	// Role flags controlling risk heat-map gating during compositing.
	RiskHeatMap bool
	Safety      bool
	Anat        bool
	RiskMask    bool

	// RiskID is the mask label whose voxels this heat-map is restricted
	// to when gated by an anatomical or risk mask.
	RiskID float64

	voxelToWorld *mat.Dense
	worldToVoxel *mat.Dense
}

// New creates a scalar volume over the given flat data array with an
// identity voxel/world transform, full opacity, and an intensity window
// spanning the data.
func New(data []float64, width, height, depth int) (*Volume, error) {
	if width <= 0 || height <= 0 || depth <= 0 {
		return nil, fmt.Errorf("volume dimensions must be positive, got %dx%dx%d", width, height, depth)
	}
	if len(data)%(width*height*depth) != 0 || len(data) == 0 {
		return nil, fmt.Errorf("data length %d does not match dimensions %dx%dx%d", len(data), width, height, depth)
	}

	v := &Volume{
		Data:    data,
		Width:   width,
		Height:  height,
		Depth:   depth,
		Frames:  len(data) / (width * height * depth),
		Opacity: 1,
	}
	v.voxelToWorld = identity4()
	v.worldToVoxel = identity4()

	min, max := math.Inf(1), math.Inf(-1)
	for _, d := range data {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	v.IntensityMin = min
	v.IntensityMax = max

	return v, nil
}

// NewPreColored creates a pre-colored volume over packed 3-byte RGB
// voxel data. Pre-colored volumes bypass the color map entirely.
func NewPreColored(rgb []uint8, width, height, depth int) (*Volume, error) {
	if width <= 0 || height <= 0 || depth <= 0 {
		return nil, fmt.Errorf("volume dimensions must be positive, got %dx%dx%d", width, height, depth)
	}
	if len(rgb) != width*height*depth*3 {
		return nil, fmt.Errorf("RGB length %d does not match dimensions %dx%dx%d", len(rgb), width, height, depth)
	}

	v := &Volume{
		RGB:     rgb,
		Width:   width,
		Height:  height,
		Depth:   depth,
		Frames:  1,
		Opacity: 1,
	}
	v.voxelToWorld = identity4()
	v.worldToVoxel = identity4()
	return v, nil
}

// PreColored reports whether this volume carries packed RGB voxels.
func (v *Volume) PreColored() bool {
	return v.RGB != nil
}

// SetTransform installs a 4x4 voxel-to-world affine transform. The
// world-to-voxel direction is derived by inversion.
func (v *Volume) SetTransform(m *mat.Dense) error {
	r, c := m.Dims()
	if r != 4 || c != 4 {
		return fmt.Errorf("transform must be 4x4, got %dx%d", r, c)
	}

	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return fmt.Errorf("error inverting voxel-to-world transform: %w", err)
	}

	v.voxelToWorld = mat.DenseCopyOf(m)
	v.worldToVoxel = &inv
	return nil
}

// VoxelToWorld converts a voxel coordinate to world space.
func (v *Volume) VoxelToWorld(x, y, z float64) (float64, float64, float64) {
	return applyAffine(v.voxelToWorld, x, y, z)
}

// WorldToVoxel converts a world coordinate to this volume's voxel space.
func (v *Volume) WorldToVoxel(wx, wy, wz float64) (float64, float64, float64) {
	return applyAffine(v.worldToVoxel, wx, wy, wz)
}

// IntensityAt reads the intensity at voxel (x, y, z) in frame t.
// Coordinates outside the volume, or any coordinate on a pre-colored
// volume, read as 0.
func (v *Volume) IntensityAt(x, y, z, t int) float64 {
	if v.Data == nil {
		return 0
	}
	if x < 0 || x >= v.Width || y < 0 || y >= v.Height || z < 0 || z >= v.Depth {
		return 0
	}
	t = clampFrame(t, v.Frames)
	idx := t*v.Width*v.Height*v.Depth + z*v.Width*v.Height + y*v.Width + x
	return v.Data[idx]
}

// Slice extracts the 2D slice at the given position along the axis for
// time frame t. Sagittal slices are depth x height, coronal slices
// width x depth, axial slices width x height.
func (v *Volume) Slice(axis models.Axis, position, t int) (models.SliceData, error) {
	if position < 0 {
		return models.SliceData{}, fmt.Errorf("position must be non-negative")
	}
	t = clampFrame(t, v.Frames)
	frameOff := t * v.Width * v.Height * v.Depth

	var sd models.SliceData
	sd.ZIndex = v.DisplayZIndex

	switch axis {
	case models.Sagittal:
		if position >= v.Width {
			return models.SliceData{}, fmt.Errorf("position %d exceeds width %d", position, v.Width)
		}
		sd.Width, sd.Height = v.Depth, v.Height
		v.fill(&sd, func(col, row int) int {
			return frameOff + col*v.Width*v.Height + row*v.Width + position
		})

	case models.Coronal:
		if position >= v.Height {
			return models.SliceData{}, fmt.Errorf("position %d exceeds height %d", position, v.Height)
		}
		sd.Width, sd.Height = v.Width, v.Depth
		v.fill(&sd, func(col, row int) int {
			return frameOff + row*v.Width*v.Height + position*v.Width + col
		})

	case models.Axial:
		if position >= v.Depth {
			return models.SliceData{}, fmt.Errorf("position %d exceeds depth %d", position, v.Depth)
		}
		sd.Width, sd.Height = v.Width, v.Height
		v.fill(&sd, func(col, row int) int {
			return frameOff + position*v.Width*v.Height + row*v.Width + col
		})

	default:
		return models.SliceData{}, fmt.Errorf("invalid axis: %d", axis)
	}

	return sd, nil
}

// fill copies voxels into the slice payload, using the voxel index
// function to map (col, row) slice positions to flat volume indices.
func (v *Volume) fill(sd *models.SliceData, voxelIdx func(col, row int) int) {
	if v.PreColored() {
		sd.RGB = make([]uint8, sd.Width*sd.Height*3)
		for row := 0; row < sd.Height; row++ {
			for col := 0; col < sd.Width; col++ {
				src := voxelIdx(col, row) * 3
				dst := (row*sd.Width + col) * 3
				copy(sd.RGB[dst:dst+3], v.RGB[src:src+3])
			}
		}
		return
	}

	sd.Data = make([]float64, sd.Width*sd.Height)
	for row := 0; row < sd.Height; row++ {
		for col := 0; col < sd.Width; col++ {
			sd.Data[row*sd.Width+col] = v.Data[voxelIdx(col, row)]
		}
	}
}

// AutoWindow sets the intensity window from the data distribution,
// using the lowQ and highQ quantiles (0 and 1 give the full min/max
// range; 0.01 and 0.99 give a robust window that ignores outliers).
func (v *Volume) AutoWindow(lowQ, highQ float64) error {
	if v.Data == nil {
		return fmt.Errorf("cannot window a pre-colored volume")
	}
	if lowQ < 0 || highQ > 1 || lowQ >= highQ {
		return fmt.Errorf("invalid quantiles [%g, %g]", lowQ, highQ)
	}

	sorted := make([]float64, len(v.Data))
	copy(sorted, v.Data)
	sort.Float64s(sorted)

	v.IntensityMin = stat.Quantile(lowQ, stat.Empirical, sorted, nil)
	v.IntensityMax = stat.Quantile(highQ, stat.Empirical, sorted, nil)
	return nil
}

// Stats summarizes the intensity distribution of a scalar volume.
type Stats struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// IntensityStats computes summary statistics over all voxels and
// frames.
func (v *Volume) IntensityStats() (Stats, error) {
	if v.Data == nil {
		return Stats{}, fmt.Errorf("no scalar data in a pre-colored volume")
	}

	s := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, d := range v.Data {
		if d < s.Min {
			s.Min = d
		}
		if d > s.Max {
			s.Max = d
		}
	}
	s.Mean = stat.Mean(v.Data, nil)
	s.StdDev = stat.StdDev(v.Data, nil)
	return s, nil
}

// clampFrame limits a time index to the available frames.
func clampFrame(t, frames int) int {
	if t < 0 {
		return 0
	}
	if t >= frames {
		return frames - 1
	}
	return t
}

// identity4 returns a 4x4 identity matrix.
func identity4() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// applyAffine multiplies (x, y, z, 1) by the 4x4 transform and returns
// the transformed coordinate.
func applyAffine(m *mat.Dense, x, y, z float64) (float64, float64, float64) {
	in := mat.NewVecDense(4, []float64{x, y, z, 1})
	var out mat.VecDense
	out.MulVec(m, in)
	return out.AtVec(0), out.AtVec(1), out.AtVec(2)
}
