// Package compositor assembles multi-planar slice images from a set of
// co-registered volumes. For a given axis and slice position it colors
// each volume's slice through its own color map, gates risk heat-maps
// by their companion masks, resamples everything to a common target
// resolution, and alpha-blends the results in display z-order into one
// composite image.
package compositor

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"neuroslice/internal/models"
	"neuroslice/pkg/colormap"
	"neuroslice/pkg/volume"
)

// ErrMissingColorMap is returned when a scalar volume that must be
// rendered has no color map. This is fatal for the render call: a
// silently blank layer would be indistinguishable from a deliberately
// empty one.
var ErrMissingColorMap = errors.New("volume has no color map")

// Compositor renders composite slice images for a fixed set of
// co-registered volumes. All methods are synchronous pure transforms;
// a Compositor may be shared across panels as long as SetBlendRatios
// is not called concurrently with reads.
type Compositor struct {
	volumes     []*volume.Volume
	blendRatios []float64
}

// New creates a compositor over the given volumes. Blend ratios for
// the intensity probe start out uniform at 1/n.
func New(volumes []*volume.Volume) (*Compositor, error) {
	if len(volumes) == 0 {
		return nil, fmt.Errorf("compositor requires at least one volume")
	}

	ratios := make([]float64, len(volumes))
	for i := range ratios {
		ratios[i] = 1 / float64(len(volumes))
	}

	return &Compositor{
		volumes:     volumes,
		blendRatios: ratios,
	}, nil
}

// Volumes returns the participating volumes in their configured order.
func (c *Compositor) Volumes() []*volume.Volume {
	return c.volumes
}

// SetBlendRatios replaces the per-volume weights used by
// GetIntensityValue. One weight per volume is required.
func (c *Compositor) SetBlendRatios(ratios []float64) error {
	if len(ratios) != len(c.volumes) {
		return fmt.Errorf("expected %d blend ratios, got %d", len(c.volumes), len(ratios))
	}
	c.blendRatios = ratios
	return nil
}

// VolumeSlice pairs a volume with its extracted 2D slice.
type VolumeSlice struct {
	Volume *volume.Volume
	Slice  models.SliceData
}

// CompositeSlice gathers the per-volume slices participating in one
// composite image.
type CompositeSlice struct {
	Axis     models.Axis
	Position int
	Time     int
	Slices   []VolumeSlice
}

// CompositeSlice extracts the slice at the given axis and position from
// every volume. Volumes whose extent does not reach the position
// contribute an empty slice, which the renderer skips.
func (c *Compositor) CompositeSlice(axis models.Axis, position, time int) (*CompositeSlice, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	cs := &CompositeSlice{
		Axis:     axis,
		Position: position,
		Time:     time,
		Slices:   make([]VolumeSlice, 0, len(c.volumes)),
	}

	for _, vol := range c.volumes {
		sd, err := vol.Slice(axis, position, time)
		if err != nil {
			// Out of this volume's extent; participates as empty.
			sd = models.SliceData{ZIndex: vol.DisplayZIndex}
		}
		cs.Slices = append(cs.Slices, VolumeSlice{Volume: vol, Slice: sd})
	}

	return cs, nil
}

// GetSliceImage renders the composite image for a gathered slice set.
//
// The target size is the first non-empty slice's dimensions scaled by
// zoom. Each volume's slice is colored through its own color map using
// its [IntensityMin, IntensityMax] window and the call's contrast and
// brightness, gated by its companion mask when it is a risk heat-map,
// resampled to the target size with nearest-neighbor, and finally
// blended in ascending display z-order.
func (c *Compositor) GetSliceImage(cs *CompositeSlice, zoom, contrast, brightness float64) (*models.RGBAImage, error) {
	if zoom <= 0 {
		zoom = 1
	}

	targetW, targetH := 0, 0
	for _, vs := range cs.Slices {
		if vs.Slice.Width > 0 && vs.Slice.Height > 0 {
			targetW = int(float64(vs.Slice.Width) * zoom)
			targetH = int(float64(vs.Slice.Height) * zoom)
			break
		}
	}
	if targetW == 0 || targetH == 0 {
		return nil, fmt.Errorf("composite slice has no drawable images")
	}

	var images []*models.RGBAImage
	for _, vs := range cs.Slices {
		sd := vs.Slice
		if sd.Width == 0 || sd.Height == 0 {
			continue
		}

		var src *models.RGBAImage
		if vs.Volume.PreColored() {
			src = imageFromRGB(sd, vs.Volume.Opacity)
		} else {
			if vs.Volume.ColorMap == nil || vs.Volume.ColorMap.Len() == 0 {
				return nil, fmt.Errorf("volume at z-index %d: %w", vs.Volume.DisplayZIndex, ErrMissingColorMap)
			}

			merged := c.mergedData(cs, vs)
			scale := 255.0
			mapped, ok := vs.Volume.ColorMap.MapColors(merged, colormap.MappingOptions{
				Min:        vs.Volume.IntensityMin,
				Max:        vs.Volume.IntensityMax,
				Scale:      &scale,
				Contrast:   &contrast,
				Brightness: &brightness,
			})
			if !ok {
				continue
			}

			src = &models.RGBAImage{
				Width:   sd.Width,
				Height:  sd.Height,
				Pix:     mapped,
				ZIndex:  sd.ZIndex,
				Opacity: vs.Volume.Opacity,
			}
		}

		images = append(images, resampleNearest(src, targetW, targetH))
	}

	if len(images) == 0 {
		return nil, fmt.Errorf("composite slice has no drawable images")
	}

	return blendImages(images, targetW, targetH), nil
}

// Render is the one-call form: it gathers the composite slice and
// renders it.
func (c *Compositor) Render(axis models.Axis, position, time int, zoom, contrast, brightness float64) (*models.RGBAImage, error) {
	cs, err := c.CompositeSlice(axis, position, time)
	if err != nil {
		return nil, err
	}
	return c.GetSliceImage(cs, zoom, contrast, brightness)
}

// mergedData applies risk heat-map gating to a slice's intensities.
//
// A heat-map layered over a safety context keeps only the voxels whose
// anatomical-mask value equals its RiskID; without a safety context the
// dedicated risk-mask slice gates instead. Everything else passes
// through unchanged.
func (c *Compositor) mergedData(cs *CompositeSlice, vs VolumeSlice) []float64 {
	if !vs.Volume.RiskHeatMap {
		return vs.Slice.Data
	}

	var mask models.SliceData
	found := false
	if c.hasSafety() {
		for _, other := range cs.Slices {
			if other.Volume.Anat {
				mask = other.Slice
				found = true
				break
			}
		}
	} else {
		for _, other := range cs.Slices {
			if other.Volume.RiskMask {
				mask = other.Slice
				found = true
				break
			}
		}
	}
	if !found || mask.Data == nil {
		return vs.Slice.Data
	}

	merged := make([]float64, len(vs.Slice.Data))
	copy(merged, vs.Slice.Data)
	for i := range merged {
		if i >= len(mask.Data) || mask.Data[i] != vs.Volume.RiskID {
			merged[i] = 0
		}
	}
	return merged
}

// hasSafety reports whether any participating volume is a safety
// context.
func (c *Compositor) hasSafety() bool {
	for _, vol := range c.volumes {
		if vol.Safety {
			return true
		}
	}
	return false
}

// imageFromRGB expands a pre-colored slice's packed RGB bytes into an
// opaque RGBA image.
func imageFromRGB(sd models.SliceData, opacity float64) *models.RGBAImage {
	im := models.NewRGBAImage(sd.Width, sd.Height)
	im.ZIndex = sd.ZIndex
	im.Opacity = opacity
	for i := 0; i < sd.Width*sd.Height; i++ {
		im.Pix[i*4] = float64(sd.RGB[i*3])
		im.Pix[i*4+1] = float64(sd.RGB[i*3+1])
		im.Pix[i*4+2] = float64(sd.RGB[i*3+2])
		im.Pix[i*4+3] = 255
	}
	return im
}

// resampleNearest scales an image to the target size by nearest
// neighbor, copying whole RGBA blocks. Compositing metadata is carried
// forward. Images already at the target size are returned as-is.
func resampleNearest(src *models.RGBAImage, targetW, targetH int) *models.RGBAImage {
	if src.Width == targetW && src.Height == targetH {
		return src
	}

	dst := models.NewRGBAImage(targetW, targetH)
	dst.ZIndex = src.ZIndex
	dst.Opacity = src.Opacity

	xRatio := float64(src.Width) / float64(targetW)
	yRatio := float64(src.Height) / float64(targetH)
	for y := 0; y < targetH; y++ {
		sy := int(float64(y) * yRatio)
		for x := 0; x < targetW; x++ {
			sx := int(float64(x) * xRatio)
			so := (sy*src.Width + sx) * 4
			do := (y*targetW + x) * 4
			copy(dst.Pix[do:do+4], src.Pix[so:so+4])
		}
	}
	return dst
}

// blendImages composites images into one target buffer in ascending
// display z-order (stable, so input order breaks ties).
//
// A single image is returned unchanged. With multiple images the lowest
// z-order image is the base and shows through fully; each later image
// blends target = target*(1-opacity) + source*opacity per RGB channel,
// but only where its source pixel is non-black. An all-black source
// pixel carries no data and never overwrites the accumulated target.
// Alpha is forced opaque wherever any image contributed. Images smaller
// than the target stop contributing past their own extent.
func blendImages(images []*models.RGBAImage, targetW, targetH int) *models.RGBAImage {
	if len(images) == 1 {
		return images[0]
	}

	sorted := make([]*models.RGBAImage, len(images))
	copy(sorted, images)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ZIndex < sorted[j].ZIndex
	})

	out := models.NewRGBAImage(targetW, targetH)
	for y := 0; y < targetH; y++ {
		for x := 0; x < targetW; x++ {
			do := out.Offset(x, y)
			contributed := false

			for n, img := range sorted {
				if x >= img.Width || y >= img.Height {
					continue
				}
				so := img.Offset(x, y)

				if n == 0 {
					out.Pix[do] = img.Pix[so]
					out.Pix[do+1] = img.Pix[so+1]
					out.Pix[do+2] = img.Pix[so+2]
					contributed = true
					continue
				}

				r, g, b := img.Pix[so], img.Pix[so+1], img.Pix[so+2]
				if r > 0 || g > 0 || b > 0 {
					alpha := img.Opacity
					out.Pix[do] = out.Pix[do]*(1-alpha) + r*alpha
					out.Pix[do+1] = out.Pix[do+1]*(1-alpha) + g*alpha
					out.Pix[do+2] = out.Pix[do+2]*(1-alpha) + b*alpha
					contributed = true
				}
			}

			if contributed {
				out.Pix[do+3] = 255
			}
		}
	}
	return out
}

// GetIntensityValue probes the blended intensity at a voxel coordinate
// of the reference (first) volume. The coordinate is converted to world
// space, then into each volume's own voxel space; the per-volume
// intensities are combined as a weighted mean using the configured
// blend ratios.
func (c *Compositor) GetIntensityValue(i, j, k, time int) (float64, error) {
	if len(c.volumes) == 0 {
		return 0, fmt.Errorf("compositor has no volumes")
	}

	wx, wy, wz := c.volumes[0].VoxelToWorld(float64(i), float64(j), float64(k))

	values := make([]float64, len(c.volumes))
	for n, vol := range c.volumes {
		x, y, z := vol.WorldToVoxel(wx, wy, wz)
		values[n] = vol.IntensityAt(
			int(math.Round(x)),
			int(math.Round(y)),
			int(math.Round(z)),
			time,
		)
	}

	return stat.Mean(values, c.blendRatios), nil
}
