package models

// Axis identifies an anatomical slicing plane through a volume.
type Axis int

const (
	// Sagittal slices run parallel to the YZ plane (left/right position fixed).
	Sagittal Axis = iota

	// Coronal slices run parallel to the XZ plane (front/back position fixed).
	Coronal

	// Axial slices run parallel to the XY plane (top/bottom position fixed).
	Axial
)

// String returns the conventional lowercase name of the axis.
func (a Axis) String() string {
	switch a {
	case Sagittal:
		return "sagittal"
	case Coronal:
		return "coronal"
	case Axial:
		return "axial"
	default:
		return "unknown"
	}
}

// ParseAxis converts an axis name ("sagittal"/"x", "coronal"/"y",
// "axial"/"z") to an Axis value. The second return is false when the
// name is not recognized.
func ParseAxis(name string) (Axis, bool) {
	switch name {
	case "sagittal", "x", "X":
		return Sagittal, true
	case "coronal", "y", "Y":
		return Coronal, true
	case "axial", "z", "Z":
		return Axial, true
	default:
		return Axial, false
	}
}

// SliceData is a single 2D slice extracted from a volume along one axis.
type SliceData struct {
	// Width and Height are the slice dimensions in voxels.
	Width  int
	Height int

	// Data holds one scalar intensity per voxel in row-major order
	// (x fastest, then y). Nil when the slice is pre-colored.
	Data []float64

	// RGB holds packed 3-byte RGB pixels for pre-colored volumes.
	// Nil for scalar volumes.
	RGB []uint8

	// ZIndex is the compositing order key inherited from the volume.
	// Lower values are painted first.
	ZIndex int
}

// RGBAImage is a flat RGBA pixel buffer with compositing metadata.
// Channel values are in the 0-255 range but stored as float64 so that
// blending arithmetic does not round until final output.
type RGBAImage struct {
	// Width and Height are the image dimensions in pixels.
	Width  int
	Height int

	// Pix is the flat pixel buffer, 4 channels (R,G,B,A) per pixel,
	// row-major. Length is Width*Height*4.
	Pix []float64

	// ZIndex is the compositing order key. Lower values are painted first.
	ZIndex int

	// Opacity is the blend weight in [0,1] applied when this image is
	// composited over others.
	Opacity float64
}

// NewRGBAImage allocates a zeroed image of the given dimensions with
// opacity 1.
func NewRGBAImage(width, height int) *RGBAImage {
	return &RGBAImage{
		Width:   width,
		Height:  height,
		Pix:     make([]float64, width*height*4),
		Opacity: 1,
	}
}

// Offset returns the channel offset of pixel (x, y) into Pix.
// The caller is responsible for bounds.
func (im *RGBAImage) Offset(x, y int) int {
	return (y*im.Width + x) * 4
}
