package compositor

import (
	"errors"
	"math"
	"testing"

	"neuroslice/internal/models"
	"neuroslice/pkg/colormap"
	"neuroslice/pkg/volume"
)

// newTestVolume builds a 1-deep scalar volume over the given slice
// values with a parsed color map.
func newTestVolume(t *testing.T, data []float64, width, height int, mapText string) *volume.Volume {
	t.Helper()
	vol, err := volume.New(data, width, height, 1)
	if err != nil {
		t.Fatalf("Failed to create test volume: %v", err)
	}
	if mapText != "" {
		vol.ColorMap = colormap.Parse(mapText)
	}
	return vol
}

// TestSingleImageIdentity verifies that compositing a single volume
// returns its mapped image unchanged, without a blend pass forcing
// alpha.
func TestSingleImageIdentity(t *testing.T) {
	// Constant data gives a degenerate window; every voxel reads the
	// first palette entry (red).
	data := []float64{1, 1, 1, 1}
	vol := newTestVolume(t, data, 2, 2, "1 0 0")

	comp, err := New([]*volume.Volume{vol})
	if err != nil {
		t.Fatalf("Failed to create compositor: %v", err)
	}

	img, err := comp.Render(models.Axial, 0, 0, 1, 1, 0)
	if err != nil {
		t.Fatalf("Failed to render: %v", err)
	}

	if img.Width != 2 || img.Height != 2 {
		t.Fatalf("Expected 2x2 output, got %dx%d", img.Width, img.Height)
	}
	for i := 0; i < 4; i++ {
		o := i * 4
		if img.Pix[o] != 255 || img.Pix[o+1] != 0 || img.Pix[o+2] != 0 || img.Pix[o+3] != 255 {
			t.Errorf("Pixel %d: expected opaque red, got %v", i, img.Pix[o:o+4])
		}
	}
}

// TestBlendSkipBlack verifies that an all-black overlay pixel carries
// no data: the base shows through at its raw value.
func TestBlendSkipBlack(t *testing.T) {
	// Base: constant red, z-index 0.
	base := newTestVolume(t, []float64{1, 1, 1, 1}, 2, 2, "1 0 0")
	base.DisplayZIndex = 0

	// Overlay: black at pixel 0, green elsewhere, z-index 1.
	overlay := newTestVolume(t, []float64{0, 1, 1, 1}, 2, 2, "0 0 0\n0 1 0")
	overlay.DisplayZIndex = 1

	comp, err := New([]*volume.Volume{base, overlay})
	if err != nil {
		t.Fatalf("Failed to create compositor: %v", err)
	}

	img, err := comp.Render(models.Axial, 0, 0, 1, 1, 0)
	if err != nil {
		t.Fatalf("Failed to render: %v", err)
	}

	// Pixel 0: overlay is black there, base red wins.
	if img.Pix[0] != 255 || img.Pix[1] != 0 || img.Pix[2] != 0 {
		t.Errorf("Black overlay pixel should not overwrite the base, got %v", img.Pix[0:4])
	}
	if img.Pix[3] != 255 {
		t.Errorf("Alpha should be forced opaque where the base contributed, got %g", img.Pix[3])
	}

	// Pixel 1: overlay is green with opacity 1 and wins outright.
	if img.Pix[4] != 0 || img.Pix[5] != 255 || img.Pix[6] != 0 {
		t.Errorf("Green overlay pixel should overwrite the base, got %v", img.Pix[4:8])
	}
}

// TestBlendOpacity verifies the target*(1-a) + source*a rule for a
// partially transparent overlay.
func TestBlendOpacity(t *testing.T) {
	base := newTestVolume(t, []float64{1, 1, 1, 1}, 2, 2, "1 0 0")
	base.DisplayZIndex = 0

	overlay := newTestVolume(t, []float64{0, 1, 1, 1}, 2, 2, "0 0 0\n0 0 1")
	overlay.DisplayZIndex = 1
	overlay.Opacity = 0.25

	comp, err := New([]*volume.Volume{base, overlay})
	if err != nil {
		t.Fatalf("Failed to create compositor: %v", err)
	}

	img, err := comp.Render(models.Axial, 0, 0, 1, 1, 0)
	if err != nil {
		t.Fatalf("Failed to render: %v", err)
	}

	// Pixel 1: red*0.75 + blue*0.25.
	if math.Abs(img.Pix[4]-255*0.75) > 1e-9 {
		t.Errorf("Expected red channel %g, got %g", 255*0.75, img.Pix[4])
	}
	if math.Abs(img.Pix[6]-255*0.25) > 1e-9 {
		t.Errorf("Expected blue channel %g, got %g", 255*0.25, img.Pix[6])
	}
}

// TestBlendZOrder verifies that images blend in ascending display
// z-index regardless of volume order.
func TestBlendZOrder(t *testing.T) {
	base := newTestVolume(t, []float64{1, 1, 1, 1}, 2, 2, "0 0 1")
	base.DisplayZIndex = 0

	top := newTestVolume(t, []float64{1, 1, 1, 1}, 2, 2, "1 0 0")
	top.DisplayZIndex = 2

	middle := newTestVolume(t, []float64{1, 1, 1, 1}, 2, 2, "0 1 0")
	middle.DisplayZIndex = 1

	// Deliberately out of z-order.
	comp, err := New([]*volume.Volume{top, base, middle})
	if err != nil {
		t.Fatalf("Failed to create compositor: %v", err)
	}

	img, err := comp.Render(models.Axial, 0, 0, 1, 1, 0)
	if err != nil {
		t.Fatalf("Failed to render: %v", err)
	}

	// The z-index 2 volume paints last with opacity 1: pure red.
	if img.Pix[0] != 255 || img.Pix[1] != 0 || img.Pix[2] != 0 {
		t.Errorf("Expected the top z-index to win, got %v", img.Pix[0:4])
	}
}

// TestZoomResample verifies nearest-neighbor upsampling: each source
// pixel expands to a constant block.
func TestZoomResample(t *testing.T) {
	// 2x2 checker of 0s and 1s mapping to black and white.
	vol := newTestVolume(t, []float64{0, 1, 1, 0}, 2, 2, "0 0 0\n1 1 1")

	comp, err := New([]*volume.Volume{vol})
	if err != nil {
		t.Fatalf("Failed to create compositor: %v", err)
	}

	img, err := comp.Render(models.Axial, 0, 0, 2, 1, 0)
	if err != nil {
		t.Fatalf("Failed to render: %v", err)
	}

	if img.Width != 4 || img.Height != 4 {
		t.Fatalf("Expected 4x4 output, got %dx%d", img.Width, img.Height)
	}

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			sx, sy := x/2, y/2
			want := 0.0
			if (sx+sy)%2 == 1 {
				want = 255
			}
			got := img.Pix[img.Offset(x, y)]
			if got != want {
				t.Errorf("Pixel (%d,%d): expected %g, got %g", x, y, want, got)
			}
		}
	}
}

// TestMaskGatingWithSafety verifies that a risk heat-map layered over a
// safety context keeps only voxels whose anatomical-mask value equals
// its risk ID.
func TestMaskGatingWithSafety(t *testing.T) {
	// Safety base, plain gray.
	base := newTestVolume(t, []float64{1, 1, 1, 1}, 2, 2, "0.2 0.2 0.2")
	base.DisplayZIndex = 0
	base.Safety = true

	// Anatomical mask: risk region 7 covers the left column only. The
	// mask itself renders black so it never overwrites anything.
	anat := newTestVolume(t, []float64{7, 0, 7, 0}, 2, 2, "0 0 0")
	anat.DisplayZIndex = 1
	anat.Anat = true

	// Heat-map: hot everywhere, gated to the mask's region 7.
	heat := newTestVolume(t, []float64{2, 2, 2, 0}, 2, 2, "0 0 0\n1 1 0")
	heat.DisplayZIndex = 2
	heat.RiskHeatMap = true
	heat.RiskID = 7

	comp, err := New([]*volume.Volume{base, anat, heat})
	if err != nil {
		t.Fatalf("Failed to create compositor: %v", err)
	}

	img, err := comp.Render(models.Axial, 0, 0, 1, 1, 0)
	if err != nil {
		t.Fatalf("Failed to render: %v", err)
	}

	// Left column (mask == 7): heat-map yellow shows.
	for _, i := range []int{0, 2} {
		o := i * 4
		if img.Pix[o] != 255 || img.Pix[o+1] != 255 || img.Pix[o+2] != 0 {
			t.Errorf("Pixel %d inside the risk region: expected yellow, got %v", i, img.Pix[o:o+4])
		}
	}

	// Right column (mask != 7): heat-map zeroed to black, base gray
	// shows through.
	for _, i := range []int{1, 3} {
		o := i * 4
		if img.Pix[o] != 51 || img.Pix[o+1] != 51 || img.Pix[o+2] != 51 {
			t.Errorf("Pixel %d outside the risk region: expected base gray, got %v", i, img.Pix[o:o+4])
		}
	}
}

// TestMaskGatingWithRiskMask verifies gating by the dedicated risk-mask
// slice when no safety context participates.
func TestMaskGatingWithRiskMask(t *testing.T) {
	base := newTestVolume(t, []float64{1, 1, 1, 1}, 2, 2, "0.2 0.2 0.2")
	base.DisplayZIndex = 0

	mask := newTestVolume(t, []float64{3, 0, 0, 3}, 2, 2, "0 0 0")
	mask.DisplayZIndex = 1
	mask.RiskMask = true

	heat := newTestVolume(t, []float64{2, 2, 2, 0}, 2, 2, "0 0 0\n1 1 0")
	heat.DisplayZIndex = 2
	heat.RiskHeatMap = true
	heat.RiskID = 3

	comp, err := New([]*volume.Volume{base, mask, heat})
	if err != nil {
		t.Fatalf("Failed to create compositor: %v", err)
	}

	img, err := comp.Render(models.Axial, 0, 0, 1, 1, 0)
	if err != nil {
		t.Fatalf("Failed to render: %v", err)
	}

	// Pixel 0 is inside the mask: yellow. Pixel 1 is outside: gray.
	if img.Pix[0] != 255 || img.Pix[1] != 255 {
		t.Errorf("Pixel 0 inside the risk mask: expected yellow, got %v", img.Pix[0:4])
	}
	if img.Pix[4] != 51 || img.Pix[5] != 51 {
		t.Errorf("Pixel 1 outside the risk mask: expected base gray, got %v", img.Pix[4:8])
	}
}

// TestMissingColorMap verifies that rendering a scalar volume without a
// color map fails loudly instead of producing a blank layer.
func TestMissingColorMap(t *testing.T) {
	vol := newTestVolume(t, []float64{1, 2, 3, 4}, 2, 2, "")

	comp, err := New([]*volume.Volume{vol})
	if err != nil {
		t.Fatalf("Failed to create compositor: %v", err)
	}

	_, err = comp.Render(models.Axial, 0, 0, 1, 1, 0)
	if !errors.Is(err, ErrMissingColorMap) {
		t.Errorf("Expected ErrMissingColorMap, got %v", err)
	}
}

// TestPreColoredPassthrough verifies that packed RGB volumes bypass the
// color map entirely.
func TestPreColoredPassthrough(t *testing.T) {
	rgb := make([]uint8, 2*2*1*3)
	rgb[0], rgb[1], rgb[2] = 10, 20, 30

	vol, err := volume.NewPreColored(rgb, 2, 2, 1)
	if err != nil {
		t.Fatalf("Failed to create pre-colored volume: %v", err)
	}

	comp, err := New([]*volume.Volume{vol})
	if err != nil {
		t.Fatalf("Failed to create compositor: %v", err)
	}

	img, err := comp.Render(models.Axial, 0, 0, 1, 1, 0)
	if err != nil {
		t.Fatalf("Failed to render: %v", err)
	}
	if img.Pix[0] != 10 || img.Pix[1] != 20 || img.Pix[2] != 30 || img.Pix[3] != 255 {
		t.Errorf("Expected passthrough RGB (10,20,30,255), got %v", img.Pix[0:4])
	}
}

// TestVolumeBeyondExtent verifies that a volume whose extent does not
// reach the slice position simply stops contributing.
func TestVolumeBeyondExtent(t *testing.T) {
	deep, err := volume.New(make([]float64, 2*2*3), 2, 2, 3)
	if err != nil {
		t.Fatalf("Failed to create volume: %v", err)
	}
	deep.ColorMap = colormap.Parse("1 0 0")

	shallow := newTestVolume(t, []float64{1, 1, 1, 1}, 2, 2, "0 1 0")
	shallow.DisplayZIndex = 1

	comp, err := New([]*volume.Volume{deep, shallow})
	if err != nil {
		t.Fatalf("Failed to create compositor: %v", err)
	}

	// Position 2 exists only in the deep volume.
	img, err := comp.Render(models.Axial, 2, 0, 1, 1, 0)
	if err != nil {
		t.Fatalf("Failed to render: %v", err)
	}
	if img.Width != 2 || img.Height != 2 {
		t.Errorf("Expected 2x2 output, got %dx%d", img.Width, img.Height)
	}
}

// TestGetIntensityValue verifies the weighted-mean probe across
// co-registered volumes.
func TestGetIntensityValue(t *testing.T) {
	a := newTestVolume(t, []float64{2, 2, 2, 2}, 2, 2, "1 0 0")
	b := newTestVolume(t, []float64{6, 6, 6, 6}, 2, 2, "0 1 0")

	comp, err := New([]*volume.Volume{a, b})
	if err != nil {
		t.Fatalf("Failed to create compositor: %v", err)
	}

	// Uniform ratios give the plain mean.
	got, err := comp.GetIntensityValue(0, 0, 0, 0)
	if err != nil {
		t.Fatalf("Failed to probe intensity: %v", err)
	}
	if math.Abs(got-4) > 1e-12 {
		t.Errorf("Expected uniform mean 4, got %g", got)
	}

	// Skewed ratios weight the second volume fully.
	if err := comp.SetBlendRatios([]float64{0, 1}); err != nil {
		t.Fatalf("Failed to set blend ratios: %v", err)
	}
	got, err = comp.GetIntensityValue(0, 0, 0, 0)
	if err != nil {
		t.Fatalf("Failed to probe intensity: %v", err)
	}
	if math.Abs(got-6) > 1e-12 {
		t.Errorf("Expected weighted value 6, got %g", got)
	}

	if err := comp.SetBlendRatios([]float64{1}); err == nil {
		t.Error("Expected error for mismatched ratio count, got nil")
	}
}
