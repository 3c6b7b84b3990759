package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"log"
	"math"
	"os"
	"path/filepath"

	"neuroslice/internal/models"
	"neuroslice/pkg/colormap"
	"neuroslice/pkg/compositor"
	"neuroslice/pkg/config"
	"neuroslice/pkg/legend"
	"neuroslice/pkg/volume"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "scene.yaml", "Scene configuration file (YAML)")
	outputDir := flag.String("output", "rendered_slices", "Directory to save rendered slices")
	slicePos := flag.Int("slice", -1, "Slice position to render (-1: render the full sequence)")
	timeFrame := flag.Int("time", 0, "Time frame to render for 4D volumes")
	renderLegend := flag.Bool("legend", true, "Render a color legend strip per volume")
	writeDefault := flag.Bool("write-default-config", false, "Write a default scene configuration and exit")
	flag.Parse()

	if *writeDefault {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default scene configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load scene configuration: %v", err)
	}
	if len(cfg.Volumes) == 0 {
		log.Fatalf("Scene configuration lists no volumes")
	}

	axis, ok := models.ParseAxis(cfg.Render.Axis)
	if !ok {
		log.Fatalf("Invalid axis in configuration: %q", cfg.Render.Axis)
	}

	fmt.Println("================================")
	fmt.Println("NEUROSLICE MULTI-VOLUME SLICE RENDERER")
	fmt.Println("================================")

	// Load the participating volumes
	volumes := make([]*volume.Volume, 0, len(cfg.Volumes))
	for i, vc := range cfg.Volumes {
		vol, err := loadVolume(vc)
		if err != nil {
			log.Fatalf("Failed to load volume %d (%s): %v", i, vc.DataFile, err)
		}
		volumes = append(volumes, vol)
		fmt.Printf("Loaded volume %d: %dx%dx%d, window [%g, %g], z-index %d\n",
			i, vol.Width, vol.Height, vol.Depth, vol.IntensityMin, vol.IntensityMax, vol.DisplayZIndex)
	}

	comp, err := compositor.New(volumes)
	if err != nil {
		log.Fatalf("Failed to create compositor: %v", err)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	// Determine the slice range along the chosen axis
	maxPos := sliceExtent(volumes[0], axis)
	start, end := 0, maxPos
	if *slicePos >= 0 {
		start, end = *slicePos, *slicePos+1
	}

	fmt.Printf("Rendering %s slices %d..%d...\n", axis, start, end-1)
	for pos := start; pos < end; pos++ {
		img, err := comp.Render(axis, pos, *timeFrame, cfg.Render.Zoom, cfg.Render.Contrast, cfg.Render.Brightness)
		if err != nil {
			log.Fatalf("Failed to render %s slice %d: %v", axis, pos, err)
		}

		filename := filepath.Join(*outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := saveJPEG(img, filename); err != nil {
			log.Fatalf("Failed to save %s: %v", filename, err)
		}
	}
	fmt.Printf("Rendered slices saved to: %s\n", *outputDir)

	// Render one legend per scalar volume
	if *renderLegend {
		variant, ok := legend.ParseVariant(cfg.Legend.Variant)
		if !ok {
			log.Fatalf("Invalid legend variant in configuration: %q", cfg.Legend.Variant)
		}

		for i, vol := range volumes {
			if vol.PreColored() {
				continue
			}
			r := &legend.Renderer{
				Table:   vol.ColorMap,
				Variant: variant,
				Width:   cfg.Legend.Width,
			}
			img, err := r.Render(vol.IntensityMin, vol.IntensityMax)
			if err != nil {
				log.Fatalf("Failed to render legend for volume %d: %v", i, err)
			}

			filename := filepath.Join(*outputDir, fmt.Sprintf("legend_%02d.png", i))
			if err := savePNG(img, filename); err != nil {
				log.Fatalf("Failed to save %s: %v", filename, err)
			}
		}
		fmt.Println("Legend strips saved alongside the slices")
	}
}

// loadVolume reads a raw voxel file and builds the configured volume.
func loadVolume(vc config.VolumeConfig) (*volume.Volume, error) {
	data, err := readRawFloats(vc.DataFile)
	if err != nil {
		return nil, err
	}

	vol, err := volume.New(data, vc.Width, vc.Height, vc.Depth)
	if err != nil {
		return nil, err
	}

	if vc.ColorMapFile != "" {
		text, err := os.ReadFile(vc.ColorMapFile)
		if err != nil {
			return nil, fmt.Errorf("error reading color map: %w", err)
		}
		vol.ColorMap = colormap.Parse(string(text))
	}

	if vc.IntensityMin != nil && vc.IntensityMax != nil {
		vol.IntensityMin = *vc.IntensityMin
		vol.IntensityMax = *vc.IntensityMax
	}

	if vc.Opacity > 0 {
		vol.Opacity = vc.Opacity
	}
	vol.DisplayZIndex = vc.ZIndex
	vol.RiskHeatMap = vc.RiskHeatMap
	vol.Safety = vc.Safety
	vol.Anat = vc.Anat
	vol.RiskMask = vc.RiskMask
	vol.RiskID = vc.RiskID

	return vol, nil
}

// readRawFloats reads a little-endian float32 voxel file.
func readRawFloats(path string) ([]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading voxel file: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("voxel file length %d is not a multiple of 4", len(raw))
	}

	data := make([]float64, len(raw)/4)
	for i := range data {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		data[i] = float64(math.Float32frombits(bits))
	}
	return data, nil
}

// sliceExtent returns the number of slices along an axis.
func sliceExtent(vol *volume.Volume, axis models.Axis) int {
	switch axis {
	case models.Sagittal:
		return vol.Width
	case models.Coronal:
		return vol.Height
	default:
		return vol.Depth
	}
}

// toImage converts a composite pixel buffer to a stdlib image.
func toImage(im *models.RGBAImage) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, im.Width, im.Height))
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			o := im.Offset(x, y)
			out.SetRGBA(x, y, color.RGBA{
				R: clampByte(im.Pix[o]),
				G: clampByte(im.Pix[o+1]),
				B: clampByte(im.Pix[o+2]),
				A: clampByte(im.Pix[o+3]),
			})
		}
	}
	return out
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// saveJPEG writes a composite image as JPEG.
func saveJPEG(im *models.RGBAImage, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, toImage(im), &jpeg.Options{Quality: 90})
}

// savePNG writes a legend image as PNG.
func savePNG(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}
