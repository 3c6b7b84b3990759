// Package config provides scene configuration loading for neuroslice.
// It handles loading configuration from YAML files and provides default
// values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// VolumeConfig describes one volume participating in the scene.
type VolumeConfig struct {
	// DataFile is the raw voxel file (little-endian float32, row-major).
	DataFile string `yaml:"dataFile"`

	// Width, Height, Depth are the spatial dimensions in voxels.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	Depth  int `yaml:"depth"`

	// Frames is the number of time frames; 0 or 1 means a 3D volume.
	Frames int `yaml:"frames"`

	// ColorMapFile is the color-map text file for this volume.
	ColorMapFile string `yaml:"colorMapFile"`

	// IntensityMin and IntensityMax set the display window explicitly.
	// When both are nil the window is computed from the data.
	IntensityMin *float64 `yaml:"intensityMin"`
	IntensityMax *float64 `yaml:"intensityMax"`

	// Opacity is the blend weight in [0,1] during compositing.
	Opacity float64 `yaml:"opacity"`

	// ZIndex is the compositing order key; lower paints first.
	ZIndex int `yaml:"zIndex"`

	// Role flags for risk heat-map gating.
	RiskHeatMap bool    `yaml:"riskHeatMap"`
	Safety      bool    `yaml:"safety"`
	Anat        bool    `yaml:"anat"`
	RiskMask    bool    `yaml:"riskMask"`
	RiskID      float64 `yaml:"riskId"`
}

// Config represents the scene configuration loaded from YAML.
type Config struct {
	// Render parameters for the composite slice images
	Render struct {
		// Axis is the slicing plane: sagittal, coronal or axial
		Axis string `yaml:"axis"`

		// Zoom scales the output relative to the first volume's slice size
		Zoom float64 `yaml:"zoom"`

		// Contrast and Brightness adjust all mapped colors
		Contrast   float64 `yaml:"contrast"`
		Brightness float64 `yaml:"brightness"`
	} `yaml:"render"`

	// Legend parameters for the color-scale strip
	Legend struct {
		// Width is the legend width in pixels
		Width int `yaml:"width"`

		// Variant is the label format: linear, symmetric, percent or log
		Variant string `yaml:"variant"`
	} `yaml:"legend"`

	// Volumes lists the participating volumes in configured order
	Volumes []VolumeConfig `yaml:"volumes"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Render.Axis = "axial"
	cfg.Render.Zoom = 1.0
	cfg.Render.Contrast = 1.0
	cfg.Render.Brightness = 0.0

	cfg.Legend.Width = 256
	cfg.Legend.Variant = "linear"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
