// Package config handles settings loading for the feature extraction
// pipeline.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Settings holds the tunable parameters of the extraction pipeline.
// A zero value in any field is replaced by the matching Default() value
// after loading, so writing an explicit zero in the file is the same as
// leaving the field out.
type Settings struct {
	// GridCellSize is the spatial index bucket size in pixels.
	GridCellSize float64 `yaml:"grid_cell_size"`
	// NeighborRadius is the hard radius for neighbor counting, in pixels.
	NeighborRadius float64 `yaml:"neighbor_radius"`
	// Workers bounds per-region extraction parallelism; 0 means NumCPU.
	Workers int `yaml:"workers"`

	Stain  StainSettings  `yaml:"stain"`
	Vessel VesselSettings `yaml:"vessel"`
}

// StainSettings optionally overrides the reference stain vectors.
// A zero value keeps the standard H&E matrix.
type StainSettings struct {
	Hematoxylin [3]float64 `yaml:"hematoxylin"`
	Eosin       [3]float64 `yaml:"eosin"`
}

// VesselSettings configures the threshold-based vessel segmentation stage.
// Zero values take the defaults; an unfiltered run needs explicit wide
// bounds, not zeros.
type VesselSettings struct {
	// Threshold selects candidate lumen pixels brighter than this 8-bit value.
	Threshold int `yaml:"threshold"`
	// MinArea and MaxArea filter detected particles, in pixels.
	MinArea float64 `yaml:"min_area"`
	MaxArea float64 `yaml:"max_area"`
}

// Default returns the standard settings matching the original pipeline's
// constants.
func Default() *Settings {
	return &Settings{
		GridCellSize:   100,
		NeighborRadius: 50,
		Workers:        runtime.NumCPU(),
		Vessel: VesselSettings{
			Threshold: 220,
			MinArea:   50,
			MaxArea:   10000,
		},
	}
}

// Load reads settings from a YAML file. A missing file yields defaults;
// fields left out of the file, or set to zero, keep their default values.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would break the spatial index or the
// worker pool.
func (s *Settings) Validate() error {
	if s.GridCellSize <= 0 {
		return fmt.Errorf("grid cell size must be positive, got %v", s.GridCellSize)
	}
	if s.NeighborRadius <= 0 {
		return fmt.Errorf("neighbor radius must be positive, got %v", s.NeighborRadius)
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", s.Workers)
	}
	if s.Vessel.Threshold < 0 || s.Vessel.Threshold > 255 {
		return fmt.Errorf("vessel threshold must be in [0,255], got %d", s.Vessel.Threshold)
	}
	return nil
}

func applyDefaults(cfg *Settings) {
	def := Default()
	if cfg.GridCellSize == 0 {
		cfg.GridCellSize = def.GridCellSize
	}
	if cfg.NeighborRadius == 0 {
		cfg.NeighborRadius = def.NeighborRadius
	}
	if cfg.Workers == 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Vessel.Threshold == 0 {
		cfg.Vessel.Threshold = def.Vessel.Threshold
	}
	if cfg.Vessel.MinArea == 0 {
		cfg.Vessel.MinArea = def.Vessel.MinArea
	}
	if cfg.Vessel.MaxArea == 0 {
		cfg.Vessel.MaxArea = def.Vessel.MaxArea
	}
}

// HasStainOverride reports whether custom stain vectors were supplied.
func (s *Settings) HasStainOverride() bool {
	zero := [3]float64{}
	return s.Stain.Hematoxylin != zero || s.Stain.Eosin != zero
}
