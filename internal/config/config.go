// Package config handles tool configuration loading and management.
package config

import (
	"errors"
	"fmt"
)

// ErrInvalidTessellation is returned when the patch tessellation level is below 1.
var ErrInvalidTessellation = errors.New("tessellation level must be at least 1")

// Config holds all tool settings.
type Config struct {
	Map     MapConfig     `yaml:"map"`
	Assets  AssetsConfig  `yaml:"assets"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
}

// MapConfig holds mesh building settings.
type MapConfig struct {
	Tessellation   int  `yaml:"tessellation"`    // Subdivisions per Bezier patch edge
	ApplyLightmaps bool `yaml:"apply_lightmaps"` // Attach lightmaps to materials
	UseTextures    bool `yaml:"use_textures"`    // Resolve textures; otherwise fallback material everywhere
	Workers        int  `yaml:"workers"`         // Parallel face builders, 0 = GOMAXPROCS
}

// AssetsConfig holds texture search locations.
type AssetsConfig struct {
	PK3Paths    []string `yaml:"pk3_paths"`    // pk3 archives, later entries win
	TextureDirs []string `yaml:"texture_dirs"` // Loose directories, searched after archives
}

// OutputConfig holds export settings.
type OutputConfig struct {
	Dir           string  `yaml:"dir"`
	UnitScale     float32 `yaml:"unit_scale"`     // Map units to output units
	Center        bool    `yaml:"center"`         // Recentre exported geometry on the origin
	WriteTextures bool    `yaml:"write_textures"` // Export resolved textures as WebP
	LightmapScale int     `yaml:"lightmap_scale"` // Upscale factor for exported lightmaps
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Map: MapConfig{
			Tessellation:   5,
			ApplyLightmaps: false,
			UseTextures:    true,
			Workers:        0,
		},
		Output: OutputConfig{
			Dir:           "out",
			UnitScale:     1,
			WriteTextures: true,
			LightmapScale: 1,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks settings that would make the build pipeline misbehave.
func (c *Config) Validate() error {
	if c.Map.Tessellation < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidTessellation, c.Map.Tessellation)
	}
	if c.Map.Workers < 0 {
		return fmt.Errorf("workers must not be negative: got %d", c.Map.Workers)
	}
	if c.Output.UnitScale <= 0 {
		return fmt.Errorf("unit_scale must be positive: got %g", c.Output.UnitScale)
	}
	if c.Output.LightmapScale < 1 {
		return fmt.Errorf("lightmap_scale must be at least 1: got %d", c.Output.LightmapScale)
	}
	return nil
}
