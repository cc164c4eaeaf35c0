// Package config loads and saves the renderer's external parameter
// surface as TOML, the way noisetorch persists its settings file.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"volray/internal/raycast"
)

// MipMode mirrors raycast.MipMode but gives the TOML file readable enum
// names instead of raw integers.
type MipMode string

const (
	MipNone MipMode = "none"
	MipMax  MipMode = "max"
	MipMin  MipMode = "min"
)

// DepthPrecision mirrors raycast.DepthPrecision for the same reason.
type DepthPrecision string

const (
	DepthU8  DepthPrecision = "u8"
	DepthU16 DepthPrecision = "u16"
	DepthU32 DepthPrecision = "u32"
)

// RenderConfig is the on-disk form of the renderer's parameter surface,
// plus the depth/ROI/clip fields that round out the render
// configuration.
type RenderConfig struct {
	Interpolation  bool           `toml:"slice_interpolation"`
	Lighting       bool           `toml:"lighting"`
	OpacityCorrect bool           `toml:"opacity_correction"`
	TerminateEarly bool           `toml:"terminate_early"`
	MipMode        MipMode        `toml:"mip_mode"`
	ROIUsed        bool           `toml:"roi_used"`
	SphericalROI   bool           `toml:"spherical_roi"`
	ClipPlaneOn    bool           `toml:"clip_plane"`
	SpaceSkipping  bool           `toml:"space_skipping"`
	Jittering      bool           `toml:"jittering"`
	Quality        float32        `toml:"quality"`
	WantDepth      bool           `toml:"depth_enabled"`
	DepthPrecision DepthPrecision `toml:"depth_precision"`

	ROICenter  [3]float32 `toml:"roi_center"`
	ROISize    [3]float32 `toml:"roi_size"`
	ClipNormal [3]float32 `toml:"clip_normal"`
	ClipPoint  [3]float32 `toml:"clip_point"`

	ProbeColor [4]float32 `toml:"probe_color"`
	ClipColor  [4]float32 `toml:"clip_color"`
}

// Default returns the configuration a freshly constructed renderer starts
// with: compositing-mode front-to-back, no ROI, quality 1.0.
func Default() RenderConfig {
	return RenderConfig{
		Interpolation:  true,
		Lighting:       true,
		OpacityCorrect: true,
		TerminateEarly: true,
		MipMode:        MipNone,
		Quality:        1.0,
		DepthPrecision: DepthU8,
	}
}

// ToKernelConfig converts the persisted form into the Config the ray
// kernel (GPU and CPU reference) actually consumes.
func (c RenderConfig) ToKernelConfig() raycast.Config {
	var mip raycast.MipMode
	switch c.MipMode {
	case MipMax:
		mip = raycast.MipMax
	case MipMin:
		mip = raycast.MipMin
	default:
		mip = raycast.MipNone
	}

	var depth raycast.DepthPrecision
	switch c.DepthPrecision {
	case DepthU16:
		depth = raycast.DepthU16
	case DepthU32:
		depth = raycast.DepthU32
	default:
		depth = raycast.DepthU8
	}

	return raycast.Config{
		Interpolation:  c.Interpolation,
		Lighting:       c.Lighting,
		OpacityCorrect: c.OpacityCorrect,
		TerminateEarly: c.TerminateEarly && mip == raycast.MipNone,
		MipMode:        mip,
		ROIUsed:        c.ROIUsed,
		SphericalROI:   c.SphericalROI,
		ClipPlaneOn:    c.ClipPlaneOn,
		SpaceSkipping:  c.SpaceSkipping,
		Jittering:      c.Jittering,
		Quality:        c.Quality,
		DepthPrecision: depth,
	}
}

// Load reads a RenderConfig from a TOML file on disk.
func Load(path string) (RenderConfig, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return RenderConfig{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as TOML, truncating any existing file.
func Save(path string, cfg RenderConfig) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}
	return nil
}
