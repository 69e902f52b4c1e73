package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of the terrain pipeline.
type Config struct {
	// Workers is the build pool size; 0 picks one less than the CPU count.
	Workers int `yaml:"workers"`
	// RenderDistance is the view radius in sections.
	RenderDistance int `yaml:"render_distance"`
	// MinSectionY and MaxSectionY bound the world vertically, in sections.
	MinSectionY int `yaml:"min_section_y"`
	MaxSectionY int `yaml:"max_section_y"`
	// MaxRetries is the number of consecutive failed builds after which a
	// section is only retried after a growing backoff.
	MaxRetries int `yaml:"max_retries"`
	// FrameSubmitBudget caps background submissions per frame. Important
	// sections are always submitted.
	FrameSubmitBudget int `yaml:"frame_submit_budget"`
	// NearDistance is the radius in sections around the camera whose
	// rebuilds are important; 0 leaves only edits important.
	NearDistance int `yaml:"near_distance"`
	// LightMode is "flat" or "smooth".
	LightMode string `yaml:"light_mode"`
	// SortDistance is the radius in sections within which translucent
	// geometry is re-sorted when the camera moves.
	SortDistance int `yaml:"sort_distance"`
	// StrictGuard turns GPU access outside the render guard into a panic.
	StrictGuard bool `yaml:"strict_guard"`
	// Flawless blocks each frame until every pending section is built.
	Flawless bool `yaml:"flawless"`

	World WorldGen `yaml:"world"`
}

// Load reads a YAML config. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		RenderDistance:    12,
		MinSectionY:       -4,
		MaxSectionY:       19,
		MaxRetries:        3,
		FrameSubmitBudget: 64,
		NearDistance:      2,
		LightMode:         "smooth",
		SortDistance:      4,
		World:             defaultWorldGen(),
	}
}

// Normalize fills unset values and clamps out-of-range ones.
func (c *Config) Normalize() {
	d := Defaults()
	if c.Workers < 0 {
		c.Workers = 0
	}
	c.RenderDistance = clampRenderDistance(c.RenderDistance)
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.FrameSubmitBudget <= 0 {
		c.FrameSubmitBudget = d.FrameSubmitBudget
	}
	c.LightMode = strings.ToLower(strings.TrimSpace(c.LightMode))
	if c.LightMode == "" {
		c.LightMode = d.LightMode
	}
	if c.SortDistance < 0 {
		c.SortDistance = 0
	}
	if c.NearDistance < 0 {
		c.NearDistance = 0
	}
	c.World.Normalize()
}

// Validate reports settings that cannot be corrected by Normalize.
func (c Config) Validate() error {
	if c.MinSectionY > c.MaxSectionY {
		return fmt.Errorf("min_section_y %d above max_section_y %d", c.MinSectionY, c.MaxSectionY)
	}
	if c.NearDistance > c.RenderDistance {
		return fmt.Errorf("near_distance %d beyond render_distance %d", c.NearDistance, c.RenderDistance)
	}
	switch c.LightMode {
	case "flat", "smooth":
	default:
		return fmt.Errorf("unknown light_mode %q", c.LightMode)
	}
	return c.World.Validate()
}

// Smooth reports whether smooth lighting is selected.
func (c Config) Smooth() bool {
	return c.LightMode == "smooth"
}

// Marshal encodes the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
