package config

import (
	"fmt"
	"strings"
)

// WorldGen selects where terrain comes from.
type WorldGen struct {
	// Source is "generated" or "anvil".
	Source string `yaml:"source"`
	// Path is the region directory for the anvil source.
	Path     string `yaml:"path,omitempty"`
	Seed     int64  `yaml:"seed"`
	SeaLevel int    `yaml:"sea_level"`
	Caves    bool   `yaml:"caves"`
}

func defaultWorldGen() WorldGen {
	return WorldGen{
		Source:   "generated",
		Seed:     1,
		SeaLevel: 63, // Standard sea level
		Caves:    true,
	}
}

// Normalize fills unset values.
func (w *WorldGen) Normalize() {
	w.Source = strings.ToLower(strings.TrimSpace(w.Source))
	if w.Source == "" {
		w.Source = "generated"
	}
}

// Validate checks the source settings.
func (w WorldGen) Validate() error {
	switch w.Source {
	case "generated":
		return nil
	case "anvil":
		if strings.TrimSpace(w.Path) == "" {
			return fmt.Errorf("world.path is required for the anvil source")
		}
		return nil
	default:
		return fmt.Errorf("unknown world.source %q", w.Source)
	}
}
