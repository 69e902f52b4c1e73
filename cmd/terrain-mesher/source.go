package main

import (
	"fmt"
	"log"

	"github.com/go-gl/mathgl/mgl64"

	"terrain-mesher/internal/anvil"
	"terrain-mesher/internal/config"
	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/section"
	"terrain-mesher/internal/world"
)

// terrain is the column source selected by the config together with a
// camera start position.
type terrain struct {
	src   world.ColumnSource
	spawn mgl64.Vec3
	close func() error
}

func openTerrain(cfg config.Config, reg *registry.Registry) (*terrain, error) {
	switch cfg.World.Source {
	case "anvil":
		l, err := anvil.Open(cfg.World.Path, reg)
		if err != nil {
			return nil, err
		}
		cols, err := l.Available()
		if err != nil {
			l.Close()
			return nil, err
		}
		t := &terrain{src: l, spawn: mgl64.Vec3{8.5, 100, 8.5}, close: func() error {
			if missing := l.Missing(); len(missing) > 0 {
				log.Printf("[anvil] %d block types replaced: %v", len(missing), missing)
			}
			return l.Close()
		}}
		if len(cols) > 0 {
			c := cols[len(cols)/2]
			t.spawn = mgl64.Vec3{float64(c.X*section.Size) + 8.5, 100, float64(c.Z*section.Size) + 8.5}
		}
		log.Printf("[anvil] %s: %d columns", cfg.World.Path, len(cols))
		return t, nil
	case "generated":
		gen := world.NewGenerator(reg, cfg.World)
		y := max(gen.HeightAt(0, 0), cfg.World.SeaLevel) + 4
		return &terrain{src: gen, spawn: mgl64.Vec3{0.5, float64(y), 0.5}, close: func() error { return nil }}, nil
	default:
		return nil, fmt.Errorf("unknown world source %q", cfg.World.Source)
	}
}
