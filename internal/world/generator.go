package world

import (
	"math"

	"terrain-mesher/internal/config"
	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/section"
)

// ColumnSource fills columns, including their light. A column left
// untouched is void.
type ColumnSource interface {
	Populate(col *Column) error
}

// TerrainGenerator is a procedural ColumnSource.
type TerrainGenerator interface {
	ColumnSource
	// HeightAt returns the surface block Y at world X, Z.
	HeightAt(x, z int) int
}

type palette struct {
	bedrock, stone, dirt, grass, sand, gravel, water, snow, glowstone, leaves, log registry.State
}

func lookupPalette(reg *registry.Registry) palette {
	get := func(name string) registry.State {
		st, _ := reg.Lookup(name)
		return st
	}
	return palette{
		bedrock:   get("bedrock"),
		stone:     get("stone"),
		dirt:      get("dirt"),
		grass:     get("grass_block"),
		sand:      get("sand"),
		gravel:    get("gravel"),
		water:     get("water"),
		snow:      get("snow_block"),
		glowstone: get("glowstone"),
		leaves:    get("oak_leaves"),
		log:       get("oak_log"),
	}
}

// Generator produces rolling noise terrain with sea, beaches, snow caps,
// caves and the odd tree.
type Generator struct {
	height   valueNoise
	caves    valueNoise
	scale    float64
	base     float64
	amp      float64
	seaLevel int
	carve    bool
	pal      palette
}

// NewGenerator creates a generator from world settings.
func NewGenerator(reg *registry.Registry, cfg config.WorldGen) *Generator {
	return &Generator{
		height:   newValueNoise(cfg.Seed, 4),
		caves:    newValueNoise(cfg.Seed^0x5DEECE66D, 3),
		scale:    1.0 / 96.0,
		base:     float64(cfg.SeaLevel) - 16,
		amp:      64,
		seaLevel: cfg.SeaLevel,
		carve:    cfg.Caves,
		pal:      lookupPalette(reg),
	}
}

func (g *Generator) HeightAt(x, z int) int {
	n := g.height.At2(float64(x)*g.scale, float64(z)*g.scale)
	return int(math.Floor(g.base + n*g.amp))
}

func (g *Generator) cave(x, y, z int) bool {
	if !g.carve {
		return false
	}
	const s = 1.0 / 24.0
	return g.caves.At3(float64(x)*s, float64(y)*s*1.5, float64(z)*s) > 0.72
}

// hash01 is a per-block random number in [0,1).
func (g *Generator) hash01(x, z int) float64 {
	return lattice(int64(x), 7, int64(z), g.height.seed)
}

func (g *Generator) Populate(col *Column) error {
	ox, oz := col.Pos.X*section.Size, col.Pos.Z*section.Size
	minY, maxY := col.MinBlockY(), col.MaxBlockY()
	p := g.pal

	for lx := 0; lx < section.Size; lx++ {
		for lz := 0; lz < section.Size; lz++ {
			wx, wz := ox+lx, oz+lz
			h := min(g.HeightAt(wx, wz), maxY)
			beach := h <= g.seaLevel+1 && h >= g.seaLevel-3

			for y := minY; y <= h; y++ {
				var st registry.State
				switch {
				case y == minY:
					st = p.bedrock
				case y == h && beach:
					st = p.sand
				case y == h && h > g.seaLevel+48:
					st = p.snow
				case y == h && h >= g.seaLevel:
					st = p.grass
				case y == h:
					st = p.gravel
				case y > h-4 && beach:
					st = p.sand
				case y > h-4:
					st = p.dirt
				default:
					st = p.stone
				}
				if y > minY+4 && y < h-1 && g.cave(wx, y, wz) {
					st = registry.Air
					if g.hash01(wx*31+y, wz) < 0.002 {
						st = p.glowstone
					}
				}
				col.Set(lx, y, lz, st)
			}
			for y := h + 1; y <= g.seaLevel && y <= maxY; y++ {
				col.Set(lx, y, lz, p.water)
			}
			if h > g.seaLevel+1 && h < g.seaLevel+40 && lx >= 2 && lx < 14 && lz >= 2 && lz < 14 && g.hash01(wx, wz) < 0.006 {
				g.tree(col, lx, h+1, lz)
			}
		}
	}
	col.Relight()
	return nil
}

func (g *Generator) tree(col *Column, x, y, z int) {
	const trunk = 5
	for dy := -2; dy <= 1; dy++ {
		r := 2
		if dy >= 0 {
			r = 1
		}
		for dx := -r; dx <= r; dx++ {
			for dz := -r; dz <= r; dz++ {
				if col.Get(x+dx, y+trunk+dy, z+dz) == registry.Air {
					col.Set(x+dx, y+trunk+dy, z+dz, g.pal.leaves)
				}
			}
		}
	}
	for dy := 0; dy < trunk; dy++ {
		col.Set(x, y+dy, z, g.pal.log)
	}
}

// FlatGenerator fills every column up to a fixed height.
type FlatGenerator struct {
	height               int
	bedrock, dirt, grass registry.State
}

// NewFlatGenerator creates a flat world with its surface at height.
func NewFlatGenerator(reg *registry.Registry, height int) *FlatGenerator {
	p := lookupPalette(reg)
	return &FlatGenerator{height: height, bedrock: p.bedrock, dirt: p.dirt, grass: p.grass}
}

func (g *FlatGenerator) HeightAt(x, z int) int { return g.height }

func (g *FlatGenerator) Populate(col *Column) error {
	minY := col.MinBlockY()
	top := min(g.height, col.MaxBlockY())
	for x := 0; x < section.Size; x++ {
		for z := 0; z < section.Size; z++ {
			for y := minY; y <= top; y++ {
				st := g.dirt
				switch {
				case y == minY:
					st = g.bedrock
				case y == top:
					st = g.grass
				}
				col.Set(x, y, z, st)
			}
		}
	}
	col.Relight()
	return nil
}
