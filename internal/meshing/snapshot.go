package meshing

import (
	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/section"
)

// BlockSource is the read-only view of world storage used to capture
// snapshots. It is only called from the render goroutine.
type BlockSource interface {
	BlockAt(x, y, z int) registry.State
	LightAt(x, y, z int) (sky, block uint8)
}

const (
	haloSize   = section.Size + 2
	haloVolume = haloSize * haloSize * haloSize
)

// PackLight packs sky and block light nibbles into one byte.
func PackLight(sky, block uint8) uint8 {
	return (sky&0xF)<<4 | block&0xF
}

// UnpackLight splits a packed light byte.
func UnpackLight(l uint8) (sky, block uint8) {
	return l >> 4, l & 0xF
}

// Snapshot is an immutable copy of one section plus a one block halo from
// its neighbours. Build tasks read nothing else, which is what lets them run
// on worker goroutines without locking the world.
type Snapshot struct {
	pos        section.Pos
	generation uint64
	registry   *registry.Registry

	blocks [haloVolume]registry.State
	light  [haloVolume]uint8
	empty  bool
}

func haloIndex(x, y, z int) int {
	return ((y+1)*haloSize+(z+1))*haloSize + (x + 1)
}

// CaptureSnapshot copies the section at pos, including the halo, from src.
func CaptureSnapshot(src BlockSource, reg *registry.Registry, pos section.Pos, gen uint64) *Snapshot {
	s := &Snapshot{pos: pos, generation: gen, registry: reg, empty: true}
	ox, oy, oz := pos.Origin()
	for y := -1; y <= section.Size; y++ {
		for z := -1; z <= section.Size; z++ {
			for x := -1; x <= section.Size; x++ {
				i := haloIndex(x, y, z)
				st := src.BlockAt(ox+x, oy+y, oz+z)
				s.blocks[i] = st
				sky, blk := src.LightAt(ox+x, oy+y, oz+z)
				s.light[i] = PackLight(sky, blk)
				if st != registry.Air && inside(x, y, z) {
					s.empty = false
				}
			}
		}
	}
	return s
}

func inside(x, y, z int) bool {
	return x >= 0 && x < section.Size && y >= 0 && y < section.Size && z >= 0 && z < section.Size
}

// Pos returns the captured section position.
func (s *Snapshot) Pos() section.Pos { return s.pos }

// Generation returns the section generation the snapshot was captured at.
func (s *Snapshot) Generation() uint64 { return s.generation }

// IsEmpty reports whether the section itself holds only air.
func (s *Snapshot) IsEmpty() bool { return s.empty }

// Block returns the state at section-local coordinates in [-1, 16].
func (s *Snapshot) Block(x, y, z int) registry.State {
	return s.blocks[haloIndex(x, y, z)]
}

// Light returns the packed light at section-local coordinates in [-1, 16].
func (s *Snapshot) Light(x, y, z int) uint8 {
	return s.light[haloIndex(x, y, z)]
}

// Def returns the block definition at section-local coordinates.
func (s *Snapshot) Def(x, y, z int) *registry.Block {
	return s.registry.Get(s.Block(x, y, z))
}

// Occludes reports whether the block at section-local coordinates is a full
// opaque cube.
func (s *Snapshot) Occludes(x, y, z int) bool {
	return s.Def(x, y, z).Occludes
}
