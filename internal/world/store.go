package world

import (
	"sync"

	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/section"
)

// defaultLight is the light of a section that holds no data: open sky.
const defaultLight = 15 << 4

// sectionData is the block and light storage of one 16^3 section, indexed
// y<<8 | z<<4 | x.
type sectionData struct {
	blocks [section.Volume]registry.State
	light  [section.Volume]uint8 // sky<<4 | block
	solid  int                   // non-air blocks
}

func newSectionData() *sectionData {
	s := &sectionData{}
	for i := range s.light {
		s.light[i] = defaultLight
	}
	return s
}

func index(x, y, z int) int {
	return (y&15)<<8 | (z&15)<<4 | x&15
}

// ColumnPos is a column of sections, in section coordinates.
type ColumnPos struct{ X, Z int }

// Store holds the loaded part of the world. It is safe for concurrent use:
// generators write columns while the render goroutine reads blocks.
type Store struct {
	reg        *registry.Registry
	minY, maxY int // section range

	mu       sync.RWMutex
	sections map[section.Pos]*sectionData
	columns  map[ColumnPos]struct{}
	modCount uint64
}

// NewStore creates an empty store spanning section Y in [minY, maxY].
func NewStore(reg *registry.Registry, minY, maxY int) *Store {
	return &Store{
		reg:      reg,
		minY:     minY,
		maxY:     maxY,
		sections: make(map[section.Pos]*sectionData),
		columns:  make(map[ColumnPos]struct{}),
	}
}

// Registry returns the block registry of the store.
func (s *Store) Registry() *registry.Registry { return s.reg }

// Bounds returns the vertical section range.
func (s *Store) Bounds() (minY, maxY int) { return s.minY, s.maxY }

// BlockAt returns the state at world coordinates. Unloaded blocks are air.
func (s *Store) BlockAt(x, y, z int) registry.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d := s.sections[section.PosFromBlock(x, y, z)]; d != nil {
		return d.blocks[index(x, y, z)]
	}
	return registry.Air
}

// LightAt returns the sky and block light at world coordinates. Blocks
// without stored data are fully sky lit.
func (s *Store) LightAt(x, y, z int) (sky, block uint8) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l := uint8(defaultLight)
	if d := s.sections[section.PosFromBlock(x, y, z)]; d != nil {
		l = d.light[index(x, y, z)]
	}
	return l >> 4, l & 0xF
}

// Set changes a block and reports whether the state changed. Blocks
// outside the vertical range are ignored.
func (s *Store) Set(x, y, z int, st registry.State) bool {
	p := section.PosFromBlock(x, y, z)
	if p.Y < s.minY || p.Y > s.maxY {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(p, index(x, y, z), st)
}

func (s *Store) setLocked(p section.Pos, i int, st registry.State) bool {
	d := s.sections[p]
	if d == nil {
		if st == registry.Air {
			return false
		}
		d = newSectionData()
		s.sections[p] = d
	}
	old := d.blocks[i]
	if old == st {
		return false
	}
	d.blocks[i] = st
	switch {
	case old == registry.Air:
		d.solid++
	case st == registry.Air:
		d.solid--
	}
	s.modCount++
	return true
}

// SetLight stores the light of a block.
func (s *Store) SetLight(x, y, z int, sky, block uint8) {
	p := section.PosFromBlock(x, y, z)
	if p.Y < s.minY || p.Y > s.maxY {
		return
	}
	l := sky<<4 | block&0xF
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.sections[p]
	if d == nil {
		if l == defaultLight {
			return
		}
		d = newSectionData()
		s.sections[p] = d
	}
	d.light[index(x, y, z)] = l
}

// IsEmpty reports whether a section holds no blocks.
func (s *Store) IsEmpty(p section.Pos) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.sections[p]
	return d == nil || d.solid == 0
}

// HasColumn reports whether a column is loaded.
func (s *Store) HasColumn(c ColumnPos) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.columns[c]
	return ok
}

// RemoveColumn drops a column and all its sections.
func (s *Store) RemoveColumn(c ColumnPos) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeColumnLocked(c)
}

func (s *Store) removeColumnLocked(c ColumnPos) bool {
	if _, ok := s.columns[c]; !ok {
		return false
	}
	delete(s.columns, c)
	for y := s.minY; y <= s.maxY; y++ {
		delete(s.sections, section.Pos{X: c.X, Y: y, Z: c.Z})
	}
	s.modCount++
	return true
}

// EvictFar removes every column farther than radius columns from (cx, cz)
// and returns the removed columns.
func (s *Store) EvictFar(cx, cz, radius int) []ColumnPos {
	var removed []ColumnPos
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.columns {
		dx, dz := c.X-cx, c.Z-cz
		if dx*dx+dz*dz > radius*radius {
			removed = append(removed, c)
		}
	}
	for _, c := range removed {
		s.removeColumnLocked(c)
	}
	return removed
}

// Columns returns the loaded columns.
func (s *Store) Columns() []ColumnPos {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ColumnPos, 0, len(s.columns))
	for c := range s.columns {
		out = append(out, c)
	}
	return out
}

// ModCount increases on every block change and column add or remove.
func (s *Store) ModCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modCount
}
