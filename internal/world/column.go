package world

import (
	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/section"
)

// Column is a column of sections built outside the store, by a generator
// or a loader, and installed in one step with Store.PutColumn. Coordinates
// are column-local in x and z and world coordinates in y.
type Column struct {
	Pos      ColumnPos
	reg      *registry.Registry
	minY     int
	sections []*sectionData
}

// NewColumn returns an empty column matching the store's vertical range.
func (s *Store) NewColumn(c ColumnPos) *Column {
	return &Column{
		Pos:      c,
		reg:      s.reg,
		minY:     s.minY,
		sections: make([]*sectionData, s.maxY-s.minY+1),
	}
}

// MinBlockY and MaxBlockY return the vertical block range of the column.
func (c *Column) MinBlockY() int { return c.minY * section.Size }
func (c *Column) MaxBlockY() int { return (c.minY+len(c.sections))*section.Size - 1 }

func (c *Column) data(y int, create bool) *sectionData {
	i := (y >> section.Shift) - c.minY
	if i < 0 || i >= len(c.sections) {
		return nil
	}
	if c.sections[i] == nil && create {
		c.sections[i] = newSectionData()
	}
	return c.sections[i]
}

// Get returns the state at column-local x, z and world y.
func (c *Column) Get(x, y, z int) registry.State {
	if d := c.data(y, false); d != nil {
		return d.blocks[index(x, y, z)]
	}
	return registry.Air
}

// Set stores a state at column-local x, z and world y.
func (c *Column) Set(x, y, z int, st registry.State) {
	d := c.data(y, st != registry.Air)
	if d == nil {
		return
	}
	i := index(x, y, z)
	old := d.blocks[i]
	d.blocks[i] = st
	switch {
	case old == registry.Air && st != registry.Air:
		d.solid++
	case old != registry.Air && st == registry.Air:
		d.solid--
	}
}

// Light returns the packed light at column-local x, z and world y.
func (c *Column) Light(x, y, z int) uint8 {
	if d := c.data(y, false); d != nil {
		return d.light[index(x, y, z)]
	}
	return defaultLight
}

// SetLight stores packed light at column-local x, z and world y.
func (c *Column) SetLight(x, y, z int, l uint8) {
	d := c.data(y, l != defaultLight)
	if d == nil {
		return
	}
	d.light[index(x, y, z)] = l
}

// PutColumn installs a column, replacing any previous data for it.
func (s *Store) PutColumn(col *Column) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range col.sections {
		p := section.Pos{X: col.Pos.X, Y: col.minY + i, Z: col.Pos.Z}
		if d == nil {
			delete(s.sections, p)
			continue
		}
		s.sections[p] = d
	}
	s.columns[col.Pos] = struct{}{}
	s.modCount++
}
