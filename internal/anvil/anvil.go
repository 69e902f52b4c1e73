// Package anvil loads terrain from Minecraft region files (1.18 and later)
// into world columns.
package anvil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/Tnze/go-mc/level"
	"github.com/Tnze/go-mc/save"
	"github.com/Tnze/go-mc/save/region"

	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/section"
	"terrain-mesher/internal/world"
)

// ErrNoRegions is returned by Open when the directory holds no region files.
var ErrNoRegions = errors.New("anvil: no region files")

const regionSize = 32

type regionPos struct{ x, z int }

// Loader reads columns from the region directory of a world save. It is a
// world.ColumnSource and is safe for concurrent use.
type Loader struct {
	dir      string
	reg      *registry.Registry
	fallback registry.State

	mu      sync.Mutex
	regions map[regionPos]*region.Region
	absent  map[regionPos]bool
	states  map[string]registry.State
	missing map[string]struct{}
}

// Open prepares a loader for path, which is either a world save directory
// or its region subdirectory.
func Open(path string, reg *registry.Registry) (*Loader, error) {
	dir := path
	if fi, err := os.Stat(filepath.Join(path, "region")); err == nil && fi.IsDir() {
		dir = filepath.Join(path, "region")
	}
	matches, err := filepath.Glob(filepath.Join(dir, "r.*.*.mca"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoRegions, dir)
	}
	return newLoader(dir, reg), nil
}

func newLoader(dir string, reg *registry.Registry) *Loader {
	stone, _ := reg.Lookup("stone")
	return &Loader{
		dir:      dir,
		reg:      reg,
		fallback: stone,
		regions:  make(map[regionPos]*region.Region),
		absent:   make(map[regionPos]bool),
		states:   make(map[string]registry.State),
		missing:  make(map[string]struct{}),
	}
}

// Close closes every open region file.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for p, r := range l.regions {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(l.regions, p)
	}
	return errors.Join(errs...)
}

// Available lists every column stored in the region files.
func (l *Loader) Available() ([]world.ColumnPos, error) {
	matches, err := filepath.Glob(filepath.Join(l.dir, "r.*.*.mca"))
	if err != nil {
		return nil, err
	}
	var out []world.ColumnPos
	for _, m := range matches {
		var rx, rz int
		if _, err := fmt.Sscanf(filepath.Base(m), "r.%d.%d.mca", &rx, &rz); err != nil {
			continue
		}
		l.mu.Lock()
		r, err := l.regionLocked(regionPos{rx, rz})
		if err != nil {
			l.mu.Unlock()
			return nil, err
		}
		for x := range regionSize {
			for z := range regionSize {
				if r != nil && r.ExistSector(x, z) {
					out = append(out, world.ColumnPos{X: rx*regionSize + x, Z: rz*regionSize + z})
				}
			}
		}
		l.mu.Unlock()
	}
	return out, nil
}

// Missing returns the block names that had no registry entry and were
// replaced.
func (l *Loader) Missing() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.missing))
	for name := range l.missing {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func (l *Loader) regionLocked(p regionPos) (*region.Region, error) {
	if r := l.regions[p]; r != nil {
		return r, nil
	}
	if l.absent[p] {
		return nil, nil
	}
	name := filepath.Join(l.dir, fmt.Sprintf("r.%d.%d.mca", p.x, p.z))
	if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
		l.absent[p] = true
		return nil, nil
	}
	r, err := region.Open(name)
	if err != nil {
		return nil, err
	}
	l.regions[p] = r
	return r, nil
}

func (l *Loader) readSector(c world.ColumnPos) ([]byte, error) {
	p := regionPos{c.X >> 5, c.Z >> 5}
	l.mu.Lock()
	defer l.mu.Unlock()
	r, err := l.regionLocked(p)
	if err != nil || r == nil {
		return nil, err
	}
	data, err := r.ReadSector(c.X&(regionSize-1), c.Z&(regionSize-1))
	if errors.Is(err, region.ErrNoSector) {
		return nil, nil
	}
	return data, err
}

// Populate fills col from the region files. Columns that were never
// generated are left empty.
func (l *Loader) Populate(col *world.Column) error {
	data, err := l.readSector(col.Pos)
	if err != nil {
		return fmt.Errorf("anvil: read column %d,%d: %w", col.Pos.X, col.Pos.Z, err)
	}
	if len(data) == 0 {
		return nil
	}
	var chunk save.Chunk
	if err := chunk.Load(data); err != nil {
		return fmt.Errorf("anvil: decode column %d,%d: %w", col.Pos.X, col.Pos.Z, err)
	}
	if !fullChunk(chunk.Status) {
		return nil
	}
	return l.Decode(&chunk, col)
}

func fullChunk(status string) bool {
	switch strings.TrimPrefix(status, "minecraft:") {
	case "full", "spawn", "postprocessed", "fullchunk":
		return true
	}
	return false
}

// Decode copies the blocks and light of a chunk into col. When the chunk
// does not carry light for every section holding blocks, light is computed
// from the blocks instead.
func (l *Loader) Decode(chunk *save.Chunk, col *world.Column) error {
	haveLight := true
	for i := range chunk.Sections {
		s := &chunk.Sections[i]
		baseY := int(s.Y) * section.Size
		if baseY < col.MinBlockY() || baseY > col.MaxBlockY() {
			continue
		}
		solid, err := l.decodeBlocks(s, col, baseY)
		if err != nil {
			return fmt.Errorf("anvil: column %d,%d section %d: %w", col.Pos.X, col.Pos.Z, s.Y, err)
		}
		if len(s.SkyLight) == section.Volume/2 && len(s.BlockLight) == section.Volume/2 {
			decodeLight(s, col, baseY)
		} else if solid {
			haveLight = false
		}
	}
	if !haveLight {
		col.Relight()
	}
	return nil
}

func (l *Loader) decodeBlocks(s *save.Section, col *world.Column, baseY int) (bool, error) {
	palette := s.BlockStates.Palette
	if len(palette) == 0 {
		return false, nil
	}
	states := l.resolve(palette)
	if len(states) == 1 || len(s.BlockStates.Data) == 0 {
		if states[0] == registry.Air {
			return false, nil
		}
		for i := range section.Volume {
			col.Set(i&15, baseY+i>>8, i>>4&15, states[0])
		}
		return true, nil
	}

	bits := bitsPerValue(section.Volume, len(s.BlockStates.Data))
	if bits == 0 || (section.Volume+64/bits-1)/(64/bits) != len(s.BlockStates.Data) {
		return false, fmt.Errorf("block data holds %d longs for a palette of %d", len(s.BlockStates.Data), len(palette))
	}
	storage := level.NewBitStorage(bits, section.Volume, s.BlockStates.Data)
	solid := false
	for i := range section.Volume {
		idx := storage.Get(i)
		if idx >= len(states) {
			return false, fmt.Errorf("palette index %d out of range %d", idx, len(states))
		}
		if st := states[idx]; st != registry.Air {
			col.Set(i&15, baseY+i>>8, i>>4&15, st)
			solid = true
		}
	}
	return solid, nil
}

func decodeLight(s *save.Section, col *world.Column, baseY int) {
	for i := range section.Volume {
		shift := uint(i&1) * 4
		sky := s.SkyLight[i/2] >> shift & 0xF
		block := s.BlockLight[i/2] >> shift & 0xF
		col.SetLight(i&15, baseY+i>>8, i>>4&15, sky<<4|block)
	}
}

// bitsPerValue derives the entry width from the packed array length; entries
// never straddle two longs.
func bitsPerValue(length, longs int) int {
	if longs == 0 || length == 0 {
		return 0
	}
	perLong := (length + longs - 1) / longs
	return 64 / perLong
}

func (l *Loader) resolve(palette []save.BlockState) []registry.State {
	out := make([]registry.State, len(palette))
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, bs := range palette {
		st, ok := l.states[bs.Name]
		if !ok {
			st = l.lookup(bs.Name)
			l.states[bs.Name] = st
		}
		out[i] = st
	}
	return out
}

func (l *Loader) lookup(name string) registry.State {
	if st, ok := l.reg.Lookup(name); ok {
		return st
	}
	l.missing[name] = struct{}{}
	base := strings.TrimPrefix(name, "minecraft:")
	for _, sub := range substitutes {
		if strings.Contains(base, sub.match) {
			if st, ok := l.reg.Lookup(sub.name); ok {
				return st
			}
		}
	}
	return l.fallback
}

// substitutes maps unregistered blocks onto registered ones by name
// fragment. The first match wins.
var substitutes = []struct{ match, name string }{
	{"stained_glass", "white_stained_glass"},
	{"glass", "glass"},
	{"leaves", "oak_leaves"},
	{"_log", "oak_log"},
	{"_wood", "oak_log"},
	{"planks", "oak_planks"},
	{"seagrass", "water"},
	{"kelp", "water"},
	{"bubble_column", "water"},
	{"ice", "ice"},
	{"snow", "snow_block"},
	{"sand", "sand"},
	{"dirt", "dirt"},
	{"mud", "dirt"},
	{"grass", "short_grass"},
	{"fern", "short_grass"},
	{"flower", "short_grass"},
	{"torch", "air"},
	{"button", "air"},
	{"sign", "air"},
	{"rail", "air"},
	{"lamp", "glowstone"},
	{"lantern", "glowstone"},
}
