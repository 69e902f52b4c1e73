package anvil

import (
	"errors"
	"slices"
	"testing"

	"github.com/Tnze/go-mc/level"
	"github.com/Tnze/go-mc/save"

	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/world"
)

var _ world.ColumnSource = (*Loader)(nil)

func blockStates(names ...string) []save.BlockState {
	out := make([]save.BlockState, len(names))
	for i, n := range names {
		out[i] = save.BlockState{Name: n}
	}
	return out
}

// packed returns 4-bit block data with the given section-local entries set.
func packed(entries map[[3]int]int) []uint64 {
	bs := level.NewBitStorage(4, 4096, nil)
	for p, v := range entries {
		bs.Set(p[1]<<8|p[2]<<4|p[0], v)
	}
	return bs.Raw()
}

func mustState(t *testing.T, reg *registry.Registry, name string) registry.State {
	t.Helper()
	st, ok := reg.Lookup(name)
	if !ok {
		t.Fatalf("unknown block %q", name)
	}
	return st
}

func TestDecodeSections(t *testing.T) {
	reg := registry.Default()
	store := world.NewStore(reg, 0, 3)
	col := store.NewColumn(world.ColumnPos{X: 2, Z: -1})
	l := newLoader(t.TempDir(), reg)

	var chunk save.Chunk
	chunk.Sections = []save.Section{
		{Y: -1, BlockStates: save.PaletteContainer[save.BlockState]{Palette: blockStates("minecraft:stone")}},
		{Y: 0, BlockStates: save.PaletteContainer[save.BlockState]{
			Palette: blockStates("minecraft:air", "minecraft:stone", "minecraft:water", "minecraft:deepslate"),
			Data:    packed(map[[3]int]int{{1, 2, 3}: 1, {5, 5, 5}: 2, {15, 15, 15}: 3}),
		}},
		{Y: 1, BlockStates: save.PaletteContainer[save.BlockState]{Palette: blockStates("minecraft:dirt")}},
		{Y: 2, BlockStates: save.PaletteContainer[save.BlockState]{Palette: blockStates("minecraft:air")}},
	}
	if err := l.Decode(&chunk, col); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	store.PutColumn(col)

	ox, oz := 2*16, -16
	tests := []struct {
		x, y, z int
		want    string
	}{
		{1, 2, 3, "stone"},
		{5, 5, 5, "water"},
		{15, 15, 15, "stone"}, // deepslate falls back to stone
		{0, 0, 0, "air"},
		{0, 16, 0, "dirt"},
		{15, 31, 15, "dirt"},
		{4, 40, 4, "air"},
	}
	for _, tt := range tests {
		if got := store.BlockAt(ox+tt.x, tt.y, oz+tt.z); got != mustState(t, reg, tt.want) {
			t.Errorf("(%d,%d,%d) = %v, want %s", tt.x, tt.y, tt.z, got, tt.want)
		}
	}
	if got := l.Missing(); !slices.Equal(got, []string{"minecraft:deepslate"}) {
		t.Errorf("Missing = %v", got)
	}
	// no stored light: computed from the blocks
	if sky, _ := store.LightAt(ox, 10, oz); sky != 0 {
		t.Errorf("sky under dirt = %d, want 0", sky)
	}
	if sky, _ := store.LightAt(ox, 40, oz); sky != 15 {
		t.Errorf("sky above terrain = %d, want 15", sky)
	}
}

func TestDecodeStoredLight(t *testing.T) {
	reg := registry.Default()
	store := world.NewStore(reg, 0, 1)
	col := store.NewColumn(world.ColumnPos{})
	l := newLoader(t.TempDir(), reg)

	sky := make([]byte, 2048)
	block := make([]byte, 2048)
	sky[0] = 0x97   // x=0 sky 7, x=1 sky 9
	block[0] = 0x03 // x=0 block 3
	chunk := save.Chunk{Sections: []save.Section{{
		Y: 0,
		BlockStates: save.PaletteContainer[save.BlockState]{
			Palette: blockStates("minecraft:air", "minecraft:stone"),
			Data:    packed(map[[3]int]int{{8, 8, 8}: 1}),
		},
		SkyLight:   sky,
		BlockLight: block,
	}}}
	if err := l.Decode(&chunk, col); err != nil {
		t.Fatal(err)
	}
	store.PutColumn(col)

	if s, b := store.LightAt(0, 0, 0); s != 7 || b != 3 {
		t.Errorf("light at x=0 = %d,%d, want 7,3", s, b)
	}
	if s, b := store.LightAt(1, 0, 0); s != 9 || b != 0 {
		t.Errorf("light at x=1 = %d,%d, want 9,0", s, b)
	}
}

func TestDecodeRejectsBadData(t *testing.T) {
	reg := registry.Default()
	col := world.NewStore(reg, 0, 1).NewColumn(world.ColumnPos{})
	l := newLoader(t.TempDir(), reg)

	chunk := save.Chunk{Sections: []save.Section{{
		Y: 0,
		BlockStates: save.PaletteContainer[save.BlockState]{
			Palette: blockStates("minecraft:air", "minecraft:stone"),
			Data:    make([]uint64, 300),
		},
	}}}
	if err := l.Decode(&chunk, col); err == nil {
		t.Error("Decode accepted a truncated block array")
	}

	chunk.Sections[0].BlockStates.Data = packed(map[[3]int]int{{0, 0, 0}: 9})
	if err := l.Decode(&chunk, col); err == nil {
		t.Error("Decode accepted an out-of-range palette index")
	}
}

func TestSubstitutes(t *testing.T) {
	reg := registry.Default()
	l := newLoader(t.TempDir(), reg)
	tests := map[string]string{
		"minecraft:spruce_leaves":            "oak_leaves",
		"minecraft:birch_log":                "oak_log",
		"minecraft:red_stained_glass":        "white_stained_glass",
		"minecraft:tall_grass":               "short_grass",
		"minecraft:wall_torch":               "air",
		"minecraft:grass_block":              "grass_block",
		"minecraft:polished_blackstone_wall": "stone",
	}
	for name, want := range tests {
		if got := l.lookup(name); got != mustState(t, reg, want) {
			t.Errorf("lookup(%s) = %v, want %s", name, got, want)
		}
	}
}

func TestFullChunk(t *testing.T) {
	for status, want := range map[string]bool{
		"minecraft:full":     true,
		"full":               true,
		"minecraft:features": false,
		"":                   false,
	} {
		if got := fullChunk(status); got != want {
			t.Errorf("fullChunk(%q) = %v", status, got)
		}
	}
}

func TestOpenWithoutRegions(t *testing.T) {
	if _, err := Open(t.TempDir(), registry.Default()); !errors.Is(err, ErrNoRegions) {
		t.Errorf("Open = %v, want ErrNoRegions", err)
	}
}

func TestPopulateMissingRegion(t *testing.T) {
	reg := registry.Default()
	l := newLoader(t.TempDir(), reg)
	defer l.Close()
	col := world.NewStore(reg, 0, 1).NewColumn(world.ColumnPos{X: 100, Z: 100})
	if err := l.Populate(col); err != nil {
		t.Fatalf("Populate: %v", err)
	}
	if col.Get(0, 0, 0) != registry.Air {
		t.Error("column without a region is not empty")
	}
}
