package world

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"terrain-mesher/internal/config"
	"terrain-mesher/internal/meshing"
	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/section"
)

var _ meshing.BlockSource = (*Store)(nil)

var (
	_ TerrainGenerator = (*Generator)(nil)
	_ TerrainGenerator = (*FlatGenerator)(nil)
)

func mustState(t testing.TB, reg *registry.Registry, name string) registry.State {
	t.Helper()
	st, ok := reg.Lookup(name)
	if !ok {
		t.Fatalf("unknown block %q", name)
	}
	return st
}

func TestStoreSetAndGet(t *testing.T) {
	reg := registry.Default()
	s := NewStore(reg, -4, 19)
	stone := mustState(t, reg, "stone")

	if !s.Set(-1, -64, 17, stone) {
		t.Fatal("Set reported no change")
	}
	if s.Set(-1, -64, 17, stone) {
		t.Error("second Set reported a change")
	}
	if got := s.BlockAt(-1, -64, 17); got != stone {
		t.Errorf("BlockAt = %v, want stone", got)
	}
	if got := s.BlockAt(0, -64, 17); got != registry.Air {
		t.Errorf("neighbour = %v, want air", got)
	}
	p := section.PosFromBlock(-1, -64, 17)
	if s.IsEmpty(p) {
		t.Error("section with a block reported empty")
	}
	s.Set(-1, -64, 17, registry.Air)
	if !s.IsEmpty(p) {
		t.Error("section emptied by Set still reports blocks")
	}
}

func TestStoreIgnoresOutOfRange(t *testing.T) {
	reg := registry.Default()
	s := NewStore(reg, 0, 3)
	if s.Set(0, 64, 0, mustState(t, reg, "stone")) {
		t.Error("Set above the top section succeeded")
	}
	if s.Set(0, -1, 0, mustState(t, reg, "stone")) {
		t.Error("Set below the bottom section succeeded")
	}
	if s.ModCount() != 0 {
		t.Errorf("ModCount = %d, want 0", s.ModCount())
	}
}

func TestStoreLightDefaultsToSky(t *testing.T) {
	s := NewStore(registry.Default(), 0, 3)
	if sky, block := s.LightAt(5, 5, 5); sky != 15 || block != 0 {
		t.Errorf("LightAt = %d,%d, want 15,0", sky, block)
	}
	s.SetLight(5, 5, 5, 3, 9)
	if sky, block := s.LightAt(5, 5, 5); sky != 3 || block != 9 {
		t.Errorf("LightAt = %d,%d, want 3,9", sky, block)
	}
}

func TestColumnInstallAndEvict(t *testing.T) {
	reg := registry.Default()
	s := NewStore(reg, 0, 3)
	stone := mustState(t, reg, "stone")

	for _, c := range []ColumnPos{{0, 0}, {1, 0}, {5, 5}} {
		col := s.NewColumn(c)
		col.Set(3, 20, 4, stone)
		s.PutColumn(col)
	}
	if got := s.BlockAt(1*section.Size+3, 20, 4); got != stone {
		t.Errorf("BlockAt in column (1,0) = %v, want stone", got)
	}
	if !s.HasColumn(ColumnPos{5, 5}) {
		t.Fatal("column (5,5) not loaded")
	}

	removed := s.EvictFar(0, 0, 2)
	if len(removed) != 1 || removed[0] != (ColumnPos{5, 5}) {
		t.Errorf("EvictFar = %v, want [{5 5}]", removed)
	}
	if s.HasColumn(ColumnPos{5, 5}) || !s.HasColumn(ColumnPos{1, 0}) {
		t.Error("wrong columns evicted")
	}
	if got := s.BlockAt(5*section.Size+3, 20, 5*section.Size+4); got != registry.Air {
		t.Errorf("evicted block = %v, want air", got)
	}
	if len(s.Columns()) != 2 {
		t.Errorf("Columns = %v, want 2 entries", s.Columns())
	}
}

func TestColumnBounds(t *testing.T) {
	s := NewStore(registry.Default(), -4, 19)
	col := s.NewColumn(ColumnPos{})
	if col.MinBlockY() != -64 || col.MaxBlockY() != 319 {
		t.Errorf("bounds = %d..%d, want -64..319", col.MinBlockY(), col.MaxBlockY())
	}
	// writes outside the range are dropped
	col.Set(0, 320, 0, mustState(t, registry.Default(), "stone"))
	if col.Get(0, 320, 0) != registry.Air {
		t.Error("block above the column stored")
	}
}

func TestRelightSkyAndEmission(t *testing.T) {
	reg := registry.Default()
	s := NewStore(reg, 0, 1)
	col := s.NewColumn(ColumnPos{})
	stone := mustState(t, reg, "stone")
	leaves := mustState(t, reg, "oak_leaves")
	glow := mustState(t, reg, "glowstone")

	col.Set(0, 10, 0, stone)
	col.Set(1, 10, 0, leaves)
	col.Set(8, 2, 8, glow)
	col.Set(8, 3, 8, stone) // roof above the light
	col.Relight()
	s.PutColumn(col)

	if sky, _ := s.LightAt(0, 11, 0); sky != 15 {
		t.Errorf("sky above stone = %d, want 15", sky)
	}
	if sky, _ := s.LightAt(0, 9, 0); sky != 0 {
		t.Errorf("sky under stone = %d, want 0", sky)
	}
	if sky, _ := s.LightAt(1, 9, 0); sky != 13 {
		t.Errorf("sky under leaves = %d, want 13", sky)
	}
	if _, block := s.LightAt(8, 2, 8); block != 15 {
		t.Errorf("emitter block light = %d, want 15", block)
	}
	if _, block := s.LightAt(9, 2, 8); block != 14 {
		t.Errorf("block light next to emitter = %d, want 14", block)
	}
	if _, block := s.LightAt(12, 2, 8); block != 11 {
		t.Errorf("block light four away = %d, want 11", block)
	}
	if _, block := s.LightAt(8, 3, 8); block != 0 {
		t.Errorf("occluder block light = %d, want 0", block)
	}
}

func TestFlatGeneratorPopulate(t *testing.T) {
	reg := registry.Default()
	s := NewStore(reg, 0, 3)
	g := NewFlatGenerator(reg, 5)
	if h := g.HeightAt(100, -50); h != 5 {
		t.Errorf("HeightAt = %d, want 5", h)
	}

	col := s.NewColumn(ColumnPos{})
	if err := g.Populate(col); err != nil {
		t.Fatal(err)
	}
	s.PutColumn(col)

	want := map[int]string{0: "bedrock", 1: "dirt", 4: "dirt", 5: "grass_block"}
	for y, name := range want {
		if got := s.BlockAt(3, y, 7); got != mustState(t, reg, name) {
			t.Errorf("y=%d: got %v, want %s", y, got, name)
		}
	}
	if got := s.BlockAt(3, 6, 7); got != registry.Air {
		t.Errorf("y=6: got %v, want air", got)
	}
	if sky, _ := s.LightAt(3, 6, 7); sky != 15 {
		t.Errorf("sky above surface = %d, want 15", sky)
	}
}

func hashColumn(s *Store, c ColumnPos) [32]byte {
	h := sha256.New()
	minY, maxY := s.Bounds()
	var buf [4]byte
	for y := minY * section.Size; y < (maxY+1)*section.Size; y++ {
		for x := range section.Size {
			for z := range section.Size {
				binary.LittleEndian.PutUint16(buf[:2], uint16(s.BlockAt(c.X*section.Size+x, y, c.Z*section.Size+z)))
				sky, block := s.LightAt(c.X*section.Size+x, y, c.Z*section.Size+z)
				buf[2], buf[3] = sky, block
				h.Write(buf[:])
			}
		}
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func generate(reg *registry.Registry, seed int64, c ColumnPos) *Store {
	cfg := config.Defaults().World
	cfg.Seed = seed
	s := NewStore(reg, -4, 19)
	col := s.NewColumn(c)
	if err := NewGenerator(reg, cfg).Populate(col); err != nil {
		panic(err)
	}
	s.PutColumn(col)
	return s
}

func TestGeneratorDeterministic(t *testing.T) {
	reg := registry.Default()
	for _, c := range []ColumnPos{{0, 0}, {-3, 7}, {12, -40}} {
		a := hashColumn(generate(reg, 42, c), c)
		b := hashColumn(generate(reg, 42, c), c)
		if a != b {
			t.Errorf("column %v: hashes differ between runs", c)
		}
	}
	if hashColumn(generate(reg, 1, ColumnPos{}), ColumnPos{}) == hashColumn(generate(reg, 2, ColumnPos{}), ColumnPos{}) {
		t.Error("different seeds produced identical columns")
	}
}

func TestGeneratorSurface(t *testing.T) {
	reg := registry.Default()
	cfg := config.Defaults().World
	g := NewGenerator(reg, cfg)
	s := generate(reg, cfg.Seed, ColumnPos{})

	if got := s.BlockAt(0, -64, 0); got != mustState(t, reg, "bedrock") {
		t.Errorf("bottom block = %v, want bedrock", got)
	}
	for x := range section.Size {
		h := g.HeightAt(x, 0)
		if got := s.BlockAt(x, h+1, 0); h >= cfg.SeaLevel && got == mustState(t, reg, "water") {
			t.Errorf("x=%d: water above land at %d", x, h)
		}
		if h < cfg.SeaLevel-1 {
			if got := s.BlockAt(x, cfg.SeaLevel, 0); got != mustState(t, reg, "water") {
				t.Errorf("x=%d: sea level block = %v, want water", x, got)
			}
		}
	}
}

func TestForEachRingOrder(t *testing.T) {
	var got []ColumnPos
	forEachRing(0, 0, 2, func(c ColumnPos) bool {
		got = append(got, c)
		return true
	})
	if len(got) != 25 {
		t.Fatalf("visited %d columns, want 25", len(got))
	}
	if got[0] != (ColumnPos{}) {
		t.Errorf("first = %v, want centre", got[0])
	}
	seen := make(map[ColumnPos]bool)
	for i, c := range got {
		if seen[c] {
			t.Errorf("%v visited twice", c)
		}
		seen[c] = true
		ring := max(abs(c.X), abs(c.Z))
		if i >= 1 && i < 9 && ring != 1 || i >= 9 && ring != 2 {
			t.Errorf("visit %d is %v on ring %d", i, c, ring)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestStreamerLoadsAround(t *testing.T) {
	reg := registry.Default()
	s := NewStore(reg, 0, 3)
	st := NewStreamer(context.Background(), s, NewFlatGenerator(reg, 4), nil)
	defer st.Close()

	if n := st.Request(0, 0, 1); n != 9 {
		t.Fatalf("Request queued %d, want 9", n)
	}
	if n := st.Request(0, 0, 1); n > 9 {
		t.Errorf("repeat Request queued %d", n)
	}

	loaded := make(map[ColumnPos]bool)
	deadline := time.Now().Add(5 * time.Second)
	for len(loaded) < 9 && time.Now().Before(deadline) {
		st.Poll(func(c ColumnPos) { loaded[c] = true })
		time.Sleep(time.Millisecond)
	}
	if len(loaded) != 9 {
		t.Fatalf("loaded %d columns, want 9", len(loaded))
	}
	for c := range loaded {
		if !s.HasColumn(c) {
			t.Errorf("%v reported loaded but missing from store", c)
		}
	}
	if n := st.Request(0, 0, 1); n != 0 {
		t.Errorf("Request after load queued %d, want 0", n)
	}
}

func TestStreamerLoadSync(t *testing.T) {
	reg := registry.Default()
	s := NewStore(reg, 0, 3)
	st := NewStreamer(context.Background(), s, NewFlatGenerator(reg, 4), nil)
	defer st.Close()

	got, err := st.LoadSync(2, 2, 1)
	if err != nil || len(got) != 9 || got[0] != (ColumnPos{2, 2}) {
		t.Fatalf("LoadSync = %v, %v", got, err)
	}
	if again, _ := st.LoadSync(2, 2, 1); len(again) != 0 {
		t.Errorf("second LoadSync = %v, want none", again)
	}
	if n := st.Poll(func(ColumnPos) {}); n != 0 {
		t.Errorf("Poll after LoadSync = %d, want 0", n)
	}
}

type failingSource struct{ bad ColumnPos }

func (f failingSource) Populate(col *Column) error {
	if col.Pos == f.bad {
		return errors.New("corrupt column")
	}
	return nil
}

func TestStreamerSkipsFailedColumns(t *testing.T) {
	s := NewStore(registry.Default(), 0, 3)
	st := NewStreamer(context.Background(), s, failingSource{bad: ColumnPos{1, 0}}, nil)
	defer st.Close()

	st.Request(0, 0, 1)
	deadline := time.Now().Add(5 * time.Second)
	loaded := 0
	for loaded < 8 && time.Now().Before(deadline) {
		loaded += st.Poll(func(ColumnPos) {})
		time.Sleep(time.Millisecond)
	}
	if loaded != 8 {
		t.Fatalf("loaded %d columns, want 8", loaded)
	}
	for st.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.HasColumn(ColumnPos{1, 0}) {
		t.Error("failed column installed")
	}
	if n := st.Request(0, 0, 1); n != 0 {
		t.Errorf("failed column re-queued (%d)", n)
	}
	st.EvictFar(10, 10, 1)
	if n := st.Request(0, 0, 1); n != 9 {
		t.Errorf("after eviction Request queued %d, want 9", n)
	}
}

func TestLoadSyncStopsOnError(t *testing.T) {
	s := NewStore(registry.Default(), 0, 3)
	st := NewStreamer(context.Background(), s, failingSource{bad: ColumnPos{1, 0}}, nil)
	defer st.Close()

	got, err := st.LoadSync(0, 0, 1)
	if err == nil {
		t.Fatal("LoadSync succeeded over a corrupt column")
	}
	if len(got) == 0 || got[0] != (ColumnPos{}) {
		t.Errorf("LoadSync loaded %v before failing", got)
	}
}
