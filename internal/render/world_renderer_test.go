package render

import (
	"context"
	"strings"
	"testing"
	"time"

	"terrain-mesher/internal/config"
	"terrain-mesher/internal/profiling"
	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/scheduler"
	"terrain-mesher/internal/section"
	"terrain-mesher/internal/world"
)

type fixture struct {
	reg   *registry.Registry
	store *world.Store
	dev   *MemoryDevice
	w     *WorldRenderer
	vp    *Viewport
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

func newFixtureWith(t *testing.T, tweak func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Defaults()
	cfg.Workers = 2
	cfg.MinSectionY, cfg.MaxSectionY = 0, 1
	cfg.RenderDistance = 4
	cfg.StrictGuard = true
	if tweak != nil {
		tweak(&cfg)
	}

	f := &fixture{reg: registry.Default(), dev: NewMemoryDevice(), vp: testViewport()}
	f.store = world.NewStore(f.reg, cfg.MinSectionY, cfg.MaxSectionY)
	f.w = NewWorldRenderer(context.Background(), f.store, Options{
		Config:   cfg,
		Registry: f.reg,
		Device:   f.dev,
		Profiler: profiling.New(),
	})
	t.Cleanup(f.w.Close)
	return f
}

func (f *fixture) block(t *testing.T, name string) registry.State {
	t.Helper()
	st, ok := f.reg.Lookup(name)
	if !ok {
		t.Fatalf("unknown block %q", name)
	}
	return st
}

// frame runs one setup, waits for the workers and runs a second setup to
// apply what they produced.
func (f *fixture) frame(t *testing.T, n uint64) {
	t.Helper()
	f.w.SetupTerrain(f.vp, n, false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.w.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
	f.w.SetupTerrain(f.vp, n+1, false)
}

func TestImportantEditBecomesReady(t *testing.T) {
	f := newFixture(t)
	f.store.Set(3, 3, 3, f.block(t, "stone"))
	f.w.OnColumnLoaded(0, 0)
	f.frame(t, 1)

	if !f.w.IsSectionReady(0, 0, 0) || !f.w.IsSectionReady(0, 1, 0) {
		t.Fatalf("column not ready: %s", f.w.DebugString())
	}
	if got := f.w.VisibleSectionCount(); got != 1 {
		t.Errorf("VisibleSectionCount = %d, want 1", got)
	}

	f.store.Set(4, 3, 3, f.block(t, "stone"))
	f.w.OnBlockChanged(4, 3, 3, true)
	if f.w.IsSectionReady(0, 0, 0) {
		t.Fatal("edited section still READY")
	}
	f.w.SetupTerrain(f.vp, 3, false)
	if f.w.VisibleSectionCount() != 1 {
		t.Error("section lost its old mesh while rebuilding")
	}

	f.frame(t, 4)
	if !f.w.IsSectionReady(0, 0, 0) {
		t.Fatalf("edited section not ready: %s", f.w.DebugString())
	}
	m := f.w.integ.meshes[section.Pos{}]
	if m == nil || m.quads[registry.PassOpaque] != 6 {
		t.Errorf("mesh after edit = %+v, want 6 opaque quads", m)
	}
	if !f.w.IsTerrainRenderComplete() {
		t.Error("terrain incomplete after every section applied")
	}
}

func TestFlawlessSetupConverges(t *testing.T) {
	f := newFixture(t)
	for x := range 16 {
		for z := range 16 {
			f.store.Set(x, 0, z, f.block(t, "stone"))
		}
	}
	f.store.Set(5, 1, 5, f.block(t, "water"))
	f.w.OnColumnLoaded(0, 0)
	f.w.OnColumnLoaded(1, 0)

	f.w.SetupTerrain(f.vp, 1, true)
	if !f.w.IsTerrainRenderComplete() {
		t.Fatalf("flawless setup left work: %s", f.w.DebugString())
	}
	if f.w.Table().Counts().Get(section.StatusReady) != 4 {
		t.Errorf("ready sections = %d, want 4", f.w.Table().Counts().Get(section.StatusReady))
	}
	if !f.w.IsSectionCompiled(5, 1, 5) {
		t.Error("IsSectionCompiled false for a built section")
	}

	if err := f.w.Render(registry.PassOpaque, f.vp); err != nil {
		t.Fatalf("Render: %v", err)
	}
	calls := f.dev.Draws[registry.PassOpaque]
	if len(calls) != 1 || calls[0].Offset != [3]float32{25, -8, -8} {
		t.Errorf("opaque draw calls = %+v", calls)
	}
	if f.w.integ.LastFrame().Scheduled+f.w.integ.Frame().Scheduled == 0 {
		t.Error("no translucency sort scheduled for nearby water")
	}
}

func TestTranslucencySortApplied(t *testing.T) {
	f := newFixture(t)
	f.store.Set(1, 1, 1, f.block(t, "water"))
	f.store.Set(9, 1, 1, f.block(t, "water"))
	f.w.OnColumnLoaded(0, 0)
	f.w.SetupTerrain(f.vp, 1, true)
	if f.w.integ.Frame().Scheduled != 1 {
		t.Fatalf("Scheduled = %d, want 1", f.w.integ.Frame().Scheduled)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.w.WaitIdle(ctx); err != nil {
		t.Fatal(err)
	}
	f.w.SetupTerrain(f.vp, 2, false)
	if got := f.w.integ.Frame(); got.Sorted != 1 || got.Scheduled != 0 {
		t.Errorf("frame after sort = %+v, want 1 sorted and none rescheduled", got)
	}
}

func TestUnloadReleasesGeometry(t *testing.T) {
	f := newFixture(t)
	f.store.Set(0, 0, 0, f.block(t, "stone"))
	f.w.OnColumnLoaded(0, 0)
	f.w.SetupTerrain(f.vp, 1, true)
	if f.dev.Live() == 0 {
		t.Fatal("nothing uploaded")
	}

	f.w.OnColumnUnloaded(0, 0)
	if f.dev.Live() != 0 {
		t.Errorf("%d buffers live after unload", f.dev.Live())
	}
	if f.w.Table().Len() != 0 {
		t.Errorf("table still holds %d sections", f.w.Table().Len())
	}
	f.w.SetupTerrain(f.vp, 2, false)
	if f.w.VisibleSectionCount() != 0 {
		t.Error("unloaded section still drawn")
	}
}

func TestSetWorldResetsEverything(t *testing.T) {
	f := newFixture(t)
	f.store.Set(0, 0, 0, f.block(t, "stone"))
	f.w.OnColumnLoaded(0, 0)
	f.w.SetupTerrain(f.vp, 1, true)
	f.w.OnBlockChanged(1, 0, 0, false)
	f.w.SetupTerrain(f.vp, 2, false)

	f.w.SetWorld(nil)
	if f.dev.Live() != 0 || f.w.Table().Len() != 0 {
		t.Errorf("after SetWorld: live=%d sections=%d", f.dev.Live(), f.w.Table().Len())
	}
	if st := f.w.Table().Status(section.Pos{}); st != section.StatusEmpty {
		t.Errorf("status = %v, want EMPTY", st)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.w.WaitIdle(ctx); err != nil {
		t.Fatal(err)
	}
	f.w.SetupTerrain(f.vp, 3, false)
	if f.dev.Uploads != 1 {
		t.Errorf("uploads = %d, want only the first build", f.dev.Uploads)
	}
	if f.w.Guard().Violations() != 0 {
		t.Errorf("guard violations = %d", f.w.Guard().Violations())
	}
}

func TestReloadRebuildsLoadedSections(t *testing.T) {
	f := newFixture(t)
	f.store.Set(0, 0, 0, f.block(t, "stone"))
	f.w.OnColumnLoaded(0, 0)
	f.w.SetupTerrain(f.vp, 1, true)

	f.w.Reload()
	if c := f.w.Table().Counts(); c.Get(section.StatusPending) != 2 {
		t.Errorf("pending after Reload = %d, want 2", c.Get(section.StatusPending))
	}
	if f.dev.Live() != 0 {
		t.Errorf("geometry kept across Reload: %d live", f.dev.Live())
	}
	f.w.SetupTerrain(f.vp, 2, true)
	if !f.w.IsTerrainRenderComplete() || f.dev.Live() != 1 {
		t.Errorf("reload did not rebuild: %s", f.w.DebugString())
	}
}

func TestScheduleRebuildForBlockArea(t *testing.T) {
	f := newFixture(t)
	f.w.OnColumnLoaded(0, 0)
	f.w.OnColumnLoaded(1, 0)
	f.w.SetupTerrain(f.vp, 1, true)

	f.w.ScheduleRebuildForBlockArea(15, 0, 0, 16, 3, 3, false)
	c := f.w.Table().Counts()
	if c.Get(section.StatusPending) != 2 || c.Get(section.StatusReady) != 2 {
		t.Errorf("pending=%d ready=%d, want 2 and 2", c.Get(section.StatusPending), c.Get(section.StatusReady))
	}
	f.w.ScheduleRebuildForChunks(0, 0, 0, 1, 1, 0, false)
	if c := f.w.Table().Counts(); c.Get(section.StatusPending) != 4 {
		t.Errorf("pending = %d, want 4", c.Get(section.StatusPending))
	}
	f.w.ScheduleRebuildForChunk(9, 9, 9, true) // not loaded
	if f.w.Table().Len() != 4 {
		t.Errorf("marking an unloaded section created a record")
	}
}

func TestDebugString(t *testing.T) {
	f := newFixture(t)
	f.store.Set(0, 0, 0, f.block(t, "stone"))
	f.w.OnColumnLoaded(0, 0)
	f.w.SetupTerrain(f.vp, 1, true)

	s := f.w.DebugString()
	for _, want := range []string{"C: 1/2", "R: 2", "S: 0", "W: 2", "terrain."} {
		if !strings.Contains(s, want) {
			t.Errorf("DebugString %q lacks %q", s, want)
		}
	}
}

// Sections near the camera are built before far background work queued in
// earlier frames, and do not count against the submit budget.
func TestNearSectionsJumpTheQueue(t *testing.T) {
	f := newFixtureWith(t, func(c *config.Config) {
		c.Workers = 1
		c.FrameSubmitBudget = 1
	})
	blocker := gatedStub(section.Pos{X: 100}, 1, 0)
	f.w.Scheduler().Submit(blocker, scheduler.Background)
	waitStarted(t, blocker)

	f.w.OnColumnLoaded(6, 0)
	f.w.OnColumnLoaded(7, 0)
	f.w.SetupTerrain(f.vp, 1, false)

	// the camera stands in column (-2, 0)
	f.w.OnColumnLoaded(-2, 0)
	f.w.SetupTerrain(f.vp, 2, false)
	if st := f.w.Scheduler().Stats(); st.Queued != 4 {
		t.Fatalf("queued = %d, want 1 + 1 far and 2 near", st.Queued)
	}

	close(blocker.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.w.WaitIdle(ctx); err != nil {
		t.Fatal(err)
	}
	var order []section.Pos
	f.w.Scheduler().Drain(func(c scheduler.Completion) { order = append(order, c.Pos) })
	if len(order) != 5 {
		t.Fatalf("completed %v, want 5 tasks", order)
	}
	for _, p := range order[1:3] {
		if p.X != -2 {
			t.Errorf("build order %v: near column not first", order)
			break
		}
	}
	for _, p := range order[3:] {
		if p.X < 6 {
			t.Errorf("build order %v: far column ahead of near ones", order)
			break
		}
	}
}

func TestSharedGuard(t *testing.T) {
	g := NewGuard(true)
	f := newFixtureWith(t, nil)
	w := NewWorldRenderer(context.Background(), f.store, Options{Registry: f.reg, Device: f.dev, Guard: g})
	defer w.Close()
	if w.Guard() != g {
		t.Fatal("renderer did not adopt the host guard")
	}
	f.store.Set(0, 0, 0, f.block(t, "stone"))
	w.OnColumnLoaded(0, 0)
	w.SetupTerrain(f.vp, 1, true)
	// host code holding the guard can nest renderer draws inside it
	g.Do(func() {
		if err := w.Render(registry.PassOpaque, f.vp); err != nil {
			t.Errorf("Render inside host guard: %v", err)
		}
	})
	if len(f.dev.Draws[registry.PassOpaque]) == 0 {
		t.Error("nothing drawn")
	}
}
