package render

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"terrain-mesher/internal/config"
	"terrain-mesher/internal/meshing"
	"terrain-mesher/internal/profiling"
	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/scheduler"
	"terrain-mesher/internal/section"
)

// TerrainRenderer is the surface the host application drives: dirty-region
// events in, per-frame setup and draws, and read-only queries out.
type TerrainRenderer interface {
	ScheduleRebuildForChunk(x, y, z int, important bool)
	ScheduleRebuildForChunks(minX, minY, minZ, maxX, maxY, maxZ int, important bool)
	ScheduleRebuildForBlockArea(minX, minY, minZ, maxX, maxY, maxZ int, important bool)
	OnBlockChanged(x, y, z int, important bool)
	OnColumnLoaded(x, z int)
	OnColumnUnloaded(x, z int)
	SetWorld(src meshing.BlockSource)
	Reload()

	SetupTerrain(vp *Viewport, frame uint64, flawless bool)
	Render(pass registry.RenderPass, vp *Viewport) error

	IsSectionReady(x, y, z int) bool
	VisibleSectionCount() int
	IsTerrainRenderComplete() bool
	DebugString() string
}

var _ TerrainRenderer = (*WorldRenderer)(nil)

// Options configures a WorldRenderer.
type Options struct {
	Config   config.Config
	Registry *registry.Registry
	Device   Device
	Profiler *profiling.Profiler
	// Guard is shared with host code that touches the GPU directly; nil
	// creates one from the config.
	Guard *Guard
}

// WorldRenderer wires the section table, the scheduler and the integrator
// together. All methods must be called from the render goroutine.
type WorldRenderer struct {
	cfg    config.Config
	reg    *registry.Registry
	source meshing.BlockSource
	prof   *profiling.Profiler

	table *section.Table
	sched *scheduler.Scheduler
	guard *Guard
	integ *Integrator

	ctx      context.Context
	pending  []section.Submission
	viewport *Viewport
	frame    uint64
}

// NewWorldRenderer starts the build workers. src may be nil until SetWorld.
func NewWorldRenderer(ctx context.Context, src meshing.BlockSource, opts Options) *WorldRenderer {
	cfg := opts.Config
	reg := opts.Registry
	if reg == nil {
		reg = registry.Default()
	}
	dev := opts.Device
	if dev == nil {
		dev = NewMemoryDevice()
	}
	mode := meshing.LightFlat
	if cfg.Smooth() {
		mode = meshing.LightSmooth
	}

	w := &WorldRenderer{
		cfg:    cfg,
		reg:    reg,
		source: src,
		prof:   opts.Profiler,
		table:  section.NewTable(cfg.MinSectionY, cfg.MaxSectionY, cfg.MaxRetries),
		guard:  opts.Guard,
		ctx:    ctx,
	}
	if w.guard == nil {
		w.guard = NewGuard(cfg.StrictGuard)
	}
	w.sched = scheduler.New(ctx, scheduler.Options{
		Workers: cfg.Workers,
		Pool:    meshing.NewContextPool(mode),
		OnStart: func(task meshing.Task) {
			if task.Kind() == meshing.KindRebuild {
				w.table.MarkBuilding(task.Pos(), task.Generation())
			}
		},
	})
	w.integ = NewIntegrator(w.table, w.sched, w.guard, dev, cfg.SortDistance)
	return w
}

// Guard returns the managed-code guard shared with the device.
func (w *WorldRenderer) Guard() *Guard { return w.guard }

// Table returns the section state table.
func (w *WorldRenderer) Table() *section.Table { return w.table }

// Scheduler returns the build scheduler.
func (w *WorldRenderer) Scheduler() *scheduler.Scheduler { return w.sched }

// ScheduleRebuildForChunk marks the section at section coordinates dirty.
func (w *WorldRenderer) ScheduleRebuildForChunk(x, y, z int, important bool) {
	w.table.MarkSectionDirty(section.Pos{X: x, Y: y, Z: z}, important)
}

// ScheduleRebuildForChunks marks an inclusive box of sections dirty.
func (w *WorldRenderer) ScheduleRebuildForChunks(minX, minY, minZ, maxX, maxY, maxZ int, important bool) {
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			for z := minZ; z <= maxZ; z++ {
				w.table.MarkSectionDirty(section.Pos{X: x, Y: y, Z: z}, important)
			}
		}
	}
}

// ScheduleRebuildForBlockArea marks every section intersecting an inclusive
// block box dirty.
func (w *WorldRenderer) ScheduleRebuildForBlockArea(minX, minY, minZ, maxX, maxY, maxZ int, important bool) {
	w.table.MarkDirty(section.NewBlockArea(minX, minY, minZ, maxX, maxY, maxZ), important)
}

// OnBlockChanged marks the sections whose geometry can depend on the block.
func (w *WorldRenderer) OnBlockChanged(x, y, z int, important bool) {
	area := section.BlockAreaAt(x, y, z)
	if !important {
		// important marks are widened by the table itself
		area = area.Expand(1)
	}
	w.table.MarkDirty(area, important)
}

// OnColumnLoaded registers a column and rebuilds the seams of its
// neighbours.
func (w *WorldRenderer) OnColumnLoaded(x, z int) {
	w.table.LoadColumn(x, z)
	w.table.MarkColumnDirty(x-1, z, false)
	w.table.MarkColumnDirty(x+1, z, false)
	w.table.MarkColumnDirty(x, z-1, false)
	w.table.MarkColumnDirty(x, z+1, false)
}

// OnColumnUnloaded forgets a column, cancelling its work and freeing its
// geometry.
func (w *WorldRenderer) OnColumnUnloaded(x, z int) {
	for _, p := range w.table.UnloadColumn(x, z) {
		w.sched.Cancel(p)
		w.integ.Release(p)
	}
}

// OnSectionUnload forgets a single section.
func (w *WorldRenderer) OnSectionUnload(pos section.Pos) {
	if w.table.Unload(pos) {
		w.sched.Cancel(pos)
		w.integ.Release(pos)
	}
}

// SetWorld swaps the world. All scheduled work is cancelled and every
// section returns to EMPTY; src may be nil to unload.
func (w *WorldRenderer) SetWorld(src meshing.BlockSource) {
	w.guard.Do(func() {
		w.sched.CancelAll()
		w.table.Reset()
		w.integ.ReleaseAll()
		w.source = src
	})
}

// Reload discards all geometry and rebuilds every loaded section.
func (w *WorldRenderer) Reload() {
	w.guard.Do(func() {
		w.sched.CancelAll()
		w.integ.ReleaseAll()
		w.table.MarkAll(false)
	})
}

// SetupTerrain runs the per-frame pipeline: apply finished builds, submit
// sections that need building, recompute the draw list and schedule
// translucency sorts. With flawless set it blocks until no section is left
// to build.
func (w *WorldRenderer) SetupTerrain(vp *Viewport, frame uint64, flawless bool) {
	defer w.prof.Track("terrain.setup")()
	w.frame = frame
	w.viewport = vp
	w.integ.EndFrame()

	stop := w.prof.Track("terrain.drain")
	w.integ.DrainCompleted()
	stop()

	stop = w.prof.Track("terrain.submit")
	w.submitPending(vp, w.cfg.FrameSubmitBudget)
	stop()

	if flawless {
		stop = w.prof.Track("terrain.converge")
		w.converge(vp)
		stop()
	}

	stop = w.prof.Track("terrain.visibility")
	w.integ.RecomputeVisibility(vp)
	w.integ.ScheduleSorts(vp)
	stop()
}

// converge submits and drains until nothing is left to build.
func (w *WorldRenderer) converge(vp *Viewport) {
	for {
		n := w.submitPending(vp, 0)
		if err := w.sched.WaitIdle(w.ctx); err != nil {
			return
		}
		if d := w.integ.DrainCompleted(); n == 0 && d == 0 {
			return
		}
	}
}

// submitPending captures and submits sections whose current generation has
// not been scheduled. Important sections, edited ones and those within the
// near distance of the camera, come first and ignore the budget; the rest
// are taken nearest first, at most budget of them (0 is no limit).
func (w *WorldRenderer) submitPending(vp *Viewport, budget int) int {
	if w.source == nil {
		return 0
	}
	w.pending = w.table.AppendPending(w.pending[:0])
	if len(w.pending) == 0 {
		return 0
	}
	var cam section.Pos
	if vp != nil {
		cam = vp.Section()
	}
	near := w.cfg.NearDistance * w.cfg.NearDistance
	for k := range w.pending {
		s := &w.pending[k]
		if vp != nil && w.cfg.NearDistance > 0 && s.Pos.DistanceSq(cam) <= near {
			s.Important = true
		}
	}
	slices.SortFunc(w.pending, func(a, b section.Submission) int {
		if a.Important != b.Important {
			if a.Important {
				return -1
			}
			return 1
		}
		return cmp.Or(
			cmp.Compare(a.Pos.DistanceSq(cam), b.Pos.DistanceSq(cam)),
			cmp.Compare(a.Generation, b.Generation),
		)
	})

	n, background := 0, 0
	for _, s := range w.pending {
		prio := scheduler.Important
		if !s.Important {
			if budget > 0 && background >= budget {
				break
			}
			background++
			prio = scheduler.Background
		}
		snap := meshing.CaptureSnapshot(w.source, w.reg, s.Pos, s.Generation)
		if w.sched.Submit(meshing.NewRebuildTask(snap), prio) == scheduler.Dropped {
			continue
		}
		w.table.MarkSubmitted(s.Pos, s.Generation)
		n++
	}
	return n
}

// Render recomputes visibility when the viewport changed and draws one pass.
func (w *WorldRenderer) Render(pass registry.RenderPass, vp *Viewport) error {
	if vp != w.viewport {
		w.viewport = vp
		w.integ.RecomputeVisibility(vp)
	}
	return w.DrawChunkLayer(pass)
}

// DrawChunkLayer draws one pass with the draw list of the last setup.
func (w *WorldRenderer) DrawChunkLayer(pass registry.RenderPass) error {
	if w.viewport == nil {
		return nil
	}
	defer w.prof.Track("terrain.draw." + pass.String())()
	return w.integ.DrawPass(pass, w.viewport)
}

// WaitIdle blocks until the scheduler has no work left.
func (w *WorldRenderer) WaitIdle(ctx context.Context) error {
	return w.sched.WaitIdle(ctx)
}

// IsSectionReady reports whether the section at section coordinates has its
// latest mesh applied.
func (w *WorldRenderer) IsSectionReady(x, y, z int) bool {
	return w.table.IsReady(section.Pos{X: x, Y: y, Z: z})
}

// IsSectionCompiled reports whether the section containing a block has
// geometry to draw or is known to need none.
func (w *WorldRenderer) IsSectionCompiled(bx, by, bz int) bool {
	p := section.PosFromBlock(bx, by, bz)
	return w.integ.HasMesh(p) || w.table.IsReady(p)
}

// VisibleSectionCount returns the number of sections drawn this frame.
func (w *WorldRenderer) VisibleSectionCount() int {
	return w.integ.VisibleSectionCount()
}

// IsTerrainRenderComplete reports whether every section in view is READY.
func (w *WorldRenderer) IsTerrainRenderComplete() bool {
	return w.integ.AllVisibleReady()
}

// DebugString summarises the pipeline state for an overlay.
func (w *WorldRenderer) DebugString() string {
	st := w.sched.Stats()
	counts := w.table.Counts()
	last := w.integ.LastFrame()
	s := fmt.Sprintf("C: %d/%d (%d meshes) P: %d B: %d R: %d S: %d | Q: %d F: %d D: %d W: %d | built %d sorted %d stale %d failed %d",
		w.integ.VisibleSectionCount(), w.integ.SectionsInView(), w.integ.MeshCount(),
		counts.Get(section.StatusPending), counts.Get(section.StatusBuilding), counts.Get(section.StatusReady),
		w.table.Stalled(),
		st.Queued, st.InFlight, st.Deferred, st.Workers,
		last.Built, last.Sorted, last.Discarded, last.Failed)
	if top := w.prof.TopN(3); top != "" {
		s += " | " + top
	}
	return s
}

// Close stops the workers and frees all geometry.
func (w *WorldRenderer) Close() {
	w.sched.Close()
	w.integ.ReleaseAll()
}
