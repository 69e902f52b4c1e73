package render

import (
	"cmp"
	"errors"
	"log"
	"slices"

	"terrain-mesher/internal/meshing"
	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/scheduler"
	"terrain-mesher/internal/section"
)

// sectionMesh is the uploaded geometry of one section.
type sectionMesh struct {
	generation uint64
	buffers    [registry.PassCount]Buffer
	quads      [registry.PassCount]int

	// CPU copy of the translucent pass, the input of sort tasks
	translucent *meshing.MeshData
	sortedAt    [3]int
	sorted      bool
}

func (m *sectionMesh) empty() bool {
	for _, q := range m.quads {
		if q > 0 {
			return false
		}
	}
	return true
}

type visibleSection struct {
	pos  section.Pos
	dist int
	mesh *sectionMesh
}

// FrameStats counts what the integrator did during one frame.
type FrameStats struct {
	Built     int // rebuild results applied
	Sorted    int // sort results applied
	Discarded int // stale results dropped
	Failed    int // failed builds and uploads
	Scheduled int // sort tasks submitted
}

// Integrator applies build results on the render goroutine and keeps the
// per-frame draw list. None of its methods are safe for concurrent use.
type Integrator struct {
	table  *section.Table
	sched  *scheduler.Scheduler
	guard  *Guard
	device Device

	meshes       map[section.Pos]*sectionMesh
	sortDistance int

	entries  []section.Entry
	visible  []visibleSection
	inView   int
	notReady int
	calls    []DrawCall

	frame, last FrameStats
}

// NewIntegrator creates an integrator. dev is wrapped so every call is
// checked against guard. Translucent geometry within sortDistance sections
// of the camera is re-sorted as the camera moves.
func NewIntegrator(table *section.Table, sched *scheduler.Scheduler, guard *Guard, dev Device, sortDistance int) *Integrator {
	return &Integrator{
		table:        table,
		sched:        sched,
		guard:        guard,
		device:       Guarded(guard, dev),
		meshes:       make(map[section.Pos]*sectionMesh),
		sortDistance: sortDistance,
	}
}

// DrainCompleted applies every completed result without blocking and
// returns how many were processed.
func (i *Integrator) DrainCompleted() int {
	i.guard.Enter()
	defer i.guard.Exit()
	return i.sched.Drain(i.apply)
}

func (i *Integrator) apply(c scheduler.Completion) {
	if c.Err != nil {
		if errors.Is(c.Err, meshing.ErrCancelled) {
			return
		}
		i.frame.Failed++
		if c.Kind == meshing.KindRebuild {
			i.table.Fail(c.Pos, c.Generation)
		}
		return
	}
	switch c.Kind {
	case meshing.KindRebuild:
		i.applyRebuild(c.Pos, c.Generation, c.Result)
	case meshing.KindSort:
		i.applySort(c.Pos, c.Generation, c.Result)
	}
}

func (i *Integrator) applyRebuild(pos section.Pos, gen uint64, res *meshing.Result) {
	if !i.table.Current(pos, gen) {
		// settles the section without touching GPU state
		i.table.Complete(pos, gen)
		i.frame.Discarded++
		return
	}

	m := i.meshes[pos]
	if m == nil {
		m = &sectionMesh{}
	}
	for pass := range m.buffers {
		mesh := res.Meshes[pass]
		if mesh.IsEmpty() {
			i.device.Release(m.buffers[pass])
			m.buffers[pass], m.quads[pass] = 0, 0
			continue
		}
		b, err := i.device.Upload(m.buffers[pass], mesh)
		if err != nil {
			log.Printf("[render] upload of section %v (gen %d) failed: %v", pos, gen, err)
			i.releaseMesh(pos, m)
			i.table.Fail(pos, gen)
			i.frame.Failed++
			return
		}
		m.buffers[pass], m.quads[pass] = b, mesh.Quads
	}
	m.generation = gen
	m.translucent = res.Mesh(registry.PassTranslucent)
	m.sorted = false
	if m.empty() {
		delete(i.meshes, pos)
	} else {
		i.meshes[pos] = m
	}
	i.table.Complete(pos, gen)
	i.frame.Built++
}

func (i *Integrator) applySort(pos section.Pos, gen uint64, res *meshing.Result) {
	m := i.meshes[pos]
	mesh := res.Mesh(registry.PassTranslucent)
	if m == nil || m.generation != gen || !i.table.Current(pos, gen) || mesh.IsEmpty() {
		i.frame.Discarded++
		return
	}
	b, err := i.device.Upload(m.buffers[registry.PassTranslucent], mesh)
	if err != nil {
		log.Printf("[render] upload of sorted section %v failed: %v", pos, err)
		i.frame.Failed++
		return
	}
	m.buffers[registry.PassTranslucent] = b
	m.translucent = mesh
	i.frame.Sorted++
}

func (i *Integrator) releaseMesh(pos section.Pos, m *sectionMesh) {
	for pass, b := range m.buffers {
		i.device.Release(b)
		m.buffers[pass], m.quads[pass] = 0, 0
	}
	delete(i.meshes, pos)
}

// Release frees the geometry of a section.
func (i *Integrator) Release(pos section.Pos) {
	m := i.meshes[pos]
	if m == nil {
		return
	}
	i.guard.Do(func() { i.releaseMesh(pos, m) })
}

// ReleaseAll frees all geometry and clears the draw list.
func (i *Integrator) ReleaseAll() {
	i.guard.Do(func() {
		for pos, m := range i.meshes {
			i.releaseMesh(pos, m)
		}
	})
	i.visible = i.visible[:0]
	i.inView, i.notReady = 0, 0
}

// HasMesh reports whether a section has uploaded geometry.
func (i *Integrator) HasMesh(pos section.Pos) bool {
	_, ok := i.meshes[pos]
	return ok
}

// MeshCount returns the number of sections holding geometry.
func (i *Integrator) MeshCount() int {
	return len(i.meshes)
}

// RecomputeVisibility rebuilds the draw list for vp. Sections in range and
// inside the frustum are counted as visible; those holding geometry are
// drawn, nearest first. A section that was re-dirtied keeps drawing its
// previous mesh until the new one is applied.
func (i *Integrator) RecomputeVisibility(vp *Viewport) {
	i.entries = i.table.AppendEntries(i.entries[:0])
	i.visible = i.visible[:0]
	i.inView, i.notReady = 0, 0
	cam := vp.Section()

	for _, e := range i.entries {
		if !vp.InRange(e.Pos) || !vp.SectionVisible(e.Pos) {
			continue
		}
		i.inView++
		if e.Status != section.StatusReady {
			i.notReady++
		}
		if e.Status == section.StatusEmpty {
			continue
		}
		if m := i.meshes[e.Pos]; m != nil {
			i.visible = append(i.visible, visibleSection{pos: e.Pos, dist: e.Pos.DistanceSq(cam), mesh: m})
		}
	}
	slices.SortFunc(i.visible, func(a, b visibleSection) int {
		return cmp.Or(
			cmp.Compare(a.dist, b.dist),
			cmp.Compare(a.pos.X, b.pos.X),
			cmp.Compare(a.pos.Y, b.pos.Y),
			cmp.Compare(a.pos.Z, b.pos.Z),
		)
	})
}

// ScheduleSorts submits translucency sorts for nearby visible sections whose
// geometry was last sorted more than one block away from the camera. It
// returns the number of tasks submitted.
func (i *Integrator) ScheduleSorts(vp *Viewport) int {
	if i.sortDistance <= 0 {
		return 0
	}
	bx, by, bz := vp.Block()
	cam := vp.Section()
	n := 0
	for _, v := range i.visible {
		m := v.mesh
		if m.translucent.IsEmpty() || v.pos.DistanceSq(cam) > i.sortDistance*i.sortDistance {
			continue
		}
		if m.sorted && !movedMoreThanOne(m.sortedAt, [3]int{bx, by, bz}) {
			continue
		}
		if !i.table.IsReady(v.pos) || i.table.Generation(v.pos) != m.generation {
			continue
		}
		cx, cy, cz := vp.LocalCamera(v.pos, meshing.PositionScale)
		task := meshing.NewSortTask(v.pos, m.generation, m.translucent, cx, cy, cz)
		if i.sched.Submit(task, scheduler.Background) == scheduler.Dropped {
			continue
		}
		m.sortedAt = [3]int{bx, by, bz}
		m.sorted = true
		n++
	}
	i.frame.Scheduled += n
	return n
}

func movedMoreThanOne(a, b [3]int) bool {
	for k := range a {
		if d := a[k] - b[k]; d > 1 || d < -1 {
			return true
		}
	}
	return false
}

// DrawPass submits the draw list of one pass: opaque and cutout nearest
// first, translucent farthest first.
func (i *Integrator) DrawPass(pass registry.RenderPass, vp *Viewport) error {
	i.calls = i.calls[:0]
	add := func(v visibleSection) {
		if b := v.mesh.buffers[pass]; b != 0 {
			i.calls = append(i.calls, DrawCall{Buffer: b, Quads: v.mesh.quads[pass], Offset: vp.Offset(v.pos)})
		}
	}
	if pass == registry.PassTranslucent {
		for k := len(i.visible) - 1; k >= 0; k-- {
			add(i.visible[k])
		}
	} else {
		for _, v := range i.visible {
			add(v)
		}
	}
	if len(i.calls) == 0 {
		return nil
	}
	i.guard.Enter()
	defer i.guard.Exit()
	return i.device.Draw(pass, i.calls)
}

// VisibleSectionCount returns the number of sections in the draw list.
func (i *Integrator) VisibleSectionCount() int {
	return len(i.visible)
}

// SectionsInView returns the number of loaded sections inside the frustum.
func (i *Integrator) SectionsInView() int {
	return i.inView
}

// AllVisibleReady reports whether every loaded section inside the frustum
// has its latest mesh applied.
func (i *Integrator) AllVisibleReady() bool {
	return i.notReady == 0
}

// EndFrame closes the current frame's counters.
func (i *Integrator) EndFrame() {
	i.last = i.frame
	i.frame = FrameStats{}
}

// LastFrame returns the counters of the previous frame.
func (i *Integrator) LastFrame() FrameStats {
	return i.last
}

// Frame returns the counters of the frame in progress.
func (i *Integrator) Frame() FrameStats {
	return i.frame
}
