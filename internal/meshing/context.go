package meshing

import (
	"sync"

	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/section"
)

type maskEntry struct {
	state   registry.State
	light   QuadLight
	set     bool
	surface bool // fluid with no fluid of its kind above
}

// stagingBuffer collects the vertices of one pass while a task runs.
type stagingBuffer struct {
	vertices []uint32
	centers  []QuadCenter
	quads    int
}

func (b *stagingBuffer) reset() {
	b.vertices = b.vertices[:0]
	b.centers = b.centers[:0]
	b.quads = 0
}

// detach copies the staged geometry into a MeshData the context no longer
// references.
func (b *stagingBuffer) detach(withCenters bool) *MeshData {
	if b.quads == 0 {
		return nil
	}
	m := &MeshData{
		Vertices: make([]uint32, len(b.vertices)),
		Quads:    b.quads,
	}
	copy(m.Vertices, b.vertices)
	if withCenters {
		m.Centers = make([]QuadCenter, len(b.centers))
		copy(m.Centers, b.centers)
	}
	return m
}

// BuildContext holds the scratch memory of one task. A context is owned by
// the worker that checked it out and needs no synchronisation.
type BuildContext struct {
	staging [registry.PassCount]stagingBuffer
	mask    [section.Size * section.Size]maskEntry
	light   LightPipeline
	quad    QuadLight
}

func newBuildContext(mode LightMode) *BuildContext {
	c := &BuildContext{light: newLightPipeline(mode)}
	for i := range c.staging {
		c.staging[i].vertices = make([]uint32, 0, 4096)
	}
	return c
}

func (c *BuildContext) reset() {
	for i := range c.staging {
		c.staging[i].reset()
	}
	c.light.Reset()
}

// ContextPool recycles BuildContexts between tasks.
type ContextPool struct {
	pool sync.Pool
}

// NewContextPool creates a pool whose contexts light quads with mode.
func NewContextPool(mode LightMode) *ContextPool {
	p := &ContextPool{}
	p.pool.New = func() any {
		return newBuildContext(mode)
	}
	return p
}

// Get checks out a clean context.
func (p *ContextPool) Get() *BuildContext {
	c := p.pool.Get().(*BuildContext)
	c.reset()
	return c
}

// Put returns a context. The caller must not use it afterwards.
func (p *ContextPool) Put(c *BuildContext) {
	if c == nil {
		return
	}
	p.pool.Put(c)
}
