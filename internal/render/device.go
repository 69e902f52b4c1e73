package render

import (
	"fmt"

	"terrain-mesher/internal/meshing"
	"terrain-mesher/internal/registry"
)

// Buffer is a device handle for one uploaded mesh. Zero is no buffer.
type Buffer uint32

// DrawCall draws one section buffer. Offset is the section origin relative
// to the camera block, so it stays small whatever the world position.
type DrawCall struct {
	Buffer Buffer
	Quads  int
	Offset [3]float32
}

// Device is the GPU boundary. All methods run on the render goroutine.
type Device interface {
	// Upload stores mesh, replacing prev when it is non-zero, and returns the
	// handle now holding the data.
	Upload(prev Buffer, mesh *meshing.MeshData) (Buffer, error)
	// Release frees a buffer. Releasing zero is a no-op.
	Release(b Buffer)
	// Draw submits the calls of one pass in order.
	Draw(pass registry.RenderPass, calls []DrawCall) error
}

// guardedDevice refuses every call made outside the guard.
type guardedDevice struct {
	guard *Guard
	dev   Device
}

// Guarded wraps dev so that each call is checked against g.
func Guarded(g *Guard, dev Device) Device {
	return &guardedDevice{guard: g, dev: dev}
}

func (d *guardedDevice) Upload(prev Buffer, mesh *meshing.MeshData) (Buffer, error) {
	if !d.guard.Check("upload") {
		return prev, ErrGuardViolation
	}
	return d.dev.Upload(prev, mesh)
}

func (d *guardedDevice) Release(b Buffer) {
	if !d.guard.Check("release") {
		return
	}
	d.dev.Release(b)
}

func (d *guardedDevice) Draw(pass registry.RenderPass, calls []DrawCall) error {
	if !d.guard.Check("draw") {
		return ErrGuardViolation
	}
	return d.dev.Draw(pass, calls)
}

// MemoryDevice is a Device that keeps meshes in memory. It backs headless
// runs and tests.
type MemoryDevice struct {
	next    Buffer
	buffers map[Buffer]*meshing.MeshData

	Uploads  int
	Releases int
	Draws    [registry.PassCount][]DrawCall // last draw of each pass

	// FailUploads makes every upload fail; used to exercise error paths.
	FailUploads bool
}

// NewMemoryDevice returns an empty device.
func NewMemoryDevice() *MemoryDevice {
	return &MemoryDevice{buffers: make(map[Buffer]*meshing.MeshData)}
}

func (d *MemoryDevice) Upload(prev Buffer, mesh *meshing.MeshData) (Buffer, error) {
	if d.FailUploads {
		return prev, fmt.Errorf("memory device: upload of %d quads refused", mesh.Quads)
	}
	d.Uploads++
	b := prev
	if _, ok := d.buffers[b]; !ok {
		d.next++
		b = d.next
	}
	d.buffers[b] = mesh
	return b, nil
}

func (d *MemoryDevice) Release(b Buffer) {
	if b == 0 {
		return
	}
	if _, ok := d.buffers[b]; ok {
		delete(d.buffers, b)
		d.Releases++
	}
}

func (d *MemoryDevice) Draw(pass registry.RenderPass, calls []DrawCall) error {
	for _, c := range calls {
		if _, ok := d.buffers[c.Buffer]; !ok {
			return fmt.Errorf("memory device: draw of unknown buffer %d", c.Buffer)
		}
	}
	d.Draws[pass] = append(d.Draws[pass][:0], calls...)
	return nil
}

// Mesh returns the data held by a buffer.
func (d *MemoryDevice) Mesh(b Buffer) *meshing.MeshData {
	return d.buffers[b]
}

// Live returns the number of buffers currently allocated.
func (d *MemoryDevice) Live() int {
	return len(d.buffers)
}
