// Package graphics draws terrain meshes with OpenGL 4.1 core.
package graphics

import (
	_ "embed"
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"terrain-mesher/internal/meshing"
	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/render"
)

var (
	//go:embed shaders/terrain.vert
	terrainVert string
	//go:embed shaders/terrain.frag
	terrainFrag string
)

// SkyColor is the clear colour of a frame.
var SkyColor = mgl32.Vec4{0.62, 0.76, 1.0, 1.0}

type glMesh struct {
	vao, vbo uint32
	capacity int // bytes
	quads    int
}

// Device is a render.Device backed by one VAO and VBO per buffer and a
// shared quad index buffer. It must only be used on the goroutine that owns
// the GL context.
type Device struct {
	shader  *Shader
	buffers map[render.Buffer]*glMesh
	next    render.Buffer

	ebo      uint32
	eboQuads int

	viewProj mgl32.Mat4
	frac     mgl32.Vec3
}

// NewDevice compiles the terrain program. The GL context must be current.
func NewDevice() (*Device, error) {
	shader, err := NewShader(terrainVert, terrainFrag)
	if err != nil {
		return nil, fmt.Errorf("terrain shader: %w", err)
	}
	d := &Device{shader: shader, buffers: make(map[render.Buffer]*glMesh)}
	gl.GenBuffers(1, &d.ebo)
	d.ensureIndices(4096)
	return d, glError("create device")
}

// BeginFrame clears the framebuffer and sets the camera for the draws that
// follow.
func (d *Device) BeginFrame(vp *render.Viewport, width, height int) {
	gl.Viewport(0, 0, int32(width), int32(height))
	gl.ClearColor(SkyColor[0], SkyColor[1], SkyColor[2], SkyColor[3])
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LEQUAL)
	d.viewProj = vp.ViewProjection()
	d.frac = vp.Fraction()
}

func (d *Device) Upload(prev render.Buffer, mesh *meshing.MeshData) (render.Buffer, error) {
	if mesh.IsEmpty() {
		return prev, fmt.Errorf("graphics: upload of an empty mesh")
	}
	b, m := prev, d.buffers[prev]
	if m == nil {
		m = &glMesh{}
		gl.GenVertexArrays(1, &m.vao)
		gl.GenBuffers(1, &m.vbo)
		gl.BindVertexArray(m.vao)
		gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)
		gl.EnableVertexAttribArray(0)
		gl.VertexAttribIPointer(0, meshing.VertexWords, gl.UNSIGNED_INT, meshing.VertexWords*4, gl.PtrOffset(0))
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, d.ebo)
		d.next++
		b = d.next
		d.buffers[b] = m
	} else {
		gl.BindVertexArray(m.vao)
		gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)
	}

	size := len(mesh.Vertices) * 4
	if size > m.capacity || size < m.capacity/4 {
		gl.BufferData(gl.ARRAY_BUFFER, size, gl.Ptr(mesh.Vertices), gl.STATIC_DRAW)
		m.capacity = size
	} else {
		gl.BufferSubData(gl.ARRAY_BUFFER, 0, size, gl.Ptr(mesh.Vertices))
	}
	m.quads = mesh.Quads
	gl.BindVertexArray(0)
	d.ensureIndices(mesh.Quads)

	if err := glError("upload"); err != nil {
		d.Release(b)
		return 0, err
	}
	return b, nil
}

func (d *Device) Release(b render.Buffer) {
	m := d.buffers[b]
	if m == nil {
		return
	}
	gl.DeleteVertexArrays(1, &m.vao)
	gl.DeleteBuffers(1, &m.vbo)
	delete(d.buffers, b)
}

func (d *Device) Draw(pass registry.RenderPass, calls []render.DrawCall) error {
	if len(calls) == 0 {
		return nil
	}
	d.shader.Use()
	d.shader.SetMatrix4("uViewProj", d.viewProj)
	d.shader.SetVector3("uFrac", d.frac)

	switch pass {
	case registry.PassOpaque:
		gl.Enable(gl.CULL_FACE)
		gl.Disable(gl.BLEND)
	case registry.PassCutout:
		gl.Disable(gl.CULL_FACE)
		gl.Disable(gl.BLEND)
	case registry.PassTranslucent:
		gl.Disable(gl.CULL_FACE)
		gl.Enable(gl.BLEND)
		gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
		gl.DepthMask(false)
		defer gl.DepthMask(true)
	}

	for _, c := range calls {
		m := d.buffers[c.Buffer]
		if m == nil {
			return fmt.Errorf("graphics: draw of unknown buffer %d", c.Buffer)
		}
		d.shader.SetVector3("uOffset", c.Offset)
		gl.BindVertexArray(m.vao)
		gl.DrawElements(gl.TRIANGLES, int32(min(c.Quads, m.quads)*6), gl.UNSIGNED_INT, gl.PtrOffset(0))
	}
	gl.BindVertexArray(0)
	return glError("draw " + pass.String())
}

// Live returns the number of buffers currently allocated.
func (d *Device) Live() int {
	return len(d.buffers)
}

// Delete frees every buffer and the program.
func (d *Device) Delete() {
	for b := range d.buffers {
		d.Release(b)
	}
	gl.DeleteBuffers(1, &d.ebo)
	d.shader.Delete()
}

// ensureIndices grows the shared index buffer to cover n quads. VAOs refer
// to the buffer by name, so reallocating its storage keeps them valid. No
// VAO may be bound.
func (d *Device) ensureIndices(n int) {
	if n <= d.eboQuads {
		return
	}
	quads := max(n, d.eboQuads*2)
	idx := quadIndices(quads)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, d.ebo)
	gl.BufferData(gl.COPY_WRITE_BUFFER, len(idx)*4, gl.Ptr(idx), gl.STATIC_DRAW)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	d.eboQuads = quads
}

// quadIndices returns two counter-clockwise triangles per quad.
func quadIndices(quads int) []uint32 {
	idx := make([]uint32, 0, quads*6)
	for q := range quads {
		v := uint32(q * 4)
		idx = append(idx, v, v+1, v+2, v, v+2, v+3)
	}
	return idx
}

func glError(label string) error {
	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("graphics: %s: GL error 0x%x", label, code)
	}
	return nil
}
