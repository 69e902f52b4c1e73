package render

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"terrain-mesher/internal/section"
)

// frustum culling margin in blocks (inflates AABBs before testing)
const frustumMargin float32 = 1.0

type plane struct{ a, b, c, d float32 }

// Viewport is the per-frame camera state. The camera position is split into
// an integer block and a fractional offset; culling and draw offsets are
// computed relative to the block, so precision does not depend on how far
// the camera is from the world origin.
type Viewport struct {
	block          [3]int
	frac           mgl32.Vec3
	view, proj     mgl32.Mat4
	planes         [6]plane
	renderDistance int
}

// NewViewport builds a viewport. view must be a camera-relative view matrix
// (camera at the origin); distance is the render distance in sections.
func NewViewport(pos mgl64.Vec3, view, proj mgl32.Mat4, distance int) *Viewport {
	v := &Viewport{view: view, proj: proj, renderDistance: distance}
	for i := 0; i < 3; i++ {
		f := math.Floor(pos[i])
		v.block[i] = int(f)
		v.frac[i] = float32(pos[i] - f)
	}
	v.planes = extractFrustumPlanes(proj.Mul4(view))
	return v
}

// LookViewport builds a viewport from a camera position, yaw and pitch in
// degrees and a vertical field of view.
func LookViewport(pos mgl64.Vec3, yaw, pitch, fovY, aspect float32, distance int) *Viewport {
	y, p := mgl32.DegToRad(yaw), mgl32.DegToRad(pitch)
	front := mgl32.Vec3{
		float32(math.Cos(float64(y)) * math.Cos(float64(p))),
		float32(math.Sin(float64(p))),
		float32(math.Sin(float64(y)) * math.Cos(float64(p))),
	}.Normalize()
	view := mgl32.LookAtV(mgl32.Vec3{}, front, mgl32.Vec3{0, 1, 0})
	far := float32((distance + 1) * section.Size * 2)
	proj := mgl32.Perspective(mgl32.DegToRad(fovY), aspect, 0.05, far)
	return NewViewport(pos, view, proj, distance)
}

// Block returns the block containing the camera.
func (v *Viewport) Block() (x, y, z int) {
	return v.block[0], v.block[1], v.block[2]
}

// Fraction returns the camera offset inside its block.
func (v *Viewport) Fraction() mgl32.Vec3 {
	return v.frac
}

// Section returns the section containing the camera.
func (v *Viewport) Section() section.Pos {
	return section.PosFromBlock(v.block[0], v.block[1], v.block[2])
}

// RenderDistance returns the view radius in sections.
func (v *Viewport) RenderDistance() int {
	return v.renderDistance
}

// ViewProjection returns proj*view for shaders.
func (v *Viewport) ViewProjection() mgl32.Mat4 {
	return v.proj.Mul4(v.view)
}

// InRange reports whether p lies within the render distance of the camera
// section, measured horizontally as a circle and vertically as a slab.
func (v *Viewport) InRange(p section.Pos) bool {
	c := v.Section()
	dx, dy, dz := p.X-c.X, p.Y-c.Y, p.Z-c.Z
	r := v.renderDistance
	return dx*dx+dz*dz <= r*r && dy >= -r && dy <= r
}

// Offset returns the section origin relative to the camera block.
func (v *Viewport) Offset(p section.Pos) [3]float32 {
	x, y, z := p.Origin()
	return [3]float32{
		float32(x - v.block[0]),
		float32(y - v.block[1]),
		float32(z - v.block[2]),
	}
}

// SectionVisible tests the section box against the frustum.
func (v *Viewport) SectionVisible(p section.Pos) bool {
	o := v.Offset(p)
	minx := o[0] - v.frac[0] - frustumMargin
	miny := o[1] - v.frac[1] - frustumMargin
	minz := o[2] - v.frac[2] - frustumMargin
	const size = float32(section.Size) + 2*frustumMargin
	return aabbIntersectsFrustumPlanes(minx, miny, minz, minx+size, miny+size, minz+size, v.planes)
}

// LocalCamera returns the camera position relative to a section origin in
// vertex fixed-point units.
func (v *Viewport) LocalCamera(p section.Pos, scale int) (x, y, z int) {
	o := v.Offset(p)
	s := float32(scale)
	return int((v.frac[0] - o[0]) * s), int((v.frac[1] - o[1]) * s), int((v.frac[2] - o[2]) * s)
}

// extractFrustumPlanes builds six planes from the combined projection*view matrix.
// Planes are returned in order: left, right, bottom, top, near, far.
func extractFrustumPlanes(clip mgl32.Mat4) [6]plane {
	// column-major: row i is clip[i], clip[i+4], clip[i+8], clip[i+12]
	row := func(i int) plane {
		return plane{clip[i], clip[i+4], clip[i+8], clip[i+12]}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)
	add := func(a, b plane) plane { return plane{a.a + b.a, a.b + b.b, a.c + b.c, a.d + b.d} }
	sub := func(a, b plane) plane { return plane{a.a - b.a, a.b - b.b, a.c - b.c, a.d - b.d} }
	return [6]plane{
		normalizePlane(add(r3, r0)),
		normalizePlane(sub(r3, r0)),
		normalizePlane(add(r3, r1)),
		normalizePlane(sub(r3, r1)),
		normalizePlane(add(r3, r2)),
		normalizePlane(sub(r3, r2)),
	}
}

func normalizePlane(p plane) plane {
	l := float32(math.Sqrt(float64(p.a*p.a + p.b*p.b + p.c*p.c)))
	if l == 0 {
		return p
	}
	return plane{p.a / l, p.b / l, p.c / l, p.d / l}
}

// aabbIntersectsFrustumPlanes tests an AABB against precomputed planes using
// the positive vertex of each plane.
func aabbIntersectsFrustumPlanes(minx, miny, minz, maxx, maxy, maxz float32, planes [6]plane) bool {
	for _, p := range planes {
		px, py, pz := maxx, maxy, maxz
		if p.a < 0 {
			px = minx
		}
		if p.b < 0 {
			py = miny
		}
		if p.c < 0 {
			pz = minz
		}
		if p.a*px+p.b*py+p.c*pz+p.d < 0 {
			return false
		}
	}
	return true
}
