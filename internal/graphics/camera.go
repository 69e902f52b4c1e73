package graphics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"terrain-mesher/internal/render"
)

// Camera is a free-flying camera. Position is kept in float64 so it stays
// exact far from the origin; the viewport splits it before anything reaches
// float32.
type Camera struct {
	Position    mgl64.Vec3
	Yaw, Pitch  float64 // degrees; yaw 0 looks down +X
	FOV         float32
	Speed       float64 // blocks per second
	Sensitivity float64

	lastX, lastY float64
	firstMouse   bool
}

// NewCamera returns a camera at pos looking down +X.
func NewCamera(pos mgl64.Vec3) *Camera {
	return &Camera{
		Position:    pos,
		FOV:         70,
		Speed:       20,
		Sensitivity: 0.1,
		firstMouse:  true,
	}
}

// HandleMouse turns the camera by the cursor movement since the last call.
func (c *Camera) HandleMouse(xpos, ypos float64) {
	if c.firstMouse {
		c.lastX, c.lastY = xpos, ypos
		c.firstMouse = false
		return
	}
	c.Yaw += (xpos - c.lastX) * c.Sensitivity
	c.Pitch += (c.lastY - ypos) * c.Sensitivity
	c.lastX, c.lastY = xpos, ypos
	c.Pitch = min(max(c.Pitch, -89), 89)
}

// ResetMouse makes the next HandleMouse call only record the cursor.
func (c *Camera) ResetMouse() {
	c.firstMouse = true
}

// Front returns the unit view direction.
func (c *Camera) Front() mgl64.Vec3 {
	y, p := mgl64.DegToRad(c.Yaw), mgl64.DegToRad(c.Pitch)
	return mgl64.Vec3{
		math.Cos(y) * math.Cos(p),
		math.Sin(p),
		math.Sin(y) * math.Cos(p),
	}.Normalize()
}

// Move flies the camera. forward, right and up are in [-1, 1]; forward and
// right stay in the horizontal plane.
func (c *Camera) Move(forward, right, up, dt float64) {
	y := mgl64.DegToRad(c.Yaw)
	f := mgl64.Vec3{math.Cos(y), 0, math.Sin(y)}
	r := mgl64.Vec3{-math.Sin(y), 0, math.Cos(y)}
	dir := f.Mul(forward).Add(r.Mul(right)).Add(mgl64.Vec3{0, up, 0})
	if l := dir.Len(); l > 1 {
		dir = dir.Mul(1 / l)
	}
	c.Position = c.Position.Add(dir.Mul(c.Speed * dt))
}

// Viewport returns the frame viewport for the given aspect ratio and render
// distance in sections.
func (c *Camera) Viewport(aspect float32, distance int) *render.Viewport {
	return render.LookViewport(c.Position, float32(c.Yaw), float32(c.Pitch), c.FOV, aspect, distance)
}
