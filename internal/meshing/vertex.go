package meshing

// Face is the direction a quad faces.
type Face uint8

const (
	FaceDown Face = iota
	FaceUp
	FaceNorth // -Z
	FaceSouth // +Z
	FaceWest  // -X
	FaceEast  // +X

	FaceCount = 6
)

// faceAxes describes a face by its normal axis and the two in-plane axes.
// The axes are chosen so that u x v points along the normal, which makes
// the corner order (u0,v0) (u1,v0) (u1,v1) (u0,v1) counter-clockwise when
// seen from outside.
type faceAxes struct {
	n, u, v int // axis indices: 0=x 1=y 2=z
	dir     int // +1 or -1 along n
}

var faces = [FaceCount]faceAxes{
	FaceDown:  {n: 1, u: 0, v: 2, dir: -1},
	FaceUp:    {n: 1, u: 2, v: 0, dir: +1},
	FaceNorth: {n: 2, u: 1, v: 0, dir: -1},
	FaceSouth: {n: 2, u: 0, v: 1, dir: +1},
	FaceWest:  {n: 0, u: 2, v: 1, dir: -1},
	FaceEast:  {n: 0, u: 1, v: 2, dir: +1},
}

// Normal returns the unit normal of the face.
func (f Face) Normal() (x, y, z int) {
	var n [3]int
	a := faces[f]
	n[a.n] = a.dir
	return n[0], n[1], n[2]
}

const (
	// PositionScale is the fixed-point resolution of vertex positions,
	// in units per block.
	PositionScale = 32
	// VertexWords is the number of uint32 words per vertex.
	VertexWords = 3
	// QuadWords is the number of uint32 words per quad.
	QuadWords = 4 * VertexWords
)

// PackVertex encodes one vertex.
//
//	word0: x | y<<10 | z<<20          section-local, 1/PositionScale blocks
//	word1: light | ao<<8 | face<<10 | material<<16
//	word2: RGBA tint
func PackVertex(x, y, z int, face Face, material uint8, light, ao uint8, color uint32) (w0, w1, w2 uint32) {
	w0 = uint32(x)&0x3FF | (uint32(y)&0x3FF)<<10 | (uint32(z)&0x3FF)<<20
	w1 = uint32(light) | uint32(ao&0b11)<<8 | uint32(face&0b111)<<10 | uint32(material)<<16
	w2 = color
	return
}

// UnpackPosition decodes the fixed-point position of a packed vertex.
func UnpackPosition(w0 uint32) (x, y, z int) {
	return int(w0 & 0x3FF), int(w0 >> 10 & 0x3FF), int(w0 >> 20 & 0x3FF)
}

// UnpackAttributes decodes word1 of a packed vertex.
func UnpackAttributes(w1 uint32) (light, ao uint8, face Face, material uint8) {
	return uint8(w1), uint8(w1 >> 8 & 0b11), Face(w1 >> 10 & 0b111), uint8(w1 >> 16)
}

// QuadCenter is twice the centre of a quad in fixed-point units, which
// keeps it integral.
type QuadCenter [3]int32

// MeshData is the geometry of one render pass of a section. It is never
// modified after a task returns it.
type MeshData struct {
	Vertices []uint32
	Quads    int
	// Centers holds one entry per quad for translucent geometry only.
	Centers []QuadCenter
}

// VertexCount returns the number of vertices in the mesh.
func (m *MeshData) VertexCount() int {
	if m == nil {
		return 0
	}
	return len(m.Vertices) / VertexWords
}

// IsEmpty reports whether the mesh has no quads.
func (m *MeshData) IsEmpty() bool {
	return m == nil || m.Quads == 0
}
