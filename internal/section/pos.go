package section

import "fmt"

const (
	// Shift converts between block and section coordinates.
	Shift = 4
	// Size is the edge length of a section in blocks.
	Size = 1 << Shift
	// Volume is the number of blocks in a section.
	Volume = Size * Size * Size
)

// Pos is a section position in section coordinates.
type Pos struct {
	X, Y, Z int
}

// PosFromBlock returns the section containing the given block.
func PosFromBlock(x, y, z int) Pos {
	return Pos{X: x >> Shift, Y: y >> Shift, Z: z >> Shift}
}

// Origin returns the block coordinates of the section's minimum corner.
func (p Pos) Origin() (x, y, z int) {
	return p.X << Shift, p.Y << Shift, p.Z << Shift
}

// Offset returns the position moved by the given number of sections.
func (p Pos) Offset(dx, dy, dz int) Pos {
	return Pos{X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz}
}

// DistanceSq returns the squared distance between two sections in section units.
func (p Pos) DistanceSq(o Pos) int {
	dx, dy, dz := p.X-o.X, p.Y-o.Y, p.Z-o.Z
	return dx*dx + dy*dy + dz*dz
}

func (p Pos) String() string {
	return fmt.Sprintf("[%d, %d, %d]", p.X, p.Y, p.Z)
}

// BlockArea is an inclusive axis-aligned box in block coordinates.
type BlockArea struct {
	MinX, MinY, MinZ int
	MaxX, MaxY, MaxZ int
}

// NewBlockArea builds an area from two corners in any order.
func NewBlockArea(x0, y0, z0, x1, y1, z1 int) BlockArea {
	return BlockArea{
		MinX: min(x0, x1), MinY: min(y0, y1), MinZ: min(z0, z1),
		MaxX: max(x0, x1), MaxY: max(y0, y1), MaxZ: max(z0, z1),
	}
}

// BlockAreaAt is the single-block area at (x, y, z).
func BlockAreaAt(x, y, z int) BlockArea {
	return BlockArea{MinX: x, MinY: y, MinZ: z, MaxX: x, MaxY: y, MaxZ: z}
}

// SectionArea covers every block of the given section.
func SectionArea(p Pos) BlockArea {
	x, y, z := p.Origin()
	return BlockArea{MinX: x, MinY: y, MinZ: z, MaxX: x + Size - 1, MaxY: y + Size - 1, MaxZ: z + Size - 1}
}

// Expand grows the area by n blocks on every side.
func (a BlockArea) Expand(n int) BlockArea {
	return BlockArea{
		MinX: a.MinX - n, MinY: a.MinY - n, MinZ: a.MinZ - n,
		MaxX: a.MaxX + n, MaxY: a.MaxY + n, MaxZ: a.MaxZ + n,
	}
}

// SectionBounds returns the first and last section intersecting the area.
func (a BlockArea) SectionBounds() (lo, hi Pos) {
	return PosFromBlock(a.MinX, a.MinY, a.MinZ), PosFromBlock(a.MaxX, a.MaxY, a.MaxZ)
}

// Sections calls fn for every section intersecting the area.
func (a BlockArea) Sections(fn func(Pos)) {
	lo, hi := a.SectionBounds()
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				fn(Pos{X: x, Y: y, Z: z})
			}
		}
	}
}
