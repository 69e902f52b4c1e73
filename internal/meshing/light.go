package meshing

// QuadLight is the light of the four corners of a quad, in corner order
// (u0,v0) (u1,v0) (u1,v1) (u0,v1). Light is packed sky<<4|block and AO is
// the number of occluders around the corner (0..3).
type QuadLight struct {
	Light [4]uint8
	AO    [4]uint8
}

// LightPipeline computes per-corner lighting for a unit face.
type LightPipeline interface {
	// Calculate lights the face of the block at section-local (x, y, z).
	Calculate(s *Snapshot, x, y, z int, face Face, out *QuadLight)
	// Reset drops cached samples before a new snapshot is processed.
	Reset()
}

// LightMode selects a LightPipeline implementation.
type LightMode uint8

const (
	LightFlat LightMode = iota
	LightSmooth
)

func newLightPipeline(mode LightMode) LightPipeline {
	if mode == LightSmooth {
		return NewSmoothLight()
	}
	return FlatLight{}
}

var cornerSigns = [4][2]int{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}

// FlatLight uses the light of the block in front of the face for all four
// corners.
type FlatLight struct{}

func (FlatLight) Calculate(s *Snapshot, x, y, z int, face Face, out *QuadLight) {
	nx, ny, nz := face.Normal()
	l := s.Light(x+nx, y+ny, z+nz)
	out.Light = [4]uint8{l, l, l, l}
	out.AO = [4]uint8{}
}

func (FlatLight) Reset() {}

// SmoothLight averages the light of the four blocks touching each corner in
// front of the face and derives ambient occlusion from the same samples.
// All arithmetic is integer so results are reproducible.
type SmoothLight struct {
	epoch uint32
	stamp [haloVolume]uint32
	cache [haloVolume]uint16 // light | occludes<<8
}

// NewSmoothLight returns a smooth lighting pipeline with an empty cache.
func NewSmoothLight() *SmoothLight {
	return &SmoothLight{epoch: 1}
}

func (p *SmoothLight) Reset() {
	p.epoch++
	if p.epoch == 0 {
		p.stamp = [haloVolume]uint32{}
		p.epoch = 1
	}
}

func (p *SmoothLight) sample(s *Snapshot, x, y, z int) (light uint8, occludes bool) {
	i := haloIndex(x, y, z)
	if p.stamp[i] != p.epoch {
		v := uint16(s.light[i])
		if s.registry.Get(s.blocks[i]).Occludes {
			v |= 1 << 8
		}
		p.cache[i] = v
		p.stamp[i] = p.epoch
	}
	v := p.cache[i]
	return uint8(v), v&(1<<8) != 0
}

func (p *SmoothLight) Calculate(s *Snapshot, x, y, z int, face Face, out *QuadLight) {
	a := faces[face]
	var front [3]int
	front[0], front[1], front[2] = x, y, z
	front[a.n] += a.dir

	for c, sign := range cornerSigns {
		side1, side2, diag := front, front, front
		side1[a.u] += sign[0]
		side2[a.v] += sign[1]
		diag[a.u] += sign[0]
		diag[a.v] += sign[1]

		fl, _ := p.sample(s, front[0], front[1], front[2])
		l1, o1 := p.sample(s, side1[0], side1[1], side1[2])
		l2, o2 := p.sample(s, side2[0], side2[1], side2[2])
		ld, od := p.sample(s, diag[0], diag[1], diag[2])

		var sky, blk, n uint32
		add := func(l uint8) {
			sky += uint32(l >> 4)
			blk += uint32(l & 0xF)
			n++
		}
		add(fl)
		if !o1 {
			add(l1)
		}
		if !o2 {
			add(l2)
		}
		if !od && !(o1 && o2) {
			add(ld)
		}
		out.Light[c] = PackLight(uint8(sky/n), uint8(blk/n))

		switch {
		case o1 && o2:
			out.AO[c] = 3
		default:
			out.AO[c] = b2u(o1) + b2u(o2) + b2u(od)
		}
	}
}

func b2u(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
