package meshing

import "terrain-mesher/internal/registry"

// AlphaCutoff is the fragment alpha threshold below which a material discards.
type AlphaCutoff uint8

const (
	CutoffZero AlphaCutoff = iota
	CutoffOneTenth
	CutoffHalf
	CutoffOne
)

// Material is the per-vertex shader configuration of a quad.
type Material struct {
	Pass        registry.RenderPass
	AlphaCutoff AlphaCutoff
	Mipped      bool
}

var (
	MaterialSolid       = Material{Pass: registry.PassOpaque, AlphaCutoff: CutoffZero, Mipped: true}
	MaterialCutout      = Material{Pass: registry.PassCutout, AlphaCutoff: CutoffOneTenth, Mipped: false}
	MaterialTranslucent = Material{Pass: registry.PassTranslucent, AlphaCutoff: CutoffZero, Mipped: true}
)

// MaterialFor returns the default material of a render pass.
func MaterialFor(pass registry.RenderPass) Material {
	switch pass {
	case registry.PassCutout:
		return MaterialCutout
	case registry.PassTranslucent:
		return MaterialTranslucent
	default:
		return MaterialSolid
	}
}

// Bits packs the material parameters into the vertex material field.
func (m Material) Bits() uint8 {
	b := uint8(m.AlphaCutoff) & 0b11
	if m.Mipped {
		b |= 1 << 2
	}
	return b
}
