package meshing

import (
	"time"

	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/section"
)

// RebuildTask meshes one section from its snapshot. Faces are merged
// greedily per layer; only faces with identical block state and lighting
// merge, so the output matches per-face meshing exactly.
type RebuildTask struct {
	snapshot *Snapshot
}

// NewRebuildTask creates a rebuild task for a captured snapshot.
func NewRebuildTask(s *Snapshot) *RebuildTask {
	return &RebuildTask{snapshot: s}
}

func (t *RebuildTask) Pos() section.Pos   { return t.snapshot.pos }
func (t *RebuildTask) Generation() uint64 { return t.snapshot.generation }
func (t *RebuildTask) Kind() Kind         { return KindRebuild }

// Execute builds the section. The token is polled once per layer.
func (t *RebuildTask) Execute(ctx *BuildContext, token *CancellationToken) (*Result, error) {
	start := time.Now()
	s := t.snapshot
	if token.IsCancelled() {
		return nil, ErrCancelled
	}
	res := &Result{Pos: s.pos, Generation: s.generation, Kind: KindRebuild}
	if s.IsEmpty() {
		res.Empty = true
		res.Duration = time.Since(start)
		return res, nil
	}

	for f := Face(0); f < FaceCount; f++ {
		for layer := 0; layer < section.Size; layer++ {
			if token.IsCancelled() {
				return nil, ErrCancelled
			}
			buildMask(ctx, s, f, layer)
			mergeMask(ctx, s, f, layer)
		}
	}

	for pass := range ctx.staging {
		res.Meshes[pass] = ctx.staging[pass].detach(registry.RenderPass(pass) == registry.PassTranslucent)
	}
	res.Empty = res.QuadCount() == 0
	res.Duration = time.Since(start)
	return res, nil
}

// faceVisible reports whether a face of state st is exposed towards the
// neighbouring block at q.
func faceVisible(s *Snapshot, st registry.State, q [3]int) bool {
	nb := s.Block(q[0], q[1], q[2])
	if nb == registry.Air {
		return true
	}
	if s.registry.Get(nb).Occludes {
		return false
	}
	// glass next to glass, water next to water
	return nb != st
}

func buildMask(ctx *BuildContext, s *Snapshot, f Face, layer int) {
	a := faces[f]
	for u := 0; u < section.Size; u++ {
		for v := 0; v < section.Size; v++ {
			e := &ctx.mask[u*section.Size+v]
			*e = maskEntry{}

			var p [3]int
			p[a.n], p[a.u], p[a.v] = layer, u, v
			st := s.Block(p[0], p[1], p[2])
			if st == registry.Air {
				continue
			}
			q := p
			q[a.n] += a.dir
			if !faceVisible(s, st, q) {
				continue
			}
			ctx.light.Calculate(s, p[0], p[1], p[2], f, &ctx.quad)
			*e = maskEntry{state: st, light: ctx.quad, set: true}
			if s.registry.Get(st).Fluid {
				e.surface = s.Block(p[0], p[1]+1, p[2]) != st
			}
		}
	}
}

func mergeMask(ctx *BuildContext, s *Snapshot, f Face, layer int) {
	const n = section.Size
	mask := &ctx.mask
	for i := 0; i < n*n; i++ {
		e := mask[i]
		if !e.set {
			continue
		}
		u0, v0 := i/n, i%n

		w := 1
		for v0+w < n && mask[u0*n+v0+w] == e {
			w++
		}
		h := 1
	grow:
		for u0+h < n {
			for v := v0; v < v0+w; v++ {
				if mask[(u0+h)*n+v] != e {
					break grow
				}
			}
			h++
		}

		emitQuad(ctx, s, f, layer, u0, v0, h, w, &e)

		for u := u0; u < u0+h; u++ {
			for v := v0; v < v0+w; v++ {
				mask[u*n+v] = maskEntry{}
			}
		}
	}
}

// fluidDrop is how far a fluid surface sits below the block top, in
// fixed-point units.
const fluidDrop = 2 * PositionScale / 16

// layerY returns the lowest block y, in fixed-point units, of a quad whose
// first corner is at (u0, v0) in layer.
func layerY(a faceAxes, layer, u0, v0 int) int {
	switch 1 {
	case a.u:
		return u0 * PositionScale
	case a.v:
		return v0 * PositionScale
	}
	return layer * PositionScale
}

func emitQuad(ctx *BuildContext, s *Snapshot, f Face, layer, u0, v0, h, w int, e *maskEntry) {
	a := faces[f]
	def := s.registry.Get(e.state)
	mat := MaterialFor(def.Pass).Bits()
	buf := &ctx.staging[def.Pass]

	plane := layer
	if a.dir > 0 {
		plane++
	}
	corners := [4][2]int{{u0, v0}, {u0 + h, v0}, {u0 + h, v0 + w}, {u0, v0 + w}}
	var pts [4][3]int
	for c, uv := range corners {
		p := &pts[c]
		p[a.n] = plane * PositionScale
		p[a.u] = uv[0] * PositionScale
		p[a.v] = uv[1] * PositionScale
		// a fluid surface sits below the top of its block; surface
		// entries never merge vertically, so only top corners move
		if e.surface && (a.n == 1 && a.dir > 0 || a.n != 1 && p[1] > layerY(a, layer, u0, v0)) {
			p[1] -= fluidDrop
		}
		w0, w1, w2 := PackVertex(p[0], p[1], p[2], f, mat, e.light.Light[c], e.light.AO[c], def.Tint)
		buf.vertices = append(buf.vertices, w0, w1, w2)
	}
	if def.Pass == registry.PassTranslucent {
		buf.centers = append(buf.centers, QuadCenter{
			int32(pts[0][0] + pts[2][0]),
			int32(pts[0][1] + pts[2][1]),
			int32(pts[0][2] + pts[2][2]),
		})
	}
	buf.quads++
}
