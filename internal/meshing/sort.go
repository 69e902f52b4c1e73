package meshing

import (
	"cmp"
	"slices"
	"time"

	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/section"
)

const sortCheckInterval = 256

// SortTask reorders already built translucent quads back to front as seen
// from a camera position. It is much cheaper than a rebuild and is used
// when only the viewpoint changed.
type SortTask struct {
	pos        section.Pos
	generation uint64
	mesh       *MeshData
	camera     QuadCenter // section-local, twice the fixed-point position
}

// NewSortTask creates a sort task. mesh is read but never modified. The
// camera is given in section-local fixed-point units (see PositionScale).
func NewSortTask(pos section.Pos, gen uint64, mesh *MeshData, cx, cy, cz int) *SortTask {
	return &SortTask{
		pos:        pos,
		generation: gen,
		mesh:       mesh,
		camera:     QuadCenter{int32(cx * 2), int32(cy * 2), int32(cz * 2)},
	}
}

func (t *SortTask) Pos() section.Pos   { return t.pos }
func (t *SortTask) Generation() uint64 { return t.generation }
func (t *SortTask) Kind() Kind         { return KindSort }

type sortKey struct {
	quad int
	dist int64
}

// Execute produces a new translucent mesh in back-to-front order. Ties keep
// their original order.
func (t *SortTask) Execute(_ *BuildContext, token *CancellationToken) (*Result, error) {
	start := time.Now()
	if token.IsCancelled() {
		return nil, ErrCancelled
	}
	res := &Result{Pos: t.pos, Generation: t.generation, Kind: KindSort}
	src := t.mesh
	if src.IsEmpty() || len(src.Centers) != src.Quads {
		res.Empty = true
		return res, nil
	}

	keys := make([]sortKey, src.Quads)
	for i, c := range src.Centers {
		if i%sortCheckInterval == 0 && token.IsCancelled() {
			return nil, ErrCancelled
		}
		dx := int64(c[0] - t.camera[0])
		dy := int64(c[1] - t.camera[1])
		dz := int64(c[2] - t.camera[2])
		keys[i] = sortKey{quad: i, dist: dx*dx + dy*dy + dz*dz}
	}
	slices.SortStableFunc(keys, func(a, b sortKey) int {
		return cmp.Compare(b.dist, a.dist)
	})

	out := &MeshData{
		Vertices: make([]uint32, 0, len(src.Vertices)),
		Centers:  make([]QuadCenter, 0, len(src.Centers)),
		Quads:    src.Quads,
	}
	for i, k := range keys {
		if i%sortCheckInterval == 0 && token.IsCancelled() {
			return nil, ErrCancelled
		}
		off := k.quad * QuadWords
		out.Vertices = append(out.Vertices, src.Vertices[off:off+QuadWords]...)
		out.Centers = append(out.Centers, src.Centers[k.quad])
	}
	res.Meshes[registry.PassTranslucent] = out
	res.Duration = time.Since(start)
	return res, nil
}
