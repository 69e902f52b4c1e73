package meshing

import (
	"errors"
	"time"

	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/section"
)

// ErrCancelled is returned by a task that stopped because its token was
// cancelled. It is a normal outcome, not a failure.
var ErrCancelled = errors.New("meshing: task cancelled")

// Kind distinguishes the task types.
type Kind uint8

const (
	KindRebuild Kind = iota
	KindSort
)

func (k Kind) String() string {
	if k == KindSort {
		return "sort"
	}
	return "rebuild"
}

// Task is an immutable unit of off-thread work. Everything it needs is
// captured when it is created; Execute must not touch live world state and
// must return ErrCancelled promptly once its token is cancelled.
type Task interface {
	Pos() section.Pos
	Generation() uint64
	Kind() Kind
	Execute(ctx *BuildContext, token *CancellationToken) (*Result, error)
}

// Result is the output of a task, handed to the render goroutine.
type Result struct {
	Pos        section.Pos
	Generation uint64
	Kind       Kind
	// Meshes is indexed by render pass; nil entries carry no geometry.
	// Sort results only set the translucent entry.
	Meshes   [registry.PassCount]*MeshData
	Empty    bool
	Duration time.Duration
}

// Mesh returns the geometry of a pass, or nil.
func (r *Result) Mesh(pass registry.RenderPass) *MeshData {
	if int(pass) >= len(r.Meshes) {
		return nil
	}
	return r.Meshes[pass]
}

// QuadCount returns the number of quads over all passes.
func (r *Result) QuadCount() int {
	n := 0
	for _, m := range r.Meshes {
		if m != nil {
			n += m.Quads
		}
	}
	return n
}
