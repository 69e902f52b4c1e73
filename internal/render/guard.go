package render

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// ErrGuardViolation is the panic value (wrapped) raised by a strict Guard
// when GPU state is touched outside managed code.
var ErrGuardViolation = errors.New("render: GPU access outside managed code")

// Guard marks the stretches of render-goroutine code that may touch GPU
// resources. Enter and Exit nest. The goroutine that enters at depth zero
// owns the guard until its matching Exit; device calls from any other
// goroutine, or made at depth zero, are refused: a strict guard panics, a
// lenient one logs and skips the call.
type Guard struct {
	owner      atomic.Int64 // goroutine id of the holder, 0 when free
	depth      atomic.Int32
	strict     bool
	violations atomic.Uint64
}

// NewGuard creates a guard. strict selects panicking over skipping.
func NewGuard(strict bool) *Guard {
	return &Guard{strict: strict}
}

// Enter opens a managed block. Entering while another goroutine holds the
// guard is a violation and leaves the guard unchanged.
func (g *Guard) Enter() {
	id := goid.Get()
	if g.owner.Load() == id {
		g.depth.Add(1)
		return
	}
	if !g.owner.CompareAndSwap(0, id) {
		g.violate(fmt.Sprintf("Enter from goroutine %d while held by %d", id, g.owner.Load()))
		return
	}
	g.depth.Store(1)
}

// Exit closes the innermost managed block.
func (g *Guard) Exit() {
	if g.owner.Load() != goid.Get() {
		g.violate("unbalanced Exit")
		return
	}
	if g.depth.Add(-1) <= 0 {
		g.depth.Store(0)
		g.owner.Store(0)
	}
}

// Do runs fn inside a managed block.
func (g *Guard) Do(fn func()) {
	g.Enter()
	defer g.Exit()
	fn()
}

// Depth returns the current nesting depth.
func (g *Guard) Depth() int {
	return int(g.depth.Load())
}

// Active reports whether the calling goroutine may touch GPU state.
func (g *Guard) Active() bool {
	return g.owner.Load() == goid.Get()
}

// Check reports whether op may run. Outside managed code it panics in
// strict mode and returns false otherwise.
func (g *Guard) Check(op string) bool {
	if g.Active() {
		return true
	}
	g.violate(op)
	return false
}

// Violations returns how many checks failed in lenient mode.
func (g *Guard) Violations() uint64 {
	return g.violations.Load()
}

func (g *Guard) violate(op string) {
	err := fmt.Errorf("%w: %s", ErrGuardViolation, op)
	if g.strict {
		panic(err)
	}
	g.violations.Add(1)
	log.Printf("[render] %v (skipped)", err)
}
