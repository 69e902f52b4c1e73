package render

import (
	"errors"
	"testing"
	"time"

	"terrain-mesher/internal/meshing"
	"terrain-mesher/internal/registry"
)

func TestGuardNesting(t *testing.T) {
	g := NewGuard(true)
	if g.Active() {
		t.Fatal("new guard is active")
	}
	g.Enter()
	g.Do(func() {
		if g.Depth() != 2 {
			t.Errorf("Depth = %d, want 2", g.Depth())
		}
	})
	if !g.Active() || g.Depth() != 1 {
		t.Errorf("after Do: active=%v depth=%d", g.Active(), g.Depth())
	}
	g.Exit()
	if g.Active() {
		t.Error("guard still active after final Exit")
	}
}

func expectViolation(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrGuardViolation) {
			t.Errorf("recovered %v, want ErrGuardViolation", r)
		}
	}()
	fn()
}

func TestStrictGuardPanics(t *testing.T) {
	g := NewGuard(true)
	expectViolation(t, func() { g.Check("upload") })
	expectViolation(t, func() { g.Exit() })
	if g.Depth() != 0 {
		t.Errorf("Depth after unbalanced Exit = %d, want 0", g.Depth())
	}
}

func TestLenientGuardSkips(t *testing.T) {
	g := NewGuard(false)
	mem := NewMemoryDevice()
	dev := Guarded(g, mem)
	mesh := &meshing.MeshData{Vertices: make([]uint32, 4*meshing.VertexWords), Quads: 1}

	b, err := dev.Upload(0, mesh)
	if !errors.Is(err, ErrGuardViolation) || b != 0 {
		t.Errorf("Upload outside guard = %d, %v", b, err)
	}
	if mem.Uploads != 0 {
		t.Errorf("device saw %d uploads, want 0", mem.Uploads)
	}
	if err := dev.Draw(registry.PassOpaque, nil); !errors.Is(err, ErrGuardViolation) {
		t.Errorf("Draw outside guard = %v", err)
	}
	if g.Violations() != 2 {
		t.Errorf("Violations = %d, want 2", g.Violations())
	}

	g.Do(func() {
		b, err = dev.Upload(0, mesh)
	})
	if err != nil || b == 0 || mem.Live() != 1 {
		t.Fatalf("Upload inside guard = %d, %v (live %d)", b, err, mem.Live())
	}
	dev.Release(b)
	if mem.Live() != 1 {
		t.Error("Release outside guard freed the buffer")
	}
	g.Do(func() { dev.Release(b) })
	if mem.Live() != 0 || mem.Releases != 1 {
		t.Errorf("live=%d releases=%d after guarded Release", mem.Live(), mem.Releases)
	}
}

// onOtherGoroutine runs fn on a fresh goroutine and returns what it
// recovered, if anything.
func onOtherGoroutine(t *testing.T, fn func()) (recovered any) {
	t.Helper()
	done := make(chan any, 1)
	go func() {
		defer func() { done <- recover() }()
		fn()
	}()
	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("goroutine did not finish")
		return nil
	}
}

func TestGuardBelongsToEnteringGoroutine(t *testing.T) {
	g := NewGuard(true)
	g.Enter()
	defer g.Exit()

	r := onOtherGoroutine(t, func() { g.Check("upload") })
	if err, ok := r.(error); !ok || !errors.Is(err, ErrGuardViolation) {
		t.Errorf("Check from another goroutine recovered %v, want ErrGuardViolation", r)
	}
	r = onOtherGoroutine(t, func() { g.Do(func() {}) })
	if err, ok := r.(error); !ok || !errors.Is(err, ErrGuardViolation) {
		t.Errorf("Enter from another goroutine recovered %v, want ErrGuardViolation", r)
	}
	if !g.Active() || g.Depth() != 1 {
		t.Errorf("holder lost the guard: active=%v depth=%d", g.Active(), g.Depth())
	}
}

func TestLenientGuardSkipsForeignDeviceCalls(t *testing.T) {
	g := NewGuard(false)
	mem := NewMemoryDevice()
	dev := Guarded(g, mem)
	mesh := &meshing.MeshData{Vertices: make([]uint32, 4*meshing.VertexWords), Quads: 1}

	var err error
	g.Do(func() {
		onOtherGoroutine(t, func() { _, err = dev.Upload(0, mesh) })
	})
	if !errors.Is(err, ErrGuardViolation) || mem.Uploads != 0 {
		t.Errorf("Upload from a worker while the guard is held = %v (uploads %d)", err, mem.Uploads)
	}

	// the guard is free again once the holder exits
	onOtherGoroutine(t, func() {
		g.Do(func() { _, err = dev.Upload(0, mesh) })
	})
	if err != nil || mem.Uploads != 1 {
		t.Errorf("Upload after hand-over = %v (uploads %d)", err, mem.Uploads)
	}
}

func TestMemoryDeviceReusesBuffer(t *testing.T) {
	d := NewMemoryDevice()
	a := &meshing.MeshData{Quads: 1}
	b := &meshing.MeshData{Quads: 2}

	h1, _ := d.Upload(0, a)
	h2, _ := d.Upload(h1, b)
	if h1 != h2 {
		t.Errorf("re-upload moved buffer %d -> %d", h1, h2)
	}
	if d.Mesh(h2) != b {
		t.Error("buffer does not hold the latest mesh")
	}
	if err := d.Draw(registry.PassOpaque, []DrawCall{{Buffer: h2, Quads: 2}}); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if err := d.Draw(registry.PassOpaque, []DrawCall{{Buffer: 99}}); err == nil {
		t.Error("Draw of unknown buffer succeeded")
	}
	d.FailUploads = true
	if _, err := d.Upload(0, a); err == nil {
		t.Error("FailUploads did not fail")
	}
}
