package profiling

import (
	"testing"
	"time"
)

func TestTopNOrdersByDuration(t *testing.T) {
	p := New()
	p.Add("terrain.drain", 2100*time.Microsecond)
	p.Add("terrain.submit", 4200*time.Microsecond)
	p.Add("terrain.visibility", 3*time.Millisecond)

	if got, want := p.TopN(2), "terrain.submit:4.2ms, terrain.visibility:3ms"; got != want {
		t.Fatalf("TopN(2) = %q, want %q", got, want)
	}
	if got := p.TopN(10); got != "terrain.submit:4.2ms, terrain.visibility:3ms, terrain.drain:2.1ms" {
		t.Fatalf("TopN(10) = %q", got)
	}
}

func TestResetFrame(t *testing.T) {
	p := New()
	stop := p.Track("terrain.upload")
	stop()
	p.Add("terrain.upload", time.Millisecond)
	if p.Count("terrain.upload") != 2 {
		t.Fatalf("count = %d, want 2", p.Count("terrain.upload"))
	}
	p.ResetFrame()
	if len(p.Snapshot()) != 0 || p.TopN(3) != "" {
		t.Fatalf("totals survived ResetFrame: %v", p.Snapshot())
	}
}

func TestNilProfiler(t *testing.T) {
	var p *Profiler
	p.Track("x")()
	p.ResetFrame()
	if p.TopN(1) != "" || p.Count("x") != 0 {
		t.Fatalf("nil profiler recorded data")
	}
}
