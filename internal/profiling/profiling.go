package profiling

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Profiler accumulates wall time per named stage over one frame. It is safe
// for concurrent use; workers and the render goroutine may share one.
type Profiler struct {
	mu     sync.Mutex
	totals map[string]time.Duration
	counts map[string]int
}

// New returns an empty profiler.
func New() *Profiler {
	return &Profiler{
		totals: make(map[string]time.Duration),
		counts: make(map[string]int),
	}
}

// Track returns a stop function that records the elapsed time under name.
// Usage: defer p.Track("terrain.drain")()
//
// A nil profiler records nothing.
func (p *Profiler) Track(name string) func() {
	if p == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		p.Add(name, time.Since(start))
	}
}

// Add records d under name.
func (p *Profiler) Add(name string, d time.Duration) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.totals[name] += d
	p.counts[name]++
	p.mu.Unlock()
}

// ResetFrame clears the current totals. Call it at the start of a frame.
func (p *Profiler) ResetFrame() {
	if p == nil {
		return
	}
	p.mu.Lock()
	clear(p.totals)
	clear(p.counts)
	p.mu.Unlock()
}

// Snapshot returns a copy of the current totals.
func (p *Profiler) Snapshot() map[string]time.Duration {
	out := make(map[string]time.Duration)
	if p == nil {
		return out
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range p.totals {
		out[k] = v
	}
	return out
}

// Count returns how many times name was recorded this frame.
func (p *Profiler) Count(name string) int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[name]
}

// TopN formats the n most expensive stages, e.g.
// "terrain.submit:4.2ms, terrain.drain:2.1ms".
func (p *Profiler) TopN(n int) string {
	type stage struct {
		name string
		dur  time.Duration
	}
	snap := p.Snapshot()
	list := make([]stage, 0, len(snap))
	for k, v := range snap {
		list = append(list, stage{k, v})
	}
	slices.SortFunc(list, func(a, b stage) int {
		return cmp.Or(cmp.Compare(b.dur, a.dur), strings.Compare(a.name, b.name))
	})
	n = min(n, len(list))
	parts := make([]string, 0, n)
	for _, s := range list[:n] {
		parts = append(parts, fmt.Sprintf("%s:%sms", s.name, formatMs(s.dur)))
	}
	return strings.Join(parts, ", ")
}

// formatMs prints milliseconds with one decimal, dropping a trailing ".0".
func formatMs(d time.Duration) string {
	tenths := d.Microseconds() / 100
	if tenths%10 == 0 {
		return fmt.Sprintf("%d", tenths/10)
	}
	return fmt.Sprintf("%d.%d", tenths/10, tenths%10)
}
