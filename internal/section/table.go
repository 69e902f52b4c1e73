package section

import (
	"sync"
	"time"
)

// Sections that exhausted their retries are tried again after a backoff
// that doubles with every further failure.
const (
	retryBackoff    = time.Second
	maxRetryBackoff = 30 * time.Second
)

// Submission describes a section whose current generation has not yet been
// handed to the scheduler.
type Submission struct {
	Pos        Pos
	Generation uint64
	Important  bool
}

type record struct {
	status     Status
	generation uint64 // expected generation; results must match it to be applied
	submitted  uint64 // newest generation handed to the scheduler
	building   uint64 // generation of the task currently executing, 0 if none
	important  bool
	rebuild    bool // re-dirtied while building; resubmitted once the build settles
	failures   int
	retryAt    time.Time
}

// Counts is a per-status tally of the sections in a table.
type Counts [statusCount]int

// Get returns the number of sections in the given status.
func (c Counts) Get(s Status) int {
	if s >= statusCount {
		return 0
	}
	return c[s]
}

// Table tracks the build status of every loaded section.
//
// Records exist only for loaded sections. Unknown positions report
// StatusEmpty and ignore dirty marks. Generations come from a single
// table-wide sequence so they never repeat, even across Unload and Reset.
//
// The render goroutine owns all transitions except MarkBuilding, which is
// called by workers when they pick a task up.
type Table struct {
	mu      sync.Mutex
	records map[Pos]*record
	seq     uint64

	minY, maxY int
	maxRetries int
	now        func() time.Time
}

// NewTable creates a table for a world spanning section Y in [minY, maxY].
// Failed builds are retried until maxRetries consecutive failures.
func NewTable(minY, maxY, maxRetries int) *Table {
	if maxY < minY {
		minY, maxY = maxY, minY
	}
	return &Table{
		records:    make(map[Pos]*record),
		minY:       minY,
		maxY:       maxY,
		maxRetries: max(maxRetries, 1),
		now:        time.Now,
	}
}

// Bounds returns the vertical section range of the world.
func (t *Table) Bounds() (minY, maxY int) {
	return t.minY, t.maxY
}

func (t *Table) nextGeneration() uint64 {
	t.seq++
	return t.seq
}

func (t *Table) markLocked(r *record, important bool) uint64 {
	r.generation = t.nextGeneration()
	r.important = r.important || important
	r.failures = 0
	r.retryAt = time.Time{}
	if r.status == StatusBuilding {
		r.rebuild = true
	} else {
		r.status = StatusPending
	}
	return r.generation
}

// Load registers a section and marks it dirty. Loading an already known
// section behaves like a dirty mark.
func (t *Table) Load(pos Pos) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.records[pos]
	if r == nil {
		r = &record{}
		t.records[pos] = r
	}
	return t.markLocked(r, false)
}

// LoadColumn loads every section of the column at section (x, z).
func (t *Table) LoadColumn(x, z int) []Pos {
	out := make([]Pos, 0, t.maxY-t.minY+1)
	for y := t.minY; y <= t.maxY; y++ {
		p := Pos{X: x, Y: y, Z: z}
		t.Load(p)
		out = append(out, p)
	}
	return out
}

// MarkDirty marks every loaded section intersecting area. An important
// mark first grows the area by one block so seam geometry in neighbouring
// sections is rebuilt too. It returns the sections that were marked.
func (t *Table) MarkDirty(area BlockArea, important bool) []Pos {
	if important {
		area = area.Expand(1)
	}
	var touched []Pos
	t.mu.Lock()
	defer t.mu.Unlock()
	area.Sections(func(p Pos) {
		if r := t.records[p]; r != nil {
			t.markLocked(r, important)
			touched = append(touched, p)
		}
	})
	return touched
}

// MarkSectionDirty marks a single section. It returns the new generation,
// or 0 when the section is not loaded.
func (t *Table) MarkSectionDirty(pos Pos, important bool) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.records[pos]
	if r == nil {
		return 0
	}
	return t.markLocked(r, important)
}

// MarkColumnDirty marks every loaded section of the column at section (x, z).
func (t *Table) MarkColumnDirty(x, z int, important bool) []Pos {
	var touched []Pos
	t.mu.Lock()
	defer t.mu.Unlock()
	for y := t.minY; y <= t.maxY; y++ {
		p := Pos{X: x, Y: y, Z: z}
		if r := t.records[p]; r != nil {
			t.markLocked(r, important)
			touched = append(touched, p)
		}
	}
	return touched
}

// Unload forgets a section. Its status becomes StatusEmpty and any result
// still in flight for it can no longer match a generation.
func (t *Table) Unload(pos Pos) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[pos]; !ok {
		return false
	}
	delete(t.records, pos)
	return true
}

// UnloadColumn forgets every section of the column at section (x, z).
func (t *Table) UnloadColumn(x, z int) []Pos {
	var removed []Pos
	t.mu.Lock()
	defer t.mu.Unlock()
	for y := t.minY; y <= t.maxY; y++ {
		p := Pos{X: x, Y: y, Z: z}
		if _, ok := t.records[p]; ok {
			delete(t.records, p)
			removed = append(removed, p)
		}
	}
	return removed
}

// Reset drops every record. The generation sequence keeps counting.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[Pos]*record)
}

// AppendPending appends every section whose current generation still has to
// be submitted. A section re-dirtied while building waits for that build to
// settle. Sections that exhausted their retries come back after a backoff.
func (t *Table) AppendPending(dst []Submission) []Submission {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for p, r := range t.records {
		switch {
		case r.status != StatusPending && r.status != StatusBuilding,
			r.status == StatusBuilding && r.rebuild,
			r.submitted >= r.generation,
			r.failures >= t.maxRetries && now.Before(r.retryAt):
			continue
		}
		dst = append(dst, Submission{Pos: p, Generation: r.generation, Important: r.important})
	}
	return dst
}

// MarkSubmitted records that a task for generation gen was handed to the
// scheduler. It reports false when the section moved on in the meantime.
func (t *Table) MarkSubmitted(pos Pos, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.records[pos]
	if r == nil || r.generation != gen {
		return false
	}
	r.submitted = gen
	return true
}

// MarkBuilding moves a section to StatusBuilding when a worker starts a
// task for its current generation. Tasks already outdated when they start
// leave the section pending for the newer generation.
func (t *Table) MarkBuilding(pos Pos, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.records[pos]
	if r == nil || gen != r.generation {
		return
	}
	r.status = StatusBuilding
	r.building = gen
}

// settleLocked ends the build of gen. A section that was re-dirtied while
// building returns to StatusPending with its re-dirty flag cleared, which
// lets AppendPending resubmit it.
func (t *Table) settleLocked(r *record, gen uint64) {
	if gen == 0 || r.building != gen {
		return
	}
	r.building = 0
	r.rebuild = false
	r.status = StatusPending
}

// Complete settles a finished build. When gen is the expected generation the
// section becomes StatusReady and Complete returns true; otherwise the
// result is stale and the section stays pending for its newer generation.
func (t *Table) Complete(pos Pos, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.records[pos]
	if r == nil {
		return false
	}
	if gen != r.generation {
		t.settleLocked(r, gen)
		return false
	}
	if r.building == gen {
		r.building = 0
	}
	r.status = StatusReady
	r.important = false
	r.rebuild = false
	r.failures = 0
	r.retryAt = time.Time{}
	return true
}

// Fail returns a section to StatusPending after a build error so it is
// submitted again. Past the retry limit each further attempt waits out a
// backoff.
func (t *Table) Fail(pos Pos, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.records[pos]
	if r == nil {
		return
	}
	t.settleLocked(r, gen)
	if gen == r.generation {
		r.failures++
		r.submitted = 0
		if n := r.failures - t.maxRetries; n >= 0 {
			r.retryAt = t.now().Add(min(retryBackoff<<min(n, 5), maxRetryBackoff))
		}
	}
}

// Status returns the status of a section.
func (t *Table) Status(pos Pos) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r := t.records[pos]; r != nil {
		return r.status
	}
	return StatusEmpty
}

// Generation returns the expected generation of a section, 0 if unknown.
func (t *Table) Generation(pos Pos) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r := t.records[pos]; r != nil {
		return r.generation
	}
	return 0
}

// Current reports whether gen is still the expected generation of pos.
func (t *Table) Current(pos Pos, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.records[pos]
	return r != nil && r.generation == gen
}

// IsReady reports whether the section's latest mesh has been applied.
func (t *Table) IsReady(pos Pos) bool {
	return t.Status(pos) == StatusReady
}

// NeedsRebuild reports whether the section was re-dirtied while building.
func (t *Table) NeedsRebuild(pos Pos) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.records[pos]
	return r != nil && r.rebuild
}

// Stalled returns the number of sections that exhausted their retries and
// are waiting out a backoff.
func (t *Table) Stalled() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.records {
		if r.failures >= t.maxRetries {
			n++
		}
	}
	return n
}

// Len returns the number of loaded sections.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Counts tallies the loaded sections by status.
func (t *Table) Counts() Counts {
	var c Counts
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.records {
		c[r.status]++
	}
	return c
}

// AppendIf appends the position of every section whose status passes keep.
func (t *Table) AppendIf(dst []Pos, keep func(Status) bool) []Pos {
	t.mu.Lock()
	defer t.mu.Unlock()
	for p, r := range t.records {
		if keep(r.status) {
			dst = append(dst, p)
		}
	}
	return dst
}

// Entry pairs a loaded section with its status.
type Entry struct {
	Pos    Pos
	Status Status
}

// AppendEntries appends every loaded section with its status.
func (t *Table) AppendEntries(dst []Entry) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	for p, r := range t.records {
		dst = append(dst, Entry{Pos: p, Status: r.status})
	}
	return dst
}

// MarkAll marks every loaded section dirty and forgets builds in flight.
// It is meant to follow a cancellation of all scheduled work. It returns
// the number of sections marked.
func (t *Table) MarkAll(important bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.records {
		r.building = 0
		r.rebuild = false
		r.status = StatusPending
		t.markLocked(r, important)
	}
	return len(t.records)
}
