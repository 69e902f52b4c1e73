package world

import (
	"context"
	"log"
	"runtime"
	"sync"

	"terrain-mesher/internal/profiling"
)

// Streamer generates columns around a point on background goroutines and
// hands the loaded ones back to the caller through Poll.
type Streamer struct {
	store *Store
	src   ColumnSource
	prof  *profiling.Profiler

	jobs   chan ColumnPos
	loaded chan ColumnPos

	mu         sync.Mutex
	pending    map[ColumnPos]struct{}
	failed     map[ColumnPos]struct{}
	maxPending int

	maxJobsPerCall int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStreamer starts one generation worker per CPU. prof may be nil.
func NewStreamer(ctx context.Context, store *Store, src ColumnSource, prof *profiling.Profiler) *Streamer {
	ctx, cancel := context.WithCancel(ctx)
	s := &Streamer{
		store:          store,
		src:            src,
		prof:           prof,
		jobs:           make(chan ColumnPos, 1024),
		loaded:         make(chan ColumnPos, 1024),
		pending:        make(map[ColumnPos]struct{}),
		failed:         make(map[ColumnPos]struct{}),
		maxPending:     1024,
		maxJobsPerCall: 256,
		ctx:            ctx,
		cancel:         cancel,
	}
	workers := max(runtime.NumCPU()-1, 1)
	s.wg.Add(workers)
	for range workers {
		go s.worker()
	}
	return s
}

// Close stops the workers and waits for them to exit.
func (s *Streamer) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Streamer) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case c := <-s.jobs:
			s.generate(c)
			s.mu.Lock()
			delete(s.pending, c)
			s.mu.Unlock()
		}
	}
}

func (s *Streamer) generate(c ColumnPos) {
	if s.store.HasColumn(c) {
		return
	}
	defer s.prof.Track("world.generate")()
	col := s.store.NewColumn(c)
	if err := s.src.Populate(col); err != nil {
		log.Printf("[world] column %d,%d: %v", c.X, c.Z, err)
		s.mu.Lock()
		s.failed[c] = struct{}{}
		s.mu.Unlock()
		return
	}
	s.store.PutColumn(col)
	select {
	case s.loaded <- c:
	case <-s.ctx.Done():
	}
}

// LoadSync generates every missing column within radius of (cx, cz) on the
// calling goroutine and returns them in ring order. It stops at the first
// error.
func (s *Streamer) LoadSync(cx, cz, radius int) ([]ColumnPos, error) {
	var (
		out []ColumnPos
		err error
	)
	forEachRing(cx, cz, radius, func(c ColumnPos) bool {
		if s.store.HasColumn(c) {
			return true
		}
		col := s.store.NewColumn(c)
		if err = s.src.Populate(col); err != nil {
			return false
		}
		s.store.PutColumn(col)
		out = append(out, c)
		return true
	})
	return out, err
}

// Request queues missing columns within radius of (cx, cz), nearest ring
// first. It never blocks and returns the number of columns queued.
func (s *Streamer) Request(cx, cz, radius int) int {
	queued := 0
	forEachRing(cx, cz, radius, func(c ColumnPos) bool {
		if s.enqueue(c) {
			queued++
		}
		return queued < s.maxJobsPerCall
	})
	return queued
}

func (s *Streamer) enqueue(c ColumnPos) bool {
	if s.store.HasColumn(c) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.failed[c]; ok {
		return false
	}
	if _, ok := s.pending[c]; ok || len(s.pending) >= s.maxPending {
		return false
	}
	select {
	case s.jobs <- c:
		s.pending[c] = struct{}{}
		return true
	default:
		return false
	}
}

// Poll calls fn for every column loaded since the last call.
func (s *Streamer) Poll(fn func(ColumnPos)) int {
	n := 0
	for {
		select {
		case c := <-s.loaded:
			fn(c)
			n++
		default:
			return n
		}
	}
}

// Pending returns the number of columns queued or generating.
func (s *Streamer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// EvictFar removes columns farther than radius from (cx, cz). Columns that
// failed to load out there are forgotten so they are retried on return.
func (s *Streamer) EvictFar(cx, cz, radius int) []ColumnPos {
	s.mu.Lock()
	for c := range s.failed {
		if dx, dz := c.X-cx, c.Z-cz; dx*dx+dz*dz > radius*radius {
			delete(s.failed, c)
		}
	}
	s.mu.Unlock()
	return s.store.EvictFar(cx, cz, radius)
}

// forEachRing visits the square rings around (cx, cz) from the centre out
// until fn returns false.
func forEachRing(cx, cz, radius int, fn func(ColumnPos) bool) {
	if !fn(ColumnPos{cx, cz}) {
		return
	}
	for r := 1; r <= radius; r++ {
		x0, x1, z0, z1 := cx-r, cx+r, cz-r, cz+r
		for x := x0; x <= x1; x++ {
			if !fn(ColumnPos{x, z0}) {
				return
			}
		}
		for z := z0 + 1; z <= z1; z++ {
			if !fn(ColumnPos{x1, z}) {
				return
			}
		}
		for x := x1 - 1; x >= x0; x-- {
			if !fn(ColumnPos{x, z1}) {
				return
			}
		}
		for z := z1 - 1; z > z0; z-- {
			if !fn(ColumnPos{x0, z}) {
				return
			}
		}
	}
}
