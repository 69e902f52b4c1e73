package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"terrain-mesher/internal/meshing"
	"terrain-mesher/internal/section"
)

var (
	// ErrTaskPanic wraps the value recovered from a panicking task.
	ErrTaskPanic = errors.New("scheduler: task panicked")
	// ErrNoResult is reported when a task returned neither a result nor an error.
	ErrNoResult = errors.New("scheduler: task returned no result")
)

// Outcome describes what Submit did with a task.
type Outcome uint8

const (
	// Queued: the task was added to the queue.
	Queued Outcome = iota
	// Replaced: a queued task for the same section was superseded.
	Replaced
	// Deferred: a task for the section is executing; this one runs after it.
	Deferred
	// Dropped: the task was discarded.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Queued:
		return "queued"
	case Replaced:
		return "replaced"
	case Deferred:
		return "deferred"
	default:
		return "dropped"
	}
}

// Completion is a finished task waiting to be drained by the render
// goroutine. Result is nil when Err is set.
type Completion struct {
	Pos        section.Pos
	Generation uint64
	Kind       meshing.Kind
	Result     *meshing.Result
	Err        error
	Worker     int
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Workers   int
	Queued    int
	InFlight  int
	Deferred  int
	Ready     int // completions not drained yet
	Completed uint64
	Failed    uint64
	Cancelled uint64
	Busy      time.Duration // total task execution time
}

// Options configures a Scheduler.
type Options struct {
	// Workers is the pool size. Zero means one less than the CPU count.
	Workers int
	// Pool provides build contexts. Nil creates a flat-lit pool.
	Pool *meshing.ContextPool
	// OnStart is called on the worker goroutine right before a task runs.
	OnStart func(task meshing.Task)
}

// DefaultWorkers returns the pool size used when none is configured.
func DefaultWorkers() int {
	return max(runtime.NumCPU()-1, 1)
}

type running struct {
	task  meshing.Task
	token *meshing.CancellationToken
	epoch uint64
}

// Scheduler runs build tasks on a fixed pool of workers.
//
// At most one task per section executes at a time. Submitting for a section
// that is queued replaces the queued task; submitting for a section that is
// executing defers the task until the running one finishes. Results are
// collected in a queue the render goroutine drains without blocking.
type Scheduler struct {
	pool    *meshing.ContextPool
	onStart func(meshing.Task)
	workers int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	work     *sync.Cond // signalled when the queue grows or on shutdown
	idle     *sync.Cond // signalled when a task finishes
	closed   bool
	queue    taskQueue
	queued   map[section.Pos]*item
	deferred map[section.Pos]*item
	running  map[section.Pos]*running
	seq      uint64
	epoch    uint64

	completions []Completion
	spare       []Completion

	completed, failed, cancelled uint64
	busy                         time.Duration
}

// New starts a scheduler. It stops when ctx is cancelled or Close is called.
func New(ctx context.Context, opts Options) *Scheduler {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	pool := opts.Pool
	if pool == nil {
		pool = meshing.NewContextPool(meshing.LightFlat)
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Scheduler{
		pool:     pool,
		onStart:  opts.OnStart,
		workers:  workers,
		ctx:      ctx,
		cancel:   cancel,
		queued:   make(map[section.Pos]*item),
		deferred: make(map[section.Pos]*item),
		running:  make(map[section.Pos]*running),
	}
	s.work = sync.NewCond(&s.mu)
	s.idle = sync.NewCond(&s.mu)

	context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.closed = true
		for _, r := range s.running {
			r.token.Cancel()
		}
		s.work.Broadcast()
		s.idle.Broadcast()
		s.mu.Unlock()
	})

	for i := range workers {
		s.wg.Add(1)
		go s.worker(i)
	}
	return s
}

// Workers returns the size of the pool.
func (s *Scheduler) Workers() int { return s.workers }

// Submit hands a task to the scheduler.
//
// A queued task for the same section is replaced in place and its priority
// promoted to the higher of the two. A task for a section that is currently
// executing is deferred; the latest deferred task wins. A sort never
// replaces a rebuild.
func (s *Scheduler) Submit(task meshing.Task, prio Priority) Outcome {
	pos := task.Pos()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Dropped
	}

	if _, busy := s.running[pos]; busy {
		if d := s.deferred[pos]; d != nil {
			if !supersedes(task, d.task) {
				return Dropped
			}
			d.task = task
			d.prio = max(d.prio, prio)
			return Deferred
		}
		s.deferred[pos] = &item{task: task, prio: prio, index: -1}
		return Deferred
	}

	if it := s.queued[pos]; it != nil {
		if !supersedes(task, it.task) {
			return Dropped
		}
		it.task = task
		if prio > it.prio {
			it.prio = prio
			s.queue.fix(it)
		}
		return Replaced
	}

	s.enqueueLocked(&item{task: task, prio: prio})
	return Queued
}

// supersedes reports whether next may take the place of prev.
func supersedes(next, prev meshing.Task) bool {
	return !(next.Kind() == meshing.KindSort && prev.Kind() == meshing.KindRebuild)
}

func (s *Scheduler) enqueueLocked(it *item) {
	s.seq++
	it.seq = s.seq
	s.queue.push(it)
	s.queued[it.task.Pos()] = it
	s.work.Signal()
}

// Cancel drops queued and deferred work for a section and cancels the task
// executing for it, if any. The cancelled task's result is never delivered.
func (s *Scheduler) Cancel(pos section.Pos) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it := s.queued[pos]; it != nil {
		s.queue.remove(it)
		delete(s.queued, pos)
		s.cancelled++
	}
	if _, ok := s.deferred[pos]; ok {
		delete(s.deferred, pos)
		s.cancelled++
	}
	if r := s.running[pos]; r != nil {
		r.token.Cancel()
	}
}

// CancelAll cancels every executing task and discards all queued, deferred
// and undelivered work. Workers keep running.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	for _, r := range s.running {
		r.token.Cancel()
	}
	s.cancelled += uint64(len(s.queue) + len(s.deferred) + len(s.completions))
	clear(s.queue)
	s.queue = s.queue[:0]
	clear(s.queued)
	clear(s.deferred)
	clear(s.completions)
	s.completions = s.completions[:0]
	s.idle.Broadcast()
}

// Drain passes every completion delivered so far to fn, in completion order,
// and returns how many there were. It never blocks on running tasks.
func (s *Scheduler) Drain(fn func(Completion)) int {
	s.mu.Lock()
	batch := s.completions
	s.completions = s.spare[:0]
	s.mu.Unlock()

	for _, c := range batch {
		fn(c)
	}
	n := len(batch)

	clear(batch)
	s.mu.Lock()
	s.spare = batch[:0]
	s.mu.Unlock()
	return n
}

// Busy reports whether a section has work queued, deferred or executing.
func (s *Scheduler) Busy(pos section.Pos) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, q := s.queued[pos]
	_, d := s.deferred[pos]
	_, r := s.running[pos]
	return q || d || r
}

func (s *Scheduler) idleLocked() bool {
	return len(s.queue) == 0 && len(s.deferred) == 0 && len(s.running) == 0
}

// WaitIdle blocks until no task is queued, deferred or executing. It does
// not wait for completions to be drained.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.idle.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.idleLocked() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.closed {
			return context.Canceled
		}
		s.idle.Wait()
	}
	return nil
}

// Stats returns current counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Workers:   s.workers,
		Queued:    len(s.queue),
		InFlight:  len(s.running),
		Deferred:  len(s.deferred),
		Ready:     len(s.completions),
		Completed: s.completed,
		Failed:    s.failed,
		Cancelled: s.cancelled,
		Busy:      s.busy,
	}
}

// Close cancels all work and waits for the workers to exit.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.work.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		it := s.queue.pop()
		pos := it.task.Pos()
		delete(s.queued, pos)
		r := &running{task: it.task, token: meshing.NewCancellationToken(), epoch: s.epoch}
		s.running[pos] = r
		s.mu.Unlock()

		if s.onStart != nil {
			s.onStart(it.task)
		}
		start := time.Now()
		c := s.execute(id, it.task, r.token)
		s.finish(r, c, time.Since(start))
	}
}

// execute runs one task. Panics and errors are turned into a completion
// carrying the error so the worker survives.
func (s *Scheduler) execute(id int, task meshing.Task, token *meshing.CancellationToken) (c Completion) {
	c = Completion{Pos: task.Pos(), Generation: task.Generation(), Kind: task.Kind(), Worker: id}
	ctx := s.pool.Get()
	defer s.pool.Put(ctx)
	defer func() {
		if v := recover(); v != nil {
			c.Result = nil
			c.Err = fmt.Errorf("%w: %v", ErrTaskPanic, v)
			log.Printf("[scheduler] worker %d: %s task for section %v (gen %d) panicked: %v\n%s",
				id, c.Kind, c.Pos, c.Generation, v, debug.Stack())
		}
	}()

	res, err := task.Execute(ctx, token)
	switch {
	case err != nil:
		c.Err = err
		if !errors.Is(err, meshing.ErrCancelled) {
			log.Printf("[scheduler] worker %d: %s task for section %v (gen %d) failed: %v",
				id, c.Kind, c.Pos, c.Generation, err)
		}
	case res == nil:
		c.Err = ErrNoResult
		log.Printf("[scheduler] worker %d: %s task for section %v (gen %d) returned no result",
			id, c.Kind, c.Pos, c.Generation)
	default:
		c.Result = res
	}
	return c
}

func (s *Scheduler) finish(r *running, c Completion, took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, c.Pos)
	s.busy += took

	switch {
	case r.token.IsCancelled() || r.epoch != s.epoch || errors.Is(c.Err, meshing.ErrCancelled):
		s.cancelled++
	default:
		if c.Err != nil {
			s.failed++
		} else {
			s.completed++
		}
		s.completions = append(s.completions, c)
	}

	if d := s.deferred[c.Pos]; d != nil {
		delete(s.deferred, c.Pos)
		if !s.closed {
			s.enqueueLocked(d)
		}
	}
	s.idle.Broadcast()
}
