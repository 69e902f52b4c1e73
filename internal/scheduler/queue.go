package scheduler

import (
	"container/heap"

	"terrain-mesher/internal/meshing"
)

// Priority orders queued tasks. Higher values run first.
type Priority uint8

const (
	Background Priority = iota
	Important
)

func (p Priority) String() string {
	if p == Important {
		return "important"
	}
	return "background"
}

type item struct {
	task  meshing.Task
	prio  Priority
	seq   uint64
	index int
}

// taskQueue is a heap of items, important first and FIFO within a class.
type taskQueue []*item

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].prio != q[j].prio {
		return q[i].prio > q[j].prio
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	it := x.(*item)
	it.index = len(*q)
	*q = append(*q, it)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*q = old[:n-1]
	return it
}

func (q *taskQueue) push(it *item) { heap.Push(q, it) }

func (q *taskQueue) pop() *item { return heap.Pop(q).(*item) }

func (q *taskQueue) fix(it *item) { heap.Fix(q, it.index) }

func (q *taskQueue) remove(it *item) {
	if it.index >= 0 {
		heap.Remove(q, it.index)
	}
}
