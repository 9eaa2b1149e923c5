package task

import (
	"container/heap"
)

type sleeper struct {
	expireMs uint64
	seq      uint64
	task     *TaskControlBlock
}

// SleepQueue is a min-heap of sleepers by expiry; ties wake in the order
// they slept.
type SleepQueue struct {
	h   sleepHeap
	seq uint64
}

type sleepHeap []sleeper

func (h sleepHeap) Len() int { return len(h) }
func (h sleepHeap) Less(i, j int) bool {
	if h[i].expireMs != h[j].expireMs {
		return h[i].expireMs < h[j].expireMs
	}
	return h[i].seq < h[j].seq
}
func (h sleepHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *sleepHeap) Push(x interface{}) { *h = append(*h, x.(sleeper)) }
func (h *sleepHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (q *SleepQueue) Add(expireMs uint64, t *TaskControlBlock) {
	heap.Push(&q.h, sleeper{expireMs: expireMs, seq: q.seq, task: t})
	q.seq++
}

func (q *SleepQueue) Remove(t *TaskControlBlock) {
	h := q.h[:0]
	for _, s := range q.h {
		if s.task != t {
			h = append(h, s)
		}
	}
	q.h = h
	heap.Init(&q.h)
}

// Expired pops every sleeper due at or before now.
func (q *SleepQueue) Expired(now uint64) []*TaskControlBlock {
	var ts []*TaskControlBlock
	for len(q.h) > 0 && q.h[0].expireMs <= now {
		ts = append(ts, heap.Pop(&q.h).(sleeper).task)
	}
	return ts
}

func (q *SleepQueue) Earliest() (uint64, bool) {
	if len(q.h) == 0 {
		return 0, false
	}
	return q.h[0].expireMs, true
}

func (q *SleepQueue) Len() int {
	return len(q.h)
}
