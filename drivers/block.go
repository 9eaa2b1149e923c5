package drivers

import (
	"github.com/mit-pdos/ezos/disk"
	"github.com/mit-pdos/ezos/ksync"
	"github.com/mit-pdos/ezos/util"
)

var _ disk.Device = (*AsyncBlock)(nil)

// AsyncBlock is a block device that puts the calling thread to sleep while
// its request is in flight. Each request slot of the queue has a condition
// variable; the completion interrupt signals it. With no current thread
// (during boot) it waits synchronously.
type AsyncBlock struct {
	q     *disk.QueuedDisk
	sched ksync.Scheduler
	conds []*ksync.Condvar
	done  []bool
}

func NewAsyncBlock(q *disk.QueuedDisk, s ksync.Scheduler) *AsyncBlock {
	b := &AsyncBlock{
		q:     q,
		sched: s,
		conds: make([]*ksync.Condvar, q.Channels()),
		done:  make([]bool, q.Channels()),
	}
	for i := range b.conds {
		b.conds[i] = ksync.NewCondvar(s)
	}
	return b
}

func (b *AsyncBlock) ReadBlock(id uint64, buf disk.Block) {
	if b.sched.Current() == nil {
		b.q.ReadBlock(id, buf)
		return
	}
	token, err := b.q.ReadBlockNB(id, buf)
	if err != nil {
		panic(err)
	}
	b.wait(token)
}

func (b *AsyncBlock) WriteBlock(id uint64, buf disk.Block) {
	if b.sched.Current() == nil {
		b.q.WriteBlock(id, buf)
		return
	}
	token, err := b.q.WriteBlockNB(id, buf)
	if err != nil {
		panic(err)
	}
	b.wait(token)
}

func (b *AsyncBlock) wait(token uint16) {
	if !b.done[token] {
		b.conds[token].WaitNoLock()
	}
	b.done[token] = false
}

// HandleIRQ consumes every completion and wakes its waiter.
func (b *AsyncBlock) HandleIRQ() {
	for {
		token, ok := b.q.PeekUsed()
		if !ok {
			return
		}
		b.q.PopUsed(token)
		util.DPrintf(10, "block: complete %d\n", token)
		b.done[token] = true
		b.conds[token].Signal()
	}
}
