package disk

import (
	"errors"
	"sync"

	"github.com/mit-pdos/ezos/util"
)

var ErrQueueFull = errors.New("disk: no free request slot")

type request struct {
	inUse bool
	done  bool
	write bool
	id    uint64
	buf   Block
}

// QueuedDisk is a request-queue front end to a Device in the style of a
// virtio block device: requests are submitted without waiting and identified
// by a token; the device finishes them in the background, appends the token
// to the used ring, and signals an interrupt through notify.
type QueuedDisk struct {
	mu     *sync.Mutex
	dev    Device
	slots  []request
	used   []uint16
	notify func()
}

func NewQueuedDisk(dev Device, channels int) *QueuedDisk {
	return &QueuedDisk{
		mu:    new(sync.Mutex),
		dev:   dev,
		slots: make([]request, channels),
	}
}

// SetNotify installs the interrupt callback invoked after each completion.
func (q *QueuedDisk) SetNotify(f func()) {
	q.mu.Lock()
	q.notify = f
	q.mu.Unlock()
}

func (q *QueuedDisk) Channels() int {
	return len(q.slots)
}

func (q *QueuedDisk) submit(write bool, id uint64, buf Block) (uint16, error) {
	q.mu.Lock()
	var token int = -1
	for i := range q.slots {
		if !q.slots[i].inUse {
			token = i
			break
		}
	}
	if token < 0 {
		q.mu.Unlock()
		return 0, ErrQueueFull
	}
	q.slots[token] = request{inUse: true, write: write, id: id, buf: buf}
	q.mu.Unlock()
	util.DPrintf(10, "queued disk: submit %d write=%v id=%d\n", token, write, id)
	q.process(uint16(token))
	return uint16(token), nil
}

// process performs the transfer for token and raises the completion.
func (q *QueuedDisk) process(token uint16) {
	q.mu.Lock()
	r := q.slots[token]
	q.mu.Unlock()
	if r.write {
		q.dev.WriteBlock(r.id, r.buf)
	} else {
		q.dev.ReadBlock(r.id, r.buf)
	}
	q.mu.Lock()
	q.slots[token].done = true
	q.used = append(q.used, token)
	notify := q.notify
	q.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// ReadBlockNB starts reading block id into buf and returns its token.
func (q *QueuedDisk) ReadBlockNB(id uint64, buf Block) (uint16, error) {
	return q.submit(false, id, buf)
}

// WriteBlockNB starts writing buf to block id and returns its token.
func (q *QueuedDisk) WriteBlockNB(id uint64, buf Block) (uint16, error) {
	return q.submit(true, id, buf)
}

// PeekUsed returns the oldest completed token without consuming it.
func (q *QueuedDisk) PeekUsed() (uint16, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.used) == 0 {
		return 0, false
	}
	return q.used[0], true
}

// PopUsed consumes the completion of token and frees its slot.
func (q *QueuedDisk) PopUsed(token uint16) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, t := range q.used {
		if t == token {
			q.used = append(q.used[:i], q.used[i+1:]...)
			q.slots[token] = request{}
			return
		}
	}
	panic("PopUsed: token not completed")
}

// ReadBlock is the synchronous path: submit and consume at once.
func (q *QueuedDisk) ReadBlock(id uint64, buf Block) {
	token, err := q.ReadBlockNB(id, buf)
	if err != nil {
		panic(err)
	}
	q.PopUsed(token)
}

func (q *QueuedDisk) WriteBlock(id uint64, buf Block) {
	token, err := q.WriteBlockNB(id, buf)
	if err != nil {
		panic(err)
	}
	q.PopUsed(token)
}
