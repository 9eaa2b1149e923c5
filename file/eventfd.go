package file

import (
	"math"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/ezos/mm"
)

type EventFdFlag uint32

const (
	EFD_SEMAPHORE EventFdFlag = 1
	EFD_NONBLOCK  EventFdFlag = 2048
)

const eventFdFlagMask = EFD_SEMAPHORE | EFD_NONBLOCK

func (f EventFdFlag) Valid() bool {
	return f&^eventFdFlagMask == 0
}

// EventFd is a 64-bit counter. Reads drain it (or take one unit in
// semaphore mode); writes add to it. Values move as 8 little-endian bytes.
type EventFd struct {
	semaphore bool
	nonblock  bool
	val       uint64
	sched     Sched
	readers   []interface{}
	writers   []interface{}
}

func NewEventFd(s Sched, initval uint32, flags EventFdFlag) *EventFd {
	return &EventFd{
		semaphore: flags&EFD_SEMAPHORE != 0,
		nonblock:  flags&EFD_NONBLOCK != 0,
		val:       uint64(initval),
		sched:     s,
	}
}

func (e *EventFd) Readable() bool { return true }
func (e *EventFd) Writable() bool { return true }
func (e *EventFd) Seekable() bool { return false }

func (e *EventFd) Value() uint64 {
	return e.val
}

func (e *EventFd) tryRead() (uint64, bool) {
	if e.val == 0 {
		return 0, false
	}
	if e.semaphore {
		e.val--
		return 1, true
	}
	v := e.val
	e.val = 0
	return v, true
}

func (e *EventFd) wait(q *[]interface{}) {
	*q = append(*q, e.sched.Current())
	e.sched.Block()
}

func (e *EventFd) wakeOne(q *[]interface{}) {
	for len(*q) > 0 {
		w := (*q)[0]
		*q = (*q)[1:]
		if e.sched.Wakeup(w) {
			return
		}
	}
}

func (e *EventFd) Read(buf *mm.UserBuffer) (uint64, error) {
	if buf.Len() < 8 {
		return 0, ErrInvalid
	}
	for {
		v, ok := e.tryRead()
		if ok {
			enc := marshal.NewEnc(8)
			enc.PutInt(v)
			buf.Fill(enc.Finish())
			e.wakeOne(&e.writers)
			return 8, nil
		}
		if e.nonblock {
			return 0, ErrAgain
		}
		e.wait(&e.readers)
	}
}

func (e *EventFd) Write(buf *mm.UserBuffer) (uint64, error) {
	if buf.Len() != 8 {
		return 0, ErrInvalid
	}
	v := marshal.NewDec(buf.Bytes()).GetInt()
	if v == math.MaxUint64 {
		return 0, ErrInvalid
	}
	for {
		if e.val < math.MaxUint64-v {
			e.val += v
			if e.val > 0 {
				e.wakeOne(&e.readers)
			}
			return 8, nil
		}
		if e.nonblock {
			return 0, ErrAgain
		}
		e.wait(&e.writers)
	}
}

func (e *EventFd) Seek(off int64, whence int) (uint64, error) {
	return 0, ErrNotSeekable
}
