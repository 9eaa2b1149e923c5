package drivers

import "sync"

// InputDevice yields packed input events: type in bits 48-63, code in
// 32-47, value in 0-31.
type InputDevice interface {
	ReadEvent() uint64
	IsEmpty() bool
}

func PackEvent(typ, code uint16, value uint32) uint64 {
	return uint64(typ)<<48 | uint64(code)<<32 | uint64(value)
}

var _ InputDevice = (*EventQueue)(nil)

// EventQueue is an input device fed by the host.
type EventQueue struct {
	mu     *sync.Mutex
	events []uint64
	plic   *Plic
	irq    uint32
}

// NewEventQueue makes a device that raises irq on plic for each event;
// plic may be nil.
func NewEventQueue(plic *Plic, irq uint32) *EventQueue {
	return &EventQueue{mu: new(sync.Mutex), plic: plic, irq: irq}
}

func (q *EventQueue) Push(typ, code uint16, value uint32) {
	q.mu.Lock()
	q.events = append(q.events, PackEvent(typ, code, value))
	q.mu.Unlock()
	if q.plic != nil {
		q.plic.Raise(q.irq)
	}
}

// ReadEvent pops the oldest event, or returns 0 when there is none.
func (q *EventQueue) ReadEvent() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return 0
	}
	e := q.events[0]
	q.events = q.events[1:]
	return e
}

func (q *EventQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events) == 0
}
