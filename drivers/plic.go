// Package drivers holds the devices the kernel core talks to: the
// platform interrupt controller, the block device front end, and the
// framebuffer, input and console devices.
package drivers

import (
	"sort"
	"sync"

	"github.com/mit-pdos/ezos/util"
)

// IRQ lines, as on the qemu virt board.
const (
	BlockIRQ    uint32 = 1
	KeyboardIRQ uint32 = 5
	MouseIRQ    uint32 = 6
	ConsoleIRQ  uint32 = 10
)

// Plic collects device interrupts and presents them to the hart as one
// external interrupt line. Devices may raise from any goroutine.
type Plic struct {
	mu       *sync.Mutex
	pending  map[uint32]bool
	claimed  map[uint32]bool
	handlers map[uint32]func()
}

func NewPlic() *Plic {
	return &Plic{
		mu:       new(sync.Mutex),
		pending:  make(map[uint32]bool),
		claimed:  make(map[uint32]bool),
		handlers: make(map[uint32]func()),
	}
}

func (p *Plic) Register(irq uint32, h func()) {
	p.mu.Lock()
	p.handlers[irq] = h
	p.mu.Unlock()
}

func (p *Plic) Raise(irq uint32) {
	p.mu.Lock()
	p.pending[irq] = true
	p.mu.Unlock()
}

// Pending is the external interrupt line: some raised irq is not yet
// claimed.
func (p *Plic) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for irq := range p.pending {
		if !p.claimed[irq] {
			return true
		}
	}
	return false
}

// Claim takes the lowest numbered pending irq.
func (p *Plic) Claim() (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var irqs []uint32
	for irq := range p.pending {
		if !p.claimed[irq] {
			irqs = append(irqs, irq)
		}
	}
	if len(irqs) == 0 {
		return 0, false
	}
	sort.Slice(irqs, func(i, j int) bool { return irqs[i] < irqs[j] })
	irq := irqs[0]
	delete(p.pending, irq)
	p.claimed[irq] = true
	return irq, true
}

func (p *Plic) Complete(irq uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.claimed[irq] {
		panic("plic: complete of unclaimed irq")
	}
	delete(p.claimed, irq)
}

// Dispatch claims and handles irqs until none is pending.
func (p *Plic) Dispatch() {
	for {
		irq, ok := p.Claim()
		if !ok {
			return
		}
		p.mu.Lock()
		h := p.handlers[irq]
		p.mu.Unlock()
		if h != nil {
			h()
		} else {
			util.DPrintf(1, "plic: unexpected irq %d\n", irq)
		}
		p.Complete(irq)
	}
}
