package mm

import (
	"fmt"
	"sync"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/ezos/util"
)

// Simulated kernel image, in pages from the start of RAM. The trampoline
// is the first text page.
const (
	textPages   uint64 = 16
	rodataPages uint64 = 8
	dataPages   uint64 = 8
	bssPages    uint64 = 32
	KernelPages        = textPages + rodataPages + dataPages + bssPages
)

// KernelLayout gives the physical extent of each kernel image section.
type KernelLayout struct {
	Text, Rodata, Data, Bss [2]PhysAddr
	End                     PhysAddr // ekernel
	MemoryEnd               PhysAddr
}

func (l KernelLayout) Trampoline() PhysPageNum {
	return l.Text[0].Floor()
}

// Memory is physical RAM plus a stack-style frame allocator over the pages
// after the kernel image.
type Memory struct {
	mu       sync.Mutex
	data     []byte
	base     PhysPageNum
	layout   KernelLayout
	current  PhysPageNum
	end      PhysPageNum
	recycled []PhysPageNum
}

func NewMemory(size uint64) *Memory {
	npages := size / PageSize
	if npages <= KernelPages {
		panic("NewMemory: memory too small for kernel image")
	}
	base := MemoryBase
	sect := func(start, n uint64) [2]PhysAddr {
		return [2]PhysAddr{base + PhysAddr(start*PageSize), base + PhysAddr((start+n)*PageSize)}
	}
	l := KernelLayout{
		Text:   sect(0, textPages),
		Rodata: sect(textPages, rodataPages),
		Data:   sect(textPages+rodataPages, dataPages),
		Bss:    sect(textPages+rodataPages+dataPages, bssPages),
	}
	l.End = l.Bss[1]
	l.MemoryEnd = base + PhysAddr(npages*PageSize)
	m := &Memory{
		data:    make([]byte, npages*PageSize),
		base:    base.Floor(),
		layout:  l,
		current: l.End.Ceil(),
		end:     l.MemoryEnd.Floor(),
	}
	util.DPrintf(1, "memory: %d frames free [%#x, %#x)\n", m.end-m.current, uint64(m.current), uint64(m.end))
	return m
}

func (m *Memory) Layout() KernelLayout {
	return m.layout
}

// Page returns the bytes of physical page ppn.
func (m *Memory) Page(ppn PhysPageNum) []byte {
	if ppn < m.base || ppn >= m.layout.MemoryEnd.Floor() {
		panic(fmt.Sprintf("Page: ppn %#x outside memory", uint64(ppn)))
	}
	off := uint64(ppn-m.base) * PageSize
	return m.data[off : off+PageSize]
}

func (m *Memory) pte(ppn PhysPageNum, idx uint64) PageTableEntry {
	dec := marshal.NewDec(m.Page(ppn)[idx*8 : idx*8+8])
	return PageTableEntry(dec.GetInt())
}

func (m *Memory) setPTE(ppn PhysPageNum, idx uint64, e PageTableEntry) {
	enc := marshal.NewEnc(8)
	enc.PutInt(uint64(e))
	copy(m.Page(ppn)[idx*8:idx*8+8], enc.Finish())
}

// Alloc returns a zeroed frame, or false if memory is exhausted.
func (m *Memory) Alloc() (*FrameTracker, bool) {
	m.mu.Lock()
	var ppn PhysPageNum
	if n := len(m.recycled); n > 0 {
		ppn = m.recycled[n-1]
		m.recycled = m.recycled[:n-1]
	} else if m.current < m.end {
		ppn = m.current
		m.current++
	} else {
		m.mu.Unlock()
		return nil, false
	}
	m.mu.Unlock()
	page := m.Page(ppn)
	for i := range page {
		page[i] = 0
	}
	return &FrameTracker{PPN: ppn, mem: m}, true
}

func (m *Memory) mustAlloc() *FrameTracker {
	f, ok := m.Alloc()
	if !ok {
		panic("frame allocator: out of memory")
	}
	return f
}

// Free returns ppn to the pool. Freeing a frame that is not allocated is
// fatal.
func (m *Memory) Free(ppn PhysPageNum) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ppn >= m.current || ppn < m.layout.End.Ceil() {
		panic(fmt.Sprintf("frame ppn=%#x has not been allocated", uint64(ppn)))
	}
	for _, r := range m.recycled {
		if r == ppn {
			panic(fmt.Sprintf("frame ppn=%#x has not been allocated", uint64(ppn)))
		}
	}
	m.recycled = append(m.recycled, ppn)
}

func (m *Memory) FreeFrames() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(m.end-m.current) + uint64(len(m.recycled))
}

// FrameTracker owns one physical frame.
type FrameTracker struct {
	PPN   PhysPageNum
	mem   *Memory
	freed bool
}

// Free returns the frame to the allocator; later calls do nothing.
func (f *FrameTracker) Free() {
	if f.freed {
		return
	}
	f.freed = true
	f.mem.Free(f.PPN)
}

func (f *FrameTracker) Bytes() []byte {
	return f.mem.Page(f.PPN)
}
