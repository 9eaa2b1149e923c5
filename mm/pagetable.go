package mm

import "fmt"

type PTEFlags uint8

const (
	PTE_V PTEFlags = 1 << iota
	PTE_R
	PTE_W
	PTE_X
	PTE_U
	PTE_G
	PTE_A
	PTE_D
)

type PageTableEntry uint64

func NewPTE(ppn PhysPageNum, flags PTEFlags) PageTableEntry {
	return PageTableEntry(uint64(ppn)<<10 | uint64(flags))
}

func (e PageTableEntry) PPN() PhysPageNum {
	return PhysPageNum(uint64(e) >> 10 & (1<<PPNBits - 1))
}

func (e PageTableEntry) Flags() PTEFlags {
	return PTEFlags(e)
}

func (e PageTableEntry) Has(f PTEFlags) bool {
	return e.Flags()&f == f
}

func (e PageTableEntry) Valid() bool {
	return e.Has(PTE_V)
}

// PageTable is an SV39 table living in simulated physical memory. A table
// built by FromToken is a view and owns no frames.
type PageTable struct {
	mem    *Memory
	root   PhysPageNum
	frames []*FrameTracker
}

func NewPageTable(mem *Memory) *PageTable {
	f := mem.mustAlloc()
	return &PageTable{mem: mem, root: f.PPN, frames: []*FrameTracker{f}}
}

func FromToken(mem *Memory, satp uint64) *PageTable {
	return &PageTable{mem: mem, root: PhysPageNum(satp & (1<<PPNBits - 1))}
}

func (pt *PageTable) Token() uint64 {
	return 8<<60 | uint64(pt.root)
}

func (pt *PageTable) Root() PhysPageNum {
	return pt.root
}

// walk finds the leaf slot for vpn as (table page, index). With create set
// it allocates missing intermediate tables.
func (pt *PageTable) walk(vpn VirtPageNum, create bool) (PhysPageNum, uint64, bool) {
	idxs := vpn.Indexes()
	ppn := pt.root
	for level := 0; level < 2; level++ {
		e := pt.mem.pte(ppn, idxs[level])
		if !e.Valid() {
			if !create {
				return 0, 0, false
			}
			f := pt.mem.mustAlloc()
			pt.frames = append(pt.frames, f)
			e = NewPTE(f.PPN, PTE_V)
			pt.mem.setPTE(ppn, idxs[level], e)
		}
		ppn = e.PPN()
	}
	return ppn, idxs[2], true
}

func (pt *PageTable) Map(vpn VirtPageNum, ppn PhysPageNum, flags PTEFlags) {
	table, idx, _ := pt.walk(vpn, true)
	if pt.mem.pte(table, idx).Valid() {
		panic(fmt.Sprintf("vpn %#x is mapped before mapping", uint64(vpn)))
	}
	pt.mem.setPTE(table, idx, NewPTE(ppn, flags|PTE_V))
}

func (pt *PageTable) Unmap(vpn VirtPageNum) {
	table, idx, ok := pt.walk(vpn, false)
	if !ok || !pt.mem.pte(table, idx).Valid() {
		panic(fmt.Sprintf("vpn %#x is invalid before unmapping", uint64(vpn)))
	}
	pt.mem.setPTE(table, idx, 0)
}

// Translate returns the valid leaf entry for vpn.
func (pt *PageTable) Translate(vpn VirtPageNum) (PageTableEntry, bool) {
	table, idx, ok := pt.walk(vpn, false)
	if !ok {
		return 0, false
	}
	e := pt.mem.pte(table, idx)
	return e, e.Valid()
}

func (pt *PageTable) TranslateVA(va VirtAddr) (PhysAddr, bool) {
	e, ok := pt.Translate(va.Floor())
	if !ok {
		return 0, false
	}
	return e.PPN().Addr() + PhysAddr(va.PageOffset()), true
}

// Lookup translates va only if its leaf carries every flag in want.
func (pt *PageTable) Lookup(va VirtAddr, want PTEFlags) (PhysAddr, bool) {
	e, ok := pt.Translate(va.Floor())
	if !ok || !e.Has(want) {
		return 0, false
	}
	return e.PPN().Addr() + PhysAddr(va.PageOffset()), true
}

// Release frees the table's own frames (not the mapped data).
func (pt *PageTable) Release() {
	for _, f := range pt.frames {
		f.Free()
	}
	pt.frames = nil
}
