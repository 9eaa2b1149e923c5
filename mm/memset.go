package mm

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"

	"github.com/mit-pdos/ezos/riscv"
	"github.com/mit-pdos/ezos/util"
)

var ErrBadELF = errors.New("bad elf")

// MemorySet is one address space: its page table and the areas mapped in
// it.
type MemorySet struct {
	mem        *Memory
	pt         *PageTable
	areas      []*MapArea
	trampoline PhysPageNum
}

func NewBare(mem *Memory) *MemorySet {
	return &MemorySet{
		mem:        mem,
		pt:         NewPageTable(mem),
		trampoline: mem.Layout().Trampoline(),
	}
}

func (ms *MemorySet) Token() uint64 {
	return ms.pt.Token()
}

func (ms *MemorySet) PageTable() *PageTable {
	return ms.pt
}

func (ms *MemorySet) Areas() int {
	return len(ms.areas)
}

func (ms *MemorySet) push(a *MapArea, data []byte, off uint64) {
	for _, o := range ms.areas {
		if o.overlaps(a) {
			panic(fmt.Sprintf("push: area [%#x, %#x) overlaps [%#x, %#x)",
				uint64(a.start), uint64(a.end), uint64(o.start), uint64(o.end)))
		}
	}
	a.mapAll(ms.pt)
	if data != nil {
		a.copyData(ms.pt, data, off)
	}
	ms.areas = append(ms.areas, a)
}

func (ms *MemorySet) mapTrampoline() {
	ms.pt.Map(VirtAddr(Trampoline).Floor(), ms.trampoline, PTE_R|PTE_X)
}

// InsertFramedArea maps [start, end) to fresh zeroed frames.
func (ms *MemorySet) InsertFramedArea(start, end VirtAddr, perm MapPermission) {
	ms.push(NewMapArea(start, end, Framed, perm), nil, 0)
}

// RemoveAreaWithStartVPN unmaps the area beginning at vpn and frees its
// frames. It reports whether such an area existed.
func (ms *MemorySet) RemoveAreaWithStartVPN(vpn VirtPageNum) bool {
	for i, a := range ms.areas {
		if a.start == vpn {
			a.unmapAll(ms.pt)
			ms.areas = append(ms.areas[:i], ms.areas[i+1:]...)
			return true
		}
	}
	return false
}

// NewKernel builds the kernel address space: the trampoline, the image
// sections and an identity map of the rest of RAM.
func NewKernel(mem *Memory) *MemorySet {
	ms := NewBare(mem)
	ms.mapTrampoline()
	l := mem.Layout()
	ident := func(r [2]PhysAddr, perm MapPermission) {
		ms.push(NewMapArea(VirtAddr(r[0]), VirtAddr(r[1]), Identical, perm), nil, 0)
	}
	ident(l.Text, PermR|PermX)
	ident(l.Rodata, PermR)
	ident(l.Data, PermR|PermW)
	ident(l.Bss, PermR|PermW)
	ident([2]PhysAddr{l.End, l.MemoryEnd}, PermR|PermW)
	util.DPrintf(1, "kernel space: %d areas, token %#x\n", len(ms.areas), ms.Token())
	return ms
}

// FromELF maps each loadable segment of an ELF64 RISC-V image with user
// permissions from its flags. It returns the address space, the base of the
// per-thread user stacks (one guard page above the highest segment) and the
// entry point.
func FromELF(mem *Memory, data []byte) (*MemorySet, uint64, uint64, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrBadELF, err)
	}
	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_RISCV {
		return nil, 0, 0, fmt.Errorf("%w: not a riscv64 image", ErrBadELF)
	}
	type segment struct {
		area *MapArea
		data []byte
		off  uint64
	}
	var segs []segment
	var maxEnd VirtPageNum
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		perm := PermU
		if p.Flags&elf.PF_R != 0 {
			perm |= PermR
		}
		if p.Flags&elf.PF_W != 0 {
			perm |= PermW
		}
		if p.Flags&elf.PF_X != 0 {
			perm |= PermX
		}
		start := VirtAddr(p.Vaddr)
		a := NewMapArea(start, start+VirtAddr(p.Memsz), Framed, perm)
		b, err := io.ReadAll(p.Open())
		if err != nil {
			return nil, 0, 0, fmt.Errorf("%w: %v", ErrBadELF, err)
		}
		for _, s := range segs {
			if s.area.overlaps(a) {
				return nil, 0, 0, fmt.Errorf("%w: overlapping segments", ErrBadELF)
			}
		}
		segs = append(segs, segment{area: a, data: b, off: start.PageOffset()})
		if a.end > maxEnd {
			maxEnd = a.end
		}
	}
	if len(segs) == 0 {
		return nil, 0, 0, fmt.Errorf("%w: no loadable segments", ErrBadELF)
	}
	ms := NewBare(mem)
	ms.mapTrampoline()
	for _, s := range segs {
		ms.push(s.area, s.data, s.off)
	}
	ustackBase := uint64(maxEnd.Addr()) + PageSize
	return ms, ustackBase, f.Entry, nil
}

// Clone deep-copies a user address space into fresh frames.
func (ms *MemorySet) Clone() *MemorySet {
	n := NewBare(ms.mem)
	n.mapTrampoline()
	for _, a := range ms.areas {
		na := a.cloneRange()
		n.push(na, nil, 0)
		for vpn := a.start; vpn < a.end; vpn++ {
			src, _ := ms.pt.Translate(vpn)
			dst, _ := n.pt.Translate(vpn)
			copy(ms.mem.Page(dst.PPN()), ms.mem.Page(src.PPN()))
		}
	}
	return n
}

// RecycleDataPages frees every mapped frame but keeps the page table, so a
// zombie's token still resolves until the process is reaped.
func (ms *MemorySet) RecycleDataPages() {
	for _, a := range ms.areas {
		a.freeFrames()
	}
	ms.areas = nil
}

func (ms *MemorySet) Release() {
	ms.RecycleDataPages()
	ms.pt.Release()
}

func (ms *MemorySet) Activate(h *riscv.Hart) {
	h.WriteSatp(ms.Token())
}

func (ms *MemorySet) Translate(vpn VirtPageNum) (PageTableEntry, bool) {
	return ms.pt.Translate(vpn)
}
