package mm

import "fmt"

const (
	PageSize     uint64 = 4096
	PageSizeBits        = 12
	PABits              = 56
	VABits              = 39
	PPNBits             = PABits - PageSizeBits
	VPNBits             = VABits - PageSizeBits
	indexBits           = 9
	indexMask    uint64 = 1<<indexBits - 1

	MemoryBase PhysAddr = 0x8000_0000

	// Trampoline is the highest page of every address space.
	Trampoline      uint64 = 1<<(VABits-1) - PageSize
	TrapContextBase uint64 = Trampoline - PageSize
	UserStackSize   uint64 = 0x2000
	KernelStackSize uint64 = 0x2000
)

type PhysAddr uint64
type VirtAddr uint64
type PhysPageNum uint64
type VirtPageNum uint64

func (a PhysAddr) Floor() PhysPageNum {
	return PhysPageNum(uint64(a) / PageSize)
}

func (a PhysAddr) Ceil() PhysPageNum {
	return PhysPageNum((uint64(a) + PageSize - 1) / PageSize)
}

func (a PhysAddr) PageOffset() uint64 {
	return uint64(a) & (PageSize - 1)
}

func (a PhysAddr) String() string {
	return fmt.Sprintf("PA:%#x", uint64(a))
}

func (a VirtAddr) Floor() VirtPageNum {
	return VirtPageNum(uint64(a) / PageSize)
}

func (a VirtAddr) Ceil() VirtPageNum {
	return VirtPageNum((uint64(a) + PageSize - 1) / PageSize)
}

func (a VirtAddr) PageOffset() uint64 {
	return uint64(a) & (PageSize - 1)
}

func (a VirtAddr) Aligned() bool {
	return a.PageOffset() == 0
}

func (a VirtAddr) String() string {
	return fmt.Sprintf("VA:%#x", uint64(a))
}

func (p PhysPageNum) Addr() PhysAddr {
	return PhysAddr(uint64(p) * PageSize)
}

func (v VirtPageNum) Addr() VirtAddr {
	return VirtAddr(uint64(v) * PageSize)
}

// Indexes splits v into its three page-table indexes, root level first.
func (v VirtPageNum) Indexes() [3]uint64 {
	var idx [3]uint64
	n := uint64(v)
	for i := 2; i >= 0; i-- {
		idx[i] = n & indexMask
		n >>= indexBits
	}
	return idx
}
