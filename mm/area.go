package mm

type MapType int

const (
	Identical MapType = iota
	Framed
)

type MapPermission uint8

const (
	PermR = MapPermission(PTE_R)
	PermW = MapPermission(PTE_W)
	PermX = MapPermission(PTE_X)
	PermU = MapPermission(PTE_U)
)

// MapArea is a contiguous range of virtual pages with one mapping type and
// permission.
type MapArea struct {
	start  VirtPageNum
	end    VirtPageNum
	frames map[VirtPageNum]*FrameTracker
	typ    MapType
	perm   MapPermission
}

func NewMapArea(start, end VirtAddr, typ MapType, perm MapPermission) *MapArea {
	return &MapArea{
		start:  start.Floor(),
		end:    end.Ceil(),
		frames: make(map[VirtPageNum]*FrameTracker),
		typ:    typ,
		perm:   perm,
	}
}

func (a *MapArea) cloneRange() *MapArea {
	return &MapArea{
		start:  a.start,
		end:    a.end,
		frames: make(map[VirtPageNum]*FrameTracker),
		typ:    a.typ,
		perm:   a.perm,
	}
}

func (a *MapArea) Range() (VirtPageNum, VirtPageNum) {
	return a.start, a.end
}

func (a *MapArea) Perm() MapPermission {
	return a.perm
}

func (a *MapArea) overlaps(b *MapArea) bool {
	return a.start < b.end && b.start < a.end
}

func (a *MapArea) mapOne(pt *PageTable, vpn VirtPageNum) {
	var ppn PhysPageNum
	switch a.typ {
	case Identical:
		ppn = PhysPageNum(vpn)
	case Framed:
		f := pt.mem.mustAlloc()
		a.frames[vpn] = f
		ppn = f.PPN
	}
	pt.Map(vpn, ppn, PTEFlags(a.perm))
}

func (a *MapArea) unmapOne(pt *PageTable, vpn VirtPageNum) {
	if a.typ == Framed {
		if f, ok := a.frames[vpn]; ok {
			f.Free()
			delete(a.frames, vpn)
		}
	}
	pt.Unmap(vpn)
}

func (a *MapArea) mapAll(pt *PageTable) {
	for vpn := a.start; vpn < a.end; vpn++ {
		a.mapOne(pt, vpn)
	}
}

func (a *MapArea) unmapAll(pt *PageTable) {
	for vpn := a.start; vpn < a.end; vpn++ {
		a.unmapOne(pt, vpn)
	}
}

func (a *MapArea) freeFrames() {
	for vpn, f := range a.frames {
		f.Free()
		delete(a.frames, vpn)
	}
}

// copyData writes data into the area starting off bytes into its first
// page. The area must be framed and mapped.
func (a *MapArea) copyData(pt *PageTable, data []byte, off uint64) {
	vpn := a.start
	for len(data) > 0 {
		e, ok := pt.Translate(vpn)
		if !ok {
			panic("copyData: unmapped page")
		}
		n := copy(pt.mem.Page(e.PPN())[off:], data)
		data = data[n:]
		off = 0
		vpn++
	}
}
