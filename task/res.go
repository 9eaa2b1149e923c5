package task

import (
	"github.com/mit-pdos/ezos/mm"
)

// TaskUserRes is a thread's user-space footprint: its id, user stack and
// trap-context page, both placed by tid.
type TaskUserRes struct {
	tid        uint64
	ustackBase uint64
}

func (r *TaskUserRes) Tid() uint64 {
	return r.tid
}

func (r *TaskUserRes) UstackBottom() uint64 {
	return r.ustackBase + r.tid*(mm.PageSize+mm.UserStackSize)
}

func (r *TaskUserRes) UstackTop() uint64 {
	return r.UstackBottom() + mm.UserStackSize
}

func (r *TaskUserRes) TrapCxUserVA() uint64 {
	return mm.TrapContextBase - r.tid*mm.PageSize
}

func (r *TaskUserRes) alloc(ms *mm.MemorySet) {
	ms.InsertFramedArea(mm.VirtAddr(r.UstackBottom()), mm.VirtAddr(r.UstackTop()),
		mm.PermR|mm.PermW|mm.PermU)
	va := mm.VirtAddr(r.TrapCxUserVA())
	ms.InsertFramedArea(va, va+mm.VirtAddr(mm.PageSize), mm.PermR|mm.PermW)
}

func (r *TaskUserRes) dealloc(ms *mm.MemorySet) {
	ms.RemoveAreaWithStartVPN(mm.VirtAddr(r.UstackBottom()).Floor())
	ms.RemoveAreaWithStartVPN(mm.VirtAddr(r.TrapCxUserVA()).Floor())
}

func (r *TaskUserRes) trapCxPPN(ms *mm.MemorySet) mm.PhysPageNum {
	e, ok := ms.Translate(mm.VirtAddr(r.TrapCxUserVA()).Floor())
	if !ok {
		panic("trap context not mapped")
	}
	return e.PPN()
}
