package task

import (
	"fmt"

	"github.com/mit-pdos/ezos/mm"
)

// RecycleAllocator hands out small integer ids, reusing freed ones first.
type RecycleAllocator struct {
	current  uint64
	recycled []uint64
}

func (a *RecycleAllocator) Alloc() uint64 {
	if n := len(a.recycled); n > 0 {
		id := a.recycled[n-1]
		a.recycled = a.recycled[:n-1]
		return id
	}
	id := a.current
	a.current++
	return id
}

func (a *RecycleAllocator) Dealloc(id uint64) {
	if id >= a.current {
		panic(fmt.Sprintf("id %d has not been allocated", id))
	}
	for _, r := range a.recycled {
		if r == id {
			panic(fmt.Sprintf("id %d has been deallocated", id))
		}
	}
	a.recycled = append(a.recycled, id)
}

func (a *RecycleAllocator) InUse() uint64 {
	return a.current - uint64(len(a.recycled))
}

// KernelStackPosition returns [bottom, top) of kernel stack id. Stacks sit
// below the trampoline with an unmapped guard page between neighbours.
func KernelStackPosition(id uint64) (uint64, uint64) {
	top := mm.Trampoline - id*(mm.KernelStackSize+mm.PageSize)
	return top - mm.KernelStackSize, top
}

type KernelStack struct {
	id uint64
}

func (s *System) allocKernelStack() *KernelStack {
	id := s.kstacks.Borrow().Alloc()
	s.kstacks.Release()
	bottom, top := KernelStackPosition(id)
	s.kspace.InsertFramedArea(mm.VirtAddr(bottom), mm.VirtAddr(top), mm.PermR|mm.PermW)
	return &KernelStack{id: id}
}

func (s *System) freeKernelStack(k *KernelStack) {
	bottom, _ := KernelStackPosition(k.id)
	s.kspace.RemoveAreaWithStartVPN(mm.VirtAddr(bottom).Floor())
	s.kstacks.Borrow().Dealloc(k.id)
	s.kstacks.Release()
}

func (k *KernelStack) Top() uint64 {
	_, top := KernelStackPosition(k.id)
	return top
}
