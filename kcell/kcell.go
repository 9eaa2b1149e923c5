// Package kcell provides exclusive-access cells for kernel state on a
// single hart. Borrowing a cell masks supervisor interrupts until the
// matching release, and nests.
package kcell

import (
	"github.com/mit-pdos/ezos/riscv"
)

// IntrState tracks the interrupt-disable nesting depth of a hart, like
// push_off/pop_off.
type IntrState struct {
	hart  *riscv.Hart
	depth int
	wasOn bool
}

func NewIntrState(h *riscv.Hart) *IntrState {
	return &IntrState{hart: h}
}

func (s *IntrState) Enter() {
	on := s.hart.SIE()
	s.hart.SetSIE(false)
	if s.depth == 0 {
		s.wasOn = on
	}
	s.depth++
}

func (s *IntrState) Exit() {
	if s.hart.SIE() {
		panic("kcell: exit with interrupts enabled")
	}
	if s.depth == 0 {
		panic("kcell: exit without enter")
	}
	s.depth--
	if s.depth == 0 && s.wasOn {
		s.hart.SetSIE(true)
	}
}

func (s *IntrState) Depth() int {
	return s.depth
}

// Cell holds a value that at most one borrower may access at a time.
type Cell[T any] struct {
	intr     *IntrState
	val      T
	borrowed bool
}

func New[T any](intr *IntrState, v T) *Cell[T] {
	return &Cell[T]{intr: intr, val: v}
}

// Borrow disables interrupts and returns the cell contents. It panics if
// the cell is already borrowed.
func (c *Cell[T]) Borrow() *T {
	c.intr.Enter()
	if c.borrowed {
		c.intr.Exit()
		panic("kcell: already borrowed")
	}
	c.borrowed = true
	return &c.val
}

func (c *Cell[T]) Release() {
	if !c.borrowed {
		panic("kcell: release without borrow")
	}
	c.borrowed = false
	c.intr.Exit()
}

func (c *Cell[T]) With(f func(v *T)) {
	v := c.Borrow()
	defer c.Release()
	f(v)
}

func (c *Cell[T]) Borrowed() bool {
	return c.borrowed
}
