// Package progs holds the built-in user programs.
package progs

import (
	"github.com/mit-pdos/ezos/user"
)

// All returns every built-in program.
func All() []*user.Program {
	return []*user.Program{Initproc, Hello, Cat, SyncSem, ForkRead, Faulty}
}
