package progs

import (
	"github.com/mit-pdos/ezos/user"
)

const semSync = 0

// SyncSem orders two threads with a semaphore: second waits until first
// has slept and signalled.
var SyncSem = &user.Program{
	Name: "sync_sem",
	Main: func(e *user.Env) int {
		if e.SemCreate(0) != semSync {
			return -1
		}
		threads := []int{
			e.ThreadCreate("first", 0),
			e.ThreadCreate("second", 0),
		}
		for _, tid := range threads {
			e.WaitTid(tid)
		}
		e.Print("sync_sem passed!\n")
		return 0
	},
	Funcs: map[string]user.Func{
		"first": func(e *user.Env) int {
			e.Sleep(10)
			e.Print("First work and wakeup Second\n")
			e.SemUp(semSync)
			return 0
		},
		"second": func(e *user.Env) int {
			e.Print("Second want to continue, but need to wait first\n")
			e.SemDown(semSync)
			e.Print("Second can work now\n")
			return 0
		},
	},
}
