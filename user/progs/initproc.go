package progs

import (
	"fmt"

	"github.com/mit-pdos/ezos/user"
)

// Initproc runs argv[1:] as a child and reaps zombies until no children
// are left. Its exit code is the child's.
var Initproc = &user.Program{
	Name: "initproc",
	Main: func(e *user.Env) int {
		if e.Arg() < 2 {
			e.Print("initproc: nothing to run\n")
			return -1
		}
		// argc and argv for the child
		e.StoreU64(e.DataAddr(), e.Arg())
		e.StoreU64(e.DataAddr()+8, e.Argv())
		child := e.Fork("child")
		code := -1
		for {
			pid, c := e.WaitPid(-1)
			if pid == -1 {
				return code
			}
			if pid == -2 {
				e.Yield()
				continue
			}
			if pid == child {
				code = c
			}
			e.Print(fmt.Sprintf("[initproc] released a zombie process, pid=%d, exit_code=%d\n", pid, c))
		}
	},
	Funcs: map[string]user.Func{
		"child": func(e *user.Env) int {
			args := e.LoadArgs(e.LoadU64(e.DataAddr()), e.LoadU64(e.DataAddr()+8))
			e.Exec(args[1], args[1:])
			e.Print(fmt.Sprintf("initproc: cannot exec %s\n", args[1]))
			return -1
		},
	},
}
