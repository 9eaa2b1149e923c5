package progs

import (
	"fmt"

	"github.com/mit-pdos/ezos/file"
	"github.com/mit-pdos/ezos/user"
)

// ForkRead checks that a forked child gets its own offset into a shared
// open file. It reads argv[1] (default "a") before and after forking.
var ForkRead = &user.Program{
	Name: "forkread",
	Main: func(e *user.Env) int {
		name := "a"
		if args := e.Args(); len(args) > 1 {
			name = args[1]
		}
		fd := e.Open(name, file.RDONLY)
		if fd < 0 {
			return 1
		}
		e.StoreU64(e.DataAddr(), uint64(fd))
		buf := make([]byte, 4)
		e.Read(fd, buf)
		e.Print(fmt.Sprintf("parent %s\n", buf))

		child := e.Fork("child")
		pid, code := e.Wait(child)
		again, _ := e.Wait(child)
		n := e.Read(fd, buf)
		e.Print(fmt.Sprintf("parent %s\n", buf[:n]))
		e.Print(fmt.Sprintf("waitpid %t %d %d\n", pid == child, code, again))
		return 0
	},
	Funcs: map[string]user.Func{
		"child": func(e *user.Env) int {
			fd := int(e.LoadU64(e.DataAddr()))
			buf := make([]byte, 4)
			n := e.Read(fd, buf)
			e.Print(fmt.Sprintf("child %s\n", buf[:n]))
			return 7
		},
	},
}
