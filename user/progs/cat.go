package progs

import (
	"fmt"

	"github.com/mit-pdos/ezos/file"
	"github.com/mit-pdos/ezos/user"
)

// Cat copies the file named by argv[1] to stdout.
var Cat = &user.Program{
	Name: "cat",
	Main: func(e *user.Env) int {
		args := e.Args()
		if len(args) != 2 {
			e.Print("usage: cat <file>\n")
			return -1
		}
		fd := e.Open(args[1], file.RDONLY)
		if fd < 0 {
			e.Print(fmt.Sprintf("cat: cannot open %s\n", args[1]))
			return -1
		}
		buf := make([]byte, 256)
		for {
			n := e.Read(fd, buf)
			if n <= 0 {
				break
			}
			e.Write(user.Stdout, buf[:n])
		}
		e.Close(fd)
		return 0
	},
}
