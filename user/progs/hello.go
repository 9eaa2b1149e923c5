package progs

import (
	"github.com/mit-pdos/ezos/user"
)

var Hello = &user.Program{
	Name: "hello",
	Main: func(e *user.Env) int {
		e.Print("Hello, world!\n")
		return 0
	},
}
