package progs

import (
	"github.com/mit-pdos/ezos/user"
)

// Faulty misbehaves as argv[1] asks: "load" reads address 0, "store"
// writes its own text, "ill" jumps into the middle of an entry stub.
var Faulty = &user.Program{
	Name: "faulty",
	Main: func(e *user.Env) int {
		mode := "load"
		if args := e.Args(); len(args) > 1 {
			mode = args[1]
		}
		switch mode {
		case "load":
			e.Load(0, 8)
		case "store":
			e.Store(user.TextBase, []byte{0})
		case "ill":
			e.Jump(e.FuncAddr("main") + 8)
		}
		return 0
	},
}
