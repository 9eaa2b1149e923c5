package syscall

import (
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/ezos/file"
	"github.com/mit-pdos/ezos/mm"
	"github.com/mit-pdos/ezos/riscv"
	"github.com/mit-pdos/ezos/util"
)

// maxArgs bounds the argv array exec will read.
const maxArgs = 64

func (d *Dispatcher) exit(code int32) int64 {
	util.DPrintf(1, "application exited with code %d\n", code)
	d.sys.ExitCurrentAndRunNext(int(code))
	panic("exit returned")
}

func (d *Dispatcher) sleep(ms uint64) int64 {
	d.sys.Sleep(ms)
	return 0
}

func (d *Dispatcher) yield() int64 {
	d.sys.SuspendCurrentAndRunNext()
	return 0
}

func (d *Dispatcher) kill(pid uint64, sig int32) int64 {
	if !d.sys.Kill(pid, int(sig)) {
		return EFail
	}
	return 0
}

// fork returns the child's pid; the child sees 0.
func (d *Dispatcher) fork() int64 {
	child := d.sys.Fork(d.sys.CurrentProcess())
	t, _ := child.Task(0)
	cx := t.TrapContext()
	cx.X[riscv.A0] = 0
	t.SetTrapContext(cx)
	return int64(child.Pid())
}

// args reads a zero-terminated array of string pointers.
func (d *Dispatcher) args(argv uint64) ([]string, bool) {
	var args []string
	if argv == 0 {
		return args, true
	}
	for i := uint64(0); i < maxArgs; i++ {
		ptr, ok := mm.ReadU64(d.mem, d.token(), argv+i*8)
		if !ok {
			return nil, false
		}
		if ptr == 0 {
			return args, true
		}
		s, ok := mm.TranslatedString(d.mem, d.token(), ptr)
		if !ok {
			return nil, false
		}
		args = append(args, s)
	}
	return nil, false
}

func (d *Dispatcher) exec(path uint64, argv uint64) int64 {
	name, ok := mm.TranslatedString(d.mem, d.token(), path)
	if !ok || d.root == nil {
		return EFail
	}
	args, ok := d.args(argv)
	if !ok {
		return EFail
	}
	f, err := file.Open(d.root, name, file.RDONLY)
	if err != nil {
		return EFail
	}
	argc, err := d.sys.Exec(d.sys.CurrentProcess(), f.ReadAll(), args)
	if err != nil {
		util.DPrintf(1, "exec %s: %v\n", name, err)
		return EFail
	}
	return int64(argc)
}

// waitpid reaps a child and stores its 32-bit exit code at codePtr.
func (d *Dispatcher) waitpid(pid int64, codePtr uint64) int64 {
	if codePtr != 0 {
		if _, ok := mm.TranslatedByteBuffer(d.mem, d.token(), codePtr, 4, true); !ok {
			return EFail
		}
	}
	found, code := d.sys.WaitPid(d.sys.CurrentProcess(), pid)
	if found < 0 {
		return found
	}
	if codePtr != 0 {
		enc := marshal.NewEnc(8)
		enc.PutInt(uint64(uint32(int32(code))))
		mm.WriteBytes(d.mem, d.token(), codePtr, enc.Finish()[:4])
	}
	return found
}
