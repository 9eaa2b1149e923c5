// Package syscall is the kernel's system call table. Every call returns a
// signed result; negative values are errors.
package syscall

import (
	"github.com/mit-pdos/ezos/drivers"
	"github.com/mit-pdos/ezos/ezfs"
	"github.com/mit-pdos/ezos/file"
	"github.com/mit-pdos/ezos/mm"
	"github.com/mit-pdos/ezos/task"
	"github.com/mit-pdos/ezos/util"
)

const (
	SysDup           uint64 = 24
	SysOpen          uint64 = 56
	SysClose         uint64 = 57
	SysPipe          uint64 = 59
	SysSeek          uint64 = 62
	SysRead          uint64 = 63
	SysWrite         uint64 = 64
	SysExit          uint64 = 93
	SysSleep         uint64 = 101
	SysYield         uint64 = 124
	SysKill          uint64 = 129
	SysGetTime       uint64 = 169
	SysGetPid        uint64 = 172
	SysFork          uint64 = 220
	SysExec          uint64 = 221
	SysWaitPid       uint64 = 260
	SysEventFd       uint64 = 290
	SysThreadCreate  uint64 = 1000
	SysGetTid        uint64 = 1001
	SysWaitTid       uint64 = 1002
	SysMutexCreate   uint64 = 1010
	SysMutexLock     uint64 = 1011
	SysMutexUnlock   uint64 = 1012
	SysSemCreate     uint64 = 1020
	SysSemUp         uint64 = 1021
	SysSemDown       uint64 = 1022
	SysCondvarCreate uint64 = 1030
	SysCondvarSignal uint64 = 1031
	SysCondvarWait   uint64 = 1032
	SysGetGPURes     uint64 = 2000
	SysGetFbFd       uint64 = 2001
	SysInputEvent    uint64 = 3000
)

// error results
const (
	EFail  int64 = -1
	EAgain int64 = -2
)

type Config struct {
	Sys    *task.System
	FS     *ezfs.FileSystem
	GPU    file.GPU
	Inputs []drivers.InputDevice
}

// Dispatcher runs system calls on behalf of the current thread.
type Dispatcher struct {
	sys    *task.System
	mem    *mm.Memory
	root   *ezfs.Inode
	gpu    file.GPU
	inputs []drivers.InputDevice
}

func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		sys:    cfg.Sys,
		mem:    cfg.Sys.Memory(),
		gpu:    cfg.GPU,
		inputs: cfg.Inputs,
	}
	if cfg.FS != nil {
		d.root = cfg.FS.Root()
	}
	return d
}

func (d *Dispatcher) Syscall(id uint64, args [3]uint64) int64 {
	util.DPrintf(3, "syscall %d %#x\n", id, args)
	switch id {
	case SysDup:
		return d.dup(args[0])
	case SysOpen:
		return d.open(args[0], uint32(args[1]))
	case SysClose:
		return d.close(args[0])
	case SysPipe:
		return d.pipe(args[0])
	case SysSeek:
		return d.seek(args[0], int64(args[1]), int(args[2]))
	case SysRead:
		return d.read(args[0], args[1], args[2])
	case SysWrite:
		return d.write(args[0], args[1], args[2])
	case SysExit:
		return d.exit(int32(args[0]))
	case SysSleep:
		return d.sleep(args[0])
	case SysYield:
		return d.yield()
	case SysKill:
		return d.kill(args[0], int32(args[1]))
	case SysGetTime:
		return int64(d.sys.Timer().TimeMS())
	case SysGetPid:
		return int64(d.sys.CurrentProcess().Pid())
	case SysFork:
		return d.fork()
	case SysExec:
		return d.exec(args[0], args[1])
	case SysWaitPid:
		return d.waitpid(int64(args[0]), args[1])
	case SysEventFd:
		return d.eventfd(uint32(args[0]), file.EventFdFlag(args[1]))
	case SysThreadCreate:
		return d.threadCreate(args[0], args[1])
	case SysGetTid:
		return int64(d.sys.CurrentTask().Tid())
	case SysWaitTid:
		return d.waittid(args[0])
	case SysMutexCreate:
		return d.mutexCreate()
	case SysMutexLock:
		return d.mutexLock(args[0])
	case SysMutexUnlock:
		return d.mutexUnlock(args[0])
	case SysSemCreate:
		return d.semCreate(args[0])
	case SysSemUp:
		return d.semUp(args[0])
	case SysSemDown:
		return d.semDown(args[0])
	case SysCondvarCreate:
		return d.condvarCreate()
	case SysCondvarSignal:
		return d.condvarSignal(args[0])
	case SysCondvarWait:
		return d.condvarWait(args[0], args[1])
	case SysGetGPURes:
		return d.gpuRes()
	case SysGetFbFd:
		return d.fbfd()
	case SysInputEvent:
		return d.inputEvent()
	}
	util.DPrintf(0, "unsupported syscall %d\n", id)
	return EFail
}

func (d *Dispatcher) token() uint64 {
	return d.sys.CurrentUserToken()
}

// index converts a user-supplied table index, rejecting values that do
// not fit an int.
func index(v uint64) int {
	if v > 1<<31 {
		return -1
	}
	return int(v)
}
