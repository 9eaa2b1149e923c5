package user

import (
	"github.com/mit-pdos/ezos/file"
	"github.com/mit-pdos/ezos/syscall"
)

// Descriptors every process starts with.
const (
	Stdin  = 0
	Stdout = 1
	Stderr = 2
)

func (e *Env) Dup(fd int) int {
	return int(e.Syscall(syscall.SysDup, uint64(fd), 0, 0))
}

func (e *Env) Open(path string, flags file.OpenFlag) int {
	sp := e.SP()
	defer e.SetSP(sp)
	return int(e.Syscall(syscall.SysOpen, e.PushString(path), uint64(flags), 0))
}

func (e *Env) Close(fd int) int {
	return int(e.Syscall(syscall.SysClose, uint64(fd), 0, 0))
}

// Pipe returns the read and write ends of a new pipe.
func (e *Env) Pipe() (int, int, bool) {
	sp := e.SP()
	defer e.SetSP(sp)
	fds := e.Alloc(16)
	if e.Syscall(syscall.SysPipe, fds, 0, 0) != 0 {
		return 0, 0, false
	}
	return int(e.LoadU64(fds)), int(e.LoadU64(fds + 8)), true
}

func (e *Env) Seek(fd int, off int64, whence int) int64 {
	return e.Syscall(syscall.SysSeek, uint64(fd), uint64(off), uint64(whence))
}

func (e *Env) Read(fd int, buf []byte) int64 {
	sp := e.SP()
	defer e.SetSP(sp)
	va := e.Alloc(uint64(len(buf)))
	n := e.Syscall(syscall.SysRead, uint64(fd), va, uint64(len(buf)))
	if n > 0 {
		copy(buf, e.Load(va, uint64(n)))
	}
	return n
}

func (e *Env) Write(fd int, data []byte) int64 {
	sp := e.SP()
	defer e.SetSP(sp)
	return e.Syscall(syscall.SysWrite, uint64(fd), e.Push(data), uint64(len(data)))
}

func (e *Env) Print(s string) {
	e.Write(Stdout, []byte(s))
}

func (e *Env) Exit(code int) {
	e.Syscall(syscall.SysExit, uint64(int64(code)), 0, 0)
	panic("user: exit returned")
}

func (e *Env) Sleep(ms uint64) {
	e.Syscall(syscall.SysSleep, ms, 0, 0)
}

func (e *Env) Yield() {
	e.Syscall(syscall.SysYield, 0, 0, 0)
}

func (e *Env) Kill(pid int, sig int) int {
	return int(e.Syscall(syscall.SysKill, uint64(pid), uint64(sig), 0))
}

func (e *Env) GetTime() int64 {
	return e.Syscall(syscall.SysGetTime, 0, 0, 0)
}

func (e *Env) GetPid() int {
	return int(e.Syscall(syscall.SysGetPid, 0, 0, 0))
}

// Fork returns the child's pid in the parent. The child does not return:
// it starts in the function named cont, with Arg 0.
func (e *Env) Fork(cont string) int {
	return int(e.ecall(e.FuncAddr(cont)-4, syscall.SysFork, 0, 0, 0))
}

// Exec replaces the program. It returns only on failure.
func (e *Env) Exec(path string, args []string) int {
	sp := e.SP()
	defer e.SetSP(sp)
	p := e.PushString(path)
	ptrs := make([]uint64, len(args)+1)
	for i, a := range args {
		ptrs[i] = e.PushString(a)
	}
	argv := e.Alloc(uint64(len(ptrs)) * 8)
	for i, ptr := range ptrs {
		e.StoreU64(argv+uint64(i)*8, ptr)
	}
	return int(e.Syscall(syscall.SysExec, p, argv, 0))
}

// WaitPid polls for child pid (-1 for any) once. It returns the reaped pid
// and exit code, -1 when there is no such child, or -2 when it has not
// exited yet.
func (e *Env) WaitPid(pid int) (int, int) {
	sp := e.SP()
	defer e.SetSP(sp)
	codePtr := e.Alloc(8)
	e.StoreU64(codePtr, 0)
	ret := e.Syscall(syscall.SysWaitPid, uint64(int64(pid)), codePtr, 0)
	if ret < 0 {
		return int(ret), 0
	}
	return int(ret), int(int32(uint32(e.LoadU64(codePtr))))
}

// Wait yields until child pid exits, or returns -1 if there is none.
func (e *Env) Wait(pid int) (int, int) {
	for {
		ret, code := e.WaitPid(pid)
		if ret != -2 {
			return ret, code
		}
		e.Yield()
	}
}

func (e *Env) EventFd(initval uint32, flags file.EventFdFlag) int {
	return int(e.Syscall(syscall.SysEventFd, uint64(initval), uint64(flags), 0))
}

// ThreadCreate starts a thread in the function named fn with arg.
func (e *Env) ThreadCreate(fn string, arg uint64) int {
	return int(e.Syscall(syscall.SysThreadCreate, e.FuncAddr(fn), arg, 0))
}

func (e *Env) GetTid() int {
	return int(e.Syscall(syscall.SysGetTid, 0, 0, 0))
}

// WaitTid yields until thread tid exits and returns its exit code, or -1.
func (e *Env) WaitTid(tid int) int {
	for {
		ret := e.Syscall(syscall.SysWaitTid, uint64(tid), 0, 0)
		if ret != -2 {
			return int(ret)
		}
		e.Yield()
	}
}

func (e *Env) MutexCreate() int {
	return int(e.Syscall(syscall.SysMutexCreate, 0, 0, 0))
}

func (e *Env) MutexLock(id int) {
	e.Syscall(syscall.SysMutexLock, uint64(id), 0, 0)
}

func (e *Env) MutexUnlock(id int) {
	e.Syscall(syscall.SysMutexUnlock, uint64(id), 0, 0)
}

func (e *Env) SemCreate(count int) int {
	return int(e.Syscall(syscall.SysSemCreate, uint64(count), 0, 0))
}

func (e *Env) SemUp(id int) {
	e.Syscall(syscall.SysSemUp, uint64(id), 0, 0)
}

func (e *Env) SemDown(id int) {
	e.Syscall(syscall.SysSemDown, uint64(id), 0, 0)
}

func (e *Env) CondvarCreate() int {
	return int(e.Syscall(syscall.SysCondvarCreate, 0, 0, 0))
}

func (e *Env) CondvarSignal(id int) {
	e.Syscall(syscall.SysCondvarSignal, uint64(id), 0, 0)
}

func (e *Env) CondvarWait(id int, mutex int) {
	e.Syscall(syscall.SysCondvarWait, uint64(id), uint64(mutex), 0)
}

func (e *Env) GPURes() (uint32, uint32) {
	r := e.Syscall(syscall.SysGetGPURes, 0, 0, 0)
	return uint32(r >> 32), uint32(r)
}

func (e *Env) FbFd() int {
	return int(e.Syscall(syscall.SysGetFbFd, 0, 0, 0))
}

// InputEvent polls for an input event; 0 means none.
func (e *Env) InputEvent() uint64 {
	return uint64(e.Syscall(syscall.SysInputEvent, 0, 0, 0))
}
