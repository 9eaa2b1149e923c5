package syscall_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/ezos/config"
	"github.com/mit-pdos/ezos/disk"
	"github.com/mit-pdos/ezos/drivers"
	"github.com/mit-pdos/ezos/file"
	"github.com/mit-pdos/ezos/kernel"
	"github.com/mit-pdos/ezos/syscall"
	"github.com/mit-pdos/ezos/task"
	"github.com/mit-pdos/ezos/timer"
	"github.com/mit-pdos/ezos/user"
)

// tour runs the scenario named by argv[1] and prints what it observes.
var tour = &user.Program{
	Name: "tour",
	Main: func(e *user.Env) int {
		switch e.Args()[1] {
		case "files":
			return tourFiles(e)
		case "pipe":
			return tourPipe(e)
		case "eventfd":
			return tourEventFd(e)
		case "devices":
			return tourDevices(e)
		case "condvar":
			return tourCondvar(e)
		case "kill":
			return tourKill(e)
		case "misc":
			return tourMisc(e)
		case "limits":
			return tourLimits(e)
		}
		return -1
	},
	Funcs: map[string]user.Func{
		"setter": func(e *user.Env) int {
			m, c := int(e.LoadU64(e.DataAddr())), int(e.LoadU64(e.DataAddr()+8))
			e.Sleep(20)
			e.MutexLock(m)
			e.StoreU64(e.DataAddr()+16, 1)
			e.CondvarSignal(c)
			e.MutexUnlock(m)
			return 5
		},
		"spinner": func(e *user.Env) int {
			for {
				e.Yield()
			}
		},
	},
}

func tourFiles(e *user.Env) int {
	fd := e.Open("f", file.CREATE|file.RDWR)
	e.Write(fd, []byte("hello"))
	off := e.Seek(fd, 1, file.SeekSet)
	buf := make([]byte, 8)
	n := e.Read(fd, buf)
	e.Print(fmt.Sprintf("seek %d read %d %s\n", off, n, buf[:n]))
	e.Print(fmt.Sprintf("end %d\n", e.Seek(fd, 0, file.SeekEnd)))
	e.Print(fmt.Sprintf("bad seek %d\n", e.Seek(fd, -9, file.SeekCur)))
	d := e.Dup(user.Stdout)
	e.Write(d, []byte("via dup\n"))
	e.Print(fmt.Sprintf("close %d %d\n", e.Close(fd), e.Close(fd)))
	e.Print(fmt.Sprintf("missing %d\n", e.Open("nope", file.RDONLY)))
	ro := e.Open("f", file.RDONLY)
	e.Print(fmt.Sprintf("ro write %d\n", e.Write(ro, []byte("x"))))
	tr := e.Open("f", file.WRONLY|file.TRUNC)
	e.Close(tr)
	e.Print(fmt.Sprintf("after trunc %d\n", e.Seek(ro, 0, file.SeekEnd)))
	return 0
}

func tourPipe(e *user.Env) int {
	r, w, ok := e.Pipe()
	if !ok {
		return -1
	}
	e.Write(w, []byte("ping"))
	e.Close(w)
	buf := make([]byte, 8)
	n := e.Read(r, buf)
	e.Print(fmt.Sprintf("pipe %d %s eof %d\n", n, buf[:n], e.Read(r, buf)))
	e.Print(fmt.Sprintf("wrong end %d\n", e.Write(r, []byte("x"))))
	return 0
}

func tourEventFd(e *user.Env) int {
	efd := e.EventFd(3, file.EFD_NONBLOCK)
	buf := make([]byte, 8)
	n := e.Read(efd, buf)
	v := marshal.NewDec(buf).GetInt()
	e.Print(fmt.Sprintf("eventfd %d %d again %d\n", n, v, e.Read(efd, buf)))

	sem := e.EventFd(0, file.EFD_SEMAPHORE|file.EFD_NONBLOCK)
	enc := marshal.NewEnc(8)
	enc.PutInt(2)
	e.Write(sem, enc.Finish())
	e.Read(sem, buf)
	first := marshal.NewDec(buf).GetInt()
	e.Read(sem, buf)
	second := marshal.NewDec(buf).GetInt()
	e.Print(fmt.Sprintf("semaphore %d %d %d\n", first, second, e.Read(sem, buf)))
	e.Print(fmt.Sprintf("bad flags %d\n", e.EventFd(0, 4)))
	return 0
}

func tourDevices(e *user.Env) int {
	x, y := e.GPURes()
	fb := e.FbFd()
	n := e.Write(fb, []byte{1, 2, 3, 4})
	e.Print(fmt.Sprintf("gpu %dx%d wrote %d\n", x, y, n))
	e.Print(fmt.Sprintf("input %#x %#x\n", e.InputEvent(), e.InputEvent()))
	return 0
}

func tourCondvar(e *user.Env) int {
	m := e.MutexCreate()
	c := e.CondvarCreate()
	e.StoreU64(e.DataAddr(), uint64(m))
	e.StoreU64(e.DataAddr()+8, uint64(c))
	tid := e.ThreadCreate("setter", 0)
	e.MutexLock(m)
	waits := 0
	for e.LoadU64(e.DataAddr()+16) == 0 {
		e.CondvarWait(c, m)
		waits++
	}
	e.MutexUnlock(m)
	e.Print(fmt.Sprintf("condvar waits %d joined %d\n", waits, e.WaitTid(tid)))
	e.Print(fmt.Sprintf("unlock unlocked %d\n", e.Syscall(syscall.SysMutexUnlock, uint64(m), 0, 0)))
	e.Print(fmt.Sprintf("bad mutex %d\n", e.Syscall(syscall.SysMutexLock, 42, 0, 0)))
	e.Print(fmt.Sprintf("join self %d\n", e.Syscall(syscall.SysWaitTid, uint64(e.GetTid()), 0, 0)))
	return 0
}

func tourKill(e *user.Env) int {
	child := e.Fork("spinner")
	e.Yield()
	ok := e.Kill(child, task.SIGINT)
	pid, code := e.Wait(child)
	e.Print(fmt.Sprintf("kill %d reaped %t %d\n", ok, pid == child, code))
	e.Print(fmt.Sprintf("kill gone %d bad signal %d\n", e.Kill(child, task.SIGINT), e.Kill(e.GetPid(), 9)))
	return 0
}

func tourMisc(e *user.Env) int {
	start := e.GetTime()
	e.Sleep(30)
	e.Print(fmt.Sprintf("slept %t\n", e.GetTime()-start >= 30))
	e.Print(fmt.Sprintf("pid %d tid %d\n", e.GetPid(), e.GetTid()))
	e.Print(fmt.Sprintf("unknown %d\n", e.Syscall(4242, 0, 0, 0)))
	e.Print(fmt.Sprintf("no child %d\n", func() int { p, _ := e.WaitPid(-1); return p }()))
	e.Print(fmt.Sprintf("bad exec %d\n", e.Exec("nope", nil)))
	return 3
}

func tourLimits(e *user.Env) int {
	fd := e.Open("big", file.CREATE|file.RDWR)
	e.Seek(fd, 1<<32, file.SeekSet)
	far := e.Write(fd, []byte("x"))
	e.Seek(fd, 9<<20, file.SeekSet)
	past := e.Write(fd, []byte("x"))
	e.Print(fmt.Sprintf("far write %d %d size %d\n", far, past, e.Seek(fd, 0, file.SeekEnd)))

	// one 2000-byte string named eight times overflows the new stack
	sp := e.SP()
	s := e.PushString(strings.Repeat("a", 2000))
	path := e.PushString("tour")
	argv := e.Alloc(9 * 8)
	for i := uint64(0); i < 8; i++ {
		e.StoreU64(argv+i*8, s)
	}
	e.StoreU64(argv+8*8, 0)
	r := e.Syscall(syscall.SysExec, path, argv, 0)
	e.SetSP(sp)
	e.Print(fmt.Sprintf("long argv %d\n", r))
	return 0
}

type SyscallSuite struct {
	suite.Suite
	out *bytes.Buffer
	k   *kernel.KernelContext
}

func (suite *SyscallSuite) SetupTest() {
	cfg := config.Default()
	cfg.TotalBlocks = 2048
	clock := timer.NewFakeClock()
	clock.SetStep(time.Millisecond)
	suite.out = new(bytes.Buffer)
	k, err := kernel.New(&cfg, disk.NewMemDisk(2048), kernel.Options{
		Console:  suite.out,
		Clock:    clock,
		Programs: []*user.Program{tour},
	})
	suite.Require().NoError(err)
	suite.Require().NoError(k.InstallPrograms())
	suite.k = k
}

func TestSyscallSuite(t *testing.T) {
	suite.Run(t, new(SyscallSuite))
}

func (suite *SyscallSuite) tour(scenario string) int {
	_, err := suite.k.Spawn("tour", []string{scenario})
	suite.Require().NoError(err)
	code, err := suite.k.Run()
	suite.Require().NoError(err)
	return code
}

func (suite *SyscallSuite) TestFiles() {
	suite.Equal(0, suite.tour("files"))
	suite.Equal("seek 1 read 4 ello\n"+
		"end 5\n"+
		"bad seek -1\n"+
		"via dup\n"+
		"close 0 -1\n"+
		"missing -1\n"+
		"ro write -1\n"+
		"after trunc 0\n", suite.out.String())
}

func (suite *SyscallSuite) TestPipe() {
	suite.Equal(0, suite.tour("pipe"))
	suite.Equal("pipe 4 ping eof 0\nwrong end -1\n", suite.out.String())
}

func (suite *SyscallSuite) TestEventFd() {
	suite.Equal(0, suite.tour("eventfd"))
	suite.Equal("eventfd 8 3 again -2\nsemaphore 1 1 -2\nbad flags -1\n", suite.out.String())
}

func (suite *SyscallSuite) TestDevices() {
	suite.k.Keyboard().Push(1, 30, 1)
	suite.Equal(0, suite.tour("devices"))
	suite.Equal(fmt.Sprintf("gpu 64x48 wrote 4\ninput %#x 0x0\n", drivers.PackEvent(1, 30, 1)),
		suite.out.String())
	suite.Equal([]byte{1, 2, 3, 4}, suite.k.GPU().Framebuffer()[:4])
}

func (suite *SyscallSuite) TestCondvar() {
	suite.Equal(0, suite.tour("condvar"))
	suite.Equal("condvar waits 1 joined 5\nunlock unlocked -1\nbad mutex -1\njoin self -1\n",
		suite.out.String())
}

func (suite *SyscallSuite) TestKill() {
	suite.Equal(0, suite.tour("kill"))
	suite.Equal("kill 0 reaped true -2\nkill gone -1 bad signal -1\n", suite.out.String())
}

func (suite *SyscallSuite) TestLimits() {
	suite.Equal(0, suite.tour("limits"))
	suite.Equal("far write -1 -1 size 0\nlong argv -1\n", suite.out.String())
}

func (suite *SyscallSuite) TestMisc() {
	suite.Equal(3, suite.tour("misc"))
	suite.Equal("slept true\npid 0 tid 0\nunknown -1\nno child -1\nbad exec -1\n", suite.out.String())
}
