package kernel

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/mit-pdos/ezos/config"
	"github.com/mit-pdos/ezos/disk"
	"github.com/mit-pdos/ezos/file"
	"github.com/mit-pdos/ezos/timer"
	"github.com/mit-pdos/ezos/user"
)

type KernelSuite struct {
	suite.Suite
	cfg *config.Config
	d   disk.Disk
	out *bytes.Buffer
}

func (suite *KernelSuite) SetupTest() {
	cfg := config.Default()
	cfg.TotalBlocks = 2048
	suite.cfg = &cfg
	suite.d = disk.NewMemDisk(uint64(cfg.TotalBlocks))
	suite.out = new(bytes.Buffer)
}

func TestKernelSuite(t *testing.T) {
	suite.Run(t, new(KernelSuite))
}

func (suite *KernelSuite) boot() *KernelContext {
	clock := timer.NewFakeClock()
	clock.SetStep(time.Millisecond)
	k, err := New(suite.cfg, suite.d, Options{Console: suite.out, Clock: clock})
	suite.Require().NoError(err)
	return k
}

func (suite *KernelSuite) run(args ...string) int {
	k := suite.boot()
	suite.Require().NoError(k.Boot(args))
	code, err := k.Run()
	suite.Require().NoError(err)
	return code
}

func (suite *KernelSuite) TestHello() {
	suite.Equal(0, suite.run("hello"))
	suite.Equal("Hello, world!\n[initproc] released a zombie process, pid=1, exit_code=0\n",
		suite.out.String())
}

func (suite *KernelSuite) TestHelloOnSectorDisk() {
	suite.d = disk.NewSectorMemDisk(uint64(suite.cfg.TotalBlocks))
	suite.TestHello()
}

func (suite *KernelSuite) TestForkIndependentOffsets() {
	k := suite.boot()
	suite.Require().NoError(k.Install("a", []byte("abcdefghijkl")))
	suite.Require().NoError(k.Boot([]string{"forkread", "a"}))
	code, err := k.Run()
	suite.Require().NoError(err)
	suite.Equal(0, code)
	suite.True(strings.HasPrefix(suite.out.String(),
		"parent abcd\nchild efgh\nparent efgh\nwaitpid true 7 -1\n"), suite.out.String())
}

func (suite *KernelSuite) TestForkIndependentOffsetsNonBlockingDisk() {
	suite.cfg.NonBlockingDisk = true
	suite.cfg.CacheBlocks = 2
	suite.TestForkIndependentOffsets()
}

// exitWhileWriting forks a child whose two writer threads are inside the
// filesystem, and a third waits on a semaphore, when its main thread
// exits. The parent then needs the filesystem again.
var exitWhileWriting = &user.Program{
	Name: "exitwrite",
	Main: func(e *user.Env) int {
		e.Close(e.Open("g", file.CREATE|file.WRONLY))
		child := e.Fork("victim")
		pid, code := e.Wait(child)
		fd := e.Open("g", file.RDONLY)
		n := e.Read(fd, make([]byte, 7000))
		e.Print(fmt.Sprintf("reaped %t %d size %d\n", pid == child, code, n))
		return 0
	},
	Funcs: map[string]user.Func{
		"victim": func(e *user.Env) int {
			e.StoreU64(e.DataAddr(), uint64(e.Open("g", file.WRONLY)))
			e.StoreU64(e.DataAddr()+8, uint64(e.SemCreate(0)))
			e.ThreadCreate("writer", 0)
			e.ThreadCreate("writer", 0)
			e.ThreadCreate("waiter", 0)
			e.Yield()
			return 9
		},
		"writer": func(e *user.Env) int {
			e.Write(int(e.LoadU64(e.DataAddr())), bytes.Repeat([]byte("w"), 3000))
			return 0
		},
		"waiter": func(e *user.Env) int {
			e.SemDown(int(e.LoadU64(e.DataAddr() + 8)))
			e.Print("waiter woke\n")
			return 0
		},
	},
}

func (suite *KernelSuite) TestExitWhileThreadsInFilesystem() {
	suite.cfg.NonBlockingDisk = true
	suite.cfg.CacheBlocks = 2
	clock := timer.NewFakeClock()
	clock.SetStep(time.Millisecond)
	k, err := New(suite.cfg, suite.d, Options{
		Console:  suite.out,
		Clock:    clock,
		Programs: []*user.Program{exitWhileWriting},
	})
	suite.Require().NoError(err)
	suite.Require().NoError(k.InstallPrograms())
	_, err = k.Spawn("exitwrite", nil)
	suite.Require().NoError(err)
	code, err := k.Run()
	suite.Require().NoError(err)
	suite.Equal(0, code)
	suite.Equal("reaped true 9 size 6000\n", suite.out.String())
}

func (suite *KernelSuite) TestSemaphoreOrder() {
	suite.Equal(0, suite.run("sync_sem"))
	out := suite.out.String()
	want := []string{
		"Second want to continue, but need to wait first\n",
		"First work and wakeup Second\n",
		"Second can work now\n",
		"sync_sem passed!\n",
	}
	last := -1
	for _, w := range want {
		i := strings.Index(out, w)
		suite.Greater(i, last, w)
		last = i
	}
}

func (suite *KernelSuite) TestFaults() {
	suite.Equal(-11, suite.run("faulty", "load"))
	suite.SetupTest()
	suite.Equal(-11, suite.run("faulty", "store"))
	suite.SetupTest()
	suite.Equal(-4, suite.run("faulty", "ill"))
}

func (suite *KernelSuite) TestCat() {
	k := suite.boot()
	suite.Require().NoError(k.Install("notes", bytes.Repeat([]byte("0123456789"), 60)))
	suite.Require().NoError(k.Boot([]string{"cat", "notes"}))
	code, err := k.Run()
	suite.Require().NoError(err)
	suite.Equal(0, code)
	suite.True(strings.HasPrefix(suite.out.String(), strings.Repeat("0123456789", 60)))
}

func (suite *KernelSuite) TestCatMissing() {
	suite.Equal(-1, suite.run("cat", "nothere"))
	suite.Contains(suite.out.String(), "cat: cannot open nothere\n")
}

func (suite *KernelSuite) TestExecMissing() {
	suite.Equal(-1, suite.run("nosuchprogram"))
	suite.Contains(suite.out.String(), "initproc: cannot exec nosuchprogram\n")
}

func (suite *KernelSuite) TestVolumePersists() {
	k := suite.boot()
	suite.Require().NoError(k.Install("a", []byte("kept")))
	suite.Require().NoError(k.InstallPrograms())
	k.FS().Sync()

	k2 := suite.boot()
	root := k2.FS().Root()
	suite.NotNil(root.Find("hello"))
	suite.Equal([]byte("kept"), root.Find("a").ReadAll())
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.CacheBlocks = 0
	_, err := New(&cfg, disk.NewMemDisk(16), Options{})
	assert.Error(t, err)
}

func TestNewRejectsSmallDevice(t *testing.T) {
	cfg := config.Default()
	_, err := New(&cfg, disk.NewMemDisk(64), Options{})
	assert.Error(t, err)
}

func TestSpawnMissing(t *testing.T) {
	cfg := config.Default()
	cfg.TotalBlocks = 2048
	k, err := New(&cfg, disk.NewMemDisk(2048), Options{Clock: timer.NewFakeClock()})
	assert.NoError(t, err)
	_, err = k.Spawn("initproc", nil)
	assert.True(t, errors.Is(err, ErrNoProgram))
}
