// Package kernel assembles the simulated machine, its devices and the
// kernel core into one context that can be booted.
package kernel

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mit-pdos/ezos/bcache"
	"github.com/mit-pdos/ezos/config"
	"github.com/mit-pdos/ezos/disk"
	"github.com/mit-pdos/ezos/drivers"
	"github.com/mit-pdos/ezos/ezfs"
	"github.com/mit-pdos/ezos/file"
	"github.com/mit-pdos/ezos/kcell"
	"github.com/mit-pdos/ezos/ksync"
	"github.com/mit-pdos/ezos/mm"
	"github.com/mit-pdos/ezos/riscv"
	"github.com/mit-pdos/ezos/syscall"
	"github.com/mit-pdos/ezos/task"
	"github.com/mit-pdos/ezos/timer"
	"github.com/mit-pdos/ezos/trap"
	"github.com/mit-pdos/ezos/user"
	"github.com/mit-pdos/ezos/user/progs"
	"github.com/mit-pdos/ezos/util"
)

var ErrNoProgram = errors.New("kernel: no such program")

// Options are the host-side attachments of the machine.
type Options struct {
	// Console receives everything user programs write to stdout.
	Console io.Writer
	// Clock drives the timer; nil means the host clock.
	Clock timer.Clock
	// Programs replaces the built-in program set.
	Programs []*user.Program
}

// KernelContext owns every piece of kernel state. There is one per
// simulated machine.
type KernelContext struct {
	cfg      config.Config
	hart     *riscv.Hart
	mem      *mm.Memory
	timer    *timer.Timer
	plic     *drivers.Plic
	console  *drivers.BufConsole
	gpu      *drivers.MemGPU
	keyboard *drivers.EventQueue
	mouse    *drivers.EventQueue
	dev      disk.Disk
	blk      disk.Device
	cache    *bcache.Cache
	fs       *ezfs.FileSystem
	sys      *task.System
	machine  *trap.Machine
	registry *user.Registry
}

// New builds a machine over dev. A device holding a valid volume is
// mounted; anything else is formatted with cfg's geometry.
func New(cfg *config.Config, dev disk.Disk, opts Options) (*KernelContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	util.Debug = cfg.Debug
	if opts.Console == nil {
		opts.Console = io.Discard
	}
	if opts.Clock == nil {
		opts.Clock = timer.NewRealClock()
	}
	if opts.Programs == nil {
		opts.Programs = progs.All()
	}

	k := &KernelContext{cfg: *cfg, dev: dev}
	k.hart = riscv.NewHart()
	k.mem = mm.NewMemory(cfg.MemorySize)
	k.timer = timer.NewTimer(opts.Clock)
	k.plic = drivers.NewPlic()
	k.hart.Timer = k.timer
	k.hart.External = k.plic

	k.console = drivers.NewBufConsole(opts.Console, k.plic)
	k.gpu = drivers.NewMemGPU(cfg.GPUWidth, cfg.GPUHeight)
	k.keyboard = drivers.NewEventQueue(k.plic, drivers.KeyboardIRQ)
	k.mouse = drivers.NewEventQueue(k.plic, drivers.MouseIRQ)
	for _, irq := range []uint32{drivers.KeyboardIRQ, drivers.MouseIRQ, drivers.ConsoleIRQ} {
		irq := irq
		k.plic.Register(irq, func() {
			util.DPrintf(5, "irq %d: input ready\n", irq)
		})
	}

	intr := kcell.NewIntrState(k.hart)
	k.sys = task.New(task.Config{
		Hart:        k.hart,
		Intr:        intr,
		Mem:         k.mem,
		KernelSpace: mm.NewKernel(k.mem),
		Timer:       k.timer,
		Console:     k.console,
		TrapHandler: trap.HandlerAddr,
	})

	k.blk = dev
	if cfg.NonBlockingDisk {
		q := disk.NewQueuedDisk(dev, cfg.DiskChannels)
		async := drivers.NewAsyncBlock(q, k.sys)
		q.SetNotify(func() { k.plic.Raise(drivers.BlockIRQ) })
		k.plic.Register(drivers.BlockIRQ, async.HandleIRQ)
		k.blk = async
	}

	// The filesystem lock serializes every use of the cache, so the cache
	// itself only needs a host mutex.
	k.cache = bcache.MkCache(cfg.CacheBlocks, new(sync.Mutex))
	fsLock := ksync.NewMutex(k.sys)
	fs, err := ezfs.Open(k.blk, k.cache, fsLock)
	if err != nil {
		if !errors.Is(err, ezfs.ErrBadMagic) {
			return nil, err
		}
		if uint64(cfg.TotalBlocks) > dev.Size() {
			return nil, fmt.Errorf("kernel: %d blocks requested, device has %d", cfg.TotalBlocks, dev.Size())
		}
		fs = ezfs.Create(k.blk, k.cache, fsLock, cfg.TotalBlocks, cfg.InodeBitmapBlocks)
	}
	k.fs = fs

	k.registry = user.NewRegistry(opts.Programs...)
	disp := syscall.New(syscall.Config{
		Sys:    k.sys,
		FS:     k.fs,
		GPU:    k.gpu,
		Inputs: []drivers.InputDevice{k.keyboard, k.mouse},
	})
	k.machine = trap.New(trap.Config{
		Hart:     k.hart,
		Mem:      k.mem,
		Sys:      k.sys,
		Plic:     k.plic,
		Text:     k.registry,
		Syscalls: disp,
	})
	k.machine.Init()
	return k, nil
}

func (k *KernelContext) FS() *ezfs.FileSystem          { return k.fs }
func (k *KernelContext) Sys() *task.System             { return k.sys }
func (k *KernelContext) Registry() *user.Registry      { return k.registry }
func (k *KernelContext) GPU() *drivers.MemGPU          { return k.gpu }
func (k *KernelContext) Console() *drivers.BufConsole  { return k.console }
func (k *KernelContext) Keyboard() *drivers.EventQueue { return k.keyboard }
func (k *KernelContext) Mouse() *drivers.EventQueue    { return k.mouse }

// Install stores data as file name in the root directory, replacing any
// previous contents.
func (k *KernelContext) Install(name string, data []byte) error {
	f, err := file.Open(k.fs.Root(), name, file.CREATE|file.WRONLY)
	if err != nil {
		return err
	}
	n, err := f.Write(mm.NewUserBuffer([][]byte{data}))
	if err != nil {
		return fmt.Errorf("install %q: %w", name, err)
	}
	if n != uint64(len(data)) {
		return fmt.Errorf("install %q: wrote %d of %d bytes", name, n, len(data))
	}
	return nil
}

// InstallPrograms writes the image of every registered program that is not
// already on the volume.
func (k *KernelContext) InstallPrograms() error {
	root := k.fs.Root()
	for _, p := range k.registry.Programs() {
		if root.Find(p.Name) != nil {
			continue
		}
		if err := k.Install(p.Name, user.Image(p)); err != nil {
			return err
		}
	}
	return nil
}

// Spawn loads the file name from the volume as a new process. The first
// process spawned becomes init.
func (k *KernelContext) Spawn(name string, args []string) (*task.ProcessControlBlock, error) {
	ino := k.fs.Root().Find(name)
	if ino == nil {
		return nil, fmt.Errorf("spawn %q: %w", name, ErrNoProgram)
	}
	return k.sys.Spawn(ino.ReadAll(), append([]string{name}, args...))
}

// Boot installs the built-in programs, lists the root directory and
// spawns initproc with args.
func (k *KernelContext) Boot(args []string) error {
	if err := k.InstallPrograms(); err != nil {
		return err
	}
	util.DPrintf(1, "/**** APPS ****\n")
	for _, name := range k.fs.Root().Ls() {
		util.DPrintf(1, "%s\n", name)
	}
	util.DPrintf(1, "**************/\n")
	_, err := k.Spawn("initproc", args)
	return err
}

// Run schedules until init exits and flushes the volume. It returns init's
// exit code.
func (k *KernelContext) Run() (int, error) {
	code, err := k.sys.Run()
	k.fs.Sync()
	k.dev.Barrier()
	util.DPrintf(1, "kernel: init exited with %d\n", code)
	return code, err
}
