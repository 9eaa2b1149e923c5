// Package file holds the objects a process file descriptor can refer to:
// regular files on ezfs, pipes, event counters, the console and the
// framebuffer.
package file

import (
	"errors"

	"github.com/mit-pdos/ezos/ksync"
	"github.com/mit-pdos/ezos/mm"
)

var (
	ErrNotReadable = errors.New("file not readable")
	ErrNotWritable = errors.New("file not writable")
	ErrNotSeekable = errors.New("file not seekable")
	ErrAgain       = errors.New("operation would block")
	ErrInvalid     = errors.New("invalid argument")
	ErrNotFound    = errors.New("no such file")
)

const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

type File interface {
	Readable() bool
	Writable() bool
	Seekable() bool
	Read(buf *mm.UserBuffer) (uint64, error)
	Write(buf *mm.UserBuffer) (uint64, error)
	Seek(off int64, whence int) (uint64, error)
}

// Refcounted files track how many descriptors name them.
type Refcounted interface {
	Retain()
	Release()
}

// Forker files give a forked child its own copy rather than sharing.
type Forker interface {
	Fork() File
}

// Sched is the scheduling a blocking file needs. Interrupted reports that
// the running thread's process has exited and the thread should stop
// waiting.
type Sched interface {
	ksync.Scheduler
	Yield()
	Interrupted() bool
}

func Retain(f File) {
	if r, ok := f.(Refcounted); ok {
		r.Retain()
	}
}

func Release(f File) {
	if r, ok := f.(Refcounted); ok {
		r.Release()
	}
}

// Inherit returns the file a forked child gets for f.
func Inherit(f File) File {
	if fk, ok := f.(Forker); ok {
		return fk.Fork()
	}
	Retain(f)
	return f
}

func clampSeek(cur uint64, end uint64, off int64, whence int) (uint64, error) {
	var base int64
	switch whence {
	case SeekSet:
	case SeekCur:
		base = int64(cur)
	case SeekEnd:
		base = int64(end)
	default:
		return 0, ErrInvalid
	}
	if base+off < 0 {
		return 0, ErrInvalid
	}
	return uint64(base + off), nil
}
