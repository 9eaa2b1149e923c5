package syscall

import (
	"errors"

	"github.com/mit-pdos/ezos/file"
	"github.com/mit-pdos/ezos/mm"
)

func errno(err error) int64 {
	if errors.Is(err, file.ErrAgain) {
		return EAgain
	}
	return EFail
}

func (d *Dispatcher) dup(fd uint64) int64 {
	nfd, ok := d.sys.CurrentProcess().DupFd(index(fd))
	if !ok {
		return EFail
	}
	return int64(nfd)
}

func (d *Dispatcher) open(path uint64, flags uint32) int64 {
	name, ok := mm.TranslatedString(d.mem, d.token(), path)
	if !ok || d.root == nil {
		return EFail
	}
	f, err := file.Open(d.root, name, file.OpenFlag(flags))
	if err != nil {
		return EFail
	}
	return int64(d.sys.CurrentProcess().AllocFd(f))
}

func (d *Dispatcher) close(fd uint64) int64 {
	if !d.sys.CurrentProcess().CloseFd(index(fd)) {
		return EFail
	}
	return 0
}

// pipe stores the read and write descriptors at fds.
func (d *Dispatcher) pipe(fds uint64) int64 {
	if _, ok := mm.TranslatedByteBuffer(d.mem, d.token(), fds, 16, true); !ok {
		return EFail
	}
	p := d.sys.CurrentProcess()
	r, w := file.MakePipe(d.sys)
	rfd := p.AllocFd(r)
	wfd := p.AllocFd(w)
	mm.WriteU64(d.mem, d.token(), fds, uint64(rfd))
	mm.WriteU64(d.mem, d.token(), fds+8, uint64(wfd))
	return 0
}

func (d *Dispatcher) seek(fd uint64, off int64, whence int) int64 {
	f, ok := d.sys.CurrentProcess().Fd(index(fd))
	if !ok || !f.Seekable() {
		return EFail
	}
	pos, err := f.Seek(off, whence)
	if err != nil {
		return errno(err)
	}
	return int64(pos)
}

func (d *Dispatcher) read(fd uint64, buf uint64, n uint64) int64 {
	f, ok := d.sys.CurrentProcess().Fd(index(fd))
	if !ok || !f.Readable() {
		return EFail
	}
	bufs, ok := mm.TranslatedByteBuffer(d.mem, d.token(), buf, n, true)
	if !ok {
		return EFail
	}
	got, err := f.Read(mm.NewUserBuffer(bufs))
	if err != nil {
		return errno(err)
	}
	return int64(got)
}

func (d *Dispatcher) write(fd uint64, buf uint64, n uint64) int64 {
	f, ok := d.sys.CurrentProcess().Fd(index(fd))
	if !ok || !f.Writable() {
		return EFail
	}
	bufs, ok := mm.TranslatedByteBuffer(d.mem, d.token(), buf, n, false)
	if !ok {
		return EFail
	}
	put, err := f.Write(mm.NewUserBuffer(bufs))
	if err != nil {
		return errno(err)
	}
	return int64(put)
}

func (d *Dispatcher) eventfd(initval uint32, flags file.EventFdFlag) int64 {
	if !flags.Valid() {
		return EFail
	}
	return int64(d.sys.CurrentProcess().AllocFd(file.NewEventFd(d.sys.Interruptible(), initval, flags)))
}
