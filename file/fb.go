package file

import (
	"github.com/mit-pdos/ezos/mm"
	"github.com/mit-pdos/ezos/util"
)

// GPU is a linear 32-bit framebuffer.
type GPU interface {
	Resolution() (uint32, uint32)
	Framebuffer() []byte
	Flush()
}

// Fb exposes the framebuffer as a byte stream. Reaching the end of the
// visible area flushes the frame and wraps the offset to 0.
type Fb struct {
	gpu    GPU
	offset uint64
}

func NewFb(g GPU) *Fb {
	return &Fb{gpu: g}
}

func (f *Fb) Readable() bool { return true }
func (f *Fb) Writable() bool { return true }
func (f *Fb) Seekable() bool { return true }

func (f *Fb) frameLen() uint64 {
	x, y := f.gpu.Resolution()
	return uint64(x) * uint64(y) * 4
}

func (f *Fb) wrap() {
	if f.offset >= f.frameLen() {
		util.DPrintf(5, "fb: flush\n")
		f.offset = 0
		f.gpu.Flush()
	}
}

func (f *Fb) Read(buf *mm.UserBuffer) (uint64, error) {
	fb := f.gpu.Framebuffer()
	var n uint64
	for _, b := range buf.Buffers {
		if f.offset >= uint64(len(fb)) {
			break
		}
		c := copy(b, fb[f.offset:])
		f.offset += uint64(c)
		n += uint64(c)
	}
	return n, nil
}

func (f *Fb) Write(buf *mm.UserBuffer) (uint64, error) {
	fb := f.gpu.Framebuffer()
	var n uint64
	for _, b := range buf.Buffers {
		if f.offset >= uint64(len(fb)) {
			break
		}
		c := copy(fb[f.offset:], b)
		f.offset += uint64(c)
		n += uint64(c)
	}
	f.wrap()
	return n, nil
}

// Seek treats whence 0 as absolute and anything else as relative, clamping
// at 0.
func (f *Fb) Seek(off int64, whence int) (uint64, error) {
	if whence == SeekSet {
		if off < 0 {
			f.offset = 0
		} else {
			f.offset = uint64(off)
		}
	} else if off < -int64(f.offset) {
		f.offset = 0
	} else {
		f.offset = uint64(int64(f.offset) + off)
	}
	f.wrap()
	return f.offset, nil
}
