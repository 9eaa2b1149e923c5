package file

import (
	"github.com/mit-pdos/ezos/mm"
)

const RingBufferSize = 32

type ringStatus int

const (
	ringEmpty ringStatus = iota
	ringNormal
	ringFull
)

type ringBuffer struct {
	arr     [RingBufferSize]byte
	head    int
	tail    int
	status  ringStatus
	writers int
}

func (r *ringBuffer) readByte() byte {
	if r.status == ringEmpty {
		panic("pipe: read from empty ring")
	}
	r.status = ringNormal
	b := r.arr[r.head]
	r.head = (r.head + 1) % RingBufferSize
	if r.head == r.tail {
		r.status = ringEmpty
	}
	return b
}

func (r *ringBuffer) writeByte(b byte) {
	if r.status == ringFull {
		panic("pipe: write to full ring")
	}
	r.status = ringNormal
	r.arr[r.tail] = b
	r.tail = (r.tail + 1) % RingBufferSize
	if r.head == r.tail {
		r.status = ringFull
	}
}

func (r *ringBuffer) available() int {
	switch r.status {
	case ringEmpty:
		return 0
	case ringFull:
		return RingBufferSize
	}
	return (r.tail - r.head + RingBufferSize) % RingBufferSize
}

// Pipe is one end of a pipe. The write end counts its descriptors; the
// reader sees end-of-file once the count drops to zero and the ring is
// drained.
type Pipe struct {
	readable bool
	writable bool
	ring     *ringBuffer
	sched    Sched
}

// MakePipe returns the read and write ends. The write end starts with one
// reference.
func MakePipe(s Sched) (*Pipe, *Pipe) {
	r := &ringBuffer{writers: 1}
	return &Pipe{readable: true, ring: r, sched: s},
		&Pipe{writable: true, ring: r, sched: s}
}

func (p *Pipe) Readable() bool { return p.readable }
func (p *Pipe) Writable() bool { return p.writable }
func (p *Pipe) Seekable() bool { return false }

func (p *Pipe) Retain() {
	if p.writable {
		p.ring.writers++
	}
}

func (p *Pipe) Release() {
	if p.writable {
		p.ring.writers--
	}
}

func (p *Pipe) Read(buf *mm.UserBuffer) (uint64, error) {
	if !p.readable {
		return 0, ErrNotReadable
	}
	want := buf.Len()
	var n uint64
	bi, off := 0, 0
	for n < want {
		if p.ring.available() == 0 {
			if p.ring.writers == 0 || p.sched.Interrupted() {
				return n, nil
			}
			p.sched.Yield()
			continue
		}
		for p.ring.available() > 0 && n < want {
			for off == len(buf.Buffers[bi]) {
				bi, off = bi+1, 0
			}
			buf.Buffers[bi][off] = p.ring.readByte()
			off++
			n++
		}
	}
	return n, nil
}

func (p *Pipe) Write(buf *mm.UserBuffer) (uint64, error) {
	if !p.writable {
		return 0, ErrNotWritable
	}
	data := buf.Bytes()
	var n uint64
	for n < uint64(len(data)) {
		if p.ring.available() == RingBufferSize {
			if p.sched.Interrupted() {
				return n, nil
			}
			p.sched.Yield()
			continue
		}
		for p.ring.available() < RingBufferSize && n < uint64(len(data)) {
			p.ring.writeByte(data[n])
			n++
		}
	}
	return n, nil
}

func (p *Pipe) Seek(off int64, whence int) (uint64, error) {
	return 0, ErrNotSeekable
}
