// buf holds one disk block resident in memory
package buf

import (
	"sync"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/ezos/disk"
	"github.com/mit-pdos/ezos/util"
)

// A Buf is the in-memory copy of one disk block. The owning cache counts
// references; the per-block mutex serializes access to Data.
type Buf struct {
	Blkno uint64
	Data  []byte
	dirty bool // has this block been written to?
	mu    *sync.Mutex
	refs  uint64
}

func MkBuf(blkno uint64, data []byte) *Buf {
	if uint64(len(data)) != disk.BlockSize {
		panic("MkBuf: data is not block-sized")
	}
	b := &Buf{
		Blkno: blkno,
		Data:  data,
		dirty: false,
		mu:    new(sync.Mutex),
	}
	return b
}

// Load block blkno from d into a new buf
func MkBufLoad(d disk.Device, blkno uint64) *Buf {
	data := make([]byte, disk.BlockSize)
	d.ReadBlock(blkno, data)
	return MkBuf(blkno, data)
}

func (buf *Buf) Lock() {
	buf.mu.Lock()
}

func (buf *Buf) Unlock() {
	buf.mu.Unlock()
}

func (buf *Buf) Refs() uint64 {
	return buf.refs
}

func (buf *Buf) IncRef() {
	buf.refs++
}

func (buf *Buf) DecRef() {
	if buf.refs == 0 {
		panic("DecRef")
	}
	buf.refs--
}

func (buf *Buf) IsDirty() bool {
	return buf.dirty
}

func (buf *Buf) SetDirty() {
	buf.dirty = true
}

func (buf *Buf) bounds(off uint64, n uint64) {
	if off+n > uint64(len(buf.Data)) {
		panic("buf: access beyond block")
	}
}

// View returns n bytes at off for reading.
func (buf *Buf) View(off uint64, n uint64) []byte {
	buf.bounds(off, n)
	return buf.Data[off : off+n]
}

// Modify returns n bytes at off for writing and marks the block dirty.
func (buf *Buf) Modify(off uint64, n uint64) []byte {
	buf.bounds(off, n)
	buf.SetDirty()
	return buf.Data[off : off+n]
}

// Sync writes the block back to d if it is dirty.
func (buf *Buf) Sync(d disk.Device) {
	if buf.dirty {
		util.DPrintf(15, "buf %d: write back\n", buf.Blkno)
		d.WriteBlock(buf.Blkno, buf.Data)
		buf.dirty = false
	}
}

func (buf *Buf) U64Get(off uint64) uint64 {
	dec := marshal.NewDec(buf.View(off, 8))
	return dec.GetInt()
}

func (buf *Buf) U64Put(off uint64, v uint64) {
	enc := marshal.NewEnc(8)
	enc.PutInt(v)
	copy(buf.Modify(off, 8), enc.Finish())
}

// U32Get reads the little-endian 32-bit value at byte offset off (4-aligned).
func (buf *Buf) U32Get(off uint64) uint32 {
	w := buf.U64Get(off &^ 7)
	if off%8 == 0 {
		return uint32(w)
	}
	return uint32(w >> 32)
}

func (buf *Buf) U32Put(off uint64, v uint32) {
	base := off &^ 7
	w := buf.U64Get(base)
	if off%8 == 0 {
		w = w&^0xffffffff | uint64(v)
	} else {
		w = w&0xffffffff | uint64(v)<<32
	}
	buf.U64Put(base, w)
}

// U32sGet decodes n consecutive little-endian 32-bit words from b; n must
// be even.
func U32sGet(b []byte, n uint64) []uint32 {
	dec := marshal.NewDec(b[:n*4])
	ws := dec.GetInts(n / 2)
	vs := make([]uint32, n)
	for i, w := range ws {
		vs[2*i] = uint32(w)
		vs[2*i+1] = uint32(w >> 32)
	}
	return vs
}

// U32sPut encodes vs (even length) into b as little-endian 32-bit words.
func U32sPut(b []byte, vs []uint32) {
	ws := make([]uint64, len(vs)/2)
	for i := range ws {
		ws[i] = uint64(vs[2*i]) | uint64(vs[2*i+1])<<32
	}
	enc := marshal.NewEnc(uint64(len(vs)) * 4)
	enc.PutInts(ws)
	copy(b, enc.Finish())
}
