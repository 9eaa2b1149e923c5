package alloc

import (
	"math/bits"

	"github.com/mit-pdos/ezos/addr"
	"github.com/mit-pdos/ezos/bcache"
	"github.com/mit-pdos/ezos/buf"
	"github.com/mit-pdos/ezos/common"
	"github.com/mit-pdos/ezos/disk"
	"github.com/mit-pdos/ezos/util"
)

const wordsPerBlock = common.BlockSize / 8

// Alloc is an on-disk bitmap: bit n set means number n is in use. Each block
// holds 4096 bits as 64 little-endian 64-bit words. Callers serialize access
// (the filesystem lock does).
type Alloc struct {
	start common.Bnum
	len   uint64 // in blocks
}

func MkAlloc(start common.Bnum, len uint64) *Alloc {
	a := &Alloc{
		start: start,
		len:   len,
	}
	return a
}

// Max is the number of bits the bitmap covers.
func (a *Alloc) Max() uint64 {
	return a.len * common.BlockBits
}

// findFreeBit claims the first clear bit of b, returning its index.
func findFreeBit(b *buf.Buf) (uint64, bool) {
	for w := uint64(0); w < wordsPerBlock; w++ {
		word := b.U64Get(w * 8)
		if word != ^uint64(0) {
			bit := uint64(bits.TrailingZeros64(^word))
			b.U64Put(w*8, word|(1<<bit))
			return w*64 + bit, true
		}
	}
	return 0, false
}

// AllocNum returns the lowest free number, scanning blocks in order.
func (a *Alloc) AllocNum(c *bcache.Cache, dev disk.Device) (uint64, bool) {
	for i := uint64(0); i < a.len; i++ {
		var n uint64
		var ok bool
		c.With(uint64(a.start)+i, dev, func(b *buf.Buf) {
			n, ok = findFreeBit(b)
		})
		if ok {
			num := i*common.BlockBits + n
			util.DPrintf(10, "alloc %d: %d\n", a.start, num)
			return num, true
		}
	}
	return 0, false
}

func (a *Alloc) FreeNum(c *bcache.Cache, dev disk.Device, num uint64) {
	ad := addr.MkBitAddr(a.start, num)
	if uint64(ad.Blkno-a.start) >= a.len {
		panic("freeBlock")
	}
	c.With(uint64(ad.Blkno), dev, func(b *buf.Buf) {
		off := (ad.Off / 64) * 8
		mask := uint64(1) << (ad.Off % 64)
		word := b.U64Get(off)
		if word&mask == 0 {
			panic("dealloc before alloc")
		}
		b.U64Put(off, word&^mask)
	})
}

// NumUsed counts set bits.
func (a *Alloc) NumUsed(c *bcache.Cache, dev disk.Device) uint64 {
	n := uint64(0)
	for i := uint64(0); i < a.len; i++ {
		c.With(uint64(a.start)+i, dev, func(b *buf.Buf) {
			for w := uint64(0); w < wordsPerBlock; w++ {
				n += popCnt(b.U64Get(w * 8))
			}
		})
	}
	return n
}

func popCnt(w uint64) uint64 {
	return uint64(bits.OnesCount64(w))
}
