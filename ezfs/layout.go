package ezfs

import (
	"bytes"

	"github.com/mit-pdos/ezos/bcache"
	"github.com/mit-pdos/ezos/buf"
	"github.com/mit-pdos/ezos/common"
	"github.com/mit-pdos/ezos/disk"
	"github.com/mit-pdos/ezos/util"
)

// BlockIO is the cache and device a filesystem's records live on.
type BlockIO struct {
	Cache *bcache.Cache
	Dev   disk.Device
}

func (io BlockIO) u32Get(blk uint32, idx uint64) uint32 {
	var v uint32
	io.Cache.With(uint64(blk), io.Dev, func(b *buf.Buf) {
		v = b.U32Get(idx * 4)
	})
	return v
}

func (io BlockIO) u32Put(blk uint32, idx uint64, v uint32) {
	io.Cache.With(uint64(blk), io.Dev, func(b *buf.Buf) {
		b.U32Put(idx*4, v)
	})
}

func (io BlockIO) u32s(blk uint32) []uint32 {
	var vs []uint32
	io.Cache.Read(uint64(blk), io.Dev, 0, common.BlockSize, func(b []byte) {
		vs = buf.U32sGet(b, common.InodeIndirectCount)
	})
	return vs
}

const superBlockSize uint64 = 24

type SuperBlock struct {
	Magic             uint32
	TotalBlocks       uint32
	InodeBitmapBlocks uint32
	InodeAreaBlocks   uint32
	DataBitmapBlocks  uint32
	DataAreaBlocks    uint32
}

func (sb *SuperBlock) Valid() bool {
	return sb.Magic == common.Magic
}

func (sb *SuperBlock) Encode(b []byte) {
	buf.U32sPut(b, []uint32{sb.Magic, sb.TotalBlocks, sb.InodeBitmapBlocks,
		sb.InodeAreaBlocks, sb.DataBitmapBlocks, sb.DataAreaBlocks})
}

func DecodeSuperBlock(b []byte) *SuperBlock {
	vs := buf.U32sGet(b, 6)
	return &SuperBlock{
		Magic:             vs[0],
		TotalBlocks:       vs[1],
		InodeBitmapBlocks: vs[2],
		InodeAreaBlocks:   vs[3],
		DataBitmapBlocks:  vs[4],
		DataAreaBlocks:    vs[5],
	}
}

type InodeType uint32

const (
	TypeFile InodeType = 0
	TypeDir  InodeType = 1
)

// DiskInode is the 128-byte on-disk inode: size, 28 direct pointers, a
// singly and a doubly indirect pointer, and a type tag.
type DiskInode struct {
	Size     uint32
	Direct   [common.InodeDirectCount]uint32
	Indirect [2]uint32
	Type     InodeType
}

func MkDiskInode(t InodeType) *DiskInode {
	return &DiskInode{Type: t}
}

func (ino *DiskInode) IsDir() bool {
	return ino.Type == TypeDir
}

func (ino *DiskInode) Encode(b []byte) {
	vs := make([]uint32, 0, common.InodeSize/4)
	vs = append(vs, ino.Size)
	vs = append(vs, ino.Direct[:]...)
	vs = append(vs, ino.Indirect[:]...)
	vs = append(vs, uint32(ino.Type))
	buf.U32sPut(b, vs)
}

func DecodeDiskInode(b []byte) *DiskInode {
	vs := buf.U32sGet(b, common.InodeSize/4)
	ino := &DiskInode{Size: vs[0]}
	copy(ino.Direct[:], vs[1:1+common.InodeDirectCount])
	ino.Indirect[0] = vs[1+common.InodeDirectCount]
	ino.Indirect[1] = vs[2+common.InodeDirectCount]
	ino.Type = InodeType(vs[31] & 0xff)
	return ino
}

// DataBlocks is the number of data blocks holding size bytes.
func DataBlocks(size uint32) uint64 {
	return util.RoundUp(uint64(size), common.BlockSize)
}

// TotalBlocks counts the data blocks plus the index blocks needed for size.
func TotalBlocks(size uint32) uint64 {
	data := DataBlocks(size)
	total := data
	if data > common.DirectBound {
		total += 1
	}
	if data > common.Indirect1Bound {
		total += 1
		total += util.RoundUp(data-common.Indirect1Bound, common.InodeIndirectCount)
	}
	return total
}

func (ino *DiskInode) DataBlocks() uint64 {
	return DataBlocks(ino.Size)
}

// BlocksNeeded is the number of fresh block ids IncreaseSize consumes.
func (ino *DiskInode) BlocksNeeded(newSize uint32) uint64 {
	if newSize < ino.Size {
		panic("BlocksNeeded: shrinking")
	}
	return TotalBlocks(newSize) - TotalBlocks(ino.Size)
}

// GetBlockID maps the inner-th data block of the file to a device block.
func (ino *DiskInode) GetBlockID(inner uint64, io BlockIO) uint32 {
	if inner < common.DirectBound {
		return ino.Direct[inner]
	}
	if inner < common.Indirect1Bound {
		return io.u32Get(ino.Indirect[0], inner-common.DirectBound)
	}
	tail := inner - common.Indirect1Bound
	l1 := io.u32Get(ino.Indirect[1], tail/common.InodeIndirectCount)
	return io.u32Get(l1, tail%common.InodeIndirectCount)
}

type idStream struct {
	ids []uint32
}

func (s *idStream) next() uint32 {
	if len(s.ids) == 0 {
		panic("not enough block ids for increase size")
	}
	id := s.ids[0]
	s.ids = s.ids[1:]
	return id
}

// IncreaseSize grows the inode to newSize, placing the fresh block ids into
// direct slots, then the singly indirect block, then the doubly indirect
// tree, allocating index blocks from ids as thresholds are crossed.
func (ino *DiskInode) IncreaseSize(newSize uint32, ids []uint32, io BlockIO) {
	cur := ino.DataBlocks()
	goal := DataBlocks(newSize)
	if goal > common.Indirect2Bound {
		panic("increase size: file too large")
	}
	s := &idStream{ids: ids}
	ino.Size = newSize

	for cur < util.Min(goal, common.DirectBound) {
		ino.Direct[cur] = s.next()
		cur++
	}
	if goal <= common.DirectBound {
		return
	}

	if cur == common.DirectBound {
		ino.Indirect[0] = s.next()
	}
	cur -= common.DirectBound
	goal -= common.DirectBound
	for cur < util.Min(goal, common.InodeIndirectCount) {
		io.u32Put(ino.Indirect[0], cur, s.next())
		cur++
	}
	if goal <= common.InodeIndirectCount {
		return
	}

	if cur == common.InodeIndirectCount {
		ino.Indirect[1] = s.next()
	}
	cur -= common.InodeIndirectCount
	goal -= common.InodeIndirectCount
	a0, b0 := cur/common.InodeIndirectCount, cur%common.InodeIndirectCount
	a1, b1 := goal/common.InodeIndirectCount, goal%common.InodeIndirectCount
	for a0 < a1 || (a0 == a1 && b0 < b1) {
		if b0 == 0 {
			io.u32Put(ino.Indirect[1], a0, s.next())
		}
		l1 := io.u32Get(ino.Indirect[1], a0)
		io.u32Put(l1, b0, s.next())
		b0++
		if b0 == common.InodeIndirectCount {
			b0 = 0
			a0++
		}
	}
}

// ClearSize empties the inode and returns every block it owned, index
// blocks included, for the caller to free.
func (ino *DiskInode) ClearSize(io BlockIO) []uint32 {
	var v []uint32
	total := ino.DataBlocks()
	ino.Size = 0

	cur := uint64(0)
	for cur < util.Min(total, common.DirectBound) {
		v = append(v, ino.Direct[cur])
		ino.Direct[cur] = 0
		cur++
	}
	if total <= common.DirectBound {
		return v
	}

	v = append(v, ino.Indirect[0])
	total -= common.DirectBound
	l1 := io.u32s(ino.Indirect[0])
	v = append(v, l1[:util.Min(total, common.InodeIndirectCount)]...)
	ino.Indirect[0] = 0
	if total <= common.InodeIndirectCount {
		return v
	}

	v = append(v, ino.Indirect[1])
	total -= common.InodeIndirectCount
	a1, b1 := total/common.InodeIndirectCount, total%common.InodeIndirectCount
	l2 := io.u32s(ino.Indirect[1])
	for _, id := range l2[:a1] {
		v = append(v, id)
		v = append(v, io.u32s(id)...)
	}
	if b1 > 0 {
		v = append(v, l2[a1])
		v = append(v, io.u32s(l2[a1])[:b1]...)
	}
	ino.Indirect[1] = 0
	return v
}

// ReadAt copies file bytes from off into b, clipped to the file size, and
// returns the count copied.
func (ino *DiskInode) ReadAt(off uint64, b []byte, io BlockIO) uint64 {
	start := off
	end := util.Min(off+uint64(len(b)), uint64(ino.Size))
	if start >= end {
		return 0
	}
	n := uint64(0)
	for start < end {
		blkEnd := util.Min((start/common.BlockSize+1)*common.BlockSize, end)
		sz := blkEnd - start
		id := ino.GetBlockID(start/common.BlockSize, io)
		io.Cache.Read(uint64(id), io.Dev, start%common.BlockSize, sz, func(data []byte) {
			copy(b[n:n+sz], data)
		})
		n += sz
		start = blkEnd
	}
	return n
}

// WriteAt copies b into the file at off, clipped to the current size; the
// caller grows the inode first.
func (ino *DiskInode) WriteAt(off uint64, b []byte, io BlockIO) uint64 {
	start := off
	end := util.Min(off+uint64(len(b)), uint64(ino.Size))
	if start > end {
		panic("write at: offset beyond size")
	}
	n := uint64(0)
	for start < end {
		blkEnd := util.Min((start/common.BlockSize+1)*common.BlockSize, end)
		sz := blkEnd - start
		id := ino.GetBlockID(start/common.BlockSize, io)
		io.Cache.Modify(uint64(id), io.Dev, start%common.BlockSize, sz, func(data []byte) {
			copy(data, b[n:n+sz])
		})
		n += sz
		start = blkEnd
	}
	return n
}

// DirEntry is a 32-byte directory record: a NUL-padded name of at most 27
// bytes and an inode number.
type DirEntry struct {
	Name string
	Inum common.Inum
}

func (de *DirEntry) Encode(b []byte) {
	raw := make([]byte, common.DirentSize)
	copy(raw[:common.NameLimit], de.Name)
	words := buf.U32sGet(raw, common.DirentSize/4)
	words[len(words)-1] = de.Inum
	buf.U32sPut(b, words)
}

func DecodeDirEntry(b []byte) *DirEntry {
	name := b[:common.NameLimit+1]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	words := buf.U32sGet(b, common.DirentSize/4)
	return &DirEntry{Name: string(name), Inum: words[len(words)-1]}
}
