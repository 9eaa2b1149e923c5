package addr

import (
	"github.com/mit-pdos/ezos/common"
)

// Addr identifies the start of a disk object.
//
// Blkno is the block number containing the object, and Off is the location of
// the object within the block (expressed as a byte offset). The size of the
// object is determined by the context in which Addr is used.
type Addr struct {
	Blkno common.Bnum
	Off   uint64 // offset in bytes
}

func (a Addr) Flatid() uint64 {
	return uint64(a.Blkno)*common.BlockSize + a.Off
}

func MkAddr(blkno common.Bnum, off uint64) Addr {
	return Addr{Blkno: blkno, Off: off}
}

// MkInodeAddr locates inode inum in the inode area starting at block start.
func MkInodeAddr(start common.Bnum, inum common.Inum) Addr {
	blk := uint64(inum) / common.InodesPerBlock
	off := (uint64(inum) % common.InodesPerBlock) * common.InodeSize
	return MkAddr(start+common.Bnum(blk), off)
}

// MkBitAddr locates bit n of a bitmap starting at block start; Off is the
// bit's index within its block.
func MkBitAddr(start common.Bnum, n uint64) Addr {
	bit := n % common.BlockBits
	i := n / common.BlockBits
	return MkAddr(start+common.Bnum(i), bit)
}
