package disk

import (
	"github.com/mit-pdos/ezos/common"
)

// Block is a 512-byte buffer
type Block = []byte

const BlockSize uint64 = common.BlockSize

// Device is the contract the filesystem needs from storage: fixed-size block
// reads and writes by block id. Misuse (wrong-sized buffer, out-of-range id)
// is fatal.
type Device interface {
	// ReadBlock fills b with block a.
	ReadBlock(a uint64, b Block)

	// WriteBlock stores b as block a.
	WriteBlock(a uint64, b Block)
}

// Disk is a Device that also knows its size and can be flushed and closed.
type Disk interface {
	Device

	// Size reports how big the disk is, in blocks
	Size() uint64

	// Barrier ensures data is persisted.
	//
	// When it returns, all outstanding writes are guaranteed to be durably on
	// disk
	Barrier()

	// Close releases any resources used by the disk and makes it unusable.
	Close()
}

func checkBlock(op string, a uint64, b Block, size uint64) {
	if uint64(len(b)) != BlockSize {
		panic(op + ": buffer is not block-sized")
	}
	if a >= size {
		panic(op + ": out-of-bounds block")
	}
}
