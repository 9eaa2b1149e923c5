package common

const (
	BlockSize uint64 = 512
	BlockBits uint64 = BlockSize * 8

	Magic uint32 = 0x53465A45

	InodeDirectCount   uint64 = 28
	InodeIndirectCount uint64 = BlockSize / 4
	InodeSize          uint64 = 128
	InodesPerBlock     uint64 = BlockSize / InodeSize

	DirentSize uint64 = 32
	NameLimit  uint64 = 27

	DirectBound    = InodeDirectCount
	Indirect1Bound = DirectBound + InodeIndirectCount
	Indirect2Bound = Indirect1Bound + InodeIndirectCount*InodeIndirectCount
)

// Inum names an inode; the root directory is inode 0.
type Inum = uint32

// Bnum is a block id on the device.
type Bnum = uint32

const ROOTINUM Inum = 0
