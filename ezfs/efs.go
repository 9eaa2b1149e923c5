// ezfs is a small block filesystem: a superblock, inode and data bitmaps,
// an inode area, and a data area, with one flat root directory.
package ezfs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mit-pdos/ezos/addr"
	"github.com/mit-pdos/ezos/alloc"
	"github.com/mit-pdos/ezos/bcache"
	"github.com/mit-pdos/ezos/common"
	"github.com/mit-pdos/ezos/disk"
	"github.com/mit-pdos/ezos/util"
)

var (
	ErrBadMagic    = errors.New("ezfs: not a valid ezfs device")
	ErrExists      = errors.New("ezfs: file exists")
	ErrNameTooLong = errors.New("ezfs: name too long")
	ErrNotDir      = errors.New("ezfs: not a directory")
	ErrNoSpace     = errors.New("ezfs: no space left on device")
	ErrTooLarge    = errors.New("ezfs: file too large")
)

// MaxFileSize is the largest file the inode's index blocks can map.
const MaxFileSize = common.Indirect2Bound * common.BlockSize

// FileSystem is a mounted volume. lock serializes every operation on it,
// including the bitmaps.
type FileSystem struct {
	lock        sync.Locker
	io          BlockIO
	sb          SuperBlock
	inodeBitmap *alloc.Alloc
	dataBitmap  *alloc.Alloc
	inodeStart  common.Bnum
	dataStart   common.Bnum
}

func mkFileSystem(dev disk.Device, cache *bcache.Cache, lock sync.Locker, sb *SuperBlock) *FileSystem {
	if lock == nil {
		lock = new(sync.Mutex)
	}
	inodeTotal := sb.InodeBitmapBlocks + sb.InodeAreaBlocks
	return &FileSystem{
		lock:        lock,
		io:          BlockIO{Cache: cache, Dev: dev},
		sb:          *sb,
		inodeBitmap: alloc.MkAlloc(1, uint64(sb.InodeBitmapBlocks)),
		dataBitmap:  alloc.MkAlloc(1+inodeTotal, uint64(sb.DataBitmapBlocks)),
		inodeStart:  1 + sb.InodeBitmapBlocks,
		dataStart:   1 + inodeTotal + sb.DataBitmapBlocks,
	}
}

// MinBlocks is the smallest volume Create accepts with inodeBitmapBlocks
// blocks of inode bitmap.
func MinBlocks(inodeBitmapBlocks uint32) uint32 {
	inodeNum := uint64(inodeBitmapBlocks) * common.BlockBits
	return inodeBitmapBlocks + uint32(util.RoundUp(inodeNum*common.InodeSize, common.BlockSize)) + 3
}

// Create formats dev with totalBlocks blocks and inodeBitmapBlocks blocks of
// inode bitmap, and returns the mounted result.
func Create(dev disk.Device, cache *bcache.Cache, lock sync.Locker, totalBlocks uint32, inodeBitmapBlocks uint32) *FileSystem {
	inodeNum := uint64(inodeBitmapBlocks) * common.BlockBits
	inodeBlocks := uint32(util.RoundUp(inodeNum*common.InodeSize, common.BlockSize))
	inodeTotal := inodeBitmapBlocks + inodeBlocks
	if totalBlocks < MinBlocks(inodeBitmapBlocks) {
		panic("Create: device too small")
	}
	dataTotal := totalBlocks - inodeTotal - 1
	dataBitmapBlocks := (dataTotal + 4096) / 4097
	sb := &SuperBlock{
		Magic:             common.Magic,
		TotalBlocks:       totalBlocks,
		InodeBitmapBlocks: inodeBitmapBlocks,
		InodeAreaBlocks:   inodeBlocks,
		DataBitmapBlocks:  dataBitmapBlocks,
		DataAreaBlocks:    dataTotal - dataBitmapBlocks,
	}
	fs := mkFileSystem(dev, cache, lock, sb)

	cache.Modify(0, dev, 0, common.BlockSize, func(b []byte) {
		for i := range b {
			b[i] = 0
		}
		sb.Encode(b)
	})
	for i := uint32(1); i < totalBlocks; i++ {
		cache.Modify(uint64(i), dev, 0, common.BlockSize, func(b []byte) {
			for i := range b {
				b[i] = 0
			}
		})
	}

	root, ok := fs.allocInode()
	if !ok || root != common.ROOTINUM {
		panic("Create: root is not inode 0")
	}
	fs.writeDiskInode(fs.InodePos(root), MkDiskInode(TypeDir))
	cache.SyncAll()
	util.DPrintf(1, "ezfs: formatted %d blocks (inodes %d, data %d)\n",
		totalBlocks, inodeNum, sb.DataAreaBlocks)
	return fs
}

// Open mounts an existing volume, checking its superblock.
func Open(dev disk.Device, cache *bcache.Cache, lock sync.Locker) (*FileSystem, error) {
	var sb *SuperBlock
	cache.Read(0, dev, 0, superBlockSize, func(b []byte) {
		sb = DecodeSuperBlock(b)
	})
	if !sb.Valid() {
		return nil, fmt.Errorf("magic %#x: %w", sb.Magic, ErrBadMagic)
	}
	return mkFileSystem(dev, cache, lock, sb), nil
}

func (fs *FileSystem) SuperBlock() SuperBlock {
	return fs.sb
}

// InodePos locates inode inum on the device.
func (fs *FileSystem) InodePos(inum common.Inum) addr.Addr {
	return addr.MkInodeAddr(fs.inodeStart, inum)
}

func (fs *FileSystem) DataBlockPos(id uint32) common.Bnum {
	return fs.dataStart + id
}

func (fs *FileSystem) allocInode() (common.Inum, bool) {
	n, ok := fs.inodeBitmap.AllocNum(fs.io.Cache, fs.io.Dev)
	if !ok {
		return 0, false
	}
	if n >= uint64(fs.sb.InodeAreaBlocks)*common.InodesPerBlock {
		fs.inodeBitmap.FreeNum(fs.io.Cache, fs.io.Dev, n)
		return 0, false
	}
	return common.Inum(n), true
}

func (fs *FileSystem) freeInode(inum common.Inum) {
	fs.inodeBitmap.FreeNum(fs.io.Cache, fs.io.Dev, uint64(inum))
}

func (fs *FileSystem) allocData() (uint32, bool) {
	n, ok := fs.dataBitmap.AllocNum(fs.io.Cache, fs.io.Dev)
	if !ok {
		return 0, false
	}
	if n >= uint64(fs.sb.DataAreaBlocks) {
		fs.dataBitmap.FreeNum(fs.io.Cache, fs.io.Dev, n)
		return 0, false
	}
	return fs.dataStart + uint32(n), true
}

func (fs *FileSystem) deallocData(id uint32) {
	fs.io.Cache.Modify(uint64(id), fs.io.Dev, 0, common.BlockSize, func(b []byte) {
		for i := range b {
			b[i] = 0
		}
	})
	fs.dataBitmap.FreeNum(fs.io.Cache, fs.io.Dev, uint64(id-fs.dataStart))
}

func (fs *FileSystem) readDiskInode(pos addr.Addr) *DiskInode {
	var ino *DiskInode
	fs.io.Cache.Read(uint64(pos.Blkno), fs.io.Dev, pos.Off, common.InodeSize, func(b []byte) {
		ino = DecodeDiskInode(b)
	})
	return ino
}

func (fs *FileSystem) writeDiskInode(pos addr.Addr, ino *DiskInode) {
	fs.io.Cache.Modify(uint64(pos.Blkno), fs.io.Dev, pos.Off, common.InodeSize, func(b []byte) {
		ino.Encode(b)
	})
}

// Root returns the root directory.
func (fs *FileSystem) Root() *Inode {
	return &Inode{pos: fs.InodePos(common.ROOTINUM), fs: fs}
}

// Sync flushes the block cache.
func (fs *FileSystem) Sync() {
	fs.io.Cache.SyncAll()
}

type Stat struct {
	TotalBlocks uint32
	InodesUsed  uint64
	InodesMax   uint64
	DataUsed    uint64
	DataMax     uint64
}

func (fs *FileSystem) Stat() Stat {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return Stat{
		TotalBlocks: fs.sb.TotalBlocks,
		InodesUsed:  fs.inodeBitmap.NumUsed(fs.io.Cache, fs.io.Dev),
		InodesMax:   uint64(fs.sb.InodeAreaBlocks) * common.InodesPerBlock,
		DataUsed:    fs.dataBitmap.NumUsed(fs.io.Cache, fs.io.Dev),
		DataMax:     uint64(fs.sb.DataAreaBlocks),
	}
}
