package disk

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/ezos/util"
)

var _ Disk = (*fileDisk)(nil)

type fileDisk struct {
	fd        int
	numBlocks uint64
}

// NewFileDisk opens (creating if needed) an image file of numBlocks blocks.
func NewFileDisk(path string, numBlocks uint64) (Disk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if (stat.Mode&unix.S_IFREG) != 0 && uint64(stat.Size) != numBlocks*BlockSize {
		err = unix.Ftruncate(fd, int64(numBlocks*BlockSize))
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("resizing %s: %w", path, err)
		}
	}
	return &fileDisk{fd, numBlocks}, nil
}

// OpenFileDisk opens an existing image, sizing the disk from the file.
func OpenFileDisk(path string) (Disk, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &fileDisk{fd, uint64(stat.Size) / BlockSize}, nil
}

func (d *fileDisk) ReadBlock(a uint64, buf Block) {
	checkBlock("read", a, buf, d.numBlocks)
	_, err := unix.Pread(d.fd, buf, int64(a*BlockSize))
	if err != nil {
		panic("read failed: " + err.Error())
	}
	util.DPrintf(20, "read: %v\n", a)
}

func (d *fileDisk) WriteBlock(a uint64, v Block) {
	checkBlock("write", a, v, d.numBlocks)
	_, err := unix.Pwrite(d.fd, v, int64(a*BlockSize))
	if err != nil {
		panic("write failed: " + err.Error())
	}
	util.DPrintf(20, "write: %v\n", a)
}

func (d *fileDisk) Size() uint64 {
	return d.numBlocks
}

func (d *fileDisk) Barrier() {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; the correct replacement is fcntl F_FULLFSYNC.
	err := unix.Fsync(d.fd)
	if err != nil {
		panic("file sync failed: " + err.Error())
	}
}

func (d *fileDisk) Close() {
	err := unix.Close(d.fd)
	if err != nil {
		panic(err)
	}
}

var _ Disk = (*memDisk)(nil)

type memDisk struct {
	l      *sync.RWMutex
	blocks [][BlockSize]byte
}

func NewMemDisk(numBlocks uint64) Disk {
	blocks := make([][BlockSize]byte, numBlocks)
	return &memDisk{l: new(sync.RWMutex), blocks: blocks}
}

func (d *memDisk) ReadBlock(a uint64, buf Block) {
	d.l.RLock()
	defer d.l.RUnlock()
	checkBlock("read", a, buf, uint64(len(d.blocks)))
	copy(buf, d.blocks[a][:])
}

func (d *memDisk) WriteBlock(a uint64, v Block) {
	d.l.Lock()
	defer d.l.Unlock()
	checkBlock("write", a, v, uint64(len(d.blocks)))
	copy(d.blocks[a][:], v)
}

func (d *memDisk) Size() uint64 {
	// this never changes so we assume it's safe to run lock-free
	return uint64(len(d.blocks))
}

func (d *memDisk) Barrier() {}

func (d *memDisk) Close() {}
