package disk

import (
	"sync"

	gdisk "github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/ezos/util"
)

const sectorsPerBlock = gdisk.BlockSize / BlockSize

var _ Disk = (*sectorDisk)(nil)

// sectorDisk presents a goose disk of 4KB blocks as a disk of 512-byte
// sectors, eight per backing block.
type sectorDisk struct {
	l *sync.Mutex
	d gdisk.Disk
}

func NewSectorDisk(d gdisk.Disk) Disk {
	return &sectorDisk{l: new(sync.Mutex), d: d}
}

// NewSectorMemDisk is an in-memory sector disk of at least numBlocks
// blocks.
func NewSectorMemDisk(numBlocks uint64) Disk {
	return NewSectorDisk(gdisk.NewMemDisk(util.RoundUp(numBlocks, sectorsPerBlock)))
}

func (d *sectorDisk) ReadBlock(a uint64, buf Block) {
	d.l.Lock()
	defer d.l.Unlock()
	checkBlock("read", a, buf, d.d.Size()*sectorsPerBlock)
	blk := d.d.Read(a / sectorsPerBlock)
	off := (a % sectorsPerBlock) * BlockSize
	copy(buf, blk[off:off+BlockSize])
}

func (d *sectorDisk) WriteBlock(a uint64, v Block) {
	d.l.Lock()
	defer d.l.Unlock()
	checkBlock("write", a, v, d.d.Size()*sectorsPerBlock)
	blk := d.d.Read(a / sectorsPerBlock)
	off := (a % sectorsPerBlock) * BlockSize
	copy(blk[off:off+BlockSize], v)
	d.d.Write(a/sectorsPerBlock, blk)
}

func (d *sectorDisk) Size() uint64 {
	return d.d.Size() * sectorsPerBlock
}

func (d *sectorDisk) Barrier() {
	d.d.Barrier()
}

func (d *sectorDisk) Close() {
	d.d.Close()
}
