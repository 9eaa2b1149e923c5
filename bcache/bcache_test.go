package bcache

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mit-pdos/ezos/buf"
	"github.com/mit-pdos/ezos/disk"
)

type countingDisk struct {
	disk.Disk
	reads  int
	writes int
}

func (d *countingDisk) ReadBlock(a uint64, b disk.Block) {
	d.reads++
	d.Disk.ReadBlock(a, b)
}

func (d *countingDisk) WriteBlock(a uint64, b disk.Block) {
	d.writes++
	d.Disk.WriteBlock(a, b)
}

type CacheSuite struct {
	suite.Suite
	d *countingDisk
	c *Cache
}

func (suite *CacheSuite) SetupTest() {
	suite.d = &countingDisk{Disk: disk.NewMemDisk(64)}
	suite.c = MkCache(4, nil)
}

func TestCache(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (suite *CacheSuite) TestSingleCopy() {
	b1 := suite.c.Get(3, suite.d)
	b2 := suite.c.Get(3, suite.d)
	suite.Same(b1, b2)
	suite.Equal(1, suite.d.reads)
	suite.Equal(uint64(2), b1.Refs())
	suite.c.Put(b1)
	suite.c.Put(b2)
	suite.Equal(uint64(1), suite.c.Len())
}

func (suite *CacheSuite) TestModifyThenRead() {
	suite.c.Modify(5, suite.d, 8, 4, func(b []byte) {
		copy(b, []byte("ezfs"))
	})
	var got []byte
	suite.c.Read(5, suite.d, 8, 4, func(b []byte) {
		got = append([]byte{}, b...)
	})
	suite.Equal([]byte("ezfs"), got)
	suite.Equal(0, suite.d.writes, "write-back is lazy")
}

func (suite *CacheSuite) TestEvictWritesBackDirty() {
	suite.c.Modify(0, suite.d, 0, 1, func(b []byte) { b[0] = 42 })
	for id := uint64(1); id <= 4; id++ {
		suite.c.Read(id, suite.d, 0, 1, func([]byte) {})
	}
	suite.Equal(uint64(4), suite.c.Len())
	suite.Equal(1, suite.d.writes, "block 0 was evicted")

	blk := make([]byte, disk.BlockSize)
	suite.d.Disk.ReadBlock(0, blk)
	suite.Equal(byte(42), blk[0])
}

func (suite *CacheSuite) TestEvictSkipsHeld() {
	held := suite.c.Get(0, suite.d)
	for id := uint64(1); id <= 4; id++ {
		suite.c.Read(id, suite.d, 0, 1, func([]byte) {})
	}
	// block 1 went instead of the held block 0
	suite.Same(held, suite.c.Get(0, suite.d))
	suite.c.Put(held)
	suite.c.Put(held)
}

func (suite *CacheSuite) TestRunOut() {
	var held []*buf.Buf
	for id := uint64(0); id < 4; id++ {
		held = append(held, suite.c.Get(id, suite.d))
	}
	suite.PanicsWithValue("bcache: run out of block cache", func() {
		suite.c.Get(9, suite.d)
	})
	for _, b := range held {
		suite.c.Put(b)
	}
}

func (suite *CacheSuite) TestSyncAllIdempotent() {
	suite.c.Modify(1, suite.d, 0, 1, func(b []byte) { b[0] = 1 })
	suite.c.Modify(2, suite.d, 0, 1, func(b []byte) { b[0] = 2 })
	suite.c.SyncAll()
	suite.Equal(2, suite.d.writes)
	suite.c.SyncAll()
	suite.Equal(2, suite.d.writes, "nothing dirty the second time")
}
