package buf

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mit-pdos/ezos/disk"
)

func TestU32Access(t *testing.T) {
	assert := assert.New(t)
	b := MkBuf(0, make([]byte, disk.BlockSize))
	b.U32Put(0, 0x11223344)
	b.U32Put(4, 0xaabbccdd)
	assert.True(b.IsDirty())
	assert.Equal(uint32(0x11223344), b.U32Get(0))
	assert.Equal(uint32(0xaabbccdd), b.U32Get(4))
	assert.Equal([]byte{0x44, 0x33, 0x22, 0x11, 0xdd, 0xcc, 0xbb, 0xaa}, b.Data[:8])

	b.U32Put(508, 7)
	assert.Equal(uint32(7), b.U32Get(508))
	assert.Equal(uint32(0), b.U32Get(504))
}

func TestU32s(t *testing.T) {
	assert := assert.New(t)
	data := make([]byte, 16)
	U32sPut(data, []uint32{1, 2, 3, 0xffffffff})
	assert.Equal([]byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}, data)
	assert.Equal([]uint32{1, 2, 3, 0xffffffff}, U32sGet(data, 4))
}

func TestSyncOnlyWhenDirty(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(4)
	b := MkBufLoad(d, 2)
	assert.False(b.IsDirty())
	copy(b.Modify(10, 3), []byte("abc"))
	b.Sync(d)
	assert.False(b.IsDirty())

	blk := make([]byte, disk.BlockSize)
	d.ReadBlock(2, blk)
	assert.Equal([]byte("abc"), blk[10:13])
	assert.Panics(func() { b.View(510, 4) })
}
