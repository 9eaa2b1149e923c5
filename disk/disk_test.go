package disk

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	gdisk "github.com/tchajed/goose/machine/disk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkBlock(b byte) Block {
	blk := make(Block, BlockSize)
	for i := range blk {
		blk[i] = b
	}
	return blk
}

func checkReadWrite(t *testing.T, d Disk) {
	assert := assert.New(t)
	d.WriteBlock(0, mkBlock(1))
	d.WriteBlock(3, mkBlock(3))
	buf := make(Block, BlockSize)
	d.ReadBlock(3, buf)
	assert.Equal(mkBlock(3), buf)
	d.ReadBlock(0, buf)
	assert.Equal(mkBlock(1), buf)
	d.ReadBlock(1, buf)
	assert.Equal(mkBlock(0), buf)
	assert.Panics(func() { d.ReadBlock(d.Size(), buf) }, "out of bounds")
	assert.Panics(func() { d.WriteBlock(0, make(Block, 10)) }, "short buffer")
}

func TestMemDisk(t *testing.T) {
	d := NewMemDisk(16)
	assert.Equal(t, uint64(16), d.Size())
	checkReadWrite(t, d)
}

func TestSectorDisk(t *testing.T) {
	d := NewSectorDisk(gdisk.NewMemDisk(2))
	assert.Equal(t, uint64(16), d.Size())
	checkReadWrite(t, d)

	// neighbouring sectors of one backing block are independent
	buf := make(Block, BlockSize)
	d.WriteBlock(7, mkBlock(7))
	d.WriteBlock(6, mkBlock(6))
	d.ReadBlock(7, buf)
	assert.Equal(t, mkBlock(7), buf)
}

func TestFileDisk(t *testing.T) {
	dir, err := ioutil.TempDir("", "ezos-disk")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "fs.img")

	d, err := NewFileDisk(path, 16)
	require.NoError(t, err)
	checkReadWrite(t, d)
	d.Barrier()
	d.Close()

	d, err = OpenFileDisk(path)
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, uint64(16), d.Size())
	buf := make(Block, BlockSize)
	d.ReadBlock(3, buf)
	assert.Equal(t, mkBlock(3), buf, "persisted across reopen")
}

func TestQueuedDisk(t *testing.T) {
	assert := assert.New(t)
	mem := NewMemDisk(8)
	q := NewQueuedDisk(mem, 2)
	irqs := 0
	q.SetNotify(func() { irqs++ })

	t0, err := q.WriteBlockNB(2, mkBlock(2))
	assert.NoError(err)
	buf := make(Block, BlockSize)
	t1, err := q.ReadBlockNB(2, buf)
	assert.NoError(err)
	assert.NotEqual(t0, t1)
	_, err = q.ReadBlockNB(1, make(Block, BlockSize))
	assert.Equal(ErrQueueFull, err)
	assert.Equal(2, irqs)

	tok, ok := q.PeekUsed()
	assert.True(ok)
	assert.Equal(t0, tok)
	q.PopUsed(t0)
	tok, _ = q.PeekUsed()
	assert.Equal(t1, tok)
	q.PopUsed(t1)
	_, ok = q.PeekUsed()
	assert.False(ok)
	assert.Equal(mkBlock(2), buf)
	assert.Panics(func() { q.PopUsed(t1) })

	q.ReadBlock(2, buf)
	assert.Equal(mkBlock(2), buf)
}

func TestSectorMemDisk(t *testing.T) {
	d := NewSectorMemDisk(9)
	assert.Equal(t, uint64(16), d.Size())
	checkReadWrite(t, d)
}
