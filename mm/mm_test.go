package mm

import (
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mit-pdos/ezos/elfimg"
	"github.com/mit-pdos/ezos/riscv"
)

const testMemory = 4 << 20

func TestIndexes(t *testing.T) {
	vpn := VirtAddr(Trampoline).Floor()
	assert.Equal(t, [3]uint64{255, 511, 511}, vpn.Indexes())
	assert.Equal(t, [3]uint64{0, 0, 16}, VirtAddr(0x10000).Floor().Indexes())
}

func TestPTE(t *testing.T) {
	assert := assert.New(t)
	e := NewPTE(0x80123, PTE_V|PTE_R|PTE_U)
	assert.Equal(PhysPageNum(0x80123), e.PPN())
	assert.True(e.Valid())
	assert.True(e.Has(PTE_R | PTE_U))
	assert.False(e.Has(PTE_W))
}

type MemSuite struct {
	suite.Suite
	mem *Memory
}

func (suite *MemSuite) SetupTest() {
	suite.mem = NewMemory(testMemory)
}

func TestMemSuite(t *testing.T) {
	suite.Run(t, new(MemSuite))
}

func (suite *MemSuite) TestFrames() {
	free := suite.mem.FreeFrames()
	f, ok := suite.mem.Alloc()
	suite.Require().True(ok)
	f.Bytes()[0] = 7
	suite.Equal(free-1, suite.mem.FreeFrames())
	f.Free()
	f.Free()
	suite.Equal(free, suite.mem.FreeFrames())
	g, _ := suite.mem.Alloc()
	suite.Equal(f.PPN, g.PPN, "recycled first")
	suite.Equal(byte(0), g.Bytes()[0], "zeroed on alloc")
	suite.Panics(func() { suite.mem.Free(g.PPN + 100) })
	g.Free()
	suite.Panics(func() { suite.mem.Free(g.PPN) }, "double free")
}

func (suite *MemSuite) TestExhaust() {
	var fs []*FrameTracker
	for {
		f, ok := suite.mem.Alloc()
		if !ok {
			break
		}
		fs = append(fs, f)
	}
	suite.Equal(uint64(0), suite.mem.FreeFrames())
	for _, f := range fs {
		f.Free()
	}
	suite.Equal(uint64(len(fs)), suite.mem.FreeFrames())
}

func (suite *MemSuite) TestMapUnmap() {
	pt := NewPageTable(suite.mem)
	f, _ := suite.mem.Alloc()
	vpn := VirtAddr(0x12345000).Floor()
	pt.Map(vpn, f.PPN, PTE_R|PTE_W)
	e, ok := pt.Translate(vpn)
	suite.True(ok)
	suite.Equal(f.PPN, e.PPN())
	pa, ok := pt.TranslateVA(0x12345abc)
	suite.True(ok)
	suite.Equal(f.PPN.Addr()+0xabc, pa)
	_, ok = pt.Lookup(0x12345abc, PTE_U)
	suite.False(ok)
	suite.Panics(func() { pt.Map(vpn, f.PPN, PTE_R) })
	pt.Unmap(vpn)
	_, ok = pt.Translate(vpn)
	suite.False(ok)
	suite.Panics(func() { pt.Unmap(vpn) })
	suite.Panics(func() { pt.Unmap(vpn + 1<<20) })

	view := FromToken(suite.mem, pt.Token())
	suite.Equal(pt.Root(), view.Root())
	suite.Equal(uint64(8)<<60, pt.Token()&(0xf<<60))
	pt.Release()
	f.Free()
}

func testImage() []byte {
	text := make([]byte, 100)
	copy(text, "code")
	return elfimg.Build(0x10000, []elfimg.Segment{
		{Vaddr: 0x10000, Flags: elf.PF_R | elf.PF_X, Data: text},
		{Vaddr: 0x11008, Flags: elf.PF_R | elf.PF_W, Data: []byte("data"), Memsz: 0x1400},
	})
}

func (suite *MemSuite) TestFromELF() {
	ms, ustack, entry, err := FromELF(suite.mem, testImage())
	suite.Require().NoError(err)
	suite.Equal(uint64(0x10000), entry)
	suite.Equal(uint64(0x14000), ustack, "guard page above 0x13000")
	suite.Equal(2, ms.Areas())

	text, ok := ReadBytes(suite.mem, ms.Token(), 0x10000, 4)
	suite.True(ok)
	suite.Equal([]byte("code"), text)
	data, ok := ReadBytes(suite.mem, ms.Token(), 0x11008, 4)
	suite.True(ok)
	suite.Equal([]byte("data"), data)

	suite.False(WriteBytes(suite.mem, ms.Token(), 0x10000, []byte{1}), "text is read-only")
	suite.True(WriteU64(suite.mem, ms.Token(), 0x12ff8, 42))
	v, ok := ReadU64(suite.mem, ms.Token(), 0x12ff8)
	suite.True(ok)
	suite.Equal(uint64(42), v)
	_, ok = ReadU64(suite.mem, ms.Token(), 0x12ffc)
	suite.False(ok, "straddles unmapped page")

	e, ok := ms.Translate(VirtAddr(Trampoline).Floor())
	suite.True(ok)
	suite.Equal(suite.mem.Layout().Trampoline(), e.PPN())
	suite.False(e.Has(PTE_U))
}

func (suite *MemSuite) TestBadELF() {
	_, _, _, err := FromELF(suite.mem, []byte("nope"))
	suite.Error(err)
	img := testImage()
	img[18] = byte(elf.EM_X86_64)
	_, _, _, err = FromELF(suite.mem, img)
	suite.Error(err)
}

func (suite *MemSuite) TestCloneIsDeep() {
	ms, _, _, err := FromELF(suite.mem, testImage())
	suite.Require().NoError(err)
	ms.InsertFramedArea(0x20000, 0x22000, PermR|PermW|PermU)
	suite.True(WriteBytes(suite.mem, ms.Token(), 0x21ff0, []byte("straddle page..!")))

	c := ms.Clone()
	suite.Equal(ms.Areas(), c.Areas())
	b, ok := ReadBytes(suite.mem, c.Token(), 0x21ff0, 16)
	suite.True(ok)
	suite.Equal([]byte("straddle page..!"), b)

	suite.True(WriteBytes(suite.mem, c.Token(), 0x21ff0, []byte("X")))
	b, _ = ReadBytes(suite.mem, ms.Token(), 0x21ff0, 1)
	suite.Equal([]byte("s"), b, "parent unaffected")

	free := suite.mem.FreeFrames()
	c.Release()
	suite.True(suite.mem.FreeFrames() > free)
}

func (suite *MemSuite) TestRemoveArea() {
	ms := NewBare(suite.mem)
	free := suite.mem.FreeFrames()
	ms.InsertFramedArea(0x40000, 0x43000, PermR|PermU)
	suite.Panics(func() { ms.InsertFramedArea(0x42000, 0x44000, PermR) })
	suite.True(ms.RemoveAreaWithStartVPN(VirtAddr(0x40000).Floor()))
	suite.False(ms.RemoveAreaWithStartVPN(VirtAddr(0x40000).Floor()))
	_, ok := ms.Translate(VirtAddr(0x41000).Floor())
	suite.False(ok)
	// intermediate tables stay with the page table
	suite.Equal(free-2, suite.mem.FreeFrames())
}

func (suite *MemSuite) TestKernelSpace() {
	ks := NewKernel(suite.mem)
	h := riscv.NewHart()
	ks.Activate(h)
	suite.Equal(ks.Token(), h.Satp)
	l := suite.mem.Layout()
	pa, ok := ks.PageTable().TranslateVA(VirtAddr(l.Data[0]) + 8)
	suite.True(ok)
	suite.Equal(l.Data[0]+8, pa, "identity mapped")
	e, _ := ks.Translate(VirtAddr(l.Text[0]).Floor())
	suite.True(e.Has(PTE_R | PTE_X))
	suite.False(e.Has(PTE_W))
}

func (suite *MemSuite) TestTranslatedString() {
	ms := NewBare(suite.mem)
	ms.InsertFramedArea(0x1000, 0x3000, PermR|PermW|PermU)
	suite.True(WriteBytes(suite.mem, ms.Token(), 0x1ffd, []byte("hello\x00")))
	s, ok := TranslatedString(suite.mem, ms.Token(), 0x1ffd)
	suite.True(ok)
	suite.Equal("hello", s)
	_, ok = TranslatedString(suite.mem, ms.Token(), 0x5000)
	suite.False(ok)
	_, ok = TranslatedByteBuffer(suite.mem, ms.Token(), 0x2000, 1<<64-0x1000, false)
	suite.False(ok, "wrapping range")
}

func TestUserBuffer(t *testing.T) {
	ub := NewUserBuffer([][]byte{make([]byte, 2), make([]byte, 3)})
	require.Equal(t, uint64(5), ub.Len())
	assert.Equal(t, uint64(4), ub.Fill([]byte("abcd")))
	assert.Equal(t, []byte{'a', 'b', 'c', 'd', 0}, ub.Bytes())
}
