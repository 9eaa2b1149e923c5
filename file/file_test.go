package file

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mit-pdos/ezos/bcache"
	"github.com/mit-pdos/ezos/disk"
	"github.com/mit-pdos/ezos/ezfs"
	"github.com/mit-pdos/ezos/ksync"
	"github.com/mit-pdos/ezos/mm"
)

type fakeThread struct {
	wake chan struct{}
	gone bool
}

// fakeSched runs goroutines one at a time off a FIFO ready queue.
type fakeSched struct {
	cur         *fakeThread
	ready       []*fakeThread
	done        chan struct{}
	interrupted bool
}

func newFakeSched() *fakeSched {
	return &fakeSched{done: make(chan struct{})}
}

func (s *fakeSched) Current() ksync.Waiter { return s.cur }

func (s *fakeSched) Block() {
	cur := s.cur
	s.done <- struct{}{}
	<-cur.wake
}

func (s *fakeSched) Yield() {
	s.ready = append(s.ready, s.cur)
	s.Block()
}

func (s *fakeSched) Wakeup(w ksync.Waiter) bool {
	t := w.(*fakeThread)
	if t.gone {
		return false
	}
	s.ready = append(s.ready, t)
	return true
}

func (s *fakeSched) Interrupted() bool { return s.interrupted }

func (s *fakeSched) spawn(body func()) *fakeThread {
	t := &fakeThread{wake: make(chan struct{})}
	go func() {
		<-t.wake
		body()
		s.done <- struct{}{}
	}()
	s.ready = append(s.ready, t)
	return t
}

func (s *fakeSched) run() {
	for len(s.ready) > 0 {
		t := s.ready[0]
		s.ready = s.ready[1:]
		s.cur = t
		t.wake <- struct{}{}
		<-s.done
		s.cur = nil
	}
}

func ubuf(b []byte) *mm.UserBuffer {
	return mm.NewUserBuffer([][]byte{b})
}

func TestOpenFlag(t *testing.T) {
	assert := assert.New(t)
	r, w := RDONLY.ReadWrite()
	assert.True(r)
	assert.False(w)
	r, w = (WRONLY | CREATE).ReadWrite()
	assert.False(r)
	assert.True(w)
	r, w = (RDWR | TRUNC).ReadWrite()
	assert.True(r)
	assert.True(w)
	r, w = CREATE.ReadWrite()
	assert.True(r, "any flag besides WRONLY is read-write")
	assert.True(w)
}

type InodeSuite struct {
	suite.Suite
	root *ezfs.Inode
}

func (suite *InodeSuite) SetupTest() {
	fs := ezfs.Create(disk.NewMemDisk(4096), bcache.MkCache(16, nil), nil, 4096, 1)
	suite.root = fs.Root()
}

func TestInodeSuite(t *testing.T) {
	suite.Run(t, new(InodeSuite))
}

func (suite *InodeSuite) TestOpenMissing() {
	_, err := Open(suite.root, "nope", RDONLY)
	suite.Error(err)
	suite.True(errors.Is(err, ErrNotFound))
}

func (suite *InodeSuite) TestWriteFarPastEnd() {
	f, err := Open(suite.root, "sparse", CREATE|RDWR)
	suite.Require().NoError(err)
	for _, off := range []int64{1 << 32, 9 << 20} {
		_, err = f.Seek(off, SeekSet)
		suite.Require().NoError(err)
		_, err = f.Write(ubuf([]byte("x")))
		suite.True(errors.Is(err, ezfs.ErrTooLarge), "offset %#x", off)
	}
	_, err = f.Seek(3<<20, SeekSet)
	suite.Require().NoError(err)
	_, err = f.Write(ubuf([]byte("x")))
	suite.True(errors.Is(err, ezfs.ErrNoSpace))
	suite.Equal(uint64(0), f.inode.Size())

	_, err = f.Seek(0, SeekSet)
	suite.Require().NoError(err)
	n, err := f.Write(ubuf([]byte("ok")))
	suite.NoError(err)
	suite.Equal(uint64(2), n)
}

func (suite *InodeSuite) TestCreateWriteRead() {
	f, err := Open(suite.root, "a", CREATE|WRONLY)
	suite.Require().NoError(err)
	n, err := f.Write(ubuf([]byte("hello world")))
	suite.NoError(err)
	suite.Equal(uint64(11), n)
	_, err = f.Read(ubuf(make([]byte, 4)))
	suite.Equal(ErrNotReadable, err)

	g, err := Open(suite.root, "a", RDONLY)
	suite.Require().NoError(err)
	b := make([]byte, 5)
	n, _ = g.Read(mm.NewUserBuffer([][]byte{b[:2], b[2:]}))
	suite.Equal(uint64(5), n)
	suite.Equal("hello", string(b))
	suite.Equal(" world", string(g.ReadAll()))

	off, err := g.Seek(-5, SeekEnd)
	suite.NoError(err)
	suite.Equal(uint64(6), off)
	_, err = g.Seek(-1, SeekSet)
	suite.Equal(ErrInvalid, err)
}

func (suite *InodeSuite) TestForkOffsetsIndependent() {
	f, _ := Open(suite.root, "a", CREATE|RDWR)
	f.Write(ubuf([]byte("abcdef")))
	f.Seek(0, SeekSet)
	c := Inherit(f).(*OSInode)
	b := make([]byte, 2)
	f.Read(ubuf(b))
	suite.Equal("ab", string(b))
	c.Read(ubuf(b))
	suite.Equal("ab", string(b))
	f.Read(ubuf(b))
	suite.Equal("cd", string(b))
	suite.Equal(uint64(2), c.Offset())
}

func (suite *InodeSuite) TestCreateTruncates() {
	f, _ := Open(suite.root, "a", CREATE|RDWR)
	f.Write(ubuf([]byte("abcdef")))
	f, _ = Open(suite.root, "a", CREATE|RDWR)
	suite.Empty(f.ReadAll())
	f.Write(ubuf([]byte("xy")))
	f, _ = Open(suite.root, "a", TRUNC|RDWR)
	suite.Empty(f.ReadAll())
}

func TestPipe(t *testing.T) {
	s := newFakeSched()
	r, w := MakePipe(s)
	msg := bytes.Repeat([]byte("0123456789"), 7)
	var got []byte
	s.spawn(func() {
		b := make([]byte, 100)
		n, err := r.Read(ubuf(b))
		assert.NoError(t, err)
		got = b[:n]
	})
	s.spawn(func() {
		n, err := w.Write(ubuf(msg))
		assert.NoError(t, err)
		assert.Equal(t, uint64(len(msg)), n)
		w.Release()
	})
	s.run()
	assert.Equal(t, msg, got, "reader stops at EOF after the writer closes")
	_, err := r.Write(ubuf([]byte("x")))
	assert.Equal(t, ErrNotWritable, err)
	_, err = w.Seek(0, SeekSet)
	assert.Equal(t, ErrNotSeekable, err)
}

func TestPipeWriterRefs(t *testing.T) {
	s := newFakeSched()
	r, w := MakePipe(s)
	Retain(w)
	w.Release()
	w.Write(ubuf([]byte("hi")))
	w.Release()
	b := make([]byte, 8)
	n, _ := r.Read(ubuf(b))
	assert.Equal(t, uint64(2), n)
	n, _ = r.Read(ubuf(b))
	assert.Equal(t, uint64(0), n)
}

func TestPipeStopsWaitingWhenInterrupted(t *testing.T) {
	assert := assert.New(t)
	s := newFakeSched()
	r, w := MakePipe(s)
	s.interrupted = true
	n, err := r.Read(ubuf(make([]byte, 4)))
	assert.NoError(err)
	assert.Equal(uint64(0), n, "empty pipe with a live writer")
	n, err = w.Write(ubuf(make([]byte, RingBufferSize+5)))
	assert.NoError(err)
	assert.Equal(uint64(RingBufferSize), n, "full pipe")
}

func u64buf(v uint64) *mm.UserBuffer {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	return ubuf(b)
}

func TestEventFdNonblock(t *testing.T) {
	assert := assert.New(t)
	s := newFakeSched()
	e := NewEventFd(s, 0, EFD_NONBLOCK)
	_, err := e.Read(ubuf(make([]byte, 8)))
	assert.Equal(ErrAgain, err)
	_, err = e.Write(ubuf(make([]byte, 4)))
	assert.Equal(ErrInvalid, err)
	e.Write(u64buf(3))
	e.Write(u64buf(4))
	b := make([]byte, 8)
	n, err := e.Read(ubuf(b))
	assert.NoError(err)
	assert.Equal(uint64(8), n)
	assert.Equal(u64buf(7).Bytes(), b)
	assert.Equal(uint64(0), e.Value())
	_, err = e.Write(u64buf(^uint64(0) - 1))
	assert.NoError(err)
	_, err = e.Write(u64buf(1))
	assert.Equal(ErrAgain, err, "would reach the maximum")
	assert.False(EventFdFlag(4).Valid())
}

func TestEventFdSemaphoreBlocks(t *testing.T) {
	s := newFakeSched()
	e := NewEventFd(s, 0, EFD_SEMAPHORE)
	var order []string
	s.spawn(func() {
		b := make([]byte, 8)
		e.Read(ubuf(b))
		order = append(order, "read")
		assert.Equal(t, byte(1), b[0])
	})
	s.spawn(func() {
		order = append(order, "write")
		e.Write(u64buf(2))
	})
	s.run()
	assert.Equal(t, []string{"write", "read"}, order)
	assert.Equal(t, uint64(1), e.Value())
}

func TestEventFdSkipsDeadReader(t *testing.T) {
	s := newFakeSched()
	e := NewEventFd(s, 0, 0)
	var order []string
	dead := s.spawn(func() {
		e.Read(ubuf(make([]byte, 8)))
		order = append(order, "dead reader")
	})
	s.spawn(func() {
		e.Read(ubuf(make([]byte, 8)))
		order = append(order, "read")
	})
	s.spawn(func() {
		dead.gone = true
		e.Write(u64buf(5))
	})
	s.run()
	assert.Equal(t, []string{"read"}, order)
	assert.Equal(t, uint64(0), e.Value())
}

type conBuf struct {
	in  *bytes.Reader
	out bytes.Buffer
}

func (c *conBuf) ReadByte() (byte, error)     { return c.in.ReadByte() }
func (c *conBuf) Write(p []byte) (int, error) { return c.out.Write(p) }

func TestStdio(t *testing.T) {
	con := &conBuf{in: bytes.NewReader([]byte("ab"))}
	in, out := NewStdin(con), NewStdout(con)
	b := make([]byte, 4)
	n, err := in.Read(ubuf(b))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
	n, _ = in.Read(ubuf(b))
	assert.Equal(t, uint64(0), n)
	out.Write(ubuf([]byte("hi")))
	assert.Equal(t, "hi", con.out.String())
	_, err = out.Read(ubuf(b))
	assert.Equal(t, ErrNotReadable, err)
	var _ io.ByteReader = con
}

type fakeGPU struct {
	fb      []byte
	flushes int
}

func (g *fakeGPU) Resolution() (uint32, uint32) { return 2, 2 }
func (g *fakeGPU) Framebuffer() []byte          { return g.fb }
func (g *fakeGPU) Flush()                       { g.flushes++ }

func TestFb(t *testing.T) {
	assert := assert.New(t)
	g := &fakeGPU{fb: make([]byte, 16)}
	f := NewFb(g)
	f.Write(ubuf(bytes.Repeat([]byte{9}, 10)))
	off, _ := f.Seek(0, SeekCur)
	assert.Equal(uint64(10), off)
	off, _ = f.Seek(-20, SeekCur)
	assert.Equal(uint64(0), off)
	f.Write(ubuf(bytes.Repeat([]byte{1}, 16)))
	assert.Equal(1, g.flushes)
	off, _ = f.Seek(0, SeekCur)
	assert.Equal(uint64(0), off, "wrapped after flush")
	f.Seek(100, SeekSet)
	assert.Equal(2, g.flushes)
	b := make([]byte, 3)
	n, _ := f.Read(ubuf(b))
	assert.Equal(uint64(3), n)
	assert.Equal([]byte{1, 1, 1}, b)
}
