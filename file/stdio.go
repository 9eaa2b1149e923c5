package file

import (
	"io"

	"github.com/mit-pdos/ezos/mm"
)

// Console is the serial line behind stdin and stdout. ReadByte returns
// io.EOF when no input is left.
type Console interface {
	io.ByteReader
	io.Writer
}

type Stdin struct {
	con Console
}

type Stdout struct {
	con Console
}

func NewStdin(c Console) *Stdin   { return &Stdin{con: c} }
func NewStdout(c Console) *Stdout { return &Stdout{con: c} }

func (s *Stdin) Readable() bool { return true }
func (s *Stdin) Writable() bool { return false }
func (s *Stdin) Seekable() bool { return false }

func (s *Stdin) Read(buf *mm.UserBuffer) (uint64, error) {
	var n uint64
	for _, b := range buf.Buffers {
		for i := range b {
			c, err := s.con.ReadByte()
			if err != nil {
				return n, nil
			}
			b[i] = c
			n++
		}
	}
	return n, nil
}

func (s *Stdin) Write(buf *mm.UserBuffer) (uint64, error) {
	return 0, ErrNotWritable
}

func (s *Stdin) Seek(off int64, whence int) (uint64, error) {
	return 0, ErrNotSeekable
}

func (s *Stdout) Readable() bool { return false }
func (s *Stdout) Writable() bool { return true }
func (s *Stdout) Seekable() bool { return false }

func (s *Stdout) Read(buf *mm.UserBuffer) (uint64, error) {
	return 0, ErrNotReadable
}

func (s *Stdout) Write(buf *mm.UserBuffer) (uint64, error) {
	var n uint64
	for _, b := range buf.Buffers {
		m, err := s.con.Write(b)
		n += uint64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (s *Stdout) Seek(off int64, whence int) (uint64, error) {
	return 0, ErrNotSeekable
}
