package file

import (
	"fmt"

	"github.com/mit-pdos/ezos/ezfs"
	"github.com/mit-pdos/ezos/mm"
	"github.com/mit-pdos/ezos/util"
)

type OpenFlag uint32

const (
	RDONLY OpenFlag = 0
	WRONLY OpenFlag = 1 << 0
	RDWR   OpenFlag = 1 << 1
	CREATE OpenFlag = 1 << 9
	TRUNC  OpenFlag = 1 << 10
)

// ReadWrite maps the access mode bits to (readable, writable).
func (f OpenFlag) ReadWrite() (bool, bool) {
	if f == 0 {
		return true, false
	}
	if f&WRONLY != 0 {
		return false, true
	}
	return true, true
}

// OSInode is an open regular file with its own offset.
type OSInode struct {
	readable bool
	writable bool
	inode    *ezfs.Inode
	offset   uint64
}

func NewOSInode(readable, writable bool, ino *ezfs.Inode) *OSInode {
	return &OSInode{readable: readable, writable: writable, inode: ino}
}

// Open looks name up in root. CREATE makes the file, or empties it if it
// exists; TRUNC empties an existing file.
func Open(root *ezfs.Inode, name string, flags OpenFlag) (*OSInode, error) {
	r, w := flags.ReadWrite()
	ino := root.Find(name)
	if flags&CREATE != 0 {
		if ino != nil {
			ino.Clear()
		} else {
			var err error
			ino, err = root.Create(name)
			if err != nil {
				return nil, fmt.Errorf("open %q: %w", name, err)
			}
		}
	} else {
		if ino == nil {
			return nil, fmt.Errorf("open %q: %w", name, ErrNotFound)
		}
		if flags&TRUNC != 0 {
			ino.Clear()
		}
	}
	util.DPrintf(3, "open %q flags %#x -> r=%v w=%v\n", name, uint32(flags), r, w)
	return NewOSInode(r, w, ino), nil
}

func (f *OSInode) Readable() bool { return f.readable }
func (f *OSInode) Writable() bool { return f.writable }
func (f *OSInode) Seekable() bool { return true }

func (f *OSInode) Offset() uint64 {
	return f.offset
}

func (f *OSInode) Read(buf *mm.UserBuffer) (uint64, error) {
	if !f.readable {
		return 0, ErrNotReadable
	}
	var total uint64
	for _, b := range buf.Buffers {
		n := f.inode.ReadAt(f.offset, b)
		if n == 0 {
			break
		}
		f.offset += n
		total += n
	}
	return total, nil
}

func (f *OSInode) Write(buf *mm.UserBuffer) (uint64, error) {
	if !f.writable {
		return 0, ErrNotWritable
	}
	if util.SumOverflows(f.offset, buf.Len()) || f.offset+buf.Len() > ezfs.MaxFileSize {
		return 0, ezfs.ErrTooLarge
	}
	var total uint64
	for _, b := range buf.Buffers {
		n, err := f.inode.WriteAt(f.offset, b)
		if err != nil {
			if total == 0 {
				return 0, err
			}
			break
		}
		if n != uint64(len(b)) {
			panic("OSInode.Write: short write")
		}
		f.offset += n
		total += n
	}
	return total, nil
}

func (f *OSInode) Seek(off int64, whence int) (uint64, error) {
	n, err := clampSeek(f.offset, f.inode.Size(), off, whence)
	if err != nil {
		return 0, err
	}
	f.offset = n
	return n, nil
}

// ReadAll reads from the current offset to the end of the file.
func (f *OSInode) ReadAll() []byte {
	var out []byte
	buf := make([]byte, 512)
	for {
		n := f.inode.ReadAt(f.offset, buf)
		if n == 0 {
			return out
		}
		f.offset += n
		out = append(out, buf[:n]...)
	}
}

func (f *OSInode) Fork() File {
	c := *f
	return &c
}
