package ezfs

import (
	"github.com/mit-pdos/ezos/addr"
	"github.com/mit-pdos/ezos/common"
	"github.com/mit-pdos/ezos/util"
)

// Inode is a handle on one on-disk inode. Handles are cheap; several may
// name the same inode.
type Inode struct {
	pos addr.Addr
	fs  *FileSystem
}

func (ip *Inode) Pos() addr.Addr {
	return ip.pos
}

func (ip *Inode) disk() *DiskInode {
	return ip.fs.readDiskInode(ip.pos)
}

func (ip *Inode) findInum(name string, dir *DiskInode) (common.Inum, bool) {
	if !dir.IsDir() {
		panic("find: not a directory")
	}
	n := uint64(dir.Size) / common.DirentSize
	raw := make([]byte, common.DirentSize)
	for i := uint64(0); i < n; i++ {
		if dir.ReadAt(i*common.DirentSize, raw, ip.fs.io) != common.DirentSize {
			panic("find: short dirent")
		}
		de := DecodeDirEntry(raw)
		if de.Name == name {
			return de.Inum, true
		}
	}
	return 0, false
}

// Find looks name up in this directory.
func (ip *Inode) Find(name string) *Inode {
	ip.fs.lock.Lock()
	defer ip.fs.lock.Unlock()
	inum, ok := ip.findInum(name, ip.disk())
	if !ok {
		return nil
	}
	return &Inode{pos: ip.fs.InodePos(inum), fs: ip.fs}
}

// Ls lists the names in this directory, in creation order.
func (ip *Inode) Ls() []string {
	ip.fs.lock.Lock()
	defer ip.fs.lock.Unlock()
	dir := ip.disk()
	n := uint64(dir.Size) / common.DirentSize
	names := make([]string, 0, n)
	raw := make([]byte, common.DirentSize)
	for i := uint64(0); i < n; i++ {
		dir.ReadAt(i*common.DirentSize, raw, ip.fs.io)
		names = append(names, DecodeDirEntry(raw).Name)
	}
	return names
}

// increaseSize grows ino to newSize. If the volume cannot supply every
// block it needs, nothing changes.
func (ip *Inode) increaseSize(newSize uint32, ino *DiskInode) error {
	if newSize < ino.Size {
		return nil
	}
	if DataBlocks(newSize) > common.Indirect2Bound {
		return ErrTooLarge
	}
	need := ino.BlocksNeeded(newSize)
	ids := make([]uint32, 0, need)
	for i := uint64(0); i < need; i++ {
		id, ok := ip.fs.allocData()
		if !ok {
			for _, id := range ids {
				ip.fs.deallocData(id)
			}
			return ErrNoSpace
		}
		ids = append(ids, id)
	}
	ino.IncreaseSize(newSize, ids, ip.fs.io)
	return nil
}

// Create makes an empty file called name in this directory.
func (ip *Inode) Create(name string) (*Inode, error) {
	if uint64(len(name)) > common.NameLimit {
		return nil, ErrNameTooLong
	}
	ip.fs.lock.Lock()
	defer ip.fs.lock.Unlock()
	dir := ip.disk()
	if !dir.IsDir() {
		return nil, ErrNotDir
	}
	if _, ok := ip.findInum(name, dir); ok {
		return nil, ErrExists
	}
	inum, ok := ip.fs.allocInode()
	if !ok {
		return nil, ErrNoSpace
	}
	n := uint64(dir.Size) / common.DirentSize
	if err := ip.increaseSize(uint32((n+1)*common.DirentSize), dir); err != nil {
		ip.fs.freeInode(inum)
		return nil, err
	}
	pos := ip.fs.InodePos(inum)
	ip.fs.writeDiskInode(pos, MkDiskInode(TypeFile))
	raw := make([]byte, common.DirentSize)
	de := &DirEntry{Name: name, Inum: inum}
	de.Encode(raw)
	dir.WriteAt(n*common.DirentSize, raw, ip.fs.io)
	ip.fs.writeDiskInode(ip.pos, dir)
	ip.fs.Sync()
	util.DPrintf(5, "ezfs: create %q -> inode %d\n", name, inum)
	return &Inode{pos: pos, fs: ip.fs}, nil
}

// Clear truncates the file to zero bytes and frees its blocks.
func (ip *Inode) Clear() {
	ip.fs.lock.Lock()
	defer ip.fs.lock.Unlock()
	ino := ip.disk()
	size := ino.Size
	freed := ino.ClearSize(ip.fs.io)
	if uint64(len(freed)) != TotalBlocks(size) {
		panic("clear: freed block count mismatch")
	}
	for _, id := range freed {
		ip.fs.deallocData(id)
	}
	ip.fs.writeDiskInode(ip.pos, ino)
	ip.fs.Sync()
}

// ReadAt reads from off into b and returns the count read; short at EOF.
func (ip *Inode) ReadAt(off uint64, b []byte) uint64 {
	ip.fs.lock.Lock()
	defer ip.fs.lock.Unlock()
	return ip.disk().ReadAt(off, b, ip.fs.io)
}

// WriteAt writes b at off, growing the file as needed.
func (ip *Inode) WriteAt(off uint64, b []byte) (uint64, error) {
	end := off + uint64(len(b))
	if end < off || end > MaxFileSize {
		return 0, ErrTooLarge
	}
	ip.fs.lock.Lock()
	defer ip.fs.lock.Unlock()
	ino := ip.disk()
	if err := ip.increaseSize(uint32(end), ino); err != nil {
		return 0, err
	}
	n := ino.WriteAt(off, b, ip.fs.io)
	ip.fs.writeDiskInode(ip.pos, ino)
	ip.fs.Sync()
	return n, nil
}

// ReadAll returns the whole file.
func (ip *Inode) ReadAll() []byte {
	size := ip.Size()
	data := make([]byte, size)
	n := ip.ReadAt(0, data)
	return data[:n]
}

func (ip *Inode) Size() uint64 {
	ip.fs.lock.Lock()
	defer ip.fs.lock.Unlock()
	return uint64(ip.disk().Size)
}

func (ip *Inode) IsDir() bool {
	ip.fs.lock.Lock()
	defer ip.fs.lock.Unlock()
	return ip.disk().IsDir()
}
