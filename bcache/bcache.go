// bcache keeps a bounded set of disk blocks resident and writes them back
// lazily.
package bcache

import (
	"sync"

	"github.com/mit-pdos/ezos/buf"
	"github.com/mit-pdos/ezos/disk"
	"github.com/mit-pdos/ezos/util"
)

const DefaultCapacity uint64 = 16

type entry struct {
	b   *buf.Buf
	dev disk.Device
}

// Cache maps block ids to resident blocks. At most one resident copy exists
// per block id. Entries are kept in load order; when the cache is full the
// oldest entry nobody holds is written back and dropped.
type Cache struct {
	lock     sync.Locker
	capacity uint64
	entries  []entry
}

// MkCache makes a cache of capacity blocks. lock guards the cache's own
// bookkeeping; callers running under a scheduler supply a sleeping lock.
func MkCache(capacity uint64, lock sync.Locker) *Cache {
	if capacity == 0 {
		panic("MkCache: zero capacity")
	}
	if lock == nil {
		lock = new(sync.Mutex)
	}
	return &Cache{
		lock:     lock,
		capacity: capacity,
	}
}

func (c *Cache) lookup(id uint64) *buf.Buf {
	for _, e := range c.entries {
		if e.b.Blkno == id {
			return e.b
		}
	}
	return nil
}

func (c *Cache) evict() {
	for i, e := range c.entries {
		if e.b.Refs() == 0 {
			util.DPrintf(15, "bcache: evict %d\n", e.b.Blkno)
			e.b.Lock()
			e.b.Sync(e.dev)
			e.b.Unlock()
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return
		}
	}
	panic("bcache: run out of block cache")
}

// Get returns block id of dev, loading it on first access. The caller holds
// a reference until it calls Put.
func (c *Cache) Get(id uint64, dev disk.Device) *buf.Buf {
	c.lock.Lock()
	defer c.lock.Unlock()
	if b := c.lookup(id); b != nil {
		b.IncRef()
		return b
	}
	if uint64(len(c.entries)) == c.capacity {
		c.evict()
	}
	b := buf.MkBufLoad(dev, id)
	b.IncRef()
	c.entries = append(c.entries, entry{b: b, dev: dev})
	return b
}

// Put drops a reference obtained from Get.
func (c *Cache) Put(b *buf.Buf) {
	c.lock.Lock()
	b.DecRef()
	c.lock.Unlock()
}

// Read runs f on n bytes at off of block id.
func (c *Cache) Read(id uint64, dev disk.Device, off uint64, n uint64, f func([]byte)) {
	b := c.Get(id, dev)
	b.Lock()
	defer c.Put(b)
	defer b.Unlock()
	f(b.View(off, n))
}

// Modify runs f on n writable bytes at off of block id and marks it dirty.
func (c *Cache) Modify(id uint64, dev disk.Device, off uint64, n uint64, f func([]byte)) {
	b := c.Get(id, dev)
	b.Lock()
	defer c.Put(b)
	defer b.Unlock()
	f(b.Modify(off, n))
}

// With runs f with block id locked, for callers that need typed access.
func (c *Cache) With(id uint64, dev disk.Device, f func(b *buf.Buf)) {
	b := c.Get(id, dev)
	b.Lock()
	defer c.Put(b)
	defer b.Unlock()
	f(b)
}

// SyncAll writes every dirty resident block back to its device.
func (c *Cache) SyncAll() {
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, e := range c.entries {
		e.b.Lock()
		e.b.Sync(e.dev)
		e.b.Unlock()
	}
}

// Len is the number of resident blocks.
func (c *Cache) Len() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return uint64(len(c.entries))
}

func (c *Cache) Capacity() uint64 {
	return c.capacity
}
