package mm

import (
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/ezos/util"
)

const maxUserString = PageSize

func userFlags(write bool) PTEFlags {
	if write {
		return PTE_V | PTE_U | PTE_W
	}
	return PTE_V | PTE_U
}

// TranslatedByteBuffer returns the physical pieces backing n bytes of user
// memory at va in the address space with the given token. It reports false
// if the range wraps or any page is unmapped, not user-accessible, or (for
// write) read-only.
func TranslatedByteBuffer(mem *Memory, token uint64, va uint64, n uint64, write bool) ([][]byte, bool) {
	if util.SumOverflows(va, n) {
		return nil, false
	}
	pt := FromToken(mem, token)
	var bufs [][]byte
	start := VirtAddr(va)
	end := start + VirtAddr(n)
	for start < end {
		e, ok := pt.Translate(start.Floor())
		if !ok || !e.Has(userFlags(write)) {
			return nil, false
		}
		pageEnd := (start.Floor() + 1).Addr()
		if pageEnd > end {
			pageEnd = end
		}
		page := mem.Page(e.PPN())
		bufs = append(bufs, page[start.PageOffset():start.PageOffset()+uint64(pageEnd-start)])
		start = pageEnd
	}
	return bufs, true
}

// TranslatedString reads a NUL-terminated string from user memory.
func TranslatedString(mem *Memory, token uint64, va uint64) (string, bool) {
	var s []byte
	for i := uint64(0); i < maxUserString; i++ {
		b, ok := TranslatedByteBuffer(mem, token, va+i, 1, false)
		if !ok {
			return "", false
		}
		if b[0][0] == 0 {
			return string(s), true
		}
		s = append(s, b[0][0])
	}
	return "", false
}

func ReadBytes(mem *Memory, token uint64, va uint64, n uint64) ([]byte, bool) {
	bufs, ok := TranslatedByteBuffer(mem, token, va, n, false)
	if !ok {
		return nil, false
	}
	return NewUserBuffer(bufs).Bytes(), true
}

func WriteBytes(mem *Memory, token uint64, va uint64, data []byte) bool {
	bufs, ok := TranslatedByteBuffer(mem, token, va, uint64(len(data)), true)
	if !ok {
		return false
	}
	NewUserBuffer(bufs).Fill(data)
	return true
}

func ReadU64(mem *Memory, token uint64, va uint64) (uint64, bool) {
	b, ok := ReadBytes(mem, token, va, 8)
	if !ok {
		return 0, false
	}
	return marshal.NewDec(b).GetInt(), true
}

func WriteU64(mem *Memory, token uint64, va uint64, v uint64) bool {
	enc := marshal.NewEnc(8)
	enc.PutInt(v)
	return WriteBytes(mem, token, va, enc.Finish())
}

// UserBuffer is a user-space byte range split at page boundaries.
type UserBuffer struct {
	Buffers [][]byte
}

func NewUserBuffer(bufs [][]byte) *UserBuffer {
	return &UserBuffer{Buffers: bufs}
}

func (ub *UserBuffer) Len() uint64 {
	var n uint64
	for _, b := range ub.Buffers {
		n += uint64(len(b))
	}
	return n
}

// Bytes copies the buffer contents out.
func (ub *UserBuffer) Bytes() []byte {
	out := make([]byte, 0, ub.Len())
	for _, b := range ub.Buffers {
		out = append(out, b...)
	}
	return out
}

// Fill copies data into the buffer and returns the number of bytes copied.
func (ub *UserBuffer) Fill(data []byte) uint64 {
	var n uint64
	for _, b := range ub.Buffers {
		if len(data) == 0 {
			break
		}
		c := copy(b, data)
		data = data[c:]
		n += uint64(c)
	}
	return n
}
