// Package elfimg writes minimal static ELF64 RISC-V executables: a file
// header, one program header per segment, and the segment bytes.
package elfimg

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

const pageSize = 4096

type Segment struct {
	Vaddr uint64
	Flags elf.ProgFlag
	Data  []byte
	// Memsz is at least len(Data); the tail is zero-filled at load.
	Memsz uint64
}

func roundUp(n, sz uint64) uint64 {
	return (n + sz - 1) / sz * sz
}

// Build lays the segments out page-congruent with their addresses.
func Build(entry uint64, segs []Segment) []byte {
	hdrSize := uint64(binary.Size(elf.Header64{}))
	phSize := uint64(binary.Size(elf.Prog64{}))
	offs := make([]uint64, len(segs))
	off := hdrSize + phSize*uint64(len(segs))
	for i, s := range segs {
		off = roundUp(off, pageSize) + s.Vaddr%pageSize
		offs[i] = off
		off += uint64(len(s.Data))
	}

	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_RISCV),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     entry,
		Phoff:     hdrSize,
		Ehsize:    uint16(hdrSize),
		Phentsize: uint16(phSize),
		Phnum:     uint16(len(segs)),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var b bytes.Buffer
	binary.Write(&b, binary.LittleEndian, &hdr)
	for i, s := range segs {
		memsz := s.Memsz
		if memsz < uint64(len(s.Data)) {
			memsz = uint64(len(s.Data))
		}
		binary.Write(&b, binary.LittleEndian, &elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(s.Flags),
			Off:    offs[i],
			Vaddr:  s.Vaddr,
			Paddr:  s.Vaddr,
			Filesz: uint64(len(s.Data)),
			Memsz:  memsz,
			Align:  pageSize,
		})
	}
	for i, s := range segs {
		b.Write(make([]byte, offs[i]-uint64(b.Len())))
		b.Write(s.Data)
	}
	return b.Bytes()
}
