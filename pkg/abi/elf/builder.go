// Copyright 2023 The Marmot Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package elf

// Segment describes one loadable segment handed to Build.
type Segment struct {
	Vaddr uint32
	Data  []byte
	// Memsz is the in-memory size; if it exceeds len(Data) the remainder
	// is zero-filled by the loader. Zero means len(Data).
	Memsz    uint32
	Writable bool
}

// Build assembles a minimal valid executable image: header, program header
// table, then segment contents. Segment file offsets are placed so that
// each segment's file offset and virtual address share a page offset, as
// the loader requires.
func Build(entry uint32, segs []Segment) []byte {
	e := Ehdr{
		Type:      TypeExec,
		Machine:   MachineI386,
		Version:   Version,
		Entry:     entry,
		Phoff:     EhdrSize,
		Ehsize:    EhdrSize,
		Phentsize: PhdrSize,
		Phnum:     uint16(len(segs)),
	}
	copy(e.Ident[:], Magic[:])

	phdrs := make([]Phdr, len(segs))
	off := uint32(EhdrSize + PhdrSize*len(segs))
	for i, s := range segs {
		// Pad so the file offset and vaddr agree modulo the page size.
		want := s.Vaddr & 0xFFF
		if off&0xFFF > want {
			off = (off &^ 0xFFF) + 0x1000 + want
		} else {
			off = (off &^ 0xFFF) + want
		}
		memsz := s.Memsz
		if memsz == 0 {
			memsz = uint32(len(s.Data))
		}
		flags := uint32(PFR | PFX)
		if s.Writable {
			flags |= PFW
		}
		phdrs[i] = Phdr{
			Type:   PTLoad,
			Off:    off,
			Vaddr:  s.Vaddr,
			Filesz: uint32(len(s.Data)),
			Memsz:  memsz,
			Flags:  flags,
			Align:  0x1000,
		}
		off += uint32(len(s.Data))
	}

	size := int(off)
	if size < EhdrSize+PhdrSize*len(segs) {
		size = EhdrSize + PhdrSize*len(segs)
	}
	img := make([]byte, size)
	copy(img, e.encode())
	for i := range phdrs {
		copy(img[EhdrSize+i*PhdrSize:], phdrs[i].encode())
	}
	for i, s := range segs {
		copy(img[phdrs[i].Off:], s.Data)
	}
	return img
}
