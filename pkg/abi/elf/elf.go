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

// Package elf defines the 32-bit little-endian ELF executable format
// understood by the loader: the executable header and program headers,
// more-or-less verbatim from the ELF specification.
package elf

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Sizes of the on-disk structures.
const (
	EhdrSize = 52
	PhdrSize = 32
)

// Executable header fields the loader checks.
const (
	TypeExec    = 2 // e_type: executable
	MachineI386 = 3 // e_machine: i386
	Version     = 1 // e_version

	// MaxPhnum bounds e_phnum; anything larger is rejected as corrupt.
	MaxPhnum = 1024
)

// Program header segment types.
const (
	PTNull    = 0
	PTLoad    = 1
	PTDynamic = 2
	PTInterp  = 3
	PTNote    = 4
	PTShlib   = 5
	PTPhdr    = 6
	PTStack   = 0x6474e551
)

// Program header flag bits.
const (
	PFX = 1
	PFW = 2
	PFR = 4
)

// Magic is the required e_ident prefix: ELF, 32-bit, little-endian,
// version 1.
var Magic = [7]byte{0x7f, 'E', 'L', 'F', 1, 1, 1}

// ErrTruncated is returned when a header does not fit in its input.
var ErrTruncated = errors.New("elf: truncated header")

// Ehdr is the executable header at the start of every ELF binary.
type Ehdr struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	Phoff     uint32
	Shoff     uint32
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// Phdr is a program header. There are Phnum of them, starting at file
// offset Phoff.
type Phdr struct {
	Type   uint32
	Off    uint32
	Vaddr  uint32
	Paddr  uint32
	Filesz uint32
	Memsz  uint32
	Flags  uint32
	Align  uint32
}

// DecodeEhdr decodes an executable header from b.
func DecodeEhdr(b []byte) (Ehdr, error) {
	var e Ehdr
	if len(b) < EhdrSize {
		return e, ErrTruncated
	}
	if err := binary.Read(bytes.NewReader(b[:EhdrSize]), binary.LittleEndian, &e); err != nil {
		return e, err
	}
	return e, nil
}

// DecodePhdr decodes a program header from b.
func DecodePhdr(b []byte) (Phdr, error) {
	var p Phdr
	if len(b) < PhdrSize {
		return p, ErrTruncated
	}
	if err := binary.Read(bytes.NewReader(b[:PhdrSize]), binary.LittleEndian, &p); err != nil {
		return p, err
	}
	return p, nil
}

// CheckIdent reports whether the header carries the required magic and the
// executable/machine/version values the loader supports.
func (e *Ehdr) CheckIdent() bool {
	return bytes.Equal(e.Ident[:7], Magic[:]) &&
		e.Type == TypeExec &&
		e.Machine == MachineI386 &&
		e.Version == Version &&
		e.Phentsize == PhdrSize &&
		e.Phnum <= MaxPhnum
}

func (e *Ehdr) encode() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, e)
	return buf.Bytes()
}

func (p *Phdr) encode() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, p)
	return buf.Bytes()
}
