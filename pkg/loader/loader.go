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

// Package loader loads ELF executables into a fresh address space and
// packs the program arguments onto the initial user stack.
package loader

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/marmot-os/marmot/pkg/abi/elf"
	"github.com/marmot-os/marmot/pkg/devices"
	"github.com/marmot-os/marmot/pkg/fs"
	"github.com/marmot-os/marmot/pkg/paging"
	"github.com/marmot-os/marmot/pkg/vaddr"
)

var (
	// ErrOpen means the executable could not be opened.
	ErrOpen = errors.New("loader: open failed")

	// ErrBadExecutable means the image failed header or segment
	// validation.
	ErrBadExecutable = errors.New("loader: error loading executable")

	// ErrNoMemory means the user pool ran out of frames.
	ErrNoMemory = errors.New("loader: out of user memory")
)

// Params carries the collaborators Load works against. Every file-system
// call Load makes runs under FileLock.
type Params struct {
	Filesys  fs.Filesystem
	FileLock *sync.Mutex
	Pool     *paging.Pool
	Dir      *paging.PageDirectory
	Cmdline  string
	Console  *devices.Console
}

// Result is a successful load: the executable handle (left open with
// writes denied), the entry point, and the initial stack pointer.
type Result struct {
	File  fs.File
	Entry uint32
	SP    uint32
}

// Load loads the program named by the first token of the command line into
// Dir and builds the argument stack from the whole command line. On
// failure the executable handle is closed and already-installed frames are
// left for the caller's directory teardown.
func Load(p Params) (Result, error) {
	name := p.Cmdline
	if i := strings.IndexByte(name, ' '); i >= 0 {
		name = name[:i]
	}

	p.FileLock.Lock()
	file, err := p.Filesys.Open(name)
	p.FileLock.Unlock()
	if err != nil {
		p.Console.PutBuf([]byte(fmt.Sprintf("load: %s: open failed\n", name)))
		return Result{}, fmt.Errorf("%w: %s", ErrOpen, name)
	}

	res, err := load(p, name, file)
	if err != nil {
		p.FileLock.Lock()
		file.Close()
		p.FileLock.Unlock()
		return Result{}, err
	}
	res.File = file
	return res, nil
}

func load(p Params, name string, file fs.File) (Result, error) {
	p.FileLock.Lock()
	file.DenyWrite()
	var hdr [elf.EhdrSize]byte
	n := file.Read(hdr[:])
	p.FileLock.Unlock()

	ehdr, err := elf.DecodeEhdr(hdr[:])
	if n != elf.EhdrSize || err != nil || !ehdr.CheckIdent() {
		p.Console.PutBuf([]byte(fmt.Sprintf("load: %s: error loading executable\n", name)))
		return Result{}, ErrBadExecutable
	}

	fileOfs := int32(ehdr.Phoff)
	for i := 0; i < int(ehdr.Phnum); i++ {
		p.FileLock.Lock()
		length := file.Length()
		if fileOfs < 0 || fileOfs > length {
			p.FileLock.Unlock()
			return Result{}, ErrBadExecutable
		}
		file.Seek(fileOfs)
		var raw [elf.PhdrSize]byte
		n := file.Read(raw[:])
		p.FileLock.Unlock()
		if n != elf.PhdrSize {
			return Result{}, ErrBadExecutable
		}
		fileOfs += elf.PhdrSize

		phdr, err := elf.DecodePhdr(raw[:])
		if err != nil {
			return Result{}, ErrBadExecutable
		}
		switch phdr.Type {
		case elf.PTDynamic, elf.PTInterp, elf.PTShlib:
			return Result{}, ErrBadExecutable
		case elf.PTLoad:
			if !validSegment(p, &phdr, file) {
				return Result{}, ErrBadExecutable
			}
			writable := phdr.Flags&elf.PFW != 0
			filePage := phdr.Off &^ vaddr.PageMask
			memPage := vaddr.Addr(phdr.Vaddr).RoundDown()
			pageOffset := phdr.Vaddr & vaddr.PageMask
			var readBytes, zeroBytes uint32
			if phdr.Filesz > 0 {
				readBytes = pageOffset + phdr.Filesz
				zeroBytes = vaddr.RoundUp32(pageOffset+phdr.Memsz) - readBytes
			} else {
				readBytes = 0
				zeroBytes = vaddr.RoundUp32(pageOffset + phdr.Memsz)
			}
			if err := loadSegment(p, file, int32(filePage), memPage, readBytes, zeroBytes, writable); err != nil {
				return Result{}, err
			}
		default:
			// PT_NULL, PT_NOTE, PT_PHDR, PT_STACK, and unknown
			// types carry nothing to install.
		}
	}

	sp, err := setupStack(p)
	if err != nil {
		return Result{}, err
	}
	sp, err = PackArgs(p.Dir, p.Cmdline, sp)
	if err != nil {
		return Result{}, err
	}

	return Result{Entry: ehdr.Entry, SP: uint32(sp)}, nil
}

// validSegment checks that phdr describes a loadable segment of file.
func validSegment(p Params, phdr *elf.Phdr, file fs.File) bool {
	// File offset and vaddr must agree modulo the page size.
	if phdr.Off&vaddr.PageMask != phdr.Vaddr&vaddr.PageMask {
		return false
	}

	p.FileLock.Lock()
	length := file.Length()
	p.FileLock.Unlock()
	if phdr.Off > uint32(length) {
		return false
	}

	if phdr.Memsz < phdr.Filesz {
		return false
	}
	if phdr.Memsz == 0 {
		return false
	}

	// The region must start and end in user space and must not wrap
	// into the kernel half.
	if !vaddr.Addr(phdr.Vaddr).IsUser() {
		return false
	}
	if !vaddr.Addr(phdr.Vaddr + phdr.Memsz).IsUser() {
		return false
	}
	if phdr.Vaddr+phdr.Memsz < phdr.Vaddr {
		return false
	}

	// Mapping page 0 would let user code hand the kernel plausible null
	// pointers.
	if phdr.Vaddr < vaddr.PageSize {
		return false
	}
	return true
}

// loadSegment installs readBytes+zeroBytes bytes of virtual memory at
// upage: the first readBytes read from file at ofs, the rest zeroed.
func loadSegment(p Params, file fs.File, ofs int32, upage vaddr.Addr, readBytes, zeroBytes uint32, writable bool) error {
	p.FileLock.Lock()
	file.Seek(ofs)
	p.FileLock.Unlock()

	for readBytes > 0 || zeroBytes > 0 {
		pageReadBytes := readBytes
		if pageReadBytes > vaddr.PageSize {
			pageReadBytes = vaddr.PageSize
		}
		pageZeroBytes := vaddr.PageSize - pageReadBytes

		frame := p.Pool.GetPage(false)
		if frame == nil {
			return ErrNoMemory
		}

		p.FileLock.Lock()
		n := file.Read(frame.Bytes()[:pageReadBytes])
		p.FileLock.Unlock()
		if uint32(n) != pageReadBytes {
			p.Pool.FreePage(frame)
			return ErrBadExecutable
		}

		if p.Dir.GetPage(upage) != nil || !p.Dir.SetPage(upage, frame, writable) {
			p.Pool.FreePage(frame)
			return ErrBadExecutable
		}

		readBytes -= pageReadBytes
		zeroBytes -= pageZeroBytes
		upage += vaddr.PageSize
	}
	return nil
}

// setupStack installs a zeroed page at the top of user memory and returns
// the initial stack pointer.
func setupStack(p Params) (vaddr.Addr, error) {
	frame := p.Pool.GetPage(true)
	if frame == nil {
		return 0, ErrNoMemory
	}
	if !p.Dir.SetPage(vaddr.UserStackTop-vaddr.PageSize, frame, true) {
		p.Pool.FreePage(frame)
		return 0, ErrBadExecutable
	}
	return vaddr.UserStackTop, nil
}
