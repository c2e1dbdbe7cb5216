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

// Package usermem validates and accesses untrusted user memory through a
// process's page directory. The Valid* functions are pure predicates; a
// failed predicate obligates the caller to kill the process, not this
// package.
package usermem

import (
	"encoding/binary"

	"github.com/marmot-os/marmot/pkg/paging"
	"github.com/marmot-os/marmot/pkg/vaddr"
)

func validPage(pd *paging.PageDirectory, a vaddr.Addr) bool {
	if !a.IsUser() {
		return false
	}
	return pd.GetPage(a) != nil
}

// ValidRange reports whether every page from the page containing addr up to
// addr+size (exclusive) is a mapped user page. A zero-length range at a
// page-aligned addr is valid; at an unaligned addr it still requires the
// page containing addr to be mapped.
func ValidRange(pd *paging.PageDirectory, addr vaddr.Addr, size uint32) bool {
	end := uint64(addr) + uint64(size)
	for cur := uint64(addr.RoundDown()); cur < end; cur += vaddr.PageSize {
		if cur > uint64(^uint32(0)) || !validPage(pd, vaddr.Addr(cur)) {
			return false
		}
	}
	return true
}

// ValidCString walks the bytes at ptr until a NUL, validating each touched
// page. It reports true only if a NUL is reached on mapped user pages.
func ValidCString(pd *paging.PageDirectory, ptr vaddr.Addr) bool {
	for {
		if !validPage(pd, ptr) {
			return false
		}
		frame := pd.GetPage(ptr)
		page := frame.Bytes()
		for off := ptr.PageOff(); off < vaddr.PageSize; off++ {
			if page[off] == 0 {
				return true
			}
		}
		// NUL not on this page; continue on the next one, which may be
		// unmapped or past the user boundary.
		next := uint64(ptr.RoundDown()) + vaddr.PageSize
		if next >= uint64(vaddr.PhysBase) {
			return false
		}
		ptr = vaddr.Addr(next)
	}
}

// CopyIn copies len(b) bytes from user memory at addr into b. Returns false
// if any page in the range is unmapped.
func CopyIn(pd *paging.PageDirectory, addr vaddr.Addr, b []byte) bool {
	for len(b) > 0 {
		frame := pd.GetPage(addr)
		if !addr.IsUser() || frame == nil {
			return false
		}
		off := addr.PageOff()
		n := copy(b, frame.Bytes()[off:])
		b = b[n:]
		addr += vaddr.Addr(n)
	}
	return true
}

// CopyOut copies b into user memory at addr. Returns false if any page in
// the range is unmapped.
func CopyOut(pd *paging.PageDirectory, addr vaddr.Addr, b []byte) bool {
	for len(b) > 0 {
		frame := pd.GetPage(addr)
		if !addr.IsUser() || frame == nil {
			return false
		}
		off := addr.PageOff()
		n := copy(frame.Bytes()[off:], b)
		b = b[n:]
		addr += vaddr.Addr(n)
	}
	return true
}

// ReadUint32 reads a little-endian 32-bit word from user memory.
func ReadUint32(pd *paging.PageDirectory, addr vaddr.Addr) (uint32, bool) {
	var b [4]byte
	if !CopyIn(pd, addr, b[:]) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b[:]), true
}

// WriteUint32 writes a little-endian 32-bit word to user memory.
func WriteUint32(pd *paging.PageDirectory, addr vaddr.Addr, v uint32) bool {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return CopyOut(pd, addr, b[:])
}

// CopyInString copies the NUL-terminated string at ptr out of user memory.
// Returns false under exactly the conditions ValidCString does.
func CopyInString(pd *paging.PageDirectory, ptr vaddr.Addr) (string, bool) {
	if !ValidCString(pd, ptr) {
		return "", false
	}
	var out []byte
	for {
		frame := pd.GetPage(ptr)
		page := frame.Bytes()
		off := ptr.PageOff()
		for ; off < vaddr.PageSize; off++ {
			if page[off] == 0 {
				return string(out), true
			}
			out = append(out, page[off])
		}
		ptr = vaddr.Addr(uint64(ptr.RoundDown()) + vaddr.PageSize)
	}
}
