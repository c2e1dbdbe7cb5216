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

// Package vaddr defines the user virtual address space: a 32-bit space with
// 4 KiB pages, split at PhysBase. Addresses below PhysBase belong to user
// mode; PhysBase and above are kernel-only.
package vaddr

import "fmt"

// Addr is a user virtual address.
type Addr uint32

const (
	// PageShift is log2(PageSize).
	PageShift = 12

	// PageSize is the size of a page in bytes.
	PageSize = 1 << PageShift

	// PageMask masks the offset within a page.
	PageMask = PageSize - 1

	// PhysBase is the base of kernel virtual memory. User virtual
	// addresses are strictly below it.
	PhysBase Addr = 0xC0000000

	// UserStackTop is the top of the initial user stack, one past the last
	// user byte.
	UserStackTop = PhysBase
)

// RoundDown returns the base of the page containing a.
func (a Addr) RoundDown() Addr {
	return a &^ PageMask
}

// RoundUp returns the next page boundary at or above a. It does not wrap;
// addresses in the last page of the space round to 0xFFFFF000.
func (a Addr) RoundUp() Addr {
	if a > 0xFFFFFFFF-PageMask {
		return a.RoundDown()
	}
	return (a + PageMask).RoundDown()
}

// PageOff returns the offset of a within its page.
func (a Addr) PageOff() uint32 {
	return uint32(a & PageMask)
}

// IsUser reports whether a is a user virtual address.
func (a Addr) IsUser() bool {
	return a < PhysBase
}

// String implements fmt.Stringer.
func (a Addr) String() string {
	return fmt.Sprintf("%#08x", uint32(a))
}

// RoundUp32 rounds n up to the next multiple of PageSize without changing
// its type. Used for segment extents rather than addresses.
func RoundUp32(n uint32) uint32 {
	return (n + PageMask) &^ uint32(PageMask)
}
