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

// Package paging simulates the paging hardware: a pool of physical frames
// and per-process page directories mapping user pages onto frames. A
// directory is not safe for concurrent mutation; the kernel only mutates a
// directory from threads of the owning process.
package paging

import (
	"sync"
	"sync/atomic"

	"github.com/google/btree"

	"github.com/marmot-os/marmot/pkg/vaddr"
)

// Frame is one physical page frame from the user pool.
type Frame struct {
	data [vaddr.PageSize]byte
}

// Bytes returns the frame's backing storage.
func (f *Frame) Bytes() []byte {
	return f.data[:]
}

// Pool is the user frame pool.
type Pool struct {
	mu   sync.Mutex
	free int
}

// NewPool returns a pool of n frames.
func NewPool(n int) *Pool {
	return &Pool{free: n}
}

// GetPage allocates a frame, zero-filled when zero is set. Returns nil when
// the pool is exhausted.
func (p *Pool) GetPage(zero bool) *Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.free == 0 {
		return nil
	}
	p.free--
	// Frames are always handed out zeroed; the zero flag is kept for
	// parity with the allocator interface the loader was written against.
	_ = zero
	return &Frame{}
}

// FreePage returns a frame to the pool.
func (p *Pool) FreePage(f *Frame) {
	if f == nil {
		return
	}
	p.mu.Lock()
	p.free++
	p.mu.Unlock()
}

// Free returns the number of unallocated frames.
func (p *Pool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free
}

// pte is one page-table entry: a mapped user page.
type pte struct {
	vpage    vaddr.Addr
	frame    *Frame
	writable bool
}

func (e *pte) Less(than btree.Item) bool {
	return e.vpage < than.(*pte).vpage
}

// PageDirectory maps user pages to frames. Entries are kept in an ordered
// btree so the thread-stack allocator can scan down from the top of user
// memory.
type PageDirectory struct {
	pool *Pool
	tree *btree.BTree
}

// NewDirectory returns an empty page directory drawing frames from pool.
func NewDirectory(pool *Pool) *PageDirectory {
	return &PageDirectory{
		pool: pool,
		tree: btree.New(8),
	}
}

// GetPage returns the frame mapped at the page containing ua, or nil.
func (pd *PageDirectory) GetPage(ua vaddr.Addr) *Frame {
	e := pd.lookup(ua)
	if e == nil {
		return nil
	}
	return e.frame
}

// Writable reports whether the page containing ua is mapped writable.
func (pd *PageDirectory) Writable(ua vaddr.Addr) bool {
	e := pd.lookup(ua)
	return e != nil && e.writable
}

func (pd *PageDirectory) lookup(ua vaddr.Addr) *pte {
	it := pd.tree.Get(&pte{vpage: ua.RoundDown()})
	if it == nil {
		return nil
	}
	return it.(*pte)
}

// SetPage maps upage to frame. upage must be page-aligned; mapping an
// already-mapped page fails.
func (pd *PageDirectory) SetPage(upage vaddr.Addr, frame *Frame, writable bool) bool {
	if upage.PageOff() != 0 || !upage.IsUser() {
		return false
	}
	if pd.tree.Has(&pte{vpage: upage}) {
		return false
	}
	pd.tree.ReplaceOrInsert(&pte{vpage: upage, frame: frame, writable: writable})
	return true
}

// ClearPage unmaps upage. The frame is not freed; the caller owns it.
func (pd *PageDirectory) ClearPage(upage vaddr.Addr) {
	pd.tree.Delete(&pte{vpage: upage.RoundDown()})
}

// Destroy unmaps everything and returns every frame to the pool. The
// directory must not be active on any thread.
func (pd *PageDirectory) Destroy() {
	pd.tree.Ascend(func(it btree.Item) bool {
		pd.pool.FreePage(it.(*pte).frame)
		return true
	})
	pd.tree.Clear(false)
}

// Pages returns the number of mapped pages.
func (pd *PageDirectory) Pages() int {
	return pd.tree.Len()
}

// HighestUnmappedPage scans down from the top of user memory, past the
// contiguous run of mapped pages, to the first unmapped page. Returns false
// when the scan reaches address zero with every page mapped.
func (pd *PageDirectory) HighestUnmappedPage() (vaddr.Addr, bool) {
	candidate := vaddr.UserStackTop - vaddr.PageSize
	ok := true
	pd.tree.DescendLessOrEqual(&pte{vpage: candidate}, func(it btree.Item) bool {
		e := it.(*pte)
		if e.vpage != candidate {
			return false
		}
		if candidate == 0 {
			ok = false
			return false
		}
		candidate -= vaddr.PageSize
		return true
	})
	if !ok {
		return 0, false
	}
	return candidate, true
}

// active is the page directory the simulated MMU currently translates
// through; nil means the kernel-only directory.
var active atomic.Pointer[PageDirectory]

// Activate switches the MMU to pd; nil activates the kernel-only
// directory.
func Activate(pd *PageDirectory) {
	active.Store(pd)
}

// Active returns the directory the MMU is translating through, or nil for
// the kernel-only directory.
func Active() *PageDirectory {
	return active.Load()
}
