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

// Package memfs is an in-memory fs.Filesystem used as the boot disk. Files
// are flat (no directories) and fixed-size once created, like the basic
// disk format the kernel was designed against.
package memfs

import (
	"sync"

	"github.com/marmot-os/marmot/pkg/fs"
)

type inode struct {
	data []byte

	// denyWrite counts open handles that have denied writes. The inode
	// rejects writes while it is positive.
	denyWrite int

	openCount int
	removed   bool
}

// Filesystem is an in-memory file system.
type Filesystem struct {
	// mu makes the structure safe to probe from outside the kernel's file
	// lock (the CLI populates the disk before boot; tests inspect it).
	mu     sync.Mutex
	inodes map[string]*inode
}

// New returns an empty file system.
func New() *Filesystem {
	return &Filesystem{inodes: make(map[string]*inode)}
}

// Open implements fs.Filesystem.Open.
func (f *Filesystem) Open(name string) (fs.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ino, ok := f.inodes[name]
	if !ok {
		return nil, fs.ErrNotFound
	}
	ino.openCount++
	return &file{fs: f, ino: ino}, nil
}

// Create implements fs.Filesystem.Create.
func (f *Filesystem) Create(name string, size uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.inodes[name]; ok {
		return fs.ErrExists
	}
	f.inodes[name] = &inode{data: make([]byte, size)}
	return nil
}

// Remove implements fs.Filesystem.Remove.
func (f *Filesystem) Remove(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ino, ok := f.inodes[name]
	if !ok {
		return fs.ErrNotFound
	}
	ino.removed = true
	delete(f.inodes, name)
	return nil
}

// Install creates name with the given contents, replacing any existing
// file. It is used to populate the boot disk and is not part of the
// fs.Filesystem interface.
func (f *Filesystem) Install(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inodes[name] = &inode{data: append([]byte(nil), data...)}
}

// WriteDenied reports whether writes to name are currently denied. Returns
// false for unknown names. Test hook.
func (f *Filesystem) WriteDenied(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ino, ok := f.inodes[name]
	return ok && ino.denyWrite > 0
}

type file struct {
	fs     *Filesystem
	ino    *inode
	pos    int32
	denied bool
	closed bool
}

// Read implements fs.File.Read.
func (h *file) Read(p []byte) int32 {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.pos < 0 || h.pos >= int32(len(h.ino.data)) {
		return 0
	}
	n := copy(p, h.ino.data[h.pos:])
	h.pos += int32(n)
	return int32(n)
}

// Write implements fs.File.Write. Writes cannot extend the file.
func (h *file) Write(p []byte) int32 {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.ino.denyWrite > 0 {
		return 0
	}
	if h.pos < 0 || h.pos >= int32(len(h.ino.data)) {
		return 0
	}
	n := copy(h.ino.data[h.pos:], p)
	h.pos += int32(n)
	return int32(n)
}

// Seek implements fs.File.Seek.
func (h *file) Seek(pos int32) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	h.pos = pos
}

// Tell implements fs.File.Tell.
func (h *file) Tell() int32 {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	return h.pos
}

// Length implements fs.File.Length.
func (h *file) Length() int32 {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	return int32(len(h.ino.data))
}

// DenyWrite implements fs.File.DenyWrite.
func (h *file) DenyWrite() {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if !h.denied {
		h.denied = true
		h.ino.denyWrite++
	}
}

// Close implements fs.File.Close.
func (h *file) Close() {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	if h.denied {
		h.ino.denyWrite--
		h.denied = false
	}
	h.ino.openCount--
}
