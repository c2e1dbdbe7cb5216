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

// Package fs defines the file-system interface the kernel consumes. The
// kernel serializes every call through its global file lock; implementations
// are not required to be safe for concurrent use.
package fs

import "errors"

var (
	// ErrNotFound is returned when a named file does not exist.
	ErrNotFound = errors.New("fs: file not found")

	// ErrExists is returned by Create when the name is taken.
	ErrExists = errors.New("fs: file exists")
)

// File is an open file handle. Each handle carries its own position.
type File interface {
	// Read reads up to len(p) bytes at the current position, advancing
	// it. It returns the number of bytes read; 0 at end of file.
	Read(p []byte) int32

	// Write writes up to len(p) bytes at the current position, advancing
	// it. It returns the number of bytes written, which is 0 when writes
	// to the underlying file are denied and may be short when the write
	// would extend past the end of the file.
	Write(p []byte) int32

	// Seek sets the current position. Positions past the end of the file
	// are allowed; reads there return 0 bytes.
	Seek(pos int32)

	// Tell returns the current position.
	Tell() int32

	// Length returns the size of the file.
	Length() int32

	// DenyWrite marks the underlying file as not writable through any
	// handle. The denial lasts until this handle is closed. Calling it
	// twice on one handle has no further effect.
	DenyWrite()

	// Close releases the handle, lifting any write denial it holds.
	// Closing a handle twice is a no-op.
	Close()
}

// Filesystem is the mounted file system.
type Filesystem interface {
	// Open opens a named file.
	Open(name string) (File, error)

	// Create creates a file of the given size, zero-filled.
	Create(name string, size uint32) error

	// Remove unlinks a file. Open handles keep working; the storage is
	// reclaimed once the last one closes.
	Remove(name string) error
}
