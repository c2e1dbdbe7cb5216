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

package kernel

import "github.com/marmot-os/marmot/pkg/fs"

// Reserved descriptors, interpreted inline by the syscall dispatcher.
const (
	StdinFD  = 0
	StdoutFD = 1

	// firstFD is the first descriptor handed out by the table.
	firstFD = 2
)

// FileDesc maps one small-integer descriptor to an open kernel file
// handle. Descriptors are allocated monotonically per process and never
// reused, even after close.
type FileDesc struct {
	fd   int32
	file fs.File
}

// FD returns the descriptor number.
func (d *FileDesc) FD() int32 {
	return d.fd
}

// OpenFD opens path through the file system on behalf of t's process and
// installs a new descriptor for it. Returns -1 on open failure.
func (k *Kernel) OpenFD(t *Thread, path string) int32 {
	pcb := t.Process()

	k.fileLock.Lock()
	f, err := k.filesys.Open(path)
	k.fileLock.Unlock()
	if err != nil {
		return -1
	}

	pcb.master.Lock()
	d := &FileDesc{fd: int32(pcb.nextFD), file: f}
	pcb.nextFD++
	pcb.fds = append(pcb.fds, d)
	pcb.master.Unlock()
	return d.fd
}

// LookupFD returns the open file behind fd in t's process, or nil.
func (k *Kernel) LookupFD(t *Thread, fd int32) fs.File {
	pcb := t.Process()
	pcb.master.Lock()
	defer pcb.master.Unlock()
	for _, d := range pcb.fds {
		if d.fd == fd {
			return d.file
		}
	}
	return nil
}

// CloseFD closes fd and unlinks its record. Closing an unknown descriptor
// is not an error.
func (k *Kernel) CloseFD(t *Thread, fd int32) {
	pcb := t.Process()

	pcb.master.Lock()
	var d *FileDesc
	for i, cand := range pcb.fds {
		if cand.fd == fd {
			d = cand
			pcb.fds = append(pcb.fds[:i], pcb.fds[i+1:]...)
			break
		}
	}
	pcb.master.Unlock()
	if d == nil {
		return
	}

	k.fileLock.Lock()
	d.file.Close()
	k.fileLock.Unlock()
}

// closeAllFDs closes every descriptor during process exit. By this point
// the exiting thread is the last one alive in the process, so the list is
// private to it.
func (k *Kernel) closeAllFDs(pcb *Process) {
	for _, d := range pcb.fds {
		k.fileLock.Lock()
		d.file.Close()
		k.fileLock.Unlock()
	}
	pcb.fds = nil
}
