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

import (
	"runtime"
	"sync/atomic"

	"github.com/marmot-os/marmot/pkg/paging"
	"github.com/marmot-os/marmot/pkg/vaddr"
)

// TID identifies a kernel thread. A process's PID is the TID of its first
// thread.
type TID int32

// TIDError is the error sentinel for thread and process identifiers.
const TIDError TID = -1

// maxNameLen bounds thread and process display names.
const maxNameLen = 15

// Thread is a kernel thread, backed by one goroutine.
type Thread struct {
	k    *Kernel
	tid  TID
	name string

	// pcb is the thread's process, nil for kernel-only threads. It is an
	// atomic pointer because Activate may read it from any thread at any
	// time; see the ordering rules on Process.pagedir.
	pcb atomic.Pointer[Process]

	// joinStatus is this thread's entry in its process's join-status
	// list.
	joinStatus *JoinStatus

	// userStackPage is the base of the user stack page owned by a
	// spawned thread, reclaimed on thread exit.
	userStackPage    vaddr.Addr
	hasUserStackPage bool
}

// TID returns the thread identifier.
func (t *Thread) TID() TID {
	return t.tid
}

// Name returns the thread's display name.
func (t *Thread) Name() string {
	return t.name
}

// Kernel returns the owning kernel.
func (t *Thread) Kernel() *Kernel {
	return t.k
}

// Process returns the thread's process, or nil for kernel-only threads.
func (t *Thread) Process() *Process {
	return t.pcb.Load()
}

// Exit terminates the calling thread. It does not return.
func (t *Thread) Exit() {
	runtime.Goexit()
}

func truncateName(s string) string {
	if len(s) > maxNameLen {
		return s[:maxNameLen]
	}
	return s
}

// createThread starts a new kernel thread running fn and returns its TID.
func (k *Kernel) createThread(name string, fn func(*Thread)) TID {
	t := &Thread{
		k:    k,
		tid:  TID(k.nextTID.Add(1)),
		name: truncateName(name),
	}
	go fn(t)
	return t.tid
}

// bootstrapThread binds a Thread to the calling goroutine. Used once at
// boot for the initial thread.
func (k *Kernel) bootstrapThread(name string) *Thread {
	return &Thread{
		k:    k,
		tid:  TID(k.nextTID.Add(1)),
		name: truncateName(name),
	}
}

// Activate switches the MMU to t's address space: the thread's process
// directory if it has one, the kernel-only directory otherwise. Called on
// every context switch, including from the timer tick, so it must only
// perform atomic reads.
func (k *Kernel) Activate(t *Thread) {
	if pcb := t.pcb.Load(); pcb != nil {
		if pd := pcb.pagedir.Load(); pd != nil {
			paging.Activate(pd)
			return
		}
	}
	paging.Activate(nil)
}
