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
	"encoding/binary"
	"fmt"

	"github.com/marmot-os/marmot/pkg/arch"
	"github.com/marmot-os/marmot/pkg/usermem"
	"github.com/marmot-os/marmot/pkg/vaddr"
)

// Synthetic user-space code addresses. Spawned threads receive a stub
// pointer and a function pointer; neither is ever executed by the
// simulated CPU, but both appear on the new thread's stack exactly as the
// ABI lays them out.
const (
	stubAddrBase = 0x08048000
	fnAddrBase   = 0x08049000
)

func (p *Process) allocStubAddr() uint32 {
	if p.stubAddr == 0 {
		p.stubAddr = stubAddrBase
	}
	return p.stubAddr
}

func (p *Process) allocFnAddr() uint32 {
	if p.nextFnAddr == 0 {
		p.nextFnAddr = fnAddrBase
	}
	a := p.nextFnAddr
	p.nextFnAddr += 16
	return a
}

// SpawnThread starts an additional user thread in the calling thread's
// process, running body with the given argument. It blocks until the new
// thread has either installed its stack or failed, and returns the new TID
// or TIDError.
func (k *Kernel) SpawnThread(t *Thread, body UserThreadFunc, arg uint32) TID {
	pcb := t.Process()

	pcb.master.Lock()
	stub := pcb.allocStubAddr()
	fnAddr := pcb.allocFnAddr()
	pcb.master.Unlock()

	js := &JoinStatus{}
	k.createThread(fmt.Sprintf("%#x", fnAddr), func(ct *Thread) {
		k.startThread(ct, pcb, js, stub, fnAddr, arg, body)
	})

	// First rendezvous on the join semaphore: the start outcome.
	js.joinSema.Down()
	if js.tid == TIDError {
		// The record never reached the join-status list; drop it.
		return TIDError
	}
	return js.tid
}

// startThread is the spawned half of SpawnThread: adopt the process, build
// a user stack, report the outcome, then run the thread body.
func (k *Kernel) startThread(t *Thread, pcb *Process, js *JoinStatus, stub, fnAddr, arg uint32, body UserThreadFunc) {
	t.pcb.Store(pcb)
	k.Activate(t)

	tf := arch.NewUserTrapFrame()
	if !k.setupThread(t, tf, stub, fnAddr, arg) {
		js.tid = TIDError
		js.joinSema.Up()
		t.Exit()
	}

	js.tid = t.tid
	t.joinStatus = js
	js.joinSema.Up()

	pcb.master.Lock()
	pcb.threads = append(pcb.threads, t)
	pcb.joinStatuses = append(pcb.joinStatuses, js)
	pcb.master.Unlock()

	k.enterUserThread(t, tf, body, arg)
}

// setupThread installs a fresh stack page at the highest unmapped user
// page and lays out the initial thread stack: 8 bytes of padding, the user
// argument, the user function pointer, and a zero fake return address. The
// trap frame resumes at the stub.
func (k *Kernel) setupThread(t *Thread, tf *arch.TrapFrame, stub, fnAddr, arg uint32) bool {
	pcb := t.Process()
	pd := pcb.pagedir.Load()

	frame := k.pool.GetPage(true)
	if frame == nil {
		return false
	}
	upage, ok := pd.HighestUnmappedPage()
	if !ok {
		k.pool.FreePage(frame)
		return false
	}
	if !pd.SetPage(upage, frame, true) {
		k.pool.FreePage(frame)
		return false
	}

	sp := upage + vaddr.PageSize
	sp -= 8

	var word [4]byte
	push := func(v uint32) {
		sp -= 4
		binary.LittleEndian.PutUint32(word[:], v)
		usermem.CopyOut(pd, sp, word[:])
	}
	push(arg)
	push(fnAddr)
	push(0)

	tf.EIP = stub
	tf.ESP = uint32(sp)
	t.userStackPage = upage
	t.hasUserStackPage = true
	return true
}

// JoinThread waits for the given thread of the caller's process to
// terminate. At most one joiner wins the record; late or repeated joins
// and unknown tids return TIDError immediately.
func (k *Kernel) JoinThread(t *Thread, tid TID) TID {
	pcb := t.Process()

	pcb.master.Lock()
	var js *JoinStatus
	for _, s := range pcb.joinStatuses {
		if s.tid == tid {
			js = s
		}
	}
	if js == nil || js.wasJoined {
		pcb.master.Unlock()
		return TIDError
	}
	js.wasJoined = true
	pcb.master.Unlock()

	// Second rendezvous: termination.
	js.joinSema.Down()

	pcb.master.Lock()
	for i, s := range pcb.joinStatuses {
		if s == js {
			pcb.joinStatuses = append(pcb.joinStatuses[:i], pcb.joinStatuses[i+1:]...)
			break
		}
	}
	pcb.master.Unlock()
	return tid
}

// ExitThread terminates the calling user thread. The main thread takes the
// exitMainThread path instead. Does not return.
func (k *Kernel) ExitThread(t *Thread) {
	pcb := t.Process()
	if t == pcb.mainThread {
		k.exitMainThread(t)
	}
	k.threadExit(t)
}

// threadExit releases a spawned thread's stack, leaves the thread list,
// wakes its joiner, and nudges a process exiter waiting to be last.
func (k *Kernel) threadExit(t *Thread) {
	pcb := t.Process()

	if t.hasUserStackPage {
		pd := pcb.pagedir.Load()
		if frame := pd.GetPage(t.userStackPage); frame != nil {
			k.pool.FreePage(frame)
			pd.ClearPage(t.userStackPage)
		}
		t.hasUserStackPage = false
	}

	pcb.master.Lock()
	for i, other := range pcb.threads {
		if other == t {
			pcb.threads = append(pcb.threads[:i], pcb.threads[i+1:]...)
			break
		}
	}
	pcb.master.Unlock()

	t.joinStatus.joinSema.Up()

	pcb.master.Lock()
	if len(pcb.threads) == 1 {
		pcb.exitCond.Signal()
	}
	pcb.master.Unlock()

	t.Exit()
}

// exitMainThread handles the main thread explicitly leaving: it first
// joins every live unjoined peer so their stacks are collected, then exits
// the whole process with status 0.
//
// The master lock is dropped around each join, so the join-status list can
// change between picks; each iteration rescans from the current list
// state.
func (k *Kernel) exitMainThread(t *Thread) {
	pcb := t.Process()

	t.joinStatus.joinSema.Up()

	pcb.master.Lock()
	for {
		var peer *JoinStatus
		for _, s := range pcb.joinStatuses {
			if !s.wasJoined && s.tid != t.tid {
				peer = s
				break
			}
		}
		if peer == nil {
			break
		}
		peer.wasJoined = true
		for i, s := range pcb.joinStatuses {
			if s == peer {
				pcb.joinStatuses = append(pcb.joinStatuses[:i], pcb.joinStatuses[i+1:]...)
				break
			}
		}
		pcb.master.Unlock()
		peer.joinSema.Down()
		pcb.master.Lock()
	}
	pcb.master.Unlock()

	k.Exit(t, 0)
}
