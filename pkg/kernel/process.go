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
	"fmt"
	"strings"
	stdsync "sync"
	"sync/atomic"

	"github.com/marmot-os/marmot/pkg/arch"
	"github.com/marmot-os/marmot/pkg/fs"
	"github.com/marmot-os/marmot/pkg/loader"
	"github.com/marmot-os/marmot/pkg/paging"
)

// Process is the process control block: the per-process record shared by
// all of the process's threads.
type Process struct {
	// pagedir is the process address space. It is an atomic pointer
	// because Activate may read it at any instant from any thread; it
	// must be nil before the PCB is published to a thread and must be
	// reset to nil before the directory is destroyed.
	pagedir atomic.Pointer[paging.PageDirectory]

	// name is the program-name token of the command line, at most 15
	// bytes. It appears in the exit line.
	name string

	mainThread *Thread

	// master guards threads, joinStatuses, fds, children membership,
	// isExiting, and the exit condition variable.
	master       stdsync.Mutex
	exitCond     *stdsync.Cond
	isExiting    bool
	threads      []*Thread
	joinStatuses []*JoinStatus

	children  []*ProcStatus
	ownStatus *ProcStatus

	fds    []*FileDesc
	nextFD uint32

	// execFile stays open, with writes denied, for the process's
	// lifetime.
	execFile fs.File

	// Synthetic user-space code addresses handed to spawned threads as
	// their stub and function pointers.
	stubAddr   uint32
	nextFnAddr uint32
}

// Name returns the process display name.
func (p *Process) Name() string {
	return p.name
}

// Pid returns the process id: the TID of the main thread.
func (p *Process) Pid() TID {
	return p.mainThread.tid
}

// PageDir returns the process's address space, nil when the process has
// none installed.
func (p *Process) PageDir() *paging.PageDirectory {
	return p.pagedir.Load()
}

// progName returns the program-name token of a command line.
func progName(cmdline string) string {
	if i := strings.IndexByte(cmdline, ' '); i >= 0 {
		cmdline = cmdline[:i]
	}
	return truncateName(cmdline)
}

// Execute starts a new process running the given command line on behalf of
// the calling thread. It does not return until the child's load has either
// succeeded or failed; on success the child pid is returned and the shared
// status record is linked onto the caller's child list, on failure the
// result is TIDError.
func (k *Kernel) Execute(t *Thread, cmdline string) TID {
	parent := t.Process()
	status := newProcStatus(parent)

	k.createThread(progName(cmdline), func(child *Thread) {
		k.startProcess(child, cmdline, status)
	})

	// Wait for the child to finish loading. The child must not be
	// trusted with the command line after this rendezvous; it owns its
	// own copy.
	status.waitSema.Down()

	pid := status.pid
	if pid == TIDError {
		// No child reference remains; the record dies here.
		return TIDError
	}
	parent.master.Lock()
	parent.children = append(parent.children, status)
	parent.master.Unlock()
	return pid
}

// startProcess is the child half of Execute: build a PCB, load the
// executable, report the outcome, and either die or enter user mode.
func (k *Kernel) startProcess(t *Thread, cmdline string, status *ProcStatus) {
	// The pagedir field must still be nil when the PCB becomes visible
	// through the thread, so a concurrently running Activate falls back
	// to the kernel-only directory.
	pcb := &Process{name: t.name, mainThread: t}
	pcb.exitCond = stdsync.NewCond(&pcb.master)
	t.pcb.Store(pcb)

	tf := arch.NewUserTrapFrame()

	pd := paging.NewDirectory(k.pool)
	pcb.pagedir.Store(pd)
	k.Activate(t)

	res, err := loader.Load(loader.Params{
		Filesys:  k.filesys,
		FileLock: &k.fileLock,
		Pool:     k.pool,
		Dir:      pd,
		Cmdline:  cmdline,
		Console:  k.console,
	})
	if err != nil {
		k.log.WithField("cmdline", cmdline).WithError(err).Debug("load failed")

		// Tear the partial address space down in activation-safe
		// order, then unpublish the PCB before it becomes garbage.
		pcb.pagedir.Store(nil)
		paging.Activate(nil)
		pd.Destroy()
		t.pcb.Store(nil)

		status.waitSema.Up()
		t.Exit()
	}

	tf.EIP = res.Entry
	tf.ESP = res.SP

	pcb.execFile = res.File
	pcb.ownStatus = status
	pcb.nextFD = firstFD
	pcb.threads = []*Thread{t}
	js := &JoinStatus{tid: t.tid}
	t.joinStatus = js
	pcb.joinStatuses = []*JoinStatus{js}

	status.pid = t.tid
	status.waitSema.Up()

	k.enterUserMode(t, tf)
}

// Wait blocks until the child with the given pid exits and returns its
// exit status. Returns -1 for unknown, non-child, or already-reaped pids.
func (k *Kernel) Wait(t *Thread, pid TID) int32 {
	pcb := t.Process()

	pcb.master.Lock()
	var status *ProcStatus
	for _, cs := range pcb.children {
		if cs.pid == pid {
			status = cs
			break
		}
	}
	pcb.master.Unlock()
	if status == nil {
		return -1
	}

	status.waitSema.Down()
	exitStatus := status.exitStatus

	// Reap: unlink the record now so a second wait on this pid finds
	// nothing, even when the child still holds the last reference.
	pcb.master.Lock()
	for i, cs := range pcb.children {
		if cs == status {
			pcb.children = append(pcb.children[:i], pcb.children[i+1:]...)
			break
		}
	}
	pcb.master.Unlock()

	status.Release(true)
	return exitStatus
}

// Exit tears the calling thread's process down with the given status. If a
// sibling thread is already running the teardown, the caller takes the
// per-thread exit path instead. Exit does not return.
func (k *Kernel) Exit(t *Thread, status int32) {
	pcb := t.Process()
	if pcb == nil {
		t.Exit()
	}

	pcb.master.Lock()
	if pcb.isExiting {
		pcb.master.Unlock()
		k.threadExit(t)
	}
	pcb.isExiting = true
	for len(pcb.threads) > 1 {
		pcb.exitCond.Wait()
	}
	pcb.master.Unlock()

	pcb.joinStatuses = nil

	pcb.master.Lock()
	children := pcb.children
	pcb.children = nil
	pcb.master.Unlock()
	for _, cs := range children {
		cs.Release(true)
	}

	k.closeAllFDs(pcb)

	if pcb.execFile != nil {
		k.fileLock.Lock()
		pcb.execFile.Close()
		k.fileLock.Unlock()
	}

	pcb.ownStatus.exitStatus = status
	pcb.ownStatus.waitSema.Up()
	pcb.ownStatus.Release(false)

	k.console.PutBuf([]byte(fmt.Sprintf("%s: exit(%d)\n", pcb.name, status)))

	// Activation-safe teardown: clear the pointer, switch to the
	// kernel-only directory, only then destroy the old one.
	if pd := pcb.pagedir.Load(); pd != nil {
		pcb.pagedir.Store(nil)
		paging.Activate(nil)
		pd.Destroy()
	}

	t.pcb.Store(nil)
	k.log.WithFields(map[string]any{"name": pcb.name, "pid": pcb.Pid(), "status": status}).Debug("process exited")
	t.Exit()
}
