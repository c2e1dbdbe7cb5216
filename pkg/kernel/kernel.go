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

// Package kernel implements the userland subsystem: process and thread
// lifecycles, the per-process descriptor table, and the machinery that
// carries a trap from user space to a service and back.
package kernel

import (
	"io"
	"runtime"
	stdsync "sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/marmot-os/marmot/pkg/arch"
	"github.com/marmot-os/marmot/pkg/devices"
	"github.com/marmot-os/marmot/pkg/fs"
	"github.com/marmot-os/marmot/pkg/paging"
)

// DefaultMemoryPages is the user pool size when the configuration leaves
// it zero.
const DefaultMemoryPages = 1024

// SyscallHandler is the trap entry point installed at boot; it services
// one trap and leaves the result in the frame.
type SyscallHandler func(*Thread, *arch.TrapFrame)

// Config carries everything a kernel boots with.
type Config struct {
	// Filesys is the mounted file system.
	Filesys fs.Filesystem

	// ConsoleWriter receives console output; defaults to io.Discard.
	ConsoleWriter io.Writer

	// Input is the keyboard device; may be nil if no program reads
	// stdin.
	Input devices.Input

	// MemoryPages is the size of the user frame pool.
	MemoryPages int

	// Log is the kernel's logger; defaults to the logrus standard
	// logger.
	Log *logrus.Logger

	// Shutdown is invoked by the halt call before the calling thread
	// stops; defaults to a no-op.
	Shutdown func()
}

// Kernel ties the machine together: devices, the file system behind one
// global lock, the user frame pool, and the program registry.
type Kernel struct {
	log      *logrus.Entry
	filesys  fs.Filesystem
	fileLock stdsync.Mutex
	console  *devices.Console
	input    devices.Input
	pool     *paging.Pool
	shutdown func()

	nextTID atomic.Int32

	syscall SyscallHandler

	progMu   stdsync.Mutex
	programs map[string]UserFunc
}

// New builds a kernel from cfg.
func New(cfg Config) *Kernel {
	w := cfg.ConsoleWriter
	if w == nil {
		w = io.Discard
	}
	lg := cfg.Log
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	pages := cfg.MemoryPages
	if pages == 0 {
		pages = DefaultMemoryPages
	}
	shutdown := cfg.Shutdown
	if shutdown == nil {
		shutdown = func() {}
	}
	return &Kernel{
		log:      lg.WithField("subsys", "kernel"),
		filesys:  cfg.Filesys,
		console:  devices.NewConsole(w),
		input:    cfg.Input,
		pool:     paging.NewPool(pages),
		shutdown: shutdown,
		programs: make(map[string]UserFunc),
	}
}

// SetSyscallHandler installs the trap entry point. It must be called
// before any process runs.
func (k *Kernel) SetSyscallHandler(h SyscallHandler) {
	k.syscall = h
}

func (k *Kernel) dispatch(t *Thread, tf *arch.TrapFrame) {
	if k.syscall == nil {
		panic("kernel: no syscall handler installed")
	}
	k.syscall(t, tf)
}

// FileLock returns the global file-system lock. Every operation against
// the file system or an open file handle runs under it.
func (k *Kernel) FileLock() *stdsync.Mutex {
	return &k.fileLock
}

// Filesys returns the mounted file system.
func (k *Kernel) Filesys() fs.Filesystem {
	return k.filesys
}

// Console returns the console device.
func (k *Kernel) Console() *devices.Console {
	return k.console
}

// Input returns the keyboard device, or nil.
func (k *Kernel) Input() devices.Input {
	return k.input
}

// Pool returns the user frame pool.
func (k *Kernel) Pool() *paging.Pool {
	return k.pool
}

// RegisterProgram binds a program body to an executable name. Loading
// still requires a valid image for the name on the file system; the body
// supplies the instructions the image stands in for. A name with no body
// behaves as a program that immediately returns 0.
func (k *Kernel) RegisterProgram(name string, body UserFunc) {
	k.progMu.Lock()
	defer k.progMu.Unlock()
	k.programs[truncateName(name)] = body
}

func (k *Kernel) lookupProgram(name string) UserFunc {
	k.progMu.Lock()
	defer k.progMu.Unlock()
	return k.programs[name]
}

// Halt powers the machine off. Does not return.
func (k *Kernel) Halt() {
	k.log.Info("halting")
	k.shutdown()
	// The calling thread stops here even if the shutdown hook declines
	// to take the whole machine down.
	runtime.Goexit()
}

// Run boots the userland subsystem on the calling goroutine: it gives the
// initial thread a minimal PCB, executes the command line, and waits for
// the started process, returning its exit status. The minimal PCB is
// published with a nil page directory so the activation path is safe from
// the first instant.
func (k *Kernel) Run(cmdline string) int32 {
	t := k.bootstrapThread("main")

	pcb := &Process{}
	t.pcb.Store(pcb)
	pcb.name = t.name
	pcb.mainThread = t
	pcb.exitCond = stdsync.NewCond(&pcb.master)
	pcb.nextFD = firstFD
	js := &JoinStatus{tid: t.tid}
	t.joinStatus = js
	pcb.joinStatuses = []*JoinStatus{js}

	k.log.WithField("cmdline", cmdline).Info("booting user program")
	pid := k.Execute(t, cmdline)
	if pid == TIDError {
		return -1
	}
	return k.Wait(t, pid)
}
