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

// Package syscalls is the interface from user programs to the kernel: the
// single trap entry point, per-call argument validation against the user
// address space, and the closed table of services.
package syscalls

import (
	"github.com/marmot-os/marmot/pkg/abi/sysno"
	"github.com/marmot-os/marmot/pkg/arch"
	"github.com/marmot-os/marmot/pkg/kernel"
	"github.com/marmot-os/marmot/pkg/usermem"
	"github.com/marmot-os/marmot/pkg/vaddr"
)

// Fn services one system call, reading arguments from the user stack at
// f.ESP and leaving the result in the frame.
type Fn func(t *kernel.Thread, f *arch.TrapFrame)

// Syscall is one table entry.
type Syscall struct {
	Name string
	Fn   Fn
}

var table = [sysno.Max]Syscall{
	sysno.Halt:     {"halt", sysHalt},
	sysno.Exit:     {"exit", sysExit},
	sysno.Exec:     {"exec", sysExec},
	sysno.Wait:     {"wait", sysWait},
	sysno.Create:   {"create", sysCreate},
	sysno.Remove:   {"remove", sysRemove},
	sysno.Open:     {"open", sysOpen},
	sysno.Filesize: {"filesize", sysFilesize},
	sysno.Read:     {"read", sysRead},
	sysno.Write:    {"write", sysWrite},
	sysno.Seek:     {"seek", sysSeek},
	sysno.Tell:     {"tell", sysTell},
	sysno.Close:    {"close", sysClose},
	sysno.Practice: {"practice", sysPractice},
}

// Info describes one table entry for introspection.
type Info struct {
	Number uint32
	Name   string
}

// Table lists the registered system calls in number order.
func Table() []Info {
	out := make([]Info, 0, len(table))
	for n, s := range table {
		if s.Fn != nil {
			out = append(out, Info{Number: uint32(n), Name: s.Name})
		}
	}
	return out
}

// Handle services a trap from user space. The user stack pointer in f
// addresses the call number word followed by up to three argument words.
func Handle(t *kernel.Thread, f *arch.TrapFrame) {
	pd := t.Process().PageDir()
	if !usermem.ValidRange(pd, vaddr.Addr(f.ESP), 4) {
		fail(t, f)
	}
	nr, _ := usermem.ReadUint32(pd, vaddr.Addr(f.ESP))
	if nr >= sysno.Max || table[nr].Fn == nil {
		// Outside the closed set there is nothing to do; the frame is
		// returned unchanged.
		return
	}
	table[nr].Fn(t, f)
}

// fail is the unified validation-failure path: report -1 to a user that
// will never see it, then kill the process. Does not return.
func fail(t *kernel.Thread, f *arch.TrapFrame) {
	f.SetReturn(^uint32(0))
	t.Kernel().Exit(t, -1)
}

// requireArgs validates that n argument words after the call number are
// mapped user memory, killing the process otherwise.
func requireArgs(t *kernel.Thread, f *arch.TrapFrame, n uint32) {
	pd := t.Process().PageDir()
	if !usermem.ValidRange(pd, vaddr.Addr(f.ESP)+4, 4*n) {
		fail(t, f)
	}
}

// arg reads argument word i (1-based) from the user stack. Callers must
// have validated the slot with requireArgs.
func arg(t *kernel.Thread, f *arch.TrapFrame, i uint32) uint32 {
	pd := t.Process().PageDir()
	v, _ := usermem.ReadUint32(pd, vaddr.Addr(f.ESP)+vaddr.Addr(4*i))
	return v
}

// stringArg validates and copies in the NUL-terminated string whose
// address is argument word i, killing the process on a bad pointer.
func stringArg(t *kernel.Thread, f *arch.TrapFrame, i uint32) string {
	pd := t.Process().PageDir()
	ptr := vaddr.Addr(arg(t, f, i))
	s, ok := usermem.CopyInString(pd, ptr)
	if !ok {
		fail(t, f)
	}
	return s
}

// bufferArg validates the user buffer described by argument words i
// (pointer) and i+1 (length), returning its address and length.
func bufferArg(t *kernel.Thread, f *arch.TrapFrame, i uint32) (vaddr.Addr, uint32) {
	pd := t.Process().PageDir()
	buf := vaddr.Addr(arg(t, f, i))
	n := arg(t, f, i+1)
	if !usermem.ValidRange(pd, buf, n) {
		fail(t, f)
	}
	return buf, n
}

func sysHalt(t *kernel.Thread, f *arch.TrapFrame) {
	t.Kernel().Halt()
}

func sysExit(t *kernel.Thread, f *arch.TrapFrame) {
	requireArgs(t, f, 1)
	status := arg(t, f, 1)
	f.SetReturn(status)
	t.Kernel().Exit(t, int32(status))
}

func sysPractice(t *kernel.Thread, f *arch.TrapFrame) {
	requireArgs(t, f, 1)
	f.SetReturn(arg(t, f, 1) + 1)
}

func sysExec(t *kernel.Thread, f *arch.TrapFrame) {
	requireArgs(t, f, 1)
	cmdline := stringArg(t, f, 1)
	f.SetReturn(uint32(t.Kernel().Execute(t, cmdline)))
}

func sysWait(t *kernel.Thread, f *arch.TrapFrame) {
	requireArgs(t, f, 1)
	pid := kernel.TID(arg(t, f, 1))
	f.SetReturn(uint32(t.Kernel().Wait(t, pid)))
}

func sysCreate(t *kernel.Thread, f *arch.TrapFrame) {
	requireArgs(t, f, 2)
	path := stringArg(t, f, 1)
	size := arg(t, f, 2)

	k := t.Kernel()
	k.FileLock().Lock()
	err := k.Filesys().Create(path, size)
	k.FileLock().Unlock()
	f.SetReturn(boolRet(err == nil))
}

func sysRemove(t *kernel.Thread, f *arch.TrapFrame) {
	requireArgs(t, f, 1)
	path := stringArg(t, f, 1)

	k := t.Kernel()
	k.FileLock().Lock()
	err := k.Filesys().Remove(path)
	k.FileLock().Unlock()
	f.SetReturn(boolRet(err == nil))
}

func sysOpen(t *kernel.Thread, f *arch.TrapFrame) {
	requireArgs(t, f, 1)
	path := stringArg(t, f, 1)
	f.SetReturn(uint32(t.Kernel().OpenFD(t, path)))
}

func sysClose(t *kernel.Thread, f *arch.TrapFrame) {
	requireArgs(t, f, 1)
	t.Kernel().CloseFD(t, int32(arg(t, f, 1)))
}

func sysFilesize(t *kernel.Thread, f *arch.TrapFrame) {
	requireArgs(t, f, 1)
	k := t.Kernel()
	file := k.LookupFD(t, int32(arg(t, f, 1)))
	if file == nil {
		f.SetReturn(^uint32(0))
		return
	}
	k.FileLock().Lock()
	n := file.Length()
	k.FileLock().Unlock()
	f.SetReturn(uint32(n))
}

func sysRead(t *kernel.Thread, f *arch.TrapFrame) {
	requireArgs(t, f, 3)
	fd := int32(arg(t, f, 1))
	buf, n := bufferArg(t, f, 2)
	k := t.Kernel()
	pd := t.Process().PageDir()

	if fd == kernel.StdinFD {
		in := k.Input()
		if in == nil {
			f.SetReturn(^uint32(0))
			return
		}
		for i := uint32(0); i < n; i++ {
			b := [1]byte{in.Getc()}
			usermem.CopyOut(pd, buf+vaddr.Addr(i), b[:])
		}
		f.SetReturn(n)
		return
	}

	file := k.LookupFD(t, fd)
	if file == nil {
		f.SetReturn(^uint32(0))
		return
	}
	data := make([]byte, n)
	k.FileLock().Lock()
	read := file.Read(data)
	k.FileLock().Unlock()
	usermem.CopyOut(pd, buf, data[:read])
	f.SetReturn(uint32(read))
}

func sysWrite(t *kernel.Thread, f *arch.TrapFrame) {
	requireArgs(t, f, 3)
	fd := int32(arg(t, f, 1))
	buf, n := bufferArg(t, f, 2)
	k := t.Kernel()
	pd := t.Process().PageDir()

	if fd == kernel.StdoutFD {
		data := make([]byte, n)
		usermem.CopyIn(pd, buf, data)
		k.Console().PutBuf(data)
		f.SetReturn(n)
		return
	}

	file := k.LookupFD(t, fd)
	if file == nil {
		f.SetReturn(0)
		return
	}
	data := make([]byte, n)
	usermem.CopyIn(pd, buf, data)
	k.FileLock().Lock()
	written := file.Write(data)
	k.FileLock().Unlock()
	f.SetReturn(uint32(written))
}

func sysSeek(t *kernel.Thread, f *arch.TrapFrame) {
	requireArgs(t, f, 2)
	k := t.Kernel()
	file := k.LookupFD(t, int32(arg(t, f, 1)))
	if file == nil {
		return
	}
	k.FileLock().Lock()
	file.Seek(int32(arg(t, f, 2)))
	k.FileLock().Unlock()
}

func sysTell(t *kernel.Thread, f *arch.TrapFrame) {
	requireArgs(t, f, 1)
	k := t.Kernel()
	file := k.LookupFD(t, int32(arg(t, f, 1)))
	if file == nil {
		f.SetReturn(^uint32(0))
		return
	}
	k.FileLock().Lock()
	pos := file.Tell()
	k.FileLock().Unlock()
	f.SetReturn(uint32(pos))
}

func boolRet(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
