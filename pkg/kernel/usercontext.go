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

	"github.com/marmot-os/marmot/pkg/arch"
	"github.com/marmot-os/marmot/pkg/usermem"
	"github.com/marmot-os/marmot/pkg/vaddr"
)

// UserFunc is the body of a user program. It runs with the program's
// packed argument stack installed and sees memory only through the
// UserContext. Its return value becomes the process exit status, exactly
// as a C runtime calls exit(main(...)).
type UserFunc func(*UserContext) int32

// UserThreadFunc is the body of a spawned user thread.
type UserThreadFunc func(*UserContext, uint32)

// UserContext is the user-mode execution environment of one thread: the
// trap frame it entered user mode with, plus the trap instruction.
type UserContext struct {
	k  *Kernel
	t  *Thread
	tf *arch.TrapFrame
}

// enterUserMode runs the registered program body for t's process and, if
// the body returns, exits the process with its return value.
func (k *Kernel) enterUserMode(t *Thread, tf *arch.TrapFrame) {
	body := k.lookupProgram(t.Process().name)
	uc := &UserContext{k: k, t: t, tf: tf}
	var status int32
	if body != nil {
		status = body(uc)
	}
	k.Exit(t, status)
}

// enterUserThread runs a spawned thread body and, if it returns, exits the
// thread, the way the user-level stub wraps the thread function.
func (k *Kernel) enterUserThread(t *Thread, tf *arch.TrapFrame, body UserThreadFunc, arg uint32) {
	uc := &UserContext{k: k, t: t, tf: tf}
	body(uc, arg)
	k.ExitThread(t)
}

// Thread returns the thread executing this context.
func (u *UserContext) Thread() *Thread {
	return u.t
}

// ESP returns the current user stack pointer.
func (u *UserContext) ESP() uint32 {
	return u.tf.ESP
}

// Syscall pushes the call number and arguments onto the user stack and
// traps into the kernel. The result is read back from the return-value
// register. Syscalls that terminate the thread do not return.
func (u *UserContext) Syscall(nr uint32, args ...uint32) int32 {
	pd := u.t.Process().pagedir.Load()
	words := make([]uint32, 0, 4)
	words = append(words, nr)
	words = append(words, args...)

	sp := vaddr.Addr(u.tf.ESP) - vaddr.Addr(4*len(words))
	var b [4]byte
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[:], w)
		usermem.CopyOut(pd, sp+vaddr.Addr(4*i), b[:])
	}

	saved := u.tf.ESP
	u.tf.ESP = uint32(sp)
	u.k.dispatch(u.t, u.tf)
	u.tf.ESP = saved
	return int32(u.tf.EAX)
}

// TrapAt traps into the kernel with ESP pointing at an arbitrary address,
// without writing anything to memory first. It exists for user code that
// deliberately traps with a bogus stack pointer.
func (u *UserContext) TrapAt(esp uint32) int32 {
	saved := u.tf.ESP
	u.tf.ESP = esp
	u.k.dispatch(u.t, u.tf)
	u.tf.ESP = saved
	return int32(u.tf.EAX)
}

// PushBytes copies b onto the user stack and returns its address. User
// programs use it to place buffers and strings in their own memory before
// passing pointers to the kernel.
func (u *UserContext) PushBytes(b []byte) vaddr.Addr {
	pd := u.t.Process().pagedir.Load()
	u.tf.ESP -= uint32(len(b))
	addr := vaddr.Addr(u.tf.ESP)
	usermem.CopyOut(pd, addr, b)
	return addr
}

// PushString places a NUL-terminated string on the user stack.
func (u *UserContext) PushString(s string) vaddr.Addr {
	return u.PushBytes(append([]byte(s), 0))
}

// Reserve carves n bytes off the user stack and returns the base address,
// for buffers the kernel will fill.
func (u *UserContext) Reserve(n uint32) vaddr.Addr {
	u.tf.ESP -= n
	return vaddr.Addr(u.tf.ESP)
}

// ReadBytes copies n bytes out of the thread's user memory.
func (u *UserContext) ReadBytes(addr vaddr.Addr, n uint32) []byte {
	pd := u.t.Process().pagedir.Load()
	b := make([]byte, n)
	if !usermem.CopyIn(pd, addr, b) {
		return nil
	}
	return b
}

// Args reads argc and argv back off the packed startup stack: on entry ESP
// points at the fake return address, with argc and the argv pointer above
// it.
func (u *UserContext) Args() (int32, []string) {
	pd := u.t.Process().pagedir.Load()
	esp := vaddr.Addr(u.tf.ESP)

	argc, ok := usermem.ReadUint32(pd, esp+4)
	if !ok {
		return 0, nil
	}
	argvBase, ok := usermem.ReadUint32(pd, esp+8)
	if !ok {
		return 0, nil
	}

	argv := make([]string, 0, argc)
	for i := uint32(0); i < argc; i++ {
		sp, ok := usermem.ReadUint32(pd, vaddr.Addr(argvBase+4*i))
		if !ok {
			return 0, nil
		}
		s, ok := usermem.CopyInString(pd, vaddr.Addr(sp))
		if !ok {
			return 0, nil
		}
		argv = append(argv, s)
	}
	return int32(argc), argv
}

// SpawnThread starts a new user thread in this process, as the user-level
// thread library would through its create call.
func (u *UserContext) SpawnThread(body UserThreadFunc, arg uint32) TID {
	return u.k.SpawnThread(u.t, body, arg)
}

// JoinThread joins a thread of this process.
func (u *UserContext) JoinThread(tid TID) TID {
	return u.k.JoinThread(u.t, tid)
}

// ExitThread terminates the calling user thread; for the main thread this
// joins all peers and then exits the process. Does not return.
func (u *UserContext) ExitThread() {
	u.k.ExitThread(u.t)
}
