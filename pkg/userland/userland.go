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

// Package userland carries the built-in user programs and the executable
// images that stand in for their compiled binaries on the boot disk.
package userland

import (
	"fmt"

	"github.com/marmot-os/marmot/pkg/abi/elf"
	"github.com/marmot-os/marmot/pkg/abi/sysno"
	"github.com/marmot-os/marmot/pkg/fs/memfs"
	"github.com/marmot-os/marmot/pkg/kernel"
)

// Image base for built-in programs.
const textBase = 0x08048000

// Image returns a minimal valid executable image: one read-only text
// segment and an entry point at its base. The loader validates and maps it
// like any binary; the registered program body supplies the behavior.
func Image() []byte {
	text := make([]byte, 128)
	for i := range text {
		text[i] = 0x90
	}
	return elf.Build(textBase, []elf.Segment{{Vaddr: textBase, Data: text}})
}

// Puts writes s to the console through the write system call, from a copy
// placed in the program's own stack memory.
func Puts(u *kernel.UserContext, s string) {
	addr := u.PushBytes([]byte(s))
	u.Syscall(sysno.Write, uint32(kernel.StdoutFD), uint32(addr), uint32(len(s)))
}

// Echo prints its argument count and each argument, one per line.
func Echo(u *kernel.UserContext) int32 {
	argc, argv := u.Args()
	Puts(u, fmt.Sprintf("argc=%d\n", argc))
	for i, a := range argv {
		Puts(u, fmt.Sprintf("argv[%d]=%s\n", i, a))
	}
	return 0
}

// Cat copies each named file to the console.
func Cat(u *kernel.UserContext) int32 {
	_, argv := u.Args()
	for _, name := range argv[1:] {
		nameAddr := u.PushString(name)
		fd := u.Syscall(sysno.Open, uint32(nameAddr))
		if fd < 0 {
			Puts(u, fmt.Sprintf("cat: %s: open failed\n", name))
			return 1
		}
		buf := u.Reserve(512)
		for {
			n := u.Syscall(sysno.Read, uint32(fd), uint32(buf), 512)
			if n <= 0 {
				break
			}
			u.Syscall(sysno.Write, uint32(kernel.StdoutFD), uint32(buf), uint32(n))
		}
		u.Syscall(sysno.Close, uint32(fd))
	}
	return 0
}

// Install registers the built-in programs with the kernel and places
// their images on the boot disk.
func Install(k *kernel.Kernel, disk *memfs.Filesystem) {
	for name, body := range map[string]kernel.UserFunc{
		"echo": Echo,
		"cat":  Cat,
	} {
		disk.Install(name, Image())
		k.RegisterProgram(name, body)
	}
}
