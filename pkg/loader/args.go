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

package loader

import (
	"errors"
	"strings"

	"github.com/marmot-os/marmot/pkg/paging"
	"github.com/marmot-os/marmot/pkg/usermem"
	"github.com/marmot-os/marmot/pkg/vaddr"
)

// ErrArgsTooLong means the argument strings and vector did not fit on the
// stack page.
var ErrArgsTooLong = errors.New("loader: arguments overflow the stack")

// PackArgs splits the command line into tokens and lays them out on the
// user stack per the i386 C ABI, returning the final stack pointer. At
// entry the stack holds, from the returned pointer upward: a zero fake
// return address, argc, the argv pointer, alignment padding, the argv
// array (argc+1 slots, NULL-terminated), and the token strings.
func PackArgs(pd *paging.PageDirectory, cmdline string, sp vaddr.Addr) (vaddr.Addr, error) {
	tokens := strings.Fields(cmdline)
	argc := uint32(len(tokens))

	// Token strings, first token highest.
	addrs := make([]uint32, argc)
	for i, tok := range tokens {
		sp -= vaddr.Addr(len(tok) + 1)
		if !usermem.CopyOut(pd, sp, append([]byte(tok), 0)) {
			return 0, ErrArgsTooLong
		}
		addrs[i] = uint32(sp)
	}

	// argv array, argc+1 pointer slots ending in NULL.
	argvBase := sp - vaddr.Addr(4*(argc+1))
	for i := uint32(0); i < argc; i++ {
		if !usermem.WriteUint32(pd, argvBase+vaddr.Addr(4*i), addrs[i]) {
			return 0, ErrArgsTooLong
		}
	}
	if !usermem.WriteUint32(pd, argvBase+vaddr.Addr(4*argc), 0) {
		return 0, ErrArgsTooLong
	}
	sp = argvBase

	// Alignment padding: after argv and argc are pushed the frame must
	// sit on a 16-byte boundary. The stack page arrives zeroed, so the
	// padding bytes need no explicit clear.
	pad := (uint32(argvBase) - 4 - 4) % 16
	sp -= vaddr.Addr(pad)

	// argv, argc, fake return address.
	sp -= 4
	if !usermem.WriteUint32(pd, sp, uint32(argvBase)) {
		return 0, ErrArgsTooLong
	}
	sp -= 4
	if !usermem.WriteUint32(pd, sp, argc) {
		return 0, ErrArgsTooLong
	}
	sp -= 4
	if !usermem.WriteUint32(pd, sp, 0) {
		return 0, ErrArgsTooLong
	}
	return sp, nil
}
