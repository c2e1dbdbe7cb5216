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
	"bytes"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmot-os/marmot/pkg/abi/elf"
	"github.com/marmot-os/marmot/pkg/devices"
	"github.com/marmot-os/marmot/pkg/fs/memfs"
	"github.com/marmot-os/marmot/pkg/paging"
	"github.com/marmot-os/marmot/pkg/usermem"
	"github.com/marmot-os/marmot/pkg/vaddr"
)

type loadEnv struct {
	disk    *memfs.Filesystem
	pool    *paging.Pool
	dir     *paging.PageDirectory
	console *bytes.Buffer
	lock    sync.Mutex
}

func newLoadEnv() *loadEnv {
	env := &loadEnv{
		disk:    memfs.New(),
		pool:    paging.NewPool(64),
		console: &bytes.Buffer{},
	}
	env.dir = paging.NewDirectory(env.pool)
	return env
}

func (env *loadEnv) params(cmdline string) Params {
	return Params{
		Filesys:  env.disk,
		FileLock: &env.lock,
		Pool:     env.pool,
		Dir:      env.dir,
		Cmdline:  cmdline,
		Console:  devices.NewConsole(env.console),
	}
}

func readWord(t *testing.T, pd *paging.PageDirectory, a vaddr.Addr) uint32 {
	t.Helper()
	v, ok := usermem.ReadUint32(pd, a)
	require.True(t, ok)
	return v
}

func TestLoadSuccess(t *testing.T) {
	env := newLoadEnv()
	text := []byte{0xb8, 0x01, 0x00, 0x00, 0x00, 0xcd, 0x30}
	img := elf.Build(0x08048000, []elf.Segment{
		{Vaddr: 0x08048000, Data: text},
		{Vaddr: 0x08050000, Data: []byte("data"), Memsz: 2 * vaddr.PageSize, Writable: true},
	})
	env.disk.Install("prog", img)

	res, err := Load(env.params("prog"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0x08048000), res.Entry)
	require.NotNil(t, res.File)

	// Executable writes are denied for the process's lifetime.
	assert.True(t, env.disk.WriteDenied("prog"))

	// Text bytes are in place and the text page is read-only.
	got := make([]byte, len(text))
	require.True(t, usermem.CopyIn(env.dir, 0x08048000, got))
	assert.Equal(t, text, got)
	assert.False(t, env.dir.Writable(0x08048000))

	// Data segment: file bytes then zero fill through memsz, writable.
	got = make([]byte, 8)
	require.True(t, usermem.CopyIn(env.dir, 0x08050000, got))
	assert.Equal(t, []byte("data\x00\x00\x00\x00"), got)
	assert.True(t, env.dir.Writable(0x08050000))
	assert.NotNil(t, env.dir.GetPage(0x08050000+vaddr.PageSize))

	// Stack page sits at the top of user memory.
	assert.NotNil(t, env.dir.GetPage(vaddr.UserStackTop-vaddr.PageSize))

	res.File.Close()
	assert.False(t, env.disk.WriteDenied("prog"))
}

func TestLoadOpenFailed(t *testing.T) {
	env := newLoadEnv()
	_, err := Load(env.params("missing arg"))
	require.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, "load: missing: open failed\n", env.console.String())
}

func TestLoadRejectsBadImages(t *testing.T) {
	goodText := elf.Segment{Vaddr: 0x08048000, Data: []byte{0x90}}

	tests := []struct {
		name string
		img  []byte
	}{
		{"not an elf", []byte("#!/bin/sh\n")},
		{"truncated header", elf.Build(0x08048000, []elf.Segment{goodText})[:20]},
		{"dynamic segment", func() []byte {
			img := elf.Build(0x08048000, []elf.Segment{goodText})
			// Rewrite the program header type to PT_DYNAMIC.
			binary.LittleEndian.PutUint32(img[elf.EhdrSize:], elf.PTDynamic)
			return img
		}()},
		{"memsz below filesz", func() []byte {
			img := elf.Build(0x08048000, []elf.Segment{{Vaddr: 0x08048000, Data: make([]byte, 64)}})
			// p_memsz is the 6th word of the program header.
			binary.LittleEndian.PutUint32(img[elf.EhdrSize+20:], 8)
			return img
		}()},
		{"maps page zero", elf.Build(0x200, []elf.Segment{{Vaddr: 0x200, Data: []byte{0x90}}})},
		{"kernel vaddr", elf.Build(0xC0000000, []elf.Segment{{Vaddr: 0xC0000000, Data: []byte{0x90}}})},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newLoadEnv()
			env.disk.Install("prog", tc.img)
			_, err := Load(env.params("prog"))
			require.ErrorIs(t, err, ErrBadExecutable)
			// A failed load releases the executable.
			assert.False(t, env.disk.WriteDenied("prog"))
		})
	}
}

func TestLoadOutOfMemory(t *testing.T) {
	env := newLoadEnv()
	env.pool = paging.NewPool(1)
	env.dir = paging.NewDirectory(env.pool)
	img := elf.Build(0x08048000, []elf.Segment{
		{Vaddr: 0x08048000, Data: make([]byte, 3*vaddr.PageSize)},
	})
	env.disk.Install("prog", img)

	_, err := Load(env.params("prog"))
	require.ErrorIs(t, err, ErrNoMemory)
}

func TestPackArgs(t *testing.T) {
	pool := paging.NewPool(4)
	pd := paging.NewDirectory(pool)
	require.True(t, pd.SetPage(vaddr.UserStackTop-vaddr.PageSize, pool.GetPage(true), true))

	sp, err := PackArgs(pd, "echo x y z", vaddr.UserStackTop)
	require.NoError(t, err)

	// Frame from the final stack pointer upward: fake return address,
	// argc, argv.
	assert.Equal(t, uint32(0), readWord(t, pd, sp))
	argc := readWord(t, pd, sp+4)
	require.Equal(t, uint32(4), argc)
	argvBase := vaddr.Addr(readWord(t, pd, sp+8))

	want := []string{"echo", "x", "y", "z"}
	for i, tok := range want {
		strAddr := vaddr.Addr(readWord(t, pd, argvBase+vaddr.Addr(4*i)))
		s, ok := usermem.CopyInString(pd, strAddr)
		require.True(t, ok)
		assert.Equal(t, tok, s)
	}
	assert.Equal(t, uint32(0), readWord(t, pd, argvBase+16))

	// Alignment: with argv and argc pushed, the frame below argv sits on
	// a 16-byte boundary, i.e. the post-push pointer before the fake
	// return address is 16-aligned.
	assert.Equal(t, uint32(0), uint32(sp+4)%16)

	// The first token string is the highest, immediately under the top.
	str0 := readWord(t, pd, argvBase)
	assert.Equal(t, uint32(vaddr.UserStackTop)-5, str0)
}

func TestPackArgsCollapsesSpaces(t *testing.T) {
	pool := paging.NewPool(4)
	pd := paging.NewDirectory(pool)
	require.True(t, pd.SetPage(vaddr.UserStackTop-vaddr.PageSize, pool.GetPage(true), true))

	sp, err := PackArgs(pd, "prog  a", vaddr.UserStackTop)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), readWord(t, pd, sp+4))
}

func TestPackArgsOverflow(t *testing.T) {
	pool := paging.NewPool(4)
	pd := paging.NewDirectory(pool)
	require.True(t, pd.SetPage(vaddr.UserStackTop-vaddr.PageSize, pool.GetPage(true), true))

	big := make([]byte, 2*vaddr.PageSize)
	for i := range big {
		big[i] = 'a'
	}
	_, err := PackArgs(pd, "prog "+string(big), vaddr.UserStackTop)
	require.ErrorIs(t, err, ErrArgsTooLong)
}
