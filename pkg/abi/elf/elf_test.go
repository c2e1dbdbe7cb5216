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

package elf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDecode(t *testing.T) {
	img := Build(0x08048000, []Segment{
		{Vaddr: 0x08048000, Data: []byte{1, 2, 3, 4}},
		{Vaddr: 0x08050000, Data: []byte{5, 6}, Memsz: 0x2000, Writable: true},
	})

	ehdr, err := DecodeEhdr(img)
	require.NoError(t, err)
	assert.True(t, ehdr.CheckIdent())
	assert.Equal(t, uint32(0x08048000), ehdr.Entry)
	require.Equal(t, uint16(2), ehdr.Phnum)

	p0, err := DecodePhdr(img[ehdr.Phoff:])
	require.NoError(t, err)
	assert.Equal(t, uint32(PTLoad), p0.Type)
	assert.Equal(t, uint32(0x08048000), p0.Vaddr)
	assert.Equal(t, uint32(4), p0.Filesz)
	assert.Equal(t, uint32(4), p0.Memsz)
	assert.Zero(t, p0.Flags&PFW)
	// The loader requires file offset and vaddr to agree mod page size.
	assert.Equal(t, p0.Vaddr&0xFFF, p0.Off&0xFFF)
	assert.Equal(t, []byte{1, 2, 3, 4}, img[p0.Off:p0.Off+4])

	p1, err := DecodePhdr(img[ehdr.Phoff+PhdrSize:])
	require.NoError(t, err)
	assert.Equal(t, uint32(0x2000), p1.Memsz)
	assert.NotZero(t, p1.Flags&PFW)
	assert.Equal(t, p1.Vaddr&0xFFF, p1.Off&0xFFF)
	assert.Equal(t, []byte{5, 6}, img[p1.Off:p1.Off+2])
}

func TestCheckIdent(t *testing.T) {
	img := Build(0x08048000, nil)
	ehdr, err := DecodeEhdr(img)
	require.NoError(t, err)
	require.True(t, ehdr.CheckIdent())

	bad := ehdr
	bad.Ident[0] = 'X'
	assert.False(t, bad.CheckIdent())

	bad = ehdr
	bad.Type = 1 // relocatable, not executable
	assert.False(t, bad.CheckIdent())

	bad = ehdr
	bad.Machine = 0x3e // x86-64
	assert.False(t, bad.CheckIdent())

	bad = ehdr
	bad.Phentsize = 56
	assert.False(t, bad.CheckIdent())

	bad = ehdr
	bad.Phnum = MaxPhnum + 1
	assert.False(t, bad.CheckIdent())
}

func TestDecodeTruncated(t *testing.T) {
	_, err := DecodeEhdr(make([]byte, EhdrSize-1))
	assert.ErrorIs(t, err, ErrTruncated)
	_, err = DecodePhdr(make([]byte, PhdrSize-1))
	assert.ErrorIs(t, err, ErrTruncated)
}
