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

package memfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmot-os/marmot/pkg/fs"
)

func TestOpenMissing(t *testing.T) {
	f := New()
	_, err := f.Open("nope")
	assert.ErrorIs(t, err, fs.ErrNotFound)
}

func TestCreateReadWrite(t *testing.T) {
	f := New()
	require.NoError(t, f.Create("data", 8))
	assert.ErrorIs(t, f.Create("data", 8), fs.ErrExists)

	h, err := f.Open("data")
	require.NoError(t, err)
	assert.Equal(t, int32(8), h.Length())

	assert.Equal(t, int32(5), h.Write([]byte("hello")))
	assert.Equal(t, int32(5), h.Tell())

	// Writes cannot extend the file.
	h.Seek(6)
	assert.Equal(t, int32(2), h.Write([]byte("abcd")))

	h.Seek(0)
	buf := make([]byte, 16)
	assert.Equal(t, int32(8), h.Read(buf))
	assert.Equal(t, []byte("hello\x00ab"), buf[:8])
	assert.Equal(t, int32(0), h.Read(buf))
	h.Close()
}

func TestIndependentOffsets(t *testing.T) {
	f := New()
	f.Install("sample.txt", []byte("abcdefghijklmnopqrstuvwxyz"))

	h1, err := f.Open("sample.txt")
	require.NoError(t, err)
	h2, err := f.Open("sample.txt")
	require.NoError(t, err)

	h1.Seek(9)
	buf := make([]byte, 5)
	require.Equal(t, int32(5), h2.Read(buf))
	assert.Equal(t, []byte("abcde"), buf)

	require.Equal(t, int32(5), h1.Read(buf))
	assert.Equal(t, []byte("jklmn"), buf)
	h1.Close()
	h2.Close()
}

func TestDenyWriteLiftedOnClose(t *testing.T) {
	f := New()
	f.Install("prog", []byte("xxxx"))

	h, err := f.Open("prog")
	require.NoError(t, err)
	h.DenyWrite()
	h.DenyWrite() // idempotent per handle
	require.True(t, f.WriteDenied("prog"))

	// Any handle's writes bounce while the denial holds.
	w, err := f.Open("prog")
	require.NoError(t, err)
	assert.Equal(t, int32(0), w.Write([]byte("yy")))

	h.Close()
	assert.False(t, f.WriteDenied("prog"))
	assert.Equal(t, int32(2), w.Write([]byte("yy")))
	w.Close()

	// Closing twice does not double-lift someone else's denial.
	h.Close()
}

func TestRemoveWhileOpen(t *testing.T) {
	f := New()
	f.Install("doomed", []byte("still here"))

	h, err := f.Open("doomed")
	require.NoError(t, err)
	require.NoError(t, f.Remove("doomed"))
	assert.ErrorIs(t, f.Remove("doomed"), fs.ErrNotFound)

	_, err = f.Open("doomed")
	assert.ErrorIs(t, err, fs.ErrNotFound)

	// The open handle keeps reading the unlinked data.
	buf := make([]byte, 5)
	require.Equal(t, int32(5), h.Read(buf))
	assert.Equal(t, []byte("still"), buf)
	h.Close()
}

func TestSeekPastEnd(t *testing.T) {
	f := New()
	f.Install("short", []byte("ab"))
	h, err := f.Open("short")
	require.NoError(t, err)
	h.Seek(100)
	assert.Equal(t, int32(100), h.Tell())
	assert.Equal(t, int32(0), h.Read(make([]byte, 4)))
	h.Close()
}
