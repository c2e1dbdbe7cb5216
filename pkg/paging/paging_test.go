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

package paging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmot-os/marmot/pkg/vaddr"
)

func TestMapUnmap(t *testing.T) {
	pool := NewPool(4)
	pd := NewDirectory(pool)

	f := pool.GetPage(true)
	require.NotNil(t, f)
	require.True(t, pd.SetPage(0x8000, f, true))

	assert.Same(t, f, pd.GetPage(0x8000))
	assert.Same(t, f, pd.GetPage(0x8fff))
	assert.Nil(t, pd.GetPage(0x9000))
	assert.True(t, pd.Writable(0x8000))

	// Double-mapping and unaligned mapping both fail.
	assert.False(t, pd.SetPage(0x8000, f, true))
	assert.False(t, pd.SetPage(0x8001, f, true))

	pd.ClearPage(0x8000)
	assert.Nil(t, pd.GetPage(0x8000))
}

func TestPoolExhaustion(t *testing.T) {
	pool := NewPool(1)
	f := pool.GetPage(false)
	require.NotNil(t, f)
	assert.Nil(t, pool.GetPage(false))
	pool.FreePage(f)
	assert.NotNil(t, pool.GetPage(false))
}

func TestDestroyReturnsFrames(t *testing.T) {
	pool := NewPool(3)
	pd := NewDirectory(pool)
	for i := 0; i < 3; i++ {
		require.True(t, pd.SetPage(vaddr.Addr(0x8000+i*vaddr.PageSize), pool.GetPage(true), true))
	}
	require.Equal(t, 0, pool.Free())
	require.Equal(t, 3, pd.Pages())

	pd.Destroy()
	assert.Equal(t, 3, pool.Free())
	assert.Equal(t, 0, pd.Pages())
}

func TestHighestUnmappedPage(t *testing.T) {
	pool := NewPool(8)
	pd := NewDirectory(pool)
	top := vaddr.UserStackTop - vaddr.PageSize

	// Empty directory: the top page itself is free.
	got, ok := pd.HighestUnmappedPage()
	require.True(t, ok)
	assert.Equal(t, top, got)

	// A contiguous run at the top is skipped.
	require.True(t, pd.SetPage(top, pool.GetPage(true), true))
	require.True(t, pd.SetPage(top-vaddr.PageSize, pool.GetPage(true), true))
	got, ok = pd.HighestUnmappedPage()
	require.True(t, ok)
	assert.Equal(t, top-2*vaddr.PageSize, got)

	// A gap before lower mappings wins over the mappings below it.
	require.True(t, pd.SetPage(top-3*vaddr.PageSize, pool.GetPage(true), true))
	got, ok = pd.HighestUnmappedPage()
	require.True(t, ok)
	assert.Equal(t, top-2*vaddr.PageSize, got)
}

func TestActivation(t *testing.T) {
	pool := NewPool(1)
	pd := NewDirectory(pool)

	Activate(pd)
	assert.Same(t, pd, Active())
	Activate(nil)
	assert.Nil(t, Active())
}
