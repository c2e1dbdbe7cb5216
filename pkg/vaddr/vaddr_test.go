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

package vaddr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRounding(t *testing.T) {
	assert.Equal(t, Addr(0x1000), Addr(0x1fff).RoundDown())
	assert.Equal(t, Addr(0x1000), Addr(0x1000).RoundDown())
	assert.Equal(t, Addr(0x2000), Addr(0x1001).RoundUp())
	assert.Equal(t, Addr(0x1000), Addr(0x1000).RoundUp())
	assert.Equal(t, uint32(0xfff), Addr(0x1fff).PageOff())
}

func TestIsUser(t *testing.T) {
	assert.True(t, Addr(0).IsUser())
	assert.True(t, (PhysBase - 1).IsUser())
	assert.False(t, PhysBase.IsUser())
	assert.False(t, Addr(0xFFFFFFFF).IsUser())
}

func TestRoundUp32(t *testing.T) {
	assert.Equal(t, uint32(0), RoundUp32(0))
	assert.Equal(t, uint32(PageSize), RoundUp32(1))
	assert.Equal(t, uint32(PageSize), RoundUp32(PageSize))
	assert.Equal(t, uint32(2*PageSize), RoundUp32(PageSize+1))
}
