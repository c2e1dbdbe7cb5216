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

package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreRendezvous(t *testing.T) {
	var s Semaphore
	done := make(chan int32, 1)
	var result int32

	go func() {
		s.Down()
		done <- result
	}()

	// The waiter must observe the write made before Up.
	result = 42
	s.Up()

	select {
	case v := <-done:
		require.Equal(t, int32(42), v)
	case <-time.After(2 * time.Second):
		t.Fatal("Down did not wake")
	}
}

func TestSemaphoreCounts(t *testing.T) {
	s := NewSemaphore(2)
	assert.True(t, s.TryDown())
	assert.True(t, s.TryDown())
	assert.False(t, s.TryDown())
	s.Up()
	assert.True(t, s.TryDown())
}

func TestSemaphoreUpBeforeDown(t *testing.T) {
	var s Semaphore
	s.Up()
	// Must not block: the count is already 1.
	s.Down()
	assert.False(t, s.TryDown())
}
