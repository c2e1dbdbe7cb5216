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

// Package sync provides the kernel's synchronization primitives on top of
// the Go runtime's. The primitives here block the calling goroutine, which
// stands in for suspending a kernel thread.
package sync

import "sync"

// Semaphore is a counting semaphore. The zero value is a semaphore with
// count 0, which is the common initial state for rendezvous use.
type Semaphore struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

// NewSemaphore returns a semaphore with the given initial count.
func NewSemaphore(count int) *Semaphore {
	if count < 0 {
		panic("sync: negative semaphore count")
	}
	return &Semaphore{count: count}
}

func (s *Semaphore) init() {
	if s.cond == nil {
		s.cond = sync.NewCond(&s.mu)
	}
}

// Down decrements the count, blocking until it is positive.
func (s *Semaphore) Down() {
	s.mu.Lock()
	s.init()
	for s.count == 0 {
		s.cond.Wait()
	}
	s.count--
	s.mu.Unlock()
}

// TryDown decrements the count if it is positive, without blocking.
func (s *Semaphore) TryDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return false
	}
	s.count--
	return true
}

// Up increments the count and wakes one waiter, if any.
func (s *Semaphore) Up() {
	s.mu.Lock()
	s.init()
	s.count++
	s.cond.Signal()
	s.mu.Unlock()
}
