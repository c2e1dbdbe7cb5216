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
	stdsync "sync"

	"github.com/marmot-os/marmot/pkg/sync"
)

// ProcStatus is the rendezvous record shared between a parent and one
// child. The parent creates it in exec with two references; the child
// fills in pid after load and exitStatus at exit. Either side may release
// last; the record is reachable only while refCount > 0.
type ProcStatus struct {
	// pid is -1 while the child is loading and permanently -1 on load
	// failure. Written by the child strictly before waitSema is upped.
	pid TID

	// exitStatus is set by the child on exit; -1 if killed by the
	// kernel. Read by the parent only after waitSema is downed.
	exitStatus int32

	// waitSema is upped exactly once, by the child, at exit or on load
	// failure.
	waitSema sync.Semaphore

	// parent owns the child list this record is linked on.
	parent *Process

	refLock  stdsync.Mutex
	refCount int
}

func newProcStatus(parent *Process) *ProcStatus {
	return &ProcStatus{
		pid:      TIDError,
		parent:   parent,
		refCount: 2,
	}
}

// Pid returns the child pid recorded by load completion.
func (s *ProcStatus) Pid() TID {
	return s.pid
}

// Release drops one reference. The last releaser owns the record; when
// that is the parent side it also unlinks the record from the parent's
// child list, under the parent's master lock, since the list belongs to
// the parent.
func (s *ProcStatus) Release(isParent bool) {
	s.refLock.Lock()
	s.refCount--
	n := s.refCount
	s.refLock.Unlock()
	if n != 0 {
		return
	}
	if isParent {
		p := s.parent
		p.master.Lock()
		for i, cs := range p.children {
			if cs == s {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
		p.master.Unlock()
	}
}

// JoinStatus is the per-thread rendezvous record. Its semaphore is used
// for two successive handoffs: first the spawner learns the start outcome,
// then a joiner (or the final teardown sweep) learns about termination.
type JoinStatus struct {
	tid       TID
	wasJoined bool
	joinSema  sync.Semaphore
}

// Tid returns the thread id recorded by the start handoff.
func (s *JoinStatus) Tid() TID {
	return s.tid
}
