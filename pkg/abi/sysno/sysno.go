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

// Package sysno defines the system call numbers. The set is closed; user
// code passes the number as the first word at ESP on trap 0x30.
package sysno

import "fmt"

// TrapVector is the interrupt vector for system calls.
const TrapVector = 0x30

// System call numbers.
const (
	Halt uint32 = iota
	Exit
	Exec
	Wait
	Create
	Remove
	Open
	Filesize
	Read
	Write
	Seek
	Tell
	Close
	Practice
)

// Max is one past the largest valid system call number.
const Max = Practice + 1

var names = [Max]string{
	Halt:     "halt",
	Exit:     "exit",
	Exec:     "exec",
	Wait:     "wait",
	Create:   "create",
	Remove:   "remove",
	Open:     "open",
	Filesize: "filesize",
	Read:     "read",
	Write:    "write",
	Seek:     "seek",
	Tell:     "tell",
	Close:    "close",
	Practice: "practice",
}

// Name returns the name of a system call number, or a numeric placeholder
// for numbers outside the closed set.
func Name(n uint32) string {
	if n < Max {
		return names[n]
	}
	return fmt.Sprintf("sysno(%d)", n)
}
