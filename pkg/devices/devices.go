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

// Package devices holds the machine's character devices: the console the
// kernel prints to and the keyboard user programs read from.
package devices

import (
	"io"
	"sync"
)

// Console is the output device behind the write(1) path and the kernel's
// own diagnostics. Writes are serialized so interleaved kernel threads
// produce whole lines.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// PutBuf writes b to the console in one piece.
func (c *Console) PutBuf(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Write(b)
}

// Input is the keyboard device. Getc blocks until a byte is available.
type Input interface {
	Getc() byte
}

// ReaderInput adapts an io.Reader into an Input. At end of input it
// returns 0 bytes forever, like a wedged keyboard.
type ReaderInput struct {
	mu sync.Mutex
	r  io.Reader
}

// NewReaderInput returns an Input backed by r.
func NewReaderInput(r io.Reader) *ReaderInput {
	return &ReaderInput{r: r}
}

// Getc implements Input.Getc.
func (i *ReaderInput) Getc() byte {
	i.mu.Lock()
	defer i.mu.Unlock()
	var b [1]byte
	for {
		n, err := i.r.Read(b[:])
		if n == 1 {
			return b[0]
		}
		if err != nil {
			return 0
		}
	}
}
