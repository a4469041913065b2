// Copyright 2025 go-highway Authors
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

package jit

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"tlog.app/go/errors"
)

// MaxID bounds compilation ids; artifact names have four digits.
const MaxID = 10000

// ErrIDsExhausted is returned once an allocator has no ids left.
var ErrIDsExhausted = errors.New("compilation ids exhausted")

// IDAllocator hands out compilation ids. Every call returns a fresh id.
type IDAllocator interface {
	Next() (int, error)
}

// Counter allocates 0, 1, 2, ... and is safe for concurrent use.
type Counter struct {
	next atomic.Int64
}

var processIDs Counter

// ProcessIDs returns the allocator shared by every compiler of the process.
func ProcessIDs() *Counter {
	return &processIDs
}

// Next returns the next id.
func (c *Counter) Next() (int, error) {
	id := c.next.Add(1) - 1
	if id >= MaxID {
		return 0, errors.Wrap(ErrIDsExhausted, "after %d compilations", MaxID)
	}

	return int(id), nil
}

// Sequence replays a fixed list of ids.
type Sequence struct {
	mu  sync.Mutex
	ids []int
}

// NewSequence returns an allocator yielding ids in order.
func NewSequence(ids ...int) *Sequence {
	return &Sequence{ids: ids}
}

// Next returns the next id of the sequence.
func (s *Sequence) Next() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ids) == 0 {
		return 0, ErrIDsExhausted
	}

	id := s.ids[0]
	s.ids = s.ids[1:]

	if id < 0 || id >= MaxID {
		return 0, errors.New("compilation id %d out of range [0, %d)", id, MaxID)
	}

	return id, nil
}

// FuncName returns the exported kernel symbol of compilation id.
func FuncName(id int) string {
	return fmt.Sprintf("func%06d", id)
}

// SourceFile returns the generated source path of compilation id.
func SourceFile(dir string, id int) string {
	return filepath.Join(dir, fmt.Sprintf("tmp%04d.cpp", id))
}

// LibraryFile returns the shared library path of compilation id.
func LibraryFile(dir string, id int) string {
	ext := ".so"
	if runtime.GOOS == "darwin" {
		ext = ".dylib"
	}

	return filepath.Join(dir, fmt.Sprintf("tmp%04d%s", id, ext))
}
