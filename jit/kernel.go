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
	"math"
	"unsafe"

	"tlog.app/go/errors"

	"github.com/go-highway/tlang/codegen"
	"github.com/go-highway/tlang/ir"
)

// ErrBadArgs marks kernel calls whose buffers or bound do not fit the kernel.
var ErrBadArgs = errors.New("bad kernel arguments")

// ErrClosed marks calls on a kernel whose module was released.
var ErrClosed = errors.New("kernel closed")

// Kernel is a compiled, loaded and resolved kernel function.
type Kernel struct {
	ID        int
	Name      string
	Source    *codegen.Source
	NumGroups int
	Artifact  *Artifact

	progress *Progress
	module   Module
	call     Symbol
	align    int
}

// Stages returns the stages the compilation went through.
func (k *Kernel) Stages() []Stage {
	return k.progress.Stages()
}

// Run calls the kernel on three streams with loop bound n. n must be a
// multiple of NumGroups, and every stream the kernel touches must be long
// enough and, for aligned accesses, register aligned.
func (k *Kernel) Run(s0, s1, s2 []float32, n int) error {
	if k.call == nil {
		return errors.Wrap(ErrClosed, "run %v", k.Name)
	}

	if n < 0 || n > math.MaxInt32 {
		return errors.Wrap(ErrBadArgs, "loop bound %d", n)
	}

	if n%k.NumGroups != 0 {
		return errors.Wrap(ErrBadArgs, "loop bound %d is not a multiple of %d", n, k.NumGroups)
	}

	fp, err := k.Source.Footprint(n)
	if err != nil {
		return errors.Wrap(err, "footprint")
	}

	streams := [ir.NumStreams][]float32{s0, s1, s2}
	var ptrs [ir.NumStreams]*float32

	for s, buf := range streams {
		if int64(len(buf)) < fp[s] {
			return errors.Wrap(ErrBadArgs, "stream%02d has %d elements, kernel touches %d", s, len(buf), fp[s])
		}

		if len(buf) == 0 {
			continue
		}

		ptrs[s] = &buf[0]

		if k.Source.Aligned[s] && uintptr(unsafe.Pointer(ptrs[s]))%uintptr(k.align) != 0 {
			return errors.Wrap(ErrBadArgs, "stream%02d is not %d-byte aligned, allocate it with AlignedStream", s, k.align)
		}
	}

	k.call.Call(ptrs[0], ptrs[1], ptrs[2], int32(n))

	return nil
}

// Close releases the native module. The kernel can not be run afterwards.
func (k *Kernel) Close() error {
	m := k.module

	k.module = nil
	k.call = nil

	if m == nil {
		return nil
	}

	return m.Close()
}
