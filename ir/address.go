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

package ir

import (
	"fmt"

	"tlog.app/go/errors"
)

// NumStreams is the number of float32 buffers a kernel receives.
const NumStreams = 3

// Address is an affine memory access into one of the kernel streams.
//
//	offset(i, n) = CoeffI*i + CoeffIMax*n + CoeffConst + floor(i/AOSOAGroupSize)*AOSOAStride
//
// The AOSOA term only applies when AOSOAStride is non-zero.
type Address struct {
	// StreamID selects the stream; -1 means the address is unset.
	StreamID int64

	// CoeffI multiplies the loop index.
	CoeffI int64

	// CoeffIMax multiplies the loop bound.
	CoeffIMax int64

	// CoeffConst is the constant offset.
	CoeffConst int64

	// AOSOAGroupSize and AOSOAStride describe an array-of-structures-of-arrays
	// layout: every AOSOAGroupSize indices the offset jumps by AOSOAStride.
	AOSOAGroupSize int64
	AOSOAStride    int64
}

// NoAddress is the unset address.
var NoAddress = Address{StreamID: -1}

// Addr returns a plain strided address: stream[coeffI*i + offset].
func Addr(stream, coeffI, offset int64) Address {
	return Address{StreamID: stream, CoeffI: coeffI, CoeffConst: offset}
}

// AOSOA returns a copy of a with the AOSOA layout term set.
func (a Address) AOSOA(groupSize, stride int64) Address {
	a.AOSOAGroupSize = groupSize
	a.AOSOAStride = stride
	return a
}

// Initialized reports whether the address points at a stream.
func (a Address) Initialized() bool {
	return a.StreamID != -1
}

// Offset returns the constant offset.
func (a Address) Offset() int64 {
	return a.CoeffConst
}

// validStream reports whether the stream id is in range.
func (a Address) validStream() bool {
	return a.StreamID >= 0 && a.StreamID < NumStreams
}

// SameType reports whether a and o differ at most in their constant offset.
func (a Address) SameType(o Address) bool {
	return a.StreamID == o.StreamID &&
		a.CoeffI == o.CoeffI &&
		a.CoeffIMax == o.CoeffIMax &&
		a.AOSOAGroupSize == o.AOSOAGroupSize &&
		a.AOSOAStride == o.AOSOAStride
}

// Equal reports whether a and o describe the same access.
func (a Address) Equal(o Address) bool {
	return a.SameType(o) && a.CoeffConst == o.CoeffConst
}

// PriorTo reports whether o addresses the element right after a.
func (a Address) PriorTo(o Address) bool {
	return a.SameType(o) && a.CoeffConst+1 == o.CoeffConst
}

// Eval returns the flat offset for loop index i and loop bound n.
func (a Address) Eval(i, n int64) (int64, error) {
	if !a.Initialized() {
		return 0, errors.Wrap(ErrMalformed, "eval of unset address")
	}

	off := a.CoeffI*i + a.CoeffIMax*n + a.CoeffConst

	if a.AOSOAStride != 0 {
		if a.AOSOAGroupSize == 0 {
			return 0, errors.Wrap(ErrMalformed, "aosoa stride %d with zero group size", a.AOSOAStride)
		}

		off += floorDiv(i, a.AOSOAGroupSize) * a.AOSOAStride
	}

	return off, nil
}

// String formats the address for diagnostics.
func (a Address) String() string {
	if !a.Initialized() {
		return "addr{unset}"
	}

	s := fmt.Sprintf("stream%02d[%d*i + %d*n + %d", a.StreamID, a.CoeffI, a.CoeffIMax, a.CoeffConst)
	if a.AOSOAStride != 0 {
		s += fmt.Sprintf(" + i/%d*%d", a.AOSOAGroupSize, a.AOSOAStride)
	}

	return s + "]"
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}

	return q
}
