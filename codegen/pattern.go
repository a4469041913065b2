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

package codegen

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
	"tlog.app/go/errors"

	"github.com/go-highway/tlang/ir"
)

// Shuffle is an in-register lane permutation applied after a load.
type Shuffle uint8

const (
	ShuffleNone Shuffle = iota

	// ShuffleDupLow repeats the even lane of every pair: [0,0,2,2,...].
	ShuffleDupLow

	// ShuffleDupHigh repeats the odd lane of every pair: [1,1,3,3,...].
	ShuffleDupHigh
)

// String returns a human-readable name for the Shuffle.
func (s Shuffle) String() string {
	switch s {
	case ShuffleNone:
		return "none"
	case ShuffleDupLow:
		return "dup_low"
	case ShuffleDupHigh:
		return "dup_high"
	default:
		return fmt.Sprintf("Shuffle(%d)", s)
	}
}

// Imm returns the shuffle control immediate.
func (s Shuffle) Imm() int {
	switch s {
	case ShuffleDupLow:
		return 0xA0
	case ShuffleDupHigh:
		return 0xF5
	default:
		return 0xE4
	}
}

// lane returns the source lane the shuffle reads for destination lane l.
func (s Shuffle) lane(l int64) int64 {
	switch s {
	case ShuffleDupLow:
		return l - l%2
	case ShuffleDupHigh:
		return l - l%2 + 1
	default:
		return l
	}
}

// Access describes how a vector load or store touches its stream. All lanes
// move by the same displacement between loop iterations, so the register
// window for iteration i starts at
//
//	CoeffIMax*n + Step*g + (i/AOSOAGroupSize)*AOSOAStride + Base
type Access struct {
	Stream int64

	// Base is the first element of the window at i = 0, n = 0.
	Base int64

	CoeffIMax int64

	// Step is the displacement per loop iteration: CoeffI * numGroups.
	Step int64

	AOSOAGroupSize int64
	AOSOAStride    int64

	// Aligned reports whether every window is register aligned, provided
	// the stream itself is. Windows depending on n are never aligned, since
	// n is only a multiple of the lane group count.
	Aligned bool

	Shuffle Shuffle

	// Lanes holds the element offset of each lane relative to Base.
	Lanes []int64
}

// Index renders the window start as a C expression over n, g and i.
func (a *Access) Index() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%d * n + %d * g", a.CoeffIMax, a.Step)

	if a.AOSOAStride != 0 {
		fmt.Fprintf(&b, " + (i / %d) * %d", a.AOSOAGroupSize, a.AOSOAStride)
	}

	if a.Base < 0 {
		fmt.Fprintf(&b, " - %d", -a.Base)
	} else {
		fmt.Fprintf(&b, " + %d", a.Base)
	}

	return b.String()
}

// InferAccess finds a register window and lane pattern reproducing the
// member addresses of a vector node. Lane l belongs to member l%groupSize
// of lane group l/groupSize, which runs loop index i + l/groupSize.
//
// Shuffles are recognised for group size 2 only. Everything the generator
// cannot express exactly fails with ErrNotImplemented.
func InferAccess(addrs []ir.Address, groupSize, numGroups int) (*Access, error) {
	if groupSize < 1 || numGroups < 1 || len(addrs) != groupSize {
		return nil, errors.Wrap(ErrMalformed, "%d addresses for group size %d, num groups %d", len(addrs), groupSize, numGroups)
	}

	a0 := addrs[0]

	for _, a := range addrs {
		if !a.Initialized() {
			return nil, errors.Wrap(ErrMalformed, "unset member address")
		}

		if !a.SameType(a0) {
			return nil, errors.Wrap(ErrNotImplemented, "gather of %v and %v", a0, a)
		}
	}

	if a0.AOSOAStride != 0 {
		ags := a0.AOSOAGroupSize
		ng := int64(numGroups)

		if ags <= 0 {
			return nil, errors.Wrap(ErrMalformed, "aosoa stride %d with group size %d", a0.AOSOAStride, ags)
		}

		if ng%ags != 0 && ags%ng != 0 {
			return nil, errors.Wrap(ErrNotImplemented, "aosoa group size %d does not tile %d lane groups", ags, numGroups)
		}
	}

	width := groupSize * numGroups
	w := int64(width)

	elems := make([]int64, width)
	for l := range elems {
		e, err := addrs[l%groupSize].Eval(int64(l/groupSize), 0)
		if err != nil {
			return nil, errors.Wrap(err, "lane %d", l)
		}

		elems[l] = e
	}

	e0 := elems[0]

	bases := []int64{e0 - floorMod(e0, w)}
	if groupSize == 2 {
		bases = append(bases, e0-floorMod(e0, 2))
	}
	bases = append(bases, e0)
	bases = slices.Compact(bases)

	shuffles := []Shuffle{ShuffleNone}
	if groupSize == 2 {
		shuffles = append(shuffles, ShuffleDupLow, ShuffleDupHigh)
	}

	for _, base := range bases {
		lanes := lo.Map(elems, func(e int64, _ int) int64 { return e - base })

		if lo.SomeBy(lanes, func(p int64) bool { return p < 0 || p >= w }) {
			continue
		}

		for _, s := range shuffles {
			if !matches(lanes, s) {
				continue
			}

			acc := &Access{
				Stream:         a0.StreamID,
				Base:           base,
				CoeffIMax:      a0.CoeffIMax,
				Step:           a0.CoeffI * int64(numGroups),
				AOSOAGroupSize: a0.AOSOAGroupSize,
				AOSOAStride:    a0.AOSOAStride,
				Shuffle:        s,
				Lanes:          lanes,
			}

			acc.Aligned = acc.CoeffIMax == 0 &&
				floorMod(base, w) == 0 &&
				floorMod(acc.Step, w) == 0 &&
				floorMod(acc.AOSOAStride, w) == 0

			return acc, nil
		}
	}

	return nil, errors.Wrap(ErrNotImplemented, "lane offsets %v for group size %d", elems, groupSize)
}

func matches(lanes []int64, s Shuffle) bool {
	for l, p := range lanes {
		if p != s.lane(int64(l)) {
			return false
		}
	}

	return true
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}

	return m
}
