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
	"tlog.app/go/errors"

	"github.com/go-highway/tlang/ir"
)

// ErrOutOfBounds marks kernels that would touch memory before a stream.
var ErrOutOfBounds = errors.New("access out of bounds")

// Footprint returns, per stream, one past the highest element the kernel
// reads or writes when run with loop bound n. Streams the kernel never
// touches report 0.
//
// Only the first and the last iteration are checked. That bounds every
// access unless CoeffI and AOSOAStride have opposite signs.
func (s *Source) Footprint(n int) ([ir.NumStreams]int64, error) {
	var res [ir.NumStreams]int64

	if n <= 0 {
		return res, nil
	}

	ng := s.NumGroups
	iters := []int64{0, int64((n - 1) / ng * ng)}

	grow := func(stream, lo, hi int64) error {
		if lo < 0 {
			return errors.Wrap(ErrOutOfBounds, "stream%02d element %d", stream, lo)
		}

		res[stream] = max(res[stream], hi)

		return nil
	}

	for _, t := range s.touches {
		for _, i := range iters {
			if t.acc != nil {
				start := t.acc.CoeffIMax*int64(n) + t.acc.Step*(i/int64(ng)) + t.acc.Base
				if t.acc.AOSOAStride != 0 {
					start += i / t.acc.AOSOAGroupSize * t.acc.AOSOAStride
				}

				if err := grow(t.acc.Stream, start, start+int64(s.Width)); err != nil {
					return res, err
				}

				continue
			}

			gs := len(t.addrs)

			for l := range s.Width {
				a := t.addrs[l%gs]

				e, err := a.Eval(i+int64(l/gs), int64(n))
				if err != nil {
					return res, err
				}

				if err := grow(a.StreamID, e, e+1); err != nil {
					return res, err
				}
			}
		}
	}

	return res, nil
}

// Touched reports which streams the kernel accesses.
func (s *Source) Touched() [ir.NumStreams]bool {
	var res [ir.NumStreams]bool

	for _, t := range s.touches {
		if len(t.addrs) != 0 {
			res[t.addrs[0].StreamID] = true
		}
	}

	return res
}
