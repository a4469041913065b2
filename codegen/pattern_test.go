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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-highway/tlang/ir"
)

func TestInferAccess(t *testing.T) {
	tests := []struct {
		name      string
		addrs     []ir.Address
		numGroups int
		base      int64
		aligned   bool
		shuffle   Shuffle
	}{
		{"contiguous", []ir.Address{ir.Addr(0, 1, 0)}, 8, 0, true, ShuffleNone},
		{"contiguous_offset", []ir.Address{ir.Addr(0, 1, 3)}, 8, 3, false, ShuffleNone},
		{"contiguous_next_register", []ir.Address{ir.Addr(0, 1, 8)}, 8, 8, true, ShuffleNone},
		{"aosoa_misaligned_stride", []ir.Address{ir.Addr(0, 1, 0).AOSOA(8, 12)}, 8, 0, false, ShuffleNone},
		{"pairs", []ir.Address{ir.Addr(1, 2, 0), ir.Addr(1, 2, 1)}, 4, 0, true, ShuffleNone},
		{"pairs_unaligned", []ir.Address{ir.Addr(1, 2, 5), ir.Addr(1, 2, 6)}, 4, 5, false, ShuffleNone},
		{"dup_low", []ir.Address{ir.Addr(0, 2, 0), ir.Addr(0, 2, 0)}, 4, 0, true, ShuffleDupLow},
		{"dup_low_unaligned", []ir.Address{ir.Addr(0, 2, 4), ir.Addr(0, 2, 4)}, 4, 4, false, ShuffleDupLow},
		{"dup_high", []ir.Address{ir.Addr(0, 2, 1), ir.Addr(0, 2, 1)}, 4, 0, true, ShuffleDupHigh},
		{"dup_high_unaligned", []ir.Address{ir.Addr(0, 2, 5), ir.Addr(0, 2, 5)}, 4, 4, false, ShuffleDupHigh},
		{"quads", []ir.Address{ir.Addr(0, 4, 0), ir.Addr(0, 4, 1), ir.Addr(0, 4, 2), ir.Addr(0, 4, 3)}, 2, 0, true, ShuffleNone},
		{"aosoa", []ir.Address{ir.Addr(0, 1, 0).AOSOA(8, 16)}, 8, 0, true, ShuffleNone},
		{"bound_dependent", []ir.Address{{StreamID: 0, CoeffI: 1, CoeffIMax: 1}}, 8, 0, false, ShuffleNone},
		{"bound_dependent_pairs", []ir.Address{{StreamID: 0, CoeffI: 2, CoeffIMax: 1}, {StreamID: 0, CoeffI: 2, CoeffIMax: 1, CoeffConst: 1}}, 4, 0, false, ShuffleNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, err := InferAccess(tt.addrs, len(tt.addrs), tt.numGroups)
			require.NoError(t, err)

			assert.Equal(t, tt.base, acc.Base, "base")
			assert.Equal(t, tt.aligned, acc.Aligned, "aligned")
			assert.Equal(t, tt.shuffle, acc.Shuffle, "shuffle")
			assert.Len(t, acc.Lanes, len(tt.addrs)*tt.numGroups)
		})
	}
}

func TestInferAccessLanesReproduceAddresses(t *testing.T) {
	addrs := []ir.Address{ir.Addr(0, 2, 7), ir.Addr(0, 2, 8)}

	acc, err := InferAccess(addrs, 2, 4)
	require.NoError(t, err)

	// Window start plus lane offset must equal the member address for every
	// lane and iteration.
	for it := int64(0); it < 5; it++ {
		i := it * 4

		for l, p := range acc.Lanes {
			want, err := addrs[l%2].Eval(i+int64(l/2), 0)
			require.NoError(t, err)

			assert.Equal(t, want, acc.Step*it+acc.Base+p, "iteration %d lane %d", it, l)
		}
	}
}

func TestInferAccessErrors(t *testing.T) {
	_, err := InferAccess([]ir.Address{ir.Addr(0, 1, 0).AOSOA(3, 16)}, 1, 8)
	assert.ErrorIs(t, err, ErrNotImplemented)

	_, err = InferAccess([]ir.Address{ir.Addr(0, 1, 0)}, 2, 4)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = InferAccess([]ir.Address{ir.NoAddress}, 1, 8)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestAccessIndex(t *testing.T) {
	acc := &Access{CoeffIMax: 1, Step: 8, Base: -3}
	assert.Equal(t, "1 * n + 8 * g - 3", acc.Index())

	acc = &Access{Step: 8, AOSOAGroupSize: 16, AOSOAStride: 64, Base: 2}
	assert.Equal(t, "0 * n + 8 * g + (i / 16) * 64 + 2", acc.Index())
}

func TestShuffleImm(t *testing.T) {
	assert.Equal(t, 0xA0, ShuffleDupLow.Imm())
	assert.Equal(t, 0xF5, ShuffleDupHigh.Imm())
	assert.Equal(t, "dup_high", ShuffleDupHigh.String())
}
