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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressEval(t *testing.T) {
	tests := []struct {
		name string
		addr Address
		i, n int64
		want int64
	}{
		{"zero", Addr(0, 0, 0), 7, 100, 0},
		{"contiguous", Addr(0, 1, 0), 7, 100, 7},
		{"strided", Addr(1, 3, 2), 5, 100, 17},
		{"bound", Address{StreamID: 2, CoeffI: 1, CoeffIMax: 2, CoeffConst: -1}, 4, 10, 23},
		{"aosoa", Addr(0, 1, 1).AOSOA(4, 12), 9, 0, 9 + 1 + 2*12},
		{"aosoa_first_group", Addr(0, 1, 0).AOSOA(4, 12), 3, 0, 3},
		{"aosoa_negative_floor", Addr(0, 1, 0).AOSOA(4, 12), -1, 0, -1 - 12},
		{"aosoa_group_size_only", Addr(0, 1, 0).AOSOA(4, 0), 9, 0, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.addr.Eval(tt.i, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddressEvalFormula(t *testing.T) {
	a := Address{StreamID: 1, CoeffI: 2, CoeffIMax: 3, CoeffConst: 5, AOSOAGroupSize: 8, AOSOAStride: 64}

	for i := int64(-20); i <= 40; i++ {
		for n := int64(0); n <= 4; n++ {
			aosoa := i / 8
			if i%8 != 0 && i < 0 {
				aosoa--
			}

			want := 2*i + 3*n + 5 + aosoa*64

			got, err := a.Eval(i, n)
			require.NoError(t, err)
			require.Equal(t, want, got, "i=%d n=%d", i, n)
		}
	}
}

func TestAddressEvalErrors(t *testing.T) {
	_, err := NoAddress.Eval(0, 0)
	assert.ErrorIs(t, err, ErrMalformed, "unset: %v", err)

	_, err = Addr(0, 1, 0).AOSOA(0, 4).Eval(3, 0)
	assert.ErrorIs(t, err, ErrMalformed, "zero group size: %v", err)
}

func TestAddressSameType(t *testing.T) {
	base := Address{StreamID: 1, CoeffI: 2, CoeffIMax: 3, CoeffConst: 4, AOSOAGroupSize: 2, AOSOAStride: 8}

	variants := map[string]func(a Address) Address{
		"stream":    func(a Address) Address { a.StreamID = 2; return a },
		"coeff_i":   func(a Address) Address { a.CoeffI++; return a },
		"coeff_max": func(a Address) Address { a.CoeffIMax++; return a },
		"aosoa_gs":  func(a Address) Address { a.AOSOAGroupSize++; return a },
		"aosoa_st":  func(a Address) Address { a.AOSOAStride++; return a },
	}

	assert.True(t, base.SameType(base), "reflexive")
	assert.True(t, base.Equal(base), "equal reflexive")

	shifted := base
	shifted.CoeffConst = 40

	assert.True(t, base.SameType(shifted))
	assert.True(t, shifted.SameType(base))
	assert.False(t, base.Equal(shifted))

	for name, f := range variants {
		t.Run(name, func(t *testing.T) {
			o := f(base)

			assert.False(t, base.SameType(o))
			assert.False(t, o.SameType(base))
			assert.False(t, base.Equal(o))
		})
	}
}

func TestAddressPriorTo(t *testing.T) {
	a := Addr(0, 1, 5)

	assert.True(t, a.PriorTo(Addr(0, 1, 6)))
	assert.False(t, a.PriorTo(Addr(0, 1, 5)))
	assert.False(t, a.PriorTo(Addr(0, 1, 7)))
	assert.False(t, a.PriorTo(Addr(0, 1, 4)))
	assert.False(t, a.PriorTo(Addr(1, 1, 6)))
	assert.False(t, Addr(0, 1, 6).PriorTo(a))
}

func TestAddressString(t *testing.T) {
	assert.Equal(t, "addr{unset}", NoAddress.String())
	assert.Equal(t, "stream01[1*i + 0*n + 3]", Addr(1, 1, 3).String())
	assert.Equal(t, "stream00[1*i + 0*n + 0 + i/4*12]", Addr(0, 1, 0).AOSOA(4, 12).String())
}
