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
	"slices"

	"tlog.app/go/errors"
)

// Profile defines the C intrinsics and compile settings for one x86 SIMD
// target operating on float32 lanes.
type Profile struct {
	TargetName string // "SSE4", "AVX2", "AVX512"
	Width      int    // float32 lanes per register
	Include    string // "#include <immintrin.h>"
	VecType    string // "__m256"

	LoadFn    string // aligned load
	LoadUFn   string // unaligned load
	StoreFn   string // aligned store
	StoreUFn  string // unaligned store
	ShuffleFn string // in-lane shuffle with an immediate control
	Set1Fn    string // broadcast one scalar
	SetrFn    string // lanes in memory order

	// Flags are added to the native compile command.
	Flags []string
}

// Align returns the register size in bytes, which aligned loads require.
func (p *Profile) Align() int {
	return p.Width * 4
}

// profileRegistry holds the known profiles keyed by width.
var profileRegistry map[int]*Profile

func init() {
	profileRegistry = make(map[int]*Profile)

	for _, p := range []*Profile{
		sse4Profile(),
		avx2Profile(),
		avx512Profile(),
	} {
		profileRegistry[p.Width] = p
	}
}

// ProfileFor returns the profile with the given lane count.
func ProfileFor(width int) (*Profile, error) {
	p, ok := profileRegistry[width]
	if !ok {
		return nil, errors.Wrap(ErrNotImplemented, "simd width %d (known: %v)", width, Widths())
	}

	return p, nil
}

// Widths returns the supported widths in increasing order.
func Widths() []int {
	ws := make([]int, 0, len(profileRegistry))
	for w := range profileRegistry {
		ws = append(ws, w)
	}

	slices.Sort(ws)

	return ws
}

// ---------------------------------------------------------------------------
// SSE4 float32
// ---------------------------------------------------------------------------

func sse4Profile() *Profile {
	return &Profile{
		TargetName: "SSE4",
		Width:      4,
		Include:    "#include <immintrin.h>",
		VecType:    "__m128",
		LoadFn:     "_mm_load_ps",
		LoadUFn:    "_mm_loadu_ps",
		StoreFn:    "_mm_store_ps",
		StoreUFn:   "_mm_storeu_ps",
		ShuffleFn:  "_mm_shuffle_ps",
		Set1Fn:     "_mm_set1_ps",
		SetrFn:     "_mm_setr_ps",
		Flags:      []string{"-msse4.1"},
	}
}

// ---------------------------------------------------------------------------
// AVX2 float32
// ---------------------------------------------------------------------------

func avx2Profile() *Profile {
	return &Profile{
		TargetName: "AVX2",
		Width:      8,
		Include:    "#include <immintrin.h>",
		VecType:    "__m256",
		LoadFn:     "_mm256_load_ps",
		LoadUFn:    "_mm256_loadu_ps",
		StoreFn:    "_mm256_store_ps",
		StoreUFn:   "_mm256_storeu_ps",
		ShuffleFn:  "_mm256_shuffle_ps",
		Set1Fn:     "_mm256_set1_ps",
		SetrFn:     "_mm256_setr_ps",
		Flags:      []string{"-mavx2"},
	}
}

// ---------------------------------------------------------------------------
// AVX512 float32
// ---------------------------------------------------------------------------
// _mm512_shuffle_ps applies the immediate within each 128-bit lane, so the
// shuffle patterns are the same as for the narrower targets.

func avx512Profile() *Profile {
	return &Profile{
		TargetName: "AVX512",
		Width:      16,
		Include:    "#include <immintrin.h>",
		VecType:    "__m512",
		LoadFn:     "_mm512_load_ps",
		LoadUFn:    "_mm512_loadu_ps",
		StoreFn:    "_mm512_store_ps",
		StoreUFn:   "_mm512_storeu_ps",
		ShuffleFn:  "_mm512_shuffle_ps",
		Set1Fn:     "_mm512_set1_ps",
		SetrFn:     "_mm512_setr_ps",
		Flags:      []string{"-mavx512f"},
	}
}
