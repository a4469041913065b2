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

import "unsafe"

// StreamAlign is the alignment of AlignedStream buffers, enough for 512-bit
// registers.
const StreamAlign = 64

// AlignedStream returns a zeroed stream of n elements whose first element is
// StreamAlign-byte aligned.
func AlignedStream(n int) []float32 {
	const pad = StreamAlign / 4

	buf := make([]float32, n+pad)

	off := 0
	if rem := uintptr(unsafe.Pointer(&buf[0])) % StreamAlign; rem != 0 {
		off = int(StreamAlign-rem) / 4
	}

	return buf[off : off+n : off+n]
}
