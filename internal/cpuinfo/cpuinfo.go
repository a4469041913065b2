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

// Package cpuinfo reports the SIMD width kernels should be generated for.
package cpuinfo

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// Features are the x86 SIMD extensions relevant to kernel generation.
type Features struct {
	SSE41   bool
	AVX     bool
	AVX2    bool
	AVX512F bool
}

// Detect reads the host features.
func Detect() Features {
	return Features{
		SSE41:   cpu.X86.HasSSE41,
		AVX:     cpu.X86.HasAVX,
		AVX2:    cpu.X86.HasAVX2,
		AVX512F: cpu.X86.HasAVX512F,
	}
}

// Width returns the number of float32 lanes of the widest register f
// supports. SSE width is the floor.
func (f Features) Width() int {
	switch {
	case f.AVX512F:
		return 16
	case f.AVX2, f.AVX:
		return 8
	default:
		return 4
	}
}

// Names lists the supported extensions, narrowest first.
func (f Features) Names() []string {
	var names []string

	for _, x := range []struct {
		name string
		has  bool
	}{
		{"sse4.1", f.SSE41},
		{"avx", f.AVX},
		{"avx2", f.AVX2},
		{"avx512f", f.AVX512F},
	} {
		if x.has {
			names = append(names, x.name)
		}
	}

	return names
}

// Width returns the float32 lane count for the host.
func Width() int {
	return Detect().Width()
}

// Arch returns the host architecture name.
func Arch() string {
	return runtime.GOARCH
}
