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

//go:build darwin || linux

package jit

import (
	"github.com/ebitengine/purego"
	"tlog.app/go/errors"
)

// library is a shared object opened with dlopen.
type library struct {
	path   string
	handle uintptr
}

func openLibrary(path string) (*library, error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, errors.Wrap(ErrToolchain, "dlopen %s: %v", path, err)
	}

	return &library{path: path, handle: h}, nil
}

func (l *library) lookup(symbol string) (Symbol, error) {
	sym, err := purego.Dlsym(l.handle, symbol)
	if err != nil {
		return nil, errors.Wrap(ErrToolchain, "dlsym %s in %s: %v", symbol, l.path, err)
	}

	var fn func(s0, s1, s2 *float32, n int32)
	purego.RegisterFunc(&fn, sym)

	return KernelFunc(fn), nil
}

func (l *library) Close() error {
	if err := purego.Dlclose(l.handle); err != nil {
		return errors.Wrap(ErrToolchain, "dlclose %s: %v", l.path, err)
	}

	return nil
}
