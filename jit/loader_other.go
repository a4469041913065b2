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

//go:build !darwin && !linux

package jit

import (
	"runtime"

	"tlog.app/go/errors"
)

type library struct {
	path string
}

func openLibrary(path string) (*library, error) {
	return nil, errors.Wrap(ErrToolchain, "load %s: dynamic loading is not supported on %s", path, runtime.GOOS)
}

func (l *library) lookup(symbol string) (Symbol, error) {
	return nil, errors.Wrap(ErrToolchain, "resolve %s: dynamic loading is not supported on %s", symbol, runtime.GOOS)
}

func (l *library) Close() error { return nil }
