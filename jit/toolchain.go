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

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

// ErrToolchain marks failures of the external compiler or the dynamic
// loader. The message names the failing command or path.
var ErrToolchain = errors.New("native toolchain failed")

// BaseFlags are passed to every native compile.
var BaseFlags = []string{"-std=c++14", "-shared", "-fPIC", "-O3", "-march=native"}

// BuildRequest is one source to turn into a loadable library.
type BuildRequest struct {
	ID     int
	Name   string
	Source string

	// Flags are target flags added after BaseFlags.
	Flags []string

	// Progress receives the written, formatted and compiled stages.
	Progress *Progress
}

// Artifact is a built library on disk.
type Artifact struct {
	ID          int
	SourcePath  string
	LibraryPath string

	// Output is the combined compiler output.
	Output string
}

// Module is an opened native library.
type Module interface {
	Close() error
}

// Symbol is a resolved kernel entry point.
type Symbol interface {
	Call(s0, s1, s2 *float32, n int32)
}

// KernelFunc adapts a Go function to Symbol.
type KernelFunc func(s0, s1, s2 *float32, n int32)

// Call calls f.
func (f KernelFunc) Call(s0, s1, s2 *float32, n int32) { f(s0, s1, s2, n) }

// Toolchain is the native build service: build a source into an artifact,
// open it, and resolve the entry symbol.
type Toolchain interface {
	Build(ctx context.Context, req *BuildRequest) (*Artifact, error)
	Load(ctx context.Context, a *Artifact) (Module, error)
	Resolve(m Module, symbol string) (Symbol, error)
}

// ExecToolchain runs an external C++ compiler and loads the result with the
// platform dynamic loader.
type ExecToolchain struct {
	Dir       string
	Compiler  string
	Formatter string

	// Flags are appended to BaseFlags and the request flags.
	Flags []string
}

// NewExecToolchain returns the toolchain described by cfg.
func NewExecToolchain(cfg Config) *ExecToolchain {
	return &ExecToolchain{
		Dir:       cfg.CacheDir,
		Compiler:  cfg.Compiler,
		Formatter: cfg.Formatter,
		Flags:     cfg.ExtraFlags,
	}
}

// Build writes, formats and compiles req.Source.
func (t *ExecToolchain) Build(ctx context.Context, req *BuildRequest) (*Artifact, error) {
	if err := os.MkdirAll(t.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create cache dir")
	}

	a := &Artifact{
		ID:          req.ID,
		SourcePath:  SourceFile(t.Dir, req.ID),
		LibraryPath: LibraryFile(t.Dir, req.ID),
	}

	if err := os.WriteFile(a.SourcePath, []byte(req.Source), 0o644); err != nil {
		return nil, errors.Wrap(err, "write source")
	}

	req.Progress.Reach(StageWritten)

	t.format(ctx, a.SourcePath)

	req.Progress.Reach(StageFormatted)

	args := append([]string{}, BaseFlags...)
	args = append(args, req.Flags...)
	args = append(args, t.Flags...)
	args = append(args, "-o", a.LibraryPath, a.SourcePath)

	cmd := exec.CommandContext(ctx, t.Compiler, args...)

	tlog.SpanFromContext(ctx).V("toolchain").Printw("compile", "cmd", cmd.String())

	output, err := cmd.CombinedOutput()
	a.Output = string(output)

	if err != nil {
		return nil, errors.Wrap(ErrToolchain, "%s: %v: %s", cmd.String(), err, strings.TrimSpace(a.Output))
	}

	req.Progress.Reach(StageCompiled)

	return a, nil
}

// format runs the formatter in place. Failures are logged and ignored.
func (t *ExecToolchain) format(ctx context.Context, path string) {
	if t.Formatter == "" {
		return
	}

	cmd := exec.CommandContext(ctx, t.Formatter, "-i", path)

	output, err := cmd.CombinedOutput()
	if err != nil {
		tlog.SpanFromContext(ctx).Printw("formatter failed, ignored", "cmd", cmd.String(), "err", err, "output", strings.TrimSpace(string(output)))
	}
}

// Load opens the library of a.
func (t *ExecToolchain) Load(ctx context.Context, a *Artifact) (Module, error) {
	m, err := openLibrary(a.LibraryPath)
	if err != nil {
		return nil, err
	}

	tlog.SpanFromContext(ctx).V("toolchain").Printw("loaded", "path", a.LibraryPath)

	return m, nil
}

// Resolve looks symbol up in m by exact name.
func (t *ExecToolchain) Resolve(m Module, symbol string) (Symbol, error) {
	lib, ok := m.(*library)
	if !ok {
		return nil, errors.Wrap(ErrToolchain, "resolve %s: foreign module %T", symbol, m)
	}

	return lib.lookup(symbol)
}
