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

// Package jit compiles scalar kernel graphs into native functions: it
// vectorizes and emits the graph, builds the source with an external
// toolchain, loads the library and resolves the kernel symbol.
package jit

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/go-highway/tlang/codegen"
	"github.com/go-highway/tlang/ir"
)

// Compiler turns graphs into kernels. It is safe for concurrent use when
// its IDAllocator is.
type Compiler struct {
	Config    Config
	Toolchain Toolchain
	IDs       IDAllocator

	profile *codegen.Profile
}

// NewCompiler returns a compiler for cfg building with the external
// toolchain and the process-wide id counter.
func NewCompiler(cfg Config) (*Compiler, error) {
	p, err := codegen.ProfileFor(cfg.Width())
	if err != nil {
		return nil, errors.Wrap(err, "simd profile")
	}

	return &Compiler{
		Config:    cfg,
		Toolchain: NewExecToolchain(cfg),
		IDs:       ProcessIDs(),
		profile:   p,
	}, nil
}

// Profile returns the intrinsic profile code is generated for.
func (c *Compiler) Profile() *codegen.Profile {
	return c.profile
}

// plan is the front half of one compilation.
type plan struct {
	id       int
	name     string
	source   *codegen.Source
	progress *Progress
}

// Emit vectorizes and generates root without building it.
func (c *Compiler) Emit(ctx context.Context, root ir.Expr, groupSize int) (*codegen.Source, error) {
	p, err := c.front(ctx, root, groupSize)
	if err != nil {
		return nil, err
	}

	return p.source, nil
}

// Compile vectorizes, generates, builds, loads and resolves root.
func (c *Compiler) Compile(ctx context.Context, root ir.Expr, groupSize int) (k *Kernel, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "jit: compile", "group_size", groupSize, "target", c.profile.TargetName)
	defer tr.Finish("err", &err)

	p, err := c.front(ctx, root, groupSize)
	if err != nil {
		return nil, err
	}

	k = &Kernel{
		ID:        p.id,
		Name:      p.name,
		Source:    p.source,
		NumGroups: p.source.NumGroups,
		progress:  p.progress,
		align:     c.profile.Align(),
	}

	k.Artifact, err = c.Toolchain.Build(ctx, &BuildRequest{
		ID:       p.id,
		Name:     p.name,
		Source:   p.source.Text,
		Flags:    c.profile.Flags,
		Progress: p.progress,
	})
	if err != nil {
		return nil, p.progress.fail(errors.Wrap(err, "build"))
	}

	p.progress.Reach(StageCompiled)
	tr.Printw("compiled", "id", p.id, "library", k.Artifact.LibraryPath)

	k.module, err = c.Toolchain.Load(ctx, k.Artifact)
	if err != nil {
		return nil, p.progress.fail(errors.Wrap(err, "load"))
	}

	p.progress.Reach(StageLoaded)

	k.call, err = c.Toolchain.Resolve(k.module, p.name)
	if err != nil {
		_ = k.module.Close()
		return nil, p.progress.fail(errors.Wrap(err, "resolve"))
	}

	p.progress.Reach(StageResolved)
	p.progress.Reach(StageReady)

	tr.Printw("kernel ready", "id", p.id, "name", p.name, "num_groups", k.NumGroups)

	return k, nil
}

// front allocates an id and runs vectorization and code generation.
func (c *Compiler) front(ctx context.Context, root ir.Expr, groupSize int) (*plan, error) {
	tr := tlog.SpanFromContext(ctx)

	id, err := c.IDs.Next()
	if err != nil {
		return nil, errors.Wrap(err, "allocate id")
	}

	p := &plan{
		id:       id,
		name:     FuncName(id),
		progress: newProgress(id),
	}

	width := c.profile.Width

	if groupSize < 1 || groupSize > width {
		return nil, p.progress.fail(errors.Wrap(ir.ErrMalformed, "group size %d for width %d", groupSize, width))
	}

	mode := c.Config.Mode

	if width%groupSize != 0 {
		tr.Printw("simd width is not a multiple of group size", "width", width, "group_size", groupSize)

		if mode == codegen.ModeVector {
			tr.Printw("falling back to scalar emission", "id", id)
			mode = codegen.ModeScalar
		}
	}

	numGroups := width / groupSize

	if c.Config.Pack {
		c.logPacking(tr, root, groupSize)
	}

	v, err := ir.Vectorize(root, groupSize, numGroups)
	if err != nil {
		return nil, p.progress.fail(errors.Wrap(err, "vectorize"))
	}

	if tr.If("dump") {
		for vid, n := range v.Nodes {
			tr.Printw("vector node", "vid", vid, "kind", n.Kind, "args", n.Args, "members", n.Members, "addr", n.Addr)
		}
	}

	gen := &codegen.Generator{Profile: c.profile, Mode: mode}

	p.source, err = gen.Emit(v, p.name)
	if err != nil {
		return nil, p.progress.fail(errors.Wrap(err, "generate"))
	}

	p.progress.Reach(StageBuilt)

	tr.V("jit").Printw("source built", "id", id, "name", p.name, "mode", mode, "num_groups", numGroups, "statements", p.source.Stats.Statements)

	return p, nil
}

func (c *Compiler) logPacking(tr tlog.Span, root ir.Expr, groupSize int) {
	pk, err := ir.Pack(root, groupSize)
	if err != nil {
		tr.Printw("slp packing failed", "err", err)
		return
	}

	for k, g := range pk.Groups {
		tr.Printw("slp group", "group", k, "loads", len(g), "first", pk.Instructions[g[0]].Addr())
	}

	if len(pk.Warnings) != 0 {
		tr.Printw("slp groups need padding", "warnings", len(pk.Warnings))
	}
}
