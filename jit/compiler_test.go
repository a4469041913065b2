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
	"fmt"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/go-highway/tlang/codegen"
	"github.com/go-highway/tlang/ir"
)

// fakeToolchain builds nothing and resolves every symbol to a Go
// implementation of s2[i] = s0[i] + s1[i].
type fakeToolchain struct {
	mu       sync.Mutex
	failOn   Stage
	requests []*BuildRequest
	closed   int
}

type fakeModule struct {
	t *fakeToolchain
}

func (m fakeModule) Close() error {
	m.t.mu.Lock()
	defer m.t.mu.Unlock()

	m.t.closed++

	return nil
}

func (t *fakeToolchain) Build(ctx context.Context, req *BuildRequest) (*Artifact, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.mu.Unlock()

	req.Progress.Reach(StageWritten)
	req.Progress.Reach(StageFormatted)

	if t.failOn == StageCompiled {
		return nil, errors.Wrap(ErrToolchain, "g++: exit status 1: syntax error")
	}

	req.Progress.Reach(StageCompiled)

	return &Artifact{
		ID:          req.ID,
		SourcePath:  SourceFile("cache", req.ID),
		LibraryPath: LibraryFile("cache", req.ID),
	}, nil
}

func (t *fakeToolchain) Load(ctx context.Context, a *Artifact) (Module, error) {
	if t.failOn == StageLoaded {
		return nil, errors.Wrap(ErrToolchain, "dlopen %s", a.LibraryPath)
	}

	return fakeModule{t: t}, nil
}

func (t *fakeToolchain) Resolve(m Module, symbol string) (Symbol, error) {
	if t.failOn == StageResolved {
		return nil, errors.Wrap(ErrToolchain, "dlsym %s", symbol)
	}

	return KernelFunc(addStreams), nil
}

func addStreams(s0, s1, s2 *float32, n int32) {
	a := unsafe.Slice(s0, n)
	b := unsafe.Slice(s1, n)
	c := unsafe.Slice(s2, n)

	for i := range c {
		c[i] = a[i] + b[i]
	}
}

func newTestCompiler(t *testing.T, tc Toolchain, width int, ids ...int) *Compiler {
	t.Helper()

	cfg := DefaultConfig()
	cfg.SIMDWidth = width

	c, err := NewCompiler(cfg)
	require.NoError(t, err)

	c.Toolchain = tc

	if ids != nil {
		c.IDs = NewSequence(ids...)
	} else {
		c.IDs = &Counter{}
	}

	return c
}

// addKernel computes stream02[i] = stream00[i] + stream01[i].
func addKernel() *ir.Graph {
	g := ir.NewGraph()

	a := g.Load(ir.Addr(0, 1, 0))
	b := g.Load(ir.Addr(1, 1, 0))
	g.Store(a.Add(b), ir.Addr(2, 1, 0))

	return g
}

func TestCompileStages(t *testing.T) {
	tc := &fakeToolchain{}
	c := newTestCompiler(t, tc, 4, 7)

	k, err := c.Compile(context.Background(), addKernel().Root(), 1)
	require.NoError(t, err)
	defer k.Close()

	assert.Equal(t, 7, k.ID)
	assert.Equal(t, "func000007", k.Name)
	assert.Equal(t, 4, k.NumGroups)
	assert.Equal(t, []Stage{StageBuilt, StageWritten, StageFormatted, StageCompiled, StageLoaded, StageResolved, StageReady}, k.Stages())

	require.Len(t, tc.requests, 1)
	assert.Equal(t, "func000007", tc.requests[0].Name)
	assert.Equal(t, c.Profile().Flags, tc.requests[0].Flags)
	assert.Contains(t, tc.requests[0].Source, `extern "C" void func000007(`)
}

func TestCompileFailures(t *testing.T) {
	for _, tc := range []struct {
		failOn Stage
		closed int
	}{
		{failOn: StageCompiled},
		{failOn: StageLoaded},
		{failOn: StageResolved, closed: 1},
	} {
		t.Run(tc.failOn.String(), func(t *testing.T) {
			fake := &fakeToolchain{failOn: tc.failOn}
			c := newTestCompiler(t, fake, 4)

			k, err := c.Compile(context.Background(), addKernel().Root(), 1)
			require.Error(t, err)
			assert.Nil(t, k)
			assert.ErrorIs(t, err, ErrToolchain)

			var se *StageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.failOn, se.Stage)
			assert.Equal(t, tc.closed, fake.closed)
		})
	}
}

func TestCompileMalformed(t *testing.T) {
	c := newTestCompiler(t, &fakeToolchain{}, 4)

	_, err := c.Compile(context.Background(), addKernel().Root(), 0)
	assert.ErrorIs(t, err, ir.ErrMalformed)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageBuilt, se.Stage)

	_, err = c.Compile(context.Background(), addKernel().Root(), 5)
	assert.ErrorIs(t, err, ir.ErrMalformed)

	_, err = c.Compile(context.Background(), ir.Expr{}, 1)
	assert.ErrorIs(t, err, ir.ErrMalformed)
}

func TestCompileIDsIncrease(t *testing.T) {
	c := newTestCompiler(t, &fakeToolchain{}, 4)

	prev := -1

	for range 5 {
		k, err := c.Compile(context.Background(), addKernel().Root(), 1)
		require.NoError(t, err)

		assert.Greater(t, k.ID, prev)
		prev = k.ID
	}
}

func TestCompileIDsExhausted(t *testing.T) {
	c := newTestCompiler(t, &fakeToolchain{}, 4, 3)

	_, err := c.Compile(context.Background(), addKernel().Root(), 1)
	require.NoError(t, err)

	_, err = c.Compile(context.Background(), addKernel().Root(), 1)
	assert.ErrorIs(t, err, ErrIDsExhausted)
}

func TestEmitScalarFallback(t *testing.T) {
	c := newTestCompiler(t, &fakeToolchain{}, 8)

	g := ir.NewGraph()
	for off := range int64(3) {
		g.Store(g.Load(ir.Addr(0, 3, off)), ir.Addr(1, 3, off))
	}

	src, err := c.Emit(context.Background(), g.Root(), 3)
	require.NoError(t, err)

	assert.Equal(t, codegen.ModeScalar, src.Mode)
	assert.Equal(t, 2, src.NumGroups)
	assert.NotContains(t, src.Text, "_mm256_loadu_ps")
}

func TestEmitVector(t *testing.T) {
	c := newTestCompiler(t, &fakeToolchain{}, 8)

	src, err := c.Emit(context.Background(), addKernel().Root(), 1)
	require.NoError(t, err)

	assert.Equal(t, codegen.ModeVector, src.Mode)
	assert.Equal(t, 8, src.NumGroups)
	assert.Contains(t, src.Text, "__m256")
	assert.Equal(t, [ir.NumStreams]bool{true, true, true}, src.Aligned)
}

func TestKernelRun(t *testing.T) {
	c := newTestCompiler(t, &fakeToolchain{}, 4)

	k, err := c.Compile(context.Background(), addKernel().Root(), 1)
	require.NoError(t, err)
	defer k.Close()

	const n = 8

	s0, s1, s2 := AlignedStream(n), AlignedStream(n), AlignedStream(n)
	for i := range n {
		s0[i] = float32(i)
		s1[i] = 10
	}

	require.NoError(t, k.Run(s0, s1, s2, n))

	for i := range n {
		assert.Equal(t, float32(i)+10, s2[i], "element %d", i)
	}
}

func TestKernelRunBadArgs(t *testing.T) {
	c := newTestCompiler(t, &fakeToolchain{}, 4)

	k, err := c.Compile(context.Background(), addKernel().Root(), 1)
	require.NoError(t, err)
	defer k.Close()

	s0, s1, s2 := AlignedStream(8), AlignedStream(8), AlignedStream(8)

	for _, tc := range []struct {
		name       string
		s0, s1, s2 []float32
		n          int
	}{
		{"negative", s0, s1, s2, -4},
		{"not_multiple", s0, s1, s2, 6},
		{"short", s0[:7], s1, s2, 8},
		{"missing", s0, nil, s2, 8},
		{"misaligned", AlignedStream(9)[1:], s1, s2, 8},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := k.Run(tc.s0, tc.s1, tc.s2, tc.n)
			assert.ErrorIs(t, err, ErrBadArgs)
		})
	}
}

func TestKernelRunAfterClose(t *testing.T) {
	tc := &fakeToolchain{}
	c := newTestCompiler(t, tc, 4)

	k, err := c.Compile(context.Background(), addKernel().Root(), 1)
	require.NoError(t, err)

	require.NoError(t, k.Close())
	require.NoError(t, k.Close())
	assert.Equal(t, 1, tc.closed)

	s := AlignedStream(8)

	err = k.Run(s, s, s, 8)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NotErrorIs(t, err, ErrBadArgs)
}

func TestAlignedStream(t *testing.T) {
	for _, n := range []int{1, 3, 16, 100} {
		s := AlignedStream(n)

		assert.Len(t, s, n)
		assert.Equal(t, n, cap(s))
		assert.Zero(t, uintptr(unsafe.Pointer(&s[0]))%StreamAlign, "n %d", n)
	}
}

func TestBatchCompile(t *testing.T) {
	c := newTestCompiler(t, &fakeToolchain{}, 4)

	b := NewBatch(c, 3)
	defer b.Close()

	assert.Equal(t, 3, b.NumWorkers())

	var reqs []Request
	for i := range 10 {
		reqs = append(reqs, Request{Name: fmt.Sprintf("k%d", i), Root: addKernel().Root(), GroupSize: 1})
	}

	reqs[4].GroupSize = 0

	res := b.Compile(context.Background(), reqs)
	require.Len(t, res, len(reqs))

	ids := map[int]bool{}

	for i, r := range res {
		assert.Equal(t, reqs[i].Name, r.Request.Name)

		if i == 4 {
			assert.ErrorIs(t, r.Err, ir.ErrMalformed)
			continue
		}

		require.NoError(t, r.Err, "request %d", i)
		assert.False(t, ids[r.Kernel.ID], "duplicate id %d", r.Kernel.ID)
		ids[r.Kernel.ID] = true
	}

	assert.Len(t, ids, 9)
}

func TestBatchCanceled(t *testing.T) {
	c := newTestCompiler(t, &fakeToolchain{}, 4)

	b := NewBatch(c, 2)
	b.Close()
	b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := b.Compile(ctx, []Request{{Root: addKernel().Root(), GroupSize: 1}})
	require.Len(t, res, 1)
	assert.ErrorIs(t, res[0].Err, context.Canceled)
}

// gatedToolchain blocks every build until release is closed.
type gatedToolchain struct {
	*fakeToolchain

	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (t *gatedToolchain) Build(ctx context.Context, req *BuildRequest) (*Artifact, error) {
	t.once.Do(func() { close(t.started) })
	<-t.release

	return t.fakeToolchain.Build(ctx, req)
}

func TestBatchCloseWaitsForCompile(t *testing.T) {
	tc := &gatedToolchain{
		fakeToolchain: &fakeToolchain{},
		started:       make(chan struct{}),
		release:       make(chan struct{}),
	}

	c := newTestCompiler(t, tc, 4)
	b := NewBatch(c, 2)

	reqs := make([]Request, 6)
	for i := range reqs {
		reqs[i] = Request{Name: fmt.Sprintf("k%d", i), Root: addKernel().Root(), GroupSize: 1}
	}

	resC := make(chan []Result)
	go func() { resC <- b.Compile(context.Background(), reqs) }()

	<-tc.started

	closedC := make(chan struct{})
	go func() {
		b.Close()
		close(closedC)
	}()

	select {
	case <-closedC:
		t.Fatal("Close returned while Compile was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(tc.release)

	res := <-resC
	<-closedC

	for i, r := range res {
		assert.NoError(t, r.Err, "request %d", i)
	}

	res = b.Compile(context.Background(), reqs[:2])
	require.Len(t, res, 2)
	assert.NoError(t, res[0].Err)
	assert.NoError(t, res[1].Err)
}
