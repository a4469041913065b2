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
	"runtime"
	"sync"

	"tlog.app/go/tlog"

	"github.com/go-highway/tlang/ir"
)

// Request is one graph to compile in a batch.
type Request struct {
	Name      string
	Root      ir.Expr
	GroupSize int
}

// Result pairs a request with its kernel or error.
type Result struct {
	Request Request
	Kernel  *Kernel
	Err     error
}

// Batch is a persistent pool of workers compiling through one Compiler.
// Workers are spawned once and reused across Compile calls.
type Batch struct {
	c *Compiler

	numWorkers int
	jobs       chan job

	// mu is held shared by Compile and exclusively by Close.
	mu     sync.RWMutex
	closed bool
}

// job is one request of a Compile call.
type job struct {
	ctx  context.Context
	req  Request
	res  *Result
	done *sync.WaitGroup
}

// NewBatch starts numWorkers workers. If numWorkers <= 0, uses GOMAXPROCS.
func NewBatch(c *Compiler, numWorkers int) *Batch {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	b := &Batch{
		c:          c,
		numWorkers: numWorkers,
		jobs:       make(chan job, numWorkers),
	}

	for range numWorkers {
		go b.worker()
	}

	return b
}

func (b *Batch) worker() {
	for j := range b.jobs {
		b.run(j)
		j.done.Done()
	}
}

func (b *Batch) run(j job) {
	j.res.Request = j.req

	if err := j.ctx.Err(); err != nil {
		j.res.Err = err
		return
	}

	j.res.Kernel, j.res.Err = b.c.Compile(j.ctx, j.req.Root, j.req.GroupSize)

	if j.res.Err != nil {
		tlog.SpanFromContext(j.ctx).V("batch").Printw("request failed", "name", j.req.Name, "err", j.res.Err)
	}
}

// NumWorkers returns the number of workers.
func (b *Batch) NumWorkers() int {
	return b.numWorkers
}

// Close stops the workers after in-flight Compile calls return.
// Calling Close multiple times is safe.
func (b *Batch) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	close(b.jobs)
}

// Compile compiles every request and returns the results in request order.
// Workers take requests one at a time from a shared queue, so slow
// compilations do not hold up the rest. A failed request does not stop the
// others. After Close the requests run on the calling goroutine.
func (b *Batch) Compile(ctx context.Context, reqs []Request) []Result {
	res := make([]Result, len(reqs))

	b.mu.RLock()
	defer b.mu.RUnlock()

	var wg sync.WaitGroup
	wg.Add(len(reqs))

	for i, r := range reqs {
		j := job{ctx: ctx, req: r, res: &res[i], done: &wg}

		if b.closed {
			b.run(j)
			wg.Done()

			continue
		}

		b.jobs <- j
	}

	wg.Wait()

	return res
}
