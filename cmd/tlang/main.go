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

// Command tlang emits, packs, compiles and runs the built-in demo kernels.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/go-highway/tlang/codegen"
	"github.com/go-highway/tlang/internal/cpuinfo"
	"github.com/go-highway/tlang/ir"
	"github.com/go-highway/tlang/jit"
)

func main() {
	emitCmd := &cli.Command{
		Name:        "emit",
		Description: "print the generated source of a kernel",
		Action:      emitAct,
		Args:        cli.Args{},
	}

	packCmd := &cli.Command{
		Name:        "pack",
		Description: "print the SLP load groups of a kernel",
		Action:      packAct,
		Args:        cli.Args{},
	}

	runCmd := &cli.Command{
		Name:        "run",
		Description: "compile a kernel, run it on sample data and check it against Go",
		Action:      runAct,
		Args:        cli.Args{},
	}

	batchCmd := &cli.Command{
		Name:        "batch",
		Description: "compile all demo kernels in parallel",
		Action:      batchAct,
	}

	cpuCmd := &cli.Command{
		Name:        "cpu",
		Description: "print detected cpu features and simd width",
		Action:      cpuAct,
	}

	kernelsCmd := &cli.Command{
		Name:        "kernels",
		Description: "list demo kernels",
		Action:      kernelsAct,
	}

	app := &cli.Command{
		Name:        "tlang",
		Description: "tlang is a tiny jit for simd array kernels",
		Flags: []*cli.Flag{
			cli.NewFlag("width", 0, "simd width in float32 lanes (0 detects)"),
			cli.NewFlag("group", 0, "lane group size (0 uses the kernel default)"),
			cli.NewFlag("mode", "", "emission mode: vector or scalar (default from env)"),
			cli.NewFlag("n", 64, "loop bound for run"),
			cli.NewFlag("workers", 0, "batch workers (0 uses GOMAXPROCS)"),
			cli.HelpFlag,
		},
		Commands: []*cli.Command{
			emitCmd,
			packCmd,
			runCmd,
			batchCmd,
			cpuCmd,
			kernelsCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func newCompiler(c *cli.Command) (*jit.Compiler, error) {
	cfg, err := jit.ConfigFromEnv()
	if err != nil {
		return nil, errors.Wrap(err, "config")
	}

	if w := c.Int("width"); w != 0 {
		cfg.SIMDWidth = w
	}

	if m := c.String("mode"); m != "" {
		cfg.Mode, err = codegen.ParseMode(m)
		if err != nil {
			return nil, err
		}
	}

	return jit.NewCompiler(cfg)
}

func groupSize(c *cli.Command, d *demo) int {
	if gs := c.Int("group"); gs != 0 {
		return gs
	}

	return d.GroupSize
}

func demoArg(c *cli.Command) (*demo, error) {
	if len(c.Args) != 1 {
		return nil, errors.New("expected one kernel name, got %d args", len(c.Args))
	}

	return findDemo(c.Args[0])
}

func emitAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	d, err := demoArg(c)
	if err != nil {
		return err
	}

	comp, err := newCompiler(c)
	if err != nil {
		return err
	}

	src, err := comp.Emit(ctx, d.Build().Root(), groupSize(c, d))
	if err != nil {
		return errors.Wrap(err, "emit %v", d.Name)
	}

	fmt.Printf("%s", src.Text)

	return nil
}

func packAct(c *cli.Command) (err error) {
	d, err := demoArg(c)
	if err != nil {
		return err
	}

	pk, err := ir.Pack(d.Build().Root(), groupSize(c, d))
	if err != nil {
		return errors.Wrap(err, "pack %v", d.Name)
	}

	for k := range pk.Groups {
		addrs := make([]string, 0, len(pk.Groups[k]))
		for _, l := range pk.Loads(k) {
			addrs = append(addrs, l.Addr().String())
		}

		fmt.Printf("group %d: %s\n", k, strings.Join(addrs, ", "))
	}

	for _, w := range pk.Warnings {
		fmt.Printf("warning: group %d has %d loads\n", w.Group, w.Length)
	}

	return nil
}

func runAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	d, err := demoArg(c)
	if err != nil {
		return err
	}

	comp, err := newCompiler(c)
	if err != nil {
		return err
	}

	k, err := comp.Compile(ctx, d.Build().Root(), groupSize(c, d))
	if err != nil {
		return errors.Wrap(err, "compile %v", d.Name)
	}

	defer func() {
		e := k.Close()
		if err == nil && e != nil {
			err = errors.Wrap(e, "close kernel")
		}
	}()

	n := c.Int("n")
	n -= n % k.NumGroups

	fp, err := k.Source.Footprint(n)
	if err != nil {
		return err
	}

	var s, want [ir.NumStreams][]float32

	for i := range s {
		s[i] = jit.AlignedStream(int(fp[i]))
		want[i] = make([]float32, fp[i])
	}

	for i := range s[0] {
		s[0][i] = float32(i)
	}

	for i := range s[1] {
		s[1][i] = 1 + float32(i)/4
	}

	copy(want[0], s[0])
	copy(want[1], s[1])

	if err = k.Run(s[0], s[1], s[2], n); err != nil {
		return errors.Wrap(err, "run %v", d.Name)
	}

	d.Ref(want[0], want[1], want[2], n)

	var maxErr float64

	for i, x := range s[2] {
		maxErr = max(maxErr, math.Abs(float64(x-want[2][i])))
	}

	show := min(len(s[2]), 16)

	fmt.Printf("%s: n %d, num groups %d\n", k.Name, n, k.NumGroups)
	fmt.Printf("stream02[:%d] = %v\n", show, s[2][:show])
	fmt.Printf("max abs error %g\n", maxErr)

	if maxErr > 1e-4 {
		return errors.New("%v: result differs from reference by %g", d.Name, maxErr)
	}

	return nil
}

func batchAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	comp, err := newCompiler(c)
	if err != nil {
		return err
	}

	b := jit.NewBatch(comp, c.Int("workers"))
	defer b.Close()

	reqs := make([]jit.Request, len(demos))
	for i, d := range demos {
		reqs[i] = jit.Request{Name: d.Name, Root: d.Build().Root(), GroupSize: groupSize(c, d)}
	}

	failed := 0

	for _, r := range b.Compile(ctx, reqs) {
		if r.Err != nil {
			failed++
			fmt.Printf("%-14s  error: %v\n", r.Request.Name, r.Err)
			continue
		}

		fmt.Printf("%-14s  %s  %s\n", r.Request.Name, r.Kernel.Name, r.Kernel.Artifact.LibraryPath)

		_ = closeLogged(r.Kernel, "name", r.Request.Name, "kernel", r.Kernel.Name)
	}

	if failed != 0 {
		return errors.New("%d of %d kernels failed", failed, len(reqs))
	}

	return nil
}

// closeLogged closes c and logs a failure with kv attached.
func closeLogged(c interface{ Close() error }, kv ...any) error {
	err := c.Close()
	if err != nil {
		tlog.Printw("close failed", append(kv, "err", err)...)
	}

	return err
}

func cpuAct(c *cli.Command) error {
	f := cpuinfo.Detect()

	fmt.Printf("arch:     %s\n", cpuinfo.Arch())
	fmt.Printf("features: %s\n", strings.Join(f.Names(), " "))
	fmt.Printf("width:    %d\n", f.Width())
	fmt.Printf("profiles: %v\n", codegen.Widths())

	return nil
}

func kernelsAct(c *cli.Command) error {
	for _, d := range demos {
		fmt.Printf("%-14s  %-14s  group %d  %s\n", d.Name, d.Title(), d.GroupSize, d.Description)
	}

	return nil
}
