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

package main

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"tlog.app/go/errors"

	"github.com/go-highway/tlang/ir"
)

// demo is a built-in kernel with a Go reference implementation.
type demo struct {
	Name        string
	Description string
	GroupSize   int

	Build func() *ir.Graph

	// Ref computes the expected stream02 for loop bound n.
	Ref func(s0, s1, s2 []float32, n int)
}

func (d *demo) Title() string {
	return cases.Title(language.English).String(strings.ReplaceAll(d.Name, "_", " "))
}

var demos = []*demo{
	{
		Name:        "add",
		Description: "s2[i] = s0[i] + s1[i]",
		GroupSize:   1,
		Build: func() *ir.Graph {
			g := ir.NewGraph()
			g.Store(g.Load(ir.Addr(0, 1, 0)).Add(g.Load(ir.Addr(1, 1, 0))), ir.Addr(2, 1, 0))
			return g
		},
		Ref: func(s0, s1, s2 []float32, n int) {
			for i := range n {
				s2[i] = s0[i] + s1[i]
			}
		},
	},
	{
		Name:        "saxpy",
		Description: "s2[i] = 2.5 * s0[i] + s1[i]",
		GroupSize:   1,
		Build: func() *ir.Graph {
			g := ir.NewGraph()
			x := g.Load(ir.Addr(0, 1, 0))
			y := g.Load(ir.Addr(1, 1, 0))
			g.Store(g.Const(2.5).Mul(x).Add(y), ir.Addr(2, 1, 0))
			return g
		},
		Ref: func(s0, s1, s2 []float32, n int) {
			for i := range n {
				s2[i] = 2.5*s0[i] + s1[i]
			}
		},
	},
	{
		Name:        "shifted_diff",
		Description: "s2[i] = s0[i+1] - s1[i]",
		GroupSize:   1,
		Build: func() *ir.Graph {
			g := ir.NewGraph()
			g.Store(g.Load(ir.Addr(0, 1, 1)).Sub(g.Load(ir.Addr(1, 1, 0))), ir.Addr(2, 1, 0))
			return g
		},
		Ref: func(s0, s1, s2 []float32, n int) {
			for i := range n {
				s2[i] = s0[i+1] - s1[i]
			}
		},
	},
	{
		Name:        "polynomial",
		Description: "s2[i] = (3 * s0[i] + 2) * s0[i] + 1",
		GroupSize:   1,
		Build: func() *ir.Graph {
			g := ir.NewGraph()
			x := g.Load(ir.Addr(0, 1, 0))
			g.Store(g.Const(3).Mul(x).Add(g.Const(2)).Mul(x).Add(g.Const(1)), ir.Addr(2, 1, 0))
			return g
		},
		Ref: func(s0, s1, s2 []float32, n int) {
			for i := range n {
				s2[i] = (3*s0[i]+2)*s0[i] + 1
			}
		},
	},
	{
		Name:        "pair_scale",
		Description: "s2[2i+k] = s0[2i] * s1[2i+k] for k in {0, 1}",
		GroupSize:   2,
		Build: func() *ir.Graph {
			g := ir.NewGraph()
			for k := range int64(2) {
				g.Store(g.Load(ir.Addr(0, 2, 0)).Mul(g.Load(ir.Addr(1, 2, k))), ir.Addr(2, 2, k))
			}
			return g
		},
		Ref: func(s0, s1, s2 []float32, n int) {
			for i := range n {
				for k := range 2 {
					s2[2*i+k] = s0[2*i] * s1[2*i+k]
				}
			}
		},
	},
	{
		Name:        "pair_mix",
		Description: "s2[2i] = s0[2i] + s1[2i], s2[2i+1] = s0[2i+1] + s1[2i] * 0.5",
		GroupSize:   2,
		Build: func() *ir.Graph {
			g := ir.NewGraph()
			g.Store(g.Load(ir.Addr(0, 2, 0)).Add(g.Load(ir.Addr(1, 2, 0)).Mul(g.Const(1))), ir.Addr(2, 2, 0))
			g.Store(g.Load(ir.Addr(0, 2, 1)).Add(g.Load(ir.Addr(1, 2, 0)).Mul(g.Const(0.5))), ir.Addr(2, 2, 1))
			return g
		},
		Ref: func(s0, s1, s2 []float32, n int) {
			for i := range n {
				s2[2*i] = s0[2*i] + s1[2*i]
				s2[2*i+1] = s0[2*i+1] + s1[2*i]*0.5
			}
		},
	},
}

func findDemo(name string) (*demo, error) {
	i := slices.IndexFunc(demos, func(d *demo) bool { return d.Name == name })
	if i < 0 {
		return nil, errors.New("unknown kernel %q, see `tlang kernels`", name)
	}

	return demos[i], nil
}
