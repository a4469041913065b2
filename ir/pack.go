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

package ir

import (
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

// Packing is the result of greedy SLP grouping of loads.
type Packing struct {
	// Instructions is the dependency-ordered instruction list the groups
	// index into.
	Instructions []Expr

	// Groups are chains of neighbouring loads, as indices into Instructions.
	Groups [][]int

	// Warnings lists groups whose length is not a multiple of the group size.
	Warnings []PackWarning
}

// PackWarning is a non-fatal packing diagnostic. The caller decides how to
// pad or split such a group.
type PackWarning struct {
	Group  int
	Length int
}

type packer struct {
	inst    []Expr
	grouped []bool
}

// Pack repeatedly takes the longest chain of ungrouped loads linked by the
// prior-to relation until none is left. Ties go to the chain starting at
// the lowest instruction index.
func Pack(root Expr, groupSize int) (*Packing, error) {
	if groupSize < 1 {
		return nil, errors.Wrap(ErrMalformed, "group size %d", groupSize)
	}

	inst, err := Instructions(root)
	if err != nil {
		return nil, errors.Wrap(err, "extract instructions")
	}

	tlog.V("pack").Printw("instructions", "count", len(inst))

	p := &packer{
		inst:    inst,
		grouped: make([]bool, len(inst)),
	}

	res := &Packing{Instructions: inst}

	for {
		var best []int

		for i := range p.inst {
			if c := p.chain(i); len(c) > len(best) {
				best = c
			}
		}

		if len(best) == 0 {
			break
		}

		for _, i := range best {
			p.grouped[i] = true
		}

		if len(best)%groupSize != 0 {
			w := PackWarning{Group: len(res.Groups), Length: len(best)}
			res.Warnings = append(res.Warnings, w)

			tlog.Printw("pack: group length is not a multiple of group size", "group", w.Group, "length", w.Length, "group_size", groupSize)
		}

		res.Groups = append(res.Groups, best)
	}

	if tlog.If("pack") {
		for i, g := range res.Groups {
			tlog.Printw("pack group", "group", i, "size", len(g), "members", g)
		}
	}

	return res, nil
}

// chain follows prior-to links from instruction i through ungrouped loads.
func (p *packer) chain(i int) []int {
	if p.grouped[i] || p.inst[i].Kind() != KindLoad {
		return nil
	}

	c := []int{i}

	for cur := i; ; {
		next := -1
		addr := p.inst[cur].Addr()

		for j, e := range p.inst {
			if p.grouped[j] || j == cur || e.Kind() != KindLoad {
				continue
			}

			if addr.PriorTo(e.Addr()) {
				next = j
				break
			}
		}

		if next < 0 {
			return c
		}

		c = append(c, next)
		cur = next
	}
}

// Loads returns the load handles of group k.
func (p *Packing) Loads(k int) []Expr {
	res := make([]Expr, len(p.Groups[k]))

	for i, idx := range p.Groups[k] {
		res[i] = p.Instructions[idx]
	}

	return res
}
