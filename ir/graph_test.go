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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphConstruction(t *testing.T) {
	g := NewGraph()

	assert.True(t, g.Root().IsZero(), "root before first store")

	a := g.Load(Addr(0, 1, 0))
	b := g.Load(Addr(1, 1, 0))
	sum := a.Add(b)
	st := g.Store(sum, Addr(2, 1, 0))

	require.NoError(t, g.Err())

	root := g.Root()
	require.False(t, root.IsZero())
	assert.Equal(t, KindCombine, root.Kind())
	assert.Equal(t, []Expr{st}, root.Args())

	assert.Equal(t, KindAdd, sum.Kind())
	assert.Equal(t, []Expr{a, b}, sum.Args())
	assert.Equal(t, []Expr{sum}, st.Args())
	assert.Equal(t, Addr(2, 1, 0), st.Addr())
	assert.Equal(t, NoAddress, sum.Addr())

	g.Store(a, Addr(2, 1, 1))
	assert.Equal(t, root, g.Root(), "root is created once")
	assert.Len(t, g.Root().Args(), 2)
}

func TestExprIdentity(t *testing.T) {
	g := NewGraph()

	a := g.Load(Addr(0, 1, 0))
	b := g.Load(Addr(0, 1, 0))

	assert.NotEqual(t, a, b, "structurally equal nodes are distinct")
	assert.Equal(t, a, g.Expr(a.ID()))
	assert.True(t, a.Less(b))

	seen := map[Expr]int{a: 1, b: 2}
	assert.Equal(t, 1, seen[g.Expr(a.ID())])

	assert.True(t, Expr{}.IsZero())
	assert.Equal(t, NoNode, Expr{}.ID())
	assert.True(t, g.Expr(100).IsZero())
}

func TestExprEmptyHandle(t *testing.T) {
	var e Expr

	assert.True(t, e.IsZero())
	assert.Equal(t, NoNode, e.ID())
	assert.Nil(t, e.Op())
	assert.Equal(t, KindInvalid, e.Kind())
	assert.Equal(t, "invalid", e.Kind().String())
	assert.Nil(t, e.Args())
	assert.Equal(t, NoAddress, e.Addr())
	assert.Zero(t, e.Value())
	assert.Equal(t, "Expr{}", e.String())
	assert.False(t, e.Kind().IsBinary())
}

func TestExprOperators(t *testing.T) {
	g := NewGraph()
	x := g.Const(2)
	y := g.Const(3)

	tests := []struct {
		e    Expr
		want Kind
	}{
		{x.Add(y), KindAdd},
		{x.Sub(y), KindSub},
		{x.Mul(y), KindMul},
		{x.Div(y), KindDiv},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.e.Kind())
		assert.True(t, tt.want.IsBinary())
		assert.Equal(t, []Expr{x, y}, tt.e.Args())
	}

	assert.Equal(t, 3.0, y.Value())
	assert.False(t, KindLoad.IsBinary())
	assert.Equal(t, "/", KindDiv.Operator())
}

func TestGraphRecordsConstructionErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(g *Graph)
	}{
		{"unset_load", func(g *Graph) { g.Load(NoAddress) }},
		{"stream_out_of_range", func(g *Graph) { g.Load(Addr(3, 1, 0)) }},
		{"unset_store", func(g *Graph) { g.Store(g.Const(1), NoAddress) }},
		{"empty_value", func(g *Graph) { g.Store(Expr{}, Addr(0, 1, 0)) }},
		{"foreign_operand", func(g *Graph) {
			other := NewGraph()
			g.Const(1).Add(other.Const(2))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph()
			tt.build(g)

			require.Error(t, g.Err())
			assert.ErrorIs(t, g.Err(), ErrMalformed, "%v", g.Err())

			g.Store(g.Const(1), Addr(0, 1, 0))

			_, err := Instructions(g.Root())
			assert.ErrorIs(t, err, ErrMalformed, "later stages refuse the graph: %v", err)
		})
	}
}

func TestGraphKeepsFirstError(t *testing.T) {
	g := NewGraph()
	g.Load(NoAddress)
	first := g.Err()

	g.Load(Addr(7, 1, 0))
	assert.Equal(t, first, g.Err())
}

func TestInstructionsOrder(t *testing.T) {
	g := NewGraph()

	a := g.Load(Addr(0, 1, 0))
	b := g.Load(Addr(1, 1, 0))
	shared := a.Mul(b)
	s0 := g.Store(shared.Add(a), Addr(2, 1, 0))
	s1 := g.Store(shared.Sub(b), Addr(2, 1, 1))

	inst, err := Instructions(g.Root())
	require.NoError(t, err)

	pos := make(map[Expr]int)
	for i, e := range inst {
		_, dup := pos[e]
		require.False(t, dup, "%v appears twice", e)

		pos[e] = i
	}

	for _, e := range inst {
		for _, arg := range e.Args() {
			assert.Less(t, pos[arg], pos[e], "%v before %v", arg, e)
		}
	}

	assert.Equal(t, g.Root(), inst[len(inst)-1])
	assert.Less(t, pos[s0], pos[s1])

	counts := CountKinds(inst)
	assert.Equal(t, map[Kind]int{
		KindLoad:    2,
		KindMul:     1,
		KindAdd:     1,
		KindSub:     1,
		KindStore:   2,
		KindCombine: 1,
	}, counts)

	reach, err := Reachable(g.Root())
	require.NoError(t, err)
	assert.Len(t, reach, len(inst))
	assert.Equal(t, g.Root(), reach[0])
}

func TestInstructionsEmptyRoot(t *testing.T) {
	_, err := Instructions(Expr{})
	assert.ErrorIs(t, err, ErrMalformed)
}
