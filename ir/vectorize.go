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
	"slices"

	"github.com/samber/lo"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

// VID is the index of a node within a Vector.
type VID int32

// VNode is one fused operation standing in for GroupSize isomorphic scalar
// nodes, one per member.
type VNode struct {
	Kind Kind

	// Args are the operand groups, one per child position.
	Args []VID

	// Members are the scalar nodes fused into this node, in lane order.
	// Empty for the combine root.
	Members []NodeID

	// Addr is derived from the first member for loads and stores.
	Addr Address

	Vectorized bool
}

// Vector is the vectorized form of a scalar graph. Nodes are stored
// operands first, so index order is a valid emission order.
type Vector struct {
	Scalar *Graph

	GroupSize int
	NumGroups int

	Nodes []VNode
	Root  VID

	toVector map[NodeID]VID
}

// Vectorize groups the stores under root into chunks of groupSize lanes and
// fuses every chunk, recursively through its operands, into vector nodes.
// Each vector lane-group is repeated numGroups times in a SIMD register.
func Vectorize(root Expr, groupSize, numGroups int) (_ *Vector, err error) {
	if err := checkRoot(root); err != nil {
		return nil, err
	}

	if groupSize < 1 || numGroups < 1 {
		return nil, errors.Wrap(ErrMalformed, "group size %d, num groups %d", groupSize, numGroups)
	}

	c, ok := root.Op().(Combine)
	if !ok {
		return nil, errors.Wrap(ErrMalformed, "root is %v, want combine", root.Kind())
	}

	if len(c.Stores)%groupSize != 0 {
		return nil, errors.Wrap(ErrMalformed, "%d stores is not a multiple of group size %d", len(c.Stores), groupSize)
	}

	v := &Vector{
		Scalar:    root.g,
		GroupSize: groupSize,
		NumGroups: numGroups,
		toVector:  make(map[NodeID]VID),
	}

	var stores []VID

	for k := 0; k < len(c.Stores)/groupSize; k++ {
		members := c.Stores[k*groupSize : (k+1)*groupSize]

		if err := checkGroupAddresses(root.g, members); err != nil {
			return nil, errors.Wrap(err, "store group %d", k)
		}

		id, err := v.Group(members)
		if err != nil {
			return nil, errors.Wrap(err, "store group %d", k)
		}

		stores = append(stores, id)
	}

	v.Root = v.add(VNode{Kind: KindCombine, Args: stores, Vectorized: true})

	tlog.V("vectorize").Printw("vectorized", "stores", len(c.Stores), "groups", len(stores), "nodes", len(v.Nodes), "group_size", groupSize, "num_groups", numGroups)

	return v, nil
}

// checkGroupAddresses verifies that consecutive stores either all write the
// same element or form an increasing run of neighbouring elements.
func checkGroupAddresses(g *Graph, members []NodeID) error {
	var hasPriorTo, hasSame bool

	for i, m := range members {
		st, ok := g.nodes[m].(Store)
		if !ok {
			return errors.Wrap(ErrMalformed, "root child %d is %v, want store", m, g.nodes[m].Kind())
		}

		if i == 0 {
			continue
		}

		prev := g.nodes[members[i-1]].(Store).Addr

		switch {
		case prev.PriorTo(st.Addr):
			hasPriorTo = true
		case prev.Equal(st.Addr):
			hasSame = true
		default:
			return errors.Wrap(ErrAddressing, "%v then %v", prev, st.Addr)
		}
	}

	if hasPriorTo && hasSame {
		return errors.Wrap(ErrAddressing, "group mixes identical and neighbouring addresses")
	}

	return nil
}

// Group returns the vector node fusing members, building it and its operand
// groups on first request. A later request whose first member is already
// vectorized returns the existing node.
func (v *Vector) Group(members []NodeID) (VID, error) {
	g := v.Scalar

	if len(members) != v.GroupSize {
		return 0, errors.Wrap(ErrMalformed, "group of %d members, want %d", len(members), v.GroupSize)
	}

	if id, ok := v.toVector[members[0]]; ok {
		if !slices.Equal(v.Nodes[id].Members, members) {
			return 0, errors.Wrap(ErrMalformed, "node %d already vectorized with members %v, requested %v", members[0], v.Nodes[id].Members, members)
		}

		return id, nil
	}

	first := g.nodes[members[0]]
	kind := first.Kind()
	arity := len(first.Args())

	for _, m := range members {
		if id, ok := v.toVector[m]; ok {
			return 0, errors.Wrap(ErrMalformed, "node %d already belongs to vector node %d", m, id)
		}

		op := g.nodes[m]
		if op.Kind() != kind || len(op.Args()) != arity {
			return 0, errors.Wrap(ErrIsomorphism, "node %d is %v/%d, node %d is %v/%d", members[0], kind, arity, m, op.Kind(), len(op.Args()))
		}
	}

	if kind == KindCombine {
		return 0, errors.Wrap(ErrMalformed, "combine inside a vector group")
	}

	args := make([]VID, arity)

	for pos := range arity {
		children := lo.Map(members, func(m NodeID, _ int) NodeID {
			return g.nodes[m].Args()[pos]
		})

		id, err := v.Group(children)
		if err != nil {
			return 0, errors.Wrap(err, "%v operand %d", kind, pos)
		}

		args[pos] = id
	}

	addr := NoAddress
	if a, ok := addrOf(first); ok {
		addr = a

		if addr.AOSOAGroupSize == 0 {
			addr.AOSOAGroupSize = int64(v.NumGroups)
			addr.AOSOAStride = 0
		}
	}

	id := v.add(VNode{
		Kind:       kind,
		Args:       args,
		Members:    slices.Clone(members),
		Addr:       addr,
		Vectorized: true,
	})

	for _, m := range members {
		v.toVector[m] = id
	}

	return id, nil
}

func (v *Vector) add(n VNode) VID {
	id := VID(len(v.Nodes))
	v.Nodes = append(v.Nodes, n)

	return id
}

// Node returns the vector node with the given id.
func (v *Vector) Node(id VID) *VNode {
	return &v.Nodes[id]
}

// Lookup returns the vector node a scalar node was fused into.
func (v *Vector) Lookup(n NodeID) (VID, bool) {
	id, ok := v.toVector[n]
	return id, ok
}

// Width returns the number of scalar lanes per register.
func (v *Vector) Width() int {
	return v.GroupSize * v.NumGroups
}

// MemberAddrs returns the addresses of the members of a load or store node.
func (v *Vector) MemberAddrs(id VID) []Address {
	return lo.Map(v.Nodes[id].Members, func(m NodeID, _ int) Address {
		a, _ := addrOf(v.Scalar.nodes[m])
		return a
	})
}

// MemberValues returns the literals of the members of a constant node.
func (v *Vector) MemberValues(id VID) []float64 {
	return lo.Map(v.Nodes[id].Members, func(m NodeID, _ int) float64 {
		c, _ := v.Scalar.nodes[m].(Const)
		return c.Value
	})
}
