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
	"fmt"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"
)

// Graph owns every node of a scalar kernel. Nodes are appended and never
// mutated afterwards, except for the root combine which collects stores.
type Graph struct {
	nodes []Op
	root  NodeID

	// err is the first construction error. Handle operators cannot return
	// errors, so they record here and the passes refuse the graph.
	err error
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{root: NoNode}
}

// Expr is a handle to a node of a Graph. The zero Expr is empty.
// Two handles are equal exactly when they refer to the same node.
type Expr struct {
	g  *Graph
	id NodeID
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Err returns the first construction error, if any.
func (g *Graph) Err() error {
	return g.err
}

// Node returns the op with the given id.
func (g *Graph) Node(id NodeID) Op {
	return g.nodes[id]
}

// Expr returns the handle of id.
func (g *Graph) Expr(id NodeID) Expr {
	if id < 0 || int(id) >= len(g.nodes) {
		return Expr{}
	}

	return Expr{g: g, id: id}
}

// Root returns the combine node collecting all stores. It is empty until
// the first Store.
func (g *Graph) Root() Expr {
	if g.root == NoNode {
		return Expr{}
	}

	return Expr{g: g, id: g.root}
}

func (g *Graph) add(op Op) Expr {
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, op)

	return Expr{g: g, id: id}
}

func (g *Graph) fail(err error) {
	if g.err != nil {
		return
	}

	g.err = err

	tlog.Printw("ir: bad construction", "err", err, "from", loc.Caller(2))
}

// Const creates a literal node.
func (g *Graph) Const(v float64) Expr {
	return g.add(Const{Value: v})
}

// Load creates a node reading addr.
func (g *Graph) Load(addr Address) Expr {
	if err := checkAddr(addr); err != nil {
		g.fail(errors.Wrap(err, "load"))
	}

	return g.add(Load{Addr: addr})
}

// Store writes value to addr and registers the store with the root combine,
// creating the root on first use. It returns the store node.
func (g *Graph) Store(value Expr, addr Address) Expr {
	if err := checkAddr(addr); err != nil {
		g.fail(errors.Wrap(err, "store"))
	}

	if !g.owns(value) {
		g.fail(errors.Wrap(ErrMalformed, "store of a foreign or empty expression"))
	}

	if g.root == NoNode {
		g.root = g.add(Combine{}).id
	}

	st := g.add(Store{Addr: addr, Value: value.id})

	c := g.nodes[g.root].(Combine)
	c.Stores = append(c.Stores, st.id)
	g.nodes[g.root] = c

	return st
}

func (g *Graph) owns(e Expr) bool {
	return e.g == g && e.id >= 0 && int(e.id) < len(g.nodes)
}

func checkAddr(a Address) error {
	if !a.Initialized() {
		return errors.Wrap(ErrMalformed, "unset address")
	}

	if !a.validStream() {
		return errors.Wrap(ErrMalformed, "stream id %d out of range [0, %d)", a.StreamID, NumStreams)
	}

	return nil
}

func (e Expr) binary(k Kind, o Expr) Expr {
	g := e.g
	if g == nil {
		g = o.g
	}

	if g == nil {
		return Expr{}
	}

	if !g.owns(e) || !g.owns(o) {
		g.fail(errors.Wrap(ErrMalformed, "%v of a foreign or empty expression", k))
	}

	return g.add(Binary{Op: k, LHS: e.id, RHS: o.id})
}

// Add returns e + o.
func (e Expr) Add(o Expr) Expr { return e.binary(KindAdd, o) }

// Sub returns e - o.
func (e Expr) Sub(o Expr) Expr { return e.binary(KindSub, o) }

// Mul returns e * o.
func (e Expr) Mul(o Expr) Expr { return e.binary(KindMul, o) }

// Div returns e / o.
func (e Expr) Div(o Expr) Expr { return e.binary(KindDiv, o) }

// IsZero reports whether e is the empty handle.
func (e Expr) IsZero() bool {
	return e.g == nil
}

// Graph returns the graph e belongs to.
func (e Expr) Graph() *Graph {
	return e.g
}

// ID returns the node id of e, or NoNode for the empty handle.
func (e Expr) ID() NodeID {
	if e.g == nil {
		return NoNode
	}

	return e.id
}

// Less orders handles by node identity.
func (e Expr) Less(o Expr) bool {
	return e.ID() < o.ID()
}

// Op returns the node e refers to, or nil for the empty handle.
func (e Expr) Op() Op {
	if e.g == nil {
		return nil
	}

	return e.g.nodes[e.id]
}

// Kind returns the operation tag of e, KindInvalid for the empty handle.
func (e Expr) Kind() Kind {
	if e.g == nil {
		return KindInvalid
	}

	return e.Op().Kind()
}

// Args returns the operand handles of e.
func (e Expr) Args() []Expr {
	if e.g == nil {
		return nil
	}

	ids := e.Op().Args()
	args := make([]Expr, len(ids))

	for i, id := range ids {
		args[i] = Expr{g: e.g, id: id}
	}

	return args
}

// Addr returns the address of a load or store, NoAddress otherwise.
func (e Expr) Addr() Address {
	a, _ := addrOf(e.Op())
	return a
}

// Value returns the literal of a constant node.
func (e Expr) Value() float64 {
	if c, ok := e.Op().(Const); ok {
		return c.Value
	}

	return 0
}

// String returns a debug representation of the node.
func (e Expr) String() string {
	if e.g == nil {
		return "Expr{}"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Expr{ID:%d Kind:%s", e.id, e.Kind())

	switch x := e.Op().(type) {
	case Binary:
		fmt.Fprintf(&sb, " In:[%d %d]", x.LHS, x.RHS)
	case Load:
		fmt.Fprintf(&sb, " Addr:%v", x.Addr)
	case Store:
		fmt.Fprintf(&sb, " Addr:%v In:[%d]", x.Addr, x.Value)
	case Combine:
		fmt.Fprintf(&sb, " Stores:%d", len(x.Stores))
	case Const:
		fmt.Fprintf(&sb, " Value:%g", x.Value)
	}

	sb.WriteString("}")

	return sb.String()
}
