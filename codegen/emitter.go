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

// Package codegen emits C++ source for vectorized kernels, either as one
// SIMD statement per vector node or as one scalar statement per lane.
package codegen

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/go-highway/tlang/ir"
)

var (
	// ErrNotImplemented marks access patterns and group sizes the generator
	// refuses to emit rather than emitting wrong code.
	ErrNotImplemented = errors.New("not implemented")

	// ErrMalformed is ir.ErrMalformed.
	ErrMalformed = ir.ErrMalformed
)

// Mode selects how vector nodes are emitted.
type Mode uint8

const (
	// ModeVector emits one SIMD statement per vector node.
	ModeVector Mode = iota

	// ModeScalar emits one scalar statement per lane.
	ModeScalar
)

// String returns a human-readable name for the Mode.
func (m Mode) String() string {
	switch m {
	case ModeVector:
		return "vector"
	case ModeScalar:
		return "scalar"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// ParseMode parses "vector" or "scalar".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "vector", "":
		return ModeVector, nil
	case "scalar":
		return ModeScalar, nil
	default:
		return 0, errors.New("unknown mode %q", s)
	}
}

// Stats counts what a generation pass produced.
type Stats struct {
	Statements int
	Loads      int
	Stores     int
	Arith      int
	Constants  int
	Shuffles   int

	// Visits counts node visits including repeated ones on shared subgraphs.
	Visits int
}

// Source is a generated translation unit exporting one kernel function.
type Source struct {
	Name      string
	Text      string
	Mode      Mode
	Width     int
	NumGroups int
	Stats     Stats

	// Aligned marks streams accessed with aligned loads or stores.
	Aligned [ir.NumStreams]bool

	touches []touch
}

// touch is one emitted load or store.
type touch struct {
	addrs []ir.Address
	acc   *Access
}

// Generator emits kernel source for a profile.
type Generator struct {
	Profile *Profile
	Mode    Mode
}

// emitter holds per-pass generation state. The graph itself is never
// written to, so one vector graph may be emitted concurrently.
type emitter struct {
	*Generator

	v   *ir.Vector
	buf bytes.Buffer

	indent int

	visited []bool
	names   []string

	stats Stats

	aligned [ir.NumStreams]bool
	touches []touch
}

// Emit generates the source of a kernel named name computing v.
func (gen *Generator) Emit(v *ir.Vector, name string) (*Source, error) {
	if v == nil || len(v.Nodes) == 0 {
		return nil, errors.Wrap(ErrMalformed, "empty vector graph")
	}

	if gen.Profile == nil {
		return nil, errors.Wrap(ErrMalformed, "no profile")
	}

	if gen.Mode == ModeVector && v.Width() != gen.Profile.Width {
		return nil, errors.Wrap(ErrNotImplemented, "%d lanes in a %d-lane %s register", v.Width(), gen.Profile.Width, gen.Profile.TargetName)
	}

	e := &emitter{
		Generator: gen,
		v:         v,
		visited:   make([]bool, len(v.Nodes)),
		names:     make([]string, len(v.Nodes)),
	}

	e.prologue(name)

	e.indent = 2
	if err := e.visit(v.Root); err != nil {
		return nil, errors.Wrap(err, "emit %v", name)
	}

	e.indent = 1
	e.writef("}\n")
	e.indent = 0
	e.writef("}\n")

	src := &Source{
		Name:      name,
		Text:      e.buf.String(),
		Mode:      gen.Mode,
		Width:     v.Width(),
		NumGroups: v.NumGroups,
		Stats:     e.stats,
		Aligned:   e.aligned,
		touches:   e.touches,
	}

	tlog.V("codegen").Printw("emitted", "name", name, "mode", gen.Mode, "target", gen.Profile.TargetName, "statements", e.stats.Statements, "visits", e.stats.Visits)

	if tlog.If("dump") {
		tlog.Printw("generated source", "name", name, "text", src.Text)
	}

	return src, nil
}

func (e *emitter) prologue(name string) {
	e.writef("// Code generated by tlang. DO NOT EDIT.\n\n")
	e.writef("%s\n\n", e.Profile.Include)
	e.writef("typedef float float32;\n")
	e.writef("typedef double float64;\n\n")

	params := make([]string, ir.NumStreams)
	for s := range params {
		params[s] = "float32 *" + streamName(int64(s))
	}

	e.writef("extern \"C\" void %s(%s, int n) {\n", name, strings.Join(params, ", "))

	e.indent = 1
	e.writef("for (int i = 0, g = 0; i < n; i += %d, g++) {\n", e.v.NumGroups)
	e.indent = 0
}

// visit emits id after its operands. A node is emitted at most once.
func (e *emitter) visit(id ir.VID) error {
	e.stats.Visits++

	if e.visited[id] {
		return nil
	}
	e.visited[id] = true

	n := e.v.Node(id)

	for _, arg := range n.Args {
		if err := e.visit(arg); err != nil {
			return err
		}
	}

	e.names[id] = fmt.Sprintf("var_%04d", id)

	var err error

	switch {
	case n.Kind == ir.KindCombine:
	case n.Kind.IsBinary():
		err = e.emitArith(id, n)
	case n.Kind == ir.KindLoad:
		err = e.emitLoad(id, n)
	case n.Kind == ir.KindStore:
		err = e.emitStore(id, n)
	case n.Kind == ir.KindConstant:
		err = e.emitConst(id, n)
	default:
		err = errors.Wrap(ErrMalformed, "%v node %d", n.Kind, id)
	}

	if err != nil {
		return errors.Wrap(err, "node %d (%v)", id, n.Kind)
	}

	return nil
}

func (e *emitter) emitArith(id ir.VID, n *ir.VNode) error {
	if len(n.Args) != 2 {
		return errors.Wrap(ErrMalformed, "%v with %d operands", n.Kind, len(n.Args))
	}

	lhs, rhs := e.names[n.Args[0]], e.names[n.Args[1]]
	op := n.Kind.Operator()

	e.stats.Arith++

	if e.Mode == ModeScalar {
		for l := range e.v.Width() {
			e.statement("float32 %s = %s %s %s;\n", lane(e.names[id], l), lane(lhs, l), op, lane(rhs, l))
		}

		return nil
	}

	e.statement("%s %s = %s %s %s;\n", e.Profile.VecType, e.names[id], lhs, op, rhs)

	return nil
}

func (e *emitter) emitLoad(id ir.VID, n *ir.VNode) error {
	addrs := e.v.MemberAddrs(id)

	e.stats.Loads++

	if e.Mode == ModeScalar {
		e.touches = append(e.touches, touch{addrs: addrs})

		for l := range e.v.Width() {
			e.statement("float32 %s = %s;\n", lane(e.names[id], l), e.laneRef(addrs, l))
		}

		return nil
	}

	acc, err := InferAccess(addrs, e.v.GroupSize, e.v.NumGroups)
	if err != nil {
		return err
	}

	e.touch(addrs, acc)

	load := e.Profile.LoadUFn
	if acc.Aligned {
		load = e.Profile.LoadFn
	}

	name := e.names[id]
	imm := name + "_immediate"
	vt := e.Profile.VecType

	e.statement("%s %s = %s(&%s[%s]);\n", vt, imm, load, streamName(acc.Stream), acc.Index())

	if acc.Shuffle == ShuffleNone {
		e.statement("%s %s = %s;\n", vt, name, imm)
		return nil
	}

	e.stats.Shuffles++
	e.statement("%s %s = %s(%s, %s, 0x%X);\n", vt, name, e.Profile.ShuffleFn, imm, imm, acc.Shuffle.Imm())

	return nil
}

func (e *emitter) emitStore(id ir.VID, n *ir.VNode) error {
	if len(n.Args) != 1 {
		return errors.Wrap(ErrMalformed, "store with %d operands", len(n.Args))
	}

	addrs := e.v.MemberAddrs(id)
	value := e.names[n.Args[0]]

	e.stats.Stores++

	if e.Mode == ModeScalar {
		e.touches = append(e.touches, touch{addrs: addrs})

		for l := range e.v.Width() {
			e.statement("%s = %s;\n", e.laneRef(addrs, l), lane(value, l))
		}

		return nil
	}

	acc, err := InferAccess(addrs, e.v.GroupSize, e.v.NumGroups)
	if err != nil {
		return err
	}

	if acc.Shuffle != ShuffleNone {
		return errors.Wrap(ErrNotImplemented, "store lanes %v need a %v shuffle", acc.Lanes, acc.Shuffle)
	}

	e.touch(addrs, acc)

	store := e.Profile.StoreUFn
	if acc.Aligned {
		store = e.Profile.StoreFn
	}

	e.statement("%s(&%s[%s], %s);\n", store, streamName(acc.Stream), acc.Index(), value)

	return nil
}

func (e *emitter) emitConst(id ir.VID, n *ir.VNode) error {
	vals := e.v.MemberValues(id)
	gs := e.v.GroupSize

	e.stats.Constants++

	if e.Mode == ModeScalar {
		for l := range e.v.Width() {
			e.statement("float32 %s = %s;\n", lane(e.names[id], l), floatLit(vals[l%gs]))
		}

		return nil
	}

	uniform := true
	for _, x := range vals {
		if x != vals[0] {
			uniform = false
		}
	}

	if uniform {
		e.statement("%s %s = %s(%s);\n", e.Profile.VecType, e.names[id], e.Profile.Set1Fn, floatLit(vals[0]))
		return nil
	}

	lits := make([]string, e.v.Width())
	for l := range lits {
		lits[l] = floatLit(vals[l%gs])
	}

	e.statement("%s %s = %s(%s);\n", e.Profile.VecType, e.names[id], e.Profile.SetrFn, strings.Join(lits, ", "))

	return nil
}

func (e *emitter) touch(addrs []ir.Address, acc *Access) {
	e.touches = append(e.touches, touch{addrs: addrs, acc: acc})

	if acc.Aligned {
		e.aligned[acc.Stream] = true
	}
}

// laneRef renders the element lane l of a member address refers to in the
// current loop iteration.
func (e *emitter) laneRef(addrs []ir.Address, l int) string {
	a := addrs[l%e.v.GroupSize]
	gi := l / e.v.GroupSize

	var b strings.Builder

	fmt.Fprintf(&b, "%s[%d * (i + %d) + %d * n + %d", streamName(a.StreamID), a.CoeffI, gi, a.CoeffIMax, a.CoeffConst)

	if a.AOSOAStride != 0 {
		fmt.Fprintf(&b, " + ((i + %d) / %d) * %d", gi, a.AOSOAGroupSize, a.AOSOAStride)
	}

	b.WriteString("]")

	return b.String()
}

func (e *emitter) statement(format string, args ...any) {
	e.stats.Statements++
	e.writef(format, args...)
}

// writef writes a formatted line with indentation.
func (e *emitter) writef(format string, args ...any) {
	for range e.indent {
		e.buf.WriteString("\t")
	}

	fmt.Fprintf(&e.buf, format, args...)
}

func streamName(id int64) string {
	return fmt.Sprintf("stream%02d", id)
}

func lane(name string, l int) string {
	return fmt.Sprintf("%s_%03d", name, l)
}

// floatLit renders v as a float32 C literal.
func floatLit(v float64) string {
	f := float32(v)

	switch {
	case math.IsNaN(float64(f)):
		return `__builtin_nanf("")`
	case math.IsInf(float64(f), 1):
		return "__builtin_inff()"
	case math.IsInf(float64(f), -1):
		return "(-__builtin_inff())"
	}

	s := strconv.FormatFloat(float64(f), 'g', -1, 32)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}

	return s + "f"
}
