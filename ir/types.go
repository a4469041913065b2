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

// Package ir provides the scalar expression graph of array kernels, the
// affine addressing model, and the passes that group scalar lanes into
// SIMD-width vector operations before C++ emission.
package ir

import (
	"fmt"

	"tlog.app/go/errors"
)

var (
	// ErrMalformed marks a precondition violation: a node kind reaching a
	// stage that cannot handle it, mismatched arities, unset addresses.
	ErrMalformed = errors.New("malformed ir")

	// ErrAddressing marks store groups whose addresses are neither
	// identical nor neighbouring.
	ErrAddressing = errors.New("addresses in a simd group must be identical or neighbouring")

	// ErrIsomorphism marks groups whose members differ in kind or arity.
	ErrIsomorphism = errors.New("group members are not isomorphic")
)

// Kind is the operation tag of a node.
type Kind uint8

const (
	KindMul Kind = iota
	KindAdd
	KindSub
	KindDiv
	KindLoad
	KindStore
	KindCombine
	KindConstant

	// KindInvalid is reported by the empty handle.
	KindInvalid Kind = 0xff
)

// String returns a human-readable name for the Kind.
func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindMul:
		return "mul"
	case KindAdd:
		return "add"
	case KindSub:
		return "sub"
	case KindDiv:
		return "div"
	case KindLoad:
		return "load"
	case KindStore:
		return "store"
	case KindCombine:
		return "combine"
	case KindConstant:
		return "constant"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// IsBinary reports whether k is an arithmetic operation with two operands.
func (k Kind) IsBinary() bool {
	switch k {
	case KindMul, KindAdd, KindSub, KindDiv:
		return true
	default:
		return false
	}
}

// Operator returns the C operator of a binary kind.
func (k Kind) Operator() string {
	switch k {
	case KindMul:
		return "*"
	case KindAdd:
		return "+"
	case KindSub:
		return "-"
	case KindDiv:
		return "/"
	default:
		return ""
	}
}

// NodeID is the stable index of a node within its Graph.
type NodeID int32

// NoNode is the id of the empty handle.
const NoNode NodeID = -1

type (
	// Op is one node of the graph.
	Op interface {
		Kind() Kind

		// Args returns the operands in positional order.
		Args() []NodeID
	}

	// Binary is an arithmetic node.
	Binary struct {
		Op       Kind
		LHS, RHS NodeID
	}

	// Load reads one element from a stream.
	Load struct {
		Addr Address
	}

	// Store writes Value to a stream.
	Store struct {
		Addr  Address
		Value NodeID
	}

	// Combine is the program root: an unordered bag of independent stores.
	Combine struct {
		Stores []NodeID
	}

	// Const is a literal.
	Const struct {
		Value float64
	}
)

func (x Binary) Kind() Kind     { return x.Op }
func (x Binary) Args() []NodeID { return []NodeID{x.LHS, x.RHS} }

func (Load) Kind() Kind     { return KindLoad }
func (Load) Args() []NodeID { return nil }

func (Store) Kind() Kind       { return KindStore }
func (x Store) Args() []NodeID { return []NodeID{x.Value} }

func (Combine) Kind() Kind       { return KindCombine }
func (x Combine) Args() []NodeID { return x.Stores }

func (Const) Kind() Kind     { return KindConstant }
func (Const) Args() []NodeID { return nil }

// addrOf returns the address carried by loads and stores.
func addrOf(op Op) (Address, bool) {
	switch x := op.(type) {
	case Load:
		return x.Addr, true
	case Store:
		return x.Addr, true
	default:
		return NoAddress, false
	}
}
