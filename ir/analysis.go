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

import "tlog.app/go/errors"

// Instructions returns every node reachable from root in dependency order:
// operands come before their users and each node appears once.
func Instructions(root Expr) ([]Expr, error) {
	if err := checkRoot(root); err != nil {
		return nil, err
	}

	g := root.g
	visited := make([]bool, len(g.nodes))

	var result []Expr

	var walk func(NodeID)
	walk = func(id NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true

		for _, arg := range g.nodes[id].Args() {
			walk(arg)
		}

		result = append(result, Expr{g: g, id: id})
	}
	walk(root.id)

	return result, nil
}

// Reachable returns every node reachable from root, users before operands,
// each node once.
func Reachable(root Expr) ([]Expr, error) {
	if err := checkRoot(root); err != nil {
		return nil, err
	}

	g := root.g
	visited := make([]bool, len(g.nodes))

	var result []Expr

	var dfs func(NodeID)
	dfs = func(id NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true

		result = append(result, Expr{g: g, id: id})

		for _, arg := range g.nodes[id].Args() {
			dfs(arg)
		}
	}
	dfs(root.id)

	return result, nil
}

// CountKinds returns how many of exprs have each kind.
func CountKinds(exprs []Expr) map[Kind]int {
	counts := make(map[Kind]int)

	for _, e := range exprs {
		counts[e.Kind()]++
	}

	return counts
}

func checkRoot(root Expr) error {
	if root.IsZero() {
		return errors.Wrap(ErrMalformed, "empty root")
	}

	if err := root.g.Err(); err != nil {
		return errors.Wrap(err, "graph")
	}

	return nil
}
