/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package seaopt is a peephole optimizer for sea-of-nodes SSA graphs. It
// collapses if-diamonds into selects, fuses guard chains, canonicalizes
// comparisons and forwards or hoists loads past unrelated stores.
package seaopt

import (
	"github.com/cloudwego/seaopt/internal/ir"
	"github.com/cloudwego/seaopt/internal/irfile"
	"github.com/cloudwego/seaopt/internal/opts"
	"github.com/cloudwego/seaopt/internal/sched"
)

type (
	// Graph is a function in sea-of-nodes form.
	Graph = ir.Graph

	// Builder constructs a Graph block by block.
	Builder = ir.Builder

	// Stats counts what one Optimize call did.
	Stats = sched.Stats
)

// NewBuilder starts a new function named name.
func NewBuilder(name string) *Builder {
	return ir.CreateBuilder(name)
}

// LoadGraph reads a graph from a TOML fixture file.
func LoadGraph(path string) (*Graph, error) {
	return irfile.Load(path)
}

// Optimize rewrites g in place until no rule applies any more.
//
// Nodes that become unreachable are left in the graph as dead nodes, the
// caller is expected to run its own dead code elimination afterwards.
func Optimize(g *Graph, options ...Option) error {
	return OptimizeWithStats(g, nil, options...)
}

// OptimizeWithStats is like Optimize, and also reports what the run did into
// stats when it is not nil.
func OptimizeWithStats(g *Graph, stats *Stats, options ...Option) error {
	o := opts.GetDefaultOptions()
	for _, fn := range options {
		fn(&o)
	}

	/* run the driver */
	d := sched.NewDriver(o)
	err := d.Run(g)

	/* report even if it did not converge */
	if stats != nil {
		*stats = d.Stats
	}
	return err
}
