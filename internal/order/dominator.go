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

package order

import (
    `github.com/cloudwego/seaopt/internal/ir`
)

// DomTree is the dominator tree of the blocks reachable from the start node.
type DomTree struct {
    Root        ir.ID
    DominatedBy map[ir.ID]ir.ID
    DominatorOf map[ir.ID][]ir.ID
}

// IDom returns the immediate dominator of block, Nil for the root and for
// unreachable blocks.
func (self *DomTree) IDom(block ir.ID) ir.ID {
    return self.DominatedBy[block]
}

// Children returns the blocks immediately dominated by block.
func (self *DomTree) Children(block ir.ID) []ir.ID {
    return self.DominatorOf[block]
}

// Dominates reports whether a dominates b (every block dominates itself).
func (self *DomTree) Dominates(a ir.ID, b ir.ID) bool {
    for b != ir.Nil {
        if a == b {
            return true
        }
        b = self.DominatedBy[b]
    }
    return false
}

// Blocks are numbered in DFS preorder starting from 1, and every per-block
// slice below is indexed by that number. 0 means "none".
type _DomSolver struct {
    g      *ir.Graph
    num    map[ir.ID]int
    block  []ir.ID
    parent []int
    semi   []int
    idom   []int
    anc    []int
    label  []int
    preds  [][]int
    bucket [][]int
}

type _DfsFrame struct {
    bb   ir.ID
    next int
}

func newDomSolver(g *ir.Graph) *_DomSolver {
    return &_DomSolver {
        g      : g,
        num    : make(map[ir.ID]int),
        block  : []ir.ID { ir.Nil },
        parent : []int { 0 },
        semi   : []int { 0 },
        idom   : []int { 0 },
        anc    : []int { 0 },
        label  : []int { 0 },
        preds  : [][]int { nil },
        bucket : [][]int { nil },
    }
}

func (self *_DomSolver) visit(bb ir.ID, parent int) {
    n := len(self.block)
    self.num[bb] = n
    self.block   = append(self.block, bb)
    self.parent  = append(self.parent, parent)
    self.semi    = append(self.semi, n)
    self.idom    = append(self.idom, 0)
    self.anc     = append(self.anc, 0)
    self.label   = append(self.label, n)
    self.preds   = append(self.preds, nil)
    self.bucket  = append(self.bucket, nil)
}

func (self *_DomSolver) number(root ir.ID) {
    self.visit(root, 0)
    stack := []_DfsFrame {{ bb: root }}

    /* walk the CFG with an explicit stack, deep graphs would overflow otherwise */
    for len(stack) != 0 {
        top := &stack[len(stack) - 1]
        succ := self.g.Succs(top.bb)

        /* all successors seen */
        if top.next == len(succ) {
            stack = stack[:len(stack) - 1]
            continue
        }

        /* every edge is a predecessor, tree edge or not */
        v, w := self.num[top.bb], succ[top.next]
        top.next++
        if self.num[w] == 0 {
            self.visit(w, v)
            stack = append(stack, _DfsFrame { bb: w })
        }
        self.preds[self.num[w]] = append(self.preds[self.num[w]], v)
    }
}

func (self *_DomSolver) eval(v int) int {
    if self.anc[v] == 0 {
        return v
    } else {
        self.compress(v)
        return self.label[v]
    }
}

func (self *_DomSolver) compress(v int) {
    a := self.anc[v]
    if self.anc[a] == 0 {
        return
    }
    self.compress(a)
    if self.semi[self.label[a]] < self.semi[self.label[v]] {
        self.label[v] = self.label[a]
    }
    self.anc[v] = self.anc[a]
}

func (self *_DomSolver) solve() {
    n := len(self.block)

    /* semi-dominators in reverse preorder, resolving each parent's bucket on the way */
    for w := n - 1; w > 1; w-- {
        for _, v := range self.preds[w] {
            if u := self.eval(v); self.semi[u] < self.semi[w] {
                self.semi[w] = self.semi[u]
            }
        }

        /* link w into the forest */
        p := self.parent[w]
        self.anc[w] = p
        self.bucket[self.semi[w]] = append(self.bucket[self.semi[w]], w)

        /* a block whose path minimum has its own sdom shares that block's idom */
        for _, v := range self.bucket[p] {
            if u := self.eval(v); self.semi[u] < self.semi[v] {
                self.idom[v] = u
            } else {
                self.idom[v] = p
            }
        }
        self.bucket[p] = nil
    }

    /* deferred ones, in preorder */
    for w := 2; w < n; w++ {
        if self.idom[w] != self.semi[w] {
            self.idom[w] = self.idom[self.idom[w]]
        }
    }
}

// Dominators builds the dominator tree of g with the Lengauer-Tarjan
// algorithm (path compression, no balancing).
func Dominators(g *ir.Graph) *DomTree {
    ret := &DomTree {
        DominatedBy : make(map[ir.ID]ir.ID),
        DominatorOf : make(map[ir.ID][]ir.ID),
    }

    /* empty graphs have empty trees */
    if g.Start == ir.Nil {
        return ret
    }

    /* number and solve */
    ds := newDomSolver(g)
    ds.number(g.Start)
    ds.solve()

    /* the root has no entry of its own */
    ret.Root = g.Start
    for w := 2; w < len(ds.block); w++ {
        bb, d := ds.block[w], ds.block[ds.idom[w]]
        ret.DominatedBy[bb] = d
        ret.DominatorOf[d] = append(ret.DominatorOf[d], bb)
    }
    return ret
}
