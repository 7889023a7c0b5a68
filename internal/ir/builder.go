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

package ir

import (
    `fmt`
)

// Builder constructs a graph block by block. The current block is extended
// through its effect chain; terminators close it.
type Builder struct {
    g     *Graph
    cur   ID
    nargs int
}

func CreateBuilder(name string) *Builder {
    g := NewGraph(name)
    s := g.Alloc(KindStart, Control, nil)
    return &Builder { g: g, cur: s }
}

func (self *Builder) Graph() *Graph {
    return self.g
}

// Current returns the last control node of the current block.
func (self *Builder) Current() ID {
    return self.cur
}

// Param declares the next function parameter.
func (self *Builder) Param(dt DataType) ID {
    self.nargs++
    return self.g.Alloc(KindProj, dt, &ProjInfo { Index: self.nargs }, self.g.Start)
}

// Region creates a block header without predecessors. Edges are added when
// other blocks branch into it.
func (self *Builder) Region() ID {
    return self.g.Alloc(KindRegion, Control, nil)
}

// SetBlock continues building at the end of the block headed by region.
func (self *Builder) SetBlock(region ID) {
    if !self.g.Kind(region).IsBlockHeader() {
        panic(fmt.Sprintf("ir: %s is not a block header", region))
    }
    self.cur = region
}

func (self *Builder) Int(dt DataType, v uint64) ID {
    return self.g.Alloc(KindIntConst, dt, &IntInfo { Words: []uint64 { v } })
}

func (self *Builder) Cmp(kind Kind, x ID, y ID) ID {
    if !kind.IsCompare() {
        panic("ir: not a comparison: " + kind.String())
    }
    return self.g.Alloc(kind, Bool, &CompareInfo { CmpType: self.g.Type(x) }, Nil, x, y)
}

func (self *Builder) Add(x ID, y ID) ID {
    return self.g.Alloc(KindAdd, self.g.Type(x), nil, Nil, x, y)
}

func (self *Builder) Select(cond ID, t ID, f ID) ID {
    return self.g.Alloc(KindSelect, self.g.Type(t), nil, Nil, cond, t, f)
}

func (self *Builder) Member(base ID, offset int64) ID {
    return self.g.Alloc(KindMemberAccess, Ptr, &MemberInfo { Offset: offset }, Nil, base)
}

// Load reads memory at the current point of the effect chain. It does not
// extend the chain.
func (self *Builder) Load(dt DataType, addr ID, align uint32) ID {
    return self.g.Alloc(KindLoad, dt, &MemInfo { Align: align }, self.cur, addr)
}

func (self *Builder) Store(addr ID, val ID, align uint32) ID {
    self.cur = self.g.Alloc(KindStore, Control, &MemInfo { Align: align }, self.cur, addr, val)
    return self.cur
}

func (self *Builder) Memcpy(dst ID, src ID, size ID) ID {
    self.cur = self.g.Alloc(KindMemcpy, Control, nil, self.cur, dst, src, size)
    return self.cur
}

func (self *Builder) Call(name string, args ...ID) ID {
    self.cur = self.g.Alloc(KindCall, Control, &CallInfo { Name: name }, append([]ID { self.cur }, args...)...)
    return self.cur
}

// Phi merges one value per predecessor of region, in predecessor order.
func (self *Builder) Phi(region ID, dt DataType, vals ...ID) ID {
    if n := self.g.InputCount(region); n != len(vals) {
        panic(fmt.Sprintf("ir: %s has %d predecessors, got %d phi operands", region, n, len(vals)))
    }
    return self.g.Alloc(KindPhi, dt, nil, append([]ID { region }, vals...)...)
}

// Goto ends the current block with an unconditional jump.
func (self *Builder) Goto(dst ID) ID {
    return self.terminate(Nil, nil, dst)
}

// If ends the current block with a two-way branch on cond != 0. The true
// edge is successor 0.
func (self *Builder) If(cond ID, t ID, f ID) ID {
    return self.IfKey(cond, 0, t, f)
}

// IfKey ends the current block with a two-way branch that goes to f when
// cond equals key and to t otherwise.
func (self *Builder) IfKey(cond ID, key uint64, t ID, f ID) ID {
    return self.terminate(cond, []uint64 { key }, t, f)
}

// Switch ends the current block with an N-way branch.
func (self *Builder) Switch(cond ID, def ID, keys []uint64, cases ...ID) ID {
    if len(keys) != len(cases) {
        panic("ir: switch keys and cases mismatch")
    }
    return self.terminate(cond, keys, append([]ID { def }, cases...)...)
}

func (self *Builder) Return(vals ...ID) ID {
    ret := self.g.Alloc(KindReturn, Control, nil, append([]ID { self.cur }, vals...)...)
    self.cur = Nil
    return ret
}

func (self *Builder) terminate(cond ID, keys []uint64, succ ...ID) ID {
    var ins []ID
    if cond == Nil {
        ins = []ID { self.cur }
    } else {
        ins = []ID { self.cur, cond }
    }

    /* the branch itself */
    br := self.g.Alloc(KindBranch, Control, &BranchInfo {
        Succ: append([]ID(nil), succ...),
        Keys: append([]uint64(nil), keys...),
    }, ins...)

    /* one projection per outgoing edge */
    for i, s := range succ {
        proj := self.g.Alloc(KindProj, Control, &ProjInfo { Index: i }, br)
        self.g.AddInput(s, proj)
    }

    /* the block is closed */
    self.cur = Nil
    return br
}

// Build verifies and returns the graph.
func (self *Builder) Build() *Graph {
    if err := self.g.Verify(); err != nil {
        panic(err)
    }
    return self.g
}
