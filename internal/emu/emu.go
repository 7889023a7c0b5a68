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

package emu

import (
    `fmt`
    `math`

    `github.com/cloudwego/seaopt/internal/ir`
    `github.com/cloudwego/seaopt/internal/target`
)

const (
    _DefaultMaxSteps = 65536
)

// Fault is raised when the graph cannot be executed: reading out of bounds,
// evaluating an unsupported node or running out of steps.
type Fault struct {
    Node   ir.ID
    Reason string
}

func (self *Fault) Error() string {
    return fmt.Sprintf("emu: fault at %s: %s", self.Node, self.Reason)
}

func fault(n ir.ID, format string, args ...interface{}) {
    panic(&Fault { Node: n, Reason: fmt.Sprintf(format, args...) })
}

// Result is everything a run can observe.
type Result struct {
    Values []uint64
    Memory []byte
    Calls  []string
    Steps  int
}

// Emulator interprets a graph. Pointers are byte offsets into a flat,
// little-endian memory image.
type Emulator struct {
    MaxSteps int
    g        *ir.Graph
    tgt      target.Info
    at       ir.ID
    mem      []byte
    args     []uint64
    phis     map[ir.ID]uint64
    loads    map[ir.ID]uint64
    calls    []string
}

func New(g *ir.Graph, tgt target.Info) *Emulator {
    return &Emulator {
        g        : g,
        tgt      : tgt,
        MaxSteps : _DefaultMaxSteps,
    }
}

// Run executes the graph from its start node with a copy of mem.
func (self *Emulator) Run(mem []byte, args ...uint64) (ret *Result, err error) {
    self.mem = append([]byte(nil), mem...)
    self.args = args
    self.phis = make(map[ir.ID]uint64)
    self.loads = make(map[ir.ID]uint64)
    self.calls = nil

    /* faults unwind the interpreter */
    defer func() {
        if v := recover(); v != nil {
            if e, ok := v.(*Fault); ok {
                ret, err = nil, e
            } else {
                panic(v)
            }
        }
    }()

    /* nothing to run */
    if self.g.Start == ir.Nil {
        return nil, &Fault { Reason: "graph has no start node" }
    }

    /* run until the function returns */
    ret = new(Result)
    ret.Values = self.exec(&ret.Steps)
    ret.Memory = self.mem
    ret.Calls = self.calls
    return
}

func (self *Emulator) exec(steps *int) []uint64 {
    self.enter(self.g.Start)
    for {
        if *steps++; *steps > self.MaxSteps {
            fault(self.at, "step limit of %d exceeded", self.MaxSteps)
        }

        /* dispatch the next effect */
        p := self.next(self.at)
        switch self.g.Kind(p) {
            case ir.KindStore  : self.emuStore(p)
            case ir.KindMemcpy : self.emuMemcpy(p)
            case ir.KindCall   : self.emuCall(p)
            case ir.KindBranch : self.emuBranch(p); continue
            case ir.KindReturn : return self.emuReturn(p)
            default            : fault(self.at, "control chain is not terminated")
        }

        /* loads see the memory right after the effect */
        self.snapshot(p)
    }
}

// next returns the effect reading p through its control slot.
func (self *Emulator) next(p ir.ID) ir.ID {
    for _, u := range self.g.Users(p) {
        if u.Slot != 0 {
            continue
        }
        switch k := self.g.Kind(u.N); {
            case k.HasEffect(), k == ir.KindBranch, k == ir.KindReturn: return u.N
        }
    }
    return ir.Nil
}

func (self *Emulator) enter(bb ir.ID) {
    self.snapshot(bb)
}

// snapshot evaluates every load hanging off the chain point p.
func (self *Emulator) snapshot(p ir.ID) {
    var ls []ir.ID
    self.at = p

    /* forget the values from the previous visit */
    for _, u := range self.g.Users(p) {
        if u.Slot == 0 && self.g.Kind(u.N) == ir.KindLoad {
            ls = append(ls, u.N)
            delete(self.loads, u.N)
        }
    }

    /* eval resolves loads that feed each other */
    for _, v := range ls {
        self.eval(v)
    }
}

func (self *Emulator) emuStore(p ir.ID) {
    addr := self.eval(self.g.In(p, 1))
    val := self.g.In(p, 2)
    self.write(p, addr, self.size(val), self.eval(val))
}

func (self *Emulator) emuMemcpy(p ir.ID) {
    dst := self.eval(self.g.In(p, 1))
    src := self.eval(self.g.In(p, 2))
    nb := self.eval(self.g.In(p, 3))
    self.check(p, dst, int(nb))
    self.check(p, src, int(nb))
    copy(self.mem[dst:dst + nb], self.mem[src:src + nb])
}

func (self *Emulator) emuCall(p ir.ID) {
    name := self.g.Node(p).Extra.(*ir.CallInfo).Name
    args := make([]interface{}, 0, self.g.InputCount(p))
    for _, v := range self.g.Node(p).Ins[1:] {
        args = append(args, self.eval(v))
    }
    self.calls = append(self.calls, fmt.Sprintf("%s%v", name, args))
}

func (self *Emulator) emuReturn(p ir.ID) []uint64 {
    ins := self.g.Node(p).Ins[1:]
    ret := make([]uint64, len(ins))
    for i, v := range ins {
        ret[i] = self.eval(v)
    }
    return ret
}

func (self *Emulator) emuBranch(p ir.ID) {
    i := 0
    bi := self.g.Branch(p)

    /* pick the edge */
    if self.g.InputCount(p) == 2 {
        cond := self.g.In(p, 1)
        dt := self.g.Type(cond)
        val := self.eval(cond)
        for j, k := range bi.Keys {
            if dt.Mask(k, self.tgt.PointerBits) == val {
                i = j + 1
                break
            }
        }
    }

    /* find the projection feeding the successor */
    dst := bi.Succ[i]
    slot := -1
    for j, v := range self.g.Node(dst).Ins {
        if self.g.Kind(v) == ir.KindProj && self.g.In(v, 0) == p && self.g.Proj(v).Index == i {
            slot = j
            break
        }
    }
    if slot < 0 {
        fault(p, "successor %s has no edge for #%d", dst, i)
    }

    /* phis move in parallel */
    phis := self.g.Phis(dst)
    vals := make([]uint64, len(phis))
    for j, phi := range phis {
        vals[j] = self.eval(self.g.In(phi, slot + 1))
    }
    for j, phi := range phis {
        self.phis[phi] = vals[j]
    }
    self.enter(dst)
}

func (self *Emulator) size(n ir.ID) int {
    return (self.g.Type(n).BitsIn(self.tgt.PointerBits) + 7) / 8
}

func (self *Emulator) check(p ir.ID, addr uint64, nb int) {
    if nb < 0 || addr > uint64(len(self.mem)) || uint64(nb) > uint64(len(self.mem)) - addr {
        fault(p, "access of %d bytes at %#x is out of bounds", nb, addr)
    }
}

func (self *Emulator) read(p ir.ID, addr uint64, nb int) (v uint64) {
    self.check(p, addr, nb)
    for i := nb - 1; i >= 0; i-- {
        v = v << 8 | uint64(self.mem[addr + uint64(i)])
    }
    return
}

func (self *Emulator) write(p ir.ID, addr uint64, nb int, v uint64) {
    self.check(p, addr, nb)
    for i := 0; i < nb; i++ {
        self.mem[addr + uint64(i)] = byte(v)
        v >>= 8
    }
}

// eval computes a value at the current chain point.
func (self *Emulator) eval(n ir.ID) uint64 {
    g := self.g
    dt := g.Type(n)
    return dt.Mask(self.value(n), self.tgt.PointerBits)
}

func (self *Emulator) value(n ir.ID) uint64 {
    g := self.g
    switch k := g.Kind(n); {
        case k == ir.KindIntConst     : return self.evalConst(n)
        case k == ir.KindProj         : return self.evalParam(n)
        case k == ir.KindPhi          : return self.evalPhi(n)
        case k == ir.KindLoad         : return self.evalLoad(n)
        case k == ir.KindSelect       : return self.evalSelect(n)
        case k == ir.KindAdd          : return self.eval(g.In(n, 1)) + self.eval(g.In(n, 2))
        case k == ir.KindMemberAccess : return self.eval(g.In(n, 1)) + uint64(self.tgt.ScaleOffset(g.Member(n).Offset) / 8)
        case k.IsCompare()            : return self.evalCompare(n)
        default                       : fault(n, "cannot evaluate %s", k); return 0
    }
}

func (self *Emulator) evalConst(n ir.ID) uint64 {
    if v, ok := self.g.IntValue(n); !ok {
        fault(n, "multi-word constants are not supported")
        return 0
    } else {
        return v
    }
}

func (self *Emulator) evalParam(n ir.ID) uint64 {
    idx := self.g.Proj(n).Index
    if self.g.In(n, 0) != self.g.Start {
        fault(n, "control projection used as a value")
    }
    if idx < 1 || idx > len(self.args) {
        fault(n, "missing argument %d", idx)
    }
    return self.args[idx - 1]
}

func (self *Emulator) evalPhi(n ir.ID) uint64 {
    if v, ok := self.phis[n]; !ok {
        fault(n, "phi read before its block was entered")
        return 0
    } else {
        return v
    }
}

func (self *Emulator) evalLoad(n ir.ID) uint64 {
    if v, ok := self.loads[n]; ok {
        return v
    }

    /* only loads of the current chain point can be read lazily */
    if self.g.In(n, 0) != self.at {
        fault(n, "load read before its chain point executed")
    }

    /* read the memory now */
    v := self.read(n, self.eval(self.g.In(n, 1)), self.size(n))
    self.loads[n] = v
    return v
}

func (self *Emulator) evalSelect(n ir.ID) uint64 {
    if self.eval(self.g.In(n, 1)) != 0 {
        return self.eval(self.g.In(n, 2))
    } else {
        return self.eval(self.g.In(n, 3))
    }
}

func (self *Emulator) evalCompare(n ir.ID) uint64 {
    dt := self.g.Compare(n).CmpType
    x := dt.Mask(self.eval(self.g.In(n, 1)), self.tgt.PointerBits)
    y := dt.Mask(self.eval(self.g.In(n, 2)), self.tgt.PointerBits)

    /* pick the ordering */
    var ok bool
    switch {
        case dt.Kind == ir.TypeFloat : ok = compareFloat(self.g.Kind(n), dt, x, y)
        default                      : ok = compareInt(self.g.Kind(n), dt.BitsIn(self.tgt.PointerBits), x, y)
    }

    /* booleans are 0 or 1 */
    if ok {
        return 1
    } else {
        return 0
    }
}

func signExtend(v uint64, bits int) int64 {
    if bits <= 0 || bits >= 64 {
        return int64(v)
    } else {
        s := uint(64 - bits)
        return int64(v << s) >> s
    }
}

func compareInt(k ir.Kind, bits int, x uint64, y uint64) bool {
    switch k {
        case ir.KindCmpEq  : return x == y
        case ir.KindCmpNe  : return x != y
        case ir.KindCmpUlt : return x < y
        case ir.KindCmpUle : return x <= y
        case ir.KindCmpSlt : return signExtend(x, bits) < signExtend(y, bits)
        case ir.KindCmpSle : return signExtend(x, bits) <= signExtend(y, bits)
        default            : panic("unreachable")
    }
}

func compareFloat(k ir.Kind, dt ir.DataType, x uint64, y uint64) bool {
    var a, b float64
    if dt.Bits == 32 {
        a, b = float64(math.Float32frombits(uint32(x))), float64(math.Float32frombits(uint32(y)))
    } else {
        a, b = math.Float64frombits(x), math.Float64frombits(y)
    }
    switch k {
        case ir.KindCmpEq               : return a == b
        case ir.KindCmpNe               : return a != b
        case ir.KindCmpSlt, ir.KindCmpUlt : return a < b
        case ir.KindCmpSle, ir.KindCmpUle : return a <= b
        default                         : panic("unreachable")
    }
}
