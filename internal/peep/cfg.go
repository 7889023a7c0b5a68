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

package peep

import (
    `fmt`

    `github.com/cloudwego/seaopt/internal/ir`
)

// TransmuteGoto turns the branch br into an unconditional jump to dst, which
// must be one of its successors or a region whose predecessors all become
// unreachable through this jump. When several edges lead to dst the first
// one is kept.
func (self *Session) TransmuteGoto(br ir.ID, dst ir.ID) {
    edge := -1
    if self.g.Kind(br) == ir.KindBranch {
        for i, s := range self.g.Branch(br).Succ {
            if s == dst {
                edge = i
                break
            }
        }
    }
    self.transmuteGoto(br, dst, edge)
}

// transmuteGoto is TransmuteGoto keeping the edge of successor slot edge, so
// the Phis at dst keep the operands that flowed along it.
func (self *Session) transmuteGoto(br ir.ID, dst ir.ID, edge int) {
    g := self.g
    if g.Kind(br) != ir.KindBranch {
        panic(fmt.Sprintf("peep: %s is not a branch", br))
    }
    if g.Kind(dst) != ir.KindRegion || g.InputCount(dst) == 0 {
        panic(fmt.Sprintf("peep: %s is not a region with predecessors", dst))
    }

    /* already a goto into dst */
    bb := g.BlockOf(br)
    bi := g.Branch(br)
    if len(bi.Succ) == 1 && bi.Succ[0] == dst && g.InputCount(br) == 1 {
        return
    }

    /* the projection of the edge being kept */
    taken := self.edgeProj(br, edge)

    /* detach the condition */
    g.Truncate(br, 1)
    bi.Keys = nil

    /* every other successor loses the edge from this block */
    for _, s := range bi.Succ {
        if s != dst {
            for g.RemovePred(bb, s) {}
            self.Mark(s)
            self.MarkUsers(s)
        }
    }

    /* the single remaining edge */
    bi.Succ = []ir.ID { dst }
    proj := g.Alloc(ir.KindProj, ir.Control, &ir.ProjInfo { Index: 0 }, br)
    self.rewireInto(bb, dst, proj, taken)

    /* schedule everything around the edited edges */
    self.Mark(bb)
    self.Mark(proj)
    self.Mark(dst)
    self.MarkUsers(bb)
    self.MarkUsers(dst)

    /* the block graph changed */
    self.Invalidate()
    self.Order()
}

// rewireInto makes proj the edge from block bb into dst. The edge that
// used to be taken is replaced in place, other edges from bb are dropped. If
// bb had no edge into dst at all, proj becomes the only predecessor of dst
// and the Phis keep their first operand.
func (self *Session) rewireInto(bb ir.ID, dst ir.ID, proj ir.ID, taken ir.ID) {
    g := self.g
    keep := -1

    /* find the taken edge, or failing that any edge from bb */
    for i := 0; i < g.InputCount(dst); i++ {
        if taken != ir.Nil && g.In(dst, i) == taken {
            keep = i
            break
        }
        if keep < 0 && g.PredBlock(dst, i) == bb {
            keep = i
        }
    }

    /* no edge from bb, every old predecessor goes away */
    if keep < 0 {
        olds := append([]ir.ID(nil), g.Node(dst).Ins...)
        for _, phi := range g.Phis(dst) {
            g.Truncate(phi, 2)
        }
        g.Truncate(dst, 0)
        g.AddInput(dst, proj)
        for _, p := range olds {
            self.releaseProj(p)
        }
        return
    }

    /* replace the edge in place */
    old := g.In(dst, keep)
    g.SetInput(dst, proj, keep)
    self.releaseProj(old)

    /* a switch may have had several edges into dst */
    for i := g.InputCount(dst) - 1; i >= 0; i-- {
        if i != keep && g.PredBlock(dst, i) == bb {
            self.dropEdge(dst, i)
        }
    }
}

// edgeProj finds the projection of successor slot idx of br.
func (self *Session) edgeProj(br ir.ID, idx int) ir.ID {
    for _, u := range self.g.Users(br) {
        if self.g.Kind(u.N) == ir.KindProj && self.g.Proj(u.N).Index == idx {
            return u.N
        }
    }
    return ir.Nil
}

func (self *Session) dropEdge(region ir.ID, i int) {
    g := self.g
    p := g.In(region, i)
    for _, phi := range g.Phis(region) {
        g.RemoveInput(phi, i + 1)
    }
    g.RemoveInput(region, i)
    self.releaseProj(p)
}

func (self *Session) releaseProj(p ir.ID) {
    if self.g.Kind(p) == ir.KindProj && len(self.g.Users(p)) == 0 {
        self.g.Kill(p)
    }
}

// release kills a floating value that lost its last user.
func (self *Session) release(n ir.ID) {
    g := self.g
    if n == ir.Nil || len(g.Users(n)) != 0 {
        return
    }
    switch k := g.Kind(n); {
        case k.IsCompare()            : g.Kill(n)
        case k == ir.KindSelect       : g.Kill(n)
        case k == ir.KindIntConst     : g.Kill(n)
        case k == ir.KindAdd          : g.Kill(n)
        case k == ir.KindMemberAccess : g.Kill(n)
    }
}

func (self *Session) isEmptyBlock(bb ir.ID) bool {
    g := self.g
    end := g.BlockEnd(bb)

    /* the block must end in a branch */
    if g.Kind(end) != ir.KindBranch {
        return false
    }

    /* nothing but the terminator and merges may hang off the header */
    for _, u := range g.Users(bb) {
        switch k := g.Kind(u.N); {
            case u.N == end                                     : continue
            case k == ir.KindPhi && u.Slot == 0                 : continue
            case k == ir.KindProj && g.Kind(bb) == ir.KindStart : continue
            default                                             : return false
        }
    }
    return true
}

// emptyArm checks that bb is one side of a diamond: a single predecessor, no
// contents and a goto into merge.
func (self *Session) emptyArm(bb ir.ID, merge ir.ID) bool {
    g := self.g
    if g.Kind(bb) != ir.KindRegion || g.InputCount(bb) != 1 || len(g.Phis(bb)) != 0 {
        return false
    }
    if !self.isEmptyBlock(bb) {
        return false
    }
    succ := g.Succs(bb)
    return len(succ) == 1 && succ[0] == merge
}

func (self *Session) intConst(dt ir.DataType, v uint64) ir.ID {
    return self.g.Alloc(ir.KindIntConst, dt, &ir.IntInfo { Words: []uint64 { v } })
}

// IdealPhi turns an if-diamond merging a single value into a select, and
// collapses the diamond header into a jump to the merge block.
func (self *Session) IdealPhi(n ir.ID) ir.ID {
    g := self.g
    region := g.In(n, 0)

    /* only two-way merges with a single phi */
    if !self.tgt.HasSelect || g.Kind(region) != ir.KindRegion {
        return ir.Nil
    }
    if g.InputCount(region) != 2 || g.InputCount(n) != 3 || len(g.Phis(region)) != 1 {
        return ir.Nil
    }

    /* both arms must be empty and distinct */
    left, right := g.PredBlock(region, 0), g.PredBlock(region, 1)
    if left == right || !self.emptyArm(left, region) || !self.emptyArm(right, region) {
        return ir.Nil
    }

    /* and hang off the same branch */
    lp, rp := g.In(left, 0), g.In(right, 0)
    if g.Kind(lp) != ir.KindProj || g.Kind(rp) != ir.KindProj {
        return ir.Nil
    }
    br := g.In(lp, 0)
    if br != g.In(rp, 0) || g.Kind(br) != ir.KindBranch || g.InputCount(br) != 2 {
        return ir.Nil
    }

    /* which must be a plain two-way if */
    bi := g.Branch(br)
    if len(bi.Succ) != 2 || bi.Keys[0] != 0 {
        return ir.Nil
    }

    /* a real diamond is dominated by its header, unreachable ones are left alone */
    if self.Dominators().IDom(region) != g.BlockOf(br) {
        return ir.Nil
    }

    /* the true operand is the one flowing through successor 0 */
    vt, vf := g.In(n, 1), g.In(n, 2)
    if g.Proj(lp).Index != 0 {
        vt, vf = vf, vt
    }

    /* build the select, then drop the diamond */
    sel := g.Alloc(ir.KindSelect, g.Type(n), nil, ir.Nil, g.In(br, 1), vt, vf)
    self.TransmuteGoto(br, region)
    self.trace("if-diamond", n)
    return sel
}

// IdealBranch canonicalizes conditional branches. It returns n when the
// branch was changed in place.
func (self *Session) IdealBranch(n ir.ID) ir.ID {
    g := self.g
    if g.InputCount(n) != 2 {
        return ir.Nil
    }

    /* branches on constants only have one way to go */
    cond := g.In(n, 1)
    if v, ok := g.IntValue(cond); ok {
        return self.pruneConstant(n, v)
    }

    /* everything else only handles the zero-keyed two-way form */
    bi := g.Branch(n)
    if len(bi.Succ) != 2 || bi.Keys[0] != 0 {
        return ir.Nil
    }

    /* try the rules in order */
    if self.fuseGuardChain(n) {
        return n
    } else if self.flipCompare(n) {
        return n
    } else if self.dropCompare(n) {
        return n
    } else {
        return ir.Nil
    }
}

func (self *Session) pruneConstant(n ir.ID, v uint64) ir.ID {
    g := self.g
    bi := g.Branch(n)
    dt := g.Type(g.In(n, 1))
    v = dt.Mask(v, self.tgt.PointerBits)

    /* pick the edge the constant takes */
    edge := 0
    for i, k := range bi.Keys {
        if dt.Mask(k, self.tgt.PointerBits) == v {
            edge = i + 1
            break
        }
    }

    /* collapse */
    cond := g.In(n, 1)
    self.transmuteGoto(n, bi.Succ[edge], edge)
    self.release(cond)
    self.trace("const-branch", n)
    return n
}

// fuseGuardChain threads `if (a) { if (b) T else F } else F` into a single
// branch on `a ? b : 0`.
func (self *Session) fuseGuardChain(n ir.ID) bool {
    g := self.g
    bb := g.BlockOf(n)
    bi := g.Branch(n)

    /* the block must be empty with a single predecessor */
    if g.Kind(bb) != ir.KindRegion || g.InputCount(bb) != 1 || !self.isEmptyBlock(bb) {
        return false
    }

    /* which is another two-way conditional */
    pp := g.In(bb, 0)
    if g.Kind(pp) != ir.KindProj {
        return false
    }
    pbr := g.In(pp, 0)
    if pbr == n || g.Kind(pbr) != ir.KindBranch || g.InputCount(pbr) != 2 {
        return false
    }
    pbi := g.Branch(pbr)
    if len(pbi.Succ) != 2 {
        return false
    }

    /* the other edge of the predecessor must land on our false edge */
    idx := g.Proj(pp).Index
    other := pbi.Succ[1 - idx]
    if other != bi.Succ[1] || other == bb || !self.phisAgree(other, g.BlockOf(pbr), bb) {
        return false
    }

    /* float conditions cannot be keyed bitwise */
    a, b := g.In(pbr, 1), g.In(n, 1)
    at, bt := g.Type(a), g.Type(b)
    if at.Kind == ir.TypeFloat || bt.Kind == ir.TypeFloat {
        return false
    }

    /* normalize the outer condition to a boolean */
    if key := pbi.Keys[0]; !at.IsBool() || key != 0 {
        a = g.Alloc(ir.KindCmpNe, ir.Bool, &ir.CompareInfo { CmpType: at }, ir.Nil, a, self.intConst(at, key))
    }

    /* bb sits on the true edge of the predecessor unless idx says otherwise */
    var sel ir.ID
    if zero := self.intConst(bt, 0); idx == 0 {
        sel = g.Alloc(ir.KindSelect, bt, nil, ir.Nil, a, b, zero)
    } else {
        sel = g.Alloc(ir.KindSelect, bt, nil, ir.Nil, a, zero, b)
    }

    /* the predecessor now always falls into bb */
    self.TransmuteGoto(pbr, bb)
    g.SetInput(n, sel, 1)
    self.Mark(sel)
    self.trace("guard-chain", n)
    return true
}

// phisAgree checks that every Phi at region sees the same value on the edges
// coming from blocks a and b.
func (self *Session) phisAgree(region ir.ID, a ir.ID, b ir.ID) bool {
    g := self.g
    for _, phi := range g.Phis(region) {
        v := ir.Nil
        for i := 0; i < g.InputCount(region); i++ {
            if pb := g.PredBlock(region, i); pb != a && pb != b {
                continue
            }
            if x := g.In(phi, i + 1); v == ir.Nil {
                v = x
            } else if v != x {
                return false
            }
        }
    }
    return true
}

var _FlipTab = [...]ir.Kind {
    ir.KindCmpSle: ir.KindCmpSlt,
    ir.KindCmpUle: ir.KindCmpUlt,
}

// flipCompare rewrites a branch on `x <= y` into one on `y < x` with the
// successors swapped.
func (self *Session) flipCompare(n ir.ID) bool {
    g := self.g
    cond := g.In(n, 1)

    /* only the non-strict forms */
    k := g.Kind(cond)
    if int(k) >= len(_FlipTab) || _FlipTab[k] == ir.KindDead {
        return false
    }

    /* unordered floats make both x <= y and y < x false */
    ct := g.Compare(cond).CmpType
    if ct.Kind == ir.TypeFloat {
        return false
    }

    /* build the mirrored comparison */
    x, y := g.In(cond, 1), g.In(cond, 2)
    cmp := g.Alloc(_FlipTab[k], ir.Bool, &ir.CompareInfo { CmpType: ct }, ir.Nil, y, x)

    /* swap the edges */
    g.SetInput(n, cmp, 1)
    self.swapSuccs(n)
    self.release(cond)
    self.trace("flip-compare", n)
    return true
}

// dropCompare turns a branch on `x != k` or `x == k` into a branch on x keyed
// by k.
func (self *Session) dropCompare(n ir.ID) bool {
    g := self.g
    cond := g.In(n, 1)

    /* equality against a single word constant */
    k := g.Kind(cond)
    if k != ir.KindCmpNe && k != ir.KindCmpEq {
        return false
    }
    key, ok := g.IntValue(g.In(cond, 2))
    if !ok {
        return false
    }

    /* floats do not compare bitwise, and the key has the width of x */
    x := g.In(cond, 1)
    if g.Type(x).Kind == ir.TypeFloat || g.Compare(cond).CmpType != g.Type(x) {
        return false
    }

    /* branch on x directly */
    kc := g.In(cond, 2)
    g.SetInput(n, x, 1)
    g.Branch(n).Keys[0] = g.Type(x).Mask(key, self.tgt.PointerBits)
    if k == ir.KindCmpEq {
        self.swapSuccs(n)
    }

    /* the comparison is likely dead now */
    self.release(cond)
    self.release(kc)
    self.trace("drop-compare", n)
    return true
}

func (self *Session) swapSuccs(n ir.ID) {
    g := self.g
    bi := g.Branch(n)
    bi.Succ[0], bi.Succ[1] = bi.Succ[1], bi.Succ[0]

    /* projections follow their successor */
    for _, u := range g.Users(n) {
        if g.Kind(u.N) == ir.KindProj {
            p := g.Proj(u.N)
            p.Index = 1 - p.Index
            self.Mark(u.N)
        }
    }

    /* edge order changed */
    self.Mark(bi.Succ[0])
    self.Mark(bi.Succ[1])
    self.Invalidate()
    self.Order()
}
