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
    `github.com/cloudwego/seaopt/internal/ir`
)

// KnownPointer splits a pointer into a base and an element offset.
func KnownPointer(g *ir.Graph, n ir.ID) (ir.ID, int64) {
    if g.Kind(n) == ir.KindMemberAccess {
        return g.In(n, 1), g.Member(n).Offset
    } else {
        return n, 0
    }
}

type _Range struct {
    lo int64
    hi int64
}

func (self _Range) overlaps(other _Range) bool {
    return self.lo < other.hi && other.lo < self.hi
}

// bitRange is the half-open range of bits an access of dt at element offset
// off touches.
func (self *Session) bitRange(off int64, dt ir.DataType) _Range {
    lo := self.tgt.ScaleOffset(off)
    return _Range { lo: lo, hi: lo + int64(dt.BitsIn(self.tgt.PointerBits)) }
}

// IdealLoad moves a load above a store that provably writes other bytes of
// the same object.
func (self *Session) IdealLoad(n ir.ID) ir.ID {
    g := self.g
    st := g.In(n, 0)
    if g.Kind(st) != ir.KindStore {
        return ir.Nil
    }

    /* different bases may alias */
    lb, lo := KnownPointer(g, g.In(n, 1))
    sb, so := KnownPointer(g, g.In(st, 1))
    if lb != sb {
        return ir.Nil
    }

    /* overlapping bytes must stay ordered */
    if self.bitRange(lo, g.Type(n)).overlaps(self.bitRange(so, g.Type(g.In(st, 2)))) {
        return ir.Nil
    }

    /* read from before the store */
    g.SetInput(n, g.In(st, 0), 0)
    self.trace("load-hoist", n)
    return n
}

// IdentityLoad forwards the value of a store to a load of the same pointer
// right after it.
func (self *Session) IdentityLoad(n ir.ID) ir.ID {
    g := self.g
    st := g.In(n, 0)

    /* must be a store through the very same pointer node */
    if g.Kind(st) != ir.KindStore || g.In(st, 1) != g.In(n, 1) {
        return n
    }

    /* with the same shape */
    val := g.In(st, 2)
    if g.Type(val) != g.Type(n) || g.Align(st) != g.Align(n) {
        return n
    }
    return val
}

// IdealStore does not fold consecutive stores yet.
func (self *Session) IdealStore(_ ir.ID) ir.ID {
    return ir.Nil
}

// IdealMemcpy does not fold copies yet.
func (self *Session) IdealMemcpy(_ ir.ID) ir.ID {
    return ir.Nil
}
