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

func (self *Graph) Branch(n ID) *BranchInfo {
    if p, ok := self.Node(n).Extra.(*BranchInfo); !ok {
        panic(fmt.Sprintf("ir: %s is not a branch", n))
    } else {
        return p
    }
}

func (self *Graph) Proj(n ID) *ProjInfo {
    if p, ok := self.Node(n).Extra.(*ProjInfo); !ok {
        panic(fmt.Sprintf("ir: %s is not a projection", n))
    } else {
        return p
    }
}

func (self *Graph) Member(n ID) *MemberInfo {
    if p, ok := self.Node(n).Extra.(*MemberInfo); !ok {
        panic(fmt.Sprintf("ir: %s is not a member access", n))
    } else {
        return p
    }
}

func (self *Graph) Compare(n ID) *CompareInfo {
    if p, ok := self.Node(n).Extra.(*CompareInfo); !ok {
        panic(fmt.Sprintf("ir: %s is not a comparison", n))
    } else {
        return p
    }
}

// Align returns the alignment of a memory operation, 0 for anything else.
func (self *Graph) Align(n ID) uint32 {
    if p, ok := self.Node(n).Extra.(*MemInfo); ok {
        return p.Align
    } else {
        return 0
    }
}

// IntValue returns the value of a single-word integer constant.
func (self *Graph) IntValue(n ID) (uint64, bool) {
    if self.Kind(n) != KindIntConst {
        return 0, false
    } else if p, ok := self.Node(n).Extra.(*IntInfo); !ok {
        return 0, false
    } else {
        return p.Value()
    }
}

// BlockOf walks the control inputs of n up to the header of its block.
func (self *Graph) BlockOf(n ID) ID {
    for n != Nil && !self.Kind(n).IsBlockHeader() {
        n = self.In(n, 0)
    }
    return n
}

func isChain(k Kind) bool {
    return k.HasEffect() || k == KindBranch || k == KindReturn
}

// BlockEnd follows the effect chain of a block from its header down to the
// terminating Branch or Return, Nil if the chain is not terminated.
func (self *Graph) BlockEnd(header ID) ID {
    cur := header
    for {
        next := Nil

        /* the chain successor reads cur through its control slot */
        for _, u := range self.Users(cur) {
            if u.Slot == 0 && isChain(self.Kind(u.N)) {
                next = u.N
                break
            }
        }

        /* check for terminators */
        switch k := self.Kind(next); {
            case next == Nil                     : return Nil
            case k == KindBranch, k == KindReturn : return next
            default                               : cur = next
        }
    }
}

// Succs returns the successor headers of a block.
func (self *Graph) Succs(header ID) []ID {
    if end := self.BlockEnd(header); end == Nil || self.Kind(end) != KindBranch {
        return nil
    } else {
        return self.Branch(end).Succ
    }
}

// PredBlock returns the header of the block feeding predecessor edge i of a region.
func (self *Graph) PredBlock(region ID, i int) ID {
    return self.BlockOf(self.In(region, i))
}

// Phis returns the Phi nodes merging values at region.
func (self *Graph) Phis(region ID) (ret []ID) {
    for _, u := range self.Users(region) {
        if u.Slot == 0 && self.Kind(u.N) == KindPhi {
            ret = append(ret, u.N)
        }
    }
    return
}

// RemovePred removes one edge from block src into the region dst, together
// with the matching operand of every Phi at dst. It reports whether such an
// edge existed.
func (self *Graph) RemovePred(src ID, dst ID) bool {
    if self.Kind(dst) != KindRegion {
        return false
    }

    /* find the edge coming from src */
    for i, p := range self.Node(dst).Ins {
        if self.BlockOf(p) != src {
            continue
        }

        /* phi operands are positionally aligned to the predecessors */
        for _, phi := range self.Phis(dst) {
            if self.InputCount(phi) != self.InputCount(dst) + 1 {
                panic(fmt.Sprintf("ir: %s has %d operands but %s has %d predecessors",
                    phi, self.InputCount(phi) - 1, dst, self.InputCount(dst)))
            }
            self.RemoveInput(phi, i + 1)
        }

        /* remove the edge, the projection goes away with it if unused */
        self.RemoveInput(dst, i)
        if self.Kind(p) == KindProj && len(self.Users(p)) == 0 {
            self.Kill(p)
        }
        return true
    }
    return false
}
