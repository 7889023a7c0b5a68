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

// InvariantError reports a structural defect of the graph. It is never a
// recoverable condition: the optimizer panics with it.
type InvariantError struct {
    Node   ID
    Reason string
}

func (self *InvariantError) Error() string {
    return fmt.Sprintf("ir: invariant violated at %s: %s", self.Node, self.Reason)
}

func violated(n ID, format string, args ...interface{}) *InvariantError {
    return &InvariantError {
        Node   : n,
        Reason : fmt.Sprintf(format, args...),
    }
}

// Verify checks the edge/use symmetry and the per-kind shape invariants.
func (self *Graph) Verify() error {
    for i := 1; i < len(self.nodes); i++ {
        if err := self.verifyNode(ID(i)); err != nil {
            return err
        }
    }
    return nil
}

func (self *Graph) verifyNode(n ID) error {
    p := self.Node(n)

    /* dead nodes own nothing */
    if p.Kind == KindDead {
        if len(p.Ins) != 0 {
            return violated(n, "dead node still has %d inputs", len(p.Ins))
        }
        if len(p.Users) != 0 {
            return violated(n, "dead node still used by %s", p.Users[0].N)
        }
        return nil
    }

    /* every edge must point at a live node and be mirrored by a use */
    for slot, v := range p.Ins {
        if v == Nil {
            continue
        }
        if int(v) >= len(self.nodes) {
            return violated(n, "input %d points outside the arena", slot)
        }
        if self.nodes[v].Kind == KindDead {
            return violated(n, "input %d points at dead node %s", slot, v)
        }
        if !hasUse(self.nodes[v].Users, Use { N: n, Slot: slot }) {
            return violated(n, "input %d has no use record on %s", slot, v)
        }
    }

    /* every use must be mirrored by an edge */
    for _, u := range p.Users {
        if int(u.N) >= len(self.nodes) || u.Slot >= len(self.nodes[u.N].Ins) || self.nodes[u.N].Ins[u.Slot] != n {
            return violated(n, "dangling use %s[%d]", u.N, u.Slot)
        }
    }

    /* kind specific shapes */
    switch p.Kind {
        case KindBranch: {
            br, ok := p.Extra.(*BranchInfo)
            if !ok {
                return violated(n, "branch without successor info")
            }
            if len(br.Succ) == 0 {
                return violated(n, "branch without successors")
            }
            if len(br.Keys) != len(br.Succ) - 1 {
                return violated(n, "%d successors but %d keys", len(br.Succ), len(br.Keys))
            }
            if len(br.Succ) > 1 && (len(p.Ins) != 2 || p.Ins[1] == Nil) {
                return violated(n, "multi-way branch without a condition")
            }
            if len(br.Succ) == 1 && len(p.Ins) != 1 {
                return violated(n, "unconditional branch with %d inputs", len(p.Ins))
            }
        }

        case KindPhi: {
            if len(p.Ins) == 0 || self.Kind(p.Ins[0]) != KindRegion {
                return violated(n, "phi is not attached to a region")
            }
            if len(p.Ins) != self.InputCount(p.Ins[0]) + 1 {
                return violated(n, "%d operands for %d predecessors", len(p.Ins) - 1, self.InputCount(p.Ins[0]))
            }
        }

        case KindProj: {
            if len(p.Ins) != 1 || p.Ins[0] == Nil {
                return violated(n, "projection without a producer")
            }
            if _, ok := p.Extra.(*ProjInfo); !ok {
                return violated(n, "projection without an index")
            }
        }
    }
    return nil
}

func hasUse(users []Use, u Use) bool {
    for _, v := range users {
        if v == u {
            return true
        }
    }
    return false
}
