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
    `fmt`
    `strings`

    mapset `github.com/deckarep/golang-set/v2`
    `github.com/oleiade/lane`

    `github.com/cloudwego/seaopt/internal/ir`
)

// Postorder is the block ordering of a graph, a derived cache that must be
// recomputed after any control-flow edit.
type Postorder struct {
    Blocks []ir.ID
    index  map[ir.ID]int
}

func stacknew(v interface{}) (r *lane.Stack) {
    r = lane.NewStack()
    r.Push(v)
    return
}

// Compute walks the blocks reachable from the start node depth-first and
// records them in postorder.
func Compute(g *ir.Graph) *Postorder {
    ret := &Postorder { index: make(map[ir.ID]int) }
    if g.Start == ir.Nil {
        return ret
    }

    /* iterative DFS over block successors */
    st := stacknew(g.Start)
    vis := mapset.NewThreadUnsafeSet[ir.ID](g.Start)

    /* scan until the stack is empty */
    for !st.Empty() {
        tail := true
        this := st.Head().(ir.ID)

        /* descend into the first unvisited successor */
        for _, p := range g.Succs(this) {
            if p != ir.Nil && vis.Add(p) {
                tail = false
                st.Push(p)
                break
            }
        }

        /* all the successors are visited, emit the current block */
        if tail {
            st.Pop()
            ret.index[this] = len(ret.Blocks)
            ret.Blocks = append(ret.Blocks, this)
        }
    }
    return ret
}

func (self *Postorder) Len() int {
    return len(self.Blocks)
}

// Index returns the postorder number of block.
func (self *Postorder) Index(block ir.ID) (int, bool) {
    i, ok := self.index[block]
    return i, ok
}

func (self *Postorder) Contains(block ir.ID) bool {
    _, ok := self.index[block]
    return ok
}

// Reverse returns the blocks in reverse postorder, entry block first.
func (self *Postorder) Reverse() []ir.ID {
    nb := len(self.Blocks)
    ret := make([]ir.ID, nb)
    for i, v := range self.Blocks {
        ret[nb - i - 1] = v
    }
    return ret
}

func (self *Postorder) String() string {
    buf := make([]string, 0, len(self.Blocks))
    for _, v := range self.Blocks {
        buf = append(buf, v.String())
    }
    return fmt.Sprintf("postorder {%s}", strings.Join(buf, ", "))
}
