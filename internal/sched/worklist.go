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

package sched

import (
    mapset `github.com/deckarep/golang-set/v2`
    `github.com/oleiade/lane`

    `github.com/cloudwego/seaopt/internal/ir`
)

// Worklist is a FIFO of nodes waiting to be examined. A node is queued at
// most once until it is popped again.
type Worklist struct {
    q       *lane.Queue
    pending mapset.Set[ir.ID]
}

func NewWorklist() *Worklist {
    return &Worklist {
        q       : lane.NewQueue(),
        pending : mapset.NewThreadUnsafeSet[ir.ID](),
    }
}

func (self *Worklist) Mark(n ir.ID) {
    if n != ir.Nil && self.pending.Add(n) {
        self.q.Enqueue(n)
    }
}

// Pop removes the oldest pending node.
func (self *Worklist) Pop() (ir.ID, bool) {
    if self.q.Empty() {
        return ir.Nil, false
    }
    n := self.q.Dequeue().(ir.ID)
    self.pending.Remove(n)
    return n, true
}

func (self *Worklist) Len() int {
    return self.q.Size()
}

func (self *Worklist) Contains(n ir.ID) bool {
    return self.pending.Contains(n)
}
