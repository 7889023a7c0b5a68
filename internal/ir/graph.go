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
    `strings`

    `golang.org/x/exp/slices`
)

// Graph owns every node and edge of a function. Use lists are derived from
// the edges and are only ever updated together with them.
type Graph struct {
    Name  string
    Start ID
    nodes []Node
}

func NewGraph(name string) *Graph {
    return &Graph {
        Name  : name,
        nodes : make([]Node, 1, 64),
    }
}

// Len returns the arena size, including the reserved Nil slot.
func (self *Graph) Len() int {
    return len(self.nodes)
}

// Node returns the node at id. The pointer is invalidated by Alloc.
func (self *Graph) Node(id ID) *Node {
    if id == Nil || int(id) >= len(self.nodes) {
        panic(fmt.Sprintf("ir: invalid node reference %s", id))
    } else {
        return &self.nodes[id]
    }
}

func (self *Graph) Kind(id ID) Kind {
    if id == Nil {
        return KindDead
    } else {
        return self.Node(id).Kind
    }
}

func (self *Graph) Type(id ID) DataType {
    return self.Node(id).Type
}

// In returns input slot i of n, or Nil when the slot does not exist.
func (self *Graph) In(n ID, i int) ID {
    if p := self.Node(n); i < 0 || i >= len(p.Ins) {
        return Nil
    } else {
        return p.Ins[i]
    }
}

func (self *Graph) InputCount(n ID) int {
    return len(self.Node(n).Ins)
}

func (self *Graph) Users(n ID) []Use {
    return self.Node(n).Users
}

func (self *Graph) IsDead(n ID) bool {
    return n == Nil || self.Node(n).Kind == KindDead
}

// Live calls fn on every node that is not dead, in allocation order.
func (self *Graph) Live(fn func(id ID)) {
    for i := 1; i < len(self.nodes); i++ {
        if self.nodes[i].Kind != KindDead {
            fn(ID(i))
        }
    }
}

// Alloc creates a new node and wires its inputs.
func (self *Graph) Alloc(kind Kind, dt DataType, extra Extra, ins ...ID) ID {
    id := ID(len(self.nodes))
    self.nodes = append(self.nodes, Node {
        Kind  : kind,
        Type  : dt,
        Ins   : make([]ID, len(ins)),
        Extra : extra,
    })

    /* wire every input through SetInput to keep use lists in sync */
    for i, v := range ins {
        self.SetInput(id, v, i)
    }

    /* remember the entry node */
    if kind == KindStart && self.Start == Nil {
        self.Start = id
    }
    return id
}

// SetInput points input slot of n at producer (Nil detaches it), moving the
// use record from the old producer to the new one.
func (self *Graph) SetInput(n ID, producer ID, slot int) {
    p := self.Node(n)
    if slot < 0 || slot >= len(p.Ins) {
        panic(fmt.Sprintf("ir: %s has no input slot %d", n, slot))
    }

    /* nothing to do */
    old := p.Ins[slot]
    if old == producer {
        return
    }

    /* unlink from the old producer */
    if old != Nil {
        self.removeUse(old, n, slot)
    }

    /* link to the new producer */
    p.Ins[slot] = producer
    if producer != Nil {
        q := self.Node(producer)
        q.Users = append(q.Users, Use { N: n, Slot: slot })
    }
}

// AddInput appends a new input slot to n.
func (self *Graph) AddInput(n ID, producer ID) int {
    p := self.Node(n)
    p.Ins = append(p.Ins, Nil)
    slot := len(p.Ins) - 1
    self.SetInput(n, producer, slot)
    return slot
}

// RemoveInput deletes input slot of n, shifting the following slots down.
func (self *Graph) RemoveInput(n ID, slot int) {
    p := self.Node(n)
    nb := len(p.Ins)

    /* detach everything from slot onwards */
    rest := append([]ID(nil), p.Ins[slot + 1:]...)
    for i := slot; i < nb; i++ {
        self.SetInput(n, Nil, i)
    }

    /* shrink, then re-attach the shifted edges */
    p = self.Node(n)
    p.Ins = p.Ins[:nb - 1]
    for i, v := range rest {
        self.SetInput(n, v, slot + i)
    }
}

// Truncate drops every input slot of n at or above count.
func (self *Graph) Truncate(n ID, count int) {
    p := self.Node(n)
    if count > len(p.Ins) {
        panic(fmt.Sprintf("ir: cannot truncate %s with %d inputs to %d", n, len(p.Ins), count))
    }

    /* detach the tail */
    for i := count; i < len(p.Ins); i++ {
        self.SetInput(n, Nil, i)
    }
    p.Ins = p.Ins[:count]
}

// Kill detaches every input of n and marks it dead. The slot stays allocated
// so that IDs remain stable; a separate DCE pass reclaims it.
func (self *Graph) Kill(n ID) {
    self.Truncate(n, 0)
    p := self.Node(n)
    p.Kind = KindDead
    p.Extra = nil
}

// Subsume redirects every user of old to new and kills old.
func (self *Graph) Subsume(old ID, new ID) {
    if old == new {
        panic(fmt.Sprintf("ir: %s cannot subsume itself", old))
    }

    /* SetInput mutates the use list, so iterate over a copy */
    for _, u := range append([]Use(nil), self.Node(old).Users...) {
        self.SetInput(u.N, new, u.Slot)
    }
    self.Kill(old)
}

// Replace changes the kind, type and payload of n in place, keeping its
// identity, inputs and users.
func (self *Graph) Replace(n ID, kind Kind, dt DataType, extra Extra) {
    p := self.Node(n)
    p.Kind = kind
    p.Type = dt
    p.Extra = extra
}

func (self *Graph) removeUse(producer ID, n ID, slot int) {
    q := self.Node(producer)
    i := slices.IndexFunc(q.Users, func(u Use) bool { return u.N == n && u.Slot == slot })

    /* a missing use record means the graph is already corrupted */
    if i < 0 {
        panic(fmt.Sprintf("ir: dangling edge %s[%d] -> %s", n, slot, producer))
    }
    q.Users = slices.Delete(q.Users, i, i + 1)
}

func (self *Graph) String() string {
    buf := make([]string, 0, len(self.nodes))
    self.Live(func(id ID) {
        buf = append(buf, fmt.Sprintf("    %s = %s", id, self.Node(id)))
    })
    return fmt.Sprintf(
        "Graph %s {\n%s\n}",
        self.Name,
        strings.Join(buf, "\n"),
    )
}

// Clone returns a deep copy of the graph.
func (self *Graph) Clone() *Graph {
    ret := &Graph {
        Name  : self.Name,
        Start : self.Start,
        nodes : make([]Node, len(self.nodes)),
    }

    /* copy every node */
    for i, v := range self.nodes {
        ret.nodes[i] = Node {
            Kind  : v.Kind,
            Type  : v.Type,
            Ins   : append([]ID(nil), v.Ins...),
            Users : append([]Use(nil), v.Users...),
        }
        if v.Extra != nil {
            ret.nodes[i].Extra = v.Extra.clone()
        }
    }
    return ret
}
