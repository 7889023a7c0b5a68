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
    `github.com/sirupsen/logrus`

    `github.com/cloudwego/seaopt/internal/ir`
    `github.com/cloudwego/seaopt/internal/order`
    `github.com/cloudwego/seaopt/internal/target`
)

// Marker receives the nodes a rewrite wants re-examined.
type Marker interface {
    Mark(n ir.ID)
}

type _NopMarker struct{}
func (_NopMarker) Mark(_ ir.ID) {}

// Session is the state shared by the rewrite rules while one graph is being
// optimized: the graph itself, the mark queue and the block ordering cache.
type Session struct {
    g        *ir.Graph
    wl       Marker
    po       *order.Postorder
    dom      *order.DomTree
    log      *logrus.Entry
    tgt      target.Info
    Rebuilds int
}

func NewSession(g *ir.Graph, tgt target.Info, wl Marker, log *logrus.Entry) *Session {
    if wl == nil {
        wl = _NopMarker{}
    }
    if log == nil {
        log = logrus.NewEntry(logrus.StandardLogger())
    }
    return &Session {
        g   : g,
        wl  : wl,
        tgt : tgt,
        log : log,
    }
}

func (self *Session) Graph() *ir.Graph {
    return self.g
}

func (self *Session) Target() target.Info {
    return self.tgt
}

// Mark schedules n for another look, dead nodes are ignored.
func (self *Session) Mark(n ir.ID) {
    if n != ir.Nil && !self.g.IsDead(n) {
        self.wl.Mark(n)
    }
}

// MarkUsers schedules every user of n.
func (self *Session) MarkUsers(n ir.ID) {
    for _, u := range self.g.Users(n) {
        self.Mark(u.N)
    }
}

// Order returns the postorder of the blocks, computing it if it was
// invalidated.
func (self *Session) Order() *order.Postorder {
    if self.po == nil {
        self.po = order.Compute(self.g)
        self.Rebuilds++
    }
    return self.po
}

// Dominators returns the dominator tree, it is dropped together with the
// postorder.
func (self *Session) Dominators() *order.DomTree {
    if self.dom == nil {
        self.dom = order.Dominators(self.g)
    }
    return self.dom
}

// Invalidate drops every cache derived from the control edges.
func (self *Session) Invalidate() {
    self.po = nil
    self.dom = nil
}

func (self *Session) trace(rule string, n ir.ID) {
    self.log.WithField("rule", rule).WithField("node", n).Debug("rewrite")
}
