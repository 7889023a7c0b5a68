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
    `fmt`
    `sync/atomic`

    `github.com/sirupsen/logrus`
    `golang.org/x/exp/slices`

    `github.com/cloudwego/seaopt/internal/ir`
    `github.com/cloudwego/seaopt/internal/opts`
    `github.com/cloudwego/seaopt/internal/peep`
)

var (
    VisitCount   uint64 = 0
    RewriteCount uint64 = 0
    RebuildCount uint64 = 0
)

// IterationLimitError is returned when the worklist does not drain within
// the configured number of pops.
type IterationLimitError struct {
    Graph string
    Limit int
}

func (self *IterationLimitError) Error() string {
    return fmt.Sprintf("seaopt: graph %s did not converge within %d iterations", self.Graph, self.Limit)
}

// Stats counts what one run of the driver did.
type Stats struct {
    Visited  int
    Rewrites int
    Subsumed int
    Rebuilds int
}

// Driver applies the rewrite rules until no rule matches any more.
type Driver struct {
    Stats Stats
    opts  opts.Options
}

func NewDriver(o opts.Options) *Driver {
    if o.Logger == nil {
        o.Logger = opts.DefaultLogger()
    }
    return &Driver { opts: o }
}

// Run optimizes g in place.
func (self *Driver) Run(g *ir.Graph) error {
    wl := NewWorklist()
    log := self.opts.Logger.WithField("graph", g.Name)
    ss := peep.NewSession(g, self.opts.Target, wl, log)

    /* publish the counters however the run ends */
    self.Stats = Stats{}
    defer self.publish(ss)

    /* everything is a candidate at first */
    for _, n := range seed(ss) {
        wl.Mark(n)
    }

    /* drain the worklist */
    for n, ok := wl.Pop(); ok; n, ok = wl.Pop() {
        if !self.opts.CanContinue(self.Stats.Visited) {
            log.WithField("limit", self.opts.MaxIterations).Warn("worklist did not drain")
            return &IterationLimitError { Graph: g.Name, Limit: self.opts.MaxIterations }
        }

        /* dead nodes are left for DCE */
        self.Stats.Visited++
        if !g.IsDead(n) {
            self.visit(ss, log, n)
        }
    }

    /* done */
    log.WithFields(logrus.Fields {
        "visited"  : self.Stats.Visited,
        "rewrites" : self.Stats.Rewrites,
    }).Debug("converged")
    return nil
}

func (self *Driver) visit(ss *peep.Session, log *logrus.Entry, n ir.ID) {
    g := ss.Graph()
    k := g.Kind(n)

    /* n may just be another name for an existing node */
    if m := ss.Identity(n); m != n && m != ir.Nil {
        g.Subsume(n, m)
        ss.Mark(m)
        ss.MarkUsers(m)
        self.rewrote(g, log.WithField("node", n).WithField("kind", k), "identity")
        self.Stats.Subsumed++
        return
    }

    /* or it has a simpler form */
    switch m := ss.Ideal(n); m {
        case ir.Nil: {
            return
        }
        case n: {
            ss.Mark(n)
            ss.MarkUsers(n)
            self.rewrote(g, log.WithField("node", n).WithField("kind", k), "ideal")
        }
        default: {
            g.Subsume(n, m)
            ss.Mark(m)
            ss.MarkUsers(m)
            self.rewrote(g, log.WithField("node", n).WithField("kind", k), "ideal")
            self.Stats.Subsumed++
        }
    }
}

func (self *Driver) rewrote(g *ir.Graph, log *logrus.Entry, how string) {
    self.Stats.Rewrites++
    log.Debug(how)

    /* a broken graph is a bug in a rule, stop right here */
    if self.opts.Verify {
        if err := g.Verify(); err != nil {
            log.WithError(err).Error("graph invariant violated")
            panic(err)
        }
    }
}

func (self *Driver) publish(ss *peep.Session) {
    self.Stats.Rebuilds = ss.Rebuilds
    atomic.AddUint64(&VisitCount, uint64(self.Stats.Visited))
    atomic.AddUint64(&RewriteCount, uint64(self.Stats.Rewrites))
    atomic.AddUint64(&RebuildCount, uint64(self.Stats.Rebuilds))
}

// seed lists the live nodes block by block in reverse postorder. Floating
// values come first and nodes of unreachable blocks last.
func seed(ss *peep.Session) []ir.ID {
    g := ss.Graph()
    po := ss.Order()
    rank := make(map[ir.ID]int, po.Len())

    /* number the blocks */
    for i, bb := range po.Reverse() {
        rank[bb] = i + 1
    }

    /* collect every live node with its block rank */
    var ret []ir.ID
    g.Live(func(n ir.ID) {
        ret = append(ret, n)
    })

    /* memoize the block ranks */
    keys := make(map[ir.ID]int, len(ret))
    for _, n := range ret {
        if bb := g.BlockOf(n); bb == ir.Nil {
            keys[n] = 0
        } else if r, ok := rank[bb]; ok {
            keys[n] = r
        } else {
            keys[n] = po.Len() + 1
        }
    }

    /* stable, so nodes keep their allocation order within a block */
    slices.SortStableFunc(ret, func(a ir.ID, b ir.ID) bool {
        return keys[a] < keys[b]
    })
    return ret
}
