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
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cloudwego/seaopt/internal/emu"
	"github.com/cloudwego/seaopt/internal/ir"
	"github.com/cloudwego/seaopt/internal/opts"
	"github.com/cloudwego/seaopt/internal/order"
	"github.com/cloudwego/seaopt/internal/peep"
	"github.com/cloudwego/seaopt/internal/target"
)

func testOptions() opts.Options {
	return opts.Options{
		Verify: true,
		Target: target.AMD64,
		Logger: opts.DefaultLogger(),
	}
}

func TestWorklist(t *testing.T) {
	wl := NewWorklist()
	wl.Mark(3)
	wl.Mark(1)
	wl.Mark(3)
	wl.Mark(ir.Nil)
	require.Equal(t, 2, wl.Len())
	require.True(t, wl.Contains(3))

	/* first in, first out, marked once while pending */
	n, ok := wl.Pop()
	require.True(t, ok)
	require.Equal(t, ir.ID(3), n)
	require.False(t, wl.Contains(3))
	wl.Mark(3)
	for _, want := range []ir.ID{1, 3} {
		n, ok = wl.Pop()
		require.True(t, ok)
		require.Equal(t, want, n)
	}
	_, ok = wl.Pop()
	require.False(t, ok)
}

// buildSelectable builds `return x != 0 ? 1 : 2` as an if-diamond.
func buildSelectable() (*ir.Graph, ir.ID) {
	b := ir.CreateBuilder("selectable")
	x := b.Param(ir.I32)
	l, r, m := b.Region(), b.Region(), b.Region()
	br := b.If(b.Cmp(ir.KindCmpNe, x, b.Int(ir.I32, 0)), l, r)
	b.SetBlock(l)
	b.Goto(m)
	b.SetBlock(r)
	b.Goto(m)
	b.SetBlock(m)
	b.Return(b.Phi(m, ir.I32, b.Int(ir.I32, 1), b.Int(ir.I32, 2)))
	return b.Build(), br
}

func TestDriver_Diamond(t *testing.T) {
	g, br := buildSelectable()
	before := g.Clone()
	d := NewDriver(testOptions())
	visits := atomic.LoadUint64(&VisitCount)

	require.NoError(t, d.Run(g))
	require.Positive(t, d.Stats.Rewrites)
	require.Positive(t, d.Stats.Subsumed)
	require.Greater(t, atomic.LoadUint64(&VisitCount), visits)

	/* the header jumps to the merge and the result is a select on x */
	require.Len(t, g.Branch(br).Succ, 1)
	ret := g.BlockEnd(g.Branch(br).Succ[0])
	require.Equal(t, ir.KindReturn, g.Kind(ret), spew.Sdump(g.String()))
	sel := g.In(ret, 1)
	require.Equal(t, ir.KindSelect, g.Kind(sel))
	require.Equal(t, ir.KindProj, g.Kind(g.In(sel, 1)))

	/* same behavior */
	for _, x := range []uint64{0, 1, 42} {
		want, err := emu.New(before, target.AMD64).Run(nil, x)
		require.NoError(t, err)
		got, err := emu.New(g, target.AMD64).Run(nil, x)
		require.NoError(t, err)
		require.Equal(t, want.Values, got.Values)
	}
}

func TestDriver_NoSelect(t *testing.T) {
	g, br := buildSelectable()
	o := testOptions()
	o.Target = target.I386
	require.NoError(t, NewDriver(o).Run(g))

	/* the compare still goes away, the diamond stays */
	require.Len(t, g.Branch(br).Succ, 2)
	require.Equal(t, ir.KindProj, g.Kind(g.In(br, 1)))
}

func TestDriver_IterationLimit(t *testing.T) {
	g, _ := buildSelectable()
	o := testOptions()
	o.MaxIterations = 3
	err := NewDriver(o).Run(g)

	var e *IterationLimitError
	require.True(t, errors.As(err, &e))
	require.Equal(t, 3, e.Limit)
	require.Equal(t, "selectable", e.Graph)
	require.Contains(t, err.Error(), "did not converge within 3 iterations")
}

func TestDriver_Forwarding(t *testing.T) {
	b := ir.CreateBuilder("forward")
	p := b.Param(ir.Ptr)
	x := b.Param(ir.I32)
	b.Store(b.Member(p, 8), x, 4)
	b.Store(p, b.Int(ir.I32, 7), 4)
	far := b.Load(ir.I32, b.Member(p, 4), 4)
	near := b.Load(ir.I32, p, 4)
	ret := b.Return(far, near)
	g := b.Build()

	require.NoError(t, NewDriver(testOptions()).Run(g))

	/* near is the stored constant, far skipped both stores */
	v, ok := g.IntValue(g.In(ret, 2))
	require.True(t, ok)
	require.Equal(t, uint64(7), v)
	require.Equal(t, g.Start, g.In(far, 0))
}

func TestDriver_SeedOrder(t *testing.T) {
	g, br := buildSelectable()
	d := NewDriver(testOptions())

	/* floating values first, then the start block before the merge */
	ns := seed(peep.NewSession(g, target.AMD64, nil, nil))
	pos := make(map[ir.ID]int)
	for i, n := range ns {
		pos[n] = i
	}
	require.Less(t, pos[g.In(br, 1)], pos[br])
	require.Less(t, pos[br], pos[g.Branch(br).Succ[0]])
	require.NoError(t, d.Run(g))
}

type program struct {
	t      *rapid.T
	b      *ir.Builder
	ints   []ir.ID
	floats []ir.ID
	rets   []ir.ID
	addrs  []ir.ID
	p      ir.ID
}

var (
	memTypes = []ir.DataType{ir.I8, ir.I16, ir.I32, ir.I64}
	cmpKinds = []ir.Kind{ir.KindCmpEq, ir.KindCmpNe, ir.KindCmpSlt, ir.KindCmpSle, ir.KindCmpUlt, ir.KindCmpUle}
	consts   = []uint64{0, 1, 5, 0x7fffffff, 0xffffffff, 0x105}
	fconsts  = []float64{0, 1, -1.5, math.Inf(1), math.NaN()}
)

func (self *program) pick() ir.ID {
	return rapid.SampledFrom(self.ints).Draw(self.t, "value")
}

func (self *program) konst() ir.ID {
	return self.b.Int(ir.I32, rapid.SampledFrom(consts).Draw(self.t, "const"))
}

func (self *program) addr() ir.ID {
	if len(self.addrs) != 0 && rapid.Bool().Draw(self.t, "reuse") {
		return rapid.SampledFrom(self.addrs).Draw(self.t, "addr")
	}
	p := self.b.Member(self.p, rapid.Int64Range(0, 16).Draw(self.t, "offset"))
	self.addrs = append(self.addrs, p)
	return p
}

func (self *program) fpick() ir.ID {
	if rapid.Bool().Draw(self.t, "fparam") {
		return rapid.SampledFrom(self.floats).Draw(self.t, "float")
	}
	return self.b.Int(ir.F64, math.Float64bits(rapid.SampledFrom(fconsts).Draw(self.t, "fconst")))
}

func (self *program) cond() ir.ID {
	switch rapid.IntRange(0, 5).Draw(self.t, "cond") {
	case 0:
		return self.pick()
	case 1:
		return self.b.Cmp(rapid.SampledFrom(cmpKinds).Draw(self.t, "cmp"), self.pick(), self.pick())
	case 2:
		return self.b.Cmp(rapid.SampledFrom(cmpKinds).Draw(self.t, "cmp"), self.pick(), self.konst())
	case 3:
		return self.b.Cmp(rapid.SampledFrom(cmpKinds).Draw(self.t, "cmp"), self.fpick(), self.fpick())
	case 4:
		cmp := self.b.Cmp(rapid.SampledFrom(cmpKinds).Draw(self.t, "cmp"), self.pick(), self.konst())
		self.b.Graph().Compare(cmp).CmpType = rapid.SampledFrom([]ir.DataType{ir.I8, ir.I16}).Draw(self.t, "narrow")
		return cmp
	default:
		return self.konst()
	}
}

func (self *program) key() uint64 {
	return rapid.SampledFrom([]uint64{0, 0, 0, 1, 5}).Draw(self.t, "key")
}

func (self *program) store() {
	dt := rapid.SampledFrom(memTypes).Draw(self.t, "store")
	val := self.pick()
	if dt != ir.I32 {
		val = self.b.Int(dt, rapid.Uint64().Draw(self.t, "bits"))
	}
	self.b.Store(self.addr(), val, rapid.SampledFrom([]uint32{1, 4}).Draw(self.t, "align"))
}

func (self *program) load() ir.ID {
	dt := rapid.SampledFrom(memTypes).Draw(self.t, "load")
	return self.b.Load(dt, self.addr(), rapid.SampledFrom([]uint32{1, 4}).Draw(self.t, "align"))
}

// arm fills a block that jumps to merge and returns the value it contributes.
func (self *program) arm(merge ir.ID) ir.ID {
	v := self.pick()
	switch rapid.IntRange(0, 3).Draw(self.t, "arm") {
	case 1:
		self.store()
	case 2:
		v = self.b.Load(ir.I32, self.addr(), 4)
	}
	self.b.Goto(merge)
	return v
}

func (self *program) diamond() {
	l, r, m := self.b.Region(), self.b.Region(), self.b.Region()
	self.b.IfKey(self.cond(), self.key(), l, r)
	self.b.SetBlock(l)
	vl := self.arm(m)
	self.b.SetBlock(r)
	vr := self.arm(m)
	self.b.SetBlock(m)
	self.ints = append(self.ints, self.b.Phi(m, ir.I32, vl, vr))
}

func (self *program) guard() {
	bb, tt, ff, m := self.b.Region(), self.b.Region(), self.b.Region(), self.b.Region()
	if rapid.Bool().Draw(self.t, "onFalse") {
		self.b.IfKey(self.cond(), self.key(), ff, bb)
	} else {
		self.b.IfKey(self.cond(), self.key(), bb, ff)
	}
	self.b.SetBlock(bb)
	self.b.IfKey(self.cond(), self.key(), tt, ff)
	self.b.SetBlock(tt)
	vt := self.arm(m)
	self.b.SetBlock(ff)
	vf := self.arm(m)
	self.b.SetBlock(m)
	self.ints = append(self.ints, self.b.Phi(m, ir.I32, vt, vf))
}

func (self *program) sw() {
	def, c1, c2, m := self.b.Region(), self.b.Region(), self.b.Region(), self.b.Region()
	self.b.Switch(self.cond(), def, []uint64{1, 5}, c1, c2)
	vals := make([]ir.ID, 0, 3)
	for _, bb := range []ir.ID{def, c1, c2} {
		self.b.SetBlock(bb)
		vals = append(vals, self.arm(m))
	}
	self.b.SetBlock(m)
	self.ints = append(self.ints, self.b.Phi(m, ir.I32, vals...))
}

// shared builds a switch whose default and key 5 edges both enter the merge
// block directly, with a Phi telling them apart.
func (self *program) shared() {
	c1, m := self.b.Region(), self.b.Region()
	self.b.Switch(self.cond(), m, []uint64{1, 5}, c1, m)
	vd, v5 := self.pick(), self.pick()
	self.b.SetBlock(c1)
	v1 := self.arm(m)
	self.b.SetBlock(m)
	self.ints = append(self.ints, self.b.Phi(m, ir.I32, vd, v5, v1))
}

func (self *program) straight() {
	for i := rapid.IntRange(0, 3).Draw(self.t, "stores"); i > 0; i-- {
		self.store()
	}
	for i := rapid.IntRange(0, 2).Draw(self.t, "loads"); i > 0; i-- {
		if v := self.load(); self.b.Graph().Type(v) == ir.I32 {
			self.ints = append(self.ints, v)
		} else {
			self.rets = append(self.rets, v)
		}
	}
}

func genProgram(t *rapid.T) *ir.Graph {
	b := ir.CreateBuilder("random")
	pg := &program{t: t, b: b, p: b.Param(ir.Ptr)}
	pg.ints = []ir.ID{b.Param(ir.I32), b.Param(ir.I32), b.Int(ir.I32, 0)}
	pg.floats = []ir.ID{b.Param(ir.F64)}

	/* a sequence of shapes on the main line */
	for i := rapid.IntRange(1, 4).Draw(t, "shapes"); i > 0; i-- {
		switch rapid.IntRange(0, 4).Draw(t, "shape") {
		case 0:
			pg.diamond()
		case 1:
			pg.guard()
		case 2:
			pg.sw()
		case 3:
			pg.shared()
		default:
			pg.straight()
		}
	}

	/* observe everything that was computed */
	b.Return(append(pg.rets, pg.ints...)...)
	return b.Build()
}

func TestDriver_PreservesBehavior(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		g := genProgram(rt)
		before := g.Clone()
		require.NoError(rt, NewDriver(testOptions()).Run(g))
		require.NoError(rt, g.Verify())

		/* same values and memory on a few inputs */
		for i := 0; i < 4; i++ {
			x := rapid.SampledFrom(consts).Draw(rt, "x")
			y := rapid.Uint32().Draw(rt, "y")
			f := math.Float64bits(rapid.SampledFrom(fconsts).Draw(rt, "f"))
			mem := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(rt, "mem")
			want, err := emu.New(before, target.AMD64).Run(mem, 0, x, uint64(y), f)
			require.NoError(rt, err)
			got, err := emu.New(g, target.AMD64).Run(mem, 0, x, uint64(y), f)
			require.NoError(rt, err, g.String())
			require.Equal(rt, want.Values, got.Values, g.String())
			require.Equal(rt, want.Memory, got.Memory, g.String())
		}

		/* no reachable zero-keyed branch is left on a non-strict integer compare */
		po := order.Compute(g)
		for _, bb := range po.Blocks {
			br := g.BlockEnd(bb)
			if g.Kind(br) != ir.KindBranch || g.InputCount(br) != 2 || len(g.Branch(br).Succ) != 2 || g.Branch(br).Keys[0] != 0 {
				continue
			}
			k := g.Kind(g.In(br, 1))
			if k.IsCompare() && g.Compare(g.In(br, 1)).CmpType.Kind == ir.TypeFloat {
				continue
			}
			require.NotEqual(rt, ir.KindCmpSle, k)
			require.NotEqual(rt, ir.KindCmpUle, k)
		}
	})
}
