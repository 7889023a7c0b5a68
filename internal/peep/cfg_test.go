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
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cloudwego/seaopt/internal/emu"
	"github.com/cloudwego/seaopt/internal/ir"
	"github.com/cloudwego/seaopt/internal/target"
)

type marks map[ir.ID]int

func (self marks) Mark(n ir.ID) {
	self[n]++
}

func session(g *ir.Graph) (*Session, marks) {
	m := marks{}
	return NewSession(g, target.AMD64, m, nil), m
}

func run(t require.TestingT, g *ir.Graph, mem []byte, args ...uint64) *emu.Result {
	res, err := emu.New(g, target.AMD64).Run(mem, args...)
	require.NoError(t, err)
	return res
}

type diamond struct {
	g     *ir.Graph
	br    ir.ID
	cond  ir.ID
	left  ir.ID
	right ir.ID
	merge ir.ID
	phi   ir.ID
}

// buildDiamond builds `if (x) v = 1 else v = 2; return v`. With swap set the
// right arm is wired into the merge block first, reversing the phi operands.
func buildDiamond(swap bool) *diamond {
	d := new(diamond)
	b := ir.CreateBuilder("diamond")
	d.cond = b.Param(ir.I32)
	d.left, d.right, d.merge = b.Region(), b.Region(), b.Region()
	d.br = b.If(d.cond, d.left, d.right)

	/* wire the arms */
	arms := []ir.ID{d.left, d.right}
	if swap {
		arms[0], arms[1] = arms[1], arms[0]
	}
	for _, arm := range arms {
		b.SetBlock(arm)
		b.Goto(d.merge)
	}

	/* one, two */
	b.SetBlock(d.merge)
	vals := []ir.ID{b.Int(ir.I32, 1), b.Int(ir.I32, 2)}
	if swap {
		vals[0], vals[1] = vals[1], vals[0]
	}
	d.phi = b.Phi(d.merge, ir.I32, vals...)
	b.Return(d.phi)
	d.g = b.Build()
	return d
}

func TestTransmuteGoto_Diamond(t *testing.T) {
	d := buildDiamond(false)
	s, m := session(d.g)
	start := d.g.Start

	s.TransmuteGoto(d.br, d.left)
	require.NoError(t, d.g.Verify())

	/* one successor, one input */
	bi := d.g.Branch(d.br)
	require.Equal(t, []ir.ID{d.left}, bi.Succ)
	require.Empty(t, bi.Keys)
	require.Equal(t, 1, d.g.InputCount(d.br))

	/* the other successor no longer sees the block */
	require.Zero(t, d.g.InputCount(d.right))
	require.Equal(t, start, d.g.PredBlock(d.left, 0))
	require.Equal(t, ir.KindProj, d.g.Kind(d.g.In(d.left, 0)))
	require.Zero(t, d.g.Proj(d.g.In(d.left, 0)).Index)

	/* the order is fresh and only holds reachable blocks */
	require.False(t, s.Order().Contains(d.right))
	require.True(t, s.Order().Contains(d.merge))
	require.Positive(t, m[d.left])
	require.Positive(t, m[start])

	/* always takes the left arm now */
	require.Equal(t, []uint64{1}, run(t, d.g, nil, 0).Values)
	require.Equal(t, []uint64{1}, run(t, d.g, nil, 9).Values)
}

func TestTransmuteGoto_Idempotent(t *testing.T) {
	d := buildDiamond(false)
	s, _ := session(d.g)
	s.TransmuteGoto(d.br, d.left)

	/* a second call allocates nothing */
	n, rebuilds := d.g.Len(), s.Rebuilds
	s.TransmuteGoto(d.br, d.left)
	require.Equal(t, n, d.g.Len())
	require.Equal(t, rebuilds, s.Rebuilds)
}

func TestTransmuteGoto_SwitchWithSharedTarget(t *testing.T) {
	b := ir.CreateBuilder("switch")
	x := b.Param(ir.I32)
	a, c := b.Region(), b.Region()
	br := b.Switch(x, a, []uint64{1, 2}, c, a)
	b.SetBlock(c)
	b.Return(b.Int(ir.I32, 7))
	b.SetBlock(a)
	b.Return(b.Phi(a, ir.I32, b.Int(ir.I32, 10), b.Int(ir.I32, 20)))
	g := b.Build()

	s, _ := session(g)
	s.TransmuteGoto(br, a)
	require.NoError(t, g.Verify())

	/* the duplicate edge is gone and the phi kept the first operand */
	require.Equal(t, 1, g.InputCount(a))
	require.Zero(t, g.InputCount(c))
	phi := g.Phis(a)[0]
	require.Equal(t, 2, g.InputCount(phi))
	require.Equal(t, []uint64{10}, run(t, g, nil, 2).Values)
}

func TestTransmuteGoto_Preconditions(t *testing.T) {
	d := buildDiamond(false)
	s, _ := session(d.g)
	require.Panics(t, func() { s.TransmuteGoto(d.phi, d.left) })
	require.Panics(t, func() { s.TransmuteGoto(d.br, d.g.Start) })

	/* a region without predecessors cannot be a target */
	orphan := d.g.Alloc(ir.KindRegion, ir.Control, nil)
	require.Panics(t, func() { s.TransmuteGoto(d.br, orphan) })
}

func TestIdealPhi_Diamond(t *testing.T) {
	for _, swap := range []bool{false, true} {
		d := buildDiamond(swap)
		s, _ := session(d.g)
		before := d.g.Clone()

		sel := s.IdealPhi(d.phi)
		require.Equal(t, ir.KindSelect, d.g.Kind(sel))

		/* select(cond, 1, 2) whatever the merge order */
		require.Equal(t, d.cond, d.g.In(sel, 1))
		v1, _ := d.g.IntValue(d.g.In(sel, 2))
		v2, _ := d.g.IntValue(d.g.In(sel, 3))
		require.Equal(t, uint64(1), v1, "swap = %v", swap)
		require.Equal(t, uint64(2), v2, "swap = %v", swap)

		/* the header jumps straight into the merge */
		require.Equal(t, []ir.ID{d.merge}, d.g.Branch(d.br).Succ)
		require.Equal(t, d.g.Start, d.g.PredBlock(d.merge, 0))
		require.Equal(t, 1, d.g.InputCount(d.merge))

		/* what the driver would do with the answer */
		d.g.Subsume(d.phi, sel)
		require.NoError(t, d.g.Verify())
		for _, x := range []uint64{0, 1, 0x80000000} {
			require.Equal(t, run(t, before, nil, x).Values, run(t, d.g, nil, x).Values)
		}
	}
}

func TestIdealPhi_Declines(t *testing.T) {
	t.Run("no-select", func(t *testing.T) {
		d := buildDiamond(false)
		s := NewSession(d.g, target.I386, nil, nil)
		require.Equal(t, ir.Nil, s.IdealPhi(d.phi))
	})

	t.Run("two-phis", func(t *testing.T) {
		d := buildDiamond(false)
		d.g.Alloc(ir.KindPhi, ir.I32, nil, d.merge, d.cond, d.cond)
		s, _ := session(d.g)
		require.Equal(t, ir.Nil, s.IdealPhi(d.phi))
	})

	t.Run("non-zero-key", func(t *testing.T) {
		d := buildDiamond(false)
		d.g.Branch(d.br).Keys[0] = 3
		s, _ := session(d.g)
		require.Equal(t, ir.Nil, s.IdealPhi(d.phi))
	})

	t.Run("effect-in-arm", func(t *testing.T) {
		b := ir.CreateBuilder("store")
		p := b.Param(ir.Ptr)
		l, r, m := b.Region(), b.Region(), b.Region()
		b.If(b.Param(ir.I32), l, r)
		b.SetBlock(l)
		b.Store(p, b.Int(ir.I8, 1), 1)
		b.Goto(m)
		b.SetBlock(r)
		b.Goto(m)
		b.SetBlock(m)
		phi := b.Phi(m, ir.I32, b.Int(ir.I32, 1), b.Int(ir.I32, 2))
		b.Return(phi)
		s, _ := session(b.Build())
		require.Equal(t, ir.Nil, s.IdealPhi(phi))
	})

	t.Run("not-a-diamond", func(t *testing.T) {
		b := ir.CreateBuilder("merge")
		x := b.Param(ir.I32)
		l, r, m := b.Region(), b.Region(), b.Region()
		b.If(x, l, m)
		b.SetBlock(l)
		b.If(x, r, m)
		b.SetBlock(r)
		b.Return()
		b.SetBlock(m)
		phi := b.Phi(m, ir.I32, b.Int(ir.I32, 1), b.Int(ir.I32, 2))
		b.Return(phi)
		s, _ := session(b.Build())
		require.Equal(t, ir.Nil, s.IdealPhi(phi))
	})
}

func buildCompare(kind ir.Kind, k uint64) (g *ir.Graph, br ir.ID, cmp ir.ID, a ir.ID, b ir.ID) {
	bd := ir.CreateBuilder("cmp")
	x := bd.Param(ir.I32)
	a, b = bd.Region(), bd.Region()
	cmp = bd.Cmp(kind, x, bd.Int(ir.I32, k))
	br = bd.If(cmp, a, b)
	bd.SetBlock(a)
	bd.Return(bd.Int(ir.I32, 1))
	bd.SetBlock(b)
	bd.Return(bd.Int(ir.I32, 2))
	return bd.Build(), br, cmp, a, b
}

func TestIdealBranch_DropNotEqual(t *testing.T) {
	g, br, cmp, a, b := buildCompare(ir.KindCmpNe, 0)
	s, _ := session(g)
	x := g.In(cmp, 1)

	require.Equal(t, br, s.IdealBranch(br))
	require.Equal(t, x, g.In(br, 1))
	require.Equal(t, []uint64{0}, g.Branch(br).Keys)
	require.Equal(t, []ir.ID{a, b}, g.Branch(br).Succ)
	require.True(t, g.IsDead(cmp))
	require.NoError(t, g.Verify())
}

func TestIdealBranch_DropEqual(t *testing.T) {
	g, br, cmp, a, b := buildCompare(ir.KindCmpEq, 5)
	before := g.Clone()
	s, _ := session(g)
	x := g.In(cmp, 1)

	require.Equal(t, br, s.IdealBranch(br))
	require.Equal(t, x, g.In(br, 1))
	require.Equal(t, []uint64{5}, g.Branch(br).Keys)
	require.Equal(t, []ir.ID{b, a}, g.Branch(br).Succ)
	require.NoError(t, g.Verify())

	/* a keyed branch is left alone from now on */
	require.Equal(t, ir.Nil, s.IdealBranch(br))
	for _, v := range []uint64{0, 4, 5, 6} {
		require.Equal(t, run(t, before, nil, v).Values, run(t, g, nil, v).Values, "x = %d", v)
	}
}

func TestIdealBranch_FlipCompare(t *testing.T) {
	for _, kind := range []ir.Kind{ir.KindCmpSle, ir.KindCmpUle} {
		bd := ir.CreateBuilder("flip")
		x, y := bd.Param(ir.I32), bd.Param(ir.I32)
		a, b := bd.Region(), bd.Region()
		br := bd.If(bd.Cmp(kind, x, y), a, b)
		bd.SetBlock(a)
		bd.Return(bd.Int(ir.I32, 1))
		bd.SetBlock(b)
		bd.Return(bd.Int(ir.I32, 2))
		g := bd.Build()
		before := g.Clone()
		s, _ := session(g)

		require.Equal(t, br, s.IdealBranch(br))
		require.NoError(t, g.Verify())

		/* y < x with the edges swapped */
		cond := g.In(br, 1)
		require.Equal(t, []ir.ID{y, x}, g.Node(cond).Ins[1:])
		require.True(t, g.Kind(cond) == ir.KindCmpSlt || g.Kind(cond) == ir.KindCmpUlt)
		require.Equal(t, []ir.ID{b, a}, g.Branch(br).Succ)
		require.Equal(t, ir.Nil, s.IdealBranch(br))

		/* same answers both ways */
		rapid.Check(t, func(rt *rapid.T) {
			vx := rapid.Uint32().Draw(rt, "x")
			vy := rapid.Uint32().Draw(rt, "y")
			require.Equal(rt, run(rt, before, nil, uint64(vx), uint64(vy)).Values, run(rt, g, nil, uint64(vx), uint64(vy)).Values)
		})
	}
}

func TestIdealBranch_FlipCompareFloat(t *testing.T) {
	nan, one := math.Float64bits(math.NaN()), math.Float64bits(1.0)
	for _, kind := range []ir.Kind{ir.KindCmpSle, ir.KindCmpUle} {
		bd := ir.CreateBuilder("flip")
		x, y := bd.Param(ir.F64), bd.Param(ir.F64)
		a, b := bd.Region(), bd.Region()
		br := bd.If(bd.Cmp(kind, x, y), a, b)
		bd.SetBlock(a)
		bd.Return(bd.Int(ir.I32, 1))
		bd.SetBlock(b)
		bd.Return(bd.Int(ir.I32, 2))
		g := bd.Build()
		cond := g.In(br, 1)
		s, _ := session(g)

		/* NaN is neither <= nor >, so there is nothing to flip */
		require.Equal(t, ir.Nil, s.IdealBranch(br))
		require.Equal(t, cond, g.In(br, 1))
		require.Equal(t, []ir.ID{a, b}, g.Branch(br).Succ)
		require.Equal(t, []uint64{2}, run(t, g, nil, nan, one).Values)
		require.Equal(t, []uint64{2}, run(t, g, nil, one, nan).Values)
		require.Equal(t, []uint64{1}, run(t, g, nil, one, one).Values)
	}
}

func TestIdealBranch_DropCompareMixedWidth(t *testing.T) {
	for _, kind := range []ir.Kind{ir.KindCmpNe, ir.KindCmpEq} {
		g, br, cmp, _, _ := buildCompare(kind, 5)
		g.Compare(cmp).CmpType = ir.I8
		before := g.Clone()
		s, _ := session(g)

		/* the comparison only looks at the low byte of x */
		require.Equal(t, ir.Nil, s.IdealBranch(br))
		require.Equal(t, cmp, g.In(br, 1))
		for _, v := range []uint64{5, 0x105, 0x106, 0} {
			require.Equal(t, run(t, before, nil, v).Values, run(t, g, nil, v).Values, "x = %#x", v)
		}
	}
}

// buildSharedSwitch builds a switch on c whose default edge and key 2 edge
// both land on a, where a Phi tells the two edges apart.
func buildSharedSwitch(c uint64) (g *ir.Graph, br ir.ID, a ir.ID) {
	b := ir.CreateBuilder("shared")
	a, other := b.Region(), b.Region()
	br = b.Switch(b.Int(ir.I32, c), a, []uint64{1, 2}, other, a)
	b.SetBlock(other)
	b.Return(b.Int(ir.I32, 7))
	b.SetBlock(a)
	b.Return(b.Phi(a, ir.I32, b.Int(ir.I32, 10), b.Int(ir.I32, 20)))
	return b.Build(), br, a
}

func TestIdealBranch_ConstantSharedTarget(t *testing.T) {
	for c, want := range map[uint64]uint64{0: 10, 1: 7, 2: 20, 9: 10} {
		g, br, a := buildSharedSwitch(c)
		before := g.Clone()
		s, _ := session(g)

		require.Equal(t, br, s.IdealBranch(br))
		require.NoError(t, g.Verify())
		require.Len(t, g.Branch(br).Succ, 1)
		require.LessOrEqual(t, g.InputCount(a), 1)

		/* the phi keeps the operand of the edge the constant takes */
		require.Equal(t, []uint64{want}, run(t, before, nil).Values, "c = %d", c)
		require.Equal(t, []uint64{want}, run(t, g, nil).Values, "c = %d", c)
	}
}

func TestIdealBranch_ConstantCondition(t *testing.T) {
	b := ir.CreateBuilder("const")
	def, one, two := b.Region(), b.Region(), b.Region()
	c := b.Int(ir.I8, 2)
	br := b.Switch(c, def, []uint64{1, 2}, one, two)
	for i, bb := range []ir.ID{def, one, two} {
		b.SetBlock(bb)
		b.Return(b.Int(ir.I32, uint64(i)))
	}
	g := b.Build()
	s, _ := session(g)

	require.Equal(t, br, s.IdealBranch(br))
	require.NoError(t, g.Verify())
	require.Equal(t, []ir.ID{two}, g.Branch(br).Succ)
	require.Zero(t, g.InputCount(def))
	require.Zero(t, g.InputCount(one))
	require.True(t, g.IsDead(c))
	require.Equal(t, []uint64{2}, run(t, g, nil).Values)
}

type guard struct {
	g     *ir.Graph
	outer ir.ID
	inner ir.ID
	bb    ir.ID
	t     ir.ID
	f     ir.ID
}

// buildGuard builds `if (a) { if (b) T else F } else F`. With onFalse set the
// inner block hangs off the false edge of the outer branch instead.
func buildGuard(onFalse bool, key uint64, phis bool) *guard {
	gd := new(guard)
	b := ir.CreateBuilder("guard")
	a, c := b.Param(ir.I32), b.Param(ir.I32)
	gd.bb, gd.t, gd.f = b.Region(), b.Region(), b.Region()
	if onFalse {
		gd.outer = b.IfKey(a, key, gd.f, gd.bb)
	} else {
		gd.outer = b.IfKey(a, key, gd.bb, gd.f)
	}
	b.SetBlock(gd.bb)
	gd.inner = b.If(c, gd.t, gd.f)
	b.SetBlock(gd.t)
	b.Return(b.Int(ir.I32, 1))
	b.SetBlock(gd.f)
	if phis {
		v := b.Int(ir.I32, 2)
		b.Return(b.Phi(gd.f, ir.I32, v, v))
	} else {
		b.Return(b.Int(ir.I32, 2))
	}
	gd.g = b.Build()
	return gd
}

func TestIdealBranch_GuardChain(t *testing.T) {
	for _, onFalse := range []bool{false, true} {
		for _, key := range []uint64{0, 7} {
			gd := buildGuard(onFalse, key, true)
			before := gd.g.Clone()
			s, _ := session(gd.g)

			require.Equal(t, gd.inner, s.IdealBranch(gd.inner))
			require.NoError(t, gd.g.Verify())

			/* the outer branch falls into the inner block */
			require.Equal(t, []ir.ID{gd.bb}, gd.g.Branch(gd.outer).Succ)
			require.Equal(t, 1, gd.g.InputCount(gd.f))
			require.Equal(t, ir.KindSelect, gd.g.Kind(gd.g.In(gd.inner, 1)))
			require.True(t, s.Order().Contains(gd.f))

			/* and nothing observable changed */
			rapid.Check(t, func(rt *rapid.T) {
				a := rapid.SampledFrom([]uint64{0, 1, 7, 0xffffffff}).Draw(rt, "a")
				c := rapid.SampledFrom([]uint64{0, 1, 2}).Draw(rt, "c")
				require.Equal(rt, run(rt, before, nil, a, c).Values, run(rt, gd.g, nil, a, c).Values)
			})
		}
	}
}

func TestIdealBranch_GuardChainDeclines(t *testing.T) {
	t.Run("phis-disagree", func(t *testing.T) {
		gd := buildGuard(false, 0, false)
		phi := gd.g.Alloc(ir.KindPhi, ir.I32, nil, gd.f, gd.g.In(gd.outer, 1), gd.g.In(gd.inner, 1))
		s, _ := session(gd.g)
		s.IdealBranch(gd.inner)
		require.Equal(t, ir.KindPhi, gd.g.Kind(phi))
		require.Len(t, gd.g.Branch(gd.outer).Succ, 2)
	})

	t.Run("shared-true-edge", func(t *testing.T) {
		b := ir.CreateBuilder("guard")
		a, c := b.Param(ir.I32), b.Param(ir.I32)
		bb, tt, ff := b.Region(), b.Region(), b.Region()
		outer := b.If(a, bb, tt)
		b.SetBlock(bb)
		inner := b.If(c, tt, ff)
		b.SetBlock(tt)
		b.Return()
		b.SetBlock(ff)
		b.Return()
		g := b.Build()
		s, _ := session(g)
		require.Equal(t, ir.Nil, s.IdealBranch(inner))
		require.Len(t, g.Branch(outer).Succ, 2)
	})

	t.Run("busy-block", func(t *testing.T) {
		b := ir.CreateBuilder("guard")
		a, c := b.Param(ir.I32), b.Param(ir.Ptr)
		bb, tt, ff := b.Region(), b.Region(), b.Region()
		b.If(a, bb, ff)
		b.SetBlock(bb)
		inner := b.If(b.Load(ir.I32, c, 4), tt, ff)
		b.SetBlock(tt)
		b.Return()
		b.SetBlock(ff)
		b.Return()
		s, _ := session(b.Build())
		require.Equal(t, ir.Nil, s.IdealBranch(inner))
	})
}
