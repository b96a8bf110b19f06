package cli

import (
	"github.com/orizon-lang/iropt/internal/flow"
	"github.com/orizon-lang/iropt/internal/lattice"
)

type sample struct {
	doc   string
	build func() *flow.Unit
}

// samples are small front-end shaped programs exercising the main
// rewrite families.
var samples = map[string]sample{
	"arith": {
		doc: "constant folding of (* (+ 2 3) 7)",
		build: func() *flow.Unit {
			b := flow.NewBuilder("arith")
			b.Return(b.Call("*", b.Call("+", b.Int(2), b.Int(3)), b.Int(7)))
			return b.Finish()
		},
	},
	"branch": {
		doc: "branch decided by interval reasoning on (< x 10)",
		build: func() *flow.Unit {
			b := flow.NewBuilder("decide")
			x := b.U.NewVariable("x", lattice.IntRange(0, 5))
			test := b.Call("<", b.Ref(x), b.Int(10))
			then, alt := b.Branch(test)
			b.SetBlock(then)
			r1 := b.Int(1)
			b.SetBlock(alt)
			r2 := b.Int(2)
			out := b.Join(r1, r2)
			join := b.NewBlock()
			b.U.LinkBlocks(then, join)
			b.U.LinkBlocks(alt, join)
			b.SetBlock(join)
			b.Return(out)
			return b.Finish()
		},
	},
	"let": {
		doc: "single-call local function converted to a binding",
		build: func() *flow.Unit {
			b := flow.NewBuilder("letconv")
			f := b.U.NewFun("adder", "x")
			b.InFun(f, func() {
				b.Return(b.Call("+", b.Ref(b.U.Leaf(f.Params[0])), b.Int(1)))
			})
			b.Return(b.CallVia(b.FunRef(f), b.Int(41)))
			return b.Finish()
		},
	},
	"mv": {
		doc: "multiple-value call with a statically known value count",
		build: func() *flow.Unit {
			b := flow.NewBuilder("mvbind")
			f := b.U.NewFun("binder", "a", "b")
			b.InFun(f, func() {
				b.Return(b.Call("+",
					b.Ref(b.U.Leaf(f.Params[0])),
					b.Ref(b.U.Leaf(f.Params[1]))))
			})
			vals := b.Call("values", b.Int(1), b.Int(2))
			b.Return(b.MVCall(b.FunRef(f), vals))
			return b.Finish()
		},
	},
	"cast": {
		doc: "bounds check eliminated by interval subsumption",
		build: func() *flow.Unit {
			b := flow.NewBuilder("bounds")
			idx := b.U.NewVariable("i", lattice.IntRange(0, 7))
			bound := b.Int(8)
			c := b.Cast(flow.CastBounds, b.Ref(idx), lattice.AnyInteger)
			cast := b.U.Node(c.Producers[0]).(*flow.Cast)
			cast.Bound = bound.ID
			b.U.SetDest(bound, cast)
			b.Return(c)
			return b.Finish()
		},
	},
	"error": {
		doc: "compile-time detected division by zero",
		build: func() *flow.Unit {
			b := flow.NewBuilder("divzero")
			b.Return(b.Call("/", b.Int(1), b.Int(0)))
			return b.Finish()
		},
	},
}
