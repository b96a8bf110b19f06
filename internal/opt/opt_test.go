package opt_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/iropt/internal/diagnostics"
	"github.com/orizon-lang/iropt/internal/flow"
	"github.com/orizon-lang/iropt/internal/lattice"
	"github.com/orizon-lang/iropt/internal/opt"
	"github.com/orizon-lang/iropt/internal/policy"
)

func runUnit(name string, pol *policy.Policy, build func(b *flow.Builder)) (*flow.Unit, *opt.Optimizer) {
	b := flow.NewBuilder(name)
	build(b)
	u := b.Finish()
	o := opt.New(u, pol, nil)
	o.Run()
	return u, o
}

// returnValue resolves the constant delivered by the top function, if
// the run reduced it to one.
func returnValue(t *testing.T, u *flow.Unit, o *opt.Optimizer) lattice.Value {
	t.Helper()
	top := u.Funs()[0]
	ret, ok := u.Node(top.ReturnNode).(*flow.Return)
	require.True(t, ok, "top function lost its return node")
	v, constant := o.ConstantValue(u.Edge(ret.Value))
	require.True(t, constant, "return value did not fold to a constant:\n%s", u.Format())
	return v
}

func hasDiag(o *opt.Optimizer, level diagnostics.Level, cat diagnostics.Category) bool {
	for _, d := range o.Diags.All() {
		if d.Level == level && d.Category == cat {
			return true
		}
	}
	return false
}

func TestConstantFoldAddition(t *testing.T) {
	u, o := runUnit("fold", nil, func(b *flow.Builder) {
		b.Return(b.Call("+", b.Int(2), b.Int(3)))
	})
	require.Equal(t, int64(5), returnValue(t, u, o))
	require.NotContains(t, u.Format(), "call.")
	require.Contains(t, u.Format(), "k:5")
}

func TestFoldIsIdempotent(t *testing.T) {
	u, o := runUnit("fold2", nil, func(b *flow.Builder) {
		b.Return(b.Call("*", b.Int(6), b.Int(7)))
	})
	first := u.Format()
	o.Run()
	require.Equal(t, first, u.Format())
	require.Equal(t, int64(42), returnValue(t, u, o))
}

func TestDivisionByZeroBecomesError(t *testing.T) {
	u, o := runUnit("divzero", nil, func(b *flow.Builder) {
		b.Return(b.Call("/", b.Int(1), b.Int(0)))
	})
	require.True(t, hasDiag(o, diagnostics.LevelWarning, diagnostics.CategoryFolding))
	require.Contains(t, u.Format(), "call.error")
}

func TestSignatureArityError(t *testing.T) {
	u, o := runUnit("arity", nil, func(b *flow.Builder) {
		b.Return(b.Call("car", b.Int(1), b.Int(2)))
	})
	require.True(t, hasDiag(o, diagnostics.LevelWarning, diagnostics.CategorySignature))
	require.Contains(t, u.Format(), "call.error")
}

func TestBranchFoldsOnConstantTest(t *testing.T) {
	u, o := runUnit("brfold", nil, func(b *flow.Builder) {
		test := b.Constant(lattice.TrueValue)
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
	})
	require.Equal(t, int64(1), returnValue(t, u, o))
	require.NotContains(t, u.Format(), "branch")
	require.True(t, hasDiag(o, diagnostics.LevelNote, diagnostics.CategoryDeadCode))
}

func TestBranchOnFalseTakesAlternative(t *testing.T) {
	u, o := runUnit("elsefold", nil, func(b *flow.Builder) {
		test := b.Constant(lattice.FalseValue)
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
	})
	require.Equal(t, int64(2), returnValue(t, u, o))
	require.NotContains(t, u.Format(), "branch")
}

func TestBranchWithIdenticalTargetsFolds(t *testing.T) {
	u, o := runUnit("sametarget", nil, func(b *flow.Builder) {
		x := b.U.NewVariable("x", nil)
		test := b.Ref(x)
		target := b.NewBlock()
		br := b.U.NewBranch(test, target.ID, target.ID)
		b.U.AppendNode(b.Block(), br)
		b.U.LinkBlocks(b.Block(), target)
		b.SetBlock(target)
		b.Return(b.Int(7))
	})
	require.Equal(t, int64(7), returnValue(t, u, o))
	require.NotContains(t, u.Format(), "branch")
}

func TestBranchDuplicatesPerProducer(t *testing.T) {
	u, _ := runUnit("splitjoin", nil, func(b *flow.Builder) {
		x := b.U.NewVariable("x", nil)
		y := b.U.NewVariable("y", nil)
		z := b.U.NewVariable("z", nil)
		t1, t2 := b.Branch(b.Ref(x))
		b.SetBlock(t1)
		e1 := b.Ref(y)
		b.SetBlock(t2)
		e2 := b.Ref(z)
		test := b.Join(e1, e2)
		tb := b.NewBlock()
		b.U.LinkBlocks(t1, tb)
		b.U.LinkBlocks(t2, tb)
		b.SetBlock(tb)
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
	})
	// The undecided entry branch survives, and the shared-test branch
	// is cloned so each join producer feeds its own copy.
	require.Equal(t, 3, strings.Count(u.Format(), "branch e"))
	for _, bid := range u.Blocks() {
		require.LessOrEqual(t, len(u.Block(bid).Succs), 2)
	}
}

func TestBranchFoldsOnProvableInterval(t *testing.T) {
	u, o := runUnit("interval", nil, func(b *flow.Builder) {
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
	})
	require.Equal(t, int64(1), returnValue(t, u, o))
	require.NotContains(t, u.Format(), "branch")
}

func TestDeadFlushableCallRemoved(t *testing.T) {
	u, _ := runUnit("deadcell", nil, func(b *flow.Builder) {
		b.Call("cons", b.Int(1), b.Int(2))
		b.Return(b.Int(9))
	})
	require.NotContains(t, u.Format(), "cons")
}

func TestDeadAssignmentRemoved(t *testing.T) {
	u, o := runUnit("deadstore", nil, func(b *flow.Builder) {
		v := b.U.NewVariable("unread", nil)
		b.Assign(v, b.Int(3))
		b.Return(b.Int(0))
	})
	require.NotContains(t, u.Format(), "set ")
	require.True(t, hasDiag(o, diagnostics.LevelNote, diagnostics.CategoryUnusedVariable))
}

func TestLetConversionPropagatesConstant(t *testing.T) {
	u, o := runUnit("letconv", nil, func(b *flow.Builder) {
		f := b.U.NewFun("adder", "x")
		b.InFun(f, func() {
			b.Return(b.Call("+", b.Ref(b.U.Leaf(f.Params[0])), b.Int(1)))
		})
		b.Return(b.CallVia(b.FunRef(f), b.Int(41)))
	})
	require.Equal(t, int64(42), returnValue(t, u, o))
	require.NotContains(t, u.Format(), "fun adder")
}

func TestLetConversionKeepsBlockInvariant(t *testing.T) {
	u, o := runUnit("letsplice", nil, func(b *flow.Builder) {
		f := b.U.NewFun("adder", "x")
		b.InFun(f, func() {
			b.Return(b.Call("+", b.Ref(b.U.Leaf(f.Params[0])), b.Int(1)))
		})
		b.Return(b.CallVia(b.FunRef(f), b.Int(41)))
	})
	require.Equal(t, int64(42), returnValue(t, u, o))
	// A two-successor block must end in a branch; splicing a callee
	// body must not leave a stale edge to the tail sentinel behind.
	for _, blk := range u.AllBlocks() {
		if len(blk.Succs) != 2 {
			continue
		}
		nodes := u.BlockNodes(blk)
		require.NotEmpty(t, nodes, "block b%d has two successors and no nodes", blk.ID)
		require.IsType(t, &flow.Branch{}, nodes[len(nodes)-1],
			"block b%d has two successors without a branch terminal", blk.ID)
	}
}

func TestLetConversionUnusedParameter(t *testing.T) {
	u, o := runUnit("unusedparam", nil, func(b *flow.Builder) {
		f := b.U.NewFun("ignorer", "unused")
		b.InFun(f, func() {
			b.Return(b.Int(7))
		})
		b.Return(b.CallVia(b.FunRef(f), b.Int(99)))
	})
	require.Equal(t, int64(7), returnValue(t, u, o))
	require.True(t, hasDiag(o, diagnostics.LevelNote, diagnostics.CategoryUnusedVariable))
}

func TestInductionVariableKeepsOneSidedBound(t *testing.T) {
	var param flow.LeafID
	u, _ := runUnit("induction", nil, func(b *flow.Builder) {
		f := b.U.NewFun("stepper", "i")
		param = f.Params[0]
		i := b.U.Leaf(param)
		b.InFun(f, func() {
			next := b.Call("+", b.Ref(i), b.Int(1))
			b.Assign(i, next)
			b.Return(b.Ref(i))
		})
		b.Return(b.CallVia(b.FunRef(f), b.Int(0)))
	})
	declared := u.Leaf(param).DeclaredType
	require.True(t, lattice.Equal(declared, lattice.IntFrom(0)),
		"declared type is %s", declared)
}

func TestMultiCallParameterUnion(t *testing.T) {
	var param flow.LeafID
	u, _ := runUnit("multicall", nil, func(b *flow.Builder) {
		f := b.U.NewFun("shared", "x")
		param = f.Params[0]
		b.InFun(f, func() {
			b.Return(b.Ref(b.U.Leaf(param)))
		})
		a := b.CallVia(b.FunRef(f), b.Int(1))
		c := b.CallVia(b.FunRef(f), b.Int(2))
		b.Return(b.Call("+", a, c))
	})
	declared := u.Leaf(param).DeclaredType
	require.True(t, lattice.Subtype(declared, lattice.IntRange(1, 2)),
		"declared type is %s", declared)
}

func TestMutualTailRecursionMergesClasses(t *testing.T) {
	var ping, pong *flow.Fun
	runUnit("pingpong", nil, func(b *flow.Builder) {
		ping = b.U.NewFun("ping", "n")
		pong = b.U.NewFun("pong", "n")
		twin := map[*flow.Fun]*flow.Fun{ping: pong, pong: ping}
		base := map[*flow.Fun]int64{ping: 1, pong: 2}
		for _, f := range []*flow.Fun{ping, pong} {
			f := f
			b.InFun(f, func() {
				p := b.U.Leaf(f.Params[0])
				then, alt := b.Branch(b.Ref(p))
				b.SetBlock(then)
				r1 := b.Int(base[f])
				b.SetBlock(alt)
				r2 := b.CallVia(b.FunRef(twin[f]), b.Ref(p))
				b.CallNode(r2).TailP = true
				out := b.Join(r1, r2)
				join := b.NewBlock()
				b.U.LinkBlocks(then, join)
				b.U.LinkBlocks(alt, join)
				b.SetBlock(join)
				b.Return(out)
			})
		}
		// Two external references per function keep both out of let
		// conversion, so only the tail calls can merge the classes.
		x := b.U.NewVariable("x", nil)
		a := b.CallVia(b.FunRef(ping), b.Ref(x))
		c := b.CallVia(b.FunRef(pong), b.Ref(x))
		b.Return(b.Call("+", a, c))
	})
	require.Same(t, ping.TailSet, pong.TailSet)
	require.True(t, lattice.Subtype(ping.TailSet.Type, lattice.IntRange(1, 2)),
		"class type is %s", ping.TailSet.Type)
}

func TestInlineExpansionByPriority(t *testing.T) {
	pol := policy.Default(1)
	pol.InlinePriority = []string{"twice"}
	u, o := runUnit("inline", pol, func(b *flow.Builder) {
		g := b.U.NewGlobal("twice", nil)
		g.InlineBody = func(iu *flow.Unit) flow.FunID {
			f := iu.NewFun("twice", "n")
			fb := flow.NewFunBuilder(iu, f)
			fb.Return(fb.Call("+", fb.Ref(iu.Leaf(f.Params[0])), fb.Ref(iu.Leaf(f.Params[0]))))
			return f.ID
		}
		b.Return(b.CallVia(b.Ref(g), b.Int(21)))
	})
	require.Equal(t, int64(42), returnValue(t, u, o))
}

func TestFuncallShiftsToDirectCall(t *testing.T) {
	u, o := runUnit("funcall", nil, func(b *flow.Builder) {
		fn := b.Constant(lattice.FuncName("+"))
		b.Return(b.CallVia(b.Global("funcall"), fn, b.Int(2), b.Int(3)))
	})
	require.Equal(t, int64(5), returnValue(t, u, o))
}

func TestKeywordCallClassification(t *testing.T) {
	var named, unnamed *flow.Call
	runUnit("keywords", nil, func(b *flow.Builder) {
		e1 := b.CallVia(b.Global("configure"), b.Int(1))
		named = b.CallNode(e1)
		named.Keywords = []string{"depth"}
		e2 := b.CallVia(b.Global("configure"), b.Int(2))
		unnamed = b.CallNode(e2)
		unnamed.Keywords = []string{""}
		b.Return(b.Call("+", e1, e2))
	})
	// Constant keyword names leave the call open to full-call
	// treatment; only an unresolvable name blocks it.
	require.Equal(t, flow.CallFull, named.Class)
	require.Equal(t, flow.CallUnknownKeys, unnamed.Class)
}

func TestMVCallBindsLiteralValues(t *testing.T) {
	u, o := runUnit("mvbind", nil, func(b *flow.Builder) {
		f := b.U.NewFun("binder", "a", "b")
		b.InFun(f, func() {
			b.Return(b.Call("+",
				b.Ref(b.U.Leaf(f.Params[0])),
				b.Ref(b.U.Leaf(f.Params[1]))))
		})
		vals := b.Call("values", b.Int(1), b.Int(2))
		b.Return(b.MVCall(b.FunRef(f), vals))
	})
	require.Equal(t, int64(3), returnValue(t, u, o))
	require.NotContains(t, u.Format(), "mv-call")
}

func TestMVCallPadsMissingValues(t *testing.T) {
	u, o := runUnit("mvpad", nil, func(b *flow.Builder) {
		f := b.U.NewFun("binder", "a", "b")
		b.InFun(f, func() {
			// The second variable defaults to the false sentinel.
			b.Return(b.Ref(b.U.Leaf(f.Params[1])))
		})
		vals := b.Call("values", b.Int(4))
		b.Return(b.MVCall(b.FunRef(f), vals))
	})
	require.Equal(t, lattice.FalseValue, returnValue(t, u, o))
}

func TestMVCallSpreadsListConstruction(t *testing.T) {
	var first flow.LeafID
	u, _ := runUnit("mvspread", nil, func(b *flow.Builder) {
		f := b.U.NewFun("binder", "a", "b")
		first = f.Params[0]
		b.InFun(f, func() {
			b.Return(b.Call("+",
				b.Ref(b.U.Leaf(f.Params[0])),
				b.Ref(b.U.Leaf(f.Params[1]))))
		})
		x := b.U.NewVariable("x", lattice.IntRange(1, 3))
		y := b.U.NewVariable("y", lattice.IntRange(2, 4))
		lst := b.Call("list", b.Ref(x), b.Ref(y))
		b.Return(b.MVCall(b.FunRef(f), b.Call("values-list", lst)))
	})
	require.NotContains(t, u.Format(), "mv-call")
	require.NotContains(t, u.Format(), "values-list")
	// The list's element edges reach the binder directly.
	declared := u.Leaf(first).DeclaredType
	require.True(t, lattice.Equal(declared, lattice.IntRange(1, 3)),
		"declared type is %s", declared)
}

func TestMVCallFloorExceedsDeclaredArity(t *testing.T) {
	u, o := runUnit("mvfloor", nil, func(b *flow.Builder) {
		g := b.U.NewGlobal("receiver",
			&lattice.Function{MinArgs: 1, MaxArgs: 1, Result: lattice.Universal})
		x := b.U.NewVariable("x", nil)
		y := b.U.NewVariable("y", nil)
		open := b.Call("frob", b.Int(1))
		b.Return(b.MVCall(b.Ref(g), b.Ref(x), b.Ref(y), open))
	})
	// The total count stays open, but two values are already certain.
	require.True(t, hasDiag(o, diagnostics.LevelError, diagnostics.CategorySignature))
	require.Contains(t, u.Format(), "mv-call")
}

func TestMVCallFloorExceedsBinding(t *testing.T) {
	_, o := runUnit("mvover", nil, func(b *flow.Builder) {
		f := b.U.NewFun("binder", "a")
		b.InFun(f, func() {
			b.Return(b.Ref(b.U.Leaf(f.Params[0])))
		})
		x := b.U.NewVariable("x", nil)
		y := b.U.NewVariable("y", nil)
		open := b.Call("frob", b.Int(1))
		b.Return(b.MVCall(b.FunRef(f), b.Ref(x), b.Ref(y), open))
	})
	require.True(t, hasDiag(o, diagnostics.LevelWarning, diagnostics.CategoryDiscardedValue))
}

func TestCastElidedWhenProvable(t *testing.T) {
	u, o := runUnit("castgone", nil, func(b *flow.Builder) {
		b.Return(b.Cast(flow.CastPlain, b.Int(5), lattice.AnyInteger))
	})
	require.Equal(t, int64(5), returnValue(t, u, o))
	require.NotContains(t, u.Format(), "cast.")
}

func TestCastDegenerateReportsAndTruncates(t *testing.T) {
	u, o := runUnit("castdead", nil, func(b *flow.Builder) {
		b.Return(b.Cast(flow.CastPlain, b.Int(5), lattice.Float))
	})
	require.Equal(t, 1, o.Diags.CountAt(diagnostics.LevelError))
	require.True(t, hasDiag(o, diagnostics.LevelError, diagnostics.CategoryTypeError))
	// Everything after the failing assertion is unreachable.
	require.Zero(t, u.Funs()[0].ReturnNode)
}

func TestBoundsCastFoldsConstantBound(t *testing.T) {
	u, _ := runUnit("bounds", nil, func(b *flow.Builder) {
		idx := b.U.NewVariable("i", lattice.IntRange(0, 7))
		bound := b.Int(8)
		c := b.Cast(flow.CastBounds, b.Ref(idx), lattice.AnyInteger)
		cast := b.U.Node(c.Producers[0]).(*flow.Cast)
		cast.Bound = bound.ID
		b.U.SetDest(bound, cast)
		b.Return(c)
	})
	require.NotContains(t, u.Format(), "cast.")
}

func TestBoundsCastElidedByPolicy(t *testing.T) {
	pol := policy.Default(3)
	u, _ := runUnit("nobounds", pol, func(b *flow.Builder) {
		idx := b.U.NewVariable("i", lattice.AnyInteger)
		bound := b.Int(8)
		c := b.Cast(flow.CastBounds, b.Ref(idx), lattice.AnyInteger)
		cast := b.U.Node(c.Producers[0]).(*flow.Cast)
		cast.Bound = bound.ID
		b.U.SetDest(bound, cast)
		b.Return(c)
	})
	require.NotContains(t, u.Format(), "cast.")
}

func TestMutationGuardWarnsOnLiteral(t *testing.T) {
	u, o := runUnit("mutguard", nil, func(b *flow.Builder) {
		lst := b.Constant(lattice.ListValue(int64(1), int64(2)))
		b.Return(b.Cast(flow.CastMutationGuard, lst, lattice.List))
	})
	require.True(t, hasDiag(o, diagnostics.LevelWarning, diagnostics.CategoryMutation))
	require.NotContains(t, u.Format(), "cast.")
}

func TestOneShotHookFiresOnceOnConstant(t *testing.T) {
	fired := 0
	u, _ := runUnit("oneshot", nil, func(b *flow.Builder) {
		c := b.Cast(flow.CastOneShot, b.Int(5), lattice.AnyInteger)
		cast := b.U.Node(c.Producers[0]).(*flow.Cast)
		cast.Hook = func(*flow.Unit, *flow.Cast) { fired++ }
		b.Return(c)
	})
	require.Equal(t, 1, fired)
	require.NotContains(t, u.Format(), "cast.")
}

func TestLocalExitBecomesControlTransfer(t *testing.T) {
	u, o := runUnit("escape", nil, func(b *flow.Builder) {
		target := b.U.NewEdge()
		val := b.Int(5)
		b.Exit(val, target, b.Fun())
		landing := b.NewBlock()
		b.U.LinkBlocks(b.Block(), landing)
		b.SetBlock(landing)
		place := b.U.NewCast(flow.CastExitPlaceholder, target, lattice.Universal)
		b.U.AppendNode(landing, place)
		res := b.U.NewEdge()
		b.U.SetResult(place, res)
		b.Return(res)
	})
	require.Equal(t, int64(5), returnValue(t, u, o))
	require.NotContains(t, u.Format(), "exit")
	require.NotContains(t, u.Format(), "cast.")
}

func TestRewriteGiveUpIsReported(t *testing.T) {
	u, o := runUnit("giveup", nil, func(b *flow.Builder) {
		v := b.U.NewVariable("x", nil)
		b.Return(b.Call("car", b.Ref(v)))
	})
	require.NotEmpty(t, u.FailedRewrites)
	require.Equal(t, "car-of-cons", u.FailedRewrites[0].Rule)
	require.True(t, hasDiag(o, diagnostics.LevelNote, diagnostics.CategoryFailedRewrite))
}

func TestDelayedRewriteRearmsThenGivesUp(t *testing.T) {
	u, o := runUnit("delay", nil, func(b *flow.Builder) {
		n := b.U.NewVariable("n", lattice.AnyInteger)
		b.Return(b.Call("expt", b.Int(3), b.Ref(n)))
	})
	require.True(t, hasDiag(o, diagnostics.LevelNote, diagnostics.CategoryFailedRewrite))
	found := false
	for _, fr := range u.FailedRewrites {
		if fr.Op == "expt" && strings.Contains(fr.Reason, "delayed past") {
			found = true
		}
	}
	require.True(t, found, "expected a delayed-past give-up record")
}

func TestExptSquareRewrite(t *testing.T) {
	u, o := runUnit("square", nil, func(b *flow.Builder) {
		b.Return(b.Call("expt", b.Int(6), b.Int(2)))
	})
	// Constant folding wins before the rewrite is ever consulted.
	require.Equal(t, int64(36), returnValue(t, u, o))
}

func TestAssignTypeConflictWarns(t *testing.T) {
	_, o := runUnit("conflict", nil, func(b *flow.Builder) {
		v := b.U.NewVariable("n", lattice.AnyInteger)
		b.Assign(v, b.Constant(3.5))
		b.Return(b.Ref(v))
	})
	require.True(t, hasDiag(o, diagnostics.LevelWarning, diagnostics.CategoryTypeConflict))
}

func TestRunRespectsPassLimitOnQuietUnit(t *testing.T) {
	u, o := runUnit("quiet", nil, func(b *flow.Builder) {
		b.Return(b.Int(1))
	})
	require.Equal(t, int64(1), returnValue(t, u, o))
	require.Len(t, u.Blocks(), 1)
}
