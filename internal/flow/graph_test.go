package flow_test

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/iropt/internal/flow"
	"github.com/orizon-lang/iropt/internal/lattice"
)

func TestBuilderWiring(t *testing.T) {
	b := flow.NewBuilder("wiring")
	u := b.U
	x := b.Int(40)
	y := b.Int(2)
	r := b.Call("+", x, y)
	ret := b.Return(r)
	b.Finish()

	call := b.CallNode(r)
	require.NotNil(t, call)
	require.Equal(t, call.ID, x.Dest)
	require.Equal(t, call.ID, y.Dest)
	require.Equal(t, ret.ID, r.Dest)
	require.Equal(t, []flow.NodeID{call.ID}, r.Producers)
	require.Equal(t, flow.CallUnclassified, call.Class)

	f := b.Fun()
	require.Equal(t, ret.ID, f.ReturnNode)
	entry := u.Block(f.Entry)
	require.Equal(t, []flow.BlockID{u.Head}, entry.Preds)
	require.Equal(t, []flow.BlockID{u.Tail}, entry.Succs)
}

func TestComputeOrderMarksUnreachable(t *testing.T) {
	b := flow.NewBuilder("orphan")
	u := b.U
	b.Return(b.Int(1))

	orphan := u.NewBlock(b.Fun().ID, 0)
	u.ComputeOrder()

	require.True(t, orphan.Has(flow.BlockDelete))
	for _, bid := range u.Order {
		require.NotEqual(t, orphan.ID, bid)
	}
}

func TestComputeOrderWalksFunEntries(t *testing.T) {
	b := flow.NewBuilder("main")
	u := b.U
	f := u.NewFun("helper", "x")
	b.InFun(f, func() {
		b.Return(b.Ref(u.Leaf(f.Params[0])))
	})
	b.Return(b.Int(0))
	u.ComputeOrder()

	require.False(t, u.Block(f.Entry).Has(flow.BlockDelete))
}

func TestDeleteNodeFlushesBackRefs(t *testing.T) {
	b := flow.NewBuilder("del")
	u := b.U
	v := u.NewVariable("v", nil)
	e := b.Ref(v)
	ref := u.Node(e.Producers[0]).(*flow.Ref)

	require.Len(t, u.LiveRefs(v), 1)
	u.DeleteNode(ref)
	require.True(t, ref.Deleted)
	require.Empty(t, u.LiveRefs(v))
	require.Empty(t, e.Producers)
}

func TestDeleteNodeClearsOperandDest(t *testing.T) {
	b := flow.NewBuilder("del2")
	u := b.U
	x := b.Int(1)
	r := b.Call("f", x)
	call := b.CallNode(r)

	u.DeleteNode(call)
	require.Zero(t, x.Dest)
	// Producers of the orphaned argument are queued for a flush.
	require.True(t, u.Block(u.Node(x.Producers[0]).Core().Block).Has(flow.BlockFlush))
}

func TestReoptimizeEdgeChokePoint(t *testing.T) {
	b := flow.NewBuilder("choke")
	u := b.U
	x := b.Int(1)
	r := b.Call("f", x)
	call := b.CallNode(r)
	cast := b.Cast(flow.CastPlain, r, lattice.AnyInteger)
	_ = cast

	x.Type = lattice.AnyInteger
	x.Reoptimize = false
	call.Reoptimize = false
	u.Reoptimize = false

	u.ReoptimizeEdge(x)
	require.Nil(t, x.Type)
	require.True(t, x.Reoptimize)
	require.True(t, call.Reoptimize)
	require.True(t, u.Reoptimize)
	require.True(t, u.Block(call.Block).Has(flow.BlockReoptimize))

	// Dependent casts of an edge are invalidated with it.
	castNode := u.Node(r.DependentCasts[0]).(*flow.Cast)
	castNode.Reoptimize = false
	u.ReoptimizeEdge(r)
	require.True(t, castNode.Reoptimize)
}

func TestMoveProducers(t *testing.T) {
	b := flow.NewBuilder("move")
	u := b.U
	a := b.Int(1)
	c := b.Int(2)
	out := b.Join(a, c)

	require.Empty(t, a.Producers)
	require.Empty(t, c.Producers)
	require.Len(t, out.Producers, 2)
	for _, pid := range out.Producers {
		require.Equal(t, out.ID, u.Node(pid).Core().Result)
	}
}

func TestJoinBlocks(t *testing.T) {
	b := flow.NewBuilder("join")
	u := b.U
	first := b.Block()
	b.Int(1)
	second := b.NewBlock()
	u.LinkBlocks(first, second)
	b.SetBlock(second)
	b.Return(b.Int(2))

	u.JoinBlocks(first, second)
	require.True(t, second.Has(flow.BlockDelete))
	require.Equal(t, []flow.BlockID{u.Tail}, first.Succs)
	nodes := u.BlockNodes(first)
	require.Len(t, nodes, 3)
	for _, n := range nodes {
		require.Equal(t, first.ID, n.Core().Block)
	}
}

func TestSubstituteLeaf(t *testing.T) {
	b := flow.NewBuilder("subst")
	u := b.U
	v := u.NewVariable("v", nil)
	e := b.Ref(v)
	ref := u.Node(e.Producers[0]).(*flow.Ref)
	k := u.NewConstant(int64(9))

	u.SubstituteLeaf(ref, k.ID)
	require.Empty(t, u.LiveRefs(v))
	require.Equal(t, k.ID, ref.Leaf)
	require.Nil(t, e.Type)
}

func TestTruncateAfter(t *testing.T) {
	b := flow.NewBuilder("trunc")
	u := b.U
	x := b.Int(1)
	_ = x
	cast := b.Cast(flow.CastPlain, x, lattice.Float)
	castNode := u.Node(cast.Producers[0]).(*flow.Cast)
	b.Return(cast)

	u.TruncateAfter(castNode)
	require.Zero(t, castNode.Next)
	require.Empty(t, u.Block(castNode.Block).Succs)
	require.Zero(t, b.Fun().ReturnNode)
}

func TestExitProducesTargetEdge(t *testing.T) {
	b := flow.NewBuilder("exits")
	u := b.U
	target := u.NewEdge()
	val := b.Int(3)
	b.Exit(val, target, b.Fun())

	require.Len(t, target.Producers, 1)
	ex := u.Node(target.Producers[0]).(*flow.Exit)
	u.DeleteNode(ex)
	require.Empty(t, target.Producers)
}

func TestFormatGolden(t *testing.T) {
	b := flow.NewBuilder("sample")
	x := b.Int(40)
	y := b.Int(2)
	r := b.Call("+", x, y)
	b.Return(r)
	u := b.Finish()

	g := goldie.New(t)
	g.Assert(t, "sample_unit", []byte(u.Format()+"\n"))
}
