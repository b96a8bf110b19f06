package opt

import (
	"github.com/orizon-lang/iropt/internal/diagnostics"
	"github.com/orizon-lang/iropt/internal/flow"
	"github.com/orizon-lang/iropt/internal/lattice"
)

// optimizeBranch folds branches whose outcome the test type decides,
// merges branches whose arms coincide, and tensions decidable
// producers past a branch-only block.
func (o *Optimizer) optimizeBranch(n *flow.Branch) {
	test := o.Unit.Edge(n.Test)
	t := o.DerivedType(test)
	switch {
	case t == lattice.Empty:
		// Unreachable test; leave it for dead-code removal.
		return
	case lattice.ExcludesFalse(t):
		o.foldBranch(n, true)
		return
	case lattice.Subtype(t, lattice.False):
		o.foldBranch(n, false)
		return
	}
	if n.Consequent == n.Alternative {
		// One shared target block means one entry state, so no type
		// information is lost by dropping the test. Distinct blocks
		// with equivalent contents are left to block joining.
		o.foldBranch(n, true)
		return
	}
	o.tensionBranch(n)
	if !n.Deleted {
		o.duplicateBranch(n)
	}
}

// foldBranch replaces a decided branch with a fall-through to the
// surviving arm.
func (o *Optimizer) foldBranch(n *flow.Branch, takeConsequent bool) {
	u := o.Unit
	b := u.Block(n.Block)
	winner, loser := n.Consequent, n.Alternative
	if !takeConsequent {
		winner, loser = loser, winner
	}
	if winner != loser {
		u.UnlinkBlocks(b, u.Block(loser))
	}
	u.DeleteNode(n)
	u.RecomputeOrder = true
	u.MarkDirty(b)
	u.MarkDirty(u.Block(winner))
}

// tensionBranch applies to a block holding nothing but the branch:
// any predecessor producing a test value whose type already decides
// the branch is rerouted straight to the decided arm, skipping the
// test at run time. When only one producer remains the block
// dissolves through the normal fold path on a later visit.
func (o *Optimizer) tensionBranch(n *flow.Branch) {
	u := o.Unit
	b := u.Block(n.Block)
	if b.Head != n.ID || n.Next != 0 {
		return
	}
	test := u.Edge(n.Test)
	if len(test.Producers) < 2 {
		return
	}
	for _, pid := range append([]flow.NodeID(nil), test.Producers...) {
		p := u.Node(pid)
		c := p.Core()
		if c.Deleted || c.Next != 0 {
			continue
		}
		pb := u.Block(c.Block)
		if pb == nil || pb.ID == b.ID || len(pb.Succs) != 1 || pb.Succs[0] != b.ID {
			continue
		}
		var target flow.BlockID
		pt := o.nodeType(p)
		switch {
		case lattice.ExcludesFalse(pt):
			target = n.Consequent
		case lattice.Subtype(pt, lattice.False):
			target = n.Alternative
		default:
			continue
		}
		u.ChangeSuccessor(pb, b.ID, target)
		u.RemoveProducer(test, p)
		// The producer's value is now unused on that path.
		pb.Set(flow.BlockFlush)
		u.MarkDirty(pb)
		u.MarkDirty(u.Block(target))
		u.RecomputeOrder = true
	}
}

// duplicateBranch clones a branch-only block once per extra test
// producer so each copy can fold independently once its producer's
// type is decided. One producer stays on the original; duplicating
// down to a single producer buys nothing further.
func (o *Optimizer) duplicateBranch(n *flow.Branch) {
	u := o.Unit
	b := u.Block(n.Block)
	if b == nil || b.Head != n.ID || n.Next != 0 {
		return
	}
	test := u.Edge(n.Test)
	for len(test.Producers) > 1 {
		var split flow.Node
		var splitBlock *flow.Block
		for _, pid := range test.Producers {
			p := u.Node(pid)
			c := p.Core()
			if c.Deleted || c.Next != 0 {
				continue
			}
			pb := u.Block(c.Block)
			if pb == nil || pb.ID == b.ID || len(pb.Succs) != 1 || pb.Succs[0] != b.ID {
				continue
			}
			split, splitBlock = p, pb
			break
		}
		if split == nil {
			return
		}
		fresh := u.NewEdge()
		u.RemoveProducer(test, split)
		u.SetResult(split, fresh)
		nb := u.NewBlock(b.Fun, b.Cleanup)
		br := u.NewBranch(fresh, n.Consequent, n.Alternative)
		u.AppendNode(nb, br)
		u.ChangeSuccessor(splitBlock, b.ID, nb.ID)
		u.LinkBlocks(nb, u.Block(n.Consequent))
		u.LinkBlocks(nb, u.Block(n.Alternative))
		u.RecomputeOrder = true
		u.ReoptimizeNode(br)
	}
}

// optimizeAssign drops assignments to variables nothing reads and
// flags assignments whose value type contradicts the declared type.
func (o *Optimizer) optimizeAssign(n *flow.Assign) {
	u := o.Unit
	v := u.Leaf(n.Var)
	if v.Kind == flow.LeafVariable && len(u.LiveRefs(v)) == 0 {
		o.note(diagnostics.CategoryUnusedVariable, n,
			"assignment to %s, which is never read", v.Name)
		u.DeleteNode(n)
		return
	}
	t := o.DerivedType(u.Edge(n.Value))
	if t != lattice.Empty && lattice.Disjoint(t, v.DeclaredType) {
		o.warnOnce(diagnostics.CategoryTypeConflict, n,
			[]lattice.Type{t, v.DeclaredType},
			"assigning a value of type %s to %s, declared %s",
			t, v.Name, v.DeclaredType)
	}
}

// optimizeExit turns an exit whose target context lives in the same
// function unit into a plain control transfer: the carried value
// producers feed the target edge directly and the exit disappears.
func (o *Optimizer) optimizeExit(n *flow.Exit) {
	u := o.Unit
	b := u.Block(n.Block)
	if n.TargetFun == 0 || n.TargetFun != b.Fun {
		return
	}
	target := u.Edge(n.Target)
	if target == nil {
		u.DeleteNode(n)
		return
	}
	if n.Value != 0 {
		u.MoveProducers(u.Edge(n.Value), target)
	}
	destBlock := flow.BlockID(0)
	if dest := u.Node(target.Dest); dest != nil && !dest.Core().Deleted {
		destBlock = dest.Core().Block
	}
	u.DeleteNode(n)
	if destBlock != 0 {
		u.LinkBlocks(b, u.Block(destBlock))
	}
	u.RecomputeOrder = true
	u.MarkDirty(b)
}

// joinSuccessor merges b with its sole successor when the two form a
// straight line inside one function unit and cleanup context, and the
// successor's entry does not pin a block boundary. Reports whether a
// join happened.
func (o *Optimizer) joinSuccessor(b *flow.Block) bool {
	u := o.Unit
	if b.ID == u.Head || b.ID == u.Tail || b.Has(flow.BlockDelete) {
		return false
	}
	if len(b.Succs) != 1 {
		return false
	}
	s := u.Block(b.Succs[0])
	if s.ID == u.Head || s.ID == u.Tail || s.Has(flow.BlockDelete) {
		return false
	}
	if len(s.Preds) != 1 || s.Fun != b.Fun || s.Cleanup != b.Cleanup {
		return false
	}
	if entry := u.EntryNode(s); entry != nil {
		if cast, ok := entry.(*flow.Cast); ok && cast.CKind == flow.CastExitPlaceholder {
			return false
		}
	}
	switch u.TerminalNode(b).(type) {
	case *flow.Branch, *flow.Return, *flow.Exit, *flow.MVCall:
		// Terminators and multi-value boundaries end a block for good.
		return false
	}
	u.JoinBlocks(b, s)
	return true
}

// flushDeadCode removes side-effect-free nodes whose value nothing
// consumes, scanning backwards so a consumer removed earlier in the
// scan frees its operands' producers in the same sweep.
func (o *Optimizer) flushDeadCode(b *flow.Block) {
	u := o.Unit
	nodes := u.BlockNodes(b)
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		if n.Core().Deleted || !o.flushable(n) {
			continue
		}
		if call, ok := n.(*flow.Call); ok && call.Class == flow.CallKnown {
			o.note(diagnostics.CategoryDiscardedValue, n,
				"result of %s is never used", o.callName(call))
		}
		u.DeleteNode(n)
	}
	b.Clear(flow.BlockFlush)
}

// flushable reports whether deleting n cannot change observable
// behavior: its value is unconsumed and it has no effects.
func (o *Optimizer) flushable(n flow.Node) bool {
	u := o.Unit
	c := n.Core()
	if c.Result != 0 {
		if e := u.Edge(c.Result); e != nil && e.Dest != 0 {
			return false
		}
	}
	switch n := n.(type) {
	case *flow.Ref:
		return true
	case *flow.Call:
		if n.Class != flow.CallKnown {
			return false
		}
		info := o.callInfo(n)
		return info != nil && info.Attrs.Has(AttrFlushable)
	case *flow.MVCall, *flow.Branch, *flow.Return, *flow.Exit:
		return false
	case *flow.Assign:
		v := u.Leaf(n.Var)
		return v.Kind == flow.LeafVariable && len(u.LiveRefs(v)) == 0
	case *flow.Cast:
		if n.CKind == flow.CastExitPlaceholder || n.CKind == flow.CastOneShot {
			return false
		}
		return !n.RuntimeCheck
	default:
		panic("opt: flushable got unknown node kind")
	}
}

// deleteUnreachable physically empties blocks the flow-order walk
// marked unreachable, reporting removed user code once per block.
func (o *Optimizer) deleteUnreachable() {
	u := o.Unit
	for _, b := range u.DoomedBlocks() {
		if entry := u.EntryNode(b); entry != nil {
			o.note(diagnostics.CategoryDeadCode, entry, "deleting unreachable code")
		}
		b.Clear(flow.BlockDelete)
		u.DeleteBlock(b)
	}
}

// callName resolves a printable operator name for diagnostics.
func (o *Optimizer) callName(n *flow.Call) string {
	if g := o.calleeGlobal(n.Callee); g != nil {
		return g.Name
	}
	if f := o.calleeFun(n.Callee); f != nil {
		return f.Name
	}
	return "anonymous function"
}
