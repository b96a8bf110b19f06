package opt

import (
	"github.com/orizon-lang/iropt/internal/diagnostics"
	"github.com/orizon-lang/iropt/internal/flow"
)

// defaultPassLimit bounds the fixed-point iteration. Well-formed
// units converge long before this; the limit only guards against a
// non-monotone rewrite rule.
const defaultPassLimit = 100

// Run drives the unit to a fixed point: passes repeat while any
// rewrite reports further work, delayed rules re-arm at each
// quiescent point, and a final sweep removes unreachable code and
// reports rewrite rules that never applied.
func (o *Optimizer) Run() {
	u := o.Unit
	for pass := 0; pass < o.passLimit; pass++ {
		if !u.Reoptimize && u.DirtyLen() == 0 {
			if !o.rearmDelayed() {
				break
			}
		}
		u.Reoptimize = false
		o.pass()
	}
	o.finish()
}

// pass drains the dirty worklist into a visit set, then sweeps the
// blocks in flow order so types propagate forward, and finishes with
// unreachable-block removal and block joining.
func (o *Optimizer) pass() {
	u := o.Unit
	dirty := make(map[flow.BlockID]bool)
	for b := u.PopDirty(); b != nil; b = u.PopDirty() {
		dirty[b.ID] = true
	}
	for _, bid := range u.Blocks() {
		b := u.Block(bid)
		if b.Has(flow.BlockDelete) {
			continue
		}
		if !dirty[bid] && !b.Has(flow.BlockReoptimize) && !b.Has(flow.BlockFlush) {
			continue
		}
		o.optimizeBlock(b)
	}
	u.ComputeOrder()
	o.deleteUnreachable()
	for _, bid := range u.Blocks() {
		b := u.Block(bid)
		if b.Has(flow.BlockDelete) {
			continue
		}
		for o.joinSuccessor(b) {
		}
	}
}

// optimizeBlock visits the flagged nodes of one block in control
// order, then flushes dead code if anything requested it.
func (o *Optimizer) optimizeBlock(b *flow.Block) {
	u := o.Unit
	b.Clear(flow.BlockReoptimize)
	for _, n := range u.BlockNodes(b) {
		c := n.Core()
		if c.Deleted || !c.Reoptimize {
			continue
		}
		c.Reoptimize = false
		o.optimizeNode(n)
		if b.Has(flow.BlockDelete) {
			return
		}
	}
	if b.Has(flow.BlockFlush) {
		o.flushDeadCode(b)
	}
}

// rearmDelayed requeues rules suspended until a phase boundary, in
// phase order, and marks each boundary as passed so a rule delaying
// a second time converts to a give-up. Reports whether anything was
// requeued.
func (o *Optimizer) rearmDelayed() bool {
	u := o.Unit
	requeued := false
	for _, phase := range []DelayPhase{DelayNextPass, DelayConstraint} {
		ids := o.delayed[phase]
		if len(ids) == 0 {
			continue
		}
		o.phasesRun[phase] = true
		delete(o.delayed, phase)
		for _, id := range ids {
			if n := u.Node(id); n != nil && !n.Core().Deleted {
				u.ReoptimizeNode(n)
				requeued = true
			}
		}
		if requeued {
			// One phase boundary per quiescent point.
			return true
		}
	}
	return requeued
}

// finish performs the end-of-run sweep: a last reachability pass and
// the failed-rewrite report for calls that survived to the end.
func (o *Optimizer) finish() {
	u := o.Unit
	u.ComputeOrder()
	o.deleteUnreachable()
	for _, fr := range u.FailedRewrites {
		call := u.Node(fr.Call)
		if call == nil || call.Core().Deleted {
			continue
		}
		o.note(diagnostics.CategoryFailedRewrite, call,
			"unable to apply the %s rewrite of %s: %s", fr.Rule, fr.Op, fr.Reason)
	}
}
