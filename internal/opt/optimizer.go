// Package opt implements the local optimization pass over the
// mid-level flow graph: iterative type inference, constant folding,
// dead-code elimination, control-flow simplification, call
// classification and inlining, multi-value rewriting and
// type-assertion elision, run to a fixed point by a dirty-block
// worklist driver.
package opt

import (
	"fmt"

	"github.com/orizon-lang/iropt/internal/diagnostics"
	"github.com/orizon-lang/iropt/internal/flow"
	"github.com/orizon-lang/iropt/internal/lattice"
	"github.com/orizon-lang/iropt/internal/policy"
)

// Optimizer holds the per-unit state of one optimization run.
type Optimizer struct {
	Unit   *flow.Unit
	Policy *policy.Policy
	Diags  *diagnostics.Collector

	knowns map[string]*KnownInfo
	// inlined caches one graph conversion of each inline body per
	// unit.
	inlined map[flow.LeafID]flow.FunID
	// delayed holds calls whose rewrite rules suspended themselves
	// until a named phase boundary.
	delayed map[DelayPhase][]flow.NodeID
	// aborted calls run no further rewrite rules.
	aborted map[flow.NodeID]bool
	// gaveUp deduplicates failed-rewrite records per call and rule.
	gaveUp map[string]bool
	// phasesRun records phase boundaries already signaled; a rule
	// delaying past a phase that already ran has given up.
	phasesRun map[DelayPhase]bool

	passLimit int
}

// New creates an optimizer for one compilation unit with the default
// primitive registry.
func New(u *flow.Unit, pol *policy.Policy, diags *diagnostics.Collector) *Optimizer {
	if pol == nil {
		pol = policy.Default(1)
	}
	if diags == nil {
		diags = diagnostics.NewCollector()
	}
	o := &Optimizer{
		Unit:      u,
		Policy:    pol,
		Diags:     diags,
		knowns:    make(map[string]*KnownInfo),
		inlined:   make(map[flow.LeafID]flow.FunID),
		delayed:   make(map[DelayPhase][]flow.NodeID),
		aborted:   make(map[flow.NodeID]bool),
		gaveUp:    make(map[string]bool),
		phasesRun: make(map[DelayPhase]bool),
		passLimit: defaultPassLimit,
	}
	for name, info := range DefaultKnowns() {
		o.knowns[name] = info
	}
	return o
}

// Register adds or replaces a known-operation descriptor.
func (o *Optimizer) Register(info *KnownInfo) {
	o.knowns[info.Name] = info
}

// Known returns the descriptor registered under name.
func (o *Optimizer) Known(name string) *KnownInfo {
	return o.knowns[name]
}

// optimizeNode dispatches one flagged node to its kind-specific
// handler. The switch is exhaustive over the node variants; an
// unknown variant is a bug.
func (o *Optimizer) optimizeNode(n flow.Node) {
	if n.Core().Deleted {
		return
	}
	o.rederiveNodeType(n)
	switch n := n.(type) {
	case *flow.Ref:
		// A reference has no rewrite of its own; re-derivation above
		// refreshed its edge.
	case *flow.Call:
		o.optimizeCall(n)
	case *flow.MVCall:
		o.optimizeMVCall(n)
	case *flow.Branch:
		o.optimizeBranch(n)
	case *flow.Return:
		o.optimizeReturn(n)
	case *flow.Assign:
		o.optimizeAssign(n)
	case *flow.Exit:
		o.optimizeExit(n)
	case *flow.Cast:
		o.optimizeCast(n)
	default:
		panic(fmt.Sprintf("opt: optimizeNode got unknown node kind %T", n))
	}
}

// note emits a style/efficiency note for a node.
func (o *Optimizer) note(cat diagnostics.Category, n flow.Node, format string, args ...any) {
	o.Diags.Report(diagnostics.Diagnostic{
		Level:    diagnostics.LevelNote,
		Category: cat,
		Message:  fmt.Sprintf(format, args...),
		Source:   o.Unit.NodeSource(n),
		Unit:     o.Unit.ID,
	})
}

// warnOnce emits a warning for a node at most once per node and
// category.
func (o *Optimizer) warnOnce(cat diagnostics.Category, n flow.Node, types []lattice.Type, format string, args ...any) bool {
	key := fmt.Sprintf("%s/%d", cat, n.Core().ID)
	return o.Diags.ReportOnce(key, diagnostics.Diagnostic{
		Level:    diagnostics.LevelWarning,
		Category: cat,
		Message:  fmt.Sprintf(format, args...),
		Source:   o.Unit.NodeSource(n),
		Types:    types,
		Unit:     o.Unit.ID,
	})
}

// userError emits a compile-time certain failure for a node, once.
func (o *Optimizer) userError(cat diagnostics.Category, n flow.Node, types []lattice.Type, format string, args ...any) {
	key := fmt.Sprintf("%s/%d", cat, n.Core().ID)
	o.Diags.ReportOnce(key, diagnostics.Diagnostic{
		Level:    diagnostics.LevelError,
		Category: cat,
		Message:  fmt.Sprintf(format, args...),
		Source:   o.Unit.NodeSource(n),
		Types:    types,
		Unit:     o.Unit.ID,
	})
}
