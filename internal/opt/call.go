package opt

import (
	"fmt"

	"github.com/orizon-lang/iropt/internal/diagnostics"
	"github.com/orizon-lang/iropt/internal/flow"
	"github.com/orizon-lang/iropt/internal/lattice"
)

// optimizeCall runs the per-call pipeline: (re)classification, known
// call type derivation and folding, canonicalization, the custom
// optimizer hook or the rewrite-rule search, and inline expansion.
func (o *Optimizer) optimizeCall(n *flow.Call) {
	if n.Class == flow.CallUnclassified || n.CalleeChanged {
		o.classifyCall(n)
		n.CalleeChanged = false
	}
	switch n.Class {
	case flow.CallLocal:
		o.optimizeLocalCall(n)
	case flow.CallFull:
		o.optimizeFullCall(n)
	case flow.CallKnown:
		o.optimizeKnownCall(n)
	case flow.CallError, flow.CallUnknownKeys, flow.CallUnclassified:
		// Nothing more can be done locally.
	default:
		panic(fmt.Sprintf("opt: optimizeCall got unknown class %v", n.Class))
	}
}

// classifyCall derives the call's classification from its callee
// edge.
func (o *Optimizer) classifyCall(n *flow.Call) {
	for _, k := range n.Keywords {
		if k != "" {
			continue
		}
		// A keyword name that is not a compile-time constant cannot
		// be matched statically and blocks every local rewrite.
		n.Class = flow.CallUnknownKeys
		return
	}
	if f := o.calleeFun(n.Callee); f != nil {
		n.Class = flow.CallLocal
		return
	}
	n.Class = flow.CallFull
}

// optimizeFullCall re-validates an ordinary by-name call against the
// callee's signature, escalating to known or error, and attempts
// name-based inline expansion when policy allows.
func (o *Optimizer) optimizeFullCall(n *flow.Call) {
	g := o.calleeGlobal(n.Callee)
	if g == nil {
		return
	}
	if info := o.knowns[g.Name]; info != nil {
		if !info.AcceptsArity(len(n.Args)) {
			o.signatureError(n, g.Name, len(n.Args), info.MinArgs, info.MaxArgs)
			return
		}
		n.Class = flow.CallKnown
		o.optimizeKnownCall(n)
		return
	}
	if ft, ok := g.DeclaredType.(*lattice.Function); ok {
		if len(n.Args) < ft.MinArgs || (ft.MaxArgs >= 0 && len(n.Args) > ft.MaxArgs) {
			o.signatureError(n, g.Name, len(n.Args), ft.MinArgs, ft.MaxArgs)
			return
		}
	}
	if g.InlineBody != nil && !g.NotInline &&
		(o.Policy.WantInline(g.Name) || o.Policy.FavorSpace()) {
		o.expandInline(n, g)
	}
}

// expandInline converts the leaf's stored inline body to graph form
// (once per unit, unless policy mandates fresh copies) and rewires
// the call to it.
func (o *Optimizer) expandInline(n *flow.Call, g *flow.Leaf) {
	var fid flow.FunID
	if g.ID != 0 && !o.Policy.FreshInlineCopies {
		cached, ok := o.inlined[g.ID]
		if ok {
			fid = cached
		} else {
			fid = g.InlineBody(o.Unit)
			o.inlined[g.ID] = fid
		}
	} else {
		fid = g.InlineBody(o.Unit)
	}
	o.rewireCallee(n, fid)
}

// optimizeKnownCall applies the known-call pipeline in order: result
// type narrowing, constant folding, commutative canonicalization,
// then the custom hook or the native-support classification.
func (o *Optimizer) optimizeKnownCall(n *flow.Call) {
	u := o.Unit
	info := o.callInfo(n)
	if info == nil {
		n.Class = flow.CallFull
		return
	}
	if !info.AcceptsArity(len(n.Args)) {
		o.signatureError(n, info.Name, len(n.Args), info.MinArgs, info.MaxArgs)
		return
	}
	o.rederiveNodeType(n)
	if o.tryFold(n, info) {
		return
	}
	if info.Attrs.Has(AttrCommutative) && len(n.Args) == 2 {
		if o.IsConstant(u.Edge(n.Args[0])) && !o.IsConstant(u.Edge(n.Args[1])) {
			n.Args[0], n.Args[1] = n.Args[1], n.Args[0]
			u.ReoptimizeNode(n)
		}
	}
	if info.Optimize != nil && info.Optimize(o, n) {
		return
	}
	switch info.Support {
	case SupportDirect:
		// Natively supported; nothing to rewrite.
	case SupportTemplate:
		fid := info.Template(u)
		o.rewireCallee(n, fid)
	case SupportRules:
		o.runTransforms(n, info)
	default:
		panic("opt: unknown native-support classification")
	}
}

// tryFold evaluates a foldable call whose arguments are all
// compile-time constants, replacing it with its constant results. An
// evaluation failure downgrades the call to an error classification
// with a diagnostic instead of failing the compilation.
func (o *Optimizer) tryFold(n *flow.Call, info *KnownInfo) bool {
	if info.Fold == nil {
		return false
	}
	foldable := info.Attrs.Has(AttrFoldable)
	foldableCalls := info.Attrs.Has(AttrFoldableCalls)
	if !foldable && !foldableCalls {
		return false
	}
	vals := make([]lattice.Value, len(n.Args))
	for i, a := range n.Args {
		v, ok := o.ConstantValue(o.Unit.Edge(a))
		if !ok {
			return false
		}
		if fn, isFn := v.(lattice.FuncName); isFn {
			if !foldableCalls {
				return false
			}
			target := o.knowns[string(fn)]
			if target == nil || !target.Attrs.Has(AttrFoldable) {
				return false
			}
		}
		vals[i] = v
	}
	out, err := info.Fold(vals)
	if err != nil {
		n.Class = flow.CallError
		o.warnOnce(diagnostics.CategoryFolding, n, nil,
			"compile-time evaluation of %s failed: %v", info.Name, err)
		return true
	}
	o.replaceWithConstants(n, out)
	return true
}

// replaceWithConstants splices constant-reference nodes in place of a
// folded call. Several results are delivered through a values call.
func (o *Optimizer) replaceWithConstants(n *flow.Call, vals []lattice.Value) {
	u := o.Unit
	result := u.Edge(n.Result)
	if len(vals) == 1 {
		ref := u.NewRef(u.NewConstant(vals[0]).ID)
		u.InsertBefore(ref, n)
		u.DeleteNode(n)
		if result != nil {
			u.SetResult(ref, result)
		}
		return
	}
	argEdges := make([]*flow.Edge, len(vals))
	for i, v := range vals {
		ref := u.NewRef(u.NewConstant(v).ID)
		u.InsertBefore(ref, n)
		e := u.NewEdge()
		u.SetResult(ref, e)
		argEdges[i] = e
	}
	calleeRef := u.NewRef(u.NewGlobal("values", nil).ID)
	u.InsertBefore(calleeRef, n)
	calleeEdge := u.NewEdge()
	u.SetResult(calleeRef, calleeEdge)
	tuple := u.NewCall(calleeEdge, argEdges...)
	tuple.Class = flow.CallKnown
	u.InsertBefore(tuple, n)
	u.DeleteNode(n)
	if result != nil {
		u.SetResult(tuple, result)
	}
}

// runTransforms tries each registered rewrite rule in priority order
// and interprets its by-value outcome.
func (o *Optimizer) runTransforms(n *flow.Call, info *KnownInfo) {
	if o.aborted[n.ID] {
		return
	}
	for _, tr := range info.Transforms {
		if tr.When != nil && !tr.When(o.Policy) {
			continue
		}
		out := tr.Fn(o, n)
		switch out.Kind {
		case OutcomeSuccess:
			fid := out.Replacement(o.Unit)
			o.rewireCallee(n, fid)
			return
		case OutcomeGiveUp:
			o.recordGiveUp(n, info.Name, tr.Name, out.Reason)
		case OutcomeAbort:
			if out.Reason != "" {
				n.Class = flow.CallError
				o.warnOnce(diagnostics.CategoryFailedRewrite, n, nil,
					"%s cannot be compiled specially: %s", info.Name, out.Reason)
			}
			o.aborted[n.ID] = true
			return
		case OutcomeDelay:
			if o.phasesRun[out.Phase] {
				o.recordGiveUp(n, info.Name, tr.Name,
					"delayed past "+out.Phase.String())
				continue
			}
			o.delayed[out.Phase] = append(o.delayed[out.Phase], n.ID)
			return
		default:
			panic("opt: unknown transform outcome")
		}
	}
}

// recordGiveUp accumulates a failed rewrite once per call and rule.
func (o *Optimizer) recordGiveUp(n *flow.Call, op, rule, reason string) {
	if reason == "" {
		return
	}
	key := fmt.Sprintf("%d/%s", n.ID, rule)
	if o.gaveUp[key] {
		return
	}
	o.gaveUp[key] = true
	o.Unit.RecordFailedRewrite(n.ID, op, rule, reason)
}

// rewireCallee replaces the call's callee reference with a reference
// to a local function unit; the call becomes local and is requeued.
func (o *Optimizer) rewireCallee(n *flow.Call, fid flow.FunID) {
	u := o.Unit
	f := u.Fun(fid)
	e := u.Edge(n.Callee)
	for _, pid := range append([]flow.NodeID(nil), e.Producers...) {
		u.DeleteNode(u.Node(pid))
	}
	ref := u.NewRef(f.Leaf)
	u.InsertBefore(ref, n)
	u.SetResult(ref, e)
	n.Class = flow.CallLocal
	n.CalleeChanged = false
	u.ReoptimizeNode(n)
}

// signatureError downgrades a call proven to violate its callee's
// accepted argument count; it stays an ordinary call that will raise
// at run time.
func (o *Optimizer) signatureError(n *flow.Call, name string, got, min, max int) {
	n.Class = flow.CallError
	want := fmt.Sprintf("at least %d", min)
	if max >= 0 {
		if max == min {
			want = fmt.Sprintf("%d", min)
		} else {
			want = fmt.Sprintf("%d to %d", min, max)
		}
	}
	o.warnOnce(diagnostics.CategorySignature, n, nil,
		"%s called with %d arguments, wants %s", name, got, want)
}
