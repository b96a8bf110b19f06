package opt

import (
	"github.com/orizon-lang/iropt/internal/diagnostics"
	"github.com/orizon-lang/iropt/internal/flow"
	"github.com/orizon-lang/iropt/internal/lattice"
)

// optimizeCast handles every type-assertion subtype: proving an
// assertion away, strengthening it from constants, or condemning it
// when the operand can never satisfy it.
func (o *Optimizer) optimizeCast(n *flow.Cast) {
	u := o.Unit
	if n.CKind == flow.CastExitPlaceholder {
		o.optimizeExitPlaceholder(n)
		return
	}
	if n.Degenerate {
		return
	}

	operand := u.Edge(n.Operand)
	vtype := o.DerivedType(operand)

	if n.CKind == flow.CastBounds {
		o.foldBoundIntoAssertion(n)
	}

	if vtype != lattice.Empty && lattice.Disjoint(vtype, n.Asserted) {
		o.condemnCast(n, vtype)
		return
	}

	switch n.CKind {
	case flow.CastPlain:
		if lattice.Subtype(vtype, n.Asserted) || operand.Narrowed {
			o.elideCast(n)
			return
		}
	case flow.CastFunDesignator:
		if lattice.Subtype(vtype, n.Asserted) {
			o.elideCast(n)
			return
		}
		// When the coerced value feeds a call's callee position the
		// call checks callability itself; a second check here is
		// redundant.
		if res := u.Edge(n.Result); res != nil {
			if call, isCall := u.Node(res.Dest).(*flow.Call); isCall && call.Callee == n.Result {
				n.RuntimeCheck = false
				o.elideCast(n)
				return
			}
		}
	case flow.CastBounds:
		if lattice.Subtype(vtype, n.Asserted) {
			o.elideCast(n)
			return
		}
		if !o.Policy.BoundsChecks {
			o.note(diagnostics.CategoryTypeError, n, "eliding bounds check under policy")
			o.elideCast(n)
			return
		}
	case flow.CastMutationGuard:
		if v, constant := o.ConstantValue(operand); constant && isLiteralAggregate(v) {
			if !n.Warned {
				n.Warned = true
				o.warnOnce(diagnostics.CategoryMutation, n, []lattice.Type{vtype},
					"destructive operation on a constant %s", vtype)
			}
			o.elideCast(n)
			return
		}
		if lattice.Subtype(vtype, n.Asserted) && !mayBeLiteral(vtype) {
			o.elideCast(n)
			return
		}
	case flow.CastOneShot:
		if !n.HookFired {
			if _, constant := o.ConstantValue(operand); !constant {
				return
			}
			n.HookFired = true
			if n.Hook != nil {
				n.Hook(u, n)
			}
		}
		o.elideCast(n)
		return
	default:
		panic("opt: optimizeCast got unknown cast kind")
	}

	o.pushCastPastJoin(n)
}

// condemnCast marks a provably failing assertion degenerate: the
// program reliably errors here, so everything after it is
// unreachable.
func (o *Optimizer) condemnCast(n *flow.Cast, vtype lattice.Type) {
	u := o.Unit
	n.Degenerate = true
	if n.CKind == flow.CastBounds {
		o.userError(diagnostics.CategoryTypeError, n, []lattice.Type{vtype, n.Asserted},
			"index of type %s is always outside the bound %s", vtype, n.Asserted)
	} else {
		o.userError(diagnostics.CategoryTypeError, n, []lattice.Type{vtype, n.Asserted},
			"value of type %s can never be of type %s", vtype, n.Asserted)
	}
	u.TruncateAfter(n)
	if e := u.Edge(n.Result); e != nil {
		u.ReoptimizeEdge(e)
	}
}

// foldBoundIntoAssertion strengthens a bounds-check cast whose bound
// operand is a compile-time constant to a concrete index interval.
func (o *Optimizer) foldBoundIntoAssertion(n *flow.Cast) {
	if n.Bound == 0 {
		return
	}
	v, constant := o.ConstantValue(o.Unit.Edge(n.Bound))
	if !constant {
		return
	}
	k, isInt := v.(int64)
	if !isInt || k <= 0 {
		return
	}
	next := lattice.Intersect(n.Asserted, lattice.IntRange(0, k-1))
	if !lattice.Equal(next, n.Asserted) {
		n.Asserted = next
		o.Unit.ReoptimizeNode(n)
	}
}

// elideCast removes a proven assertion, splicing its operand's
// producers straight onto its consumers.
func (o *Optimizer) elideCast(n *flow.Cast) {
	u := o.Unit
	operand := u.Edge(n.Operand)
	result := u.Edge(n.Result)
	u.DeleteNode(n)
	if result != nil {
		u.MoveProducers(operand, result)
	}
	u.RecomputeOrder = true
}

// pushCastPastJoin reroutes the producers that individually satisfy
// the assertion directly to the cast's result, so the runtime check
// only covers the paths that still need it.
func (o *Optimizer) pushCastPastJoin(n *flow.Cast) {
	u := o.Unit
	operand := u.Edge(n.Operand)
	result := u.Edge(n.Result)
	if result == nil || len(operand.Producers) < 2 {
		return
	}
	for _, pid := range append([]flow.NodeID(nil), operand.Producers...) {
		p := u.Node(pid)
		if p.Core().Deleted {
			continue
		}
		if lattice.Subtype(o.nodeType(p), n.Asserted) {
			u.RemoveProducer(operand, p)
			u.SetResult(p, result)
		}
	}
}

// optimizeExitPlaceholder dissolves the boundary pin of a non-local
// exit context once no exit can reach it anymore: with only ordinary
// producers left it demotes to a plain checkless assertion, which the
// next visit elides.
func (o *Optimizer) optimizeExitPlaceholder(n *flow.Cast) {
	u := o.Unit
	operand := u.Edge(n.Operand)
	for _, pid := range operand.Producers {
		if ex, isExit := u.Node(pid).(*flow.Exit); isExit && !ex.Deleted {
			return
		}
	}
	n.CKind = flow.CastPlain
	n.RuntimeCheck = false
	u.ReoptimizeNode(n)
	u.RecomputeOrder = true
}

// isLiteralAggregate reports whether v is structured literal data
// that must not be mutated in place.
func isLiteralAggregate(v lattice.Value) bool {
	switch v.(type) {
	case *lattice.ConsValue, *lattice.ArrayValue, string:
		return true
	default:
		return false
	}
}

// mayBeLiteral conservatively reports whether a value of type t could
// be backed by literal storage.
func mayBeLiteral(t lattice.Type) bool {
	switch t.(type) {
	case *lattice.Cons, *lattice.Array, *lattice.Member:
		return true
	case *lattice.Or:
		return true
	default:
		return t == lattice.List || t == lattice.Universal
	}
}
