package opt

import (
	"github.com/orizon-lang/iropt/internal/diagnostics"
	"github.com/orizon-lang/iropt/internal/flow"
	"github.com/orizon-lang/iropt/internal/lattice"
)

// DerivedType returns the cached derived type of a value edge,
// recomputing it as the union over all current producers when the
// cache is invalid. An edge without producers is unreachable and
// reads as the empty type.
func (o *Optimizer) DerivedType(e *flow.Edge) lattice.Type {
	if e == nil {
		return lattice.Empty
	}
	if e.Type != nil && !e.Reoptimize {
		return e.Type
	}
	t := lattice.Empty
	if len(e.Producers) == 1 {
		// Single production is the common, cheap path.
		t = o.nodeType(o.Unit.Node(e.Producers[0]))
	} else {
		for _, pid := range e.Producers {
			t = lattice.Union(t, o.nodeType(o.Unit.Node(pid)))
		}
	}
	e.Type = t
	e.Reoptimize = false
	return t
}

// IsConstant reports whether the edge provably carries one known
// value.
func (o *Optimizer) IsConstant(e *flow.Edge) bool {
	_, ok := o.ConstantValue(e)
	return ok
}

// ConstantValue returns the compile-time value of a constant edge.
func (o *Optimizer) ConstantValue(e *flow.Edge) (lattice.Value, bool) {
	return lattice.SingletonValue(o.DerivedType(e))
}

// ConservativeType returns the type of e that remains valid in the
// face of in-place mutation of aggregate values. The precise derived
// type is returned only when no aliasing is possible (a sole
// reference to the producing leaf) or when it is already maximally
// general; otherwise structured types are widened.
func (o *Optimizer) ConservativeType(e *flow.Edge) lattice.Type {
	t := o.DerivedType(e)
	if t == lattice.Universal || t == lattice.Empty {
		return t
	}
	if len(e.Producers) == 1 {
		if ref, ok := o.Unit.Node(e.Producers[0]).(*flow.Ref); ok {
			leaf := o.Unit.Leaf(ref.Leaf)
			if leaf.Kind == flow.LeafVariable && len(o.Unit.LiveRefs(leaf)) == 1 && !leaf.EverAssigned {
				return t
			}
		}
	}
	return lattice.Widen(t)
}

// nodeType returns the node's derived result type, computing and
// caching it on first request.
func (o *Optimizer) nodeType(n flow.Node) lattice.Type {
	c := n.Core()
	if c.DType == nil {
		c.DType = o.deriveNodeType(n)
	}
	return c.DType
}

// rederiveNodeType recomputes a node's type and narrows the cached
// one. Derivation is monotone: the new type is intersected with the
// previous type, and a non-from-scratch re-derivation that produces
// the empty type from a non-empty one is reported as an internal
// inconsistency rather than an abort.
func (o *Optimizer) rederiveNodeType(n flow.Node) {
	c := n.Core()
	old := c.DType
	fresh := o.deriveNodeType(n)
	if old == nil {
		c.DType = fresh
		return
	}
	next := lattice.Intersect(old, fresh)
	if next == lattice.Empty && old != lattice.Empty {
		o.Diags.Report(diagnostics.Diagnostic{
			Level:    diagnostics.LevelInternal,
			Category: diagnostics.CategoryInconsistency,
			Message:  "derived type became empty on re-derivation",
			Source:   o.Unit.NodeSource(n),
			Types:    []lattice.Type{old, fresh},
			Unit:     o.Unit.ID,
		})
	}
	if !lattice.Equal(next, old) {
		c.DType = next
		if e := o.Unit.Edge(c.Result); e != nil {
			o.Unit.ReoptimizeEdge(e)
		}
	}
}

// deriveNodeType computes a node's result type from scratch.
func (o *Optimizer) deriveNodeType(n flow.Node) lattice.Type {
	u := o.Unit
	switch n := n.(type) {
	case *flow.Ref:
		return u.LeafType(u.Leaf(n.Leaf))
	case *flow.Call:
		switch n.Class {
		case flow.CallKnown:
			if info := o.callInfo(n); info != nil {
				if info.DeriveType != nil {
					return info.DeriveType(o, n)
				}
				if info.ResultType != nil {
					return info.ResultType
				}
			}
			return lattice.Universal
		case flow.CallLocal:
			if f := o.calleeFun(n.Callee); f != nil {
				return u.FunReturnType(f)
			}
			return lattice.Universal
		default:
			return lattice.Universal
		}
	case *flow.MVCall:
		return lattice.Universal
	case *flow.Branch:
		return lattice.Universal
	case *flow.Return:
		return o.DerivedType(u.Edge(n.Value))
	case *flow.Assign:
		return o.DerivedType(u.Edge(n.Value))
	case *flow.Exit:
		if n.Value != 0 {
			return o.DerivedType(u.Edge(n.Value))
		}
		return lattice.Universal
	case *flow.Cast:
		if n.Degenerate {
			return lattice.Empty
		}
		return lattice.Intersect(n.Asserted, o.DerivedType(u.Edge(n.Operand)))
	default:
		panic("opt: deriveNodeType got unknown node kind")
	}
}

// calleeFun resolves a callee edge to a local function unit when its
// sole producer references one.
func (o *Optimizer) calleeFun(callee flow.EdgeID) *flow.Fun {
	e := o.Unit.Edge(callee)
	if e == nil || len(e.Producers) != 1 {
		return nil
	}
	ref, ok := o.Unit.Node(e.Producers[0]).(*flow.Ref)
	if !ok {
		return nil
	}
	leaf := o.Unit.Leaf(ref.Leaf)
	if leaf.Kind != flow.LeafFunction {
		return nil
	}
	return o.Unit.Fun(leaf.Fun)
}

// calleeGlobal resolves a callee edge to a by-name global leaf.
func (o *Optimizer) calleeGlobal(callee flow.EdgeID) *flow.Leaf {
	e := o.Unit.Edge(callee)
	if e == nil || len(e.Producers) != 1 {
		return nil
	}
	ref, ok := o.Unit.Node(e.Producers[0]).(*flow.Ref)
	if !ok {
		return nil
	}
	leaf := o.Unit.Leaf(ref.Leaf)
	if leaf.Kind == flow.LeafGlobal {
		return leaf
	}
	if leaf.Kind == flow.LeafConstant {
		if name, ok := leaf.Value.(lattice.FuncName); ok {
			// A constant function designator dispatches by name.
			return &flow.Leaf{Kind: flow.LeafGlobal, Name: string(name), DeclaredType: lattice.Universal}
		}
	}
	return nil
}

// callInfo returns the known-operation descriptor attached to a
// classified call.
func (o *Optimizer) callInfo(n *flow.Call) *KnownInfo {
	if g := o.calleeGlobal(n.Callee); g != nil {
		return o.knowns[g.Name]
	}
	return nil
}
