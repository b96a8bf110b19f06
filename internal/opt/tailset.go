package opt

import (
	"github.com/orizon-lang/iropt/internal/flow"
	"github.com/orizon-lang/iropt/internal/lattice"
)

// optimizeReturn refreshes the return-type equivalence class of the
// returning function.
func (o *Optimizer) optimizeReturn(n *flow.Return) {
	f := o.Unit.Fun(n.Fun)
	if f == nil || f.Kind == flow.FunDeleted {
		return
	}
	o.recomputeTailSetType(f)
}

// recomputeTailSetType unions the return-value producer types over
// every member of f's equivalence class. Tail calls back into the
// same class are self-referential and contribute nothing; without
// that exclusion a recursive function's return type could never
// tighten. When the class type changes, every caller of every member
// re-derives.
func (o *Optimizer) recomputeTailSetType(f *flow.Fun) {
	u := o.Unit
	ts := f.TailSet
	if ts == nil {
		return
	}
	t := lattice.Empty
	for _, fid := range ts.Funs {
		m := u.Fun(fid)
		if m == nil || m.Kind == flow.FunDeleted || m.Kind == flow.FunZombie {
			continue
		}
		ret, ok := u.Node(m.ReturnNode).(*flow.Return)
		if !ok || ret.Deleted {
			continue
		}
		value := u.Edge(ret.Value)
		if value == nil {
			continue
		}
		for _, pid := range value.Producers {
			p := u.Node(pid)
			if p.Core().Deleted {
				continue
			}
			if b := u.Block(p.Core().Block); b != nil && b.Has(flow.BlockDelete) {
				continue
			}
			if call, isCall := p.(*flow.Call); isCall && call.TailP {
				if cf := o.calleeFun(call.Callee); cf != nil && cf.TailSet == ts {
					continue
				}
			}
			t = lattice.Union(t, o.nodeType(p))
		}
	}
	if ts.Type != nil && lattice.Equal(t, ts.Type) {
		return
	}
	ts.Type = t
	for _, fid := range ts.Funs {
		m := u.Fun(fid)
		if m == nil {
			continue
		}
		// References carry the function as a value, so their cached
		// types go stale along with the direct callers'.
		for _, ref := range u.LiveRefs(u.Leaf(m.Leaf)) {
			if e := u.Edge(ref.Result); e != nil {
				u.ReoptimizeEdge(e)
			}
		}
		for _, call := range u.FunCalls(m) {
			u.ReoptimizeNode(call)
			if e := u.Edge(call.Result); e != nil {
				u.ReoptimizeEdge(e)
			}
		}
	}
}
