package opt

import (
	"github.com/orizon-lang/iropt/internal/diagnostics"
	"github.com/orizon-lang/iropt/internal/flow"
	"github.com/orizon-lang/iropt/internal/lattice"
)

// mvSource is one statically-counted value feeding a multi-value
// call: either an existing single-value edge or a constant to
// materialize.
type mvSource struct {
	edge  flow.EdgeID
	value lattice.Value
}

// optimizeMVCall rewrites a multi-value call whose value count is
// statically decidable into an ordinary call. Value-producing forms
// dissolve into their operands; a known-count mismatch against the
// callee's declared signature is a compile-time error. When the
// count stays open, the lower bound collected so far is still
// validated against the callee's maximum arity.
func (o *Optimizer) optimizeMVCall(n *flow.MVCall) {
	u := o.Unit
	var sources []mvSource
	var dissolve []*flow.Call
	countable := true
	minValues := 0
	for _, aid := range n.Args {
		e := u.Edge(aid)
		if len(e.Producers) != 1 {
			countable = false
			continue
		}
		switch p := u.Node(e.Producers[0]).(type) {
		case *flow.Ref, *flow.Cast:
			sources = append(sources, mvSource{edge: aid})
			minValues++
		case *flow.Call:
			g := o.calleeGlobal(p.Callee)
			if g == nil {
				countable = false
				continue
			}
			switch g.Name {
			case "values":
				for _, sub := range p.Args {
					sources = append(sources, mvSource{edge: sub})
				}
				minValues += len(p.Args)
				dissolve = append(dissolve, p)
			case "values-list":
				elems, spent, ok := o.spreadListValues(p)
				if !ok {
					// An arbitrary list may carry any number of
					// elements, including none.
					countable = false
					continue
				}
				sources = append(sources, elems...)
				minValues += len(elems)
				dissolve = append(dissolve, spent...)
			default:
				// An arbitrary call may deliver any number of values.
				countable = false
			}
		default:
			countable = false
		}
	}

	if !countable {
		o.checkValueLowerBound(n, minValues)
		return
	}

	if f := o.calleeFun(n.Callee); f != nil {
		if funHasRest(u, f) {
			return
		}
		want := len(f.Params)
		if len(sources) > want {
			o.note(diagnostics.CategoryDiscardedValue, n,
				"%d values delivered to a binding of %d variables", len(sources), want)
			sources = sources[:want]
		}
		for len(sources) < want {
			sources = append(sources, mvSource{value: lattice.FalseValue})
		}
	} else if g := o.calleeGlobal(n.Callee); g != nil {
		if ft, isFun := g.DeclaredType.(*lattice.Function); isFun {
			if len(sources) < ft.MinArgs || (ft.MaxArgs >= 0 && len(sources) > ft.MaxArgs) {
				o.userError(diagnostics.CategorySignature, n, nil,
					"multiple-value call to %s with %d values, which wants between %d and %d arguments",
					g.Name, len(sources), ft.MinArgs, ft.MaxArgs)
				return
			}
		}
	}

	o.convertMVCall(n, sources, dissolve)
}

// spreadListValues resolves a values-list call into individual value
// sources: either the elements of a compile-time constant proper
// list, or the argument edges of a literal list construction. spent
// lists the calls that dissolve if the spread is used.
func (o *Optimizer) spreadListValues(p *flow.Call) (elems []mvSource, spent []*flow.Call, ok bool) {
	u := o.Unit
	if len(p.Args) != 1 {
		return nil, nil, false
	}
	arg := u.Edge(p.Args[0])
	if v, constant := o.ConstantValue(arg); constant {
		vals, isList := lattice.ListElems(v)
		if !isList {
			return nil, nil, false
		}
		elems = make([]mvSource, len(vals))
		for i, el := range vals {
			elems[i] = mvSource{value: el}
		}
		return elems, []*flow.Call{p}, true
	}
	if len(arg.Producers) != 1 {
		return nil, nil, false
	}
	lc, isCall := u.Node(arg.Producers[0]).(*flow.Call)
	if !isCall {
		return nil, nil, false
	}
	if g := o.calleeGlobal(lc.Callee); g == nil || g.Name != "list" {
		return nil, nil, false
	}
	elems = make([]mvSource, len(lc.Args))
	for i, sub := range lc.Args {
		elems[i] = mvSource{edge: sub}
	}
	return elems, []*flow.Call{p, lc}, true
}

// checkValueLowerBound validates an unconvertible multi-value call:
// even with the total count open, the values already guaranteed must
// fit the callee.
func (o *Optimizer) checkValueLowerBound(n *flow.MVCall, min int) {
	u := o.Unit
	if min == 0 {
		return
	}
	if f := o.calleeFun(n.Callee); f != nil {
		if funHasRest(u, f) {
			return
		}
		if min > len(f.Params) {
			o.warnOnce(diagnostics.CategoryDiscardedValue, n, nil,
				"at least %d values delivered to a binding of %d variables", min, len(f.Params))
		}
		return
	}
	if g := o.calleeGlobal(n.Callee); g != nil {
		if ft, isFun := g.DeclaredType.(*lattice.Function); isFun && ft.MaxArgs >= 0 && min > ft.MaxArgs {
			o.userError(diagnostics.CategorySignature, n, nil,
				"at least %d values in a multiple-value call to %s, which accepts at most %d arguments",
				min, g.Name, ft.MaxArgs)
		}
	}
}

// convertMVCall performs the surgery: a fresh ordinary call takes the
// counted single-value edges, constants materialize as references,
// and the multi-value node and its dissolved producers disappear.
func (o *Optimizer) convertMVCall(n *flow.MVCall, sources []mvSource, dissolve []*flow.Call) {
	u := o.Unit
	args := make([]*flow.Edge, 0, len(sources))
	for _, s := range sources {
		if s.edge != 0 {
			args = append(args, u.Edge(s.edge))
			continue
		}
		ref := u.NewRef(u.NewConstant(s.value).ID)
		u.InsertBefore(ref, n)
		e := u.NewEdge()
		u.SetResult(ref, e)
		args = append(args, e)
	}
	call := u.NewCall(u.Edge(n.Callee), args...)
	u.InsertBefore(call, n)
	if result := u.Edge(n.Result); result != nil {
		u.RemoveProducer(result, n)
		u.SetResult(call, result)
	}
	u.DeleteNode(n)
	for _, d := range dissolve {
		u.DeleteNode(d)
	}
	u.ReoptimizeNode(call)
}

// funHasRest reports whether f's last parameter collects a variadic
// rest list.
func funHasRest(u *flow.Unit, f *flow.Fun) bool {
	if len(f.Params) == 0 {
		return false
	}
	return u.Leaf(f.Params[len(f.Params)-1]).Rest
}
