package opt

import (
	"github.com/orizon-lang/iropt/internal/diagnostics"
	"github.com/orizon-lang/iropt/internal/flow"
	"github.com/orizon-lang/iropt/internal/lattice"
)

// optimizeLocalCall handles a call whose callee is a function unit of
// this unit: single-call inlining (let conversion) and local argument
// type propagation.
func (o *Optimizer) optimizeLocalCall(n *flow.Call) {
	f := o.calleeFun(n.Callee)
	if f == nil {
		n.Class = flow.CallUnclassified
		o.classifyCall(n)
		return
	}
	if f.Kind == flow.FunDeleted || f.Kind == flow.FunZombie {
		return
	}
	if len(n.Args) != len(f.Params) {
		o.signatureError(n, f.Name, len(n.Args), len(f.Params), len(f.Params))
		return
	}
	if n.TailP {
		// A tail call returns whatever the callee returns, so caller
		// and callee share one return-type equivalence class.
		if home := o.Unit.Fun(o.Unit.Block(n.Block).Fun); home != nil && home.TailSet != f.TailSet {
			o.Unit.MergeTailSets(home, f)
			o.recomputeTailSetType(home)
		}
	}
	if f.Kind == flow.FunOrdinary && o.letConvertible(n, f) {
		o.letConvert(n, f)
	}
	switch {
	case (f.Kind == flow.FunLet || f.Kind == flow.FunMVLet) && f.LetCall == n.ID:
		o.propagateLetArgs(n, f)
	case f.Kind == flow.FunOrdinary:
		o.propagateLocalArgs(f)
	}
}

// letConvertible reports whether f is called exactly once, through
// this call, with no other references.
func (o *Optimizer) letConvertible(n *flow.Call, f *flow.Fun) bool {
	refs := o.Unit.LiveRefs(o.Unit.Leaf(f.Leaf))
	if len(refs) != 1 {
		return false
	}
	if refs[0].Result != n.Callee {
		return false
	}
	// Converting a function into its own body would loop.
	return o.Unit.Block(n.Block).Fun != f.ID
}

// letConvert splices f's body into the caller's control flow: the
// call's block transfers to f's entry, and f's return value producers
// feed the call's result edge directly. The call node remains as the
// binding marker carrying the argument edges.
func (o *Optimizer) letConvert(n *flow.Call, f *flow.Fun) {
	u := o.Unit
	callBlock := u.Block(n.Block)
	home := callBlock.Fun

	// Nodes after the call continue in a fresh block.
	cont := u.NewBlock(home, callBlock.Cleanup)
	var after []flow.Node
	for id := n.Next; id != 0; id = u.Node(id).Core().Next {
		after = append(after, u.Node(id))
	}
	for _, m := range after {
		u.UnlinkNode(m)
		u.AppendNode(cont, m)
	}
	for _, sid := range append([]flow.BlockID(nil), callBlock.Succs...) {
		s := u.Block(sid)
		u.UnlinkBlocks(callBlock, s)
		u.LinkBlocks(cont, s)
	}
	u.LinkBlocks(callBlock, u.Block(f.Entry))

	if ret, ok := u.Node(f.ReturnNode).(*flow.Return); ok && !ret.Deleted {
		retBlock := u.Block(ret.Block)
		valueEdge := u.Edge(ret.Value)
		u.DeleteNode(ret)
		// The return's control edge to the tail sentinel dies with it;
		// the returning block now falls through to the continuation.
		u.UnlinkBlocks(retBlock, u.Block(u.Tail))
		if result := u.Edge(n.Result); result != nil {
			u.MoveProducers(valueEdge, result)
			u.RemoveProducer(result, n)
		}
		u.LinkBlocks(retBlock, cont)
	}

	// The body now belongs to the caller; its blocks rehome so later
	// block joins see one enclosing function unit.
	for _, b := range u.AllBlocks() {
		if b.Fun == f.ID {
			b.Fun = home
		}
	}

	f.Kind = flow.FunLet
	f.LetCall = n.ID
	u.MergeTailSets(u.Fun(home), f)
	u.RecomputeOrder = true
	u.MarkDirty(callBlock)
	u.MarkDirty(cont)
	u.ReoptimizeNode(n)
}

// propagateLetArgs narrows or substitutes a let function's
// parameters from its single call's arguments. A let left with no
// parameters is merged away entirely.
func (o *Optimizer) propagateLetArgs(n *flow.Call, f *flow.Fun) {
	u := o.Unit
	for i := len(f.Params) - 1; i >= 0; i-- {
		p := u.Leaf(f.Params[i])
		argEdge := u.Edge(n.Args[i])
		if p.Rest {
			// Variadic rest-parameters only ever receive lists;
			// narrowing further is unsound here, so they keep the
			// general list type.
			o.setDeclared(p, lattice.List)
			continue
		}
		if p.EverAssigned {
			o.narrowAssignedParam(p, argEdge)
			continue
		}
		refs := u.LiveRefs(p)
		if len(refs) == 0 {
			o.note(diagnostics.CategoryUnusedVariable, n,
				"variable %s is bound but never referenced", p.Name)
			o.removeLetArg(n, f, i)
			continue
		}
		v, constant := o.ConstantValue(argEdge)
		argType := o.DerivedType(argEdge)
		if constant && lattice.Subtype(argType, p.DeclaredType) &&
			len(refs) == 1 && o.substitutableArg(argEdge) {
			u.SubstituteLeaf(refs[0], u.NewConstant(v).ID)
			o.removeLetArg(n, f, i)
			continue
		}
		o.setDeclared(p, argType)
	}
	if len(f.Params) == 0 && f.Kind == flow.FunLet {
		o.deleteLetFun(n, f)
	}
}

// substitutableArg checks the side conditions for parameter
// substitution: the argument must be a single value with bounded
// extent.
func (o *Optimizer) substitutableArg(argEdge *flow.Edge) bool {
	if argEdge.Escapes {
		return false
	}
	for _, pid := range argEdge.Producers {
		switch p := o.Unit.Node(pid).(type) {
		case *flow.MVCall:
			return false
		case *flow.Call:
			if g := o.calleeGlobal(p.Callee); g != nil && g.Name == "values" && len(p.Args) != 1 {
				return false
			}
		}
	}
	return true
}

// removeLetArg elides parameter i and its argument edge.
func (o *Optimizer) removeLetArg(n *flow.Call, f *flow.Fun, i int) {
	u := o.Unit
	argEdge := u.Edge(n.Args[i])
	n.Args = append(n.Args[:i], n.Args[i+1:]...)
	f.Params = append(f.Params[:i], f.Params[i+1:]...)
	argEdge.Dest = 0
	u.QueueFlush(argEdge)
	u.ReoptimizeNode(n)
}

// deleteLetFun dissolves a zero-argument let: the body already sits
// in the caller's control flow, so the call marker and the function
// unit disappear.
func (o *Optimizer) deleteLetFun(n *flow.Call, f *flow.Fun) {
	f.Kind = flow.FunZombie
	o.Unit.DeleteNode(n)
	o.Unit.RecomputeOrder = true
}

// setDeclared narrows a variable's declared type monotonically and
// requeues its references when it changed.
func (o *Optimizer) setDeclared(p *flow.Leaf, t lattice.Type) {
	next := lattice.Intersect(p.DeclaredType, t)
	if next == lattice.Empty && p.DeclaredType != lattice.Empty && t != lattice.Empty {
		// Contradictory narrowing: keep the safer declared bound.
		next = t
	}
	if lattice.Equal(next, p.DeclaredType) {
		return
	}
	p.DeclaredType = next
	for _, ref := range o.Unit.LiveRefs(p) {
		ref.DType = nil
		if e := o.Unit.Edge(ref.Result); e != nil {
			o.Unit.ReoptimizeEdge(e)
		}
	}
}

// narrowAssignedParam types a reassigned parameter as the union of
// its initial and assigned value types, with the counted induction
// variable special case keeping a one-sided interval instead of
// re-deriving from scratch every pass.
func (o *Optimizer) narrowAssignedParam(p *flow.Leaf, argEdge *flow.Edge) {
	u := o.Unit
	initial := o.DerivedType(argEdge)
	assigns := u.LiveAssigns(p)
	if len(assigns) == 1 {
		if t, ok := o.inductionType(p, assigns[0], initial); ok {
			o.setDeclared(p, t)
			return
		}
	}
	t := initial
	for _, a := range assigns {
		t = lattice.Union(t, o.DerivedType(u.Edge(a.Value)))
	}
	o.setDeclared(p, t)
}

// inductionType recognizes the counted induction pattern: exactly one
// reassignment of the form p := p +/- step with a constant step of
// known sign. The result keeps the bound on the closed side and
// leaves the travelled side open.
func (o *Optimizer) inductionType(p *flow.Leaf, a *flow.Assign, initial lattice.Type) (lattice.Type, bool) {
	u := o.Unit
	valueEdge := u.Edge(a.Value)
	if len(valueEdge.Producers) != 1 {
		return nil, false
	}
	call, ok := u.Node(valueEdge.Producers[0]).(*flow.Call)
	if !ok || len(call.Args) != 2 {
		return nil, false
	}
	g := o.calleeGlobal(call.Callee)
	if g == nil || (g.Name != "+" && g.Name != "-") {
		return nil, false
	}
	selfArg, stepArg := -1, -1
	for i, eid := range call.Args {
		e := u.Edge(eid)
		if len(e.Producers) == 1 {
			if ref, isRef := u.Node(e.Producers[0]).(*flow.Ref); isRef && ref.Leaf == p.ID {
				selfArg = i
				continue
			}
		}
		stepArg = i
	}
	if selfArg < 0 || stepArg < 0 {
		return nil, false
	}
	if g.Name == "-" && selfArg != 0 {
		return nil, false
	}
	v, constant := o.ConstantValue(u.Edge(call.Args[stepArg]))
	if !constant {
		return nil, false
	}
	step, isInt := v.(int64)
	if !isInt || step == 0 {
		return nil, false
	}
	if g.Name == "-" {
		step = -step
	}
	lo, hi, intOK := asInterval(initial)
	if !intOK {
		return nil, false
	}
	if step > 0 {
		return &lattice.Integer{Lo: lo}, true
	}
	return &lattice.Integer{Hi: hi}, true
}

// propagateLocalArgs unions argument types across all call sites of
// a multi-call, non-inlined local function, per parameter.
func (o *Optimizer) propagateLocalArgs(f *flow.Fun) {
	u := o.Unit
	leaf := u.Leaf(f.Leaf)
	calls := u.FunCalls(f)
	// A reference that is not a callee means the function escapes as
	// a value; its full call-site set is unknowable.
	if len(u.LiveRefs(leaf)) != len(calls) {
		return
	}
	for i, pid := range f.Params {
		p := u.Leaf(pid)
		if p.EverAssigned {
			continue
		}
		if p.Rest {
			o.setDeclared(p, lattice.List)
			continue
		}
		t := lattice.Empty
		sawAll := true
		for _, call := range calls {
			if i >= len(call.Args) {
				sawAll = false
				break
			}
			t = lattice.Union(t, o.DerivedType(u.Edge(call.Args[i])))
		}
		if sawAll {
			o.setDeclared(p, t)
		}
	}
}
