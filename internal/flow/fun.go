package flow

import "github.com/orizon-lang/iropt/internal/lattice"

// FunKind classifies function units.
type FunKind int

const (
	// FunOrdinary is a function reachable through its leaf.
	FunOrdinary FunKind = iota
	// FunLet has been converted for single-call inlining.
	FunLet
	// FunMVLet is a let receiving multiple values from its one call.
	FunMVLet
	// FunAssignment is called only to assign its parameters.
	FunAssignment
	// FunDeleted has no remaining references.
	FunDeleted
	// FunZombie has been fully inlined into its one caller and is
	// inert; it is never revived.
	FunZombie
)

func (k FunKind) String() string {
	switch k {
	case FunOrdinary:
		return "ordinary"
	case FunLet:
		return "let"
	case FunMVLet:
		return "mv-let"
	case FunAssignment:
		return "assignment"
	case FunDeleted:
		return "deleted"
	case FunZombie:
		return "zombie"
	default:
		return "fun?"
	}
}

// TailSet is a return-type equivalence class: the set of mutually
// tail-called functions whose return types are unified.
type TailSet struct {
	Funs []FunID
	// Type is the unified return type of the class.
	Type lattice.Type
}

// Fun is a function unit: a subgraph with parameters, an entry block
// and an optional return node.
type Fun struct {
	ID     FunID
	Name   string
	Params []LeafID
	Entry  BlockID
	// ReturnNode is the unit's return node, or the null handle when
	// control never returns normally.
	ReturnNode NodeID
	Kind       FunKind
	TailSet    *TailSet
	// Leaf is the function leaf denoting this unit.
	Leaf LeafID
	// LetCall is the one call site of a FunLet or FunMVLet.
	LetCall NodeID
}

// NewFun allocates a function unit, its function leaf, its entry
// block and a singleton tail set.
func (u *Unit) NewFun(name string, paramNames ...string) *Fun {
	f := &Fun{ID: FunID(len(u.funs)), Name: name, Kind: FunOrdinary}
	u.funs = append(u.funs, f)
	leaf := u.addLeaf(&Leaf{Kind: LeafFunction, Name: name, Fun: f.ID, DeclaredType: lattice.Universal})
	f.Leaf = leaf.ID
	for _, pn := range paramNames {
		p := u.NewVariable(pn, lattice.Universal)
		f.Params = append(f.Params, p.ID)
	}
	f.TailSet = &TailSet{Funs: []FunID{f.ID}, Type: lattice.Empty}
	entry := u.NewBlock(f.ID, 0)
	f.Entry = entry.ID
	return f
}

// FunReturnType returns the unified return type of f's equivalence
// class.
func (u *Unit) FunReturnType(f *Fun) lattice.Type {
	if f.TailSet == nil || f.TailSet.Type == nil {
		return lattice.Universal
	}
	if f.TailSet.Type == lattice.Empty && f.ReturnNode != 0 {
		// Not yet unified; be conservative.
		return lattice.Universal
	}
	return f.TailSet.Type
}

// MergeTailSets merges b's equivalence class into a's. Every member
// of either class afterwards shares one class.
func (u *Unit) MergeTailSets(a, b *Fun) {
	if a.TailSet == b.TailSet {
		return
	}
	merged := a.TailSet
	for _, fid := range b.TailSet.Funs {
		merged.Funs = append(merged.Funs, fid)
		u.Fun(fid).TailSet = merged
	}
	merged.Type = lattice.Union(merged.Type, b.TailSet.Type)
}

// FunCalls returns the live call nodes whose callee edge is produced
// by a reference to f's leaf.
func (u *Unit) FunCalls(f *Fun) []*Call {
	var out []*Call
	for _, ref := range u.LiveRefs(u.Leaf(f.Leaf)) {
		e := u.Edge(ref.Result)
		if e == nil {
			continue
		}
		if call, ok := u.Node(e.Dest).(*Call); ok && !call.Deleted && call.Callee == e.ID {
			out = append(out, call)
		}
	}
	return out
}

// DeleteFun marks f deleted, deletes its blocks and severs its leaf.
func (u *Unit) DeleteFun(f *Fun) {
	if f.Kind == FunDeleted || f.Kind == FunZombie {
		return
	}
	f.Kind = FunDeleted
	for _, bid := range u.Blocks() {
		b := u.Block(bid)
		if b.Fun == f.ID && !b.Has(BlockDelete) {
			u.DeleteBlock(b)
		}
	}
	if ret := u.Node(f.ReturnNode); ret != nil && !ret.Core().Deleted {
		u.DeleteNode(ret)
	}
	for i, fid := range f.TailSet.Funs {
		if fid == f.ID {
			f.TailSet.Funs = append(f.TailSet.Funs[:i], f.TailSet.Funs[i+1:]...)
			break
		}
	}
	u.RecomputeOrder = true
}

// Cleanup identifies a dynamic-extent/exit-handling context active
// across block boundaries. Blocks sharing a cleanup may be joined;
// blocks in different cleanups may not.
type Cleanup struct {
	ID     CleanupID
	Parent CleanupID
	// Fun owns the context.
	Fun FunID
	// Mess distinguishes contexts requiring multi-value cleanup
	// insertion at their boundary.
	Mess bool
}

// NewCleanup allocates a cleanup region nested in parent.
func (u *Unit) NewCleanup(parent CleanupID, fun FunID) *Cleanup {
	c := &Cleanup{ID: CleanupID(len(u.cleanups)), Parent: parent, Fun: fun}
	u.cleanups = append(u.cleanups, c)
	return c
}
