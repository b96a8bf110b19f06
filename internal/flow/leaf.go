package flow

import "github.com/orizon-lang/iropt/internal/lattice"

// LeafKind discriminates reference targets.
type LeafKind int

const (
	// LeafConstant denotes a compile-time constant value.
	LeafConstant LeafKind = iota
	// LeafVariable denotes a local variable, possibly reassigned.
	LeafVariable
	// LeafGlobal denotes a global function or value referenced by
	// name.
	LeafGlobal
	// LeafFunction denotes a function unit of this compilation unit.
	LeafFunction
)

func (k LeafKind) String() string {
	switch k {
	case LeafConstant:
		return "constant"
	case LeafVariable:
		return "variable"
	case LeafGlobal:
		return "global"
	case LeafFunction:
		return "function"
	default:
		return "leaf?"
	}
}

// InlineBuilder converts a stored inline body into graph form inside
// a unit and returns the resulting function unit.
type InlineBuilder func(u *Unit) FunID

// Leaf is a reference target: the abstract thing a reference node
// denotes.
type Leaf struct {
	ID   LeafID
	Kind LeafKind
	Name string
	// Value is the constant's value (LeafConstant only).
	Value lattice.Value
	// DeclaredType bounds the values this leaf can hold. For
	// variables it narrows as assignments are analyzed.
	DeclaredType lattice.Type
	// Refs is the set of reference nodes denoting this leaf.
	Refs []NodeID
	// Assigns is the set of assignment nodes writing this variable.
	Assigns []NodeID
	// EverAssigned records that at least one assignment was ever
	// created, even if since deleted.
	EverAssigned bool
	// Fun is the function unit a LeafFunction denotes.
	Fun FunID
	// Rest marks the rest-parameter of a variadic dispatch wrapper.
	Rest bool
	// InlineBody, when present on a global, can expand the leaf into
	// a local function unit.
	InlineBody InlineBuilder
	// NotInline forbids inline expansion of this leaf.
	NotInline bool
}

func (u *Unit) addLeaf(l *Leaf) *Leaf {
	l.ID = LeafID(len(u.leaves))
	u.leaves = append(u.leaves, l)
	return l
}

// NewConstant allocates a constant leaf.
func (u *Unit) NewConstant(v lattice.Value) *Leaf {
	return u.addLeaf(&Leaf{Kind: LeafConstant, Value: v, DeclaredType: lattice.TypeOfValue(v)})
}

// NewVariable allocates a variable leaf with a declared type bound.
func (u *Unit) NewVariable(name string, declared lattice.Type) *Leaf {
	if declared == nil {
		declared = lattice.Universal
	}
	return u.addLeaf(&Leaf{Kind: LeafVariable, Name: name, DeclaredType: declared})
}

// NewGlobal allocates a leaf for a by-name global reference.
func (u *Unit) NewGlobal(name string, declared lattice.Type) *Leaf {
	if declared == nil {
		declared = lattice.Universal
	}
	return u.addLeaf(&Leaf{Kind: LeafGlobal, Name: name, DeclaredType: declared})
}

// LeafType returns the type of the values a reference to l yields.
func (u *Unit) LeafType(l *Leaf) lattice.Type {
	switch l.Kind {
	case LeafConstant:
		return lattice.TypeOfValue(l.Value)
	case LeafVariable, LeafGlobal:
		return l.DeclaredType
	case LeafFunction:
		f := u.Fun(l.Fun)
		min, max := len(f.Params), len(f.Params)
		return &lattice.Function{MinArgs: min, MaxArgs: max, Result: u.FunReturnType(f)}
	default:
		panic("flow: LeafType got unknown leaf kind")
	}
}

// SubstituteLeaf redirects a reference node to another leaf and
// invalidates its result edge. This is the substitution primitive
// used when a parameter reference is replaced by a constant.
func (u *Unit) SubstituteLeaf(ref *Ref, to LeafID) {
	removeNodeID(&u.Leaf(ref.Leaf).Refs, ref.ID)
	ref.Leaf = to
	l := u.Leaf(to)
	l.Refs = append(l.Refs, ref.ID)
	ref.DType = nil
	if e := u.Edge(ref.Result); e != nil {
		u.ReoptimizeEdge(e)
	}
}

// LiveRefs returns l's reference nodes that are still linked into the
// graph.
func (u *Unit) LiveRefs(l *Leaf) []*Ref {
	var out []*Ref
	for _, id := range l.Refs {
		if r, ok := u.Node(id).(*Ref); ok && !r.Deleted && r.Block != 0 {
			out = append(out, r)
		}
	}
	return out
}

// LiveAssigns returns l's assignment nodes still linked into the
// graph.
func (u *Unit) LiveAssigns(l *Leaf) []*Assign {
	var out []*Assign
	for _, id := range l.Assigns {
		if a, ok := u.Node(id).(*Assign); ok && !a.Deleted && a.Block != 0 {
			out = append(out, a)
		}
	}
	return out
}
