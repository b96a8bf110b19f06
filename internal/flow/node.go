package flow

import "github.com/orizon-lang/iropt/internal/lattice"

// NodeKind discriminates the node variants.
type NodeKind int

const (
	KindRef NodeKind = iota
	KindCall
	KindMVCall
	KindBranch
	KindReturn
	KindAssign
	KindExit
	KindCast
)

func (k NodeKind) String() string {
	switch k {
	case KindRef:
		return "ref"
	case KindCall:
		return "call"
	case KindMVCall:
		return "mv-call"
	case KindBranch:
		return "branch"
	case KindReturn:
		return "return"
	case KindAssign:
		return "assign"
	case KindExit:
		return "exit"
	case KindCast:
		return "cast"
	default:
		return "node?"
	}
}

// Node is implemented by all IR nodes. Components dispatch on the
// concrete type with an exhaustive switch; an unknown node is a bug
// and panics.
type Node interface {
	Core() *NodeCore
	Kind() NodeKind
	// Operands lists the value edges the node consumes, in order.
	Operands() []EdgeID
}

// NodeCore is the state shared by every node.
type NodeCore struct {
	ID    NodeID
	Block BlockID
	// Prev and Next are the control edges linking consecutive nodes
	// inside a block.
	Prev, Next NodeID
	// Result is the node's outgoing value edge, or the null handle
	// when the value is unused.
	Result EdgeID
	// DType caches the node's derived result type; nil means not yet
	// derived.
	DType lattice.Type
	// Reoptimize requests a re-visit by the driver.
	Reoptimize bool
	// Deleted marks a node unlinked from the graph.
	Deleted bool
	// Source is the source form this node was built from, kept for
	// diagnostics.
	Source string
}

// Core returns the shared node state.
func (c *NodeCore) Core() *NodeCore { return c }

// CallClass classifies call nodes.
type CallClass int

const (
	CallUnclassified CallClass = iota
	// CallLocal calls a function unit resolvable in this unit.
	CallLocal
	// CallFull is ordinary dispatch by name.
	CallFull
	// CallKnown calls a registered primitive with a descriptor.
	CallKnown
	// CallError statically violates the callee's signature.
	CallError
	// CallUnknownKeys passes keyword arguments that cannot be
	// statically matched.
	CallUnknownKeys
)

func (c CallClass) String() string {
	switch c {
	case CallUnclassified:
		return "unclassified"
	case CallLocal:
		return "local"
	case CallFull:
		return "full"
	case CallKnown:
		return "known"
	case CallError:
		return "error"
	case CallUnknownKeys:
		return "unknown-keys"
	default:
		return "class?"
	}
}

// CastKind discriminates type-assertion subtypes, each with its own
// elision rule.
type CastKind int

const (
	// CastPlain is an ordinary declared- or asserted-type check.
	CastPlain CastKind = iota
	// CastBounds guards an index against an array bound.
	CastBounds
	// CastFunDesignator coerces a function designator before a call.
	CastFunDesignator
	// CastMutationGuard rejects in-place mutation of literal data.
	CastMutationGuard
	// CastOneShot runs a callback once when its operand becomes
	// constant, then disarms.
	CastOneShot
	// CastExitPlaceholder marks the entry of a non-local exit
	// context; it pins the block boundary while the exit is live.
	CastExitPlaceholder
)

func (k CastKind) String() string {
	switch k {
	case CastPlain:
		return "plain"
	case CastBounds:
		return "bounds"
	case CastFunDesignator:
		return "fun-designator"
	case CastMutationGuard:
		return "mutation-guard"
	case CastOneShot:
		return "one-shot"
	case CastExitPlaceholder:
		return "exit-placeholder"
	default:
		return "cast?"
	}
}

// Ref reads a leaf: a constant, variable, global or function unit.
type Ref struct {
	NodeCore
	Leaf LeafID
}

// Call invokes a callee value edge on argument value edges.
type Call struct {
	NodeCore
	Callee EdgeID
	Args   []EdgeID
	Class  CallClass
	// Keywords names keyword arguments interleaved at the end of
	// Args; non-constant keyword names force CallUnknownKeys.
	Keywords []string
	// TailP marks a call in tail position of its home function.
	TailP bool
	// CalleeChanged is set when the callee edge producers changed
	// since classification.
	CalleeChanged bool
}

// MVCall invokes a callee on argument edges whose value counts may
// each be more than one.
type MVCall struct {
	NodeCore
	Callee EdgeID
	Args   []EdgeID
}

// Branch transfers control to Consequent or Alternative depending on
// whether Test is the false sentinel.
type Branch struct {
	NodeCore
	Test                    EdgeID
	Consequent, Alternative BlockID
}

// Return leaves a function unit delivering the value of Value.
type Return struct {
	NodeCore
	Value EdgeID
	Fun   FunID
}

// Assign writes Value into a variable leaf.
type Assign struct {
	NodeCore
	Var   LeafID
	Value EdgeID
}

// Exit performs a control transfer out of a dynamic extent, carrying
// an optional value to Target, the destination edge in the target
// context. TargetFun is the function unit owning that context.
type Exit struct {
	NodeCore
	Value     EdgeID
	Target    EdgeID
	TargetFun FunID
}

// Cast asserts a type on its operand. RuntimeCheck records whether
// the assertion must still be checked at run time. Warned and
// HookFired are the consumed one-shot tokens for the warn-once and
// one-shot-hook subtypes.
type Cast struct {
	NodeCore
	Operand  EdgeID
	Asserted lattice.Type
	CKind    CastKind
	// Bound is the bound operand of a bounds-check cast.
	Bound        EdgeID
	RuntimeCheck bool
	Warned       bool
	HookFired    bool
	Hook         func(*Unit, *Cast)
	// Degenerate marks a cast proven unsatisfiable, compiled to an
	// error-raising stub.
	Degenerate bool
}

func (*Ref) Kind() NodeKind    { return KindRef }
func (*Call) Kind() NodeKind   { return KindCall }
func (*MVCall) Kind() NodeKind { return KindMVCall }
func (*Branch) Kind() NodeKind { return KindBranch }
func (*Return) Kind() NodeKind { return KindReturn }
func (*Assign) Kind() NodeKind { return KindAssign }
func (*Exit) Kind() NodeKind   { return KindExit }
func (*Cast) Kind() NodeKind   { return KindCast }

func (n *Ref) Operands() []EdgeID { return nil }

func (n *Call) Operands() []EdgeID {
	out := make([]EdgeID, 0, len(n.Args)+1)
	out = append(out, n.Callee)
	return append(out, n.Args...)
}

func (n *MVCall) Operands() []EdgeID {
	out := make([]EdgeID, 0, len(n.Args)+1)
	out = append(out, n.Callee)
	return append(out, n.Args...)
}

func (n *Branch) Operands() []EdgeID { return []EdgeID{n.Test} }
func (n *Return) Operands() []EdgeID { return []EdgeID{n.Value} }
func (n *Assign) Operands() []EdgeID { return []EdgeID{n.Value} }

func (n *Exit) Operands() []EdgeID {
	if n.Value == 0 {
		return nil
	}
	return []EdgeID{n.Value}
}

func (n *Cast) Operands() []EdgeID {
	if n.Bound != 0 {
		return []EdgeID{n.Operand, n.Bound}
	}
	return []EdgeID{n.Operand}
}

// NewRef allocates a reference node for a leaf and registers the
// back-reference on the leaf.
func (u *Unit) NewRef(leaf LeafID) *Ref {
	n := &Ref{Leaf: leaf}
	u.addNode(n)
	l := u.Leaf(leaf)
	l.Refs = append(l.Refs, n.ID)
	return n
}

// NewCall allocates an unclassified call node.
func (u *Unit) NewCall(callee *Edge, args ...*Edge) *Call {
	n := &Call{Callee: callee.ID, Class: CallUnclassified}
	u.addNode(n)
	u.SetDest(callee, n)
	for _, a := range args {
		n.Args = append(n.Args, a.ID)
		u.SetDest(a, n)
	}
	return n
}

// NewMVCall allocates a multi-value call node.
func (u *Unit) NewMVCall(callee *Edge, args ...*Edge) *MVCall {
	n := &MVCall{Callee: callee.ID}
	u.addNode(n)
	u.SetDest(callee, n)
	for _, a := range args {
		n.Args = append(n.Args, a.ID)
		u.SetDest(a, n)
	}
	return n
}

// NewBranch allocates a branch node testing test.
func (u *Unit) NewBranch(test *Edge, consequent, alternative BlockID) *Branch {
	n := &Branch{Test: test.ID, Consequent: consequent, Alternative: alternative}
	u.addNode(n)
	u.SetDest(test, n)
	return n
}

// NewReturn allocates the return node of fun.
func (u *Unit) NewReturn(fun FunID, value *Edge) *Return {
	n := &Return{Value: value.ID, Fun: fun}
	u.addNode(n)
	u.SetDest(value, n)
	u.Fun(fun).ReturnNode = n.ID
	return n
}

// NewAssign allocates an assignment node and registers it on the
// variable leaf.
func (u *Unit) NewAssign(v LeafID, value *Edge) *Assign {
	n := &Assign{Var: v, Value: value.ID}
	u.addNode(n)
	u.SetDest(value, n)
	l := u.Leaf(v)
	l.Assigns = append(l.Assigns, n.ID)
	l.EverAssigned = true
	return n
}

// NewExit allocates an exit node delivering value to target inside
// targetFun's context.
func (u *Unit) NewExit(value *Edge, target *Edge, targetFun FunID) *Exit {
	n := &Exit{TargetFun: targetFun}
	u.addNode(n)
	if value != nil {
		n.Value = value.ID
		u.SetDest(value, n)
	}
	if target != nil {
		n.Target = target.ID
		// An exit produces into the target context's edge; the
		// placeholder holding that context open counts these to know
		// when it may dissolve.
		u.AddProducer(target, n)
	}
	return n
}

// NewCast allocates a type-assertion node of the given subtype and
// registers it as a dependent of its operand edge.
func (u *Unit) NewCast(kind CastKind, operand *Edge, asserted lattice.Type) *Cast {
	n := &Cast{Operand: operand.ID, Asserted: asserted, CKind: kind, RuntimeCheck: true}
	u.addNode(n)
	u.SetDest(operand, n)
	operand.DependentCasts = append(operand.DependentCasts, n.ID)
	return n
}
