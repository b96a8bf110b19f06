package flow

import "github.com/orizon-lang/iropt/internal/lattice"

// Builder assembles well-formed units the way the front end would:
// nodes appended to a current block, value edges wired from producer
// to consumer, blocks linked explicitly. Tests and the demo binary
// are its only clients; the real front end is an external
// collaborator.
type Builder struct {
	U   *Unit
	fun *Fun
	cur *Block
}

// NewBuilder creates a unit with one top-level function whose entry
// block is reachable from the head sentinel.
func NewBuilder(name string) *Builder {
	u := NewUnit(name)
	f := u.NewFun(name)
	entry := u.Block(f.Entry)
	u.LinkBlocks(u.Block(u.Head), entry)
	return &Builder{U: u, fun: f, cur: entry}
}

// NewFunBuilder attaches a builder to an existing function unit of u,
// positioned at its entry block. Rewrite rules use this to assemble
// replacement bodies.
func NewFunBuilder(u *Unit, f *Fun) *Builder {
	return &Builder{U: u, fun: f, cur: u.Block(f.Entry)}
}

// Fun returns the function being built.
func (b *Builder) Fun() *Fun { return b.fun }

// Block returns the current block.
func (b *Builder) Block() *Block { return b.cur }

// SetBlock moves construction to another block.
func (b *Builder) SetBlock(blk *Block) { b.cur = blk }

// NewBlock allocates a block in the current function and cleanup.
func (b *Builder) NewBlock() *Block {
	return b.U.NewBlock(b.fun.ID, b.cur.Cleanup)
}

// InFun builds inside another function unit, restoring the previous
// position afterwards.
func (b *Builder) InFun(f *Fun, build func()) {
	savedFun, savedBlock := b.fun, b.cur
	b.fun = f
	b.cur = b.U.Block(f.Entry)
	build()
	b.fun, b.cur = savedFun, savedBlock
}

func (b *Builder) produce(n Node) *Edge {
	b.U.AppendNode(b.cur, n)
	e := b.U.NewEdge()
	b.U.SetResult(n, e)
	return e
}

// Constant appends a reference to a fresh constant leaf.
func (b *Builder) Constant(v lattice.Value) *Edge {
	return b.produce(b.U.NewRef(b.U.NewConstant(v).ID))
}

// Int appends a reference to an integer constant.
func (b *Builder) Int(i int64) *Edge { return b.Constant(i) }

// Ref appends a reference to an existing leaf.
func (b *Builder) Ref(l *Leaf) *Edge {
	return b.produce(b.U.NewRef(l.ID))
}

// FunRef appends a reference to a function unit's leaf.
func (b *Builder) FunRef(f *Fun) *Edge {
	return b.produce(b.U.NewRef(f.Leaf))
}

// Global appends a reference to a fresh global leaf named name.
func (b *Builder) Global(name string) *Edge {
	return b.produce(b.U.NewRef(b.U.NewGlobal(name, nil).ID))
}

// Call appends a by-name call node and returns its result edge.
func (b *Builder) Call(name string, args ...*Edge) *Edge {
	return b.CallVia(b.Global(name), args...)
}

// CallVia appends a call through an explicit callee edge.
func (b *Builder) CallVia(callee *Edge, args ...*Edge) *Edge {
	n := b.U.NewCall(callee, args...)
	return b.produce(n)
}

// CallNode returns the call node producing e, when there is one.
func (b *Builder) CallNode(e *Edge) *Call {
	if len(e.Producers) == 1 {
		if c, ok := b.U.Node(e.Producers[0]).(*Call); ok {
			return c
		}
	}
	return nil
}

// MVCall appends a multi-value call through callee.
func (b *Builder) MVCall(callee *Edge, args ...*Edge) *Edge {
	return b.produce(b.U.NewMVCall(callee, args...))
}

// Assign appends an assignment to a variable leaf.
func (b *Builder) Assign(v *Leaf, val *Edge) *Assign {
	n := b.U.NewAssign(v.ID, val)
	b.U.AppendNode(b.cur, n)
	return n
}

// Cast appends a type assertion of the given subtype.
func (b *Builder) Cast(kind CastKind, operand *Edge, asserted lattice.Type) *Edge {
	return b.produce(b.U.NewCast(kind, operand, asserted))
}

// Branch terminates the current block with a branch on test and
// returns the fresh consequent and alternative blocks. Construction
// moves to the consequent.
func (b *Builder) Branch(test *Edge) (then, alt *Block) {
	then, alt = b.NewBlock(), b.NewBlock()
	n := b.U.NewBranch(test, then.ID, alt.ID)
	b.U.AppendNode(b.cur, n)
	b.U.LinkBlocks(b.cur, then)
	b.U.LinkBlocks(b.cur, alt)
	b.cur = then
	return then, alt
}

// Jump links the current block to target unconditionally and moves
// construction there.
func (b *Builder) Jump(target *Block) {
	b.U.LinkBlocks(b.cur, target)
	b.cur = target
}

// Return terminates the function delivering val and links the block
// to the tail sentinel.
func (b *Builder) Return(val *Edge) *Return {
	n := b.U.NewReturn(b.fun.ID, val)
	b.U.AppendNode(b.cur, n)
	b.U.LinkBlocks(b.cur, b.U.Block(b.U.Tail))
	return n
}

// Exit appends an exit node delivering val to the target edge owned
// by targetFun.
func (b *Builder) Exit(val *Edge, target *Edge, targetFun *Fun) *Edge {
	n := b.U.NewExit(val, target, targetFun.ID)
	return b.produce(n)
}

// Join builds an edge fed by several producer edges' nodes: the
// producers of each input are rerouted onto one fresh edge,
// modelling a control-flow join of the carried values.
func (b *Builder) Join(inputs ...*Edge) *Edge {
	out := b.U.NewEdge()
	for _, in := range inputs {
		b.U.MoveProducers(in, out)
	}
	return out
}

// Finish recomputes flow order, marks every reachable block dirty and
// returns the unit, ready for optimization.
func (b *Builder) Finish() *Unit {
	u := b.U
	u.ComputeOrder()
	for _, bid := range u.Order {
		blk := u.Block(bid)
		for _, n := range u.BlockNodes(blk) {
			n.Core().Reoptimize = true
		}
		blk.Set(BlockFlush)
		u.MarkDirty(blk)
	}
	return u
}
