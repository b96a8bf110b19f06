package flow

// BlockFlags are the per-block optimization flags.
type BlockFlags uint8

const (
	// BlockReoptimize requests a re-visit of the block's flagged
	// nodes.
	BlockReoptimize BlockFlags = 1 << iota
	// BlockDelete marks a block pending physical deletion.
	BlockDelete
	// BlockFlush requests a dead-code flush over the block.
	BlockFlush
	// BlockTypeCheck requests runtime type-check insertion by the
	// following phase.
	BlockTypeCheck
	// blockQueued tracks worklist membership.
	blockQueued
)

// Block is a maximal straight-line run of nodes with one entry and at
// most two successors.
type Block struct {
	ID BlockID
	// Head and Tail delimit the node list.
	Head, Tail NodeID
	Preds      []BlockID
	Succs      []BlockID
	Flags      BlockFlags
	// Fun is the enclosing function unit.
	Fun FunID
	// Cleanup is the dynamic-extent context active in this block.
	Cleanup CleanupID
}

// Has reports whether all given flags are set.
func (b *Block) Has(f BlockFlags) bool { return b.Flags&f == f }

// Set raises flags.
func (b *Block) Set(f BlockFlags) { b.Flags |= f }

// Clear lowers flags.
func (b *Block) Clear(f BlockFlags) { b.Flags &^= f }

// NewBlock allocates an empty block belonging to fun within cleanup.
func (u *Unit) NewBlock(fun FunID, cleanup CleanupID) *Block {
	b := &Block{ID: BlockID(len(u.blocks)), Fun: fun, Cleanup: cleanup}
	u.blocks = append(u.blocks, b)
	return b
}

// AppendNode links n at the end of b.
func (u *Unit) AppendNode(b *Block, n Node) {
	c := n.Core()
	c.Block = b.ID
	c.Next = 0
	c.Prev = b.Tail
	if b.Tail != 0 {
		u.Node(b.Tail).Core().Next = c.ID
	} else {
		b.Head = c.ID
	}
	b.Tail = c.ID
}

// InsertBefore links n immediately before pos in pos's block.
func (u *Unit) InsertBefore(n, pos Node) {
	pc := pos.Core()
	b := u.Block(pc.Block)
	c := n.Core()
	c.Block = b.ID
	c.Next = pc.ID
	c.Prev = pc.Prev
	if pc.Prev != 0 {
		u.Node(pc.Prev).Core().Next = c.ID
	} else {
		b.Head = c.ID
	}
	pc.Prev = c.ID
}

// UnlinkNode removes n from its block's control chain without
// touching value edges.
func (u *Unit) UnlinkNode(n Node) {
	c := n.Core()
	b := u.Block(c.Block)
	if c.Prev != 0 {
		u.Node(c.Prev).Core().Next = c.Next
	} else if b != nil {
		b.Head = c.Next
	}
	if c.Next != 0 {
		u.Node(c.Next).Core().Prev = c.Prev
	} else if b != nil {
		b.Tail = c.Prev
	}
	c.Prev, c.Next, c.Block = 0, 0, 0
}

// DeleteNode unlinks n from its block and from every value edge, and
// drops kind-specific back-references. Operand edges lose their
// consumer; their producers' blocks are marked for a dead-code flush
// so side-effect-free producers get removed.
func (u *Unit) DeleteNode(n Node) {
	c := n.Core()
	if c.Deleted {
		return
	}
	home := u.Block(c.Block)
	u.UnlinkNode(n)
	c.Deleted = true

	for _, eid := range n.Operands() {
		e := u.Edge(eid)
		if e == nil {
			continue
		}
		if e.Dest == c.ID {
			e.Dest = 0
		}
		u.flushProducersLater(e)
	}
	if c.Result != 0 {
		u.RemoveProducer(u.Edge(c.Result), n)
	}

	switch n := n.(type) {
	case *Ref:
		removeNodeID(&u.Leaf(n.Leaf).Refs, c.ID)
	case *Assign:
		removeNodeID(&u.Leaf(n.Var).Assigns, c.ID)
	case *Cast:
		if e := u.Edge(n.Operand); e != nil {
			removeNodeID(&e.DependentCasts, c.ID)
		}
	case *Return:
		if f := u.Fun(n.Fun); f != nil && f.ReturnNode == c.ID {
			f.ReturnNode = 0
		}
	case *Exit:
		if e := u.Edge(n.Target); e != nil {
			u.RemoveProducer(e, n)
		}
	case *Call, *MVCall, *Branch:
		// no extra back-references
	default:
		panic("flow: DeleteNode got unknown node kind")
	}
	if home != nil {
		u.MarkDirty(home)
	}
}

// QueueFlush marks the blocks of e's producers for a dead-code
// flush, removing producers whose value is no longer consumed.
func (u *Unit) QueueFlush(e *Edge) { u.flushProducersLater(e) }

// flushProducersLater marks the blocks of e's producers for a
// dead-code flush.
func (u *Unit) flushProducersLater(e *Edge) {
	for _, pid := range e.Producers {
		p := u.Node(pid)
		if p == nil || p.Core().Deleted {
			continue
		}
		if b := u.Block(p.Core().Block); b != nil {
			b.Set(BlockFlush)
			u.MarkDirty(b)
		}
	}
}

func removeNodeID(s *[]NodeID, id NodeID) {
	for i, v := range *s {
		if v == id {
			*s = append((*s)[:i], (*s)[i+1:]...)
			return
		}
	}
}

func removeBlockID(s *[]BlockID, id BlockID) {
	for i, v := range *s {
		if v == id {
			*s = append((*s)[:i], (*s)[i+1:]...)
			return
		}
	}
}

// BlockNodes returns a snapshot of b's nodes in control order, safe
// to iterate while mutating the block.
func (u *Unit) BlockNodes(b *Block) []Node {
	var out []Node
	for id := b.Head; id != 0; id = u.Node(id).Core().Next {
		out = append(out, u.Node(id))
	}
	return out
}

// EntryNode returns the first node of b, or nil.
func (u *Unit) EntryNode(b *Block) Node { return u.Node(b.Head) }

// TerminalNode returns the last node of b, or nil.
func (u *Unit) TerminalNode(b *Block) Node { return u.Node(b.Tail) }

// LinkBlocks adds a control edge from a to b.
func (u *Unit) LinkBlocks(a, b *Block) {
	for _, s := range a.Succs {
		if s == b.ID {
			return
		}
	}
	a.Succs = append(a.Succs, b.ID)
	b.Preds = append(b.Preds, a.ID)
}

// UnlinkBlocks removes the control edge from a to b.
func (u *Unit) UnlinkBlocks(a, b *Block) {
	removeBlockID(&a.Succs, b.ID)
	removeBlockID(&b.Preds, a.ID)
}

// ChangeSuccessor replaces the control edge a->old with a->new,
// preserving successor order so branch targets stay aligned.
func (u *Unit) ChangeSuccessor(a *Block, old, new BlockID) {
	for i, s := range a.Succs {
		if s == old {
			a.Succs[i] = new
			removeBlockID(&u.Block(old).Preds, a.ID)
			u.Block(new).Preds = append(u.Block(new).Preds, a.ID)
			return
		}
	}
}

// JoinBlocks splices b's node list onto the end of a, takes over b's
// successors, unions the optimization flags and removes b from the
// unit. The caller has verified the join conditions.
func (u *Unit) JoinBlocks(a, b *Block) {
	for _, n := range u.BlockNodes(b) {
		u.UnlinkNode(n)
		u.AppendNode(a, n)
	}
	succs := append([]BlockID(nil), b.Succs...)
	for _, sid := range succs {
		u.UnlinkBlocks(b, u.Block(sid))
	}
	u.UnlinkBlocks(a, b)
	for _, sid := range succs {
		u.LinkBlocks(a, u.Block(sid))
	}
	a.Flags |= b.Flags &^ blockQueued
	a.Clear(BlockDelete)
	b.Set(BlockDelete)
	u.RecomputeOrder = true
}

// DeleteBlock deletes every node of b and unlinks it from the graph.
func (u *Unit) DeleteBlock(b *Block) {
	if b.ID == u.Head || b.ID == u.Tail {
		return
	}
	nodes := u.BlockNodes(b)
	for i := len(nodes) - 1; i >= 0; i-- {
		u.DeleteNode(nodes[i])
	}
	for _, sid := range append([]BlockID(nil), b.Succs...) {
		u.UnlinkBlocks(b, u.Block(sid))
	}
	for _, pid := range append([]BlockID(nil), b.Preds...) {
		u.UnlinkBlocks(u.Block(pid), b)
	}
	b.Set(BlockDelete)
	b.Clear(BlockReoptimize | BlockFlush)
	u.RecomputeOrder = true
}

// TruncateAfter deletes every node after n in n's block and severs
// the block's successor edges: control provably cannot continue past
// n.
func (u *Unit) TruncateAfter(n Node) {
	b := u.Block(n.Core().Block)
	var doomed []Node
	for id := n.Core().Next; id != 0; id = u.Node(id).Core().Next {
		doomed = append(doomed, u.Node(id))
	}
	for i := len(doomed) - 1; i >= 0; i-- {
		u.DeleteNode(doomed[i])
	}
	for _, sid := range append([]BlockID(nil), b.Succs...) {
		s := u.Block(sid)
		u.UnlinkBlocks(b, s)
		if len(s.Preds) == 0 && sid != u.Tail {
			s.Set(BlockDelete)
		}
	}
	u.RecomputeOrder = true
}
