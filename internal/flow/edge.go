package flow

import "github.com/orizon-lang/iropt/internal/lattice"

// Edge is a value edge: a many-producers, at-most-one-consumer data
// channel. An edge with several producers is a join point; an edge
// with zero producers is unreachable and reads as the empty type.
type Edge struct {
	ID EdgeID
	// Producers are the nodes whose values flow into this edge, in
	// join order.
	Producers []NodeID
	// Dest is the consuming node, or the null handle.
	Dest NodeID
	// Type caches the derived type of the edge; nil means it must be
	// re-derived.
	Type lattice.Type
	// Reoptimize requests re-derivation and a re-visit of Dest.
	Reoptimize bool
	// Escapes marks a value whose extent cannot be bounded (it is
	// captured by a non-local context).
	Escapes bool
	// Narrowed marks a value already narrowed by an external check,
	// exempting it from redundant assertion insertion.
	Narrowed bool
	// DependentCasts lists type-assertion nodes whose outcome depends
	// on this edge's type.
	DependentCasts []NodeID
}

// NewEdge allocates an empty value edge.
func (u *Unit) NewEdge() *Edge {
	e := &Edge{ID: EdgeID(len(u.edges))}
	u.edges = append(u.edges, e)
	return e
}

// SetResult makes n the producer of e and e the result edge of n.
func (u *Unit) SetResult(n Node, e *Edge) {
	n.Core().Result = e.ID
	u.AddProducer(e, n)
}

// AddProducer adds n to e's producer set and invalidates e.
func (u *Unit) AddProducer(e *Edge, n Node) {
	for _, p := range e.Producers {
		if p == n.Core().ID {
			return
		}
	}
	e.Producers = append(e.Producers, n.Core().ID)
	u.ReoptimizeEdge(e)
}

// RemoveProducer removes n from e's producer set and invalidates e.
func (u *Unit) RemoveProducer(e *Edge, n Node) {
	id := n.Core().ID
	for i, p := range e.Producers {
		if p == id {
			e.Producers = append(e.Producers[:i], e.Producers[i+1:]...)
			if n.Core().Result == e.ID {
				n.Core().Result = 0
			}
			u.ReoptimizeEdge(e)
			return
		}
	}
}

// SetDest makes n the consumer of e.
func (u *Unit) SetDest(e *Edge, n Node) {
	e.Dest = n.Core().ID
}

// MoveProducers reroutes every producer of from onto to, leaving from
// without producers. Both edges are invalidated.
func (u *Unit) MoveProducers(from, to *Edge) {
	for _, pid := range append([]NodeID(nil), from.Producers...) {
		p := u.Node(pid)
		u.RemoveProducer(from, p)
		u.SetResult(p, to)
	}
}

// ReoptimizeEdge is the single invalidation choke point: it clears
// the edge's cached type, flags the edge, its consumer, the owning
// block and the unit, and propagates to every dependent
// type-assertion node.
func (u *Unit) ReoptimizeEdge(e *Edge) {
	e.Type = nil
	e.Reoptimize = true
	u.Reoptimize = true
	if dest := u.Node(e.Dest); dest != nil && !dest.Core().Deleted {
		u.ReoptimizeNode(dest)
	}
	for _, cid := range e.DependentCasts {
		if cast := u.Node(cid); cast != nil && !cast.Core().Deleted {
			u.ReoptimizeNode(cast)
		}
	}
}

// ReoptimizeNode flags a node and pushes its block on the dirty
// worklist.
func (u *Unit) ReoptimizeNode(n Node) {
	c := n.Core()
	c.Reoptimize = true
	if b := u.Block(c.Block); b != nil {
		u.MarkDirty(b)
	}
}

// MarkDirty pushes a block on the dirty worklist, once.
func (u *Unit) MarkDirty(b *Block) {
	u.Reoptimize = true
	if b.Has(blockQueued) || b.Has(BlockDelete) {
		b.Set(BlockReoptimize)
		return
	}
	b.Set(BlockReoptimize | blockQueued)
	u.worklist = append(u.worklist, b.ID)
}

// PopDirty removes and returns the next dirty block, or nil when the
// worklist is empty.
func (u *Unit) PopDirty() *Block {
	for len(u.worklist) > 0 {
		id := u.worklist[0]
		u.worklist = u.worklist[1:]
		b := u.Block(id)
		b.Clear(blockQueued)
		if b.Has(BlockDelete) {
			continue
		}
		return b
	}
	return nil
}

// DirtyLen returns the number of queued dirty blocks.
func (u *Unit) DirtyLen() int { return len(u.worklist) }
