// Package flow defines the mutable mid-level flow graph the local
// optimizer rewrites: nodes linked into blocks, value edges carrying
// producer/consumer relations and cached types, and compilation units
// bounded by sentinel blocks.
//
// The graph is an arena: the unit owns every node, edge, block, leaf,
// function unit and cleanup region, addressed by stable integer
// handles. Back-references (producer sets, predecessor lists, leaf
// reference sets) are handle sets, never owning pointers.
package flow

import (
	"fmt"

	"github.com/google/uuid"
)

// Handle types. Zero is the null handle for all of them.
type (
	NodeID    int32
	EdgeID    int32
	BlockID   int32
	LeafID    int32
	FunID     int32
	CleanupID int32
)

// FailedRewrite records a rewrite rule that gave up on a call, kept
// for end-of-compilation reporting.
type FailedRewrite struct {
	Call   NodeID
	Op     string
	Rule   string
	Reason string
}

// Unit is the compilation unit: the graph of reachable blocks for one
// top-level compiled form, bounded by synthetic head and tail blocks.
type Unit struct {
	ID   uuid.UUID
	Name string

	nodes    []Node
	edges    []*Edge
	blocks   []*Block
	leaves   []*Leaf
	funs     []*Fun
	cleanups []*Cleanup

	// Head and Tail are the sentinel blocks.
	Head, Tail BlockID
	// Order is the current flow order of reachable non-sentinel
	// blocks, valid while RecomputeOrder is false.
	Order []BlockID

	// Reoptimize requests another optimization pass over the unit.
	Reoptimize bool
	// RecomputeOrder requests a flow-order recomputation before the
	// next pass.
	RecomputeOrder bool

	// FailedRewrites accumulates rewrite-rule give-ups.
	FailedRewrites []FailedRewrite

	worklist []BlockID
}

// NewUnit creates an empty unit with its sentinel blocks.
func NewUnit(name string) *Unit {
	u := &Unit{
		ID:   uuid.New(),
		Name: name,
		// Index 0 of every arena is the null handle.
		nodes:    make([]Node, 1),
		edges:    make([]*Edge, 1),
		blocks:   make([]*Block, 1),
		leaves:   make([]*Leaf, 1),
		funs:     make([]*Fun, 1),
		cleanups: make([]*Cleanup, 1),
	}
	head := u.NewBlock(0, 0)
	tail := u.NewBlock(0, 0)
	u.Head, u.Tail = head.ID, tail.ID
	return u
}

// Node resolves a node handle. The null handle resolves to nil.
func (u *Unit) Node(id NodeID) Node {
	if id == 0 {
		return nil
	}
	return u.nodes[id]
}

// Edge resolves an edge handle.
func (u *Unit) Edge(id EdgeID) *Edge {
	if id == 0 {
		return nil
	}
	return u.edges[id]
}

// Block resolves a block handle.
func (u *Unit) Block(id BlockID) *Block {
	if id == 0 {
		return nil
	}
	return u.blocks[id]
}

// Leaf resolves a leaf handle.
func (u *Unit) Leaf(id LeafID) *Leaf {
	if id == 0 {
		return nil
	}
	return u.leaves[id]
}

// Fun resolves a function-unit handle.
func (u *Unit) Fun(id FunID) *Fun {
	if id == 0 {
		return nil
	}
	return u.funs[id]
}

// CleanupRegion resolves a cleanup handle.
func (u *Unit) CleanupRegion(id CleanupID) *Cleanup {
	if id == 0 {
		return nil
	}
	return u.cleanups[id]
}

func (u *Unit) addNode(n Node) NodeID {
	id := NodeID(len(u.nodes))
	n.Core().ID = id
	u.nodes = append(u.nodes, n)
	return id
}

// RecordFailedRewrite appends to the unit's failed-rewrite table.
func (u *Unit) RecordFailedRewrite(call NodeID, op, rule, reason string) {
	u.FailedRewrites = append(u.FailedRewrites, FailedRewrite{
		Call: call, Op: op, Rule: rule, Reason: reason,
	})
}

// ComputeOrder rebuilds Order as a depth-first flow order from the
// head sentinel and clears RecomputeOrder. Blocks that are no longer
// reachable are marked for deletion.
func (u *Unit) ComputeOrder() {
	seen := make(map[BlockID]bool, len(u.blocks))
	var order []BlockID
	var walk func(id BlockID)
	walk = func(id BlockID) {
		if id == 0 || seen[id] {
			return
		}
		seen[id] = true
		if u.Block(id).Has(BlockDelete) {
			return
		}
		if id != u.Head && id != u.Tail {
			order = append(order, id)
		}
		for _, s := range u.Block(id).Succs {
			walk(s)
		}
	}
	walk(u.Head)
	for _, f := range u.funs[1:] {
		if f == nil || f.Kind == FunDeleted || f.Kind == FunZombie {
			continue
		}
		walk(f.Entry)
	}
	for id := BlockID(1); int(id) < len(u.blocks); id++ {
		b := u.blocks[id]
		if b == nil || id == u.Head || id == u.Tail {
			continue
		}
		if !seen[id] && !b.Has(BlockDelete) {
			b.Set(BlockDelete)
		}
	}
	u.Order = order
	u.RecomputeOrder = false
}

// Blocks returns the current flow order, recomputing it if requested.
func (u *Unit) Blocks() []BlockID {
	if u.RecomputeOrder || u.Order == nil {
		u.ComputeOrder()
	}
	return u.Order
}

// AllBlocks returns every live arena block regardless of flow order.
func (u *Unit) AllBlocks() []*Block {
	out := make([]*Block, 0, len(u.blocks)-1)
	for _, b := range u.blocks[1:] {
		if b != nil && !b.Has(BlockDelete) {
			out = append(out, b)
		}
	}
	return out
}

// DoomedBlocks returns blocks marked for deletion whose nodes have
// not been physically removed yet.
func (u *Unit) DoomedBlocks() []*Block {
	var out []*Block
	for _, b := range u.blocks[1:] {
		if b != nil && b.Has(BlockDelete) && b.Head != 0 {
			out = append(out, b)
		}
	}
	return out
}

// Funs returns every live function unit.
func (u *Unit) Funs() []*Fun {
	out := make([]*Fun, 0, len(u.funs)-1)
	for _, f := range u.funs[1:] {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

func (u *Unit) String() string {
	return fmt.Sprintf("unit %s (%d blocks)", u.Name, len(u.Blocks()))
}

// NodeSource returns the source form context of a node for
// diagnostics, falling back to the printed node.
func (u *Unit) NodeSource(n Node) string {
	if s := n.Core().Source; s != "" {
		return s
	}
	return u.FormatNode(n)
}
