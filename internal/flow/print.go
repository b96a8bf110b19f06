package flow

import (
	"fmt"
	"strings"

	"github.com/orizon-lang/iropt/internal/lattice"
)

// Format renders the unit in a stable textual form for dumps, golden
// tests and diagnostics.
func (u *Unit) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "unit %s {\n", u.Name)
	for _, f := range u.Funs() {
		if f.Kind == FunDeleted || f.Kind == FunZombie {
			continue
		}
		params := make([]string, len(f.Params))
		for i, p := range f.Params {
			params[i] = u.leafString(p)
		}
		fmt.Fprintf(&b, "  fun %s(%s) kind=%s entry=b%d\n", f.Name, strings.Join(params, " "), f.Kind, f.Entry)
	}
	for _, bid := range u.Blocks() {
		blk := u.Block(bid)
		fmt.Fprintf(&b, "  b%d:%s\n", bid, blockHeader(u, blk))
		for _, n := range u.BlockNodes(blk) {
			fmt.Fprintf(&b, "    %s\n", u.FormatNode(n))
		}
	}
	b.WriteString("}")
	return b.String()
}

func blockHeader(u *Unit, blk *Block) string {
	var parts []string
	if len(blk.Preds) > 0 {
		parts = append(parts, "preds="+blockList(blk.Preds))
	}
	if len(blk.Succs) > 0 {
		parts = append(parts, "succs="+blockList(blk.Succs))
	}
	if blk.Fun != 0 {
		parts = append(parts, fmt.Sprintf("fun=%s", u.Fun(blk.Fun).Name))
	}
	if len(parts) == 0 {
		return ""
	}
	return "  ; " + strings.Join(parts, " ")
}

func blockList(ids []BlockID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("b%d", id)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// FormatNode renders one node.
func (u *Unit) FormatNode(n Node) string {
	c := n.Core()
	dst := ""
	if c.Result != 0 {
		dst = fmt.Sprintf("e%d = ", c.Result)
	}
	body := ""
	switch n := n.(type) {
	case *Ref:
		body = "ref " + u.leafString(n.Leaf)
	case *Call:
		body = fmt.Sprintf("call.%s e%d%s", n.Class, n.Callee, edgeList(n.Args))
	case *MVCall:
		body = fmt.Sprintf("mv-call e%d%s", n.Callee, edgeList(n.Args))
	case *Branch:
		body = fmt.Sprintf("branch e%d then b%d else b%d", n.Test, n.Consequent, n.Alternative)
	case *Return:
		body = fmt.Sprintf("return e%d", n.Value)
	case *Assign:
		body = fmt.Sprintf("set %s, e%d", u.leafString(n.Var), n.Value)
	case *Exit:
		if n.Value != 0 {
			body = fmt.Sprintf("exit e%d -> e%d", n.Value, n.Target)
		} else {
			body = fmt.Sprintf("exit -> e%d", n.Target)
		}
	case *Cast:
		check := ""
		if n.RuntimeCheck {
			check = " checked"
		}
		if n.Degenerate {
			check = " degenerate"
		}
		body = fmt.Sprintf("cast.%s e%d as %s%s", n.CKind, n.Operand, n.Asserted, check)
	default:
		panic("flow: FormatNode got unknown node kind")
	}
	t := ""
	if c.DType != nil {
		t = fmt.Sprintf(" ; type=%s", c.DType)
	}
	return dst + body + t
}

func edgeList(ids []EdgeID) string {
	if len(ids) == 0 {
		return " ()"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("e%d", id)
	}
	return " (" + strings.Join(parts, " ") + ")"
}

func (u *Unit) leafString(id LeafID) string {
	l := u.Leaf(id)
	switch l.Kind {
	case LeafConstant:
		return "k:" + lattice.FormatValue(l.Value)
	case LeafVariable:
		return "v:" + l.Name
	case LeafGlobal:
		return "g:" + l.Name
	case LeafFunction:
		return "f:" + l.Name
	default:
		return "leaf?"
	}
}
