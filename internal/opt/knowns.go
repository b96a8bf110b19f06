package opt

import (
	"fmt"

	"github.com/orizon-lang/iropt/internal/flow"
	"github.com/orizon-lang/iropt/internal/lattice"
	"github.com/orizon-lang/iropt/internal/policy"
)

// Attr is the attribute bitset of a known operation.
type Attr uint16

const (
	// AttrFoldable allows compile-time evaluation on constant
	// arguments.
	AttrFoldable Attr = 1 << iota
	// AttrFoldableCalls allows folding even with function-valued
	// arguments, provided those are themselves foldable operations.
	AttrFoldableCalls
	// AttrFlushable marks the operation side-effect free: a call
	// whose value is unused may be deleted.
	AttrFlushable
	// AttrCommutative permits canonical argument reordering on
	// two-argument calls.
	AttrCommutative
	// AttrMovable permits motion across side effects.
	AttrMovable
)

// Has reports whether all bits of f are set.
func (a Attr) Has(f Attr) bool { return a&f == f }

// Support classifies how the backend handles a known operation.
type Support int

const (
	// SupportDirect is implemented natively; no rewrite needed.
	SupportDirect Support = iota
	// SupportTemplate is expanded through a small substitution
	// template.
	SupportTemplate
	// SupportRules needs the rewrite-rule search to become
	// compilable.
	SupportRules
)

func (s Support) String() string {
	switch s {
	case SupportDirect:
		return "direct"
	case SupportTemplate:
		return "template"
	case SupportRules:
		return "rules"
	default:
		return "support?"
	}
}

// KnownInfo is the descriptor of a registered primitive operation:
// attributes, accepted arity, a type-derivation function, an optional
// constant folder, an optional custom optimizer hook, and a priority
// list of rewrite rules.
type KnownInfo struct {
	Name    string
	MinArgs int
	// MaxArgs < 0 accepts any argument count.
	MaxArgs int
	Attrs   Attr
	// ResultType is the declared result type when DeriveType is nil
	// or declines to narrow.
	ResultType lattice.Type
	// DeriveType narrows the call's result type from argument types.
	DeriveType func(o *Optimizer, call *flow.Call) lattice.Type
	// Fold evaluates the call at compile time on constant arguments.
	Fold func(args []lattice.Value) ([]lattice.Value, error)
	// Optimize is the custom optimizer hook; returning true means the
	// call was fully handled.
	Optimize func(o *Optimizer, call *flow.Call) bool
	Support  Support
	// Template is the substitution body for SupportTemplate.
	Template flow.InlineBuilder
	// Transforms are tried in order for SupportRules.
	Transforms []Transform
}

// AcceptsArity reports whether n arguments satisfy the descriptor.
func (k *KnownInfo) AcceptsArity(n int) bool {
	if n < k.MinArgs {
		return false
	}
	return k.MaxArgs < 0 || n <= k.MaxArgs
}

// argInterval views an argument edge's type as an integer interval.
func (o *Optimizer) argInterval(e *flow.Edge) (lo, hi *int64, ok bool) {
	return asInterval(o.DerivedType(e))
}

func asInterval(t lattice.Type) (lo, hi *int64, ok bool) {
	switch tt := t.(type) {
	case *lattice.Integer:
		return tt.Lo, tt.Hi, true
	case *lattice.Member:
		var min, max int64
		for i, v := range tt.Values {
			n, isInt := v.(int64)
			if !isInt {
				return nil, nil, false
			}
			if i == 0 || n < min {
				min = n
			}
			if i == 0 || n > max {
				max = n
			}
		}
		if len(tt.Values) == 0 {
			return nil, nil, false
		}
		return &min, &max, true
	}
	return nil, nil, false
}

func addBound(a, b *int64) *int64 {
	if a == nil || b == nil {
		return nil
	}
	s := *a + *b
	return &s
}

func subBound(a, b *int64) *int64 {
	if a == nil || b == nil {
		return nil
	}
	s := *a - *b
	return &s
}

// deriveArith derives an interval for two-argument integer
// arithmetic, falling back to the declared result type.
func deriveArith(combine func(alo, ahi, blo, bhi *int64) (*int64, *int64)) func(*Optimizer, *flow.Call) lattice.Type {
	return func(o *Optimizer, call *flow.Call) lattice.Type {
		if len(call.Args) != 2 {
			return lattice.Universal
		}
		alo, ahi, aok := o.argInterval(o.Unit.Edge(call.Args[0]))
		blo, bhi, bok := o.argInterval(o.Unit.Edge(call.Args[1]))
		if !aok || !bok {
			return lattice.Universal
		}
		lo, hi := combine(alo, ahi, blo, bhi)
		return &lattice.Integer{Lo: lo, Hi: hi}
	}
}

func foldNumeric2(name string, f func(a, b int64) (int64, error), g func(a, b float64) (float64, error)) func([]lattice.Value) ([]lattice.Value, error) {
	return func(args []lattice.Value) ([]lattice.Value, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("%s: want 2 arguments, got %d", name, len(args))
		}
		ai, aInt := args[0].(int64)
		bi, bInt := args[1].(int64)
		if aInt && bInt {
			v, err := f(ai, bi)
			if err != nil {
				return nil, err
			}
			return []lattice.Value{v}, nil
		}
		af, aOK := toFloat(args[0])
		bf, bOK := toFloat(args[1])
		if !aOK || !bOK {
			return nil, fmt.Errorf("%s: non-numeric argument", name)
		}
		v, err := g(af, bf)
		if err != nil {
			return nil, err
		}
		return []lattice.Value{v}, nil
	}
}

func toFloat(v lattice.Value) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func foldCompare(name string, f func(a, b float64) bool) func([]lattice.Value) ([]lattice.Value, error) {
	return func(args []lattice.Value) ([]lattice.Value, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("%s: want 2 arguments, got %d", name, len(args))
		}
		af, aOK := toFloat(args[0])
		bf, bOK := toFloat(args[1])
		if !aOK || !bOK {
			return nil, fmt.Errorf("%s: non-numeric argument", name)
		}
		return []lattice.Value{lattice.BoolValue(f(af, bf))}, nil
	}
}

// identityTransform replaces a two-argument call with the identity on
// argument keep when the other argument is the constant unit.
func identityTransform(name string, unit int64, keep int) Transform {
	other := 1 - keep
	return Transform{
		Name: fmt.Sprintf("%s-identity", name),
		Fn: func(o *Optimizer, call *flow.Call) Outcome {
			if len(call.Args) != 2 {
				return GiveUp("not a two-argument call")
			}
			v, ok := o.ConstantValue(o.Unit.Edge(call.Args[other]))
			if !ok {
				return GiveUp("")
			}
			if n, isInt := v.(int64); !isInt || n != unit {
				return GiveUp("")
			}
			return Success(func(u *flow.Unit) flow.FunID {
				f := u.NewFun(fmt.Sprintf("%s-identity", name), "x", "y")
				b := flow.NewFunBuilder(u, f)
				var out *flow.Edge
				if keep == 0 {
					out = b.Ref(u.Leaf(f.Params[0]))
				} else {
					out = b.Ref(u.Leaf(f.Params[1]))
				}
				b.Return(out)
				return f.ID
			})
		},
	}
}

// DefaultKnowns builds the registry of known operations.
func DefaultKnowns() map[string]*KnownInfo {
	m := make(map[string]*KnownInfo)
	add := func(k *KnownInfo) { m[k.Name] = k }

	add(&KnownInfo{
		Name: "+", MinArgs: 2, MaxArgs: 2,
		Attrs:      AttrFoldable | AttrFlushable | AttrCommutative | AttrMovable,
		ResultType: lattice.Universal,
		DeriveType: deriveArith(func(alo, ahi, blo, bhi *int64) (*int64, *int64) {
			return addBound(alo, blo), addBound(ahi, bhi)
		}),
		Fold: foldNumeric2("+",
			func(a, b int64) (int64, error) { return a + b, nil },
			func(a, b float64) (float64, error) { return a + b, nil }),
		Support:    SupportRules,
		Transforms: []Transform{identityTransform("+", 0, 0)},
	})
	add(&KnownInfo{
		Name: "-", MinArgs: 2, MaxArgs: 2,
		Attrs:      AttrFoldable | AttrFlushable | AttrMovable,
		ResultType: lattice.Universal,
		DeriveType: deriveArith(func(alo, ahi, blo, bhi *int64) (*int64, *int64) {
			return subBound(alo, bhi), subBound(ahi, blo)
		}),
		Fold: foldNumeric2("-",
			func(a, b int64) (int64, error) { return a - b, nil },
			func(a, b float64) (float64, error) { return a - b, nil }),
		Support: SupportDirect,
	})
	add(&KnownInfo{
		Name: "*", MinArgs: 2, MaxArgs: 2,
		Attrs:      AttrFoldable | AttrFlushable | AttrCommutative | AttrMovable,
		ResultType: lattice.Universal,
		Fold: foldNumeric2("*",
			func(a, b int64) (int64, error) { return a * b, nil },
			func(a, b float64) (float64, error) { return a * b, nil }),
		Support:    SupportRules,
		Transforms: []Transform{identityTransform("*", 1, 0)},
	})
	add(&KnownInfo{
		Name: "/", MinArgs: 2, MaxArgs: 2,
		Attrs:      AttrFoldable | AttrFlushable | AttrMovable,
		ResultType: lattice.Universal,
		Fold: foldNumeric2("/",
			func(a, b int64) (int64, error) {
				if b == 0 {
					return 0, fmt.Errorf("division by zero")
				}
				return a / b, nil
			},
			func(a, b float64) (float64, error) {
				if b == 0 {
					return 0, fmt.Errorf("division by zero")
				}
				return a / b, nil
			}),
		Support: SupportDirect,
	})
	add(&KnownInfo{
		Name: "<", MinArgs: 2, MaxArgs: 2,
		Attrs:      AttrFoldable | AttrFlushable | AttrMovable,
		ResultType: lattice.Boolean,
		DeriveType: func(o *Optimizer, call *flow.Call) lattice.Type {
			if len(call.Args) != 2 {
				return lattice.Boolean
			}
			alo, ahi, aok := o.argInterval(o.Unit.Edge(call.Args[0]))
			blo, bhi, bok := o.argInterval(o.Unit.Edge(call.Args[1]))
			if !aok || !bok {
				return lattice.Boolean
			}
			if ahi != nil && blo != nil && *ahi < *blo {
				return lattice.TrueType
			}
			if alo != nil && bhi != nil && *alo >= *bhi {
				return lattice.False
			}
			return lattice.Boolean
		},
		Fold:    foldCompare("<", func(a, b float64) bool { return a < b }),
		Support: SupportDirect,
	})
	add(&KnownInfo{
		Name: "=", MinArgs: 2, MaxArgs: 2,
		Attrs:      AttrFoldable | AttrFlushable | AttrCommutative | AttrMovable,
		ResultType: lattice.Boolean,
		DeriveType: func(o *Optimizer, call *flow.Call) lattice.Type {
			if len(call.Args) != 2 {
				return lattice.Boolean
			}
			a := o.DerivedType(o.Unit.Edge(call.Args[0]))
			b := o.DerivedType(o.Unit.Edge(call.Args[1]))
			if lattice.Disjoint(a, b) {
				return lattice.False
			}
			av, aok := lattice.SingletonValue(a)
			bv, bok := lattice.SingletonValue(b)
			if aok && bok && lattice.ValueEqual(av, bv) {
				return lattice.TrueType
			}
			return lattice.Boolean
		},
		Fold:    foldCompare("=", func(a, b float64) bool { return a == b }),
		Support: SupportDirect,
	})
	add(&KnownInfo{
		Name: "not", MinArgs: 1, MaxArgs: 1,
		Attrs:      AttrFoldable | AttrFlushable | AttrMovable,
		ResultType: lattice.Boolean,
		DeriveType: func(o *Optimizer, call *flow.Call) lattice.Type {
			t := o.DerivedType(o.Unit.Edge(call.Args[0]))
			if lattice.ExcludesFalse(t) {
				return lattice.False
			}
			if lattice.Subtype(t, lattice.False) {
				return lattice.TrueType
			}
			return lattice.Boolean
		},
		Fold: func(args []lattice.Value) ([]lattice.Value, error) {
			return []lattice.Value{lattice.BoolValue(lattice.IsFalseValue(args[0]))}, nil
		},
		Support: SupportDirect,
	})
	add(&KnownInfo{
		Name: "cons", MinArgs: 2, MaxArgs: 2,
		Attrs:      AttrFlushable | AttrMovable,
		ResultType: lattice.AnyCons,
		DeriveType: func(o *Optimizer, call *flow.Call) lattice.Type {
			return &lattice.Cons{
				Car: o.DerivedType(o.Unit.Edge(call.Args[0])),
				Cdr: o.DerivedType(o.Unit.Edge(call.Args[1])),
			}
		},
		Support: SupportDirect,
	})
	add(&KnownInfo{
		Name: "car", MinArgs: 1, MaxArgs: 1,
		Attrs:      AttrFoldable | AttrFlushable,
		ResultType: lattice.Universal,
		DeriveType: func(o *Optimizer, call *flow.Call) lattice.Type {
			if c, ok := o.ConservativeType(o.Unit.Edge(call.Args[0])).(*lattice.Cons); ok {
				return c.Car
			}
			return lattice.Universal
		},
		Fold: func(args []lattice.Value) ([]lattice.Value, error) {
			c, ok := args[0].(*lattice.ConsValue)
			if !ok {
				if lattice.IsFalseValue(args[0]) {
					return []lattice.Value{lattice.FalseValue}, nil
				}
				return nil, fmt.Errorf("car: argument is not a list")
			}
			return []lattice.Value{c.Car}, nil
		},
		Support: SupportRules,
		Transforms: []Transform{{
			Name: "car-of-cons",
			Fn: func(o *Optimizer, call *flow.Call) Outcome {
				t := o.ConservativeType(o.Unit.Edge(call.Args[0]))
				if _, ok := t.(*lattice.Cons); !ok {
					return GiveUp("unable to show the argument is a pair")
				}
				return Abort("")
			},
		}},
	})
	add(&KnownInfo{
		Name: "cdr", MinArgs: 1, MaxArgs: 1,
		Attrs:      AttrFoldable | AttrFlushable,
		ResultType: lattice.Universal,
		DeriveType: func(o *Optimizer, call *flow.Call) lattice.Type {
			if c, ok := o.ConservativeType(o.Unit.Edge(call.Args[0])).(*lattice.Cons); ok {
				return c.Cdr
			}
			return lattice.Universal
		},
		Fold: func(args []lattice.Value) ([]lattice.Value, error) {
			c, ok := args[0].(*lattice.ConsValue)
			if !ok {
				if lattice.IsFalseValue(args[0]) {
					return []lattice.Value{lattice.FalseValue}, nil
				}
				return nil, fmt.Errorf("cdr: argument is not a list")
			}
			return []lattice.Value{c.Cdr}, nil
		},
		Support: SupportDirect,
	})
	add(&KnownInfo{
		Name: "list", MinArgs: 0, MaxArgs: -1,
		Attrs:      AttrFoldable | AttrFlushable | AttrMovable,
		ResultType: lattice.List,
		Fold: func(args []lattice.Value) ([]lattice.Value, error) {
			return []lattice.Value{lattice.ListValue(args...)}, nil
		},
		Support: SupportDirect,
	})
	add(&KnownInfo{
		Name: "length", MinArgs: 1, MaxArgs: 1,
		Attrs:      AttrFoldable | AttrFlushable,
		ResultType: lattice.IntFrom(0),
		Fold: func(args []lattice.Value) ([]lattice.Value, error) {
			if elems, ok := lattice.ListElems(args[0]); ok {
				return []lattice.Value{int64(len(elems))}, nil
			}
			if a, ok := args[0].(*lattice.ArrayValue); ok {
				return []lattice.Value{int64(len(a.Elems))}, nil
			}
			return nil, fmt.Errorf("length: argument is not a sequence")
		},
		Support: SupportRules,
		Transforms: []Transform{{
			Name: "length-of-known-vector",
			Fn: func(o *Optimizer, call *flow.Call) Outcome {
				t := o.ConservativeType(o.Unit.Edge(call.Args[0]))
				arr, ok := t.(*lattice.Array)
				if !ok || len(arr.Dims) != 1 || arr.Dims[0] < 0 {
					return GiveUp("sequence length not statically known")
				}
				n := int64(arr.Dims[0])
				return Success(func(u *flow.Unit) flow.FunID {
					f := u.NewFun("length-of-known-vector", "seq")
					b := flow.NewFunBuilder(u, f)
					b.Return(b.Constant(n))
					return f.ID
				})
			},
		}},
	})
	add(&KnownInfo{
		Name: "expt", MinArgs: 2, MaxArgs: 2,
		Attrs:      AttrFoldable | AttrFlushable,
		ResultType: lattice.Universal,
		Fold: foldNumeric2("expt",
			func(a, b int64) (int64, error) {
				if b < 0 {
					return 0, fmt.Errorf("expt: negative integer exponent")
				}
				out := int64(1)
				for i := int64(0); i < b; i++ {
					out *= a
				}
				return out, nil
			},
			func(a, b float64) (float64, error) {
				return 0, fmt.Errorf("expt: float folding unsupported")
			}),
		Support: SupportRules,
		Transforms: []Transform{{
			Name: "expt-square",
			When: func(p *policy.Policy) bool { return !p.FavorSpace() },
			Fn: func(o *Optimizer, call *flow.Call) Outcome {
				v, ok := o.ConstantValue(o.Unit.Edge(call.Args[1]))
				if !ok {
					return Delay(DelayConstraint)
				}
				if n, isInt := v.(int64); !isInt || n != 2 {
					return GiveUp("exponent is not the constant 2")
				}
				return Success(func(u *flow.Unit) flow.FunID {
					f := u.NewFun("expt-square", "base", "power")
					b := flow.NewFunBuilder(u, f)
					x := b.Ref(u.Leaf(f.Params[0]))
					y := b.Ref(u.Leaf(f.Params[0]))
					b.Return(b.Call("*", x, y))
					return f.ID
				})
			},
		}},
	})
	add(&KnownInfo{
		Name: "abs", MinArgs: 1, MaxArgs: 1,
		Attrs:      AttrFoldable | AttrFlushable | AttrMovable,
		ResultType: lattice.Universal,
		Fold: func(args []lattice.Value) ([]lattice.Value, error) {
			switch n := args[0].(type) {
			case int64:
				if n < 0 {
					return []lattice.Value{-n}, nil
				}
				return []lattice.Value{n}, nil
			case float64:
				if n < 0 {
					return []lattice.Value{-n}, nil
				}
				return []lattice.Value{n}, nil
			}
			return nil, fmt.Errorf("abs: non-numeric argument")
		},
		Support: SupportTemplate,
		Template: func(u *flow.Unit) flow.FunID {
			f := u.NewFun("abs-template", "n")
			b := flow.NewFunBuilder(u, f)
			test := b.Call("<", b.Ref(u.Leaf(f.Params[0])), b.Constant(int64(0)))
			then, alt := b.Branch(test)
			b.SetBlock(then)
			neg := b.Call("-", b.Constant(int64(0)), b.Ref(u.Leaf(f.Params[0])))
			b.SetBlock(alt)
			pos := b.Ref(u.Leaf(f.Params[0]))
			out := b.Join(neg, pos)
			ret := b.NewBlock()
			b.U.LinkBlocks(then, ret)
			b.U.LinkBlocks(alt, ret)
			b.SetBlock(ret)
			b.Return(out)
			return f.ID
		},
	})
	add(&KnownInfo{
		Name: "funcall", MinArgs: 1, MaxArgs: -1,
		Attrs:      AttrFoldableCalls,
		ResultType: lattice.Universal,
		Optimize: func(o *Optimizer, call *flow.Call) bool {
			// (funcall f . args) is the call (f . args).
			u := o.Unit
			fnEdge := u.Edge(call.Args[0])
			oldCallee := u.Edge(call.Callee)
			call.Callee = fnEdge.ID
			call.Args = call.Args[1:]
			u.SetDest(fnEdge, call)
			oldCallee.Dest = 0
			u.QueueFlush(oldCallee)
			call.Class = flow.CallUnclassified
			call.CalleeChanged = true
			u.ReoptimizeNode(call)
			return true
		},
		Support: SupportDirect,
	})
	add(&KnownInfo{
		Name: "values", MinArgs: 0, MaxArgs: -1,
		Attrs:      AttrFlushable | AttrMovable,
		ResultType: lattice.Universal,
		DeriveType: func(o *Optimizer, call *flow.Call) lattice.Type {
			if len(call.Args) == 1 {
				return o.DerivedType(o.Unit.Edge(call.Args[0]))
			}
			return lattice.Universal
		},
		Support: SupportDirect,
	})
	add(&KnownInfo{
		Name: "values-list", MinArgs: 1, MaxArgs: 1,
		Attrs:      AttrFlushable,
		ResultType: lattice.Universal,
		Support:    SupportDirect,
	})
	return m
}
