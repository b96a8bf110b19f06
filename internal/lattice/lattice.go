// Package lattice implements the semantic type lattice queried by the
// flow-graph optimizer: subtype, union, intersection and singleton
// queries over a closed fragment of types. The optimizer depends only
// on these queries; the fragment is total and decidable.
package lattice

import (
	"fmt"
	"sort"
	"strings"
)

// Type is a semantic type in the lattice.
type Type interface {
	String() string
	isType()
}

type universalType struct{}
type emptyType struct{}
type listType struct{}
type floatType struct{}

// Member is a finite set of scalar constant values.
type Member struct {
	Values []Value
}

// Integer is a (possibly half-open) integer interval. A nil bound is
// unbounded on that side.
type Integer struct {
	Lo, Hi *int64
}

// Cons is the pair type with typed car and cdr fields.
type Cons struct {
	Car, Cdr Type
}

// Array is an array-like type with optionally known dimensions. A nil
// Dims means unknown rank and sizes.
type Array struct {
	Dims []int
	Elem Type
}

// Function describes callable values by accepted argument count range
// and result type. MaxArgs < 0 means no upper bound.
type Function struct {
	MinArgs int
	MaxArgs int
	Result  Type
}

// Or is a union of member types.
type Or struct {
	Elems []Type
}

func (universalType) isType() {}
func (emptyType) isType()     {}
func (listType) isType()      {}
func (floatType) isType()     {}
func (*Member) isType()       {}
func (*Integer) isType()      {}
func (*Cons) isType()         {}
func (*Array) isType()        {}
func (*Function) isType()     {}
func (*Or) isType()           {}

// Named base types consumed by the optimizer.
var (
	// Universal admits every value.
	Universal Type = universalType{}
	// Empty is the unreachable type; no value inhabits it.
	Empty Type = emptyType{}
	// List admits every proper list, including the empty list.
	List Type = listType{}
	// Float admits all floating point values.
	Float Type = floatType{}
	// False is the false sentinel: the single value that is boolean
	// false and, equivalently, the empty list.
	False Type = &Member{Values: []Value{FalseValue}}
	// TrueType is the singleton type of the canonical true value.
	TrueType Type = &Member{Values: []Value{TrueValue}}
	// Boolean admits exactly the two canonical truth values.
	Boolean Type = &Or{Elems: []Type{False, TrueType}}
	// AnyInteger admits every integer.
	AnyInteger Type = &Integer{}
	// AnyCons admits every pair.
	AnyCons Type = &Cons{Car: Universal, Cdr: Universal}
	// AnyArray admits every array-like value.
	AnyArray Type = &Array{Elem: Universal}
	// MutableAggregate admits every in-place mutable structured value.
	MutableAggregate Type = &Or{Elems: []Type{&Cons{Car: Universal, Cdr: Universal}, &Array{Elem: Universal}}}
)

func (universalType) String() string { return "t" }
func (emptyType) String() string     { return "nil-type" }
func (listType) String() string      { return "list" }
func (floatType) String() string     { return "float" }

func (m *Member) String() string {
	parts := make([]string, len(m.Values))
	for i, v := range m.Values {
		parts[i] = FormatValue(v)
	}
	return "(member " + strings.Join(parts, " ") + ")"
}

func (t *Integer) String() string {
	lo, hi := "*", "*"
	if t.Lo != nil {
		lo = fmt.Sprintf("%d", *t.Lo)
	}
	if t.Hi != nil {
		hi = fmt.Sprintf("%d", *t.Hi)
	}
	if lo == "*" && hi == "*" {
		return "integer"
	}
	return fmt.Sprintf("(integer %s %s)", lo, hi)
}

func (t *Cons) String() string {
	if t.Car == Universal && t.Cdr == Universal {
		return "cons"
	}
	return fmt.Sprintf("(cons %s %s)", t.Car, t.Cdr)
}

func (t *Array) String() string {
	if t.Dims == nil {
		if t.Elem == Universal {
			return "array"
		}
		return fmt.Sprintf("(array %s)", t.Elem)
	}
	dims := make([]string, len(t.Dims))
	for i, d := range t.Dims {
		if d < 0 {
			dims[i] = "*"
		} else {
			dims[i] = fmt.Sprintf("%d", d)
		}
	}
	return fmt.Sprintf("(array %s (%s))", t.Elem, strings.Join(dims, " "))
}

func (t *Function) String() string {
	if t.MaxArgs < 0 {
		return fmt.Sprintf("(function %d.. %s)", t.MinArgs, t.Result)
	}
	return fmt.Sprintf("(function %d..%d %s)", t.MinArgs, t.MaxArgs, t.Result)
}

func (t *Or) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}
	return "(or " + strings.Join(parts, " ") + ")"
}

// Subtype reports whether every value of a is a value of b. The answer
// is exact on the fragment; where structure does not line up it errs on
// the side of false.
func Subtype(a, b Type) bool {
	if a == Empty {
		return true
	}
	if b == Universal {
		return true
	}
	if b == Empty {
		return false
	}
	if a == Universal {
		return false
	}
	if equalType(a, b) {
		return true
	}
	switch at := a.(type) {
	case *Or:
		for _, e := range at.Elems {
			if !Subtype(e, b) {
				return false
			}
		}
		return true
	case *Member:
		for _, v := range at.Values {
			if !ValueMemberOf(v, b) {
				return false
			}
		}
		return true
	}
	if bo, ok := b.(*Or); ok {
		for _, e := range bo.Elems {
			if Subtype(a, e) {
				return true
			}
		}
		return false
	}
	switch at := a.(type) {
	case *Integer:
		bt, ok := b.(*Integer)
		if !ok {
			return false
		}
		return boundGE(at.Lo, bt.Lo) && boundLE(at.Hi, bt.Hi)
	case floatType:
		return false // only float <= float, handled by equalType
	case *Cons:
		switch bt := b.(type) {
		case *Cons:
			return Subtype(at.Car, bt.Car) && Subtype(at.Cdr, bt.Cdr)
		case listType:
			// A pair is a (possibly improper) list head; only conses
			// whose cdr is again list-shaped are proper lists.
			return Subtype(at.Cdr, List) || Subtype(at.Cdr, False)
		}
		return false
	case listType:
		return false
	case *Array:
		bt, ok := b.(*Array)
		if !ok {
			return false
		}
		if bt.Dims != nil && !dimsEqual(at.Dims, bt.Dims) {
			return false
		}
		return bt.Elem == Universal || Subtype(at.Elem, bt.Elem)
	case *Function:
		bt, ok := b.(*Function)
		if !ok {
			return false
		}
		if at.MinArgs < bt.MinArgs {
			return false
		}
		if bt.MaxArgs >= 0 && (at.MaxArgs < 0 || at.MaxArgs > bt.MaxArgs) {
			return false
		}
		return Subtype(at.Result, bt.Result)
	}
	return false
}

// Union computes the least type admitting every value of a and of b,
// simplified where the fragment allows.
func Union(a, b Type) Type {
	if Subtype(a, b) {
		return b
	}
	if Subtype(b, a) {
		return a
	}
	if am, ok := a.(*Member); ok {
		if bm, ok := b.(*Member); ok {
			return mergeMembers(am, bm)
		}
	}
	if ai, ok := a.(*Integer); ok {
		if bi, ok := b.(*Integer); ok {
			return &Integer{Lo: minBound(ai.Lo, bi.Lo), Hi: maxBound(ai.Hi, bi.Hi)}
		}
	}
	elems := flattenOr(a)
	elems = append(elems, flattenOr(b)...)
	// Drop elements covered by others.
	out := make([]Type, 0, len(elems))
	for i, e := range elems {
		covered := false
		for j, f := range elems {
			if i == j {
				continue
			}
			if Subtype(e, f) && !(Subtype(f, e) && j > i) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, e)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	if len(out) > 8 {
		return Universal
	}
	return &Or{Elems: out}
}

// Intersect computes a type admitting exactly the values in both a and
// b. It returns Empty only when the two are provably disjoint.
func Intersect(a, b Type) Type {
	if Subtype(a, b) {
		return a
	}
	if Subtype(b, a) {
		return b
	}
	if ao, ok := a.(*Or); ok {
		return intersectOr(ao, b)
	}
	if bo, ok := b.(*Or); ok {
		return intersectOr(bo, a)
	}
	if am, ok := a.(*Member); ok {
		return filterMember(am, b)
	}
	if bm, ok := b.(*Member); ok {
		return filterMember(bm, a)
	}
	switch at := a.(type) {
	case *Integer:
		if bt, ok := b.(*Integer); ok {
			lo, hi := tightLo(at.Lo, bt.Lo), tightHi(at.Hi, bt.Hi)
			if lo != nil && hi != nil && *lo > *hi {
				return Empty
			}
			return &Integer{Lo: lo, Hi: hi}
		}
		return Empty
	case floatType:
		return Empty
	case *Cons:
		switch bt := b.(type) {
		case *Cons:
			car := Intersect(at.Car, bt.Car)
			cdr := Intersect(at.Cdr, bt.Cdr)
			if car == Empty || cdr == Empty {
				return Empty
			}
			return &Cons{Car: car, Cdr: cdr}
		case listType:
			cdr := Intersect(at.Cdr, Union(List, False))
			if cdr == Empty {
				return Empty
			}
			return &Cons{Car: at.Car, Cdr: cdr}
		}
		return Empty
	case listType:
		if bt, ok := b.(*Cons); ok {
			return Intersect(bt, a)
		}
		return Empty
	case *Array:
		bt, ok := b.(*Array)
		if !ok {
			return Empty
		}
		dims := at.Dims
		if dims == nil {
			dims = bt.Dims
		} else if bt.Dims != nil && !dimsEqual(at.Dims, bt.Dims) {
			return Empty
		}
		elem := Intersect(at.Elem, bt.Elem)
		if elem == Empty {
			return Empty
		}
		return &Array{Dims: dims, Elem: elem}
	case *Function:
		bt, ok := b.(*Function)
		if !ok {
			return Empty
		}
		min := at.MinArgs
		if bt.MinArgs > min {
			min = bt.MinArgs
		}
		max := at.MaxArgs
		if max < 0 || (bt.MaxArgs >= 0 && bt.MaxArgs < max) {
			max = bt.MaxArgs
		}
		if max >= 0 && min > max {
			return Empty
		}
		res := Intersect(at.Result, bt.Result)
		if res == Empty {
			return Empty
		}
		return &Function{MinArgs: min, MaxArgs: max, Result: res}
	}
	return Empty
}

// Disjoint reports whether a and b provably share no values.
func Disjoint(a, b Type) bool { return Intersect(a, b) == Empty }

// SingletonValue returns the unique value of t when t admits exactly
// one value.
func SingletonValue(t Type) (Value, bool) {
	switch tt := t.(type) {
	case *Member:
		if len(tt.Values) == 1 {
			return tt.Values[0], true
		}
	case *Integer:
		if tt.Lo != nil && tt.Hi != nil && *tt.Lo == *tt.Hi {
			return *tt.Lo, true
		}
	}
	return nil, false
}

// ExcludesFalse reports whether no value of t is the false sentinel,
// which makes a branch test on t provably true.
func ExcludesFalse(t Type) bool { return Disjoint(t, False) }

// Widen returns the conservative view of t for values that may be
// mutated in place behind the optimizer's back: pair types keep their
// outer shape only, array types lose their dimensions, and anything
// that may be a mutable aggregate is unioned with the general
// aggregate type.
func Widen(t Type) Type {
	switch tt := t.(type) {
	case *Cons:
		return AnyCons
	case *Array:
		return &Array{Elem: Universal}
	case *Or:
		out := t
		for i, e := range tt.Elems {
			w := Widen(e)
			if w != e {
				elems := make([]Type, len(tt.Elems))
				copy(elems, tt.Elems)
				for j := i; j < len(elems); j++ {
					elems[j] = Widen(tt.Elems[j])
				}
				out = &Or{Elems: elems}
				break
			}
		}
		return out
	}
	if !Disjoint(t, MutableAggregate) {
		return Union(t, MutableAggregate)
	}
	return t
}

// TypeOfValue returns the most specific type of a constant value.
func TypeOfValue(v Value) Type {
	return &Member{Values: []Value{v}}
}

// ValueMemberOf reports whether constant v inhabits type t.
func ValueMemberOf(v Value, t Type) bool {
	switch tt := t.(type) {
	case universalType:
		return true
	case emptyType:
		return false
	case *Member:
		for _, m := range tt.Values {
			if ValueEqual(m, v) {
				return true
			}
		}
		return false
	case *Integer:
		i, ok := v.(int64)
		if !ok {
			return false
		}
		if tt.Lo != nil && i < *tt.Lo {
			return false
		}
		if tt.Hi != nil && i > *tt.Hi {
			return false
		}
		return true
	case floatType:
		_, ok := v.(float64)
		return ok
	case *Cons:
		c, ok := v.(*ConsValue)
		if !ok {
			return false
		}
		return ValueMemberOf(c.Car, tt.Car) && ValueMemberOf(c.Cdr, tt.Cdr)
	case listType:
		for {
			if ValueEqual(v, FalseValue) {
				return true
			}
			c, ok := v.(*ConsValue)
			if !ok {
				return false
			}
			v = c.Cdr
		}
	case *Array:
		a, ok := v.(*ArrayValue)
		if !ok {
			return false
		}
		if tt.Dims != nil && !dimsEqual(tt.Dims, []int{len(a.Elems)}) {
			return false
		}
		if tt.Elem != Universal {
			for _, e := range a.Elems {
				if !ValueMemberOf(e, tt.Elem) {
					return false
				}
			}
		}
		return true
	case *Function:
		_, ok := v.(FuncName)
		return ok
	case *Or:
		for _, e := range tt.Elems {
			if ValueMemberOf(v, e) {
				return true
			}
		}
		return false
	}
	return false
}

// IntRange builds a closed integer interval type.
func IntRange(lo, hi int64) Type { l, h := lo, hi; return &Integer{Lo: &l, Hi: &h} }

// IntFrom builds an integer type bounded below only.
func IntFrom(lo int64) Type { l := lo; return &Integer{Lo: &l} }

// IntTo builds an integer type bounded above only.
func IntTo(hi int64) Type { h := hi; return &Integer{Hi: &h} }

func intersectOr(o *Or, b Type) Type {
	var out []Type
	for _, e := range o.Elems {
		x := Intersect(e, b)
		if x != Empty {
			out = append(out, x)
		}
	}
	switch len(out) {
	case 0:
		return Empty
	case 1:
		return out[0]
	}
	return &Or{Elems: out}
}

func filterMember(m *Member, t Type) Type {
	var kept []Value
	for _, v := range m.Values {
		if ValueMemberOf(v, t) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return Empty
	}
	return &Member{Values: kept}
}

func mergeMembers(a, b *Member) Type {
	out := make([]Value, 0, len(a.Values)+len(b.Values))
	out = append(out, a.Values...)
	for _, v := range b.Values {
		dup := false
		for _, w := range a.Values {
			if ValueEqual(v, w) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return FormatValue(out[i]) < FormatValue(out[j])
	})
	return &Member{Values: out}
}

func flattenOr(t Type) []Type {
	if o, ok := t.(*Or); ok {
		var out []Type
		for _, e := range o.Elems {
			out = append(out, flattenOr(e)...)
		}
		return out
	}
	return []Type{t}
}

func equalType(a, b Type) bool {
	if a == b {
		return true
	}
	switch at := a.(type) {
	case *Member:
		bt, ok := b.(*Member)
		if !ok || len(at.Values) != len(bt.Values) {
			return false
		}
		for _, v := range at.Values {
			if !ValueMemberOf(v, bt) {
				return false
			}
		}
		return true
	case *Integer:
		bt, ok := b.(*Integer)
		return ok && boundEq(at.Lo, bt.Lo) && boundEq(at.Hi, bt.Hi)
	case *Cons:
		bt, ok := b.(*Cons)
		return ok && equalType(at.Car, bt.Car) && equalType(at.Cdr, bt.Cdr)
	case *Array:
		bt, ok := b.(*Array)
		return ok && dimsEqual(at.Dims, bt.Dims) && equalType(at.Elem, bt.Elem)
	case *Function:
		bt, ok := b.(*Function)
		return ok && at.MinArgs == bt.MinArgs && at.MaxArgs == bt.MaxArgs && equalType(at.Result, bt.Result)
	case *Or:
		bt, ok := b.(*Or)
		if !ok || len(at.Elems) != len(bt.Elems) {
			return false
		}
		for i := range at.Elems {
			if !equalType(at.Elems[i], bt.Elems[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Equal reports structural equality of two types.
func Equal(a, b Type) bool { return equalType(a, b) }

func dimsEqual(a, b []int) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func boundEq(a, b *int64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// boundGE reports a >= b where nil is negative infinity.
func boundGE(a, b *int64) bool {
	if b == nil {
		return true
	}
	if a == nil {
		return false
	}
	return *a >= *b
}

// boundLE reports a <= b where nil is positive infinity.
func boundLE(a, b *int64) bool {
	if b == nil {
		return true
	}
	if a == nil {
		return false
	}
	return *a <= *b
}

// tightLo picks the greater lower bound, nil meaning unbounded below.
func tightLo(a, b *int64) *int64 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if *a > *b {
		return a
	}
	return b
}

// tightHi picks the lesser upper bound, nil meaning unbounded above.
func tightHi(a, b *int64) *int64 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if *a < *b {
		return a
	}
	return b
}

func minBound(a, b *int64) *int64 {
	if a == nil || b == nil {
		return nil
	}
	if *a < *b {
		return a
	}
	return b
}

func maxBound(a, b *int64) *int64 {
	if a == nil || b == nil {
		return nil
	}
	if *a > *b {
		return a
	}
	return b
}
