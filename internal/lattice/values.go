package lattice

import (
	"fmt"
	"strings"
)

// Value is a compile-time constant value: one of int64, float64,
// string, the canonical truth values, FuncName, *ConsValue or
// *ArrayValue.
type Value = any

type falseSentinel struct{}
type trueMarker struct{}

// FalseValue is the single false/empty-list sentinel value.
var FalseValue Value = falseSentinel{}

// TrueValue is the canonical true value.
var TrueValue Value = trueMarker{}

// FuncName is a function designator value naming a global function.
type FuncName string

// ConsValue is a constant pair.
type ConsValue struct {
	Car, Cdr Value
}

// ArrayValue is a constant one-dimensional array.
type ArrayValue struct {
	Elems []Value
}

// BoolValue converts a Go truth into the canonical sentinel values.
func BoolValue(b bool) Value {
	if b {
		return TrueValue
	}
	return FalseValue
}

// IsFalseValue reports whether v is the false sentinel.
func IsFalseValue(v Value) bool {
	_, ok := v.(falseSentinel)
	return ok
}

// ListValue builds a proper list value from elems.
func ListValue(elems ...Value) Value {
	v := FalseValue
	for i := len(elems) - 1; i >= 0; i-- {
		v = &ConsValue{Car: elems[i], Cdr: v}
	}
	return v
}

// ListElems flattens a proper list value. The second result is false
// when v is not a proper list.
func ListElems(v Value) ([]Value, bool) {
	var out []Value
	for {
		if IsFalseValue(v) {
			return out, true
		}
		c, ok := v.(*ConsValue)
		if !ok {
			return nil, false
		}
		out = append(out, c.Car)
		v = c.Cdr
	}
}

// ValueEqual compares two constant values structurally.
func ValueEqual(a, b Value) bool {
	switch av := a.(type) {
	case *ConsValue:
		bv, ok := b.(*ConsValue)
		return ok && ValueEqual(av.Car, bv.Car) && ValueEqual(av.Cdr, bv.Cdr)
	case *ArrayValue:
		bv, ok := b.(*ArrayValue)
		if !ok || len(av.Elems) != len(bv.Elems) {
			return false
		}
		for i := range av.Elems {
			if !ValueEqual(av.Elems[i], bv.Elems[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

// FormatValue renders a constant for diagnostics and IR dumps.
func FormatValue(v Value) string {
	switch vv := v.(type) {
	case falseSentinel:
		return "nil"
	case trueMarker:
		return "true"
	case int64:
		return fmt.Sprintf("%d", vv)
	case float64:
		return fmt.Sprintf("%g", vv)
	case string:
		return fmt.Sprintf("%q", vv)
	case FuncName:
		return "#'" + string(vv)
	case *ConsValue:
		if elems, ok := ListElems(v); ok {
			parts := make([]string, len(elems))
			for i, e := range elems {
				parts[i] = FormatValue(e)
			}
			return "(" + strings.Join(parts, " ") + ")"
		}
		return fmt.Sprintf("(%s . %s)", FormatValue(vv.Car), FormatValue(vv.Cdr))
	case *ArrayValue:
		parts := make([]string, len(vv.Elems))
		for i, e := range vv.Elems {
			parts[i] = FormatValue(e)
		}
		return "#(" + strings.Join(parts, " ") + ")"
	}
	return fmt.Sprintf("%v", v)
}
