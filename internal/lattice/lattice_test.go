package lattice_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/iropt/internal/lattice"
)

func TestSubtypeBasics(t *testing.T) {
	require.True(t, lattice.Subtype(lattice.Empty, lattice.Float))
	require.True(t, lattice.Subtype(lattice.Boolean, lattice.Universal))
	require.False(t, lattice.Subtype(lattice.Universal, lattice.Boolean))
	require.True(t, lattice.Subtype(lattice.IntRange(1, 3), lattice.AnyInteger))
	require.False(t, lattice.Subtype(lattice.AnyInteger, lattice.IntRange(1, 3)))
	require.True(t, lattice.Subtype(lattice.False, lattice.Boolean))
	require.True(t, lattice.Subtype(lattice.TrueType, lattice.Boolean))
	require.False(t, lattice.Subtype(lattice.AnyInteger, lattice.Float))
}

func TestSubtypeMembers(t *testing.T) {
	two := lattice.TypeOfValue(int64(2))
	require.True(t, lattice.Subtype(two, lattice.IntRange(0, 5)))
	require.False(t, lattice.Subtype(two, lattice.IntRange(3, 5)))
	require.True(t, lattice.Subtype(two, lattice.AnyInteger))
}

func TestSubtypeLists(t *testing.T) {
	properPair := &lattice.Cons{Car: lattice.Universal, Cdr: lattice.False}
	require.True(t, lattice.Subtype(properPair, lattice.List))
	improper := &lattice.Cons{Car: lattice.Universal, Cdr: lattice.AnyInteger}
	require.False(t, lattice.Subtype(improper, lattice.List))
}

func TestUnionIntervals(t *testing.T) {
	u := lattice.Union(lattice.IntRange(0, 3), lattice.IntRange(5, 9))
	require.True(t, lattice.Equal(u, lattice.IntRange(0, 9)))

	open := lattice.Union(lattice.IntFrom(0), lattice.IntRange(-3, -1))
	iv, ok := open.(*lattice.Integer)
	require.True(t, ok)
	require.NotNil(t, iv.Lo)
	require.EqualValues(t, -3, *iv.Lo)
	require.Nil(t, iv.Hi)
}

func TestUnionMembers(t *testing.T) {
	u := lattice.Union(lattice.False, lattice.TrueType)
	m, ok := u.(*lattice.Member)
	require.True(t, ok)
	require.Len(t, m.Values, 2)
	require.True(t, lattice.Subtype(lattice.False, u))
	require.True(t, lattice.Subtype(lattice.TrueType, u))
}

func TestUnionAbsorbs(t *testing.T) {
	require.True(t, lattice.Equal(
		lattice.Union(lattice.IntRange(1, 2), lattice.AnyInteger),
		lattice.AnyInteger))
	require.Equal(t, lattice.Universal, lattice.Union(lattice.Universal, lattice.Float))
}

func TestIntersectIntervals(t *testing.T) {
	x := lattice.Intersect(lattice.IntRange(0, 10), lattice.IntRange(5, 20))
	require.True(t, lattice.Equal(x, lattice.IntRange(5, 10)))

	require.Equal(t, lattice.Empty,
		lattice.Intersect(lattice.IntRange(0, 3), lattice.IntRange(7, 9)))

	half := lattice.Intersect(lattice.IntFrom(0), lattice.IntTo(4))
	require.True(t, lattice.Equal(half, lattice.IntRange(0, 4)))
}

func TestIntersectBoolean(t *testing.T) {
	x := lattice.Intersect(lattice.Boolean, lattice.False)
	require.True(t, lattice.Equal(x, lattice.False))
	require.True(t, lattice.Disjoint(lattice.TrueType, lattice.False))
}

func TestDisjoint(t *testing.T) {
	require.True(t, lattice.Disjoint(lattice.AnyInteger, lattice.Float))
	require.True(t, lattice.Disjoint(lattice.TypeOfValue(int64(5)), lattice.Float))
	require.False(t, lattice.Disjoint(lattice.IntRange(0, 5), lattice.TypeOfValue(int64(3))))
	require.False(t, lattice.Disjoint(lattice.AnyCons, lattice.List))
}

func TestSingletonValue(t *testing.T) {
	v, ok := lattice.SingletonValue(lattice.TypeOfValue(int64(7)))
	require.True(t, ok)
	require.Equal(t, int64(7), v)

	v, ok = lattice.SingletonValue(lattice.IntRange(4, 4))
	require.True(t, ok)
	require.Equal(t, int64(4), v)

	_, ok = lattice.SingletonValue(lattice.Boolean)
	require.False(t, ok)
	_, ok = lattice.SingletonValue(lattice.IntRange(1, 2))
	require.False(t, ok)
}

func TestExcludesFalse(t *testing.T) {
	require.True(t, lattice.ExcludesFalse(lattice.IntRange(1, 2)))
	require.True(t, lattice.ExcludesFalse(lattice.TrueType))
	require.False(t, lattice.ExcludesFalse(lattice.Boolean))
	require.False(t, lattice.ExcludesFalse(lattice.Universal))
}

func TestWiden(t *testing.T) {
	precise := &lattice.Cons{Car: lattice.TypeOfValue(int64(1)), Cdr: lattice.False}
	require.True(t, lattice.Equal(lattice.Widen(precise), lattice.AnyCons))

	arr := &lattice.Array{Dims: []int{8}, Elem: lattice.AnyInteger}
	w, ok := lattice.Widen(arr).(*lattice.Array)
	require.True(t, ok)
	require.Nil(t, w.Dims)

	// Types that cannot be mutable aggregates stay precise.
	require.True(t, lattice.Equal(lattice.Widen(lattice.IntRange(0, 5)), lattice.IntRange(0, 5)))
}

func TestValueMemberOf(t *testing.T) {
	require.True(t, lattice.ValueMemberOf(lattice.ListValue(int64(1), int64(2)), lattice.List))
	require.True(t, lattice.ValueMemberOf(lattice.FalseValue, lattice.List))
	improper := &lattice.ConsValue{Car: int64(1), Cdr: int64(2)}
	require.False(t, lattice.ValueMemberOf(improper, lattice.List))
	require.True(t, lattice.ValueMemberOf(lattice.FuncName("car"), &lattice.Function{MinArgs: 1, MaxArgs: 1, Result: lattice.Universal}))
}

func TestFormatValue(t *testing.T) {
	require.Equal(t, "nil", lattice.FormatValue(lattice.FalseValue))
	require.Equal(t, "true", lattice.FormatValue(lattice.TrueValue))
	require.Equal(t, "(1 2 3)", lattice.FormatValue(lattice.ListValue(int64(1), int64(2), int64(3))))
	require.Equal(t, "(1 . 2)", lattice.FormatValue(&lattice.ConsValue{Car: int64(1), Cdr: int64(2)}))
	require.Equal(t, "#'car", lattice.FormatValue(lattice.FuncName("car")))
	require.Equal(t, "#(1 2)", lattice.FormatValue(&lattice.ArrayValue{Elems: []lattice.Value{int64(1), int64(2)}}))
}

func TestTypeStrings(t *testing.T) {
	require.Equal(t, "integer", lattice.AnyInteger.String())
	require.Equal(t, "(integer 0 5)", lattice.IntRange(0, 5).String())
	require.Equal(t, "(integer 3 *)", lattice.IntFrom(3).String())
	require.Equal(t, "(member nil)", lattice.False.String())
	require.Equal(t, "cons", lattice.AnyCons.String())
}
