package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPromoteCommutativeIdempotent(t *testing.T) {
	universe := []Type{
		Bool, Int8, Int16, Int32, Int64,
		Uint8, Uint16, Uint32, Uint64,
		Float32, Float64, Complex64, Complex128,
		Dynamic,
		&Array{Elem: Float64, NDim: 1, Layout: LayoutC},
	}

	for _, a := range universe {
		assert.True(t, Equals(Promote(a, a), a), "promote(%s, %s)", a.Repr(), a.Repr())

		for _, b := range universe {
			ab := Promote(a, b)
			ba := Promote(b, a)

			if ab == nil {
				assert.Nil(t, ba, "promote(%s, %s)", a.Repr(), b.Repr())
				continue
			}
			assert.True(t, Equals(ab, ba), "promote(%s, %s) != promote(%s, %s)",
				a.Repr(), b.Repr(), b.Repr(), a.Repr())
		}
	}
}

func TestPromoteKindsAndWidths(t *testing.T) {
	cases := []struct {
		a, b, want Type
	}{
		{Bool, Int8, Int8},
		{Int8, Int16, Int16},
		{Int32, Uint32, Int32},
		{Uint8, Uint16, Uint16},
		{Int64, Float32, Float64},
		{Int32, Float32, Float32},
		{Float32, Float64, Float64},
		{Float64, Complex64, Complex128},
		{Float32, Complex64, Complex64},
		{Int64, Dynamic, Dynamic},
	}

	for _, c := range cases {
		got := Promote(c.a, c.b)
		assert.True(t, Equals(got, c.want),
			"promote(%s, %s) = %s, want %s", c.a.Repr(), c.b.Repr(), got.Repr(), c.want.Repr())
	}
}

func TestPromotePointerInteger(t *testing.T) {
	p := &Pointer{Elem: Int8}

	assert.True(t, Equals(Promote(p, Int64), p))
	assert.True(t, Equals(Promote(Int64, p), p))
	assert.Nil(t, Promote(p, Float64))
}

func TestPromoteArrays(t *testing.T) {
	a := &Array{Elem: Int32, NDim: 1, Layout: LayoutC}
	b := &Array{Elem: Float64, NDim: 1, Layout: LayoutF}

	got := Promote(a, b)
	at, ok := got.(*Array)
	assert.True(t, ok)
	assert.True(t, Equals(at.Elem, Float64))
	assert.Equal(t, LayoutAny, at.Layout)

	// Rank mismatch has no common type.
	assert.Nil(t, Promote(a, &Array{Elem: Int32, NDim: 2}))

	// Scalar against array promotes elementwise.
	got = Promote(a, Float64)
	at, ok = got.(*Array)
	assert.True(t, ok)
	assert.True(t, Equals(at.Elem, Float64))
	assert.Equal(t, 1, at.NDim)
}

func TestRateOrdering(t *testing.T) {
	cases := []struct {
		from, to Type
		want     Rating
	}{
		{Int32, Int32, Exact},
		{Int32, Int64, Promotion},
		{Int32, Float64, SafeConvert},
		{Float64, Int32, UnsafeConvert},
		{Float64, Str, Disallowed},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, Rate(c.from, c.to),
			"rate(%s -> %s)", c.from.Repr(), c.to.Repr())
	}
}
