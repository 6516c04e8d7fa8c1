package types

// Rank returns the promotion rank of a scalar kind: bool < int < float <
// complex.
func Rank(kind int) int {
	return kind
}

// Promote computes the common type of two operand types under the promotion
// policy.  It returns nil when no common type exists.  Promote is commutative
// and idempotent: Promote(a, b) == Promote(b, a) and Promote(t, t) == t.
func Promote(a, b Type) Type {
	if Equals(a, b) {
		return a
	}

	// The dynamic type absorbs everything.
	if IsDynamic(a) || IsDynamic(b) {
		return Dynamic
	}

	// pointer + integer -> pointer
	if pt, ok := a.(*Pointer); ok {
		if sb, ok := b.(Scalar); ok && sb.Kind == KindInt {
			return pt
		}
		return nil
	}
	if pt, ok := b.(*Pointer); ok {
		if sa, ok := a.(Scalar); ok && sa.Kind == KindInt {
			return pt
		}
		return nil
	}

	sa, aScalar := a.(Scalar)
	sb, bScalar := b.(Scalar)

	if aScalar && bScalar {
		return promoteScalars(sa, sb)
	}

	// Arrays promote elementwise against arrays of the same rank and against
	// scalars.
	if at, ok := a.(*Array); ok {
		return promoteArray(at, b)
	}
	if bt, ok := b.(*Array); ok {
		return promoteArray(bt, a)
	}

	return nil
}

// promoteScalars applies the numeric promotion policy: the winning kind at
// the larger of the two effective widths, collapsed to the narrowest type of
// that kind at that width.
func promoteScalars(a, b Scalar) Type {
	kind := a.Kind
	if b.Kind > kind {
		kind = b.Kind
	}

	bits := a.EffectiveBits()
	if b.EffectiveBits() > bits {
		bits = b.EffectiveBits()
	}

	switch kind {
	case KindBool:
		return Bool
	case KindInt:
		// Signed wins for mixed-sign operands.
		signed := a.Signed || b.Signed
		if bits < 8 {
			bits = 8
		}
		return Scalar{Kind: KindInt, Bits: bits, Signed: signed}
	case KindFloat:
		if bits <= 32 {
			return Float32
		}
		return Float64
	default:
		if bits <= 32 {
			return Complex64
		}
		return Complex128
	}
}

func promoteArray(at *Array, other Type) Type {
	switch ot := other.(type) {
	case *Array:
		if at.NDim != ot.NDim {
			return nil
		}

		elem := Promote(at.Elem, ot.Elem)
		if elem == nil {
			return nil
		}

		layout := LayoutAny
		if at.Layout == ot.Layout {
			layout = at.Layout
		}

		return &Array{Elem: elem, NDim: at.NDim, Layout: layout}
	case Scalar:
		elem := Promote(at.Elem, ot)
		if elem == nil {
			return nil
		}

		return &Array{Elem: elem, NDim: at.NDim, Layout: at.Layout}
	default:
		return nil
	}
}
