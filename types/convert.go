package types

// Rating grades a single argument conversion for overload resolution, from
// best to worst.
type Rating int

const (
	// Exact means the types match exactly.
	Exact Rating = iota

	// Promotion means a same-kind widening (or a rank step with no precision
	// loss inside the promotion lattice).
	Promotion

	// SafeConvert means a conversion with no precision loss, eg. int32 to
	// float64.
	SafeConvert

	// UnsafeConvert means a conversion with possible precision loss, eg.
	// int64 to float64 (53 bits of precision).
	UnsafeConvert

	// Disallowed means no conversion exists.
	Disallowed
)

func (r Rating) String() string {
	switch r {
	case Exact:
		return "exact"
	case Promotion:
		return "promote"
	case SafeConvert:
		return "safe"
	case UnsafeConvert:
		return "unsafe"
	default:
		return "disallowed"
	}
}

// mantissaBits is the number of integer bits a float width can represent
// without loss.
func mantissaBits(floatBits int) int {
	if floatBits <= 32 {
		return 24
	}

	return 53
}

// Rate grades the conversion of a value of type from into a slot of type to.
func Rate(from, to Type) Rating {
	if Equals(from, to) {
		return Exact
	}

	// Boxing into the dynamic type is always possible without loss; unboxing
	// out of it can fail at runtime.
	if IsDynamic(to) {
		return SafeConvert
	}
	if IsDynamic(from) {
		return UnsafeConvert
	}

	sf, fromScalar := from.(Scalar)
	st, toScalar := to.(Scalar)
	if fromScalar && toScalar {
		return rateScalars(sf, st)
	}

	// Arrays convert only toward a relaxed layout of the same element type.
	if af, ok := from.(*Array); ok {
		if at, ok := to.(*Array); ok {
			if Equals(af.Elem, at.Elem) && af.NDim == at.NDim && at.Layout == LayoutAny {
				return Promotion
			}
		}
		return Disallowed
	}

	return Disallowed
}

func rateScalars(from, to Scalar) Rating {
	switch {
	case from.Kind == to.Kind:
		switch from.Kind {
		case KindInt:
			if from.Signed == to.Signed {
				if to.Bits > from.Bits {
					return Promotion
				}
				return UnsafeConvert
			}
			// Crossing signedness: only unsigned into a strictly wider
			// signed type is lossless.
			if !from.Signed && to.Signed && to.Bits > from.Bits {
				return SafeConvert
			}
			return UnsafeConvert
		default:
			if to.Bits > from.Bits {
				return Promotion
			}
			return UnsafeConvert
		}

	case from.Kind == KindBool:
		// bool widens into any numeric kind.
		return Promotion

	case from.Kind == KindInt && to.Kind == KindFloat:
		if from.Bits <= mantissaBits(to.Bits) {
			return SafeConvert
		}
		return UnsafeConvert

	case from.Kind == KindInt && to.Kind == KindComplex:
		if from.Bits <= mantissaBits(to.EffectiveBits()) {
			return SafeConvert
		}
		return UnsafeConvert

	case from.Kind == KindFloat && to.Kind == KindComplex:
		if from.Bits <= to.EffectiveBits() {
			return SafeConvert
		}
		return UnsafeConvert

	default:
		// Any rank-lowering conversion loses information.
		return UnsafeConvert
	}
}
