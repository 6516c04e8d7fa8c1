package codegen

import (
	"github.com/llir/llvm/ir/constant"
	lltypes "github.com/llir/llvm/ir/types"
	llvalue "github.com/llir/llvm/ir/value"

	"pyrite/report"
	"pyrite/types"
)

// asObject converts an already-managed value to the universal object handle.
func (g *Generator) asObject(v llvalue.Value, t types.Type) llvalue.Value {
	if !managed(t) {
		report.ReportICE("type %s is not a runtime object", t.Repr())
	}
	if _, ok := t.(*types.Array); ok {
		return g.block.NewBitCast(v, g.rt.objPtr)
	}

	return v
}

// boxValue boxes a native value into a runtime object handle.
func (g *Generator) boxValue(v llvalue.Value, t types.Type, site interface{}) llvalue.Value {
	if managed(t) {
		return g.asObject(v, t)
	}

	var obj llvalue.Value
	switch sc := t.(type) {
	case types.Scalar:
		switch sc.Kind {
		case types.KindBool:
			obj = g.block.NewCall(g.rt.boxI1, v)
		case types.KindInt:
			obj = g.block.NewCall(g.rt.boxI64, g.widenInt(v, sc))
		case types.KindFloat:
			obj = g.block.NewCall(g.rt.boxF64, g.widenFloat(v, sc))
		default:
			obj = g.block.NewCall(g.rt.boxC128, g.widenComplex(v, sc))
		}
	default:
		if t == types.None {
			obj = g.block.NewCall(g.rt.noneObj)
		} else {
			report.ReportICE("cannot box value of type %s", t.Repr())
		}
	}

	return g.ownObject(site, obj)
}

// coerceValue converts a native value between two inferred types.  The
// typing pass only inserts representable conversions; anything else here is
// an internal error.
func (g *Generator) coerceValue(v llvalue.Value, from, to types.Type, site interface{}) llvalue.Value {
	if types.Equals(from, to) {
		return v
	}

	// Into the dynamic domain: box.
	if types.IsDynamic(to) {
		return g.boxValue(v, from, site)
	}

	// Out of the dynamic domain: unbox with a fault check.
	if types.IsDynamic(from) {
		return g.unboxValue(v, to)
	}

	fs, fromScalar := from.(types.Scalar)
	ts, toScalar := to.(types.Scalar)
	if fromScalar && toScalar {
		return g.convertScalar(v, fs, ts)
	}

	if fa, ok := from.(*types.Array); ok {
		if ta, ok := to.(*types.Array); ok && types.Equals(fa.Elem, ta.Elem) && fa.NDim == ta.NDim {
			// Layout-relaxing conversion; the descriptor does not change.
			return v
		}
	}

	report.ReportICE("no conversion from %s to %s", from.Repr(), to.Repr())
	return nil
}

// unboxValue extracts a native value from a runtime object, branching to the
// error tail block when the object has the wrong runtime type.
func (g *Generator) unboxValue(obj llvalue.Value, to types.Type) llvalue.Value {
	switch ts := to.(type) {
	case types.Scalar:
		switch ts.Kind {
		case types.KindBool:
			out := g.entryAlloca(lltypes.I1)
			g.checkStatus(g.block.NewCall(g.rt.unboxI1, obj, out))
			return g.block.NewLoad(lltypes.I1, out)
		case types.KindInt:
			out := g.entryAlloca(lltypes.I64)
			g.checkStatus(g.block.NewCall(g.rt.unboxI64, obj, out))
			return g.narrowInt(g.block.NewLoad(lltypes.I64, out), ts)
		case types.KindFloat:
			out := g.entryAlloca(lltypes.Double)
			g.checkStatus(g.block.NewCall(g.rt.unboxF64, obj, out))
			if ts.Bits == 32 {
				return g.block.NewFPTrunc(g.block.NewLoad(lltypes.Double, out), lltypes.Float)
			}
			return g.block.NewLoad(lltypes.Double, out)
		default:
			c128 := lltypes.NewStruct(lltypes.Double, lltypes.Double)
			out := g.entryAlloca(c128)
			g.checkStatus(g.block.NewCall(g.rt.unboxC128, obj, out))
			v := g.block.NewLoad(c128, out)
			if ts.Bits == 128 {
				return v
			}
			return g.convertComplexWidth(v, lltypes.Float)
		}
	case *types.Array:
		out := g.entryAlloca(g.rt.arrayPtr)
		g.checkStatus(g.block.NewCall(g.rt.unboxArray, obj, out))
		return g.block.NewLoad(g.rt.arrayPtr, out)
	}

	if managed(to) {
		return obj
	}

	report.ReportICE("cannot unbox into type %s", to.Repr())
	return nil
}

// convertScalar converts between two scalar representations.
func (g *Generator) convertScalar(v llvalue.Value, from, to types.Scalar) llvalue.Value {
	toType := g.convScalarType(to)

	switch {
	case from.Kind == types.KindBool && to.Kind == types.KindInt:
		return g.block.NewZExt(v, toType)
	case from.Kind == types.KindBool && to.Kind == types.KindFloat:
		return g.block.NewUIToFP(v, toType)
	case to.Kind == types.KindBool:
		return g.truthValue(v, from)

	case from.Kind == types.KindInt && to.Kind == types.KindInt:
		if to.Bits > from.Bits {
			if from.Signed {
				return g.block.NewSExt(v, toType)
			}
			return g.block.NewZExt(v, toType)
		}
		if to.Bits < from.Bits {
			return g.block.NewTrunc(v, toType)
		}
		// Same width, signedness change only: bit pattern is unchanged.
		return v

	case from.Kind == types.KindInt && to.Kind == types.KindFloat:
		if from.Signed {
			return g.block.NewSIToFP(v, toType)
		}
		return g.block.NewUIToFP(v, toType)
	case from.Kind == types.KindFloat && to.Kind == types.KindInt:
		return g.block.NewFPToSI(v, toType)
	case from.Kind == types.KindFloat && to.Kind == types.KindFloat:
		if to.Bits > from.Bits {
			return g.block.NewFPExt(v, toType)
		}
		return g.block.NewFPTrunc(v, toType)

	case from.Kind == types.KindComplex && to.Kind == types.KindComplex:
		return g.convertComplexWidth(v, toType.(*lltypes.StructType).Fields[0].(*lltypes.FloatType))
	case to.Kind == types.KindComplex:
		half := toType.(*lltypes.StructType).Fields[0].(*lltypes.FloatType)
		re := g.convertScalar(v, from, types.Scalar{Kind: types.KindFloat, Bits: halfBits(to)})
		var agg llvalue.Value = constant.NewUndef(toType)
		agg = g.block.NewInsertValue(agg, re, 0)
		agg = g.block.NewInsertValue(agg, constant.NewFloat(half, 0), 1)
		return agg
	}

	report.ReportICE("no scalar conversion from %s to %s", from.Repr(), to.Repr())
	return nil
}

// convertComplexWidth rebuilds a complex pair at a different component width.
func (g *Generator) convertComplexWidth(v llvalue.Value, half *lltypes.FloatType) llvalue.Value {
	re := g.block.NewExtractValue(v, 0)
	im := g.block.NewExtractValue(v, 1)

	conv := func(x llvalue.Value) llvalue.Value {
		if x.Type().Equal(half) {
			return x
		}
		if half.Kind == lltypes.FloatKindDouble {
			return g.block.NewFPExt(x, half)
		}
		return g.block.NewFPTrunc(x, half)
	}

	var agg llvalue.Value = constant.NewUndef(lltypes.NewStruct(half, half))
	agg = g.block.NewInsertValue(agg, conv(re), 0)
	agg = g.block.NewInsertValue(agg, conv(im), 1)
	return agg
}

// widenInt widens an integer to i64 for boxing and indexing.
func (g *Generator) widenInt(v llvalue.Value, sc types.Scalar) llvalue.Value {
	if sc.Bits == 64 {
		return v
	}
	if sc.Signed {
		return g.block.NewSExt(v, lltypes.I64)
	}

	return g.block.NewZExt(v, lltypes.I64)
}

func (g *Generator) narrowInt(v llvalue.Value, sc types.Scalar) llvalue.Value {
	if sc.Bits == 64 {
		return v
	}

	return g.block.NewTrunc(v, g.convScalarType(sc))
}

func (g *Generator) widenFloat(v llvalue.Value, sc types.Scalar) llvalue.Value {
	if sc.Bits == 64 {
		return v
	}

	return g.block.NewFPExt(v, lltypes.Double)
}

func (g *Generator) widenComplex(v llvalue.Value, sc types.Scalar) llvalue.Value {
	if sc.Bits == 128 {
		return v
	}

	return g.convertComplexWidth(v, lltypes.Double)
}

// intValue converts an integer or boolean scalar to an i64 index value.
func (g *Generator) intValue(v llvalue.Value, t types.Type) llvalue.Value {
	sc, ok := t.(types.Scalar)
	if !ok || sc.Kind > types.KindInt {
		report.ReportICE("type %s cannot index", t.Repr())
	}
	if sc.Kind == types.KindBool {
		return g.block.NewZExt(v, lltypes.I64)
	}

	return g.widenInt(v, sc)
}

func halfBits(sc types.Scalar) int {
	return sc.Bits / 2
}
