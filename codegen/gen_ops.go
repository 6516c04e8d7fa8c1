package codegen

import (
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
	llvalue "github.com/llir/llvm/ir/value"

	"pyrite/ir"
	"pyrite/report"
	"pyrite/types"
)

func (g *Generator) lowerBinOp(e *ir.BinOp, want types.Type, site interface{}) llvalue.Value {
	lt, rt := g.typeOf(e.Lhs), g.typeOf(e.Rhs)

	// Any dynamic operand routes the whole operation through the runtime.
	if managed(lt) || managed(rt) {
		lhs := g.dynValue(e.Lhs, site)
		rhs := g.dynValue(e.Rhs, site)
		out := g.entryAlloca(g.rt.objPtr)
		g.checkStatus(g.block.NewCall(g.rt.binop, constant.NewInt(lltypes.I32, int64(e.Op)), lhs, rhs, out))
		return g.ownObject(site, g.block.NewLoad(g.rt.objPtr, out))
	}

	lhs, rhs := g.useVar(e.Lhs), g.useVar(e.Rhs)
	ls, lok := lt.(types.Scalar)
	rs, rok := rt.(types.Scalar)
	if !lok || !rok {
		report.ReportICE("operator `%s` lowered with operand types %s, %s", e.Op, lt.Repr(), rt.Repr())
	}

	// The coercion pass has already aligned the operand types.
	if !types.Equals(ls, rs) {
		report.ReportICE("operator `%s` has unequal operand types %s, %s", e.Op, ls.Repr(), rs.Repr())
	}

	if e.Op.IsCompare() {
		return g.scalarCompare(e.Op, lhs, rhs, ls)
	}

	switch ls.Kind {
	case types.KindBool:
		// Arithmetic on booleans runs in the integer domain.
		li := g.block.NewZExt(lhs, lltypes.I64)
		ri := g.block.NewZExt(rhs, lltypes.I64)
		return g.intBinOp(e.Op, li, ri, types.Int64, want)
	case types.KindInt:
		return g.intBinOp(e.Op, lhs, rhs, ls, want)
	case types.KindFloat:
		return g.floatBinOp(e.Op, lhs, rhs, ls)
	default:
		return g.complexBinOp(e.Op, lhs, rhs, ls)
	}
}

// intBinOp lowers an integer operation.  Floor division and modulo follow
// floored semantics (the remainder takes the sign of the divisor), not the
// machine's truncated semantics.
func (g *Generator) intBinOp(op ir.Operator, lhs, rhs llvalue.Value, sc types.Scalar, want types.Type) llvalue.Value {
	switch op {
	case ir.OpAdd:
		return g.block.NewAdd(lhs, rhs)
	case ir.OpSub:
		return g.block.NewSub(lhs, rhs)
	case ir.OpMul:
		return g.block.NewMul(lhs, rhs)
	case ir.OpDiv:
		// True division always yields a float result.
		ws, ok := want.(types.Scalar)
		if !ok || ws.Kind != types.KindFloat {
			report.ReportICE("integer true division with non-float result %s", want.Repr())
		}
		lf := g.convertScalar(lhs, sc, ws)
		rf := g.convertScalar(rhs, sc, ws)
		return g.block.NewFDiv(lf, rf)
	case ir.OpFloorDiv:
		return g.flooredQuotient(lhs, rhs, sc)
	case ir.OpMod:
		return g.flooredRemainder(lhs, rhs, sc)
	case ir.OpPow:
		return g.narrowInt(g.block.NewCall(g.rt.ipow, g.widenInt(lhs, sc), g.widenInt(rhs, sc)), sc)
	case ir.OpLShift:
		return g.block.NewShl(lhs, rhs)
	case ir.OpRShift:
		if sc.Signed {
			return g.block.NewAShr(lhs, rhs)
		}
		return g.block.NewLShr(lhs, rhs)
	case ir.OpBitAnd:
		return g.block.NewAnd(lhs, rhs)
	case ir.OpBitOr:
		return g.block.NewOr(lhs, rhs)
	case ir.OpBitXor:
		return g.block.NewXor(lhs, rhs)
	default:
		report.ReportICE("operator `%s` is not an integer operation", op)
		return nil
	}
}

// flooredQuotient computes lhs // rhs: the truncated quotient, minus one when
// the remainder is nonzero and the operands disagree in sign.
func (g *Generator) flooredQuotient(lhs, rhs llvalue.Value, sc types.Scalar) llvalue.Value {
	if !sc.Signed {
		return g.block.NewUDiv(lhs, rhs)
	}

	q := g.block.NewSDiv(lhs, rhs)
	r := g.block.NewSRem(lhs, rhs)

	zero := constant.NewInt(lhs.Type().(*lltypes.IntType), 0)
	hasRem := g.block.NewICmp(enum.IPredNE, r, zero)
	signMismatch := g.block.NewICmp(enum.IPredSLT, g.block.NewXor(lhs, rhs), zero)
	fixup := g.block.NewZExt(g.block.NewAnd(hasRem, signMismatch), lhs.Type())
	return g.block.NewSub(q, fixup)
}

// flooredRemainder computes lhs % rhs with the result taking the divisor's
// sign.
func (g *Generator) flooredRemainder(lhs, rhs llvalue.Value, sc types.Scalar) llvalue.Value {
	if !sc.Signed {
		return g.block.NewURem(lhs, rhs)
	}

	r := g.block.NewSRem(lhs, rhs)

	zero := constant.NewInt(lhs.Type().(*lltypes.IntType), 0)
	hasRem := g.block.NewICmp(enum.IPredNE, r, zero)
	signMismatch := g.block.NewICmp(enum.IPredSLT, g.block.NewXor(r, rhs), zero)
	needsFix := g.block.NewAnd(hasRem, signMismatch)
	fixed := g.block.NewAdd(r, rhs)
	return g.block.NewSelect(needsFix, fixed, r)
}

func (g *Generator) floatBinOp(op ir.Operator, lhs, rhs llvalue.Value, sc types.Scalar) llvalue.Value {
	switch op {
	case ir.OpAdd:
		return g.block.NewFAdd(lhs, rhs)
	case ir.OpSub:
		return g.block.NewFSub(lhs, rhs)
	case ir.OpMul:
		return g.block.NewFMul(lhs, rhs)
	case ir.OpDiv:
		return g.block.NewFDiv(lhs, rhs)
	case ir.OpFloorDiv:
		q := g.block.NewFDiv(g.widenFloat(lhs, sc), g.widenFloat(rhs, sc))
		floored := g.block.NewCall(g.rt.floorF64, q)
		if sc.Bits == 32 {
			return g.block.NewFPTrunc(floored, lltypes.Float)
		}
		return floored
	case ir.OpMod:
		// Floored: r = frem(l, r); r += rhs when the signs disagree.
		r := g.block.NewFRem(lhs, rhs)
		zero := constant.NewFloat(lhs.Type().(*lltypes.FloatType), 0)
		hasRem := g.block.NewFCmp(enum.FPredONE, r, zero)
		rNeg := g.block.NewFCmp(enum.FPredOLT, r, zero)
		dNeg := g.block.NewFCmp(enum.FPredOLT, rhs, zero)
		signMismatch := g.block.NewXor(rNeg, dNeg)
		needsFix := g.block.NewAnd(hasRem, signMismatch)
		fixed := g.block.NewFAdd(r, rhs)
		return g.block.NewSelect(needsFix, fixed, r)
	case ir.OpPow:
		p := g.block.NewCall(g.rt.powF64, g.widenFloat(lhs, sc), g.widenFloat(rhs, sc))
		if sc.Bits == 32 {
			return g.block.NewFPTrunc(p, lltypes.Float)
		}
		return p
	default:
		report.ReportICE("operator `%s` is not a float operation", op)
		return nil
	}
}

// complexBinOp lowers complex arithmetic componentwise; division goes
// through the runtime to get the robust scaling algorithm.
func (g *Generator) complexBinOp(op ir.Operator, lhs, rhs llvalue.Value, sc types.Scalar) llvalue.Value {
	lre := g.block.NewExtractValue(lhs, 0)
	lim := g.block.NewExtractValue(lhs, 1)
	rre := g.block.NewExtractValue(rhs, 0)
	rim := g.block.NewExtractValue(rhs, 1)

	pack := func(re, im llvalue.Value) llvalue.Value {
		var agg llvalue.Value = constant.NewUndef(g.convScalarType(sc))
		agg = g.block.NewInsertValue(agg, re, 0)
		agg = g.block.NewInsertValue(agg, im, 1)
		return agg
	}

	switch op {
	case ir.OpAdd:
		return pack(g.block.NewFAdd(lre, rre), g.block.NewFAdd(lim, rim))
	case ir.OpSub:
		return pack(g.block.NewFSub(lre, rre), g.block.NewFSub(lim, rim))
	case ir.OpMul:
		re := g.block.NewFSub(g.block.NewFMul(lre, rre), g.block.NewFMul(lim, rim))
		im := g.block.NewFAdd(g.block.NewFMul(lre, rim), g.block.NewFMul(lim, rre))
		return pack(re, im)
	case ir.OpDiv:
		wl := g.widenComplex(lhs, sc)
		wr := g.widenComplex(rhs, sc)
		q := g.block.NewCall(g.rt.cdiv, wl, wr)
		if sc.Bits == 64 {
			return g.convertComplexWidth(q, lltypes.Float)
		}
		return q
	default:
		report.ReportICE("operator `%s` is not a complex operation", op)
		return nil
	}
}

// scalarCompare lowers a comparison to an i1.
func (g *Generator) scalarCompare(op ir.Operator, lhs, rhs llvalue.Value, sc types.Scalar) llvalue.Value {
	if sc.Kind == types.KindComplex {
		lre := g.block.NewExtractValue(lhs, 0)
		lim := g.block.NewExtractValue(lhs, 1)
		rre := g.block.NewExtractValue(rhs, 0)
		rim := g.block.NewExtractValue(rhs, 1)

		reEq := g.block.NewFCmp(enum.FPredOEQ, lre, rre)
		imEq := g.block.NewFCmp(enum.FPredOEQ, lim, rim)
		eq := g.block.NewAnd(reEq, imEq)
		switch op {
		case ir.OpEq:
			return eq
		case ir.OpNe:
			return g.block.NewXor(eq, constant.NewBool(true))
		default:
			report.ReportICE("complex values are unordered under `%s`", op)
			return nil
		}
	}

	if sc.Kind == types.KindFloat {
		var pred enum.FPred
		switch op {
		case ir.OpEq:
			pred = enum.FPredOEQ
		case ir.OpNe:
			pred = enum.FPredUNE
		case ir.OpLt:
			pred = enum.FPredOLT
		case ir.OpLe:
			pred = enum.FPredOLE
		case ir.OpGt:
			pred = enum.FPredOGT
		default:
			pred = enum.FPredOGE
		}
		return g.block.NewFCmp(pred, lhs, rhs)
	}

	var pred enum.IPred
	switch op {
	case ir.OpEq:
		pred = enum.IPredEQ
	case ir.OpNe:
		pred = enum.IPredNE
	case ir.OpLt:
		pred = pick(sc.Signed, enum.IPredSLT, enum.IPredULT)
	case ir.OpLe:
		pred = pick(sc.Signed, enum.IPredSLE, enum.IPredULE)
	case ir.OpGt:
		pred = pick(sc.Signed, enum.IPredSGT, enum.IPredUGT)
	default:
		pred = pick(sc.Signed, enum.IPredSGE, enum.IPredUGE)
	}

	return g.block.NewICmp(pred, lhs, rhs)
}

func pick(signed bool, s, u enum.IPred) enum.IPred {
	if signed {
		return s
	}

	return u
}

// -----------------------------------------------------------------------------

func (g *Generator) lowerUnaryOp(e *ir.UnaryOp, want types.Type, site interface{}) llvalue.Value {
	t := g.typeOf(e.Operand)

	if managed(t) {
		operand := g.dynValue(e.Operand, site)
		out := g.entryAlloca(g.rt.objPtr)
		g.checkStatus(g.block.NewCall(g.rt.unaryop, constant.NewInt(lltypes.I32, int64(e.Op)), operand, out))
		return g.ownObject(site, g.block.NewLoad(g.rt.objPtr, out))
	}

	v := g.useVar(e.Operand)
	sc, ok := t.(types.Scalar)
	if !ok {
		report.ReportICE("operator `%s` lowered with operand type %s", e.Op, t.Repr())
	}

	switch e.Op {
	case ir.OpNot:
		return g.block.NewXor(g.truthValue(v, t), constant.NewBool(true))
	case ir.OpPos:
		if sc.Kind == types.KindBool {
			return g.block.NewZExt(v, lltypes.I64)
		}
		return v
	case ir.OpNeg:
		switch sc.Kind {
		case types.KindBool:
			return g.block.NewSub(constant.NewInt(lltypes.I64, 0), g.block.NewZExt(v, lltypes.I64))
		case types.KindInt:
			return g.block.NewSub(constant.NewInt(g.convScalarType(sc).(*lltypes.IntType), 0), v)
		case types.KindFloat:
			return g.block.NewFNeg(v)
		default:
			re := g.block.NewFNeg(g.block.NewExtractValue(v, 0))
			im := g.block.NewFNeg(g.block.NewExtractValue(v, 1))
			var agg llvalue.Value = constant.NewUndef(g.convScalarType(sc))
			agg = g.block.NewInsertValue(agg, re, 0)
			agg = g.block.NewInsertValue(agg, im, 1)
			return agg
		}
	case ir.OpInvert:
		if sc.Kind == types.KindBool {
			ext := g.block.NewZExt(v, lltypes.I64)
			return g.block.NewXor(ext, constant.NewInt(lltypes.I64, -1))
		}
		return g.block.NewXor(v, constant.NewInt(g.convScalarType(sc).(*lltypes.IntType), -1))
	default:
		report.ReportICE("operator `%s` is not unary", e.Op)
		return nil
	}
}
