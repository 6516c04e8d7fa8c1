package codegen

import (
	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
	llvalue "github.com/llir/llvm/ir/value"

	"pyrite/bytecode"
	"pyrite/ir"
	"pyrite/report"
	"pyrite/types"
)

// lowerExpr lowers one expression to a native value of the given type.  The
// site identifies the enclosing statement for cleanup-slot bookkeeping.
func (g *Generator) lowerExpr(e ir.Expr, want types.Type, site interface{}) llvalue.Value {
	switch v := e.(type) {
	case *ir.Use:
		return g.useVar(v.Value)
	case *ir.Const:
		return g.lowerConst(v.Value, want, site)
	case *ir.FreeVar:
		return g.lowerConst(v.Value, want, site)
	case *ir.Arg:
		return g.fn.Params[v.Index+2]
	case *ir.Global:
		// Typed callables are bound at call sites; only dynamic globals
		// materialize as values.
		obj := g.block.NewCall(g.rt.getGlobal, g.internString(v.Name))
		return g.ownObject(site, obj)
	case *ir.BinOp:
		return g.lowerBinOp(v, want, site)
	case *ir.UnaryOp:
		return g.lowerUnaryOp(v, want, site)
	case *ir.Call:
		return g.lowerCall(v, want, site)
	case *ir.GetAttr:
		return g.lowerGetAttr(v, want, site)
	case *ir.GetItem:
		return g.lowerGetItem(v, want, site)
	case *ir.BuildTuple:
		return g.lowerBuildTuple(v, want, site)
	case *ir.BuildList:
		return g.lowerBuildList(v, want, site)
	case *ir.BuildMap:
		return g.lowerBuildMap(v, site)
	case *ir.GetIter:
		return g.lowerGetIter(v, site)
	case *ir.IterNext:
		return g.lowerIterNext(v, want, site)
	case *ir.PairFirst:
		return g.block.NewExtractValue(g.useVar(v.Value), 0)
	case *ir.PairSecond:
		return g.block.NewExtractValue(g.useVar(v.Value), 1)
	case *ir.Coerce:
		return g.coerceValue(g.useVar(v.Value), g.typeOf(v.Value), want, site)
	default:
		report.ReportICE("cannot lower expression %s", e.Repr())
		return nil
	}
}

func (g *Generator) lowerConst(c bytecode.Const, want types.Type, site interface{}) llvalue.Value {
	if types.IsDynamic(want) {
		return g.boxConst(c, site)
	}

	switch c.Kind {
	case bytecode.ConstNone:
		return constant.NewInt(lltypes.I8, 0)
	case bytecode.ConstBool:
		return constant.NewBool(c.Bool)
	case bytecode.ConstInt:
		return constant.NewInt(g.convType(want).(*lltypes.IntType), c.Int)
	case bytecode.ConstFloat:
		return constant.NewFloat(g.convType(want).(*lltypes.FloatType), c.Float)
	case bytecode.ConstComplex:
		st := g.convType(want).(*lltypes.StructType)
		half := st.Fields[0].(*lltypes.FloatType)
		return constant.NewStruct(st,
			constant.NewFloat(half, real(c.Cmplx)),
			constant.NewFloat(half, imag(c.Cmplx)),
		)
	default:
		obj := g.block.NewCall(g.rt.strNew, g.internString(c.Str), constant.NewInt(lltypes.I64, int64(len(c.Str))))
		return g.ownObject(site, obj)
	}
}

// boxConst boxes a constant directly into a runtime object.
func (g *Generator) boxConst(c bytecode.Const, site interface{}) llvalue.Value {
	var obj llvalue.Value
	switch c.Kind {
	case bytecode.ConstNone:
		obj = g.block.NewCall(g.rt.noneObj)
	case bytecode.ConstBool:
		obj = g.block.NewCall(g.rt.boxI1, constant.NewBool(c.Bool))
	case bytecode.ConstInt:
		obj = g.block.NewCall(g.rt.boxI64, constant.NewInt(lltypes.I64, c.Int))
	case bytecode.ConstFloat:
		obj = g.block.NewCall(g.rt.boxF64, constant.NewFloat(lltypes.Double, c.Float))
	case bytecode.ConstComplex:
		st := lltypes.NewStruct(lltypes.Double, lltypes.Double)
		obj = g.block.NewCall(g.rt.boxC128, constant.NewStruct(st,
			constant.NewFloat(lltypes.Double, real(c.Cmplx)),
			constant.NewFloat(lltypes.Double, imag(c.Cmplx)),
		))
	default:
		obj = g.block.NewCall(g.rt.strNew, g.internString(c.Str), constant.NewInt(lltypes.I64, int64(len(c.Str))))
	}

	return g.ownObject(site, obj)
}

// -----------------------------------------------------------------------------

func (g *Generator) lowerGetAttr(e *ir.GetAttr, want types.Type, site interface{}) llvalue.Value {
	t := g.typeOf(e.Value)

	switch vt := t.(type) {
	case *types.Record:
		// Records are held by value; the view reads the SSA aggregate.
		view := g.viewOwned(g.convRecordType(vt).(*lltypes.StructType), g.useVar(e.Value))
		return view.field(vt.FieldsByName[e.Attr])
	case *types.Array:
		return g.lowerArrayAttr(e, vt)
	}

	out := g.entryAlloca(g.rt.objPtr)
	g.checkStatus(g.block.NewCall(g.rt.getattr, g.useVar(e.Value), g.internString(e.Attr), out))
	return g.ownObject(site, g.block.NewLoad(g.rt.objPtr, out))
}

func (g *Generator) lowerGetItem(e *ir.GetItem, want types.Type, site interface{}) llvalue.Value {
	t := g.typeOf(e.Value)

	switch vt := t.(type) {
	case *types.Array:
		elemPtr := g.arrayElemPtr(e.Value, vt, e.Index)
		return g.block.NewLoad(g.convType(vt.Elem), elemPtr)
	case types.Tuple:
		return g.lowerTupleIndex(e, vt)
	}

	out := g.entryAlloca(g.rt.objPtr)
	obj := g.dynValue(e.Value, site)
	index := g.dynValue(e.Index, site)
	g.checkStatus(g.block.NewCall(g.rt.getitem, obj, index, out))
	return g.ownObject(site, g.block.NewLoad(g.rt.objPtr, out))
}

// lowerTupleIndex indexes a uniform tuple with a runtime index by spilling it
// to an indexable array slot.
func (g *Generator) lowerTupleIndex(e *ir.GetItem, tt types.Tuple) llvalue.Value {
	elemType := g.convType(tt[0])
	arrType := lltypes.NewArray(uint64(len(tt)), elemType)
	spill := g.entryAlloca(arrType)

	agg := g.useVar(e.Value)
	for i := range tt {
		ptr := g.block.NewGetElementPtr(arrType, spill,
			constant.NewInt(lltypes.I64, 0), constant.NewInt(lltypes.I64, int64(i)))
		g.block.NewStore(g.block.NewExtractValue(agg, uint64(i)), ptr)
	}

	index := g.intValue(g.useVar(e.Index), g.typeOf(e.Index))
	ptr := g.block.NewGetElementPtr(arrType, spill, constant.NewInt(lltypes.I64, 0), index)
	return g.block.NewLoad(elemType, ptr)
}

func (g *Generator) lowerBuildTuple(e *ir.BuildTuple, want types.Type, site interface{}) llvalue.Value {
	if types.IsDynamic(want) {
		tuple := g.ownObject(site, g.block.NewCall(g.rt.tupleNew, constant.NewInt(lltypes.I64, int64(len(e.Items)))))
		for i, item := range e.Items {
			g.block.NewCall(g.rt.tupleSetItem, tuple, constant.NewInt(lltypes.I64, int64(i)), g.dynValue(item, site))
		}
		return tuple
	}

	st := g.convType(want)
	var agg llvalue.Value = constant.NewUndef(st)
	for i, item := range e.Items {
		agg = g.block.NewInsertValue(agg, g.useVar(item), uint64(i))
	}

	return agg
}

func (g *Generator) lowerBuildList(e *ir.BuildList, want types.Type, site interface{}) llvalue.Value {
	at, ok := want.(*types.Array)
	if !ok {
		// Element types never unified; the list lives as a dynamic object.
		list := g.ownObject(site, g.block.NewCall(g.rt.listNew, constant.NewInt(lltypes.I64, int64(len(e.Items)))))
		for i, item := range e.Items {
			idx := g.ownObject(site, g.block.NewCall(g.rt.boxI64, constant.NewInt(lltypes.I64, int64(i))))
			g.checkStatus(g.block.NewCall(g.rt.setitem, list, idx, g.dynValue(item, site)))
		}
		return list
	}

	elemSize := int64(g.desc.SizeOf(at.Elem))
	arr := g.block.NewCall(g.rt.arrayAlloc,
		constant.NewInt(lltypes.I64, 1),
		constant.NewInt(lltypes.I64, int64(len(e.Items))),
		constant.NewInt(lltypes.I64, elemSize),
	)
	g.ownObject(site, g.block.NewBitCast(arr, g.rt.objPtr))

	// A freshly filled one-dimensional buffer is contiguous.
	view := g.viewRef(g.rt.arrayType.(*lltypes.StructType), arr)
	view.setField(arrFieldLayout, constant.NewInt(lltypes.I32, int64(types.LayoutC)))

	elemType := g.convType(at.Elem)
	data := g.block.NewBitCast(view.field(arrFieldData), lltypes.NewPointer(elemType))
	for i, item := range e.Items {
		ptr := g.block.NewGetElementPtr(elemType, data, constant.NewInt(lltypes.I64, int64(i)))
		g.block.NewStore(g.useVar(item), ptr)
	}

	return arr
}

func (g *Generator) lowerBuildMap(e *ir.BuildMap, site interface{}) llvalue.Value {
	m := g.ownObject(site, g.block.NewCall(g.rt.mapNew, constant.NewInt(lltypes.I64, int64(len(e.Keys)))))
	for i := range e.Keys {
		key := g.dynValue(e.Keys[i], site)
		val := g.dynValue(e.Vals[i], site)
		g.checkStatus(g.block.NewCall(g.rt.setitem, m, key, val))
	}

	return m
}

// -----------------------------------------------------------------------------

func (g *Generator) lowerGetIter(e *ir.GetIter, site interface{}) llvalue.Value {
	obj := g.asObject(g.useVar(e.Value), g.typeOf(e.Value))
	out := g.entryAlloca(g.rt.objPtr)
	g.checkStatus(g.block.NewCall(g.rt.getiter, obj, out))
	return g.ownObject(site, g.block.NewLoad(g.rt.objPtr, out))
}

// lowerIterNext advances an iterator, producing the (value, valid) pair of
// the fixed for-each expansion.
func (g *Generator) lowerIterNext(e *ir.IterNext, want types.Type, site interface{}) llvalue.Value {
	tt, ok := want.(types.Tuple)
	if !ok || len(tt) != 2 {
		report.ReportICE("iternext lowered with non-pair type %s", want.Repr())
	}

	// The runtime hands elements back at its fixed widths; narrower element
	// types convert after the load.  The sentinel store keeps the dead value
	// well defined on exhaustion.
	boxed := false
	var fn llvalue.Value
	var wideType lltypes.Type
	switch et := tt[0].(type) {
	case types.Scalar:
		switch et.Kind {
		case types.KindFloat:
			fn, wideType = g.rt.iternextF64, lltypes.Double
		case types.KindComplex:
			fn, wideType, boxed = g.rt.iternextObj, g.rt.objPtr, true
		default:
			fn, wideType = g.rt.iternextI64, lltypes.I64
		}
	default:
		fn, wideType, boxed = g.rt.iternextObj, g.rt.objPtr, true
	}

	out := g.entryAlloca(wideType)
	g.block.NewStore(constant.NewZeroInitializer(wideType), out)

	status := g.block.NewCall(fn, g.useVar(e.Value), out)
	valid := g.block.NewICmp(enum.IPredEQ, status, constant.NewInt(lltypes.I32, 0))

	var elem llvalue.Value = g.block.NewLoad(wideType, out)
	if boxed {
		// The runtime hands over an owned reference, null on exhaustion;
		// parking it releases exactly one element per iteration.
		elem = g.ownObject(site, elem)
	}

	switch et := tt[0].(type) {
	case types.Scalar:
		switch {
		case et.Kind == types.KindComplex:
			elem = g.unboxElem(valid, elem, et)
		case et.Kind == types.KindFloat && et.Bits == 32:
			elem = g.block.NewFPTrunc(elem, lltypes.Float)
		case et.Kind != types.KindFloat && et.Bits != 64:
			elem = g.block.NewTrunc(elem, g.convScalarType(et))
		}
	case *types.Array:
		// Row iterators over n-d arrays yield boxed descriptors.
		elem = g.unboxElem(valid, elem, et)
	}

	var agg llvalue.Value = constant.NewUndef(g.convType(want))
	agg = g.block.NewInsertValue(agg, elem, 0)
	agg = g.block.NewInsertValue(agg, valid, 1)
	return agg
}

// unboxElem unboxes an iterator element on the valid path only; the null
// sentinel on exhaustion must never reach the runtime.
func (g *Generator) unboxElem(valid, obj llvalue.Value, elemType types.Type) llvalue.Value {
	from := g.block
	unboxBlk := g.appendBlock()
	merge := g.appendBlock()
	from.NewCondBr(valid, unboxBlk, merge)

	g.block = unboxBlk
	unboxed := g.unboxValue(obj, elemType)
	g.block.NewBr(merge)
	unboxEnd := g.block

	g.block = merge
	return merge.NewPhi(
		llir.NewIncoming(unboxed, unboxEnd),
		llir.NewIncoming(constant.NewZeroInitializer(g.convType(elemType)), from),
	)
}

func (g *Generator) lowerArrayAttr(e *ir.GetAttr, at *types.Array) llvalue.Value {
	view := g.viewRef(g.rt.arrayType.(*lltypes.StructType), g.useVar(e.Value))

	switch e.Attr {
	case "ndim":
		return view.field(arrFieldNDim)
	case "size":
		return view.field(arrFieldSize)
	case "shape":
		shape := view.field(arrFieldShape)
		var agg llvalue.Value = constant.NewUndef(g.convType(types.Tuple(shapeTuple(at.NDim))))
		for d := 0; d < at.NDim; d++ {
			ptr := g.block.NewGetElementPtr(lltypes.I64, shape, constant.NewInt(lltypes.I64, int64(d)))
			agg = g.block.NewInsertValue(agg, g.block.NewLoad(lltypes.I64, ptr), uint64(d))
		}
		return agg
	default:
		report.ReportICE("array has no attribute `%s`", e.Attr)
		return nil
	}
}

func shapeTuple(ndim int) []types.Type {
	out := make([]types.Type, ndim)
	for i := range out {
		out[i] = types.Int64
	}

	return out
}
