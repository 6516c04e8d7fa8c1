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

func (g *Generator) lowerCall(e *ir.Call, want types.Type, site interface{}) llvalue.Value {
	switch ft := g.typeOf(e.Func).(type) {
	case *types.Builtin:
		return g.lowerBuiltinCall(ft.Name, e, want, site)
	case *types.Func:
		return g.lowerNativeCall(e, ft, site)
	default:
		return g.lowerDynamicCall(g.dynValue(e.Func, site), e.Args, site)
	}
}

// lowerNativeCall calls another compiled function through the native
// convention, sharing this function's exception slot so a callee fault
// propagates straight to the error tail.
func (g *Generator) lowerNativeCall(e *ir.Call, ft *types.Func, site interface{}) llvalue.Value {
	name, ok := g.callables[e.Func.Name]
	if !ok {
		report.ReportICE("call through unbound callable `%s`", e.Func.Name)
	}
	entry := g.nativeEntry(name, ft)

	ret := g.entryAlloca(g.convType(ft.Return))

	args := []llvalue.Value{ret, g.excSlot}
	for _, a := range e.Args {
		args = append(args, g.useVar(a))
	}

	g.checkStatus(g.block.NewCall(entry, args...))

	if ft.Return == types.None {
		return constant.NewInt(lltypes.I8, 0)
	}

	val := g.block.NewLoad(g.convType(ft.Return), ret)
	if managed(ft.Return) {
		// The callee returned an owned reference.
		return g.ownObject(site, val)
	}

	return val
}

// lowerDynamicCall packs the arguments into a runtime tuple and dispatches
// through the runtime call protocol.
func (g *Generator) lowerDynamicCall(fn llvalue.Value, argVars []*ir.Var, site interface{}) llvalue.Value {
	argTuple := g.ownObject(site, g.block.NewCall(g.rt.tupleNew, constant.NewInt(lltypes.I64, int64(len(argVars)))))
	for i, a := range argVars {
		g.block.NewCall(g.rt.tupleSetItem, argTuple, constant.NewInt(lltypes.I64, int64(i)), g.dynValue(a, site))
	}

	out := g.entryAlloca(g.rt.objPtr)
	g.checkStatus(g.block.NewCall(g.rt.dyncall, fn, argTuple, out))
	return g.ownObject(site, g.block.NewLoad(g.rt.objPtr, out))
}

func (g *Generator) lowerBuiltinCall(name string, e *ir.Call, want types.Type, site interface{}) llvalue.Value {
	switch name {
	case "range":
		return g.lowerRange(e, site)
	case "abs":
		return g.lowerAbs(e, site)
	case "len":
		return g.lowerLen(e, site)
	}

	// No intrinsic expansion; dispatch through the runtime by global name.
	fn := g.ownObject(site, g.block.NewCall(g.rt.getGlobal, g.internString(name)))
	return g.lowerDynamicCall(fn, e.Args, site)
}

func (g *Generator) lowerRange(e *ir.Call, site interface{}) llvalue.Value {
	start := llvalue.Value(constant.NewInt(lltypes.I64, 0))
	step := llvalue.Value(constant.NewInt(lltypes.I64, 1))

	var stop llvalue.Value
	switch len(e.Args) {
	case 1:
		stop = g.indexArg(e.Args[0])
	case 2:
		start = g.indexArg(e.Args[0])
		stop = g.indexArg(e.Args[1])
	default:
		start = g.indexArg(e.Args[0])
		stop = g.indexArg(e.Args[1])
		step = g.indexArg(e.Args[2])
	}

	return g.ownObject(site, g.block.NewCall(g.rt.rangeNew, start, stop, step))
}

func (g *Generator) lowerAbs(e *ir.Call, site interface{}) llvalue.Value {
	arg := e.Args[0]
	t := g.typeOf(arg)

	sc, ok := t.(types.Scalar)
	if !ok {
		fn := g.ownObject(site, g.block.NewCall(g.rt.getGlobal, g.internString("abs")))
		return g.lowerDynamicCall(fn, e.Args, site)
	}

	v := g.useVar(arg)
	switch sc.Kind {
	case types.KindInt:
		zero := constant.NewInt(g.convScalarType(sc).(*lltypes.IntType), 0)
		neg := g.block.NewICmp(enum.IPredSLT, v, zero)
		return g.block.NewSelect(neg, g.block.NewSub(zero, v), v)
	case types.KindFloat:
		a := g.block.NewCall(g.rt.fabsF64, g.widenFloat(v, sc))
		if sc.Bits == 32 {
			return g.block.NewFPTrunc(a, lltypes.Float)
		}
		return a
	default:
		report.ReportICE("abs lowered with operand type %s", t.Repr())
		return nil
	}
}

func (g *Generator) lowerLen(e *ir.Call, site interface{}) llvalue.Value {
	arg := e.Args[0]
	t := g.typeOf(arg)

	switch vt := t.(type) {
	case *types.Array:
		view := g.viewRef(g.rt.arrayType.(*lltypes.StructType), g.useVar(arg))
		return view.field(arrFieldSize)
	case types.Tuple:
		return constant.NewInt(lltypes.I64, int64(len(vt)))
	}

	out := g.entryAlloca(lltypes.I64)
	g.checkStatus(g.block.NewCall(g.rt.lenOf, g.dynValue(arg, site), out))
	return g.block.NewLoad(lltypes.I64, out)
}

// indexArg loads an argument as an i64.
func (g *Generator) indexArg(v *ir.Var) llvalue.Value {
	return g.intValue(g.useVar(v), g.typeOf(v))
}
