package codegen

import (
	llir "github.com/llir/llvm/ir"
	lltypes "github.com/llir/llvm/ir/types"
)

// runtimeDecls holds the external declarations of the runtime object model.
// Boxing, unboxing, reference counting, and all dynamic-typed operations are
// collaborator calls into this runtime, never open-coded.
type runtimeDecls struct {
	// objType is the opaque managed-object header; objPtr is the universal
	// dynamic handle type.
	objType lltypes.Type
	objPtr  *lltypes.PointerType

	// arrayType is the array descriptor: data pointer, ndim, total size,
	// shape vector, stride vector (bytes), layout tag.
	arrayType lltypes.Type
	arrayPtr  *lltypes.PointerType

	incref *llir.Func
	decref *llir.Func

	boxI64   *llir.Func
	boxF64   *llir.Func
	boxI1    *llir.Func
	boxC128  *llir.Func
	boxArray *llir.Func

	unboxI64   *llir.Func
	unboxF64   *llir.Func
	unboxI1    *llir.Func
	unboxC128  *llir.Func
	unboxArray *llir.Func

	noneObj *llir.Func
	strNew  *llir.Func

	getGlobal *llir.Func
	binop     *llir.Func
	unaryop   *llir.Func
	dyncall   *llir.Func
	getattr   *llir.Func
	getitem   *llir.Func
	setitem   *llir.Func
	delitem   *llir.Func
	lenOf     *llir.Func

	tupleNew     *llir.Func
	tupleSetItem *llir.Func
	tupleGetItem *llir.Func

	getiter     *llir.Func
	iternextI64 *llir.Func
	iternextF64 *llir.Func
	iternextObj *llir.Func

	rangeNew   *llir.Func
	arrayAlloc *llir.Func
	listNew    *llir.Func
	mapNew     *llir.Func

	truth *llir.Func
	raise *llir.Func

	ipow *llir.Func
	cdiv *llir.Func

	// LLVM intrinsics used by scalar lowering.
	powF64   *llir.Func
	fabsF64  *llir.Func
	floorF64 *llir.Func
}

// declareRuntime adds the runtime object model declarations to a module.
func declareRuntime(mod *llir.Module) *runtimeDecls {
	rt := &runtimeDecls{}

	rt.objType = mod.NewTypeDef("pyr.obj", lltypes.NewStruct(lltypes.I64))
	rt.objPtr = lltypes.NewPointer(rt.objType)

	i64Ptr := lltypes.NewPointer(lltypes.I64)
	rt.arrayType = mod.NewTypeDef("pyr.array", lltypes.NewStruct(
		lltypes.I8Ptr, // data
		lltypes.I64,   // ndim
		lltypes.I64,   // size
		i64Ptr,        // shape
		i64Ptr,        // strides
		lltypes.I32,   // layout
	))
	rt.arrayPtr = lltypes.NewPointer(rt.arrayType)

	obj := rt.objPtr
	objOut := lltypes.NewPointer(rt.objPtr)
	c128 := lltypes.NewStruct(lltypes.Double, lltypes.Double)

	param := llir.NewParam

	rt.incref = mod.NewFunc("pyr_incref", lltypes.Void, param("obj", obj))
	rt.decref = mod.NewFunc("pyr_decref", lltypes.Void, param("obj", obj))

	rt.boxI64 = mod.NewFunc("pyr_box_i64", obj, param("v", lltypes.I64))
	rt.boxF64 = mod.NewFunc("pyr_box_f64", obj, param("v", lltypes.Double))
	rt.boxI1 = mod.NewFunc("pyr_box_i1", obj, param("v", lltypes.I1))
	rt.boxC128 = mod.NewFunc("pyr_box_c128", obj, param("v", c128))
	rt.boxArray = mod.NewFunc("pyr_box_array", obj, param("v", rt.arrayPtr))

	rt.unboxI64 = mod.NewFunc("pyr_unbox_i64", lltypes.I32, param("obj", obj), param("out", i64Ptr))
	rt.unboxF64 = mod.NewFunc("pyr_unbox_f64", lltypes.I32, param("obj", obj), param("out", lltypes.NewPointer(lltypes.Double)))
	rt.unboxI1 = mod.NewFunc("pyr_unbox_i1", lltypes.I32, param("obj", obj), param("out", lltypes.NewPointer(lltypes.I1)))
	rt.unboxC128 = mod.NewFunc("pyr_unbox_c128", lltypes.I32, param("obj", obj), param("out", lltypes.NewPointer(c128)))
	rt.unboxArray = mod.NewFunc("pyr_unbox_array", lltypes.I32, param("obj", obj), param("out", lltypes.NewPointer(rt.arrayPtr)))

	rt.noneObj = mod.NewFunc("pyr_none", obj)
	rt.strNew = mod.NewFunc("pyr_str_new", obj, param("data", lltypes.I8Ptr), param("len", lltypes.I64))

	rt.getGlobal = mod.NewFunc("pyr_get_global", obj, param("name", lltypes.I8Ptr))
	rt.binop = mod.NewFunc("pyr_binop", lltypes.I32,
		param("op", lltypes.I32), param("lhs", obj), param("rhs", obj), param("out", objOut))
	rt.unaryop = mod.NewFunc("pyr_unaryop", lltypes.I32,
		param("op", lltypes.I32), param("operand", obj), param("out", objOut))
	rt.dyncall = mod.NewFunc("pyr_call", lltypes.I32,
		param("fn", obj), param("args", obj), param("out", objOut))
	rt.getattr = mod.NewFunc("pyr_getattr", lltypes.I32,
		param("obj", obj), param("name", lltypes.I8Ptr), param("out", objOut))
	rt.getitem = mod.NewFunc("pyr_getitem", lltypes.I32,
		param("obj", obj), param("index", obj), param("out", objOut))
	rt.setitem = mod.NewFunc("pyr_setitem", lltypes.I32,
		param("obj", obj), param("index", obj), param("value", obj))
	rt.delitem = mod.NewFunc("pyr_delitem", lltypes.I32,
		param("obj", obj), param("index", obj))
	rt.lenOf = mod.NewFunc("pyr_len", lltypes.I32, param("obj", obj), param("out", i64Ptr))

	rt.tupleNew = mod.NewFunc("pyr_tuple_new", obj, param("n", lltypes.I64))
	rt.tupleSetItem = mod.NewFunc("pyr_tuple_setitem", lltypes.Void,
		param("tuple", obj), param("i", lltypes.I64), param("value", obj))
	rt.tupleGetItem = mod.NewFunc("pyr_tuple_getitem", obj,
		param("tuple", obj), param("i", lltypes.I64))

	rt.getiter = mod.NewFunc("pyr_getiter", lltypes.I32, param("obj", obj), param("out", objOut))
	rt.iternextI64 = mod.NewFunc("pyr_iternext_i64", lltypes.I32, param("iter", obj), param("out", i64Ptr))
	rt.iternextF64 = mod.NewFunc("pyr_iternext_f64", lltypes.I32, param("iter", obj), param("out", lltypes.NewPointer(lltypes.Double)))
	rt.iternextObj = mod.NewFunc("pyr_iternext_obj", lltypes.I32, param("iter", obj), param("out", objOut))

	rt.rangeNew = mod.NewFunc("pyr_range_new", obj,
		param("start", lltypes.I64), param("stop", lltypes.I64), param("step", lltypes.I64))
	rt.arrayAlloc = mod.NewFunc("pyr_array_alloc", rt.arrayPtr,
		param("ndim", lltypes.I64), param("len", lltypes.I64), param("elemsize", lltypes.I64))

	rt.listNew = mod.NewFunc("pyr_list_new", obj, param("n", lltypes.I64))
	rt.mapNew = mod.NewFunc("pyr_map_new", obj, param("n", lltypes.I64))

	rt.truth = mod.NewFunc("pyr_truth", lltypes.I32, param("obj", obj), param("out", lltypes.NewPointer(lltypes.I1)))
	rt.raise = mod.NewFunc("pyr_raise", lltypes.Void, param("exc", obj))

	rt.ipow = mod.NewFunc("pyr_ipow", lltypes.I64, param("base", lltypes.I64), param("exp", lltypes.I64))
	rt.cdiv = mod.NewFunc("pyr_cdiv", c128, param("lhs", c128), param("rhs", c128))

	rt.powF64 = mod.NewFunc("llvm.pow.f64", lltypes.Double, param("x", lltypes.Double), param("y", lltypes.Double))
	rt.fabsF64 = mod.NewFunc("llvm.fabs.f64", lltypes.Double, param("x", lltypes.Double))
	rt.floorF64 = mod.NewFunc("llvm.floor.f64", lltypes.Double, param("x", lltypes.Double))

	return rt
}
