package codegen

import (
	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
	llvalue "github.com/llir/llvm/ir/value"

	"pyrite/types"
)

// generateWrapper emits the dynamic-call wrapper around a native entry point:
//
//	%pyr.obj* @name.wrapper(%pyr.obj* args, %pyr.obj* kwargs)
//
// It unboxes the positional argument tuple, invokes the native routine, and
// boxes the result.  On any fault it raises through the runtime and returns
// null.
func (g *Generator) generateWrapper(entry *llir.Func) *llir.Func {
	wfn := g.mod.NewFunc(g.fir.Name+".wrapper", g.rt.objPtr,
		llir.NewParam("args", g.rt.objPtr),
		llir.NewParam("kwargs", g.rt.objPtr),
	)

	// Re-point the shared block context at the wrapper so the unbox and box
	// helpers emit here; the wrapper has its own fault tail.
	savedFn, savedEntry, savedBlock, savedErr := g.fn, g.entry, g.block, g.errblk
	defer func() {
		g.fn, g.entry, g.block, g.errblk = savedFn, savedEntry, savedBlock, savedErr
	}()

	g.fn = wfn
	g.entry = wfn.NewBlock("entry")
	g.block = g.entry
	g.errblk = wfn.NewBlock("fail")

	retSlot := g.entry.NewAlloca(g.convType(g.retType))
	excSlot := g.entry.NewAlloca(g.rt.objPtr)
	g.entry.NewStore(constant.NewNull(g.rt.objPtr), excSlot)

	// Arguments come out of the tuple borrowed; unboxed natives copy the
	// payload, so nothing needs releasing on the fault path.
	natives := make([]llvalue.Value, len(g.argTypes))
	for i, at := range g.argTypes {
		obj := g.block.NewCall(g.rt.tupleGetItem, wfn.Params[0], constant.NewInt(lltypes.I64, int64(i)))
		natives[i] = g.unboxValue(obj, at)
	}

	callArgs := append([]llvalue.Value{retSlot, excSlot}, natives...)
	status := g.block.NewCall(entry, callArgs...)
	ok := g.block.NewICmp(enum.IPredEQ, status, constant.NewInt(lltypes.I32, 0))
	done := g.appendBlock()
	g.block.NewCondBr(ok, done, g.errblk)
	g.block = done

	var result llvalue.Value
	if g.retType == types.None {
		result = g.block.NewCall(g.rt.noneObj)
	} else {
		val := g.block.NewLoad(g.convType(g.retType), retSlot)
		if managed(g.retType) {
			result = g.asObject(val, g.retType)
		} else {
			result = g.boxValue(val, g.retType, wfn)
		}
	}
	g.block.NewRet(result)

	// A null exception object means the runtime already holds the pending
	// fault (unbox failures record it themselves).
	exc := g.errblk.NewLoad(g.rt.objPtr, excSlot)
	g.errblk.NewCall(g.rt.raise, exc)
	g.errblk.NewRet(constant.NewNull(g.rt.objPtr))

	return wfn
}
