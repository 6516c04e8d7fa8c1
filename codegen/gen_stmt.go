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

func (g *Generator) lowerStmt(stmt ir.Stmt) {
	g.siteSeq = 0

	switch s := stmt.(type) {
	case *ir.Assign:
		g.lowerAssign(s)
	case *ir.SetItem:
		g.lowerSetItem(s)
	case *ir.DelItem:
		g.lowerDelItem(s)
	case *ir.Branch:
		cond := g.truthValue(g.useVar(s.Cond), g.typeOf(s.Cond))
		g.block.NewCondBr(cond, g.blocks[s.True], g.blocks[s.False])
	case *ir.Jump:
		g.block.NewBr(g.blocks[s.Target])
	case *ir.Return:
		g.lowerReturn(s)
	case *ir.Raise:
		g.lowerRaise(s)
	case *ir.EnterScope:
		// Guarded regions are a translation-time structure; legalization has
		// already proven them single-entry single-exit.
	default:
		report.ReportICE("cannot lower statement %s", stmt.Repr())
	}
}

func (g *Generator) lowerAssign(s *ir.Assign) {
	t := g.typeOf(s.Target)

	// Callable values have no native representation; track which global the
	// variable aliases so call sites can bind it.
	if isCallableType(t) {
		switch v := s.Value.(type) {
		case *ir.Global:
			g.callables[s.Target.Name] = v.Name
		case *ir.Use:
			g.callables[s.Target.Name] = g.callables[v.Value.Name]
		default:
			report.ReportICE("callable produced by %s", s.Value.Repr())
		}
		return
	}

	val := g.lowerExpr(s.Value, t, s)

	// Phi-eligible targets record the incoming value for the successor's
	// merge instead of storing; the merge itself lives in the target block.
	if g.phiEligible(s.Target.Name) {
		if g.incoming[s.Target.Name] == nil {
			g.incoming[s.Target.Name] = make(map[int]llvalue.Value)
		}
		g.incoming[s.Target.Name][g.firOffset] = val
		return
	}

	slot, ok := g.slots[s.Target.Name]
	if !ok {
		report.ReportICE("assignment to unslotted variable `%s`", s.Target.Name)
	}

	if managed(t) {
		// Array slots hold typed descriptor pointers; refcount traffic goes
		// through the object view of both the new and the previous holder.
		g.block.NewCall(g.rt.incref, g.asObject(val, t))
		old := g.block.NewLoad(g.convType(t), slot)
		g.block.NewCall(g.rt.decref, g.asObject(old, t))
		g.block.NewStore(val, slot)
		return
	}

	g.block.NewStore(val, slot)
}

func (g *Generator) lowerSetItem(s *ir.SetItem) {
	t := g.typeOf(s.Target)

	if at, ok := t.(*types.Array); ok {
		elemPtr := g.arrayElemPtr(s.Target, at, s.Index)
		g.block.NewStore(g.useVar(s.Value), elemPtr)
		return
	}

	obj := g.dynValue(s.Target, s)
	index := g.dynValue(s.Index, s)
	value := g.dynValue(s.Value, s)
	g.checkStatus(g.block.NewCall(g.rt.setitem, obj, index, value))
}

func (g *Generator) lowerDelItem(s *ir.DelItem) {
	obj := g.dynValue(s.Target, s)
	index := g.dynValue(s.Index, s)
	g.checkStatus(g.block.NewCall(g.rt.delitem, obj, index))
}

func (g *Generator) lowerReturn(s *ir.Return) {
	if g.retType != types.None {
		val := g.useVar(s.Value)
		if managed(g.retType) {
			// Ownership of the result transfers to the caller.
			g.block.NewCall(g.rt.incref, g.asObject(val, g.retType))
		}
		g.block.NewStore(val, g.retSlot)
	}

	g.block.NewBr(g.cleanup)
}

func (g *Generator) lowerRaise(s *ir.Raise) {
	exc := g.dynValue(s.Exc, s)
	g.block.NewCall(g.rt.incref, exc)
	g.block.NewStore(exc, g.excSlot)
	g.block.NewBr(g.errblk)
}

// truthValue converts a value to an i1 condition.
func (g *Generator) truthValue(v llvalue.Value, t types.Type) llvalue.Value {
	if sc, ok := t.(types.Scalar); ok {
		switch sc.Kind {
		case types.KindBool:
			return v
		case types.KindInt:
			return g.block.NewICmp(enum.IPredNE, v, constant.NewInt(g.convScalarType(sc).(*lltypes.IntType), 0))
		case types.KindFloat:
			return g.block.NewFCmp(enum.FPredONE, v, constant.NewFloat(g.convScalarType(sc).(*lltypes.FloatType), 0))
		default:
			re := g.block.NewExtractValue(v, 0)
			im := g.block.NewExtractValue(v, 1)
			zero := constant.NewFloat(re.Type().(*lltypes.FloatType), 0)
			nzRe := g.block.NewFCmp(enum.FPredONE, re, zero)
			nzIm := g.block.NewFCmp(enum.FPredONE, im, zero)
			return g.block.NewOr(nzRe, nzIm)
		}
	}

	if managed(t) {
		out := g.entryAlloca(lltypes.I1)
		g.checkStatus(g.block.NewCall(g.rt.truth, g.asObject(v, t), out))
		return g.block.NewLoad(lltypes.I1, out)
	}

	report.ReportICE("type %s has no truth value", t.Repr())
	return nil
}

// dynValue loads a variable and boxes it into a runtime object handle.
func (g *Generator) dynValue(v *ir.Var, site interface{}) llvalue.Value {
	return g.boxValue(g.useVar(v), g.typeOf(v), site)
}
