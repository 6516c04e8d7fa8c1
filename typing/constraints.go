package typing

import (
	"fmt"

	"pyrite/bytecode"
	"pyrite/ir"
	"pyrite/report"
	"pyrite/types"
)

// typeExpr computes the type an expression contributes under the current
// type map.  It returns nil when an operand is not yet determined; genuinely
// untypeable expressions raise a fault.
func (inf *Inferrer) typeExpr(e ir.Expr, loc *report.InstLoc) types.Type {
	switch v := e.(type) {
	case *ir.Const:
		return constType(v.Value)
	case *ir.Arg:
		if v.Index >= len(inf.args) {
			report.ReportICE("argument index %d out of range for `%s`", v.Index, inf.fir.Name)
		}
		return inf.args[v.Index]
	case *ir.Global:
		return inf.reg.GlobalType(v.Name)
	case *ir.FreeVar:
		return constType(v.Value)
	case *ir.BinOp:
		return inf.typeBinOp(v, loc)
	case *ir.UnaryOp:
		return inf.typeUnaryOp(v, loc)
	case *ir.Call:
		return inf.typeCall(v, loc)
	case *ir.GetAttr:
		return inf.typeGetAttr(v, loc)
	case *ir.GetItem:
		return inf.typeGetItem(v, loc)
	case *ir.BuildTuple:
		items := make(types.Tuple, len(v.Items))
		for i, it := range v.Items {
			t := inf.lookup(it)
			if t == nil {
				return nil
			}
			items[i] = t
		}
		return items
	case *ir.BuildList:
		return inf.typeBuildList(v, loc)
	case *ir.BuildMap:
		// Container implementations are external collaborators; maps stay
		// dynamic.
		return types.Dynamic
	case *ir.GetIter:
		return inf.typeGetIter(v, loc)
	case *ir.IterNext:
		t := inf.lookup(v.Value)
		switch it := t.(type) {
		case nil:
			return nil
		case *types.Iter:
			return types.Tuple{it.Elem, types.Bool}
		default:
			// Dynamic iterators still yield the structural pair so the
			// for-each expansion types uniformly.
			if types.IsDynamic(t) {
				return types.Tuple{types.Dynamic, types.Bool}
			}
			report.ReportICE("iternext over non-iterator type %s", t.Repr())
			return nil
		}
	case *ir.PairFirst:
		t := inf.lookup(v.Value)
		switch pt := t.(type) {
		case nil:
			return nil
		case types.Tuple:
			return pt[0]
		default:
			if types.IsDynamic(t) {
				return types.Dynamic
			}
			report.ReportICE("pair_first over non-pair type %s", t.Repr())
			return nil
		}
	case *ir.PairSecond:
		t := inf.lookup(v.Value)
		switch pt := t.(type) {
		case nil:
			return nil
		case types.Tuple:
			return pt[1]
		default:
			if types.IsDynamic(t) {
				return types.Dynamic
			}
			report.ReportICE("pair_second over non-pair type %s", t.Repr())
			return nil
		}
	case *ir.Use:
		return inf.lookup(v.Value)
	case *ir.Coerce:
		// Coerce targets are retyped after the fixed point; during
		// propagation they pass their operand through.
		return inf.lookup(v.Value)
	default:
		report.ReportICE("cannot type expression %s", e.Repr())
		return nil
	}
}

func constType(c bytecode.Const) types.Type {
	switch c.Kind {
	case bytecode.ConstNone:
		return types.None
	case bytecode.ConstBool:
		return types.Bool
	case bytecode.ConstInt:
		return types.Int64
	case bytecode.ConstFloat:
		return types.Float64
	case bytecode.ConstComplex:
		return types.Complex128
	default:
		return types.Str
	}
}

// typeBinOp applies the binary operator constraint: the registry's best
// overload if one matches, otherwise the intrinsic numeric promotion rules.
func (inf *Inferrer) typeBinOp(e *ir.BinOp, loc *report.InstLoc) types.Type {
	lhs, rhs := inf.lookup(e.Lhs), inf.lookup(e.Rhs)
	if lhs == nil || rhs == nil {
		return nil
	}

	if types.IsDynamic(lhs) || types.IsDynamic(rhs) {
		return types.Dynamic
	}

	// User-registered operator overloads take precedence.
	if cands := inf.reg.Candidates(OperKey(e.Op), 2); len(cands) > 0 {
		best, ambiguous := ResolveOverload(cands, []types.Type{lhs, rhs})
		if ambiguous {
			panic(report.RaiseFault(
				report.FaultAmbiguous, loc, fmtTypes(lhs, rhs),
				"operator `%s` has multiple equally good overloads", e.Op,
			))
		}
		if best != nil {
			return best.Return
		}
	}

	common := types.Promote(lhs, rhs)
	if common == nil {
		panic(report.RaiseFault(
			report.FaultUnpromotable, loc, fmtTypes(lhs, rhs),
			"unsupported operand types for `%s`", e.Op,
		))
	}

	if e.Op.IsCompare() {
		return types.Bool
	}

	sc, isScalar := common.(types.Scalar)

	switch e.Op {
	case ir.OpDiv:
		// True division always yields a float.
		if isScalar && sc.Kind <= types.KindInt {
			return types.Float64
		}
		return common
	case ir.OpLShift, ir.OpRShift, ir.OpBitAnd, ir.OpBitOr, ir.OpBitXor:
		if !isScalar || sc.Kind > types.KindInt {
			panic(report.RaiseFault(
				report.FaultUnpromotable, loc, fmtTypes(lhs, rhs),
				"bitwise operator `%s` requires integer operands", e.Op,
			))
		}
		return common
	default:
		return common
	}
}

func (inf *Inferrer) typeUnaryOp(e *ir.UnaryOp, loc *report.InstLoc) types.Type {
	operand := inf.lookup(e.Operand)
	if operand == nil {
		return nil
	}
	if types.IsDynamic(operand) {
		return types.Dynamic
	}

	sc, isScalar := operand.(types.Scalar)

	switch e.Op {
	case ir.OpNot:
		return types.Bool
	case ir.OpInvert:
		if !isScalar || sc.Kind > types.KindInt {
			panic(report.RaiseFault(
				report.FaultUnpromotable, loc, fmtTypes(operand),
				"operator `~` requires an integer operand",
			))
		}
		if sc.Kind == types.KindBool {
			return types.Int64
		}
		return operand
	default: // OpNeg, OpPos
		if !isScalar {
			if _, ok := operand.(*types.Array); ok {
				return operand
			}
			panic(report.RaiseFault(
				report.FaultUnpromotable, loc, fmtTypes(operand),
				"operator `%s` requires a numeric operand", e.Op,
			))
		}
		if sc.Kind == types.KindBool {
			return types.Int64
		}
		return operand
	}
}

func (inf *Inferrer) typeCall(e *ir.Call, loc *report.InstLoc) types.Type {
	fn := inf.lookup(e.Func)
	if fn == nil {
		return nil
	}

	args := make([]types.Type, len(e.Args))
	for i, a := range e.Args {
		if args[i] = inf.lookup(a); args[i] == nil {
			return nil
		}
	}

	switch ft := fn.(type) {
	case *types.Builtin:
		return inf.typeBuiltinCall(ft.Name, args, loc)
	case *types.Func:
		if len(ft.Params) != len(args) {
			panic(report.RaiseFault(
				report.FaultUnsupported, loc, fmtTypes(args...),
				"call expects %d arguments, got %d", len(ft.Params), len(args),
			))
		}
		for i, arg := range args {
			if types.Rate(arg, ft.Params[i]) == types.Disallowed {
				panic(report.RaiseFault(
					report.FaultUnpromotable, loc, fmtTypes(arg, ft.Params[i]),
					"argument %d cannot convert to the parameter type", i,
				))
			}
		}
		return ft.Return
	default:
		if types.IsDynamic(fn) {
			return types.Dynamic
		}
		panic(report.RaiseFault(
			report.FaultUnsupported, loc, fmtTypes(fn),
			"value of type %s is not callable", fn.Repr(),
		))
	}
}

func (inf *Inferrer) typeBuiltinCall(name string, args []types.Type, loc *report.InstLoc) types.Type {
	// len is structural over containers and cannot be expressed as concrete
	// registry signatures.
	if name == "len" && len(args) == 1 {
		switch args[0].(type) {
		case *types.Array, types.Tuple:
			return types.Int64
		default:
			if args[0] == types.Str || types.IsDynamic(args[0]) {
				return types.Int64
			}
		}
	}

	cands := inf.reg.Candidates(name, len(args))
	if len(cands) == 0 {
		panic(report.RaiseFault(
			report.FaultUnsupported, loc, fmtTypes(args...),
			"no overload of `%s` accepts %d arguments", name, len(args),
		))
	}

	best, ambiguous := ResolveOverload(cands, args)
	if ambiguous {
		panic(report.RaiseFault(
			report.FaultAmbiguous, loc, fmtTypes(args...),
			"call to `%s` has multiple equally good overloads", name,
		))
	}
	if best == nil {
		panic(report.RaiseFault(
			report.FaultUnpromotable, loc, fmtTypes(args...),
			"no overload of `%s` matches the argument types", name,
		))
	}

	return best.Return
}

func (inf *Inferrer) typeGetAttr(e *ir.GetAttr, loc *report.InstLoc) types.Type {
	value := inf.lookup(e.Value)
	if value == nil {
		return nil
	}

	switch vt := value.(type) {
	case *types.Record:
		idx, ok := vt.FieldsByName[e.Attr]
		if !ok {
			panic(report.RaiseFault(
				report.FaultUnsupported, loc, fmtTypes(value),
				"record `%s` has no field `%s`", vt.Name, e.Attr,
			))
		}
		return vt.Fields[idx].Type
	case *types.Array:
		switch e.Attr {
		case "ndim", "size":
			return types.Int64
		case "shape":
			shape := make(types.Tuple, vt.NDim)
			for i := range shape {
				shape[i] = types.Int64
			}
			return shape
		}
	}

	if types.IsDynamic(value) {
		return types.Dynamic
	}

	panic(report.RaiseFault(
		report.FaultUnsupported, loc, fmtTypes(value),
		"type %s has no attribute `%s`", value.Repr(), e.Attr,
	))
}

func (inf *Inferrer) typeGetItem(e *ir.GetItem, loc *report.InstLoc) types.Type {
	value, index := inf.lookup(e.Value), inf.lookup(e.Index)
	if value == nil || index == nil {
		return nil
	}

	if types.IsDynamic(value) {
		return types.Dynamic
	}

	switch vt := value.(type) {
	case *types.Array:
		if isIntScalar(index) && vt.NDim == 1 {
			return vt.Elem
		}
		if it, ok := index.(types.Tuple); ok && len(it) == vt.NDim {
			for _, t := range it {
				if !isIntScalar(t) {
					panic(report.RaiseFault(
						report.FaultUnsupported, loc, fmtTypes(value, index),
						"array indices must be integers",
					))
				}
			}
			return vt.Elem
		}
	case types.Tuple:
		// Without a constant index the element types must agree.
		if len(vt) > 0 {
			elem := vt[0]
			uniform := true
			for _, t := range vt[1:] {
				if !types.Equals(elem, t) {
					uniform = false
					break
				}
			}
			if uniform && isIntScalar(index) {
				return elem
			}
		}
	default:
		if value == types.Str && isIntScalar(index) {
			return types.Str
		}
	}

	panic(report.RaiseFault(
		report.FaultUnsupported, loc, fmtTypes(value, index),
		"type %s does not support indexing by %s", value.Repr(), index.Repr(),
	))
}

func (inf *Inferrer) typeBuildList(e *ir.BuildList, loc *report.InstLoc) types.Type {
	if len(e.Items) == 0 {
		return types.Dynamic
	}

	var elem types.Type
	for _, it := range e.Items {
		t := inf.lookup(it)
		if t == nil {
			return nil
		}
		if elem == nil {
			elem = t
			continue
		}

		unified := types.Promote(elem, t)
		if unified == nil {
			panic(report.RaiseFault(
				report.FaultUnpromotable, loc, fmtTypes(elem, t),
				"list elements have no common type",
			))
		}
		elem = unified
	}

	return &types.Array{Elem: elem, NDim: 1, Layout: types.LayoutC}
}

func (inf *Inferrer) typeGetIter(e *ir.GetIter, loc *report.InstLoc) types.Type {
	value := inf.lookup(e.Value)
	if value == nil {
		return nil
	}

	switch vt := value.(type) {
	case *types.Array:
		if vt.NDim == 1 {
			return &types.Iter{Elem: vt.Elem}
		}
		return &types.Iter{Elem: &types.Array{Elem: vt.Elem, NDim: vt.NDim - 1, Layout: vt.Layout}}
	case *types.Iter:
		return vt
	}

	if value == types.Range {
		return &types.Iter{Elem: types.Int64}
	}
	if types.IsDynamic(value) {
		return types.Dynamic
	}

	panic(report.RaiseFault(
		report.FaultUnsupported, loc, fmtTypes(value),
		"type %s is not iterable", value.Repr(),
	))
}

func isIntScalar(t types.Type) bool {
	sc, ok := t.(types.Scalar)
	return ok && (sc.Kind == types.KindInt || sc.Kind == types.KindBool)
}

// -----------------------------------------------------------------------------

// insertCoercions walks every statement after the fixed point and inserts an
// explicit conversion wherever the statement's required operand type differs
// from the operand's inferred type.
func (inf *Inferrer) insertCoercions() {
	for _, off := range inf.fir.BlockOrder() {
		block := inf.fir.Blocks[off]

		var body []ir.Stmt
		for _, stmt := range block.Body {
			if asg, ok := stmt.(*ir.Assign); ok {
				body = inf.coerceAssign(body, asg)
			}
			body = append(body, stmt)
		}
		block.Body = body
	}
}

// coerceAssign inserts coercions required by one assignment's expression,
// appending them to body and rewriting the expression's operands in place.
func (inf *Inferrer) coerceAssign(body []ir.Stmt, asg *ir.Assign) []ir.Stmt {
	need := func(v *ir.Var, want types.Type) *ir.Var {
		have := inf.typemap[v.Name]
		if want == nil || types.Equals(have, want) {
			return v
		}

		inf.coerceCount++
		tmp := &ir.Var{Name: fmt.Sprintf("$coerce.%d", inf.coerceCount), Loc: asg.Loc}
		conv := &ir.Coerce{Value: v}
		body = append(body, &ir.Assign{Target: tmp, Value: conv, Loc: asg.Loc})
		inf.typemap[tmp.Name] = want
		inf.fir.Definitions[tmp.Name] = append(inf.fir.Definitions[tmp.Name], conv)
		return tmp
	}

	switch e := asg.Value.(type) {
	case *ir.BinOp:
		lhs, rhs := inf.typemap[e.Lhs.Name], inf.typemap[e.Rhs.Name]
		if types.IsDynamic(lhs) || types.IsDynamic(rhs) {
			break
		}
		common := types.Promote(lhs, rhs)
		if common == nil || types.IsDynamic(common) {
			break
		}
		if _, ok := common.(types.Scalar); !ok {
			break
		}
		e.Lhs = need(e.Lhs, common)
		e.Rhs = need(e.Rhs, common)
	case *ir.Call:
		fn := inf.typemap[e.Func.Name]
		var params []types.Type
		switch ft := fn.(type) {
		case *types.Func:
			params = ft.Params
		case *types.Builtin:
			args := make([]types.Type, len(e.Args))
			for i, a := range e.Args {
				args[i] = inf.typemap[a.Name]
			}
			if cands := inf.reg.Candidates(ft.Name, len(args)); len(cands) > 0 {
				if best, _ := ResolveOverload(cands, args); best != nil {
					params = best.Params
				}
			}
		}
		for i := range e.Args {
			if params != nil && i < len(params) {
				e.Args[i] = need(e.Args[i], params[i])
			}
		}
	}

	return inf.coerceTarget(body, asg)
}

// coerceTarget retargets an assignment whose variable widened at the fixed
// point: the value computes at its natural type into a fresh temporary, and
// the variable receives the conversion.  Translator-inserted conversions are
// already retargeted by construction.
func (inf *Inferrer) coerceTarget(body []ir.Stmt, asg *ir.Assign) []ir.Stmt {
	if _, ok := asg.Value.(*ir.Coerce); ok {
		return body
	}

	want := inf.typemap[asg.Target.Name]
	natural := inf.typeExpr(asg.Value, asg.Loc)
	if want == nil || natural == nil || types.Equals(natural, want) {
		return body
	}

	inf.coerceCount++
	tmp := &ir.Var{Name: fmt.Sprintf("$coerce.%d", inf.coerceCount), Loc: asg.Loc}
	conv := &ir.Coerce{Value: tmp}

	// The definition table keeps tracking the variable's defining expression.
	defs := inf.fir.Definitions[asg.Target.Name]
	for i, d := range defs {
		if d == asg.Value {
			defs[i] = conv
			break
		}
	}

	inf.typemap[tmp.Name] = natural
	inf.fir.Definitions[tmp.Name] = append(inf.fir.Definitions[tmp.Name], asg.Value)
	body = append(body, &ir.Assign{Target: tmp, Value: asg.Value, Loc: asg.Loc})
	asg.Value = conv

	return body
}
