package typing

import (
	"pyrite/ir"
	"pyrite/report"
	"pyrite/types"
)

// maxPasses bounds the fixed-point iteration.  The promotion lattice is
// finite, so hitting the bound means the inferrer itself is broken.
const maxPasses = 100

// Result is the outcome of type inference over a function.
type Result struct {
	// TypeMap maps every variable name to its inferred type.
	TypeMap map[string]types.Type

	// Return is the unified type of all return statements.
	Return types.Type
}

// Inferrer propagates type constraints over a function IR to a fixed point,
// resolves overloads, and inserts coercions.  One inferrer per function.
type Inferrer struct {
	fir *ir.FunctionIR
	reg *Registry

	// args seeds the parameter types from the call signature.
	args []types.Type

	// declaredRet is the optional user-declared return type (nil if absent).
	declaredRet types.Type

	typemap map[string]types.Type
	retJoin types.Type

	coerceCount int
}

// NewInferrer creates an inferrer for the given function.  declaredLocals
// optionally seeds user-declared local variable types.
func NewInferrer(fir *ir.FunctionIR, reg *Registry, args []types.Type, declaredLocals map[string]types.Type, declaredRet types.Type) *Inferrer {
	typemap := make(map[string]types.Type)
	for name, typ := range declaredLocals {
		typemap[name] = typ
	}

	return &Inferrer{
		fir:         fir,
		reg:         reg,
		args:        args,
		declaredRet: declaredRet,
		typemap:     typemap,
	}
}

// Infer runs constraint propagation to a fixed point and returns the final
// type map and unified return type.  The IR is mutated by the coercion pass:
// conversion nodes are inserted wherever a statement's required type differs
// from its operand's inferred type.
func (inf *Inferrer) Infer() (res *Result, err error) {
	defer report.CatchErrors(&err)

	for pass := 0; ; pass++ {
		if pass == maxPasses {
			report.ReportICE("type inference did not converge on `%s`", inf.fir.Name)
		}

		if !inf.propagate() {
			break
		}
	}

	inf.checkBound()
	inf.unifyReturns()
	inf.insertCoercions()

	return &Result{TypeMap: inf.typemap, Return: inf.retJoin}, nil
}

// propagate runs one pass over every statement, returning whether any
// variable type changed.
func (inf *Inferrer) propagate() bool {
	changed := false

	for _, off := range inf.fir.BlockOrder() {
		for _, stmt := range inf.fir.Blocks[off].Body {
			asg, ok := stmt.(*ir.Assign)
			if !ok {
				continue
			}

			typ := inf.typeExpr(asg.Value, asg.Loc)
			if typ == nil {
				// Some operand is not yet typed; a later pass resolves it.
				continue
			}

			if inf.bind(asg.Target.Name, typ, asg.Loc) {
				changed = true
			}
		}
	}

	return changed
}

// bind unifies a new definition type into the variable's current type.
// Unification is monotonic: the bound type only ever widens.
func (inf *Inferrer) bind(name string, typ types.Type, loc *report.InstLoc) bool {
	old, ok := inf.typemap[name]
	if !ok {
		inf.typemap[name] = typ
		return true
	}
	if types.Equals(old, typ) {
		return false
	}

	unified := types.Promote(old, typ)
	if unified == nil {
		panic(report.RaiseFault(
			report.FaultUnpromotable, loc,
			[]string{old.Repr(), typ.Repr()},
			"conflicting types for variable `%s`", name,
		))
	}
	if types.Equals(unified, old) {
		return false
	}

	inf.typemap[name] = unified
	return true
}

// lookup returns the current type of a variable, or nil if undetermined.
func (inf *Inferrer) lookup(v *ir.Var) types.Type {
	return inf.typemap[v.Name]
}

// checkBound verifies every read has a live, typed definition.
func (inf *Inferrer) checkBound() {
	check := func(v *ir.Var, loc *report.InstLoc) {
		if v == nil {
			return
		}
		if _, ok := inf.typemap[v.Name]; ok {
			return
		}

		if len(inf.fir.Definitions[v.Name]) == 0 {
			panic(report.RaiseFault(
				report.FaultUnbound, loc, nil,
				"variable `%s` read without a live definition", v.Name,
			))
		}

		panic(report.RaiseFault(
			report.FaultUnsupported, loc, nil,
			"cannot determine a static type for `%s`", v.Name,
		))
	}

	for _, off := range inf.fir.BlockOrder() {
		for _, stmt := range inf.fir.Blocks[off].Body {
			switch s := stmt.(type) {
			case *ir.Assign:
				for _, v := range exprOperands(s.Value) {
					check(v, s.Loc)
				}
				check(s.Target, s.Loc)
			case *ir.SetItem:
				check(s.Target, s.Loc)
				check(s.Index, s.Loc)
				check(s.Value, s.Loc)
			case *ir.DelItem:
				check(s.Target, s.Loc)
				check(s.Index, s.Loc)
			case *ir.Branch:
				check(s.Cond, s.Loc)
			case *ir.Return:
				check(s.Value, s.Loc)
			case *ir.Raise:
				check(s.Exc, s.Loc)
			}
		}
	}
}

// unifyReturns joins all return statement types into one return type.
func (inf *Inferrer) unifyReturns() {
	join := inf.declaredRet

	for _, off := range inf.fir.BlockOrder() {
		ret, ok := inf.fir.Blocks[off].Terminator().(*ir.Return)
		if !ok {
			continue
		}

		typ := inf.typemap[ret.Value.Name]
		if join == nil {
			join = typ
			continue
		}

		unified := types.Promote(join, typ)
		if unified == nil {
			panic(report.RaiseFault(
				report.FaultUnpromotable, ret.Loc,
				[]string{join.Repr(), typ.Repr()},
				"return statements have no common type",
			))
		}
		join = unified
	}

	if join == nil {
		join = types.None
	}
	inf.retJoin = join

	// The translator wraps every returned value in a Coerce; retargeting the
	// coerce temporaries to the join type makes all exits agree.
	for _, off := range inf.fir.BlockOrder() {
		for _, stmt := range inf.fir.Blocks[off].Body {
			if asg, ok := stmt.(*ir.Assign); ok {
				if _, ok := asg.Value.(*ir.Coerce); ok {
					inf.typemap[asg.Target.Name] = join
				}
			}
		}
	}
}

// exprOperands returns the variable operands of an expression.
func exprOperands(e ir.Expr) []*ir.Var {
	switch v := e.(type) {
	case *ir.BinOp:
		return []*ir.Var{v.Lhs, v.Rhs}
	case *ir.UnaryOp:
		return []*ir.Var{v.Operand}
	case *ir.Call:
		return append([]*ir.Var{v.Func}, v.Args...)
	case *ir.GetAttr:
		return []*ir.Var{v.Value}
	case *ir.GetItem:
		return []*ir.Var{v.Value, v.Index}
	case *ir.BuildTuple:
		return v.Items
	case *ir.BuildList:
		return v.Items
	case *ir.BuildMap:
		return append(append([]*ir.Var{}, v.Keys...), v.Vals...)
	case *ir.GetIter:
		return []*ir.Var{v.Value}
	case *ir.IterNext:
		return []*ir.Var{v.Value}
	case *ir.PairFirst:
		return []*ir.Var{v.Value}
	case *ir.PairSecond:
		return []*ir.Var{v.Value}
	case *ir.Use:
		return []*ir.Var{v.Value}
	case *ir.Coerce:
		return []*ir.Var{v.Value}
	default:
		// Const, Global, FreeVar, Arg have no variable operands.
		return nil
	}
}

// fmtTypes renders a list of types for fault reporting.
func fmtTypes(ts ...types.Type) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Repr()
	}

	return out
}
