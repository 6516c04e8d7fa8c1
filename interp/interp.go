package interp

import (
	"fmt"
	"math"

	"pyrite/bytecode"
	"pyrite/ir"
	"pyrite/report"
	"pyrite/types"
)

// Value is a runtime value of the reference evaluator: bool, int64, float64,
// complex128, string, *Tuple, *List, *Range, or *Iter.  Integers are carried
// at full width and wrapped to their declared width on every typed write.
type Value interface{}

// Tuple is a fixed-length value sequence.
type Tuple struct {
	Items []Value
}

// List is a growable value sequence.
type List struct {
	Items []Value
}

// Range mirrors the builtin range object.
type Range struct {
	Start, Stop, Step int64
}

// Iter is iteration state over a range, list, or tuple.
type Iter struct {
	next func() (Value, bool)
}

// -----------------------------------------------------------------------------

// Machine evaluates a typed function IR directly.  It exists as an executable
// oracle for the lowered code and as a debugging aid: it honours the inferred
// type map, including wrap-around integer arithmetic at declared widths, but
// performs no reference counting.
type Machine struct {
	fir     *ir.FunctionIR
	typemap map[string]types.Type

	// Funcs resolves typed calls to other evaluated functions by global name.
	Funcs map[string]*Machine

	vars map[string]Value
}

// New creates a machine for one typed function.
func New(fir *ir.FunctionIR, typemap map[string]types.Type) *Machine {
	return &Machine{
		fir:     fir,
		typemap: typemap,
		Funcs:   make(map[string]*Machine),
	}
}

// Run evaluates the function on the given argument values and returns the
// value of the taken return statement.
func (m *Machine) Run(args ...Value) (result Value, err error) {
	defer report.CatchErrors(&err)

	if len(args) != len(m.fir.ArgNames) {
		return nil, fmt.Errorf("function `%s` takes %d arguments, got %d",
			m.fir.Name, len(m.fir.ArgNames), len(args))
	}

	m.vars = make(map[string]Value)
	for i, name := range m.fir.ArgNames {
		m.vars[name] = m.convert(args[i], m.typemap[name])
	}

	offset := 0
	for {
		next, done, ret := m.runBlock(offset)
		if done {
			return ret, nil
		}
		offset = next
	}
}

// runBlock executes one block and returns where control goes next.
func (m *Machine) runBlock(offset int) (next int, done bool, ret Value) {
	block, ok := m.fir.Blocks[offset]
	if !ok {
		report.ReportICE("evaluation reached missing block %d", offset)
	}

	for _, stmt := range block.Body {
		switch s := stmt.(type) {
		case *ir.Assign:
			m.vars[s.Target.Name] = m.convert(m.eval(s.Value), m.typemap[s.Target.Name])
		case *ir.SetItem:
			m.setItem(s)
		case *ir.DelItem:
			report.ReportICE("reference evaluation does not support delitem")
		case *ir.Branch:
			if m.truth(m.load(s.Cond)) {
				return s.True, false, nil
			}
			return s.False, false, nil
		case *ir.Jump:
			return s.Target, false, nil
		case *ir.Return:
			return 0, true, m.load(s.Value)
		case *ir.Raise:
			panic(fmt.Errorf("evaluated function raised: %v", m.load(s.Exc)))
		case *ir.EnterScope:
			// Structural only.
		default:
			report.ReportICE("cannot evaluate statement %s", stmt.Repr())
		}
	}

	report.ReportICE("block %d fell off its end", offset)
	return 0, false, nil
}

func (m *Machine) setItem(s *ir.SetItem) {
	target := m.load(s.Target)
	index := asInt(m.load(s.Index))

	list, ok := target.(*List)
	if !ok {
		report.ReportICE("reference evaluation cannot index assign %T", target)
	}
	if index < 0 {
		index += int64(len(list.Items))
	}
	list.Items[index] = m.load(s.Value)
}

// -----------------------------------------------------------------------------

func (m *Machine) eval(e ir.Expr) Value {
	switch v := e.(type) {
	case *ir.Use:
		return m.load(v.Value)
	case *ir.Const:
		return constValue(v.Value)
	case *ir.FreeVar:
		return constValue(v.Value)
	case *ir.Arg:
		return m.vars[m.fir.ArgNames[v.Index]]
	case *ir.Global:
		return globalRef(v.Name)
	case *ir.BinOp:
		return m.evalBinOp(v)
	case *ir.UnaryOp:
		return m.evalUnaryOp(v)
	case *ir.Call:
		return m.evalCall(v)
	case *ir.GetAttr:
		return m.evalGetAttr(v)
	case *ir.GetItem:
		return m.evalGetItem(v)
	case *ir.BuildTuple:
		return &Tuple{Items: m.loadAll(v.Items)}
	case *ir.BuildList:
		return &List{Items: m.loadAll(v.Items)}
	case *ir.GetIter:
		return makeIter(m.load(v.Value))
	case *ir.IterNext:
		it := m.load(v.Value).(*Iter)
		val, ok := it.next()
		if !ok {
			val = int64(0)
		}
		return &Tuple{Items: []Value{val, ok}}
	case *ir.PairFirst:
		return m.load(v.Value).(*Tuple).Items[0]
	case *ir.PairSecond:
		return m.load(v.Value).(*Tuple).Items[1]
	case *ir.Coerce:
		return m.load(v.Value)
	default:
		report.ReportICE("cannot evaluate expression %s", e.Repr())
		return nil
	}
}

func (m *Machine) load(v *ir.Var) Value {
	val, ok := m.vars[v.Name]
	if !ok {
		report.ReportICE("read of unassigned variable `%s`", v.Name)
	}

	return val
}

func (m *Machine) loadAll(vars []*ir.Var) []Value {
	out := make([]Value, len(vars))
	for i, v := range vars {
		out[i] = m.load(v)
	}

	return out
}

// globalRef marks a global by name; only calls consume these.
type globalRef string

func constValue(c bytecode.Const) Value {
	switch c.Kind {
	case bytecode.ConstNone:
		return nil
	case bytecode.ConstBool:
		return c.Bool
	case bytecode.ConstInt:
		return c.Int
	case bytecode.ConstFloat:
		return c.Float
	case bytecode.ConstComplex:
		return c.Cmplx
	default:
		return c.Str
	}
}

// -----------------------------------------------------------------------------

func (m *Machine) evalBinOp(e *ir.BinOp) Value {
	lhs, rhs := m.load(e.Lhs), m.load(e.Rhs)

	if e.Op.IsCompare() {
		return compare(e.Op, lhs, rhs)
	}

	switch l := lhs.(type) {
	case bool:
		return intBinOp(e.Op, boolInt(l), boolInt(asBool(rhs)))
	case int64:
		if e.Op == ir.OpDiv {
			return float64(l) / float64(asInt(rhs))
		}
		return intBinOp(e.Op, l, asInt(rhs))
	case float64:
		return floatBinOp(e.Op, l, rhs.(float64))
	case complex128:
		return complexBinOp(e.Op, l, rhs.(complex128))
	}

	report.ReportICE("cannot apply `%s` to %T", e.Op, lhs)
	return nil
}

func intBinOp(op ir.Operator, l, r int64) Value {
	switch op {
	case ir.OpAdd:
		return l + r
	case ir.OpSub:
		return l - r
	case ir.OpMul:
		return l * r
	case ir.OpFloorDiv:
		return floorDiv(l, r)
	case ir.OpMod:
		return l - floorDiv(l, r)*r
	case ir.OpPow:
		out := int64(1)
		for i := int64(0); i < r; i++ {
			out *= l
		}
		return out
	case ir.OpLShift:
		return l << uint(r)
	case ir.OpRShift:
		return l >> uint(r)
	case ir.OpBitAnd:
		return l & r
	case ir.OpBitOr:
		return l | r
	case ir.OpBitXor:
		return l ^ r
	default:
		report.ReportICE("operator `%s` is not an integer operation", op)
		return nil
	}
}

// floorDiv is the floored quotient: the result rounds toward negative
// infinity, matching the source semantics rather than Go's truncation.
func floorDiv(l, r int64) int64 {
	q := l / r
	if (l%r != 0) && ((l < 0) != (r < 0)) {
		q--
	}

	return q
}

func floatBinOp(op ir.Operator, l, r float64) Value {
	switch op {
	case ir.OpAdd:
		return l + r
	case ir.OpSub:
		return l - r
	case ir.OpMul:
		return l * r
	case ir.OpDiv:
		return l / r
	case ir.OpFloorDiv:
		return floorF(l / r)
	case ir.OpMod:
		rem := l - floorF(l/r)*r
		return rem
	case ir.OpPow:
		return powF(l, r)
	default:
		report.ReportICE("operator `%s` is not a float operation", op)
		return nil
	}
}

func complexBinOp(op ir.Operator, l, r complex128) Value {
	switch op {
	case ir.OpAdd:
		return l + r
	case ir.OpSub:
		return l - r
	case ir.OpMul:
		return l * r
	case ir.OpDiv:
		return l / r
	default:
		report.ReportICE("operator `%s` is not a complex operation", op)
		return nil
	}
}

func compare(op ir.Operator, lhs, rhs Value) bool {
	if lc, ok := lhs.(complex128); ok {
		eq := lc == rhs.(complex128)
		if op == ir.OpEq {
			return eq
		}
		return !eq
	}

	lf, lint := asNumber(lhs)
	rf, rint := asNumber(rhs)

	if lint && rint {
		l, r := asInt(lhs), asInt(rhs)
		switch op {
		case ir.OpEq:
			return l == r
		case ir.OpNe:
			return l != r
		case ir.OpLt:
			return l < r
		case ir.OpLe:
			return l <= r
		case ir.OpGt:
			return l > r
		default:
			return l >= r
		}
	}

	switch op {
	case ir.OpEq:
		return lf == rf
	case ir.OpNe:
		return lf != rf
	case ir.OpLt:
		return lf < rf
	case ir.OpLe:
		return lf <= rf
	case ir.OpGt:
		return lf > rf
	default:
		return lf >= rf
	}
}

func (m *Machine) evalUnaryOp(e *ir.UnaryOp) Value {
	v := m.load(e.Operand)

	switch e.Op {
	case ir.OpNot:
		return !m.truth(v)
	case ir.OpPos:
		if b, ok := v.(bool); ok {
			return boolInt(b)
		}
		return v
	case ir.OpNeg:
		switch n := v.(type) {
		case bool:
			return -boolInt(n)
		case int64:
			return -n
		case float64:
			return -n
		case complex128:
			return -n
		}
	case ir.OpInvert:
		if b, ok := v.(bool); ok {
			return ^boolInt(b)
		}
		return ^v.(int64)
	}

	report.ReportICE("cannot apply unary `%s` to %T", e.Op, v)
	return nil
}

// -----------------------------------------------------------------------------

func (m *Machine) evalCall(e *ir.Call) Value {
	fn := m.load(e.Func)
	args := m.loadAll(e.Args)

	name, ok := fn.(globalRef)
	if !ok {
		report.ReportICE("reference evaluation cannot call %T", fn)
	}

	switch string(name) {
	case "range":
		r := &Range{Step: 1}
		switch len(args) {
		case 1:
			r.Stop = asInt(args[0])
		case 2:
			r.Start, r.Stop = asInt(args[0]), asInt(args[1])
		default:
			r.Start, r.Stop, r.Step = asInt(args[0]), asInt(args[1]), asInt(args[2])
		}
		return r
	case "abs":
		switch n := args[0].(type) {
		case int64:
			if n < 0 {
				return -n
			}
			return n
		case float64:
			return absF(n)
		}
	case "len":
		switch c := args[0].(type) {
		case *Tuple:
			return int64(len(c.Items))
		case *List:
			return int64(len(c.Items))
		case string:
			return int64(len(c))
		}
	}

	sub, ok := m.Funcs[string(name)]
	if !ok {
		report.ReportICE("reference evaluation has no definition of `%s`", name)
	}

	out, err := sub.Run(args...)
	if err != nil {
		panic(err)
	}

	return out
}

func (m *Machine) evalGetAttr(e *ir.GetAttr) Value {
	report.ReportICE("reference evaluation does not support getattr `%s`", e.Attr)
	return nil
}

func (m *Machine) evalGetItem(e *ir.GetItem) Value {
	val := m.load(e.Value)
	index := asInt(m.load(e.Index))

	var items []Value
	switch c := val.(type) {
	case *Tuple:
		items = c.Items
	case *List:
		items = c.Items
	default:
		report.ReportICE("reference evaluation cannot index %T", val)
	}

	if index < 0 {
		index += int64(len(items))
	}

	return items[index]
}

func makeIter(v Value) *Iter {
	switch c := v.(type) {
	case *Range:
		cur := c.Start
		return &Iter{next: func() (Value, bool) {
			if (c.Step > 0 && cur >= c.Stop) || (c.Step < 0 && cur <= c.Stop) {
				return nil, false
			}
			out := cur
			cur += c.Step
			return out, true
		}}
	case *List:
		i := 0
		return &Iter{next: func() (Value, bool) {
			if i >= len(c.Items) {
				return nil, false
			}
			out := c.Items[i]
			i++
			return out, true
		}}
	case *Tuple:
		i := 0
		return &Iter{next: func() (Value, bool) {
			if i >= len(c.Items) {
				return nil, false
			}
			out := c.Items[i]
			i++
			return out, true
		}}
	case *Iter:
		return c
	}

	report.ReportICE("reference evaluation cannot iterate %T", v)
	return nil
}

// -----------------------------------------------------------------------------

// convert adjusts a value to a declared type, wrapping integers to their
// declared width the way the lowered code's truncations would.
func (m *Machine) convert(v Value, t types.Type) Value {
	sc, ok := t.(types.Scalar)
	if !ok {
		return v
	}

	switch sc.Kind {
	case types.KindBool:
		return m.truth(v)
	case types.KindInt:
		return wrapInt(asInt(v), sc)
	case types.KindFloat:
		f, _ := asNumber(v)
		if sc.Bits == 32 {
			return float64(float32(f))
		}
		return f
	case types.KindComplex:
		switch n := v.(type) {
		case complex128:
			return n
		default:
			f, _ := asNumber(v)
			return complex(f, 0)
		}
	}

	return v
}

// wrapInt reduces an integer to its declared width, re-extending by
// signedness.
func wrapInt(v int64, sc types.Scalar) int64 {
	if sc.Bits >= 64 {
		return v
	}

	mask := (int64(1) << uint(sc.Bits)) - 1
	v &= mask
	if sc.Signed && v&(int64(1)<<uint(sc.Bits-1)) != 0 {
		v |= ^mask
	}

	return v
}

func (m *Machine) truth(v Value) bool {
	switch n := v.(type) {
	case bool:
		return n
	case int64:
		return n != 0
	case float64:
		return n != 0
	case complex128:
		return n != 0
	case nil:
		return false
	}

	report.ReportICE("%T has no truth value", v)
	return false
}

func asInt(v Value) int64 {
	switch n := v.(type) {
	case bool:
		return boolInt(n)
	case int64:
		return n
	}

	report.ReportICE("%T is not an integer", v)
	return 0
}

func asBool(v Value) bool {
	b, ok := v.(bool)
	if !ok {
		report.ReportICE("%T is not a boolean", v)
	}

	return b
}

func asNumber(v Value) (f float64, isInt bool) {
	switch n := v.(type) {
	case bool:
		return float64(boolInt(n)), true
	case int64:
		return float64(n), true
	case float64:
		return n, false
	}

	report.ReportICE("%T is not a number", v)
	return 0, false
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}

	return 0
}

func floorF(f float64) float64 { return math.Floor(f) }
func powF(l, r float64) float64 { return math.Pow(l, r) }
func absF(f float64) float64    { return math.Abs(f) }
