package translate

import (
	"fmt"
	"sort"

	"pyrite/bytecode"
	"pyrite/cfg"
	"pyrite/ir"
	"pyrite/report"
)

// Enumeration of structured-region kinds tracked during translation.
const (
	regionLoop = iota
	regionWith
)

// regionFrame is one open structured region.
type regionFrame struct {
	kind int
	exit int
}

// Translator converts one bytecode function into block IR.  It simulates the
// operand stack symbolically: pushes produce temporaries, block-entry values
// become phi temporaries forwarded by every predecessor, and stores follow
// the backbone policy (version on the backbone, mutate in place elsewhere).
type Translator struct {
	fn    *bytecode.Function
	graph *cfg.Graph
	fir   *ir.FunctionIR

	blocks map[int]blockRange
	depths map[int]int

	// rename holds the blocks where stores create a new version of their
	// target.
	rename map[int]bool
	cells  map[string]bool

	stack   []*ir.Var
	current *ir.Block
	regions []regionFrame
}

// Translate converts a bytecode function into block IR plus its processed
// control flow graph.
func Translate(fn *bytecode.Function) (fir *ir.FunctionIR, graph *cfg.Graph, err error) {
	defer report.CatchErrors(&err)

	t := &Translator{
		fn:     fn,
		blocks: scanBlocks(fn),
		cells:  make(map[string]bool),
	}
	for _, name := range fn.CellNames {
		t.cells[name] = true
	}

	t.graph = buildGraph(fn, t.blocks)
	if perr := t.graph.Process(); perr != nil {
		return nil, nil, perr
	}

	t.depths = computeDepths(fn, t.blocks, t.graph)
	t.rename = renameBlocks(fn, t.graph)

	t.fir = &ir.FunctionIR{
		Name:        fn.Name,
		ArgNames:    fn.ArgNames,
		Blocks:      make(map[int]*ir.Block),
		Definitions: make(map[string][]ir.Expr),
		LiveIns:     make(map[int][]string),
		Scope:       ir.NewScope(nil),
	}

	order := make([]int, 0, len(t.blocks))
	for start := range t.blocks {
		if !t.graph.DeadNodes()[start] {
			order = append(order, start)
		}
	}
	sort.Ints(order)

	for _, start := range order {
		t.translateBlock(start)
	}

	t.legalize()
	if verr := t.fir.Verify(); verr != nil {
		report.ReportICE("translation of `%s` produced malformed blocks: %s", fn.Name, verr)
	}

	return t.fir, t.graph, nil
}

// translateBlock translates the instruction range of one live block.
func (t *Translator) translateBlock(start int) {
	t.current = ir.NewBlock(start)
	t.fir.Blocks[start] = t.current

	// The live-in stack is the block's phi temporaries, bottom to top.
	t.stack = t.stack[:0]
	for i := 0; i < t.depths[start]; i++ {
		name := phiName(start, i)
		t.stack = append(t.stack, &ir.Var{Name: name})
		t.fir.LiveIns[start] = append(t.fir.LiveIns[start], name)
	}

	if start == t.graph.Entry() {
		t.bindArgs()
	}

	br := t.blocks[start]
	for i := br.Start; i < br.End; i++ {
		t.translateInst(t.fn.Code[i])
	}

	if !t.current.Terminated() {
		if br.End >= len(t.fn.Code) {
			report.ReportICE("control falls off the end of `%s`", t.fn.Name)
		}

		loc := report.NewLoc(t.fn.Name, br.End-1)
		t.emitPhis(loc)
		t.current.Append(&ir.Jump{Target: br.End, Loc: loc})
	}
}

// bindArgs materializes the function parameters as the first definitions of
// the entry block.
func (t *Translator) bindArgs() {
	loc := report.NewLoc(t.fn.Name, 0)
	for i, name := range t.fn.ArgNames {
		v := t.fir.Scope.Define(name, loc)
		t.assign(v, &ir.Arg{Index: i, Name: name}, loc)
	}
}

func (t *Translator) translateInst(inst bytecode.Instruction) {
	loc := report.NewLoc(t.fn.Name, inst.Offset)

	switch inst.Op {
	case bytecode.Nop:

	case bytecode.LoadConst:
		t.pushTemp(tempName(inst), &ir.Const{Value: t.fn.Consts[inst.Arg]}, loc)
	case bytecode.LoadLocal:
		// Reads push the current binding directly; a read before any write
		// leaves the definition table empty and faults during typing.
		t.push(t.fir.Scope.GetOrDefine(t.fn.Locals[inst.Arg], loc))
	case bytecode.StoreLocal:
		t.storeLocal(t.fn.Locals[inst.Arg], loc)
	case bytecode.LoadGlobal:
		t.pushTemp(tempName(inst), &ir.Global{Name: t.fn.Names[inst.Arg]}, loc)
	case bytecode.LoadFree:
		t.pushTemp(tempName(inst), &ir.FreeVar{
			Index: inst.Arg,
			Name:  t.fn.FreeNames[inst.Arg],
			Value: t.fn.FreeVals[inst.Arg],
		}, loc)
	case bytecode.DupTop:
		t.push(t.top())
	case bytecode.PopTop:
		t.pop()
	case bytecode.RotTwo:
		n := len(t.stack)
		if n < 2 {
			report.ReportICE("rot_two on a stack of depth %d", n)
		}
		t.stack[n-1], t.stack[n-2] = t.stack[n-2], t.stack[n-1]

	case bytecode.UnaryOp:
		operand := t.pop()
		t.pushTemp(tempName(inst), &ir.UnaryOp{Op: ir.Operator(inst.Arg), Operand: operand}, loc)
	case bytecode.BinOp, bytecode.InplaceOp, bytecode.Compare:
		rhs := t.pop()
		lhs := t.pop()
		t.pushTemp(tempName(inst), &ir.BinOp{
			Op:      ir.Operator(inst.Arg),
			Lhs:     lhs,
			Rhs:     rhs,
			Inplace: inst.Op == bytecode.InplaceOp,
		}, loc)

	case bytecode.GetAttr:
		value := t.pop()
		t.pushTemp(tempName(inst), &ir.GetAttr{Value: value, Attr: t.fn.Names[inst.Arg]}, loc)
	case bytecode.GetItem:
		index := t.pop()
		value := t.pop()
		t.pushTemp(tempName(inst), &ir.GetItem{Value: value, Index: index}, loc)
	case bytecode.SetItem:
		index := t.pop()
		target := t.pop()
		value := t.pop()
		t.current.Append(&ir.SetItem{Target: target, Index: index, Value: value, Loc: loc})
	case bytecode.DelItem:
		index := t.pop()
		target := t.pop()
		t.current.Append(&ir.DelItem{Target: target, Index: index, Loc: loc})

	case bytecode.BuildTuple:
		t.pushTemp(tempName(inst), &ir.BuildTuple{Items: t.popN(inst.Arg)}, loc)
	case bytecode.BuildList:
		t.pushTemp(tempName(inst), &ir.BuildList{Items: t.popN(inst.Arg)}, loc)
	case bytecode.BuildMap:
		keys := make([]*ir.Var, inst.Arg)
		vals := make([]*ir.Var, inst.Arg)
		for i := inst.Arg - 1; i >= 0; i-- {
			vals[i] = t.pop()
			keys[i] = t.pop()
		}
		t.pushTemp(tempName(inst), &ir.BuildMap{Keys: keys, Vals: vals}, loc)

	case bytecode.GetIter:
		value := t.pop()
		t.pushTemp(tempName(inst), &ir.GetIter{Value: value}, loc)
	case bytecode.ForIter:
		// Fixed 3-step expansion: advance the iterator, extract the yielded
		// value and the validity flag, then branch on validity.  The iterator
		// itself stays on the stack for the next iteration.
		iter := t.top()
		pair := &ir.Var{Name: fmt.Sprintf("$pair%d", inst.Offset), Loc: loc}
		t.assign(pair, &ir.IterNext{Value: iter}, loc)
		next := &ir.Var{Name: fmt.Sprintf("$next%d", inst.Offset), Loc: loc}
		t.assign(next, &ir.PairFirst{Value: pair}, loc)
		more := &ir.Var{Name: fmt.Sprintf("$more%d", inst.Offset), Loc: loc}
		t.assign(more, &ir.PairSecond{Value: pair}, loc)

		t.push(next)
		t.emitPhis(loc)
		t.current.Append(&ir.Branch{Cond: more, True: inst.Next(), False: inst.Arg, Loc: loc})

	case bytecode.Call:
		args := t.popN(inst.Arg)
		fn := t.pop()
		t.pushTemp(tempName(inst), &ir.Call{Func: fn, Args: args}, loc)

	case bytecode.Jump:
		t.emitPhis(loc)
		t.current.Append(&ir.Jump{Target: inst.Arg, Loc: loc})
	case bytecode.JumpIfTrue:
		cond := t.pop()
		t.emitPhis(loc)
		t.current.Append(&ir.Branch{Cond: cond, True: inst.Arg, False: inst.Next(), Loc: loc})
	case bytecode.JumpIfFalse:
		cond := t.pop()
		t.emitPhis(loc)
		t.current.Append(&ir.Branch{Cond: cond, True: inst.Next(), False: inst.Arg, Loc: loc})
	case bytecode.JumpIfTrueOrPop:
		// The operand doubles as the condition; the fallthrough edge's pop
		// count removes it on the not-taken path.
		t.emitPhis(loc)
		t.current.Append(&ir.Branch{Cond: t.top(), True: inst.Arg, False: inst.Next(), Loc: loc})
	case bytecode.JumpIfFalseOrPop:
		t.emitPhis(loc)
		t.current.Append(&ir.Branch{Cond: t.top(), True: inst.Next(), False: inst.Arg, Loc: loc})

	case bytecode.SetupLoop:
		t.regions = append(t.regions, regionFrame{kind: regionLoop, exit: inst.Arg})
	case bytecode.SetupWith:
		ctx := t.pop()
		t.regions = append(t.regions, regionFrame{kind: regionWith, exit: inst.Arg})
		t.current.Append(&ir.EnterScope{
			Kind:       ir.ScopeWith,
			ContextVar: ctx,
			Begin:      inst.Next(),
			End:        inst.Arg,
			Loc:        loc,
		})
	case bytecode.PopBlock:
		if len(t.regions) == 0 {
			report.ReportICE("pop_block without an open region at %s", loc)
		}
		t.regions = t.regions[:len(t.regions)-1]
	case bytecode.BreakLoop:
		if !t.inLoop() {
			report.ReportICE("break outside of any loop at %s", loc)
		}
		t.emitPhis(loc)
		t.current.Append(&ir.Jump{Target: inst.Arg, Loc: loc})

	case bytecode.Return:
		// Every return passes through a coercion temp so the typing pass can
		// retarget all exits to the unified return type.
		value := t.pop()
		rv := &ir.Var{Name: fmt.Sprintf("$ret%d", inst.Offset), Loc: loc}
		t.assign(rv, &ir.Coerce{Value: value}, loc)
		t.current.Append(&ir.Return{Value: rv, Loc: loc})
	case bytecode.Raise:
		exc := t.pop()
		t.current.Append(&ir.Raise{Exc: exc, Loc: loc})

	default:
		report.ReportICE("unknown opcode %d at %s", inst.Op, loc)
	}
}

// storeLocal pops a value into a named variable.  When the popped value is a
// single-use temporary produced by the immediately preceding assignment, the
// store folds into it by retargeting; this keeps returned values direct
// aliases of their source instead of copies.
func (t *Translator) storeLocal(name string, loc *report.InstLoc) {
	value := t.pop()
	rename := t.rename[t.current.Offset] && !t.cells[name]
	target := t.fir.Scope.Redefine(name, loc, rename)

	if value.IsTemp() && !value.IsPhi() && !t.onStack(value) && len(t.current.Body) > 0 {
		if asg, ok := t.current.Body[len(t.current.Body)-1].(*ir.Assign); ok && asg.Target == value {
			asg.Target = target
			delete(t.fir.Definitions, value.Name)
			t.fir.Definitions[target.Name] = append(t.fir.Definitions[target.Name], asg.Value)
			return
		}
	}

	t.assign(target, &ir.Use{Value: value}, loc)
}

// emitPhis forwards the surviving stack values to every successor's phi
// temporaries.  Each edge's pop count trims the stack top first; the copies
// for a not-taken edge are dead but harmless.
func (t *Translator) emitPhis(loc *report.InstLoc) {
	succs := t.graph.Successors(t.current.Offset)
	order := make([]int, 0, len(succs))
	for s := range succs {
		order = append(order, s)
	}
	sort.Ints(order)

	for _, succ := range order {
		keep := len(t.stack) - succs[succ]
		if keep != t.depths[succ] {
			report.ReportICE("edge %d -> %d carries %d stack values, block expects %d",
				t.current.Offset, succ, keep, t.depths[succ])
		}

		for i := 0; i < keep; i++ {
			name := phiName(succ, i)
			if t.stack[i].Name == name {
				continue
			}

			t.assign(&ir.Var{Name: name, Loc: loc}, &ir.Use{Value: t.stack[i]}, loc)
		}
	}
}

// -----------------------------------------------------------------------------

func (t *Translator) assign(target *ir.Var, value ir.Expr, loc *report.InstLoc) {
	t.current.Append(&ir.Assign{Target: target, Value: value, Loc: loc})
	t.fir.Definitions[target.Name] = append(t.fir.Definitions[target.Name], value)
}

func (t *Translator) pushTemp(name string, value ir.Expr, loc *report.InstLoc) {
	v := &ir.Var{Name: name, Loc: loc}
	t.assign(v, value, loc)
	t.push(v)
}

func (t *Translator) push(v *ir.Var) {
	t.stack = append(t.stack, v)
}

func (t *Translator) pop() *ir.Var {
	if len(t.stack) == 0 {
		report.ReportICE("pop from an empty operand stack in block %d", t.current.Offset)
	}

	v := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	return v
}

// popN pops n values and returns them in push order.
func (t *Translator) popN(n int) []*ir.Var {
	out := make([]*ir.Var, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = t.pop()
	}

	return out
}

func (t *Translator) top() *ir.Var {
	if len(t.stack) == 0 {
		report.ReportICE("read from an empty operand stack in block %d", t.current.Offset)
	}

	return t.stack[len(t.stack)-1]
}

func (t *Translator) onStack(v *ir.Var) bool {
	for _, s := range t.stack {
		if s == v {
			return true
		}
	}

	return false
}

func (t *Translator) inLoop() bool {
	for _, r := range t.regions {
		if r.kind == regionLoop {
			return true
		}
	}

	return false
}

func phiName(block, slot int) string {
	return fmt.Sprintf("$phi%d.%d", block, slot)
}

func tempName(inst bytecode.Instruction) string {
	return fmt.Sprintf("$t%d", inst.Offset)
}
