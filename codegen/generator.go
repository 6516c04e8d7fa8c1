package codegen

import (
	"fmt"
	"sort"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
	llvalue "github.com/llir/llvm/ir/value"

	"pyrite/cfg"
	"pyrite/ir"
	"pyrite/report"
	"pyrite/target"
	"pyrite/types"
	"pyrite/typing"
)

// NativeFunc is the result of lowering one function: the native entry point
// and, when requested, the dynamic-call wrapper.
type NativeFunc struct {
	// Entry is the native routine.  Its calling convention is
	//
	//	i32 @name(T* ret, %pyr.obj** exc, args...)
	//
	// returning 0 on success; any nonzero status means the exc slot holds the
	// fault object.
	Entry *llir.Func

	// Wrapper is the dynamic-call wrapper `(args, kwargs) -> value-or-null`,
	// or nil if none was requested.
	Wrapper *llir.Func

	// Return is the unified return type of the function.
	Return types.Type

	// ManagedSlots is the number of managed stack slots the cleanup tail
	// releases on every exit.
	ManagedSlots int
}

// Lowerer owns one LLVM module and lowers typed functions into it.
type Lowerer struct {
	// Mod is the module under construction.
	Mod *llir.Module

	desc *target.Desc
	rt   *runtimeDecls

	recordTypes map[*types.Record]lltypes.Type

	// funcs maps source-level global names to already lowered native entry
	// points so typed calls between compiled functions bind directly.
	funcs map[string]*NativeFunc

	// externs holds forward declarations emitted for typed calls into
	// functions not yet lowered; lowering the definition consumes the entry.
	externs map[string]*llir.Func
}

// NewLowerer creates a lowerer with a fresh module carrying the runtime
// object model declarations.
func NewLowerer(desc *target.Desc) *Lowerer {
	mod := llir.NewModule()
	return &Lowerer{
		Mod:         mod,
		desc:        desc,
		rt:          declareRuntime(mod),
		recordTypes: make(map[*types.Record]lltypes.Type),
		funcs:       make(map[string]*NativeFunc),
		externs:     make(map[string]*llir.Func),
	}
}

// Bind registers a lowered function under a source-level global name so later
// functions can call it through its native convention.
func (l *Lowerer) Bind(name string, nf *NativeFunc) {
	l.funcs[name] = nf
}

// Lower generates the native routine for one typed function, plus the
// dynamic-call wrapper when withWrapper is set.
func (l *Lowerer) Lower(fir *ir.FunctionIR, graph *cfg.Graph, res *typing.Result, argTypes []types.Type, withWrapper bool) (nf *NativeFunc, err error) {
	defer report.CatchErrors(&err)

	g := &Generator{
		low:      l,
		mod:      l.Mod,
		desc:     l.desc,
		rt:       l.rt,
		fir:      fir,
		graph:    graph,
		typemap:  res.TypeMap,
		retType:  res.Return,
		argTypes: argTypes,

		recordTypes: l.recordTypes,
		slots:       make(map[string]llvalue.Value),
		siteSlots:   make(map[siteKey]llvalue.Value),
		phis:        make(map[string]*llir.InstPhi),
		incoming:    make(map[string]map[int]llvalue.Value),
		callables:   make(map[string]string),
		blocks:      make(map[int]*llir.Block),
		finalBlocks: make(map[int]*llir.Block),
	}

	nf = &NativeFunc{Entry: g.generate(), Return: res.Return, ManagedSlots: len(g.managedSlots)}
	if withWrapper {
		nf.Wrapper = g.generateWrapper(nf.Entry)
	}

	return nf, nil
}

// -----------------------------------------------------------------------------

// Generator lowers one typed function IR to LLVM.
type Generator struct {
	low  *Lowerer
	mod  *llir.Module
	desc *target.Desc
	rt   *runtimeDecls

	fir      *ir.FunctionIR
	graph    *cfg.Graph
	typemap  map[string]types.Type
	retType  types.Type
	argTypes []types.Type

	recordTypes map[*types.Record]lltypes.Type

	fn *llir.Func

	// retSlot and excSlot are the first two native parameters.
	retSlot llvalue.Value
	excSlot llvalue.Value

	// status holds the function's return status; the error tail block sets
	// it to 1 before falling into cleanup.
	status llvalue.Value

	// slots maps variable names to their fixed stack slot.  Phi-eligible
	// names have no slot and live in phis instead.
	slots map[string]llvalue.Value

	// siteSlots parks owned runtime objects produced mid-statement so the
	// cleanup block can release them: one slot per producing site,
	// overwritten (with a paired release) on every revisit.
	siteSlots map[siteKey]llvalue.Value

	// managedSlots is the live-temporaries list walked by cleanup.
	managedSlots []managedSlot

	phis     map[string]*llir.InstPhi
	incoming map[string]map[int]llvalue.Value

	// callables maps variable names to the global name of the callable they
	// hold; callable values have no native representation.
	callables map[string]string

	blocks      map[int]*llir.Block
	finalBlocks map[int]*llir.Block

	entry   *llir.Block
	cleanup *llir.Block
	errblk  *llir.Block

	// block is the block currently being generated.  Runtime status checks
	// split it, so it is not always blocks[firOffset].
	block     *llir.Block
	firOffset int

	contCounter   int
	globalCounter int
	siteSeq       int
}

func (g *Generator) generate() *llir.Func {
	g.fn = g.declareEntry()
	g.retSlot = g.fn.Params[0]
	g.excSlot = g.fn.Params[1]

	g.entry = g.fn.NewBlock("entry")
	g.status = g.entry.NewAlloca(lltypes.I32)
	g.entry.NewStore(constant.NewInt(lltypes.I32, 0), g.status)

	// One fixed slot per non-phi variable, allocated once at entry.  Managed
	// slots start null so cleanup can release them unconditionally.
	order := make([]string, 0, len(g.typemap))
	for name := range g.typemap {
		order = append(order, name)
	}
	sort.Strings(order)
	for _, name := range order {
		t := g.typemap[name]
		if isCallableType(t) || g.phiEligible(name) {
			continue
		}

		lt := g.convType(t)
		slot := g.entry.NewAlloca(lt)
		g.slots[name] = slot
		if managed(t) {
			g.entry.NewStore(constant.NewNull(lt.(*lltypes.PointerType)), slot)
			g.managedSlots = append(g.managedSlots, managedSlot{slot: slot, typ: lt})
		}
	}

	g.cleanup = g.fn.NewBlock("cleanup")
	g.errblk = g.fn.NewBlock("error")

	for _, off := range g.fir.BlockOrder() {
		g.lowerBlock(off)
	}

	g.entry.NewBr(g.blocks[g.graph.Entry()])
	g.fillPhis()

	// The error block stores the failure status and falls into cleanup, so
	// every fault path runs the same release walk as a normal return.
	g.errblk.NewStore(constant.NewInt(lltypes.I32, 1), g.status)
	g.errblk.NewBr(g.cleanup)

	// Cleanup releases every managed slot (the runtime treats null as a
	// no-op) and performs the only real return of the function.
	for _, ms := range g.managedSlots {
		var obj llvalue.Value = g.cleanup.NewLoad(ms.typ, ms.slot)
		if !ms.typ.Equal(g.rt.objPtr) {
			obj = g.cleanup.NewBitCast(obj, g.rt.objPtr)
		}
		g.cleanup.NewCall(g.rt.decref, obj)
	}
	g.cleanup.NewRet(g.cleanup.NewLoad(lltypes.I32, g.status))

	return g.fn
}

func (g *Generator) lowerBlock(off int) {
	bb := g.fn.NewBlock(fmt.Sprintf("block%d", off))
	g.blocks[off] = bb
	g.block = bb
	g.firOffset = off

	// Phi-eligible live-ins become phi nodes at the head of the block; their
	// incomings are filled after every predecessor is lowered.  The nodes are
	// built directly because llir's constructor derives the type from the
	// first incoming, which does not exist yet.
	for _, name := range g.fir.LiveIns[off] {
		if !g.phiEligible(name) {
			continue
		}

		phi := &llir.InstPhi{Typ: g.convType(g.typemap[name])}
		bb.Insts = append(bb.Insts, phi)
		g.phis[name] = phi
	}

	for _, stmt := range g.fir.Blocks[off].Body {
		g.lowerStmt(stmt)
	}

	g.finalBlocks[off] = g.block
}

// phiEligible reports whether a variable flows through block-entry phi
// merges.  Only translator phi temporaries of unmanaged type qualify; managed
// values always take a slot so the reference-count walk sees them.
func (g *Generator) phiEligible(name string) bool {
	if len(name) < 4 || name[:4] != "$phi" {
		return false
	}

	return !managed(g.typemap[name])
}

// fillPhis wires one incoming value per predecessor edge into every phi.  A
// predecessor that never assigned the name either carries the value
// unchanged (loop back edge) or cannot reach the phi's block at runtime, in
// which case the edge is filled with an undef sentinel that must never be
// observed.
func (g *Generator) fillPhis() {
	doms := g.graph.Dominators()

	for _, off := range g.fir.BlockOrder() {
		for _, name := range g.fir.LiveIns[off] {
			phi, ok := g.phis[name]
			if !ok {
				continue
			}

			preds := make([]int, 0)
			for p := range g.graph.Predecessors(off) {
				preds = append(preds, p)
			}
			sort.Ints(preds)

			for _, p := range preds {
				var v llvalue.Value
				if in, ok := g.incoming[name][p]; ok {
					v = in
				} else if doms[p][off] {
					v = phi
				} else {
					v = constant.NewUndef(phi.Typ)
				}

				phi.Incs = append(phi.Incs, llir.NewIncoming(v, g.finalBlocks[p]))
			}
		}
	}
}

// declareEntry creates the native entry function, taking over the forward
// declaration if earlier call sites already referenced this name.
func (g *Generator) declareEntry() *llir.Func {
	params := []*llir.Param{
		llir.NewParam("ret", lltypes.NewPointer(g.convType(g.retType))),
		llir.NewParam("exc", lltypes.NewPointer(g.rt.objPtr)),
	}
	for i, name := range g.fir.ArgNames {
		params = append(params, llir.NewParam(name, g.convType(g.argTypes[i])))
	}

	if f, ok := g.low.externs[g.fir.Name]; ok {
		delete(g.low.externs, g.fir.Name)

		if len(f.Params) != len(params) {
			report.ReportICE("definition of `%s` does not match its forward declaration", g.fir.Name)
		}
		for i, p := range params {
			if !f.Params[i].Typ.Equal(p.Typ) {
				report.ReportICE("definition of `%s` does not match its forward declaration", g.fir.Name)
			}
			f.Params[i].SetName(p.Name())
		}

		return f
	}

	return g.mod.NewFunc(g.fir.Name, lltypes.I32, params...)
}

// nativeEntry resolves a typed callee to its entry symbol, emitting an extern
// declaration when the body has not been lowered yet.
func (g *Generator) nativeEntry(name string, ft *types.Func) *llir.Func {
	if nf, ok := g.low.funcs[name]; ok {
		return nf.Entry
	}
	if f, ok := g.low.externs[name]; ok {
		return f
	}

	params := []*llir.Param{
		llir.NewParam("ret", lltypes.NewPointer(g.convType(ft.Return))),
		llir.NewParam("exc", lltypes.NewPointer(g.rt.objPtr)),
	}
	for i, pt := range ft.Params {
		params = append(params, llir.NewParam(fmt.Sprintf("arg%d", i), g.convType(pt)))
	}

	f := g.mod.NewFunc(name, lltypes.I32, params...)
	g.low.externs[name] = f
	return f
}

// -----------------------------------------------------------------------------

// useVar returns the current native value of a variable: its phi node, a
// load of its slot, or nil for callable values.
func (g *Generator) useVar(v *ir.Var) llvalue.Value {
	if phi, ok := g.phis[v.Name]; ok {
		return phi
	}
	if slot, ok := g.slots[v.Name]; ok {
		return g.block.NewLoad(g.convType(g.typemap[v.Name]), slot)
	}
	if _, ok := g.callables[v.Name]; ok {
		return nil
	}

	report.ReportICE("variable `%s` has no native storage", v.Name)
	return nil
}

func (g *Generator) typeOf(v *ir.Var) types.Type {
	t, ok := g.typemap[v.Name]
	if !ok {
		report.ReportICE("variable `%s` escaped type inference", v.Name)
	}

	return t
}

// managedSlot is one entry of the cleanup walk: a stack slot holding a
// runtime reference, together with the slot's element type.  Array variables
// hold typed descriptor pointers rather than bare object handles.
type managedSlot struct {
	slot llvalue.Value
	typ  lltypes.Type
}

// storeManaged replaces the object held by a slot, releasing the previous
// holder.  This is the decrement-on-overwrite half of the refcount
// discipline; the cleanup walk is the decrement-on-exit half.
func (g *Generator) storeManaged(slot, obj llvalue.Value) {
	old := g.block.NewLoad(g.rt.objPtr, slot)
	g.block.NewCall(g.rt.decref, old)
	g.block.NewStore(obj, slot)
}

// siteKey identifies one object-producing site within a statement.  Statement
// lowering is deterministic, so the (site, sequence) pair is stable across
// loop iterations and each revisit reuses (and releases) the same slot.
type siteKey struct {
	site interface{}
	seq  int
}

// ownObject parks an owned runtime object in the site's dedicated cleanup
// slot and returns it.
func (g *Generator) ownObject(site interface{}, obj llvalue.Value) llvalue.Value {
	key := siteKey{site: site, seq: g.siteSeq}
	g.siteSeq++

	slot, ok := g.siteSlots[key]
	if !ok {
		slot = g.entry.NewAlloca(g.rt.objPtr)
		g.entry.NewStore(constant.NewNull(g.rt.objPtr), slot)
		g.managedSlots = append(g.managedSlots, managedSlot{slot: slot, typ: g.rt.objPtr})
		g.siteSlots[key] = slot
	}

	g.storeManaged(slot, obj)
	return obj
}

// checkStatus branches to the error tail block when a runtime call failed,
// continuing in a fresh block otherwise.  Fault paths never return directly.
func (g *Generator) checkStatus(status llvalue.Value) {
	ok := g.block.NewICmp(enum.IPredEQ, status, constant.NewInt(lltypes.I32, 0))
	cont := g.appendBlock()
	g.block.NewCondBr(ok, cont, g.errblk)
	g.block = cont
}

func (g *Generator) appendBlock() *llir.Block {
	g.contCounter++
	return g.fn.NewBlock(fmt.Sprintf("cont%d", g.contCounter))
}

// entryAlloca creates a stack slot in the entry block mid-generation, used
// for out-parameters and spills.
func (g *Generator) entryAlloca(t lltypes.Type) llvalue.Value {
	return g.entry.NewAlloca(t)
}

// internString interns a string literal as a module-level byte array and
// returns an i8* to its data.
func (g *Generator) internString(s string) llvalue.Value {
	g.globalCounter++
	data := g.mod.NewGlobalDef(fmt.Sprintf("str.%d", g.globalCounter), constant.NewCharArrayFromString(s+"\x00"))

	zero := constant.NewInt(lltypes.I64, 0)
	return g.block.NewGetElementPtr(data.ContentType, data, zero, zero)
}

func isCallableType(t types.Type) bool {
	switch t.(type) {
	case *types.Func, *types.Builtin:
		return true
	}

	return false
}
