package session

import (
	"fmt"
	"sync"

	llir "github.com/llir/llvm/ir"

	"pyrite/bytecode"
	"pyrite/cfg"
	"pyrite/codegen"
	"pyrite/ir"
	"pyrite/report"
	"pyrite/target"
	"pyrite/translate"
	"pyrite/types"
	"pyrite/typing"
)

// Session owns one compilation pipeline: the overload registry, the LLVM
// module under construction, and the table of everything compiled so far.
// One mutex serializes compilations; compiled output is immutable and may be
// called concurrently.
type Session struct {
	mu sync.Mutex

	desc *target.Desc
	reg  *typing.Registry
	low  *codegen.Lowerer

	// funcs maps qualified names to compiled functions.
	funcs map[string]*CompiledFunction

	// placeholders holds pre-declared signatures of functions not yet
	// compiled, so mutually recursive requests type-check before both bodies
	// exist.
	placeholders map[string]*types.Func
}

// CompiledFunction is the immutable result of compiling one function.
type CompiledFunction struct {
	Name string

	// EntryName and WrapperName are the module-level symbol names of the
	// native entry point and the dynamic-call wrapper.
	EntryName   string
	WrapperName string

	// Module is the LLVM module the symbols live in.
	Module *llir.Module

	Signature *types.Func

	// FIR and TypeMap expose the typed intermediate form for inspection and
	// reference evaluation.
	FIR     *ir.FunctionIR
	Graph   *cfg.Graph
	TypeMap map[string]types.Type

	// ManagedSlots is the number of managed temporaries the function's
	// cleanup tail releases.
	ManagedSlots int

	// KeepAlive pins every compiled function this one calls into, so the
	// callee's module outlives the caller.
	KeepAlive []*CompiledFunction

	// NoLock marks the function safe to call with the interpreter-wide lock
	// released for the call duration.
	NoLock bool
}

// Config carries session construction options.
type Config struct {
	// Desc is the target description; nil selects the native target.
	Desc *target.Desc

	// Registry is the overload registry; nil selects the default builtins.
	Registry *typing.Registry
}

// New creates a compilation session.
func New(cfg Config) *Session {
	if cfg.Desc == nil {
		cfg.Desc = target.Native()
	}
	if cfg.Registry == nil {
		cfg.Registry = typing.DefaultRegistry()
	}

	return &Session{
		desc:         cfg.Desc,
		reg:          cfg.Registry,
		low:          codegen.NewLowerer(cfg.Desc),
		funcs:        make(map[string]*CompiledFunction),
		placeholders: make(map[string]*types.Func),
	}
}

// Registry returns the session's overload registry for user extensions.
func (s *Session) Registry() *typing.Registry {
	return s.reg
}

// Module returns the LLVM module owned by the session.
func (s *Session) Module() *llir.Module {
	return s.low.Mod
}

// Declare pre-registers the signature of a function that is about to be
// compiled, so mutually recursive compilation requests resolve calls to it.
// Compile replaces the placeholder once the body exists.
func (s *Session) Declare(name string, sig *types.Func) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.placeholders[name] = sig
	s.reg.AddGlobal(name, sig)
}

// Request describes one compilation: the function, the argument types of the
// requested specialization, and optional declared types.
type Request struct {
	Fn   *bytecode.Function
	Args []types.Type

	// DeclaredLocals and DeclaredReturn optionally seed inference.
	DeclaredLocals map[string]types.Type
	DeclaredReturn types.Type

	// NoWrapper skips the dynamic-call wrapper.
	NoWrapper bool

	// NoLock marks the compiled function callable without the
	// interpreter-wide lock.
	NoLock bool
}

// Compile runs the full pipeline on one function.  Type faults come back as
// *report.TypeFault so the caller's retry policy can inspect the kind; any
// internal panic surfaces as *report.InternalError, never as an unwound
// panic.
func (s *Session) Compile(req Request) (cf *CompiledFunction, err error) {
	defer report.CatchErrors(&err)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(req.Args) != len(req.Fn.ArgNames) {
		return nil, fmt.Errorf("function `%s` takes %d arguments, request supplies %d",
			req.Fn.Name, len(req.Fn.ArgNames), len(req.Args))
	}

	fir, graph, err := translate.Translate(req.Fn)
	if err != nil {
		return nil, err
	}

	inf := typing.NewInferrer(fir, s.reg, req.Args, req.DeclaredLocals, req.DeclaredReturn)
	res, err := inf.Infer()
	if err != nil {
		return nil, err
	}

	nf, err := s.low.Lower(fir, graph, res, req.Args, !req.NoWrapper)
	if err != nil {
		return nil, err
	}

	cf = &CompiledFunction{
		Name:         req.Fn.Name,
		EntryName:    nf.Entry.Name(),
		Module:       s.low.Mod,
		Signature:    &types.Func{Params: req.Args, Return: res.Return},
		FIR:          fir,
		Graph:        graph,
		TypeMap:      res.TypeMap,
		ManagedSlots: nf.ManagedSlots,
		NoLock:       req.NoLock,
	}
	if nf.Wrapper != nil {
		cf.WrapperName = nf.Wrapper.Name()
	}
	cf.KeepAlive = s.callees(fir)

	// Later compilations see this function as a typed global, and typed
	// calls to it bind the native entry directly.
	s.reg.AddGlobal(req.Fn.Name, cf.Signature)
	s.low.Bind(req.Fn.Name, nf)
	delete(s.placeholders, req.Fn.Name)
	s.funcs[req.Fn.Name] = cf

	return cf, nil
}

// Lookup returns the compiled function registered under a name.
func (s *Session) Lookup(name string) (*CompiledFunction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cf, ok := s.funcs[name]
	return cf, ok
}

// callees collects the compiled functions referenced by a function body: the
// direct keep-alive set.  Transitivity follows from each callee pinning its
// own callees.
func (s *Session) callees(fir *ir.FunctionIR) []*CompiledFunction {
	seen := make(map[string]bool)
	var out []*CompiledFunction

	for _, defs := range fir.Definitions {
		for _, def := range defs {
			g, ok := def.(*ir.Global)
			if !ok || seen[g.Name] {
				continue
			}
			seen[g.Name] = true

			if cf, ok := s.funcs[g.Name]; ok {
				out = append(out, cf)
			}
		}
	}

	return out
}
