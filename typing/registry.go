package typing

import (
	"pyrite/ir"
	"pyrite/types"
)

// Registry is the overload registry: it maps operator symbols and callable
// names to their candidate signatures, and global names to their types.
type Registry struct {
	overloads map[string][]*types.Func
	globals   map[string]types.Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		overloads: make(map[string][]*types.Func),
		globals:   make(map[string]types.Type),
	}
}

// AddOverload registers a candidate signature for an operator symbol or
// callable name.
func (r *Registry) AddOverload(key string, sig *types.Func) {
	r.overloads[key] = append(r.overloads[key], sig)
}

// AddGlobal registers the type of a global name.
func (r *Registry) AddGlobal(name string, typ types.Type) {
	r.globals[name] = typ
}

// Candidates returns the candidate signatures for key matching the given
// arity.
func (r *Registry) Candidates(key string, arity int) []*types.Func {
	var out []*types.Func
	for _, sig := range r.overloads[key] {
		if len(sig.Params) == arity {
			out = append(out, sig)
		}
	}

	return out
}

// GlobalType returns the registered type of a global name, or the dynamic
// type when the name is unknown.
func (r *Registry) GlobalType(name string) types.Type {
	if t, ok := r.globals[name]; ok {
		return t
	}

	return types.Dynamic
}

// OperKey returns the registry key of an operator.
func OperKey(op ir.Operator) string {
	return op.String()
}

// -----------------------------------------------------------------------------

// DefaultRegistry builds the registry of builtin callables.  Operator
// semantics over scalars are intrinsic to the inferrer; the registry carries
// the named builtins and any user extensions.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	// range(stop), range(start, stop), range(start, stop, step)
	i64 := types.Int64
	r.AddGlobal("range", &types.Builtin{Name: "range"})
	r.AddOverload("range", &types.Func{Params: []types.Type{i64}, Return: types.Range})
	r.AddOverload("range", &types.Func{Params: []types.Type{i64, i64}, Return: types.Range})
	r.AddOverload("range", &types.Func{Params: []types.Type{i64, i64, i64}, Return: types.Range})

	r.AddGlobal("abs", &types.Builtin{Name: "abs"})
	r.AddOverload("abs", &types.Func{Params: []types.Type{types.Int64}, Return: types.Int64})
	r.AddOverload("abs", &types.Func{Params: []types.Type{types.Float64}, Return: types.Float64})

	r.AddGlobal("len", &types.Builtin{Name: "len"})

	return r
}
