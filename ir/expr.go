package ir

import (
	"fmt"
	"strings"

	"pyrite/bytecode"
)

// Expr is the parent interface for all IR expressions.  The set of variants
// is closed: every consumer dispatches with a type switch.
type Expr interface {
	// Repr returns the string representation of the expression.
	Repr() string
}

// BinOp applies a binary operator to two variables.  Inplace records whether
// the source operation was an augmented assignment, which overload resolution
// may use to prefer mutating candidates.
type BinOp struct {
	Op       Operator
	Lhs, Rhs *Var
	Inplace  bool
}

func (e *BinOp) Repr() string {
	return fmt.Sprintf("%s %s %s", e.Lhs, e.Op, e.Rhs)
}

// UnaryOp applies a unary operator to a variable.
type UnaryOp struct {
	Op      Operator
	Operand *Var
}

func (e *UnaryOp) Repr() string {
	return fmt.Sprintf("%s %s", e.Op, e.Operand)
}

// Call calls a callable variable with positional arguments.
type Call struct {
	Func *Var
	Args []*Var
}

func (e *Call) Repr() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.Name
	}

	return fmt.Sprintf("call %s(%s)", e.Func, strings.Join(args, ", "))
}

// GetAttr reads an attribute of a value.
type GetAttr struct {
	Value *Var
	Attr  string
}

func (e *GetAttr) Repr() string {
	return fmt.Sprintf("getattr %s.%s", e.Value, e.Attr)
}

// GetItem indexes a value.
type GetItem struct {
	Value *Var
	Index *Var
}

func (e *GetItem) Repr() string {
	return fmt.Sprintf("%s[%s]", e.Value, e.Index)
}

// BuildTuple constructs a tuple from its items.
type BuildTuple struct {
	Items []*Var
}

func (e *BuildTuple) Repr() string {
	return "build_tuple " + joinVars(e.Items)
}

// BuildList constructs a list from its items.
type BuildList struct {
	Items []*Var
}

func (e *BuildList) Repr() string {
	return "build_list " + joinVars(e.Items)
}

// BuildMap constructs a map from parallel key/value slices.
type BuildMap struct {
	Keys []*Var
	Vals []*Var
}

func (e *BuildMap) Repr() string {
	pairs := make([]string, len(e.Keys))
	for i := range e.Keys {
		pairs[i] = e.Keys[i].Name + ": " + e.Vals[i].Name
	}

	return "build_map {" + strings.Join(pairs, ", ") + "}"
}

// GetIter obtains an iterator over a value.
type GetIter struct {
	Value *Var
}

func (e *GetIter) Repr() string {
	return "getiter " + e.Value.Name
}

// IterNext advances an iterator, producing a (value, valid) pair.  It is the
// first step of the fixed 3-step for-each expansion; PairFirst and PairSecond
// extract the components.
type IterNext struct {
	Value *Var
}

func (e *IterNext) Repr() string {
	return "iternext " + e.Value.Name
}

// PairFirst extracts the value component of an IterNext pair.
type PairFirst struct {
	Value *Var
}

func (e *PairFirst) Repr() string {
	return "pair_first " + e.Value.Name
}

// PairSecond extracts the validity component of an IterNext pair.
type PairSecond struct {
	Value *Var
}

func (e *PairSecond) Repr() string {
	return "pair_second " + e.Value.Name
}

// Use reads a variable as a value: a plain variable-to-variable copy.  The
// translator emits these for stores it cannot fold into the defining
// assignment and for block-entry phi forwarding.
type Use struct {
	Value *Var
}

func (e *Use) Repr() string {
	return e.Value.Name
}

// Coerce converts a value to the type required at its use site.  Coerce nodes
// are inserted by the typing pass; the translator only emits them for return
// values.
type Coerce struct {
	Value *Var
}

func (e *Coerce) Repr() string {
	return "coerce " + e.Value.Name
}

// Const is a constant-pool literal.
type Const struct {
	Value bytecode.Const
}

func (e *Const) Repr() string {
	return "const " + e.Value.String()
}

// Global references a global name.
type Global struct {
	Name string
}

func (e *Global) Repr() string {
	return "global " + e.Name
}

// FreeVar references a closure variable captured as a literal-value snapshot
// at translation time.
type FreeVar struct {
	Index int
	Name  string
	Value bytecode.Const
}

func (e *FreeVar) Repr() string {
	return fmt.Sprintf("freevar %s=%s", e.Name, e.Value)
}

// Arg references one of the function's parameters.
type Arg struct {
	Index int
	Name  string
}

func (e *Arg) Repr() string {
	return fmt.Sprintf("arg %d (%s)", e.Index, e.Name)
}

func joinVars(vars []*Var) string {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.Name
	}

	return "(" + strings.Join(names, ", ") + ")"
}
