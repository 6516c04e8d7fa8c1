package ir

import (
	"fmt"

	"pyrite/report"
)

// Stmt is the parent interface for all IR statements.
type Stmt interface {
	// Repr returns the string representation of the statement.
	Repr() string

	// Term returns whether the statement terminates its block.
	Term() bool
}

// Assign stores the value of an expression into a target variable.
type Assign struct {
	Target *Var
	Value  Expr
	Loc    *report.InstLoc
}

func (s *Assign) Repr() string {
	return fmt.Sprintf("%s = %s", s.Target, s.Value.Repr())
}

func (s *Assign) Term() bool { return false }

// SetItem stores a value into an indexed slot of a target.
type SetItem struct {
	Target *Var
	Index  *Var
	Value  *Var
	Loc    *report.InstLoc
}

func (s *SetItem) Repr() string {
	return fmt.Sprintf("%s[%s] = %s", s.Target, s.Index, s.Value)
}

func (s *SetItem) Term() bool { return false }

// DelItem deletes an indexed slot of a target.
type DelItem struct {
	Target *Var
	Index  *Var
	Loc    *report.InstLoc
}

func (s *DelItem) Repr() string {
	return fmt.Sprintf("del %s[%s]", s.Target, s.Index)
}

func (s *DelItem) Term() bool { return false }

// Branch transfers control to one of two blocks based on a condition.
type Branch struct {
	Cond  *Var
	True  int
	False int
	Loc   *report.InstLoc
}

func (s *Branch) Repr() string {
	return fmt.Sprintf("branch %s, %d, %d", s.Cond, s.True, s.False)
}

func (s *Branch) Term() bool { return true }

// Jump transfers control unconditionally.
type Jump struct {
	Target int
	Loc    *report.InstLoc
}

func (s *Jump) Repr() string {
	return fmt.Sprintf("jump %d", s.Target)
}

func (s *Jump) Term() bool { return true }

// Return returns a value from the function.
type Return struct {
	Value *Var
	Loc   *report.InstLoc
}

func (s *Return) Repr() string {
	return "return " + s.Value.Name
}

func (s *Return) Term() bool { return true }

// Raise raises an exception value (nil re-raises).
type Raise struct {
	Exc *Var
	Loc *report.InstLoc
}

func (s *Raise) Repr() string {
	if s.Exc == nil {
		return "raise"
	}

	return "raise " + s.Exc.Name
}

func (s *Raise) Term() bool { return true }

// Enumeration of guarded-scope kinds.
const (
	ScopeWith = iota
	ScopeTry
)

// EnterScope marks the beginning of a guarded (with/try) region running from
// Begin to End.  The legalization pass checks each region is single-entry and
// single-exit; a malformed region is a fatal internal error.
type EnterScope struct {
	Kind       int
	ContextVar *Var
	Begin, End int
	Loc        *report.InstLoc
}

func (s *EnterScope) Repr() string {
	return fmt.Sprintf("enter_scope [%d..%d)", s.Begin, s.End)
}

func (s *EnterScope) Term() bool { return false }
