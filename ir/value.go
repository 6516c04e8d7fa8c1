package ir

import (
	"fmt"
	"strings"

	"pyrite/report"
)

// Var is a scope-qualified IR variable.  Named variables carry the source
// name (possibly versioned by redefinition); temporaries carry a `$` prefixed
// machine name; phi temporaries carry a `$phi` prefix and merge block-entry
// stack values.
type Var struct {
	// Name is the unique name of the variable within its scope.
	Name string

	// Loc is the location of the variable's definition.
	Loc *report.InstLoc
}

// IsTemp returns whether the variable is a machine temporary.
func (v *Var) IsTemp() bool {
	return strings.HasPrefix(v.Name, "$")
}

// IsPhi returns whether the variable is a block-entry phi temporary: the only
// variables eligible for direct SSA value flow during lowering.
func (v *Var) IsPhi() bool {
	return strings.HasPrefix(v.Name, "$phi")
}

func (v *Var) String() string {
	return v.Name
}

// -----------------------------------------------------------------------------

// Scope is a variable namespace.  It implements the (re)definition policy of
// the translator: GetOrDefine mutates an existing binding in place, Redefine
// creates a fresh version of the name.
type Scope struct {
	Parent *Scope

	vars     map[string]*Var
	versions map[string]int
}

// NewScope creates a new scope with the given parent (may be nil).
func NewScope(parent *Scope) *Scope {
	return &Scope{
		Parent:   parent,
		vars:     make(map[string]*Var),
		versions: make(map[string]int),
	}
}

// Define defines a new variable.  Redefinition through Define is an internal
// error: redefinition must go through Redefine so versioning stays coherent.
func (s *Scope) Define(name string, loc *report.InstLoc) *Var {
	if _, ok := s.vars[name]; ok {
		report.ReportICE("variable `%s` redefined without versioning", name)
	}

	v := &Var{Name: name, Loc: loc}
	s.vars[name] = v
	return v
}

// GetOrDefine returns the current binding of name, defining it first if
// necessary.  Writes through this binding merge with prior definitions: this
// is the in-place update used off the CFG backbone.
func (s *Scope) GetOrDefine(name string, loc *report.InstLoc) *Var {
	if v, ok := s.vars[name]; ok {
		return v
	}

	return s.Define(name, loc)
}

// Redefine creates a new version of name.  With rename set a fresh versioned
// variable (`name.1`, `name.2`, ...) replaces the binding; without it the
// existing binding is reused (cell variables never rename).
func (s *Scope) Redefine(name string, loc *report.InstLoc, rename bool) *Var {
	if _, ok := s.vars[name]; !ok {
		return s.Define(name, loc)
	}
	if !rename {
		return s.vars[name]
	}

	s.versions[name]++
	v := &Var{Name: fmt.Sprintf("%s.%d", name, s.versions[name]), Loc: loc}
	s.vars[name] = v
	return v
}

// Get looks up the current binding of name, walking parent scopes.
func (s *Scope) Get(name string) (*Var, bool) {
	if v, ok := s.vars[name]; ok {
		return v, true
	}
	if s.Parent != nil {
		return s.Parent.Get(name)
	}

	return nil, false
}

// Vars returns the scope's bindings keyed by unversioned name.
func (s *Scope) Vars() map[string]*Var {
	return s.vars
}
