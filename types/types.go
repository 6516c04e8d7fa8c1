package types

import (
	"fmt"
	"strings"
)

// Type is the parent interface for all types in the pipeline.
type Type interface {
	// Repr returns a representative string of the type for purposes of error
	// reporting.
	Repr() string

	// equals is the internal, type-specific implementation of Equals.  It
	// should NEVER be called directly except by Equals.
	equals(Type) bool
}

// Equals returns whether two types are exactly equal.
func Equals(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}

	return a.equals(b)
}

// -----------------------------------------------------------------------------

// Enumeration of scalar kinds in promotion-rank order.
const (
	KindBool = iota
	KindInt
	KindFloat
	KindComplex
)

// Scalar is a machine scalar: a kind, a width in bits, and (for integers) a
// signedness.
type Scalar struct {
	Kind   int
	Bits   int
	Signed bool
}

// The scalar types.
var (
	Bool = Scalar{Kind: KindBool, Bits: 1}

	Int8  = Scalar{Kind: KindInt, Bits: 8, Signed: true}
	Int16 = Scalar{Kind: KindInt, Bits: 16, Signed: true}
	Int32 = Scalar{Kind: KindInt, Bits: 32, Signed: true}
	Int64 = Scalar{Kind: KindInt, Bits: 64, Signed: true}

	Uint8  = Scalar{Kind: KindInt, Bits: 8}
	Uint16 = Scalar{Kind: KindInt, Bits: 16}
	Uint32 = Scalar{Kind: KindInt, Bits: 32}
	Uint64 = Scalar{Kind: KindInt, Bits: 64}

	Float32 = Scalar{Kind: KindFloat, Bits: 32}
	Float64 = Scalar{Kind: KindFloat, Bits: 64}

	Complex64  = Scalar{Kind: KindComplex, Bits: 64}
	Complex128 = Scalar{Kind: KindComplex, Bits: 128}
)

func (st Scalar) Repr() string {
	switch st.Kind {
	case KindBool:
		return "bool"
	case KindInt:
		if st.Signed {
			return fmt.Sprintf("int%d", st.Bits)
		}
		return fmt.Sprintf("uint%d", st.Bits)
	case KindFloat:
		return fmt.Sprintf("float%d", st.Bits)
	default:
		return fmt.Sprintf("complex%d", st.Bits)
	}
}

func (st Scalar) equals(other Type) bool {
	if ost, ok := other.(Scalar); ok {
		return st == ost
	}

	return false
}

// EffectiveBits returns the width used by the promotion policy: complex types
// count at the width of their component.
func (st Scalar) EffectiveBits() int {
	if st.Kind == KindComplex {
		return st.Bits / 2
	}

	return st.Bits
}

// -----------------------------------------------------------------------------

// Enumeration of array memory layouts.
const (
	LayoutAny = iota // generic strided
	LayoutC          // row-major contiguous
	LayoutF          // column-major contiguous
)

// Array is an n-dimensional array over an element type.
type Array struct {
	Elem   Type
	NDim   int
	Layout int
}

func (at *Array) Repr() string {
	dims := strings.Repeat(":, ", at.NDim)
	layout := ""
	switch at.Layout {
	case LayoutC:
		layout = " C"
	case LayoutF:
		layout = " F"
	}

	return fmt.Sprintf("array(%s, [%s]%s)", at.Elem.Repr(), strings.TrimSuffix(dims, ", "), layout)
}

func (at *Array) equals(other Type) bool {
	if oat, ok := other.(*Array); ok {
		return Equals(at.Elem, oat.Elem) && at.NDim == oat.NDim && at.Layout == oat.Layout
	}

	return false
}

// -----------------------------------------------------------------------------

// Pointer is a typed pointer.
type Pointer struct {
	Elem Type
}

func (pt *Pointer) Repr() string {
	return "*" + pt.Elem.Repr()
}

func (pt *Pointer) equals(other Type) bool {
	if opt, ok := other.(*Pointer); ok {
		return Equals(pt.Elem, opt.Elem)
	}

	return false
}

// -----------------------------------------------------------------------------

// Tuple is a fixed heterogeneous sequence type.
type Tuple []Type

func (tt Tuple) Repr() string {
	sb := strings.Builder{}
	sb.WriteRune('(')

	for i, typ := range tt {
		sb.WriteString(typ.Repr())

		if i < len(tt)-1 {
			sb.WriteString(", ")
		}
	}

	sb.WriteRune(')')
	return sb.String()
}

func (tt Tuple) equals(other Type) bool {
	if ott, ok := other.(Tuple); ok {
		if len(tt) != len(ott) {
			return false
		}

		for i, item := range tt {
			if !Equals(item, ott[i]) {
				return false
			}
		}

		return true
	}

	return false
}

// -----------------------------------------------------------------------------

// Iter is an iterator yielding elements of Elem.
type Iter struct {
	Elem Type
}

func (it *Iter) Repr() string {
	return "iter(" + it.Elem.Repr() + ")"
}

func (it *Iter) equals(other Type) bool {
	if oit, ok := other.(*Iter); ok {
		return Equals(it.Elem, oit.Elem)
	}

	return false
}

// -----------------------------------------------------------------------------

// Func is a function signature type: ordered argument types plus a return
// type.
type Func struct {
	Params []Type
	Return Type
}

func (ft *Func) Repr() string {
	sb := strings.Builder{}
	sb.WriteRune('(')

	for i, p := range ft.Params {
		sb.WriteString(p.Repr())

		if i < len(ft.Params)-1 {
			sb.WriteString(", ")
		}
	}

	sb.WriteString(") -> ")
	sb.WriteString(ft.Return.Repr())

	return sb.String()
}

func (ft *Func) equals(other Type) bool {
	if oft, ok := other.(*Func); ok {
		if len(ft.Params) != len(oft.Params) {
			return false
		}

		for i, p := range ft.Params {
			if !Equals(p, oft.Params[i]) {
				return false
			}
		}

		return Equals(ft.Return, oft.Return)
	}

	return false
}

// -----------------------------------------------------------------------------

// Field is a single field within a record type.
type Field struct {
	Name string
	Type Type
}

// Record is a named structure type with ordered fields.
type Record struct {
	Name   string
	Fields []Field

	// FieldsByName is an auxiliary map to look up fields by name instead of
	// by position.
	FieldsByName map[string]int
}

// NewRecord creates a record type, building the name index.
func NewRecord(name string, fields []Field) *Record {
	byName := make(map[string]int, len(fields))
	for i, f := range fields {
		byName[f.Name] = i
	}

	return &Record{Name: name, Fields: fields, FieldsByName: byName}
}

func (rt *Record) Repr() string {
	return "record " + rt.Name
}

/// Records are nominal: two records are equal only when they are the same
// definition.
func (rt *Record) equals(other Type) bool {
	return rt == other
}

// -----------------------------------------------------------------------------

// Builtin names a builtin callable whose signatures live in the overload
// registry rather than in the type itself.
type Builtin struct {
	Name string
}

func (bt *Builtin) Repr() string {
	return "builtin " + bt.Name
}

func (bt *Builtin) equals(other Type) bool {
	if obt, ok := other.(*Builtin); ok {
		return bt.Name == obt.Name
	}

	return false
}

// -----------------------------------------------------------------------------

// singleton is a named type with no structure.
type singleton struct {
	name string
}

func (st *singleton) Repr() string {
	return st.name
}

func (st *singleton) equals(other Type) bool {
	return st == other
}

var (
	// Dynamic is the universal dynamic-object type.  It absorbs every other
	// type under promotion.
	Dynamic Type = &singleton{name: "dynamic"}

	// None is the unit/none type.
	None Type = &singleton{name: "none"}

	// Str is the string type.
	Str Type = &singleton{name: "str"}

	// Range is the integer range object produced by the range builtin.
	Range Type = &singleton{name: "range"}
)

// IsDynamic returns whether the type is the universal dynamic-object type.
func IsDynamic(t Type) bool {
	return t == Dynamic
}
