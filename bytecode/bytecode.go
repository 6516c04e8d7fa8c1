package bytecode

import (
	"fmt"
	"strings"
)

// Instruction is a single decoded instruction: its offset in the stream, its
// opcode, and one integer argument whose meaning depends on the opcode.
type Instruction struct {
	Offset int
	Op     Opcode
	Arg    int
}

// Next returns the offset of the instruction following this one.  All
// instructions occupy a single offset slot.
func (inst Instruction) Next() int {
	return inst.Offset + 1
}

// JumpTarget returns the instruction's absolute jump target.  It may only be
// called on jump instructions.
func (inst Instruction) JumpTarget() int {
	if !inst.Op.IsJump() {
		panic(fmt.Sprintf("JumpTarget on non-jump instruction %s", inst.Op))
	}

	return inst.Arg
}

func (inst Instruction) String() string {
	return fmt.Sprintf("%4d  %s %d", inst.Offset, inst.Op, inst.Arg)
}

// -----------------------------------------------------------------------------

// Enumeration of constant kinds.
const (
	ConstNone = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstComplex
	ConstStr
)

// Const is a constant-pool entry.  Exactly one value field is meaningful as
// selected by Kind.
type Const struct {
	Kind  int
	Bool  bool
	Int   int64
	Float float64
	Cmplx complex128
	Str   string
}

func (c Const) String() string {
	switch c.Kind {
	case ConstNone:
		return "none"
	case ConstBool:
		return fmt.Sprint(c.Bool)
	case ConstInt:
		return fmt.Sprint(c.Int)
	case ConstFloat:
		return fmt.Sprint(c.Float)
	case ConstComplex:
		return fmt.Sprint(c.Cmplx)
	default:
		return fmt.Sprintf("%q", c.Str)
	}
}

// -----------------------------------------------------------------------------

// Function is one compilation unit: an ordered instruction stream plus the
// static metadata the translator needs.
type Function struct {
	// Name is the qualified name of the function.
	Name string

	// Code is the instruction stream in offset order.
	Code []Instruction

	// ArgNames are the names of the function's parameters, in order.
	ArgNames []string

	// Locals are the names of all local variables (parameters first).
	Locals []string

	// Names is the name table used by LoadGlobal and GetAttr.
	Names []string

	// FreeNames and FreeVals describe the function's closure: free variables
	// are captured as literal-value snapshots at translation time.
	FreeNames []string
	FreeVals  []Const

	// CellNames are variables shared with nested closures.  Writes to cell
	// variables never rename.
	CellNames []string

	// Consts is the constant pool.
	Consts []Const
}

// Labels returns the set of all jump-target offsets in the function.  Each
// label starts a new basic block.
func (fn *Function) Labels() map[int]bool {
	labels := map[int]bool{0: true}
	for _, inst := range fn.Code {
		if inst.Op.IsJump() {
			labels[inst.JumpTarget()] = true
		}
	}

	return labels
}

// InstAt returns the instruction at the given offset.
func (fn *Function) InstAt(offset int) Instruction {
	if offset < 0 || offset >= len(fn.Code) {
		panic(fmt.Sprintf("instruction offset %d out of range", offset))
	}

	return fn.Code[offset]
}

// Dump returns a disassembly listing of the function for debugging.
func (fn *Function) Dump() string {
	sb := strings.Builder{}
	sb.WriteString("function ")
	sb.WriteString(fn.Name)
	sb.WriteString("(")
	sb.WriteString(strings.Join(fn.ArgNames, ", "))
	sb.WriteString("):\n")

	for _, inst := range fn.Code {
		sb.WriteString(inst.String())
		sb.WriteRune('\n')
	}

	return sb.String()
}
