package bytecode

// Opcode designates one instruction kind of the dynamic stack machine.  The
// set is closed: every consumer dispatches over it with a switch, never by
// reflective name lookup.
type Opcode int

// Enumeration of opcodes.
const (
	Nop Opcode = iota

	// Stack manipulation.
	LoadConst  // push constant pool entry Arg
	LoadLocal  // push local variable Arg
	StoreLocal // pop into local variable Arg
	LoadGlobal // push global named Names[Arg]
	LoadFree   // push free/cell variable Arg
	DupTop     // duplicate the top of the stack
	PopTop     // discard the top of the stack
	RotTwo     // swap the two top stack entries

	// Operators.  Arg indexes the operator table (see ir.Operator).
	UnaryOp
	BinOp
	InplaceOp
	Compare

	// Attribute and item access.
	GetAttr // attribute Names[Arg] of the top of the stack
	GetItem
	SetItem
	DelItem

	// Container construction.  Arg is the element (or pair) count.
	BuildTuple
	BuildList
	BuildMap

	// Iteration.
	GetIter
	ForIter // advance iterator; on exhaustion jump to Arg

	// Calls.  Arg is the positional argument count.
	Call

	// Control flow.  Arg is an absolute target offset.
	Jump
	JumpIfTrue
	JumpIfFalse
	JumpIfTrueOrPop  // jump keeping the operand, else pop and fall through
	JumpIfFalseOrPop // jump keeping the operand, else pop and fall through

	// Structured regions.  Arg is the absolute exit offset.
	SetupLoop
	SetupWith
	PopBlock
	BreakLoop

	// Terminators.
	Return
	Raise
)

// opcodeNames maps opcodes to their mnemonic.
var opcodeNames = [...]string{
	Nop:              "nop",
	LoadConst:        "load_const",
	LoadLocal:        "load_local",
	StoreLocal:       "store_local",
	LoadGlobal:       "load_global",
	LoadFree:         "load_free",
	DupTop:           "dup_top",
	PopTop:           "pop_top",
	RotTwo:           "rot_two",
	UnaryOp:          "unary_op",
	BinOp:            "bin_op",
	InplaceOp:        "inplace_op",
	Compare:          "compare",
	GetAttr:          "get_attr",
	GetItem:          "get_item",
	SetItem:          "set_item",
	DelItem:          "del_item",
	BuildTuple:       "build_tuple",
	BuildList:        "build_list",
	BuildMap:         "build_map",
	GetIter:          "get_iter",
	ForIter:          "for_iter",
	Call:             "call",
	Jump:             "jump",
	JumpIfTrue:       "jump_if_true",
	JumpIfFalse:      "jump_if_false",
	JumpIfTrueOrPop:  "jump_if_true_or_pop",
	JumpIfFalseOrPop: "jump_if_false_or_pop",
	SetupLoop:        "setup_loop",
	SetupWith:        "setup_with",
	PopBlock:         "pop_block",
	BreakLoop:        "break_loop",
	Return:           "return",
	Raise:            "raise",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}

	return "<bad opcode>"
}

// OpcodeByName resolves a mnemonic back to its opcode, for deserializing
// instruction listings.
func OpcodeByName(name string) (Opcode, bool) {
	for op, n := range opcodeNames {
		if n == name {
			return Opcode(op), true
		}
	}

	return Nop, false
}

// IsJump returns whether the opcode transfers control to an explicit target.
func (op Opcode) IsJump() bool {
	switch op {
	case Jump, JumpIfTrue, JumpIfFalse, JumpIfTrueOrPop, JumpIfFalseOrPop, ForIter, BreakLoop:
		return true
	default:
		return false
	}
}

// IsTerminator returns whether the opcode ends the function outright.
func (op Opcode) IsTerminator() bool {
	return op == Return || op == Raise
}
