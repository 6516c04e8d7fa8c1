package ir

// Operator designates a binary, comparison, or unary operator.  Operators are
// the keys of the overload registry.
type Operator int

// Enumeration of operators.
const (
	OpAdd Operator = iota
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
	OpMod
	OpPow
	OpLShift
	OpRShift
	OpBitAnd
	OpBitOr
	OpBitXor

	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe

	OpNeg
	OpPos
	OpInvert
	OpNot
)

// operatorSymbols maps operators to their display symbol.
var operatorSymbols = [...]string{
	OpAdd:      "+",
	OpSub:      "-",
	OpMul:      "*",
	OpDiv:      "/",
	OpFloorDiv: "//",
	OpMod:      "%",
	OpPow:      "**",
	OpLShift:   "<<",
	OpRShift:   ">>",
	OpBitAnd:   "&",
	OpBitOr:    "|",
	OpBitXor:   "^",
	OpEq:       "==",
	OpNe:       "!=",
	OpLt:       "<",
	OpLe:       "<=",
	OpGt:       ">",
	OpGe:       ">=",
	OpNeg:      "neg",
	OpPos:      "pos",
	OpInvert:   "~",
	OpNot:      "not",
}

func (op Operator) String() string {
	return operatorSymbols[op]
}

// IsCompare returns whether the operator is a comparison.
func (op Operator) IsCompare() bool {
	return op >= OpEq && op <= OpGe
}

// IsUnary returns whether the operator is unary.
func (op Operator) IsUnary() bool {
	return op >= OpNeg
}
