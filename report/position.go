package report

import "fmt"

// InstLoc identifies a position within a compiled function: the name of the
// function and the bytecode offset the position refers to.  Unlike a classical
// source span, bytecode positions are single offsets: the instruction stream
// is the only "source text" this compiler ever sees.
type InstLoc struct {
	// Function is the name of the function being compiled.
	Function string

	// Offset is the bytecode offset of the instruction.
	Offset int
}

// NewLoc returns a new instruction location.
func NewLoc(function string, offset int) *InstLoc {
	return &InstLoc{Function: function, Offset: offset}
}

func (l *InstLoc) String() string {
	if l == nil {
		return "<unknown>"
	}

	return fmt.Sprintf("%s+%d", l.Function, l.Offset)
}
