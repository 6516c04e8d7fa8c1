package ir

import (
	"fmt"
	"sort"
	"strings"

	"pyrite/report"
)

// Block is a basic block: an ordered list of statements of which only the
// last may (and must) be a terminator.
type Block struct {
	// Offset is the bytecode offset the block starts at.
	Offset int

	Body []Stmt
}

// NewBlock creates an empty block at the given offset.
func NewBlock(offset int) *Block {
	return &Block{Offset: offset}
}

// Append adds a statement to the end of the block.  Appending past a
// terminator is a fatal internal error.
func (b *Block) Append(stmt Stmt) {
	if b.Terminated() {
		report.ReportICE("append to terminated block %d", b.Offset)
	}

	b.Body = append(b.Body, stmt)
}

// InsertBeforeTerminator adds a statement just before the block terminator.
func (b *Block) InsertBeforeTerminator(stmt Stmt) {
	if !b.Terminated() {
		report.ReportICE("block %d has no terminator to insert before", b.Offset)
	}

	term := b.Body[len(b.Body)-1]
	b.Body[len(b.Body)-1] = stmt
	b.Body = append(b.Body, term)
}

// Terminated returns whether the block ends in a terminator.
func (b *Block) Terminated() bool {
	return len(b.Body) > 0 && b.Body[len(b.Body)-1].Term()
}

// Terminator returns the block's terminator, or nil if there is none.
func (b *Block) Terminator() Stmt {
	if !b.Terminated() {
		return nil
	}

	return b.Body[len(b.Body)-1]
}

// Verify checks the single-terminator invariant: exactly one terminator, only
// as the last statement.
func (b *Block) Verify() error {
	if !b.Terminated() {
		return fmt.Errorf("block %d is missing a terminator", b.Offset)
	}

	for _, stmt := range b.Body[:len(b.Body)-1] {
		if stmt.Term() {
			return fmt.Errorf("block %d has a terminator before its last statement", b.Offset)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// FunctionIR is the translated form of one function: its blocks keyed by
// offset plus the variable-definition table for downstream def-use queries.
type FunctionIR struct {
	Name     string
	ArgNames []string

	// Blocks maps block offsets to blocks.
	Blocks map[int]*Block

	// Definitions maps every variable name to the expressions assigned to it,
	// in translation order.
	Definitions map[string][]Expr

	// LiveIns maps each block offset to the names of its block-entry values
	// in stack order, bottom first.  Predecessors assign these names before
	// their terminator.
	LiveIns map[int][]string

	// Scope is the function's local variable scope.
	Scope *Scope
}

// BlockOrder returns the block offsets in ascending order.
func (fir *FunctionIR) BlockOrder() []int {
	order := make([]int, 0, len(fir.Blocks))
	for off := range fir.Blocks {
		order = append(order, off)
	}
	sort.Ints(order)

	return order
}

// Verify checks the structural invariants of every block.
func (fir *FunctionIR) Verify() error {
	for _, off := range fir.BlockOrder() {
		if err := fir.Blocks[off].Verify(); err != nil {
			return err
		}
	}

	return nil
}

// Dump returns a listing of the function IR for debugging.
func (fir *FunctionIR) Dump() string {
	sb := strings.Builder{}
	fmt.Fprintf(&sb, "ir function %s(%s):\n", fir.Name, strings.Join(fir.ArgNames, ", "))

	for _, off := range fir.BlockOrder() {
		fmt.Fprintf(&sb, "  block %d:\n", off)
		for _, stmt := range fir.Blocks[off].Body {
			fmt.Fprintf(&sb, "    %s\n", stmt.Repr())
		}
	}

	return sb.String()
}
