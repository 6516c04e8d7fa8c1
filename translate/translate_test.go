package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyrite/bytecode"
	"pyrite/ir"
)

// inst builds an instruction stream with sequential offsets.
func insts(ops ...[2]int) []bytecode.Instruction {
	out := make([]bytecode.Instruction, len(ops))
	for i, op := range ops {
		out[i] = bytecode.Instruction{Offset: i, Op: bytecode.Opcode(op[0]), Arg: op[1]}
	}

	return out
}

// addFunc is `f(a, b) = a + b`.
func addFunc() *bytecode.Function {
	return &bytecode.Function{
		Name:     "add",
		ArgNames: []string{"a", "b"},
		Locals:   []string{"a", "b"},
		Code: insts(
			[2]int{int(bytecode.LoadLocal), 0},
			[2]int{int(bytecode.LoadLocal), 1},
			[2]int{int(bytecode.BinOp), int(ir.OpAdd)},
			[2]int{int(bytecode.Return), 0},
		),
	}
}

// sumRangeFunc is `s = 0; for x in range(n): s = s + <const 1>; return s`.
func sumRangeFunc(stepConst bytecode.Const) *bytecode.Function {
	return &bytecode.Function{
		Name:     "sum_range",
		ArgNames: []string{"n"},
		Locals:   []string{"n", "s", "x"},
		Names:    []string{"range"},
		Consts:   []bytecode.Const{{Kind: bytecode.ConstInt, Int: 0}, stepConst},
		Code: insts(
			[2]int{int(bytecode.LoadConst), 0}, // 0
			[2]int{int(bytecode.StoreLocal), 1},
			[2]int{int(bytecode.SetupLoop), 15}, // 2
			[2]int{int(bytecode.LoadGlobal), 0},
			[2]int{int(bytecode.LoadLocal), 0},
			[2]int{int(bytecode.Call), 1}, // 5
			[2]int{int(bytecode.GetIter), 0},
			[2]int{int(bytecode.ForIter), 14}, // 7
			[2]int{int(bytecode.StoreLocal), 2},
			[2]int{int(bytecode.LoadLocal), 1},
			[2]int{int(bytecode.LoadConst), 1}, // 10
			[2]int{int(bytecode.BinOp), int(ir.OpAdd)},
			[2]int{int(bytecode.StoreLocal), 1},
			[2]int{int(bytecode.Jump), 7}, // 13
			[2]int{int(bytecode.PopBlock), 0},
			[2]int{int(bytecode.LoadLocal), 1}, // 15
			[2]int{int(bytecode.Return), 0},
		),
	}
}

func TestTranslateStraightLine(t *testing.T) {
	fir, graph, err := Translate(addFunc())
	require.NoError(t, err)

	require.Len(t, fir.Blocks, 1)
	block := fir.Blocks[0]
	require.NotNil(t, block)

	ret, ok := block.Terminator().(*ir.Return)
	require.True(t, ok)

	// Returns route through a coercion temp so typing can retarget every
	// exit to the unified return type.
	defs := fir.Definitions[ret.Value.Name]
	require.Len(t, defs, 1)
	coerce, ok := defs[0].(*ir.Coerce)
	require.True(t, ok)

	binDefs := fir.Definitions[coerce.Value.Name]
	require.Len(t, binDefs, 1)
	_, ok = binDefs[0].(*ir.BinOp)
	assert.True(t, ok)

	assert.Empty(t, graph.Loops())
	assert.Empty(t, fir.LiveIns[0])
}

func TestTranslateArgsBoundAtEntry(t *testing.T) {
	fir, _, err := Translate(addFunc())
	require.NoError(t, err)

	for i, name := range []string{"a", "b"} {
		defs := fir.Definitions[name]
		require.Len(t, defs, 1, "argument %s", name)
		arg, ok := defs[0].(*ir.Arg)
		require.True(t, ok)
		assert.Equal(t, i, arg.Index)
	}
}

func TestTranslateLoop(t *testing.T) {
	fir, graph, err := Translate(sumRangeFunc(bytecode.Const{Kind: bytecode.ConstInt, Int: 1}))
	require.NoError(t, err)

	// The iterator survives the loop as the header's single live-in slot.
	require.Equal(t, []string{"$phi7.0"}, fir.LiveIns[7])

	// The body receives the iterator and the yielded value.
	require.Equal(t, []string{"$phi8.0", "$phi8.1"}, fir.LiveIns[8])

	loops := graph.Loops()
	require.Len(t, loops, 1)
	loop := loops[7]
	require.NotNil(t, loop)
	assert.True(t, loop.Body[8])

	// The accumulator mutates in place inside the loop: no versioned copies.
	assert.NotContains(t, fir.Definitions, "s.1")
	assert.GreaterOrEqual(t, len(fir.Definitions["s"]), 2)
}

func TestTranslateBackboneRenames(t *testing.T) {
	// s = 0; s = 1; return s  -- the second store creates a new version.
	fn := &bytecode.Function{
		Name:     "rebind",
		ArgNames: []string{},
		Locals:   []string{"s"},
		Consts:   []bytecode.Const{{Kind: bytecode.ConstInt, Int: 0}, {Kind: bytecode.ConstInt, Int: 1}},
		Code: insts(
			[2]int{int(bytecode.LoadConst), 0},
			[2]int{int(bytecode.StoreLocal), 0},
			[2]int{int(bytecode.LoadConst), 1},
			[2]int{int(bytecode.StoreLocal), 0},
			[2]int{int(bytecode.LoadLocal), 0},
			[2]int{int(bytecode.Return), 0},
		),
	}

	fir, _, err := Translate(fn)
	require.NoError(t, err)

	assert.Contains(t, fir.Definitions, "s")
	assert.Contains(t, fir.Definitions, "s.1")

	// The final read observes the latest version.
	ret := fir.Blocks[0].Terminator().(*ir.Return)
	coerce := fir.Definitions[ret.Value.Name][0].(*ir.Coerce)
	assert.Equal(t, "s.1", coerce.Value.Name)
}

func TestTranslateConditionalPhis(t *testing.T) {
	// return a if c else b  (value selected on the stack across the join)
	fn := &bytecode.Function{
		Name:     "pick",
		ArgNames: []string{"c", "a", "b"},
		Locals:   []string{"c", "a", "b"},
		Code: insts(
			[2]int{int(bytecode.LoadLocal), 0},
			[2]int{int(bytecode.JumpIfFalse), 4}, // 1
			[2]int{int(bytecode.LoadLocal), 1},
			[2]int{int(bytecode.Jump), 5}, // 3
			[2]int{int(bytecode.LoadLocal), 2}, // 4
			[2]int{int(bytecode.Return), 0}, // 5
		),
	}

	fir, _, err := Translate(fn)
	require.NoError(t, err)

	// Both arms forward their value into the join block's phi slot.
	require.Equal(t, []string{"$phi5.0"}, fir.LiveIns[5])
	defs := fir.Definitions["$phi5.0"]
	require.Len(t, defs, 2)
	for _, def := range defs {
		_, ok := def.(*ir.Use)
		assert.True(t, ok)
	}
}

func TestTranslateStackUnderflowRejected(t *testing.T) {
	fn := &bytecode.Function{
		Name:     "bad",
		ArgNames: []string{},
		Locals:   []string{},
		Code: insts(
			[2]int{int(bytecode.PopTop), 0},
			[2]int{int(bytecode.Return), 0},
		),
	}

	_, _, err := Translate(fn)
	assert.Error(t, err)
}

func TestTranslateWithRegionLegal(t *testing.T) {
	// with ctx: s = 0  -- single entry, single exit.
	fn := &bytecode.Function{
		Name:     "guarded",
		ArgNames: []string{"ctx"},
		Locals:   []string{"ctx", "s"},
		Consts:   []bytecode.Const{{Kind: bytecode.ConstInt, Int: 0}},
		Code: insts(
			[2]int{int(bytecode.LoadLocal), 0},
			[2]int{int(bytecode.SetupWith), 5}, // 1
			[2]int{int(bytecode.LoadConst), 0},
			[2]int{int(bytecode.StoreLocal), 1},
			[2]int{int(bytecode.PopBlock), 0}, // 4
			[2]int{int(bytecode.LoadConst), 0}, // 5
			[2]int{int(bytecode.Return), 0},
		),
	}

	fir, _, err := Translate(fn)
	require.NoError(t, err)

	var scope *ir.EnterScope
	for _, stmt := range fir.Blocks[0].Body {
		if es, ok := stmt.(*ir.EnterScope); ok {
			scope = es
		}
	}
	require.NotNil(t, scope)
	assert.Equal(t, 2, scope.Begin)
	assert.Equal(t, 5, scope.End)
}

func TestTranslateReturnInsideWithRejected(t *testing.T) {
	fn := &bytecode.Function{
		Name:     "escape",
		ArgNames: []string{"ctx"},
		Locals:   []string{"ctx"},
		Consts:   []bytecode.Const{{Kind: bytecode.ConstInt, Int: 0}},
		Code: insts(
			[2]int{int(bytecode.LoadLocal), 0},
			[2]int{int(bytecode.SetupWith), 5}, // 1
			[2]int{int(bytecode.LoadConst), 0},
			[2]int{int(bytecode.Return), 0}, // 3: exit inside the region
			[2]int{int(bytecode.PopBlock), 0},
			[2]int{int(bytecode.LoadConst), 0}, // 5
			[2]int{int(bytecode.Return), 0},
		),
	}

	_, _, err := Translate(fn)
	assert.Error(t, err)
}
