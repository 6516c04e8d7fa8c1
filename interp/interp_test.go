package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyrite/bytecode"
	"pyrite/ir"
	"pyrite/translate"
	"pyrite/types"
	"pyrite/typing"
)

func insts(ops ...[2]int) []bytecode.Instruction {
	out := make([]bytecode.Instruction, len(ops))
	for i, op := range ops {
		out[i] = bytecode.Instruction{Offset: i, Op: bytecode.Opcode(op[0]), Arg: op[1]}
	}

	return out
}

// machineFor compiles a function front half (translate + infer) and wraps the
// typed IR in an evaluator.
func machineFor(t *testing.T, fn *bytecode.Function, args []types.Type) *Machine {
	t.Helper()

	fir, _, err := translate.Translate(fn)
	require.NoError(t, err)

	res, err := typing.NewInferrer(fir, typing.DefaultRegistry(), args, nil, nil).Infer()
	require.NoError(t, err)

	return New(fir, res.TypeMap)
}

func TestEvalScalarAdd(t *testing.T) {
	fn := &bytecode.Function{
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

	m := machineFor(t, fn, []types.Type{types.Int32, types.Int32})
	out, err := m.Run(int64(2), int64(3))
	require.NoError(t, err)
	assert.Equal(t, int64(5), out)
}

func TestEvalIterableSum(t *testing.T) {
	// s = 0; for x in a: s = s + x; return s
	fn := &bytecode.Function{
		Name:     "sum_iter",
		ArgNames: []string{"a"},
		Locals:   []string{"a", "s", "x"},
		Consts:   []bytecode.Const{{Kind: bytecode.ConstInt, Int: 0}},
		Code: insts(
			[2]int{int(bytecode.LoadConst), 0},
			[2]int{int(bytecode.StoreLocal), 1},
			[2]int{int(bytecode.SetupLoop), 13},
			[2]int{int(bytecode.LoadLocal), 0},
			[2]int{int(bytecode.GetIter), 0},
			[2]int{int(bytecode.ForIter), 12}, // 5
			[2]int{int(bytecode.StoreLocal), 2},
			[2]int{int(bytecode.LoadLocal), 1},
			[2]int{int(bytecode.LoadLocal), 2},
			[2]int{int(bytecode.BinOp), int(ir.OpAdd)},
			[2]int{int(bytecode.StoreLocal), 1}, // 10
			[2]int{int(bytecode.Jump), 5},
			[2]int{int(bytecode.PopBlock), 0},
			[2]int{int(bytecode.LoadLocal), 1}, // 13
			[2]int{int(bytecode.Return), 0},
		),
	}

	arr := &types.Array{Elem: types.Float64, NDim: 1, Layout: types.LayoutC}
	m := machineFor(t, fn, []types.Type{arr})

	out, err := m.Run(&List{Items: []Value{1.0, 2.0, 3.0}})
	require.NoError(t, err)
	assert.Equal(t, 6.0, out)
}

func TestEvalRangeLoop(t *testing.T) {
	// s = 0; for x in range(n): s = s + 0.5; return s
	fn := &bytecode.Function{
		Name:     "sum_range",
		ArgNames: []string{"n"},
		Locals:   []string{"n", "s", "x"},
		Names:    []string{"range"},
		Consts: []bytecode.Const{
			{Kind: bytecode.ConstInt, Int: 0},
			{Kind: bytecode.ConstFloat, Float: 0.5},
		},
		Code: insts(
			[2]int{int(bytecode.LoadConst), 0},
			[2]int{int(bytecode.StoreLocal), 1},
			[2]int{int(bytecode.SetupLoop), 15},
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
			[2]int{int(bytecode.Jump), 7},
			[2]int{int(bytecode.PopBlock), 0},
			[2]int{int(bytecode.LoadLocal), 1}, // 15
			[2]int{int(bytecode.Return), 0},
		),
	}

	m := machineFor(t, fn, []types.Type{types.Int64})
	out, err := m.Run(int64(4))
	require.NoError(t, err)
	assert.Equal(t, 2.0, out)
}

func TestEvalWrapsNarrowIntegers(t *testing.T) {
	// a + b at int8 wraps around.
	fn := &bytecode.Function{
		Name:     "add8",
		ArgNames: []string{"a", "b"},
		Locals:   []string{"a", "b"},
		Code: insts(
			[2]int{int(bytecode.LoadLocal), 0},
			[2]int{int(bytecode.LoadLocal), 1},
			[2]int{int(bytecode.BinOp), int(ir.OpAdd)},
			[2]int{int(bytecode.Return), 0},
		),
	}

	m := machineFor(t, fn, []types.Type{types.Int8, types.Int8})
	out, err := m.Run(int64(100), int64(100))
	require.NoError(t, err)
	assert.Equal(t, int64(-56), out)
}

func TestEvalConditional(t *testing.T) {
	// return a if c else b
	fn := &bytecode.Function{
		Name:     "pick",
		ArgNames: []string{"c", "a", "b"},
		Locals:   []string{"c", "a", "b"},
		Code: insts(
			[2]int{int(bytecode.LoadLocal), 0},
			[2]int{int(bytecode.JumpIfFalse), 4},
			[2]int{int(bytecode.LoadLocal), 1},
			[2]int{int(bytecode.Jump), 5},
			[2]int{int(bytecode.LoadLocal), 2}, // 4
			[2]int{int(bytecode.Return), 0}, // 5
		),
	}

	m := machineFor(t, fn, []types.Type{types.Bool, types.Int64, types.Int64})

	out, err := m.Run(true, int64(7), int64(9))
	require.NoError(t, err)
	assert.Equal(t, int64(7), out)

	out, err = m.Run(false, int64(7), int64(9))
	require.NoError(t, err)
	assert.Equal(t, int64(9), out)
}
