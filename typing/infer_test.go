package typing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyrite/bytecode"
	"pyrite/ir"
	"pyrite/report"
	"pyrite/translate"
	"pyrite/types"
)

func insts(ops ...[2]int) []bytecode.Instruction {
	out := make([]bytecode.Instruction, len(ops))
	for i, op := range ops {
		out[i] = bytecode.Instruction{Offset: i, Op: bytecode.Opcode(op[0]), Arg: op[1]}
	}

	return out
}

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

// sumIterFunc is `s = 0; for x in a: s = s + x; return s`.
func sumIterFunc() *bytecode.Function {
	return &bytecode.Function{
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
}

// sumRangeFunc is `s = 0; for x in range(n): s = s + 0.5; return s`.
func sumRangeFunc() *bytecode.Function {
	return &bytecode.Function{
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
}

func inferOn(t *testing.T, fn *bytecode.Function, args []types.Type) (*ir.FunctionIR, *Result) {
	t.Helper()

	fir, _, err := translate.Translate(fn)
	require.NoError(t, err)

	res, err := NewInferrer(fir, DefaultRegistry(), args, nil, nil).Infer()
	require.NoError(t, err)
	return fir, res
}

func TestInferScalarAdd(t *testing.T) {
	_, res := inferOn(t, addFunc(), []types.Type{types.Int32, types.Int32})

	assert.True(t, types.Equals(res.Return, types.Int32))
	assert.True(t, types.Equals(res.TypeMap["a"], types.Int32))
	assert.True(t, types.Equals(res.TypeMap["b"], types.Int32))
}

func TestInferMixedAddPromotes(t *testing.T) {
	_, res := inferOn(t, addFunc(), []types.Type{types.Int64, types.Float32})

	assert.True(t, types.Equals(res.Return, types.Float64))
}

func TestInferIterableSum(t *testing.T) {
	arr := &types.Array{Elem: types.Float64, NDim: 1, Layout: types.LayoutC}
	_, res := inferOn(t, sumIterFunc(), []types.Type{arr})

	// The accumulator starts integral and widens to the element type at the
	// loop's fixed point.
	assert.True(t, types.Equals(res.TypeMap["s"], types.Float64))
	assert.True(t, types.Equals(res.Return, types.Float64))
}

func TestInferRangeLoopFixedPoint(t *testing.T) {
	_, res := inferOn(t, sumRangeFunc(), []types.Type{types.Int64})

	assert.True(t, types.Equals(res.TypeMap["s"], types.Float64))
	assert.True(t, types.Equals(res.Return, types.Float64))
}

func TestInferIncompatibleOperandsFault(t *testing.T) {
	rec := types.NewRecord("point", []types.Field{
		{Name: "x", Type: types.Float64},
		{Name: "y", Type: types.Float64},
	})
	arr := &types.Array{Elem: types.Float64, NDim: 1, Layout: types.LayoutC}

	fir, _, err := translate.Translate(addFunc())
	require.NoError(t, err)

	_, err = NewInferrer(fir, DefaultRegistry(), []types.Type{rec, arr}, nil, nil).Infer()
	require.Error(t, err)

	tf, ok := err.(*report.TypeFault)
	require.True(t, ok, "fault must be structured, got %T", err)
	assert.Equal(t, report.FaultUnpromotable, tf.Kind)
	assert.Contains(t, tf.Types, rec.Repr())
	assert.Contains(t, tf.Types, arr.Repr())
}

func TestInferDeterministic(t *testing.T) {
	run := func() map[string]types.Type {
		_, res := inferOn(t, sumRangeFunc(), []types.Type{types.Int64})
		return res.TypeMap
	}

	first := run()
	second := run()

	require.Equal(t, len(first), len(second))
	for name, typ := range first {
		other, ok := second[name]
		require.True(t, ok, "variable %s missing on re-run", name)
		assert.True(t, types.Equals(typ, other),
			"variable %s: %s vs %s", name, typ.Repr(), other.Repr())
	}
}

func TestInferCoercionsInserted(t *testing.T) {
	fir, res := inferOn(t, addFunc(), []types.Type{types.Int32, types.Int64})

	// The narrower operand routes through an inserted conversion temp.
	found := false
	for name := range res.TypeMap {
		if len(name) > 8 && name[:8] == "$coerce." {
			found = true
			assert.True(t, types.Equals(res.TypeMap[name], types.Int64))
		}
	}
	assert.True(t, found, "no coercion temps inserted")

	require.NoError(t, fir.Verify())
}

func TestInferWidenedStoreCoerced(t *testing.T) {
	fir, res := inferOn(t, sumRangeFunc(), []types.Type{types.Int64})

	// The integer seed of the widened accumulator routes through an inserted
	// conversion: the constant lands in a temp at its natural type and the
	// variable receives the converted value.
	found := false
	for _, def := range fir.Definitions["s"] {
		if c, ok := def.(*ir.Coerce); ok {
			found = true
			assert.True(t, types.Equals(res.TypeMap[c.Value.Name], types.Int64))
		}
	}
	assert.True(t, found, "widened store not retargeted")
	require.NoError(t, fir.Verify())
}

func TestInferDynamicIteration(t *testing.T) {
	_, res := inferOn(t, sumIterFunc(), []types.Type{types.Dynamic})

	// An untyped iterable still yields the structural (value, valid) pair so
	// the for-each expansion types uniformly.
	assert.True(t, types.Equals(res.TypeMap["$pair5"], types.Tuple{types.Dynamic, types.Bool}))
	assert.True(t, types.Equals(res.TypeMap["x"], types.Dynamic))
	assert.True(t, types.Equals(res.Return, types.Dynamic))
}

func TestInferUnboundReadFault(t *testing.T) {
	// return s  with s never written.
	fn := &bytecode.Function{
		Name:     "unbound",
		ArgNames: []string{},
		Locals:   []string{"s"},
		Code: insts(
			[2]int{int(bytecode.LoadLocal), 0},
			[2]int{int(bytecode.Return), 0},
		),
	}

	fir, _, err := translate.Translate(fn)
	require.NoError(t, err)

	_, err = NewInferrer(fir, DefaultRegistry(), nil, nil, nil).Infer()
	require.Error(t, err)

	tf, ok := err.(*report.TypeFault)
	require.True(t, ok)
	assert.Equal(t, report.FaultUnbound, tf.Kind)
}
