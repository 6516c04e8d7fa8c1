package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyrite/bytecode"
	"pyrite/ir"
	"pyrite/target"
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

// lower runs the front half and lowers the result into a fresh module.
func lower(t *testing.T, fn *bytecode.Function, args []types.Type) (*Lowerer, *NativeFunc) {
	t.Helper()

	fir, graph, err := translate.Translate(fn)
	require.NoError(t, err)

	res, err := typing.NewInferrer(fir, typing.DefaultRegistry(), args, nil, nil).Infer()
	require.NoError(t, err)

	low := NewLowerer(target.Native())
	nf, err := low.Lower(fir, graph, res, args, true)
	require.NoError(t, err)
	return low, nf
}

func TestLowerNativeConvention(t *testing.T) {
	low, nf := lower(t, addFunc(), []types.Type{types.Int32, types.Int32})
	text := low.Mod.String()

	assert.Equal(t, "add", nf.Entry.Name())
	assert.Contains(t, text, "define i32 @add(i32* %ret, %pyr.obj** %exc, i32 %a, i32 %b)")

	// The scalar sum lowers to a plain add feeding the return slot.
	assert.Contains(t, text, "add i32")
}

func TestLowerTailBlocks(t *testing.T) {
	low, _ := lower(t, addFunc(), []types.Type{types.Int32, types.Int32})
	text := low.Mod.String()

	// Exactly one cleanup and one error tail per function; the error block
	// records the failure status and falls into cleanup.
	body := text[strings.Index(text, "define i32 @add"):]
	if next := strings.Index(body[1:], "\ndefine"); next >= 0 {
		body = body[:next+1]
	}

	assert.Equal(t, 1, strings.Count(body, "\ncleanup:"))
	assert.Equal(t, 1, strings.Count(body, "\nerror:"))
	assert.Equal(t, 2, strings.Count(body, "br label %cleanup"))
}

func TestLowerWrapper(t *testing.T) {
	low, nf := lower(t, addFunc(), []types.Type{types.Int32, types.Int32})
	text := low.Mod.String()

	require.NotNil(t, nf.Wrapper)
	assert.Contains(t, text, "@add.wrapper")
	assert.Contains(t, text, "pyr_tuple_getitem")
	assert.Contains(t, text, "pyr_unbox_i64")
	assert.Contains(t, text, "pyr_box_i64")
	assert.Contains(t, text, "pyr_raise")
}

func TestLowerManagedSlotsReleased(t *testing.T) {
	low, nf := lower(t, sumRangeFunc(), []types.Type{types.Int64})
	text := low.Mod.String()

	// The range object and its iterator occupy managed slots: each one is
	// null-initialized at entry and released once by the cleanup walk.
	assert.Greater(t, nf.ManagedSlots, 0)
	assert.GreaterOrEqual(t, strings.Count(text, "store %pyr.obj* null"), nf.ManagedSlots)
	assert.GreaterOrEqual(t, strings.Count(text, "call void @pyr_decref"), nf.ManagedSlots)

	assert.Contains(t, text, "pyr_range_new")
	assert.Contains(t, text, "pyr_getiter")
	assert.Contains(t, text, "pyr_iternext_i64")
}

func TestLowerPhisForUnmanagedLiveIns(t *testing.T) {
	// pick(c, a, b) = a if c else b: the joined value crosses the merge as a
	// phi, not through memory.
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

	low, _ := lower(t, fn, []types.Type{types.Bool, types.Int64, types.Int64})
	text := low.Mod.String()

	assert.Contains(t, text, "phi i64")
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

// countRowsFunc is `c = 0; for x in a: c = c + 1; return c`.
func countRowsFunc() *bytecode.Function {
	return &bytecode.Function{
		Name:     "count_rows",
		ArgNames: []string{"a"},
		Locals:   []string{"a", "c", "x"},
		Consts: []bytecode.Const{
			{Kind: bytecode.ConstInt, Int: 0},
			{Kind: bytecode.ConstInt, Int: 1},
		},
		Code: insts(
			[2]int{int(bytecode.LoadConst), 0},
			[2]int{int(bytecode.StoreLocal), 1},
			[2]int{int(bytecode.SetupLoop), 13},
			[2]int{int(bytecode.LoadLocal), 0},
			[2]int{int(bytecode.GetIter), 0},
			[2]int{int(bytecode.ForIter), 12}, // 5
			[2]int{int(bytecode.StoreLocal), 2},
			[2]int{int(bytecode.LoadLocal), 1},
			[2]int{int(bytecode.LoadConst), 1},
			[2]int{int(bytecode.BinOp), int(ir.OpAdd)},
			[2]int{int(bytecode.StoreLocal), 1}, // 10
			[2]int{int(bytecode.Jump), 5},
			[2]int{int(bytecode.PopBlock), 0},
			[2]int{int(bytecode.LoadLocal), 1}, // 13
			[2]int{int(bytecode.Return), 0},
		),
	}
}

func TestLowerWidenedAccumulator(t *testing.T) {
	low, nf := lower(t, sumRangeFunc(), []types.Type{types.Int64})
	text := low.Mod.String()

	// The accumulator starts as an integer constant but widens to float64 at
	// the fixed point; its initial store converts rather than storing raw.
	assert.True(t, types.Equals(nf.Return, types.Float64))
	assert.Contains(t, text, "sitofp")
	assert.Contains(t, text, "fadd double")
}

func TestLowerDynamicIteration(t *testing.T) {
	low, nf := lower(t, sumIterFunc(), []types.Type{types.Dynamic})
	text := low.Mod.String()

	// Iterating an untyped argument routes through the object protocol end to
	// end: runtime iterator, boxed elements, protocol arithmetic.
	assert.Contains(t, text, "pyr_getiter")
	assert.Contains(t, text, "pyr_iternext_obj")
	assert.Contains(t, text, "pyr_binop")

	// Each iteration overwrites managed slots, releasing the previous holder;
	// those releases come on top of the cleanup walk.
	assert.Contains(t, text, "pyr_incref")
	assert.Greater(t, strings.Count(text, "call void @pyr_decref"), nf.ManagedSlots)
}

func TestLowerArrayRowIteration(t *testing.T) {
	arr := &types.Array{Elem: types.Float64, NDim: 2, Layout: types.LayoutC}
	low, nf := lower(t, countRowsFunc(), []types.Type{arr})
	text := low.Mod.String()

	// Row iterators yield boxed descriptors: the element comes back as an
	// owned object and unboxes to a typed array handle on the valid path.
	assert.Contains(t, text, "pyr_iternext_obj")
	assert.Contains(t, text, "pyr_unbox_array")

	// The row variable's slot is descriptor-typed and still joins the
	// managed walk.
	assert.Contains(t, text, "store %pyr.array* null")
	assert.GreaterOrEqual(t, strings.Count(text, "call void @pyr_decref"), nf.ManagedSlots)
}

func TestLowerRecordField(t *testing.T) {
	rec := types.NewRecord("point", []types.Field{
		{Name: "x", Type: types.Float64},
		{Name: "y", Type: types.Float64},
	})
	fn := &bytecode.Function{
		Name:     "getx",
		ArgNames: []string{"p"},
		Locals:   []string{"p"},
		Names:    []string{"x"},
		Code: insts(
			[2]int{int(bytecode.LoadLocal), 0},
			[2]int{int(bytecode.GetAttr), 0},
			[2]int{int(bytecode.Return), 0},
		),
	}

	fir, graph, err := translate.Translate(fn)
	require.NoError(t, err)
	res, err := typing.NewInferrer(fir, typing.DefaultRegistry(), []types.Type{rec}, nil, nil).Infer()
	require.NoError(t, err)

	// Records pass by value and have no dynamic boxing, so no wrapper.
	low := NewLowerer(target.Native())
	nf, err := low.Lower(fir, graph, res, []types.Type{rec}, false)
	require.NoError(t, err)
	text := low.Mod.String()

	assert.True(t, types.Equals(nf.Return, types.Float64))
	assert.Contains(t, text, "%record.point")
	assert.Contains(t, text, "extractvalue %record.point")
}

func TestLowerDynamicBinOp(t *testing.T) {
	low, _ := lower(t, addFunc(), []types.Type{types.Dynamic, types.Dynamic})
	text := low.Mod.String()

	// Dynamic operands route the operation through the runtime protocol.
	assert.Contains(t, text, "pyr_binop")
	assert.Contains(t, text, "br i1")
}
