package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyrite/bytecode"
	"pyrite/ir"
	"pyrite/report"
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

// twiceFunc is `twice(x) = add(x, x)` through a global reference.
func twiceFunc() *bytecode.Function {
	return &bytecode.Function{
		Name:     "twice",
		ArgNames: []string{"x"},
		Locals:   []string{"x"},
		Names:    []string{"add"},
		Code: insts(
			[2]int{int(bytecode.LoadGlobal), 0},
			[2]int{int(bytecode.LoadLocal), 0},
			[2]int{int(bytecode.LoadLocal), 0},
			[2]int{int(bytecode.Call), 2},
			[2]int{int(bytecode.Return), 0},
		),
	}
}

func TestCompileEndToEnd(t *testing.T) {
	s := New(Config{})

	cf, err := s.Compile(Request{
		Fn:   addFunc(),
		Args: []types.Type{types.Int32, types.Int32},
	})
	require.NoError(t, err)

	assert.Equal(t, "add", cf.Name)
	assert.Equal(t, "add", cf.EntryName)
	assert.Equal(t, "add.wrapper", cf.WrapperName)
	assert.True(t, types.Equals(cf.Signature.Return, types.Int32))
	assert.Equal(t, 0, cf.ManagedSlots)

	text := s.Module().String()
	assert.Contains(t, text, "define i32 @add(i32* %ret, %pyr.obj** %exc, i32 %a, i32 %b)")
	assert.Contains(t, text, "@add.wrapper")

	got, ok := s.Lookup("add")
	require.True(t, ok)
	assert.Same(t, cf, got)
}

func TestCompileNoWrapper(t *testing.T) {
	s := New(Config{})

	cf, err := s.Compile(Request{
		Fn:        addFunc(),
		Args:      []types.Type{types.Int64, types.Int64},
		NoWrapper: true,
	})
	require.NoError(t, err)

	assert.Empty(t, cf.WrapperName)
	assert.NotContains(t, s.Module().String(), "add.wrapper")
}

func TestCompileBindsNativeCalls(t *testing.T) {
	s := New(Config{})

	callee, err := s.Compile(Request{
		Fn:   addFunc(),
		Args: []types.Type{types.Int64, types.Int64},
	})
	require.NoError(t, err)

	caller, err := s.Compile(Request{
		Fn:   twiceFunc(),
		Args: []types.Type{types.Int64},
	})
	require.NoError(t, err)

	assert.True(t, types.Equals(caller.Signature.Return, types.Int64))

	// The typed call binds the native entry directly, sharing the caller's
	// exception slot, and pins the callee alive.
	text := s.Module().String()
	assert.Contains(t, text, "call i32 @add")

	require.Len(t, caller.KeepAlive, 1)
	assert.Same(t, callee, caller.KeepAlive[0])
	assert.Empty(t, callee.KeepAlive)
}

func TestDeclareResolvesForwardCalls(t *testing.T) {
	s := New(Config{})

	sig := &types.Func{
		Params: []types.Type{types.Int64, types.Int64},
		Return: types.Int64,
	}
	s.Declare("add", sig)

	// The caller compiles against the placeholder before the body exists.
	caller, err := s.Compile(Request{
		Fn:   twiceFunc(),
		Args: []types.Type{types.Int64},
	})
	require.NoError(t, err)
	assert.True(t, types.Equals(caller.Signature.Return, types.Int64))

	// Placeholder callees are not yet pinnable.
	assert.Empty(t, caller.KeepAlive)

	_, err = s.Compile(Request{
		Fn:   addFunc(),
		Args: []types.Type{types.Int64, types.Int64},
	})
	require.NoError(t, err)

	// The forward declaration becomes the single definition of the body.
	text := s.Module().String()
	assert.Equal(t, 1, strings.Count(text, "define i32 @add(i64* %ret"))
	assert.NotContains(t, text, "declare i32 @add")
}

func TestCompileArityMismatch(t *testing.T) {
	s := New(Config{})

	_, err := s.Compile(Request{
		Fn:   addFunc(),
		Args: []types.Type{types.Int64},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "takes 2 arguments")
}

func TestCompileTypeFaultSurfaces(t *testing.T) {
	s := New(Config{})

	rec := types.NewRecord("point", []types.Field{
		{Name: "x", Type: types.Float64},
		{Name: "y", Type: types.Float64},
	})
	arr := &types.Array{Elem: types.Float64, NDim: 1, Layout: types.LayoutC}

	_, err := s.Compile(Request{
		Fn:   addFunc(),
		Args: []types.Type{rec, arr},
	})
	require.Error(t, err)

	tf, ok := err.(*report.TypeFault)
	require.True(t, ok, "fault must be structured, got %T", err)
	assert.Equal(t, report.FaultUnpromotable, tf.Kind)

	// A failed compilation leaves no binding behind.
	_, found := s.Lookup("add")
	assert.False(t, found)
}

func TestCompileDeclaredReturnCoerces(t *testing.T) {
	s := New(Config{})

	cf, err := s.Compile(Request{
		Fn:             addFunc(),
		Args:           []types.Type{types.Int32, types.Int32},
		DeclaredReturn: types.Float64,
	})
	require.NoError(t, err)

	assert.True(t, types.Equals(cf.Signature.Return, types.Float64))
	assert.Contains(t, s.Module().String(), "define i32 @add(double* %ret")
}
