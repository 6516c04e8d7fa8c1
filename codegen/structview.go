package codegen

import (
	"github.com/llir/llvm/ir/constant"
	lltypes "github.com/llir/llvm/ir/types"
	llvalue "github.com/llir/llvm/ir/value"
)

// Field indices of the array descriptor struct.
const (
	arrFieldData = iota
	arrFieldNDim
	arrFieldSize
	arrFieldShape
	arrFieldStrides
	arrFieldLayout
)

// structView provides uniform field access over a struct value whether it is
// held by reference (a pointer to heap or stack storage) or owned directly as
// an SSA aggregate.
type structView struct {
	g  *Generator
	st *lltypes.StructType

	// Exactly one of ptr and agg is set.
	ptr llvalue.Value
	agg llvalue.Value
}

// viewRef views a struct held behind a pointer.
func (g *Generator) viewRef(st *lltypes.StructType, ptr llvalue.Value) *structView {
	return &structView{g: g, st: st, ptr: ptr}
}

// viewOwned views a struct held directly as an SSA value.
func (g *Generator) viewOwned(st *lltypes.StructType, agg llvalue.Value) *structView {
	return &structView{g: g, st: st, agg: agg}
}

// field reads field i.
func (v *structView) field(i int) llvalue.Value {
	if v.ptr == nil {
		return v.g.block.NewExtractValue(v.agg, uint64(i))
	}

	return v.g.block.NewLoad(v.st.Fields[i], v.fieldPtr(i))
}

// fieldPtr returns the address of field i.  Only valid on reference views.
func (v *structView) fieldPtr(i int) llvalue.Value {
	return v.g.block.NewGetElementPtr(v.st, v.ptr,
		constant.NewInt(lltypes.I32, 0), constant.NewInt(lltypes.I32, int64(i)))
}

// setField writes field i.  Only valid on reference views.
func (v *structView) setField(i int, val llvalue.Value) {
	v.g.block.NewStore(val, v.fieldPtr(i))
}
