package codegen

import (
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
	llvalue "github.com/llir/llvm/ir/value"

	"pyrite/ir"
	"pyrite/report"
	"pyrite/types"
)

// arrayElemPtr computes the address of one array element.  A 1-d array takes
// a scalar index; an n-d array takes an n-tuple of indices.  Contiguous
// layouts compute a linear element index from the shape; the generic layout
// walks the byte strides.
func (g *Generator) arrayElemPtr(v *ir.Var, at *types.Array, index *ir.Var) llvalue.Value {
	view := g.viewRef(g.rt.arrayType.(*lltypes.StructType), g.useVar(v))

	indices := g.indexValues(index, at.NDim)
	shape := view.field(arrFieldShape)
	for d := range indices {
		dim := g.block.NewLoad(lltypes.I64,
			g.block.NewGetElementPtr(lltypes.I64, shape, constant.NewInt(lltypes.I64, int64(d))))
		indices[d] = g.wrapIndex(indices[d], dim)
	}

	data := view.field(arrFieldData)
	elemType := g.convType(at.Elem)

	switch at.Layout {
	case types.LayoutC:
		// Row-major: linear = (...(i0*n1 + i1)*n2 + i2)...
		linear := indices[0]
		for d := 1; d < at.NDim; d++ {
			dim := g.block.NewLoad(lltypes.I64,
				g.block.NewGetElementPtr(lltypes.I64, shape, constant.NewInt(lltypes.I64, int64(d))))
			linear = g.block.NewAdd(g.block.NewMul(linear, dim), indices[d])
		}
		typed := g.block.NewBitCast(data, lltypes.NewPointer(elemType))
		return g.block.NewGetElementPtr(elemType, typed, linear)

	case types.LayoutF:
		// Column-major: linear = i0 + n0*(i1 + n1*(i2 + ...))
		linear := indices[at.NDim-1]
		for d := at.NDim - 2; d >= 0; d-- {
			dim := g.block.NewLoad(lltypes.I64,
				g.block.NewGetElementPtr(lltypes.I64, shape, constant.NewInt(lltypes.I64, int64(d))))
			linear = g.block.NewAdd(g.block.NewMul(linear, dim), indices[d])
		}
		typed := g.block.NewBitCast(data, lltypes.NewPointer(elemType))
		return g.block.NewGetElementPtr(elemType, typed, linear)

	default:
		strides := view.field(arrFieldStrides)
		var offset llvalue.Value = constant.NewInt(lltypes.I64, 0)
		for d := 0; d < at.NDim; d++ {
			stride := g.block.NewLoad(lltypes.I64,
				g.block.NewGetElementPtr(lltypes.I64, strides, constant.NewInt(lltypes.I64, int64(d))))
			offset = g.block.NewAdd(offset, g.block.NewMul(indices[d], stride))
		}
		raw := g.block.NewGetElementPtr(lltypes.I8, data, offset)
		return g.block.NewBitCast(raw, lltypes.NewPointer(elemType))
	}
}

// indexValues materializes the per-dimension i64 indices from either a scalar
// integer or an integer tuple matching the array's dimensionality.
func (g *Generator) indexValues(index *ir.Var, ndim int) []llvalue.Value {
	it := g.typeOf(index)

	if tt, ok := it.(types.Tuple); ok {
		if len(tt) != ndim {
			report.ReportICE("%d-tuple indexes a %d-d array", len(tt), ndim)
		}
		agg := g.useVar(index)
		out := make([]llvalue.Value, ndim)
		for d := 0; d < ndim; d++ {
			out[d] = g.intValue(g.block.NewExtractValue(agg, uint64(d)), tt[d])
		}
		return out
	}

	if ndim != 1 {
		report.ReportICE("scalar index on a %d-d array", ndim)
	}

	return []llvalue.Value{g.intValue(g.useVar(index), it)}
}

// wrapIndex applies negative-index wraparound against the dimension extent.
func (g *Generator) wrapIndex(idx, dim llvalue.Value) llvalue.Value {
	neg := g.block.NewICmp(enum.IPredSLT, idx, constant.NewInt(lltypes.I64, 0))
	wrapped := g.block.NewAdd(idx, dim)
	return g.block.NewSelect(neg, wrapped, idx)
}
