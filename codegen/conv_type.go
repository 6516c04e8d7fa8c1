package codegen

import (
	lltypes "github.com/llir/llvm/ir/types"

	"pyrite/report"
	"pyrite/types"
)

// convType converts a pipeline type to its LLVM representation.
func (g *Generator) convType(t types.Type) lltypes.Type {
	switch v := t.(type) {
	case types.Scalar:
		return g.convScalarType(v)
	case types.Tuple:
		members := make([]lltypes.Type, len(v))
		for i, m := range v {
			members[i] = g.convType(m)
		}
		return lltypes.NewStruct(members...)
	case *types.Record:
		return g.convRecordType(v)
	case *types.Pointer:
		return lltypes.NewPointer(g.convType(v.Elem))
	case *types.Array:
		return g.rt.arrayPtr
	case *types.Iter:
		return g.rt.objPtr
	}

	if types.IsDynamic(t) || t == types.Str || t == types.Range {
		return g.rt.objPtr
	}
	if t == types.None {
		// The unit value occupies one meaningless byte.
		return lltypes.I8
	}

	report.ReportICE("type %s has no native representation", t.Repr())
	return nil
}

func (g *Generator) convScalarType(t types.Scalar) lltypes.Type {
	switch t.Kind {
	case types.KindBool:
		return lltypes.I1
	case types.KindInt:
		switch t.Bits {
		case 8:
			return lltypes.I8
		case 16:
			return lltypes.I16
		case 32:
			return lltypes.I32
		default:
			return lltypes.I64
		}
	case types.KindFloat:
		if t.Bits == 32 {
			return lltypes.Float
		}
		return lltypes.Double
	default:
		half := lltypes.Type(lltypes.Double)
		if t.Bits == 64 {
			half = lltypes.Float
		}
		return lltypes.NewStruct(half, half)
	}
}

// convRecordType converts a record, caching one named struct per definition.
func (g *Generator) convRecordType(rt *types.Record) lltypes.Type {
	if cached, ok := g.recordTypes[rt]; ok {
		return cached
	}

	members := make([]lltypes.Type, len(rt.Fields))
	for i, f := range rt.Fields {
		members[i] = g.convType(f.Type)
	}

	def := g.mod.NewTypeDef("record."+rt.Name, lltypes.NewStruct(members...))
	g.recordTypes[rt] = def
	return def
}

// managed returns whether values of the type are runtime objects subject to
// reference counting.
func managed(t types.Type) bool {
	switch t.(type) {
	case *types.Array, *types.Iter:
		return true
	}

	return types.IsDynamic(t) || t == types.Str || t == types.Range
}
