package main

import (
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/pelletier/go-toml"

	"pyrite/bytecode"
	"pyrite/types"
)

// tomlFunction is a compilation request as encoded in a TOML listing: the
// function metadata, its instruction stream, and the requested argument
// types.
type tomlFunction struct {
	Name      string   `toml:"name"`
	Args      []string `toml:"args"`
	Locals    []string `toml:"locals"`
	Names     []string `toml:"names"`
	Cells     []string `toml:"cells"`
	Signature []string `toml:"signature"`
	Return    string   `toml:"return"`
	NoLock    bool     `toml:"nolock"`

	Consts []tomlConst `toml:"consts"`
	Code   []tomlInst  `toml:"code"`
}

type tomlConst struct {
	Kind    string  `toml:"kind"`
	Bool    bool    `toml:"bool"`
	Int     int64   `toml:"int"`
	Float   float64 `toml:"float"`
	Real    float64 `toml:"real"`
	Imag    float64 `toml:"imag"`
	Str     string  `toml:"str"`
}

type tomlInst struct {
	Op  string `toml:"op"`
	Arg int    `toml:"arg"`
}

// loadFunction deserializes a TOML listing into a bytecode function plus the
// requested specialization types.
func loadFunction(path string) (*bytecode.Function, []types.Type, types.Type, bool, error) {
	buff, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, nil, nil, false, fmt.Errorf("unable to read listing at `%s`: %s", path, err.Error())
	}

	tf := &tomlFunction{}
	if err := toml.Unmarshal(buff, tf); err != nil {
		return nil, nil, nil, false, fmt.Errorf("error parsing listing at `%s`: %s", path, err.Error())
	}

	if tf.Name == "" {
		return nil, nil, nil, false, fmt.Errorf("listing at `%s` is missing a function name", path)
	}
	if len(tf.Signature) != len(tf.Args) {
		return nil, nil, nil, false, fmt.Errorf("listing `%s` declares %d arguments but %d signature types",
			tf.Name, len(tf.Args), len(tf.Signature))
	}

	fn := &bytecode.Function{
		Name:      tf.Name,
		ArgNames:  tf.Args,
		Locals:    tf.Locals,
		Names:     tf.Names,
		CellNames: tf.Cells,
	}
	if len(fn.Locals) == 0 {
		fn.Locals = tf.Args
	}

	for _, tc := range tf.Consts {
		c, err := convertConst(tc)
		if err != nil {
			return nil, nil, nil, false, fmt.Errorf("listing `%s`: %s", tf.Name, err.Error())
		}
		fn.Consts = append(fn.Consts, c)
	}

	for offset, ti := range tf.Code {
		op, ok := bytecode.OpcodeByName(ti.Op)
		if !ok {
			return nil, nil, nil, false, fmt.Errorf("listing `%s`: unknown opcode `%s` at offset %d", tf.Name, ti.Op, offset)
		}
		fn.Code = append(fn.Code, bytecode.Instruction{Offset: offset, Op: op, Arg: ti.Arg})
	}

	argTypes := make([]types.Type, len(tf.Signature))
	for i, name := range tf.Signature {
		t, err := parseType(name)
		if err != nil {
			return nil, nil, nil, false, fmt.Errorf("listing `%s`: %s", tf.Name, err.Error())
		}
		argTypes[i] = t
	}

	var retType types.Type
	if tf.Return != "" {
		t, err := parseType(tf.Return)
		if err != nil {
			return nil, nil, nil, false, fmt.Errorf("listing `%s`: %s", tf.Name, err.Error())
		}
		retType = t
	}

	return fn, argTypes, retType, tf.NoLock, nil
}

func convertConst(tc tomlConst) (bytecode.Const, error) {
	switch tc.Kind {
	case "none":
		return bytecode.Const{Kind: bytecode.ConstNone}, nil
	case "bool":
		return bytecode.Const{Kind: bytecode.ConstBool, Bool: tc.Bool}, nil
	case "int":
		return bytecode.Const{Kind: bytecode.ConstInt, Int: tc.Int}, nil
	case "float":
		return bytecode.Const{Kind: bytecode.ConstFloat, Float: tc.Float}, nil
	case "complex":
		return bytecode.Const{Kind: bytecode.ConstComplex, Cmplx: complex(tc.Real, tc.Imag)}, nil
	case "str":
		return bytecode.Const{Kind: bytecode.ConstStr, Str: tc.Str}, nil
	default:
		return bytecode.Const{}, fmt.Errorf("unknown constant kind `%s`", tc.Kind)
	}
}

// scalarsByName maps spelled type names to their scalar types.
var scalarsByName = map[string]types.Type{
	"bool":       types.Bool,
	"int8":       types.Int8,
	"int16":      types.Int16,
	"int32":      types.Int32,
	"int64":      types.Int64,
	"uint8":      types.Uint8,
	"uint16":     types.Uint16,
	"uint32":     types.Uint32,
	"uint64":     types.Uint64,
	"float32":    types.Float32,
	"float64":    types.Float64,
	"complex64":  types.Complex64,
	"complex128": types.Complex128,
	"dynamic":    types.Dynamic,
	"none":       types.None,
	"str":        types.Str,
}

// parseType resolves a spelled type name.  Array types are spelled
// `array(elem, ndim)` with an optional trailing C or F layout tag.
func parseType(name string) (types.Type, error) {
	name = strings.TrimSpace(name)
	if t, ok := scalarsByName[name]; ok {
		return t, nil
	}

	if strings.HasPrefix(name, "array(") && strings.HasSuffix(name, ")") {
		parts := strings.Split(name[6:len(name)-1], ",")
		if len(parts) >= 2 {
			elem, err := parseType(parts[0])
			if err != nil {
				return nil, err
			}

			ndim := 0
			if _, err := fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &ndim); err != nil || ndim < 1 {
				return nil, fmt.Errorf("bad array dimensionality in `%s`", name)
			}

			layout := types.LayoutAny
			if len(parts) == 3 {
				switch strings.TrimSpace(parts[2]) {
				case "C":
					layout = types.LayoutC
				case "F":
					layout = types.LayoutF
				default:
					return nil, fmt.Errorf("bad array layout in `%s`", name)
				}
			}

			return &types.Array{Elem: elem, NDim: ndim, Layout: layout}, nil
		}
	}

	return nil, fmt.Errorf("unknown type name `%s`", name)
}
